package environment

import (
	"encoding/json"
	"testing"

	"github.com/shehryarbajwa/visitrace/pkg/models"
)

func TestMissingDeviceMemoryIsUnknown(t *testing.T) {
	var report models.EnvReport
	raw := `{"userAgent":"Mozilla/5.0","hardwareConcurrency":8,"screenWidth":1920,"screenHeight":1080}`
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		t.Fatalf("Failed to decode report: %v", err)
	}

	attrs := FromReport(&report).Inspect().Format()

	if attrs.DeviceMemory != Unknown {
		t.Errorf("Expected deviceMemory %q, got %#v", Unknown, attrs.DeviceMemory)
	}
	if attrs.HardwareConcurrency != 8 {
		t.Errorf("Expected hardwareConcurrency 8, got %#v", attrs.HardwareConcurrency)
	}
	if attrs.UserAgent != "Mozilla/5.0" {
		t.Errorf("Expected user agent, got %#v", attrs.UserAgent)
	}
}

func TestZeroValuesAreNotUnknown(t *testing.T) {
	zero := 0
	attrs := FromReport(&models.EnvReport{MaxTouchPoints: &zero}).Inspect().Format()

	if attrs.MaxTouchPoints != 0 {
		t.Errorf("Expected reported 0 to survive, got %#v", attrs.MaxTouchPoints)
	}
}

func TestNilReportFormatsEveryFieldUnknown(t *testing.T) {
	attrs := FromReport(nil).Inspect().Format()

	fields := map[string]any{
		"userAgent":           attrs.UserAgent,
		"platform":            attrs.Platform,
		"vendor":              attrs.Vendor,
		"deviceMemory":        attrs.DeviceMemory,
		"hardwareConcurrency": attrs.HardwareConcurrency,
		"maxTouchPoints":      attrs.MaxTouchPoints,
		"screenWidth":         attrs.ScreenWidth,
		"screenHeight":        attrs.ScreenHeight,
		"colorDepth":          attrs.ColorDepth,
		"pixelDepth":          attrs.PixelDepth,
		"orientation":         attrs.Orientation,
		"language":            attrs.Language,
		"timezone":            attrs.Timezone,
		"connection":          attrs.Connection,
	}
	for name, value := range fields {
		if value != Unknown {
			t.Errorf("%s: expected %q, got %#v", name, Unknown, value)
		}
	}
}
