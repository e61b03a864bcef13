package sink

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/shehryarbajwa/visitrace/pkg/models"
)

func TestLoggerWritesOneRecordPerPayload(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	logger := NewLogger(zap.New(core))

	payload := models.Payload{
		SessionID:    "abc",
		URL:          "https://example.com/",
		DeviceMemory: "unknown",
		IP:           "unknown",
		Geo:          map[string]any{},
	}
	if err := logger.Write(context.Background(), payload); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	entries := recorded.All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(entries))
	}

	fields := entries[0].ContextMap()
	if fields["session_id"] != "abc" {
		t.Errorf("Expected session_id field, got %v", fields["session_id"])
	}
	nested, ok := fields["payload"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected payload object, got %#v", fields["payload"])
	}
	if nested["ip"] != "unknown" {
		t.Errorf("Expected ip unknown, got %v", nested["ip"])
	}
	if nested["deviceMemory"] != "unknown" {
		t.Errorf("Expected deviceMemory unknown, got %v", nested["deviceMemory"])
	}
	if _, ok := nested["token"]; !ok {
		t.Error("Expected token key even when absent")
	}
}

func TestFuncSink(t *testing.T) {
	var got []string
	s := Func(func(_ context.Context, p models.Payload) error {
		got = append(got, p.SessionID)
		return nil
	})

	s.Write(context.Background(), models.Payload{SessionID: "one"})
	s.Write(context.Background(), models.Payload{SessionID: "two"})

	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Errorf("Unexpected writes %v", got)
	}
}
