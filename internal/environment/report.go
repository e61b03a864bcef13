package environment

import "github.com/shehryarbajwa/visitrace/pkg/models"

// FromReport builds a Probe from the shim's hello frame. A nil report means
// nothing could be read.
func FromReport(report *models.EnvReport) Static {
	if report == nil {
		return Static{}
	}
	return Static{
		UserAgent:           FromPtr(report.UserAgent),
		Platform:            FromPtr(report.Platform),
		Vendor:              FromPtr(report.Vendor),
		DeviceMemory:        FromPtr(report.DeviceMemory),
		HardwareConcurrency: FromPtr(report.HardwareConcurrency),
		MaxTouchPoints:      FromPtr(report.MaxTouchPoints),
		ScreenWidth:         FromPtr(report.ScreenWidth),
		ScreenHeight:        FromPtr(report.ScreenHeight),
		ColorDepth:          FromPtr(report.ColorDepth),
		PixelDepth:          FromPtr(report.PixelDepth),
		Orientation:         FromPtr(report.Orientation),
		Language:            FromPtr(report.Language),
		Timezone:            FromPtr(report.Timezone),
		Connection:          FromPtr(report.Connection),
	}
}
