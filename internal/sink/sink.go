package sink

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/shehryarbajwa/visitrace/pkg/models"
)

// Sink receives assembled payloads. It is the hook where a network
// transport would plug in.
type Sink interface {
	Write(ctx context.Context, p models.Payload) error
}

// Func adapts a function to Sink
type Func func(ctx context.Context, p models.Payload) error

// Write implements Sink
func (f Func) Write(ctx context.Context, p models.Payload) error {
	return f(ctx, p)
}

// Logger writes each payload as one structured zap record
type Logger struct {
	logger *zap.Logger
}

// NewLogger wraps an existing zap logger
func NewLogger(logger *zap.Logger) *Logger {
	return &Logger{logger: logger}
}

// NewStdout builds a JSON logger on standard output
func NewStdout() (*Logger, error) {
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{"stdout"}
	config.EncoderConfig.TimeKey = "ts"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.DisableStacktrace = true

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	return NewLogger(logger.Named("analytics")), nil
}

// Write implements Sink
func (l *Logger) Write(_ context.Context, p models.Payload) error {
	l.logger.Info("analytics payload",
		zap.String("session_id", p.SessionID),
		zap.Bool("isLoggedIn", p.IsLoggedIn),
		zap.String("url", p.URL),
		zap.Object("payload", payloadMarshaler(p)),
	)
	return nil
}

// Sync flushes buffered log entries
func (l *Logger) Sync() error {
	return l.logger.Sync()
}

type payloadMarshaler models.Payload

func (p payloadMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	if p.Token != nil {
		enc.AddString("token", *p.Token)
	} else {
		enc.AddReflected("token", nil)
	}
	enc.AddString("session_id", p.SessionID)
	enc.AddBool("isLoggedIn", p.IsLoggedIn)
	enc.AddString("url", p.URL)
	enc.AddString("path", p.Path)
	enc.AddString("title", p.Title)
	enc.AddString("referrer", p.Referrer)
	if err := enc.AddReflected("queryParams", p.QueryParams); err != nil {
		return err
	}
	enc.AddString("firstVisit", p.FirstVisit)
	enc.AddInt("visitCount", p.VisitCount)
	enc.AddInt64("timeSpent", p.TimeSpent)
	enc.AddInt64("activeTime", p.ActiveTime)
	enc.AddFloat64("scrollDepth", p.ScrollDepth)
	enc.AddInt("clickCount", p.ClickCount)
	enc.AddBool("exitIntent", p.ExitIntent)
	if err := enc.AddReflected("visibilityChanges", p.VisibilityChanges); err != nil {
		return err
	}

	attributes := []struct {
		key   string
		value any
	}{
		{"language", p.Language},
		{"timezone", p.Timezone},
		{"connection", p.Connection},
		{"userAgent", p.UserAgent},
		{"platform", p.Platform},
		{"vendor", p.Vendor},
		{"deviceMemory", p.DeviceMemory},
		{"hardwareConcurrency", p.HardwareConcurrency},
		{"maxTouchPoints", p.MaxTouchPoints},
		{"screenWidth", p.ScreenWidth},
		{"screenHeight", p.ScreenHeight},
		{"colorDepth", p.ColorDepth},
		{"pixelDepth", p.PixelDepth},
		{"orientation", p.Orientation},
	}
	for _, attr := range attributes {
		if err := enc.AddReflected(attr.key, attr.value); err != nil {
			return err
		}
	}

	enc.AddString("ip", p.IP)
	return enc.AddReflected("geo", p.Geo)
}
