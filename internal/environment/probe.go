package environment

// Unknown replaces any capability the host could not report
const Unknown = "unknown"

// Field is a capability read that may be absent
type Field[T any] struct {
	Value   T
	Present bool
}

// Some wraps a present value
func Some[T any](v T) Field[T] {
	return Field[T]{Value: v, Present: true}
}

// FromPtr treats nil as absent
func FromPtr[T any](p *T) Field[T] {
	if p == nil {
		return Field[T]{}
	}
	return Some(*p)
}

// Format returns the value, or Unknown when absent
func (f Field[T]) Format() any {
	if !f.Present {
		return Unknown
	}
	return f.Value
}

// Capabilities is what the host exposes about the browser, device and display
type Capabilities struct {
	UserAgent           Field[string]
	Platform            Field[string]
	Vendor              Field[string]
	DeviceMemory        Field[float64]
	HardwareConcurrency Field[int]
	MaxTouchPoints      Field[int]
	ScreenWidth         Field[int]
	ScreenHeight        Field[int]
	ColorDepth          Field[int]
	PixelDepth          Field[int]
	Orientation         Field[string]
	Language            Field[string]
	Timezone            Field[string]
	Connection          Field[string]
}

// Probe reads host capabilities synchronously
type Probe interface {
	Inspect() Capabilities
}

// Static is a Probe that returns fixed capabilities
type Static Capabilities

// Inspect implements Probe
func (s Static) Inspect() Capabilities {
	return Capabilities(s)
}

// Attributes are capabilities at the formatting boundary: every field holds
// either the reported value or Unknown
type Attributes struct {
	UserAgent           any
	Platform            any
	Vendor              any
	DeviceMemory        any
	HardwareConcurrency any
	MaxTouchPoints      any
	ScreenWidth         any
	ScreenHeight        any
	ColorDepth          any
	PixelDepth          any
	Orientation         any
	Language            any
	Timezone            any
	Connection          any
}

// Format substitutes Unknown for every absent capability
func (c Capabilities) Format() Attributes {
	return Attributes{
		UserAgent:           c.UserAgent.Format(),
		Platform:            c.Platform.Format(),
		Vendor:              c.Vendor.Format(),
		DeviceMemory:        c.DeviceMemory.Format(),
		HardwareConcurrency: c.HardwareConcurrency.Format(),
		MaxTouchPoints:      c.MaxTouchPoints.Format(),
		ScreenWidth:         c.ScreenWidth.Format(),
		ScreenHeight:        c.ScreenHeight.Format(),
		ColorDepth:          c.ColorDepth.Format(),
		PixelDepth:          c.PixelDepth.Format(),
		Orientation:         c.Orientation.Format(),
		Language:            c.Language.Format(),
		Timezone:            c.Timezone.Format(),
		Connection:          c.Connection.Format(),
	}
}
