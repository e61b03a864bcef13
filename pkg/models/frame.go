package models

// Frame types exchanged over the tracking WebSocket
const (
	FrameHello         = "hello"
	FrameSession       = "session"
	FrameGeolocate     = "geolocate"
	FramePosition      = "position"
	FramePositionError = "position_error"
)

// Page describes the document the shim runs in
type Page struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Referrer string `json:"referrer"`
}

// EnvReport holds what the shim could read from navigator, screen and Intl.
// A nil field means the browser does not expose it.
type EnvReport struct {
	UserAgent           *string  `json:"userAgent,omitempty"`
	Platform            *string  `json:"platform,omitempty"`
	Vendor              *string  `json:"vendor,omitempty"`
	DeviceMemory        *float64 `json:"deviceMemory,omitempty"`
	HardwareConcurrency *int     `json:"hardwareConcurrency,omitempty"`
	MaxTouchPoints      *int     `json:"maxTouchPoints,omitempty"`
	ScreenWidth         *int     `json:"screenWidth,omitempty"`
	ScreenHeight        *int     `json:"screenHeight,omitempty"`
	ColorDepth          *int     `json:"colorDepth,omitempty"`
	PixelDepth          *int     `json:"pixelDepth,omitempty"`
	Orientation         *string  `json:"orientation,omitempty"`
	Language            *string  `json:"language,omitempty"`
	Timezone            *string  `json:"timezone,omitempty"`
	Connection          *string  `json:"connection,omitempty"`
}

// Frame is any message sent by the shim. Type selects which fields apply.
type Frame struct {
	Type string `json:"type"`

	// hello
	Tab    string     `json:"tab,omitempty"`
	Page   *Page      `json:"page,omitempty"`
	Cookie string     `json:"cookie,omitempty"`
	Env    *EnvReport `json:"env,omitempty"`

	// page events
	TS    int64   `json:"ts,omitempty"` // epoch milliseconds
	Y     float64 `json:"y,omitempty"`
	State string  `json:"state,omitempty"`
	Depth float64 `json:"depth,omitempty"`

	// position / position_error
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	Message   string  `json:"message,omitempty"`
}

// ServerFrame is a message sent by the agent to the shim
type ServerFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
}
