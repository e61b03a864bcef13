package models

// VisibilityChange is one entry of the visibility log
type VisibilityChange struct {
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
	State     string `json:"state"`
}

// Payload is the flat record emitted on flush. Device fields hold either the
// reported value or "unknown".
type Payload struct {
	SessionID  string  `json:"session_id"`
	Token      *string `json:"token"`
	IsLoggedIn bool    `json:"isLoggedIn"`

	URL         string            `json:"url"`
	Path        string            `json:"path"`
	Title       string            `json:"title"`
	Referrer    string            `json:"referrer"`
	QueryParams map[string]string `json:"queryParams"`

	FirstVisit string `json:"firstVisit"`
	VisitCount int    `json:"visitCount"`

	TimeSpent         int64              `json:"timeSpent"`  // milliseconds
	ActiveTime        int64              `json:"activeTime"` // milliseconds
	ScrollDepth       float64            `json:"scrollDepth"`
	ClickCount        int                `json:"clickCount"`
	ExitIntent        bool               `json:"exitIntent"`
	VisibilityChanges []VisibilityChange `json:"visibilityChanges"`

	Language            any `json:"language"`
	Timezone            any `json:"timezone"`
	Connection          any `json:"connection"`
	UserAgent           any `json:"userAgent"`
	Platform            any `json:"platform"`
	Vendor              any `json:"vendor"`
	DeviceMemory        any `json:"deviceMemory"`
	HardwareConcurrency any `json:"hardwareConcurrency"`
	MaxTouchPoints      any `json:"maxTouchPoints"`
	ScreenWidth         any `json:"screenWidth"`
	ScreenHeight        any `json:"screenHeight"`
	ColorDepth          any `json:"colorDepth"`
	PixelDepth          any `json:"pixelDepth"`
	Orientation         any `json:"orientation"`

	IP  string         `json:"ip"`
	Geo map[string]any `json:"geo"`
}
