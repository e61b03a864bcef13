package payload

import (
	"maps"
	"net/url"
	"time"

	"github.com/shehryarbajwa/visitrace/internal/activity"
	"github.com/shehryarbajwa/visitrace/internal/enrichment"
	"github.com/shehryarbajwa/visitrace/internal/environment"
	"github.com/shehryarbajwa/visitrace/internal/identity"
	"github.com/shehryarbajwa/visitrace/pkg/models"
)

// Input is everything a flush has gathered
type Input struct {
	SessionID   string
	Token       *string
	Page        models.Page
	Visitor     identity.Visitor
	Activity    activity.Snapshot
	Environment environment.Capabilities
	Enrichment  enrichment.Result
}

// Assemble merges the inputs into one flat record. It reads no clock or
// host state, so equal inputs give equal payloads.
func Assemble(in Input) models.Payload {
	path, query := splitURL(in.Page.URL)
	attrs := in.Environment.Format()

	ip := in.Enrichment.IP.IP
	if ip == "" {
		ip = environment.Unknown
	}

	geo := make(map[string]any, len(in.Enrichment.Geo))
	maps.Copy(geo, in.Enrichment.Geo)

	visibility := make([]models.VisibilityChange, 0, len(in.Activity.VisibilityChanges))
	for _, change := range in.Activity.VisibilityChanges {
		visibility = append(visibility, models.VisibilityChange{
			Timestamp: change.At.UnixMilli(),
			State:     change.State,
		})
	}

	var firstVisit string
	if !in.Visitor.FirstVisit.IsZero() {
		firstVisit = in.Visitor.FirstVisit.UTC().Format(time.RFC3339Nano)
	}

	return models.Payload{
		SessionID:  in.SessionID,
		Token:      in.Token,
		IsLoggedIn: in.Token != nil && *in.Token != "",

		URL:         in.Page.URL,
		Path:        path,
		Title:       in.Page.Title,
		Referrer:    in.Page.Referrer,
		QueryParams: query,

		FirstVisit: firstVisit,
		VisitCount: in.Visitor.VisitCount,

		TimeSpent:         in.Activity.TimeSpent.Milliseconds(),
		ActiveTime:        in.Activity.ActiveTime.Milliseconds(),
		ScrollDepth:       in.Activity.ScrollDepth,
		ClickCount:        in.Activity.ClickCount,
		ExitIntent:        in.Activity.ExitIntent,
		VisibilityChanges: visibility,

		Language:            attrs.Language,
		Timezone:            attrs.Timezone,
		Connection:          attrs.Connection,
		UserAgent:           attrs.UserAgent,
		Platform:            attrs.Platform,
		Vendor:              attrs.Vendor,
		DeviceMemory:        attrs.DeviceMemory,
		HardwareConcurrency: attrs.HardwareConcurrency,
		MaxTouchPoints:      attrs.MaxTouchPoints,
		ScreenWidth:         attrs.ScreenWidth,
		ScreenHeight:        attrs.ScreenHeight,
		ColorDepth:          attrs.ColorDepth,
		PixelDepth:          attrs.PixelDepth,
		Orientation:         attrs.Orientation,

		IP:  ip,
		Geo: geo,
	}
}

// splitURL returns the path and first value of each query parameter
func splitURL(raw string) (string, map[string]string) {
	query := map[string]string{}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", query
	}
	for key, values := range parsed.Query() {
		if len(values) > 0 {
			query[key] = values[0]
		}
	}
	return parsed.Path, query
}
