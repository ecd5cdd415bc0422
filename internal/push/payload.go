package push

import (
	"maps"
	"time"
)

// Default payload values.
const (
	DefaultTitle = "Claude Code"
	DefaultBody  = "Task completed"
	DefaultIcon  = "/icon-192.png"
	DefaultBadge = "/icon-192.png"
	DefaultTag   = "claude-response"
	DefaultURL   = "/"
)

// Data keys set on every payload.
const (
	DataKeyTimestamp = "timestamp"
	DataKeyURL       = "url"
)

// Payload is the JSON document delivered to the receiving runtime.
type Payload struct {
	Title              string         `json:"title"`
	Body               string         `json:"body"`
	Icon               string         `json:"icon"`
	Badge              string         `json:"badge"`
	Tag                string         `json:"tag"`
	Renotify           bool           `json:"renotify"`
	RequireInteraction bool           `json:"requireInteraction"`
	Silent             bool           `json:"silent"`
	Data               map[string]any `json:"data"`
}

// PayloadDefaults are used for fields the caller leaves empty.
type PayloadDefaults struct {
	Title string
	Body  string
	Icon  string
	Badge string
	Tag   string
	URL   string
}

// DefaultPayloadDefaults returns the built-in payload defaults.
func DefaultPayloadDefaults() PayloadDefaults {
	return PayloadDefaults{
		Title: DefaultTitle,
		Body:  DefaultBody,
		Icon:  DefaultIcon,
		Badge: DefaultBadge,
		Tag:   DefaultTag,
		URL:   DefaultURL,
	}
}

func (d PayloadDefaults) withFallbacks() PayloadDefaults {
	def := DefaultPayloadDefaults()
	if d.Title == "" {
		d.Title = def.Title
	}
	if d.Body == "" {
		d.Body = def.Body
	}
	if d.Icon == "" {
		d.Icon = def.Icon
	}
	if d.Badge == "" {
		d.Badge = def.Badge
	}
	if d.Tag == "" {
		d.Tag = def.Tag
	}
	if d.URL == "" {
		d.URL = def.URL
	}
	return d
}

// NewPayload builds a payload from caller input over defaults.
// The caller's data map is copied; the delivery timestamp always wins.
func NewPayload(defaults PayloadDefaults, title, body string, data map[string]any, now time.Time) Payload {
	d := defaults.withFallbacks()
	if title == "" {
		title = d.Title
	}
	if body == "" {
		body = d.Body
	}

	merged := make(map[string]any, len(data)+2)
	maps.Copy(merged, data)
	if _, ok := merged[DataKeyURL]; !ok {
		merged[DataKeyURL] = d.URL
	}
	merged[DataKeyTimestamp] = now.UnixMilli()

	return Payload{
		Title:              title,
		Body:               body,
		Icon:               d.Icon,
		Badge:              d.Badge,
		Tag:                d.Tag,
		Renotify:           true,
		RequireInteraction: false,
		Silent:             false,
		Data:               merged,
	}
}
