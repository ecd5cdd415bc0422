// Package sink implements the receiving side of a delivered push message:
// display with defaults, click routing and direct display requests from the
// foreground application.
package sink

import (
	"encoding/json"
	"maps"
	"time"

	"github.com/bissquit/pushgarden/internal/push"
)

// Defaults fill fields a message leaves empty.
type Defaults struct {
	Title string
	Body  string
	Icon  string
	Badge string
	Tag   string
	URL   string
}

// DefaultDefaults returns the same defaults the dispatcher uses.
func DefaultDefaults() Defaults {
	d := push.DefaultPayloadDefaults()
	return Defaults{
		Title: d.Title,
		Body:  d.Body,
		Icon:  d.Icon,
		Badge: d.Badge,
		Tag:   d.Tag,
		URL:   d.URL,
	}
}

// Payload is the field set accepted from a push message or a direct display
// request. Empty fields take defaults.
type Payload struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Icon  string         `json:"icon"`
	Badge string         `json:"badge"`
	Tag   string         `json:"tag"`
	Data  map[string]any `json:"data"`
}

// Options is what gets displayed.
type Options struct {
	Title              string
	Body               string
	Icon               string
	Badge              string
	Tag                string
	Renotify           bool
	RequireInteraction bool
	Silent             bool
	Data               map[string]any
}

// URL returns data.url.
func (o Options) URL() string {
	u, _ := o.Data[push.DataKeyURL].(string)
	return u
}

// ParsePushMessage decodes a delivered payload. A payload that is not a JSON
// object is displayed as plain text body with every other field defaulted.
func ParsePushMessage(raw []byte, d Defaults, received time.Time) Options {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		p = Payload{Body: string(raw)}
	}
	return d.Apply(p, received)
}

// Apply resolves p against the defaults. data.url defaults to the default URL
// and data.timestamp to received when the sender did not set one.
func (d Defaults) Apply(p Payload, received time.Time) Options {
	opts := Options{
		Title:              firstNonEmpty(p.Title, d.Title),
		Body:               firstNonEmpty(p.Body, d.Body),
		Icon:               firstNonEmpty(p.Icon, d.Icon),
		Badge:              firstNonEmpty(p.Badge, d.Badge),
		Tag:                firstNonEmpty(p.Tag, d.Tag),
		Renotify:           true,
		RequireInteraction: false,
		Silent:             false,
		Data:               make(map[string]any, len(p.Data)+2),
	}

	maps.Copy(opts.Data, p.Data)
	if u, ok := opts.Data[push.DataKeyURL].(string); !ok || u == "" {
		opts.Data[push.DataKeyURL] = firstNonEmpty(d.URL, push.DefaultURL)
	}
	if _, ok := opts.Data[push.DataKeyTimestamp]; !ok {
		opts.Data[push.DataKeyTimestamp] = received.UnixMilli()
	}
	return opts
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
