package sink

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotPermitted means notification permission is not granted.
var ErrNotPermitted = errors.New("notifications not permitted")

// Notifier shows locally generated notifications from the foreground
// application. It prefers the background runtime channel when one is
// attached and displays directly otherwise.
type Notifier struct {
	runtime   chan<- Message
	displayer Displayer
	granted   func() bool
	defaults  Defaults
	now       func() time.Time
}

// NewNotifier creates a notifier. runtime may be nil; granted reports the
// current permission.
func NewNotifier(runtime chan<- Message, displayer Displayer, granted func() bool, defaults Defaults) *Notifier {
	return &Notifier{
		runtime:   runtime,
		displayer: displayer,
		granted:   granted,
		defaults:  defaults,
		now:       time.Now,
	}
}

// Notify shows a notification with the given title and body.
func (n *Notifier) Notify(ctx context.Context, title, body string) error {
	if n.granted != nil && !n.granted() {
		return ErrNotPermitted
	}

	payload := Payload{
		Title: title,
		Body:  body,
		Icon:  n.defaults.Icon,
		Badge: n.defaults.Badge,
		Tag:   n.defaults.Tag,
	}

	if n.runtime != nil {
		select {
		case n.runtime <- Message{Type: MessageShowNotification, Payload: payload}:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("post to runtime: %w", ctx.Err())
		}
	}

	if err := n.displayer.Show(ctx, n.defaults.Apply(payload, n.now())); err != nil {
		return fmt.Errorf("show notification: %w", err)
	}
	return nil
}
