package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// MessageShowNotification is the direct display message type.
const MessageShowNotification = "SHOW_NOTIFICATION"

// RootScope is opened when no window matches the application scope.
const RootScope = "/"

// ErrClosed is returned for events arriving after Close.
var ErrClosed = errors.New("sink runtime closed")

// Message is a same-process request from the foreground application.
type Message struct {
	Type    string  `json:"type"`
	Payload Payload `json:"payload"`
}

// Displayer shows notifications natively.
type Displayer interface {
	Show(ctx context.Context, opts Options) error
}

// Notification is a displayed notification the user interacted with.
type Notification interface {
	Tag() string
	Close()
}

// WindowClient is an open application window.
type WindowClient interface {
	URL() string
	Focus(ctx context.Context) error
}

// Clients enumerates and opens application windows.
type Clients interface {
	MatchAll(ctx context.Context) ([]WindowClient, error)
	OpenWindow(ctx context.Context, url string) error
}

// Runtime handles push, click and message events. Every handler runs under
// lifetime extension: Close waits for handlers in flight.
type Runtime struct {
	displayer Displayer
	clients   Clients
	scope     string
	defaults  Defaults
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// NewRuntime creates a runtime for the application registered at scope.
func NewRuntime(displayer Displayer, clients Clients, scope string, defaults Defaults) *Runtime {
	return &Runtime{
		displayer: displayer,
		clients:   clients,
		scope:     scope,
		defaults:  defaults,
		logger:    slog.Default().With("component", "sink"),
		now:       time.Now,
	}
}

// HandlePush displays a delivered push payload.
func (r *Runtime) HandlePush(ctx context.Context, raw []byte) error {
	return r.extend(func() error {
		opts := ParsePushMessage(raw, r.defaults, r.now())
		r.logger.Debug("push received", "tag", opts.Tag)

		if err := r.displayer.Show(ctx, opts); err != nil {
			return fmt.Errorf("show notification: %w", err)
		}
		return nil
	})
}

// HandleClick closes n and focuses the first window at the application
// scope, or opens one at the root scope when none is open.
func (r *Runtime) HandleClick(ctx context.Context, n Notification) error {
	return r.extend(func() error {
		n.Close()
		r.logger.Debug("notification clicked", "tag", n.Tag())

		windows, err := r.clients.MatchAll(ctx)
		if err != nil {
			return fmt.Errorf("list windows: %w", err)
		}

		for _, w := range windows {
			if w.URL() == r.scope {
				if err := w.Focus(ctx); err != nil {
					return fmt.Errorf("focus window: %w", err)
				}
				return nil
			}
		}

		if err := r.clients.OpenWindow(ctx, RootScope); err != nil {
			return fmt.Errorf("open window: %w", err)
		}
		return nil
	})
}

// HandleMessage serves a direct display request. Other message types are
// ignored.
func (r *Runtime) HandleMessage(ctx context.Context, msg Message) error {
	if msg.Type != MessageShowNotification {
		r.logger.Debug("ignoring message", "type", msg.Type)
		return nil
	}

	return r.extend(func() error {
		opts := r.defaults.Apply(msg.Payload, r.now())
		if err := r.displayer.Show(ctx, opts); err != nil {
			return fmt.Errorf("show notification: %w", err)
		}
		return nil
	})
}

// Serve handles messages until ctx is done or messages is closed. A failed
// display is logged and does not stop the loop.
func (r *Runtime) Serve(ctx context.Context, messages <-chan Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if err := r.HandleMessage(ctx, msg); err != nil {
				if errors.Is(err, ErrClosed) {
					return err
				}
				r.logger.Error("failed to handle message", "error", err)
			}
		}
	}
}

// Close rejects new events and waits for handlers in flight.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for handlers: %w", ctx.Err())
	}
}

func (r *Runtime) extend(fn func() error) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.inflight.Add(1)
	r.mu.Unlock()

	defer r.inflight.Done()
	return fn()
}
