package sink

import (
	"context"
	"errors"
	"sync"
)

type recordingDisplayer struct {
	mu      sync.Mutex
	shown   []Options
	err     error
	entered chan struct{}
	block   chan struct{}
}

func (d *recordingDisplayer) Show(ctx context.Context, opts Options) error {
	if d.entered != nil {
		d.entered <- struct{}{}
	}
	if d.block != nil {
		select {
		case <-d.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.shown = append(d.shown, opts)
	return nil
}

func (d *recordingDisplayer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.shown)
}

type fakeNotification struct {
	tag    string
	closed bool
}

func (n *fakeNotification) Tag() string { return n.tag }
func (n *fakeNotification) Close()      { n.closed = true }

type fakeWindow struct {
	url     string
	focused bool
}

func (w *fakeWindow) URL() string { return w.url }

func (w *fakeWindow) Focus(context.Context) error {
	w.focused = true
	return nil
}

type fakeClients struct {
	windows  []*fakeWindow
	listErr  error
	openErr  error
	openedAt []string
}

func (c *fakeClients) MatchAll(context.Context) ([]WindowClient, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	out := make([]WindowClient, 0, len(c.windows))
	for _, w := range c.windows {
		out = append(out, w)
	}
	return out, nil
}

func (c *fakeClients) OpenWindow(_ context.Context, url string) error {
	if c.openErr != nil {
		return c.openErr
	}
	c.openedAt = append(c.openedAt, url)
	return nil
}

var errDisplay = errors.New("display failed")
