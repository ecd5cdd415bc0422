package sink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_PostsToRuntime(t *testing.T) {
	ch := make(chan Message, 1)
	d := &recordingDisplayer{}
	n := NewNotifier(ch, d, func() bool { return true }, DefaultDefaults())

	require.NoError(t, n.Notify(context.Background(), "Done", "Response completed"))

	msg := <-ch
	assert.Equal(t, MessageShowNotification, msg.Type)
	assert.Equal(t, "Done", msg.Payload.Title)
	assert.Equal(t, "claude-response", msg.Payload.Tag)
	assert.Empty(t, d.shown)
}

func TestNotifier_DisplaysDirectlyWithoutRuntime(t *testing.T) {
	d := &recordingDisplayer{}
	n := NewNotifier(nil, d, nil, DefaultDefaults())
	n.now = func() time.Time { return received }

	require.NoError(t, n.Notify(context.Background(), "", "hi"))

	require.Len(t, d.shown, 1)
	assert.Equal(t, "Claude Code", d.shown[0].Title)
	assert.Equal(t, "hi", d.shown[0].Body)
	assert.Equal(t, "/", d.shown[0].URL())
}

func TestNotifier_NotPermitted(t *testing.T) {
	d := &recordingDisplayer{}
	n := NewNotifier(nil, d, func() bool { return false }, DefaultDefaults())

	assert.ErrorIs(t, n.Notify(context.Background(), "t", "b"), ErrNotPermitted)
	assert.Empty(t, d.shown)
}

func TestNotifier_RuntimeBlockedHonoursContext(t *testing.T) {
	n := NewNotifier(make(chan Message), &recordingDisplayer{}, nil, DefaultDefaults())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, n.Notify(ctx, "t", "b"), context.Canceled)
}

func TestNotifier_ThroughRuntime(t *testing.T) {
	d := &recordingDisplayer{}
	r := newTestRuntime(d, &fakeClients{})
	ch := make(chan Message)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- r.Serve(ctx, ch) }()

	n := NewNotifier(ch, nil, nil, DefaultDefaults())
	require.NoError(t, n.Notify(context.Background(), "t", "b"))

	require.Eventually(t, func() bool { return d.count() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-served, context.Canceled)
}
