package sink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scope = "https://app.example.com/"

func newTestRuntime(d *recordingDisplayer, c *fakeClients) *Runtime {
	r := NewRuntime(d, c, scope, DefaultDefaults())
	r.now = func() time.Time { return received }
	return r
}

func TestRuntime_HandlePush(t *testing.T) {
	d := &recordingDisplayer{}
	r := newTestRuntime(d, &fakeClients{})

	require.NoError(t, r.HandlePush(context.Background(), []byte(`{"title":"T","body":"B"}`)))

	require.Len(t, d.shown, 1)
	assert.Equal(t, "T", d.shown[0].Title)
	assert.Equal(t, "B", d.shown[0].Body)
	assert.Equal(t, received.UnixMilli(), d.shown[0].Data["timestamp"])
}

func TestRuntime_HandlePush_DisplayError(t *testing.T) {
	d := &recordingDisplayer{err: errDisplay}
	r := newTestRuntime(d, &fakeClients{})

	err := r.HandlePush(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, errDisplay)
}

func TestRuntime_HandleClick_FocusesScopeWindow(t *testing.T) {
	other := &fakeWindow{url: "https://app.example.com/settings"}
	match := &fakeWindow{url: scope}
	second := &fakeWindow{url: scope}
	clients := &fakeClients{windows: []*fakeWindow{other, match, second}}
	n := &fakeNotification{tag: "claude-response"}

	r := newTestRuntime(&recordingDisplayer{}, clients)
	require.NoError(t, r.HandleClick(context.Background(), n))

	assert.True(t, n.closed)
	assert.False(t, other.focused)
	assert.True(t, match.focused)
	assert.False(t, second.focused)
	assert.Empty(t, clients.openedAt)
}

func TestRuntime_HandleClick_OpensRootWhenNoMatch(t *testing.T) {
	clients := &fakeClients{windows: []*fakeWindow{{url: "https://app.example.com/other"}}}
	n := &fakeNotification{}

	r := newTestRuntime(&recordingDisplayer{}, clients)
	require.NoError(t, r.HandleClick(context.Background(), n))

	assert.True(t, n.closed)
	assert.Equal(t, []string{"/"}, clients.openedAt)
}

func TestRuntime_HandleClick_ListError(t *testing.T) {
	clients := &fakeClients{listErr: errDisplay}
	n := &fakeNotification{}

	err := newTestRuntime(&recordingDisplayer{}, clients).HandleClick(context.Background(), n)
	assert.ErrorIs(t, err, errDisplay)
	assert.True(t, n.closed)
}

func TestRuntime_HandleMessage(t *testing.T) {
	d := &recordingDisplayer{}
	r := newTestRuntime(d, &fakeClients{})

	require.NoError(t, r.HandleMessage(context.Background(), Message{Type: "PING"}))
	assert.Empty(t, d.shown)

	require.NoError(t, r.HandleMessage(context.Background(), Message{
		Type:    MessageShowNotification,
		Payload: Payload{Body: "local"},
	}))

	require.Len(t, d.shown, 1)
	assert.Equal(t, "Claude Code", d.shown[0].Title)
	assert.Equal(t, "local", d.shown[0].Body)
	assert.Equal(t, "claude-response", d.shown[0].Tag)
	assert.True(t, d.shown[0].Renotify)
}

func TestRuntime_DirectAndPushShareDefaults(t *testing.T) {
	d := &recordingDisplayer{}
	r := newTestRuntime(d, &fakeClients{})

	require.NoError(t, r.HandlePush(context.Background(), []byte(`{}`)))
	require.NoError(t, r.HandleMessage(context.Background(), Message{Type: MessageShowNotification}))

	require.Len(t, d.shown, 2)
	assert.Equal(t, d.shown[0], d.shown[1])
}

func TestRuntime_Serve(t *testing.T) {
	d := &recordingDisplayer{}
	r := newTestRuntime(d, &fakeClients{})

	messages := make(chan Message, 3)
	messages <- Message{Type: MessageShowNotification, Payload: Payload{Title: "a"}}
	messages <- Message{Type: "other"}
	messages <- Message{Type: MessageShowNotification, Payload: Payload{Title: "b"}}
	close(messages)

	require.NoError(t, r.Serve(context.Background(), messages))
	require.Len(t, d.shown, 2)
	assert.Equal(t, "a", d.shown[0].Title)
	assert.Equal(t, "b", d.shown[1].Title)
}

func TestRuntime_Serve_StopsOnContext(t *testing.T) {
	r := newTestRuntime(&recordingDisplayer{}, &fakeClients{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Serve(ctx, make(chan Message))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRuntime_CloseWaitsForInflight(t *testing.T) {
	d := &recordingDisplayer{entered: make(chan struct{}, 1), block: make(chan struct{})}
	r := newTestRuntime(d, &fakeClients{})

	done := make(chan error, 1)
	go func() { done <- r.HandlePush(context.Background(), []byte("x")) }()
	<-d.entered

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Close(ctx), context.DeadlineExceeded)

	close(d.block)
	require.NoError(t, <-done)
	require.NoError(t, r.Close(context.Background()))
	assert.Equal(t, 1, d.count())

	assert.ErrorIs(t, r.HandlePush(context.Background(), []byte("y")), ErrClosed)
}
