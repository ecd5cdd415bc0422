package client

import (
	"context"
	"errors"
	"sync"
)

type fakePlatform struct {
	noBackground    bool
	noPush          bool
	noNotifications bool

	permission   Permission
	promptResult Permission
	promptErr    error
	prompts      int

	readyErr     error
	registration *fakeRegistration
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		permission:   PermissionDefault,
		promptResult: PermissionGranted,
		registration: &fakeRegistration{},
	}
}

func (p *fakePlatform) SupportsBackgroundRegistration() bool { return !p.noBackground }
func (p *fakePlatform) SupportsPush() bool                   { return !p.noPush }
func (p *fakePlatform) SupportsNotifications() bool          { return !p.noNotifications }
func (p *fakePlatform) Permission() Permission               { return p.permission }

func (p *fakePlatform) RequestPermission(context.Context) (Permission, error) {
	p.prompts++
	if p.promptErr != nil {
		return PermissionDefault, p.promptErr
	}
	p.permission = p.promptResult
	return p.promptResult, nil
}

func (p *fakePlatform) Ready(context.Context) (Registration, error) {
	if p.readyErr != nil {
		return nil, p.readyErr
	}
	return p.registration, nil
}

type fakeRegistration struct {
	subscribeErr error
	lastOpts     SubscribeOptions
	current      *fakeHandle
	subscribed   []*fakeHandle
}

func (r *fakeRegistration) Subscribe(_ context.Context, opts SubscribeOptions) (Handle, error) {
	if r.subscribeErr != nil {
		return nil, r.subscribeErr
	}
	r.lastOpts = opts
	h := &fakeHandle{endpoint: "https://push.example.com/sub", revokeOK: true}
	r.subscribed = append(r.subscribed, h)
	r.current = h
	return h, nil
}

func (r *fakeRegistration) Current(context.Context) (Handle, error) {
	if r.current == nil {
		return nil, nil
	}
	return r.current, nil
}

type fakeHandle struct {
	endpoint  string
	revokeOK  bool
	revokeErr error
	revoked   int
}

func (h *fakeHandle) Endpoint() string { return h.endpoint }
func (h *fakeHandle) Keys() Keys       { return Keys{P256dh: "p256dh", Auth: "auth"} }

func (h *fakeHandle) Unsubscribe(context.Context) (bool, error) {
	h.revoked++
	if h.revokeErr != nil {
		return false, h.revokeErr
	}
	return h.revokeOK, nil
}

type fakeServer struct {
	mu sync.Mutex

	publicKey      string
	keyErr         error
	subscribeErr   error
	unsubscribeErr error
	testErr        error

	subscribed   []string
	unsubscribed []string
	tests        [][2]string
}

func newFakeServer() *fakeServer {
	return &fakeServer{publicKey: "BEl62iUYgUivxIkv69yViEuiBIa-Ib9-SkvMeAtA3LFgDzkrxZJjSgSnfckjBJuBkr3qBUYIHBQFLXYp5Nksh8U"}
}

func (s *fakeServer) VAPIDPublicKey(context.Context) (string, error) {
	return s.publicKey, s.keyErr
}

func (s *fakeServer) Subscribe(_ context.Context, endpoint string, _ Keys) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribeErr != nil {
		return s.subscribeErr
	}
	s.subscribed = append(s.subscribed, endpoint)
	return nil
}

func (s *fakeServer) Unsubscribe(_ context.Context, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribed = append(s.unsubscribed, endpoint)
	return s.unsubscribeErr
}

func (s *fakeServer) SendTest(_ context.Context, title, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tests = append(s.tests, [2]string{title, body})
	return s.testErr
}

var errBoom = errors.New("boom")
