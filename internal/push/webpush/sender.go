// Package webpush delivers push messages through the Web Push protocol with
// VAPID authentication.
package webpush

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/bissquit/pushgarden/internal/domain"
	"github.com/bissquit/pushgarden/internal/push"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 10 * time.Second
	defaultTTL     = 60
	defaultUrgency = "normal"

	maxErrorBody = 4 << 10
)

// Config holds Web Push sender configuration.
type Config struct {
	Subscriber string // contact URL or email, webpush-go adds "mailto:" when needed
	PublicKey  string
	PrivateKey string
	TTL        int    // seconds the push service keeps an undelivered message
	Urgency    string // very-low, low, normal, high
	Timeout    time.Duration

	// GoneStatuses are push service statuses that mean the subscription is
	// permanently invalid. Defaults to 410 Gone.
	GoneStatuses []int

	// RateLimit caps outbound requests per second. Zero means unlimited.
	RateLimit float64
}

// Sender implements push.Sender using webpush-go.
type Sender struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	gone       map[int]bool
}

var _ push.Sender = (*Sender)(nil)

// NewSender creates a new Web Push sender.
func NewSender(config Config) (*Sender, error) {
	if config.PublicKey == "" || config.PrivateKey == "" {
		return nil, errors.New("webpush sender: VAPID public and private keys are required")
	}
	if config.TTL <= 0 {
		config.TTL = defaultTTL
	}
	if config.Urgency == "" {
		config.Urgency = defaultUrgency
	}
	if !validUrgency(config.Urgency) {
		return nil, fmt.Errorf("webpush sender: invalid urgency %q", config.Urgency)
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if len(config.GoneStatuses) == 0 {
		config.GoneStatuses = []int{http.StatusGone}
	}

	gone := make(map[int]bool, len(config.GoneStatuses))
	for _, code := range config.GoneStatuses {
		gone[code] = true
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	slog.Info("webpush sender configured",
		"ttl", config.TTL,
		"urgency", config.Urgency,
		"gone_statuses", config.GoneStatuses,
		"rate_limit", config.RateLimit,
	)

	return &Sender{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    limiter,
		gone:       gone,
	}, nil
}

// Send encrypts payload for the subscription and posts it to its endpoint.
func (s *Sender) Send(ctx context.Context, sub domain.PushSubscription, payload []byte) error {
	if sub.Endpoint == "" {
		return &PermanentError{Message: "subscription endpoint is empty"}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return &RetryableError{Message: fmt.Sprintf("rate limit wait: %v", err)}
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      s.httpClient,
		Subscriber:      s.config.Subscriber,
		TTL:             s.config.TTL,
		Urgency:         webpush.Urgency(s.config.Urgency),
		VAPIDPublicKey:  s.config.PublicKey,
		VAPIDPrivateKey: s.config.PrivateKey,
	})
	if err != nil {
		return &RetryableError{Message: fmt.Sprintf("send request: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	return s.handleResponse(resp)
}

func (s *Sender) handleResponse(resp *http.Response) error {
	code := resp.StatusCode

	switch {
	case code >= 200 && code < 300:
		return nil

	case s.gone[code]:
		return &GoneError{Code: code}

	case code == http.StatusTooManyRequests:
		return &RetryableError{Code: code, Message: "rate limited"}

	case code >= 500:
		return &RetryableError{Code: code, Message: fmt.Sprintf("server error: %s", readBody(resp))}

	default:
		return &PermanentError{Code: code, Message: fmt.Sprintf("rejected: %s", readBody(resp))}
	}
}

func readBody(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Sprintf("read response: %v", err)
	}
	return string(body)
}

func validUrgency(u string) bool {
	switch webpush.Urgency(u) {
	case webpush.UrgencyVeryLow, webpush.UrgencyLow, webpush.UrgencyNormal, webpush.UrgencyHigh:
		return true
	}
	return false
}

// GoneError reports that the push service no longer knows the subscription.
type GoneError struct {
	Code int
}

func (e *GoneError) Error() string {
	return fmt.Sprintf("webpush error %d: subscription gone", e.Code)
}

// Is makes GoneError match push.ErrSubscriptionGone.
func (e *GoneError) Is(target error) bool {
	return target == push.ErrSubscriptionGone
}

// IsRetryable returns false, the subscription will never accept messages again.
func (e *GoneError) IsRetryable() bool { return false }

// PermanentError indicates the push service rejected the message.
type PermanentError struct {
	Code    int
	Message string
}

func (e *PermanentError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("webpush error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("webpush error: %s", e.Message)
}

// IsRetryable returns false as permanent errors should not be retried.
func (e *PermanentError) IsRetryable() bool { return false }

// RetryableError indicates a temporary error.
type RetryableError struct {
	Code    int
	Message string
}

func (e *RetryableError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("webpush error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("webpush error: %s", e.Message)
}

// IsRetryable returns true as these errors are temporary.
func (e *RetryableError) IsRetryable() bool { return true }
