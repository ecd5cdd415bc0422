package push

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/pushgarden/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Dispatcher defaults.
const (
	DefaultSendTimeout          = 10 * time.Second
	DefaultBroadcastConcurrency = 8
)

// DispatcherConfig holds VAPID credentials and delivery settings.
type DispatcherConfig struct {
	Subscriber           string
	PublicKey            string
	PrivateKey           string
	Defaults             PayloadDefaults
	SendTimeout          time.Duration
	BroadcastConcurrency int
}

// Result summarizes one dispatch call.
type Result struct {
	Total     int       `json:"total"`
	Delivered int       `json:"delivered"`
	Pruned    int       `json:"pruned"`
	Failures  []Failure `json:"failures,omitempty"`
}

// OK reports whether at least one delivery succeeded.
func (r Result) OK() bool {
	return r.Delivered > 0
}

// Failure describes one recipient that did not receive the message.
type Failure struct {
	UserID   string `json:"user_id"`
	Endpoint string `json:"endpoint,omitempty"`
	Reason   string `json:"reason"`
	Gone     bool   `json:"gone"`
}

// Dispatcher builds payloads and fans them out to subscriptions.
//
// Delivery is best effort: every recipient is attempted once, one recipient's
// failure never affects another, and there is no retry queue.
type Dispatcher struct {
	config  DispatcherConfig
	repo    Repository
	sender  Sender
	enabled bool
	now     func() time.Time
}

// NewDispatcher creates a dispatcher. Without both VAPID keys it is disabled
// and every send is a no-op that reports failure.
func NewDispatcher(config DispatcherConfig, repo Repository, sender Sender) *Dispatcher {
	if config.SendTimeout <= 0 {
		config.SendTimeout = DefaultSendTimeout
	}
	if config.BroadcastConcurrency <= 0 {
		config.BroadcastConcurrency = DefaultBroadcastConcurrency
	}
	config.Defaults = config.Defaults.withFallbacks()

	enabled := config.PublicKey != "" && config.PrivateKey != "" && sender != nil
	if enabled {
		slog.Info("push dispatcher initialized", "subscriber", config.Subscriber)
	} else {
		slog.Warn("push notifications disabled: VAPID keys not configured")
	}

	return &Dispatcher{
		config:  config,
		repo:    repo,
		sender:  sender,
		enabled: enabled,
		now:     time.Now,
	}
}

// IsEnabled reports whether the dispatcher has signing keys.
func (d *Dispatcher) IsEnabled() bool {
	return d.enabled
}

// VAPIDPublicKey returns the public key clients subscribe with.
// Empty while disabled.
func (d *Dispatcher) VAPIDPublicKey() string {
	if !d.enabled {
		return ""
	}
	return d.config.PublicKey
}

// SendToUser delivers to every active subscription of the user and reports
// whether at least one delivery succeeded.
func (d *Dispatcher) SendToUser(ctx context.Context, userID, title, body string, data map[string]any) bool {
	return d.SendToUserResult(ctx, userID, title, body, data).OK()
}

// SendToUserResult is SendToUser with per-recipient detail.
func (d *Dispatcher) SendToUserResult(ctx context.Context, userID, title, body string, data map[string]any) Result {
	if !d.enabled {
		slog.Debug("push disabled, skipping notification", "user_id", userID)
		return Result{}
	}

	subs, err := d.repo.GetActiveSubscriptions(ctx, userID)
	if err != nil {
		slog.Error("failed to load push subscriptions", "user_id", userID, "error", err)
		return Result{Failures: []Failure{{UserID: userID, Reason: err.Error()}}}
	}
	if len(subs) == 0 {
		slog.Debug("no push subscriptions for user", "user_id", userID)
		return Result{}
	}

	message, err := d.encode(title, body, data)
	if err != nil {
		slog.Error("failed to encode push payload", "error", err)
		return Result{Total: len(subs), Failures: []Failure{{UserID: userID, Reason: err.Error()}}}
	}

	outcomes := make([]outcome, len(subs))
	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = d.deliver(ctx, scopeUser, userID, sub, message)
		}()
	}
	wg.Wait()

	result := collect(outcomes)
	slog.Info("push notification sent to user",
		"user_id", userID,
		"delivered", result.Delivered,
		"total", result.Total,
	)
	return result
}

// SendToAll delivers to every active subscription of every active user and
// reports whether at least one delivery succeeded.
func (d *Dispatcher) SendToAll(ctx context.Context, title, body string, data map[string]any) bool {
	return d.SendToAllResult(ctx, title, body, data).OK()
}

// SendToAllResult is SendToAll with per-recipient detail.
func (d *Dispatcher) SendToAllResult(ctx context.Context, title, body string, data map[string]any) Result {
	if !d.enabled {
		slog.Debug("push disabled, skipping broadcast")
		return Result{}
	}

	rows, err := d.repo.ListAllActiveSubscriptions(ctx)
	if err != nil {
		slog.Error("failed to load push subscriptions for broadcast", "error", err)
		return Result{Failures: []Failure{{Reason: err.Error()}}}
	}
	if len(rows) == 0 {
		slog.Info("no active push subscriptions for broadcast")
		return Result{}
	}

	message, err := d.encode(title, body, data)
	if err != nil {
		slog.Error("failed to encode push payload", "error", err)
		return Result{Total: len(rows), Failures: []Failure{{Reason: err.Error()}}}
	}

	outcomes := make([]outcome, len(rows))
	var g errgroup.Group
	g.SetLimit(d.config.BroadcastConcurrency)
	for i, row := range rows {
		g.Go(func() error {
			outcomes[i] = d.deliver(ctx, scopeBroadcast, row.UserID, row.Subscription, message)
			return nil
		})
	}
	_ = g.Wait()

	result := collect(outcomes)
	recordBroadcast(result.Delivered, result.Total)
	slog.Info("push broadcast sent",
		"delivered", result.Delivered,
		"total", result.Total,
		"pruned", result.Pruned,
	)
	return result
}

func (d *Dispatcher) encode(title, body string, data map[string]any) ([]byte, error) {
	return json.Marshal(NewPayload(d.config.Defaults, title, body, data, d.now()))
}

type outcome struct {
	failure *Failure
	pruned  bool
}

// deliver sends to one subscription under the per-send timeout and prunes the
// subscription when the push service reports it gone.
func (d *Dispatcher) deliver(ctx context.Context, scope, userID string, sub domain.PushSubscription, message []byte) outcome {
	start := time.Now()

	sendCtx, cancel := context.WithTimeout(ctx, d.config.SendTimeout)
	err := d.sender.Send(sendCtx, sub, message)
	cancel()
	duration := time.Since(start)

	if err == nil {
		recordDelivery(scope, resultSuccess, duration)
		slog.Debug("push delivered", "user_id", userID, "duration", duration)
		return outcome{}
	}

	failure := &Failure{UserID: userID, Endpoint: sub.Endpoint, Reason: err.Error()}

	if !errors.Is(err, ErrSubscriptionGone) {
		recordDelivery(scope, resultFailed, duration)
		slog.Warn("push delivery failed",
			"user_id", userID,
			"endpoint", maskEndpoint(sub.Endpoint),
			"error", err,
		)
		return outcome{failure: failure}
	}

	failure.Gone = true
	recordDelivery(scope, resultGone, duration)
	slog.Info("removing gone push subscription",
		"user_id", userID,
		"endpoint", maskEndpoint(sub.Endpoint),
	)

	// Pruning must survive cancellation of the caller's context.
	pruneCtx, pruneCancel := context.WithTimeout(context.WithoutCancel(ctx), d.config.SendTimeout)
	defer pruneCancel()
	if err := d.repo.DeactivateSubscription(pruneCtx, userID, sub.Endpoint); err != nil {
		slog.Error("failed to deactivate gone subscription", "user_id", userID, "error", err)
		return outcome{failure: failure}
	}
	recordPruned()
	return outcome{failure: failure, pruned: true}
}

func collect(outcomes []outcome) Result {
	result := Result{Total: len(outcomes)}
	for _, o := range outcomes {
		if o.pruned {
			result.Pruned++
		}
		if o.failure != nil {
			result.Failures = append(result.Failures, *o.failure)
			continue
		}
		result.Delivered++
	}
	return result
}

// maskEndpoint hides most of a push endpoint for logging.
func maskEndpoint(endpoint string) string {
	if len(endpoint) > 40 {
		return endpoint[:30] + "..." + endpoint[len(endpoint)-6:]
	}
	return endpoint
}
