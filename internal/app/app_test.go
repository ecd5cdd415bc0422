package app

import (
	"context"
	"log/slog"
	"testing"

	"github.com/bissquit/pushgarden/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestInitLogger(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := initLogger(config.LogConfig{Level: tt.level, Format: "json"})
			ctx := context.Background()
			assert.True(t, logger.Enabled(ctx, tt.want))
			if tt.want > slog.LevelDebug {
				assert.False(t, logger.Enabled(ctx, tt.want-1))
			}
		})
	}
}

func TestPushSender_DisabledWithoutKeys(t *testing.T) {
	cfg := config.Default()
	a := &App{config: &cfg}

	sender, err := a.pushSender()
	assert.NoError(t, err)
	assert.Nil(t, sender)
}

func TestPushSender_InvalidUrgency(t *testing.T) {
	cfg := config.Default()
	cfg.Push.VAPIDPublicKey = "pub"
	cfg.Push.VAPIDPrivateKey = "priv"
	cfg.Push.Urgency = "asap"
	a := &App{config: &cfg}

	_, err := a.pushSender()
	assert.ErrorContains(t, err, "create webpush sender")
}

func TestSubscriptionRepository_CacheDisabled(t *testing.T) {
	cfg := config.Default()
	a := &App{config: &cfg}

	repo := a.subscriptionRepository(context.Background(), nil)
	assert.Nil(t, repo)
	assert.Nil(t, a.cache)
}
