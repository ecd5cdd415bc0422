package push

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bissquit/pushgarden/internal/domain"
	"github.com/bissquit/pushgarden/internal/pkg/httputil"
	"github.com/bissquit/pushgarden/internal/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const openAPISpecPath = "../../api/openapi/openapi.yaml"

// stubTokens accepts tokens of the form "<role>:<user id>".
type stubTokens struct{}

func (stubTokens) ValidateToken(_ context.Context, token string) (string, domain.Role, error) {
	role, userID, ok := strings.Cut(token, ":")
	if !ok {
		return "", "", errors.New("bad token")
	}
	return userID, domain.Role(role), nil
}

func newTestServer(t *testing.T, svc *Service) *testutil.Client {
	t.Helper()

	h := NewHandler(svc)
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		h.RegisterPublicRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(stubTokens{}))
			h.RegisterRoutes(r)
			r.Group(func(r chi.Router) {
				r.Use(httputil.RequireRole(domain.RoleAdmin))
				h.RegisterAdminRoutes(r)
			})
		})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return testutil.NewClientWithValidation(t, srv.URL, openAPISpecPath)
}

func subscribeBody(endpoint string) map[string]any {
	return map[string]any{
		"subscription": map[string]any{
			"endpoint": endpoint,
			"keys":     map[string]string{"p256dh": "BNc...", "auth": "tBH..."},
		},
	}
}

func TestHandler_VAPIDPublicKey(t *testing.T) {
	repo := newMemoryRepository()
	client := newTestServer(t, newTestService(repo, newFakeSender()))

	resp, err := client.GET("/api/v1/push/vapid-public-key")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	testutil.DecodeJSON(t, resp, &body)
	assert.Equal(t, "public-key", body["publicKey"])
}

func TestHandler_VAPIDPublicKey_Disabled(t *testing.T) {
	repo := newMemoryRepository()
	client := newTestServer(t, NewService(repo, NewDispatcher(DispatcherConfig{}, repo, nil)))

	resp, err := client.GET("/api/v1/push/vapid-public-key")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, testutil.ReadBody(t, resp), "push notifications disabled")
}

func TestHandler_SubscribeFlow(t *testing.T) {
	repo := newMemoryRepository()
	client := newTestServer(t, newTestService(repo, newFakeSender())).WithToken("user:u1")

	resp, err := client.POST("/api/v1/push/subscribe", subscribeBody("https://push.example.com/1"))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		Data struct {
			ID      string `json:"id"`
			Success bool   `json:"success"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &created)
	assert.NotEmpty(t, created.Data.ID)
	assert.True(t, created.Data.Success)

	resp, err = client.GET("/api/v1/push/status")
	require.NoError(t, err)
	var status struct {
		Data Status `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &status)
	assert.Equal(t, Status{Enabled: true, Subscribed: true}, status.Data)

	resp, err = client.POST("/api/v1/push/unsubscribe", map[string]string{"endpoint": "https://push.example.com/1"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	assert.Zero(t, repo.activeCount())
}

func TestHandler_Subscribe_Validation(t *testing.T) {
	client := newTestServer(t, newTestService(newMemoryRepository(), newFakeSender())).WithToken("user:u1")

	tests := []struct {
		name string
		body any
	}{
		{"missing endpoint", subscribeBody("")},
		{"missing keys", map[string]any{"subscription": map[string]any{"endpoint": "https://push.example.com/1"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.POST("/api/v1/push/subscribe", tt.body)
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, testutil.ReadBody(t, resp), "validation error")
		})
	}
}

func TestHandler_RequiresAuth(t *testing.T) {
	client := newTestServer(t, newTestService(newMemoryRepository(), newFakeSender()))

	resp, err := client.POST("/api/v1/push/subscribe", subscribeBody("https://push.example.com/1"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestHandler_SendTest(t *testing.T) {
	repo := newMemoryRepository()
	repo.addActive("u1", "https://push.example.com/ok")
	repo.addActive("u2", "https://push.example.com/broken")
	sender := newFakeSender()
	sender.errs["https://push.example.com/broken"] = errTransient
	client := newTestServer(t, newTestService(repo, sender))

	resp, err := client.WithToken("user:u1").POST("/api/v1/push/test", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ok struct {
		Data Result `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &ok)
	assert.Equal(t, 1, ok.Data.Delivered)

	resp, err = client.WithToken("user:u2").POST("/api/v1/push/test", map[string]string{"title": "Ping"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, testutil.ReadBody(t, resp), errTransient.Error())

	resp, err = client.WithToken("user:u3").POST("/api/v1/push/test", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestHandler_Broadcast(t *testing.T) {
	repo := newMemoryRepository()
	repo.addActive("u1", "https://push.example.com/1")
	repo.addActive("u2", "https://push.example.com/2")
	client := newTestServer(t, newTestService(repo, newFakeSender()))

	resp, err := client.WithToken("user:u1").POST("/api/v1/push/broadcast", map[string]string{"title": "News"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = client.WithToken("admin:root").POST("/api/v1/push/broadcast", map[string]any{
		"title": "News",
		"body":  "Release 2.0 is out",
		"data":  map[string]string{"url": "/changelog"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data Result `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	assert.Equal(t, 2, result.Data.Total)
	assert.Equal(t, 2, result.Data.Delivered)
}

func TestHandler_Broadcast_InvalidJSON(t *testing.T) {
	client := newTestServer(t, newTestService(newMemoryRepository(), newFakeSender())).WithToken("admin:root")

	req, err := http.NewRequest(http.MethodPost, client.BaseURL+"/api/v1/push/broadcast", strings.NewReader("{"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer admin:root")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}
