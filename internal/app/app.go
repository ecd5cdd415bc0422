// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/pushgarden/internal/auth"
	"github.com/bissquit/pushgarden/internal/config"
	"github.com/bissquit/pushgarden/internal/domain"
	"github.com/bissquit/pushgarden/internal/pkg/ctxlog"
	"github.com/bissquit/pushgarden/internal/pkg/httputil"
	"github.com/bissquit/pushgarden/internal/pkg/metrics"
	"github.com/bissquit/pushgarden/internal/pkg/postgres"
	"github.com/bissquit/pushgarden/internal/push"
	pushcache "github.com/bissquit/pushgarden/internal/push/cache"
	pushpostgres "github.com/bissquit/pushgarden/internal/push/postgres"
	"github.com/bissquit/pushgarden/internal/push/webpush"
	"github.com/bissquit/pushgarden/internal/version"
	"github.com/bissquit/pushgarden/migrations"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	cache         *pushcache.RedisClient
	dispatcher    *push.Dispatcher
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if cfg.Database.MigrateOnStart {
		if err := postgres.Migrate(cfg.Database.URL, migrations.FS, "."); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: metricsCancel,
	}

	go metrics.CollectDBPoolMetrics(metricsCtx, db, 15*time.Second)

	router, err := app.setupRouter(connectCtx)
	if err != nil {
		app.closeResources()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"push_enabled", a.dispatcher.IsEnabled(),
	)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	// Shutdown both servers in parallel
	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (a *App) closeResources() error {
	a.metricsCancel()

	var err error
	if a.cache != nil {
		if cerr := a.cache.Close(); cerr != nil {
			err = fmt.Errorf("close redis: %w", cerr)
		}
	}
	a.db.Close()
	return err
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Dispatcher returns the push dispatcher for in-process producers.
func (a *App) Dispatcher() *push.Dispatcher {
	return a.dispatcher
}

func (a *App) setupRouter(ctx context.Context) (*chi.Mux, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>pushgarden API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        SwaggerUIBundle({
            url: "/api/openapi.yaml",
            dom_id: '#swagger-ui',
            presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
            layout: "BaseLayout"
        });
    </script>
</body>
</html>`))
	})

	store := pushpostgres.NewRepository(a.db)
	repo := a.subscriptionRepository(ctx, store)

	sender, err := a.pushSender()
	if err != nil {
		return nil, err
	}

	pushCfg := a.config.Push
	a.dispatcher = push.NewDispatcher(push.DispatcherConfig{
		Subscriber: pushCfg.VAPIDSubject,
		PublicKey:  pushCfg.VAPIDPublicKey,
		PrivateKey: pushCfg.VAPIDPrivateKey,
		Defaults: push.PayloadDefaults{
			Title: pushCfg.DefaultTitle,
			Body:  pushCfg.DefaultBody,
			Icon:  pushCfg.DefaultIcon,
			Badge: pushCfg.DefaultBadge,
			Tag:   pushCfg.DefaultTag,
			URL:   pushCfg.DefaultURL,
		},
		SendTimeout:          pushCfg.SendTimeout,
		BroadcastConcurrency: pushCfg.BroadcastConcurrency,
	}, repo, sender)

	pushService := push.NewService(repo, a.dispatcher)
	pushHandler := push.NewHandler(pushService)

	tokens := auth.NewValidator(auth.Config{
		SecretKey: a.config.JWT.SecretKey,
		Issuer:    a.config.JWT.Issuer,
		Leeway:    a.config.JWT.Leeway,
	}, store)

	r.Route("/api/v1", func(r chi.Router) {
		pushHandler.RegisterPublicRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(tokens))

			pushHandler.RegisterRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(httputil.RequireRole(domain.RoleAdmin))
				pushHandler.RegisterAdminRoutes(r)
			})
		})
	})

	return r, nil
}

// subscriptionRepository wraps store with the Redis cache when enabled.
// An unreachable Redis leaves the cache off rather than failing startup.
func (a *App) subscriptionRepository(ctx context.Context, store push.Repository) push.Repository {
	if !a.config.Redis.Enabled {
		return store
	}

	client, err := pushcache.NewRedisClient(ctx, pushcache.RedisConfig{
		Addr:     a.config.Redis.Addr,
		Password: a.config.Redis.Password,
		DB:       a.config.Redis.DB,
	})
	if err != nil {
		slog.Warn("subscription cache disabled", "addr", a.config.Redis.Addr, "error", err)
		return store
	}

	a.cache = client
	slog.Info("subscription cache enabled", "addr", a.config.Redis.Addr, "ttl", a.config.Redis.TTL)
	return pushcache.NewRepository(store, client, a.config.Redis.TTL)
}

// pushSender returns nil when VAPID keys are missing, which disables the
// dispatcher.
func (a *App) pushSender() (push.Sender, error) {
	pushCfg := a.config.Push
	if !pushCfg.Enabled() {
		return nil, nil
	}

	sender, err := webpush.NewSender(webpush.Config{
		Subscriber:   pushCfg.VAPIDSubject,
		PublicKey:    pushCfg.VAPIDPublicKey,
		PrivateKey:   pushCfg.VAPIDPrivateKey,
		TTL:          pushCfg.TTL,
		Urgency:      pushCfg.Urgency,
		Timeout:      pushCfg.SendTimeout,
		GoneStatuses: pushCfg.GoneStatuses,
		RateLimit:    pushCfg.RateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("create webpush sender: %w", err)
	}
	return sender, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
