package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/moltasthornblom/beam/cache"
	"github.com/moltasthornblom/beam/config"
	"github.com/moltasthornblom/beam/core/auth"
	"github.com/moltasthornblom/beam/core/queue"
	"github.com/moltasthornblom/beam/core/transcode"
	"github.com/moltasthornblom/beam/db"
	"github.com/moltasthornblom/beam/logger"
	"github.com/moltasthornblom/beam/repository"
	"github.com/moltasthornblom/beam/storage"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 15 * time.Second

// App is a fully wired server.
type App struct {
	Config   *config.Config
	Handler  http.Handler
	Pool     *queue.WorkerPool
	Videos   *transcode.Service
	Accounts *auth.Service

	closers []func() error
}

// Repositories opens the metadata store selected by STORAGE_DRIVER. The
// returned closer releases it.
func Repositories(ctx context.Context, cfg *config.Config) (repository.AssetRepository, repository.UserRepository, func() error, error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		logger.Warn("Using in-memory storage; data is lost on restart")
		return repository.NewMemoryAssetRepository(), repository.NewMemoryUserRepository(), func() error { return nil }, nil
	case config.StorageMySQL:
		gdb, err := db.ConnectGormDB(cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := db.AutoMigrate(gdb.WithContext(ctx)); err != nil {
			db.CloseGormDB(gdb)
			return nil, nil, nil, err
		}
		return repository.NewGormAssetRepository(gdb), repository.NewGormUserRepository(gdb), func() error { return db.CloseGormDB(gdb) }, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// Build connects every backing service and assembles the router.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			app.close()
		}
	}()

	for _, dir := range []string{cfg.UploadDir, cfg.HLSDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	assets, users, closeStore, err := Repositories(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, closeStore)

	rdb, err := db.ConnectRedis(ctx, cfg)
	if err != nil {
		return nil, err
	}
	var (
		events  cache.EventBus = cache.NewLocalEvents()
		limiter                = newRateLimiter(cfg.RateLimit, cfg.RateWindow, nil)
	)
	if rdb != nil {
		app.closers = append(app.closers, rdb.Close)
		events = cache.NewRedisEvents(rdb)
		limiter = newRateLimiter(cfg.RateLimit, cfg.RateWindow, cache.NewRedisWindowStore(rdb, ""))
		logger.Info("Redis connected", logger.String("host", cfg.RedisHost))
	}

	pipeline := &transcode.Pipeline{
		Assets:      assets,
		Encoder:     transcode.NewFFmpegEncoder(cfg.FFmpegPath),
		Prober:      transcode.NewFFprobe(cfg.FFprobePath),
		Events:      events,
		Streams:     cache.NewStreamListCache(rdb, 0),
		SegmentTime: cfg.HLSSegmentTime,
		JobTimeout:  cfg.EncodeTimeout,
	}

	var objects objectSource
	if cfg.MinioEnabled {
		mirror, err := storage.NewMinioMirror(ctx, cfg)
		if err != nil {
			return nil, err
		}
		pipeline.Mirror = mirror
		objects = mirror
	}

	app.Pool = queue.NewWorkerPool(cfg.WorkerCount, cfg.QueueSize)
	app.Videos = transcode.NewService(pipeline, app.Pool, cfg.BaseURL, cfg.HLSDir)
	app.Accounts = auth.NewService(users, auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL))

	if _, err := app.Accounts.Seed(ctx, cfg.DefaultUsername, cfg.DefaultPassword); err != nil {
		logger.Warn("Default user not seeded", logger.ErrorField(err))
	}

	handler := NewAPIHandler(cfg, app.Videos, app.Accounts, events)
	app.Handler = NewRouter(handler, limiter, NewHLSHandler(cfg.HLSDir, objects))
	ok = true
	return app, nil
}

// NewRouter registers every route.
func NewRouter(h *APIHandler, limiter *rateLimiter, hls http.Handler) *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)
	router.Use(loggingMiddleware)

	authRoutes := router.PathPrefix("/auth").Subrouter()
	authRoutes.Use(limiter.Middleware)
	authRoutes.HandleFunc("/login", h.LoginHandler).Methods(http.MethodPost)
	authRoutes.HandleFunc("/register", h.withScope(auth.ScopeAdmin, h.RegisterHandler)).Methods(http.MethodPost)
	authRoutes.HandleFunc("/change-password", h.AuthMiddleware(h.ChangePasswordHandler)).Methods(http.MethodPost)

	videoRoutes := router.PathPrefix("/videos").Subrouter()
	videoRoutes.Use(limiter.Middleware)
	videoRoutes.HandleFunc("/upload", h.withScope(auth.ScopeUploadVideo, h.UploadVideoHandler)).Methods(http.MethodPost)
	videoRoutes.HandleFunc("/{id}", h.withScope(auth.ScopeDeleteVideo, h.DeleteVideoHandler)).Methods(http.MethodDelete)
	videoRoutes.HandleFunc("/{id}/events", h.withScope(auth.ScopeListVideos, h.AssetEventsHandler)).Methods(http.MethodGet)

	streamRoutes := router.PathPrefix("/stream").Subrouter()
	streamRoutes.Use(limiter.Middleware)
	streamRoutes.HandleFunc("/streams", h.withScope(auth.ScopeListVideos, h.ListStreamsHandler)).Methods(http.MethodGet)

	router.PathPrefix("/hls/").Handler(hls).Methods(http.MethodGet, http.MethodHead)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", h.HealthHandler).Methods(http.MethodGet)
	// Preflight requests only need the CORS headers.
	router.Methods(http.MethodOptions).HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	return router
}

// Run serves until ctx is cancelled, then drains requests and background
// transcodes.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + a.Config.Port,
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server is running", logger.String("addr", srv.Addr), logger.String("baseUrl", a.Config.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := a.Pool.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("worker pool shutdown: %w", err))
	}
	a.close()
	return errors.Join(errs...)
}

func (a *App) close() {
	if a.Pool != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		_ = a.Pool.Shutdown(ctx)
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("Close failed", logger.ErrorField(err))
		}
	}
	a.closers = nil
}
