package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/jimdaga/capacity-planner/internal/adjustment"
	"github.com/jimdaga/capacity-planner/internal/api"
	"github.com/jimdaga/capacity-planner/internal/auth"
	"github.com/jimdaga/capacity-planner/internal/config"
	"github.com/jimdaga/capacity-planner/internal/database"
	"github.com/jimdaga/capacity-planner/internal/health"
	"github.com/jimdaga/capacity-planner/internal/models"
	"github.com/jimdaga/capacity-planner/internal/momentum"
	"github.com/jimdaga/capacity-planner/internal/progress"
	"github.com/jimdaga/capacity-planner/internal/proposals"
	"github.com/jimdaga/capacity-planner/internal/repository"
	"github.com/jimdaga/capacity-planner/internal/reschedule"
	"github.com/jimdaga/capacity-planner/internal/streams"
	"github.com/jimdaga/capacity-planner/internal/trackersync"
	"github.com/jimdaga/capacity-planner/internal/validation"
	"github.com/jimdaga/capacity-planner/internal/webhook"
	"github.com/jimdaga/capacity-planner/internal/worker"
)

// app holds the wired components shared by both run modes.
type app struct {
	cfg        *config.Config
	db         *gorm.DB
	store      *repository.Store
	validator  *validation.Validator
	momentum   *momentum.Tracker
	progress   *progress.Tracker
	adjuster   *adjustment.Adjuster
	engine     *reschedule.Engine
	reconciler *trackersync.Reconciler
	proposals  *proposals.RedisStore
	publisher  *streams.Publisher
}

func main() {
	mode := "server"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := worker.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat, mode)
	slog.SetDefault(logger)

	a, err := newApp(cfg, logger)
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.close()

	switch mode {
	case "server":
		err = a.runServer()
	case "worker":
		err = a.runWorker()
	default:
		err = fmt.Errorf("unknown mode %q (want server or worker)", mode)
	}
	if err != nil {
		slog.Error("Exiting", "mode", mode, "error", err)
		os.Exit(1)
	}
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.EncryptionKey != "" {
		if err := models.InitEncryption(cfg.EncryptionKey); err != nil {
			return nil, fmt.Errorf("failed to initialize encryption: %w", err)
		}
	} else {
		slog.Warn("ENCRYPTION_KEY not set. Tracker access tokens will be stored unsealed.")
	}

	if cfg.Env == "development" {
		if err := database.SeedDevData(db, time.Now()); err != nil {
			return nil, err
		}
	}

	validator, err := validation.New()
	if err != nil {
		return nil, err
	}

	policy := cfg.Policy
	store := repository.NewStore(db)
	mom := momentum.NewTracker(store, store, policy.Momentum.WindowDays, policy.Momentum.LogSize)
	prog := progress.NewTracker(store, mom, policy.ProgressThresholds(), policy.Momentum.WindowDays)
	adj := adjustment.NewAdjuster(store, policy.AdjustmentSettings())

	if cfg.N8NStubMode {
		slog.Info("Webhook client running in stub mode")
	}
	proposer := webhook.NewClient(cfg.N8NWebhookURL, cfg.N8NWebhookSecret, cfg.N8NStubMode, validator)
	engine := reschedule.NewEngine(store, proposer, adj, policy.ReschedulePolicy(), logger)

	publisher, err := streams.NewPublisher(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	pending, err := proposals.NewRedisStore(cfg.RedisURL, proposals.DefaultTTL)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:        cfg,
		db:         db,
		store:      store,
		validator:  validator,
		momentum:   mom,
		progress:   prog,
		adjuster:   adj,
		engine:     engine,
		reconciler: trackersync.NewReconciler(store, prog, logger),
		proposals:  pending,
		publisher:  publisher,
	}, nil
}

// openDatabase connects to Postgres and runs migrations, or falls back to a
// local SQLite database when DATABASE_URL is unset outside production.
func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	if cfg.DatabaseURL == "" {
		if cfg.Env == "production" {
			return nil, errors.New("DATABASE_URL is required in production")
		}
		slog.Warn("DATABASE_URL not set, using SQLite", "path", "capacity-planner.db")
		return database.OpenSQLite("file:capacity-planner.db?_foreign_keys=on")
	}

	db, err := database.Init(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

func (a *app) close() {
	a.publisher.Close()
	a.proposals.Close()
	if err := database.Close(a.db); err != nil {
		slog.Error("Failed to close database", "error", err)
	}
}

func (a *app) workerHandlers() (*worker.Handlers, error) {
	cache, err := worker.NewRedisStateCache(a.cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	return &worker.Handlers{
		Store:     a.store,
		Engine:    a.engine,
		Momentum:  a.momentum,
		Adjuster:  a.adjuster,
		Proposals: a.proposals,
		Publisher: a.publisher,
		Enqueuer:  worker.Client(),
		Cache:     cache,
	}, nil
}

// startBackground starts the worker, scheduler and tracker consumer and
// returns a function stopping all of them.
func (a *app) startBackground() (func(), error) {
	var stops []func()
	stopAll := func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}

	h, err := a.workerHandlers()
	if err != nil {
		return nil, err
	}
	stopWorker, err := worker.Start(a.cfg, h)
	if err != nil {
		return nil, err
	}
	stops = append(stops, stopWorker)

	stopScheduler, err := worker.StartScheduler(a.cfg)
	if err != nil {
		stopAll()
		return nil, err
	}
	stops = append(stops, stopScheduler)

	stopConsumer, err := streams.StartCompletionConsumer(a.cfg.RedisURL, a.cfg.ConsumerName, a.reconciler)
	if err != nil {
		stopAll()
		return nil, err
	}
	stops = append(stops, stopConsumer)

	return stopAll, nil
}

func (a *app) runServer() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := worker.InitClient(a.cfg.RedisURL); err != nil {
		return fmt.Errorf("failed to initialize task client: %w", err)
	}
	defer worker.CloseClient()

	if a.cfg.EmbeddedWorker {
		stopBackground, err := a.startBackground()
		if err != nil {
			return err
		}
		defer stopBackground()
	}

	auth.InitProviders(a.cfg)

	if a.cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(a.cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 30,
		HttpOnly: true,
		Secure:   a.cfg.Env == "production",
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions("planner_session", store))

	r.GET("/health", gin.WrapF(health.NewHandler(health.DefaultTimeout,
		health.Check{Name: "database", Ping: func(ctx context.Context) error { return database.Ping(ctx, a.db) }},
		health.Check{Name: "redis", Ping: a.publisher.Ping},
	)))

	r.GET("/auth/login", auth.HandleLogin)
	r.GET("/auth/google/callback", auth.HandleCallback(a.store))
	r.POST("/auth/logout", auth.HandleLogout)
	if a.cfg.Env != "production" {
		r.GET("/auth/dev", auth.HandleDevLogin(a.store, database.DevUserEmail))
	}

	h := api.NewHandler(api.Deps{
		Store:      a.store,
		Validator:  a.validator,
		Detector:   a.cfg.Policy.Detector(),
		Progress:   a.progress,
		Momentum:   a.momentum,
		Engine:     a.engine,
		Adjuster:   a.adjuster,
		Reconciler: a.reconciler,
		Proposals:  a.proposals,
		Publisher:  a.publisher,
		CheckPlan:  worker.EnqueueCheckPlan,
		Logger:     slog.Default(),
	})
	h.Register(r.Group("/api", auth.RequireAuth()))

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "port", a.cfg.Port, "env", a.cfg.Env, "embedded_worker", a.cfg.EmbeddedWorker)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (a *app) runWorker() error {
	if err := worker.InitClient(a.cfg.RedisURL); err != nil {
		return fmt.Errorf("failed to initialize task client: %w", err)
	}
	defer worker.CloseClient()

	stopScheduler, err := worker.StartScheduler(a.cfg)
	if err != nil {
		return err
	}
	defer stopScheduler()

	stopConsumer, err := streams.StartCompletionConsumer(a.cfg.RedisURL, a.cfg.ConsumerName, a.reconciler)
	if err != nil {
		return err
	}
	defer stopConsumer()

	h, err := a.workerHandlers()
	if err != nil {
		return err
	}
	// Run blocks until SIGINT/SIGTERM.
	return worker.Run(a.cfg, h)
}
