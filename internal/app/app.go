package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/YannKr/certstamp"
	"github.com/YannKr/certstamp/internal/assets"
	"github.com/YannKr/certstamp/internal/auth"
	"github.com/YannKr/certstamp/internal/certs"
	"github.com/YannKr/certstamp/internal/cleanup"
	"github.com/YannKr/certstamp/internal/codegen"
	"github.com/YannKr/certstamp/internal/config"
	"github.com/YannKr/certstamp/internal/db"
	"github.com/YannKr/certstamp/internal/diskstat"
	"github.com/YannKr/certstamp/internal/handler"
	"github.com/YannKr/certstamp/internal/model"
	"github.com/YannKr/certstamp/internal/render"
	"github.com/YannKr/certstamp/internal/sse"
	"github.com/YannKr/certstamp/internal/templates"
	"github.com/YannKr/certstamp/internal/verify"
	"github.com/YannKr/certstamp/internal/webhook"
	"github.com/YannKr/certstamp/internal/worker"
)

func Run(ctx context.Context, cfg *config.Config) error {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return err
	}

	// Open database
	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer database.Close()

	// Run migrations
	if err := db.Migrate(database, certstamp.MigrationFS); err != nil {
		return err
	}
	slog.Info("database ready")

	if err := bootstrapAPIKey(database, cfg.BootstrapAPIKey); err != nil {
		return err
	}

	store, err := assets.New(cfg.DataDir)
	if err != nil {
		return err
	}

	var rasterizer render.Rasterizer
	if cfg.MagickPath != "" {
		rasterizer = &render.MagickRasterizer{Path: cfg.MagickPath, Density: cfg.PDFDensity}
	}
	engine, err := render.NewEngine(render.NewFonts(cfg.FontDirs), cfg.VerifyBaseURL, rasterizer, cfg.BackgroundCacheSize)
	if err != nil {
		return err
	}

	// Init webhook notifier
	notifier := &webhook.Notifier{URL: cfg.WebhookURL, Secret: cfg.WebhookSecret}
	if notifier.Enabled() {
		slog.Info("webhooks enabled", "url", cfg.WebhookURL)
	}
	defer func() {
		waitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		notifier.Shutdown(waitCtx)
	}()

	// Start disk stats cache
	diskCache := diskstat.New(cfg.DataDir, 60*time.Second, cfg.DiskBlockPct)
	diskCache.Start()
	defer diskCache.Stop()

	certService := &certs.Service{
		DB:         database,
		Assets:     store,
		Engine:     engine,
		Codes:      codegen.New(db.CodeReserver{DB: database}),
		Webhook:    notifier,
		Disk:       diskCache,
		DateLayout: cfg.DateLayout,
	}
	templateService := &templates.Service{
		DB:         database,
		Assets:     store,
		Engine:     engine,
		Webhook:    notifier,
		DateLayout: cfg.DateLayout,
	}
	verifyService := &verify.Service{DB: database, Webhook: notifier}

	// Create SSE hub for batch progress
	sseHub := sse.New()

	// Start batch pool
	pool := worker.NewPool(database, certService, notifier, sseHub, worker.Options{
		Workers:     cfg.BatchWorkers,
		QueueSize:   cfg.BatchQueueSize,
		Concurrency: cfg.BatchConcurrency,
		RowTimeout:  cfg.RowTimeout,
	})
	pool.Start()
	defer pool.Stop()

	// Start cleanup scheduler
	cleaner := &cleanup.Cleaner{
		Batches:   pool,
		Assets:    store,
		Retention: cfg.BatchRetention,
		Interval:  cfg.CleanupInterval,
	}
	cleaner.Start(ctx)
	defer cleaner.Stop()

	verifyRL := handler.NewRateLimiter(rate.Limit(cfg.VerifyRatePerSec), cfg.VerifyBurst)
	defer verifyRL.Stop()
	apiRL := handler.NewRateLimiter(rate.Limit(cfg.APIRatePerSec), cfg.APIBurst)
	defer apiRL.Stop()

	// Build handler and routes
	h := handler.New(database, cfg, templateService, certService, verifyService, pool, sseHub)
	h.DiskCache = diskCache
	router := h.Routes(verifyRL, apiRL)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("server starting", "addr", cfg.ListenAddr, "base_url", cfg.BaseURL, "verify_url", cfg.VerifyBaseURL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// bootstrapAPIKey creates the first admin key on an empty database. A
// configured key is used as given; otherwise one is generated and logged
// once.
func bootstrapAPIKey(database *sql.DB, configured string) error {
	n, err := db.CountAPIKeys(database)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	key, prefix := configured, ""
	if key != "" {
		var ok bool
		if prefix, ok = auth.LookupPrefix(key); !ok {
			return fmt.Errorf("BOOTSTRAP_API_KEY must start with %q and be at least %d characters", auth.KeyPrefix, len(auth.KeyPrefix)+8)
		}
	} else {
		if key, prefix, err = auth.GenerateKey(); err != nil {
			return err
		}
	}

	hash, err := auth.HashPassword(key)
	if err != nil {
		return err
	}
	if err := db.CreateAPIKey(database, &model.APIKey{
		ID:        uuid.New().String(),
		Name:      "bootstrap",
		Role:      auth.RoleAdmin,
		KeyPrefix: prefix,
		KeyHash:   hash,
	}); err != nil {
		return err
	}

	if configured == "" {
		slog.Warn("created bootstrap admin API key; store it now, it is not shown again", "key", key)
	} else {
		slog.Info("created bootstrap admin API key from BOOTSTRAP_API_KEY")
	}
	return nil
}
