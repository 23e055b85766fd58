package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bryanwahyu/medimaging-bridge/internal/application"
	analysissvc "github.com/bryanwahyu/medimaging-bridge/internal/application/analysis"
	"github.com/bryanwahyu/medimaging-bridge/internal/config"
	domain "github.com/bryanwahyu/medimaging-bridge/internal/domain/analysis"
	"github.com/bryanwahyu/medimaging-bridge/internal/infra/classifier"
	"github.com/bryanwahyu/medimaging-bridge/internal/infra/db/sqlite"
	"github.com/bryanwahyu/medimaging-bridge/internal/infra/httpserver"
	minioStore "github.com/bryanwahyu/medimaging-bridge/internal/infra/storage"
	"github.com/bryanwahyu/medimaging-bridge/internal/infra/tempfile"
	"github.com/bryanwahyu/medimaging-bridge/internal/infra/whatsapp"
	"github.com/bryanwahyu/medimaging-bridge/internal/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}

	ctx := context.Background()

	// connect SQLite
	db, err := sqlite.Connect(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("sqlite connect: %w", err)
	}
	defer db.Close()

	repo := sqlite.NewAnalysisRepository(db)
	errLog := sqlite.NewErrorLogRepository(db)

	// provider client for media + replies
	var clientOpts []whatsapp.ClientOption
	if cfg.WhatsApp.MediaBaseURL != "" {
		clientOpts = append(clientOpts, whatsapp.WithBaseURL(cfg.WhatsApp.MediaBaseURL))
	}
	wa := whatsapp.NewClient(cfg.WhatsApp.AccessToken, cfg.WhatsApp.APIVersion, clientOpts...)

	// temp files, optionally backed by a retention target
	tfOpts := []tempfile.Option{}
	if cfg.WhatsApp.RetentionDir != "" {
		tfOpts = append(tfOpts, tempfile.WithRetentionDir(cfg.WhatsApp.RetentionDir))
	}
	if cfg.Minio.Enabled {
		store, serr := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if serr != nil {
			return fmt.Errorf("minio init: %w", serr)
		}
		tfOpts = append(tfOpts, tempfile.WithPersistFunc(store.PersistFunc()))
	}
	tmp, err := tempfile.NewManager(filepath.Join(os.TempDir(), "medimaging-bridge"), tfOpts...)
	if err != nil {
		return fmt.Errorf("tempfile manager: %w", err)
	}

	cls := pickClassifier(cfg, logger)

	svc := &analysissvc.Service{
		Repo:        repo,
		Errors:      errLog,
		Media:       wa,
		Classifier:  cls,
		Notifier:    notifierFor(wa, cfg.WhatsApp.AccessToken),
		TempFiles:   tmp,
		Clock:       application.SystemClock{},
		Observe:     middleware.CountOutcome,
		RetainMedia: cfg.WhatsApp.RetainMedia,
		Logger:      logger,
	}

	queue := analysissvc.NewQueue(svc, cfg.Queue.Size, cfg.Queue.Workers, logger)

	var analyzeBucket *middleware.TokenBucket
	if cfg.RateLimit.Enabled {
		analyzeBucket = middleware.NewTokenBucket(cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate)
	}

	handler := httpserver.NewRouter(httpserver.Deps{
		Svc:            svc,
		Queue:          queue,
		DB:             db.DB,
		ErrLog:         errLog,
		AppSecret:      []byte(cfg.WhatsApp.AppSecret),
		VerifyToken:    cfg.WhatsApp.VerifyToken,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AnalyzeBucket:  analyzeBucket,
		Logger:         logger,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if serr := srv.ListenAndServe(); serr != nil && serr != http.ErrServerClosed {
			logger.Error("server error", "error", serr)
			os.Exit(1)
		}
	}()

	// graceful shutdown: stop intake first, then drain the queue
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("http shutdown", "error", serr)
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(),
		time.Duration(cfg.Queue.DrainTimeout)*time.Second)
	defer cancelDrain()
	if serr := queue.Shutdown(drainCtx); serr != nil {
		logger.Warn("queue drain", "error", serr)
	}
	return nil
}

// pickClassifier wires exactly one inference backend, preferring a
// dedicated model server, then a local command, then the vision API.
// Running with none is allowed; the transports answer 503.
func pickClassifier(cfg *config.Config, logger *slog.Logger) domain.Classifier {
	switch {
	case cfg.Model.Endpoint != "":
		logger.Info("classifier backend", "kind", "model_server", "endpoint", cfg.Model.Endpoint)
		return classifier.NewModelServer(cfg.Model.Endpoint)
	case len(cfg.Model.Command) > 0:
		logger.Info("classifier backend", "kind", "command", "argv0", cfg.Model.Command[0])
		return classifier.NewCommandRunner(cfg.Model.Command)
	case cfg.OpenAI.APIKey != "":
		logger.Info("classifier backend", "kind", "openai", "model", cfg.OpenAI.Model)
		return classifier.NewVisionClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.Classes)
	default:
		logger.Warn("no classifier backend configured, inference endpoints will answer 503")
		return nil
	}
}

// notifierFor disables outbound replies when no provider token exists,
// instead of letting every send fail at dispatch time.
func notifierFor(wa *whatsapp.Client, accessToken string) domain.Notifier {
	if accessToken == "" {
		return nil
	}
	return wa
}
