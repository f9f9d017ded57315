package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"audio-moderation/config"
	"audio-moderation/constant"
	"audio-moderation/handler"
	"audio-moderation/pkg/asr"
	"audio-moderation/pkg/events"
	"audio-moderation/pkg/label"
	"audio-moderation/pkg/media"
	"audio-moderation/pkg/principal"
	"audio-moderation/pkg/storage"
	"audio-moderation/repository"
	"audio-moderation/service"
)

func RunHttp(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Environment == constant.EnvironmentProduction.String()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	svc, err := buildService(ctx, cfg)
	if err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Msg("failed to build service")
	}

	if cfg.Retention.Enabled {
		go runRetentionLoop(ctx, cfg, svc)
	}

	r := gin.Default()
	addHealth(r)

	api := r.Group("/api", loggerMiddleware(ctx), principal.Middleware())
	handler.New(svc, cfg.Media.MaxUploadMB).Register(api)

	srv := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("start http server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
		}
	}()

	<-ctx.Done()
	zerolog.Ctx(ctx).Info().Msg("shutting down server")
	if err := srv.Shutdown(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
}

func buildService(ctx context.Context, cfg *config.Config) (service.Service, error) {
	repo, err := repository.NewRepo(cfg.DB)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewLocalStore(cfg.Media.Root)
	if err != nil {
		return nil, err
	}

	engine, err := asr.New(asr.Options{
		Engine:         cfg.ASR.Engine,
		PythonBin:      cfg.ASR.PythonBin,
		Model:          cfg.ASR.Model,
		Language:       cfg.ASR.Language,
		WordTimestamps: cfg.ASR.WordTimestamps,
	})
	if err != nil {
		return nil, err
	}

	classifier, err := label.New(cfg.Label.Backend, cfg.Label.LexiconPath, cfg.Label.RemoteURL)
	if err != nil {
		return nil, err
	}
	// warm the classifier once at startup; Load stays idempotent for
	// the executors that call it again
	if err := classifier.Load(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("classifier warm-up failed")
	}

	publisher := events.NewNoopPublisher()
	if cfg.Queue != nil {
		conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("NewRabbitMQConn")
		} else {
			publisher, err = events.NewPublisher(conn, cfg.Queue)
			if err != nil {
				return nil, err
			}
		}
	}

	return service.New(service.Dependencies{
		Repo:       repo,
		Store:      store,
		Normalizer: media.NewFFmpegNormalizer(),
		Engine:     engine,
		Classifier: classifier,
		Archiver:   storage.NewArchiver(cfg.Storage, cfg.ArchiveBucket),
		Events:     publisher,
	}), nil
}

// runRetentionLoop sweeps expired jobs on a fixed interval until the
// process shuts down.
func runRetentionLoop(ctx context.Context, cfg *config.Config, svc service.Service) {
	interval := time.Duration(cfg.Retention.IntervalMinutes) * time.Minute
	maxAge := time.Duration(cfg.Retention.MaxAgeHours) * time.Hour
	status := constant.JobStatus(cfg.Retention.Status)

	zerolog.Ctx(ctx).Info().Dur("interval", interval).Dur("max_age", maxAge).Msg("retention sweeper started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := svc.Sweep(ctx, maxAge, status, false); err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Msg("retention sweep failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// loggerMiddleware binds the process logger into each request context
// so handlers and the service layer can use zerolog.Ctx.
func loggerMiddleware(base context.Context) gin.HandlerFunc {
	logger := zerolog.Ctx(base)
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))
		c.Next()
	}
}

func addHealth(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
}

func setupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// Log to standard output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
