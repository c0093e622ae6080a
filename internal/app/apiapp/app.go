package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ivankudzin/payhooks/internal/config"
	"github.com/ivankudzin/payhooks/internal/domain/enums"
	s3infra "github.com/ivankudzin/payhooks/internal/infra/s3"
	pgrepo "github.com/ivankudzin/payhooks/internal/repo/postgres"
	redrepo "github.com/ivankudzin/payhooks/internal/repo/redis"
	archivesvc "github.com/ivankudzin/payhooks/internal/services/archive"
	gatewaysvc "github.com/ivankudzin/payhooks/internal/services/gateways"
	paymentsvc "github.com/ivankudzin/payhooks/internal/services/payments"
	"github.com/ivankudzin/payhooks/internal/services/webhookauth"
	"github.com/ivankudzin/payhooks/internal/transport/http/handlers"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log, cfg.HTTP.RequestTimeout)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.ServiceKey); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
	}
	if pool != nil && cfg.Postgres.AutoMigrate {
		if err := pgrepo.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	deliveryRepo := redrepo.NewDeliveryRepo(redisClient)

	paymentDeps := paymentsvc.Dependencies{
		Deliveries:       deliveryRepo,
		Logger:           log,
		DefaultBoostDays: cfg.Boost.DefaultDays,
		DedupeTTL:        cfg.Webhook.DedupeTTL,
		Retry: paymentsvc.RetryPolicy{
			Attempts:  cfg.Webhook.RetryAttempts,
			BaseDelay: cfg.Webhook.RetryBaseDelay,
			MaxDelay:  cfg.Webhook.RetryMaxDelay,
		},
	}
	var webhookEventRepo *pgrepo.WebhookEventRepo
	if pool != nil {
		paymentDeps.Boosts = pgrepo.NewBoostRepo(pool)
		paymentDeps.Donations = pgrepo.NewDonationRepo(pool)
		webhookEventRepo = pgrepo.NewWebhookEventRepo(pool)
	}
	paymentService := paymentsvc.NewService(paymentDeps)

	var archiveStore archivesvc.ObjectStore
	s3Cfg := s3infra.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		UseSSL:    cfg.S3.UseSSL,
	}
	if s3Cfg.Enabled() {
		if c, err := s3infra.NewClient(s3Cfg); err != nil {
			log.Warn("s3 init failed, payload archive disabled", zap.Error(err))
		} else {
			archiveStore = c
		}
	}
	archiveService := archivesvc.NewService(archiveStore, cfg.S3.Bucket)

	registry := gatewaysvc.NewRegistry(gatewaysvc.CamPay(), gatewaysvc.Fapshi())

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	RegisterRoutes(r, Dependencies{
		Gateways:       registry,
		Verifier:       webhookauth.NewVerifier(cfg),
		PaymentService: paymentService,
		WebhookEvents:  webhookEventRepo,
		Archive:        archiveService,
		ConfigCheck: handlers.ConfigCheck{
			HasURL: cfg.Postgres.HasURL(),
			HasKey: cfg.Postgres.HasServiceKey(),
			WebhookKeys: map[enums.Gateway]bool{
				enums.GatewayCamPay: cfg.Gateways.CamPay.HasWebhookKey(),
				enums.GatewayFapshi: cfg.Gateways.Fapshi.HasWebhookKey(),
			},
		},
		Logger: log,
		Config: cfg,
	})

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		httpRouter: r,
	}, nil
}

func (a *App) Run() error {
	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
