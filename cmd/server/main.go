package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	docs "github.com/horizonpay/pricing-service/docs"
	appconversion "github.com/horizonpay/pricing-service/internal/application/service/conversion"
	appmarketdata "github.com/horizonpay/pricing-service/internal/application/service/marketdata"
	apppricing "github.com/horizonpay/pricing-service/internal/application/service/pricing"
	"github.com/horizonpay/pricing-service/internal/config"
	"github.com/horizonpay/pricing-service/internal/domain/interfaces"
	"github.com/horizonpay/pricing-service/internal/infrastructure/archive"
	"github.com/horizonpay/pricing-service/internal/infrastructure/broker"
	"github.com/horizonpay/pricing-service/internal/infrastructure/cache"
	"github.com/horizonpay/pricing-service/internal/infrastructure/gateway"
	"github.com/horizonpay/pricing-service/internal/infrastructure/sessionstore"
	"github.com/horizonpay/pricing-service/internal/infrastructure/upstream"
	infrahttp "github.com/horizonpay/pricing-service/internal/interfaces/http"
	"github.com/horizonpay/pricing-service/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	docs.SwaggerInfo.BasePath = "/api"
	docs.SwaggerInfo.Host = cfg.HTTP.Addr()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	var txnArchive interfaces.TransactionArchive
	if cfg.Postgres.DSN != "" {
		repo, err := archive.NewRepository(ctx, cfg.Postgres.DSN)
		if err != nil {
			logger.Fatalf("failed to init transaction archive: %v", err)
		}
		defer repo.Close()
		txnArchive = repo
	} else {
		logger.Warn("DATABASE_DSN not set, transaction archive disabled")
	}

	var publisher interfaces.EventPublisher
	if cfg.Broker.URL != "" {
		pub, err := broker.NewPublisher(cfg.Broker, logger)
		if err != nil {
			logger.Fatalf("failed to init event publisher: %v", err)
		}
		defer pub.Close()
		publisher = pub
	} else {
		logger.Warn("RABBITMQ_URL not set, event publishing disabled")
	}

	cipher, err := sessionstore.NewCipher(cfg.Transaction.EncryptionKey)
	if err != nil {
		logger.Fatalf("failed to init session cipher: %v", err)
	}

	sink := metrics.NewSink()
	client := upstream.NewClient(cfg.Upstream, sink, logger)

	marketdataService := appmarketdata.NewService(
		upstream.NewSpotFetcher(client, cfg.Upstream.SpotURL),
		upstream.NewReferenceFetcher(client, cfg.Upstream.ReferenceURL),
		upstream.NewOrderBookFetcher(client, cfg.Upstream, logger),
		cache.NewRedisCache(redisClient),
		publisher,
		cfg,
		sink,
		logger,
	)
	pricingService := apppricing.NewService(cfg.Pricing, nil)
	conversionService := appconversion.NewService(
		marketdataService,
		pricingService,
		sessionstore.NewRedisStore(redisClient, cipher),
		gateway.NewPaystack(cfg.Gateway, logger),
		txnArchive,
		publisher,
		cfg.Transaction,
		sink,
		logger,
	)

	handler := infrahttp.NewHandler(
		marketdataService,
		pricingService,
		conversionService,
		txnArchive,
		sink,
		cfg.Cache.TTL,
		cfg.Admin.Secret,
		func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	)

	server := &http.Server{
		Addr:    cfg.HTTP.Addr(),
		Handler: handler,
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Cache.WarmInterval > 0 {
		g.Go(func() error {
			return marketdataService.RunWarmer(gctx, cfg.Cache.WarmInterval)
		})
	}

	go func() {
		logger.Infof("HTTP server listening on %s", cfg.HTTP.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown error: %v", err)
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("background worker error: %v", err)
	}
	logger.Info("server stopped")
}
