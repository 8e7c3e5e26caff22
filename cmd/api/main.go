package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/example/localmart/internal/api"
	"github.com/example/localmart/internal/auth"
	"github.com/example/localmart/internal/command"
	"github.com/example/localmart/internal/config"
	"github.com/example/localmart/internal/domain/cart"
	"github.com/example/localmart/internal/domain/order"
	"github.com/example/localmart/internal/domain/product"
	"github.com/example/localmart/internal/feed"
	"github.com/example/localmart/internal/infrastructure/cache"
	"github.com/example/localmart/internal/infrastructure/kafka"
	"github.com/example/localmart/internal/infrastructure/store"
	"github.com/example/localmart/internal/logger"
	"github.com/example/localmart/internal/projection"
	"github.com/example/localmart/internal/query"
	"github.com/example/localmart/internal/tracking"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format).Named("api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("api stopped", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	_ = log.Sync()
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	log.Info("starting",
		zap.String("storage", cfg.Storage),
		zap.Strings("kafka_brokers", cfg.Kafka.Brokers),
		zap.String("addr", cfg.HTTP.Addr),
	)

	orderCache, closeCache, err := openCache(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeCache()

	broker := feed.NewBroker(log)
	defer broker.Close()

	var readStore store.ReadStoreInterface = store.NewReadStore()
	var db *sql.DB
	if cfg.Storage != config.StorageMemory {
		db, err = store.ConnectPostgres(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := store.EnsureSchema(ctx, db); err != nil {
			return err
		}
		readStore = store.NewPostgresReadStore(db)
		log.Info("connected to postgres")
	}

	var eventStore store.EventStoreInterface
	projector := projection.NewProjector(readStore, log,
		projection.WithOrderCache(orderCache),
		projection.WithOrderSink(broker),
		// eventStore is set below, before anything is published
		projection.WithEventSource(projection.EventSourceFunc(
			func(ctx context.Context, aggregateID string, fromVersion int) ([]store.Event, error) {
				return eventStore.GetEventsFromVersion(ctx, aggregateID, fromVersion)
			},
		)),
	)

	var publisher store.Publisher = projection.NewInline(projector)
	if cfg.Storage == config.StoragePostgres && len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		publisher = producer
	}

	switch cfg.Storage {
	case config.StorageMemory:
		eventStore = store.NewEventStore(publisher, log)
	case config.StoragePostgres:
		eventStore = store.NewPostgresEventStore(db, publisher, log)
	case config.StorageDynamo:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		// The stream lambdas project the same events; versions already
		// applied are skipped, so the inline projection only adds the feed.
		eventStore = store.NewDynamoEventStore(dynamodb.NewFromConfig(awsCfg),
			cfg.Dynamo.EventsTable, cfg.Dynamo.SnapshotsTable, publisher, log)
	}

	if cfg.Storage == config.StoragePostgres {
		events, err := eventStore.GetAllEvents(ctx)
		if err != nil {
			return fmt.Errorf("load events for replay: %w", err)
		}
		if err := projector.Replay(ctx, events); err != nil {
			return fmt.Errorf("replay: %w", err)
		}
	}

	if _, ok := publisher.(*kafka.Producer); ok {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, apiGroupID(cfg), log)
		defer consumer.Close()
		go func() {
			if err := consumer.Consume(ctx, projector.HandleEvent); err != nil && ctx.Err() == nil {
				log.Error("projection consumer stopped", zap.Error(err))
			}
		}()
	}

	pricing := order.Pricing{DeliveryFee: cfg.Pricing.DeliveryFee, TaxPercent: cfg.Pricing.TaxPercent}
	queryHandler := query.NewHandler(readStore, orderCache, log)
	cmdHandler := command.NewHandler(
		product.NewService(eventStore, log),
		cart.NewService(eventStore, log),
		order.NewService(eventStore, pricing, log),
		queryHandler,
		log,
	)
	trackingSvc := tracking.NewService(queryHandler, tracking.Settings{
		TickInterval: cfg.Tracking.TickInterval,
		ProgressStep: cfg.Tracking.ProgressStep,
		InitialETA:   cfg.Tracking.InitialETA,
		ETAStep:      cfg.Tracking.ETAStep,
	}, log)
	jwtService := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)

	handlers := api.NewHandlers(cmdHandler, queryHandler, trackingSvc, broker, log)
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewRouter(handlers, jwtService, log),
		ReadHeaderTimeout: 10 * time.Second,
		// streams end with the process context
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	broker.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openCache connects to Redis when an address is configured. Without Redis
// only memory storage gets a cache: there the local projector sees every
// write and can invalidate it.
func openCache(ctx context.Context, cfg *config.Config, log *zap.Logger) (cache.OrderCache, func(), error) {
	if cfg.Redis.Addr == "" {
		if cfg.Storage == config.StorageMemory {
			return cache.NewMemory(), func() {}, nil
		}
		return cache.Noop{}, func() {}, nil
	}
	client, err := cache.Connect(ctx, cfg.Redis.Addr)
	if err != nil {
		return nil, nil, err
	}
	log.Info("order cache enabled", zap.String("redis", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.TTL))
	return cache.NewRedisOrderCache(client, "localmart", cfg.Redis.TTL), func() { _ = client.Close() }, nil
}

// apiGroupID gives every API instance its own consumer group so each one
// sees every event and can feed its own subscribers.
func apiGroupID(cfg *config.Config) string {
	if cfg.Kafka.GroupID != "" {
		return cfg.Kafka.GroupID
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return "localmart-api-" + host
}
