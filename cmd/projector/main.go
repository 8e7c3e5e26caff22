package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/localmart/internal/config"
	"github.com/example/localmart/internal/infrastructure/cache"
	"github.com/example/localmart/internal/infrastructure/kafka"
	"github.com/example/localmart/internal/infrastructure/store"
	"github.com/example/localmart/internal/logger"
	"github.com/example/localmart/internal/projection"
	"go.uber.org/zap"
)

const defaultGroupID = "localmart-projector"

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format).Named("projector-service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("projector stopped", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	_ = log.Sync()
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	groupID := cfg.Kafka.GroupID
	if groupID == "" {
		groupID = defaultGroupID
	}
	log.Info("starting",
		zap.Strings("kafka_brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("group_id", groupID),
	)

	db, err := store.ConnectPostgres(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := store.EnsureSchema(ctx, db); err != nil {
		return err
	}

	opts := []projection.Option{
		projection.WithEventSource(store.NewPostgresEventStore(db, nil, log)),
	}
	if cfg.Redis.Addr != "" {
		client, err := cache.Connect(ctx, cfg.Redis.Addr)
		if err != nil {
			return err
		}
		defer client.Close()
		opts = append(opts, projection.WithOrderCache(cache.NewRedisOrderCache(client, "localmart", cfg.Redis.TTL)))
	}
	projector := projection.NewProjector(store.NewPostgresReadStore(db), log, opts...)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, groupID, log)
	defer consumer.Close()

	log.Info("consuming")
	if err := consumer.Consume(ctx, projector.HandleEvent); err != nil && ctx.Err() == nil {
		return err
	}
	log.Info("shutting down")
	return nil
}
