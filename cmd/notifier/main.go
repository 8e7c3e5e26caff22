package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/localmart/internal/config"
	"github.com/example/localmart/internal/email"
	"github.com/example/localmart/internal/infrastructure/kafka"
	"github.com/example/localmart/internal/logger"
	"github.com/example/localmart/internal/notification"
	"go.uber.org/zap"
)

// Dedicated consumer group for email notifications
const defaultGroupID = "localmart-notifier"

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format).Named("notifier-service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	groupID := cfg.Kafka.GroupID
	if groupID == "" {
		groupID = defaultGroupID
	}
	log.Info("starting",
		zap.Strings("kafka_brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("group_id", groupID),
		zap.String("smtp", cfg.SMTP.Host+":"+cfg.SMTP.Port),
		zap.String("from", cfg.SMTP.From),
	)

	handler := notification.NewHandler(email.NewService(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From), log)
	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, groupID, log)
	defer consumer.Close()

	if err := consumer.Consume(ctx, handler.HandleEvent); err != nil && ctx.Err() == nil {
		log.Error("notifier stopped", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("shutting down")
	_ = log.Sync()
}
