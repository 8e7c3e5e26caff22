package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/example/localmart/internal/config"
	"github.com/example/localmart/internal/email"
	"github.com/example/localmart/internal/infrastructure/kinesis"
	"github.com/example/localmart/internal/logger"
	"github.com/example/localmart/internal/notification"
	"go.uber.org/zap"
)

var (
	notifier *notification.Handler
	log      *zap.Logger
)

func init() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log = logger.New(cfg.Log.Level, "json").Named("lambda-notifier")
	notifier = notification.NewHandler(email.NewService(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From), log)

	log.Info("initialized", zap.String("smtp", cfg.SMTP.Host+":"+cfg.SMTP.Port))
}

func handler(ctx context.Context, batch events.KinesisEvent) (events.KinesisEventResponse, error) {
	return kinesis.Process(ctx, batch, notifier.Notify, log), nil
}

func main() {
	lambda.Start(handler)
}
