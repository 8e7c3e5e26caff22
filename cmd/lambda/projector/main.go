package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/example/localmart/internal/config"
	"github.com/example/localmart/internal/infrastructure/cache"
	"github.com/example/localmart/internal/infrastructure/kinesis"
	"github.com/example/localmart/internal/infrastructure/store"
	"github.com/example/localmart/internal/logger"
	"github.com/example/localmart/internal/projection"
	"go.uber.org/zap"
)

var (
	projector *projection.Projector
	log       *zap.Logger
)

func init() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log = logger.New(cfg.Log.Level, "json").Named("lambda-projector")

	ctx := context.Background()
	db, err := store.ConnectPostgres(ctx, cfg.Postgres.URL)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	if err := store.EnsureSchema(ctx, db); err != nil {
		log.Fatal("failed to prepare schema", zap.Error(err))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatal("failed to load aws config", zap.Error(err))
	}
	eventStore := store.NewDynamoEventStore(dynamodb.NewFromConfig(awsCfg), cfg.Dynamo.EventsTable, cfg.Dynamo.SnapshotsTable, nil, log)

	opts := []projection.Option{projection.WithEventSource(eventStore)}
	if cfg.Redis.Addr != "" {
		client, err := cache.Connect(ctx, cfg.Redis.Addr)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		opts = append(opts, projection.WithOrderCache(cache.NewRedisOrderCache(client, "localmart", cfg.Redis.TTL)))
	}
	projector = projection.NewProjector(store.NewPostgresReadStore(db), log, opts...)

	log.Info("initialized")
}

func handler(ctx context.Context, batch events.KinesisEvent) (events.KinesisEventResponse, error) {
	return kinesis.Process(ctx, batch, projector.Apply, log), nil
}

func main() {
	lambda.Start(handler)
}
