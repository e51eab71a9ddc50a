// Package main is the Lambda function that loads uploaded CSV files into the
// inventory table. It is triggered by S3 ObjectCreated notifications.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gurre/ddb-inventory/aws"
	"github.com/gurre/ddb-inventory/checkpoint"
	"github.com/gurre/ddb-inventory/config"
	"github.com/gurre/ddb-inventory/handler"
	"github.com/gurre/ddb-inventory/ingest"
	"github.com/gurre/ddb-inventory/logging"
	"github.com/gurre/ddb-inventory/metrics"
	"github.com/gurre/ddb-inventory/store"
	"github.com/gurre/ddb-inventory/upload"
	"github.com/gurre/s3streamer"
	"go.uber.org/zap"
)

func main() {
	h, err := setup(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	lambda.Start(h.Handle)
}

// setup builds the handler once per cold start.
func setup(ctx context.Context) (*handler.LoadHandler, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(config.RoleIngest); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	dynamoClient := aws.NewDynamoDBClient(dynamodb.NewFromConfig(awsCfg))
	rawS3Client := s3.NewFromConfig(awsCfg)
	s3Client := aws.NewS3Client(rawS3Client)

	// Without a durable store a retried event restarts from the top, which
	// is still correct because writes are idempotent.
	var checkpointStore checkpoint.Store
	if cfg.CheckpointS3URI != "" {
		if checkpointStore, err = checkpoint.NewStore(s3Client, cfg.CheckpointS3URI); err != nil {
			return nil, fmt.Errorf("failed to create checkpoint store: %w", err)
		}
	}

	var reporter metrics.Reporter
	if cfg.ReportS3URI != "" {
		r, err := metrics.NewS3Reporter(s3Client, cfg.ReportS3URI)
		if err != nil {
			return nil, fmt.Errorf("failed to create report uploader: %w", err)
		}
		reporter = r
	}

	log.Info("load-inventory ready",
		zap.String("table", cfg.TableName),
		zap.Bool("durable_checkpoints", cfg.CheckpointS3URI != ""),
		zap.Bool("reports", reporter != nil))

	return handler.NewLoadHandler(
		s3streamer.NewS3Streamer(rawS3Client),
		upload.NewInspector(s3Client),
		store.NewDynamoDBStore(dynamoClient, cfg.TableName, cfg.MaxRetries),
		checkpointStore,
		reporter,
		log,
		ingest.Options{CheckpointEvery: cfg.CheckpointEvery},
	), nil
}
