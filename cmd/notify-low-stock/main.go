// Package main is the Lambda function attached to the inventory table's
// stream. It publishes an SNS notification for every low-stock record.
//
// The event source mapping must enable ReportBatchItemFailures so that a
// failed publish only redelivers the tail of the batch.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/gurre/ddb-inventory/aws"
	"github.com/gurre/ddb-inventory/config"
	"github.com/gurre/ddb-inventory/handler"
	"github.com/gurre/ddb-inventory/logging"
	"github.com/gurre/ddb-inventory/notify"
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

func setup(ctx context.Context) (*handler.AlertHandler, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(config.RoleAlert); err != nil {
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
	snsClient := aws.NewSNSClient(sns.NewFromConfig(awsCfg))

	log.Info("notify-low-stock ready",
		zap.String("topic_arn", cfg.TopicARN),
		zap.Int("threshold", cfg.Threshold))
	return handler.NewAlertHandler(notify.NewSNSPublisher(snsClient, cfg.TopicARN), cfg.Threshold, log), nil
}
