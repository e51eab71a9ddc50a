// Package main is the Lambda function behind the inventory HTTP API.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gurre/ddb-inventory/aws"
	"github.com/gurre/ddb-inventory/config"
	"github.com/gurre/ddb-inventory/handler"
	"github.com/gurre/ddb-inventory/logging"
	"github.com/gurre/ddb-inventory/store"
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

func setup(ctx context.Context) (*handler.QueryHandler, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(config.RoleQuery); err != nil {
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

	log.Info("get-inventory-api ready", zap.String("table", cfg.TableName))
	return handler.NewQueryHandler(store.NewDynamoDBStore(dynamoClient, cfg.TableName, cfg.MaxRetries), log), nil
}
