// Package main implements the operator command that loads a single inventory
// upload outside Lambda. It runs the same ingest path as the load-inventory
// function and can resume an interrupted load from a checkpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	awsarn "github.com/aws/aws-sdk-go-v2/aws/arn"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/gurre/ddb-inventory/aws"
	"github.com/gurre/ddb-inventory/checkpoint"
	"github.com/gurre/ddb-inventory/config"
	"github.com/gurre/ddb-inventory/ingest"
	"github.com/gurre/ddb-inventory/logging"
	"github.com/gurre/ddb-inventory/metrics"
	"github.com/gurre/ddb-inventory/preflight"
	"github.com/gurre/ddb-inventory/store"
	"github.com/gurre/ddb-inventory/upload"
	"github.com/gurre/s3streamer"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("inventory-load", flag.ExitOnError)

	objectURI := fs.String("object", "", "S3 URI of the CSV upload (s3://bucket/key)")
	tableName := fs.String("table", "", "Inventory DynamoDB table")
	region := fs.String("region", "", "AWS region (defaults to AWS_REGION env)")
	resume := fs.String("resume", "", "Checkpoint location (s3://bucket/prefix or file:///dir)")
	checkpointEvery := fs.Int("checkpoint-every", ingest.DefaultCheckpointEvery, "Rows between checkpoint saves")
	maxRetries := fs.Int("max-retries", 5, "Retries of non-throttling write errors")
	reportS3URI := fs.String("report", "", "S3 URI prefix for the ingest report")
	roleARN := fs.String("role", "", "Check this principal's permissions before loading")
	dryRun := fs.Bool("dry-run", false, "Parse and validate rows without writing")
	logLevel := fs.String("log-level", "info", "Log level (debug|info|warn|error)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	obj, err := upload.ParseS3URI(*objectURI)
	if err != nil {
		return err
	}

	cfg := &config.Config{
		TableName:       *tableName,
		Region:          *region,
		CheckpointEvery: *checkpointEvery,
		ReportS3URI:     *reportS3URI,
		MaxRetries:      *maxRetries,
		LogLevel:        *logLevel,
	}
	if strings.HasPrefix(*resume, "s3://") {
		cfg.CheckpointS3URI = *resume
	}
	if err := cfg.Validate(config.RoleIngest); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	dynamoClient := aws.NewDynamoDBClient(dynamodb.NewFromConfig(awsCfg))
	rawS3Client := s3.NewFromConfig(awsCfg)
	s3Client := aws.NewS3Client(rawS3Client)

	if *roleARN != "" {
		res, err := resources(*roleARN, awsCfg.Region, obj, cfg.TableName, *resume, cfg.ReportS3URI)
		if err != nil {
			return err
		}
		checker := preflight.NewChecker(aws.NewIAMClient(iam.NewFromConfig(awsCfg)))
		results, err := checker.Run(ctx, *roleARN, preflight.Checks(res))
		for _, r := range results {
			log.Debug("permission check",
				zap.String("action", r.Action),
				zap.String("resource", r.Resource),
				zap.String("decision", r.Decision))
		}
		if err != nil {
			return fmt.Errorf("preflight failed: %w", err)
		}
		log.Info("preflight passed", zap.String("principal", *roleARN), zap.Int("checks", len(results)))
	}

	var checkpointStore checkpoint.Store = checkpoint.NewMemoryStore()
	if *resume != "" {
		if checkpointStore, err = checkpoint.NewStore(s3Client, *resume); err != nil {
			return fmt.Errorf("failed to create checkpoint store: %w", err)
		}
	}

	m := metrics.NewMetrics()
	ing := ingest.New(
		s3streamer.NewS3Streamer(rawS3Client),
		upload.NewInspector(s3Client),
		store.NewDynamoDBStore(dynamoClient, cfg.TableName, cfg.MaxRetries),
		checkpointStore,
		m,
		log,
		ingest.Options{CheckpointEvery: cfg.CheckpointEvery, DryRun: *dryRun},
	)

	fmt.Printf("Loading %s into table %s\n", obj.URI(), cfg.TableName)
	result, runErr := ing.Run(ctx, obj)

	report := m.GenerateReport()
	fmt.Println(report.String())
	if cfg.ReportS3URI != "" {
		reporter, err := metrics.NewS3Reporter(s3Client, cfg.ReportS3URI)
		if err != nil {
			return err
		}
		runID := uuid.NewString()
		if err := reporter.Publish(ctx, runID, report); err != nil {
			log.Warn("failed to publish ingest report", zap.Error(err))
		} else {
			fmt.Printf("Report written to %s\n", reportURI(cfg.ReportS3URI, reporter.Key(runID, report)))
		}
	}

	if runErr != nil {
		return fmt.Errorf("load failed: %w", runErr)
	}
	switch {
	case result.Skipped:
		fmt.Println("Upload already loaded, nothing to do")
	case *dryRun:
		fmt.Printf("Dry run: %d rows valid, %d rejected\n", result.RowsRead-result.RowsRejected, result.RowsRejected)
	default:
		fmt.Printf("Loaded %d rows (%d rejected)\n", result.RowsWritten, result.RowsRejected)
	}
	return nil
}

func reportURI(prefixURI, key string) string {
	u, err := url.Parse(prefixURI)
	if err != nil {
		return key
	}
	return "s3://" + u.Host + "/" + key
}

// resources names what a load touches, in the partition and account of the
// principal.
func resources(principalARN, region string, obj upload.Object, table, resume, report string) (preflight.Resources, error) {
	p, err := awsarn.Parse(principalARN)
	if err != nil {
		return preflight.Resources{}, fmt.Errorf("invalid principal ARN: %w", err)
	}

	tableARN, err := preflight.TableARN(principalARN, region, table)
	if err != nil {
		return preflight.Resources{}, err
	}

	res := preflight.Resources{
		UploadObjectARN: preflight.ObjectARN(p.Partition, obj.Bucket, obj.Key),
		TableARN:        tableARN,
	}
	if strings.HasPrefix(resume, "s3://") {
		if res.CheckpointARN, err = prefixARN(p.Partition, resume); err != nil {
			return preflight.Resources{}, err
		}
	}
	if report != "" {
		if res.ReportARN, err = prefixARN(p.Partition, report); err != nil {
			return preflight.Resources{}, err
		}
	}
	return res, nil
}

func prefixARN(partition, uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid S3 URI %s: %w", uri, err)
	}
	prefix := strings.Trim(u.Path, "/")
	if prefix != "" {
		prefix += "/"
	}
	return preflight.ObjectARN(partition, u.Host, prefix+"*"), nil
}
