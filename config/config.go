// Package config holds the settings of the inventory handlers and tools. The
// configuration is loaded once per process, validated for the role the process
// plays, and then passed explicitly to every component that needs it.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Role selects which settings a process needs.
type Role int

const (
	RoleIngest Role = iota // load-inventory and inventory-load
	RoleQuery              // get-inventory-api
	RoleAlert              // notify-low-stock
)

// Config holds all settings of the pipeline. Lambda functions read it from
// the environment; the CLI fills it from flags.
type Config struct {
	TableName       string `yaml:"table_name" env:"TABLE_NAME"`                               // Inventory DynamoDB table
	TopicARN        string `yaml:"topic_arn" env:"TOPIC_ARN"`                                 // SNS topic for low-stock alerts
	Region          string `yaml:"region" env:"AWS_REGION"`                                   // AWS region, empty uses the SDK default chain
	Threshold       int    `yaml:"low_stock_threshold" env:"LOW_STOCK_THRESHOLD" env-default:"5"`
	CheckpointS3URI string `yaml:"checkpoint_s3_uri" env:"CHECKPOINT_S3_URI"`                 // Optional s3://bucket/prefix for ingest checkpoints
	CheckpointEvery int    `yaml:"checkpoint_every" env:"CHECKPOINT_EVERY" env-default:"500"` // Rows between checkpoint saves
	ReportS3URI     string `yaml:"report_s3_uri" env:"REPORT_S3_URI"`                         // Optional s3://bucket/prefix for ingest reports
	MaxRetries      int    `yaml:"max_retries" env:"MAX_RETRIES" env-default:"5"`             // Non-throttling retries per store write
	LogLevel        string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
}

// Load reads the configuration from the YAML file named by CONFIG_PATH when
// set, and from the environment otherwise. Environment variables override
// file values in both cases.
func Load() (*Config, error) {
	var cfg Config
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		return &cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from environment: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings every role shares plus the ones specific to role.
func (c *Config) Validate(role Role) error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be debug, info, warn or error")
	}

	switch role {
	case RoleIngest:
		if c.TableName == "" {
			return fmt.Errorf("table name is required")
		}
		if c.CheckpointS3URI != "" {
			if err := validateS3URI(c.CheckpointS3URI); err != nil {
				return fmt.Errorf("invalid checkpoint URI: %w", err)
			}
		}
		if c.CheckpointEvery < 1 {
			return fmt.Errorf("checkpoint interval must be at least 1")
		}
		if c.ReportS3URI != "" {
			if err := validateS3URI(c.ReportS3URI); err != nil {
				return fmt.Errorf("invalid report URI: %w", err)
			}
		}
	case RoleQuery:
		if c.TableName == "" {
			return fmt.Errorf("table name is required")
		}
	case RoleAlert:
		if c.TopicARN == "" {
			return fmt.Errorf("topic ARN is required")
		}
		if !strings.HasPrefix(c.TopicARN, "arn:") {
			return fmt.Errorf("topic ARN must start with arn:")
		}
		if c.Threshold < 1 {
			return fmt.Errorf("low stock threshold must be at least 1")
		}
	default:
		return fmt.Errorf("unknown role %d", role)
	}

	return nil
}

func validateS3URI(uri string) error {
	if !strings.HasPrefix(uri, "s3://") {
		return fmt.Errorf("%s must start with s3://", uri)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("%s has no bucket", uri)
	}
	return nil
}
