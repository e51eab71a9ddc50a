// Package main generates sample inventory uploads. It writes a CSV file to
// stdout or uploads it under an S3 prefix, where it triggers the
// load-inventory function like any other upload.
package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/gurre/ddb-inventory/aws"
	"github.com/gurre/ddb-inventory/logging"
	"go.uber.org/zap"
)

// Config holds the command-line configuration for the data generator.
type Config struct {
	Rows      int
	Locations int
	BadRows   int // Rows with an invalid quantity or missing SKU
	LowStock  float64
	Seed      int64
	Output    string // s3://bucket/prefix, empty writes to stdout
	Region    string
}

var (
	cities = []string{"Berlin", "Paris", "Madrid", "Rome", "Vienna", "Prague", "Oslo", "Dublin", "Lisbon", "Warsaw"}
	nouns  = []string{"Widget", "Gadget", "Sprocket", "Gizmo", "Bracket", "Flange", "Valve", "Bearing"}
	adjs   = []string{"Small", "Large", "Steel", "Brass", "Heavy", "Compact", "Deluxe"}
)

func randomString(r *rand.Rand, n int) string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[r.Intn(len(letters))]
	}
	return string(b)
}

func randomNumber(r *rand.Rand, min, max int) int {
	return min + r.Intn(max-min+1)
}

func pick(r *rand.Rand, s []string) string {
	return s[r.Intn(len(s))]
}

// generateRow returns one valid record. lowStock is the share of rows whose
// quantity falls below the default alert threshold.
func generateRow(r *rand.Rand, locations []string, lowStock float64) []string {
	quantity := randomNumber(r, 5, 500)
	if r.Float64() < lowStock {
		quantity = randomNumber(r, 0, 4)
	}
	return []string{
		fmt.Sprintf("%s%04d", randomString(r, 1), randomNumber(r, 0, 9999)),
		pick(r, locations),
		strconv.Itoa(quantity),
		pick(r, adjs) + " " + pick(r, nouns),
		"SUP-" + randomString(r, 3),
	}
}

// generateBadRow returns a record the loader rejects.
func generateBadRow(r *rand.Rand, locations []string) []string {
	row := generateRow(r, locations, 0)
	switch r.Intn(3) {
	case 0:
		row[0] = ""
	case 1:
		row[2] = "-" + row[2]
	default:
		row[2] = randomString(r, 4)
	}
	return row
}

// generate writes the header and cfg.Rows records to w. Bad rows are
// spread among the valid ones.
func generate(w io.Writer, r *rand.Rand, cfg Config) error {
	n := cfg.Locations
	if n < 1 || n > len(cities) {
		n = len(cities)
	}
	locations := cities[:n]

	out := csv.NewWriter(w)
	if err := out.Write([]string{"sku", "location", "quantity", "name", "supplier"}); err != nil {
		return err
	}

	bad := make(map[int]bool, cfg.BadRows)
	for len(bad) < cfg.BadRows && len(bad) < cfg.Rows {
		bad[r.Intn(cfg.Rows)] = true
	}

	for i := 0; i < cfg.Rows; i++ {
		row := generateRow(r, locations, cfg.LowStock)
		if bad[i] {
			row = generateBadRow(r, locations)
		}
		if err := out.Write(row); err != nil {
			return err
		}
	}

	out.Flush()
	return out.Error()
}

// objectKey names an upload under prefix so runs never overwrite each other.
func objectKey(prefix string, now time.Time) string {
	name := fmt.Sprintf("inventory-%s-%s.csv", now.UTC().Format("2006-01-02"), uuid.NewString())
	return path.Join(prefix, name)
}

func uploadCSV(ctx context.Context, client aws.S3Client, uri string, body []byte) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid S3 URI: %w", err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", fmt.Errorf("invalid output URI: %s (must be s3://bucket/prefix)", uri)
	}

	bucket := u.Host
	key := objectKey(strings.Trim(u.Path, "/"), time.Now())
	contentType := "text/csv"
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: &contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", bucket, key), nil
}

func main() {
	cfg := Config{}
	var logLevel string

	flag.IntVar(&cfg.Rows, "rows", 100, "Number of data rows")
	flag.IntVar(&cfg.Locations, "locations", 3, "Number of distinct locations")
	flag.IntVar(&cfg.BadRows, "bad-rows", 0, "Number of rows the loader will reject")
	flag.Float64Var(&cfg.LowStock, "low-stock", 0.1, "Share of rows below the alert threshold")
	flag.Int64Var(&cfg.Seed, "seed", 0, "Random seed (0 = time-based)")
	flag.StringVar(&cfg.Output, "out", "", "Upload to s3://bucket/prefix instead of stdout")
	flag.StringVar(&cfg.Region, "region", "", "AWS region (defaults to AWS_REGION env)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	flag.Parse()

	// stdout may carry the CSV itself.
	log, err := logging.New(logLevel, "stderr")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	var seed int64
	if cfg.Seed == 0 {
		seed = time.Now().UnixNano()
	} else {
		seed = cfg.Seed
	}
	r := rand.New(rand.NewSource(seed))
	log.Info("generating inventory upload",
		zap.Int64("seed", seed),
		zap.Int("rows", cfg.Rows),
		zap.Int("bad_rows", cfg.BadRows))

	if cfg.Output == "" {
		if err := generate(os.Stdout, r, cfg); err != nil {
			log.Fatal("failed to write CSV", zap.Error(err))
		}
		return
	}

	var buf bytes.Buffer
	if err := generate(&buf, r, cfg); err != nil {
		log.Fatal("failed to generate CSV", zap.Error(err))
	}

	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		log.Fatal("unable to load SDK config", zap.Error(err))
	}

	uri, err := uploadCSV(ctx, aws.NewS3Client(s3.NewFromConfig(awsCfg)), cfg.Output, buf.Bytes())
	if err != nil {
		log.Fatal("upload failed", zap.Error(err))
	}
	log.Info("uploaded inventory file", zap.String("uri", uri), zap.Int("rows", cfg.Rows))
}
