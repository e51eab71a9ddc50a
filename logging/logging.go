// Package logging builds the zap loggers used by the handlers and tools.
// Lambda captures stdout into CloudWatch, so loggers write JSON to stdout.
package logging

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON production logger at the given level. It writes to
// stdout unless other output paths are given.
func New(level string, outputPaths ...string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	cfg.OutputPaths = []string{"stdout"}
	if len(outputPaths) > 0 {
		cfg.OutputPaths = outputPaths
	}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Sampling = nil

	return cfg.Build()
}

// ForInvocation returns a child logger tagged with the Lambda request ID when
// ctx carries one.
func ForInvocation(ctx context.Context, log *zap.Logger) *zap.Logger {
	lc, ok := lambdacontext.FromContext(ctx)
	if !ok {
		return log
	}
	return log.With(zap.String("aws_request_id", lc.AwsRequestID))
}
