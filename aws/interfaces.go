// Package aws declares the narrow slices of the AWS SDK clients used by the
// inventory pipeline. Every interface is shaped exactly like the SDK method so
// that the real clients satisfy it and tests can substitute in-memory fakes.
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// DynamoDBClient defines the DynamoDB operations used by the inventory table.
// PutItem writes or overwrites a single record; Scan reads the table page by page.
type DynamoDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// S3Client defines the S3 operations used for uploads, checkpoints and reports.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// SNSClient defines the SNS operation used to deliver low-stock notifications.
type SNSClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// IAMClient defines the IAM operation used by the permission preflight.
type IAMClient interface {
	SimulatePrincipalPolicy(ctx context.Context, params *iam.SimulatePrincipalPolicyInput, optFns ...func(*iam.Options)) (*iam.SimulatePrincipalPolicyOutput, error)
}

// Compile-time interface checks to ensure implementations satisfy interfaces
var (
	_ DynamoDBClient = (*DynamoDBClientImpl)(nil)
	_ S3Client       = (*S3ClientImpl)(nil)
	_ SNSClient      = (*SNSClientImpl)(nil)
	_ IAMClient      = (*IAMClientImpl)(nil)

	// AWS SDK interface checks to ensure SDK clients satisfy interfaces
	_ DynamoDBClient = (*dynamodb.Client)(nil)
	_ S3Client       = (*s3.Client)(nil)
	_ SNSClient      = (*sns.Client)(nil)
	_ IAMClient      = (*iam.Client)(nil)

	// The paginator in the store package needs the scan slice of the client.
	_ dynamodb.ScanAPIClient = (DynamoDBClient)(nil)
)
