package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNSClient records published messages in memory.
type SNSClient struct {
	mu        sync.Mutex
	published []sns.PublishInput
	failures  int
}

// NewSNSClient creates a new mock SNS client
func NewSNSClient() *SNSClient {
	return &SNSClient{}
}

// FailNext makes the next n Publish calls fail.
func (m *SNSClient) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failures = n
}

// Publish implements the SNSClient interface
func (m *SNSClient) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failures > 0 {
		m.failures--
		return nil, fmt.Errorf("simulated publish failure")
	}

	m.published = append(m.published, *params)
	return &sns.PublishOutput{
		MessageId: aws.String(fmt.Sprintf("msg-%d", len(m.published))),
	}, nil
}

// Published returns a copy of the successful Publish inputs.
func (m *SNSClient) Published() []sns.PublishInput {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]sns.PublishInput(nil), m.published...)
}
