package awstest

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQS records sent message bodies.
type SQS struct {
	mu     sync.Mutex
	Bodies []string
	// Err fails every SendMessage when set.
	Err error
}

func (s *SQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	s.Bodies = append(s.Bodies, *params.MessageBody)
	return &sqs.SendMessageOutput{}, nil
}

// Sent returns a copy of the recorded message bodies.
func (s *SQS) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.Bodies...)
}

// CloudWatch counts emitted metric datums by name.
type CloudWatch struct {
	mu     sync.Mutex
	Counts map[string]int
}

func (c *CloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Counts == nil {
		c.Counts = map[string]int{}
	}
	for _, d := range params.MetricData {
		if d.MetricName != nil {
			c.Counts[*d.MetricName]++
		}
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}
