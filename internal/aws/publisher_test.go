package aws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type capturingSQS struct {
	last *sqs.SendMessageInput
	err  error
}

func (c *capturingSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.last = params
	return &sqs.SendMessageOutput{}, nil
}

func TestSendTask(t *testing.T) {
	client := &capturingSQS{}
	p := NewPublisher(client, "https://queue.test/tasks")

	task := map[string]string{"type": "fanout_repair", "order_id": "o1"}
	if err := p.SendTask(context.Background(), task, map[string]string{"source": "api"}); err != nil {
		t.Fatalf("SendTask error: %v", err)
	}

	if *client.last.QueueUrl != "https://queue.test/tasks" {
		t.Fatalf("unexpected queue url %s", *client.last.QueueUrl)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(*client.last.MessageBody), &got); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if got["order_id"] != "o1" {
		t.Fatalf("unexpected body: %+v", got)
	}
	attr, ok := client.last.MessageAttributes["source"]
	if !ok || *attr.StringValue != "api" {
		t.Fatalf("attribute not carried: %+v", client.last.MessageAttributes)
	}
}

func TestSendTask_SendFailure(t *testing.T) {
	client := &capturingSQS{err: errors.New("queue gone")}
	p := NewPublisher(client, "https://queue.test/tasks")

	if err := p.SendTask(context.Background(), map[string]string{}, nil); err == nil {
		t.Fatalf("expected send failure to surface")
	}
}
