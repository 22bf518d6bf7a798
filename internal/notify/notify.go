package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"traffic-logger/internal/models"
)

// Notifier announces records that were written to the object store.
type Notifier interface {
	Notify(ctx context.Context, notice models.StoredNotice) error
}

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQS publishes stored-record notices to a queue.
type SQS struct {
	client   sqsAPI
	queueURL string
}

var _ Notifier = (*SQS)(nil)

func NewSQS(cfg aws.Config, queueURL string, opts ...func(*sqs.Options)) *SQS {
	return &SQS{client: sqs.NewFromConfig(cfg, opts...), queueURL: queueURL}
}

// Notify implements Notifier.
func (s *SQS) Notify(ctx context.Context, notice models.StoredNotice) error {
	body, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("encode notice: %w", err)
	}
	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sqs send message: %w", err)
	}
	return nil
}
