package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	logging "github.com/ipfs/go-log/v2"

	"traffic-logger/internal/config"
	"traffic-logger/internal/index"
	"traffic-logger/internal/models"
)

var log = logging.Logger("lambda/worker")

func main() {
	ctx := context.Background()
	settings, err := config.LoadWorker(ctx)
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}
	if err := logging.SetLogLevel("*", settings.LogLevel); err != nil {
		log.Warnf("invalid LOG_LEVEL %q: %v", settings.LogLevel, err)
	}

	idx := index.NewDynamo(settings.AWSConfig, settings.IndexTableName)
	lambda.StartWithOptions(makeHandler(idx), lambda.WithContext(ctx))
}

func makeHandler(idx index.Indexer) func(context.Context, events.SQSEvent) error {
	return func(ctx context.Context, event events.SQSEvent) error {
		for _, record := range event.Records {
			if err := processRecord(ctx, idx, record); err != nil {
				return err
			}
		}
		return nil
	}
}

func processRecord(ctx context.Context, idx index.Indexer, record events.SQSMessage) error {
	var notice models.StoredNotice
	if err := json.Unmarshal([]byte(record.Body), &notice); err != nil {
		return fmt.Errorf("invalid message body %s: %w", record.MessageId, err)
	}
	if notice.LogID == "" {
		return fmt.Errorf("message %s has no log_id", record.MessageId)
	}

	err := idx.Put(ctx, notice)
	if errors.Is(err, index.ErrDuplicate) {
		log.Infow("duplicate detected", "log_id", notice.LogID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("index log_id=%s: %w", notice.LogID, err)
	}

	log.Infow("indexed", "log_id", notice.LogID, "key", notice.Key)
	return nil
}
