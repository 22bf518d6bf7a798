package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	logging "github.com/ipfs/go-log/v2"

	"traffic-logger/internal/config"
	"traffic-logger/internal/handler"
	"traffic-logger/internal/notify"
	"traffic-logger/internal/store"
)

var log = logging.Logger("lambda/ingest")

func main() {
	ctx := context.Background()
	settings, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}
	if err := logging.SetLogLevel("*", settings.LogLevel); err != nil {
		log.Warnf("invalid LOG_LEVEL %q: %v", settings.LogLevel, err)
	}

	lambda.StartWithOptions(newHandler(settings).Handle, lambda.WithContext(ctx))
}

func newHandler(settings config.Settings) *handler.Handler {
	var opts []handler.Option
	if settings.StoredQueueURL != "" {
		opts = append(opts, handler.WithNotifier(notify.NewSQS(settings.AWSConfig, settings.StoredQueueURL)))
	}
	objects := store.NewS3(settings.AWSConfig, settings.S3Endpoint)
	return handler.New(objects, settings.BucketName, opts...)
}
