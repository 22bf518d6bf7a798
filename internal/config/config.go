package config

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

const defaultLogLevel = "info"

// Settings holds resolved configuration and shared AWS config.
type Settings struct {
	AWSConfig      aws.Config
	BucketName     string
	S3Endpoint     string
	StoredQueueURL string
	IndexTableName string
	LogLevel       string
}

// Load reads environment variables and AWS configuration for the ingest function.
func Load(ctx context.Context) (Settings, error) {
	settings, err := load(ctx)
	if err != nil {
		return Settings{}, err
	}
	if settings.BucketName == "" {
		return Settings{}, fmt.Errorf("missing S3_BUCKET_NAME")
	}
	return settings, nil
}

// LoadWorker reads environment variables and AWS configuration for the index worker.
func LoadWorker(ctx context.Context) (Settings, error) {
	settings, err := load(ctx)
	if err != nil {
		return Settings{}, err
	}
	if settings.IndexTableName == "" {
		return Settings{}, fmt.Errorf("missing INDEX_TABLE_NAME")
	}
	return settings, nil
}

func load(ctx context.Context) (Settings, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return Settings{}, fmt.Errorf("load AWS config: %w", err)
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = defaultLogLevel
	}

	return Settings{
		AWSConfig:      awsCfg,
		BucketName:     os.Getenv("S3_BUCKET_NAME"),
		S3Endpoint:     os.Getenv("S3_ENDPOINT"),
		StoredQueueURL: os.Getenv("STORED_QUEUE_URL"),
		IndexTableName: os.Getenv("INDEX_TABLE_NAME"),
		LogLevel:       logLevel,
	}, nil
}
