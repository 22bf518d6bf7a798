package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"traffic-logger/internal/models"
)

// ErrDuplicate is returned when a record id is already indexed.
var ErrDuplicate = errors.New("record already indexed")

// Indexer stores a lookup entry for every persisted record.
type Indexer interface {
	Put(ctx context.Context, notice models.StoredNotice) error
}

type dynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Dynamo indexes records in a DynamoDB table keyed by log_id.
type Dynamo struct {
	client dynamoAPI
	table  string
	now    func() time.Time
}

var _ Indexer = (*Dynamo)(nil)

func NewDynamo(cfg aws.Config, table string, opts ...func(*dynamodb.Options)) *Dynamo {
	return &Dynamo{
		client: dynamodb.NewFromConfig(cfg, opts...),
		table:  table,
		now:    time.Now,
	}
}

// Put writes the index item. It returns ErrDuplicate if log_id exists.
func (d *Dynamo) Put(ctx context.Context, notice models.StoredNotice) error {
	item := map[string]types.AttributeValue{
		"log_id":     &types.AttributeValueMemberS{Value: notice.LogID},
		"bucket":     &types.AttributeValueMemberS{Value: notice.Bucket},
		"s3_key":     &types.AttributeValueMemberS{Value: notice.Key},
		"timestamp":  &types.AttributeValueMemberS{Value: notice.Timestamp},
		"indexed_at": &types.AttributeValueMemberS{Value: d.now().UTC().Format(time.RFC3339)},
	}
	if notice.SourceIP != nil {
		item["source_ip"] = &types.AttributeValueMemberS{Value: *notice.SourceIP}
	}
	if notice.UserAgent != nil {
		item["user_agent"] = &types.AttributeValueMemberS{Value: *notice.UserAgent}
	}

	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(log_id)"),
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return ErrDuplicate
		}
		return fmt.Errorf("dynamodb put error: %w", err)
	}
	return nil
}
