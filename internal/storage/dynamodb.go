package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const dynamoKeyPrefix = "flag#"

// DynamoAPI is the part of the DynamoDB client the flag store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

type dynamoFlagItem struct {
	PK       string `dynamodbav:"pk"`
	Event    string `dynamodbav:"event"`
	MarkedAt string `dynamodbav:"marked_at"`
	RunID    string `dynamodbav:"run_id"`
	Note     string `dynamodbav:"note"`
}

// DynamoFlagStore keeps flags in a DynamoDB table keyed by the string
// attribute "pk". PutItem replaces the whole item, so a mark is atomic.
type DynamoFlagStore struct {
	client DynamoAPI
	table  string
	now    func() time.Time
}

// NewDynamoFlagStore wraps an existing client.
func NewDynamoFlagStore(client DynamoAPI, table string) *DynamoFlagStore {
	return &DynamoFlagStore{client: client, table: table, now: time.Now}
}

// OpenDynamoFlagStore loads AWS credentials from the environment and
// connects to table. An empty region defers to the SDK's own lookup.
func OpenDynamoFlagStore(ctx context.Context, region, table string) (*DynamoFlagStore, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, storageErr("load aws config", table, err)
	}
	return NewDynamoFlagStore(dynamodb.NewFromConfig(cfg), table), nil
}

func (s *DynamoFlagStore) key(event Event) map[string]dynamodbtypes.AttributeValue {
	return map[string]dynamodbtypes.AttributeValue{
		"pk": &dynamodbtypes.AttributeValueMemberS{Value: dynamoKeyPrefix + string(event)},
	}
}

// IsMarked reports whether an item exists; request errors read as unmarked.
func (s *DynamoFlagStore) IsMarked(ctx context.Context, event Event) bool {
	_, ok, _ := s.read(ctx, event)
	return ok
}

// Get returns the stored item; request errors read as unmarked.
func (s *DynamoFlagStore) Get(ctx context.Context, event Event) (FlagRecord, bool) {
	rec, ok, _ := s.read(ctx, event)
	return rec, ok
}

func (s *DynamoFlagStore) read(ctx context.Context, event Event) (FlagRecord, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.key(event),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return FlagRecord{}, false, storageErr("get flag", s.table, err)
	}
	if len(out.Item) == 0 {
		return FlagRecord{}, false, nil
	}

	var item dynamoFlagItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return FlagRecord{}, false, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, item.MarkedAt)
	if err != nil || item.Event != string(event) {
		return FlagRecord{}, false, nil
	}
	return FlagRecord{Event: event, Marked: true, MarkedAt: ts, RunID: item.RunID, Note: item.Note}, true, nil
}

// Mark writes the flag item.
func (s *DynamoFlagStore) Mark(ctx context.Context, event Event, info MarkInfo) error {
	item, err := attributevalue.MarshalMap(dynamoFlagItem{
		PK:       dynamoKeyPrefix + string(event),
		Event:    string(event),
		MarkedAt: info.markedAt(s.now).Format(time.RFC3339Nano),
		RunID:    info.RunID,
		Note:     info.Note,
	})
	if err != nil {
		return storageErr("marshal flag", s.table, err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(s.table), Item: item}); err != nil {
		return storageErr("mark flag", s.table, err)
	}
	return nil
}

// Reset deletes the flag item. Deleting a missing item succeeds.
func (s *DynamoFlagStore) Reset(ctx context.Context, event Event) error {
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{TableName: aws.String(s.table), Key: s.key(event)}); err != nil {
		return storageErr("reset flag", s.table, err)
	}
	return nil
}

// List returns one record per known event. Request errors are reported.
func (s *DynamoFlagStore) List(ctx context.Context) ([]FlagRecord, error) {
	records := make([]FlagRecord, 0, len(Events()))
	for _, event := range Events() {
		rec, ok, err := s.read(ctx, event)
		if err != nil {
			return nil, fmt.Errorf("list flags: %w", err)
		}
		if !ok {
			rec = FlagRecord{Event: event}
		}
		records = append(records, rec)
	}
	return records, nil
}

var _ FlagStore = (*DynamoFlagStore)(nil)
