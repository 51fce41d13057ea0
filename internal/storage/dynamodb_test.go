package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryDynamo is an in-memory table keyed by the "pk" string attribute.
type memoryDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]dynamodbtypes.AttributeValue
	fail  error
}

func newMemoryDynamo() *memoryDynamo {
	return &memoryDynamo{items: make(map[string]map[string]dynamodbtypes.AttributeValue)}
}

func pk(key map[string]dynamodbtypes.AttributeValue) string {
	if v, ok := key["pk"].(*dynamodbtypes.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (m *memoryDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	return &dynamodb.GetItemOutput{Item: m.items[pk(in.Key)]}, nil
}

func (m *memoryDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	m.items[pk(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *memoryDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	delete(m.items, pk(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestDynamoFlagStoreContract(t *testing.T) {
	table := newMemoryDynamo()
	flagStoreContract(t, func() FlagStore { return NewDynamoFlagStore(table, "etfwatch-flags") })
}

func TestDynamoFlagStoreFailsOpenOnRequestErrors(t *testing.T) {
	table := newMemoryDynamo()
	store := NewDynamoFlagStore(table, "etfwatch-flags")
	ctx := context.Background()
	require.NoError(t, store.Mark(ctx, EventArbitrageStatus, MarkInfo{RunID: "r"}))

	table.fail = errors.New("throttled")
	assert.False(t, store.IsMarked(ctx, EventArbitrageStatus))

	_, err := store.List(ctx)
	var storageErr *StorageError
	assert.ErrorAs(t, err, &storageErr)
	assert.ErrorAs(t, store.Mark(ctx, EventArbitrageStatus, MarkInfo{}), &storageErr)
}

func TestDynamoFlagStoreIgnoresForeignItem(t *testing.T) {
	table := newMemoryDynamo()
	table.items[dynamoKeyPrefix+string(EventListingPushed)] = map[string]dynamodbtypes.AttributeValue{
		"pk":        &dynamodbtypes.AttributeValueMemberS{Value: dynamoKeyPrefix + string(EventListingPushed)},
		"event":     &dynamodbtypes.AttributeValueMemberS{Value: string(EventNewStockPushed)},
		"marked_at": &dynamodbtypes.AttributeValueMemberS{Value: "2025-08-15T01:30:00Z"},
	}

	store := NewDynamoFlagStore(table, "etfwatch-flags")
	assert.False(t, store.IsMarked(context.Background(), EventListingPushed))
}
