package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DynamoClient is the subset of *dynamodb.Client the event store uses.
type DynamoClient interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoEventStore stores events in DynamoDB.
// Events reach the read-model lambdas through the table's Kinesis stream;
// the optional publisher only serves the writing process, e.g. its live feed.
type DynamoEventStore struct {
	client            DynamoClient
	tableName         string
	snapshotTableName string
	publisher         Publisher
	logger            *zap.Logger
}

// dynamoEvent represents the DynamoDB item structure
type dynamoEvent struct {
	AggregateID   string `dynamodbav:"aggregate_id"`
	Version       int    `dynamodbav:"version"`
	ID            string `dynamodbav:"id"`
	AggregateType string `dynamodbav:"aggregate_type"`
	EventType     string `dynamodbav:"event_type"`
	Data          string `dynamodbav:"data"`
	CreatedAt     string `dynamodbav:"created_at"`
	GSI1PK        string `dynamodbav:"gsi1pk"`
}

const newItemCondition = "attribute_not_exists(aggregate_id) AND attribute_not_exists(version)"

func NewDynamoEventStore(client DynamoClient, tableName, snapshotTableName string, publisher Publisher, logger *zap.Logger) *DynamoEventStore {
	return &DynamoEventStore{
		client:            client,
		tableName:         tableName,
		snapshotTableName: snapshotTableName,
		publisher:         publisher,
		logger:            logger.Named("dynamo_event_store"),
	}
}

// Append writes one event with a conditional put.
func (es *DynamoEventStore) Append(ctx context.Context, rec Record) (*Event, error) {
	event, item, err := es.prepare(ctx, rec, nil)
	if err != nil {
		return nil, err
	}

	_, err = es.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(es.tableName),
		Item:                item,
		ConditionExpression: aws.String(newItemCondition),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, fmt.Errorf("%w: %s version %d already written", ErrVersionConflict, rec.AggregateID, event.Version)
		}
		return nil, fmt.Errorf("failed to put event: %w", err)
	}
	publishCommitted(ctx, es.publisher, es.logger, []Event{*event})
	return event, nil
}

// AppendAll writes all records in a single TransactWriteItems call.
func (es *DynamoEventStore) AppendAll(ctx context.Context, recs ...Record) ([]Event, error) {
	if len(recs) == 0 {
		return nil, nil
	}

	next := make(map[string]int, len(recs))
	created := make([]Event, 0, len(recs))
	items := make([]types.TransactWriteItem, 0, len(recs))

	for _, rec := range recs {
		event, item, err := es.prepare(ctx, rec, next)
		if err != nil {
			return nil, err
		}
		next[rec.AggregateID] = event.Version
		created = append(created, *event)
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(es.tableName),
				Item:                item,
				ConditionExpression: aws.String(newItemCondition),
			},
		})
	}

	_, err := es.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			for _, reason := range tce.CancellationReasons {
				if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
					return nil, fmt.Errorf("%w: %v", ErrVersionConflict, err)
				}
			}
		}
		return nil, fmt.Errorf("failed to write events: %w", err)
	}
	publishCommitted(ctx, es.publisher, es.logger, created)
	return created, nil
}

// prepare resolves the version for rec and marshals the item. pending holds
// versions already assigned earlier in the same batch.
func (es *DynamoEventStore) prepare(ctx context.Context, rec Record, pending map[string]int) (*Event, map[string]types.AttributeValue, error) {
	current, ok := pending[rec.AggregateID]
	if !ok {
		if rec.ExpectedVersion != AnyVersion {
			// The conditional put rejects the write if someone else
			// already took ExpectedVersion+1.
			current = rec.ExpectedVersion
		} else {
			v, err := es.currentVersion(ctx, rec.AggregateID)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to get current version: %w", err)
			}
			current = v
		}
	} else if rec.ExpectedVersion != AnyVersion && rec.ExpectedVersion != current {
		return nil, nil, fmt.Errorf("%w: %s at version %d, expected %d",
			ErrVersionConflict, rec.AggregateID, current, rec.ExpectedVersion)
	}

	data, err := json.Marshal(rec.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal %s: %w", rec.EventType, err)
	}

	event := &Event{
		ID:            uuid.New().String(),
		AggregateID:   rec.AggregateID,
		AggregateType: rec.AggregateType,
		EventType:     rec.EventType,
		Data:          data,
		Timestamp:     time.Now(),
		Version:       current + 1,
	}

	av, err := attributevalue.MarshalMap(dynamoEvent{
		AggregateID:   event.AggregateID,
		Version:       event.Version,
		ID:            event.ID,
		AggregateType: event.AggregateType,
		EventType:     event.EventType,
		Data:          string(data),
		CreatedAt:     event.Timestamp.Format(time.RFC3339Nano),
		GSI1PK:        "EVENTS", // Fixed value for GSI1 to enable GetAllEvents
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return event, av, nil
}

// currentVersion returns the highest stored version, or 0
func (es *DynamoEventStore) currentVersion(ctx context.Context, aggregateID string) (int, error) {
	result, err := es.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
		},
		ScanIndexForward:     aws.Bool(false),
		Limit:                aws.Int32(1),
		ProjectionExpression: aws.String("version"),
	})
	if err != nil {
		return 0, err
	}
	if len(result.Items) == 0 {
		return 0, nil
	}

	var item struct {
		Version int `dynamodbav:"version"`
	}
	if err := attributevalue.UnmarshalMap(result.Items[0], &item); err != nil {
		return 0, err
	}
	return item.Version, nil
}

// GetEvents returns all events for an aggregate from DynamoDB
func (es *DynamoEventStore) GetEvents(ctx context.Context, aggregateID string) ([]Event, error) {
	return es.GetEventsFromVersion(ctx, aggregateID, 0)
}

// GetEventsFromVersion returns events newer than fromVersion
func (es *DynamoEventStore) GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error) {
	return es.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid AND version > :ver"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
			":ver": &types.AttributeValueMemberN{Value: strconv.Itoa(fromVersion)},
		},
		ScanIndexForward: aws.Bool(true),
	})
}

// GetAllEvents returns all events using GSI1, ordered by creation time
func (es *DynamoEventStore) GetAllEvents(ctx context.Context) ([]Event, error) {
	return es.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("gsi1pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "EVENTS"},
		},
		ScanIndexForward: aws.Bool(true),
	})
}

func (es *DynamoEventStore) queryAll(ctx context.Context, in *dynamodb.QueryInput) ([]Event, error) {
	var events []Event
	for {
		result, err := es.client.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("failed to query events: %w", err)
		}
		page, err := unmarshalEvents(result.Items)
		if err != nil {
			return nil, err
		}
		events = append(events, page...)

		if len(result.LastEvaluatedKey) == 0 {
			return events, nil
		}
		in.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

func unmarshalEvents(items []map[string]types.AttributeValue) ([]Event, error) {
	events := make([]Event, 0, len(items))
	for _, item := range items {
		var de dynamoEvent
		if err := attributevalue.UnmarshalMap(item, &de); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}
		timestamp, _ := time.Parse(time.RFC3339Nano, de.CreatedAt)
		events = append(events, Event{
			ID:            de.ID,
			AggregateID:   de.AggregateID,
			AggregateType: de.AggregateType,
			EventType:     de.EventType,
			Data:          json.RawMessage(de.Data),
			Timestamp:     timestamp,
			Version:       de.Version,
		})
	}
	return events, nil
}

// dynamoSnapshot is the item stored in the snapshots table, keyed by aggregate_id
type dynamoSnapshot struct {
	AggregateID   string `dynamodbav:"aggregate_id"`
	AggregateType string `dynamodbav:"aggregate_type"`
	Version       int    `dynamodbav:"version"`
	State         string `dynamodbav:"state"`
	CreatedAt     string `dynamodbav:"created_at"`
}

// SaveSnapshot overwrites the aggregate's snapshot
func (es *DynamoEventStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	av, err := attributevalue.MarshalMap(dynamoSnapshot{
		AggregateID:   snapshot.AggregateID,
		AggregateType: snapshot.AggregateType,
		Version:       snapshot.Version,
		State:         string(snapshot.State),
		CreatedAt:     snapshot.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = es.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(es.snapshotTableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns nil when the aggregate has no snapshot
func (es *DynamoEventStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	result, err := es.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(es.snapshotTableName),
		Key: map[string]types.AttributeValue{
			"aggregate_id": &types.AttributeValueMemberS{Value: aggregateID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var ds dynamoSnapshot
	if err := attributevalue.UnmarshalMap(result.Item, &ds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, ds.CreatedAt)

	return &Snapshot{
		AggregateID:   ds.AggregateID,
		AggregateType: ds.AggregateType,
		Version:       ds.Version,
		State:         json.RawMessage(ds.State),
		CreatedAt:     createdAt,
	}, nil
}
