package kinesis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/example/localmart/internal/infrastructure/store"
	"go.uber.org/zap"
)

// ErrSkip marks a stream record that carries no new event.
var ErrSkip = errors.New("record carries no new event")

// Decode turns a Kinesis record carrying a DynamoDB stream change of the
// events table into a store.Event. Changes other than INSERT return ErrSkip.
func Decode(record events.KinesisEventRecord) (store.Event, error) {
	var change events.DynamoDBEventRecord
	if err := json.Unmarshal(record.Kinesis.Data, &change); err != nil {
		return store.Event{}, fmt.Errorf("unmarshal stream record: %w", err)
	}
	return DecodeChange(change)
}

// DecodeChange is Decode for records read directly from DynamoDB Streams.
func DecodeChange(change events.DynamoDBEventRecord) (store.Event, error) {
	if change.EventName != string(events.DynamoDBOperationTypeInsert) {
		return store.Event{}, ErrSkip
	}
	return eventFromImage(change.Change.NewImage)
}

// eventFromImage reads the attributes written by DynamoEventStore.
func eventFromImage(image map[string]events.DynamoDBAttributeValue) (store.Event, error) {
	if image == nil {
		return store.Event{}, errors.New("stream record has no new image")
	}

	str := func(name string) string {
		if v, ok := image[name]; ok && v.DataType() == events.DataTypeString {
			return v.String()
		}
		return ""
	}

	event := store.Event{
		ID:            str("id"),
		AggregateID:   str("aggregate_id"),
		AggregateType: str("aggregate_type"),
		EventType:     str("event_type"),
	}
	if event.ID == "" || event.AggregateID == "" || event.EventType == "" {
		return store.Event{}, fmt.Errorf("missing required attributes: id=%q aggregate_id=%q event_type=%q",
			event.ID, event.AggregateID, event.EventType)
	}

	if data := str("data"); data != "" {
		if !json.Valid([]byte(data)) {
			return store.Event{}, fmt.Errorf("event %s: data is not valid JSON", event.ID)
		}
		event.Data = json.RawMessage(data)
	}
	if created := str("created_at"); created != "" {
		t, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return store.Event{}, fmt.Errorf("event %s: parse created_at: %w", event.ID, err)
		}
		event.Timestamp = t
	}
	v, ok := image["version"]
	if !ok || v.DataType() != events.DataTypeNumber {
		return store.Event{}, fmt.Errorf("event %s: missing version", event.ID)
	}
	version, err := v.Integer()
	if err != nil {
		return store.Event{}, fmt.Errorf("event %s: parse version: %w", event.ID, err)
	}
	event.Version = int(version)

	return event, nil
}

// Process hands the batch's events to fn in stream order. Processing stops
// at the first failure and that record is reported, so Lambda retries the
// batch from it and per-aggregate order is kept.
func Process(ctx context.Context, batch events.KinesisEvent, fn func(context.Context, store.Event) error, logger *zap.Logger) events.KinesisEventResponse {
	var resp events.KinesisEventResponse
	processed := 0

	for _, record := range batch.Records {
		event, err := Decode(record)
		if errors.Is(err, ErrSkip) {
			continue
		}
		if err == nil {
			err = fn(ctx, event)
		}
		if err != nil {
			logger.Error("stream record failed",
				zap.String("record_id", record.EventID),
				zap.String("sequence_number", record.Kinesis.SequenceNumber),
				zap.String("event_id", event.ID),
				zap.String("event_type", event.EventType),
				zap.Error(err),
			)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.KinesisBatchItemFailure{
				ItemIdentifier: record.Kinesis.SequenceNumber,
			})
			break
		}
		processed++
	}

	logger.Info("stream batch processed",
		zap.Int("records", len(batch.Records)),
		zap.Int("processed", processed),
		zap.Int("failed", len(resp.BatchItemFailures)),
	)
	return resp
}
