// Package store persists classification runs to DynamoDB so operators can see
// why a document ended up where it did.
package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/fpang/doc-intake/internal/intake"
)

// RecordTTL is how long audit records are kept before DynamoDB expires them.
const RecordTTL = 30 * 24 * time.Hour

// Shared codecs. EncodeAll and DecodeAll are safe for concurrent use.
var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	decoder, _ = zstd.NewReader(nil)
)

// DynamoAPI is the subset of the DynamoDB client used by RecordStore.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// AuditRecord is one classification run as stored in the records table.
type AuditRecord struct {
	Bucket        string         `json:"bucket" dynamodbav:"bucket"`
	Key           string         `json:"key" dynamodbav:"key"`
	RunID         string         `json:"runId" dynamodbav:"runId"`
	StartedAt     time.Time      `json:"startedAt" dynamodbav:"startedAt"`
	Status        string         `json:"status" dynamodbav:"status"`
	Stage         string         `json:"stage" dynamodbav:"stage"`
	Decision      string         `json:"decision,omitempty" dynamodbav:"decision,omitempty"`
	Destination   string         `json:"destination,omitempty" dynamodbav:"destination,omitempty"`
	Labels        []intake.Label `json:"labels,omitempty" dynamodbav:"labels,omitempty"`
	Mode          string         `json:"mode,omitempty" dynamodbav:"mode,omitempty"`
	MatchedEntity string         `json:"matchedEntity,omitempty" dynamodbav:"matchedEntity,omitempty"`
	Error         string         `json:"error,omitempty" dynamodbav:"error,omitempty"`
	DurationMs    int64          `json:"durationMs" dynamodbav:"durationMs"`
	TextBytes     int            `json:"textBytes,omitempty" dynamodbav:"textBytes,omitempty"`
	TextZstd      []byte         `json:"-" dynamodbav:"textZstd,omitempty"`
	Text          string         `json:"text,omitempty" dynamodbav:"-"` // Decompressed from TextZstd on read
}

// RecordStore writes and reads audit records (implements intake.RunRecorder).
type RecordStore struct {
	client    DynamoAPI
	tableName string
	now       func() time.Time
}

// NewRecordStore creates a RecordStore for the given table.
func NewRecordStore(client DynamoAPI, tableName string) *RecordStore {
	return &RecordStore{
		client:    client,
		tableName: tableName,
		now:       time.Now,
	}
}

// recordPK returns the partition key: DOC#{bucket}/{key}
func recordPK(bucket, key string) string {
	return "DOC#" + bucket + "/" + key
}

// recordSK returns the sort key: RUN#{RFC3339 start}#{runId}
func recordSK(started time.Time, runID string) string {
	return "RUN#" + started.UTC().Format(time.RFC3339) + "#" + runID
}

// Record writes one item for a finished run.
func (s *RecordStore) Record(ctx context.Context, run *intake.Run) error {
	rec := newAuditRecord(run)
	pk := recordPK(rec.Bucket, rec.Key)
	sk := recordSK(run.StartedAt, run.ID)

	start := time.Now()
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: sk}
	item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().Add(RecordTTL).Unix(), 10)}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	duration := time.Since(start)
	if err != nil {
		return fmt.Errorf("PutItem audit record PK=%s SK=%s: %w", pk, sk, err)
	}
	log.Debug().Str("pk", pk).Str("sk", sk).Str("status", rec.Status).Dur("duration", duration).Msg("Audit record persisted")
	return nil
}

// Records returns every stored run for one document, newest first.
func (s *RecordStore) Records(ctx context.Context, bucket, key string) ([]AuditRecord, error) {
	pk := recordPK(bucket, key)

	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :run)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":  &types.AttributeValueMemberS{Value: pk},
			":run": &types.AttributeValueMemberS{Value: "RUN#"},
		},
		ScanIndexForward: aws.Bool(false),
	}

	var allItems []map[string]types.AttributeValue
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("Query audit records PK=%s: %w", pk, err)
		}
		allItems = append(allItems, result.Items...)
		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	records := make([]AuditRecord, 0, len(allItems))
	for _, item := range allItems {
		var rec AuditRecord
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			log.Warn().Err(err).Str("pk", pk).Msg("Failed to unmarshal audit record, skipping")
			continue
		}
		if len(rec.TextZstd) > 0 {
			text, err := decoder.DecodeAll(rec.TextZstd, nil)
			if err != nil {
				log.Warn().Err(err).Str("pk", pk).Str("runId", rec.RunID).Msg("Failed to decompress extracted text")
			} else {
				rec.Text = string(text)
			}
			rec.TextZstd = nil
		}
		records = append(records, rec)
	}

	log.Debug().Str("pk", pk).Int("recordCount", len(records)).Msg("Audit records loaded")
	return records, nil
}

func newAuditRecord(run *intake.Run) AuditRecord {
	rec := AuditRecord{
		Bucket:        run.Source.Bucket,
		Key:           run.Source.Key,
		RunID:         run.ID,
		StartedAt:     run.StartedAt.UTC(),
		Status:        string(run.Status),
		Stage:         string(run.Stage),
		Decision:      string(run.Decision),
		Labels:        run.Labels,
		Mode:          string(run.Mode),
		MatchedEntity: run.MatchedEntity,
		DurationMs:    run.Duration.Milliseconds(),
	}
	if run.Destination.Key != "" {
		rec.Destination = run.Destination.String()
	}
	if run.Err != nil {
		rec.Error = run.Err.Error()
	}
	if text := strings.TrimSpace(run.Text); text != "" {
		rec.TextBytes = len(text)
		rec.TextZstd = encoder.EncodeAll([]byte(text), nil)
	}
	return rec
}
