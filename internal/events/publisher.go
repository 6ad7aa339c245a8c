// Package events announces routed documents on an EventBridge bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog/log"

	"github.com/fpang/doc-intake/internal/intake"
)

const (
	// Source is the EventBridge source of every event published here.
	Source = "doc-intake"
	// DetailTypeDocumentRouted is emitted once per file moved out of landing.
	DetailTypeDocumentRouted = "DocumentRouted"
)

// EventBridgeAPI is the subset of the EventBridge client used by Publisher.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// DocumentRouted is the event detail.
type DocumentRouted struct {
	RunID       string           `json:"runId"`
	Bucket      string           `json:"bucket"`
	Key         string           `json:"key"`
	Decision    intake.Decision  `json:"decision"`
	Destination intake.ObjectRef `json:"destination"`
	RoutedAt    time.Time        `json:"routedAt"`
}

// Publisher implements intake.RunNotifier.
type Publisher struct {
	client  EventBridgeAPI
	busName string
}

// NewPublisher creates a Publisher for the named bus. An empty name uses the
// account's default bus.
func NewPublisher(client EventBridgeAPI, busName string) *Publisher {
	return &Publisher{client: client, busName: busName}
}

// Notify emits DocumentRouted for a routed run.
func (p *Publisher) Notify(ctx context.Context, run *intake.Run) error {
	event := DocumentRouted{
		RunID:       run.ID,
		Bucket:      run.Source.Bucket,
		Key:         run.Source.Key,
		Decision:    run.Decision,
		Destination: run.Destination,
		RoutedAt:    run.StartedAt.Add(run.Duration).UTC(),
	}
	detail, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal DocumentRouted: %w", err)
	}

	entry := eventbridgetypes.PutEventsRequestEntry{
		Source:     aws.String(Source),
		DetailType: aws.String(DetailTypeDocumentRouted),
		Detail:     aws.String(string(detail)),
		Resources:  []string{"arn:aws:s3:::" + run.Source.Bucket},
	}
	if p.busName != "" {
		entry.EventBusName = aws.String(p.busName)
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []eventbridgetypes.PutEventsRequestEntry{entry},
	})
	if err != nil {
		log.Error().Err(err).Str("runId", run.ID).Str("key", run.Source.Key).Msg("EventBridge PutEvents failed")
		return fmt.Errorf("PutEvents: %w", err)
	}

	if result.FailedEntryCount > 0 {
		for i, e := range result.Entries {
			if e.ErrorCode != nil || e.ErrorMessage != nil {
				log.Error().
					Int("index", i).
					Str("errorCode", aws.ToString(e.ErrorCode)).
					Str("errorMessage", aws.ToString(e.ErrorMessage)).
					Str("runId", run.ID).
					Msg("EventBridge PutEvents entry failed")
				return fmt.Errorf("PutEvents entry %d failed: %s - %s", i, aws.ToString(e.ErrorCode), aws.ToString(e.ErrorMessage))
			}
		}
	}

	log.Debug().Str("runId", run.ID).Str("decision", string(run.Decision)).Msg("DocumentRouted emitted to EventBridge")
	return nil
}
