package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"

	"github.com/fpang/doc-intake/internal/intake"
)

type fakeEventBridge struct {
	input *eventbridge.PutEventsInput
	out   *eventbridge.PutEventsOutput
	err   error
}

func (f *fakeEventBridge) PutEvents(_ context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	if f.out != nil {
		return f.out, nil
	}
	return &eventbridge.PutEventsOutput{}, nil
}

func routedRun() *intake.Run {
	return &intake.Run{
		ID:          "run-7",
		Source:      intake.ObjectRef{Bucket: "landing", Key: "passport.jpg"},
		Decision:    intake.DecisionValidPassport,
		Destination: intake.ObjectRef{Bucket: "valid", Key: "valid-docs-folder/passport/passport.jpg"},
		Status:      intake.StatusRouted,
		StartedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Duration:    2 * time.Second,
	}
}

func TestNotify(t *testing.T) {
	fake := &fakeEventBridge{}
	if err := NewPublisher(fake, "intake-bus").Notify(context.Background(), routedRun()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fake.input.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(fake.input.Entries))
	}
	entry := fake.input.Entries[0]
	if aws.ToString(entry.Source) != Source || aws.ToString(entry.DetailType) != DetailTypeDocumentRouted {
		t.Errorf("unexpected source/detail type %s/%s", aws.ToString(entry.Source), aws.ToString(entry.DetailType))
	}
	if aws.ToString(entry.EventBusName) != "intake-bus" {
		t.Errorf("unexpected bus %q", aws.ToString(entry.EventBusName))
	}

	var detail DocumentRouted
	if err := json.Unmarshal([]byte(aws.ToString(entry.Detail)), &detail); err != nil {
		t.Fatalf("detail is not JSON: %v", err)
	}
	if detail.RunID != "run-7" || detail.Decision != intake.DecisionValidPassport || detail.Destination.Key != "valid-docs-folder/passport/passport.jpg" {
		t.Errorf("unexpected detail %+v", detail)
	}
	if !detail.RoutedAt.Equal(time.Date(2026, 1, 2, 3, 4, 7, 0, time.UTC)) {
		t.Errorf("unexpected routedAt %v", detail.RoutedAt)
	}
}

func TestNotify_DefaultBus(t *testing.T) {
	fake := &fakeEventBridge{}
	if err := NewPublisher(fake, "").Notify(context.Background(), routedRun()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.input.Entries[0].EventBusName != nil {
		t.Error("expected no bus name for the default bus")
	}
}

func TestNotify_Failures(t *testing.T) {
	t.Run("call error", func(t *testing.T) {
		boom := errors.New("throttled")
		err := NewPublisher(&fakeEventBridge{err: boom}, "bus").Notify(context.Background(), routedRun())
		if !errors.Is(err, boom) {
			t.Errorf("expected wrapped error, got %v", err)
		}
	})

	t.Run("failed entry", func(t *testing.T) {
		fake := &fakeEventBridge{out: &eventbridge.PutEventsOutput{
			FailedEntryCount: 1,
			Entries: []eventbridgetypes.PutEventsResultEntry{
				{ErrorCode: aws.String("InternalFailure"), ErrorMessage: aws.String("try again")},
			},
		}}
		if err := NewPublisher(fake, "bus").Notify(context.Background(), routedRun()); err == nil {
			t.Error("expected an error for a failed entry")
		}
	})
}
