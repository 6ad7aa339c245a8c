package intake

import (
	"encoding/json"
	"testing"
)

const s3Notification = `{
  "Records": [
    {
      "eventVersion": "2.1",
      "eventSource": "aws:s3",
      "awsRegion": "ap-south-1",
      "eventName": "ObjectCreated:Put",
      "s3": {
        "bucket": {"name": "docs-landing-bucket", "arn": "arn:aws:s3:::docs-landing-bucket"},
        "object": {"key": "uploads/my+licence%281%29.jpg", "size": 2048}
      }
    },
    {
      "eventSource": "aws:s3",
      "s3": {
        "bucket": {"name": "docs-landing-bucket"},
        "object": {"key": "scan1.png"}
      }
    }
  ]
}`

func TestDecodeEvent_S3Notification(t *testing.T) {
	ev, err := DecodeEvent([]byte(s3Notification))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	batch := ev.Refs()
	want := []ObjectRef{
		{Bucket: "docs-landing-bucket", Key: "uploads/my licence(1).jpg"},
		{Bucket: "docs-landing-bucket", Key: "scan1.png"},
	}
	if len(batch) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(batch))
	}
	for i := range want {
		if batch[i] != want[i] {
			t.Errorf("entry %d: expected %v, got %v", i, want[i], batch[i])
		}
		if ev.Deliveries[i].MessageID != "" {
			t.Errorf("entry %d: direct notification should carry no message ID", i)
		}
	}
}

func TestDecodeEvent_SQSWrapped(t *testing.T) {
	snsEnvelope, _ := json.Marshal(map[string]string{
		"Type":     "Notification",
		"TopicArn": "arn:aws:sns:ap-south-1:123456789012:intake",
		"Message":  s3Notification,
	})
	testEvent := `{"Service":"Amazon S3","Event":"s3:TestEvent","Bucket":"docs-landing-bucket"}`

	sqs, _ := json.Marshal(map[string]interface{}{
		"Records": []map[string]string{
			{"eventSource": "aws:sqs", "messageId": "1", "body": s3Notification},
			{"eventSource": "aws:sqs", "messageId": "2", "body": string(snsEnvelope)},
			{"eventSource": "aws:sqs", "messageId": "3", "body": testEvent},
		},
	})

	ev, err := DecodeEvent(sqs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ev.Deliveries) != 4 {
		t.Fatalf("expected 4 entries (2 direct + 2 via SNS), got %d: %v", len(ev.Deliveries), ev.Deliveries)
	}
	if ev.Deliveries[2].Ref.Key != "uploads/my licence(1).jpg" {
		t.Errorf("expected decoded key from SNS envelope, got %q", ev.Deliveries[2].Ref.Key)
	}
	wantIDs := []string{"1", "1", "2", "2"}
	for i, id := range wantIDs {
		if ev.Deliveries[i].MessageID != id {
			t.Errorf("entry %d: expected message %s, got %q", i, id, ev.Deliveries[i].MessageID)
		}
	}
	if len(ev.Rejected) != 0 {
		t.Errorf("expected no rejected records, got %v", ev.Rejected)
	}
}

func TestDecodeEvent_BadBodyKeepsSiblings(t *testing.T) {
	good := `{"Records":[{"eventSource":"aws:s3","s3":{"bucket":{"name":"docs-landing-bucket"},"object":{"key":"scan1.png"}}}]}`
	sqs, _ := json.Marshal(map[string]interface{}{
		"Records": []map[string]string{
			{"eventSource": "aws:sqs", "messageId": "m-good", "body": good},
			{"eventSource": "aws:sqs", "messageId": "m-bad", "body": "not json"},
		},
	})

	ev, err := DecodeEvent(sqs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ev.Deliveries) != 1 || ev.Deliveries[0].Ref.Key != "scan1.png" {
		t.Fatalf("expected the valid file to be kept, got %v", ev.Deliveries)
	}
	if len(ev.Rejected) != 1 || ev.Rejected[0].MessageID != "m-bad" || ev.Rejected[0].Index != 1 {
		t.Fatalf("expected m-bad to be rejected, got %v", ev.Rejected)
	}

	failures, unqueued := ev.Failures([]EntryResult{{Key: "scan1.png", Status: StatusRouted}})
	if unqueued != 0 {
		t.Errorf("expected no unqueued failures, got %d", unqueued)
	}
	if len(failures) != 1 || failures[0].ItemIdentifier != "m-bad" {
		t.Errorf("expected only m-bad to be redelivered, got %v", failures)
	}
}

func TestDecodeEvent_BadDirectRecord(t *testing.T) {
	payload := `{"Records":["oops",{"eventSource":"aws:s3","s3":{"bucket":{"name":"b"},"object":{"key":"a.png"}}}]}`

	ev, err := DecodeEvent([]byte(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ev.Deliveries) != 1 || ev.Deliveries[0].Ref.Key != "a.png" {
		t.Errorf("expected a.png to be kept, got %v", ev.Deliveries)
	}
	if _, unqueued := ev.Failures(nil); unqueued != 1 {
		t.Errorf("expected one unqueued failure, got %d", unqueued)
	}
}

func TestEvent_FailuresPerMessage(t *testing.T) {
	ev := Event{Deliveries: []Delivery{
		{Ref: ref("a.png"), MessageID: "m1"},
		{Ref: ref("b.png"), MessageID: "m1"},
		{Ref: ref("c.png"), MessageID: "m2"},
		{Ref: ref("d.png"), MessageID: "m3"},
	}}
	results := []EntryResult{
		{Status: StatusFailed},
		{Status: StatusFailed},
		{Status: StatusSkipped},
		{Status: StatusFailed},
	}

	failures, unqueued := ev.Failures(results)

	if unqueued != 0 {
		t.Errorf("expected no unqueued failures, got %d", unqueued)
	}
	want := []string{"m1", "m3"}
	if len(failures) != len(want) {
		t.Fatalf("expected %v, got %v", want, failures)
	}
	for i, id := range want {
		if failures[i].ItemIdentifier != id {
			t.Errorf("failure %d: expected %s, got %s", i, id, failures[i].ItemIdentifier)
		}
	}
}

func TestDecodeEvent_EmptyAndMissing(t *testing.T) {
	for _, payload := range []string{`{}`, `{"Records":[]}`} {
		ev, err := DecodeEvent([]byte(payload))
		if err != nil {
			t.Errorf("%s: unexpected error: %v", payload, err)
		}
		if len(ev.Deliveries) != 0 || len(ev.Rejected) != 0 {
			t.Errorf("%s: expected empty event, got %+v", payload, ev)
		}
	}
}

func TestDecodeEvent_MissingKeyIsKept(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"Records":[{"eventSource":"aws:s3","s3":{"bucket":{"name":"b"},"object":{}}}]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ev.Deliveries) != 1 || ev.Deliveries[0].Ref.Key != "" {
		t.Errorf("expected one entry with empty key, got %v", ev.Deliveries)
	}
}

func TestDecodeEvent_Malformed(t *testing.T) {
	if _, err := DecodeEvent([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed payload")
	}
}
