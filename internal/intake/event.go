package intake

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"
)

const (
	sourceS3  = "aws:s3"
	sourceSQS = "aws:sqs"
)

// eventRecord is a union of the record shapes the handler can be invoked with.
type eventRecord struct {
	EventSource string          `json:"eventSource"`
	MessageID   string          `json:"messageId"`
	S3          json.RawMessage `json:"s3"`
	Body        *string         `json:"body"`
}

// Delivery is one object reference together with the queue message that
// carried it. MessageID is empty for notifications delivered directly.
type Delivery struct {
	Ref       ObjectRef
	MessageID string
}

// RejectedRecord is a record that could not be decoded.
type RejectedRecord struct {
	Index     int
	MessageID string
	Err       error
}

// Event is a decoded Lambda payload. One bad record never hides its siblings:
// it is listed in Rejected and decoding carries on.
type Event struct {
	Deliveries []Delivery
	Rejected   []RejectedRecord
}

// Refs returns the object references in delivery order.
func (e Event) Refs() []ObjectRef {
	refs := make([]ObjectRef, len(e.Deliveries))
	for i, d := range e.Deliveries {
		refs[i] = d.Ref
	}
	return refs
}

// Failures lists the queue messages that must be redelivered, given the
// results of handling e.Refs() in order: messages that could not be decoded
// and messages carrying an entry that failed. Each message is listed once.
// Unqueued counts failures that arrived without a message and so can only be
// retried by failing the whole invocation.
func (e Event) Failures(results []EntryResult) (failures []events.SQSBatchItemFailure, unqueued int) {
	seen := make(map[string]bool)
	add := func(id string) {
		if id == "" {
			unqueued++
			return
		}
		if !seen[id] {
			seen[id] = true
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: id})
		}
	}

	for _, r := range e.Rejected {
		add(r.MessageID)
	}
	for i, res := range results {
		if res.Status == StatusFailed && i < len(e.Deliveries) {
			add(e.Deliveries[i].MessageID)
		}
	}
	return failures, unqueued
}

// DecodeEvent turns a Lambda payload into deliveries. It accepts S3
// notifications delivered directly, SQS messages whose body is an S3
// notification, and SQS messages carrying an SNS envelope around one. S3 test
// events are dropped. Object keys are URL-decoded.
//
// An error is returned only when the payload is not a record envelope at all.
func DecodeEvent(payload []byte) (Event, error) {
	var envelope struct {
		Records []json.RawMessage `json:"Records"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}

	var ev Event
	reject := func(i int, messageID string, err error) {
		log.Error().Err(err).Int("record", i).Str("messageId", messageID).Msg("Skipping undecodable record")
		ev.Rejected = append(ev.Rejected, RejectedRecord{Index: i, MessageID: messageID, Err: err})
	}

	for i, raw := range envelope.Records {
		var rec eventRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			reject(i, "", fmt.Errorf("decode record %d: %w", i, err))
			continue
		}

		switch {
		case rec.EventSource == sourceSQS || rec.Body != nil:
			if rec.Body == nil {
				continue
			}
			refs, err := decodeMessageBody(*rec.Body)
			if err != nil {
				reject(i, rec.MessageID, fmt.Errorf("decode record %d body: %w", i, err))
				continue
			}
			for _, ref := range refs {
				ev.Deliveries = append(ev.Deliveries, Delivery{Ref: ref, MessageID: rec.MessageID})
			}
		case rec.EventSource == sourceS3 || rec.S3 != nil:
			var s3rec events.S3EventRecord
			if err := json.Unmarshal(raw, &s3rec); err != nil {
				reject(i, "", fmt.Errorf("decode record %d: %w", i, err))
				continue
			}
			ev.Deliveries = append(ev.Deliveries, Delivery{Ref: refFromS3(s3rec)})
		default:
			log.Warn().Int("record", i).Str("eventSource", rec.EventSource).Msg("Ignoring record from unknown source")
		}
	}
	return ev, nil
}

// decodeMessageBody unwraps an SQS body: either an S3 notification, an SNS
// notification whose Message is an S3 notification, or an S3 test event.
func decodeMessageBody(body string) ([]ObjectRef, error) {
	var probe struct {
		Type    string `json:"Type"`
		Message string `json:"Message"`
		Event   string `json:"Event"`
	}
	if err := json.Unmarshal([]byte(body), &probe); err != nil {
		return nil, err
	}
	if probe.Event == "s3:TestEvent" {
		log.Debug().Msg("Ignoring S3 test event")
		return nil, nil
	}
	if probe.Type == "Notification" {
		var sns events.SNSEntity
		if err := json.Unmarshal([]byte(body), &sns); err != nil {
			return nil, err
		}
		return decodeMessageBody(sns.Message)
	}

	var s3event events.S3Event
	if err := json.Unmarshal([]byte(body), &s3event); err != nil {
		return nil, err
	}
	refs := make([]ObjectRef, 0, len(s3event.Records))
	for _, r := range s3event.Records {
		refs = append(refs, refFromS3(r))
	}
	return refs, nil
}

// refFromS3 builds a reference from a notification record. Notification keys
// are form-encoded ("+" for space); an undecodable key is used as-is.
func refFromS3(r events.S3EventRecord) ObjectRef {
	key := r.S3.Object.Key
	if decoded, err := url.QueryUnescape(key); err == nil {
		key = decoded
	} else {
		log.Warn().Err(err).Str("key", key).Msg("Object key is not URL-encoded, using raw key")
	}
	return ObjectRef{Bucket: r.S3.Bucket.Name, Key: key}
}
