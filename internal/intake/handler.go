package intake

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Handle processes every entry of a batch. Entries are independent: a failure
// in one never stops the others. Up to Config.BatchConcurrency entries run at
// once (one by one by default); results keep batch order either way. An empty
// batch is reported through Response.ErrorMessage without touching storage.
func (c *Classifier) Handle(ctx context.Context, batch []ObjectRef) Response {
	if len(batch) == 0 {
		log.Error().Msg("No records found in the event")
		return Response{ErrorMessage: "No records found in the event"}
	}

	runs := make([]*Run, len(batch))
	var g errgroup.Group
	g.SetLimit(max(c.cfg.BatchConcurrency, 1))
	for i, ref := range batch {
		g.Go(func() error {
			runs[i] = c.Process(ctx, ref)
			return nil
		})
	}
	g.Wait()

	resp := Response{Results: make([]EntryResult, 0, len(batch))}
	counts := make(map[EntryStatus]int)
	for _, run := range runs {
		counts[run.Status]++
		if resp.ErrorMessage == "" {
			resp.ErrorMessage = rejectionMessage(run.Err)
		}
		resp.Results = append(resp.Results, run.Result())
	}

	log.Info().
		Int("entries", len(batch)).
		Int("routed", counts[StatusRouted]).
		Int("skipped", counts[StatusSkipped]).
		Int("failed", counts[StatusFailed]).
		Msg("Batch complete")
	return resp
}

// InvocationResponse is the Lambda reply: the batch report plus the queue
// messages to redeliver.
type InvocationResponse struct {
	Response
	events.SQSEventResponse
}

// HandleEvent handles a decoded payload. Queue messages that could not be
// decoded, or that carried an entry left in the landing area, are returned as
// batch item failures so the queue redelivers only those. Failures that came
// without a queue message fail the invocation instead.
func (c *Classifier) HandleEvent(ctx context.Context, ev Event) (InvocationResponse, error) {
	resp := c.Handle(ctx, ev.Refs())
	failures, unqueued := ev.Failures(resp.Results)

	out := InvocationResponse{
		Response:         resp,
		SQSEventResponse: events.SQSEventResponse{BatchItemFailures: failures},
	}
	if len(failures) > 0 {
		log.Warn().Int("messages", len(failures)).Msg("Reporting messages for redelivery")
	}
	if unqueued > 0 {
		return out, fmt.Errorf("%d entries failed and must be retried", unqueued)
	}
	return out, nil
}
