// Package main provides the Lambda entry point for document intake.
//
// The function is triggered by S3 ObjectCreated notifications on the landing
// bucket, delivered directly or through SQS (optionally fanned out via SNS).
// For each object it:
//
//  1. Rejects unsupported formats (anything but .jpg, .jpeg, .png)
//  2. Detects image labels; a confident passport goes straight to valid/passport
//  3. Extracts text from other document-like images
//  4. Detects sensitive identifiers in the text
//  5. Moves the file to the valid or invalid archive
//
// Under an SQS trigger, messages whose files were left in the landing bucket
// are returned as batch item failures (ReportBatchItemFailures must be enabled
// on the event source mapping). Direct S3 invocations fail instead, so Lambda
// retries them.
//
// Audit records and routing events are written when INTAKE_RECORDS_TABLE and
// INTAKE_EVENT_BUS are set.
//
// Memory: 512 MB
// Timeout: 10 minutes (text extraction is polled for up to INTAKE_POLL_TIMEOUT)
package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/fpang/doc-intake/internal/intake"
	"github.com/fpang/doc-intake/internal/lambdaboot"
	"github.com/fpang/doc-intake/internal/logging"
)

var coldStart = true

var classifier *intake.Classifier

func init() {
	initStart := time.Now()
	logging.Init()

	awsClients := lambdaboot.InitAWS()
	s := lambdaboot.LoadSettings(awsClients.SSM)
	pipeline := lambdaboot.InitPipeline(awsClients.Config, s)
	classifier = pipeline.Classifier

	lambdaboot.StartupLog("intake-lambda", initStart, pipeline).
		CommitHash(commitHash).
		BuildTime(buildTime).
		Log()
}

func main() {
	lambda.Start(handler)
}

func handler(ctx context.Context, payload json.RawMessage) (intake.InvocationResponse, error) {
	if coldStart {
		coldStart = false
		log.Info().Str("function", "intake-lambda").Msg("Cold start, first invocation")
	}

	ev, err := intake.DecodeEvent(payload)
	if err != nil {
		// Not retryable: the same payload would fail again.
		log.Error().Err(err).Int("payloadBytes", len(payload)).Msg("Failed to decode event")
		return intake.InvocationResponse{Response: intake.Response{ErrorMessage: "Unrecognised event payload"}}, nil
	}
	return classifier.HandleEvent(ctx, ev)
}
