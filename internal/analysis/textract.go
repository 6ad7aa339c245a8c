package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	txtypes "github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/rs/zerolog/log"

	"github.com/fpang/doc-intake/internal/intake"
)

// TextractAPI is the subset of the Textract client used here.
type TextractAPI interface {
	StartDocumentTextDetection(ctx context.Context, params *textract.StartDocumentTextDetectionInput, optFns ...func(*textract.Options)) (*textract.StartDocumentTextDetectionOutput, error)
	GetDocumentTextDetection(ctx context.Context, params *textract.GetDocumentTextDetectionInput, optFns ...func(*textract.Options)) (*textract.GetDocumentTextDetectionOutput, error)
}

// Textract implements intake.TextExtractor.
type Textract struct {
	client TextractAPI
}

// NewTextract wraps a Textract client.
func NewTextract(client TextractAPI) *Textract {
	return &Textract{client: client}
}

// StartTextDetection submits an asynchronous text detection job for an object
// already in S3.
func (t *Textract) StartTextDetection(ctx context.Context, ref intake.ObjectRef) (string, error) {
	out, err := t.client.StartDocumentTextDetection(ctx, &textract.StartDocumentTextDetectionInput{
		DocumentLocation: &txtypes.DocumentLocation{
			S3Object: &txtypes.S3Object{
				Bucket: aws.String(ref.Bucket),
				Name:   aws.String(ref.Key),
			},
		},
	})
	if err != nil {
		return "", classifyTextractError(err)
	}
	return aws.ToString(out.JobId), nil
}

// GetTextDetection polls the job once. On success it follows NextToken so the
// LINE blocks of every page are returned in document order.
func (t *Textract) GetTextDetection(ctx context.Context, jobID string) (intake.TextJob, error) {
	input := &textract.GetDocumentTextDetectionInput{JobId: aws.String(jobID)}
	var job intake.TextJob
	pages := 0

	for {
		out, err := t.client.GetDocumentTextDetection(ctx, input)
		if err != nil {
			return intake.TextJob{}, fmt.Errorf("textract GetDocumentTextDetection %s: %w", jobID, err)
		}
		pages++

		switch out.JobStatus {
		case txtypes.JobStatusSucceeded, txtypes.JobStatusPartialSuccess:
			job.Status = intake.JobSucceeded
		case txtypes.JobStatusFailed:
			return intake.TextJob{Status: intake.JobFailed, Message: aws.ToString(out.StatusMessage)}, nil
		default:
			return intake.TextJob{Status: intake.JobRunning}, nil
		}

		for _, b := range out.Blocks {
			if b.BlockType == txtypes.BlockTypeLine && b.Text != nil {
				job.Lines = append(job.Lines, *b.Text)
			}
		}
		if out.NextToken == nil || *out.NextToken == "" {
			log.Debug().Str("jobId", jobID).Int("pages", pages).Int("lines", len(job.Lines)).Msg("Textract results collected")
			return job, nil
		}
		input.NextToken = out.NextToken
	}
}

// classifyTextractError maps submission rejections to the intake sentinels.
func classifyTextractError(err error) error {
	var unsupported *txtypes.UnsupportedDocumentException
	if errors.As(err, &unsupported) {
		return fmt.Errorf("%s: %w", unsupported.ErrorMessage(), intake.ErrUnsupportedDocument)
	}
	var invalidObject *txtypes.InvalidS3ObjectException
	if errors.As(err, &invalidObject) {
		return fmt.Errorf("%s: %w", invalidObject.ErrorMessage(), intake.ErrInvalidDocumentReference)
	}
	return fmt.Errorf("textract StartDocumentTextDetection: %w", err)
}
