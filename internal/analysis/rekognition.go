// Package analysis adapts the AWS analysis services (Rekognition, Textract,
// Comprehend) to the intake pipeline's LabelDetector, TextExtractor and
// EntityDetector interfaces.
//
// Each adapter depends on a narrow interface over the SDK client so tests can
// substitute a fake without network access.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	rektypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/rs/zerolog/log"

	"github.com/fpang/doc-intake/internal/intake"
)

// RekognitionAPI is the subset of the Rekognition client used here.
type RekognitionAPI interface {
	DetectLabels(ctx context.Context, params *rekognition.DetectLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error)
	GetLabelDetection(ctx context.Context, params *rekognition.GetLabelDetectionInput, optFns ...func(*rekognition.Options)) (*rekognition.GetLabelDetectionOutput, error)
}

// Rekognition implements intake.LabelDetector.
type Rekognition struct {
	client RekognitionAPI
}

// NewRekognition wraps a Rekognition client.
func NewRekognition(client RekognitionAPI) *Rekognition {
	return &Rekognition{client: client}
}

// DetectLabels runs synchronous label detection on raw image bytes. The
// returned job is always SUCCEEDED.
func (r *Rekognition) DetectLabels(ctx context.Context, image []byte) (intake.LabelJob, error) {
	start := time.Now()
	out, err := r.client.DetectLabels(ctx, &rekognition.DetectLabelsInput{
		Image: &rektypes.Image{Bytes: image},
	})
	if err != nil {
		return intake.LabelJob{}, fmt.Errorf("rekognition DetectLabels: %w", err)
	}

	labels := make([]intake.Label, 0, len(out.Labels))
	for _, l := range out.Labels {
		labels = append(labels, convertLabel(l))
	}
	log.Debug().
		Int("imageBytes", len(image)).
		Int("labels", len(labels)).
		Dur("duration", time.Since(start)).
		Msg("Rekognition DetectLabels complete")
	return intake.LabelJob{Status: intake.JobSucceeded, Labels: labels}, nil
}

// GetLabelDetection polls an asynchronous label detection job once. When the
// job has succeeded every result page is collected.
func (r *Rekognition) GetLabelDetection(ctx context.Context, jobID string) (intake.LabelJob, error) {
	input := &rekognition.GetLabelDetectionInput{JobId: aws.String(jobID)}
	job := intake.LabelJob{JobID: jobID}

	for {
		out, err := r.client.GetLabelDetection(ctx, input)
		if err != nil {
			return intake.LabelJob{}, fmt.Errorf("rekognition GetLabelDetection %s: %w", jobID, err)
		}

		switch out.JobStatus {
		case rektypes.VideoJobStatusSucceeded:
			job.Status = intake.JobSucceeded
		case rektypes.VideoJobStatusFailed:
			job.Status = intake.JobFailed
			log.Warn().Str("jobId", jobID).Str("statusMessage", aws.ToString(out.StatusMessage)).Msg("Rekognition label job failed")
			return job, nil
		default:
			job.Status = intake.JobRunning
			return job, nil
		}

		for _, d := range out.Labels {
			if d.Label != nil {
				job.Labels = append(job.Labels, convertLabel(*d.Label))
			}
		}
		if out.NextToken == nil || *out.NextToken == "" {
			return job, nil
		}
		input.NextToken = out.NextToken
	}
}

func convertLabel(l rektypes.Label) intake.Label {
	return intake.Label{
		Name:       aws.ToString(l.Name),
		Confidence: float64(aws.ToFloat32(l.Confidence)),
	}
}
