package analysis

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	comptypes "github.com/aws/aws-sdk-go-v2/service/comprehend/types"

	"github.com/fpang/doc-intake/internal/intake"
)

// DefaultLanguageCode is the language passed to Comprehend.
const DefaultLanguageCode = "en"

// ComprehendAPI is the subset of the Comprehend client used here.
type ComprehendAPI interface {
	ContainsPiiEntities(ctx context.Context, params *comprehend.ContainsPiiEntitiesInput, optFns ...func(*comprehend.Options)) (*comprehend.ContainsPiiEntitiesOutput, error)
	DetectPiiEntities(ctx context.Context, params *comprehend.DetectPiiEntitiesInput, optFns ...func(*comprehend.Options)) (*comprehend.DetectPiiEntitiesOutput, error)
}

// Comprehend implements intake.EntityDetector.
type Comprehend struct {
	client   ComprehendAPI
	language comptypes.LanguageCode
}

// NewComprehend wraps a Comprehend client. An empty language uses DefaultLanguageCode.
func NewComprehend(client ComprehendAPI, language string) *Comprehend {
	if language == "" {
		language = DefaultLanguageCode
	}
	return &Comprehend{client: client, language: comptypes.LanguageCode(language)}
}

// ContainsEntities returns the PII categories present in text with their scores.
func (c *Comprehend) ContainsEntities(ctx context.Context, text string) ([]intake.Entity, error) {
	out, err := c.client.ContainsPiiEntities(ctx, &comprehend.ContainsPiiEntitiesInput{
		Text:         aws.String(text),
		LanguageCode: c.language,
	})
	if err != nil {
		return nil, fmt.Errorf("comprehend ContainsPiiEntities: %w", err)
	}

	entities := make([]intake.Entity, 0, len(out.Labels))
	for _, l := range out.Labels {
		entities = append(entities, intake.Entity{
			Kind:  intake.KindCategory,
			Name:  string(l.Name),
			Score: float64(aws.ToFloat32(l.Score)),
		})
	}
	return entities, nil
}

// DetectEntities returns each PII entity with its type and character offsets.
func (c *Comprehend) DetectEntities(ctx context.Context, text string) ([]intake.Entity, error) {
	out, err := c.client.DetectPiiEntities(ctx, &comprehend.DetectPiiEntitiesInput{
		Text:         aws.String(text),
		LanguageCode: c.language,
	})
	if err != nil {
		return nil, fmt.Errorf("comprehend DetectPiiEntities: %w", err)
	}

	entities := make([]intake.Entity, 0, len(out.Entities))
	for _, e := range out.Entities {
		entities = append(entities, intake.Entity{
			Kind:        intake.KindOffset,
			Name:        string(e.Type),
			Score:       float64(aws.ToFloat32(e.Score)),
			BeginOffset: int(aws.ToInt32(e.BeginOffset)),
			EndOffset:   int(aws.ToInt32(e.EndOffset)),
		})
	}
	return entities, nil
}
