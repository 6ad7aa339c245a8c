package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/doc-intake/internal/metrics"
	"github.com/fpang/doc-intake/internal/poll"
)

// ObjectStore reads landing objects and moves them into the archive.
type ObjectStore interface {
	// Read returns the object bytes, or ErrObjectNotFound.
	Read(ctx context.Context, ref ObjectRef) ([]byte, error)
	// Move copies src to dst and deletes src. It returns ErrObjectNotFound
	// when src no longer exists.
	Move(ctx context.Context, src, dst ObjectRef, decision Decision) error
}

// LabelDetector describes image content.
type LabelDetector interface {
	DetectLabels(ctx context.Context, image []byte) (LabelJob, error)
	GetLabelDetection(ctx context.Context, jobID string) (LabelJob, error)
}

// TextExtractor runs asynchronous optical text extraction on stored documents.
type TextExtractor interface {
	// StartTextDetection submits a job. Submission rejections are reported as
	// ErrUnsupportedDocument or ErrInvalidDocumentReference.
	StartTextDetection(ctx context.Context, ref ObjectRef) (jobID string, err error)
	GetTextDetection(ctx context.Context, jobID string) (TextJob, error)
}

// EntityDetector finds personal identifiers in text.
type EntityDetector interface {
	// ContainsEntities returns KindCategory entities.
	ContainsEntities(ctx context.Context, text string) ([]Entity, error)
	// DetectEntities returns KindOffset entities.
	DetectEntities(ctx context.Context, text string) ([]Entity, error)
}

// RunRecorder persists a finished run for auditing.
type RunRecorder interface {
	Record(ctx context.Context, run *Run) error
}

// RunNotifier announces a routed run to downstream consumers.
type RunNotifier interface {
	Notify(ctx context.Context, run *Run) error
}

// Config holds the classifier tunables.
type Config struct {
	// LandingBucket, when set, restricts processing to that bucket.
	LandingBucket string
	ValidBucket   string
	InvalidBucket string

	MinLabelConfidence float64
	PassportConfidence float64
	// BaselineMinScore filters coarse results when no keyword rule applies.
	BaselineMinScore float64

	EntityScan ScanMode

	// BatchConcurrency bounds how many batch entries are processed at once.
	// Values below 1 mean one at a time.
	BatchConcurrency int
}

// DefaultConfig returns the production thresholds and bucket names.
func DefaultConfig() Config {
	return Config{
		ValidBucket:        "valid-docs-bucket",
		InvalidBucket:      "invalid-docs-bucket",
		MinLabelConfidence: 50,
		PassportConfidence: 90,
		BaselineMinScore:   0.7,
		EntityScan:         ScanFull,
		BatchConcurrency:   1,
	}
}

// Classifier runs the intake pipeline. It holds no per-file state; Process is
// safe for concurrent use when its collaborators are.
type Classifier struct {
	cfg      Config
	store    ObjectStore
	labels   LabelDetector
	text     TextExtractor
	entities EntityDetector
	poller   poll.Poller
	recorder RunRecorder
	notifier RunNotifier
	newID    func() string
	now      func() time.Time
}

// Option customises a Classifier.
type Option func(*Classifier)

// WithPoller sets the schedule used for label and extraction jobs.
func WithPoller(p poll.Poller) Option {
	return func(c *Classifier) { c.poller = p }
}

// WithRecorder stores every finished run.
func WithRecorder(r RunRecorder) Option {
	return func(c *Classifier) { c.recorder = r }
}

// WithNotifier announces every routed run.
func WithNotifier(n RunNotifier) Option {
	return func(c *Classifier) { c.notifier = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) { c.now = now }
}

// NewClassifier wires the pipeline to its collaborators.
func NewClassifier(cfg Config, store ObjectStore, labels LabelDetector, text TextExtractor, entities EntityDetector, opts ...Option) *Classifier {
	c := &Classifier{
		cfg:      cfg,
		store:    store,
		labels:   labels,
		text:     text,
		entities: entities,
		poller:   poll.Default(),
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Process classifies and routes one object. It never panics on service
// failures; the returned run describes what happened.
func (c *Classifier) Process(ctx context.Context, ref ObjectRef) *Run {
	run := &Run{ID: c.newID(), Source: ref, StartedAt: c.now(), Stage: StageInput}
	defer c.finish(ctx, run)

	logger := log.With().Str("runId", run.ID).Str("bucket", ref.Bucket).Str("key", ref.Key).Logger()

	if ref.Key == "" {
		run.Status = StatusFailed
		run.Err = ErrMissingKey
		logger.Error().Msg("Entry has no object key")
		return run
	}
	if c.cfg.LandingBucket != "" && ref.Bucket != c.cfg.LandingBucket {
		run.Status = StatusSkipped
		logger.Warn().Str("landingBucket", c.cfg.LandingBucket).Msg("Skipping object outside the landing bucket")
		return run
	}

	logger.Info().Msg("Classifying file")
	decision, err := c.classify(ctx, run)
	if err != nil {
		run.Err = err
		if errors.Is(err, ErrObjectNotFound) {
			run.Status = StatusSkipped
			logger.Info().Str("stage", string(run.Stage)).Msg("Object already left the landing area")
			return run
		}
		run.Status = StatusFailed
		logger.Error().Err(err).Str("stage", string(run.Stage)).Msg("File left unrouted")
		return run
	}

	c.route(ctx, run, decision)
	return run
}

// classify returns the routing decision for run.Source. Rejections that are
// resolved by routing to INVALID are recorded on run.Err but do not produce
// an error.
func (c *Classifier) classify(ctx context.Context, run *Run) (Decision, error) {
	ref := run.Source

	run.Stage = StageFormat
	if !IsSupportedFormat(ref.Key) {
		log.Info().Str("key", ref.Key).Msg("Unsupported file format")
		return DecisionInvalid, nil
	}

	run.Stage = StageRead
	image, err := c.store.Read(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("read object: %w", err)
	}

	run.Stage = StageLabels
	labels := c.detectLabels(ctx, image)
	run.Labels = labels.Labels
	verdict := ClassifyLabels(labels.Labels, c.cfg.MinLabelConfidence, c.cfg.PassportConfidence)
	log.Info().Str("key", ref.Key).Int("labels", len(labels.Labels)).Str("verdict", verdict.String()).Msg("Labels classified")
	switch verdict {
	case VerdictPassport:
		return DecisionValidPassport, nil
	case VerdictReject:
		return DecisionInvalid, nil
	}

	run.Stage = StageExtraction
	text, err := c.extractText(ctx, ref)
	switch {
	case errors.Is(err, ErrUnsupportedDocument), errors.Is(err, ErrInvalidDocumentReference):
		run.Err = err
		log.Error().Err(err).Str("key", ref.Key).Msg("Text extraction rejected the document")
		return DecisionInvalid, nil
	case errors.Is(err, ErrExtractionFailed):
		run.Err = err
		log.Error().Err(err).Str("key", ref.Key).Msg("Text extraction job failed")
		return DecisionInvalid, nil
	case err != nil:
		return "", err
	}
	run.Text = text

	run.Stage = StageEntities
	run.Mode = SelectMode(text)
	entities := c.detectEntities(ctx, run.Mode, text)
	match, ok := MatchEntities(entities.Entities, c.cfg.EntityScan)
	log.Info().
		Str("key", ref.Key).
		Str("mode", string(run.Mode)).
		Int("entities", len(entities.Entities)).
		Bool("matched", ok).
		Msg("Entities evaluated")
	if !ok {
		return DecisionInvalid, nil
	}
	run.MatchedEntity = match.Name
	return DecisionValidGeneric, nil
}

// route applies the decision with a single move. Move failures are logged and
// swallowed: a partially completed move is not rolled back. A move error is
// added to any rejection already on the run.
func (c *Classifier) route(ctx context.Context, run *Run, decision Decision) {
	run.Decision = decision
	run.Stage = StageRoute
	dst := decision.Destination(c.cfg.ValidBucket, c.cfg.InvalidBucket, run.Source.Key)

	err := c.store.Move(ctx, run.Source, dst, decision)
	switch {
	case errors.Is(err, ErrObjectNotFound):
		run.Status = StatusSkipped
		run.Err = errors.Join(run.Err, err)
		log.Info().Str("key", run.Source.Key).Str("decision", string(decision)).Msg("Object already left the landing area")
	case err != nil:
		run.Status = StatusFailed
		run.Err = errors.Join(run.Err, fmt.Errorf("move to %s: %w", dst, err))
		log.Error().Err(err).Str("key", run.Source.Key).Str("destination", dst.String()).Msg("Failed to move file")
	default:
		run.Status = StatusRouted
		run.Destination = dst
		log.Info().Str("key", run.Source.Key).Str("decision", string(decision)).Str("destination", dst.String()).Msg("File routed")
	}
}

// finish records, announces and meters the run. Failures here never change
// the routing outcome.
func (c *Classifier) finish(ctx context.Context, run *Run) {
	run.Duration = c.now().Sub(run.StartedAt)

	if c.recorder != nil {
		if err := c.recorder.Record(ctx, run); err != nil {
			log.Warn().Err(err).Str("runId", run.ID).Msg("Failed to record run")
		}
	}
	if c.notifier != nil && run.Status == StatusRouted {
		if err := c.notifier.Notify(ctx, run); err != nil {
			log.Warn().Err(err).Str("runId", run.ID).Msg("Failed to publish routing event")
		}
	}

	decision := string(run.Decision)
	if decision == "" {
		decision = "NONE"
	}
	metrics.New(metrics.Namespace).
		Dimension("Operation", "classify").
		Dimension("Decision", decision).
		Metric("ProcessingMs", float64(run.Duration.Milliseconds()), metrics.UnitMilliseconds).
		Count(statusMetric(run.Status)).
		Property("runId", run.ID).
		Property("key", run.Source.Key).
		Property("stage", string(run.Stage)).
		Flush()
}

func statusMetric(s EntryStatus) string {
	switch s {
	case StatusRouted:
		return "FilesRouted"
	case StatusSkipped:
		return "FilesSkipped"
	default:
		return "FilesFailed"
	}
}

// LabelResult is the fail-open outcome of label detection. An empty Labels
// slice is a valid result; Err is kept for logging only.
type LabelResult struct {
	Labels []Label
	Err    error
}

func (c *Classifier) detectLabels(ctx context.Context, image []byte) LabelResult {
	job, err := c.labels.DetectLabels(ctx, image)
	if err != nil {
		log.Error().Err(err).Msg("Label detection failed")
		return LabelResult{Err: err}
	}

	if !job.Status.Terminal() {
		jobID := job.JobID
		err = c.poller.Until(ctx, func(ctx context.Context) (bool, error) {
			next, err := c.labels.GetLabelDetection(ctx, jobID)
			if err != nil {
				return false, err
			}
			job = next
			return job.Status.Terminal(), nil
		})
		if err != nil {
			log.Error().Err(err).Str("jobId", jobID).Msg("Label detection job did not complete")
			return LabelResult{Err: err}
		}
	}

	if job.Status == JobFailed {
		log.Error().Str("jobId", job.JobID).Msg("Label detection job failed")
		return LabelResult{Err: errLabelJobFailed}
	}
	return LabelResult{Labels: job.Labels}
}

func (c *Classifier) extractText(ctx context.Context, ref ObjectRef) (string, error) {
	jobID, err := c.text.StartTextDetection(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("start text detection: %w", err)
	}
	log.Info().Str("key", ref.Key).Str("jobId", jobID).Msg("Text extraction job started")

	var job TextJob
	err = c.poller.Until(ctx, func(ctx context.Context) (bool, error) {
		next, err := c.text.GetTextDetection(ctx, jobID)
		if err != nil {
			return false, err
		}
		job = next
		return job.Status.Terminal(), nil
	})
	if err != nil {
		return "", fmt.Errorf("wait for text detection %s: %w", jobID, err)
	}
	if job.Status == JobFailed {
		return "", fmt.Errorf("job %s: %s: %w", jobID, job.Message, ErrExtractionFailed)
	}

	text := strings.Join(job.Lines, " ")
	log.Debug().Str("key", ref.Key).Int("lines", len(job.Lines)).Int("chars", len(text)).Msg("Text extracted")
	return text, nil
}

// EntityResult is the fail-open outcome of entity detection.
type EntityResult struct {
	Entities []Entity
	Err      error
}

func (c *Classifier) detectEntities(ctx context.Context, mode Mode, text string) EntityResult {
	if strings.TrimSpace(text) == "" {
		return EntityResult{}
	}

	var (
		entities []Entity
		err      error
	)
	switch mode {
	case ModeOffsets:
		entities, err = c.entities.DetectEntities(ctx, text)
	case ModeCategories:
		entities, err = c.entities.ContainsEntities(ctx, text)
	default:
		entities, err = c.entities.ContainsEntities(ctx, text)
		entities = filterScore(entities, c.cfg.BaselineMinScore)
	}
	if err != nil {
		log.Error().Err(err).Str("mode", string(mode)).Msg("Entity detection failed")
		return EntityResult{Err: err}
	}
	return EntityResult{Entities: entities}
}
