// Package intake classifies newly arrived identity-document uploads and files
// them into the valid or invalid archive.
//
// Each file runs through the same pipeline:
//
//  1. Format gate on the object key extension (.jpg, .jpeg, .png)
//  2. Label detection on the image bytes
//  3. Passport fast-path, or text extraction for other document-like images
//  4. Keyword-driven choice of sensitive-entity detection mode
//  5. Entity match and a single move to the destination area
//
// Analysis services and storage are reached through the narrow interfaces in
// classifier.go; the AWS implementations live in internal/analysis and
// internal/s3util.
package intake

import (
	"time"
)

// ObjectRef names one object in a storage bucket.
type ObjectRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// String renders the reference as bucket/key for logs.
func (o ObjectRef) String() string {
	return o.Bucket + "/" + o.Key
}

// Label is a visual-content tag with a confidence in the range 0–100.
type Label struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// JobStatus is the lifecycle state of an asynchronous analysis job.
type JobStatus string

const (
	JobRunning   JobStatus = "RUNNING"
	JobSucceeded JobStatus = "SUCCEEDED"
	JobFailed    JobStatus = "FAILED"
)

// Terminal reports whether the job will not change state again.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// LabelJob is the label service's answer. Synchronous detection returns a
// SUCCEEDED job with labels; the asynchronous variant returns RUNNING with a
// JobID to poll.
type LabelJob struct {
	JobID  string
	Status JobStatus
	Labels []Label
}

// TextJob is one poll of a text extraction job. Lines holds the LINE blocks
// in document order once the job has succeeded.
type TextJob struct {
	Status  JobStatus
	Lines   []string
	Message string
}

// EntityKind distinguishes the two shapes returned by the sensitive-entity service.
type EntityKind string

const (
	// KindCategory entities come from coarse detection: a category name and score.
	KindCategory EntityKind = "category"
	// KindOffset entities come from precise detection: a type, score and offsets.
	KindOffset EntityKind = "offset"
)

// Entity is a detected personal identifier. Name holds the category name for
// KindCategory and the entity type for KindOffset.
type Entity struct {
	Kind        EntityKind `json:"kind"`
	Name        string     `json:"name"`
	Score       float64    `json:"score"`
	BeginOffset int        `json:"beginOffset,omitempty"`
	EndOffset   int        `json:"endOffset,omitempty"`
}

// Stage names the last pipeline step a run reached.
type Stage string

const (
	StageInput      Stage = "input"
	StageFormat     Stage = "format"
	StageRead       Stage = "read"
	StageLabels     Stage = "labels"
	StageExtraction Stage = "extraction"
	StageEntities   Stage = "entities"
	StageRoute      Stage = "route"
)

// EntryStatus is the outcome of processing one batch entry.
type EntryStatus string

const (
	// StatusRouted means the file was moved to its destination.
	StatusRouted EntryStatus = "routed"
	// StatusSkipped means there was nothing to do, typically because the
	// object had already left the landing area.
	StatusSkipped EntryStatus = "skipped"
	// StatusFailed means the file could not be classified or moved and
	// may still be in the landing area.
	StatusFailed EntryStatus = "failed"
)

// Run captures everything learned while processing one file. It is handed to
// the audit recorder and notifier after the file has been routed or given up on.
type Run struct {
	ID            string
	Source        ObjectRef
	Decision      Decision
	Destination   ObjectRef
	Status        EntryStatus
	Stage         Stage
	Labels        []Label
	Mode          Mode
	MatchedEntity string
	Text          string
	Err           error
	StartedAt     time.Time
	Duration      time.Duration
}

// Result converts the run to its externally visible form.
func (r *Run) Result() EntryResult {
	res := EntryResult{
		Bucket:   r.Source.Bucket,
		Key:      r.Source.Key,
		Decision: r.Decision,
		Status:   r.Status,
	}
	if r.Destination.Key != "" {
		dst := r.Destination
		res.Destination = &dst
	}
	if r.Err != nil {
		res.Error = r.Err.Error()
	}
	return res
}

// EntryResult reports the outcome for one batch entry.
type EntryResult struct {
	Bucket      string      `json:"bucket"`
	Key         string      `json:"key"`
	Decision    Decision    `json:"decision,omitempty"`
	Destination *ObjectRef  `json:"destination,omitempty"`
	Status      EntryStatus `json:"status"`
	Error       string      `json:"error,omitempty"`
}

// Response is returned from one handler invocation. ErrorMessage is set for an
// empty batch, or to the first extraction submission rejection seen in the batch.
type Response struct {
	ErrorMessage string        `json:"error_message,omitempty"`
	Results      []EntryResult `json:"results,omitempty"`
}
