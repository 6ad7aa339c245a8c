// Package api serves the operator HTTP surface of the intake pipeline:
//
//	GET  /api/health                    liveness
//	GET  /api/records?bucket=..&key=..  audit records for one document
//	POST /api/classify                  classify a file still in landing
//
// It is not an upload endpoint; files reach landing through S3 directly.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/fpang/doc-intake/internal/intake"
	"github.com/fpang/doc-intake/internal/store"
)

// maxBodySize bounds the classify request body.
const maxBodySize = 64 << 10

// Classifier runs the pipeline for one file.
type Classifier interface {
	Process(ctx context.Context, ref intake.ObjectRef) *intake.Run
}

// RecordReader lists stored runs for one document.
type RecordReader interface {
	Records(ctx context.Context, bucket, key string) ([]store.AuditRecord, error)
}

// Handler routes the operator API.
type Handler struct {
	classifier   Classifier
	records      RecordReader
	originSecret string
	mux          *http.ServeMux
}

// NewHandler creates the API handler. records may be nil when audit records
// are disabled; originSecret may be empty to skip origin verification.
func NewHandler(classifier Classifier, records RecordReader, originSecret string) *Handler {
	h := &Handler{
		classifier:   classifier,
		records:      records,
		originSecret: originSecret,
		mux:          http.NewServeMux(),
	}
	h.mux.HandleFunc("/api/health", h.handleHealth)
	h.mux.HandleFunc("/api/records", h.handleRecords)
	h.mux.HandleFunc("/api/classify", h.handleClassify)
	return h
}

// ServeHTTP applies metrics and origin verification, then dispatches.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	withMetrics(withOriginVerify(h.originSecret, h.mux)).ServeHTTP(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "doc-intake",
	})
}

// GET /api/records?bucket=...&key=...
func (h *Handler) handleRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.records == nil {
		httpError(w, http.StatusServiceUnavailable, "audit records are not enabled")
		return
	}

	bucket := r.URL.Query().Get("bucket")
	key := r.URL.Query().Get("key")
	if err := validateBucket(bucket); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateKey(key); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.records.Records(r.Context(), bucket, key)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to load records", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"bucket":  bucket,
		"key":     key,
		"records": records,
	})
}

type classifyRequest struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// POST /api/classify {"bucket": "...", "key": "..."}
// Runs the pipeline synchronously and returns the entry result.
func (h *Handler) handleClassify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req classifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateBucket(req.Bucket); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateKey(req.Key); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	run := h.classifier.Process(r.Context(), intake.ObjectRef{Bucket: req.Bucket, Key: req.Key})
	result := run.Result()
	log.Info().
		Str("bucket", result.Bucket).
		Str("key", result.Key).
		Str("status", string(result.Status)).
		Str("decision", string(result.Decision)).
		Msg("Classification requested via API")

	status := http.StatusOK
	if result.Status == intake.StatusFailed {
		status = http.StatusBadGateway
	}
	respondJSON(w, status, result)
}
