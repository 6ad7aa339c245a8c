package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestStartupLogger(t *testing.T) {
	buf := captureLog(t)

	NewStartupLogger("intake-lambda").
		S3Bucket("valid", "valid-docs-bucket").
		DynamoTable("records", "intake-records").
		EventBus("routing", "intake-bus").
		Feature("auditRecords", true).
		Config("entityScan", "full").
		InitDuration(120 * time.Millisecond).
		Log()

	var evt struct {
		Lambda struct {
			Name string `json:"name"`
		} `json:"lambda"`
		Resources struct {
			S3Buckets    map[string]string `json:"s3Buckets"`
			DynamoTables map[string]string `json:"dynamoTables"`
			EventBuses   map[string]string `json:"eventBuses"`
		} `json:"resources"`
		Features map[string]bool   `json:"features"`
		Config   map[string]string `json:"config"`
		Message  string            `json:"message"`
	}
	if err := json.Unmarshal(buf.Bytes(), &evt); err != nil {
		t.Fatalf("startup event is not JSON: %v\n%s", err, buf.String())
	}
	if evt.Lambda.Name != "intake-lambda" {
		t.Errorf("unexpected name %q", evt.Lambda.Name)
	}
	if evt.Resources.S3Buckets["valid"] != "valid-docs-bucket" ||
		evt.Resources.DynamoTables["records"] != "intake-records" ||
		evt.Resources.EventBuses["routing"] != "intake-bus" {
		t.Errorf("unexpected resources %+v", evt.Resources)
	}
	if !evt.Features["auditRecords"] || evt.Config["entityScan"] != "full" {
		t.Errorf("unexpected features/config %v %v", evt.Features, evt.Config)
	}
	if evt.Message != "Lambda cold start complete" {
		t.Errorf("unexpected message %q", evt.Message)
	}
}

func TestStartupLogger_SortedOutput(t *testing.T) {
	buf := captureLog(t)

	NewStartupLogger("intake-lambda").
		S3Bucket("valid", "v").
		S3Bucket("invalid", "i").
		S3Bucket("landing", "l").
		Log()

	out := buf.String()
	iInvalid := strings.Index(out, `"invalid"`)
	iLanding := strings.Index(out, `"landing"`)
	iValid := strings.Index(out, `"valid"`)
	if iInvalid < 0 || !(iInvalid < iLanding && iLanding < iValid) {
		t.Errorf("expected buckets in key order, got %s", out)
	}
}

func TestStartupLogger_NoResources(t *testing.T) {
	buf := captureLog(t)

	NewStartupLogger("intake-cli").Log()

	var evt map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &evt); err != nil {
		t.Fatalf("startup event is not JSON: %v", err)
	}
	if _, ok := evt["resources"]; ok {
		t.Error("resources must be omitted when none are registered")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
		"info":  zerolog.InfoLevel,
		"":      zerolog.InfoLevel,
		"TRACE": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
