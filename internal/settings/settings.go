// Package settings resolves the intake tunables from environment variables and
// an optional JSON document (typically an SSM parameter) layered on top.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fpang/doc-intake/internal/analysis"
	"github.com/fpang/doc-intake/internal/intake"
	"github.com/fpang/doc-intake/internal/poll"
)

// Environment variable names.
const (
	EnvLandingBucket      = "LANDING_BUCKET_NAME"
	EnvValidBucket        = "VALID_BUCKET_NAME"
	EnvInvalidBucket      = "INVALID_BUCKET_NAME"
	EnvMinLabelConfidence = "INTAKE_MIN_LABEL_CONFIDENCE"
	EnvPassportConfidence = "INTAKE_PASSPORT_CONFIDENCE"
	EnvBaselineMinScore   = "INTAKE_BASELINE_MIN_SCORE"
	EnvPollInterval       = "INTAKE_POLL_INTERVAL"
	EnvPollMaxInterval    = "INTAKE_POLL_MAX_INTERVAL"
	EnvPollTimeout        = "INTAKE_POLL_TIMEOUT"
	EnvPollGrowth         = "INTAKE_POLL_GROWTH"
	EnvEntityScan         = "INTAKE_ENTITY_SCAN"
	EnvLanguageCode       = "INTAKE_LANGUAGE_CODE"
	EnvRecordsTable       = "INTAKE_RECORDS_TABLE"
	EnvEventBus           = "INTAKE_EVENT_BUS"
	EnvBatchConcurrency   = "INTAKE_BATCH_CONCURRENCY"
	EnvSettingsParam      = "INTAKE_SETTINGS_PARAM"
)

// Duration is a time.Duration that reads JSON as either a Go duration string
// ("45s") or a number of seconds.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("duration must be a string or number of seconds: %s", b)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Settings is the full runtime configuration of the intake pipeline.
type Settings struct {
	LandingBucket string `json:"landingBucket,omitempty"`
	ValidBucket   string `json:"validBucket,omitempty"`
	InvalidBucket string `json:"invalidBucket,omitempty"`

	MinLabelConfidence float64 `json:"minLabelConfidence,omitempty"`
	PassportConfidence float64 `json:"passportConfidence,omitempty"`
	BaselineMinScore   float64 `json:"baselineMinScore,omitempty"`

	PollInterval    Duration `json:"pollInterval,omitempty"`
	PollMaxInterval Duration `json:"pollMaxInterval,omitempty"`
	PollTimeout     Duration `json:"pollTimeout,omitempty"`
	PollGrowth      string   `json:"pollGrowth,omitempty"`

	EntityScan   string `json:"entityScan,omitempty"`
	LanguageCode string `json:"languageCode,omitempty"`

	RecordsTable string `json:"recordsTable,omitempty"`
	EventBus     string `json:"eventBus,omitempty"`

	BatchConcurrency int `json:"batchConcurrency,omitempty"`
}

// Defaults returns the production settings.
func Defaults() Settings {
	cfg := intake.DefaultConfig()
	return Settings{
		ValidBucket:        cfg.ValidBucket,
		InvalidBucket:      cfg.InvalidBucket,
		MinLabelConfidence: cfg.MinLabelConfidence,
		PassportConfidence: cfg.PassportConfidence,
		BaselineMinScore:   cfg.BaselineMinScore,
		PollInterval:       Duration(poll.DefaultInterval),
		PollMaxInterval:    Duration(poll.DefaultMaxInterval),
		PollTimeout:        Duration(poll.DefaultTimeout),
		PollGrowth:         string(poll.DefaultGrowth),
		EntityScan:         string(cfg.EntityScan),
		LanguageCode:       analysis.DefaultLanguageCode,
		BatchConcurrency:   cfg.BatchConcurrency,
	}
}

// FromEnv starts from Defaults and applies every environment variable that is
// set. Malformed numbers and durations are reported together.
func FromEnv() (Settings, error) {
	s := Defaults()
	var errs []error

	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *float64) {
		v := os.Getenv(name)
		if v == "" {
			return
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = f
	}
	dur := func(name string, dst *Duration) {
		v := os.Getenv(name)
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = Duration(d)
	}

	str(EnvLandingBucket, &s.LandingBucket)
	str(EnvValidBucket, &s.ValidBucket)
	str(EnvInvalidBucket, &s.InvalidBucket)
	num(EnvMinLabelConfidence, &s.MinLabelConfidence)
	num(EnvPassportConfidence, &s.PassportConfidence)
	num(EnvBaselineMinScore, &s.BaselineMinScore)
	dur(EnvPollInterval, &s.PollInterval)
	dur(EnvPollMaxInterval, &s.PollMaxInterval)
	dur(EnvPollTimeout, &s.PollTimeout)
	str(EnvPollGrowth, &s.PollGrowth)
	str(EnvEntityScan, &s.EntityScan)
	str(EnvLanguageCode, &s.LanguageCode)
	str(EnvRecordsTable, &s.RecordsTable)
	str(EnvEventBus, &s.EventBus)
	if v := os.Getenv(EnvBatchConcurrency); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvBatchConcurrency, err))
		} else {
			s.BatchConcurrency = n
		}
	}

	return s, errors.Join(errs...)
}

// ApplyJSON overrides the fields present in a JSON settings document.
func (s *Settings) ApplyJSON(data []byte) error {
	if err := json.Unmarshal(data, s); err != nil {
		return fmt.Errorf("parse settings document: %w", err)
	}
	return nil
}

// Validate reports every setting that cannot be used.
func (s Settings) Validate() error {
	var errs []error
	if s.ValidBucket == "" {
		errs = append(errs, errors.New("valid bucket is required"))
	}
	if s.InvalidBucket == "" {
		errs = append(errs, errors.New("invalid bucket is required"))
	}
	if s.MinLabelConfidence < 0 || s.MinLabelConfidence > 100 {
		errs = append(errs, fmt.Errorf("minLabelConfidence %v out of range 0-100", s.MinLabelConfidence))
	}
	if s.PassportConfidence < 0 || s.PassportConfidence > 100 {
		errs = append(errs, fmt.Errorf("passportConfidence %v out of range 0-100", s.PassportConfidence))
	}
	if s.BaselineMinScore < 0 || s.BaselineMinScore > 1 {
		errs = append(errs, fmt.Errorf("baselineMinScore %v out of range 0-1", s.BaselineMinScore))
	}
	if s.PollInterval <= 0 {
		errs = append(errs, errors.New("pollInterval must be positive"))
	}
	if s.PollMaxInterval < s.PollInterval {
		errs = append(errs, fmt.Errorf("pollMaxInterval %s is shorter than pollInterval %s",
			time.Duration(s.PollMaxInterval), time.Duration(s.PollInterval)))
	}
	if s.PollTimeout < 0 {
		errs = append(errs, errors.New("pollTimeout must not be negative"))
	}
	if _, err := poll.ParseGrowth(s.PollGrowth); err != nil {
		errs = append(errs, err)
	}
	if s.BatchConcurrency < 1 {
		errs = append(errs, fmt.Errorf("batchConcurrency %d must be at least 1", s.BatchConcurrency))
	}
	if _, ok := intake.ParseScanMode(s.EntityScan); !ok {
		errs = append(errs, fmt.Errorf("entityScan %q must be full or legacy", s.EntityScan))
	}
	return errors.Join(errs...)
}

// IntakeConfig converts the settings into classifier configuration.
func (s Settings) IntakeConfig() intake.Config {
	scan, _ := intake.ParseScanMode(s.EntityScan)
	return intake.Config{
		LandingBucket:      s.LandingBucket,
		ValidBucket:        s.ValidBucket,
		InvalidBucket:      s.InvalidBucket,
		MinLabelConfidence: s.MinLabelConfidence,
		PassportConfidence: s.PassportConfidence,
		BaselineMinScore:   s.BaselineMinScore,
		EntityScan:         scan,
		BatchConcurrency:   s.BatchConcurrency,
	}
}

// Poller returns the job poller described by the settings.
func (s Settings) Poller() poll.Poller {
	growth, _ := poll.ParseGrowth(s.PollGrowth)
	return poll.Poller{
		Interval:    time.Duration(s.PollInterval),
		MaxInterval: time.Duration(s.PollMaxInterval),
		Growth:      growth,
		Timeout:     time.Duration(s.PollTimeout),
	}
}
