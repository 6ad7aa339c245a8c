package logging

import (
	"os"
	"runtime"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Resource kinds, used as keys under "resources" in the cold-start event.
const (
	kindS3Bucket    = "s3Buckets"
	kindDynamoTable = "dynamoTables"
	kindSSMParam    = "ssmParams"
	kindEventBus    = "eventBuses"
)

// StartupLogger builds the one event an intake Lambda logs after init:
// build identity, the AWS resources it was wired to, which optional stages
// are on, and the effective tunables.
type StartupLogger struct {
	name         string
	commitHash   string
	buildTime    string
	initDuration time.Duration

	resources map[string]map[string]string
	features  map[string]bool
	config    map[string]string
}

// NewStartupLogger starts a cold-start event for the named binary.
func NewStartupLogger(name string) *StartupLogger {
	return &StartupLogger{
		name:      name,
		resources: make(map[string]map[string]string),
		features:  make(map[string]bool),
		config:    make(map[string]string),
	}
}

// CommitHash sets the git commit baked in with -ldflags.
func (s *StartupLogger) CommitHash(hash string) *StartupLogger {
	s.commitHash = hash
	return s
}

// BuildTime sets the build timestamp baked in with -ldflags.
func (s *StartupLogger) BuildTime(t string) *StartupLogger {
	s.buildTime = t
	return s
}

func (s *StartupLogger) resource(kind, label, value string) *StartupLogger {
	if s.resources[kind] == nil {
		s.resources[kind] = make(map[string]string)
	}
	s.resources[kind][label] = value
	return s
}

// S3Bucket records a bucket the pipeline reads from or routes to.
func (s *StartupLogger) S3Bucket(label, name string) *StartupLogger {
	return s.resource(kindS3Bucket, label, name)
}

// DynamoTable records the audit table.
func (s *StartupLogger) DynamoTable(label, name string) *StartupLogger {
	return s.resource(kindDynamoTable, label, name)
}

// SSMParam records a parameter path. Values are never logged.
func (s *StartupLogger) SSMParam(label, path string) *StartupLogger {
	return s.resource(kindSSMParam, label, path)
}

// EventBus records the bus routing events go to.
func (s *StartupLogger) EventBus(label, name string) *StartupLogger {
	return s.resource(kindEventBus, label, name)
}

// Feature records whether an optional stage is enabled.
func (s *StartupLogger) Feature(name string, enabled bool) *StartupLogger {
	s.features[name] = enabled
	return s
}

// Config records a tunable. Do not pass secrets.
func (s *StartupLogger) Config(key, value string) *StartupLogger {
	s.config[key] = value
	return s
}

// InitDuration records how long init() took.
func (s *StartupLogger) InitDuration(d time.Duration) *StartupLogger {
	s.initDuration = d
	return s
}

// Log writes the event at INFO. Empty sections are left out.
func (s *StartupLogger) Log() {
	evt := log.Info().Dict("lambda", s.identity())

	if len(s.resources) > 0 {
		res := zerolog.Dict()
		for _, kind := range sortedKeys(s.resources) {
			res = res.Dict(kind, stringDict(s.resources[kind]))
		}
		evt = evt.Dict("resources", res)
	}
	if len(s.features) > 0 {
		d := zerolog.Dict()
		for _, k := range sortedKeys(s.features) {
			d = d.Bool(k, s.features[k])
		}
		evt = evt.Dict("features", d)
	}
	if len(s.config) > 0 {
		evt = evt.Dict("config", stringDict(s.config))
	}
	if s.initDuration > 0 {
		evt = evt.Dur("initDuration", s.initDuration)
	}

	evt.Msg("Lambda cold start complete")
}

// identity describes the running function from the Lambda runtime variables.
func (s *StartupLogger) identity() *zerolog.Event {
	d := zerolog.Dict().
		Str("name", s.name).
		Str("functionName", os.Getenv("AWS_LAMBDA_FUNCTION_NAME")).
		Str("version", os.Getenv("AWS_LAMBDA_FUNCTION_VERSION")).
		Str("region", os.Getenv("AWS_REGION")).
		Str("memoryMB", os.Getenv("AWS_LAMBDA_FUNCTION_MEMORY_SIZE")).
		Str("goVersion", runtime.Version()).
		Str("arch", runtime.GOARCH).
		Str("logLevel", os.Getenv(EnvLogLevel))
	if s.commitHash != "" {
		d = d.Str("commitHash", s.commitHash)
	}
	if s.buildTime != "" {
		d = d.Str("buildTime", s.buildTime)
	}
	return d
}

func stringDict(m map[string]string) *zerolog.Event {
	d := zerolog.Dict()
	for _, k := range sortedKeys(m) {
		d = d.Str(k, m[k])
	}
	return d
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
