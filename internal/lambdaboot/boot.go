// Package lambdaboot provides the shared cold-start bootstrap for the intake
// binaries.
//
// Every entry point needs the same things: AWS config, the resolved settings,
// and a classifier wired to the AWS adapters. This package keeps each init()
// a short composition of helpers.
package lambdaboot

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/rs/zerolog/log"

	"github.com/fpang/doc-intake/internal/analysis"
	"github.com/fpang/doc-intake/internal/events"
	"github.com/fpang/doc-intake/internal/intake"
	"github.com/fpang/doc-intake/internal/logging"
	"github.com/fpang/doc-intake/internal/s3util"
	"github.com/fpang/doc-intake/internal/settings"
	"github.com/fpang/doc-intake/internal/store"
)

// AWSClients holds the core AWS SDK clients used across entry points.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// SSMAPI is the subset of the SSM client used to load settings overrides.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Pipeline is a classifier with the adapters it was built from. Records is
// nil when no records table is configured.
type Pipeline struct {
	Settings   settings.Settings
	Classifier *intake.Classifier
	Records    *store.RecordStore
}

// InitAWS loads the default AWS config and returns it along with common clients.
func InitAWS() AWSClients {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// LoadSettings resolves settings from the environment and the optional SSM
// override document. Fatals on any error.
func LoadSettings(ssmClient SSMAPI) settings.Settings {
	s, err := ResolveSettings(context.Background(), ssmClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid intake settings")
	}
	return s
}

// ResolveSettings is LoadSettings without the fatal exit.
func ResolveSettings(ctx context.Context, ssmClient SSMAPI) (settings.Settings, error) {
	s, err := settings.FromEnv()
	if err != nil {
		return s, err
	}

	if paramName := os.Getenv(settings.EnvSettingsParam); paramName != "" {
		ssmStart := time.Now()
		result, err := ssmClient.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           aws.String(paramName),
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return s, fmt.Errorf("read settings parameter %s: %w", paramName, err)
		}
		if result.Parameter == nil {
			return s, fmt.Errorf("settings parameter %s has no value", paramName)
		}
		if err := s.ApplyJSON([]byte(aws.ToString(result.Parameter.Value))); err != nil {
			return s, fmt.Errorf("settings parameter %s: %w", paramName, err)
		}
		log.Debug().Str("param", paramName).Dur("elapsed", time.Since(ssmStart)).Msg("Settings overrides loaded from SSM")
	}

	return s, s.Validate()
}

// InitPipeline builds the classifier and its AWS adapters. Audit records and
// routing events are enabled only when their table or bus is configured.
func InitPipeline(cfg aws.Config, s settings.Settings) Pipeline {
	objects := s3util.NewObjectStore(s3.NewFromConfig(cfg))
	labels := analysis.NewRekognition(rekognition.NewFromConfig(cfg))
	text := analysis.NewTextract(textract.NewFromConfig(cfg))
	entities := analysis.NewComprehend(comprehend.NewFromConfig(cfg), s.LanguageCode)

	opts := []intake.Option{intake.WithPoller(s.Poller())}

	var records *store.RecordStore
	if s.RecordsTable != "" {
		records = store.NewRecordStore(dynamodb.NewFromConfig(cfg), s.RecordsTable)
		opts = append(opts, intake.WithRecorder(records))
	} else {
		log.Warn().Str("envVar", settings.EnvRecordsTable).Msg("Records table not set, audit records disabled")
	}

	if s.EventBus != "" {
		opts = append(opts, intake.WithNotifier(events.NewPublisher(eventbridge.NewFromConfig(cfg), s.EventBus)))
	}

	return Pipeline{
		Settings:   s,
		Classifier: intake.NewClassifier(s.IntakeConfig(), objects, labels, text, entities, opts...),
		Records:    records,
	}
}

// StartupLog is a convenience wrapper for the startup logger. The pipeline's
// buckets, table, bus and tunables are registered on the returned logger.
func StartupLog(name string, initStart time.Time, p Pipeline) *logging.StartupLogger {
	s := p.Settings
	l := logging.NewStartupLogger(name).
		S3Bucket("valid", s.ValidBucket).
		S3Bucket("invalid", s.InvalidBucket).
		Feature("auditRecords", s.RecordsTable != "").
		Feature("routingEvents", s.EventBus != "").
		Feature("landingFilter", s.LandingBucket != "").
		Config("minLabelConfidence", strconv.FormatFloat(s.MinLabelConfidence, 'f', -1, 64)).
		Config("passportConfidence", strconv.FormatFloat(s.PassportConfidence, 'f', -1, 64)).
		Config("baselineMinScore", strconv.FormatFloat(s.BaselineMinScore, 'f', -1, 64)).
		Config("pollInterval", time.Duration(s.PollInterval).String()).
		Config("pollTimeout", time.Duration(s.PollTimeout).String()).
		Config("pollGrowth", s.PollGrowth).
		Config("entityScan", s.EntityScan).
		Config("languageCode", s.LanguageCode).
		Config("batchConcurrency", strconv.Itoa(s.BatchConcurrency)).
		InitDuration(time.Since(initStart))

	if s.LandingBucket != "" {
		l.S3Bucket("landing", s.LandingBucket)
	}
	if s.RecordsTable != "" {
		l.DynamoTable("records", s.RecordsTable)
	}
	if s.EventBus != "" {
		l.EventBus("routing", s.EventBus)
	}
	if param := os.Getenv(settings.EnvSettingsParam); param != "" {
		l.SSMParam("settings", param)
	}
	return l
}
