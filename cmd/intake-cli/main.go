package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/doc-intake/internal/intake"
	"github.com/fpang/doc-intake/internal/lambdaboot"
	"github.com/fpang/doc-intake/internal/logging"
	"github.com/fpang/doc-intake/internal/metrics"
)

// CLI flags
var (
	bucketFlag string
	keyFlag    string
	eventFlag  string
)

// rootCmd is the main Cobra command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "intake-cli",
	Short: "Operate the document intake pipeline from a terminal",
	Long: `intake-cli runs the document intake pipeline against real AWS resources
using the same settings as the Lambda (environment variables and the optional
INTAKE_SETTINGS_PARAM document).

Examples:
  intake-cli classify --bucket docs-landing-bucket --key scan1.png
  intake-cli replay --event ./s3-event.json
  intake-cli records --bucket docs-landing-bucket --key scan1.png`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init()
		// Keep stdout for command output.
		metrics.Output = os.Stderr
	},
}

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify and route one object in the landing bucket",
	RunE: func(cmd *cobra.Command, args []string) error {
		pipeline := initPipeline()
		run := pipeline.Classifier.Process(cmd.Context(), intake.ObjectRef{Bucket: bucketFlag, Key: keyFlag})
		return printJSON(run.Result())
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Run the handler on a saved Lambda event (S3, SQS or SQS+SNS)",
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := os.ReadFile(eventFlag)
		if err != nil {
			return fmt.Errorf("read event: %w", err)
		}
		ev, err := intake.DecodeEvent(payload)
		if err != nil {
			return err
		}
		log.Info().
			Int("entries", len(ev.Deliveries)).
			Int("rejected", len(ev.Rejected)).
			Str("file", eventFlag).
			Msg("Replaying event")

		pipeline := initPipeline()
		out, handleErr := pipeline.Classifier.HandleEvent(cmd.Context(), ev)
		if err := printJSON(out); err != nil {
			return err
		}
		return handleErr
	},
}

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List the audit records for one document",
	RunE: func(cmd *cobra.Command, args []string) error {
		pipeline := initPipeline()
		if pipeline.Records == nil {
			return fmt.Errorf("INTAKE_RECORDS_TABLE is not set")
		}
		records, err := pipeline.Records.Records(cmd.Context(), bucketFlag, keyFlag)
		if err != nil {
			return err
		}
		return printJSON(records)
	},
}

func init() {
	for _, c := range []*cobra.Command{classifyCmd, recordsCmd} {
		c.Flags().StringVarP(&bucketFlag, "bucket", "b", "", "Bucket holding the document")
		c.Flags().StringVarP(&keyFlag, "key", "k", "", "Object key of the document")
		c.MarkFlagRequired("bucket")
		c.MarkFlagRequired("key")
	}
	replayCmd.Flags().StringVarP(&eventFlag, "event", "e", "", "Path to a JSON Lambda event")
	replayCmd.MarkFlagRequired("event")

	rootCmd.AddCommand(classifyCmd, replayCmd, recordsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initPipeline() lambdaboot.Pipeline {
	awsClients := lambdaboot.InitAWS()
	return lambdaboot.InitPipeline(awsClients.Config, lambdaboot.LoadSettings(awsClients.SSM))
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
