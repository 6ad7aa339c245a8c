// Package main provides the Lambda entry point for the operator HTTP API,
// served behind API Gateway (HTTP API, payload v2):
//
//   - GET /api/health
//   - GET /api/records?bucket=...&key=... (requires INTAKE_RECORDS_TABLE)
//   - POST /api/classify {"bucket": "...", "key": "..."}
//
// When ORIGIN_VERIFY_SECRET is set, requests must carry it in the
// x-origin-verify header.
package main

import (
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/fpang/doc-intake/internal/api"
	"github.com/fpang/doc-intake/internal/lambdaboot"
	"github.com/fpang/doc-intake/internal/logging"
)

var apiHandler *api.Handler

func init() {
	initStart := time.Now()
	logging.Init()

	awsClients := lambdaboot.InitAWS()
	s := lambdaboot.LoadSettings(awsClients.SSM)
	pipeline := lambdaboot.InitPipeline(awsClients.Config, s)

	originSecret := os.Getenv("ORIGIN_VERIFY_SECRET")
	var records api.RecordReader
	if pipeline.Records != nil {
		records = pipeline.Records
	}
	apiHandler = api.NewHandler(pipeline.Classifier, records, originSecret)

	lambdaboot.StartupLog("intake-api", initStart, pipeline).
		Feature("originVerify", originSecret != "").
		Log()
	log.Info().Msg("API handler initialized")
}

func main() {
	adapter := httpadapter.NewV2(apiHandler)
	lambda.Start(adapter.ProxyWithContext)
}
