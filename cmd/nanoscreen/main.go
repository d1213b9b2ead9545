// Package main starts a NanoScreen server.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/micromdm/nanoscreen/engine"
	enginehttp "github.com/micromdm/nanoscreen/engine/http"
	"github.com/micromdm/nanoscreen/log/logkeys"
	"github.com/micromdm/nanoscreen/screening"
	"github.com/micromdm/nanoscreen/subsystem/policy"
	"github.com/micromdm/nanoscreen/workflow/compliance"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/envflag"
	nanohttp "github.com/micromdm/nanolib/http"
	"github.com/micromdm/nanolib/http/trace"
	"github.com/micromdm/nanolib/log/stdlogfmt"
)

// overridden by -ldflags -X
var version = "unknown"

const (
	apiUsername = "nanoscreen"
	apiRealm    = "nanoscreen"
)

func main() {
	var (
		flDebug    = flag.Bool("debug", false, "log debug messages")
		flListen   = flag.String("listen", ":9005", "HTTP listen address")
		flVersion  = flag.Bool("version", false, "print version and exit")
		flAPIKey   = flag.String("api", "", "API key for API endpoints")
		flStorage  = flag.String("storage", "file", "name of storage backend")
		flDSN      = flag.String("storage-dsn", "", "data source name (e.g. connection string, URL or path)")
		flQueue    = flag.String("queue", "inmem", "name of task queue backend")
		flQueueURL = flag.String("queue-url", "", "task queue URL (sqs)")
		flQRegion  = flag.String("queue-region", "", "task queue AWS region (sqs)")
		flWorkers  = flag.Int("workers", 4, "number of concurrent queue consumers")
		flScreen   = flag.String("screen-url", "", "base URL of the screening service")
		flScrTO    = flag.Duration("screen-timeout", screening.DefaultTimeout, "screening request timeout per attempt")
		flScrRetry = flag.Int("screen-retries", screening.DefaultRetries, "screening retries")
		flPolicy   = flag.String("policy", "policy.yaml", "path to policy thresholds YAML")
		flAckDir   = flag.String("archive-dir", "acks", "local acknowledgment archive directory")
		flIPFS     = flag.String("ipfs-api", "", "IPFS HTTP API address for the acknowledgment archive")
		flS3Bucket = flag.String("s3-bucket", "", "S3 bucket for the acknowledgment archive")
		flS3Region = flag.String("s3-region", "", "S3 region")
		flS3Prefix = flag.String("s3-prefix", "", "S3 key prefix")
	)
	envflag.Parse("NANOSCREEN_", []string{"version"})

	if *flVersion {
		fmt.Println(version)
		return
	}

	logger := stdlogfmt.New(stdlogfmt.WithDebugFlag(*flDebug))
	ctx := context.Background()

	if *flScreen == "" {
		logger.Info(logkeys.Error, "screening URL required")
		os.Exit(1)
	}

	storage, err := parseStorage(ctx, *flStorage, *flDSN)
	if err != nil {
		logger.Info(logkeys.Message, "parse storage", logkeys.Error, err)
		os.Exit(1)
	}

	q, err := parseQueue(ctx, logger.With("service", "queue"), *flQueue, *flQueueURL, *flQRegion, *flWorkers)
	if err != nil {
		logger.Info(logkeys.Message, "parse queue", logkeys.Error, err)
		os.Exit(1)
	}

	screener, err := screening.New(
		*flScreen,
		screening.WithTimeout(*flScrTO),
		screening.WithRetries(*flScrRetry),
		screening.WithLogger(logger.With("service", "screening")),
	)
	if err != nil {
		logger.Info(logkeys.Message, "creating screening client", logkeys.Error, err)
		os.Exit(1)
	}

	// the policy file is re-read on every evaluation; check it once now
	policySrc := policy.NewFileSource(*flPolicy)
	if _, err = policySrc.Thresholds(ctx); err != nil {
		logger.Info(logkeys.Message, "loading policy", logkeys.Error, err)
		os.Exit(1)
	}
	evaluator, err := policy.NewEngine(policySrc, policy.WithLogger(logger.With("service", "policy")))
	if err != nil {
		logger.Info(logkeys.Message, "creating policy engine", logkeys.Error, err)
		os.Exit(1)
	}

	archiver, err := newArchiver(ctx, logger.With("service", "archive"), &archiveConfig{
		dir:      *flAckDir,
		ipfsAPI:  *flIPFS,
		s3Bucket: *flS3Bucket,
		s3Region: *flS3Region,
		s3Prefix: *flS3Prefix,
	})
	if err != nil {
		logger.Info(logkeys.Message, "creating archive", logkeys.Error, err)
		os.Exit(1)
	}

	// configure the workflow engine
	e := engine.New(storage, q, engine.WithLogger(logger.With("service", "engine")))

	w, err := compliance.New(e, screener, evaluator, archiver, compliance.WithLogger(logger.With("workflow", compliance.WorkflowName)))
	if err != nil {
		logger.Info(logkeys.Message, "creating compliance workflow", logkeys.Error, err)
		os.Exit(1)
	}
	if err = e.RegisterWorkflow(w); err != nil {
		logger.Info(logkeys.Message, "registering workflows", logkeys.Error, err)
		os.Exit(1)
	}

	eWorker := engine.NewWorker(e, e, q, engine.WithWorkerLogger(logger.With("service", "engine worker")))

	mux := flow.New()

	mux.Handle("/version", nanohttp.NewJSONVersionHandler(version))

	if *flAPIKey != "" {
		mux.Group(func(mux *flow.Mux) {
			mux.Use(func(h http.Handler) http.Handler {
				return nanohttp.NewSimpleBasicAuthHandler(h, apiUsername, *flAPIKey, apiRealm)
			})

			enginehttp.HandleAPIv1("/v1", mux, logger, e)
		})
	} else {
		logger.Info(logkeys.Message, "no API key specified; API endpoints disabled")
	}

	go func() {
		err := eWorker.Run(ctx)
		logs := []interface{}{logkeys.Message, "engine worker stopped"}
		if err != nil {
			logger.Info(append(logs, logkeys.Error, err)...)
			return
		}
		logger.Debug(logs...)
	}()

	// seed for newTraceID
	rand.Seed(time.Now().UnixNano())

	logger.Info(logkeys.Message, "starting server", "listen", *flListen)
	err = http.ListenAndServe(*flListen, trace.NewTraceLoggingHandler(mux, logger.With("handler", "log"), newTraceID))
	logs := []interface{}{logkeys.Message, "server shutdown"}
	if err != nil {
		logs = append(logs, logkeys.Error, err)
	}
	logger.Info(logs...)
}

// newTraceID generates a new HTTP trace ID for context logging.
// Currently this just makes a random string.
func newTraceID(_ *http.Request) string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}
