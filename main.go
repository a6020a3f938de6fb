package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"fleetdebugger/pkg/logging"
	"fleetdebugger/pkg/metrics"
	"fleetdebugger/pkg/pipeline"
	"fleetdebugger/pkg/profiling"
	"fleetdebugger/pkg/tracing"
)

func main() {
	var (
		dryRun       = flag.Bool("dry-run", getEnv("FLEETDEBUG_DRY_RUN", "") == "true", "Print the analysis to stdout instead of sending annotations to Loki")
		source       = flag.String("source", getEnv("FLEETDEBUG_SOURCE", ""), "Dataset file path or http(s) URL")
		token        = flag.String("token", getEnv("FLEETDEBUG_TOKEN", ""), "Bearer token for dataset URLs")
		solutionType = flag.String("solution-type", getEnv("FLEETDEBUG_SOLUTION_TYPE", ""), "ODRD or LMFS (default: declared by the dataset, else ODRD)")
		filter       = flag.String("filter", getEnv("FLEETDEBUG_FILTER", ""), "Expression selecting log entries listed by --dry-run, e.g. 'apiType == \"updateTrip\"'")
		lokiQuery    = flag.String("loki-query", getEnv("FLEETDEBUG_LOKI_QUERY", ""), "LogQL query reading raw fleet logs from Loki instead of --source")
		lookback     = flag.String("loki-lookback", getEnv("FLEETDEBUG_LOKI_LOOKBACK", "1h"), "Time range covered by --loki-query")
		lokiLimit    = flag.String("loki-limit", getEnv("FLEETDEBUG_LOKI_LIMIT", "5000"), "Maximum log lines read by --loki-query")
		lokiURL      = flag.String("loki-url", getEnv("FLEETDEBUG_LOKI_URL", "http://localhost:3100"), "Grafana Loki URL")
		lokiUser     = flag.String("loki-user", getEnv("FLEETDEBUG_LOKI_USER", ""), "Loki username (for Grafana Cloud authentication)")
		lokiPassword = flag.String("loki-password", getEnv("FLEETDEBUG_LOKI_PASSWORD", ""), "Loki password/token (for Grafana Cloud authentication)")
		interval     = flag.String("interval", getEnv("FLEETDEBUG_INTERVAL", "0"), "Re-analysis interval, 0 to run once")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Fleet Debugger\n\n")
		fmt.Fprintf(os.Stderr, "Loads a fleet log dataset, reconstructs trips and task state, detects\n")
		fmt.Fprintf(os.Stderr, "missing updates and velocity jumps, and sends the anomalies to Grafana\n")
		fmt.Fprintf(os.Stderr, "Loki as annotation log lines.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  FLEETDEBUG_SOURCE        - Dataset file path or URL\n")
		fmt.Fprintf(os.Stderr, "  FLEETDEBUG_TOKEN         - Bearer token for dataset URLs\n")
		fmt.Fprintf(os.Stderr, "  FLEETDEBUG_SOLUTION_TYPE - ODRD or LMFS\n")
		fmt.Fprintf(os.Stderr, "  FLEETDEBUG_DRY_RUN       - true to print instead of sending\n")
		fmt.Fprintf(os.Stderr, "  FLEETDEBUG_FILTER        - Log entry expression for dry runs\n")
		fmt.Fprintf(os.Stderr, "  FLEETDEBUG_LOKI_QUERY    - LogQL query for raw fleet logs\n")
		fmt.Fprintf(os.Stderr, "  FLEETDEBUG_LOKI_LOOKBACK - Range covered by the query (default: 1h)\n")
		fmt.Fprintf(os.Stderr, "  FLEETDEBUG_LOKI_LIMIT    - Lines read by the query (default: 5000)\n")
		fmt.Fprintf(os.Stderr, "  FLEETDEBUG_LOKI_URL      - Loki URL (default: http://localhost:3100)\n")
		fmt.Fprintf(os.Stderr, "  FLEETDEBUG_LOKI_USER     - Loki username (for Grafana Cloud)\n")
		fmt.Fprintf(os.Stderr, "  FLEETDEBUG_LOKI_PASSWORD - Loki password/token (for Grafana Cloud)\n")
		fmt.Fprintf(os.Stderr, "  FLEETDEBUG_INTERVAL      - Re-analysis interval (default: 0, run once)\n")
		fmt.Fprintf(os.Stderr, "  LOG_LEVEL, LOG_FORMAT    - slog level and text|json format\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Dry run against an exported dataset\n")
		fmt.Fprintf(os.Stderr, "  %s --dry-run --source=datasets/jump-demo.json\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  # Analyse the last hour of Loki logs every five minutes\n")
		fmt.Fprintf(os.Stderr, "  %s --loki-query='{job=\"fleet-engine\"}' --interval=5m \\\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "    --loki-url=https://logs-prod-us-central1.grafana.net \\\n")
		fmt.Fprintf(os.Stderr, "    --loki-user=123456 --loki-password=your_token\n\n")
	}

	flag.Parse()

	if *source == "" && *lokiQuery == "" {
		fmt.Fprintf(os.Stderr, "Error: a dataset is required. Use --source, --loki-query or set FLEETDEBUG_SOURCE.\n\n")
		flag.Usage()
		os.Exit(1)
	}

	intervalDuration, err := time.ParseDuration(*interval)
	if err != nil {
		log.Fatalf("Invalid interval format: %v", err)
	}
	lookbackDuration, err := time.ParseDuration(*lookback)
	if err != nil {
		log.Fatalf("Invalid Loki lookback format: %v", err)
	}
	limit, err := strconv.Atoi(*lokiLimit)
	if err != nil {
		log.Fatalf("Invalid Loki limit: %v", err)
	}

	logging.InitLogging()

	shutdownTracing, err := tracing.InitTracing()
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer shutdownTracing()

	shutdownMetrics, err := metrics.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}
	defer shutdownMetrics()

	shutdownProfiling, err := profiling.InitProfiling()
	if err != nil {
		log.Fatalf("Failed to initialize profiling: %v", err)
	}
	defer shutdownProfiling()

	config := pipeline.Config{
		Source:       *source,
		DatasetToken: *token,
		LokiQuery:    *lokiQuery,
		LokiLookback: lookbackDuration,
		LokiLimit:    limit,
		SolutionType: *solutionType,
		DryRun:       *dryRun,
		Filter:       *filter,
		LokiURL:      *lokiURL,
		LokiUser:     *lokiUser,
		LokiPassword: *lokiPassword,
		Interval:     intervalDuration,
	}

	pipelineInstance, err := pipeline.New(config)
	if err != nil {
		log.Fatalf("Failed to create pipeline: %v", err)
	}

	if *dryRun {
		log.Printf("Starting fleet debugger in DRY RUN mode")
		log.Printf("Analysis will be printed to stdout, not sent to Loki")
	} else {
		log.Printf("Starting fleet debugger in PRODUCTION mode")
		log.Printf("Annotations will be sent to Loki at: %s", *lokiURL)
	}
	if *lokiQuery != "" {
		log.Printf("Reading fleet logs from Loki: %s (last %v)", *lokiQuery, lookbackDuration)
	} else {
		log.Printf("Reading dataset: %s", *source)
	}
	if intervalDuration > 0 {
		log.Printf("Re-analysis interval: %v", intervalDuration)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- pipelineInstance.Run(ctx)
	}()

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
		select {
		case <-time.After(5 * time.Second):
			log.Println("Shutdown timeout, forcing exit")
		case <-errChan:
			log.Println("Pipeline stopped")
		}
	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			// os.Exit skips deferred calls
			log.Printf("Pipeline error: %v", err)
			shutdownProfiling()
			shutdownMetrics()
			shutdownTracing()
			os.Exit(1)
		}
		log.Println("Pipeline stopped")
	}

	log.Println("Fleet debugger shutdown complete")
}

// getEnv returns the value of an environment variable or a default value if not set
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
