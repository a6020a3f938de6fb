package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"fleetdebugger/pkg/dataset"
	"fleetdebugger/pkg/engine"
	"fleetdebugger/pkg/loki"
	"fleetdebugger/pkg/metrics"
	fdotel "fleetdebugger/pkg/otel"
	"fleetdebugger/pkg/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Pipeline struct {
	config       Config
	solutionType types.SolutionType
	datasets     *dataset.Client
	lokiClient   *loki.Client
	where        *engine.Predicate
	out          io.Writer
	tracer       trace.Tracer
}

type Config struct {
	// Source is a dataset file path or http(s) URL.
	Source       string
	DatasetToken string
	// LokiQuery reads raw records from Loki instead of Source, covering
	// LokiLookback up to now.
	LokiQuery    string
	LokiLookback time.Duration
	LokiLimit    int
	// SolutionType overrides the one declared by the dataset. Datasets
	// declaring none default to ODRD.
	SolutionType string
	DryRun       bool
	// Filter is an expression selecting log entries for the dry run report.
	Filter       string
	LokiURL      string
	LokiUser     string
	LokiPassword string
	// Interval repeats the analysis; zero runs it once.
	Interval time.Duration
	// Output receives dry run reports, stdout when nil.
	Output io.Writer
}

func New(config Config) (*Pipeline, error) {
	if config.Source == "" && config.LokiQuery == "" {
		return nil, fmt.Errorf("a dataset source or Loki query is required")
	}
	if config.Source != "" && config.LokiQuery != "" {
		return nil, fmt.Errorf("dataset source and Loki query are mutually exclusive")
	}
	if config.LokiURL == "" && (config.LokiQuery != "" || !config.DryRun) {
		return nil, fmt.Errorf("Loki URL is required")
	}
	if config.Interval < 0 {
		return nil, fmt.Errorf("interval must not be negative")
	}

	pipeline := &Pipeline{
		config:   config,
		datasets: dataset.NewClient(config.DatasetToken, 0),
		out:      config.Output,
		tracer:   otel.Tracer("pipeline"),
	}
	if pipeline.out == nil {
		pipeline.out = os.Stdout
	}
	if config.SolutionType != "" {
		st, err := types.ParseSolutionType(config.SolutionType)
		if err != nil {
			return nil, err
		}
		pipeline.solutionType = st
	}
	if config.Filter != "" {
		where, err := engine.CompilePredicate(config.Filter)
		if err != nil {
			return nil, err
		}
		pipeline.where = where
	}
	if config.LokiLookback <= 0 {
		pipeline.config.LokiLookback = time.Hour
	}

	// Loki is needed to read the query or to push annotations
	if config.LokiQuery != "" || !config.DryRun {
		pipeline.lokiClient = loki.NewClient(config.LokiURL, config.LokiUser, config.LokiPassword)
	}

	return pipeline, nil
}

// Run analyses the dataset once, or on every tick of a non-zero interval
// until ctx is cancelled. Each cycle builds a fresh engine.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.config.Interval == 0 {
		return p.runCycle(ctx)
	}

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	log.Printf("Pipeline started - analysing every %v", p.config.Interval)

	if err := p.runCycle(ctx); err != nil {
		log.Printf("Error in initial analysis: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			log.Println("Pipeline stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := p.runCycle(ctx); err != nil {
				log.Printf("Error analysing dataset: %v", err)
			}
		}
	}
}

func (p *Pipeline) runCycle(ctx context.Context) error {
	start := time.Now()
	err := p.processOnce(ctx)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordPipelineCycle(ctx, status, time.Since(start))
	return err
}

func (p *Pipeline) processOnce(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "pipeline.process_once",
		trace.WithAttributes(
			attribute.String("source", p.config.Source),
			attribute.String("loki_query", p.config.LokiQuery),
			attribute.Bool("dry_run", p.config.DryRun),
		),
	)
	defer span.End()

	ds, err := p.load(ctx)
	if err != nil {
		fdotel.RecordClassifiedError(span, err, fdotel.ErrorTypeIO)
		return err
	}

	solutionType := p.solutionType
	if solutionType == "" {
		solutionType = ds.SolutionType
	}
	if solutionType == "" {
		solutionType = types.SolutionODRD
	}

	eng, err := engine.New(ctx, ds.Records, solutionType)
	if err != nil {
		fdotel.RecordError(span, err, fdotel.ErrorTypeValidation, false)
		return err
	}
	defer eng.Close()

	annotations := eng.Logs(ctx, eng.MinDate(), eng.MaxDate(), engine.Filter{
		APITypes: []types.APIType{types.APIHighVelocityJump, types.APIMissingUpdate},
	})

	span.SetAttributes(
		attribute.String("engine.id", eng.ID()),
		attribute.String("solution_type", string(solutionType)),
		attribute.Int("records", len(ds.Records)),
		attribute.Int("annotations", len(annotations)),
	)

	if p.config.DryRun {
		err = p.handleDryRun(ctx, eng, annotations)
	} else {
		err = p.sendToLoki(ctx, eng.ID(), annotations)
	}
	if err != nil {
		fdotel.RecordClassifiedError(span, err, fdotel.ErrorTypeIO)
		return err
	}
	metrics.RecordAnalysis(len(eng.Events()), len(annotations))
	fdotel.SetSpanOk(span)
	return nil
}

func (p *Pipeline) load(ctx context.Context) (*dataset.Dataset, error) {
	if p.config.LokiQuery == "" {
		ds, err := p.datasets.Load(ctx, p.config.Source)
		if err != nil {
			return nil, fmt.Errorf("failed to load dataset: %w", err)
		}
		return ds, nil
	}

	if p.lokiClient == nil {
		return nil, errors.New("loki client not initialized")
	}
	end := time.Now()
	records, err := p.lokiClient.QueryRange(ctx, p.config.LokiQuery, end.Add(-p.config.LokiLookback), end, p.config.LokiLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query Loki: %w", err)
	}
	return &dataset.Dataset{Records: records}, nil
}

func (p *Pipeline) handleDryRun(ctx context.Context, eng *engine.Engine, annotations []engine.LogEntry) error {
	_, span := p.tracer.Start(ctx, "pipeline.dry_run")
	defer span.End()

	minDate, maxDate := eng.MinDate(), eng.MaxDate()
	missing := eng.MissingUpdates(minDate, maxDate)
	jumps := eng.HighVelocityJumps(minDate, maxDate)
	dwells := eng.DwellLocations(minDate, maxDate)
	etas := eng.ETADeltas(minDate, maxDate)
	taskStates := eng.TasksAsOf(maxDate)

	w := p.out
	fmt.Fprintf(w, "\n=== DRY RUN - Dataset %s (%s) ===\n", eng.ID(), eng.SolutionType())
	fmt.Fprintf(w, "Events: %d\n", len(eng.Events()))
	fmt.Fprintf(w, "Range: %s - %s\n", minDate.Format(time.RFC3339), maxDate.Format(time.RFC3339))
	if status, ok := eng.TripStatusAt(maxDate); ok {
		fmt.Fprintf(w, "Trip status at end: %s\n", status)
	}

	fmt.Fprintf(w, "\nTrips (%d):\n", len(eng.Trips()))
	for _, trip := range eng.Trips() {
		fmt.Fprintf(w, "  %d. %s: %d updates over %v, %d path points\n",
			trip.Index+1, trip.Name, trip.UpdateCount, trip.Duration, len(trip.Path))
	}

	fmt.Fprintf(w, "\nMissing updates: %d (median interval %v, threshold %v)\n",
		len(missing.Updates), missing.Median, missing.Threshold)
	fmt.Fprintf(w, "Velocity jumps: %d (threshold %.1f m/s)\n", len(jumps.Jumps), jumps.Threshold)
	fmt.Fprintf(w, "Dwell locations: %d\n", len(dwells))
	for i, d := range dwells {
		fmt.Fprintf(w, "  %d. (%.6f, %.6f) for %v, %d updates\n",
			i+1, d.Leader.Lat(), d.Leader.Lon(), d.Duration(), d.UpdateCount)
	}
	fmt.Fprintf(w, "ETA deltas: %d\n", len(etas))
	if len(taskStates) > 0 {
		fmt.Fprintf(w, "Tasks: %d\n", len(taskStates))
		for _, ts := range taskStates {
			fmt.Fprintf(w, "  %s: %s %s\n", ts.ID, ts.State, ts.Outcome)
		}
	}

	if p.where != nil {
		matching := eng.Logs(ctx, minDate, maxDate, engine.Filter{Where: p.where})
		fmt.Fprintf(w, "\nFilter %s matches %d log entries:\n", p.where, len(matching))
		for _, le := range matching {
			fmt.Fprintf(w, "  %s %s %v\n", le.Timestamp, le.APIType, le.TripIDs)
		}
	}

	fmt.Fprintln(w, "\nAnnotation Log Lines (as sent to Loki):")
	fmt.Fprintln(w, "----------------------------------------")
	for i, entry := range annotations {
		line, err := json.Marshal(entry)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to marshal annotation for dry run: %w", err)
		}
		fmt.Fprintf(w, "Log Line %d: %s\n", i+1, line)
	}
	fmt.Fprintln(w, "=== END DRY RUN ===")

	span.SetAttributes(attribute.Int("annotations_printed", len(annotations)))
	return nil
}

func (p *Pipeline) sendToLoki(ctx context.Context, runID string, annotations []engine.LogEntry) error {
	ctx, span := p.tracer.Start(ctx, "pipeline.send_to_loki")
	defer span.End()

	if p.lokiClient == nil {
		err := fmt.Errorf("loki client not initialized")
		span.RecordError(err)
		return err
	}

	if err := p.lokiClient.SendAnnotations(ctx, runID, annotations); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to send annotations to Loki: %w", err)
	}

	log.Printf("Sent %d anomaly annotations to Loki for run %s", len(annotations), runID)

	span.SetAttributes(attribute.Int("annotations_sent", len(annotations)))
	return nil
}
