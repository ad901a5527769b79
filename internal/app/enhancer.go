package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/shpitdev/product-data-enhancer/internal/completion"
	"github.com/shpitdev/product-data-enhancer/internal/enrich"
	"github.com/shpitdev/product-data-enhancer/internal/pipeline"
	"github.com/shpitdev/product-data-enhancer/internal/report"
	localio "github.com/shpitdev/product-data-enhancer/pkg/pipeline/io/local"
	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/redact"
	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/schema"
)

// Recorder persists a finished run. *report.Journal implements it.
type Recorder interface {
	RecordRun(ctx context.Context, run report.Run, outcomes []pipeline.Outcome) error
}

// Deps wires one run.
type Deps struct {
	Completer completion.Completer
	// Provider and Model are recorded in logs and the journal only.
	Provider string
	Model    string

	Options pipeline.Options
	// TraceRequests logs every completion call.
	TraceRequests bool

	// Logger defaults to stdout with standard flags.
	Logger *log.Logger
	// Journal is optional.
	Journal Recorder
	// Source names the input in logs and the journal.
	Source string
}

// InputError means the input could not be read as a CSV table.
type InputError struct {
	Err error
}

func (e *InputError) Error() string {
	return "read input csv: " + e.Err.Error()
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// Summary describes a finished run.
type Summary struct {
	RunID    string
	Rows     int
	OK       int
	Degraded int
	Outcomes []pipeline.Outcome
	Duration time.Duration
}

// RunLocal reads a local input CSV, enriches it with op and writes the output CSV.
//
// Nothing is written to outputPath when the run fails.
func RunLocal(ctx context.Context, op schema.Operation, inputPath, outputPath string, deps Deps) (Summary, error) {
	inF, err := os.Open(inputPath)
	if err != nil {
		return Summary{}, err
	}
	defer func() {
		_ = inF.Close()
	}()

	if deps.Source == "" {
		deps.Source = inputPath
	}
	var outBuf bytes.Buffer
	sum, err := Process(ctx, op, inF, &outBuf, deps)
	if err != nil {
		return sum, err
	}

	outF, err := os.Create(outputPath)
	if err != nil {
		return sum, err
	}
	defer func() {
		_ = outF.Close()
	}()

	if _, err := outF.Write(outBuf.Bytes()); err != nil {
		return sum, err
	}
	return sum, outF.Close()
}

// Process reads a CSV from r, enriches it with op and writes the enriched CSV to w.
//
// Input problems are reported as *InputError, missing columns as *core.ValidationError. w is
// untouched unless the whole dataset was mapped.
func Process(ctx context.Context, op schema.Operation, r io.Reader, w io.Writer, deps Deps) (Summary, error) {
	if deps.Completer == nil {
		return Summary{}, errors.New("completer is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "", log.LstdFlags)
	}

	runID := report.NewRunID()
	logf := func(format string, args ...any) {
		prefix := make([]any, 0, len(args)+1)
		prefix = append(prefix, runID)
		prefix = append(prefix, args...)
		logger.Printf("run=%s "+format, prefix...)
	}
	runStart := time.Now()
	sum := Summary{RunID: runID}

	logf(
		"run start: op=%s source=%q provider=%s model=%s timeout=%s rateLimitRPS=%g",
		op,
		deps.Source,
		deps.Provider,
		deps.Model,
		deps.Options.RequestTimeout,
		deps.Options.RateLimitRPS,
	)

	ds, err := localio.ReadCSV(r)
	if err != nil {
		return sum, &InputError{Err: err}
	}
	logf("loaded %d rows (%d columns)", ds.Len(), len(ds.Columns))

	var c completion.Completer = deps.Completer
	if deps.TraceRequests {
		c = completion.NewTraced(c, logger, runID)
	}

	opts := deps.Options
	userProgress := opts.OnProgress
	// Degraded rows are logged here only, with their row index.
	opts.OnProgress = func(p pipeline.Progress) {
		if p.Outcome.Status != pipeline.StatusOK {
			errText := ""
			if p.Outcome.Err != nil {
				errText = redact.Secrets(p.Outcome.Err.Error())
			}
			logf("row degraded: op=%s row=%d input=%q error=%q", op, p.Outcome.Row, p.Outcome.Input, errText)
		}
		if userProgress != nil {
			userProgress(p)
		}
	}

	enrichStart := time.Now()
	var res pipeline.Result
	switch op {
	case schema.OperationStandardize:
		res, err = pipeline.Standardize(ctx, ds, enrich.NewStandardizer(c, nil), opts)
	case schema.OperationExtract:
		res, err = pipeline.Extract(ctx, ds, enrich.NewExtractor(c, nil), opts)
	default:
		return sum, fmt.Errorf("unknown operation %q", op)
	}
	if err != nil {
		return sum, err
	}

	okRows, degradedRows := res.Counts()
	sum.Rows = res.Dataset.Len()
	sum.OK = okRows
	sum.Degraded = degradedRows
	sum.Outcomes = res.Outcomes
	logf(
		"enrichment complete: produced=%d ok=%d degraded=%d duration=%s",
		sum.Rows,
		okRows,
		degradedRows,
		time.Since(enrichStart).Round(time.Millisecond),
	)

	if err := localio.WriteCSV(w, res.Dataset); err != nil {
		return sum, fmt.Errorf("write output csv: %w", err)
	}
	sum.Duration = time.Since(runStart)

	if deps.Journal != nil {
		run := report.Run{
			ID:         runID,
			Operation:  string(op),
			Provider:   deps.Provider,
			Model:      deps.Model,
			Source:     deps.Source,
			StartedAt:  runStart,
			FinishedAt: time.Now(),
			Rows:       sum.Rows,
			Degraded:   sum.Degraded,
		}
		if err := deps.Journal.RecordRun(ctx, run, res.Outcomes); err != nil {
			logf("report journal write failed: error=%q", redact.Secrets(err.Error()))
		}
	}

	logf("run complete: totalDuration=%s", sum.Duration.Round(time.Millisecond))
	return sum, nil
}
