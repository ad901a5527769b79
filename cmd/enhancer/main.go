package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/shpitdev/product-data-enhancer/internal/app"
	"github.com/shpitdev/product-data-enhancer/internal/completion"
	"github.com/shpitdev/product-data-enhancer/internal/config"
	"github.com/shpitdev/product-data-enhancer/internal/pipeline"
	"github.com/shpitdev/product-data-enhancer/internal/report"
	"github.com/shpitdev/product-data-enhancer/internal/server"
	"github.com/shpitdev/product-data-enhancer/internal/version"
	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/core"
	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/redact"
	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/schema"
)

func main() {
	if os.Getenv("APP_ENV") != "production" {
		_ = godotenv.Load()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	var code int
	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
	case "version", "--version":
		_, _ = fmt.Fprintln(os.Stdout, version.Current)
	case string(schema.OperationStandardize):
		code = runOperation(ctx, schema.Standardize, os.Args[2:])
	case string(schema.OperationExtract):
		code = runOperation(ctx, schema.Extract, os.Args[2:])
	case "serve":
		code = runServe(ctx, os.Args[2:])
	case "runs":
		code = runRuns(ctx, os.Args[2:])
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		code = 2
	}
	stop()
	os.Exit(code)
}

// configFlags are the overrides shared by every command that talks to the completion service.
type configFlags struct {
	path           string
	provider       string
	model          string
	baseURL        string
	requestTimeout time.Duration
	rateLimitRPS   float64
	traceRequests  bool
	reportDB       string
}

func bindConfigFlags(fs *flag.FlagSet) *configFlags {
	def := config.Default()
	f := &configFlags{}
	fs.StringVar(&f.path, "config", "", "YAML config file (env: ENHANCER_CONFIG)")
	fs.StringVar(&f.provider, "provider", def.Provider, "Completion provider: openai|gemini (env: ENHANCER_PROVIDER)")
	fs.StringVar(&f.model, "model", "", "Model name (env: OPENAI_MODEL / GEMINI_MODEL; openai default gpt-4o)")
	fs.StringVar(&f.baseURL, "base-url", "", "Completion API base URL override (env: OPENAI_BASE_URL / GEMINI_BASE_URL)")
	fs.DurationVar(&f.requestTimeout, "request-timeout", def.RequestTimeout, "Per-row request timeout (env: REQUEST_TIMEOUT)")
	fs.Float64Var(&f.rateLimitRPS, "rate-limit-rps", def.RateLimitRPS, "Completion request rate limit (RPS), 0 disables (env: RATE_LIMIT_RPS)")
	fs.BoolVar(&f.traceRequests, "trace-requests", def.TraceRequests, "Log every completion request/response (env: TRACE_REQUESTS)")
	fs.StringVar(&f.reportDB, "report-db", "", "SQLite run journal path, empty disables (env: REPORT_DB)")
	return f
}

// resolve loads defaults < file < env, then applies only the flags set on the command line.
func (f *configFlags) resolve(fs *flag.FlagSet) (config.Config, error) {
	cfg, err := config.Load(f.path)
	if err != nil {
		return config.Config{}, err
	}
	if isFlagSet(fs, "provider") {
		cfg = cfg.ForProvider(f.provider)
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "model":
			cfg.Model = f.model
		case "base-url":
			cfg.BaseURL = f.baseURL
		case "request-timeout":
			cfg.RequestTimeout = f.requestTimeout
		case "rate-limit-rps":
			cfg.RateLimitRPS = f.rateLimitRPS
		case "trace-requests":
			cfg.TraceRequests = f.traceRequests
		case "report-db":
			cfg.ReportDB = f.reportDB
		}
	})
	return cfg, cfg.Validate()
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			set = true
		}
	})
	return set
}

// session holds what a configured command needs to run the pipelines.
type session struct {
	deps    app.Deps
	journal *report.Journal
}

func (s *session) Close() {
	if s.journal != nil {
		_ = s.journal.Close()
	}
}

func openSession(ctx context.Context, cfg config.Config) (*session, error) {
	c, err := completion.New(ctx, cfg.Completion())
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if m, ok := c.(interface{ Model() string }); ok {
		model = m.Model()
	}

	s := &session{
		deps: app.Deps{
			Completer: c,
			Provider:  cfg.Provider,
			Model:     model,
			Options: pipeline.Options{
				RequestTimeout: cfg.RequestTimeout,
				RateLimitRPS:   cfg.RateLimitRPS,
			},
			TraceRequests: cfg.TraceRequests,
			Logger:        log.New(os.Stdout, "", log.LstdFlags),
		},
	}
	if cfg.ReportDB != "" {
		j, err := report.Open(ctx, cfg.ReportDB)
		if err != nil {
			return nil, fmt.Errorf("open report journal: %w", err)
		}
		s.journal = j
		s.deps.Journal = j
	}
	return s, nil
}

func runOperation(ctx context.Context, contract schema.Contract, args []string) int {
	name := string(contract.Operation)
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var inputPath string
	var outputPath string
	fs.StringVar(&inputPath, "input", "", fmt.Sprintf("Input CSV file path (must include %v)", contract.Required))
	fs.StringVar(&outputPath, "output", "", "Output CSV file path")
	cf := bindConfigFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if inputPath == "" || outputPath == "" {
		_, _ = fmt.Fprintf(os.Stderr, "%s requires --input and --output\n", name)
		return 2
	}

	cfg, err := cf.resolve(fs)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}
	sess, err := openSession(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s config error: %s\n", cfg.Provider, redact.Secrets(err.Error()))
		return 2
	}
	defer sess.Close()

	sum, err := app.RunLocal(ctx, contract.Operation, inputPath, outputPath, sess.deps)
	if err != nil {
		var ve *core.ValidationError
		if errors.As(err, &ve) {
			_, _ = fmt.Fprintf(os.Stderr, "%s rejected: %s\n", contract.Title, ve.Error())
			return 1
		}
		_, _ = fmt.Fprintf(os.Stderr, "%s run failed: %s\n", name, redact.Secrets(err.Error()))
		return 1
	}
	_, _ = fmt.Fprintf(os.Stdout, "%s: wrote %d rows to %s (%d degraded, run %s)\n", contract.Title, sum.Rows, outputPath, sum.Degraded, sum.RunID)
	return 0
}

func runServe(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var listenAddr string
	fs.StringVar(&listenAddr, "listen", "", "Listen address (env: LISTEN_ADDR, default :8080)")
	cf := bindConfigFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := cf.resolve(fs)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	sess, err := openSession(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s config error: %s\n", cfg.Provider, redact.Secrets(err.Error()))
		return 2
	}
	defer sess.Close()

	logger := sess.deps.Logger
	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.New(sess.deps).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("enhancer %s listening on %s (provider=%s model=%s)", version.Current, cfg.ListenAddr, cfg.Provider, sess.deps.Model)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			_, _ = fmt.Fprintf(os.Stderr, "server error: %s\n", redact.Secrets(err.Error()))
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	logger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		return 1
	}
	return 0
}

func runRuns(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	cfgPath := fs.String("config", "", "YAML config file (env: ENHANCER_CONFIG)")
	reportDB := fs.String("report-db", "", "SQLite run journal path (env: REPORT_DB)")
	limit := fs.Int("limit", 20, "Number of most recent runs to list")
	runID := fs.String("run", "", "Show the degraded rows of this run instead of listing runs")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}
	if *reportDB != "" {
		cfg.ReportDB = *reportDB
	}
	if cfg.ReportDB == "" {
		_, _ = fmt.Fprintln(os.Stderr, "runs requires --report-db (or REPORT_DB)")
		return 2
	}

	j, err := report.Open(ctx, cfg.ReportDB)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "open report journal: %v\n", err)
		return 1
	}
	defer func() {
		_ = j.Close()
	}()

	if *runID != "" {
		rows, err := j.Degraded(ctx, *runID)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "runs failed: %v\n", err)
			return 1
		}
		printDegraded(os.Stdout, rows)
		return 0
	}

	runs, err := j.ListRuns(ctx, *limit)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "runs failed: %v\n", err)
		return 1
	}
	printRuns(os.Stdout, runs)
	return 0
}

func printRuns(w io.Writer, runs []report.Run) {
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(w, "no runs recorded")
		return
	}
	for _, r := range runs {
		_, _ = fmt.Fprintf(
			w,
			"%s  %-11s  rows=%d degraded=%d  provider=%s model=%s  started=%s duration=%s  source=%q\n",
			r.ID,
			r.Operation,
			r.Rows,
			r.Degraded,
			r.Provider,
			r.Model,
			r.StartedAt.Local().Format(time.RFC3339),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
			r.Source,
		)
	}
}

func printDegraded(w io.Writer, rows []report.RowOutcome) {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, "no degraded rows")
		return
	}
	for _, r := range rows {
		_, _ = fmt.Fprintf(w, "row=%d input=%q error=%q\n", r.Row, r.Input, r.Error)
	}
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintf(w, `enhancer %s: LLM-backed dish data enrichment for CSV tables

Usage:
  enhancer <command> [flags]

Commands:
  standardize  Standardize Product Names: adds level1_standard_name, level2_standard_name
  extract      Extract Food Attributes: adds cuisine, main_ingredients, cooking_method, dietary_labels
  serve        Serve both operations over HTTP (upload CSV, download processed_data.csv)
  runs         List recorded runs, or the degraded rows of one run (--run <id>)
  version      Print the version

Examples:
  enhancer standardize --input menu.csv --output processed_data.csv
  enhancer extract --input menu.csv --output processed_data.csv --provider gemini
  enhancer serve --listen :8080 --report-db runs.db

Environment:
  ENHANCER_CONFIG     YAML config file (same keys as the flags, snake_case)
  ENHANCER_PROVIDER   openai (default) or gemini
  OPENAI_API_KEY      OpenAI API key (provider=openai)
  OPENAI_MODEL        OpenAI model name (default gpt-4o)
  OPENAI_BASE_URL     Optional chat completions URL override
  GEMINI_API_KEY      Gemini API key (provider=gemini)
  GEMINI_MODEL        Gemini model name (required for provider=gemini)
  GEMINI_BASE_URL     Optional base URL override (proxies/testing)
  REQUEST_TIMEOUT     Per-row request timeout (default 30s)
  RATE_LIMIT_RPS      Completion request rate limit, 0 disables
  TRACE_REQUESTS      If true, log every completion request/response
  REPORT_DB           SQLite run journal path, empty disables
  LISTEN_ADDR         serve listen address (default :8080)
  APP_ENV             If "production", .env is not loaded

`, version.Current)
}
