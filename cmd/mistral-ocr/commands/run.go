package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/spherical/mistral-ocr/cmd/mistral-ocr/ui"
	"github.com/spherical/mistral-ocr/internal/batch"
	"github.com/spherical/mistral-ocr/internal/config"
	"github.com/spherical/mistral-ocr/internal/domain"
	"github.com/spherical/mistral-ocr/internal/input"
	"github.com/spherical/mistral-ocr/internal/manifest"
	"github.com/spherical/mistral-ocr/internal/observability"
	"github.com/spherical/mistral-ocr/internal/ocr"
	"github.com/spherical/mistral-ocr/internal/output"
	"github.com/spherical/mistral-ocr/internal/pdf"
)

// batchOutcome is what the orchestrator goroutine hands back.
type batchOutcome struct {
	manifest *domain.BatchManifest
	err      error
}

func run(cmd *cobra.Command, opts *options, inputArg string) error {
	ui.SetOutput(cmd.OutOrStdout(), cmd.ErrOrStderr())
	ui.InitUI(opts.noColor, opts.verbose)

	cfg, err := config.Load(config.LoadOptions{
		ConfigFile: fromWorkingDir(opts.configFile),
		EnvFile:    fromWorkingDir(opts.envFile),
	})
	if err != nil {
		return fail(err)
	}
	applyFlags(cmd, opts, cfg)
	ui.InitUI(opts.noColor, cfg.Verbose)

	inputPath := fromWorkingDir(inputArg)
	outputDir := outputDirFor(inputPath, fromWorkingDir(opts.outputPath), opts.addTimestamp, time.Now())

	// Input problems are reported before configuration problems.
	files, err := input.Resolve(inputPath, input.Options{
		MaxFileSize: cfg.MaxFileSize(),
		Recursive:   cfg.Recursive,
		SkipDirs:    []string{outputDir},
		SkipSuffix:  output.ImagesSuffix,
	})
	if err != nil {
		return fail(err)
	}

	if err := cfg.Validate(); err != nil {
		return fail(err)
	}

	runID := uuid.NewString()
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.LogLevel(),
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
		RunID:  runID,
	})

	ui.Header("Mistral OCR", "Powered by Mistral AI's OCR API")
	ui.Info("Processing %d file(s)", len(files))
	ui.Info("Output directory: %s", outputDir)
	ui.Detail("Model: %s", cfg.Model)
	ui.Detail("Run ID: %s", runID)

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fail(domain.IOError(fmt.Sprintf("failed to create output directory %s", outputDir), err))
	}

	client, err := ocr.NewClient(cfg.APIKey,
		ocr.WithBaseURL(cfg.BaseURL),
		ocr.WithTimeout(cfg.Timeout),
		ocr.WithLogger(logger),
	)
	if err != nil {
		return fail(err)
	}

	var pages domain.PageCounter
	if cfg.MaxPages > 0 {
		pages = pdf.NewInspector()
	}

	orchestrator := batch.NewOrchestrator(
		ocr.NewProcessor(client, ocr.RequestOptions{Model: cfg.Model, IncludeImages: cfg.IncludeImages}),
		output.NewWriter(outputDir, output.Options{IncludeImages: cfg.IncludeImages, RunID: runID}),
		output.NewNamer(outputDir, cfg.Overwrite),
		pages,
		batch.Options{OutputDir: outputDir, Concurrency: cfg.Concurrency, MaxPages: cfg.MaxPages},
		logger,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventCh := make(chan domain.Event, 16)
	resultCh := make(chan batchOutcome, 1)
	go func() {
		m, err := orchestrator.Run(ctx, files, eventCh)
		close(eventCh)
		resultCh <- batchOutcome{manifest: m, err: err}
	}()

	reporter := newReporter(len(files), cfg.Verbose)
	for event := range eventCh {
		reporter.handle(event)
	}
	reporter.finish()
	outcome := <-resultCh

	manifestPath, err := manifest.Write(outputDir, outcome.manifest)
	if err != nil {
		return fail(err)
	}

	printSummary(outcome.manifest, manifestPath)

	switch {
	case outcome.err != nil && domain.IsType(outcome.err, domain.ErrorTypeAuth):
		ui.Error("%s", describe(outcome.err))
		return exitWith(ExitFailure, outcome.err)
	case errors.Is(outcome.err, context.Canceled) || ctx.Err() != nil:
		ui.Warning("Processing interrupted by user.")
		return exitWith(ExitInterrupted, context.Canceled)
	case outcome.err != nil:
		ui.Error("%s", describe(outcome.err))
		return exitWith(ExitFailure, outcome.err)
	case outcome.manifest.Totals.Errors > 0:
		return exitWith(ExitFailure, nil)
	}

	return nil
}

// applyFlags overrides configuration with flags the user set explicitly.
func applyFlags(cmd *cobra.Command, opts *options, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("api-key") {
		cfg.APIKey = opts.apiKey
	}
	if flags.Changed("model") {
		cfg.Model = opts.model
	}
	if flags.Changed("include-images") {
		cfg.IncludeImages = opts.includeImages
	}
	if flags.Changed("no-images") {
		cfg.IncludeImages = !opts.noImages
	}
	if flags.Changed("recursive") {
		cfg.Recursive = opts.recursive
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency = opts.concurrency
	}
	if flags.Changed("overwrite") {
		cfg.Overwrite = opts.overwrite
	}
	if flags.Changed("timeout") {
		cfg.Timeout = opts.timeout
	}
	if flags.Changed("verbose") {
		cfg.Verbose = opts.verbose
	}
}

// outputDirFor returns the explicit output path, or the default folder
// next to the input: inside it for a directory, beside it for a file.
func outputDirFor(inputPath, explicit string, addTimestamp bool, now time.Time) string {
	if explicit != "" {
		return explicit
	}

	parent := inputPath
	if info, err := os.Stat(inputPath); err != nil || !info.IsDir() {
		parent = filepath.Dir(inputPath)
	}

	folder := config.DefaultOutputFolder
	if addTimestamp {
		folder += "_" + now.Format("20060102_150405")
	}
	return filepath.Join(parent, folder)
}

// fromWorkingDir resolves a relative path against $MISTRAL_OCR_CWD when a
// wrapper script has set it.
func fromWorkingDir(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if cwd := os.Getenv("MISTRAL_OCR_CWD"); cwd != "" {
		return filepath.Join(cwd, path)
	}
	return path
}

func printSummary(m *domain.BatchManifest, manifestPath string) {
	ui.Newline()

	var failed []string
	for _, r := range m.Files {
		if r.Failed() {
			failed = append(failed, fmt.Sprintf("%s: %s", r.Source, r.Error))
		}
	}

	if len(failed) == 0 {
		ui.Success("Processed %d/%d file(s) in %s", m.Succeeded(), m.Totals.Count,
			ui.FormatDuration(time.Duration(m.Totals.ElapsedSeconds*float64(time.Second))))
	} else {
		ui.Warning("Processed %d/%d file(s), %d failed, in %s", m.Succeeded(), m.Totals.Count, m.Totals.Errors,
			ui.FormatDuration(time.Duration(m.Totals.ElapsedSeconds*float64(time.Second))))
		ui.Message("%s", ui.FormatList(failed))
	}
	ui.Info("Metadata: %s", manifestPath)
}

// fail reports err and returns the matching exit error.
func fail(err error) error {
	ui.Error("%s", describe(err))
	return exitWith(ExitFailure, err)
}

// describe renders err as "<Kind>: <message>".
func describe(err error) string {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		return err.Error()
	}

	msg := de.Message
	if de.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, de.Err)
	}
	return fmt.Sprintf("%s: %s", errorKind(de.Type), msg)
}

func errorKind(t domain.ErrorType) string {
	switch t {
	case domain.ErrorTypePathNotFound:
		return "PathNotFound"
	case domain.ErrorTypeUnsupportedFormat:
		return "UnsupportedFormat"
	case domain.ErrorTypeFileTooLarge:
		return "FileTooLarge"
	case domain.ErrorTypeEmptyBatch:
		return "EmptyBatch"
	case domain.ErrorTypeAuth:
		return "AuthError"
	case domain.ErrorTypeRateLimit:
		return "RateLimitError"
	case domain.ErrorTypeService:
		return "ServiceError"
	case domain.ErrorTypeTransport:
		return "TransportError"
	case domain.ErrorTypeValidation:
		return "ValidationError"
	case domain.ErrorTypeIO:
		return "IOError"
	case domain.ErrorTypeConfig:
		return "ConfigError"
	default:
		return "Error"
	}
}
