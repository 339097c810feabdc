// Package batch runs a resolved set of files through the OCR pipeline and
// records one outcome per file.
package batch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spherical/mistral-ocr/internal/domain"
	"github.com/spherical/mistral-ocr/internal/manifest"
	"github.com/spherical/mistral-ocr/internal/observability"
	"github.com/spherical/mistral-ocr/internal/pdf"
)

const abortedAfterAuth = "batch aborted after authentication failure"

// Namer reserves a unique output basename for an input stem
type Namer interface {
	Reserve(stem string) string
}

// Options configures an Orchestrator
type Options struct {
	OutputDir   string // Record outputs are made relative to this directory
	Concurrency int    // Files processed in parallel; <= 1 is sequential
	MaxPages    int    // PDF page ceiling checked before submission; 0 disables
}

// Orchestrator drives the per-file pipeline for a batch
type Orchestrator struct {
	processor domain.OCRProcessor
	writer    domain.ResultWriter
	namer     Namer
	pages     domain.PageCounter
	opts      Options
	logger    *observability.Logger
}

// NewOrchestrator creates a new batch orchestrator. pages may be nil to
// skip the PDF page pre-flight.
func NewOrchestrator(processor domain.OCRProcessor, writer domain.ResultWriter, namer Namer, pages domain.PageCounter, opts Options, logger *observability.Logger) *Orchestrator {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Orchestrator{
		processor: processor,
		writer:    writer,
		namer:     namer,
		pages:     pages,
		opts:      opts,
		logger:    logger.WithOperation("batch"),
	}
}

// Run processes files and returns the manifest of their outcomes, in input
// order. The returned error is the AuthError that aborted the batch or the
// context's error; per-file failures are only recorded.
func (o *Orchestrator) Run(ctx context.Context, files []domain.InputFile, eventCh chan<- domain.Event) (*domain.BatchManifest, error) {
	startTime := time.Now()
	total := len(files)

	// Reserve every name up front so naming does not depend on completion order.
	names := make([]string, total)
	for i, f := range files {
		names[i] = o.namer.Reserve(f.Stem())
	}

	o.emitEvent(ctx, eventCh, domain.Event{
		Type:      domain.EventStart,
		Total:     total,
		Payload:   fmt.Sprintf("Processing %d file(s)", total),
		Timestamp: time.Now(),
	})
	o.logger.Debug().Int("files", total).Int("concurrency", o.concurrency()).Msg("batch started")

	records := make([]domain.ProcessingRecord, total)
	processed := make([]bool, total)

	var (
		aborted   atomic.Bool
		completed atomic.Int64
		authOnce  sync.Once
		authErr   error
	)

	process := func(i int) {
		if aborted.Load() || ctx.Err() != nil {
			return
		}
		file := files[i]

		o.emitEvent(ctx, eventCh, domain.Event{
			Type:      domain.EventFileProcessing,
			Index:     i + 1,
			Total:     total,
			File:      &file,
			Payload:   fmt.Sprintf("Processing %s", file.RelPath),
			Timestamp: time.Now(),
		})

		record, err := o.processFile(ctx, file, names[i])
		if domain.IsType(err, domain.ErrorTypeAuth) {
			authOnce.Do(func() { authErr = err })
			aborted.Store(true)
		} else if err != nil && ctx.Err() != nil {
			record.Error = notProcessed(ctx.Err().Error())
		}

		records[i] = record
		processed[i] = true
		done := int(completed.Add(1))

		o.emitEvent(ctx, eventCh, domain.Event{
			Type:      domain.EventFileComplete,
			Index:     done,
			Total:     total,
			File:      &file,
			Record:    &record,
			Timestamp: time.Now(),
		})
		if record.Failed() {
			o.emitEvent(ctx, eventCh, domain.Event{
				Type:      domain.EventError,
				Index:     i + 1,
				Total:     total,
				File:      &file,
				Record:    &record,
				Payload:   fmt.Sprintf("%s: %s", file.RelPath, record.Error),
				Timestamp: time.Now(),
			})
		}
	}

	if o.concurrency() <= 1 {
		for i := range files {
			if aborted.Load() || ctx.Err() != nil {
				break
			}
			process(i)
		}
	} else {
		g := new(errgroup.Group)
		g.SetLimit(o.concurrency())
		for i := range files {
			if aborted.Load() || ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				process(i)
				return nil
			})
		}
		_ = g.Wait()
	}

	var runErr error
	reason := ""
	switch {
	case aborted.Load():
		runErr = authErr
		reason = notProcessed(abortedAfterAuth)
	case ctx.Err() != nil:
		runErr = ctx.Err()
		reason = notProcessed(ctx.Err().Error())
	}
	for i, f := range files {
		if !processed[i] {
			records[i] = domain.ProcessingRecord{
				Source:    f.RelPath,
				SizeBytes: f.Size,
				Status:    domain.StatusError,
				Error:     reason,
			}
		}
	}

	result := manifest.New(records, time.Since(startTime))

	o.emitEvent(ctx, eventCh, domain.Event{
		Type:  domain.EventComplete,
		Index: int(completed.Load()),
		Total: total,
		Payload: fmt.Sprintf("Batch complete: %d/%d files successful in %v",
			result.Succeeded(), total, time.Since(startTime).Round(time.Millisecond)),
		Timestamp: time.Now(),
	})
	o.logger.Debug().
		Int("files", total).
		Int("errors", result.Totals.Errors).
		Dur("elapsed", time.Since(startTime)).
		Msg("batch finished")

	return result, runErr
}

func (o *Orchestrator) concurrency() int {
	if o.opts.Concurrency < 1 {
		return 1
	}
	return o.opts.Concurrency
}

// processFile runs one file through pre-flight, recognition and writing.
func (o *Orchestrator) processFile(ctx context.Context, file domain.InputFile, name string) (domain.ProcessingRecord, error) {
	start := time.Now()
	logger := o.logger.WithFile(file.RelPath)

	record := domain.ProcessingRecord{
		Source:    file.RelPath,
		SizeBytes: file.Size,
	}

	outPath, err := o.runPipeline(ctx, file, name, logger)
	record.ElapsedSeconds = manifest.Seconds(time.Since(start))

	if err != nil {
		record.Status = domain.StatusError
		record.Error = err.Error()
		logger.Debug().
			Str("error_type", string(domain.TypeOf(err))).
			Err(err).
			Dur("elapsed", time.Since(start)).
			Msg("file failed")
		return record, err
	}

	record.Status = domain.StatusSuccess
	record.Output = outPath
	logger.Debug().
		Str("output", outPath).
		Dur("elapsed", time.Since(start)).
		Msg("file processed")
	return record, nil
}

func (o *Orchestrator) runPipeline(ctx context.Context, file domain.InputFile, name string, logger *observability.Logger) (string, error) {
	if err := o.checkPages(file, logger); err != nil {
		return "", err
	}

	result, err := o.processor.ProcessFile(ctx, file)
	if err != nil {
		return "", err
	}

	mdPath, err := o.writer.Write(name, file, result)
	if err != nil {
		return "", err
	}

	return o.relativeOutput(mdPath), nil
}

// checkPages rejects a document only when its page count is known to
// exceed the limit. Documents that cannot be counted locally are left to
// the service.
func (o *Orchestrator) checkPages(file domain.InputFile, logger *observability.Logger) error {
	if !file.Format.IsDocument() || o.pages == nil || o.opts.MaxPages <= 0 {
		return nil
	}

	pages, err := o.pages.PageCount(file.Path)
	if err != nil {
		logger.Debug().Err(err).Msg("page count unavailable, submitting anyway")
		return nil
	}
	return pdf.CheckPageLimit(pages, o.opts.MaxPages)
}

func (o *Orchestrator) relativeOutput(path string) string {
	if o.opts.OutputDir == "" {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(o.opts.OutputDir, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func notProcessed(reason string) string {
	return "not processed: " + reason
}

// emitEvent delivers an event without dropping it, unless ctx is done.
func (o *Orchestrator) emitEvent(ctx context.Context, eventCh chan<- domain.Event, event domain.Event) {
	if eventCh == nil {
		return
	}
	select {
	case eventCh <- event:
	case <-ctx.Done():
	}
}
