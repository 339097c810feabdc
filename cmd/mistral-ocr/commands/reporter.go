package commands

import (
	"fmt"

	"github.com/spherical/mistral-ocr/cmd/mistral-ocr/ui"
	"github.com/spherical/mistral-ocr/internal/domain"
	"github.com/spherical/mistral-ocr/internal/input"
)

// reporter renders batch events: per-file lines in verbose mode, otherwise
// a spinner for a single file or a progress bar for several.
type reporter struct {
	total   int
	verbose bool
	bar     *ui.ProgressBar
	spinner *ui.Spinner
}

func newReporter(total int, verbose bool) *reporter {
	r := &reporter{total: total, verbose: verbose}
	switch {
	case verbose:
	case total == 1:
		r.spinner = ui.NewSpinner("Processing...")
		r.spinner.Start()
	default:
		r.bar = ui.NewProgressBar(int64(total), "Processing files...")
	}
	return r
}

func (r *reporter) handle(event domain.Event) {
	switch event.Type {
	case domain.EventFileProcessing:
		if event.File == nil {
			return
		}
		label := fmt.Sprintf("Processing %s (%s)...", event.File.RelPath, input.FormatSize(event.File.Size))
		switch {
		case r.verbose:
			ui.Info("[%d/%d] %s", event.Index, event.Total, label)
		case r.spinner != nil:
			r.spinner.UpdateMessage(label)
		case r.bar != nil:
			r.bar.Describe(label)
		}

	case domain.EventFileComplete:
		if r.bar != nil {
			r.bar.Set(int64(event.Index))
		}
		if !r.verbose || event.Record == nil {
			return
		}
		rec := event.Record
		if rec.Failed() {
			ui.Error("%s failed after %s", rec.Source, ui.FormatDuration(rec.Elapsed()))
			ui.Detail("%s", rec.Error)
			return
		}
		ui.Success("%s → %s (%s)", rec.Source, rec.Output, ui.FormatDuration(rec.Elapsed()))
	}
}

func (r *reporter) finish() {
	if r.spinner != nil {
		r.spinner.Stop()
	}
	if r.bar != nil {
		r.bar.Finish()
	}
}
