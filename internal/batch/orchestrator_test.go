package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/mistral-ocr/internal/domain"
	"github.com/spherical/mistral-ocr/internal/manifest"
	"github.com/spherical/mistral-ocr/internal/output"
)

// fakeProcessor returns canned results or errors keyed by RelPath.
type fakeProcessor struct {
	mu     sync.Mutex
	calls  []string
	errs   map[string]error
	delays map[string]time.Duration
	onCall func(domain.InputFile)
}

func (f *fakeProcessor) ProcessFile(ctx context.Context, file domain.InputFile) (*domain.OCRResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, file.RelPath)
	f.mu.Unlock()

	if f.onCall != nil {
		f.onCall(file)
	}
	if d := f.delays[file.RelPath]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, domain.TransportError("failed to send request", ctx.Err())
		}
	}
	if err := f.errs[file.RelPath]; err != nil {
		return nil, err
	}

	return &domain.OCRResult{
		Model: "mistral-ocr-latest",
		Pages: []domain.OCRPage{{
			Index:    0,
			Markdown: "text of " + file.RelPath + "\n\n![img-0.jpeg](img-0.jpeg)",
			Images:   []domain.ExtractedImage{{ID: "img-0.jpeg", Page: 1, Data: []byte("img"), MIMEType: "image/png"}},
		}},
		PagesProcessed: 1,
	}, nil
}

func (f *fakeProcessor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fixedPages int

func (p fixedPages) PageCount(string) (int, error) { return int(p), nil }

type unreadablePages struct{}

func (unreadablePages) PageCount(path string) (int, error) {
	return 0, domain.ValidationError("cannot open PDF: "+path, nil)
}

func inputs(names ...string) []domain.InputFile {
	files := make([]domain.InputFile, len(names))
	for i, n := range names {
		format, _ := domain.FormatFromPath(n)
		files[i] = domain.InputFile{Path: filepath.Join("/in", n), RelPath: n, Size: int64(100 * (i + 1)), Format: format}
	}
	return files
}

func newOrchestrator(t *testing.T, proc domain.OCRProcessor, opts Options) (*Orchestrator, string) {
	t.Helper()
	dir := t.TempDir()
	opts.OutputDir = dir
	writer := output.NewWriter(dir, output.Options{IncludeImages: true})
	return NewOrchestrator(proc, writer, output.NewNamer(dir, false), nil, opts, nil), dir
}

func TestRun_AllSucceed(t *testing.T) {
	proc := &fakeProcessor{}
	orch, dir := newOrchestrator(t, proc, Options{})

	m, err := orch.Run(context.Background(), inputs("a.pdf", "b.png"), nil)
	require.NoError(t, err)

	require.Len(t, m.Files, 2)
	assert.Equal(t, 2, m.Totals.Count)
	assert.Equal(t, 0, m.Totals.Errors)
	assert.Equal(t, "a.pdf", m.Files[0].Source)
	assert.Equal(t, "a.md", m.Files[0].Output)
	assert.Equal(t, int64(100), m.Files[0].SizeBytes)
	assert.Equal(t, domain.StatusSuccess, m.Files[1].Status)

	assert.FileExists(t, filepath.Join(dir, "a.md"))
	assert.FileExists(t, filepath.Join(dir, "a_images", "page1_img1.png"))
	assert.FileExists(t, filepath.Join(dir, "b.md"))
}

func TestRun_ServiceErrorContinues(t *testing.T) {
	proc := &fakeProcessor{errs: map[string]error{
		"b.pdf": domain.ServiceError("API returned status 500: internal failure", nil),
	}}
	orch, dir := newOrchestrator(t, proc, Options{})

	m, err := orch.Run(context.Background(), inputs("a.pdf", "b.pdf", "c.pdf"), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.pdf", "b.pdf", "c.pdf"}, proc.Calls())
	require.Len(t, m.Files, 3)
	assert.Equal(t, 1, m.Totals.Errors)
	assert.True(t, m.Files[1].Failed())
	assert.Contains(t, m.Files[1].Error, "internal failure")
	assert.Empty(t, m.Files[1].Output)
	assert.Equal(t, domain.StatusSuccess, m.Files[2].Status)
	assert.NoFileExists(t, filepath.Join(dir, "b.md"))
}

func TestRun_AuthErrorAborts(t *testing.T) {
	proc := &fakeProcessor{errs: map[string]error{
		"doc.pdf": domain.AuthError("authentication failed (status 401)", nil),
	}}
	orch, dir := newOrchestrator(t, proc, Options{})

	m, err := orch.Run(context.Background(), inputs("doc.pdf", "e.pdf", "f.png"), nil)
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeAuth))

	assert.Equal(t, []string{"doc.pdf"}, proc.Calls(), "no file is submitted after an auth failure")
	require.Len(t, m.Files, 3)
	assert.Equal(t, 3, m.Totals.Errors)
	assert.Contains(t, m.Files[0].Error, "authentication failed")
	assert.Equal(t, "not processed: batch aborted after authentication failure", m.Files[1].Error)
	assert.Equal(t, "e.pdf", m.Files[1].Source)
	assert.Equal(t, int64(200), m.Files[1].SizeBytes)
	assert.NoFileExists(t, filepath.Join(dir, "doc.md"))

	// The manifest still round-trips after an aborted batch.
	path, err := manifest.Write(dir, m)
	require.NoError(t, err)
	read, err := manifest.Read(path)
	require.NoError(t, err)
	assert.Equal(t, 3, read.Totals.Count)
	assert.Equal(t, domain.StatusError, read.Files[0].Status)
}

func TestRun_ConcurrentKeepsInputOrder(t *testing.T) {
	names := make([]string, 8)
	delays := make(map[string]time.Duration)
	for i := range names {
		names[i] = fmt.Sprintf("f%d.pdf", i)
		delays[names[i]] = time.Duration(len(names)-i) * 5 * time.Millisecond
	}
	proc := &fakeProcessor{delays: delays, errs: map[string]error{
		"f3.pdf": domain.RateLimitError("rate limit exceeded (status 429)", nil),
	}}
	orch, _ := newOrchestrator(t, proc, Options{Concurrency: 4})

	m, err := orch.Run(context.Background(), inputs(names...), nil)
	require.NoError(t, err)

	require.Len(t, m.Files, len(names))
	for i, r := range m.Files {
		assert.Equal(t, names[i], r.Source)
	}
	assert.Equal(t, 1, m.Totals.Errors)
	assert.True(t, m.Files[3].Failed())
	assert.Len(t, proc.Calls(), len(names))
}

func TestRun_ConcurrentAuthStopsSubmissions(t *testing.T) {
	names := make([]string, 20)
	delays := make(map[string]time.Duration)
	for i := range names {
		names[i] = fmt.Sprintf("f%02d.pdf", i)
		if i > 0 {
			delays[names[i]] = 20 * time.Millisecond
		}
	}
	proc := &fakeProcessor{delays: delays, errs: map[string]error{
		"f00.pdf": domain.AuthError("authentication failed (status 401)", nil),
	}}
	orch, _ := newOrchestrator(t, proc, Options{Concurrency: 2})

	m, err := orch.Run(context.Background(), inputs(names...), nil)
	assert.True(t, domain.IsType(err, domain.ErrorTypeAuth))
	require.Len(t, m.Files, len(names))
	assert.Less(t, len(proc.Calls()), len(names))
	assert.Equal(t, "not processed: batch aborted after authentication failure", m.Files[len(names)-1].Error)
}

func TestRun_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	proc := &fakeProcessor{onCall: func(f domain.InputFile) {
		if f.RelPath == "b.pdf" {
			cancel()
		}
	}, delays: map[string]time.Duration{"b.pdf": time.Second}}
	orch, _ := newOrchestrator(t, proc, Options{})

	m, err := orch.Run(ctx, inputs("a.pdf", "b.pdf", "c.pdf"), nil)
	assert.ErrorIs(t, err, context.Canceled)

	require.Len(t, m.Files, 3)
	assert.Equal(t, domain.StatusSuccess, m.Files[0].Status)
	assert.Equal(t, "not processed: context canceled", m.Files[1].Error)
	assert.Equal(t, "not processed: context canceled", m.Files[2].Error)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, proc.Calls())
}

func TestRun_PageLimit(t *testing.T) {
	proc := &fakeProcessor{}
	dir := t.TempDir()
	orch := NewOrchestrator(proc, output.NewWriter(dir, output.Options{}), output.NewNamer(dir, false),
		fixedPages(1200), Options{OutputDir: dir, MaxPages: 1000}, nil)

	m, err := orch.Run(context.Background(), inputs("long.pdf", "photo.png"), nil)
	require.NoError(t, err)

	assert.True(t, m.Files[0].Failed())
	assert.Contains(t, m.Files[0].Error, "1200 pages")
	assert.Equal(t, domain.StatusSuccess, m.Files[1].Status, "images skip the page check")
	assert.Equal(t, []string{"photo.png"}, proc.Calls(), "no request for a rejected file")
}

func TestRun_UncountablePDFIsSubmitted(t *testing.T) {
	proc := &fakeProcessor{}
	dir := t.TempDir()
	orch := NewOrchestrator(proc, output.NewWriter(dir, output.Options{}), output.NewNamer(dir, false),
		unreadablePages{}, Options{OutputDir: dir, MaxPages: 1000}, nil)

	m, err := orch.Run(context.Background(), inputs("odd.pdf"), nil)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusSuccess, m.Files[0].Status)
	assert.Equal(t, []string{"odd.pdf"}, proc.Calls())
}

func TestRun_DuplicateStems(t *testing.T) {
	proc := &fakeProcessor{}
	orch, dir := newOrchestrator(t, proc, Options{})

	files := []domain.InputFile{
		{Path: "/in/one/report.pdf", RelPath: "one/report.pdf", Format: domain.FormatPDF},
		{Path: "/in/two/report.pdf", RelPath: "two/report.pdf", Format: domain.FormatPDF},
	}
	m, err := orch.Run(context.Background(), files, nil)
	require.NoError(t, err)

	assert.Equal(t, "report.md", m.Files[0].Output)
	assert.Equal(t, "report_2.md", m.Files[1].Output)
	assert.FileExists(t, filepath.Join(dir, "report_2_images", "page1_img1.png"))
}

func TestRun_DoesNotOverwriteEarlierRun(t *testing.T) {
	proc := &fakeProcessor{}
	orch, dir := newOrchestrator(t, proc, Options{})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("earlier"), 0644))

	// The namer snapshot is taken at construction, so rebuild it.
	orch.namer = output.NewNamer(dir, false)
	m, err := orch.Run(context.Background(), inputs("a.pdf"), nil)
	require.NoError(t, err)

	assert.Equal(t, "a_2.md", m.Files[0].Output)
	data, err := os.ReadFile(filepath.Join(dir, "a.md"))
	require.NoError(t, err)
	assert.Equal(t, "earlier", string(data))
}

func TestRun_Events(t *testing.T) {
	proc := &fakeProcessor{errs: map[string]error{"b.png": domain.TransportError("failed to send request", nil)}}
	orch, _ := newOrchestrator(t, proc, Options{})

	eventCh := make(chan domain.Event)
	var events []domain.Event
	done := make(chan struct{})
	go func() {
		for e := range eventCh {
			events = append(events, e)
		}
		close(done)
	}()

	_, err := orch.Run(context.Background(), inputs("a.pdf", "b.png"), eventCh)
	close(eventCh)
	<-done
	require.NoError(t, err)

	var types []domain.EventType
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []domain.EventType{
		domain.EventStart,
		domain.EventFileProcessing, domain.EventFileComplete,
		domain.EventFileProcessing, domain.EventFileComplete, domain.EventError,
		domain.EventComplete,
	}, types)

	assert.Equal(t, 2, events[0].Total)
	assert.Equal(t, 1, events[2].Index)
	assert.Equal(t, 2, events[4].Index)
	require.NotNil(t, events[4].Record)
	assert.True(t, events[4].Record.Failed())
}
