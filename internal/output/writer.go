package output

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spherical/mistral-ocr/internal/domain"
)

// imageRef matches markdown image references: ![alt](target)
var imageRef = regexp.MustCompile(`!\[([^\]]*)\]\(([^)\s]+)\)`)

// pageImage matches the image file names a Writer produces
var pageImage = regexp.MustCompile(`^page\d+_img\d+\.[a-z0-9]+$`)

// Options configures a Writer
type Options struct {
	IncludeImages bool
	RunID         string           // Written into the header when set
	Now           func() time.Time // Clock for the processed timestamp
}

// Writer persists OCR results as markdown plus extracted images
type Writer struct {
	dir  string
	opts Options
}

// NewWriter creates a writer rooted at dir, which must already exist.
func NewWriter(dir string, opts Options) *Writer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Writer{dir: dir, opts: opts}
}

// plannedImage is an image with its final file name
type plannedImage struct {
	image domain.ExtractedImage
	file  string
}

// Write stores result as <name>.md (plus <name>_images/ when images are
// enabled) and returns the markdown path. On failure nothing written for
// this document is left behind.
func (w *Writer) Write(name string, file domain.InputFile, result *domain.OCRResult) (string, error) {
	if result == nil {
		return "", domain.IOError(fmt.Sprintf("no result to write for %s", file.RelPath), nil)
	}

	mdPath := filepath.Join(w.dir, name+markdownExt)
	imagesDir := filepath.Join(w.dir, name+ImagesSuffix)

	var body strings.Builder
	w.writeHeader(&body, file, result)

	var planned []plannedImage
	for _, page := range result.Pages {
		markdown := page.Markdown
		if w.opts.IncludeImages && len(page.Images) > 0 {
			var pageImages []plannedImage
			markdown, pageImages = planPage(name, page)
			planned = append(planned, pageImages...)
		}

		fmt.Fprintf(&body, "## Page %d\n\n", page.Index+1)
		body.WriteString(strings.TrimRight(markdown, "\n"))
		body.WriteString("\n\n")
	}

	var written []string
	createdDir := false
	rollback := func() {
		for _, p := range written {
			os.Remove(p)
		}
		if createdDir {
			os.Remove(imagesDir)
		}
	}

	if len(planned) > 0 {
		if _, err := os.Stat(imagesDir); errors.Is(err, os.ErrNotExist) {
			createdDir = true
		}
		if err := os.MkdirAll(imagesDir, 0755); err != nil {
			return "", domain.IOError(fmt.Sprintf("failed to create image directory %s", imagesDir), err)
		}
		for _, p := range planned {
			imgPath := filepath.Join(imagesDir, p.file)
			if err := WriteFileAtomic(imgPath, p.image.Data, 0644); err != nil {
				rollback()
				return "", domain.IOError(fmt.Sprintf("failed to write image %s", imgPath), err)
			}
			written = append(written, imgPath)
		}
	}

	if err := WriteFileAtomic(mdPath, []byte(body.String()), 0644); err != nil {
		rollback()
		return "", domain.IOError(fmt.Sprintf("failed to write %s", mdPath), err)
	}

	pruneImages(imagesDir, planned)
	return mdPath, nil
}

// pruneImages removes page images an earlier run left in dir that the
// current result no longer references, then dir itself if it is empty.
func pruneImages(dir string, keep []plannedImage) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	kept := make(map[string]struct{}, len(keep))
	for _, p := range keep {
		kept[p.file] = struct{}{}
	}

	remaining := 0
	for _, e := range entries {
		if _, ok := kept[e.Name()]; ok || e.IsDir() || !pageImage.MatchString(e.Name()) {
			remaining++
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			remaining++
		}
	}
	if remaining == 0 {
		os.Remove(dir)
	}
}

func (w *Writer) writeHeader(b *strings.Builder, file domain.InputFile, result *domain.OCRResult) {
	b.WriteString("# OCR Results\n\n")
	fmt.Fprintf(b, "**Original File:** %s\n", filepath.Base(file.Path))
	fmt.Fprintf(b, "**Full Path:** `%s`\n", file.Path)
	fmt.Fprintf(b, "**Processed:** %s\n", w.opts.Now().Format("2006-01-02 15:04:05"))
	if result.Model != "" {
		fmt.Fprintf(b, "**Model:** %s\n", result.Model)
	}
	fmt.Fprintf(b, "**Pages:** %d\n", result.PageCount())
	if w.opts.RunID != "" {
		fmt.Fprintf(b, "**Run ID:** %s\n", w.opts.RunID)
	}
	b.WriteString("\n---\n\n")
}

// planPage numbers the page's images in the order the markdown first
// references them, followed by unreferenced images in API order, and
// rewrites the references to point at the written files.
func planPage(name string, page domain.OCRPage) (string, []plannedImage) {
	pageNum := page.Index + 1
	files := make(map[int]string, len(page.Images))
	var planned []plannedImage

	assign := func(i int) string {
		if f, ok := files[i]; ok {
			return f
		}
		img := page.Images[i]
		f := fmt.Sprintf("page%d_img%d.%s", pageNum, len(planned)+1, extensionFor(img))
		files[i] = f
		planned = append(planned, plannedImage{image: img, file: f})
		return f
	}

	markdown := imageRef.ReplaceAllStringFunc(page.Markdown, func(ref string) string {
		m := imageRef.FindStringSubmatch(ref)
		i := findImage(page.Images, m[2])
		if i < 0 {
			return ref
		}
		return fmt.Sprintf("![%s](%s)", m[1], imageLink(name, assign(i)))
	})

	var appended strings.Builder
	for i := range page.Images {
		if _, ok := files[i]; ok {
			continue
		}
		f := assign(i)
		fmt.Fprintf(&appended, "\n\n![%s](%s)", page.Images[i].ID, imageLink(name, f))
	}
	if appended.Len() > 0 {
		markdown = strings.TrimRight(markdown, "\n") + appended.String()
	}

	return markdown, planned
}

func findImage(images []domain.ExtractedImage, target string) int {
	for i, img := range images {
		if img.ID == target || path.Base(target) == img.ID {
			return i
		}
	}
	return -1
}

func imageLink(name, file string) string {
	return name + ImagesSuffix + "/" + file
}

// extensionFor picks the file extension from the MIME type, keeping "jpg"
// when the service's ID uses it.
func extensionFor(img domain.ExtractedImage) string {
	switch img.MIMEType {
	case "image/jpeg", "image/jpg":
		if strings.EqualFold(filepath.Ext(img.ID), ".jpg") {
			return "jpg"
		}
		return "jpeg"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	case "image/bmp":
		return "bmp"
	case "image/tiff":
		return "tiff"
	default:
		return "png"
	}
}
