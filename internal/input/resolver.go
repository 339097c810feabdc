// Package input resolves a command-line path into the set of files to process.
package input

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spherical/mistral-ocr/internal/domain"
)

// DefaultMaxFileSize is the largest file the OCR service accepts.
const DefaultMaxFileSize int64 = 50 * 1024 * 1024

// Options controls resolution
type Options struct {
	MaxFileSize int64    // Bytes; DefaultMaxFileSize when zero
	Recursive   bool     // Descend into sub-directories
	SkipDirs    []string // Directories never descended into, such as the output directory
	SkipSuffix  string   // Sub-directories of a SkipDirs entry with this suffix are skipped too
}

func (o Options) maxFileSize() int64 {
	if o.MaxFileSize > 0 {
		return o.MaxFileSize
	}
	return DefaultMaxFileSize
}

// skip reports whether dir is a skipped directory, or a suffixed folder
// directly inside one.
func (o Options) skip(dir string) bool {
	for _, s := range o.SkipDirs {
		if s == "" {
			continue
		}
		if sameDir(s, dir) {
			return true
		}
		if o.SkipSuffix != "" && strings.HasSuffix(filepath.Base(dir), o.SkipSuffix) && sameDir(s, filepath.Dir(dir)) {
			return true
		}
	}
	return false
}

func sameDir(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

// Resolve turns path into an ordered list of input files.
// A file must be supported and within the size limit. A directory yields
// its supported entries sorted by relative path; unsupported entries are
// skipped.
func Resolve(path string, opts Options) ([]domain.InputFile, error) {
	if strings.TrimSpace(path) == "" {
		return nil, domain.PathNotFoundError("input path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.PathNotFoundError(fmt.Sprintf("input path does not exist: %s", path), err)
		}
		return nil, domain.PathNotFoundError(fmt.Sprintf("cannot access input path: %s", path), err)
	}

	if !info.IsDir() {
		file, err := resolveFile(path, filepath.Base(path), info, opts)
		if err != nil {
			return nil, err
		}
		return []domain.InputFile{file}, nil
	}

	return resolveDir(path, opts)
}

// resolveFile validates a single regular file.
func resolveFile(path, relPath string, info fs.FileInfo, opts Options) (domain.InputFile, error) {
	format, ok := domain.FormatFromPath(path)
	if !ok {
		ext := filepath.Ext(path)
		if ext == "" {
			ext = "(none)"
		}
		return domain.InputFile{}, domain.UnsupportedFormatError(
			fmt.Sprintf("%s has unsupported extension %s (supported: %s)", relPath, ext, SupportedExtensions()), nil)
	}

	if max := opts.maxFileSize(); info.Size() > max {
		return domain.InputFile{}, domain.FileTooLargeError(
			fmt.Sprintf("%s is %s, exceeding the maximum of %s", relPath, FormatSize(info.Size()), FormatSize(max)), nil)
	}

	return domain.InputFile{
		Path:    path,
		RelPath: filepath.ToSlash(relPath),
		Size:    info.Size(),
		Format:  format,
	}, nil
}

// resolveDir enumerates supported files under root.
func resolveDir(root string, opts Options) ([]domain.InputFile, error) {
	var files []domain.InputFile

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if !opts.Recursive || opts.skip(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := domain.FormatFromPath(path); !ok {
			return nil
		}

		info, err := entryInfo(path, d)
		if err != nil {
			return err
		}
		if info == nil || !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		file, err := resolveFile(path, rel, info, opts)
		if err != nil {
			return err
		}
		files = append(files, file)
		return nil
	})
	if err != nil {
		if domain.IsResolutionError(err) {
			return nil, err
		}
		return nil, domain.PathNotFoundError(fmt.Sprintf("cannot read directory: %s", root), err)
	}

	if len(files) == 0 {
		return nil, domain.EmptyBatchError(
			fmt.Sprintf("no supported files found in %s (supported: %s)", root, SupportedExtensions()), nil)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].RelPath < files[j].RelPath
	})

	return files, nil
}

// entryInfo follows symlinks so a linked file is treated like its target.
// A dangling link yields nil info.
func entryInfo(path string, d fs.DirEntry) (fs.FileInfo, error) {
	if d.Type()&fs.ModeSymlink == 0 {
		return d.Info()
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return info, nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// SupportedExtensions returns the supported extensions as a sorted,
// comma-separated list.
func SupportedExtensions() string {
	exts := make([]string, 0, len(domain.SupportedFormats))
	for f := range domain.SupportedFormats {
		exts = append(exts, "."+string(f))
	}
	sort.Strings(exts)
	return strings.Join(exts, ", ")
}

// FormatSize formats a byte count in human-readable form.
func FormatSize(size int64) string {
	value := float64(size)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if value < 1024 {
			return fmt.Sprintf("%.2f %s", value, unit)
		}
		value /= 1024
	}
	return fmt.Sprintf("%.2f TB", value)
}
