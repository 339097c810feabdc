// Package output writes recognized documents to the output directory.
package output

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"unicode"
)

const (
	maxNameRunes = 100
	fallbackName = "document"
	markdownExt  = ".md"
)

// ImagesSuffix is appended to a document's name to form its image folder.
const ImagesSuffix = "_images"

// Sanitize turns a file stem into a safe output basename.
func Sanitize(stem string) string {
	var b strings.Builder
	for _, r := range stem {
		if strings.ContainsRune(`<>:"/\|?*`, r) || unicode.IsControl(r) {
			b.WriteRune('_')
			continue
		}
		b.WriteRune(r)
	}

	name := strings.Trim(strings.TrimSpace(b.String()), ".")
	if runes := []rune(name); len(runes) > maxNameRunes {
		name = strings.TrimSpace(string(runes[:maxNameRunes]))
	}
	if name == "" {
		return fallbackName
	}
	return name
}

// Namer hands out unique output basenames within one output directory.
// Names are compared case-insensitively. Unless overwrite is set, a name
// whose markdown file or image directory already exists is also taken.
type Namer struct {
	mu        sync.Mutex
	overwrite bool
	reserved  map[string]struct{}
	existing  map[string]struct{}
}

// NewNamer creates a namer for dir. A missing dir has no existing entries.
func NewNamer(dir string, overwrite bool) *Namer {
	n := &Namer{
		overwrite: overwrite,
		reserved:  make(map[string]struct{}),
		existing:  make(map[string]struct{}),
	}

	if !overwrite {
		entries, err := os.ReadDir(dir)
		if err == nil {
			for _, e := range entries {
				n.existing[strings.ToLower(e.Name())] = struct{}{}
			}
		}
	}

	return n
}

// Reserve returns the first free name derived from stem: the sanitized
// stem itself, then stem_2, stem_3, and so on.
func (n *Namer) Reserve(stem string) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	base := Sanitize(stem)
	candidate := base
	for i := 2; n.taken(candidate); i++ {
		candidate = base + "_" + strconv.Itoa(i)
	}

	n.reserved[strings.ToLower(candidate)] = struct{}{}
	return candidate
}

func (n *Namer) taken(name string) bool {
	key := strings.ToLower(name)
	if _, ok := n.reserved[key]; ok {
		return true
	}
	if n.overwrite {
		return false
	}
	if _, ok := n.existing[key+markdownExt]; ok {
		return true
	}
	_, ok := n.existing[key+ImagesSuffix]
	return ok
}
