// Package references turns reference files into cleaned text keyed by
// reference id and loads the metadata used to render citations.
package references

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"refcite/internal/textutil"
)

var textExtensions = map[string]bool{".txt": true, ".md": true, ".text": true}

// ExpandPaths resolves glob patterns. A pattern without matches is kept as
// is so the failure to read it is reported later. Duplicates are dropped.
func ExpandPaths(patterns []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range patterns {
		matches, _ := filepath.Glob(p)
		if matches == nil {
			matches = []string{p}
		}
		sort.Strings(matches)
		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// ReferenceID is the id a reference file is cited under: its base name.
func ReferenceID(path string) string { return filepath.Base(path) }

// LoadTexts reads every file and returns its cleaned text keyed by reference
// id. A file that cannot be read or has an unsupported format is logged and
// contributes an empty text, so one bad file never aborts the run.
func LoadTexts(paths []string, logger *zap.Logger) map[string]string {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := make(map[string]string, len(paths))
	for _, path := range ExpandPaths(paths) {
		id := ReferenceID(path)
		if _, dup := out[id]; dup {
			logger.Warn("duplicate reference id, keeping the last file", zap.String("reference_id", id), zap.String("path", path))
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !textExtensions[ext] {
			logger.Warn("unsupported reference format", zap.String("path", path), zap.String("ext", ext))
			out[id] = ""
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("reference unreadable", zap.String("path", path), zap.Error(err))
			out[id] = ""
			continue
		}
		out[id] = textutil.Clean(string(data))
		if out[id] == "" {
			logger.Warn("reference is empty", zap.String("path", path))
		}
	}
	return out
}
