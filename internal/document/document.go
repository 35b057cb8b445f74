// Package document reads plain-text drafts, marks the paragraphs that need a
// citation, and resolves the marks into styled citations plus a reference list.
package document

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"refcite/internal/citation"
	"refcite/internal/domain"
)

// ReferencesHeading titles the bibliography appended by Finalize.
const ReferencesHeading = "References"

// Reference ids are file names and may hold brackets; a trailing "]" run
// before the closing "]]" belongs to the id.
var markerPattern = regexp.MustCompile(`\[\[cite:(.+?\]*)\]\]`)

// Marker returns the placeholder that Finalize later replaces.
func Marker(referenceID string) string {
	return "[[cite:" + referenceID + "]]"
}

// MetadataSource resolves reference ids to metadata.
type MetadataSource interface {
	Lookup(referenceID string) domain.ReferenceMetadata
}

// ReadParagraphs splits r into paragraphs separated by blank lines. Lines
// inside a paragraph are joined with a space; empty paragraphs are dropped.
func ReadParagraphs(r io.Reader) ([]string, error) {
	var (
		out     []string
		current []string
	)
	flush := func() {
		if len(current) > 0 {
			out = append(out, strings.Join(current, " "))
			current = current[:0]
		}
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read paragraphs: %w", err)
	}
	flush()
	return out, nil
}

// ReadParagraphsFile is ReadParagraphs over a file.
func ReadParagraphsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadParagraphs(f)
}

// InsertMarkers appends a citation marker to every paragraph that has an
// accepted decision. The input slice is not modified.
func InsertMarkers(paragraphs []string, decisions map[int]domain.CitationDecision) []string {
	out := make([]string, len(paragraphs))
	copy(out, paragraphs)
	for i, d := range decisions {
		if i < 0 || i >= len(out) || !d.CitationRequired || d.ReferenceID == "" {
			continue
		}
		out[i] = out[i] + " " + Marker(d.ReferenceID)
	}
	return out
}

// Render joins paragraphs back into a document.
func Render(paragraphs []string) string {
	if len(paragraphs) == 0 {
		return ""
	}
	return strings.Join(paragraphs, "\n\n") + "\n"
}

// CitedReferences returns the ids of all markers in text, in order of
// first appearance.
func CitedReferences(text string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, m := range markerPattern.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			ids = append(ids, m[1])
		}
	}
	return ids
}

// Finalize replaces every marker with its in-text citation and appends a
// reference list for the cited references, ordered by first citation.
// IEEE numbers follow the same order. Text without markers is returned as is.
func Finalize(text string, style citation.Style, metadata MetadataSource) string {
	ids := CitedReferences(text)
	if len(ids) == 0 {
		return text
	}
	resolved := make(map[string]domain.ReferenceMetadata, len(ids))
	for i, id := range ids {
		meta := metadata.Lookup(id)
		meta.Index = i + 1
		resolved[id] = meta
	}

	body := markerPattern.ReplaceAllStringFunc(text, func(m string) string {
		id := markerPattern.FindStringSubmatch(m)[1]
		return style.FormatInText(id, resolved[id])
	})

	var b strings.Builder
	b.WriteString(strings.TrimRight(body, "\n"))
	b.WriteString("\n\n")
	b.WriteString(ReferencesHeading)
	b.WriteString("\n\n")
	for _, id := range ids {
		b.WriteString(style.BibliographyEntry(id, resolved[id]))
		b.WriteString("\n")
	}
	return b.String()
}
