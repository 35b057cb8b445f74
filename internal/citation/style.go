// Package citation renders in-text citations and bibliography entries
// from reference metadata.
package citation

import (
	"fmt"
	"strings"

	"refcite/internal/domain"
)

// Style is a citation style name.
type Style string

const (
	APA  Style = "APA"
	IEEE Style = "IEEE"
	MLA  Style = "MLA"
)

// ParseStyle accepts a style name in any case.
func ParseStyle(s string) (Style, error) {
	switch st := Style(strings.ToUpper(strings.TrimSpace(s))); st {
	case APA, IEEE, MLA:
		return st, nil
	case "":
		return APA, nil
	default:
		return "", fmt.Errorf("unknown citation style %q (want APA, IEEE or MLA)", s)
	}
}

func yearOf(meta domain.ReferenceMetadata) string {
	if meta.Year == "" {
		return "n.d."
	}
	return meta.Year
}

// FormatInText returns the in-text citation for referenceID.
// IEEE uses meta.Index, which the caller assigns in order of first citation.
func (s Style) FormatInText(referenceID string, meta domain.ReferenceMetadata) string {
	year := yearOf(meta)
	switch s {
	case IEEE:
		return fmt.Sprintf("[%d]", meta.Index)
	case MLA:
		if len(meta.Authors) == 0 {
			return fmt.Sprintf("(%s)", referenceID)
		}
		return fmt.Sprintf("(%s)", meta.Authors[0])
	case APA:
		switch len(meta.Authors) {
		case 0:
			return fmt.Sprintf("(%s, %s)", referenceID, year)
		case 1:
			return fmt.Sprintf("(%s, %s)", meta.Authors[0], year)
		default:
			return fmt.Sprintf("(%s et al., %s)", meta.Authors[0], year)
		}
	}
	return fmt.Sprintf("(%s, %s)", referenceID, year)
}

// BibliographyEntry returns the reference-list line for referenceID.
func (s Style) BibliographyEntry(referenceID string, meta domain.ReferenceMetadata) string {
	authors := strings.Join(meta.Authors, ", ")
	year := yearOf(meta)
	title := meta.Title
	if title == "" {
		title = referenceID
	}
	var entry string
	switch s {
	case APA:
		entry = fmt.Sprintf("%s (%s). %s. %s", authors, year, title, meta.Source)
	case IEEE:
		entry = fmt.Sprintf("[%d] %s, \"%s,\" %s, %s", meta.Index, authors, title, meta.Source, year)
	case MLA:
		entry = fmt.Sprintf("%s. \"%s.\" %s, %s", authors, title, meta.Source, year)
	default:
		entry = fmt.Sprintf("%s (%s). %s", authors, year, title)
	}
	// "n.d." and abbreviated sources already close the entry.
	if !strings.HasSuffix(entry, ".") {
		entry += "."
	}
	return entry
}
