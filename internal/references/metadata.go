package references

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"refcite/internal/domain"
)

const (
	DefaultAuthor = "Unknown Author"
	DefaultYear   = "n.d."
	DefaultSource = "User Provided PDF"
)

// metadataSchema validates a metadata file: reference id -> record.
var metadataSchema = map[string]any{
	"type": "object",
	"additionalProperties": map[string]any{
		"type": "object",
		"properties": map[string]any{
			"authors": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"year":   map[string]any{"type": []string{"string", "integer"}},
			"title":  map[string]any{"type": "string"},
			"source": map[string]any{"type": "string"},
		},
		"additionalProperties": false,
	},
}

// Catalog maps reference ids to their metadata.
type Catalog map[string]domain.ReferenceMetadata

// DefaultMetadata is used for references the catalog does not describe.
func DefaultMetadata(referenceID string) domain.ReferenceMetadata {
	return domain.ReferenceMetadata{
		Authors: []string{DefaultAuthor},
		Year:    DefaultYear,
		Title:   strings.TrimSuffix(referenceID, filepath.Ext(referenceID)),
		Source:  DefaultSource,
	}
}

// Lookup returns the metadata for referenceID, or the defaults.
func (c Catalog) Lookup(referenceID string) domain.ReferenceMetadata {
	if meta, ok := c[referenceID]; ok {
		return meta
	}
	return DefaultMetadata(referenceID)
}

// LoadMetadata reads a YAML or JSON metadata file. An empty path yields an
// empty catalog.
func LoadMetadata(path string) (Catalog, error) {
	if path == "" {
		return Catalog{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	return ParseMetadata(data)
}

// ParseMetadata decodes and validates metadata. JSON input is accepted as
// a subset of YAML.
func ParseMetadata(data []byte) (Catalog, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if raw == nil {
		return Catalog{}, nil
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(metadataSchema), gojsonschema.NewGoLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("metadata schema validation error: %w", err)
	}
	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return nil, fmt.Errorf("metadata validation failed: %s", strings.Join(errs, ", "))
	}

	out := make(Catalog, len(raw))
	for id, v := range raw {
		entry, _ := v.(map[string]any)
		var meta domain.ReferenceMetadata
		if authors, ok := entry["authors"].([]any); ok {
			for _, a := range authors {
				meta.Authors = append(meta.Authors, fmt.Sprint(a))
			}
		}
		if y, ok := entry["year"]; ok && y != nil {
			meta.Year = fmt.Sprint(y)
		}
		meta.Title, _ = entry["title"].(string)
		meta.Source, _ = entry["source"].(string)
		out[id] = meta
	}
	return out, nil
}
