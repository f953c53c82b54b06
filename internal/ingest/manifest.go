package ingest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fieldaid/fieldaid/pkg/types"
)

// ManifestName is the file listing the documents to ingest from a sources
// directory.
const ManifestName = "sources.yaml"

// manifest mirrors the on-disk sources.yaml layout.
type manifest struct {
	Sources []manifestEntry `yaml:"sources"`
}

type manifestEntry struct {
	File          string `yaml:"file"`
	Format        string `yaml:"format"`
	Category      string `yaml:"category"`
	Priority      int    `yaml:"priority"`
	Language      string `yaml:"language"`
	Chunking      string `yaml:"chunking"`
	FieldSuitable bool   `yaml:"field_suitable"`
}

// LoadManifest reads sources.yaml from dir and returns the configured
// sources in manifest order. A missing manifest is not an error: it returns
// an empty list, and the ingestion run falls back to the built-in seed set.
func LoadManifest(dir string) ([]Source, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ingest: failed to read manifest in %q: %w", dir, err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("ingest: invalid manifest in %q: %w", dir, err)
	}

	sources := make([]Source, 0, len(m.Sources))
	for i, e := range m.Sources {
		if e.File == "" {
			return nil, fmt.Errorf("ingest: manifest entry %d in %q has no file", i+1, dir)
		}

		format := types.DocumentFormat(e.Format)
		if format == "" {
			format = InferFormat(e.File)
		}
		path := filepath.Join(dir, e.File)

		sources = append(sources, Source{
			Name: e.File,
			Meta: types.DocumentMetadata{
				Source:        e.File,
				Format:        format,
				Category:      e.Category,
				Priority:      e.Priority,
				LanguageCode:  e.Language,
				Chunking:      types.ChunkingStrategy(e.Chunking),
				FieldSuitable: e.FieldSuitable,
			},
			Open: func() (io.ReadCloser, error) { return os.Open(path) },
		})
	}

	return sources, nil
}

// InferFormat maps a filename extension to a document format, defaulting to
// plain text for anything unrecognized.
func InferFormat(name string) types.DocumentFormat {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return types.FormatJSON
	case ".csv":
		return types.FormatCSV
	case ".md", ".markdown":
		return types.FormatMarkdown
	case ".xml":
		return types.FormatXMLTag
	default:
		return types.FormatPlainText
	}
}
