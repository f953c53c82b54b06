package ingest

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/fieldaid/fieldaid/pkg/types"
)

func TestLoadManifestMissing(t *testing.T) {
	sources, err := LoadManifest(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if sources != nil {
		t.Errorf("expected no sources, got %d", len(sources))
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()

	manifest := `sources:
  - file: protocols.json
    format: json
    category: protocols
    priority: 1
    language: en
    field_suitable: true
  - file: survival.txt
    chunking: paragraph
    category: survival
    priority: 3
`
	if err := os.WriteFile(filepath.Join(dir, ManifestName), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "survival.txt"), []byte("Find shelter first."), 0o644); err != nil {
		t.Fatal(err)
	}

	sources, err := LoadManifest(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}

	// Manifest order is preserved.
	if sources[0].Name != "protocols.json" || sources[1].Name != "survival.txt" {
		t.Errorf("order not preserved: %q, %q", sources[0].Name, sources[1].Name)
	}
	if sources[0].Meta.Format != types.FormatJSON || !sources[0].Meta.FieldSuitable {
		t.Errorf("source 0 meta = %+v", sources[0].Meta)
	}

	// Format inferred from the extension when omitted.
	if sources[1].Meta.Format != types.FormatPlainText {
		t.Errorf("source 1 format = %q", sources[1].Meta.Format)
	}
	if sources[1].Meta.Chunking != types.ChunkParagraph {
		t.Errorf("source 1 chunking = %q", sources[1].Meta.Chunking)
	}

	// Open reads the file relative to the manifest directory.
	r, err := sources[1].Open()
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(r)
	r.Close()
	if string(body) != "Find shelter first." {
		t.Errorf("Open read %q", body)
	}

	// The listed-but-absent file only fails at Open time.
	if _, err := sources[0].Open(); err == nil {
		t.Error("expected Open to fail for absent file")
	}
}

func TestLoadManifestRejectsEntryWithoutFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ManifestName), []byte("sources:\n  - format: json\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadManifest(dir); err == nil {
		t.Fatal("expected error for manifest entry without file")
	}
}

func TestInferFormat(t *testing.T) {
	cases := map[string]types.DocumentFormat{
		"a.json":     types.FormatJSON,
		"b.CSV":      types.FormatCSV,
		"c.md":       types.FormatMarkdown,
		"d.markdown": types.FormatMarkdown,
		"e.xml":      types.FormatXMLTag,
		"f.txt":      types.FormatPlainText,
		"g":          types.FormatPlainText,
	}
	for name, want := range cases {
		if got := InferFormat(name); got != want {
			t.Errorf("InferFormat(%q) = %q, want %q", name, got, want)
		}
	}
}
