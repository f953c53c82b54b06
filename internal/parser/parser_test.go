package parser

import (
	"strings"
	"testing"

	"github.com/fieldaid/fieldaid/pkg/types"
)

func meta(format types.DocumentFormat) types.DocumentMetadata {
	return types.DocumentMetadata{Source: "test.doc", Format: format}
}

func TestParseUnsupportedFormat(t *testing.T) {
	_, err := Parse([]byte("x"), meta("docx"))
	if err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestParsePlainTextLabels(t *testing.T) {
	cases := []struct {
		chunking types.ChunkingStrategy
		want     string
	}{
		{types.ChunkFixed, "test.doc - Chunk 1"},
		{types.ChunkSentence, "test.doc - Section 1"},
		{types.ChunkParagraph, "test.doc - Paragraph 1"},
		{"", "test.doc - Chunk 1"},
	}
	for _, tc := range cases {
		m := meta(types.FormatPlainText)
		m.Chunking = tc.chunking
		result, err := Parse([]byte("Some text here."), m)
		if err != nil {
			t.Fatalf("chunking %q: %v", tc.chunking, err)
		}
		if result.Chunks[0].Title != tc.want {
			t.Errorf("chunking %q: title %q, want %q", tc.chunking, result.Chunks[0].Title, tc.want)
		}
	}
}

func TestParsePlainTextEmpty(t *testing.T) {
	if _, err := Parse([]byte("   \n  "), meta(types.FormatPlainText)); err == nil {
		t.Fatal("expected error for empty source")
	}
}

func TestParseJSONList(t *testing.T) {
	data := []byte(`[
		{"title": "Burns", "text": "Cool the burn with running water.", "category": "first-aid", "priority": 1},
		{"title": "No body"},
		{"content": "Aliased content field."}
	]`)
	result, err := Parse(data, meta(types.FormatJSON))
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(result.Chunks))
	}
	if len(result.RecordErrors) != 1 {
		t.Fatalf("expected 1 record error, got %d", len(result.RecordErrors))
	}
	if result.Chunks[0].Category != "first-aid" || result.Chunks[0].Priority != 1 {
		t.Errorf("record overrides not carried: %+v", result.Chunks[0])
	}
	if result.Chunks[1].Title != "test.doc - Entry 3" {
		t.Errorf("synthesized title = %q", result.Chunks[1].Title)
	}
	if result.Chunks[1].Text != "Aliased content field." {
		t.Errorf("content alias not honored: %q", result.Chunks[1].Text)
	}
}

func TestParseJSONObject(t *testing.T) {
	result, err := Parse([]byte(`{"title": "Single", "text": "One record."}`), meta(types.FormatJSON))
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Chunks) != 1 || result.Chunks[0].Title != "Single" {
		t.Fatalf("unexpected result: %+v", result.Chunks)
	}
}

func TestParseJSONMalformedList(t *testing.T) {
	if _, err := Parse([]byte(`[{"title": "x"`), meta(types.FormatJSON)); err == nil {
		t.Fatal("expected error for malformed list")
	}
}

func TestParseCSV(t *testing.T) {
	data := []byte("title,text,category,priority\n" +
		"Bleeding,Apply pressure.,first-aid,1\n" +
		",No title row.,,\n" +
		"Short row\n" +
		"Blank text,,misc,2\n")
	result, err := Parse(data, meta(types.FormatCSV))
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %+v", len(result.Chunks), result.Chunks)
	}
	if result.Chunks[0].Title != "Bleeding" || result.Chunks[0].Priority != 1 {
		t.Errorf("chunk 0 = %+v", result.Chunks[0])
	}
	if result.Chunks[1].Title != "Entry 2" {
		t.Errorf("fallback title = %q", result.Chunks[1].Title)
	}
}

func TestParseCSVMissingTextColumn(t *testing.T) {
	_, err := Parse([]byte("title,body\nA,B\n"), meta(types.FormatCSV))
	if err == nil || !strings.Contains(err.Error(), `"text"`) {
		t.Fatalf("expected missing text column error, got %v", err)
	}
}

func TestParseMarkdownSections(t *testing.T) {
	data := []byte("# A\nHello\n\n## B\nWorld\n### deeper\nstill B\n")
	result, err := Parse(data, meta(types.FormatMarkdown))
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Chunks) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(result.Chunks))
	}
	if result.Chunks[0].Title != "A" || result.Chunks[0].Text != "Hello" {
		t.Errorf("section 0 = %+v", result.Chunks[0])
	}
	if result.Chunks[1].Title != "B" {
		t.Errorf("section 1 title = %q", result.Chunks[1].Title)
	}
	if !strings.Contains(result.Chunks[1].Text, "### deeper") {
		t.Errorf("deeper heading should stay in body: %q", result.Chunks[1].Text)
	}
}

func TestParseMarkdownUntitledContent(t *testing.T) {
	result, err := Parse([]byte("just prose, no headings"), meta(types.FormatMarkdown))
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Chunks) != 1 || result.Chunks[0].Title != "Document" {
		t.Fatalf("unexpected result: %+v", result.Chunks)
	}
}

func TestParseMarkdownFrontmatter(t *testing.T) {
	data := []byte("---\ncategory: survival\npriority: 2\n---\n# Shelter\nBuild a lean-to.\n")
	result, err := Parse(data, meta(types.FormatMarkdown))
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Chunks) != 1 {
		t.Fatalf("expected 1 section, got %d", len(result.Chunks))
	}
	if result.Chunks[0].Category != "survival" || result.Chunks[0].Priority != 2 {
		t.Errorf("frontmatter overrides not applied: %+v", result.Chunks[0])
	}
}

func TestParseXMLTag(t *testing.T) {
	data := []byte(`<entries>
		<entry><title>Splint</title><content>Immobilize the joint above and below.</content></entry>
		<entry><title>Empty</title></entry>
		<entry><content>No title here.</content></entry>
	</entries>`)
	result, err := Parse(data, meta(types.FormatXMLTag))
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(result.Chunks))
	}
	if len(result.RecordErrors) != 1 {
		t.Fatalf("expected 1 record error, got %d", len(result.RecordErrors))
	}
	if result.Chunks[1].Title != "test.doc - Entry 3" {
		t.Errorf("fallback title = %q", result.Chunks[1].Title)
	}
}

func TestParsePagedText(t *testing.T) {
	data := []byte("Page one text.\f   \fPage three text.")
	result, err := Parse(data, meta(types.FormatPagedText))
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(result.Chunks))
	}
	text := result.Chunks[0].Text
	if !strings.Contains(text, "Page one text.") || !strings.Contains(text, "Page three text.") {
		t.Errorf("pages not joined: %q", text)
	}
}

func TestParsePagedTextAllBlank(t *testing.T) {
	if _, err := Parse([]byte("\f \f\t"), meta(types.FormatPagedText)); err == nil {
		t.Fatal("expected error when every page is blank")
	}
}
