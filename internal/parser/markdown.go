package parser

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fieldaid/fieldaid/pkg/types"
)

// parseMarkdown handles sectioned markup. Only "# " and "## " headings start
// new sections; each section accumulates lines until the next heading of
// either level. Deeper headings are body text, and trailing content with no
// heading is titled "Document". An optional YAML frontmatter block may carry
// category and priority defaults for every section in the file.
func parseMarkdown(data []byte, meta types.DocumentMetadata) (*Result, error) {
	body, fm, err := splitFrontmatter(string(data))
	if err != nil {
		return nil, fmt.Errorf("parser: source %q: %w", meta.Source, err)
	}

	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("parser: source %q is empty", meta.Source)
	}

	result := &Result{}
	var (
		title   string
		section []string
	)
	flush := func() {
		text := strings.TrimSpace(strings.Join(section, "\n"))
		if text == "" {
			return
		}
		heading := title
		if heading == "" {
			heading = "Document"
		}
		result.Chunks = append(result.Chunks, Chunk{
			Title:    heading,
			Text:     text,
			Category: fm.Category,
			Priority: fm.Priority,
		})
	}

	for _, line := range strings.Split(body, "\n") {
		switch {
		case strings.HasPrefix(line, "# "):
			flush()
			title = strings.TrimSpace(line[2:])
			section = section[:0]
		case strings.HasPrefix(line, "## "):
			flush()
			title = strings.TrimSpace(line[3:])
			section = section[:0]
		default:
			section = append(section, line)
		}
	}
	flush()

	if len(result.Chunks) == 0 {
		return nil, fmt.Errorf("parser: source %q has no sections with content", meta.Source)
	}
	return result, nil
}

// frontmatter holds the recognized keys of a markdown frontmatter block.
type frontmatter struct {
	Category string `yaml:"category"`
	Priority int    `yaml:"priority"`
}

// splitFrontmatter separates a YAML frontmatter block (between --- lines at
// the top of the file) from the body. Files without frontmatter pass through
// unchanged.
func splitFrontmatter(text string) (string, frontmatter, error) {
	var fm frontmatter

	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return text, fm, nil
	}

	closeIdx := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			closeIdx = i
			break
		}
	}
	if closeIdx == -1 {
		// No closing delimiter: treat the whole file as body.
		return text, fm, nil
	}

	raw := strings.Join(lines[1:closeIdx], "\n")
	if err := yaml.Unmarshal([]byte(raw), &fm); err != nil {
		return "", fm, fmt.Errorf("invalid frontmatter: %w", err)
	}

	return strings.Join(lines[closeIdx+1:], "\n"), fm, nil
}
