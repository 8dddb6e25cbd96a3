// Package report renders pipeline results for the terminal.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/cognicore/openextract/pkg/openextract/pipeline"
	"github.com/cognicore/openextract/pkg/openextract/prompts"
)

// Mode controls the table output format.
type Mode int

const (
	ASCII    Mode = iota // Fixed-width terminal tables
	Markdown             // GitHub-flavoured Markdown tables
)

const titleWidth = 40

func newWriter(m Mode) table.Writer {
	w := table.NewWriter()
	if m == ASCII {
		w.SetStyle(table.StyleLight)
	}
	return w
}

func render(w table.Writer, m Mode) string {
	if m == Markdown {
		return w.RenderMarkdown()
	}
	return w.Render()
}

// Summary writes one row per document with its sections and error count.
func Summary(out io.Writer, results []pipeline.Result, m Mode) error {
	w := newWriter(m)
	w.AppendHeader(table.Row{"#", "Doc ID", "Title", "Sections", "Errors"})
	w.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, WidthMax: titleWidth},
		{Number: 5, Align: text.AlignRight},
	})

	sum := pipeline.Stats(results)
	for i, r := range results {
		w.AppendRow(table.Row{i + 1, r.DocID, r.Title, strings.Join(sectionNames(r), ", "), len(r.Errors)})
	}
	w.AppendFooter(table.Row{"", "", fmt.Sprintf("%d documents, %d clean", sum.Documents, sum.Clean), "", sum.FailedSteps})

	_, err := fmt.Fprintln(out, render(w, m))
	return err
}

// Detail writes every section of every document. A {"content": ...} result
// whose text is itself JSON is expanded.
func Detail(out io.Writer, results []pipeline.Result) error {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "Document %d: %s\n", i+1, r.Title)
		fmt.Fprintf(&b, "  ID: %s\n", r.DocID)
		if len(r.Errors) > 0 {
			b.WriteString("  Errors:\n")
			for _, e := range r.Errors {
				fmt.Fprintf(&b, "    - %s: %s\n", e.Prompt, e.Error)
			}
		}
		for _, section := range sectionNames(r) {
			fmt.Fprintf(&b, "  [%s]\n", section)
			writeValue(&b, expand(r.StructuredTags[section]), "    ")
		}
		b.WriteString("\n")
	}
	_, err := io.WriteString(out, b.String())
	return err
}

// Prompts lists prompt steps with their placeholders.
func Prompts(out io.Writer, steps []*prompts.TemplatePrompt, m Mode) error {
	w := newWriter(m)
	w.AppendHeader(table.Row{"#", "Prompt", "Section", "Temperature", "Placeholders"})
	for i, p := range steps {
		w.AppendRow(table.Row{i + 1, p.Name(), p.Section(), p.Temperature(), strings.Join(p.Template().Placeholders(), ", ")})
	}
	_, err := fmt.Fprintln(out, render(w, m))
	return err
}

func sectionNames(r pipeline.Result) []string {
	names := make([]string, 0, len(r.StructuredTags))
	for k := range r.StructuredTags {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// expand decodes {"content": "<json object>"} into the object.
func expand(v any) any {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return v
	}
	s, ok := m["content"].(string)
	if !ok {
		return v
	}
	var nested map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &nested); err != nil {
		return s
	}
	return nested
}

func writeValue(b *strings.Builder, v any, indent string) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if items, ok := val[k].([]any); ok {
				fmt.Fprintf(b, "%s• %s:\n", indent, k)
				for _, item := range items {
					fmt.Fprintf(b, "%s  - %s\n", indent, scalar(item))
				}
				continue
			}
			fmt.Fprintf(b, "%s• %s: %s\n", indent, k, scalar(val[k]))
		}
	default:
		fmt.Fprintf(b, "%s%s\n", indent, scalar(val))
	}
}

func scalar(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
