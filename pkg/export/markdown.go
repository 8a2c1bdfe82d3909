package export

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	portal "github.com/goliatone/go-civic-dashboard/components/portal"
)

// Narrative is the printable form of a section narrative.
type Narrative struct {
	Title      string
	FilterLine string
	Month      string
	Keys       []string
	Bundles    map[string]portal.NarrativeBundle
}

// Markdown formats the narrative as a markdown document. Keys order the
// bundles; bundles missing from Keys are skipped.
func (n Narrative) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", n.Title)
	fmt.Fprintf(&b, "Active filters: %s", n.FilterLine)
	if n.Month != "" {
		fmt.Fprintf(&b, " (month %s)", n.Month)
	}
	b.WriteString("\n")
	for _, key := range n.Keys {
		bundle, ok := n.Bundles[key]
		if !ok {
			continue
		}
		if len(n.Keys) > 1 {
			fmt.Fprintf(&b, "\n## %s\n", portal.SectionTitle(key))
		}
		writeList(&b, "Key insights", bundle.Insights)
		writeList(&b, "Recommendations", bundle.Recommendations)
		writeList(&b, "Action items", bundle.ActionItems)
	}
	return b.String()
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n### %s\n\n", heading)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

// RenderTerminal renders markdown for a terminal. Style "auto" follows the
// terminal background; any other value names a glamour standard style.
func RenderTerminal(markdown, style string, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	styleOpt := glamour.WithAutoStyle()
	if style != "" && style != "auto" {
		styleOpt = glamour.WithStandardStyle(style)
	}
	renderer, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
	if err != nil {
		return "", fmt.Errorf("export: markdown renderer: %w", err)
	}
	out, err := renderer.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("export: render markdown: %w", err)
	}
	return out, nil
}
