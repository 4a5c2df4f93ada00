package tui

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
)

// Renderers are cached per width; building one parses a style sheet.
var (
	rendererMu sync.Mutex
	renderers  = map[int]*glamour.TermRenderer{}
)

// renderMarkdown renders assistant TEXT. Rendering failures fall back to
// the raw text so partial markdown mid-stream never hides content.
func renderMarkdown(input string, width int) string {
	input = strings.TrimRight(input, "\n")
	if strings.TrimSpace(input) == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}
	r := markdownRenderer(width)
	if r == nil {
		return input
	}
	out, err := r.Render(input)
	if err != nil {
		return input
	}
	return strings.Trim(out, "\n")
}

func markdownRenderer(width int) *glamour.TermRenderer {
	rendererMu.Lock()
	defer rendererMu.Unlock()
	if r, ok := renderers[width]; ok {
		return r
	}
	style := styles.DarkStyleConfig
	zero := uint(0)
	style.Document.Margin = &zero
	r, err := glamour.NewTermRenderer(
		glamour.WithStyles(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	renderers[width] = r
	return r
}
