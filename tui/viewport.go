// viewport.go provides a reusable scrollable viewport component
// with vertical and horizontal scrolling and optional hard wrapping.
//
// Lines may carry ANSI styling (lipgloss, glamour output), so all
// cutting and measuring goes through charmbracelet/x/ansi rather than
// byte offsets.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Viewport is a scrollable text area.
type Viewport struct {
	width    int
	height   int
	content  []string // lines of content
	scrollY  int      // vertical scroll offset (line index after wrapping)
	scrollX  int      // horizontal scroll offset (cell column)
	wrapText bool     // whether to wrap text instead of horizontal scroll
}

// NewViewport creates a viewport with the given dimensions.
func NewViewport(width, height int) *Viewport {
	return &Viewport{
		width:  width,
		height: height,
	}
}

// SetContent replaces the viewport content.
func (v *Viewport) SetContent(content string) {
	v.content = strings.Split(content, "\n")
	v.clampScroll()
}

// SetContentLines replaces the viewport content with pre-split lines.
// Entries containing newlines are split further.
func (v *Viewport) SetContentLines(lines []string) {
	v.content = v.content[:0]
	for _, l := range lines {
		v.content = append(v.content, strings.Split(l, "\n")...)
	}
	v.clampScroll()
}

// SetSize updates viewport dimensions.
func (v *Viewport) SetSize(width, height int) {
	v.width = width
	v.height = height
	v.clampScroll()
}

// SetWrap turns hard wrapping on or off.
func (v *Viewport) SetWrap(on bool) {
	v.wrapText = on
	v.scrollX = 0
	v.clampScroll()
}

// ToggleWrap toggles text wrapping.
func (v *Viewport) ToggleWrap() {
	v.SetWrap(!v.wrapText)
}

// ScrollUp moves the viewport up by n lines.
func (v *Viewport) ScrollUp(n int) {
	v.scrollY -= n
	v.clampScroll()
}

// ScrollDown moves the viewport down by n lines.
func (v *Viewport) ScrollDown(n int) {
	v.scrollY += n
	v.clampScroll()
}

// ScrollLeft moves the viewport left.
func (v *Viewport) ScrollLeft(n int) {
	if !v.wrapText {
		v.scrollX -= n
		if v.scrollX < 0 {
			v.scrollX = 0
		}
	}
}

// ScrollRight moves the viewport right.
func (v *Viewport) ScrollRight(n int) {
	if !v.wrapText {
		v.scrollX += n
	}
}

// PageUp scrolls up by one page.
func (v *Viewport) PageUp() {
	v.ScrollUp(v.height)
}

// PageDown scrolls down by one page.
func (v *Viewport) PageDown() {
	v.ScrollDown(v.height)
}

// Home scrolls to the top.
func (v *Viewport) Home() {
	v.scrollY = 0
	v.scrollX = 0
}

// End scrolls to the bottom.
func (v *Viewport) End() {
	v.scrollY = v.maxScrollY()
}

// AtBottom reports whether the last line is visible.
func (v *Viewport) AtBottom() bool {
	return v.scrollY >= v.maxScrollY()
}

// Render returns the visible portion of the content.
func (v *Viewport) Render() string {
	if len(v.content) == 0 {
		return ""
	}

	var visibleLines []string
	if v.wrapText {
		visibleLines = v.renderWrapped()
	} else {
		visibleLines = v.renderScrolled()
	}

	// Pad to fill viewport height
	for len(visibleLines) < v.height {
		visibleLines = append(visibleLines, "")
	}

	content := strings.Join(visibleLines, "\n")
	if indicator := v.scrollIndicator(); indicator != "" {
		return lipgloss.JoinVertical(lipgloss.Left, content, indicator)
	}
	return content
}

// renderScrolled returns lines with horizontal offset applied.
func (v *Viewport) renderScrolled() []string {
	end := min(v.scrollY+v.height, len(v.content))

	var lines []string
	for i := v.scrollY; i < end; i++ {
		lines = append(lines, cut(v.content[i], v.scrollX, v.width))
	}
	return lines
}

// renderWrapped returns hard-wrapped lines.
func (v *Viewport) renderWrapped() []string {
	wrapped := v.wrapped()
	if v.scrollY >= len(wrapped) {
		return nil
	}
	end := min(v.scrollY+v.height, len(wrapped))
	return wrapped[v.scrollY:end]
}

func (v *Viewport) wrapped() []string {
	if v.width <= 0 {
		return v.content
	}
	var out []string
	for _, line := range v.content {
		if ansi.StringWidth(line) <= v.width {
			out = append(out, line)
			continue
		}
		out = append(out, strings.Split(ansi.Hardwrap(line, v.width, true), "\n")...)
	}
	return out
}

// cut returns the cells [left, left+width) of an ANSI-styled line.
func cut(line string, left, width int) string {
	if width <= 0 {
		return ""
	}
	if left > 0 {
		if left >= ansi.StringWidth(line) {
			return ""
		}
		line = ansi.TruncateLeft(line, left, "")
	}
	return ansi.Truncate(line, width, "")
}

func (v *Viewport) clampScroll() {
	v.scrollY = max(0, min(v.scrollY, v.maxScrollY()))
}

func (v *Viewport) total() int {
	if v.wrapText {
		return len(v.wrapped())
	}
	return len(v.content)
}

func (v *Viewport) maxScrollY() int {
	return max(0, v.total()-v.height)
}

func (v *Viewport) scrollIndicator() string {
	total := v.total()
	if total <= v.height || v.width < 24 {
		return ""
	}
	pct := (v.scrollY * 100) / total
	label := fmt.Sprintf(" %d%% (%d/%d)", pct, v.scrollY+1, total)
	return StyleDimmed.Render(strings.Repeat("─", max(0, v.width-len(label))) + label)
}
