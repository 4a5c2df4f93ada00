// render.go turns a transcript into viewport lines.
//
// Rendering is a pure function of the messages, so the chat view can
// rebuild everything on each snapshot:
//   - user turns are one styled line per content line
//   - assistant turns go through the segment builder; TEXT is markdown,
//     THOUGHT is dimmed, TOOL_RUN is a one-line summary
//   - todo lists are drawn under the message where they first appeared
//   - question and confirm runs show a short marker; the live prompt
//     itself is drawn under the input
package tui

import (
	"fmt"
	"strings"

	"github.com/DachengChen/paiconsole/chat"
	"github.com/DachengChen/paiconsole/chat/payload"
	"github.com/mattn/go-runewidth"
	"github.com/tidwall/gjson"
)

type transcriptRenderer struct {
	registry *payload.Registry
	segments chat.SegmentBuilder
	width    int
	spinner  string // current spinner frame for pending tool runs
}

func newTranscriptRenderer(reg *payload.Registry, width int, spinner string) transcriptRenderer {
	return transcriptRenderer{
		registry: reg,
		segments: chat.NewSegmentBuilder(reg),
		width:    width,
		spinner:  spinner,
	}
}

// render draws messages. Messages before liveFrom came from history and
// have their question runs suppressed.
func (r transcriptRenderer) render(msgs []chat.Message, liveFrom int) []string {
	board := chat.PlaceTodos(msgs, r.registry)

	var lines []string
	for i, m := range msgs {
		switch m.Role {
		case chat.RoleUser:
			for j, l := range strings.Split(m.Content, "\n") {
				prefix := "    "
				if j == 0 {
					prefix = "You "
				}
				lines = append(lines, StyleUser.Render(prefix)+l)
			}
		case chat.RoleAssistant:
			lines = append(lines, StyleSuccess.Render("AI"))
			lines = append(lines, r.assistant(m, i < liveFrom)...)
			for _, list := range board.At(i) {
				lines = append(lines, r.todo(list)...)
			}
		}
		lines = append(lines, "")
	}
	return lines
}

func (r transcriptRenderer) assistant(m chat.Message, historical bool) []string {
	var lines []string
	for _, seg := range r.segments.Build(m.Blocks, historical) {
		switch seg.Kind {
		case chat.SegmentText:
			if md := renderMarkdown(seg.Data, r.width-2); md != "" {
				lines = append(lines, indent(md, "  "))
			}
		case chat.SegmentThought:
			for _, l := range strings.Split(strings.TrimSpace(seg.Data), "\n") {
				lines = append(lines, StyleThought.Render("  ~ "+l))
			}
		case chat.SegmentToolRun:
			if l, ok := r.toolRun(seg); ok {
				lines = append(lines, l)
			}
		}
	}
	return lines
}

// toolRun summarizes one run. Todo runs are drawn by the board instead.
func (r transcriptRenderer) toolRun(seg chat.Segment) (string, bool) {
	kind := r.registry.KindOf(seg.ToolName)
	if kind == payload.KindTodo {
		return "", false
	}

	status := StyleSuccess.Render("✓")
	switch {
	case seg.Pending:
		status = r.spinner
	case seg.ResponseError != "":
		status = StyleError.Render("✗")
	}

	detail := ""
	switch kind {
	case payload.KindQuestion:
		detail = "asked for input"
		if qs, ok := payload.ParseQuestion(seg.ResponseData); ok {
			detail = fmt.Sprintf("asked %d question(s)", len(qs))
		}
	case payload.KindConfirm:
		if c, ok := payload.ParseConfirm(seg.ResponseData); ok {
			detail = StyleSQL.Render(oneLine(c.SQLPreview))
		}
	default:
		detail = StyleDimmed.Render(oneLine(toolArgs(seg.ParametersData)))
	}
	if seg.ResponseError != "" {
		detail = StyleError.Render(oneLine(seg.ResponseError))
	}

	line := fmt.Sprintf("  %s %s %s", status, StyleTool.Render(seg.ToolName), detail)
	return truncate(line, r.width), true
}

func (r transcriptRenderer) todo(list payload.TodoList) []string {
	title := fmt.Sprintf("Todo %d/%d", list.Done(), len(list.Items))
	body := []string{StyleBold.Render(title)}
	for _, it := range list.Items {
		line := runewidth.Truncate(payload.StatusIcon(it.Status)+" "+it.Title, max(10, r.width-8), "…")
		if it.Status == payload.StatusCompleted {
			line = StyleDimmed.Render(line)
		}
		body = append(body, line)
	}
	return []string{indent(StyleBox.Render(strings.Join(body, "\n")), "  ")}
}

// toolArgs prefers a "sql" or "query" argument when present.
func toolArgs(params string) string {
	for _, key := range []string{"sql", "query"} {
		if v := gjson.Get(params, key); v.Type == gjson.String {
			return v.Str
		}
	}
	return params
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func indent(s, prefix string) string {
	parts := strings.Split(s, "\n")
	for i, p := range parts {
		parts[i] = prefix + p
	}
	return strings.Join(parts, "\n")
}

// truncate cuts a styled line to width cells.
func truncate(s string, width int) string {
	if width <= 0 {
		return s
	}
	return cut(s, 0, width)
}
