// print.go writes transcripts to a plain output stream for the
// non-interactive commands.
package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/DachengChen/paiconsole/chat"
	"github.com/DachengChen/paiconsole/chat/payload"
	"github.com/charmbracelet/lipgloss"
)

var (
	styleUser    = lipgloss.NewStyle().Bold(true)
	styleThought = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
	styleTool    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// transcriptPrinter prints whole messages, segment by segment.
type transcriptPrinter struct {
	w        io.Writer
	registry *payload.Registry
	thoughts bool
}

func (p transcriptPrinter) print(msgs []chat.Message, suppressQuestions bool) {
	board := chat.PlaceTodos(msgs, p.registry)
	builder := chat.NewSegmentBuilder(p.registry)
	for i, m := range msgs {
		if m.Role == chat.RoleUser {
			fmt.Fprintf(p.w, "%s %s\n\n", styleUser.Render("You:"), m.Content)
			continue
		}
		for _, seg := range builder.Build(m.Blocks, suppressQuestions) {
			switch seg.Kind {
			case chat.SegmentText:
				fmt.Fprintln(p.w, strings.TrimRight(seg.Data, "\n"))
			case chat.SegmentThought:
				if p.thoughts {
					fmt.Fprintln(p.w, styleThought.Render(strings.TrimSpace(seg.Data)))
				}
			case chat.SegmentToolRun:
				if p.registry.KindOf(seg.ToolName) != payload.KindTodo {
					fmt.Fprintln(p.w, toolSummary(seg))
				}
			}
		}
		for _, list := range board.At(i) {
			printTodo(p.w, list)
		}
		fmt.Fprintln(p.w)
	}
}

func toolSummary(seg chat.Segment) string {
	status := "ok"
	switch {
	case seg.Pending:
		status = "running"
	case seg.ResponseError != "":
		status = styleError.Render("error: " + chat.Preview(seg.ResponseError, 80))
	}
	return styleTool.Render(fmt.Sprintf("[%s]", seg.ToolName)) + " " +
		chat.Preview(seg.ParametersData, 80) + " (" + status + ")"
}

func printTodo(w io.Writer, list payload.TodoList) {
	fmt.Fprintf(w, "Todo %d/%d\n", list.Done(), len(list.Items))
	for _, it := range list.Items {
		fmt.Fprintf(w, "  %s %s\n", payload.StatusIcon(it.Status), it.Title)
	}
}

// printPending describes an open question or confirmation after a turn.
func printPending(w io.Writer, p chat.Pending) {
	for _, q := range p.Questions {
		fmt.Fprintf(w, "? %s\n", q.Question)
		for i, o := range q.Options {
			fmt.Fprintf(w, "  %d) %s\n", i+1, o)
		}
	}
	if p.HasConfirm {
		c := p.Confirm
		fmt.Fprintln(w, "The assistant wants to run a write:")
		fmt.Fprintf(w, "  %s\n", c.SQLPreview)
		if c.Explanation != "" {
			fmt.Fprintf(w, "  %s\n", c.Explanation)
		}
		fmt.Fprintf(w, "Run it with: paiconsole confirm %s (expires in %s)\n", c.ConfirmationToken, c.TTL())
	}
}

// streamPrinter prints an assistant message while it streams. Each
// snapshot carries the whole message; only blocks not yet printed are
// written.
type streamPrinter struct {
	w        io.Writer
	registry *payload.Registry
	thoughts bool

	printed  int
	lastKind chat.BlockType
	calls    map[string]string // call id -> tool name
}

func (p *streamPrinter) snapshot(msgs []chat.Message) {
	if len(msgs) == 0 || msgs[len(msgs)-1].Role != chat.RoleAssistant {
		return
	}
	blocks := msgs[len(msgs)-1].Blocks
	for _, b := range blocks[min(p.printed, len(blocks)):] {
		p.block(b)
	}
	p.printed = len(blocks)
}

func (p *streamPrinter) block(b chat.Block) {
	if p.calls == nil {
		p.calls = make(map[string]string)
	}
	if b.Type != p.lastKind && p.lastKind == chat.BlockThought && p.thoughts {
		fmt.Fprintln(p.w)
	}
	switch b.Type {
	case chat.BlockText:
		fmt.Fprint(p.w, b.Data)
	case chat.BlockThought:
		if p.thoughts {
			fmt.Fprint(p.w, styleThought.Render(b.Data))
		}
	case chat.BlockToolCall:
		call, ok := chat.DecodeToolCall(b.Data)
		if !ok {
			return
		}
		p.calls[call.ID] = call.ToolName
		if p.registry.KindOf(call.ToolName) == payload.KindTodo {
			break
		}
		p.newline()
		fmt.Fprintln(p.w, styleTool.Render("→ "+call.ToolName)+" "+chat.Preview(call.Arguments, 80))
	case chat.BlockToolResult:
		res, ok := chat.DecodeToolResult(b.Data)
		if !ok || res.ID == "" || p.calls[res.ID] == "" {
			return
		}
		tool := p.calls[res.ID]
		p.newline()
		if p.registry.KindOf(tool) == payload.KindTodo {
			if list, ok := payload.ParseTodo(res.Result); ok {
				printTodo(p.w, list)
			}
			break
		}
		if res.Error != "" {
			fmt.Fprintln(p.w, styleError.Render("← "+tool+" failed: "+chat.Preview(res.Error, 80)))
		} else {
			fmt.Fprintln(p.w, styleTool.Render("← "+tool)+" "+chat.Preview(res.Result, 80))
		}
	default:
		return
	}
	p.lastKind = b.Type
}

// newline ends a partially printed text line before a tool line.
func (p *streamPrinter) newline() {
	if p.lastKind == chat.BlockText {
		fmt.Fprintln(p.w)
		p.lastKind = ""
	}
}
