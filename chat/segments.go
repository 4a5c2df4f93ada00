package chat

import "github.com/DachengChen/paiconsole/chat/payload"

// SegmentKind discriminates display segments.
type SegmentKind int

const (
	SegmentText SegmentKind = iota
	SegmentThought
	SegmentToolRun
)

func (k SegmentKind) String() string {
	switch k {
	case SegmentText:
		return "TEXT"
	case SegmentThought:
		return "THOUGHT"
	case SegmentToolRun:
		return "TOOL_RUN"
	default:
		return "UNKNOWN"
	}
}

// Segment is a display unit derived from a message's blocks. Data is
// set for TEXT and THOUGHT; the tool fields for TOOL_RUN.
type Segment struct {
	Kind SegmentKind
	Data string

	CallID         string
	ToolName       string
	ParametersData string
	ResponseData   string
	ResponseError  string
	Pending        bool
}

// SegmentBuilder turns block lists into segments. The registry tells it
// which tool runs are ask-user-question prompts.
type SegmentBuilder struct {
	registry *payload.Registry
}

// NewSegmentBuilder creates a builder. A nil registry uses the default
// tool names.
func NewSegmentBuilder(reg *payload.Registry) SegmentBuilder {
	if reg == nil {
		reg = payload.DefaultRegistry()
	}
	return SegmentBuilder{registry: reg}
}

// BuildSegments uses the default tool names.
func BuildSegments(blocks []Block, suppressQuestions bool) []Segment {
	return NewSegmentBuilder(nil).Build(blocks, suppressQuestions)
}

// Build makes one left-to-right pass over blocks.
//
// Adjacent TEXT blocks coalesce into one segment, as do adjacent THOUGHT
// blocks. Each distinct tool call opens a TOOL_RUN at its first
// appearance; a repeated call id is ignored. A result fills the pending
// run with the same id. Results with no matching pending call are
// dropped. When suppressQuestions is set, ask-user-question runs are
// left out; this is used for turns that are no longer live.
func (sb SegmentBuilder) Build(blocks []Block, suppressQuestions bool) []Segment {
	var segs []Segment
	calls := make(map[string]int)

	for _, b := range blocks {
		switch b.Type {
		case BlockText, BlockThought:
			kind := SegmentText
			if b.Type == BlockThought {
				kind = SegmentThought
			}
			if n := len(segs); n > 0 && segs[n-1].Kind == kind {
				segs[n-1].Data += b.Data
				continue
			}
			if b.Data == "" {
				continue
			}
			segs = append(segs, Segment{Kind: kind, Data: b.Data})

		case BlockToolCall:
			call, ok := DecodeToolCall(b.Data)
			if !ok {
				continue
			}
			if call.ID != "" {
				if _, dup := calls[call.ID]; dup {
					continue
				}
				calls[call.ID] = len(segs)
			}
			segs = append(segs, Segment{
				Kind:           SegmentToolRun,
				CallID:         call.ID,
				ToolName:       call.ToolName,
				ParametersData: call.Arguments,
				Pending:        true,
			})

		case BlockToolResult:
			res, ok := DecodeToolResult(b.Data)
			if !ok || res.ID == "" {
				continue
			}
			idx, found := calls[res.ID]
			if !found || !segs[idx].Pending {
				continue
			}
			segs[idx].ResponseData = res.Result
			segs[idx].ResponseError = res.Error
			segs[idx].Pending = false
			if segs[idx].ToolName == "" {
				segs[idx].ToolName = res.ToolName
			}
		}
	}

	if !suppressQuestions {
		return segs
	}
	out := segs[:0]
	for _, s := range segs {
		if s.Kind == SegmentToolRun && sb.registry.KindOf(s.ToolName) == payload.KindQuestion {
			continue
		}
		out = append(out, s)
	}
	return out
}
