package payload

import "strings"

// Kind names the structured shape a tool result is expected to carry.
type Kind int

const (
	KindNone Kind = iota
	KindTodo
	KindQuestion
	KindConfirm
)

func (k Kind) String() string {
	switch k {
	case KindTodo:
		return "todo"
	case KindQuestion:
		return "question"
	case KindConfirm:
		return "confirm"
	default:
		return "none"
	}
}

// Default tool names as emitted by the assistant backend.
var (
	DefaultTodoTools     = []string{"todo_write", "update_todo_list"}
	DefaultQuestionTools = []string{"ask_user_question"}
	DefaultConfirmTools  = []string{"execute_write_sql", "confirm_write"}
)

// Registry maps tool names to the recognizer that applies to them.
// Matching is case-insensitive.
type Registry struct {
	kinds map[string]Kind
}

// NewRegistry builds a registry. Empty lists fall back to the defaults.
func NewRegistry(todo, question, confirm []string) *Registry {
	r := &Registry{kinds: make(map[string]Kind)}
	r.add(KindTodo, todo, DefaultTodoTools)
	r.add(KindQuestion, question, DefaultQuestionTools)
	r.add(KindConfirm, confirm, DefaultConfirmTools)
	return r
}

// DefaultRegistry uses the default tool names.
func DefaultRegistry() *Registry {
	return NewRegistry(nil, nil, nil)
}

func (r *Registry) add(k Kind, names, fallback []string) {
	if len(names) == 0 {
		names = fallback
	}
	for _, n := range names {
		r.kinds[strings.ToLower(strings.TrimSpace(n))] = k
	}
}

// KindOf returns the kind registered for toolName, or KindNone.
func (r *Registry) KindOf(toolName string) Kind {
	if r == nil {
		return KindNone
	}
	return r.kinds[strings.ToLower(strings.TrimSpace(toolName))]
}

// Payload is the result of a successful recognition. Exactly one of the
// value fields is set, matching Kind.
type Payload struct {
	Kind      Kind
	Todo      TodoList
	Questions []Question
	Confirm   WriteConfirm
}

// Recognize runs the single recognizer registered for toolName.
func (r *Registry) Recognize(toolName, raw string) (Payload, bool) {
	switch k := r.KindOf(toolName); k {
	case KindTodo:
		if t, ok := ParseTodo(raw); ok {
			return Payload{Kind: k, Todo: t}, true
		}
	case KindQuestion:
		if q, ok := ParseQuestion(raw); ok {
			return Payload{Kind: k, Questions: q}, true
		}
	case KindConfirm:
		if c, ok := ParseConfirm(raw); ok {
			return Payload{Kind: k, Confirm: c}, true
		}
	}
	return Payload{}, false
}
