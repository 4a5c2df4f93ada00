package payload

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// MaxOptions caps the options offered per question. Extra options are
// dropped, keeping the first ones in order.
const MaxOptions = 3

// AnswerDelimiter joins "question"="answer" pairs when more than one
// question is answered at once.
const AnswerDelimiter = "; "

// Question is one prompt of an ask-user-question payload.
type Question struct {
	Question         string
	Options          []string
	FreeTextHint     string
	AllowMultiSelect bool
}

// ParseQuestion accepts a bare array of questions, {questions: [...]},
// or a single flat question object.
func ParseQuestion(raw string) ([]Question, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !gjson.Valid(raw) {
		return nil, false
	}

	root := gjson.Parse(raw)
	var nodes []gjson.Result
	switch {
	case root.IsArray():
		nodes = root.Array()
	case root.IsObject() && root.Get("questions").IsArray():
		nodes = root.Get("questions").Array()
	case root.IsObject():
		nodes = []gjson.Result{root}
	default:
		return nil, false
	}
	if len(nodes) == 0 {
		return nil, false
	}

	questions := make([]Question, 0, len(nodes))
	for _, n := range nodes {
		q, ok := parseOneQuestion(n)
		if !ok {
			return nil, false
		}
		questions = append(questions, q)
	}
	return questions, true
}

func parseOneQuestion(n gjson.Result) (Question, bool) {
	if !n.IsObject() {
		return Question{}, false
	}
	text := stringField(n, "question")
	if strings.TrimSpace(text) == "" {
		return Question{}, false
	}

	q := Question{
		Question:         text,
		FreeTextHint:     stringField(n, "freeTextHint"),
		AllowMultiSelect: n.Get("allowMultiSelect").Type == gjson.True,
	}
	opts := n.Get("options")
	if opts.Exists() && opts.Type != gjson.Null && !opts.IsArray() {
		return Question{}, false
	}
	opts.ForEach(func(_, o gjson.Result) bool {
		label := o.String()
		if o.IsObject() {
			label = stringField(o, "label")
		}
		if label != "" {
			q.Options = append(q.Options, label)
		}
		return len(q.Options) < MaxOptions
	})
	return q, true
}

// FormatAnswers renders answers in the wire format the assistant expects.
// A single question is answered with the bare text; several questions
// are answered as "question"="answer" pairs joined by AnswerDelimiter.
// answers[i] belongs to questions[i]; missing answers are sent empty.
func FormatAnswers(questions []Question, answers []string) string {
	if len(questions) <= 1 {
		if len(answers) == 0 {
			return ""
		}
		return answers[0]
	}
	pairs := make([]string, 0, len(questions))
	for i, q := range questions {
		var a string
		if i < len(answers) {
			a = answers[i]
		}
		pairs = append(pairs, fmt.Sprintf("%q=%q", q.Question, a))
	}
	return strings.Join(pairs, AnswerDelimiter)
}
