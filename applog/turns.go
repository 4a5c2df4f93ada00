// turns.go records every finished assistant turn.
//
// Turns are written to ~/.paiconsole/logs/ai.log, one banner per turn,
// so a session can be reviewed after the TUI has exited.
package applog

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

var (
	turnOnce sync.Once
	turnFile io.WriteCloser
)

func writeTurn(s string) {
	turnOnce.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if turnFile != nil {
			return
		}
		if f, err := openLog("ai.log"); err == nil {
			turnFile = f
		}
	})
	mu.Lock()
	defer mu.Unlock()
	if turnFile != nil {
		turnFile.Write([]byte(s)) //nolint:errcheck
	}
}

// SetTurnOutput redirects the turn log.
func SetTurnOutput(w io.WriteCloser) {
	turnOnce.Do(func() {})
	mu.Lock()
	turnFile = w
	mu.Unlock()
}

// ToolLine is the one-line summary of a tool run inside a turn.
type ToolLine struct {
	Name    string
	Status  string
	Summary string
}

// LogTurn writes one finished turn.
func LogTurn(conversationID int64, question, answer string, tools []ToolLine) {
	ts := timestamp()
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(
		"\n════════════════════════════════════════════════════════════════\n"+
			"[TURN] %s  |  Conversation: %d\n"+
			"════════════════════════════════════════════════════════════════\n",
		ts, conversationID,
	))
	sb.WriteString(fmt.Sprintf("User:\n%s\n────────────────────────────────────────\n", question))
	for _, t := range tools {
		sb.WriteString(fmt.Sprintf("Tool %s [%s] %s\n", t.Name, t.Status, t.Summary))
	}
	if len(tools) > 0 {
		sb.WriteString("────────────────────────────────────────\n")
	}
	sb.WriteString(fmt.Sprintf("Assistant:\n%s\n", answer))
	sb.WriteString("════════════════════════════════════════════════════════════════\n\n")
	writeTurn(sb.String())
}
