package chat

import (
	"github.com/DachengChen/paiconsole/applog"
	"github.com/DachengChen/paiconsole/chat/payload"
)

// LogTurn records a finished assistant answer and the question that
// produced it in the turn log, with one summary line per tool run.
func LogTurn(conversationID int64, question string, answer Message, reg *payload.Registry) {
	var tools []applog.ToolLine
	for _, seg := range NewSegmentBuilder(reg).Build(answer.Blocks, false) {
		if seg.Kind != SegmentToolRun {
			continue
		}
		status := "ok"
		switch {
		case seg.Pending:
			status = "pending"
		case seg.ResponseError != "":
			status = "error"
		}
		tools = append(tools, applog.ToolLine{
			Name:    seg.ToolName,
			Status:  status,
			Summary: Preview(seg.ParametersData, 120),
		})
	}
	applog.LogTurn(conversationID, question, answer.Content, tools)
}
