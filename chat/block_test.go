package chat

import "testing"

func TestParseBlock(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		ok      bool
		want    Block
		convID  int64
	}{
		{name: "text", payload: `{"type":"TEXT","data":"Hi"}`, ok: true, want: Block{Type: BlockText, Data: "Hi"}},
		{name: "done only", payload: `{"done":true}`, ok: true, want: Block{Done: true}},
		{name: "conversation id", payload: `{"type":"TEXT","data":"","conversationId":41}`, ok: true, want: Block{Type: BlockText}, convID: 41},
		{name: "conversation id as string", payload: `{"conversationId":"9"}`, ok: true, convID: 9},
		{name: "object data kept raw", payload: `{"type":"X_STATUS","data":{"a":1}}`, ok: true, want: Block{Type: "X_STATUS", Data: `{"a":1}`}},
		{name: "invalid json", payload: `{"type":"TEXT","data":`, ok: false},
		{name: "array", payload: `[1,2]`, ok: false},
		{name: "empty object", payload: `{}`, ok: false},
		{name: "blank", payload: "  ", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, ok := ParseBlock(tt.payload)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if b.Type != tt.want.Type || b.Data != tt.want.Data || b.Done != tt.want.Done {
				t.Errorf("block = %+v, want %+v", b, tt.want)
			}
			if tt.convID != 0 {
				if b.ConversationID == nil || *b.ConversationID != tt.convID {
					t.Errorf("conversationId = %v, want %d", b.ConversationID, tt.convID)
				}
			} else if b.ConversationID != nil {
				t.Errorf("unexpected conversationId %d", *b.ConversationID)
			}
		})
	}
}

func TestDecodeToolData(t *testing.T) {
	call, ok := DecodeToolCall(`{"id":7,"toolName":"run_sql","arguments":{"sql":"SELECT 1"}}`)
	if !ok {
		t.Fatal("expected tool call")
	}
	if call.ID != "7" || call.ToolName != "run_sql" || call.Arguments != `{"sql":"SELECT 1"}` {
		t.Fatalf("call = %+v", call)
	}

	res, ok := DecodeToolResult(`{"id":"7","toolName":"run_sql","result":"ok","error":null}`)
	if !ok {
		t.Fatal("expected tool result")
	}
	if res.ID != "7" || res.Result != "ok" || res.Error != "" {
		t.Fatalf("result = %+v", res)
	}

	if _, ok := DecodeToolCall("not json"); ok {
		t.Fatal("malformed call should be rejected")
	}
	noID, ok := DecodeToolCall(`{"toolName":"t"}`)
	if !ok || noID.ID != "" {
		t.Fatalf("call without id = %+v, %v", noID, ok)
	}
}
