package devserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DachengChen/paiconsole/chat"
	"github.com/DachengChen/paiconsole/chat/sse"
	"github.com/tidwall/gjson"
)

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	s := New(opts)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func post(t *testing.T, url, token string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func get(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func login(t *testing.T, base string) (access, refresh string) {
	t.Helper()
	resp := post(t, base+"/api/auth/login", "", map[string]string{"username": "dev", "password": "pw"})
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %s", resp.StatusCode, body)
	}
	return gjson.Get(body, "data.accessToken").String(), gjson.Get(body, "data.refreshToken").String()
}

func streamBlocks(t *testing.T, resp *http.Response) []chat.Block {
	t.Helper()
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}
	var blocks []chat.Block
	dec := sse.NewDecoder(resp.Body)
	for {
		f, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return blocks
		}
		if err != nil {
			t.Fatalf("stream: %v", err)
		}
		if b, ok := chat.ParseBlock(f.Data); ok {
			blocks = append(blocks, b)
		}
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	_, ts := newTestServer(t, Options{Password: "pw"})
	resp := post(t, ts.URL+"/api/auth/login", "", map[string]string{"username": "dev", "password": "nope"})
	readBody(t, resp)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestChatStreamsAndStoresHistory(t *testing.T) {
	_, ts := newTestServer(t, Options{Password: "pw"})
	access, _ := login(t, ts.URL)

	blocks := streamBlocks(t, post(t, ts.URL+"/api/ai/chat", access, chat.Request{Message: "how many users?"}))
	if len(blocks) == 0 || !blocks[len(blocks)-1].Done {
		t.Fatalf("stream did not end with done: %+v", blocks)
	}
	if blocks[0].ConversationID == nil || *blocks[0].ConversationID != 1 {
		t.Fatalf("first block has no conversation id: %+v", blocks[0])
	}

	acc := chat.NewAccumulator(nil)
	acc.Begin()
	for _, b := range blocks {
		acc.Apply(b)
	}
	live := acc.Messages()[0]

	hist := readBody(t, get(t, ts.URL+"/api/ai/conversations/1/messages", access))
	rows := gjson.Get(hist, "data").Array()
	if len(rows) != 3 {
		t.Fatalf("history rows = %d, want user + 2 assistant rows:\n%s", len(rows), hist)
	}
	if rows[0].Get("role").String() != "user" || rows[1].Get("role").String() != "assistant" {
		t.Fatalf("roles = %s, %s", rows[0].Get("role"), rows[1].Get("role"))
	}

	var stored []chat.Message
	for _, r := range rows {
		var m chat.Message
		m.Role = chat.Role(r.Get("role").String())
		r.Get("blocks").ForEach(func(_, b gjson.Result) bool {
			if blk, ok := chat.ParseBlock(b.Raw); ok {
				m.Blocks = append(m.Blocks, blk)
			}
			return true
		})
		stored = append(stored, m)
	}
	merged := chat.MergeTurns(stored)
	if len(merged) != 2 {
		t.Fatalf("merged = %d messages", len(merged))
	}
	want := chat.BuildSegments(live.Blocks, false)
	got := chat.BuildSegments(merged[1].Blocks, false)
	if len(got) != len(want) {
		t.Fatalf("history segments = %d, live = %d", len(got), len(want))
	}

	list := readBody(t, get(t, ts.URL+"/api/ai/conversations", access))
	if n := len(gjson.Parse(list).Array()); n != 1 {
		t.Fatalf("conversations = %s", list)
	}
}

func TestChatRequiresValidToken(t *testing.T) {
	s, ts := newTestServer(t, Options{})
	access, refresh := login(t, ts.URL)
	s.ExpireTokens()

	resp := post(t, ts.URL+"/api/ai/chat", access, chat.Request{Message: "hi"})
	readBody(t, resp)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	resp = post(t, ts.URL+"/api/auth/refresh", "", map[string]string{"refreshToken": refresh})
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status %d: %s", resp.StatusCode, body)
	}
	fresh := gjson.Get(body, "accessToken").String()
	if fresh == "" || fresh == access {
		t.Fatalf("refresh returned %q", fresh)
	}

	resp = post(t, ts.URL+"/api/auth/refresh", "", map[string]string{"refreshToken": refresh})
	readBody(t, resp)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("reused refresh token accepted: %d", resp.StatusCode)
	}
}

func TestWriteConfirmation(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	access, _ := login(t, ts.URL)

	blocks := streamBlocks(t, post(t, ts.URL+"/api/ai/chat", access, chat.Request{Message: "delete old sessions"}))
	var token string
	for _, b := range blocks {
		if b.Type != chat.BlockToolResult {
			continue
		}
		res, _ := chat.DecodeToolResult(b.Data)
		if res.ToolName == "execute_write_sql" {
			token = gjson.Get(res.Result, "confirmationToken").String()
		}
	}
	if token == "" {
		t.Fatal("no confirmation token in stream")
	}

	resp := post(t, ts.URL+"/api/ai/write/confirm", access, map[string]string{"confirmationToken": token})
	readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm status = %d", resp.StatusCode)
	}

	resp = post(t, ts.URL+"/api/ai/write/cancel", access, map[string]string{"confirmationToken": token})
	readBody(t, resp)
	if resp.StatusCode != http.StatusGone {
		t.Fatalf("second use status = %d, want 410", resp.StatusCode)
	}
}

func TestCustomScriptAndFollowUp(t *testing.T) {
	script := func(turn Turn) []chat.Block {
		return []chat.Block{{Type: chat.BlockText, Data: "echo: " + turn.Message}}
	}
	_, ts := newTestServer(t, Options{Script: script})
	access, _ := login(t, ts.URL)

	streamBlocks(t, post(t, ts.URL+"/api/ai/chat", access, chat.Request{Message: "one"}))
	id := int64(1)
	blocks := streamBlocks(t, post(t, ts.URL+"/api/ai/chat", access, chat.Request{Message: "two", ConversationID: &id}))
	if len(blocks) != 2 || blocks[0].ConversationID != nil || blocks[0].Data != "echo: two" {
		t.Fatalf("follow-up blocks = %+v", blocks)
	}

	hist := readBody(t, get(t, ts.URL+"/api/ai/conversations/1/messages", access))
	if n := len(gjson.Get(hist, "data").Array()); n != 4 {
		t.Fatalf("rows = %d, want 4", n)
	}

	missing := int64(99)
	resp := post(t, ts.URL+"/api/ai/chat", access, chat.Request{Message: "x", ConversationID: &missing})
	readBody(t, resp)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown conversation status = %d", resp.StatusCode)
	}
}
