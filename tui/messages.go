// messages.go defines Bubble Tea messages used for async communication.
//
// API calls and the stream runner send results back to the TUI via
// these message types, ensuring the UI never blocks. Stream messages
// carry a sequence number so late deliveries from a replaced runner
// can be dropped.
package tui

import "github.com/DachengChen/paiconsole/chat"

// LoginResultMsg is sent when a login attempt completes.
type LoginResultMsg struct {
	User string
	Err  error
}

// SnapshotMsg carries the full transcript after a stream step.
type SnapshotMsg struct {
	Seq      int
	Messages []chat.Message
}

// ConversationMsg reports the conversation id the server assigned.
type ConversationMsg struct {
	Seq int
	ID  int64
}

// FinishMsg is sent once when the assistant message reaches Done.
type FinishMsg struct {
	Seq     int
	Message chat.Message
}

// WaitingMsg toggles the "planning" indicator.
type WaitingMsg struct {
	Seq     int
	Waiting bool
}

// StreamEndMsg is sent when Runner.Run returns.
type StreamEndMsg struct {
	Seq   int
	State chat.State
	Err   error
}

// ConversationsMsg carries the conversation list.
type ConversationsMsg struct {
	Conversations []chat.Conversation
	Err           error
}

// HistoryMsg carries a fetched (already merged) conversation.
type HistoryMsg struct {
	ConversationID int64
	Messages       []chat.Message
	Err            error
}

// DeletedMsg is sent when a conversation delete completes.
type DeletedMsg struct {
	ConversationID int64
	Err            error
}

// OpenConversationMsg asks the App to switch to the chat view and load
// a conversation. ID 0 starts a new one.
type OpenConversationMsg struct {
	ID int64
}

// ConfirmResultMsg is sent when a confirm or cancel request completes.
type ConfirmResultMsg struct {
	Token     string
	Confirmed bool
	Err       error
}

// StatusMsg is a transient status message for the status bar.
type StatusMsg string

// DrainMsg carries the queued message released after a stream finished.
type DrainMsg struct {
	Text string
}
