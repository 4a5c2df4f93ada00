package chat

import "testing"

const confirmBody = `{"confirmationToken":"tok-1","sqlPreview":"DELETE FROM users WHERE id = 3","connectionId":4,"expiresInSeconds":60}`

func TestPromptsQuestionOpenUntilUserReplies(t *testing.T) {
	p := NewPrompts(nil)
	p.Bind(1)

	turn := assistant("a1",
		text("Which table?"),
		call(t, "q", "ask_user_question", "{}"),
		result(t, "q", "ask_user_question", `{"question":"Which table?","options":["users","orders"]}`),
	)
	got := p.Pending([]Message{user("u1", "count rows"), turn})
	if !got.HasQuestion() || got.MessageID != "a1" {
		t.Fatalf("pending = %+v", got)
	}
	if got.Questions[0].Question != "Which table?" || len(got.Questions[0].Options) != 2 {
		t.Fatalf("question = %+v", got.Questions[0])
	}

	answered := p.Pending([]Message{user("u1", "count rows"), turn, user("u2", "users")})
	if answered.HasQuestion() || answered.HasConfirm {
		t.Fatalf("prompt still open after reply: %+v", answered)
	}
}

func TestPromptsConfirmResolvedPerConversation(t *testing.T) {
	p := NewPrompts(nil)
	p.Bind(7)

	msgs := []Message{assistant("a1",
		call(t, "w", "execute_write_sql", "{}"),
		result(t, "w", "execute_write_sql", confirmBody),
	)}
	got := p.Pending(msgs)
	if !got.HasConfirm || got.Confirm.ConfirmationToken != "tok-1" || got.Confirm.ConnectionID != 4 {
		t.Fatalf("pending = %+v", got)
	}

	p.Resolve("tok-1")
	if p.Pending(msgs).HasConfirm {
		t.Fatal("resolved token still prompts")
	}

	p.Bind(7)
	if p.Pending(msgs).HasConfirm {
		t.Fatal("rebinding the same conversation should keep resolutions")
	}

	p.Bind(8)
	if p.ConversationID() != 8 {
		t.Fatalf("ConversationID = %d", p.ConversationID())
	}
	if !p.Pending(msgs).HasConfirm {
		t.Fatal("switching conversation should drop old resolutions")
	}
}

func TestPromptsSkipErroredConfirm(t *testing.T) {
	p := NewPrompts(nil)
	msgs := []Message{assistant("a1",
		call(t, "w", "execute_write_sql", "{}"),
		result(t, "w", "execute_write_sql", `{"confirmationToken":"t","error":"permission denied"}`),
	)}
	if p.Pending(msgs).HasConfirm {
		t.Fatal("confirm with error should not prompt")
	}
}

func TestPromptsPendingCallDoesNotPrompt(t *testing.T) {
	p := NewPrompts(nil)
	msgs := []Message{assistant("a1", call(t, "q", "ask_user_question", `{"question":"x"}`))}
	if got := p.Pending(msgs); got.HasQuestion() {
		t.Fatalf("pending call produced prompt: %+v", got)
	}
}
