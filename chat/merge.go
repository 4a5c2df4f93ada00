package chat

import "slices"

// MergeTurns folds runs of consecutive assistant messages into one turn.
// The history endpoint may split a turn into several rows (one per
// phase); the segment builder needs the whole block list in one place.
//
// A folded turn keeps the first timestamp, the last id, the last
// non-empty content, and all blocks in order. User messages pass through.
// A list without adjacent assistant messages comes back equal to the
// input.
func MergeTurns(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		n := len(out)
		if m.Role != RoleAssistant || n == 0 || out[n-1].Role != RoleAssistant {
			out = append(out, m)
			continue
		}

		prev := out[n-1]
		merged := Message{
			ID:        m.ID,
			Role:      RoleAssistant,
			Content:   prev.Content,
			Timestamp: prev.Timestamp,
			Blocks:    append(slices.Clip(prev.Blocks), m.Blocks...),
		}
		if m.Content != "" {
			merged.Content = m.Content
		}
		if merged.Timestamp.IsZero() {
			merged.Timestamp = m.Timestamp
		}
		out[n-1] = merged
	}
	return out
}
