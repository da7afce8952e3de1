package entity

import "strings"

func CloneTurns(turns []Turn) []Turn {
	if turns == nil {
		return nil
	}
	out := make([]Turn, len(turns))
	for i, t := range turns {
		out[i] = t.Clone()
	}
	return out
}

// FinalAnswer joins, in transcript order, the text blocks of every assistant
// turn after the most recent user turn. Without a user turn the whole
// transcript is scanned.
func FinalAnswer(turns []Turn) string {
	var parts []string
	for _, t := range turns[lastUserIndex(turns)+1:] {
		if t.Role != RoleAssistant {
			continue
		}
		for _, b := range t.Blocks {
			if b.Type == BlockText {
				parts = append(parts, b.Text)
			}
		}
	}
	return strings.Join(parts, "\n")
}

// LastAssistantText is FinalAnswer, or nil when no assistant turn follows the
// most recent user turn.
func LastAssistantText(turns []Turn) *string {
	for _, t := range turns[lastUserIndex(turns)+1:] {
		if t.Role == RoleAssistant {
			text := FinalAnswer(turns)
			return &text
		}
	}
	return nil
}

// PendingInvocations returns the tool requests of the last assistant turn that
// have no tool turn answering them yet.
func PendingInvocations(turns []Turn) []ToolInvocation {
	last := -1
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleAssistant {
			last = i
			break
		}
	}
	if last < 0 {
		return nil
	}

	answered := make(map[string]bool)
	for _, t := range turns[last+1:] {
		if t.Role != RoleTool {
			return nil
		}
		answered[t.ToolCallID] = true
	}

	var pending []ToolInvocation
	for _, inv := range turns[last].Invocations() {
		if !answered[inv.ID] {
			pending = append(pending, inv)
		}
	}
	return pending
}

func lastUserIndex(turns []Turn) int {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleUser {
			return i
		}
	}
	return -1
}
