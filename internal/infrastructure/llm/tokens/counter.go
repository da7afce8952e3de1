package tokens

import (
	"encoding/json"
	"strings"

	"agentloop/internal/domain/entity"

	"github.com/pkoukk/tiktoken-go"
)

// Counter estimates token counts for providers that do not report usage.
type Counter struct {
	encoder *tiktoken.Tiktoken
}

// NewCounter loads the cl100k_base encoding.
func NewCounter() (*Counter, error) {
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return &Counter{encoder: encoder}, nil
}

// NewEstimator returns a Counter without an encoder. It falls back to a
// characters-per-token estimate.
func NewEstimator() *Counter {
	return &Counter{}
}

func (c *Counter) CountTokens(text string) int {
	if c == nil || c.encoder == nil {
		return EstimateTokens(text)
	}
	return len(c.encoder.Encode(text, nil, nil))
}

// CountTranscript counts role and content tokens of every turn plus the
// per-message overhead.
func (c *Counter) CountTranscript(system string, turns []entity.Turn) int {
	total := 3
	if system != "" {
		total += c.CountTokens(string(entity.RoleSystem)) + c.CountTokens(system) + 3
	}

	for _, turn := range turns {
		total += c.CountTokens(string(turn.Role))
		total += c.CountTokens(turnContent(turn))
		total += 3
	}
	return total
}

func turnContent(turn entity.Turn) string {
	if len(turn.Blocks) == 0 {
		return turn.Content
	}

	var b strings.Builder
	for _, block := range turn.Blocks {
		switch block.Type {
		case entity.BlockText:
			b.WriteString(block.Text)
		case entity.BlockThinking:
			b.WriteString(block.Thinking)
		case entity.BlockToolUse:
			b.WriteString(block.Name)
			if data, err := json.Marshal(block.Input); err == nil {
				b.Write(data)
			}
		}
	}
	return b.String()
}

// EstimateTokens assumes roughly four characters per token.
func EstimateTokens(text string) int {
	return len(text) / 4
}
