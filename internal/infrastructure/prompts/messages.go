package prompts

import (
	"errors"
	"strings"

	"agentloop/internal/domain/entity"
)

var ErrEmptySystemPrompt = errors.New("system prompt is undefined or empty")

func SystemTurn(prompt string) (entity.Turn, error) {
	if strings.TrimSpace(prompt) == "" {
		return entity.Turn{}, ErrEmptySystemPrompt
	}
	return entity.NewSystemTurn(prompt), nil
}

func UserTurn(message string) entity.Turn {
	return entity.NewUserTurn(message)
}
