package anthropic

import (
	"strings"

	"agentloop/internal/domain/entity"

	"github.com/anthropics/anthropic-sdk-go"
)

// convertTranscript turns the provider-neutral transcript into Messages API
// params. System turns are hoisted into the system prompt and consecutive
// tool turns are grouped into one user message of tool_result blocks.
func convertTranscript(system string, turns []entity.Turn) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	systemParts := []string{}
	if strings.TrimSpace(system) != "" {
		systemParts = append(systemParts, system)
	}

	messages := []anthropic.MessageParam{}
	var toolResults []anthropic.ContentBlockParamUnion

	flushResults := func() {
		if len(toolResults) > 0 {
			messages = append(messages, anthropic.NewUserMessage(toolResults...))
			toolResults = nil
		}
	}

	for _, turn := range turns {
		if turn.Role == entity.RoleTool {
			toolResults = append(toolResults, anthropic.NewToolResultBlock(turn.ToolCallID, turn.Content, turn.IsError))
			continue
		}
		flushResults()

		switch turn.Role {
		case entity.RoleSystem:
			if text := turn.Text(); text != "" {
				systemParts = append(systemParts, text)
			}
		case entity.RoleUser:
			blocks := convertBlocks(turn)
			if len(blocks) > 0 {
				messages = append(messages, anthropic.NewUserMessage(blocks...))
			}
		case entity.RoleAssistant:
			blocks := convertBlocks(turn)
			if len(blocks) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(blocks...))
			}
		}
	}
	flushResults()

	if len(systemParts) == 0 {
		return nil, messages
	}
	return []anthropic.TextBlockParam{{
		Text:         strings.Join(systemParts, "\n\n"),
		CacheControl: anthropic.NewCacheControlEphemeralParam(),
	}}, messages
}

func convertBlocks(turn entity.Turn) []anthropic.ContentBlockParamUnion {
	if len(turn.Blocks) == 0 {
		if turn.Content == "" {
			return nil
		}
		return []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(turn.Content)}
	}

	out := make([]anthropic.ContentBlockParamUnion, 0, len(turn.Blocks))
	for _, block := range turn.Blocks {
		switch block.Type {
		case entity.BlockText:
			if block.Text == "" {
				continue
			}
			out = append(out, anthropic.NewTextBlock(block.Text))
		case entity.BlockThinking:
			out = append(out, anthropic.NewThinkingBlock(block.Signature, block.Thinking))
		case entity.BlockToolUse:
			input := block.Input
			if input == nil {
				input = map[string]any{}
			}
			out = append(out, anthropic.NewToolUseBlock(block.ID, input, block.Name))
		}
	}
	return out
}

func convertTools(defs []entity.ToolDefinition) []anthropic.ToolUnionParam {
	if len(defs) == 0 {
		return nil
	}

	tools := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		schema := anthropic.ToolInputSchemaParam{}
		if props, ok := def.Parameters["properties"]; ok {
			schema.Properties = props
		}
		schema.Required = requiredFields(def.Parameters["required"])

		tool := &anthropic.ToolParam{
			Name:        def.Name,
			InputSchema: schema,
		}
		if def.Description != "" {
			tool.Description = anthropic.String(def.Description)
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: tool})
	}
	return tools
}

func requiredFields(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
