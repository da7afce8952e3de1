package prompts

import (
	"bytes"
	"sort"
	"strings"
	"text/template"

	"agentloop/internal/application/port/output"
)

type ToolInfo struct {
	Name        string
	Description string
}

type SystemPromptData struct {
	Tools []ToolInfo
	Extra string
}

// GenerateSystemPrompt renders baseTemplate with the registered tools sorted
// by name. extra is appended as additional instructions when not empty.
func GenerateSystemPrompt(baseTemplate string, tools output.ToolRegistry, extra string) (string, error) {
	defs := tools.Definitions()
	infos := make([]ToolInfo, 0, len(defs))

	for _, def := range defs {
		infos = append(infos, ToolInfo{
			Name:        def.Name,
			Description: firstLine(def.Description),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})

	data := SystemPromptData{
		Tools: infos,
		Extra: strings.TrimSpace(extra),
	}

	tmpl, err := template.New("system").Parse(baseTemplate)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
