package userinteraction

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"agentloop/internal/application/port/output"
	"agentloop/internal/domain/entity"

	"github.com/fatih/color"
	"github.com/tidwall/gjson"
)

var _ output.Observer = (*ConsoleObserver)(nil)

// ConsoleObserver prints loop progress and turns pause or stop requests
// into signals at the next safe point.
type ConsoleObserver struct {
	out           io.Writer
	maxIterations int

	pause atomic.Bool
	stop  atomic.Bool
}

func NewConsoleObserver(out io.Writer, maxIterations int) *ConsoleObserver {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleObserver{out: out, maxIterations: maxIterations}
}

// RequestPause asks the loop to pause after the current step.
func (u *ConsoleObserver) RequestPause() {
	u.pause.Store(true)
}

func (u *ConsoleObserver) RequestStop() {
	u.stop.Store(true)
}

func (u *ConsoleObserver) PauseRequested() bool {
	return u.pause.Load()
}

func (u *ConsoleObserver) Notify(ctx context.Context, event entity.Event) entity.Signal {
	switch event.Kind {
	case entity.EventModelTurn:
		u.showModelTurn(event)
	case entity.EventToolResult:
		u.showToolResult(event)
	}

	switch {
	case u.stop.Load():
		color.New(color.FgRed, color.Bold).Fprintln(u.out, "\n■ Stopping")
		return entity.SignalStop
	case u.pause.Load():
		color.New(color.FgMagenta, color.Bold).Fprintln(u.out, "\n⏸ Pausing")
		return entity.SignalPause
	}
	return entity.SignalContinue
}

func (u *ConsoleObserver) showModelTurn(event entity.Event) {
	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Fprintf(u.out, "\n━━━ Iteration %d/%d ━━━\n", event.State.Iteration, u.maxIterations)

	if event.Response == nil {
		return
	}

	for _, block := range event.Response.Blocks {
		switch block.Type {
		case entity.BlockThinking:
			if block.Thinking == "" {
				continue
			}
			color.New(color.FgBlue).Fprint(u.out, "\n💭 Thinking: ")
			color.New(color.Faint).Fprintln(u.out, truncate(block.Thinking, 500))
		case entity.BlockText:
			if block.Text != "" {
				fmt.Fprintf(u.out, "\n%s\n", block.Text)
			}
		case entity.BlockToolUse:
			yellow := color.New(color.FgYellow, color.Bold)
			yellow.Fprintf(u.out, "\n🔧 %s\n", block.Name)
			if summary := formatToolArguments(block.Input); summary != "" {
				color.New(color.Faint).Fprintf(u.out, "   %s\n", summary)
			}
		}
	}
}

func (u *ConsoleObserver) showToolResult(event entity.Event) {
	if event.Result == nil {
		return
	}

	if event.Result.IsError {
		red := color.New(color.FgRed)
		red.Fprint(u.out, "❌ Error: ")
		color.New(color.Faint).Fprintln(u.out, truncate(event.Result.Content, 300))
		return
	}

	green := color.New(color.FgGreen)
	green.Fprintf(u.out, "✓ %s\n", formatToolResult(event.Result.Content))
}

// ShowResult prints the outcome of a finished or suspended run.
func (u *ConsoleObserver) ShowResult(state entity.AgentState, answer string, usage entity.Usage) {
	switch state.Status {
	case entity.StatusCompleted:
		color.New(color.FgGreen, color.Bold).Fprintln(u.out, "\n✅ Done")
		fmt.Fprintln(u.out, answer)
	case entity.StatusIterationLimit:
		color.New(color.FgYellow, color.Bold).Fprintf(u.out, "\n⚠ Iteration limit reached after %d iterations\n", state.Iteration)
		if answer != "" {
			fmt.Fprintln(u.out, answer)
		}
	default:
		color.New(color.FgMagenta, color.Bold).Fprintf(u.out, "\nRun %s at iteration %d\n", state.Status, state.Iteration)
	}

	if !usage.IsZero() {
		color.New(color.Faint).Fprintf(u.out, "tokens: %d in, %d out\n", usage.InputTokens, usage.OutputTokens)
	}
}

// formatToolArguments renders the top-level arguments as key=value pairs.
func formatToolArguments(input map[string]any) string {
	if len(input) == 0 {
		return ""
	}

	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, truncate(fmt.Sprint(input[k]), 60)))
	}
	return strings.Join(parts, " ")
}

func formatToolResult(result string) string {
	trimmed := strings.TrimSpace(result)
	if gjson.Valid(trimmed) {
		parsed := gjson.Parse(trimmed)
		switch {
		case parsed.IsArray():
			return fmt.Sprintf("%d item(s)", len(parsed.Array()))
		case parsed.IsObject():
			keys := []string{}
			parsed.ForEach(func(key, _ gjson.Result) bool {
				keys = append(keys, key.String())
				return true
			})
			return fmt.Sprintf("{%s}", truncate(strings.Join(keys, ", "), 100))
		}
	}

	if i := strings.IndexByte(trimmed, '\n'); i >= 0 {
		trimmed = trimmed[:i]
	}
	return truncate(trimmed, 100)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	n := maxLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
