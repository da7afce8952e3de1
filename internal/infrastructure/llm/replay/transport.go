package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"agentloop/internal/application/port/output"
	"agentloop/internal/domain/entity"
	"agentloop/internal/infrastructure/llm/deltastream"

	"github.com/spf13/afero"
)

var ErrScriptExhausted = errors.New("replay script has no more responses")

var _ output.ModelTransport = (*Transport)(nil)

// Script is a recorded conversation: one list of deltas per model call.
type Script struct {
	Responses [][]entity.Delta `json:"responses"`
}

// Transport plays back a Script, one response per Stream call.
type Transport struct {
	mu     sync.Mutex
	script Script
	next   int
	logger output.LoggerPort
}

func New(script Script, logger output.LoggerPort) *Transport {
	return &Transport{script: script, logger: logger}
}

func Load(fs afero.Fs, path string, logger output.LoggerPort) (*Transport, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read replay script: %w", err)
	}

	var script Script
	if err := json.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("parse replay script %s: %w", path, err)
	}
	logger.Info("Replay script loaded", "path", path, "responses", len(script.Responses))
	return New(script, logger), nil
}

func (t *Transport) Name() string {
	return "replay"
}

func (t *Transport) Stream(ctx context.Context, req output.ModelRequest) (output.DeltaStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.next >= len(t.script.Responses) {
		return nil, ErrScriptExhausted
	}
	deltas := t.script.Responses[t.next]
	t.next++

	t.logger.Debug("Replaying response", "response", t.next, "deltas", len(deltas), "turns", len(req.Transcript))
	return deltastream.FromSlice(deltas), nil
}

// Remaining reports how many responses have not been played yet.
func (t *Transport) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.script.Responses) - t.next
}
