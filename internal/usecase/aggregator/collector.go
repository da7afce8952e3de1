package aggregator

import (
	"context"
	"fmt"

	"agentloop/internal/application/port/output"
	"agentloop/internal/domain/entity"
)

// Collector rebuilds one model response from its delta stream. Deltas must
// be added in arrival order. A Collector is not safe for concurrent use.
type Collector struct {
	logger output.LoggerPort

	info        entity.ResponseInfo
	usage       entity.Usage
	blocks      []entity.ContentBlock
	invocations []entity.ToolInvocation

	acc       blockAccumulator
	lastIndex int
	deltas    int
	err       error
}

func New(logger output.LoggerPort) *Collector {
	return &Collector{
		logger:    logger,
		lastIndex: -1,
	}
}

func (c *Collector) Add(delta entity.Delta) error {
	if c.err != nil {
		return c.err
	}
	if err := c.add(delta); err != nil {
		c.err = err
		c.logger.Error("Delta rejected", "delta", c.deltas, "error", err)
		return err
	}
	return nil
}

func (c *Collector) add(delta entity.Delta) error {
	c.deltas++

	// The first delta carrying an ID supplies the whole identity.
	if c.info.ID == "" && delta.ID != "" {
		c.info.ID = delta.ID
		c.info.Model = delta.Model
		c.info.Role = delta.Role
	}

	if delta.Usage != nil {
		c.usage = c.usage.Add(*delta.Usage)
	}

	for _, f := range delta.Content {
		if err := c.addFragment(f, delta.ToolCall); err != nil {
			return err
		}
	}

	if delta.StopReason != "" {
		c.info.StopReason = delta.StopReason
		if c.acc.isOpen() {
			if err := c.finalize(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Collector) addFragment(f entity.Fragment, call *entity.ToolCallStart) error {
	if !f.Type.Known() {
		return protocolError(f, ErrUnrecognizedContentType)
	}

	switch {
	case f.Index > c.lastIndex:
		if c.acc.isOpen() {
			if err := c.finalize(); err != nil {
				return err
			}
		}
		if err := c.acc.open(f, call); err != nil {
			return err
		}
		c.lastIndex = f.Index
		return nil
	case f.Index < c.lastIndex:
		return protocolError(f, ErrIndexRegression)
	default:
		return c.acc.append(f)
	}
}

func (c *Collector) finalize() error {
	block, invocation, err := c.acc.finalize()
	if err != nil {
		return err
	}

	c.blocks = append(c.blocks, block)
	if invocation != nil {
		c.invocations = append(c.invocations, *invocation)
		c.logger.Debug("Tool call finalized", "index", c.lastIndex, "name", invocation.Name, "id", invocation.ID)
	} else {
		c.logger.Debug("Block finalized", "index", c.lastIndex, "type", block.Type)
	}
	return nil
}

// Finish closes the block left open by a stream that ended without a stop
// reason. The response stays marked incomplete.
func (c *Collector) Finish() error {
	if c.err != nil {
		return c.err
	}
	if c.info.StopReason == "" {
		c.logger.Warn("Stream ended without stop reason", "deltas", c.deltas, "blocks", len(c.blocks))
	}
	if c.acc.isOpen() {
		if err := c.finalize(); err != nil {
			c.err = err
			return err
		}
	}
	return nil
}

// Result returns a copy of everything finalized so far.
func (c *Collector) Result() *entity.Response {
	resp := &entity.Response{
		Info:        c.info,
		Blocks:      c.blocks,
		Invocations: c.invocations,
		Usage:       c.usage,
	}
	return resp.Clone()
}

func (c *Collector) Consume(ctx context.Context, stream output.DeltaStream) (*entity.Response, error) {
	defer func() {
		if err := stream.Close(); err != nil {
			c.logger.Warn("Failed to close delta stream", "error", err)
		}
	}()

	for stream.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := c.Add(stream.Current()); err != nil {
			return nil, err
		}
	}

	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("delta stream failed: %w", err)
	}

	if err := c.Finish(); err != nil {
		return nil, err
	}

	c.logger.Debug("Response aggregated",
		"id", c.info.ID,
		"stopReason", c.info.StopReason,
		"blocks", len(c.blocks),
		"toolCalls", len(c.invocations),
		"inputTokens", c.usage.InputTokens,
		"outputTokens", c.usage.OutputTokens)

	return c.Result(), nil
}
