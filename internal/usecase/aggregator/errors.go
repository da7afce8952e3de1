package aggregator

import (
	"errors"
	"fmt"

	"agentloop/internal/domain/entity"
)

var (
	ErrUnrecognizedContentType = errors.New("unrecognized content type")
	ErrToolUseContinuation     = errors.New("tool_use fragment continues an open block")
	ErrMalformedToolArguments  = errors.New("malformed tool arguments")
	ErrIndexRegression         = errors.New("fragment index lower than open block")
	ErrBlockClosed             = errors.New("fragment targets a closed block")
	ErrBlockTypeMismatch       = errors.New("fragment type does not match open block")
	ErrNoOpenBlock             = errors.New("input_json_delta without an open tool_use block")
	ErrMissingToolCall         = errors.New("tool_use fragment without tool call id and name")
)

// ProtocolError reports a delta stream that violates the block protocol.
type ProtocolError struct {
	Index int
	Type  entity.FragmentType
	Err   error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("content block %d (%s): %v", e.Index, e.Type, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func protocolError(f entity.Fragment, err error) error {
	return &ProtocolError{Index: f.Index, Type: f.Type, Err: err}
}
