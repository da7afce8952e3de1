package entity

import "errors"

var (
	ErrToolNotFound     = errors.New("tool not found")
	ErrDuplicateTool    = errors.New("duplicate tool name")
	ErrRunStopped       = errors.New("run was stopped and cannot be resumed")
	ErrBusy             = errors.New("agent is already running")
	ErrSnapshotNotFound = errors.New("snapshot not found")
)
