package entity

import "strings"

type ResponseInfo struct {
	ID         string `json:"id,omitempty"`
	Model      string `json:"model,omitempty"`
	Role       string `json:"role,omitempty"`
	StopReason string `json:"stopReason,omitempty"`
}

// Response is a fully aggregated model response.
type Response struct {
	Info        ResponseInfo     `json:"info"`
	Blocks      []ContentBlock   `json:"blocks"`
	Invocations []ToolInvocation `json:"invocations"`
	Usage       Usage            `json:"usage"`
}

// Complete reports whether the stream delivered a stop reason.
func (r *Response) Complete() bool {
	return r.Info.StopReason != ""
}

func (r *Response) Text() string {
	var parts []string
	for _, b := range r.Blocks {
		if b.Type == BlockText {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func (r *Response) Clone() *Response {
	out := &Response{
		Info:   r.Info,
		Blocks: CloneBlocks(r.Blocks),
		Usage:  r.Usage,
	}
	if out.Blocks == nil {
		out.Blocks = []ContentBlock{}
	}
	out.Invocations = make([]ToolInvocation, len(r.Invocations))
	for i, inv := range r.Invocations {
		out.Invocations[i] = inv.Clone()
	}
	return out
}
