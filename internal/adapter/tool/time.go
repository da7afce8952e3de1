package tool

import (
	"context"
	"fmt"
	"time"
)

type currentTimeInput struct {
	Zone string `json:"zone,omitempty" jsonschema:"description=IANA time zone such as Europe/Berlin. Defaults to UTC."`
}

type CurrentTimeTool struct {
	now    func() time.Time
	schema map[string]any
}

func NewCurrentTimeTool(now func() time.Time) *CurrentTimeTool {
	if now == nil {
		now = time.Now
	}
	return &CurrentTimeTool{now: now, schema: SchemaFor[currentTimeInput]()}
}

func (t *CurrentTimeTool) Name() string { return "current_time" }
func (t *CurrentTimeTool) Description() string {
	return "Returns the current date and time in the given time zone."
}
func (t *CurrentTimeTool) Parameters() map[string]any { return t.schema }

func (t *CurrentTimeTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	in, err := DecodeInput[currentTimeInput](input, t.schema)
	if err != nil {
		return nil, err
	}

	zone := in.Zone
	if zone == "" {
		zone = "UTC"
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q", zone)
	}

	now := t.now().In(loc)
	return FormatOutput(map[string]any{
		"time":    now.Format(time.RFC3339),
		"zone":    zone,
		"weekday": now.Weekday().String(),
		"unix":    now.Unix(),
	})
}
