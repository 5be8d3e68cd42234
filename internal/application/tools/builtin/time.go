package builtin

import (
	"context"
	"time"

	"github.com/longregen/cogexec/internal/domain/models"
	"github.com/longregen/cogexec/internal/ports"
)

var TimeSpec = &models.ToolSpec{
	Name:           "get_time",
	Description:    "Returns the current time in UTC and, if a timezone name is given, in that timezone too.",
	RiskTier:       models.RiskSafe,
	RateLimitClass: "safe",
	SideEffect:     models.SideEffectReadOnly,
	ArgSchema: models.ArgSchema{
		Properties: map[string]models.ArgConstraint{
			"timezone": {Type: "string"},
		},
	},
}

type Time struct{}

func NewTime() *Time { return &Time{} }

func (t *Time) Run(ctx context.Context, args map[string]any, execCtx *ports.ExecutionContext) (*models.ExecutionResult, error) {
	start := time.Now()
	now := time.Now().UTC()

	value := map[string]any{
		"utc": now.Format(time.RFC3339),
	}

	if tz, ok := args["timezone"].(string); ok && tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return &models.ExecutionResult{
				Success:      false,
				ErrorKind:    "unknown_timezone",
				ErrorMessage: err.Error(),
				Duration:     time.Since(start),
			}, nil
		}
		value["local"] = now.In(loc).Format(time.RFC3339)
		value["timezone"] = tz
	}

	return &models.ExecutionResult{Success: true, Value: value, Duration: time.Since(start)}, nil
}
