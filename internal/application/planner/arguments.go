package planner

import (
	"encoding/json"
	"fmt"

	"github.com/longregen/cogexec/internal/domain/models"
)

// parseArguments decodes the model's raw output into an argument map. The
// model is expected to return a bare JSON object (requested, not forced, by
// the grammar's tool-call framing in internal/adapters/llm); anything else is a planning
// failure for that candidate tool, not a panic.
func parseArguments(raw string) (map[string]any, error) {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	return args, nil
}

// satisfiesSchema is a cheap pre-check mirroring the Wall's schema tier, so
// the Planner doesn't hand the Wall a plan doomed to fail on the first
// tier. It checks required keys and, where declared, type and enum; it does
// not replace the Wall's authoritative check.
func satisfiesSchema(schema models.ArgSchema, args map[string]any) bool {
	for _, req := range schema.Required {
		if _, ok := args[req]; !ok {
			return false
		}
	}
	for name, constraint := range schema.Properties {
		val, present := args[name]
		if !present {
			continue
		}
		if !typeMatches(constraint.Type, val) {
			return false
		}
		if len(constraint.Enum) > 0 {
			if !enumContains(constraint.Enum, val) {
				return false
			}
		}
	}
	return true
}

func typeMatches(want string, val any) bool {
	switch want {
	case "", "any":
		return true
	case "string":
		_, ok := val.(string)
		return ok
	case "number":
		_, ok := val.(float64)
		return ok
	case "integer":
		f, ok := val.(float64)
		return ok && f == float64(int64(f))
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "array":
		_, ok := val.([]any)
		return ok
	case "object":
		_, ok := val.(map[string]any)
		return ok
	default:
		return true
	}
}

func enumContains(enum []string, val any) bool {
	s, ok := val.(string)
	if !ok {
		return false
	}
	for _, e := range enum {
		if e == s {
			return true
		}
	}
	return false
}
