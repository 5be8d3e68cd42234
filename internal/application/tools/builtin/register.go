package builtin

import (
	"fmt"

	"github.com/longregen/cogexec/internal/domain/models"
	"github.com/longregen/cogexec/internal/ports"
)

// RegisterAll populates registry with every built-in ToolSpec and wires its
// handler into the dispatch table the Sandbox Executor consumes. citations
// is the store Research persists cited paragraphs into.
func RegisterAll(registry ports.ToolRegistry, dispatch map[string]ports.ToolHandler, citations ports.CitationStore) error {
	entries := []struct {
		spec    *models.ToolSpec
		handler ports.ToolHandler
	}{
		{CalculatorSpec, NewCalculator()},
		{TimeSpec, NewTime()},
		{WeatherSpec, NewWeather()},
		{ResearchSpec, NewResearch(citations)},
	}

	for _, e := range entries {
		if err := registry.Register(e.spec); err != nil {
			return fmt.Errorf("register %s: %w", e.spec.Name, err)
		}
		dispatch[e.spec.Name] = e.handler
	}
	return nil
}
