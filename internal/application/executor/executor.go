// Package executor implements the Sandbox Executor: a registry-based
// dispatcher that runs an approved ActionPlan's tool under resource and
// capability limits, returning a structured ExecutionResult.
package executor

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/longregen/cogexec/internal/adapters/metrics"
	"github.com/longregen/cogexec/internal/domain"
	"github.com/longregen/cogexec/internal/domain/models"
	"github.com/longregen/cogexec/internal/ports"
)

const (
	DefaultTimeout        = 30 * time.Second
	MaxResearchTimeout    = 120 * time.Second
	DefaultMaxOutputBytes = 1 << 20 // 1 MiB
)

// Executor runs ToolHandlers registered in a Registry, enforcing per-tool
// timeouts, output size caps, scratch-directory isolation, and per-user
// serialization. Two turns for the same user execute sequentially; turns
// for different users run concurrently.
type Executor struct {
	registry     ports.ToolRegistry
	handlers     map[string]ports.ToolHandler
	scratchRoot  string
	maxOutput    int
	userLocks    sync.Map // userID -> *sync.Mutex
	toolTimeouts map[string]time.Duration
}

// New constructs an Executor. scratchRoot is the directory under which
// per-turn scratch directories are created; it must already exist.
func New(registry ports.ToolRegistry, handlers map[string]ports.ToolHandler, scratchRoot string) *Executor {
	return &Executor{
		registry:     registry,
		handlers:     handlers,
		scratchRoot:  scratchRoot,
		maxOutput:    DefaultMaxOutputBytes,
		toolTimeouts: make(map[string]time.Duration),
	}
}

// SetToolTimeout overrides the default timeout for a specific tool, e.g.
// raising a research tool's timeout up to MaxResearchTimeout.
func (e *Executor) SetToolTimeout(toolName string, d time.Duration) {
	if d > MaxResearchTimeout {
		d = MaxResearchTimeout
	}
	e.toolTimeouts[toolName] = d
}

// Execute runs plan's tool under a deadline and capability set derived from
// its ToolSpec, serialized per user.
func (e *Executor) Execute(ctx context.Context, userID string, plan *models.ActionPlan) (*models.ExecutionResult, error) {
	spec, ok := e.registry.Lookup(plan.ToolName)
	if !ok {
		return nil, domain.NewDomainError(domain.ErrToolNotFound, fmt.Sprintf("tool %q not registered", plan.ToolName))
	}

	handler, ok := e.handlers[plan.ToolName]
	if !ok {
		return nil, domain.NewDomainError(domain.ErrToolNotFound, fmt.Sprintf("no handler registered for tool %q", plan.ToolName))
	}

	lock := e.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	turnID := fmt.Sprintf("%s-%d", userID, time.Now().UnixNano())
	toolUse := models.NewToolUse(fmt.Sprintf("tu-%s-%d", userID, time.Now().UnixNano()), turnID, plan.ToolName, plan.Args)
	toolUse.Start()

	scratchDir, err := os.MkdirTemp(e.scratchRoot, "turn-"+sanitizeDirName(turnID)+"-")
	if err != nil {
		return nil, domain.NewDomainError(domain.ErrToolInternal, fmt.Sprintf("failed to create scratch directory: %v", err))
	}
	defer os.RemoveAll(scratchDir)

	execCtx := &ports.ExecutionContext{
		TurnID:       turnID,
		ScratchDir:   scratchDir,
		Capabilities: capabilitiesFor(spec.SideEffect),
		MaxOutput:    e.maxOutput,
	}

	timeout := e.toolTimeouts[plan.ToolName]
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, timedOut := e.runWithTimeout(deadlineCtx, handler, plan.Args, execCtx)
	result.Duration = time.Since(start)
	result.Timeout = timedOut
	metrics.ExecutorDuration.WithLabelValues(plan.ToolName).Observe(result.Duration.Seconds())

	if result.Success {
		toolUse.Complete(result.Value)
	} else {
		toolUse.Fail(result.ErrorMessage)
	}
	log.Printf("tool_use id=%s tool=%s status=%s duration=%s", toolUse.ID, toolUse.ToolName, toolUse.Status, result.Duration)

	truncateIfNeeded(result, e.maxOutput)

	return result, nil
}

// runWithTimeout is the goroutine+buffered-channel+select pattern: the
// handler runs on its own goroutine so a deadline or cancellation can
// observe ctx.Done() without waiting on the handler to notice.
func (e *Executor) runWithTimeout(ctx context.Context, handler ports.ToolHandler, args map[string]any, execCtx *ports.ExecutionContext) (*models.ExecutionResult, bool) {
	type outcome struct {
		result *models.ExecutionResult
		err    error
	}

	resultChan := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultChan <- outcome{result: nil, err: fmt.Errorf("tool handler panicked: %v", r)}
			}
		}()
		result, err := handler.Run(ctx, args, execCtx)
		resultChan <- outcome{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		return &models.ExecutionResult{
			Success:      false,
			ErrorKind:    "timeout",
			ErrorMessage: "tool execution exceeded its deadline",
		}, true
	case out := <-resultChan:
		if out.err != nil {
			return &models.ExecutionResult{
				Success:      false,
				ErrorKind:    "tool_error",
				ErrorMessage: out.err.Error(),
			}, false
		}
		if out.result == nil {
			return &models.ExecutionResult{Success: false, ErrorKind: "tool_error", ErrorMessage: "tool returned no result"}, false
		}
		return out.result, false
	}
}

// truncateIfNeeded caps a string-valued result to maxOutput bytes, flagging
// Truncated rather than failing the turn.
func truncateIfNeeded(result *models.ExecutionResult, maxOutput int) {
	text, ok := result.Value.(string)
	if !ok || maxOutput <= 0 || len(text) <= maxOutput {
		return
	}
	result.Value = text[:maxOutput]
	result.Truncated = true
}

func (e *Executor) lockFor(userID string) *sync.Mutex {
	actual, _ := e.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// capabilitiesFor derives the capability set a ToolHandler may exercise
// from its declared side-effect class. Every tool gets read access to its
// own scratch directory.
func capabilitiesFor(se models.SideEffect) map[ports.Capability]bool {
	caps := map[ports.Capability]bool{ports.CapFSRead: true}
	switch se {
	case models.SideEffectWritesFS:
		caps[ports.CapFSWrite] = true
	case models.SideEffectNetwork:
		caps[ports.CapNetwork] = true
	case models.SideEffectOSControl:
		caps[ports.CapOSControl] = true
	case models.SideEffectMemoryWrite:
		caps[ports.CapMemoryWrite] = true
	}
	return caps
}

func sanitizeDirName(s string) string {
	return filepath.Base(s)
}
