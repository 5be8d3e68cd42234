package models

import "time"

type ToolStatus string

const (
	ToolStatusPending   ToolStatus = "pending"
	ToolStatusRunning   ToolStatus = "running"
	ToolStatusSuccess   ToolStatus = "success"
	ToolStatusError     ToolStatus = "error"
	ToolStatusCancelled ToolStatus = "cancelled"
)

// ToolUse is the execution record for one ActionPlan dispatch within a Turn.
// Distinct from ToolSpec (the immutable registry entry): a ToolUse is
// mutable state tracking one attempt to run a tool.
type ToolUse struct {
	ID           string         `json:"id"`
	TurnID       string         `json:"turn_id"`
	ToolName     string         `json:"tool_name"`
	Arguments    map[string]any `json:"arguments,omitempty"`
	Result       any            `json:"result,omitempty"`
	Status       ToolStatus     `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func NewToolUse(id, turnID, toolName string, arguments map[string]any) *ToolUse {
	now := time.Now()
	return &ToolUse{
		ID:        id,
		TurnID:    turnID,
		ToolName:  toolName,
		Arguments: arguments,
		Status:    ToolStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (tu *ToolUse) Start() {
	tu.Status = ToolStatusRunning
	tu.UpdatedAt = time.Now()
}

func (tu *ToolUse) Complete(result any) {
	tu.Status = ToolStatusSuccess
	tu.Result = result
	now := time.Now()
	tu.CompletedAt = &now
	tu.UpdatedAt = now
}

func (tu *ToolUse) Fail(errorMessage string) {
	tu.Status = ToolStatusError
	tu.ErrorMessage = errorMessage
	now := time.Now()
	tu.CompletedAt = &now
	tu.UpdatedAt = now
}

func (tu *ToolUse) Cancel() {
	tu.Status = ToolStatusCancelled
	now := time.Now()
	tu.CompletedAt = &now
	tu.UpdatedAt = now
}

func (tu *ToolUse) IsComplete() bool {
	return tu.Status == ToolStatusSuccess || tu.Status == ToolStatusError || tu.Status == ToolStatusCancelled
}

func (tu *ToolUse) IsPending() bool {
	return tu.Status == ToolStatusPending
}

func (tu *ToolUse) IsRunning() bool {
	return tu.Status == ToolStatusRunning
}
