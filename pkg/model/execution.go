package model

import (
	"time"

	"github.com/google/uuid"
)

type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

type ActionStatus string

const (
	ActionRunning ActionStatus = "running"
	ActionSuccess ActionStatus = "success"
	ActionFailed  ActionStatus = "failed"
)

// WorkflowExecution is one run instance of a workflow. It is created in the
// running state and transitions exactly once to completed or failed. Records
// are never deleted by normal operation; they are the audit trail.
type WorkflowExecution struct {
	ID           uuid.UUID       `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	WorkflowID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	Status       ExecutionStatus `gorm:"type:varchar(50);default:'running';index"`
	CurrentStep  int             `gorm:"default:0"`
	ErrorMessage string
	StartedAt    time.Time
	CompletedAt  *time.Time
	ActionLogs   []WorkflowActionLog `gorm:"foreignKey:ExecutionID"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// WorkflowActionLog records one step attempt within an execution.
// Append-only: once terminal it is never updated again.
type WorkflowActionLog struct {
	ID           uuid.UUID    `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ExecutionID  uuid.UUID    `gorm:"type:uuid;not null;index"`
	StepID       uuid.UUID    `gorm:"type:uuid;not null;index"`
	ActionType   StepType     `gorm:"type:varchar(50);not null"`
	Status       ActionStatus `gorm:"type:varchar(50);default:'running'"`
	ResultData   JSONB        `gorm:"type:jsonb;default:'{}'"`
	ErrorMessage string
	PerformedAt  time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed
}
