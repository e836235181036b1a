package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type StepType string

const (
	StepSendEmail      StepType = "send_email"
	StepCheckCondition StepType = "check_condition"
	StepWaitUntil      StepType = "wait_until"
	StepCreateOrder    StepType = "create_order"
)

type ScheduleType string

const (
	ScheduleDaily   ScheduleType = "daily"
	ScheduleWeekly  ScheduleType = "weekly"
	ScheduleMonthly ScheduleType = "monthly"
	ScheduleCron    ScheduleType = "cron"
)

// WorkflowDefinition is a named, independently activatable automation unit.
// It owns an ordered set of steps and at most one schedule.
type WorkflowDefinition struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name         string    `gorm:"not null"`
	Description  string
	WorkflowType string `gorm:"type:varchar(100);index"`
	IsActive     bool   `gorm:"default:true;index"`
	CreatedBy    string
	Steps        []WorkflowStep      `gorm:"foreignKey:WorkflowID"`
	Schedule     *WorkflowSchedule   `gorm:"foreignKey:WorkflowID"`
	Executions   []WorkflowExecution `gorm:"foreignKey:WorkflowID"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// WorkflowStep is one typed instruction within a workflow. Active steps of a
// workflow carry distinct StepOrder values; execution walks them ascending.
type WorkflowStep struct {
	ID              uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	WorkflowID      uuid.UUID `gorm:"type:uuid;not null;index:idx_step_workflow_order"`
	StepOrder       int       `gorm:"not null;index:idx_step_workflow_order"`
	StepType        StepType  `gorm:"type:varchar(50);not null"`
	TriggerConfig   JSONB     `gorm:"type:jsonb;default:'{}'"`
	ActionConfig    JSONB     `gorm:"type:jsonb;default:'{}'"`
	ConditionConfig JSONB     `gorm:"type:jsonb;default:'{}'"`
	IsActive        bool      `gorm:"default:true"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// WorkflowSchedule is the recurrence rule for a workflow, at most one per
// workflow. A nil NextRun means the poller never selects the workflow.
type WorkflowSchedule struct {
	ID             uuid.UUID    `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	WorkflowID     uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex"`
	ScheduleType   ScheduleType `gorm:"type:varchar(50);not null"`
	ScheduleConfig JSONB        `gorm:"type:jsonb;default:'{}'"`
	LastRun        *time.Time
	NextRun        *time.Time `gorm:"index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan JSONB: %v", value)
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONB) GormDataType() string {
	return "jsonb"
}

// String reads a string-valued key, reporting whether it was present as a
// non-empty string.
func (j JSONB) String(key string) (string, bool) {
	raw, ok := j[key]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Int reads a numeric key, tolerating the float64 that json decoding
// produces for all numbers.
func (j JSONB) Int(key string) (int, bool) {
	switch n := j[key].(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
