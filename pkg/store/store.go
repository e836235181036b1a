package store

import "errors"

// ErrNotFound is returned by repositories when the addressed record does not
// exist. Storage-engine sentinel errors never cross the repository boundary.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyRunning is returned when creating an execution for a workflow
// that already has one in the running state.
var ErrAlreadyRunning = errors.New("workflow already has a running execution")

// ErrDuplicateStepOrder is returned when a write would leave two active
// steps of the same workflow with the same step_order.
var ErrDuplicateStepOrder = errors.New("duplicate step_order among active steps")

// WorkflowFilter narrows a workflow list query. Zero values mean "no filter".
type WorkflowFilter struct {
	IsActive  *bool
	Type      string
	CreatedBy string
	Search    string
	Limit     int
	Offset    int
}

// GetOptions toggles which associations a workflow read loads.
type GetOptions struct {
	IncludeSteps      bool
	IncludeSchedule   bool
	IncludeExecutions bool
}

// Page is a limit/offset window for listings that also report a total.
type Page struct {
	Limit  int
	Offset int
}
