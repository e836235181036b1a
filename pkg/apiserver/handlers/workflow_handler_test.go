package handlers

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestWorkflowChangeClassification(t *testing.T) {
	activate := true
	deactivate := false
	name := "renamed"

	tests := []struct {
		name string
		req  workflowUpdateRequest
		want string
	}{
		{"activation", workflowUpdateRequest{IsActive: &activate}, "activated"},
		{"deactivation", workflowUpdateRequest{IsActive: &deactivate}, "deactivated"},
		{"plain edit", workflowUpdateRequest{Name: &name}, "updated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, workflowChange(tt.req))
		})
	}
}

func TestPublishChangeWithoutBusIsNoOp(t *testing.T) {
	h := &WorkflowHandler{}

	// Must return without touching the request when no bus is configured.
	h.publishChange(nil, uuid.New(), "deleted")
}
