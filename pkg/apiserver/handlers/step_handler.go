package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mealflow/mealflow/pkg/model"
	"github.com/mealflow/mealflow/pkg/store/postgres"
)

type StepHandler struct {
	steps  *postgres.StepRepository
	logger *zap.Logger
}

func NewStepHandler(steps *postgres.StepRepository, logger *zap.Logger) *StepHandler {
	return &StepHandler{steps: steps, logger: logger}
}

type stepUpdateRequest struct {
	StepOrder       *int                   `json:"step_order"`
	TriggerConfig   map[string]interface{} `json:"trigger_config"`
	ActionConfig    map[string]interface{} `json:"action_config"`
	ConditionConfig map[string]interface{} `json:"condition_config"`
	IsActive        *bool                  `json:"is_active"`
}

func (h *StepHandler) Create(c *gin.Context) {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow id"})
		return
	}

	var req stepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	step, err := buildStep(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	step.WorkflowID = workflowID

	if err := h.steps.Create(c.Request.Context(), &step); err != nil {
		writeStoreError(c, h.logger, err, "create step")
		return
	}

	c.JSON(http.StatusCreated, mapStep(&step))
}

func (h *StepHandler) List(c *gin.Context) {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow id"})
		return
	}

	steps, err := h.steps.List(c.Request.Context(), workflowID)
	if err != nil {
		writeStoreError(c, h.logger, err, "list steps")
		return
	}

	response := make([]stepResponse, 0, len(steps))
	for i := range steps {
		response = append(response, mapStep(&steps[i]))
	}
	c.JSON(http.StatusOK, response)
}

// Replace swaps the whole step list in one transaction.
func (h *StepHandler) Replace(c *gin.Context) {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow id"})
		return
	}

	var req []stepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	steps := make([]model.WorkflowStep, 0, len(req))
	for _, s := range req {
		step, err := buildStep(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		steps = append(steps, step)
	}

	if err := h.steps.Replace(c.Request.Context(), workflowID, steps); err != nil {
		writeStoreError(c, h.logger, err, "replace steps")
		return
	}

	response := make([]stepResponse, 0, len(steps))
	for i := range steps {
		response = append(response, mapStep(&steps[i]))
	}
	c.JSON(http.StatusOK, response)
}

func (h *StepHandler) Update(c *gin.Context) {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow id"})
		return
	}
	stepID, err := uuid.Parse(c.Param("stepID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid step id"})
		return
	}

	var req stepUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if req.StepOrder != nil {
		updates["step_order"] = *req.StepOrder
	}
	if req.TriggerConfig != nil {
		updates["trigger_config"] = model.JSONB(req.TriggerConfig)
	}
	if req.ActionConfig != nil {
		updates["action_config"] = model.JSONB(req.ActionConfig)
	}
	if req.ConditionConfig != nil {
		updates["condition_config"] = model.JSONB(req.ConditionConfig)
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}

	step, err := h.steps.Update(c.Request.Context(), workflowID, stepID, updates)
	if err != nil {
		writeStoreError(c, h.logger, err, "update step")
		return
	}

	c.JSON(http.StatusOK, mapStep(step))
}

func (h *StepHandler) Delete(c *gin.Context) {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow id"})
		return
	}
	stepID, err := uuid.Parse(c.Param("stepID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid step id"})
		return
	}

	if err := h.steps.Delete(c.Request.Context(), workflowID, stepID); err != nil {
		writeStoreError(c, h.logger, err, "delete step")
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
