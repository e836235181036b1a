package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mealflow/mealflow/pkg/engine"
	"github.com/mealflow/mealflow/pkg/eventbus"
	"github.com/mealflow/mealflow/pkg/model"
	"github.com/mealflow/mealflow/pkg/schedule"
	"github.com/mealflow/mealflow/pkg/store"
	"github.com/mealflow/mealflow/pkg/store/postgres"
)

type WorkflowHandler struct {
	workflows *postgres.WorkflowRepository
	schedules *postgres.ScheduleRepository
	engine    *engine.Engine
	bus       *eventbus.Bus
	logger    *zap.Logger
}

func NewWorkflowHandler(workflows *postgres.WorkflowRepository, schedules *postgres.ScheduleRepository, eng *engine.Engine, bus *eventbus.Bus, logger *zap.Logger) *WorkflowHandler {
	return &WorkflowHandler{workflows: workflows, schedules: schedules, engine: eng, bus: bus, logger: logger}
}

type stepRequest struct {
	StepOrder       int                    `json:"step_order"`
	StepType        string                 `json:"step_type" binding:"required"`
	TriggerConfig   map[string]interface{} `json:"trigger_config"`
	ActionConfig    map[string]interface{} `json:"action_config"`
	ConditionConfig map[string]interface{} `json:"condition_config"`
	IsActive        *bool                  `json:"is_active"`
}

type scheduleRequest struct {
	ScheduleType   string                 `json:"schedule_type" binding:"required"`
	ScheduleConfig map[string]interface{} `json:"schedule_config"`
}

type workflowCreateRequest struct {
	Name         string           `json:"name" binding:"required"`
	Description  string           `json:"description"`
	WorkflowType string           `json:"workflow_type"`
	IsActive     *bool            `json:"is_active"`
	CreatedBy    string           `json:"created_by"`
	Steps        []stepRequest    `json:"steps"`
	Schedule     *scheduleRequest `json:"schedule"`
}

type workflowUpdateRequest struct {
	Name         *string `json:"name"`
	Description  *string `json:"description"`
	WorkflowType *string `json:"workflow_type"`
	IsActive     *bool   `json:"is_active"`
}

type workflowResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	WorkflowType string `json:"workflow_type,omitempty"`
	IsActive     bool   `json:"is_active"`
	CreatedBy    string `json:"created_by,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

type workflowDetailResponse struct {
	workflowResponse
	Steps      []stepResponse      `json:"steps,omitempty"`
	Schedule   *scheduleResponse   `json:"schedule,omitempty"`
	Executions []executionResponse `json:"executions,omitempty"`
}

type stepResponse struct {
	ID              string      `json:"id"`
	StepOrder       int         `json:"step_order"`
	StepType        string      `json:"step_type"`
	TriggerConfig   model.JSONB `json:"trigger_config"`
	ActionConfig    model.JSONB `json:"action_config"`
	ConditionConfig model.JSONB `json:"condition_config"`
	IsActive        bool        `json:"is_active"`
}

type scheduleResponse struct {
	ScheduleType   string      `json:"schedule_type"`
	ScheduleConfig model.JSONB `json:"schedule_config"`
	LastRun        *string     `json:"last_run,omitempty"`
	NextRun        *string     `json:"next_run,omitempty"`
}

func (h *WorkflowHandler) Create(c *gin.Context) {
	var req workflowCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	workflow := &model.WorkflowDefinition{
		ID:           uuid.New(),
		Name:         req.Name,
		Description:  req.Description,
		WorkflowType: req.WorkflowType,
		IsActive:     isActive,
		CreatedBy:    req.CreatedBy,
	}

	steps := make([]model.WorkflowStep, 0, len(req.Steps))
	for _, s := range req.Steps {
		step, err := buildStep(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		steps = append(steps, step)
	}

	var sched *model.WorkflowSchedule
	if req.Schedule != nil {
		built, err := buildSchedule(*req.Schedule, time.Now())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sched = built
	}

	if err := h.workflows.Create(c.Request.Context(), workflow, steps, sched); err != nil {
		writeStoreError(c, h.logger, err, "create workflow")
		return
	}

	workflow.Steps = steps
	workflow.Schedule = sched
	c.JSON(http.StatusCreated, mapWorkflowDetail(workflow))
}

func (h *WorkflowHandler) List(c *gin.Context) {
	filter := store.WorkflowFilter{
		Type:      strings.TrimSpace(c.Query("type")),
		CreatedBy: strings.TrimSpace(c.Query("created_by")),
		Search:    strings.TrimSpace(c.Query("search")),
		Limit:     parseLimit(c.Query("limit"), 20),
		Offset:    parseOffset(c.Query("offset")),
	}

	if raw := strings.TrimSpace(c.Query("is_active")); raw != "" {
		active := raw == "true"
		filter.IsActive = &active
	}

	workflows, total, err := h.workflows.List(c.Request.Context(), filter)
	if err != nil {
		writeStoreError(c, h.logger, err, "list workflows")
		return
	}

	response := make([]workflowResponse, 0, len(workflows))
	for i := range workflows {
		response = append(response, mapWorkflow(&workflows[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"workflows": response,
		"total":     total,
	})
}

func (h *WorkflowHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow id"})
		return
	}

	opts := store.GetOptions{
		IncludeSteps:      c.DefaultQuery("include_steps", "true") == "true",
		IncludeSchedule:   c.DefaultQuery("include_schedule", "true") == "true",
		IncludeExecutions: c.Query("include_executions") == "true",
	}

	workflow, err := h.workflows.GetByID(c.Request.Context(), id, opts)
	if err != nil {
		writeStoreError(c, h.logger, err, "get workflow")
		return
	}

	c.JSON(http.StatusOK, mapWorkflowDetail(workflow))
}

func (h *WorkflowHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow id"})
		return
	}

	var req workflowUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.WorkflowType != nil {
		updates["workflow_type"] = *req.WorkflowType
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}

	workflow, err := h.workflows.Update(c.Request.Context(), id, updates)
	if err != nil {
		writeStoreError(c, h.logger, err, "update workflow")
		return
	}

	h.publishChange(c, id, workflowChange(req))
	c.JSON(http.StatusOK, mapWorkflowDetail(workflow))
}

func (h *WorkflowHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow id"})
		return
	}

	if err := h.workflows.Delete(c.Request.Context(), id); err != nil {
		writeStoreError(c, h.logger, err, "delete workflow")
		return
	}

	h.publishChange(c, id, "deleted")
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// Execute forces an immediate run, independent of the schedule.
func (h *WorkflowHandler) Execute(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow id"})
		return
	}

	execution, err := h.engine.ExecuteWorkflow(c.Request.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "workflow not found"})
		return
	case errors.Is(err, engine.ErrInactiveWorkflow):
		c.JSON(http.StatusConflict, gin.H{"error": "workflow is not active"})
		return
	case errors.Is(err, store.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"error": "workflow already has a running execution"})
		return
	}

	if execution == nil {
		writeStoreError(c, h.logger, err, "execute workflow")
		return
	}

	// Failed runs are still 200s: the execution record carries the outcome.
	c.JSON(http.StatusOK, mapExecution(execution))
}

// workflowChange classifies an update for the event bus: activation flips
// are called out, everything else is a plain edit.
func workflowChange(req workflowUpdateRequest) string {
	switch {
	case req.IsActive != nil && *req.IsActive:
		return "activated"
	case req.IsActive != nil:
		return "deactivated"
	default:
		return "updated"
	}
}

func (h *WorkflowHandler) publishChange(c *gin.Context, workflowID uuid.UUID, change string) {
	if h.bus == nil {
		return
	}
	event, err := eventbus.NewEvent("workflow_"+change, eventbus.WorkflowEvent{
		WorkflowID: workflowID.String(),
		Change:     change,
	})
	if err != nil {
		return
	}
	if err := h.bus.Publish(c.Request.Context(), eventbus.ChannelWorkflow, event); err != nil {
		h.logger.Warn("failed to publish workflow event", zap.Error(err))
	}
}

func buildStep(req stepRequest) (model.WorkflowStep, error) {
	stepType := model.StepType(req.StepType)
	switch stepType {
	case model.StepSendEmail, model.StepCheckCondition, model.StepWaitUntil, model.StepCreateOrder:
	default:
		return model.WorkflowStep{}, errors.New("unknown step_type " + req.StepType)
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	return model.WorkflowStep{
		ID:              uuid.New(),
		StepOrder:       req.StepOrder,
		StepType:        stepType,
		TriggerConfig:   model.JSONB(req.TriggerConfig),
		ActionConfig:    model.JSONB(req.ActionConfig),
		ConditionConfig: model.JSONB(req.ConditionConfig),
		IsActive:        isActive,
	}, nil
}

// buildSchedule validates the rule and seeds next_run so a freshly scheduled
// workflow becomes due without waiting for a first execution.
func buildSchedule(req scheduleRequest, now time.Time) (*model.WorkflowSchedule, error) {
	scheduleType := model.ScheduleType(req.ScheduleType)
	config := model.JSONB(req.ScheduleConfig)

	nextRun, err := schedule.NextRun(scheduleType, config, now)
	if err != nil {
		return nil, err
	}

	return &model.WorkflowSchedule{
		ID:             uuid.New(),
		ScheduleType:   scheduleType,
		ScheduleConfig: config,
		NextRun:        nextRun,
	}, nil
}

func mapWorkflow(workflow *model.WorkflowDefinition) workflowResponse {
	return workflowResponse{
		ID:           workflow.ID.String(),
		Name:         workflow.Name,
		Description:  workflow.Description,
		WorkflowType: workflow.WorkflowType,
		IsActive:     workflow.IsActive,
		CreatedBy:    workflow.CreatedBy,
		CreatedAt:    workflow.CreatedAt.UTC().Format(timeRFC3339Nano),
		UpdatedAt:    workflow.UpdatedAt.UTC().Format(timeRFC3339Nano),
	}
}

func mapWorkflowDetail(workflow *model.WorkflowDefinition) workflowDetailResponse {
	detail := workflowDetailResponse{workflowResponse: mapWorkflow(workflow)}

	for i := range workflow.Steps {
		detail.Steps = append(detail.Steps, mapStep(&workflow.Steps[i]))
	}
	if workflow.Schedule != nil {
		detail.Schedule = mapSchedule(workflow.Schedule)
	}
	for i := range workflow.Executions {
		detail.Executions = append(detail.Executions, mapExecution(&workflow.Executions[i]))
	}
	return detail
}

func mapStep(step *model.WorkflowStep) stepResponse {
	return stepResponse{
		ID:              step.ID.String(),
		StepOrder:       step.StepOrder,
		StepType:        string(step.StepType),
		TriggerConfig:   step.TriggerConfig,
		ActionConfig:    step.ActionConfig,
		ConditionConfig: step.ConditionConfig,
		IsActive:        step.IsActive,
	}
}

func mapSchedule(sched *model.WorkflowSchedule) *scheduleResponse {
	return &scheduleResponse{
		ScheduleType:   string(sched.ScheduleType),
		ScheduleConfig: sched.ScheduleConfig,
		LastRun:        formatTime(sched.LastRun),
		NextRun:        formatTime(sched.NextRun),
	}
}
