package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mealflow/mealflow/pkg/model"
	"github.com/mealflow/mealflow/pkg/poller"
	"github.com/mealflow/mealflow/pkg/store"
	"github.com/mealflow/mealflow/pkg/store/postgres"
)

type ExecutionHandler struct {
	executions *postgres.ExecutionRepository
	poller     *poller.Poller
	logger     *zap.Logger
}

func NewExecutionHandler(executions *postgres.ExecutionRepository, p *poller.Poller, logger *zap.Logger) *ExecutionHandler {
	return &ExecutionHandler{executions: executions, poller: p, logger: logger}
}

type executionResponse struct {
	ID           string  `json:"id"`
	WorkflowID   string  `json:"workflow_id"`
	Status       string  `json:"status"`
	CurrentStep  int     `json:"current_step"`
	ErrorMessage string  `json:"error_message,omitempty"`
	StartedAt    string  `json:"started_at"`
	CompletedAt  *string `json:"completed_at,omitempty"`
}

type executionDetailResponse struct {
	executionResponse
	ActionLogs []actionLogResponse `json:"action_logs"`
}

type actionLogResponse struct {
	ID           string      `json:"id"`
	StepID       string      `json:"step_id"`
	ActionType   string      `json:"action_type"`
	Status       string      `json:"status"`
	ResultData   model.JSONB `json:"result_data"`
	ErrorMessage string      `json:"error_message,omitempty"`
	PerformedAt  string      `json:"performed_at"`
}

func (h *ExecutionHandler) ListByWorkflow(c *gin.Context) {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow id"})
		return
	}

	page := store.Page{
		Limit:  parseLimit(c.Query("limit"), 20),
		Offset: parseOffset(c.Query("offset")),
	}

	executions, total, err := h.executions.ListByWorkflow(c.Request.Context(), workflowID, page)
	if err != nil {
		writeStoreError(c, h.logger, err, "list executions")
		return
	}

	response := make([]executionResponse, 0, len(executions))
	for i := range executions {
		response = append(response, mapExecution(&executions[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"executions": response,
		"total":      total,
	})
}

func (h *ExecutionHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid execution id"})
		return
	}

	execution, err := h.executions.GetByID(c.Request.Context(), id)
	if err != nil {
		writeStoreError(c, h.logger, err, "get execution")
		return
	}

	detail := executionDetailResponse{executionResponse: mapExecution(execution)}
	detail.ActionLogs = make([]actionLogResponse, 0, len(execution.ActionLogs))
	for i := range execution.ActionLogs {
		detail.ActionLogs = append(detail.ActionLogs, mapActionLog(&execution.ActionLogs[i]))
	}

	c.JSON(http.StatusOK, detail)
}

// Poll triggers one poll cycle on demand, mainly for tests and operations.
func (h *ExecutionHandler) Poll(c *gin.Context) {
	h.poller.RunOnce(c.Request.Context(), time.Now())
	c.JSON(http.StatusOK, gin.H{"polled": true})
}

func mapExecution(execution *model.WorkflowExecution) executionResponse {
	return executionResponse{
		ID:           execution.ID.String(),
		WorkflowID:   execution.WorkflowID.String(),
		Status:       string(execution.Status),
		CurrentStep:  execution.CurrentStep,
		ErrorMessage: execution.ErrorMessage,
		StartedAt:    execution.StartedAt.UTC().Format(timeRFC3339Nano),
		CompletedAt:  formatTime(execution.CompletedAt),
	}
}

func mapActionLog(log *model.WorkflowActionLog) actionLogResponse {
	return actionLogResponse{
		ID:           log.ID.String(),
		StepID:       log.StepID.String(),
		ActionType:   string(log.ActionType),
		Status:       string(log.Status),
		ResultData:   log.ResultData,
		ErrorMessage: log.ErrorMessage,
		PerformedAt:  log.PerformedAt.UTC().Format(timeRFC3339Nano),
	}
}
