package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mealflow/mealflow/pkg/store/postgres"
)

type ScheduleHandler struct {
	schedules *postgres.ScheduleRepository
	logger    *zap.Logger
}

func NewScheduleHandler(schedules *postgres.ScheduleRepository, logger *zap.Logger) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules, logger: logger}
}

// Upsert creates or replaces the workflow's single schedule and recomputes
// next_run from the edited rule.
func (h *ScheduleHandler) Upsert(c *gin.Context) {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow id"})
		return
	}

	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	sched, err := buildSchedule(req, time.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sched.WorkflowID = workflowID

	if err := h.schedules.Upsert(c.Request.Context(), sched); err != nil {
		writeStoreError(c, h.logger, err, "save schedule")
		return
	}

	c.JSON(http.StatusOK, mapSchedule(sched))
}

func (h *ScheduleHandler) Get(c *gin.Context) {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow id"})
		return
	}

	sched, err := h.schedules.GetSchedule(c.Request.Context(), workflowID)
	if err != nil {
		writeStoreError(c, h.logger, err, "get schedule")
		return
	}

	c.JSON(http.StatusOK, mapSchedule(sched))
}

func (h *ScheduleHandler) Delete(c *gin.Context) {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow id"})
		return
	}

	if err := h.schedules.Delete(c.Request.Context(), workflowID); err != nil {
		writeStoreError(c, h.logger, err, "delete schedule")
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
