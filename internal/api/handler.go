package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/foxseedlab/tasktimer/internal/aggregate"
	"github.com/foxseedlab/tasktimer/internal/repository"
	"github.com/foxseedlab/tasktimer/internal/tracking"
	"github.com/gin-gonic/gin"
)

const MaxBatchTaskIDs = 100

// TimerStore is the mutation side, implemented by tracking.Service.
type TimerStore interface {
	Start(ctx context.Context, taskID, userID string) (*repository.TimeSession, error)
	Stop(ctx context.Context, taskID, userID string) (tracking.StopResult, error)
	Reset(ctx context.Context, taskID, userID string) (tracking.ResetResult, error)
	Comments(ctx context.Context, taskID string) ([]repository.Comment, error)
	Ping(ctx context.Context) error
}

// TimeReader is the read side, implemented by aggregate.Engine.
type TimeReader interface {
	UserTotal(ctx context.Context, taskID, userID string) (aggregate.UserTotal, error)
	TaskSnapshot(ctx context.Context, taskID, requestingUserID string) (aggregate.TaskSnapshot, error)
	UserTotals(ctx context.Context, userID string, taskIDs []string) (map[string]aggregate.UserTotal, error)
}

type TimerHandler struct {
	store  TimerStore
	reader TimeReader
}

func NewTimerHandler(store TimerStore, reader TimeReader) *TimerHandler {
	return &TimerHandler{store: store, reader: reader}
}

type resetReq struct {
	Confirm bool `json:"confirm"`
}

type batchReq struct {
	TaskIDs []string `json:"task_ids"`
}

func (h *TimerHandler) Start(c *gin.Context) {
	s, err := h.store.Start(c.Request.Context(), c.Param("taskID"), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, Response{"session": s})
}

func (h *TimerHandler) Stop(c *gin.Context) {
	res, err := h.store.Stop(c.Request.Context(), c.Param("taskID"), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, Response{
		"finalized_count":        res.FinalizedCount,
		"total_duration_seconds": res.TotalDurationSeconds,
		"already_stopped":        res.AlreadyStopped,
		"sessions":               res.Sessions,
	})
}

func (h *TimerHandler) Reset(c *gin.Context) {
	var req resetReq
	if err := c.ShouldBindJSON(&req); err != nil || !req.Confirm {
		Error(c, http.StatusBadRequest, CodeInvalidParam, `reset requires {"confirm": true}`)
		return
	}
	res, err := h.store.Reset(c.Request.Context(), c.Param("taskID"), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, Response{"success": true, "deleted": res.Deleted})
}

func (h *TimerHandler) Total(c *gin.Context) {
	total, err := h.reader.UserTotal(c.Request.Context(), c.Param("taskID"), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, Response{"total": total})
}

func (h *TimerHandler) Snapshot(c *gin.Context) {
	snap, err := h.reader.TaskSnapshot(c.Request.Context(), c.Param("taskID"), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, Response{"snapshot": snap})
}

func (h *TimerHandler) BatchTotals(c *gin.Context) {
	var req batchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, CodeInvalidParam, "invalid request body")
		return
	}
	ids := tracking.UniqueIDs(req.TaskIDs)
	if len(ids) > MaxBatchTaskIDs {
		Error(c, http.StatusBadRequest, CodeInvalidParam, fmt.Sprintf("at most %d task ids per batch", MaxBatchTaskIDs))
		return
	}
	if len(ids) == 0 {
		Success(c, Response{"totals": map[string]aggregate.UserTotal{}})
		return
	}
	totals, err := h.reader.UserTotals(c.Request.Context(), currentUserID(c), ids)
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, Response{"totals": totals})
}

func (h *TimerHandler) Comments(c *gin.Context) {
	comments, err := h.store.Comments(c.Request.Context(), c.Param("taskID"))
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, Response{"comments": comments})
}

func (h *TimerHandler) Health(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	Success(c, Response{"status": "ok"})
}
