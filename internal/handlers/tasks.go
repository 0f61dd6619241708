package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/fleetline/taskbridge/internal/sync"
)

// TasksHandler exposes the synchronization triggers. Authorization of the
// underlying task mutation is the caller's concern; these routes only
// kick off reconciliation passes.
type TasksHandler struct {
	logger   *slog.Logger
	engine   *sync.Engine
	validate *validator.Validate
}

func NewTasksHandler(log *slog.Logger, engine *sync.Engine) *TasksHandler {
	return &TasksHandler{
		logger:   log.With(slog.String("handler", "tasks")),
		engine:   engine,
		validate: validator.New(),
	}
}

func (h *TasksHandler) Register(e *echo.Echo) {
	e.POST("/api/tasks/:id/sync", h.Sync)
	e.DELETE("/api/tasks/:id/chat", h.Teardown)
}

type syncRequest struct {
	ActorID int64 `json:"actor_id" validate:"required"`
}

// Sync schedules a reconciliation pass for the task. The request returns
// immediately; delivery outcome never propagates back to the mutation.
func (h *TasksHandler) Sync(c echo.Context) error {
	taskID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid task id")
	}
	var req syncRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	go h.engine.Synchronize(context.WithoutCancel(c.Request().Context()), sync.Request{
		TaskID:  taskID,
		ActorID: req.ActorID,
	})
	return c.NoContent(http.StatusAccepted)
}

// Teardown schedules best-effort deletion of every recorded chat message
// for the task, for use right before the task record is removed.
func (h *TasksHandler) Teardown(c echo.Context) error {
	taskID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid task id")
	}
	go h.engine.Teardown(context.WithoutCancel(c.Request().Context()), taskID)
	return c.NoContent(http.StatusAccepted)
}
