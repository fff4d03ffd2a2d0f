package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/suPer8Hu/anthem-ai/internal/anthem"
	"github.com/suPer8Hu/anthem-ai/internal/common"
	"github.com/suPer8Hu/anthem-ai/internal/httpapi/middleware"
)

// RunService is the part of *anthem.Service the API uses.
type RunService interface {
	CreateRun(ctx context.Context, ownerID, topic, genre string, idempotencyKey *string) (*anthem.Run, bool, error)
	GetRun(ctx context.Context, ownerID, runID string) (*anthem.Run, error)
	ListRuns(ctx context.Context, ownerID string, limit int, beforeID string) ([]anthem.Run, error)
	ListSongs(ctx context.Context, ownerID, runID string) ([]anthem.Song, error)
}

// RunQueue hands new runs to the workers.
type RunQueue interface {
	PublishRun(ctx context.Context, runID string) error
}

// EventSource streams progress events published by the workers.
type EventSource interface {
	Subscribe(ctx context.Context, runID string) (<-chan anthem.Event, error)
	LastEvent(ctx context.Context, runID string) (*anthem.Event, error)
}

const defaultHeartbeat = 15 * time.Second

type Handler struct {
	Runs   RunService
	Queue  RunQueue
	Events EventSource
	Logger zerolog.Logger

	// SSE keep-alive interval
	Heartbeat time.Duration
}

func NewHandler(runs RunService, queue RunQueue, events EventSource, logger zerolog.Logger) *Handler {
	return &Handler{
		Runs:      runs,
		Queue:     queue,
		Events:    events,
		Logger:    logger,
		Heartbeat: defaultHeartbeat,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func ownerIDFromContext(c *gin.Context) (string, bool) {
	return middleware.OwnerIDFromContext(c)
}

func (h *Handler) log(c *gin.Context) *zerolog.Logger {
	l := h.Logger.With().Str("request_id", middleware.RequestIDFromContext(c)).Logger()
	return &l
}

func unauthorized(c *gin.Context) {
	common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
}
