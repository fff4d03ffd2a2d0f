package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/anthem-ai/internal/anthem"
	"github.com/suPer8Hu/anthem-ai/internal/common"
	"github.com/suPer8Hu/anthem-ai/internal/suno"
	"gorm.io/gorm"
)

type createAnthemReq struct {
	Topic string `json:"topic" binding:"required"`
	Genre string `json:"genre" binding:"required"`
}

func (h *Handler) CreateAnthem(c *gin.Context) {
	owner, okk := ownerIDFromContext(c)
	if !okk {
		unauthorized(c)
		return
	}

	var req createAnthemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	// read idempotency key
	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		common.Fail(c, http.StatusBadRequest, 10003, "idempotency key too long")
		return
	}
	var idempoKeyPtr *string
	if idempoKey != "" {
		idempoKeyPtr = &idempoKey
	}

	run, created, err := h.Runs.CreateRun(c.Request.Context(), owner, req.Topic, req.Genre, idempoKeyPtr)
	if err != nil {
		if errors.Is(err, anthem.ErrMissingInput) || errors.Is(err, anthem.ErrInputTooLong) {
			common.Fail(c, http.StatusBadRequest, 10002, err.Error())
			return
		}
		h.log(c).Error().Err(err).Str("owner_id", owner).Msg("CreateAnthem: create run failed")
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	// Enqueue only when a new run was created
	if created {
		if err := h.Queue.PublishRun(c.Request.Context(), run.ID); err != nil {
			h.log(c).Error().Err(err).Str("run_id", run.ID).Msg("CreateAnthem: publish run failed")
			common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
			return
		}
	}

	common.OK(c, gin.H{
		"run_id":  run.ID,
		"status":  run.Status,
		"created": created,
	})
}

func (h *Handler) ListAnthems(c *gin.Context) {
	owner, okk := ownerIDFromContext(c)
	if !okk {
		unauthorized(c)
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	beforeID := strings.TrimSpace(c.Query("before_id"))

	runs, err := h.Runs.ListRuns(c.Request.Context(), owner, limit, beforeID)
	if err != nil {
		h.log(c).Error().Err(err).Msg("ListAnthems failed")
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to list runs")
		return
	}

	nextBeforeID := ""
	if len(runs) > 0 {
		nextBeforeID = runs[len(runs)-1].ID
	}
	common.OK(c, gin.H{
		"runs":           runs,
		"next_before_id": nextBeforeID,
	})
}

// getOwnedRun writes the error response itself and returns nil on failure.
func (h *Handler) getOwnedRun(c *gin.Context) *anthem.Run {
	owner, okk := ownerIDFromContext(c)
	if !okk {
		unauthorized(c)
		return nil
	}
	run, err := h.Runs.GetRun(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// hide existence
			common.Fail(c, http.StatusNotFound, 40402, "run not found")
			return nil
		}
		h.log(c).Error().Err(err).Str("run_id", c.Param("id")).Msg("GetRun failed")
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return nil
	}
	return run
}

func (h *Handler) GetAnthem(c *gin.Context) {
	run := h.getOwnedRun(c)
	if run == nil {
		return
	}
	common.OK(c, gin.H{"run": run})
}

func (h *Handler) ListAnthemSongs(c *gin.Context) {
	owner, okk := ownerIDFromContext(c)
	if !okk {
		unauthorized(c)
		return
	}
	songs, err := h.Runs.ListSongs(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "run not found")
			return
		}
		h.log(c).Error().Err(err).Msg("ListAnthemSongs failed")
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"songs": songs})
}

// GetAnthemReport renders the finished run as markdown, or the failure
// message for failed runs.
func (h *Handler) GetAnthemReport(c *gin.Context) {
	run := h.getOwnedRun(c)
	if run == nil {
		return
	}

	var body string
	switch run.Status {
	case anthem.RunSucceeded:
		body = run.Report
	case anthem.RunFailed:
		msg := "unknown error"
		if run.Error != nil {
			msg = *run.Error
		}
		body = suno.FormatError(errors.New(msg))
	default:
		common.Fail(c, http.StatusConflict, 40901, "run not finished")
		return
	}
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(body))
}
