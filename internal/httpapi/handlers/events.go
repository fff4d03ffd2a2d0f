package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/anthem-ai/internal/anthem"
	"github.com/suPer8Hu/anthem-ai/internal/common"
)

// StreamAnthemEvents relays a run's progress as server-sent events until the
// run finishes or the client goes away. A run that already finished gets a
// single run.finished event.
func (h *Handler) StreamAnthemEvents(c *gin.Context) {
	run := h.getOwnedRun(c)
	if run == nil {
		return
	}
	owner, _ := ownerIDFromContext(c)
	ctx := c.Request.Context()

	var events <-chan anthem.Event
	if h.Events != nil && !run.Status.Finished() {
		// subscribe before re-reading the status so a finish in between is not missed
		ch, err := h.Events.Subscribe(ctx, run.ID)
		if err != nil {
			h.log(c).Error().Err(err).Str("run_id", run.ID).Msg("StreamAnthemEvents: subscribe failed")
			common.Fail(c, http.StatusServiceUnavailable, 50301, "event stream unavailable")
			return
		}
		events = ch
		if fresh, err := h.Runs.GetRun(ctx, owner, run.ID); err == nil {
			run = fresh
		}
	}

	// SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx

	// avoid gin writing a JSON response later
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		// can't stream
		fmt.Fprintf(c.Writer, "event: error\ndata: flusher not supported\n\n")
		return
	}

	writeJSON := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			// last-resort: send a simple error that won't break SSE framing
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		if event != "" {
			fmt.Fprintf(c.Writer, "event: %s\n", event)
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", string(b))
		flusher.Flush()
	}

	if run.Status.Finished() {
		writeJSON(string(anthem.EventRunFinished), finishedEvent(run))
		return
	}
	if events == nil {
		writeJSON("error", gin.H{"type": "error", "message": "event stream unavailable"})
		return
	}

	// replay the latest event for clients that connect mid-run
	var replayed *anthem.Event
	if last, err := h.Events.LastEvent(ctx, run.ID); err == nil && last != nil {
		writeJSON(string(last.Type), last)
		if last.Terminal() {
			return
		}
		replayed = last
	}

	interval := h.Heartbeat
	if interval <= 0 {
		interval = defaultHeartbeat
	}
	// heartbeat ticker (keeps connections alive)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			// the replayed event may also arrive on the subscription
			if replayed != nil {
				dup := sameEvent(*replayed, ev)
				replayed = nil
				if dup {
					continue
				}
			}
			writeJSON(string(ev.Type), ev)
			if ev.Terminal() {
				return
			}

		case <-ticker.C:
			writeJSON("ping", gin.H{
				"type": "ping",
				"ts":   time.Now().Unix(),
			})

		case <-ctx.Done():
			return
		}
	}
}

func sameEvent(a, b anthem.Event) bool {
	return a.RunID == b.RunID && a.Type == b.Type && a.Stage == b.Stage &&
		a.Status == b.Status && a.Message == b.Message && a.At.Equal(b.At)
}

func finishedEvent(run *anthem.Run) anthem.Event {
	ev := anthem.Event{
		RunID:  run.ID,
		Type:   anthem.EventRunFinished,
		Status: string(run.Status),
		At:     run.UpdatedAt.UTC(),
	}
	if run.Error != nil {
		ev.Message = *run.Error
	}
	return ev
}
