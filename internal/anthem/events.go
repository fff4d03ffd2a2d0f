package anthem

import (
	"context"
	"time"
)

type EventType string

const (
	EventStageStarted  EventType = "stage.started"
	EventStageFinished EventType = "stage.finished"
	EventSongStatus    EventType = "song.status"
	EventRunFinished   EventType = "run.finished"
)

type Stage string

const (
	StageResearch Stage = "research"
	StageLyrics   Stage = "lyrics"
	StageSong     Stage = "song"
)

// Event is a progress notification for one run.
type Event struct {
	RunID   string    `json:"run_id"`
	Type    EventType `json:"type"`
	Stage   Stage     `json:"stage,omitempty"`
	Status  string    `json:"status,omitempty"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// Terminal reports whether no more events follow for the run.
func (e Event) Terminal() bool { return e.Type == EventRunFinished }

// EventSink receives progress events. Sinks must not block for long; a
// failing sink never fails the run.
type EventSink interface {
	Publish(ctx context.Context, ev Event) error
}

type EventSinkFunc func(ctx context.Context, ev Event) error

func (f EventSinkFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }

type discardSink struct{}

func (discardSink) Publish(context.Context, Event) error { return nil }

// DiscardEvents drops every event.
var DiscardEvents EventSink = discardSink{}

// FanOut publishes to every sink and returns the first error.
func FanOut(sinks ...EventSink) EventSink {
	return EventSinkFunc(func(ctx context.Context, ev Event) error {
		var first error
		for _, s := range sinks {
			if s == nil {
				continue
			}
			if err := s.Publish(ctx, ev); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}
