package anthem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/suPer8Hu/anthem-ai/internal/common"
	"github.com/suPer8Hu/anthem-ai/internal/logging"
	"gorm.io/gorm"
)

const (
	maxTopicLen = 2000
	maxGenreLen = 255
)

var ErrInputTooLong = errors.New("anthem: topic or genre too long")

// ErrInterrupted marks a run that was already running when it was picked
// up again, e.g. redelivered after a worker crash. Such runs are not resumed.
var ErrInterrupted = errors.New("anthem: run was interrupted before it finished")

// ErrSaveOutcome marks a run whose pipeline finished but whose outcome could
// not be stored. The run is recorded as failed.
var ErrSaveOutcome = errors.New("anthem: save outcome")

// IsRunFailure reports whether err is a pipeline failure that Execute has
// already recorded on the run. Other errors left the run untouched.
func IsRunFailure(err error) bool {
	var se *StageError
	return errors.As(err, &se) || errors.Is(err, ErrMissingInput) || errors.Is(err, ErrSaveOutcome)
}

// Runner executes the stages of a run.
type Runner interface {
	Run(ctx context.Context, runID, topic, genre string, sink EventSink) (*Outcome, error)
}

type Service struct {
	repo   *Repo
	runner Runner
	events EventSink
	logger *zerolog.Logger
}

// NewService wires the run store with a pipeline and an event sink. runner
// may be nil for processes that only create and read runs.
func NewService(repo *Repo, runner Runner, events EventSink, logger *zerolog.Logger) *Service {
	if events == nil {
		events = DiscardEvents
	}
	return &Service{repo: repo, runner: runner, events: events, logger: logging.OrNop(logger)}
}

// CreateRun stores a queued run. With an idempotency key, a repeated call
// returns the existing run and created=false.
func (s *Service) CreateRun(ctx context.Context, ownerID, topic, genre string, idempotencyKey *string) (*Run, bool, error) {
	topic, genre, err := Validate(topic, genre)
	if err != nil {
		return nil, false, err
	}
	if len(topic) > maxTopicLen || len(genre) > maxGenreLen {
		return nil, false, ErrInputTooLong
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, false, err
	}
	run := &Run{
		ID:             id,
		OwnerID:        ownerID,
		Topic:          topic,
		Genre:          genre,
		IdempotencyKey: idempotencyKey,
		Status:         RunQueued,
	}
	return s.repo.CreateRunOrGetExisting(ctx, run)
}

// GetRun returns the run with its songs. Runs of other owners are reported
// as not found.
func (s *Service) GetRun(ctx context.Context, ownerID, runID string) (*Run, error) {
	run, err := s.repo.GetRunWithSongs(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.OwnerID != ownerID {
		return nil, gorm.ErrRecordNotFound
	}
	return run, nil
}

// ListSongs returns the songs of an owned run in service order.
func (s *Service) ListSongs(ctx context.Context, ownerID, runID string) ([]Song, error) {
	run, err := s.repo.GetRunByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.OwnerID != ownerID {
		return nil, gorm.ErrRecordNotFound
	}
	return s.repo.ListSongs(ctx, runID)
}

func (s *Service) ListRuns(ctx context.Context, ownerID string, limit int, beforeID string) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.ListRuns(ctx, ownerID, limit, beforeID)
}

// Execute takes a queued run through the pipeline and records the result.
// Runs that already finished are skipped. The returned error is the
// pipeline failure, if any, after it has been recorded.
func (s *Service) Execute(ctx context.Context, runID string) error {
	if s.runner == nil {
		return errors.New("anthem: service has no runner")
	}
	log := s.logger.With().Str("run_id", runID).Logger()

	claimed, err := s.repo.MarkRunning(ctx, runID)
	if err != nil {
		return err
	}
	if !claimed {
		run, err := s.repo.GetRunByID(ctx, runID)
		if err != nil {
			return err
		}
		if run.Status.Finished() {
			log.Info().Str("status", string(run.Status)).Msg("anthem: run already finished, skipping")
			return nil
		}
		// running: a previous attempt died mid-flight
		log.Warn().Str("stage", string(run.Stage)).Msg("anthem: run was interrupted, marking failed")
		if err := s.repo.MarkFailed(ctx, runID, nil, ErrInterrupted.Error()); err != nil {
			return err
		}
		s.finish(ctx, runID, RunFailed, ErrInterrupted.Error())
		return nil
	}

	run, err := s.repo.GetRunByID(ctx, runID)
	if err != nil {
		return err
	}

	started := time.Now()
	sink := FanOut(s.events, EventSinkFunc(func(ctx context.Context, ev Event) error {
		if ev.Type != EventStageStarted {
			return nil
		}
		return s.repo.UpdateStage(ctx, runID, ev.Stage)
	}))

	out, runErr := s.runner.Run(ctx, runID, run.Topic, run.Genre, sink)
	if runErr != nil {
		// record the failure even if ctx was cancelled underneath us
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.repo.MarkFailed(rctx, runID, out, runErr.Error()); err != nil {
			log.Error().Err(err).Msg("anthem: mark failed")
		}
		s.finish(rctx, runID, RunFailed, runErr.Error())
		log.Error().Err(runErr).Dur("cost", time.Since(started)).Msg("anthem: run failed")
		return runErr
	}

	// the songs exist remotely now; store them even if ctx ran out
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.repo.CompleteRun(sctx, runID, out); err != nil {
		saveErr := fmt.Errorf("%w: %v", ErrSaveOutcome, err)
		if merr := s.repo.MarkFailed(sctx, runID, out, saveErr.Error()); merr != nil {
			log.Error().Err(merr).Msg("anthem: mark failed")
		}
		s.finish(sctx, runID, RunFailed, saveErr.Error())
		log.Error().Err(err).Msg("anthem: saving outcome failed")
		return saveErr
	}
	s.finish(sctx, runID, RunSucceeded, "")
	log.Info().Dur("cost", time.Since(started)).Msg("anthem: run succeeded")
	return nil
}

func (s *Service) finish(ctx context.Context, runID string, status RunStatus, msg string) {
	ev := Event{
		RunID:   runID,
		Type:    EventRunFinished,
		Status:  string(status),
		Message: msg,
		At:      time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("run_id", runID).Msg("anthem: publish finish event failed")
	}
}
