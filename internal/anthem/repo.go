package anthem

import (
	"context"
	"errors"

	"github.com/suPer8Hu/anthem-ai/internal/suno"
	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateRun(ctx context.Context, run *Run) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *Repo) GetRunByID(ctx context.Context, id string) (*Run, error) {
	var run Run
	if err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRunWithSongs loads the run and its songs in position order.
func (r *Repo) GetRunWithSongs(ctx context.Context, id string) (*Run, error) {
	var run Run
	if err := r.db.WithContext(ctx).
		Preload("Songs", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&run, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns the owner's runs newest first. ULIDs sort by creation
// time, so beforeID pages backwards.
func (r *Repo) ListRuns(ctx context.Context, ownerID string, limit int, beforeID string) ([]Run, error) {
	q := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("id DESC").
		Limit(limit)
	if beforeID != "" {
		q = q.Where("id < ?", beforeID)
	}

	var runs []Run
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *Repo) ListSongs(ctx context.Context, runID string) ([]Song, error) {
	var songs []Song
	if err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("position ASC").
		Find(&songs).Error; err != nil {
		return nil, err
	}
	return songs, nil
}

// MarkRunning claims a queued run. It reports false when the run was not
// in the queued state.
func (r *Repo) MarkRunning(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Run{}).
		Where("id = ? AND status = ?", id, RunQueued).
		Update("status", RunRunning)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repo) UpdateStage(ctx context.Context, id string, stage Stage) error {
	return r.db.WithContext(ctx).Model(&Run{}).
		Where("id = ? AND status = ?", id, RunRunning).
		Update("stage", stage).Error
}

// MarkFailed stores whatever the pipeline produced before failing.
func (r *Repo) MarkFailed(ctx context.Context, id string, out *Outcome, errMsg string) error {
	updates := map[string]any{
		"status": RunFailed,
		"error":  errMsg,
	}
	if out != nil {
		updates["research"] = out.Research
		updates["lyrics"] = out.Lyrics
		if out.Song != nil {
			updates["task_id"] = out.Song.TaskID
		}
	}
	return r.db.WithContext(ctx).Model(&Run{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// CompleteRun stores the outcome and its songs in one transaction.
func (r *Repo) CompleteRun(ctx context.Context, id string, out *Outcome) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taskID := ""
		if out.Song != nil {
			taskID = out.Song.TaskID
		}
		if err := tx.Model(&Run{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"status":   RunSucceeded,
				"research": out.Research,
				"lyrics":   out.Lyrics,
				"task_id":  taskID,
				"report":   out.Report,
				"error":    nil,
			}).Error; err != nil {
			return err
		}

		songs := songsFromResult(id, out.Song)
		if len(songs) == 0 {
			return nil
		}
		return tx.Create(&songs).Error
	})
}

func (r *Repo) GetRunByOwnerAndIdempotencyKey(ctx context.Context, ownerID string, key string) (*Run, error) {
	var run Run
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND idempotency_key = ?", ownerID, key).
		First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// CreateRunOrGetExisting tries to create a run, but if (owner_id, idempotency_key) already exists,
// it returns the existing run instead.
func (r *Repo) CreateRunOrGetExisting(ctx context.Context, run *Run) (*Run, bool, error) {
	if run.IdempotencyKey == nil || *run.IdempotencyKey == "" {
		run.IdempotencyKey = nil
		if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
			return nil, false, err
		}
		return run, true, nil
	}

	err := r.db.WithContext(ctx).Create(run).Error
	if err == nil {
		return run, true, nil
	}

	existing, getErr := r.GetRunByOwnerAndIdempotencyKey(ctx, run.OwnerID, *run.IdempotencyKey)
	if getErr == nil {
		return existing, false, nil
	}

	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}

func songsFromResult(runID string, res *suno.Result) []Song {
	if res.Empty() {
		return nil
	}
	songs := make([]Song, 0, len(res.Artifacts))
	for i, a := range res.Artifacts {
		songs = append(songs, Song{
			RunID:           runID,
			Position:        i + 1,
			Title:           a.Title,
			DurationSeconds: a.DurationSeconds,
			AudioURL:        a.AudioURL,
			ImageURL:        a.ImageURL,
		})
	}
	return songs
}
