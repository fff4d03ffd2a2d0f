package anthem

import "time"

type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

func (s RunStatus) Finished() bool { return s == RunSucceeded || s == RunFailed }

// Run is one topic+genre request and everything it produced.
type Run struct {
	ID string `gorm:"primaryKey;size:26" json:"id"` // ULID length

	OwnerID string `gorm:"type:varchar(64);not null;index;index:uniq_run_idempo,unique,priority:1" json:"-"`
	Topic   string `gorm:"type:text;not null" json:"topic"`
	Genre   string `gorm:"type:varchar(255);not null" json:"genre"`

	IdempotencyKey *string `gorm:"type:varchar(128);index:uniq_run_idempo,unique,priority:2" json:"-"`

	Status RunStatus `gorm:"type:varchar(16);index;not null" json:"status"`
	Stage  Stage     `gorm:"type:varchar(16)" json:"stage,omitempty"`

	Research string `gorm:"type:text" json:"research,omitempty"`
	Lyrics   string `gorm:"type:text" json:"lyrics,omitempty"`
	TaskID   string `gorm:"type:varchar(64)" json:"task_id,omitempty"`
	Report   string `gorm:"type:text" json:"report,omitempty"`

	// Filled when failed
	Error *string `gorm:"type:text" json:"error,omitempty"`

	Songs []Song `gorm:"foreignKey:RunID" json:"songs,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Run) TableName() string { return "anthem_runs" }

// Song is one generated track of a run, kept in service order.
type Song struct {
	ID              uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	RunID           string    `gorm:"type:varchar(26);not null;index:idx_song_run_pos,priority:1" json:"-"`
	Position        int       `gorm:"not null;index:idx_song_run_pos,priority:2" json:"position"`
	Title           string    `gorm:"type:varchar(255)" json:"title"`
	DurationSeconds float64   `json:"duration_seconds"`
	AudioURL        string    `gorm:"type:text" json:"audio_url,omitempty"`
	ImageURL        string    `gorm:"type:text" json:"image_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func (Song) TableName() string { return "anthem_songs" }

// Models lists the tables to migrate.
func Models() []any { return []any{&Run{}, &Song{}} }
