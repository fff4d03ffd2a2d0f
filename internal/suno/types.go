package suno

import "strings"

// JobStatus is the normalized state of a remote generation task.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusSucceeded JobStatus = "succeeded"
	StatusFailed    JobStatus = "failed"
)

// Remote status markers. Anything that is neither the success marker nor
// contains a failure marker is still in progress.
const (
	remoteSuccess = "SUCCESS"
	remotePending = "PENDING"
)

var remoteFailureMarkers = []string{"FAILED", "ERROR"}

// ParseStatus maps a raw status string reported by the service onto a JobStatus.
// Markers are matched case-sensitively, as the service reports them.
func ParseStatus(raw string) JobStatus {
	s := raw
	switch {
	case s == remoteSuccess:
		return StatusSucceeded
	case s == remotePending:
		return StatusPending
	}
	for _, m := range remoteFailureMarkers {
		if strings.Contains(s, m) {
			return StatusFailed
		}
	}
	return StatusRunning
}

func (s JobStatus) String() string { return string(s) }

// IsTerminal reports whether no further transition can happen from s.
func (s JobStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// JobRequest is the body of a create-task call. It is built once per
// submission and never modified afterwards.
type JobRequest struct {
	Prompt       string `json:"prompt"`
	Style        string `json:"style"`
	Title        string `json:"title"`
	CustomMode   bool   `json:"customMode"`
	Instrumental bool   `json:"instrumental"`
	Model        string `json:"model"`
	CallBackURL  string `json:"callBackUrl"`
}

// Artifact is one generated song. Missing fields decode to zero values.
type Artifact struct {
	ID              string  `json:"id,omitempty"`
	Title           string  `json:"title"`
	DurationSeconds float64 `json:"duration"`
	AudioURL        string  `json:"audioUrl"`
	ImageURL        string  `json:"imageUrl"`
}

// Result is the outcome of a task that reached the success status.
// Artifacts keep the order assigned by the service.
type Result struct {
	TaskID    string
	Artifacts []Artifact
}

// Empty reports whether the task succeeded without producing any song.
func (r *Result) Empty() bool {
	return r == nil || len(r.Artifacts) == 0
}

// Err returns ErrEmptyResult for an empty result and nil otherwise.
func (r *Result) Err() error {
	if r.Empty() {
		return ErrEmptyResult
	}
	return nil
}

type generateResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		TaskID string `json:"taskId"`
	} `json:"data"`
}

type recordInfoResponse struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data *recordInfo `json:"data"`
}

type recordInfo struct {
	TaskID       string `json:"taskId"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage"`
	Response     struct {
		SunoData []Artifact `json:"sunoData"`
	} `json:"response"`
}
