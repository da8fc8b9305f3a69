package jobs

import (
	"errors"
	"time"
)

// Stage represents the lifecycle stage of a transcription job.
type Stage string

const (
	StageQueued    Stage = "queued"
	StageRunning   Stage = "running"
	StageCompleted Stage = "completed"
	StageFailed    Stage = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// CanTransition enforces Queued -> Running -> {Completed | Failed}. A queued
// job may also fail directly, e.g. when it is dropped at shutdown.
func (s Stage) CanTransition(to Stage) bool {
	switch s {
	case StageQueued:
		return to == StageRunning || to == StageFailed
	case StageRunning:
		return to == StageCompleted || to == StageFailed
	default:
		return false
	}
}

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid stage transition")
)

// Job describes a single transcription of one media file.
type Job struct {
	ID           string     // UUIDv4
	Path         string     // local media path; admission identity
	ArtifactPath string     // where the subtitle is written
	Provider     string     // webhook source (plex, jellyfin, tautulli)
	Event        string     // normalized event kind
	Stage        Stage      // current stage
	ErrorMessage *string    // last error, if any
	CreatedAt    time.Time  // submission time
	StartedAt    *time.Time // when the engine was invoked
	CompletedAt  *time.Time // when finished (success or failure)
}

// Store defines persistence for Jobs and their lifecycle. It is a history of
// what happened and is never consulted for admission decisions.
type Store interface {
	CreateJob(job *Job) error
	UpdateStage(id string, stage Stage, startedAt *time.Time) error
	SaveResult(id string, completedAt time.Time) error
	SaveError(id string, errMsg string, completedAt time.Time) error
	GetJob(id string) (*Job, error)
	ListJobs(limit int) ([]*Job, error)
	Close() error
}
