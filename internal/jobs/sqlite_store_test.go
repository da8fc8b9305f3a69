package jobs

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_JobLifecycle(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	job := &Job{
		ID:           "job-1",
		Path:         "/Volumes/TV/Show/S01E01.mkv",
		ArtifactPath: "/Volumes/TV/Show/S01E01.subgen.medium.aa.srt",
		Provider:     "tautulli",
		Event:        "added",
		Stage:        StageQueued,
		CreatedAt:    now,
	}
	if err := store.CreateJob(job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	start := now.Add(1 * time.Second)
	if err := store.UpdateStage(job.ID, StageRunning, &start); err != nil {
		t.Fatalf("UpdateStage: %v", err)
	}

	comp := now.Add(2 * time.Second)
	if err := store.SaveResult(job.ID, comp); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	got, err := store.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.ID != job.ID || got.Stage != StageCompleted {
		t.Fatalf("job mismatch or not completed: %+v", got)
	}
	if got.Path != job.Path || got.ArtifactPath != job.ArtifactPath || got.Provider != "tautulli" || got.Event != "added" {
		t.Fatalf("fields not round-tripped: %+v", got)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(start) {
		t.Fatalf("startedAt mismatch: %v", got.StartedAt)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(comp) {
		t.Fatalf("completedAt mismatch: %v", got.CompletedAt)
	}
	if got.ErrorMessage != nil {
		t.Fatalf("completed job should carry no error: %v", *got.ErrorMessage)
	}

	// terminal jobs cannot fail afterwards
	if err := store.SaveError(job.ID, "boom", now.Add(3*time.Second)); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("SaveError on completed job = %v, want ErrInvalidTransition", err)
	}
}

func TestSQLiteStore_FailureRecordsMessage(t *testing.T) {
	store := newTestStore(t)
	if err := store.CreateJob(&Job{ID: "j", Path: "/m.mkv", Provider: "plex", Event: "played"}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := store.SaveError("j", "boom", time.Now()); err != nil {
		t.Fatalf("SaveError from queued: %v", err)
	}
	got, err := store.GetJob("j")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Stage != StageFailed {
		t.Fatalf("stage should be failed, got %s", got.Stage)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "boom" {
		t.Fatalf("error message mismatch: %+v", got.ErrorMessage)
	}
	if got.StartedAt != nil {
		t.Fatalf("job never started, got startedAt %v", got.StartedAt)
	}
}

func TestSQLiteStore_RejectsInvalidTransitions(t *testing.T) {
	store := newTestStore(t)
	if err := store.CreateJob(&Job{ID: "j", Path: "/m.mkv", Provider: "cli", Event: "added"}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := store.SaveResult("j", time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("queued -> completed = %v, want ErrInvalidTransition", err)
	}
	if err := store.UpdateStage("j", StageQueued, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("-> queued = %v, want ErrInvalidTransition", err)
	}
	if err := store.UpdateStage("missing", StageRunning, nil); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("update missing = %v, want ErrJobNotFound", err)
	}
	if _, err := store.GetJob("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("get missing = %v, want ErrJobNotFound", err)
	}
}

func TestSQLiteStore_ListJobsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		job := &Job{ID: id, Path: "/m/" + id + ".mkv", Provider: "jellyfin", Event: "added", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.CreateJob(job); err != nil {
			t.Fatalf("CreateJob %s: %v", id, err)
		}
	}

	list, err := store.ListJobs(2)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(list) != 2 || list[0].ID != "c" || list[1].ID != "b" {
		ids := make([]string, 0, len(list))
		for _, j := range list {
			ids = append(ids, j.ID)
		}
		t.Fatalf("ListJobs(2) = %v, want [c b]", ids)
	}
	if list[0].Stage != StageQueued {
		t.Fatalf("default stage should be queued, got %s", list[0].Stage)
	}
}

func TestSQLiteStore_ListJobsOrdersWithinASecond(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2024, 5, 1, 12, 0, 5, 0, time.UTC)
	created := map[string]time.Time{
		"a": base,
		"b": base.Add(500 * time.Millisecond),
		"c": base.Add(1200 * time.Millisecond),
	}
	for _, id := range []string{"a", "b", "c"} {
		job := &Job{ID: id, Path: "/m/" + id + ".mkv", Provider: "plex", Event: "added", CreatedAt: created[id]}
		if err := store.CreateJob(job); err != nil {
			t.Fatalf("CreateJob %s: %v", id, err)
		}
	}

	list, err := store.ListJobs(0)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	ids := make([]string, 0, len(list))
	for _, j := range list {
		ids = append(ids, j.ID)
	}
	if len(ids) != 3 || ids[0] != "c" || ids[1] != "b" || ids[2] != "a" {
		t.Fatalf("ListJobs = %v, want [c b a]", ids)
	}
	if !list[2].CreatedAt.Equal(base) || !list[1].CreatedAt.Equal(created["b"]) {
		t.Fatalf("created_at did not round-trip: %v, %v", list[2].CreatedAt, list[1].CreatedAt)
	}
}
