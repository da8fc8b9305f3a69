package jobs

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jo-hoe/gosubgen/internal/common"
	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	// Busy timeout to avoid SQLITE_BUSY when workers finish together.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", path, common.SQLiteBusyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		artifact_path TEXT NOT NULL,
		provider TEXT NOT NULL,
		event TEXT NOT NULL,
		stage TEXT NOT NULL,
		error_message TEXT,
		created_at TEXT NOT NULL,
		started_at TEXT,
		completed_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateJob(job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if job.ID == "" {
		return errors.New("job.ID is required")
	}
	if job.Path == "" {
		return errors.New("job.Path is required")
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.Stage == "" {
		job.Stage = StageQueued
	}

	_, err := s.db.Exec(
		`INSERT INTO jobs (id, path, artifact_path, provider, event, stage, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Path, job.ArtifactPath, job.Provider, job.Event, string(job.Stage), formatTime(job.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateStage moves a job to stage. Only transitions allowed by
// Stage.CanTransition are applied.
func (s *SQLiteStore) UpdateStage(id string, stage Stage, startedAt *time.Time) error {
	from := predecessors(stage)
	if len(from) == 0 {
		return fmt.Errorf("%w: nothing transitions to %s", ErrInvalidTransition, stage)
	}
	var started *string
	if startedAt != nil {
		ts := formatTime(*startedAt)
		started = &ts
	}
	query := `UPDATE jobs SET stage = ?, started_at = COALESCE(?, started_at) WHERE id = ? AND stage IN (` + placeholders(len(from)) + `)`
	args := []any{string(stage), started, id}
	for _, st := range from {
		args = append(args, string(st))
	}
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("update stage: %w", err)
	}
	return s.checkApplied(res, id, stage)
}

func (s *SQLiteStore) SaveResult(id string, completedAt time.Time) error {
	res, err := s.db.Exec(`UPDATE jobs
		SET stage = ?, error_message = NULL, completed_at = ?
		WHERE id = ? AND stage = ?`,
		string(StageCompleted), formatTime(completedAt), id, string(StageRunning),
	)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return s.checkApplied(res, id, StageCompleted)
}

func (s *SQLiteStore) SaveError(id string, errMsg string, completedAt time.Time) error {
	res, err := s.db.Exec(`UPDATE jobs
		SET error_message = ?, stage = ?, completed_at = ?
		WHERE id = ? AND stage IN (?, ?)`,
		errMsg, string(StageFailed), formatTime(completedAt), id, string(StageQueued), string(StageRunning),
	)
	if err != nil {
		return fmt.Errorf("save error: %w", err)
	}
	return s.checkApplied(res, id, StageFailed)
}

// checkApplied distinguishes a missing job from a rejected transition when
// an UPDATE touched no rows.
func (s *SQLiteStore) checkApplied(res sql.Result, id string, to Stage) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var current string
	err = s.db.QueryRow(`SELECT stage FROM jobs WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup stage: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, to)
}

const selectColumns = `SELECT id, path, artifact_path, provider, event, stage,
	error_message, created_at, started_at, completed_at FROM jobs`

func (s *SQLiteStore) GetJob(id string) (*Job, error) {
	row := s.db.QueryRow(selectColumns+` WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return job, nil
}

// ListJobs returns the most recent jobs first.
func (s *SQLiteStore) ListJobs(limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = common.DefaultHistoryLimit
	}
	rows, err := s.db.Query(selectColumns+` ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var job Job
	var errMsg, created, started, completed sql.NullString
	var stage string

	if err := row.Scan(
		&job.ID,
		&job.Path,
		&job.ArtifactPath,
		&job.Provider,
		&job.Event,
		&stage,
		&errMsg,
		&created,
		&started,
		&completed,
	); err != nil {
		return nil, err
	}

	if errMsg.Valid {
		v := errMsg.String
		job.ErrorMessage = &v
	}
	if created.Valid {
		if t, err := time.Parse(time.RFC3339Nano, created.String); err == nil {
			job.CreatedAt = t
		}
	}
	job.StartedAt = parseOptionalTime(started)
	job.CompletedAt = parseOptionalTime(completed)
	job.Stage = Stage(stage)
	return &job, nil
}

func parseOptionalTime(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil
	}
	return &t
}

// timeLayout is fixed width so text ordering in SQL matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func predecessors(to Stage) []Stage {
	var out []Stage
	for _, from := range []Stage{StageQueued, StageRunning, StageCompleted, StageFailed} {
		if from.CanTransition(to) {
			out = append(out, from)
		}
	}
	return out
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
