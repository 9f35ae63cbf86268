package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pimentellima/smulti/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, url, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		job.ID, job.URL, job.Status, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := s.pool.QueryRow(ctx,
		`SELECT id, url, title, thumbnail, status, created_at, updated_at
		 FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &j.URL, &j.Title, &j.Thumbnail, &j.Status, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

func (s *PostgresStore) ListStalePendingJobs(ctx context.Context, maxAge time.Duration, limit int) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, url, title, thumbnail, status, created_at, updated_at
		 FROM jobs
		 WHERE status = $1 AND updated_at < NOW() - $2::interval
		 ORDER BY updated_at ASC LIMIT $3`,
		models.JobPending, maxAge.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("list stale pending jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		var j models.Job
		if err := rows.Scan(&j.ID, &j.URL, &j.Title, &j.Thumbnail, &j.Status, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

// ClaimJob advances a job from the expected status in a single conditional
// update. Two redelivered instances racing on the same message cannot both
// win: the loser observes zero affected rows and gets ErrConflict.
func (s *PostgresStore) ClaimJob(ctx context.Context, id uuid.UUID, from, to models.JobStatus) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("invalid job status transition: %s -> %s", from, to)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.jobConflictOrMissing(ctx, id)
	}
	return nil
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus, opts ...JobUpdateOption) error {
	params := &JobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	var current models.JobStatus
	err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}
	if !current.CanTransition(status) {
		return fmt.Errorf("invalid job status transition: %s -> %s", current, status)
	}

	query := `UPDATE jobs SET status = $2, updated_at = NOW()`
	args := []any{id, status}
	argIdx := 3

	if params.Title != nil {
		query += fmt.Sprintf(", title = $%d", argIdx)
		args = append(args, *params.Title)
		argIdx++
	}
	if params.Thumbnail != nil {
		query += fmt.Sprintf(", thumbnail = $%d", argIdx)
		args = append(args, *params.Thumbnail)
		argIdx++
	}

	query += fmt.Sprintf(" WHERE id = $1 AND status = $%d", argIdx)
	args = append(args, current)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.jobConflictOrMissing(ctx, id)
	}
	return nil
}

func (s *PostgresStore) FinishJobProcessing(ctx context.Context, id uuid.UUID, title, thumbnail *string, formats []*models.Format) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE jobs SET title = $2, thumbnail = $3, status = $4, updated_at = NOW()
		 WHERE id = $1 AND status = $5`,
		id, title, thumbnail, models.JobFinishedProcessing, models.JobProcessing)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.jobConflictOrMissing(ctx, id)
	}

	for _, f := range formats {
		err := tx.QueryRow(ctx,
			`INSERT INTO formats (format_id, job_id, ext, resolution, acodec, vcodec, filesize, tbr, url, language, format_note, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 RETURNING id, created_at`,
			f.FormatID, id, f.Ext, f.Resolution, f.Acodec, f.Vcodec, f.Filesize,
			f.Tbr, f.URL, f.Language, f.FormatNote, models.FormatPending,
		).Scan(&f.ID, &f.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert format: %w", err)
		}
		f.JobID = id
		f.Status = models.FormatPending
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit finish job: %w", err)
	}
	return nil
}

// ResetJob is the operator escape hatch out of error-processing. Formats
// left over from a previous half-finished attempt are removed so that
// re-discovery starts from a clean slate.
func (s *PostgresStore) ResetJob(ctx context.Context, id uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE jobs SET status = $2, title = NULL, thumbnail = NULL, updated_at = NOW()
		 WHERE id = $1 AND status = $3`,
		id, models.JobPending, models.JobErrorProcessing)
	if err != nil {
		return fmt.Errorf("reset job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.jobConflictOrMissing(ctx, id)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM formats WHERE job_id = $1`, id); err != nil {
		return fmt.Errorf("clear job formats: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reset job: %w", err)
	}
	return nil
}

func (s *PostgresStore) jobConflictOrMissing(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check job existence: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

// --- Formats ---

const formatColumns = `id, format_id, job_id, ext, resolution, acodec, vcodec, filesize, tbr, url, language, format_note, status, download_url, created_at`

func scanFormat(row pgx.Row, f *models.Format) error {
	return row.Scan(&f.ID, &f.FormatID, &f.JobID, &f.Ext, &f.Resolution, &f.Acodec,
		&f.Vcodec, &f.Filesize, &f.Tbr, &f.URL, &f.Language, &f.FormatNote,
		&f.Status, &f.DownloadURL, &f.CreatedAt)
}

func (s *PostgresStore) GetFormat(ctx context.Context, id uuid.UUID) (*models.Format, error) {
	var f models.Format
	err := scanFormat(s.pool.QueryRow(ctx,
		`SELECT `+formatColumns+` FROM formats WHERE id = $1`, id), &f)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get format: %w", err)
	}
	return &f, nil
}

func (s *PostgresStore) ListFormatsByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Format, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+formatColumns+` FROM formats WHERE job_id = $1 ORDER BY created_at ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list formats: %w", err)
	}
	defer rows.Close()

	var formats []*models.Format
	for rows.Next() {
		var f models.Format
		if err := scanFormat(rows, &f); err != nil {
			return nil, fmt.Errorf("scan format: %w", err)
		}
		formats = append(formats, &f)
	}
	return formats, rows.Err()
}

func (s *PostgresStore) ClaimFormat(ctx context.Context, id uuid.UUID, from, to models.FormatStatus) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("invalid format status transition: %s -> %s", from, to)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE formats SET status = $3 WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return fmt.Errorf("claim format: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.formatConflictOrMissing(ctx, id)
	}
	return nil
}

func (s *PostgresStore) UpdateFormatStatus(ctx context.Context, id uuid.UUID, status models.FormatStatus, opts ...FormatUpdateOption) error {
	params := &FormatUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	if params.DownloadURL != nil && status != models.FormatFinishedDownloading {
		return fmt.Errorf("download URL may only be set with status %s", models.FormatFinishedDownloading)
	}

	var current models.FormatStatus
	err := s.pool.QueryRow(ctx, `SELECT status FROM formats WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get format status: %w", err)
	}
	if !current.CanTransition(status) {
		return fmt.Errorf("invalid format status transition: %s -> %s", current, status)
	}

	query := `UPDATE formats SET status = $2`
	args := []any{id, status}
	argIdx := 3

	if params.DownloadURL != nil {
		query += fmt.Sprintf(", download_url = $%d", argIdx)
		args = append(args, *params.DownloadURL)
		argIdx++
	}

	query += fmt.Sprintf(" WHERE id = $1 AND status = $%d", argIdx)
	args = append(args, current)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update format status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.formatConflictOrMissing(ctx, id)
	}
	return nil
}

func (s *PostgresStore) ResetFormat(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE formats SET status = $2, download_url = NULL WHERE id = $1 AND status = $3`,
		id, models.FormatPending, models.FormatErrorDownloading)
	if err != nil {
		return fmt.Errorf("reset format: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.formatConflictOrMissing(ctx, id)
	}
	return nil
}

func (s *PostgresStore) formatConflictOrMissing(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM formats WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check format existence: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}
