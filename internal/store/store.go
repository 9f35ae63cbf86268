package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pimentellima/smulti/pkg/models"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrConflict is returned when a conditional status update finds the
	// row in a different state than expected, meaning another worker
	// instance claimed it first or it already reached a terminal status.
	ErrConflict = errors.New("status conflict")
)

// Store is the data access interface. It is the single source of truth for
// job and format progress; all workers read and write through it.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// ListStalePendingJobs returns pending jobs whose last update is older
	// than maxAge, used by the dispatcher to re-enqueue references whose
	// original send may have been lost.
	ListStalePendingJobs(ctx context.Context, maxAge time.Duration, limit int) ([]*models.Job, error)
	// ClaimJob conditionally advances a job from the expected status,
	// returning ErrConflict if another instance got there first.
	ClaimJob(ctx context.Context, id uuid.UUID, from, to models.JobStatus) error
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus, opts ...JobUpdateOption) error
	// FinishJobProcessing commits the discovered metadata, the
	// finished-processing transition, and the bulk format insert in a
	// single transaction: either all formats for the job land, or none.
	FinishJobProcessing(ctx context.Context, id uuid.UUID, title, thumbnail *string, formats []*models.Format) error
	// ResetJob returns an error-state job to pending for another attempt.
	// This is the one sanctioned way out of a terminal status.
	ResetJob(ctx context.Context, id uuid.UUID) error

	GetFormat(ctx context.Context, id uuid.UUID) (*models.Format, error)
	ListFormatsByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Format, error)
	ClaimFormat(ctx context.Context, id uuid.UUID, from, to models.FormatStatus) error
	UpdateFormatStatus(ctx context.Context, id uuid.UUID, status models.FormatStatus, opts ...FormatUpdateOption) error
	ResetFormat(ctx context.Context, id uuid.UUID) error
}

// JobUpdateParams holds the optional fields a status write may carry.
// Exported so alternative Store implementations can resolve options.
type JobUpdateParams struct {
	Title     *string
	Thumbnail *string
}

type JobUpdateOption func(*JobUpdateParams)

func WithTitle(title string) JobUpdateOption {
	return func(p *JobUpdateParams) {
		p.Title = &title
	}
}

func WithThumbnail(thumbnail string) JobUpdateOption {
	return func(p *JobUpdateParams) {
		p.Thumbnail = &thumbnail
	}
}

type FormatUpdateParams struct {
	DownloadURL *string
}

type FormatUpdateOption func(*FormatUpdateParams)

// WithDownloadURL records the retrievable URL alongside a status write.
// Only valid together with finished-downloading.
func WithDownloadURL(url string) FormatUpdateOption {
	return func(p *FormatUpdateParams) {
		p.DownloadURL = &url
	}
}
