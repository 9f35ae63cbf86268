package handler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pimentellima/smulti/internal/store"
	"github.com/pimentellima/smulti/pkg/models"
)

var errStubDown = errors.New("store unavailable")

// stubStore is a minimal in-memory store.Store for handler tests.
type stubStore struct {
	jobs    map[uuid.UUID]*models.Job
	formats map[uuid.UUID]*models.Format
	down    bool
}

func newStubStore() *stubStore {
	return &stubStore{
		jobs:    make(map[uuid.UUID]*models.Job),
		formats: make(map[uuid.UUID]*models.Format),
	}
}

func (s *stubStore) addJob(url string, status models.JobStatus) uuid.UUID {
	id := uuid.New()
	now := time.Now()
	s.jobs[id] = &models.Job{ID: id, URL: url, Status: status, CreatedAt: now, UpdatedAt: now}
	return id
}

func (s *stubStore) addFormat(jobID uuid.UUID, status models.FormatStatus) uuid.UUID {
	id := uuid.New()
	s.formats[id] = &models.Format{
		ID:       id,
		FormatID: "22",
		JobID:    jobID,
		Ext:      "mp4",
		URL:      "https://example.com/watch",
		Status:   status,
	}
	return id
}

func (s *stubStore) Ping(ctx context.Context) error {
	if s.down {
		return errStubDown
	}
	return nil
}

func (s *stubStore) CreateJob(ctx context.Context, job *models.Job) error {
	if s.down {
		return errStubDown
	}
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *stubStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	if s.down {
		return nil, errStubDown
	}
	j, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *stubStore) ListStalePendingJobs(ctx context.Context, maxAge time.Duration, limit int) ([]*models.Job, error) {
	return nil, nil
}

func (s *stubStore) ClaimJob(ctx context.Context, id uuid.UUID, from, to models.JobStatus) error {
	return nil
}

func (s *stubStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus, opts ...store.JobUpdateOption) error {
	return nil
}

func (s *stubStore) FinishJobProcessing(ctx context.Context, id uuid.UUID, title, thumbnail *string, formats []*models.Format) error {
	return nil
}

func (s *stubStore) ResetJob(ctx context.Context, id uuid.UUID) error {
	if s.down {
		return errStubDown
	}
	j, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if j.Status != models.JobErrorProcessing {
		return store.ErrConflict
	}
	j.Status = models.JobPending
	j.Title = nil
	j.Thumbnail = nil
	for fid, f := range s.formats {
		if f.JobID == id {
			delete(s.formats, fid)
		}
	}
	return nil
}

func (s *stubStore) GetFormat(ctx context.Context, id uuid.UUID) (*models.Format, error) {
	if s.down {
		return nil, errStubDown
	}
	f, ok := s.formats[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *stubStore) ListFormatsByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Format, error) {
	if s.down {
		return nil, errStubDown
	}
	var out []*models.Format
	for _, f := range s.formats {
		if f.JobID == jobID {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *stubStore) ClaimFormat(ctx context.Context, id uuid.UUID, from, to models.FormatStatus) error {
	return nil
}

func (s *stubStore) UpdateFormatStatus(ctx context.Context, id uuid.UUID, status models.FormatStatus, opts ...store.FormatUpdateOption) error {
	return nil
}

func (s *stubStore) ResetFormat(ctx context.Context, id uuid.UUID) error {
	if s.down {
		return errStubDown
	}
	f, ok := s.formats[id]
	if !ok {
		return store.ErrNotFound
	}
	if f.Status != models.FormatErrorDownloading {
		return store.ErrConflict
	}
	f.Status = models.FormatPending
	f.DownloadURL = nil
	return nil
}

// stubQueue records enqueued bodies.
type stubQueue struct {
	sent    []string
	sendErr error
}

func (q *stubQueue) Send(ctx context.Context, body string) error {
	if q.sendErr != nil {
		return q.sendErr
	}
	q.sent = append(q.sent, body)
	return nil
}

func (q *stubQueue) SendBatch(ctx context.Context, bodies []string) error {
	if q.sendErr != nil {
		return q.sendErr
	}
	q.sent = append(q.sent, bodies...)
	return nil
}
