package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pimentellima/smulti/internal/queue"
	"github.com/pimentellima/smulti/internal/resolver"
	"github.com/pimentellima/smulti/internal/store"
	"github.com/pimentellima/smulti/pkg/models"
)

var errStoreDown = errors.New("store unavailable")

// memStore is an in-memory store.Store with the same transition rules as
// the Postgres implementation.
type memStore struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]*models.Job
	formats map[uuid.UUID]*models.Format
	order   []uuid.UUID
	// down simulates a store outage: every call fails.
	down bool
}

func newMemStore() *memStore {
	return &memStore{
		jobs:    make(map[uuid.UUID]*models.Job),
		formats: make(map[uuid.UUID]*models.Format),
	}
}

func (s *memStore) addJob(url string, status models.JobStatus) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	now := time.Now().UTC()
	s.jobs[id] = &models.Job{ID: id, URL: url, Status: status, CreatedAt: now, UpdatedAt: now}
	return id
}

func (s *memStore) addFormat(f *models.Format) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	f.CreatedAt = time.Now().UTC()
	s.formats[f.ID] = f
	s.order = append(s.order, f.ID)
	return f.ID
}

func (s *memStore) Ping(ctx context.Context) error {
	if s.down {
		return errStoreDown
	}
	return nil
}

func (s *memStore) CreateJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errStoreDown
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *memStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, errStoreDown
	}
	j, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *memStore) ListStalePendingJobs(ctx context.Context, maxAge time.Duration, limit int) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, errStoreDown
	}
	cutoff := time.Now().Add(-maxAge)
	var jobs []*models.Job
	for _, j := range s.jobs {
		if j.Status == models.JobPending && j.UpdatedAt.Before(cutoff) {
			cp := *j
			jobs = append(jobs, &cp)
			if len(jobs) == limit {
				break
			}
		}
	}
	return jobs, nil
}

func (s *memStore) ClaimJob(ctx context.Context, id uuid.UUID, from, to models.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errStoreDown
	}
	j, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if j.Status != from {
		return store.ErrConflict
	}
	j.Status = to
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus, opts ...store.JobUpdateOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errStoreDown
	}
	j, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if !j.Status.CanTransition(status) {
		return fmt.Errorf("invalid job status transition: %s -> %s", j.Status, status)
	}
	params := &store.JobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}
	j.Status = status
	if params.Title != nil {
		j.Title = params.Title
	}
	if params.Thumbnail != nil {
		j.Thumbnail = params.Thumbnail
	}
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memStore) FinishJobProcessing(ctx context.Context, id uuid.UUID, title, thumbnail *string, formats []*models.Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errStoreDown
	}
	j, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if j.Status != models.JobProcessing {
		return store.ErrConflict
	}
	j.Title = title
	j.Thumbnail = thumbnail
	j.Status = models.JobFinishedProcessing
	j.UpdatedAt = time.Now().UTC()
	for _, f := range formats {
		f.ID = uuid.New()
		f.JobID = id
		f.Status = models.FormatPending
		f.CreatedAt = time.Now().UTC()
		cp := *f
		s.formats[f.ID] = &cp
		s.order = append(s.order, f.ID)
	}
	return nil
}

func (s *memStore) ResetJob(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errStoreDown
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
	j.UpdatedAt = time.Now().UTC()
	for fid, f := range s.formats {
		if f.JobID == id {
			delete(s.formats, fid)
		}
	}
	return nil
}

func (s *memStore) GetFormat(ctx context.Context, id uuid.UUID) (*models.Format, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, errStoreDown
	}
	f, ok := s.formats[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *memStore) ListFormatsByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Format, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, errStoreDown
	}
	var formats []*models.Format
	for _, id := range s.order {
		if f, ok := s.formats[id]; ok && f.JobID == jobID {
			cp := *f
			formats = append(formats, &cp)
		}
	}
	return formats, nil
}

func (s *memStore) ClaimFormat(ctx context.Context, id uuid.UUID, from, to models.FormatStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errStoreDown
	}
	f, ok := s.formats[id]
	if !ok {
		return store.ErrNotFound
	}
	if f.Status != from {
		return store.ErrConflict
	}
	f.Status = to
	return nil
}

func (s *memStore) UpdateFormatStatus(ctx context.Context, id uuid.UUID, status models.FormatStatus, opts ...store.FormatUpdateOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errStoreDown
	}
	f, ok := s.formats[id]
	if !ok {
		return store.ErrNotFound
	}
	if !f.Status.CanTransition(status) {
		return fmt.Errorf("invalid format status transition: %s -> %s", f.Status, status)
	}
	params := &store.FormatUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}
	if params.DownloadURL != nil && status != models.FormatFinishedDownloading {
		return fmt.Errorf("download URL may only be set with status %s", models.FormatFinishedDownloading)
	}
	f.Status = status
	if params.DownloadURL != nil {
		f.DownloadURL = params.DownloadURL
	}
	return nil
}

func (s *memStore) ResetFormat(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errStoreDown
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

// memQueue is an in-memory queue.Queue. Receive never blocks beyond a
// token sleep, and delivered messages are dropped rather than held in
// flight; redelivery scenarios are driven by calling process functions
// directly.
type memQueue struct {
	mu      sync.Mutex
	msgs    []queue.Message
	sent    []string
	deleted []string
	dlq     []string
	nextID  int
}

func newMemQueue() *memQueue { return &memQueue{} }

func (q *memQueue) Ping(ctx context.Context) error { return nil }

func (q *memQueue) Send(ctx context.Context, body string) error {
	return q.SendBatch(ctx, []string{body})
}

func (q *memQueue) SendBatch(ctx context.Context, bodies []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, body := range bodies {
		q.nextID++
		q.msgs = append(q.msgs, queue.Message{Body: body, ReceiptHandle: fmt.Sprintf("h%d", q.nextID)})
		q.sent = append(q.sent, body)
	}
	return nil
}

func (q *memQueue) Receive(ctx context.Context, max int) ([]queue.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.msgs) == 0 {
		time.Sleep(time.Millisecond)
		return nil, nil
	}
	n := max
	if n > len(q.msgs) {
		n = len(q.msgs)
	}
	out := q.msgs[:n]
	q.msgs = q.msgs[n:]
	return out, nil
}

func (q *memQueue) Delete(ctx context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, receiptHandle)
	return nil
}

func (q *memQueue) Len(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.msgs)), nil
}

func (q *memQueue) PopDLQ(ctx context.Context) (string, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.dlq) == 0 {
		return "", false, nil
	}
	body := q.dlq[0]
	q.dlq = q.dlq[1:]
	return body, true, nil
}

// fakeResolver returns canned results.
type fakeResolver struct {
	resolution *resolver.Resolution
	resolveErr error
	streamURL  string
	streamErr  error
}

func (r *fakeResolver) Resolve(ctx context.Context, url string) (*resolver.Resolution, error) {
	if r.resolveErr != nil {
		return nil, r.resolveErr
	}
	return r.resolution, nil
}

func (r *fakeResolver) BestStreamURL(ctx context.Context, sourceURL string) (string, error) {
	if r.streamErr != nil {
		return "", r.streamErr
	}
	return r.streamURL, nil
}

// fakeBlob records uploads and returns deterministic URLs.
type fakeBlob struct {
	mu           sync.Mutex
	baseURL      string
	putErr       error
	keys         []string
	contentTypes []string
	payloads     [][]byte
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{baseURL: "https://blob.test/media"}
}

func (b *fakeBlob) PutStream(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	if b.putErr != nil {
		return "", b.putErr
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys = append(b.keys, key)
	b.contentTypes = append(b.contentTypes, contentType)
	b.payloads = append(b.payloads, payload)
	return b.baseURL + "/" + key, nil
}
