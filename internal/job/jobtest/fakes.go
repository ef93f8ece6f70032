// Package jobtest provides in-memory doubles of the record store and broker
// contracts for unit tests. They mirror the real semantics closely enough to
// exercise the lifecycle paths: completed records are locked, retry counts
// increment per failure pass, and the staleness window filters by creation
// time.
package jobtest

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/jobengine/internal/job"
	"github.com/google/uuid"
)

// FakeStore is an in-memory job.Store.
type FakeStore struct {
	mu      sync.Mutex
	records map[string]*job.Record

	// Error injection per operation; nil means success.
	CreateErr        error
	GetErr           error
	MarkStartedErr   error
	MarkCompletedErr error
	MarkFailedErr    error
	ResetQueuedErr   error
	ListStaleErr     error
	ListFailedErr    error
	DeleteErr        error
}

// NewFakeStore creates an empty fake store.
func NewFakeStore() *FakeStore {
	return &FakeStore{records: make(map[string]*job.Record)}
}

// Seed inserts a record directly, bypassing Create-time defaults. Useful for
// arranging records in arbitrary states.
func (s *FakeStore) Seed(rec *job.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = cp.CreatedAt
	}
	s.records[cp.ID] = &cp
}

// Get returns a copy of the stored record for assertions, or nil.
func (s *FakeStore) Get(id string) *job.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

// Len returns the number of stored records.
func (s *FakeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *FakeStore) Create(_ context.Context, rec *job.Record) error {
	if s.CreateErr != nil {
		return s.CreateErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	if cp.Status == "" {
		cp.Status = job.StatusQueued
	}
	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.records[cp.ID] = &cp
	return nil
}

func (s *FakeStore) GetByID(_ context.Context, id string) (*job.Record, error) {
	if s.GetErr != nil {
		return nil, s.GetErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, job.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *FakeStore) MarkStarted(_ context.Context, id string) error {
	if s.MarkStartedErr != nil {
		return s.MarkStartedErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.Status == job.StatusCompleted {
		return job.ErrRecordNotFound
	}
	rec.Status = job.StatusStarted
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *FakeStore) MarkCompleted(_ context.Context, id, result string) error {
	if s.MarkCompletedErr != nil {
		return s.MarkCompletedErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.Status == job.StatusCompleted {
		return job.ErrRecordNotFound
	}
	rec.Status = job.StatusCompleted
	rec.Result = sql.NullString{String: result, Valid: true}
	rec.Error = sql.NullString{}
	rec.Traceback = sql.NullString{}
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *FakeStore) MarkFailed(_ context.Context, id, errMsg, traceback string) error {
	if s.MarkFailedErr != nil {
		return s.MarkFailedErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.Status == job.StatusCompleted {
		return job.ErrRecordNotFound
	}
	rec.Status = job.StatusFailed
	rec.Error = sql.NullString{String: errMsg, Valid: true}
	rec.Traceback = sql.NullString{String: traceback, Valid: true}
	rec.RetryCount++
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *FakeStore) ResetQueued(_ context.Context, id string) error {
	if s.ResetQueuedErr != nil {
		return s.ResetQueuedErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || (rec.Status != job.StatusQueued && rec.Status != job.StatusStarted) {
		return job.ErrRecordNotFound
	}
	rec.Status = job.StatusQueued
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *FakeStore) ListStale(_ context.Context, window time.Duration) ([]job.Record, error) {
	if s.ListStaleErr != nil {
		return nil, s.ListStaleErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-window)

	var recs []job.Record
	for _, rec := range s.records {
		if rec.Status != job.StatusQueued && rec.Status != job.StatusStarted {
			continue
		}
		if !rec.CreatedAt.After(cutoff) {
			continue
		}
		recs = append(recs, *rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.Before(recs[j].CreatedAt) })
	return recs, nil
}

func (s *FakeStore) ListFailed(_ context.Context, limit int) ([]job.Record, error) {
	if s.ListFailedErr != nil {
		return nil, s.ListFailedErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var recs []job.Record
	for _, rec := range s.records {
		if rec.Status != job.StatusFailed {
			continue
		}
		recs = append(recs, *rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].UpdatedAt.After(recs[j].UpdatedAt) })
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (s *FakeStore) Delete(_ context.Context, id string) error {
	if s.DeleteErr != nil {
		return s.DeleteErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return job.ErrRecordNotFound
	}
	delete(s.records, id)
	return nil
}

// FakeEntry is one broker entry held by FakeBroker.
type FakeEntry struct {
	Queue   string
	Body    []byte
	Timeout time.Duration
}

// FakeBroker is an in-memory job.Broker covering the submission-side contract.
type FakeBroker struct {
	mu      sync.Mutex
	entries map[string]FakeEntry
	failed  map[string]map[string]bool // queue -> set of ids

	SubmitErr       error
	ExistsErr       error
	RemoveFailedErr error
}

// NewFakeBroker creates an empty fake broker.
func NewFakeBroker() *FakeBroker {
	return &FakeBroker{
		entries: make(map[string]FakeEntry),
		failed:  make(map[string]map[string]bool),
	}
}

func (b *FakeBroker) Submit(_ context.Context, queue, id string, body []byte, timeout time.Duration) (string, error) {
	if b.SubmitErr != nil {
		return "", b.SubmitErr
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if id == "" {
		id = uuid.New().String()
	}
	b.entries[id] = FakeEntry{Queue: queue, Body: body, Timeout: timeout}
	return id, nil
}

func (b *FakeBroker) Exists(_ context.Context, id string) (bool, error) {
	if b.ExistsErr != nil {
		return false, b.ExistsErr
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.entries[id]
	return ok, nil
}

func (b *FakeBroker) RemoveFailed(_ context.Context, queue, id string) error {
	if b.RemoveFailedErr != nil {
		return b.RemoveFailedErr
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if ids, ok := b.failed[queue]; ok {
		delete(ids, id)
	}
	delete(b.entries, id)
	return nil
}

// Entry returns the entry for id and whether it exists.
func (b *FakeBroker) Entry(id string) (FakeEntry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[id]
	return e, ok
}

// Drop removes the entry for id, simulating loss of the broker-side state.
func (b *FakeBroker) Drop(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, id)
}

// AddFailed places id in the failure registry of queue.
func (b *FakeBroker) AddFailed(queue, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failed[queue] == nil {
		b.failed[queue] = make(map[string]bool)
	}
	b.failed[queue][id] = true
}

// InFailed reports whether id is in the failure registry of queue.
func (b *FakeBroker) InFailed(queue, id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failed[queue][id]
}

// EntryCount returns the number of live entries.
func (b *FakeBroker) EntryCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
