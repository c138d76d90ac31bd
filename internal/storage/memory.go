package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gpib-control/gpib-control-server/internal/models"
)

// MemoryStore keeps every record in process memory. It serves development
// runs without a database. Transactions are not isolated: BeginTx returns
// the store itself and Rollback does not undo writes.
type MemoryStore struct {
	mu sync.RWMutex

	nextInstrumentID int64
	instruments      map[int64]*models.Instrument
	measurements     map[int64][]*models.Measurement
	events           []*models.EventLog
	users            map[uuid.UUID]*models.User
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instruments:  make(map[int64]*models.Instrument),
		measurements: make(map[int64][]*models.Measurement),
		users:        make(map[uuid.UUID]*models.User),
	}
}

func (s *MemoryStore) BeginTx(ctx context.Context) (Store, error) { return s, nil }
func (s *MemoryStore) Commit() error                              { return nil }
func (s *MemoryStore) Rollback() error                            { return nil }
func (s *MemoryStore) Ping(ctx context.Context) error             { return nil }
func (s *MemoryStore) Close() error                               { return nil }

// ========== Instrument Methods ==========

func (s *MemoryStore) CreateInstrument(ctx context.Context, inst *models.Instrument) error {
	inst.ApplyDefaults()

	now := time.Now().UTC()
	inst.CreatedAt = now
	inst.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextInstrumentID++
	inst.ID = s.nextInstrumentID
	s.instruments[inst.ID] = copyInstrument(inst)

	return nil
}

func (s *MemoryStore) GetInstrument(ctx context.Context, id int64) (*models.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instruments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyInstrument(inst), nil
}

func (s *MemoryStore) UpdateInstrument(ctx context.Context, inst *models.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.instruments[inst.ID]
	if !ok {
		return ErrNotFound
	}

	inst.CreatedAt = current.CreatedAt
	inst.UpdatedAt = time.Now().UTC()
	s.instruments[inst.ID] = copyInstrument(inst)

	return nil
}

func (s *MemoryStore) DeleteInstrument(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instruments[id]; !ok {
		return ErrNotFound
	}
	delete(s.instruments, id)
	delete(s.measurements, id)

	return nil
}

func (s *MemoryStore) ListInstruments(ctx context.Context, limit, offset int) ([]*models.Instrument, int64, error) {
	all := s.sortedInstruments(func(*models.Instrument) bool { return true })
	return page(all, limit, offset), int64(len(all)), nil
}

func (s *MemoryStore) ListAutoConnectInstruments(ctx context.Context) ([]*models.Instrument, error) {
	return s.sortedInstruments(func(inst *models.Instrument) bool { return inst.AutoConnect }), nil
}

func (s *MemoryStore) sortedInstruments(keep func(*models.Instrument) bool) []*models.Instrument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Instrument, 0, len(s.instruments))
	for _, inst := range s.instruments {
		if keep(inst) {
			out = append(out, copyInstrument(inst))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func copyInstrument(inst *models.Instrument) *models.Instrument {
	c := *inst
	if inst.Description != nil {
		d := *inst.Description
		c.Description = &d
	}
	return &c
}

// ========== Measurement Methods ==========

func (s *MemoryStore) SaveMeasurement(ctx context.Context, m *models.Measurement) error {
	if m.ID == nil {
		id := uuid.New()
		m.ID = &id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instruments[m.InstrumentID]; !ok {
		return ErrInvalidData
	}

	c := *m
	s.measurements[m.InstrumentID] = append(s.measurements[m.InstrumentID], &c)
	return nil
}

func (s *MemoryStore) ListMeasurements(ctx context.Context, instrumentID int64, limit, offset int) ([]*models.Measurement, int64, error) {
	s.mu.RLock()
	stored := s.measurements[instrumentID]
	out := make([]*models.Measurement, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		c := *stored[i]
		out = append(out, &c)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return page(out, limit, offset), int64(len(out)), nil
}

func (s *MemoryStore) DeleteMeasurements(ctx context.Context, instrumentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.measurements, instrumentID)
	return nil
}

// ========== Event Log Methods ==========

func (s *MemoryStore) CreateEventLog(ctx context.Context, event *models.EventLog) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := *event
	s.events = append(s.events, &c)
	return nil
}

func (s *MemoryStore) ListEventLogs(ctx context.Context, filters EventLogFilters, limit, offset int) ([]*models.EventLog, int64, error) {
	s.mu.RLock()
	out := make([]*models.EventLog, 0)
	for i := len(s.events) - 1; i >= 0; i-- {
		event := s.events[i]
		if filters.matches(event) {
			c := *event
			out = append(out, &c)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), int64(len(out)), nil
}

func (f EventLogFilters) matches(event *models.EventLog) bool {
	if f.InstrumentID != nil && (event.InstrumentID == nil || *event.InstrumentID != *f.InstrumentID) {
		return false
	}
	if f.Type != nil && event.Type != *f.Type {
		return false
	}
	if f.Level != nil && event.Level != *f.Level {
		return false
	}
	if f.StartTime != nil && event.CreatedAt.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && event.CreatedAt.After(*f.EndTime) {
		return false
	}
	return true
}

// ========== User Methods ==========

func (s *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return ErrDuplicateKey
		}
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	c := *user
	s.users[user.ID] = &c
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *user
	return &c, nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			c := *user
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) TouchUserLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	user.LastLoginAt = &at
	user.UpdatedAt = at
	return nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return items[:0]
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
