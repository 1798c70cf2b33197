package directory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nvelasco/campusd/auth"
	"github.com/nvelasco/campusd/internal/util"
)

// MemoryStore is an in-memory auth.Directory for tests and ephemeral runs.
type MemoryStore struct {
	mu         sync.RWMutex
	byEmail    map[string]auth.UserRecord
	lastLogins map[string]time.Time
}

var _ auth.Directory = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory directory.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byEmail:    make(map[string]auth.UserRecord),
		lastLogins: make(map[string]time.Time),
	}
}

func (m *MemoryStore) FindByIdentifier(_ context.Context, identifier string) (auth.UserRecord, error) {
	id := util.NormalizeIdentifier(identifier)
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byEmail[id]
	if !ok {
		return auth.UserRecord{}, auth.ErrUserNotFound
	}
	return rec, nil
}

func (m *MemoryStore) IdentifierExists(_ context.Context, identifier string) (bool, error) {
	id := util.NormalizeIdentifier(identifier)
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byEmail[id]
	return ok, nil
}

func (m *MemoryStore) Create(_ context.Context, rec auth.UserRecord) (auth.UserRecord, error) {
	rec.Email = util.NormalizeIdentifier(rec.Email)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[rec.Email]; ok {
		return auth.UserRecord{}, auth.ErrDuplicateIdentifier
	}
	rec.ID = uuid.NewString()
	m.byEmail[rec.Email] = rec
	return rec, nil
}

func (m *MemoryStore) SaveCredential(_ context.Context, identifier, credential string) error {
	id := util.NormalizeIdentifier(identifier)
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byEmail[id]
	if !ok {
		return auth.ErrUserNotFound
	}
	rec.Credential = credential
	m.byEmail[id] = rec
	return nil
}

func (m *MemoryStore) RecordLogin(_ context.Context, identifier string, at time.Time) error {
	id := util.NormalizeIdentifier(identifier)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLogins[id] = at
	return nil
}

// LastLogin mirrors SQLiteStore.LastLogin for the in-memory variant.
func (m *MemoryStore) LastLogin(_ context.Context, identifier string) (time.Time, bool, error) {
	id := util.NormalizeIdentifier(identifier)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.byEmail[id]; !ok {
		return time.Time{}, false, auth.ErrUserNotFound
	}
	at, ok := m.lastLogins[id]
	return at, ok, nil
}
