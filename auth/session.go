package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/nvelasco/campusd/internal/util"
	"github.com/nvelasco/campusd/storage"
)

// Session defaults.
const (
	DefaultAbsoluteTimeout = 24 * time.Hour
	DefaultIdleTimeout     = 2 * time.Hour
)

const (
	sessionKey    = "current"
	loginCountKey = "login_count"
	tokenBytes    = 32
)

// Principal is the authenticated user as cached in the session at issue
// time, so the identity can be displayed without a directory round-trip.
type Principal struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Department string `json:"department"`
}

// sessionRecord is the persisted single-slot session state.
type sessionRecord struct {
	Token          string    `json:"token"`
	Principal      Principal `json:"principal"`
	IssuedAt       time.Time `json:"issued_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	LoginCount     int       `json:"login_count"`
}

// SessionManager issues, validates, and expires the single active session.
// Exactly one session exists at a time: creating a new one replaces any
// prior one unconditionally. A session is valid while both the absolute
// timeout (since issue) and the idle timeout (since last activity) hold;
// every successful validity check slides the idle window forward.
type SessionManager struct {
	store    storage.Store
	clock    Clock
	logger   *slog.Logger
	absolute time.Duration
	idle     time.Duration

	mu sync.Mutex
}

// SessionOption configures a SessionManager.
type SessionOption func(*SessionManager)

// WithAbsoluteTimeout sets the maximum total session age.
func WithAbsoluteTimeout(d time.Duration) SessionOption {
	return func(m *SessionManager) {
		if d > 0 {
			m.absolute = d
		}
	}
}

// WithIdleTimeout sets the maximum inactivity duration.
func WithIdleTimeout(d time.Duration) SessionOption {
	return func(m *SessionManager) {
		if d > 0 {
			m.idle = d
		}
	}
}

// WithSessionLogger sets the logger for persistence warnings.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(m *SessionManager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewSessionManager creates a SessionManager over the given store and
// clock. A nil clock selects the system clock.
func NewSessionManager(store storage.Store, clock Clock, opts ...SessionOption) *SessionManager {
	if clock == nil {
		clock = SystemClock()
	}
	m := &SessionManager{
		store:    store,
		clock:    clock,
		logger:   slog.Default(),
		absolute: DefaultAbsoluteTimeout,
		idle:     DefaultIdleTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create issues a new session for the principal, replacing any existing
// session unconditionally. The token is generated from the system CSPRNG.
func (m *SessionManager) Create(p Principal) error {
	token, err := util.RandomToken(tokenBytes)
	if err != nil {
		return fmt.Errorf("generating session token: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	count := m.bumpLoginCount()
	rec := sessionRecord{
		Token:          token,
		Principal:      p,
		IssuedAt:       now,
		LastActivityAt: now,
		LoginCount:     count,
	}
	if err := m.save(rec); err != nil {
		return err
	}
	m.logger.Info("session created",
		slog.String("email", p.Email), slog.Int("login_count", count))
	return nil
}

// Valid reports whether an active, unexpired session exists. A session past
// either timeout is destroyed before false is returned. On success the
// last-activity timestamp is advanced, so calling Valid counts as activity.
func (m *SessionManager) Valid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.validLocked()
	return ok
}

func (m *SessionManager) validLocked() (sessionRecord, bool) {
	rec, ok := m.load()
	if !ok {
		return sessionRecord{}, false
	}
	now := m.clock.Now()
	if now.Sub(rec.IssuedAt) > m.absolute {
		m.logger.Warn("session expired", slog.String("email", rec.Principal.Email))
		m.destroyLocked()
		return sessionRecord{}, false
	}
	if now.Sub(rec.LastActivityAt) > m.idle {
		m.logger.Warn("session idle timeout", slog.String("email", rec.Principal.Email))
		m.destroyLocked()
		return sessionRecord{}, false
	}
	rec.LastActivityAt = now
	// Best effort: a failed activity write does not invalidate the
	// current decision; the next write retries.
	if err := m.save(rec); err != nil {
		m.logger.Warn("failed to persist session activity", slog.Any("error", err))
	}
	return rec, true
}

// CurrentUser returns the session's principal when the session is valid.
// It never returns a stale principal: validity (and its side effects) are
// evaluated first.
func (m *SessionManager) CurrentUser() (Principal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.validLocked()
	if !ok {
		return Principal{}, false
	}
	return rec.Principal, true
}

// CurrentUserID returns the active principal's ID, or "" when invalid.
func (m *SessionManager) CurrentUserID() (string, bool) {
	p, ok := m.CurrentUser()
	if !ok {
		return "", false
	}
	return p.ID, true
}

// ActiveToken returns the active session token when the session is valid.
func (m *SessionManager) ActiveToken() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.validLocked()
	if !ok {
		return "", false
	}
	return rec.Token, true
}

// Destroy clears the session. Idempotent.
func (m *SessionManager) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyLocked()
}

// RemainingAbsolute returns the time left before the absolute timeout, or 0
// when there is no session or it has already expired. Pure projection.
func (m *SessionManager) RemainingAbsolute() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.load()
	if !ok || !m.alive(rec) {
		return 0
	}
	remaining := m.absolute - m.clock.Now().Sub(rec.IssuedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RemainingIdle returns the time left before the idle timeout, or 0 when
// there is no session or it has already expired. Pure projection.
func (m *SessionManager) RemainingIdle() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.load()
	if !ok || !m.alive(rec) {
		return 0
	}
	remaining := m.idle - m.clock.Now().Sub(rec.LastActivityAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (m *SessionManager) alive(rec sessionRecord) bool {
	now := m.clock.Now()
	return now.Sub(rec.IssuedAt) <= m.absolute && now.Sub(rec.LastActivityAt) <= m.idle
}

func (m *SessionManager) load() (sessionRecord, bool) {
	data, err := m.store.Get(storage.BucketSession, sessionKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.logger.Warn("failed to load session", slog.Any("error", err))
		}
		return sessionRecord{}, false
	}
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		m.logger.Warn("corrupt session record", slog.Any("error", err))
		return sessionRecord{}, false
	}
	return rec, true
}

func (m *SessionManager) save(rec sessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := m.store.Put(storage.BucketSession, sessionKey, data); err != nil {
		return fmt.Errorf("persisting session: %w", err)
	}
	return nil
}

func (m *SessionManager) destroyLocked() {
	if err := m.store.Delete(storage.BucketSession, sessionKey); err != nil {
		m.logger.Warn("failed to clear session", slog.Any("error", err))
	}
}

// bumpLoginCount increments the durable login counter. The counter
// survives logout; it is display/analytics state, not security state.
func (m *SessionManager) bumpLoginCount() int {
	count := 0
	if data, err := m.store.Get(storage.BucketSession, loginCountKey); err == nil {
		count, _ = strconv.Atoi(string(data))
	}
	count++
	if err := m.store.Put(storage.BucketSession, loginCountKey, []byte(strconv.Itoa(count))); err != nil {
		m.logger.Warn("failed to persist login count", slog.Any("error", err))
	}
	return count
}
