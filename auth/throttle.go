package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nvelasco/campusd/internal/util"
	"github.com/nvelasco/campusd/storage"
)

// Throttle defaults.
const (
	DefaultMaxAttempts        = 5
	DefaultLockoutDuration    = 15 * time.Minute
	DefaultAttemptResetWindow = time.Hour
)

// attemptRecord is the persisted throttle state for one identifier. It is
// created on the first failure, mutated on every attempt, and deleted
// entirely on success or once lockout expiry is observed.
type attemptRecord struct {
	FailureCount int        `json:"failure_count"`
	LastAttempt  time.Time  `json:"last_attempt"`
	LockedAt     *time.Time `json:"locked_at,omitempty"`
}

// Throttle tracks failed authentication attempts per identifier over time
// and decides lockout. State is durable in a storage.Store so a restart
// does not reset an attacker's budget. Mutations to a single identifier's
// record are linearized by a per-identifier lock; independent identifiers
// never contend.
type Throttle struct {
	store       storage.Store
	clock       Clock
	logger      *slog.Logger
	maxAttempts int
	lockout     time.Duration
	resetWindow time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// ThrottleOption configures a Throttle.
type ThrottleOption func(*Throttle)

// WithMaxAttempts sets the failure threshold that triggers lockout.
func WithMaxAttempts(n int) ThrottleOption {
	return func(t *Throttle) {
		if n > 0 {
			t.maxAttempts = n
		}
	}
}

// WithLockoutDuration sets how long a locked identifier stays locked.
func WithLockoutDuration(d time.Duration) ThrottleOption {
	return func(t *Throttle) {
		if d > 0 {
			t.lockout = d
		}
	}
}

// WithAttemptResetWindow sets the gap after which a stale failure count is
// treated as zero.
func WithAttemptResetWindow(d time.Duration) ThrottleOption {
	return func(t *Throttle) {
		if d > 0 {
			t.resetWindow = d
		}
	}
}

// WithThrottleLogger sets the logger for persistence warnings.
func WithThrottleLogger(l *slog.Logger) ThrottleOption {
	return func(t *Throttle) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewThrottle creates a Throttle over the given store and clock. A nil
// clock selects the system clock.
func NewThrottle(store storage.Store, clock Clock, opts ...ThrottleOption) *Throttle {
	if clock == nil {
		clock = SystemClock()
	}
	t := &Throttle{
		store:       store,
		clock:       clock,
		logger:      slog.Default(),
		maxAttempts: DefaultMaxAttempts,
		lockout:     DefaultLockoutDuration,
		resetWindow: DefaultAttemptResetWindow,
		locks:       make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// MaxAttempts returns the configured failure threshold.
func (t *Throttle) MaxAttempts() int { return t.maxAttempts }

// LockoutDuration returns the configured lockout duration.
func (t *Throttle) LockoutDuration() time.Duration { return t.lockout }

func (t *Throttle) lockFor(id string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[id]
	if !ok {
		l = &sync.Mutex{}
		t.locks[id] = l
	}
	return l
}

// RecordFailure records a failed authentication attempt for the identifier
// and reports whether the identifier just became (or remains) locked.
// A failure arriving after the reset window counts as the first failure.
func (t *Throttle) RecordFailure(identifier string) bool {
	id := util.NormalizeIdentifier(identifier)
	if id == "" {
		return false
	}
	l := t.lockFor(id)
	l.Lock()
	defer l.Unlock()

	now := t.clock.Now()
	rec, _ := t.load(id)
	if !rec.LastAttempt.IsZero() && now.Sub(rec.LastAttempt) > t.resetWindow {
		rec = attemptRecord{}
	}
	rec.FailureCount++
	rec.LastAttempt = now

	locked := rec.FailureCount >= t.maxAttempts
	if locked && rec.LockedAt == nil {
		lockedAt := now
		rec.LockedAt = &lockedAt
		t.logger.Warn("identifier locked out",
			slog.String("identifier", id),
			slog.Int("failures", rec.FailureCount))
	}
	t.save(id, rec)
	return locked
}

// RecordSuccess clears all throttle state for the identifier. It is an
// idempotent no-op when no record exists.
func (t *Throttle) RecordSuccess(identifier string) {
	id := util.NormalizeIdentifier(identifier)
	if id == "" {
		return
	}
	l := t.lockFor(id)
	l.Lock()
	defer l.Unlock()
	t.clear(id)
}

// IsLocked reports whether the identifier is currently locked. Lockout
// expiry is observed lazily here: once the lockout duration has elapsed the
// record is cleared and false is returned. This is the only read path that
// mutates state.
func (t *Throttle) IsLocked(identifier string) bool {
	id := util.NormalizeIdentifier(identifier)
	if id == "" {
		return false
	}
	l := t.lockFor(id)
	l.Lock()
	defer l.Unlock()

	rec, ok := t.load(id)
	if !ok || rec.LockedAt == nil {
		return false
	}
	if t.clock.Now().Sub(*rec.LockedAt) >= t.lockout {
		t.clear(id)
		return false
	}
	return true
}

// FailureCount returns the current failure count for the identifier, or 0
// when the reset window has elapsed since the last attempt. It never
// mutates state.
func (t *Throttle) FailureCount(identifier string) int {
	id := util.NormalizeIdentifier(identifier)
	if id == "" {
		return 0
	}
	rec, ok := t.load(id)
	if !ok {
		return 0
	}
	if t.clock.Now().Sub(rec.LastAttempt) > t.resetWindow {
		return 0
	}
	return rec.FailureCount
}

// RemainingLockout returns the time left on an active lockout, or 0 when
// the identifier is not locked. Pure projection; no state is mutated.
func (t *Throttle) RemainingLockout(identifier string) time.Duration {
	id := util.NormalizeIdentifier(identifier)
	if id == "" {
		return 0
	}
	rec, ok := t.load(id)
	if !ok || rec.LockedAt == nil {
		return 0
	}
	remaining := t.lockout - t.clock.Now().Sub(*rec.LockedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// LockoutMessage returns a human-readable remaining-time message when the
// identifier is locked. The second return is false when not locked.
func (t *Throttle) LockoutMessage(identifier string) (string, bool) {
	if !t.IsLocked(identifier) {
		return "", false
	}
	remaining := t.RemainingLockout(identifier)
	if remaining <= 0 {
		return "", false
	}
	if minutes := int(remaining / time.Minute); minutes > 0 {
		return fmt.Sprintf("Account locked. Try again in %d minute(s).", minutes), true
	}
	return "Account locked. Try again in less than a minute.", true
}

// Unlock clears all throttle state for the identifier regardless of its
// lock status. Intended for administrative use.
func (t *Throttle) Unlock(identifier string) {
	id := util.NormalizeIdentifier(identifier)
	if id == "" {
		return
	}
	l := t.lockFor(id)
	l.Lock()
	defer l.Unlock()
	t.clear(id)
	t.logger.Info("identifier unlocked", slog.String("identifier", id))
}

func (t *Throttle) load(id string) (attemptRecord, bool) {
	data, err := t.store.Get(storage.BucketAttempts, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			t.logger.Warn("failed to load attempt record",
				slog.String("identifier", id), slog.Any("error", err))
		}
		return attemptRecord{}, false
	}
	var rec attemptRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		t.logger.Warn("corrupt attempt record",
			slog.String("identifier", id), slog.Any("error", err))
		return attemptRecord{}, false
	}
	return rec, true
}

// save persists best-effort: the in-memory decision for the current call
// stands even when the write fails, but the failure is never silent.
func (t *Throttle) save(id string, rec attemptRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		t.logger.Warn("failed to encode attempt record",
			slog.String("identifier", id), slog.Any("error", err))
		return
	}
	if err := t.store.Put(storage.BucketAttempts, id, data); err != nil {
		t.logger.Warn("failed to persist attempt record",
			slog.String("identifier", id), slog.Any("error", err))
	}
}

func (t *Throttle) clear(id string) {
	if err := t.store.Delete(storage.BucketAttempts, id); err != nil {
		t.logger.Warn("failed to clear attempt record",
			slog.String("identifier", id), slog.Any("error", err))
	}
}
