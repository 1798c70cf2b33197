package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nvelasco/campusd/internal/util"
)

// UserRecord is the directory's view of an account, as needed by
// authentication. Credential holds the CredentialRecord string form and is
// never logged.
type UserRecord struct {
	ID         string
	Email      string
	FirstName  string
	LastName   string
	Phone      string
	Department string
	Credential string
}

// FullName returns the display name cached on the session at login.
func (u UserRecord) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Directory is the persistent user store the authentication service
// consults. Implementations return ErrUserNotFound when no account exists
// for an identifier and ErrDuplicateIdentifier on conflicting creates.
type Directory interface {
	FindByIdentifier(ctx context.Context, identifier string) (UserRecord, error)
	IdentifierExists(ctx context.Context, identifier string) (bool, error)
	Create(ctx context.Context, rec UserRecord) (UserRecord, error)
	SaveCredential(ctx context.Context, identifier, credential string) error
	RecordLogin(ctx context.Context, identifier string, at time.Time) error
}

// AuthStatus is the outcome class of an authentication attempt.
type AuthStatus int

const (
	// StatusAuthenticated means credentials verified and a session was created.
	StatusAuthenticated AuthStatus = iota
	// StatusInvalidCredentials means the identifier/secret pair did not
	// verify. Wrong secret and unknown identifier are reported identically.
	StatusInvalidCredentials
	// StatusLocked means the identifier is throttled; the credentials were
	// not (re)verified.
	StatusLocked
)

// AuthResult is the outcome of an Authenticate call.
type AuthResult struct {
	Status            AuthStatus
	Principal         Principal
	AttemptsRemaining int
	LockoutMessage    string
	RetryAfter        time.Duration
}

// Registration is the input to Register.
type Registration struct {
	Email      string
	Password   string
	FirstName  string
	LastName   string
	Phone      string
	Department string
}

// Service wires the hasher, throttle, session manager, and user directory
// into the login/registration flow.
type Service struct {
	dir      Directory
	hasher   *Hasher
	throttle *Throttle
	sessions *SessionManager
	clock    Clock
	logger   *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the service logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates the authentication service. A nil clock selects the
// system clock.
func NewService(dir Directory, hasher *Hasher, throttle *Throttle, sessions *SessionManager, clock Clock, opts ...ServiceOption) *Service {
	if clock == nil {
		clock = SystemClock()
	}
	s := &Service{
		dir:      dir,
		hasher:   hasher,
		throttle: throttle,
		sessions: sessions,
		clock:    clock,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Throttle exposes the underlying throttle for administrative operations.
func (s *Service) Throttle() *Throttle { return s.throttle }

// Sessions exposes the underlying session manager.
func (s *Service) Sessions() *SessionManager { return s.sessions }

// Authenticate runs the full login flow: lockout check first, then
// credential verification, then throttle bookkeeping and session creation.
// A locked identifier is refused before verification, so correct
// credentials do not bypass an active lockout. The returned error is
// non-nil only for environment failures (directory or session storage).
func (s *Service) Authenticate(ctx context.Context, identifier, secret string) (AuthResult, error) {
	id := util.NormalizeIdentifier(identifier)
	if id == "" {
		return AuthResult{}, validationErrorf("email", "Email is required")
	}
	if secret == "" {
		return AuthResult{}, validationErrorf("password", "Password is required")
	}

	if msg, locked := s.throttle.LockoutMessage(id); locked {
		return AuthResult{
			Status:         StatusLocked,
			LockoutMessage: msg,
			RetryAfter:     s.throttle.RemainingLockout(id),
		}, nil
	}

	user, err := s.dir.FindByIdentifier(ctx, id)
	verified := false
	switch {
	case err == nil:
		verified = s.hasher.Verify(secret, user.Credential)
	case errors.Is(err, ErrUserNotFound):
		// Unknown identifier: fall through to the failure path so the
		// outcome is indistinguishable from a wrong password. The
		// throttle is keyed by the identifier either way.
	default:
		return AuthResult{}, fmt.Errorf("looking up account: %w", err)
	}

	if !verified {
		if s.throttle.RecordFailure(id) {
			msg, _ := s.throttle.LockoutMessage(id)
			return AuthResult{
				Status:         StatusLocked,
				LockoutMessage: msg,
				RetryAfter:     s.throttle.RemainingLockout(id),
			}, nil
		}
		remaining := s.throttle.MaxAttempts() - s.throttle.FailureCount(id)
		if remaining < 0 {
			remaining = 0
		}
		return AuthResult{
			Status:            StatusInvalidCredentials,
			AttemptsRemaining: remaining,
		}, nil
	}

	s.throttle.RecordSuccess(id)
	if err := s.dir.RecordLogin(ctx, id, s.clock.Now()); err != nil {
		s.logger.Warn("failed to record last login",
			slog.String("identifier", id), slog.Any("error", err))
	}

	p := Principal{
		ID:         user.ID,
		Email:      user.Email,
		Name:       user.FullName(),
		Department: user.Department,
	}
	if err := s.sessions.Create(p); err != nil {
		return AuthResult{}, fmt.Errorf("creating session: %w", err)
	}
	s.logger.Info("login succeeded", slog.String("identifier", id))
	return AuthResult{Status: StatusAuthenticated, Principal: p}, nil
}

// Register creates a new account. Validation errors and duplicate
// identifiers are returned as recoverable errors; a hashing failure aborts
// with no partial write.
func (s *Service) Register(ctx context.Context, reg Registration) (UserRecord, error) {
	if strings.TrimSpace(reg.FirstName) == "" {
		return UserRecord{}, validationErrorf("first_name", "First name is required")
	}
	if strings.TrimSpace(reg.LastName) == "" {
		return UserRecord{}, validationErrorf("last_name", "Last name is required")
	}
	id := util.NormalizeIdentifier(reg.Email)
	if id == "" {
		return UserRecord{}, validationErrorf("email", "Email is required")
	}
	if err := validateEmail(id); err != nil {
		return UserRecord{}, err
	}
	if err := ValidatePasswordStrength(reg.Password); err != nil {
		return UserRecord{}, err
	}

	exists, err := s.dir.IdentifierExists(ctx, id)
	if err != nil {
		return UserRecord{}, fmt.Errorf("checking for existing account: %w", err)
	}
	if exists {
		return UserRecord{}, ErrDuplicateIdentifier
	}

	cred, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return UserRecord{}, err
	}

	created, err := s.dir.Create(ctx, UserRecord{
		Email:      id,
		FirstName:  strings.TrimSpace(reg.FirstName),
		LastName:   strings.TrimSpace(reg.LastName),
		Phone:      strings.TrimSpace(reg.Phone),
		Department: strings.TrimSpace(reg.Department),
		Credential: cred.String(),
	})
	if err != nil {
		return UserRecord{}, fmt.Errorf("creating account: %w", err)
	}
	s.logger.Info("account registered", slog.String("identifier", id))
	return created, nil
}

// ChangePassword regenerates the credential record wholesale after
// verifying the current secret. The identifier must belong to an existing
// account.
func (s *Service) ChangePassword(ctx context.Context, identifier, current, next string) error {
	id := util.NormalizeIdentifier(identifier)
	user, err := s.dir.FindByIdentifier(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("looking up account: %w", err)
	}
	if !s.hasher.Verify(current, user.Credential) {
		return ErrInvalidCredentials
	}
	if err := ValidatePasswordStrength(next); err != nil {
		return err
	}
	cred, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := s.dir.SaveCredential(ctx, id, cred.String()); err != nil {
		return fmt.Errorf("saving credential: %w", err)
	}
	s.logger.Info("credential rotated", slog.String("identifier", id))
	return nil
}

// CheckSession reports the active principal, if any. Calling it counts as
// activity and slides the idle window.
func (s *Service) CheckSession() (Principal, bool) {
	return s.sessions.CurrentUser()
}

// Logout destroys the active session. Idempotent.
func (s *Service) Logout() {
	s.sessions.Destroy()
}

// validateEmail applies a light shape check; the identifier is already
// normalized. Anything with a non-empty local part, one "@", and a dotted
// domain passes.
func validateEmail(id string) error {
	at := strings.IndexByte(id, '@')
	if at <= 0 || at == len(id)-1 {
		return validationErrorf("email", "Please enter a valid email address")
	}
	domain := id[at+1:]
	if strings.Contains(domain, "@") {
		return validationErrorf("email", "Please enter a valid email address")
	}
	dot := strings.IndexByte(domain, '.')
	if dot <= 0 || dot == len(domain)-1 {
		return validationErrorf("email", "Please enter a valid email address")
	}
	return nil
}
