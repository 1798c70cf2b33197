package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvelasco/campusd/storage/memory"
)

// fakeDirectory is an in-memory Directory keyed by normalized email.
type fakeDirectory struct {
	mu     sync.Mutex
	users  map[string]UserRecord
	nextID int
}

var _ Directory = (*fakeDirectory)(nil)

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{users: make(map[string]UserRecord)}
}

func (d *fakeDirectory) FindByIdentifier(_ context.Context, identifier string) (UserRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[identifier]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return u, nil
}

func (d *fakeDirectory) IdentifierExists(_ context.Context, identifier string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.users[identifier]
	return ok, nil
}

func (d *fakeDirectory) Create(_ context.Context, rec UserRecord) (UserRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[rec.Email]; ok {
		return UserRecord{}, ErrDuplicateIdentifier
	}
	d.nextID++
	rec.ID = fmt.Sprintf("s-%d", d.nextID)
	d.users[rec.Email] = rec
	return rec, nil
}

func (d *fakeDirectory) SaveCredential(_ context.Context, identifier, credential string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[identifier]
	if !ok {
		return ErrUserNotFound
	}
	u.Credential = credential
	d.users[identifier] = u
	return nil
}

func (d *fakeDirectory) RecordLogin(_ context.Context, identifier string, _ time.Time) error {
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeDirectory, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	store := memory.NewStore()
	dir := newFakeDirectory()
	svc := NewService(
		dir,
		NewHasher(testParams()),
		NewThrottle(store, clock),
		NewSessionManager(store, clock),
		clock,
	)
	return svc, dir, clock
}

func register(t *testing.T, svc *Service, email, password string) UserRecord {
	t.Helper()
	u, err := svc.Register(context.Background(), Registration{
		Email:      email,
		Password:   password,
		FirstName:  "Ada",
		LastName:   "Byron",
		Phone:      "555-0100",
		Department: "Computer Science",
	})
	require.NoError(t, err)
	return u
}

func TestService_RegisterAndAuthenticate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	u := register(t, svc, "a@b.com", "Str0ng!Pass")
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "a@b.com", u.Email)
	assert.NotContains(t, u.Credential, "Str0ng!Pass", "credential must not embed the secret")

	res, err := svc.Authenticate(ctx, "a@b.com", "Str0ng!Pass")
	require.NoError(t, err)
	require.Equal(t, StatusAuthenticated, res.Status)
	assert.Equal(t, "Ada Byron", res.Principal.Name)
	assert.Equal(t, "Computer Science", res.Principal.Department)

	p, ok := svc.CheckSession()
	require.True(t, ok)
	assert.Equal(t, res.Principal, p)
}

func TestService_RegisterNormalizesEmail(t *testing.T) {
	svc, dir, _ := newTestService(t)
	register(t, svc, "  A@B.COM ", "Str0ng!Pass")

	_, err := dir.FindByIdentifier(context.Background(), "a@b.com")
	assert.NoError(t, err, "stored under the normalized identifier")

	res, err := svc.Authenticate(context.Background(), "A@b.Com", "Str0ng!Pass")
	require.NoError(t, err)
	assert.Equal(t, StatusAuthenticated, res.Status)
}

func TestService_RegisterRejections(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	register(t, svc, "a@b.com", "Str0ng!Pass")

	t.Run("duplicate identifier", func(t *testing.T) {
		_, err := svc.Register(ctx, Registration{
			Email: "A@B.com", Password: "Str0ng!Pass",
			FirstName: "Ada", LastName: "Byron",
		})
		assert.ErrorIs(t, err, ErrDuplicateIdentifier)
	})

	t.Run("weak password", func(t *testing.T) {
		_, err := svc.Register(ctx, Registration{
			Email: "new@b.com", Password: "weak",
			FirstName: "Ada", LastName: "Byron",
		})
		ve, ok := AsValidationError(err)
		require.True(t, ok)
		assert.Equal(t, "password", ve.Field)
	})

	t.Run("missing names", func(t *testing.T) {
		_, err := svc.Register(ctx, Registration{Email: "new@b.com", Password: "Str0ng!Pass"})
		ve, ok := AsValidationError(err)
		require.True(t, ok)
		assert.Equal(t, "first_name", ve.Field)
	})

	t.Run("invalid email", func(t *testing.T) {
		for _, email := range []string{"not-an-email", "@b.com", "a@", "a@nodot", "a@b.", "a@b@c.com"} {
			_, err := svc.Register(ctx, Registration{
				Email: email, Password: "Str0ng!Pass",
				FirstName: "Ada", LastName: "Byron",
			})
			ve, ok := AsValidationError(err)
			require.True(t, ok, "email %q should fail validation", email)
			assert.Equal(t, "email", ve.Field)
		}
	})
}

func TestService_UnknownIdentifierIndistinguishable(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	register(t, svc, "a@b.com", "Str0ng!Pass")

	known, err := svc.Authenticate(ctx, "a@b.com", "wrong-pass")
	require.NoError(t, err)
	unknown, err := svc.Authenticate(ctx, "ghost@b.com", "wrong-pass")
	require.NoError(t, err)

	assert.Equal(t, known.Status, unknown.Status)
	assert.Equal(t, StatusInvalidCredentials, unknown.Status)
	// Both identifiers accrue throttle state, registered or not.
	assert.Equal(t, known.AttemptsRemaining, unknown.AttemptsRemaining)
}

func TestService_EndToEndLockout(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	register(t, svc, "a@b.com", "Str0ng!Pass")

	// Four wrong attempts: each reports the shrinking budget.
	for want := 4; want >= 1; want-- {
		res, err := svc.Authenticate(ctx, "a@b.com", "wrong")
		require.NoError(t, err)
		require.Equal(t, StatusInvalidCredentials, res.Status)
		assert.Equal(t, want, res.AttemptsRemaining)
	}

	// Fifth wrong attempt locks.
	res, err := svc.Authenticate(ctx, "a@b.com", "wrong")
	require.NoError(t, err)
	require.Equal(t, StatusLocked, res.Status)
	assert.Contains(t, res.LockoutMessage, "Account locked")
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	// Correct credentials do not bypass an active lockout.
	res, err = svc.Authenticate(ctx, "a@b.com", "Str0ng!Pass")
	require.NoError(t, err)
	assert.Equal(t, StatusLocked, res.Status)

	// After the lockout window, the correct password logs in and the
	// failure count is gone.
	clock.Advance(DefaultLockoutDuration + time.Second)
	res, err = svc.Authenticate(ctx, "a@b.com", "Str0ng!Pass")
	require.NoError(t, err)
	assert.Equal(t, StatusAuthenticated, res.Status)
	assert.Equal(t, 0, svc.Throttle().FailureCount("a@b.com"))
}

func TestService_SuccessResetsThrottle(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	register(t, svc, "a@b.com", "Str0ng!Pass")

	for i := 0; i < 3; i++ {
		_, err := svc.Authenticate(ctx, "a@b.com", "wrong")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, svc.Throttle().FailureCount("a@b.com"))

	res, err := svc.Authenticate(ctx, "a@b.com", "Str0ng!Pass")
	require.NoError(t, err)
	require.Equal(t, StatusAuthenticated, res.Status)
	assert.Equal(t, 0, svc.Throttle().FailureCount("a@b.com"))
}

func TestService_EmptyInputsAreValidationErrors(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Authenticate(ctx, "", "pw")
	ve, ok := AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "email", ve.Field)

	_, err = svc.Authenticate(ctx, "a@b.com", "")
	ve, ok = AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "password", ve.Field)

	// Validation failures never touch the throttle.
	assert.Equal(t, 0, svc.Throttle().FailureCount("a@b.com"))
}

func TestService_LogoutEndsSession(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	register(t, svc, "a@b.com", "Str0ng!Pass")

	_, err := svc.Authenticate(ctx, "a@b.com", "Str0ng!Pass")
	require.NoError(t, err)
	_, ok := svc.CheckSession()
	require.True(t, ok)

	svc.Logout()
	_, ok = svc.CheckSession()
	assert.False(t, ok)
	svc.Logout() // idempotent
}

func TestService_SessionExpiresBetweenChecks(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()
	register(t, svc, "a@b.com", "Str0ng!Pass")

	_, err := svc.Authenticate(ctx, "a@b.com", "Str0ng!Pass")
	require.NoError(t, err)

	clock.Advance(DefaultIdleTimeout + time.Minute)
	_, ok := svc.CheckSession()
	assert.False(t, ok)
}

func TestService_ChangePassword(t *testing.T) {
	svc, dir, _ := newTestService(t)
	ctx := context.Background()
	register(t, svc, "a@b.com", "Str0ng!Pass")
	before, _ := dir.FindByIdentifier(ctx, "a@b.com")

	t.Run("wrong current password", func(t *testing.T) {
		err := svc.ChangePassword(ctx, "a@b.com", "wrong", "N3w!Secret")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("weak new password", func(t *testing.T) {
		err := svc.ChangePassword(ctx, "a@b.com", "Str0ng!Pass", "weak")
		_, ok := AsValidationError(err)
		assert.True(t, ok)
	})

	t.Run("rotates wholesale", func(t *testing.T) {
		require.NoError(t, svc.ChangePassword(ctx, "a@b.com", "Str0ng!Pass", "N3w!Secret"))
		after, _ := dir.FindByIdentifier(ctx, "a@b.com")
		assert.NotEqual(t, before.Credential, after.Credential)

		res, err := svc.Authenticate(ctx, "a@b.com", "N3w!Secret")
		require.NoError(t, err)
		assert.Equal(t, StatusAuthenticated, res.Status)
	})
}

func TestService_DirectoryErrorSurfacesAsEnvironmentError(t *testing.T) {
	clock := newFakeClock()
	store := memory.NewStore()
	svc := NewService(
		failingDirectory{},
		NewHasher(testParams()),
		NewThrottle(store, clock),
		NewSessionManager(store, clock),
		clock,
	)

	_, err := svc.Authenticate(context.Background(), "a@b.com", "Str0ng!Pass")
	require.Error(t, err)
	_, ok := AsValidationError(err)
	assert.False(t, ok, "environment errors are not validation errors")
	// The failed lookup must not count against the user's budget.
	assert.Equal(t, 0, svc.Throttle().FailureCount("a@b.com"))
}

type failingDirectory struct{}

var errDirDown = errors.New("directory unavailable")

func (failingDirectory) FindByIdentifier(context.Context, string) (UserRecord, error) {
	return UserRecord{}, errDirDown
}
func (failingDirectory) IdentifierExists(context.Context, string) (bool, error) {
	return false, errDirDown
}
func (failingDirectory) Create(context.Context, UserRecord) (UserRecord, error) {
	return UserRecord{}, errDirDown
}
func (failingDirectory) SaveCredential(context.Context, string, string) error { return errDirDown }
func (failingDirectory) RecordLogin(context.Context, string, time.Time) error { return errDirDown }
