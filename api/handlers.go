package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/nvelasco/campusd/auth"
)

const sessionHeader = "X-Session-Token"

// Register handles POST /auth/register.
func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	created, err := a.svc.Register(r.Context(), auth.Registration{
		Email:      req.Email,
		Password:   req.Password,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Phone:      req.Phone,
		Department: req.Department,
	})
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, RegisterResponse{ID: created.ID, Email: created.Email})
}

// Login handles POST /auth/login. Lockout yields 429 with Retry-After;
// bad credentials yield 401 with the remaining attempt budget.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := a.svc.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		mapError(w, err)
		return
	}

	switch res.Status {
	case auth.StatusLocked:
		secs := int(res.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeJSON(w, http.StatusTooManyRequests, LockedResponse{
			Error:             res.LockoutMessage,
			RetryAfterSeconds: secs,
		})
	case auth.StatusInvalidCredentials:
		writeJSON(w, http.StatusUnauthorized, LoginFailureResponse{
			Error:             auth.ErrInvalidCredentials.Error(),
			AttemptsRemaining: res.AttemptsRemaining,
		})
	case auth.StatusAuthenticated:
		token, _ := a.svc.Sessions().ActiveToken()
		writeJSON(w, http.StatusOK, LoginResponse{
			Token: token,
			User:  summary(res.Principal),
		})
	}
}

// Logout handles POST /auth/logout. Always succeeds.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	a.svc.Logout()
	w.WriteHeader(http.StatusNoContent)
}

// Session handles GET /auth/session. Checking counts as activity and
// slides the idle window.
func (a *API) Session(w http.ResponseWriter, r *http.Request) {
	p, ok := a.svc.CheckSession()
	if !ok {
		writeJSON(w, http.StatusOK, SessionResponse{Active: false})
		return
	}
	u := summary(p)
	writeJSON(w, http.StatusOK, SessionResponse{Active: true, User: &u})
}

// Me handles GET /me.
func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := a.svc.CheckSession()
	if !ok {
		mapError(w, auth.ErrNoSession)
		return
	}
	writeJSON(w, http.StatusOK, summary(p))
}

// ChangePassword handles POST /me/password for the logged-in account.
func (a *API) ChangePassword(w http.ResponseWriter, r *http.Request) {
	p, ok := a.svc.CheckSession()
	if !ok {
		mapError(w, auth.ErrNoSession)
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := a.svc.ChangePassword(r.Context(), p.Email, req.CurrentPassword, req.NewPassword); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequireSession rejects requests whose token does not match the active
// session. Token comparison happens before the validity check so an
// expired session and a wrong token are indistinguishable to the caller.
func (a *API) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(sessionHeader)
		active, ok := a.svc.Sessions().ActiveToken()
		if !ok || token == "" || token != active {
			writeError(w, http.StatusUnauthorized, "no active session")
			return
		}
		if !a.svc.Sessions().Valid() {
			writeError(w, http.StatusUnauthorized, "no active session")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loginRateLimit applies the global login limiter ahead of the per-account
// throttle, bounding total hashing work under credential-stuffing load.
func (a *API) loginRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.loginLimiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "too many login attempts; try again later")
			a.logger.Warn("global login limiter engaged", slog.String("remote", r.RemoteAddr))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func summary(p auth.Principal) UserSummary {
	return UserSummary{
		ID:         p.ID,
		Email:      p.Email,
		Name:       p.Name,
		Department: p.Department,
	}
}
