package api

// RegisterRequest is the JSON body for POST /auth/register.
type RegisterRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Phone      string `json:"phone,omitempty"`
	Department string `json:"department,omitempty"`
}

// RegisterResponse is returned from POST /auth/register.
type RegisterResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// LoginRequest is the JSON body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned from a successful POST /auth/login.
type LoginResponse struct {
	Token string      `json:"token"`
	User  UserSummary `json:"user"`
}

// UserSummary describes the authenticated account.
type UserSummary struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Department string `json:"department,omitempty"`
}

// LoginFailureResponse is returned when credentials do not verify.
type LoginFailureResponse struct {
	Error             string `json:"error"`
	AttemptsRemaining int    `json:"attempts_remaining"`
}

// LockedResponse is returned when the account is throttled.
type LockedResponse struct {
	Error             string `json:"error"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

// SessionResponse is returned from GET /auth/session.
type SessionResponse struct {
	Active bool         `json:"active"`
	User   *UserSummary `json:"user,omitempty"`
}

// ChangePasswordRequest is the JSON body for POST /me/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ErrorResponse is the generic error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}
