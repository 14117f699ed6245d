package accounts

import (
	"errors"
	"time"
)

// Account is a hospital staff member able to sign in.
type Account struct {
	ID                 string    `json:"id"`
	Username           string    `json:"username"`
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	IsActive           bool      `json:"is_active"`
	MustChangePassword bool      `json:"must_change_password"`
	PasswordHash       string    `json:"-"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Profile is the account view returned to clients, roles included.
type Profile struct {
	ID                 string    `json:"id"`
	Username           string    `json:"username"`
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	Roles              []string  `json:"roles"`
	IsActive           bool      `json:"is_active"`
	MustChangePassword bool      `json:"must_change_password"`
	CreatedAt          time.Time `json:"created_at"`
}

func profileOf(a Account, roles []string) Profile {
	if roles == nil {
		roles = []string{}
	}
	return Profile{
		ID:                 a.ID,
		Username:           a.Username,
		Name:               a.Name,
		Email:              a.Email,
		Roles:              roles,
		IsActive:           a.IsActive,
		MustChangePassword: a.MustChangePassword,
		CreatedAt:          a.CreatedAt,
	}
}

// Session is the result of a successful login or refresh.
type Session struct {
	AccessToken        string
	RefreshToken       string
	AccessExpiresAt    time.Time
	RefreshExpiresAt   time.Time
	MustChangePassword bool
	User               Profile
}

// CreateInput describes a new account. Password may be empty, in which case
// a temporary password is generated and must be changed on first login.
type CreateInput struct {
	Username string
	Name     string
	Email    string
	Password string
	Roles    []string
	IsActive *bool
}

// UpdateInput carries optional changes; nil fields are left untouched.
type UpdateInput struct {
	Name     *string
	Email    *string
	IsActive *bool
	Roles    *[]string
	Password *string
}

// MinPasswordLength applies to every password a person chooses.
const MinPasswordLength = 6

var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("already exists")
	ErrValidation           = errors.New("validation failed")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAccountInactive      = errors.New("account inactive")
	ErrWrongCurrentPassword = errors.New("current password is incorrect")
	ErrTooManyAttempts      = errors.New("too many attempts")
)
