package records

import (
	"encoding/json"
	"errors"
	"time"
)

// Record is one row of a contributor-tier module (a process, a risk, an
// adverse event...). Module-specific fields live in Data.
type Record struct {
	ID         string          `json:"id"`
	Module     string          `json:"module"`
	Title      string          `json:"title"`
	Status     string          `json:"status"`
	Data       json.RawMessage `json:"data,omitempty"`
	CreatedBy  string          `json:"created_by,omitempty"`
	ApprovedBy string          `json:"approved_by,omitempty"`
	ApprovedAt *time.Time      `json:"approved_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

const (
	StatusOpen     = "open"
	StatusApproved = "approved"
	StatusClosed   = "closed"
)

// closedStatuses do not count towards a module's open total.
var closedStatuses = map[string]bool{
	StatusClosed: true,
	"completed":  true,
	"resolved":   true,
	"cancelled":  true,
}

func IsClosedStatus(s string) bool { return closedStatuses[s] }

type CreateInput struct {
	Title  string          `json:"title" binding:"required,max=300"`
	Status string          `json:"status" binding:"omitempty,max=50"`
	Data   json.RawMessage `json:"data"`
}

type UpdateInput struct {
	Title  *string          `json:"title" binding:"omitempty,max=300"`
	Status *string          `json:"status" binding:"omitempty,max=50"`
	Data   *json.RawMessage `json:"data"`
}

type ListFilter struct {
	Status string
	Limit  int
	Offset int
}

// Counts aggregates one module.
type Counts struct {
	Total    int
	Open     int
	Recent   int
	ByStatus map[string]int
}

var (
	ErrNotFound      = errors.New("record not found")
	ErrValidation    = errors.New("invalid record")
	ErrUnknownModule = errors.New("unknown module")
)
