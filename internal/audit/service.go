package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.Status == "" {
		e.Status = StatusSuccess
	}
	if e.Status != StatusSuccess && e.Status != StatusFailure {
		return ErrInvalidEvent
	}

	if meta, ok := RequestMetaFrom(ctx); ok {
		if e.IPAddress == "" {
			e.IPAddress = meta.IP
		}
		if e.UserAgent == "" {
			e.UserAgent = meta.UserAgent
		}
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogAccountAction records an action by actor on the target account.
func (s *Service) LogAccountAction(ctx context.Context, t EventType, actorUserID, targetUserID, message string) error {
	return s.Append(ctx, Event{
		Type:         t,
		ActorUserID:  actorUserID,
		TargetUserID: targetUserID,
		EntityType:   "user",
		EntityID:     targetUserID,
		Message:      message,
	})
}

// LogFailure records a rejected attempt, e.g. a login with bad credentials.
func (s *Service) LogFailure(ctx context.Context, t EventType, targetUserID, message string) error {
	return s.Append(ctx, Event{
		Type:         t,
		Status:       StatusFailure,
		TargetUserID: targetUserID,
		Message:      message,
	})
}

// RequestMeta is the client information attached to events.
type RequestMeta struct {
	IP        string
	UserAgent string
}

type metaKey struct{}

// WithRequestMeta stores client information in ctx for later events.
func WithRequestMeta(ctx context.Context, m RequestMeta) context.Context {
	return context.WithValue(ctx, metaKey{}, m)
}

func RequestMetaFrom(ctx context.Context) (RequestMeta, bool) {
	m, ok := ctx.Value(metaKey{}).(RequestMeta)
	return m, ok
}
