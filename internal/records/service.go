// Package records stores the contributor-tier resources. Authorization is
// decided before a request reaches this package; nothing here checks roles.
package records

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/AdolfoEscobar473/hospital/internal/audit"
	"github.com/AdolfoEscobar473/hospital/internal/rbac"
	"github.com/AdolfoEscobar473/hospital/pkg/logger"

	"github.com/google/uuid"
)

// Repository persists records. Every method is scoped to one module.
type Repository interface {
	Create(ctx context.Context, r Record) error
	Get(ctx context.Context, module, id string) (Record, error)
	List(ctx context.Context, module string, f ListFilter) ([]Record, error)
	Update(ctx context.Context, r Record) error
	Delete(ctx context.Context, module, id string) error
	Approve(ctx context.Context, module, id, by string, at time.Time) (Record, error)
	// Counts returns totals for module; Recent counts rows created at or after since.
	Counts(ctx context.Context, module string, since time.Time) (Counts, error)
}

const (
	defaultLimit = 50
	maxLimit     = 200
)

type Service struct {
	repo  Repository
	audit *audit.Service
	clock func() time.Time
}

func NewService(repo Repository, auditSvc *audit.Service) *Service {
	return &Service{repo: repo, audit: auditSvc, clock: time.Now}
}

func checkModule(module string) error {
	if !rbac.IsValidModule(module) {
		return fmt.Errorf("%w: %q", ErrUnknownModule, module)
	}
	return nil
}

// checkTarget validates the module and that id can name a record at all.
func checkTarget(module, id string) error {
	if err := checkModule(module); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	return nil
}

func normalizeStatus(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func checkData(d json.RawMessage) error {
	if len(d) == 0 {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(d, &obj); err != nil {
		return fmt.Errorf("%w: data must be a JSON object", ErrValidation)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, module, actorID string, in CreateInput) (Record, error) {
	if err := checkModule(module); err != nil {
		return Record{}, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Record{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if err := checkData(in.Data); err != nil {
		return Record{}, err
	}
	status := normalizeStatus(in.Status)
	if status == "" {
		status = StatusOpen
	}

	now := s.clock().UTC()
	r := Record{
		ID:        uuid.NewString(),
		Module:    module,
		Title:     title,
		Status:    status,
		Data:      in.Data,
		CreatedBy: actorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return Record{}, err
	}
	return r, nil
}

func (s *Service) Get(ctx context.Context, module, id string) (Record, error) {
	if err := checkTarget(module, id); err != nil {
		return Record{}, err
	}
	return s.repo.Get(ctx, module, id)
}

func (s *Service) List(ctx context.Context, module string, f ListFilter) ([]Record, error) {
	if err := checkModule(module); err != nil {
		return nil, err
	}
	f.Status = normalizeStatus(f.Status)
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.List(ctx, module, f)
}

// Update applies in to the record. Last write wins.
func (s *Service) Update(ctx context.Context, module, id string, in UpdateInput) (Record, error) {
	r, err := s.Get(ctx, module, id)
	if err != nil {
		return Record{}, err
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return Record{}, fmt.Errorf("%w: title is required", ErrValidation)
		}
		r.Title = title
	}
	if in.Status != nil {
		if st := normalizeStatus(*in.Status); st != "" {
			r.Status = st
		}
	}
	if in.Data != nil {
		if err := checkData(*in.Data); err != nil {
			return Record{}, err
		}
		r.Data = *in.Data
	}
	r.UpdatedAt = s.clock().UTC()
	if err := s.repo.Update(ctx, r); err != nil {
		return Record{}, err
	}
	return r, nil
}

func (s *Service) Delete(ctx context.Context, module, id string) error {
	if err := checkTarget(module, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, module, id)
}

func (s *Service) Approve(ctx context.Context, module, id, actorID string) (Record, error) {
	if err := checkTarget(module, id); err != nil {
		return Record{}, err
	}
	r, err := s.repo.Approve(ctx, module, id, actorID, s.clock().UTC())
	if err != nil {
		return Record{}, err
	}
	if s.audit != nil {
		err := s.audit.Append(ctx, audit.Event{
			Type:        audit.EventRecordApproved,
			ActorUserID: actorID,
			EntityType:  module,
			EntityID:    id,
		})
		if err != nil {
			logger.From(ctx).WarnContext(ctx, "audit append failed", "type", string(audit.EventRecordApproved), "err", err)
		}
	}
	return r, nil
}

// Counts implements the reporting source for one module.
func (s *Service) Counts(ctx context.Context, module string, since time.Time) (Counts, error) {
	if err := checkModule(module); err != nil {
		return Counts{}, err
	}
	return s.repo.Counts(ctx, module, since)
}
