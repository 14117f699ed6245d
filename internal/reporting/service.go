package reporting

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/AdolfoEscobar473/hospital/internal/rbac"
	"github.com/AdolfoEscobar473/hospital/internal/records"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Source abstracts the record counts reporting reads.
//
// IMPORTANT:
// - Counts must be scoped to the given module.
// - Implementations should aggregate in the store, not in memory, when possible.
type Source interface {
	Counts(ctx context.Context, module string, since time.Time) (records.Counts, error)
}

// AccountCounter reports the number of accounts.
type AccountCounter interface {
	CountAccounts(ctx context.Context) (int, error)
}

// DefaultWindow is the lookback for "recent" counts.
const DefaultWindow = 30 * 24 * time.Hour

type Service struct {
	source   Source
	accounts AccountCounter
	window   time.Duration
	clock    func() time.Time
}

func NewService(source Source, accounts AccountCounter) *Service {
	return &Service{source: source, accounts: accounts, window: DefaultWindow, clock: time.Now}
}

func (s *Service) ModuleStatistics(ctx context.Context, module string) (ModuleStatistics, error) {
	if !rbac.IsValidModule(module) {
		return ModuleStatistics{}, ErrInvalidRequest
	}
	if s.source == nil {
		return ModuleStatistics{}, errors.New("reporting: source not configured")
	}

	since := s.clock().UTC().Add(-s.window)
	c, err := s.source.Counts(ctx, module, since)
	if err != nil {
		return ModuleStatistics{}, err
	}

	out := ModuleStatistics{
		Module:   module,
		Total:    c.Total,
		Open:     c.Open,
		Recent:   c.Recent,
		ByStatus: make([]StatusCount, 0, len(c.ByStatus)),
	}
	for status, n := range c.ByStatus {
		out.ByStatus = append(out.ByStatus, StatusCount{Status: status, Count: n})
	}
	// largest bucket first, ties by name for stable output
	sort.Slice(out.ByStatus, func(i, j int) bool {
		if out.ByStatus[i].Count != out.ByStatus[j].Count {
			return out.ByStatus[i].Count > out.ByStatus[j].Count
		}
		return out.ByStatus[i].Status < out.ByStatus[j].Status
	})
	return out, nil
}

// Summary builds the dashboard across every module.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	out := Summary{
		Modules:     make([]ModuleStatistics, 0, len(rbac.Modules)),
		Window:      s.window.String(),
		GeneratedAt: s.clock().UTC(),
	}
	if s.accounts != nil {
		n, err := s.accounts.CountAccounts(ctx)
		if err != nil {
			return Summary{}, err
		}
		out.Users.Total = n
	}
	for _, m := range rbac.Modules {
		st, err := s.ModuleStatistics(ctx, m)
		if err != nil {
			return Summary{}, err
		}
		out.Modules = append(out.Modules, st)
	}
	return out, nil
}
