package credits

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/zhinao/geoscan/internal/cache"
	"github.com/zhinao/geoscan/internal/store"
)

const balanceCacheTTL = 30 * time.Second

// Ledger is the subset of the store the credits service reads.
type Ledger interface {
	GetLatestBalance(ctx context.Context, userID uuid.UUID) (int, error)
	SumDeductionsSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
}

// Summary is the balance view the dashboard renders.
type Summary struct {
	Balance       int `json:"balance"`
	MonthlyUsed   int `json:"monthly_used"`
	FreeQuota     int `json:"free_quota"`
	FreeRemaining int `json:"free_remaining"`
	PaidPortion   int `json:"paid_portion"`
}

// Service reads balance snapshots and derives the free-quota view. The
// running balance is maintained externally (the engine writes the ledger);
// this service only reads the latest snapshot.
type Service struct {
	ledger Ledger
	cache  cache.Cache
	prices PriceTable
	quota  int
	now    func() time.Time
}

// NewService creates a credits Service. cache may be nil in tests.
func NewService(ledger Ledger, c cache.Cache, prices PriceTable, monthlyQuota int) *Service {
	return &Service{
		ledger: ledger,
		cache:  c,
		prices: prices,
		quota:  monthlyQuota,
		now:    time.Now,
	}
}

// Prices exposes the price table for callers doing their own cost math.
func (s *Service) Prices() PriceTable {
	return s.prices
}

// Balance returns the latest balance snapshot, through a short-lived cache.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	if s.cache != nil {
		if balance, ok, err := s.cache.GetBalance(ctx, userID); err == nil && ok {
			return balance, nil
		}
	}

	balance, err := s.ledger.GetLatestBalance(ctx, userID)
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		_ = s.cache.SetBalance(ctx, userID, balance, balanceCacheTTL)
	}
	return balance, nil
}

// MonthlyUsage sums deduction magnitudes since the first instant of the
// current calendar month, UTC.
func (s *Service) MonthlyUsage(ctx context.Context, userID uuid.UUID) (int, error) {
	now := s.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return s.ledger.SumDeductionsSince(ctx, userID, monthStart)
}

// Summarize builds the display view: balance, month-to-date usage and the
// free/paid split.
func (s *Service) Summarize(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	used, err := s.MonthlyUsage(ctx, userID)
	if err != nil {
		return nil, err
	}

	free := FreeRemaining(s.quota, used)
	return &Summary{
		Balance:       balance,
		MonthlyUsed:   used,
		FreeQuota:     s.quota,
		FreeRemaining: free,
		PaidPortion:   PaidPortion(balance, free),
	}, nil
}

// Affordable checks the cached balance against the operation cost.
func (s *Service) Affordable(ctx context.Context, userID uuid.UUID, op Operation, unitCount int) (bool, error) {
	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return false, err
	}
	return s.prices.Affordable(balance, op, unitCount)
}

var _ Ledger = (store.Store)(nil)
