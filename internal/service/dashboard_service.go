package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/feldbach-gym/keyboard-loan-api/internal/dto"
	"github.com/feldbach-gym/keyboard-loan-api/internal/models"
	appErrors "github.com/feldbach-gym/keyboard-loan-api/pkg/errors"
)

const dashboardCacheKey = "dashboard:overview"

type dashboardYearReader interface {
	FindActive(ctx context.Context) (*models.SchoolYear, error)
}

type dashboardKeyboardReader interface {
	CountByStatus(ctx context.Context) (map[models.KeyboardStatus]int, error)
	CountAvailable(ctx context.Context) (int, error)
}

type dashboardLoanReader interface {
	LedgerCounts(ctx context.Context, schoolYearID string) (active, returned, feePaid int, err error)
}

type dashboardClassReader interface {
	List(ctx context.Context, filter models.SchoolClassFilter) ([]models.ClassSummary, int, error)
}

// DashboardService assembles the landing-page overview. Results are
// cached in Redis because the per-class counters fan out into several
// aggregate queries.
type DashboardService struct {
	years     dashboardYearReader
	keyboards dashboardKeyboardReader
	loans     dashboardLoanReader
	classes   dashboardClassReader
	cache     *redis.Client
	metrics   *MetricsService
	enabled   bool
	cacheTTL  time.Duration
	logger    *zap.Logger
}

// NewDashboardService creates a new dashboard service instance.
func NewDashboardService(
	years dashboardYearReader,
	keyboards dashboardKeyboardReader,
	loans dashboardLoanReader,
	classes dashboardClassReader,
	cache *redis.Client,
	metrics *MetricsService,
	enabled bool,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *DashboardService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		years:     years,
		keyboards: keyboards,
		loans:     loans,
		classes:   classes,
		cache:     cache,
		metrics:   metrics,
		enabled:   enabled,
		cacheTTL:  cacheTTL,
		logger:    logger,
	}
}

// Overview returns the aggregated statistics for the active school year.
func (s *DashboardService) Overview(ctx context.Context) (*dto.DashboardResponse, error) {
	if !s.enabled {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "dashboard is disabled")
	}

	if cached := s.fromCache(ctx); cached != nil {
		s.metrics.RecordCacheOperation(true)
		return cached, nil
	}
	s.metrics.RecordCacheOperation(false)

	response, err := s.build(ctx)
	if err != nil {
		return nil, err
	}

	s.store(ctx, response)
	return response, nil
}

// Invalidate drops the cached overview. Call after any write that
// changes the counters.
func (s *DashboardService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, dashboardCacheKey).Err(); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
	}
}

func (s *DashboardService) build(ctx context.Context) (*dto.DashboardResponse, error) {
	year, err := s.years.FindActive(ctx)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no active school year")
	}

	byStatus, err := s.keyboards.CountByStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count keyboards")
	}
	available, err := s.keyboards.CountAvailable(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count available keyboards")
	}

	active, returned, feePaid, err := s.loans.LedgerCounts(ctx, year.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count loans")
	}

	classes, _, err := s.classes.List(ctx, models.SchoolClassFilter{SchoolYearID: year.ID, PageSize: 100})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}

	total := 0
	for _, count := range byStatus {
		total += count
	}

	response := &dto.DashboardResponse{
		SchoolYear: year.Name,
		Keyboards: dto.KeyboardSection{
			Total:     total,
			Available: available,
			Loaned:    byStatus[models.StatusLoaned],
			InRepair:  byStatus[models.StatusInRepair],
			Missing:   byStatus[models.StatusMissing],
		},
		Loans: dto.LoanSection{
			Active:   active,
			Returned: returned,
			FeePaid:  feePaid,
			FeeOpen:  active - feePaid,
		},
		Classes: make([]dto.ClassLoanSummary, 0, len(classes)),
	}
	for _, class := range classes {
		response.Classes = append(response.Classes, dto.ClassLoanSummary{
			ClassID:      class.ID,
			ClassName:    class.Name,
			Grade:        class.Grade,
			StudentCount: class.StudentCount,
			LoanCount:    class.LoanCount,
			PaidCount:    class.PaidCount,
		})
	}

	s.metrics.SetLedgerGauges(active, byStatus[models.StatusLoaned])

	return response, nil
}

func (s *DashboardService) fromCache(ctx context.Context) *dto.DashboardResponse {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, dashboardCacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("dashboard cache read failed", zap.Error(err))
		}
		return nil
	}
	var response dto.DashboardResponse
	if err := json.Unmarshal(raw, &response); err != nil {
		return nil
	}
	return &response
}

func (s *DashboardService) store(ctx context.Context, response *dto.DashboardResponse) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(response)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, dashboardCacheKey, raw, s.cacheTTL).Err(); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.Error(err))
	}
}
