// Package service реализует бизнес-логику сервиса бонусов и расчёта выплат.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/bonus-payroll/internal/cache"
	"github.com/mmeshcher/bonus-payroll/internal/events"
	"github.com/mmeshcher/bonus-payroll/internal/model"
	"github.com/mmeshcher/bonus-payroll/internal/payrollsys"
	"github.com/mmeshcher/bonus-payroll/internal/repository"
	"github.com/mmeshcher/bonus-payroll/internal/validation"
)

// ErrPayrollUnavailable возвращается, если внешняя система расчёта зарплаты не ответила.
var ErrPayrollUnavailable = errors.New("payroll system unavailable")

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Ping(ctx context.Context) error
	Close() error
	CreateBonus(ctx context.Context, b model.Bonus) (model.Bonus, error)
	GetBonus(ctx context.Context, id string) (*model.Bonus, error)
	GetBonusByUserAndPeriod(ctx context.Context, userID string, year, month int) (*model.Bonus, error)
	ListBonuses(ctx context.Context, f model.BonusFilter) (model.BonusPage, error)
	ListBonusesByPeriod(ctx context.Context, year, month int) ([]model.Bonus, error)
	UpdateBonus(ctx context.Context, id string, p model.BonusPatch) (model.Bonus, error)
	DeleteBonus(ctx context.Context, id string) error
	CreateBonuses(ctx context.Context, bonuses []model.Bonus, mode model.BatchMode) (model.BatchResult, error)
	UpdateBonuses(ctx context.Context, updates []model.BonusUpdate, mode model.BatchMode) (model.BatchResult, error)
	DeleteBonuses(ctx context.Context, ids []string, mode model.BatchMode) (model.BatchResult, error)
	InsertGenerated(ctx context.Context, bonuses []model.Bonus) ([]model.Bonus, []string, error)
	ChangeStatus(ctx context.Context, t repository.Transition) ([]model.Bonus, error)
	StatusHistory(ctx context.Context, bonusID string) ([]model.StatusChange, error)
}

// PayrollSystem описывает внешнюю систему расчёта зарплаты.
type PayrollSystem interface {
	GetPayrollByUserAndPeriod(ctx context.Context, userID string, year, month int) (*model.PayrollRecord, error)
	ListPayrollByPeriod(ctx context.Context, year, month, page, limit int) (*model.PayrollPage, error)
	ListAllPayrollByPeriod(ctx context.Context, year, month int) ([]model.PayrollRecord, error)
	Simulate(ctx context.Context, req model.SimulationRequest) (*model.SimulationResult, error)
}

// Options задаёт необязательные зависимости сервиса.
type Options struct {
	Cache     *cache.Cache
	Events    events.Publisher
	BatchMode model.BatchMode
	Logger    *zap.Logger
}

// Service содержит бизнес-логику сервиса бонусов.
type Service struct {
	repo      Repository
	payroll   PayrollSystem
	validator *validation.Validator
	cache     *cache.Cache
	events    events.Publisher
	batchMode model.BatchMode
	logger    *zap.Logger
}

// NewService создаёт сервис. Без кэша запросы идут напрямую, без брокера события не публикуются.
func NewService(repo Repository, payroll PayrollSystem, validator *validation.Validator, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := opts.Cache
	if c == nil {
		c = cache.New(cache.NewMemoryStore(), nil, nil)
	}
	pub := opts.Events
	if pub == nil {
		pub = events.NewNopPublisher(logger)
	}
	mode := opts.BatchMode
	if !mode.Valid() {
		mode = model.BatchModeAtomic
	}

	return &Service{
		repo:      repo,
		payroll:   payroll,
		validator: validator,
		cache:     c,
		events:    pub,
		batchMode: mode,
		logger:    logger,
	}
}

// Validator возвращает валидатор сервиса.
func (s *Service) Validator() *validation.Validator {
	return s.validator
}

// BatchMode возвращает режим атомарности пакетных операций.
func (s *Service) BatchMode() model.BatchMode {
	return s.batchMode
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	var errs []error
	if s.events != nil {
		errs = append(errs, s.events.Close())
	}
	if s.repo != nil {
		errs = append(errs, s.repo.Close())
	}
	return errors.Join(errs...)
}

// invalidate сбрасывает кэш сущностей после изменения. Ошибка кэша не прерывает операцию.
func (s *Service) invalidate(ctx context.Context, entities ...cache.Entity) {
	if err := s.cache.Invalidate(ctx, entities...); err != nil {
		s.logger.Warn("cache invalidation failed", zap.Error(err))
	}
}

// publish отправляет событие. Ошибка публикации только логируется.
func (s *Service) publish(ctx context.Context, t events.Type, ids []string, actor string) {
	if len(ids) == 0 {
		return
	}
	e := events.Event{
		Type:       t,
		BonusIDs:   ids,
		Actor:      actor,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn("event publish failed", zap.String("type", string(t)), zap.Error(err))
	}
}

// externalErr помечает ошибку внешней системы как недоступность, кроме «не найдено».
func externalErr(op string, err error) error {
	if errors.Is(err, payrollsys.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPayrollUnavailable, err)
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
