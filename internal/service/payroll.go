package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/bonus-payroll/internal/cache"
	"github.com/mmeshcher/bonus-payroll/internal/events"
	"github.com/mmeshcher/bonus-payroll/internal/model"
	"github.com/mmeshcher/bonus-payroll/internal/payroll"
	"github.com/mmeshcher/bonus-payroll/internal/period"
	"github.com/mmeshcher/bonus-payroll/internal/repository"
	"github.com/mmeshcher/bonus-payroll/internal/validation"
)

func periodParams(year, month int) map[string]string {
	return map[string]string{"year": strconv.Itoa(year), "month": strconv.Itoa(month)}
}

// PeriodWindow возвращает окно расчётного периода.
func (s *Service) PeriodWindow(year, month int) (period.Window, error) {
	res := s.validator.PeriodRef(validation.PeriodRef{Year: year, Month: month})
	if !res.OK {
		return period.Window{}, res.Errors
	}
	return s.validator.Periods().Window(year, month), nil
}

// CheckPeriod выполняет «безопасную» проверку периода.
func (s *Service) CheckPeriod(year, month int) period.CheckResult {
	return s.validator.PeriodCheck(year, month)
}

// attachBonuses дополняет начисления локальными бонусами пользователей за период.
func (s *Service) attachBonuses(ctx context.Context, year, month int, records []model.PayrollRecord) ([]model.PayrollRecord, error) {
	bonuses, err := s.repo.ListBonusesByPeriod(ctx, year, month)
	if err != nil {
		return nil, err
	}
	byUser := make(map[string]model.Bonus, len(bonuses))
	for _, b := range bonuses {
		byUser[b.UserID] = b
	}

	out := make([]model.PayrollRecord, len(records))
	for i, r := range records {
		if r.Bonus == nil {
			if b, ok := byUser[r.UserID]; ok {
				b := b
				r.Bonus = &b
			}
		}
		out[i] = r
	}
	return out, nil
}

// GetPayroll возвращает начисление пользователя за период вместе с его бонусом.
func (s *Service) GetPayroll(ctx context.Context, userID string, year, month int) (model.PayrollRecord, error) {
	errs := s.validator.ID("userId", userID).Errors
	errs = append(errs, s.validator.PeriodRef(validation.PeriodRef{Year: year, Month: month}).Errors...)
	if len(errs) > 0 {
		return model.PayrollRecord{}, errs
	}

	params := periodParams(year, month)
	params["userId"] = userID
	record, err := cache.Load(ctx, s.cache, cache.NewKey(cache.EntityPayroll, "user", params),
		func(ctx context.Context) (model.PayrollRecord, error) {
			r, err := s.payroll.GetPayrollByUserAndPeriod(ctx, userID, year, month)
			if err != nil {
				return model.PayrollRecord{}, externalErr("get payroll", err)
			}
			return *r, nil
		})
	if err != nil {
		return model.PayrollRecord{}, err
	}

	if record.Bonus == nil {
		b, err := s.repo.GetBonusByUserAndPeriod(ctx, userID, year, month)
		switch {
		case err == nil:
			record.Bonus = b
		case !errors.Is(err, repository.ErrBonusNotFound):
			return model.PayrollRecord{}, err
		}
	}
	return record, nil
}

// ListPayroll возвращает страницу начислений за период вместе с бонусами.
func (s *Service) ListPayroll(ctx context.Context, year, month, page, limit int) (model.PayrollPage, error) {
	res := s.validator.PeriodRef(validation.PeriodRef{Year: year, Month: month})
	if !res.OK {
		return model.PayrollPage{}, res.Errors
	}
	f := model.BonusFilter{Page: page, Limit: limit}.Normalize()

	params := periodParams(year, month)
	params["page"] = strconv.Itoa(f.Page)
	params["limit"] = strconv.Itoa(f.Limit)
	result, err := cache.Load(ctx, s.cache, cache.NewKey(cache.EntityPayroll, "period", params),
		func(ctx context.Context) (model.PayrollPage, error) {
			p, err := s.payroll.ListPayrollByPeriod(ctx, year, month, f.Page, f.Limit)
			if err != nil {
				return model.PayrollPage{}, externalErr("list payroll", err)
			}
			return *p, nil
		})
	if err != nil {
		return model.PayrollPage{}, err
	}

	result.Data, err = s.attachBonuses(ctx, year, month, result.Data)
	if err != nil {
		return model.PayrollPage{}, err
	}
	return result, nil
}

// loadPeriod загружает все начисления периода с бонусами. Ошибка означает, что данные не получены.
func (s *Service) loadPeriod(ctx context.Context, year, month int) (payroll.PeriodRecords, error) {
	records, err := cache.Load(ctx, s.cache, cache.NewKey(cache.EntityPayroll, "period-all", periodParams(year, month)),
		func(ctx context.Context) ([]model.PayrollRecord, error) {
			r, err := s.payroll.ListAllPayrollByPeriod(ctx, year, month)
			if err != nil {
				return nil, externalErr("list all payroll", err)
			}
			return r, nil
		})
	if err != nil {
		return payroll.PeriodRecords{Year: year, Month: month}, err
	}

	records, err = s.attachBonuses(ctx, year, month, records)
	if err != nil {
		return payroll.PeriodRecords{Year: year, Month: month}, err
	}
	return payroll.PeriodRecords{Year: year, Month: month, Records: records, Loaded: true}, nil
}

// ComparePayroll сравнивает суммы выплат периода с периодом сравнения.
func (s *Service) ComparePayroll(ctx context.Context, year, month int, mode payroll.Mode) (payroll.Comparison, error) {
	res := s.validator.PeriodRef(validation.PeriodRef{Year: year, Month: month})
	if !res.OK {
		return payroll.Comparison{}, res.Errors
	}

	params := periodParams(year, month)
	params["mode"] = string(mode)
	return cache.Load(ctx, s.cache, cache.NewKey(cache.EntityComparison, "compare", params),
		func(ctx context.Context) (payroll.Comparison, error) {
			cy, cm := payroll.ComparePeriod(year, month, mode)

			var current, compare payroll.PeriodRecords
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				var err error
				current, err = s.loadPeriod(gctx, year, month)
				return err
			})
			g.Go(func() error {
				var err error
				compare, err = s.loadPeriod(gctx, cy, cm)
				return err
			})
			if err := g.Wait(); err != nil {
				s.logger.Warn("comparison data not loaded",
					zap.Int("year", year), zap.Int("month", month), zap.String("mode", string(mode)), zap.Error(err))
				return payroll.Comparison{}, fmt.Errorf("%w: %w", payroll.ErrComparisonDataUnavailable, err)
			}

			return payroll.Compare(mode, current, compare)
		})
}

// SimulateBonuses проверяет параметры и запускает расчёт «что если» во внешней системе.
func (s *Service) SimulateBonuses(ctx context.Context, req model.SimulationRequest) (model.SimulationResult, error) {
	res := s.validator.Simulation(req)
	if !res.OK {
		return model.SimulationResult{}, res.Errors
	}

	raw, err := json.Marshal(res.Value)
	if err != nil {
		return model.SimulationResult{}, fmt.Errorf("encode simulation request: %w", err)
	}
	key := cache.NewKey(cache.EntitySimulation, "simulate", map[string]string{"request": string(raw)})

	return cache.Load(ctx, s.cache, key, func(ctx context.Context) (model.SimulationResult, error) {
		r, err := s.payroll.Simulate(ctx, res.Value)
		if err != nil {
			return model.SimulationResult{}, externalErr("simulate", err)
		}
		return *r, nil
	})
}

// GeneratePeriod рассчитывает бонусы периода во внешней системе и сохраняет их как черновики
// для пользователей, у которых бонуса за период ещё нет.
func (s *Service) GeneratePeriod(ctx context.Context, in validation.GeneratePeriod, actor string) (model.GenerationResult, error) {
	res := s.validator.GeneratePeriod(in)
	if !res.OK {
		return model.GenerationResult{}, res.Errors
	}
	in = res.Value

	sim, err := s.payroll.Simulate(ctx, model.SimulationRequest{Year: in.Year, Month: in.Month, UserIDs: in.UserIDs})
	if err != nil {
		return model.GenerationResult{}, externalErr("simulate period", err)
	}

	result := model.GenerationResult{Year: in.Year, Month: in.Month, Created: []string{}, Skipped: []string{}}
	bonuses := make([]model.Bonus, 0, len(sim.Bonuses))
	for _, sb := range sim.Bonuses {
		create := s.validator.BonusCreate(validation.BonusCreate{
			Year:                in.Year,
			Month:               in.Month,
			UserID:              sb.UserID,
			PayrollID:           sb.PayrollID,
			PerformanceLevel:    sb.PerformanceLevel,
			BaseBonus:           sb.BaseBonus,
			PonderedTaskCount:   sb.PonderedTaskCount,
			AverageTasksPerUser: sb.AverageTasksPerUser,
		})
		if !create.OK {
			s.logger.Warn("simulated bonus rejected", zap.String("user_id", sb.UserID), zap.Error(create.Err()))
			result.Skipped = append(result.Skipped, sb.UserID)
			continue
		}
		bonuses = append(bonuses, s.newBonus(create.Value))
	}

	created, skipped, err := s.repo.InsertGenerated(ctx, bonuses)
	if err != nil {
		return model.GenerationResult{}, err
	}
	for _, b := range created {
		result.Created = append(result.Created, b.ID)
	}
	result.Skipped = append(result.Skipped, skipped...)

	if len(created) > 0 {
		s.invalidate(ctx, cache.EntityBonus, cache.EntityComparison)
	}
	s.publish(ctx, events.BonusGenerated, result.Created, actor)

	s.logger.Info("period generated",
		zap.Int("year", in.Year),
		zap.Int("month", in.Month),
		zap.Int("created", len(result.Created)),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

// GenerateLastClosed генерирует бонусы последнего завершившегося периода.
func (s *Service) GenerateLastClosed(ctx context.Context) (model.GenerationResult, error) {
	y, m := s.validator.Periods().LastClosed()
	return s.GeneratePeriod(ctx, validation.GeneratePeriod{Year: y, Month: m}, "scheduler")
}
