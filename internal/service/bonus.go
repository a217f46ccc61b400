package service

import (
	"context"
	"strconv"

	"github.com/google/uuid"

	"github.com/mmeshcher/bonus-payroll/internal/cache"
	"github.com/mmeshcher/bonus-payroll/internal/events"
	"github.com/mmeshcher/bonus-payroll/internal/model"
	"github.com/mmeshcher/bonus-payroll/internal/validation"
)

func bonusKey(id string) cache.Key {
	return cache.NewKey(cache.EntityBonus, "get", map[string]string{"id": id})
}

func bonusListKey(f model.BonusFilter) cache.Key {
	params := map[string]string{
		"page":  strconv.Itoa(f.Page),
		"limit": strconv.Itoa(f.Limit),
	}
	if f.Year != nil {
		params["year"] = strconv.Itoa(*f.Year)
	}
	if f.Month != nil {
		params["month"] = strconv.Itoa(*f.Month)
	}
	if f.UserID != nil {
		params["userId"] = *f.UserID
	}
	if f.Status != nil {
		params["status"] = string(*f.Status)
	}
	return cache.NewKey(cache.EntityBonus, "list", params)
}

// newBonus строит черновик бонуса с окном расчётного периода.
func (s *Service) newBonus(in validation.BonusCreate) model.Bonus {
	w := s.validator.Periods().Window(in.Year, in.Month)
	return model.Bonus{
		ID:                     uuid.NewString(),
		Year:                   in.Year,
		Month:                  in.Month,
		UserID:                 in.UserID,
		PayrollID:              in.PayrollID,
		PerformanceLevel:       in.PerformanceLevel,
		BaseBonus:              in.BaseBonus,
		PonderedTaskCount:      in.PonderedTaskCount,
		AverageTasksPerUser:    in.AverageTasksPerUser,
		CalculationPeriodStart: w.Start,
		CalculationPeriodEnd:   w.End,
		Status:                 model.BonusStatusDraft,
		StatusOrder:            model.BonusStatusDraft.Order(),
	}
}

// CreateBonus проверяет и сохраняет новый бонус в статусе DRAFT.
func (s *Service) CreateBonus(ctx context.Context, in validation.BonusCreate, actor string) (model.Bonus, error) {
	res := s.validator.BonusCreate(in)
	if !res.OK {
		return model.Bonus{}, res.Errors
	}

	created, err := s.repo.CreateBonus(ctx, s.newBonus(res.Value))
	if err != nil {
		return model.Bonus{}, err
	}

	s.invalidate(ctx, cache.EntityBonus, cache.EntityComparison)
	s.publish(ctx, events.BonusCreated, []string{created.ID}, actor)
	return created, nil
}

// GetBonus возвращает бонус по идентификатору.
func (s *Service) GetBonus(ctx context.Context, id string) (model.Bonus, error) {
	if res := s.validator.ID("id", id); !res.OK {
		return model.Bonus{}, res.Errors
	}

	return cache.Load(ctx, s.cache, bonusKey(id), func(ctx context.Context) (model.Bonus, error) {
		b, err := s.repo.GetBonus(ctx, id)
		if err != nil {
			return model.Bonus{}, err
		}
		return *b, nil
	})
}

// ListBonuses возвращает страницу бонусов по фильтру.
func (s *Service) ListBonuses(ctx context.Context, f model.BonusFilter) (model.BonusPage, error) {
	res := s.validator.BonusFilter(f)
	if !res.OK {
		return model.BonusPage{}, res.Errors
	}
	f = res.Value

	return cache.Load(ctx, s.cache, bonusListKey(f), func(ctx context.Context) (model.BonusPage, error) {
		return s.repo.ListBonuses(ctx, f)
	})
}

// UpdateBonus применяет изменения к бонусу. Статус этим методом не меняется.
func (s *Service) UpdateBonus(ctx context.Context, id string, patch model.BonusPatch, actor string) (model.Bonus, error) {
	errs := s.validator.ID("id", id).Errors
	res := s.validator.BonusUpdate(patch)
	errs = append(errs, res.Errors...)
	if len(errs) > 0 {
		return model.Bonus{}, errs
	}

	updated, err := s.repo.UpdateBonus(ctx, id, res.Value)
	if err != nil {
		return model.Bonus{}, err
	}

	s.invalidate(ctx, cache.EntityBonus, cache.EntityComparison)
	s.publish(ctx, events.BonusUpdated, []string{id}, actor)
	return updated, nil
}

// DeleteBonus удаляет бонус.
func (s *Service) DeleteBonus(ctx context.Context, id string, actor string) error {
	if res := s.validator.ID("id", id); !res.OK {
		return res.Errors
	}

	if err := s.repo.DeleteBonus(ctx, id); err != nil {
		return err
	}

	s.invalidate(ctx, cache.EntityBonus, cache.EntityComparison)
	s.publish(ctx, events.BonusDeleted, []string{id}, actor)
	return nil
}

// BonusHistory возвращает журнал смены статуса бонуса.
func (s *Service) BonusHistory(ctx context.Context, id string) ([]model.StatusChange, error) {
	if res := s.validator.ID("id", id); !res.OK {
		return nil, res.Errors
	}
	if _, err := s.repo.GetBonus(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.StatusHistory(ctx, id)
}

// BatchCreate проверяет и сохраняет пакет бонусов. Один неверный элемент отклоняет весь пакет.
func (s *Service) BatchCreate(ctx context.Context, items []validation.BonusCreate, actor string) (model.BatchResult, error) {
	res := s.validator.BonusBatchCreate(items)
	if !res.OK {
		return model.BatchResult{}, res.Errors
	}

	bonuses := make([]model.Bonus, 0, len(res.Value))
	for _, in := range res.Value {
		bonuses = append(bonuses, s.newBonus(in))
	}

	out, err := s.repo.CreateBonuses(ctx, bonuses, s.batchMode)
	if err != nil {
		return model.BatchResult{}, err
	}

	s.invalidate(ctx, cache.EntityBonus, cache.EntityComparison)
	s.publish(ctx, events.BonusCreated, out.Succeeded, actor)
	return out, nil
}

// BatchUpdate проверяет и применяет пакет изменений.
func (s *Service) BatchUpdate(ctx context.Context, items []model.BonusUpdate, actor string) (model.BatchResult, error) {
	res := s.validator.BonusBatchUpdate(items)
	if !res.OK {
		return model.BatchResult{}, res.Errors
	}

	out, err := s.repo.UpdateBonuses(ctx, res.Value, s.batchMode)
	if err != nil {
		return model.BatchResult{}, err
	}

	s.invalidate(ctx, cache.EntityBonus, cache.EntityComparison)
	s.publish(ctx, events.BonusUpdated, out.Succeeded, actor)
	return out, nil
}

// BatchDelete проверяет и удаляет пакет бонусов.
func (s *Service) BatchDelete(ctx context.Context, items []validation.BonusRef, actor string) (model.BatchResult, error) {
	res := s.validator.BonusBatchDelete(items)
	if !res.OK {
		return model.BatchResult{}, res.Errors
	}

	ids := make([]string, 0, len(res.Value))
	for _, ref := range res.Value {
		ids = append(ids, ref.ID)
	}

	out, err := s.repo.DeleteBonuses(ctx, ids, s.batchMode)
	if err != nil {
		return model.BatchResult{}, err
	}

	s.invalidate(ctx, cache.EntityBonus, cache.EntityComparison)
	s.publish(ctx, events.BonusDeleted, out.Succeeded, actor)
	return out, nil
}
