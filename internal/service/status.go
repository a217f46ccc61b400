package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/mmeshcher/bonus-payroll/internal/cache"
	"github.com/mmeshcher/bonus-payroll/internal/events"
	"github.com/mmeshcher/bonus-payroll/internal/model"
	"github.com/mmeshcher/bonus-payroll/internal/repository"
	"github.com/mmeshcher/bonus-payroll/internal/validation"
)

// Confirm переводит бонусы из DRAFT в CONFIRMED.
func (s *Service) Confirm(ctx context.Context, in validation.StatusChange, actor string) ([]model.Bonus, error) {
	res := s.validator.Confirm(in)
	if !res.OK {
		return nil, res.Errors
	}

	from := model.BonusStatusDraft
	return s.changeStatus(ctx, repository.Transition{
		IDs:   res.Value.BonusIDs,
		From:  &from,
		To:    model.BonusStatusConfirmed,
		Actor: strPtr(actor),
	}, events.BonusConfirmed)
}

// Revert возвращает подтверждённые бонусы в DRAFT с указанием причины.
func (s *Service) Revert(ctx context.Context, in validation.StatusChange, actor string) ([]model.Bonus, error) {
	res := s.validator.Revert(in)
	if !res.OK {
		return nil, res.Errors
	}

	from := model.BonusStatusConfirmed
	return s.changeStatus(ctx, repository.Transition{
		IDs:    res.Value.BonusIDs,
		From:   &from,
		To:     model.BonusStatusDraft,
		Reason: strPtr(res.Value.Reason),
		Actor:  strPtr(actor),
	}, events.BonusReverted)
}

// UpdateStatus устанавливает статус бонусов независимо от текущего.
func (s *Service) UpdateStatus(ctx context.Context, in validation.StatusChange, actor string) ([]model.Bonus, error) {
	res := s.validator.UpdateStatus(in)
	if !res.OK {
		return nil, res.Errors
	}

	return s.changeStatus(ctx, repository.Transition{
		IDs:    res.Value.BonusIDs,
		To:     res.Value.Status,
		Reason: strPtr(res.Value.Reason),
		Actor:  strPtr(actor),
	}, events.BonusStatus)
}

// changeStatus оптимистично меняет статус закэшированных бонусов, вызывает хранилище
// и откатывает кэш, если хранилище вернуло ошибку.
func (s *Service) changeStatus(ctx context.Context, t repository.Transition, evt events.Type) ([]model.Bonus, error) {
	snaps := make([]cache.Snapshot, 0, len(t.IDs))
	for _, id := range t.IDs {
		snap, err := s.cache.Patch(ctx, bonusKey(id), func(raw []byte) ([]byte, error) {
			var b model.Bonus
			if err := json.Unmarshal(raw, &b); err != nil {
				return nil, err
			}
			b.Status = t.To
			b.StatusOrder = t.To.Order()
			return json.Marshal(b)
		})
		if err != nil {
			s.logger.Warn("optimistic cache update failed", zap.String("bonus_id", id), zap.Error(err))
			continue
		}
		snaps = append(snaps, snap)
	}

	updated, err := s.repo.ChangeStatus(ctx, t)
	if err != nil {
		if rErr := s.cache.Restore(ctx, snaps...); rErr != nil {
			s.logger.Error("cache rollback failed", zap.Error(rErr))
		}
		return nil, err
	}

	s.invalidate(ctx, cache.EntityBonus, cache.EntityComparison)

	actor := ""
	if t.Actor != nil {
		actor = *t.Actor
	}
	s.publish(ctx, evt, t.IDs, actor)
	return updated, nil
}
