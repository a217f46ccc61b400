package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/bonus-payroll/internal/model"
)

// batchOp выполняет i-й элемент пакета и возвращает идентификатор обработанного бонуса.
type batchOp func(ctx context.Context, q querier, i int) (string, error)

// runBatch выполняет n элементов пакета в режиме mode.
func (r *PostgresRepository) runBatch(ctx context.Context, mode model.BatchMode, ids func(i int) string, n int, op batchOp) (model.BatchResult, error) {
	if mode == model.BatchModePartial {
		return runPartial(ctx, r.pool, ids, n, op), nil
	}
	return runAtomic(ctx, r.pool, ids, n, op)
}

// runAtomic выполняет пакет в одной транзакции. Первая ошибка откатывает
// весь пакет и возвращается как *ItemError.
func runAtomic(ctx context.Context, db txBeginner, ids func(i int) string, n int, op batchOp) (model.BatchResult, error) {
	var res model.BatchResult
	err := withRetry(ctx, func() error {
		res = model.BatchResult{Succeeded: make([]string, 0, n), Failed: []model.BatchFailure{}}
		return inTx(ctx, db, func(tx pgx.Tx) error {
			for i := 0; i < n; i++ {
				id, err := op(ctx, tx, i)
				if err != nil {
					return &ItemError{Index: i, ID: ids(i), Err: err}
				}
				res.Succeeded = append(res.Succeeded, id)
			}
			return nil
		})
	})
	if err != nil {
		return model.BatchResult{}, err
	}
	return res, nil
}

// runPartial выполняет каждый элемент отдельно, ошибки попадают в BatchResult.Failed.
func runPartial(ctx context.Context, q querier, ids func(i int) string, n int, op batchOp) model.BatchResult {
	res := model.BatchResult{Succeeded: make([]string, 0, n), Failed: []model.BatchFailure{}}
	for i := 0; i < n; i++ {
		id, err := op(ctx, q, i)
		if err != nil {
			res.Failed = append(res.Failed, model.BatchFailure{Index: i, ID: ids(i), Error: err.Error()})
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}
	return res
}

// CreateBonuses сохраняет пакет бонусов.
func (r *PostgresRepository) CreateBonuses(ctx context.Context, bonuses []model.Bonus, mode model.BatchMode) (model.BatchResult, error) {
	return r.runBatch(ctx, mode,
		func(i int) string { return bonuses[i].ID },
		len(bonuses),
		func(ctx context.Context, q querier, i int) (string, error) {
			b, err := insertBonus(ctx, q, bonuses[i])
			return b.ID, err
		},
	)
}

// UpdateBonuses применяет пакет изменений.
func (r *PostgresRepository) UpdateBonuses(ctx context.Context, updates []model.BonusUpdate, mode model.BatchMode) (model.BatchResult, error) {
	return r.runBatch(ctx, mode,
		func(i int) string { return updates[i].ID },
		len(updates),
		func(ctx context.Context, q querier, i int) (string, error) {
			b, err := updateBonus(ctx, q, updates[i].ID, updates[i].Patch)
			return b.ID, err
		},
	)
}

// DeleteBonuses удаляет пакет бонусов.
func (r *PostgresRepository) DeleteBonuses(ctx context.Context, ids []string, mode model.BatchMode) (model.BatchResult, error) {
	return r.runBatch(ctx, mode,
		func(i int) string { return ids[i] },
		len(ids),
		func(ctx context.Context, q querier, i int) (string, error) {
			return ids[i], deleteBonus(ctx, q, ids[i])
		},
	)
}

// InsertGenerated сохраняет сгенерированные бонусы, пропуская пользователей,
// у которых бонус за период уже есть. Возвращает созданные бонусы и пропущенных пользователей.
func (r *PostgresRepository) InsertGenerated(ctx context.Context, bonuses []model.Bonus) ([]model.Bonus, []string, error) {
	var (
		created []model.Bonus
		skipped []string
	)
	err := withRetry(ctx, func() error {
		created = make([]model.Bonus, 0, len(bonuses))
		skipped = make([]string, 0)
		return inTx(ctx, r.pool, func(tx pgx.Tx) error {
			for _, b := range bonuses {
				err := tx.QueryRow(ctx,
					`INSERT INTO bonuses (id, year, month, user_id, payroll_id, performance_level, base_bonus,
						pondered_task_count, average_tasks_per_user, calculation_period_start, calculation_period_end,
						status, status_order)
					 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
					 ON CONFLICT (user_id, year, month) DO NOTHING
					 RETURNING created_at, updated_at`,
					b.ID, b.Year, b.Month, b.UserID, b.PayrollID, b.PerformanceLevel, b.BaseBonus,
					b.PonderedTaskCount, b.AverageTasksPerUser, b.CalculationPeriodStart, b.CalculationPeriodEnd,
					string(b.Status), b.Status.Order(),
				).Scan(&b.CreatedAt, &b.UpdatedAt)
				if errors.Is(err, pgx.ErrNoRows) {
					skipped = append(skipped, b.UserID)
					continue
				}
				if err != nil {
					return fmt.Errorf("insert generated bonus: %w", err)
				}
				created = append(created, b)
			}
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return created, skipped, nil
}
