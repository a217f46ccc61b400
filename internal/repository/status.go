package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/bonus-payroll/internal/model"
)

// Transition описывает смену статуса группы бонусов.
type Transition struct {
	IDs []string
	// Требуемый текущий статус. Nil допускает любой.
	From   *model.BonusStatus
	To     model.BonusStatus
	Reason *string
	Actor  *string
}

// ChangeStatus атомарно меняет статус бонусов и пишет журнал смены статуса.
// Бонус, который уже находится в целевом статусе, при From == nil пропускается без записи в журнал.
func (r *PostgresRepository) ChangeStatus(ctx context.Context, t Transition) ([]model.Bonus, error) {
	return changeStatus(ctx, r.pool, t)
}

func changeStatus(ctx context.Context, db txBeginner, t Transition) ([]model.Bonus, error) {
	var updated []model.Bonus
	err := withRetry(ctx, func() error {
		updated = make([]model.Bonus, 0, len(t.IDs))
		return inTx(ctx, db, func(tx pgx.Tx) error {
			for i, id := range t.IDs {
				b, err := changeOne(ctx, tx, id, t)
				if err != nil {
					return &ItemError{Index: i, ID: id, Err: err}
				}
				updated = append(updated, b)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func changeOne(ctx context.Context, tx querier, id string, t Transition) (model.Bonus, error) {
	var current string
	err := tx.QueryRow(ctx, `SELECT status FROM bonuses WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Bonus{}, ErrBonusNotFound
		}
		return model.Bonus{}, fmt.Errorf("lock bonus: %w", err)
	}

	from := model.BonusStatus(current)
	if t.From != nil && from != *t.From {
		return model.Bonus{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, t.To)
	}

	if from != t.To {
		_, err = tx.Exec(ctx,
			`UPDATE bonuses SET status = $2, status_order = $3, updated_at = now() WHERE id = $1`,
			id, string(t.To), t.To.Order(),
		)
		if err != nil {
			return model.Bonus{}, fmt.Errorf("update status: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO bonus_status_history (bonus_id, from_status, to_status, reason, changed_by)
			 VALUES ($1, $2, $3, $4, $5)`,
			id, string(from), string(t.To), t.Reason, t.Actor,
		)
		if err != nil {
			return model.Bonus{}, fmt.Errorf("insert status history: %w", err)
		}
	}

	b, err := scanBonus(tx.QueryRow(ctx, `SELECT `+bonusColumns+` FROM bonuses WHERE id = $1`, id))
	if err != nil {
		return model.Bonus{}, fmt.Errorf("reload bonus: %w", err)
	}
	return b, nil
}

// StatusHistory возвращает журнал смены статуса бонуса в хронологическом порядке.
func (r *PostgresRepository) StatusHistory(ctx context.Context, bonusID string) ([]model.StatusChange, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT bonus_id, from_status, to_status, reason, changed_by, changed_at
		 FROM bonus_status_history
		 WHERE bonus_id = $1
		 ORDER BY changed_at, id`,
		bonusID,
	)
	if err != nil {
		return nil, fmt.Errorf("select status history: %w", err)
	}
	defer rows.Close()

	res := make([]model.StatusChange, 0)
	for rows.Next() {
		var (
			c        model.StatusChange
			from, to string
		)
		if err := rows.Scan(&c.BonusID, &from, &to, &c.Reason, &c.ChangedBy, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan status change: %w", err)
		}
		c.From = model.BonusStatus(from)
		c.To = model.BonusStatus(to)
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}
