package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/bonus-payroll/internal/model"
)

const bonusColumns = `id, year, month, user_id, payroll_id, performance_level, base_bonus,
	pondered_task_count, average_tasks_per_user, calculation_period_start, calculation_period_end,
	status, status_order, created_at, updated_at`

func scanBonus(row pgx.Row) (model.Bonus, error) {
	var (
		b      model.Bonus
		status string
	)
	err := row.Scan(
		&b.ID, &b.Year, &b.Month, &b.UserID, &b.PayrollID, &b.PerformanceLevel, &b.BaseBonus,
		&b.PonderedTaskCount, &b.AverageTasksPerUser, &b.CalculationPeriodStart, &b.CalculationPeriodEnd,
		&status, &b.StatusOrder, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return model.Bonus{}, err
	}
	b.Status = model.BonusStatus(status)
	return b, nil
}

func insertBonus(ctx context.Context, q querier, b model.Bonus) (model.Bonus, error) {
	row := q.QueryRow(ctx,
		`INSERT INTO bonuses (id, year, month, user_id, payroll_id, performance_level, base_bonus,
			pondered_task_count, average_tasks_per_user, calculation_period_start, calculation_period_end,
			status, status_order)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING `+bonusColumns,
		b.ID, b.Year, b.Month, b.UserID, b.PayrollID, b.PerformanceLevel, b.BaseBonus,
		b.PonderedTaskCount, b.AverageTasksPerUser, b.CalculationPeriodStart, b.CalculationPeriodEnd,
		string(b.Status), b.Status.Order(),
	)

	created, err := scanBonus(row)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Bonus{}, fmt.Errorf("%w: user %s, %d-%02d", ErrBonusExists, b.UserID, b.Year, b.Month)
		}
		return model.Bonus{}, fmt.Errorf("insert bonus: %w", err)
	}
	return created, nil
}

func updateBonus(ctx context.Context, q querier, id string, p model.BonusPatch) (model.Bonus, error) {
	row := q.QueryRow(ctx,
		`UPDATE bonuses SET
			payroll_id = COALESCE($2, payroll_id),
			performance_level = COALESCE($3, performance_level),
			base_bonus = COALESCE($4, base_bonus),
			pondered_task_count = COALESCE($5, pondered_task_count),
			average_tasks_per_user = COALESCE($6, average_tasks_per_user),
			updated_at = now()
		 WHERE id = $1
		 RETURNING `+bonusColumns,
		id, p.PayrollID, p.PerformanceLevel, p.BaseBonus, p.PonderedTaskCount, p.AverageTasksPerUser,
	)

	updated, err := scanBonus(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Bonus{}, ErrBonusNotFound
		}
		return model.Bonus{}, fmt.Errorf("update bonus: %w", err)
	}
	return updated, nil
}

func deleteBonus(ctx context.Context, q querier, id string) error {
	tag, err := q.Exec(ctx, `DELETE FROM bonuses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete bonus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBonusNotFound
	}
	return nil
}

// CreateBonus сохраняет новый бонус.
func (r *PostgresRepository) CreateBonus(ctx context.Context, b model.Bonus) (model.Bonus, error) {
	return insertBonus(ctx, r.pool, b)
}

// GetBonus возвращает бонус по идентификатору.
func (r *PostgresRepository) GetBonus(ctx context.Context, id string) (*model.Bonus, error) {
	b, err := scanBonus(r.pool.QueryRow(ctx, `SELECT `+bonusColumns+` FROM bonuses WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBonusNotFound
		}
		return nil, fmt.Errorf("get bonus: %w", err)
	}
	return &b, nil
}

// GetBonusByUserAndPeriod возвращает бонус пользователя за период.
func (r *PostgresRepository) GetBonusByUserAndPeriod(ctx context.Context, userID string, year, month int) (*model.Bonus, error) {
	b, err := scanBonus(r.pool.QueryRow(ctx,
		`SELECT `+bonusColumns+` FROM bonuses WHERE user_id = $1 AND year = $2 AND month = $3`,
		userID, year, month,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBonusNotFound
		}
		return nil, fmt.Errorf("get bonus by user and period: %w", err)
	}
	return &b, nil
}

// ListBonusesByPeriod возвращает все бонусы периода.
func (r *PostgresRepository) ListBonusesByPeriod(ctx context.Context, year, month int) ([]model.Bonus, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+bonusColumns+` FROM bonuses WHERE year = $1 AND month = $2 ORDER BY created_at`,
		year, month,
	)
	if err != nil {
		return nil, fmt.Errorf("select bonuses: %w", err)
	}
	return collectBonuses(rows)
}

// UpdateBonus применяет изменения к бонусу.
func (r *PostgresRepository) UpdateBonus(ctx context.Context, id string, p model.BonusPatch) (model.Bonus, error) {
	return updateBonus(ctx, r.pool, id, p)
}

// DeleteBonus удаляет бонус.
func (r *PostgresRepository) DeleteBonus(ctx context.Context, id string) error {
	return deleteBonus(ctx, r.pool, id)
}

// buildWhere собирает условие выборки и аргументы по фильтру.
func buildWhere(f model.BonusFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, strings.Replace(cond, "?", "$"+strconv.Itoa(len(args)), 1))
	}

	if f.Year != nil {
		add("year = ?", *f.Year)
	}
	if f.Month != nil {
		add("month = ?", *f.Month)
	}
	if f.UserID != nil {
		add("user_id = ?", *f.UserID)
	}
	if f.Status != nil {
		add("status = ?", string(*f.Status))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListBonuses возвращает страницу бонусов по фильтру.
func (r *PostgresRepository) ListBonuses(ctx context.Context, f model.BonusFilter) (model.BonusPage, error) {
	f = f.Normalize()
	where, args := buildWhere(f)

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bonuses`+where, args...).Scan(&total); err != nil {
		return model.BonusPage{}, fmt.Errorf("count bonuses: %w", err)
	}

	n := len(args)
	query := `SELECT ` + bonusColumns + ` FROM bonuses` + where +
		` ORDER BY year DESC, month DESC, status_order, created_at DESC` +
		` LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	args = append(args, f.Limit, (f.Page-1)*f.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return model.BonusPage{}, fmt.Errorf("select bonuses: %w", err)
	}
	bonuses, err := collectBonuses(rows)
	if err != nil {
		return model.BonusPage{}, err
	}

	return model.BonusPage{
		Data: bonuses,
		Meta: model.NewPageMeta(f.Page, f.Limit, total),
	}, nil
}

func collectBonuses(rows pgx.Rows) ([]model.Bonus, error) {
	defer rows.Close()

	res := make([]model.Bonus, 0)
	for rows.Next() {
		b, err := scanBonus(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bonus: %w", err)
		}
		res = append(res, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}
