package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/bonus-payroll/internal/model"
)

func TestBuildWhere(t *testing.T) {
	year, month := 2025, 3
	user := "0b9a3c1e-6f4d-4f6e-9a51-1f2b3c4d5e6f"
	status := model.BonusStatusConfirmed

	where, args := buildWhere(model.BonusFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	where, args = buildWhere(model.BonusFilter{Year: &year, Month: &month, UserID: &user, Status: &status})
	assert.Equal(t, " WHERE year = $1 AND month = $2 AND user_id = $3 AND status = $4", where)
	assert.Equal(t, []any{2025, 3, user, "CONFIRMED"}, args)

	where, args = buildWhere(model.BonusFilter{Status: &status})
	assert.Equal(t, " WHERE status = $1", where)
	assert.Len(t, args, 1)
}

func TestWithRetry(t *testing.T) {
	saved := retryDelays
	retryDelays = []time.Duration{time.Millisecond, time.Millisecond}
	defer func() { retryDelays = saved }()

	t.Run("retries serialization failure", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return &pgconn.PgError{Code: pgerrcode.SerializationFailure}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("wrapped item error is retried", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), func() error {
			calls++
			if calls == 1 {
				return &ItemError{Index: 0, Err: &pgconn.PgError{Code: pgerrcode.DeadlockDetected}}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("gives up after all delays", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), func() error {
			calls++
			return errors.New("dial tcp: connection refused")
		})
		require.Error(t, err)
		assert.Equal(t, len(retryDelays)+1, calls)
	})

	t.Run("does not retry domain errors", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), func() error {
			calls++
			return &ItemError{Index: 2, ID: "x", Err: ErrBonusNotFound}
		})
		assert.ErrorIs(t, err, ErrBonusNotFound)
		assert.Equal(t, 1, calls)
	})
}

func TestItemError(t *testing.T) {
	err := fmt.Errorf("batch: %w", &ItemError{Index: 1, ID: "b-1", Err: ErrInvalidTransition})

	var item *ItemError
	require.True(t, errors.As(err, &item))
	assert.Equal(t, 1, item.Index)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Contains(t, err.Error(), "item 1 (b-1)")
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgerrcode.UniqueViolation})))
	assert.False(t, isUniqueViolation(errors.New("other")))
}
