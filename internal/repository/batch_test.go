package repository

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/bonus-payroll/internal/model"
)

const (
	bonusA = "aaaaaaaa-0000-4000-8000-000000000001"
	bonusB = "bbbbbbbb-0000-4000-8000-000000000002"
	bonusC = "cccccccc-0000-4000-8000-000000000003"
	bonusD = "dddddddd-0000-4000-8000-000000000004"
)

type historyRow struct {
	bonusID  string
	from, to string
	reason   *string
}

// fakeDB хранит статусы бонусов и применяет изменения транзакции только при Commit.
type fakeDB struct {
	statuses  map[string]string
	history   []historyRow
	commits   int
	rollbacks int
}

func newFakeDB(statuses map[string]string) *fakeDB {
	return &fakeDB{statuses: statuses}
}

func (db *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	return &fakeTx{db: db, statuses: maps.Clone(db.statuses)}, nil
}

type fakeTx struct {
	pgx.Tx

	db       *fakeDB
	statuses map[string]string
	history  []historyRow
	closed   bool
}

func (tx *fakeTx) Commit(context.Context) error {
	if tx.closed {
		return pgx.ErrTxClosed
	}
	tx.closed = true
	tx.db.statuses = tx.statuses
	tx.db.history = append(tx.db.history, tx.history...)
	tx.db.commits++
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	if tx.closed {
		return pgx.ErrTxClosed
	}
	tx.closed = true
	tx.db.rollbacks++
	return nil
}

func (tx *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	id, _ := args[0].(string)
	switch {
	case strings.HasPrefix(sql, "DELETE FROM bonuses"):
		if _, ok := tx.statuses[id]; !ok {
			return pgconn.NewCommandTag("DELETE 0"), nil
		}
		delete(tx.statuses, id)
		return pgconn.NewCommandTag("DELETE 1"), nil
	case strings.HasPrefix(sql, "UPDATE bonuses SET status"):
		tx.statuses[id] = args[1].(string)
		return pgconn.NewCommandTag("UPDATE 1"), nil
	case strings.HasPrefix(sql, "INSERT INTO bonus_status_history"):
		tx.history = append(tx.history, historyRow{
			bonusID: id,
			from:    args[1].(string),
			to:      args[2].(string),
			reason:  args[3].(*string),
		})
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}
	return pgconn.CommandTag{}, fmt.Errorf("unexpected exec: %s", sql)
}

func (tx *fakeTx) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	id, _ := args[0].(string)
	status, ok := tx.statuses[id]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}

	switch {
	case strings.HasPrefix(sql, "SELECT status FROM bonuses"):
		return fakeRow{values: []any{status}}
	case strings.HasPrefix(sql, "SELECT "+bonusColumns):
		values := make([]any, 15)
		values[0] = id
		values[11] = status
		values[12] = model.BonusStatus(status).Order()
		return fakeRow{values: values}
	}
	return fakeRow{err: fmt.Errorf("unexpected query: %s", sql)}
}

type fakeRow struct {
	values []any
	err    error
}

// Scan присваивает значения по указателям; nil оставляет поле нулевым.
func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: %d values into %d destinations", len(r.values), len(dest))
	}
	for i, v := range r.values {
		if v == nil {
			continue
		}
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(v))
	}
	return nil
}

func deleteOp(ids []string) (func(i int) string, batchOp) {
	return func(i int) string { return ids[i] },
		func(ctx context.Context, q querier, i int) (string, error) {
			return ids[i], deleteBonus(ctx, q, ids[i])
		}
}

func TestRunAtomic(t *testing.T) {
	tests := []struct {
		name          string
		ids           []string
		wantErr       bool
		wantIndex     int
		wantID        string
		wantSucceeded []string
		wantLeft      []string
	}{
		{
			name:          "all items succeed",
			ids:           []string{bonusA, bonusC},
			wantSucceeded: []string{bonusA, bonusC},
			wantLeft:      []string{},
		},
		{
			name:      "first failure rolls back the batch",
			ids:       []string{bonusA, bonusB, bonusC},
			wantErr:   true,
			wantIndex: 1,
			wantID:    bonusB,
			wantLeft:  []string{bonusA, bonusC},
		},
		{
			name:      "failure on the first item",
			ids:       []string{bonusD, bonusA},
			wantErr:   true,
			wantIndex: 0,
			wantID:    bonusD,
			wantLeft:  []string{bonusA, bonusC},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newFakeDB(map[string]string{bonusA: "DRAFT", bonusC: "DRAFT"})
			ids, op := deleteOp(tt.ids)

			res, err := runAtomic(context.Background(), db, ids, len(tt.ids), op)

			if tt.wantErr {
				var item *ItemError
				require.True(t, errors.As(err, &item), "err = %v", err)
				assert.Equal(t, tt.wantIndex, item.Index)
				assert.Equal(t, tt.wantID, item.ID)
				assert.ErrorIs(t, err, ErrBonusNotFound)
				assert.Equal(t, model.BatchResult{}, res)
				assert.Zero(t, db.commits)
				assert.Equal(t, 1, db.rollbacks)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantSucceeded, res.Succeeded)
				assert.Empty(t, res.Failed)
				assert.Equal(t, 1, db.commits)
			}

			left := make([]string, 0, len(db.statuses))
			for _, id := range []string{bonusA, bonusB, bonusC, bonusD} {
				if _, ok := db.statuses[id]; ok {
					left = append(left, id)
				}
			}
			assert.Equal(t, tt.wantLeft, left)
		})
	}
}

func TestRunAtomic_RetryStartsClean(t *testing.T) {
	saved := retryDelays
	retryDelays = []time.Duration{time.Millisecond}
	defer func() { retryDelays = saved }()

	db := newFakeDB(map[string]string{bonusA: "DRAFT", bonusC: "DRAFT"})
	ids := []string{bonusA, bonusC}
	attempts := 0
	op := func(ctx context.Context, q querier, i int) (string, error) {
		if i == 1 {
			attempts++
			if attempts == 1 {
				return "", &pgconn.PgError{Code: pgerrcode.SerializationFailure}
			}
		}
		return ids[i], deleteBonus(ctx, q, ids[i])
	}

	res, err := runAtomic(context.Background(), db, func(i int) string { return ids[i] }, len(ids), op)

	require.NoError(t, err)
	assert.Equal(t, []string{bonusA, bonusC}, res.Succeeded)
	assert.Equal(t, 1, db.rollbacks)
	assert.Equal(t, 1, db.commits)
	assert.Empty(t, db.statuses)
}

func TestRunPartial(t *testing.T) {
	db := newFakeDB(map[string]string{bonusA: "DRAFT", bonusC: "DRAFT"})
	tx, err := db.Begin(context.Background())
	require.NoError(t, err)

	batch := []string{bonusA, bonusB, bonusC, bonusD}
	ids, op := deleteOp(batch)

	res := runPartial(context.Background(), tx, ids, len(batch), op)

	assert.Equal(t, []string{bonusA, bonusC}, res.Succeeded)
	require.Len(t, res.Failed, 2)
	assert.Equal(t, 1, res.Failed[0].Index)
	assert.Equal(t, bonusB, res.Failed[0].ID)
	assert.Equal(t, 3, res.Failed[1].Index)
	assert.Equal(t, bonusD, res.Failed[1].ID)
	assert.Equal(t, ErrBonusNotFound.Error(), res.Failed[0].Error)
}

func TestRunPartial_AllSucceed(t *testing.T) {
	db := newFakeDB(map[string]string{bonusA: "DRAFT"})
	tx, err := db.Begin(context.Background())
	require.NoError(t, err)

	ids, op := deleteOp([]string{bonusA})
	res := runPartial(context.Background(), tx, ids, 1, op)

	assert.Equal(t, []string{bonusA}, res.Succeeded)
	assert.NotNil(t, res.Failed)
	assert.Empty(t, res.Failed)
}

func statusPtr(s model.BonusStatus) *model.BonusStatus { return &s }

func TestChangeStatus(t *testing.T) {
	reason := "wrong level"
	draft := model.BonusStatusDraft

	tests := []struct {
		name        string
		statuses    map[string]string
		transition  Transition
		wantErr     error
		wantIndex   int
		wantHistory int
		wantFinal   map[string]string
	}{
		{
			name:        "confirm drafts",
			statuses:    map[string]string{bonusA: "DRAFT", bonusC: "DRAFT"},
			transition:  Transition{IDs: []string{bonusA, bonusC}, From: &draft, To: model.BonusStatusConfirmed},
			wantHistory: 2,
			wantFinal:   map[string]string{bonusA: "CONFIRMED", bonusC: "CONFIRMED"},
		},
		{
			name:       "confirm of a confirmed bonus",
			statuses:   map[string]string{bonusA: "CONFIRMED"},
			transition: Transition{IDs: []string{bonusA}, From: &draft, To: model.BonusStatusConfirmed},
			wantErr:    ErrInvalidTransition,
			wantIndex:  0,
			wantFinal:  map[string]string{bonusA: "CONFIRMED"},
		},
		{
			name:       "second item fails and first is rolled back",
			statuses:   map[string]string{bonusA: "DRAFT", bonusC: "CONFIRMED"},
			transition: Transition{IDs: []string{bonusA, bonusC}, From: &draft, To: model.BonusStatusConfirmed},
			wantErr:    ErrInvalidTransition,
			wantIndex:  1,
			wantFinal:  map[string]string{bonusA: "DRAFT", bonusC: "CONFIRMED"},
		},
		{
			name:     "revert of a draft",
			statuses: map[string]string{bonusA: "DRAFT"},
			transition: Transition{
				IDs: []string{bonusA}, From: statusPtr(model.BonusStatusConfirmed), To: model.BonusStatusDraft, Reason: &reason,
			},
			wantErr:   ErrInvalidTransition,
			wantIndex: 0,
			wantFinal: map[string]string{bonusA: "DRAFT"},
		},
		{
			name:       "missing bonus",
			statuses:   map[string]string{bonusA: "DRAFT"},
			transition: Transition{IDs: []string{bonusA, bonusB}, To: model.BonusStatusConfirmed},
			wantErr:    ErrBonusNotFound,
			wantIndex:  1,
			wantFinal:  map[string]string{bonusA: "DRAFT"},
		},
		{
			name:        "set status skips bonuses already in target status",
			statuses:    map[string]string{bonusA: "CONFIRMED", bonusC: "DRAFT"},
			transition:  Transition{IDs: []string{bonusA, bonusC}, To: model.BonusStatusConfirmed},
			wantHistory: 1,
			wantFinal:   map[string]string{bonusA: "CONFIRMED", bonusC: "CONFIRMED"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newFakeDB(tt.statuses)

			updated, err := changeStatus(context.Background(), db, tt.transition)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				var item *ItemError
				require.True(t, errors.As(err, &item), "err = %v", err)
				assert.Equal(t, tt.wantIndex, item.Index)
				assert.Equal(t, tt.transition.IDs[tt.wantIndex], item.ID)
				assert.Nil(t, updated)
				assert.Zero(t, db.commits)
			} else {
				require.NoError(t, err)
				require.Len(t, updated, len(tt.transition.IDs))
				for i, b := range updated {
					assert.Equal(t, tt.transition.IDs[i], b.ID)
					assert.Equal(t, tt.transition.To, b.Status)
					assert.Equal(t, tt.transition.To.Order(), b.StatusOrder)
				}
			}
			assert.Len(t, db.history, tt.wantHistory)
			assert.Equal(t, tt.wantFinal, db.statuses)
		})
	}
}

func TestChangeStatus_RecordsReason(t *testing.T) {
	reason := "level recalculated"
	actor := "admin"
	db := newFakeDB(map[string]string{bonusA: "CONFIRMED"})

	_, err := changeStatus(context.Background(), db, Transition{
		IDs:    []string{bonusA},
		From:   statusPtr(model.BonusStatusConfirmed),
		To:     model.BonusStatusDraft,
		Reason: &reason,
		Actor:  &actor,
	})

	require.NoError(t, err)
	require.Len(t, db.history, 1)
	h := db.history[0]
	assert.Equal(t, bonusA, h.bonusID)
	assert.Equal(t, "CONFIRMED", h.from)
	assert.Equal(t, "DRAFT", h.to)
	require.NotNil(t, h.reason)
	assert.Equal(t, reason, *h.reason)
}
