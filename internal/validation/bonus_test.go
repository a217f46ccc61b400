package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/bonus-payroll/internal/model"
	"github.com/mmeshcher/bonus-payroll/internal/period"
)

const (
	userID    = "0b9a3c1e-6f4d-4f6e-9a51-1f2b3c4d5e6f"
	payrollID = "7c1d2e3f-4a5b-4c6d-8e7f-9a0b1c2d3e4f"
	bonusID1  = "11111111-2222-4333-8444-555555555555"
	bonusID2  = "66666666-7777-4888-9999-aaaaaaaaaaaa"
)

var testNow = time.Date(2026, time.October, 16, 10, 0, 0, 0, time.UTC)

func newTestValidator() *Validator {
	return New(period.NewResolver(period.FixedClock{T: testNow}, time.UTC))
}

func validCreate() BonusCreate {
	pid := payrollID
	return BonusCreate{
		Year:                2026,
		Month:               9,
		UserID:              userID,
		PayrollID:           &pid,
		PerformanceLevel:    3,
		BaseBonus:           decimal.RequireFromString("150.50"),
		PonderedTaskCount:   decimal.RequireFromString("12.5"),
		AverageTasksPerUser: decimal.RequireFromString("10"),
	}
}

func TestBonusCreate(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name      string
		mutate    func(*BonusCreate)
		wantField string
	}{
		{name: "valid", mutate: func(*BonusCreate) {}},
		{name: "performance level above 5", mutate: func(b *BonusCreate) { b.PerformanceLevel = 6 }, wantField: "performanceLevel"},
		{name: "performance level negative", mutate: func(b *BonusCreate) { b.PerformanceLevel = -1 }, wantField: "performanceLevel"},
		{name: "negative base bonus", mutate: func(b *BonusCreate) { b.BaseBonus = decimal.NewFromInt(-1) }, wantField: "baseBonus"},
		{name: "malformed user id", mutate: func(b *BonusCreate) { b.UserID = "42" }, wantField: "userId"},
		{name: "missing user id", mutate: func(b *BonusCreate) { b.UserID = "" }, wantField: "userId"},
		{name: "malformed payroll id", mutate: func(b *BonusCreate) { s := "x"; b.PayrollID = &s }, wantField: "payrollId"},
		{name: "month 13", mutate: func(b *BonusCreate) { b.Month = 13 }, wantField: "month"},
		{name: "year 1999", mutate: func(b *BonusCreate) { b.Year = 1999 }, wantField: "year"},
		{name: "future period", mutate: func(b *BonusCreate) { b.Year = 2027; b.Month = 1 }, wantField: "month"},
		{name: "older than retention", mutate: func(b *BonusCreate) { b.Year = 2024; b.Month = 9 }, wantField: "month"},
		{name: "base bonus with trailing zeros", mutate: func(b *BonusCreate) { b.BaseBonus = decimal.RequireFromString("150.500") }},
		{name: "base bonus with 3 decimals", mutate: func(b *BonusCreate) { b.BaseBonus = decimal.RequireFromString("150.505") }, wantField: "baseBonus"},
		{name: "base bonus at column limit", mutate: func(b *BonusCreate) { b.BaseBonus = decimal.New(1, 12) }, wantField: "baseBonus"},
		{name: "base bonus below column limit", mutate: func(b *BonusCreate) { b.BaseBonus = decimal.RequireFromString("999999999999.99") }},
		{name: "task count with 5 decimals", mutate: func(b *BonusCreate) { b.PonderedTaskCount = decimal.RequireFromString("1.23456") }, wantField: "ponderedTaskCount"},
		{name: "average tasks too large", mutate: func(b *BonusCreate) { b.AverageTasksPerUser = decimal.New(1, 10) }, wantField: "averageTasksPerUser"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validCreate()
			tt.mutate(&in)

			res := v.BonusCreate(in)
			if tt.wantField == "" {
				require.True(t, res.OK, "errors: %v", res.Errors)
				assert.NoError(t, res.Err())
				return
			}
			assert.False(t, res.OK)
			assert.True(t, res.Errors.Has(tt.wantField), "errors: %v", res.Errors)
			assert.Error(t, res.Err())
		})
	}
}

func TestBonusCreate_FuturePeriodMessage(t *testing.T) {
	v := newTestValidator()
	in := validCreate()
	in.Year = testNow.Year() + 1
	in.Month = 1

	res := v.BonusCreate(in)

	require.False(t, res.OK)
	assert.Equal(t, period.CreationMessages.Future, res.Errors.ToMap()["month"])
}

func TestBonusCreate_RoundTrip(t *testing.T) {
	v := newTestValidator()

	first := v.BonusCreate(validCreate())
	require.True(t, first.OK)

	second := v.BonusCreate(first.Value)
	require.True(t, second.OK)
	assert.Equal(t, first.Value, second.Value)
}

func TestBonusUpdate(t *testing.T) {
	v := newTestValidator()
	level := 7
	neg := decimal.NewFromInt(-5)
	ok := decimal.NewFromInt(5)

	assert.False(t, v.BonusUpdate(model.BonusPatch{}).OK)
	assert.True(t, v.BonusUpdate(model.BonusPatch{BaseBonus: &ok}).OK)

	res := v.BonusUpdate(model.BonusPatch{PerformanceLevel: &level, BaseBonus: &neg})
	assert.False(t, res.OK)
	assert.True(t, res.Errors.Has("performanceLevel"))
	assert.True(t, res.Errors.Has("baseBonus"))

	precise := decimal.RequireFromString("10.001")
	res = v.BonusUpdate(model.BonusPatch{BaseBonus: &precise})
	assert.False(t, res.OK)
	assert.Equal(t, "must have at most 2 decimal places", res.Errors.ToMap()["baseBonus"])
}

func TestBonusBatchCreate(t *testing.T) {
	v := newTestValidator()

	res := v.BonusBatchCreate(nil)
	assert.False(t, res.OK)
	assert.True(t, res.Errors.Has("items"))

	bad := validCreate()
	bad.PerformanceLevel = 9
	res = v.BonusBatchCreate([]BonusCreate{validCreate(), bad})
	assert.False(t, res.OK)
	assert.True(t, res.Errors.Has("items[1].performanceLevel"), "errors: %v", res.Errors)
	assert.False(t, res.Errors.Has("items[0].performanceLevel"))

	res = v.BonusBatchCreate([]BonusCreate{validCreate(), validCreate()})
	assert.True(t, res.OK)
	assert.Len(t, res.Value, 2)
}

func TestBonusBatchUpdateAndDelete(t *testing.T) {
	v := newTestValidator()
	amount := decimal.NewFromInt(10)

	res := v.BonusBatchUpdate([]model.BonusUpdate{
		{ID: bonusID1, Patch: model.BonusPatch{BaseBonus: &amount}},
		{ID: "nope", Patch: model.BonusPatch{}},
	})
	assert.False(t, res.OK)
	assert.True(t, res.Errors.Has("items[1].id"))
	assert.True(t, res.Errors.Has("items[1].patch"))

	assert.False(t, v.BonusBatchUpdate(nil).OK)

	del := v.BonusBatchDelete([]BonusRef{{ID: bonusID1}, {ID: bonusID2}})
	assert.True(t, del.OK)

	del = v.BonusBatchDelete([]BonusRef{{ID: ""}})
	assert.False(t, del.OK)
	assert.True(t, del.Errors.Has("items[0].id"))

	assert.False(t, v.BonusBatchDelete(nil).OK)
}

func TestGeneratePeriod(t *testing.T) {
	v := newTestValidator()

	assert.True(t, v.GeneratePeriod(GeneratePeriod{Year: 2026, Month: 10}).OK)

	res := v.GeneratePeriod(GeneratePeriod{Year: 2026, Month: 11})
	assert.False(t, res.OK)
	assert.Equal(t, period.GenerationMessages.Future, res.Errors.ToMap()["month"])

	res = v.GeneratePeriod(GeneratePeriod{Year: 2026, Month: 9, UserIDs: []string{userID, "bad"}})
	assert.False(t, res.OK)
	assert.True(t, res.Errors.Has("userIds[1]"))
}

func TestStatusChanges(t *testing.T) {
	v := newTestValidator()

	assert.True(t, v.Confirm(StatusChange{BonusIDs: []string{bonusID1, bonusID2}}).OK)
	assert.False(t, v.Confirm(StatusChange{}).OK)

	dup := v.Confirm(StatusChange{BonusIDs: []string{bonusID1, bonusID1}})
	assert.False(t, dup.OK)
	assert.True(t, dup.Errors.Has("bonusIds[1]"))

	short := v.Revert(StatusChange{BonusIDs: []string{bonusID1}, Reason: "  oops "})
	assert.False(t, short.OK)
	assert.True(t, short.Errors.Has("reason"))

	long := v.Revert(StatusChange{BonusIDs: []string{bonusID1}, Reason: strings.Repeat("a", 501)})
	assert.False(t, long.OK)

	ok := v.Revert(StatusChange{BonusIDs: []string{bonusID1}, Reason: "  wrong level  "})
	require.True(t, ok.OK)
	assert.Equal(t, "wrong level", ok.Value.Reason)

	assert.True(t, v.UpdateStatus(StatusChange{BonusIDs: []string{bonusID1}, Status: model.BonusStatusConfirmed}).OK)
	assert.False(t, v.UpdateStatus(StatusChange{BonusIDs: []string{bonusID1}, Status: "PAID"}).OK)

	draft := v.UpdateStatus(StatusChange{BonusIDs: []string{bonusID1}, Status: model.BonusStatusDraft})
	assert.False(t, draft.OK)
	assert.True(t, draft.Errors.Has("reason"))

	draftOK := v.UpdateStatus(StatusChange{BonusIDs: []string{bonusID1}, Status: model.BonusStatusDraft, Reason: " wrong period "})
	require.True(t, draftOK.OK)
	assert.Equal(t, "wrong period", draftOK.Value.Reason)
}

func TestPeriodCheck(t *testing.T) {
	v := newTestValidator()

	assert.True(t, v.PeriodCheck(2026, 10).IsValid)

	res := v.PeriodCheck(testNow.Year(), int(testNow.Month())-25)
	assert.False(t, res.IsValid)
	assert.Equal(t, period.CheckMessages.Retention, res.Error)
}

func TestSimulation(t *testing.T) {
	v := newTestValidator()

	assert.True(t, v.Simulation(model.SimulationRequest{Year: 2026, Month: 9}).OK)

	res := v.Simulation(model.SimulationRequest{Year: 0, Month: -1})
	assert.False(t, res.OK)
	assert.True(t, res.Errors.Has("year"))
	assert.True(t, res.Errors.Has("month"))

	res = v.Simulation(model.SimulationRequest{Year: 2026, Month: 9, PerformanceLevelOverrides: map[string]int{userID: 8}})
	assert.False(t, res.OK)
}

func TestFieldErrors(t *testing.T) {
	errs := FieldErrors{{Field: "a", Message: "first"}, {Field: "a", Message: "second"}, {Field: "b", Message: "x"}}

	assert.Equal(t, "a: first; a: second; b: x", errs.Error())
	assert.Equal(t, map[string]string{"a": "first", "b": "x"}, errs.ToMap())
}

func TestIsValidID(t *testing.T) {
	assert.True(t, IsValidID(userID))
	assert.True(t, IsValidID(strings.ToUpper(userID)))
	assert.False(t, IsValidID("{"+userID+"}"))
	assert.False(t, IsValidID(""))
	assert.False(t, IsValidID("0b9a3c1e6f4d4f6e9a511f2b3c4d5e6f"))
}

func TestPeriodRefAndID(t *testing.T) {
	v := newTestValidator()

	assert.True(t, v.PeriodRef(PeriodRef{Year: 2010, Month: 1}).OK)
	res := v.PeriodRef(PeriodRef{Year: 2100, Month: 0})
	assert.True(t, res.Errors.Has("year"))
	assert.True(t, res.Errors.Has("month"))

	assert.True(t, v.ID("id", bonusID1).OK)
	assert.True(t, v.ID("id", "x").Errors.Has("id"))
}

func TestBonusFilter(t *testing.T) {
	v := newTestValidator()

	res := v.BonusFilter(model.BonusFilter{Limit: 1000})
	require.True(t, res.OK)
	assert.Equal(t, 1, res.Value.Page)
	assert.Equal(t, model.MaxPageLimit, res.Value.Limit)

	month := 13
	user := "nope"
	status := model.BonusStatus("PAID")
	res = v.BonusFilter(model.BonusFilter{Month: &month, UserID: &user, Status: &status})
	assert.False(t, res.OK)
	assert.True(t, res.Errors.Has("month"))
	assert.True(t, res.Errors.Has("userId"))
	assert.True(t, res.Errors.Has("status"))
}
