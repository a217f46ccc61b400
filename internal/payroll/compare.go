// Package payroll сравнивает суммы выплат двух периодов.
package payroll

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bonus-payroll/internal/model"
	"github.com/mmeshcher/bonus-payroll/internal/period"
)

// ErrComparisonDataUnavailable возвращается, если данные одного из периодов ещё не загружены.
var ErrComparisonDataUnavailable = errors.New("comparison data unavailable")

// Mode определяет, с каким периодом сравнивается текущий.
type Mode string

const (
	ModePreviousMonth     Mode = "previous_month"
	ModeSameMonthLastYear Mode = "same_month_last_year"
)

// ParseMode разбирает режим сравнения. Пустая строка означает сравнение с предыдущим месяцем.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModePreviousMonth:
		return ModePreviousMonth, nil
	case ModeSameMonthLastYear:
		return ModeSameMonthLastYear, nil
	default:
		return "", fmt.Errorf("unknown comparison mode %q", s)
	}
}

// ComparePeriod возвращает период сравнения для текущего периода в заданном режиме.
func ComparePeriod(year, month int, mode Mode) (int, int) {
	if mode == ModeSameMonthLastYear {
		return period.SameMonthLastYear(year, month)
	}
	return period.Previous(year, month)
}

// PeriodRecords содержит начисления одного периода. Loaded=false означает, что данные не получены.
type PeriodRecords struct {
	Year    int
	Month   int
	Records []model.PayrollRecord
	Loaded  bool
}

// Comparison содержит результат сравнения двух периодов.
type Comparison struct {
	Mode             Mode            `json:"mode"`
	CurrentYear      int             `json:"currentYear"`
	CurrentMonth     int             `json:"currentMonth"`
	CompareYear      int             `json:"compareYear"`
	CompareMonth     int             `json:"compareMonth"`
	CurrentTotal     decimal.Decimal `json:"currentTotal"`
	CompareTotal     decimal.Decimal `json:"compareTotal"`
	Difference       decimal.Decimal `json:"difference"`
	PercentageChange decimal.Decimal `json:"percentageChange"`
	IsIncrease       bool            `json:"isIncrease"`
}

// Total суммирует базовое вознаграждение и базовый бонус по всем начислениям.
func Total(records []model.PayrollRecord) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.BaseRemuneration)
		if r.Bonus != nil {
			total = total.Add(r.Bonus.BaseBonus)
		}
	}
	return total
}

// Compare вычисляет разницу и процент изменения между текущим периодом и периодом сравнения.
func Compare(mode Mode, current, compare PeriodRecords) (Comparison, error) {
	if !current.Loaded || !compare.Loaded {
		return Comparison{}, ErrComparisonDataUnavailable
	}

	currentTotal := Total(current.Records)
	compareTotal := Total(compare.Records)
	diff := currentTotal.Sub(compareTotal)

	pct := decimal.Zero
	if compareTotal.IsPositive() {
		pct = diff.Div(compareTotal).Mul(decimal.NewFromInt(100)).Round(2)
	}

	return Comparison{
		Mode:             mode,
		CurrentYear:      current.Year,
		CurrentMonth:     current.Month,
		CompareYear:      compare.Year,
		CompareMonth:     compare.Month,
		CurrentTotal:     currentTotal,
		CompareTotal:     compareTotal,
		Difference:       diff,
		PercentageChange: pct,
		IsIncrease:       diff.IsPositive(),
	}, nil
}
