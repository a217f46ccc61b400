package period

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedResolver(t time.Time) *Resolver {
	return NewResolver(FixedClock{T: t}, time.UTC)
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		year      int
		month     int
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "march",
			year:      2025,
			month:     3,
			wantStart: time.Date(2025, time.February, 26, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, time.March, 25, 23, 59, 59, 999000000, time.UTC),
		},
		{
			name:      "january rolls over to december",
			year:      2025,
			month:     1,
			wantStart: time.Date(2024, time.December, 26, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, time.January, 25, 23, 59, 59, 999000000, time.UTC),
		},
		{
			name:      "december",
			year:      2024,
			month:     12,
			wantStart: time.Date(2024, time.November, 26, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2024, time.December, 25, 23, 59, 59, 999000000, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Resolve(tt.year, tt.month, time.UTC)
			assert.True(t, tt.wantStart.Equal(w.Start), "start = %s", w.Start)
			assert.True(t, tt.wantEnd.Equal(w.End), "end = %s", w.End)
		})
	}
}

func TestResolve_AllMonths(t *testing.T) {
	for month := 1; month <= 12; month++ {
		w := Resolve(2030, month, time.UTC)

		assert.Equal(t, EndDay, w.End.Day())
		assert.Equal(t, time.Month(month), w.End.Month())
		assert.Equal(t, 23, w.End.Hour())
		assert.Equal(t, 999*time.Millisecond, time.Duration(w.End.Nanosecond()))

		assert.Equal(t, StartDay, w.Start.Day())
		prevYear, prevMonth := Previous(2030, month)
		assert.Equal(t, prevYear, w.Start.Year())
		assert.Equal(t, time.Month(prevMonth), w.Start.Month())
	}
}

func TestWindowContains(t *testing.T) {
	w := Resolve(2025, 3, time.UTC)

	assert.True(t, w.Contains(w.Start))
	assert.True(t, w.Contains(w.End))
	assert.False(t, w.Contains(w.End.Add(time.Millisecond)))
	assert.False(t, w.Contains(w.Start.Add(-time.Nanosecond)))
}

func TestValidate(t *testing.T) {
	now := time.Date(2026, time.October, 16, 12, 0, 0, 0, time.UTC)
	r := fixedResolver(now)

	tests := []struct {
		name    string
		year    int
		month   int
		wantErr error
	}{
		{name: "current month", year: 2026, month: 10},
		{name: "previous month", year: 2026, month: 9},
		{name: "next month", year: 2026, month: 11, wantErr: ErrFuturePeriod},
		{name: "next year", year: 2027, month: 1, wantErr: ErrFuturePeriod},
		{name: "23 months back", year: 2024, month: 11},
		{name: "first of month before cutoff", year: 2024, month: 10, wantErr: ErrRetentionExceeded},
		{name: "25 months back", year: 2024, month: 9, wantErr: ErrRetentionExceeded},
		{name: "unnormalised month 25 back", year: 2026, month: 10 - 25, wantErr: ErrRetentionExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Validate(tt.year, tt.month, CreationMessages)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)

			var perr *Error
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, "month", perr.Field)
		})
	}
}

func TestValidate_RetentionBoundaryOnFirstOfMonth(t *testing.T) {
	now := time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC)
	r := fixedResolver(now)

	assert.NoError(t, r.Validate(2024, 10, CheckMessages))
	assert.ErrorIs(t, r.Validate(2024, 9, CheckMessages), ErrRetentionExceeded)
}

func TestValidate_CallerMessages(t *testing.T) {
	r := fixedResolver(time.Date(2026, time.October, 16, 0, 0, 0, 0, time.UTC))

	err := r.Validate(2027, 1, GenerationMessages)
	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, GenerationMessages.Future, perr.Message)

	err = r.Validate(2027, 1, CreationMessages)
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, CreationMessages.Future, perr.Message)
}

func TestCheck(t *testing.T) {
	r := fixedResolver(time.Date(2026, time.October, 16, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, CheckResult{IsValid: true}, r.Check(2026, 10))

	res := r.Check(2026, 10-25)
	assert.False(t, res.IsValid)
	assert.Equal(t, CheckMessages.Retention, res.Error)

	res = r.Check(2026, 12)
	assert.False(t, res.IsValid)
	assert.Equal(t, CheckMessages.Future, res.Error)
}

func TestLastClosed(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		wantYear  int
		wantMonth int
	}{
		{name: "mid month", now: time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), wantYear: 2026, wantMonth: 9},
		{name: "on the 25th", now: time.Date(2026, 10, 25, 23, 0, 0, 0, time.UTC), wantYear: 2026, wantMonth: 9},
		{name: "on the 26th", now: time.Date(2026, 10, 26, 3, 0, 0, 0, time.UTC), wantYear: 2026, wantMonth: 10},
		{name: "january", now: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), wantYear: 2025, wantMonth: 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			y, m := fixedResolver(tt.now).LastClosed()
			assert.Equal(t, tt.wantYear, y)
			assert.Equal(t, tt.wantMonth, m)
		})
	}
}

func TestPreviousAndSameMonthLastYear(t *testing.T) {
	y, m := Previous(2025, 1)
	assert.Equal(t, 2024, y)
	assert.Equal(t, 12, m)

	y, m = Previous(2025, 7)
	assert.Equal(t, 2025, y)
	assert.Equal(t, 6, m)

	y, m = SameMonthLastYear(2025, 1)
	assert.Equal(t, 2024, y)
	assert.Equal(t, 1, m)
}
