// Package period вычисляет расчётные окна бонусных периодов и проверяет их допустимость.
//
// Период (year, month) охватывает интервал с 26-го числа предыдущего месяца
// по 25-е число указанного месяца включительно (до 23:59:59.999).
package period

import (
	"errors"
	"fmt"
	"time"
)

const (
	MinYear = 2000
	MaxYear = 2099

	// RetentionMonths ограничивает глубину периода в прошлое относительно текущей даты.
	RetentionMonths = 24

	StartDay = 26
	EndDay   = 25
)

var (
	// ErrFuturePeriod возвращается для периода позже текущего месяца.
	ErrFuturePeriod = errors.New("period is in the future")
	// ErrRetentionExceeded возвращается для периода старше RetentionMonths месяцев.
	ErrRetentionExceeded = errors.New("period is outside the retention window")
)

// Clock возвращает текущее время. Все проверки периодов читают время только через него.
type Clock interface {
	Now() time.Time
}

// SystemClock читает системные часы.
type SystemClock struct{}

// Now возвращает текущее системное время.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock всегда возвращает одно и то же время.
type FixedClock struct {
	T time.Time
}

// Now возвращает зафиксированное время.
func (c FixedClock) Now() time.Time { return c.T }

// Window — расчётное окно периода.
type Window struct {
	Start time.Time `json:"startDate"`
	End   time.Time `json:"endDate"`
}

// Contains сообщает, попадает ли момент t в окно (границы включительно).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Resolve вычисляет окно периода (year, month) в указанной локации.
// Месяц нормализуется календарём: Resolve(2025, 1) начинается 26 декабря 2024 года.
func Resolve(year, month int, loc *time.Location) Window {
	if loc == nil {
		loc = time.Local
	}
	return Window{
		Start: time.Date(year, time.Month(month-1), StartDay, 0, 0, 0, 0, loc),
		End:   time.Date(year, time.Month(month), EndDay, 23, 59, 59, int(999*time.Millisecond), loc),
	}
}

// IsFuture сообщает, что период (year, month) позже текущего месяца.
func IsFuture(now time.Time, year, month int) bool {
	return year > now.Year() || (year == now.Year() && month > int(now.Month()))
}

// IsBeyondRetention сообщает, что первое число месяца периода раньше now минус RetentionMonths месяцев.
func IsBeyondRetention(now time.Time, year, month int) bool {
	cutoff := now.AddDate(0, -RetentionMonths, 0)
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, now.Location())
	return first.Before(cutoff)
}

// Messages задаёт тексты ошибок правил периода для конкретного вызывающего.
type Messages struct {
	Future    string
	Retention string
}

var (
	CreationMessages = Messages{
		Future:    "cannot create a bonus for a future period",
		Retention: fmt.Sprintf("cannot create a bonus for a period older than %d months", RetentionMonths),
	}
	GenerationMessages = Messages{
		Future:    "cannot generate bonuses for a future period",
		Retention: fmt.Sprintf("cannot generate bonuses for a period older than %d months", RetentionMonths),
	}
	CheckMessages = Messages{
		Future:    "period cannot be in the future",
		Retention: fmt.Sprintf("period cannot be older than %d months", RetentionMonths),
	}
)

// Error описывает нарушение правила периода для поля запроса.
type Error struct {
	Field   string
	Message string
	Kind    error
}

func (e *Error) Error() string {
	return e.Field + ": " + e.Message
}

// Unwrap возвращает ErrFuturePeriod или ErrRetentionExceeded.
func (e *Error) Unwrap() error {
	return e.Kind
}

// CheckResult содержит итог «безопасной» проверки периода, не возвращающей ошибку.
type CheckResult struct {
	IsValid bool   `json:"isValid"`
	Error   string `json:"error,omitempty"`
}

// Resolver связывает правила периода с источником времени и часовым поясом.
type Resolver struct {
	clock Clock
	loc   *time.Location
}

// NewResolver создаёт резолвер. Nil-часы заменяются системными, nil-локация заменяется локальной.
func NewResolver(clock Clock, loc *time.Location) *Resolver {
	if clock == nil {
		clock = SystemClock{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &Resolver{clock: clock, loc: loc}
}

// Now возвращает текущее время в локации резолвера.
func (r *Resolver) Now() time.Time {
	return r.clock.Now().In(r.loc)
}

// Location возвращает часовой пояс резолвера.
func (r *Resolver) Location() *time.Location {
	return r.loc
}

// Window вычисляет окно периода в локации резолвера.
func (r *Resolver) Window(year, month int) Window {
	return Resolve(year, month, r.loc)
}

// Validate применяет оба правила периода и возвращает *Error, привязанную к полю month.
func (r *Resolver) Validate(year, month int, msgs Messages) error {
	now := r.Now()
	if IsFuture(now, year, month) {
		return &Error{Field: "month", Message: msgs.Future, Kind: ErrFuturePeriod}
	}
	if IsBeyondRetention(now, year, month) {
		return &Error{Field: "month", Message: msgs.Retention, Kind: ErrRetentionExceeded}
	}
	return nil
}

// Check выполняет проверку периода для предварительной валидации на клиенте.
func (r *Resolver) Check(year, month int) CheckResult {
	if err := r.Validate(year, month, CheckMessages); err != nil {
		var perr *Error
		if errors.As(err, &perr) {
			return CheckResult{IsValid: false, Error: perr.Message}
		}
		return CheckResult{IsValid: false, Error: err.Error()}
	}
	return CheckResult{IsValid: true}
}

// LastClosed возвращает последний период, окно которого уже завершилось к текущему моменту.
func (r *Resolver) LastClosed() (int, int) {
	now := r.Now()
	if now.Day() > EndDay {
		return now.Year(), int(now.Month())
	}
	return Previous(now.Year(), int(now.Month()))
}

// Previous возвращает предыдущий месяц с переходом через январь.
func Previous(year, month int) (int, int) {
	if month <= 1 {
		return year - 1, 12
	}
	return year, month - 1
}

// SameMonthLastYear возвращает тот же месяц годом ранее.
func SameMonthLastYear(year, month int) (int, int) {
	return year - 1, month
}
