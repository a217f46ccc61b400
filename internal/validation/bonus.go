package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bonus-payroll/internal/model"
	"github.com/mmeshcher/bonus-payroll/internal/period"
)

const (
	MinPerformanceLevel = 0
	MaxPerformanceLevel = 5

	MinRevertReasonLength = 5
	MaxRevertReasonLength = 500
)

// Точность столбцов сумм и показателей задач в БД: NUMERIC(14, 2) и NUMERIC(14, 4).
const (
	amountPrecision = 14
	moneyScale      = 2
	taskCountScale  = 4
)

// BonusCreate содержит данные для создания бонуса.
type BonusCreate struct {
	Year                int             `json:"year"`
	Month               int             `json:"month"`
	UserID              string          `json:"userId"`
	PayrollID           *string         `json:"payrollId,omitempty"`
	PerformanceLevel    int             `json:"performanceLevel"`
	BaseBonus           decimal.Decimal `json:"baseBonus"`
	PonderedTaskCount   decimal.Decimal `json:"ponderedTaskCount"`
	AverageTasksPerUser decimal.Decimal `json:"averageTasksPerUser"`
}

// BonusRef ссылается на бонус по идентификатору.
type BonusRef struct {
	ID string `json:"id"`
}

// GeneratePeriod задаёт генерацию бонусов за период. Пустой UserIDs означает «все пользователи».
type GeneratePeriod struct {
	Year    int      `json:"year"`
	Month   int      `json:"month"`
	UserIDs []string `json:"userIds,omitempty"`
}

// StatusChange задаёт подтверждение, откат или смену статуса группы бонусов.
type StatusChange struct {
	BonusIDs []string          `json:"bonusIds"`
	Status   model.BonusStatus `json:"status,omitempty"`
	Reason   string            `json:"reason,omitempty"`
}

// Validator проверяет входные данные бонусов. Правила периода берут время из резолвера.
type Validator struct {
	periods *period.Resolver
}

// New создаёт валидатор.
func New(periods *period.Resolver) *Validator {
	return &Validator{periods: periods}
}

// Periods возвращает резолвер периодов валидатора.
func (v *Validator) Periods() *period.Resolver {
	return v.periods
}

func checkYearMonth(errs *FieldErrors, year, month int) {
	if year < period.MinYear || year > period.MaxYear {
		errs.add("year", "must be between 2000 and 2099")
	}
	if month < 1 || month > 12 {
		errs.add("month", "must be between 1 and 12")
	}
}

func checkPerformanceLevel(errs *FieldErrors, level int) {
	if level < MinPerformanceLevel || level > MaxPerformanceLevel {
		errs.add("performanceLevel", "must be between 0 and 5")
	}
}

// checkAmount проверяет, что значение неотрицательно и помещается в NUMERIC(14, scale) без округления.
func checkAmount(errs *FieldErrors, field string, v decimal.Decimal, scale int32) {
	limit := decimal.New(1, amountPrecision-scale)
	switch {
	case v.IsNegative():
		errs.add(field, "must be non-negative")
	case !v.Equal(v.Round(scale)):
		errs.add(field, fmt.Sprintf("must have at most %d decimal places", scale))
	case v.GreaterThanOrEqual(limit):
		errs.add(field, "must be less than "+limit.String())
	}
}

func checkID(errs *FieldErrors, field, id string) {
	if id == "" {
		errs.add(field, "is required")
		return
	}
	if !IsValidID(id) {
		errs.add(field, "must be a valid identifier")
	}
}

func (v *Validator) checkPeriodRules(errs *FieldErrors, year, month int, msgs period.Messages) {
	if errs.Has("year") || errs.Has("month") {
		return
	}
	if err := v.periods.Validate(year, month, msgs); err != nil {
		var perr *period.Error
		if errors.As(err, &perr) {
			errs.add(perr.Field, perr.Message)
			return
		}
		errs.add("month", err.Error())
	}
}

func (v *Validator) bonusCreateErrors(in BonusCreate) FieldErrors {
	var errs FieldErrors

	checkYearMonth(&errs, in.Year, in.Month)
	checkID(&errs, "userId", in.UserID)
	if in.PayrollID != nil {
		checkID(&errs, "payrollId", *in.PayrollID)
	}
	checkPerformanceLevel(&errs, in.PerformanceLevel)
	checkAmount(&errs, "baseBonus", in.BaseBonus, moneyScale)
	checkAmount(&errs, "ponderedTaskCount", in.PonderedTaskCount, taskCountScale)
	checkAmount(&errs, "averageTasksPerUser", in.AverageTasksPerUser, taskCountScale)
	v.checkPeriodRules(&errs, in.Year, in.Month, period.CreationMessages)

	return errs
}

// BonusCreate проверяет данные создания бонуса, включая правила периода.
func (v *Validator) BonusCreate(in BonusCreate) Result[BonusCreate] {
	return newResult(in, v.bonusCreateErrors(in))
}

func bonusPatchErrors(p model.BonusPatch) FieldErrors {
	var errs FieldErrors

	if p.Empty() {
		errs.add("patch", "at least one field is required")
		return errs
	}
	if p.PayrollID != nil {
		checkID(&errs, "payrollId", *p.PayrollID)
	}
	if p.PerformanceLevel != nil {
		checkPerformanceLevel(&errs, *p.PerformanceLevel)
	}
	if p.BaseBonus != nil {
		checkAmount(&errs, "baseBonus", *p.BaseBonus, moneyScale)
	}
	if p.PonderedTaskCount != nil {
		checkAmount(&errs, "ponderedTaskCount", *p.PonderedTaskCount, taskCountScale)
	}
	if p.AverageTasksPerUser != nil {
		checkAmount(&errs, "averageTasksPerUser", *p.AverageTasksPerUser, taskCountScale)
	}

	return errs
}

// BonusUpdate проверяет изменения бонуса. Правила возраста периода к обновлению не применяются.
func (v *Validator) BonusUpdate(p model.BonusPatch) Result[model.BonusPatch] {
	return newResult(p, bonusPatchErrors(p))
}

// BonusBatchCreate проверяет пакет создания: пакет не пуст, каждый элемент проверяется отдельно.
func (v *Validator) BonusBatchCreate(items []BonusCreate) Result[[]BonusCreate] {
	var errs FieldErrors
	if len(items) == 0 {
		errs.add("items", "at least one item is required")
		return newResult(items, errs)
	}
	for i, item := range items {
		errs.addItem(i, v.bonusCreateErrors(item))
	}
	return newResult(items, errs)
}

// BonusBatchUpdate проверяет пакет обновлений вида {id, patch}.
func (v *Validator) BonusBatchUpdate(items []model.BonusUpdate) Result[[]model.BonusUpdate] {
	var errs FieldErrors
	if len(items) == 0 {
		errs.add("items", "at least one item is required")
		return newResult(items, errs)
	}
	for i, item := range items {
		var itemErrs FieldErrors
		checkID(&itemErrs, "id", item.ID)
		itemErrs = append(itemErrs, bonusPatchErrors(item.Patch)...)
		errs.addItem(i, itemErrs)
	}
	return newResult(items, errs)
}

// BonusBatchDelete проверяет пакет удаления вида {id}.
func (v *Validator) BonusBatchDelete(items []BonusRef) Result[[]BonusRef] {
	var errs FieldErrors
	if len(items) == 0 {
		errs.add("items", "at least one item is required")
		return newResult(items, errs)
	}
	for i, item := range items {
		var itemErrs FieldErrors
		checkID(&itemErrs, "id", item.ID)
		errs.addItem(i, itemErrs)
	}
	return newResult(items, errs)
}

// GeneratePeriod проверяет запрос генерации бонусов за период.
func (v *Validator) GeneratePeriod(in GeneratePeriod) Result[GeneratePeriod] {
	var errs FieldErrors

	checkYearMonth(&errs, in.Year, in.Month)
	for i, id := range in.UserIDs {
		if !IsValidID(id) {
			errs.add("userIds["+itoa(i)+"]", "must be a valid identifier")
		}
	}
	v.checkPeriodRules(&errs, in.Year, in.Month, period.GenerationMessages)

	return newResult(in, errs)
}

func bonusIDsErrors(ids []string) FieldErrors {
	var errs FieldErrors
	if len(ids) == 0 {
		errs.add("bonusIds", "at least one bonus is required")
		return errs
	}
	seen := make(map[string]struct{}, len(ids))
	for i, id := range ids {
		field := "bonusIds[" + itoa(i) + "]"
		if !IsValidID(id) {
			errs.add(field, "must be a valid identifier")
			continue
		}
		if _, dup := seen[id]; dup {
			errs.add(field, "duplicate identifier")
			continue
		}
		seen[id] = struct{}{}
	}
	return errs
}

// Confirm проверяет запрос подтверждения бонусов.
func (v *Validator) Confirm(in StatusChange) Result[StatusChange] {
	return newResult(in, bonusIDsErrors(in.BonusIDs))
}

// Revert проверяет запрос отката подтверждённых бонусов в черновик. Причина обязательна.
func (v *Validator) Revert(in StatusChange) Result[StatusChange] {
	errs := bonusIDsErrors(in.BonusIDs)
	in.Reason = checkReason(&errs, in.Reason)
	return newResult(in, errs)
}

// UpdateStatus проверяет запрос смены статуса группы бонусов.
// Возврат в DRAFT требует причину, как и откат.
func (v *Validator) UpdateStatus(in StatusChange) Result[StatusChange] {
	errs := bonusIDsErrors(in.BonusIDs)
	if !in.Status.Valid() {
		errs.add("status", "must be DRAFT or CONFIRMED")
	}
	if in.Status == model.BonusStatusDraft {
		in.Reason = checkReason(&errs, in.Reason)
	}
	return newResult(in, errs)
}

func checkReason(errs *FieldErrors, reason string) string {
	reason = strings.TrimSpace(reason)
	n := utf8.RuneCountInString(reason)
	switch {
	case n < MinRevertReasonLength:
		errs.add("reason", "must be at least 5 characters")
	case n > MaxRevertReasonLength:
		errs.add("reason", "must be at most 500 characters")
	}
	return reason
}

// PeriodCheck выполняет самостоятельную проверку периода перед отправкой формы.
// Месяц вне 1..12 нормализуется календарём, как и в правилах периода.
func (v *Validator) PeriodCheck(year, month int) period.CheckResult {
	return v.periods.Check(year, month)
}

// Simulation проверяет параметры сценария «что если»: год и месяц положительны.
func (v *Validator) Simulation(req model.SimulationRequest) Result[model.SimulationRequest] {
	var errs FieldErrors
	if req.Year <= 0 {
		errs.add("year", "must be positive")
	}
	if req.Month <= 0 {
		errs.add("month", "must be positive")
	}
	for i, id := range req.UserIDs {
		if !IsValidID(id) {
			errs.add("userIds["+itoa(i)+"]", "must be a valid identifier")
		}
	}
	for userID, level := range req.PerformanceLevelOverrides {
		if level < MinPerformanceLevel || level > MaxPerformanceLevel {
			errs.add("performanceLevelOverrides."+userID, "must be between 0 and 5")
		}
	}
	return newResult(req, errs)
}

// PeriodRef ссылается на расчётный период.
type PeriodRef struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// PeriodRef проверяет только границы года и месяца, без правил возраста периода.
func (v *Validator) PeriodRef(in PeriodRef) Result[PeriodRef] {
	var errs FieldErrors
	checkYearMonth(&errs, in.Year, in.Month)
	return newResult(in, errs)
}

// ID проверяет идентификатор в параметре field.
func (v *Validator) ID(field, id string) Result[string] {
	var errs FieldErrors
	checkID(&errs, field, id)
	return newResult(id, errs)
}

// BonusFilter проверяет условия выборки и нормализует пагинацию.
func (v *Validator) BonusFilter(f model.BonusFilter) Result[model.BonusFilter] {
	var errs FieldErrors
	if f.Year != nil && (*f.Year < period.MinYear || *f.Year > period.MaxYear) {
		errs.add("year", "must be between 2000 and 2099")
	}
	if f.Month != nil && (*f.Month < 1 || *f.Month > 12) {
		errs.add("month", "must be between 1 and 12")
	}
	if f.UserID != nil && !IsValidID(*f.UserID) {
		errs.add("userId", "must be a valid identifier")
	}
	if f.Status != nil && !f.Status.Valid() {
		errs.add("status", "must be DRAFT or CONFIRMED")
	}
	return newResult(f.Normalize(), errs)
}
