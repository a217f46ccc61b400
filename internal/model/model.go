// Package model содержит доменные сущности сервиса бонусов и расчёта выплат.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BonusStatus описывает статус бонуса в жизненном цикле DRAFT ↔ CONFIRMED.
type BonusStatus string

const (
	BonusStatusDraft     BonusStatus = "DRAFT"
	BonusStatusConfirmed BonusStatus = "CONFIRMED"
)

// Valid сообщает, является ли статус одним из известных.
func (s BonusStatus) Valid() bool {
	return s == BonusStatusDraft || s == BonusStatusConfirmed
}

// Order возвращает порядковый номер статуса, используемый для сортировки.
func (s BonusStatus) Order() int {
	switch s {
	case BonusStatusDraft:
		return 1
	case BonusStatusConfirmed:
		return 2
	default:
		return 0
	}
}

// Bonus описывает рассчитанный бонус пользователя за период.
type Bonus struct {
	ID                     string          `json:"id"`
	Year                   int             `json:"year"`
	Month                  int             `json:"month"`
	UserID                 string          `json:"userId"`
	PayrollID              *string         `json:"payrollId,omitempty"`
	PerformanceLevel       int             `json:"performanceLevel"`
	BaseBonus              decimal.Decimal `json:"baseBonus"`
	PonderedTaskCount      decimal.Decimal `json:"ponderedTaskCount"`
	AverageTasksPerUser    decimal.Decimal `json:"averageTasksPerUser"`
	CalculationPeriodStart time.Time       `json:"calculationPeriodStart"`
	CalculationPeriodEnd   time.Time       `json:"calculationPeriodEnd"`
	Status                 BonusStatus     `json:"status"`
	StatusOrder            int             `json:"statusOrder"`
	CreatedAt              time.Time       `json:"createdAt"`
	UpdatedAt              time.Time       `json:"updatedAt"`
}

// BonusPatch содержит изменяемые поля бонуса. Nil означает «не менять».
type BonusPatch struct {
	PayrollID           *string          `json:"payrollId,omitempty"`
	PerformanceLevel    *int             `json:"performanceLevel,omitempty"`
	BaseBonus           *decimal.Decimal `json:"baseBonus,omitempty"`
	PonderedTaskCount   *decimal.Decimal `json:"ponderedTaskCount,omitempty"`
	AverageTasksPerUser *decimal.Decimal `json:"averageTasksPerUser,omitempty"`
}

// Empty сообщает, что патч не изменяет ни одного поля.
func (p BonusPatch) Empty() bool {
	return p.PayrollID == nil && p.PerformanceLevel == nil && p.BaseBonus == nil &&
		p.PonderedTaskCount == nil && p.AverageTasksPerUser == nil
}

// Apply применяет патч к копии бонуса.
func (p BonusPatch) Apply(b Bonus) Bonus {
	if p.PayrollID != nil {
		v := *p.PayrollID
		b.PayrollID = &v
	}
	if p.PerformanceLevel != nil {
		b.PerformanceLevel = *p.PerformanceLevel
	}
	if p.BaseBonus != nil {
		b.BaseBonus = *p.BaseBonus
	}
	if p.PonderedTaskCount != nil {
		b.PonderedTaskCount = *p.PonderedTaskCount
	}
	if p.AverageTasksPerUser != nil {
		b.AverageTasksPerUser = *p.AverageTasksPerUser
	}
	return b
}

// BonusUpdate связывает идентификатор бонуса с изменениями для пакетного обновления.
type BonusUpdate struct {
	ID    string     `json:"id"`
	Patch BonusPatch `json:"patch"`
}

// StatusChange описывает одну запись журнала смены статуса бонуса.
type StatusChange struct {
	BonusID   string      `json:"bonusId"`
	From      BonusStatus `json:"from"`
	To        BonusStatus `json:"to"`
	Reason    *string     `json:"reason,omitempty"`
	ChangedBy *string     `json:"changedBy,omitempty"`
	ChangedAt time.Time   `json:"changedAt"`
}

// BonusFilter задаёт условия выборки бонусов.
type BonusFilter struct {
	Year   *int
	Month  *int
	UserID *string
	Status *BonusStatus
	Page   int
	Limit  int
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Normalize приводит параметры пагинации к допустимым значениям.
func (f BonusFilter) Normalize() BonusFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	return f
}

// PageMeta содержит метаданные пагинации ответа.
type PageMeta struct {
	Page         int   `json:"page"`
	Limit        int   `json:"limit"`
	TotalRecords int64 `json:"totalRecords"`
	HasNextPage  bool  `json:"hasNextPage"`
}

// NewPageMeta вычисляет метаданные страницы по общему числу записей.
func NewPageMeta(page, limit int, total int64) PageMeta {
	return PageMeta{
		Page:         page,
		Limit:        limit,
		TotalRecords: total,
		HasNextPage:  int64(page)*int64(limit) < total,
	}
}

// BonusPage содержит страницу бонусов с метаданными.
type BonusPage struct {
	Data []Bonus  `json:"data"`
	Meta PageMeta `json:"meta"`
}

// BatchMode определяет атомарность пакетных операций.
type BatchMode string

const (
	// BatchModeAtomic выполняет пакет в одной транзакции: любая ошибка откатывает весь пакет.
	BatchModeAtomic BatchMode = "atomic"
	// BatchModePartial применяет элементы независимо и сообщает результат по каждому.
	BatchModePartial BatchMode = "partial"
)

// Valid сообщает, является ли режим известным.
func (m BatchMode) Valid() bool {
	return m == BatchModeAtomic || m == BatchModePartial
}

// BatchFailure описывает ошибку обработки одного элемента пакета.
type BatchFailure struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error"`
}

// BatchResult содержит итог пакетной операции.
type BatchResult struct {
	Succeeded []string       `json:"succeeded"`
	Failed    []BatchFailure `json:"failed"`
}

// PayrollRecord описывает начисление пользователя за период во внешней системе расчёта зарплаты.
type PayrollRecord struct {
	ID               string          `json:"id"`
	UserID           string          `json:"userId"`
	Year             int             `json:"year"`
	Month            int             `json:"month"`
	BaseRemuneration decimal.Decimal `json:"baseRemuneration"`
	Bonus            *Bonus          `json:"bonus,omitempty"`
}

// PayrollPage содержит страницу начислений внешней системы.
type PayrollPage struct {
	Data []PayrollRecord `json:"data"`
	Meta PageMeta        `json:"meta"`
}

// SimulationRequest задаёт параметры сценария «что если» для расчёта бонусов.
type SimulationRequest struct {
	Year                      int            `json:"year"`
	Month                     int            `json:"month"`
	UserIDs                   []string       `json:"userIds,omitempty"`
	PerformanceLevelOverrides map[string]int `json:"performanceLevelOverrides,omitempty"`
}

// SimulatedBonus описывает рассчитанный внешней системой бонус одного пользователя.
type SimulatedBonus struct {
	UserID              string          `json:"userId"`
	PayrollID           *string         `json:"payrollId,omitempty"`
	PerformanceLevel    int             `json:"performanceLevel"`
	BaseBonus           decimal.Decimal `json:"baseBonus"`
	PonderedTaskCount   decimal.Decimal `json:"ponderedTaskCount"`
	AverageTasksPerUser decimal.Decimal `json:"averageTasksPerUser"`
}

// SimulationResult содержит результат сценария «что если».
type SimulationResult struct {
	Year           int              `json:"year"`
	Month          int              `json:"month"`
	Bonuses        []SimulatedBonus `json:"bonuses"`
	TotalBaseBonus decimal.Decimal  `json:"totalBaseBonus"`
}

// GenerationResult содержит итог генерации бонусов за период.
type GenerationResult struct {
	Year    int      `json:"year"`
	Month   int      `json:"month"`
	Created []string `json:"created"`
	Skipped []string `json:"skipped"`
}
