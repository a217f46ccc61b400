// Package pricing реализует денежные расчёты заказов и смет: суммы строк, налоги и скидки.
package pricing

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// DiscountType описывает способ применения скидки к смете.
type DiscountType string

const (
	DiscountNone       DiscountType = "NONE"
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixedValue DiscountType = "FIXED_VALUE"
)

// ParseDiscountType разбирает тип скидки без учёта регистра. Пустая строка означает NONE.
func ParseDiscountType(s string) (DiscountType, error) {
	switch DiscountType(strings.ToUpper(strings.TrimSpace(s))) {
	case "", DiscountNone:
		return DiscountNone, nil
	case DiscountPercentage:
		return DiscountPercentage, nil
	case DiscountFixedValue:
		return DiscountFixedValue, nil
	default:
		return "", fmt.Errorf("unknown discount type %q", s)
	}
}

// OrderLineItem описывает строку заказа: количество, цену за единицу и ставку налога в процентах.
type OrderLineItem struct {
	OrderedQuantity decimal.Decimal `json:"orderedQuantity"`
	Price           decimal.Decimal `json:"price"`
	Tax             decimal.Decimal `json:"tax"`
}

// OrderLine содержит суммы рассчитанной строки заказа.
type OrderLine struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	TaxAmount decimal.Decimal `json:"taxAmount"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

// OrderSummary содержит итог заказа.
type OrderSummary struct {
	Lines     []OrderLine     `json:"lines"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	TaxAmount decimal.Decimal `json:"taxAmount"`
	Total     decimal.Decimal `json:"total"`
}

// CalculateLine вычисляет сумму, налог и итог одной строки заказа без округления.
func CalculateLine(item OrderLineItem) OrderLine {
	subtotal := item.OrderedQuantity.Mul(item.Price)
	tax := subtotal.Mul(item.Tax).Div(hundred)
	return OrderLine{
		Subtotal:  subtotal,
		TaxAmount: tax,
		LineTotal: subtotal.Add(tax),
	}
}

// OrderTotal суммирует строки заказа. Скидок у заказа нет, округление не выполняется.
func OrderTotal(items []OrderLineItem) OrderSummary {
	summary := OrderSummary{
		Lines:     make([]OrderLine, 0, len(items)),
		Subtotal:  decimal.Zero,
		TaxAmount: decimal.Zero,
		Total:     decimal.Zero,
	}
	for _, item := range items {
		line := CalculateLine(item)
		summary.Lines = append(summary.Lines, line)
		summary.Subtotal = summary.Subtotal.Add(line.Subtotal)
		summary.TaxAmount = summary.TaxAmount.Add(line.TaxAmount)
		summary.Total = summary.Total.Add(line.LineTotal)
	}
	return summary
}

// PricingLineItem описывает строку сметы с фиксированной суммой.
type PricingLineItem struct {
	ServiceID string          `json:"serviceId"`
	Amount    decimal.Decimal `json:"amount"`
}

// PricingSummary содержит итог сметы после применения скидки.
type PricingSummary struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	Total          decimal.Decimal `json:"total"`
}

// DiscountAmount вычисляет сумму скидки. Для NONE и пустого значения скидка равна нулю.
func DiscountAmount(subtotal decimal.Decimal, discountType DiscountType, value *decimal.Decimal) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	switch discountType {
	case DiscountPercentage:
		return subtotal.Mul(*value).Div(hundred)
	case DiscountFixedValue:
		return *value
	default:
		return decimal.Zero
	}
}

// PricingTotal суммирует строки сметы и применяет одну скидку на всю сумму.
// Итог не бывает отрицательным и округляется до копеек (половина округляется от нуля).
func PricingTotal(items []PricingLineItem, discountType DiscountType, discountValue *decimal.Decimal) PricingSummary {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Amount)
	}

	discount := DiscountAmount(subtotal, discountType, discountValue)
	total := decimal.Max(decimal.Zero, subtotal.Sub(discount))

	return PricingSummary{
		Subtotal:       RoundCents(subtotal),
		DiscountAmount: RoundCents(discount),
		Total:          RoundCents(total),
	}
}

// RoundCents округляет сумму до двух знаков, половина округляется от нуля.
func RoundCents(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// AggregateStatus — статус сметы.
type AggregateStatus string

const (
	AggregateStatusDraft    AggregateStatus = "DRAFT"
	AggregateStatusApproved AggregateStatus = "APPROVED"
	AggregateStatusRejected AggregateStatus = "REJECTED"
	AggregateStatusExpired  AggregateStatus = "EXPIRED"
)

// PricingAggregate описывает смету с позициями, скидкой и вычисленными итогами.
type PricingAggregate struct {
	Items         []PricingLineItem `json:"items"`
	DiscountType  DiscountType      `json:"discountType"`
	DiscountValue *decimal.Decimal  `json:"discountValue,omitempty"`
	Subtotal      decimal.Decimal   `json:"subtotal"`
	Total         decimal.Decimal   `json:"total"`
	Status        AggregateStatus   `json:"status"`
	ExpiresAt     *time.Time        `json:"expiresAt,omitempty"`
}

// Recalculate пересчитывает Subtotal и Total сметы и возвращает полную сводку.
func (a *PricingAggregate) Recalculate() PricingSummary {
	if a.DiscountType == "" {
		a.DiscountType = DiscountNone
	}
	summary := PricingTotal(a.Items, a.DiscountType, a.DiscountValue)
	a.Subtotal = summary.Subtotal
	a.Total = summary.Total
	return summary
}

// Expired сообщает, истёк ли срок действия сметы к моменту now.
func (a *PricingAggregate) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}
