package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bonus-payroll/internal/model"
	"github.com/mmeshcher/bonus-payroll/internal/payroll"
	"github.com/mmeshcher/bonus-payroll/internal/pricing"
	"github.com/mmeshcher/bonus-payroll/internal/validation"
)

// periodFromPath разбирает год и месяц из параметров маршрута.
func periodFromPath(r *http.Request) (int, int, validation.FieldErrors) {
	var errs validation.FieldErrors
	year := parseInt(&errs, "year", chi.URLParam(r, "year"))
	month := parseInt(&errs, "month", chi.URLParam(r, "month"))
	return year, month, errs
}

// PeriodWindow возвращает расчётное окно периода.
func (h *Handler) PeriodWindow(w http.ResponseWriter, r *http.Request) {
	year, month, errs := periodFromPath(r)
	if len(errs) > 0 {
		h.writeError(w, "period window", errs)
		return
	}

	window, err := h.service.PeriodWindow(year, month)
	if err != nil {
		h.writeError(w, "period window", err)
		return
	}

	h.respond(w, http.StatusOK, window, nil)
}

// ValidatePeriod выполняет предварительную проверку периода. Ответ всегда 200.
func (h *Handler) ValidatePeriod(w http.ResponseWriter, r *http.Request) {
	year, month, errs := periodFromPath(r)
	if len(errs) > 0 {
		h.writeError(w, "validate period", errs)
		return
	}

	h.respond(w, http.StatusOK, h.service.CheckPeriod(year, month), nil)
}

// GetPayroll возвращает начисление пользователя за период.
func (h *Handler) GetPayroll(w http.ResponseWriter, r *http.Request) {
	year, month, errs := periodFromPath(r)
	if len(errs) > 0 {
		h.writeError(w, "get payroll", errs)
		return
	}

	record, err := h.service.GetPayroll(r.Context(), chi.URLParam(r, "userId"), year, month)
	if err != nil {
		h.writeError(w, "get payroll", err)
		return
	}

	h.respond(w, http.StatusOK, record, nil)
}

// ListPayroll возвращает страницу начислений за период.
func (h *Handler) ListPayroll(w http.ResponseWriter, r *http.Request) {
	year, month, errs := periodFromPath(r)
	q := r.URL.Query()
	var page, limit int
	if v := parseOptionalInt(&errs, "page", q.Get("page")); v != nil {
		page = *v
	}
	if v := parseOptionalInt(&errs, "limit", q.Get("limit")); v != nil {
		limit = *v
	}
	if len(errs) > 0 {
		h.writeError(w, "list payroll", errs)
		return
	}

	result, err := h.service.ListPayroll(r.Context(), year, month, page, limit)
	if err != nil {
		h.writeError(w, "list payroll", err)
		return
	}
	if result.Data == nil {
		result.Data = []model.PayrollRecord{}
	}

	h.respond(w, http.StatusOK, result.Data, result.Meta)
}

// ComparePayroll сравнивает выплаты периода с предыдущим месяцем или тем же месяцем прошлого года.
func (h *Handler) ComparePayroll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var errs validation.FieldErrors
	year := parseInt(&errs, "year", q.Get("year"))
	month := parseInt(&errs, "month", q.Get("month"))
	mode, err := payroll.ParseMode(q.Get("mode"))
	if err != nil {
		errs = append(errs, validation.FieldError{Field: "mode", Message: "must be previous_month or same_month_last_year"})
	}
	if len(errs) > 0 {
		h.writeError(w, "compare payroll", errs)
		return
	}

	comparison, err := h.service.ComparePayroll(r.Context(), year, month, mode)
	if err != nil {
		h.writeError(w, "compare payroll", err)
		return
	}

	h.respond(w, http.StatusOK, comparison, nil)
}

// SimulateBonuses выполняет расчёт бонусов «что если» без сохранения.
func (h *Handler) SimulateBonuses(w http.ResponseWriter, r *http.Request) {
	var req model.SimulationRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w)
		return
	}

	result, err := h.service.SimulateBonuses(r.Context(), req)
	if err != nil {
		h.writeError(w, "simulate bonuses", err)
		return
	}

	h.respond(w, http.StatusOK, result, nil)
}

type quoteRequest struct {
	Items         []pricing.PricingLineItem `json:"items"`
	DiscountType  string                    `json:"discountType"`
	DiscountValue *decimal.Decimal          `json:"discountValue,omitempty"`
}

// PricingQuote рассчитывает итог сметы со скидкой.
func (h *Handler) PricingQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w)
		return
	}

	var errs validation.FieldErrors
	discountType, err := pricing.ParseDiscountType(req.DiscountType)
	if err != nil {
		errs = append(errs, validation.FieldError{Field: "discountType", Message: "must be NONE, PERCENTAGE or FIXED_VALUE"})
	}
	if req.DiscountValue != nil && req.DiscountValue.IsNegative() {
		errs = append(errs, validation.FieldError{Field: "discountValue", Message: "must not be negative"})
	}
	if len(errs) > 0 {
		h.writeError(w, "pricing quote", errs)
		return
	}

	aggregate := pricing.PricingAggregate{
		Items:         req.Items,
		DiscountType:  discountType,
		DiscountValue: req.DiscountValue,
	}

	h.respond(w, http.StatusOK, aggregate.Recalculate(), nil)
}

type orderTotalRequest struct {
	Items []pricing.OrderLineItem `json:"items"`
}

// OrderTotal рассчитывает суммы строк и итог заказа.
func (h *Handler) OrderTotal(w http.ResponseWriter, r *http.Request) {
	var req orderTotalRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w)
		return
	}

	h.respond(w, http.StatusOK, pricing.OrderTotal(req.Items), nil)
}
