// Package handler содержит HTTP-обработчики API сервиса бонусов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/mmeshcher/bonus-payroll/internal/middleware"
	"github.com/mmeshcher/bonus-payroll/internal/model"
	"github.com/mmeshcher/bonus-payroll/internal/payroll"
	"github.com/mmeshcher/bonus-payroll/internal/payrollsys"
	"github.com/mmeshcher/bonus-payroll/internal/period"
	"github.com/mmeshcher/bonus-payroll/internal/repository"
	"github.com/mmeshcher/bonus-payroll/internal/service"
	"github.com/mmeshcher/bonus-payroll/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Ping(ctx context.Context) error

	CreateBonus(ctx context.Context, in validation.BonusCreate, actor string) (model.Bonus, error)
	GetBonus(ctx context.Context, id string) (model.Bonus, error)
	ListBonuses(ctx context.Context, f model.BonusFilter) (model.BonusPage, error)
	UpdateBonus(ctx context.Context, id string, patch model.BonusPatch, actor string) (model.Bonus, error)
	DeleteBonus(ctx context.Context, id string, actor string) error
	BonusHistory(ctx context.Context, id string) ([]model.StatusChange, error)

	BatchCreate(ctx context.Context, items []validation.BonusCreate, actor string) (model.BatchResult, error)
	BatchUpdate(ctx context.Context, items []model.BonusUpdate, actor string) (model.BatchResult, error)
	BatchDelete(ctx context.Context, items []validation.BonusRef, actor string) (model.BatchResult, error)

	GeneratePeriod(ctx context.Context, in validation.GeneratePeriod, actor string) (model.GenerationResult, error)
	Confirm(ctx context.Context, in validation.StatusChange, actor string) ([]model.Bonus, error)
	Revert(ctx context.Context, in validation.StatusChange, actor string) ([]model.Bonus, error)
	UpdateStatus(ctx context.Context, in validation.StatusChange, actor string) ([]model.Bonus, error)

	PeriodWindow(year, month int) (period.Window, error)
	CheckPeriod(year, month int) period.CheckResult

	GetPayroll(ctx context.Context, userID string, year, month int) (model.PayrollRecord, error)
	ListPayroll(ctx context.Context, year, month, page, limit int) (model.PayrollPage, error)
	ComparePayroll(ctx context.Context, year, month int, mode payroll.Mode) (payroll.Comparison, error)
	SimulateBonuses(ctx context.Context, req model.SimulationRequest) (model.SimulationResult, error)
}

// Handler реализует HTTP-обработчики API сервиса бонусов.
type Handler struct {
	service         Service
	logger          *zap.Logger
	actorMiddleware *middleware.ActorMiddleware
	corsOrigins     []string
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, actor *middleware.ActorMiddleware, corsOrigins []string) *Handler {
	return &Handler{
		service:         s,
		logger:          logger,
		actorMiddleware: actor,
		corsOrigins:     corsOrigins,
	}
}

type envelope struct {
	Data any `json:"data"`
	Meta any `json:"meta,omitempty"`
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
	Index  *int              `json:"index,omitempty"`
	ID     string            `json:"id,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

func (h *Handler) respond(w http.ResponseWriter, status int, data, meta any) {
	h.writeJSON(w, status, envelope{Data: data, Meta: meta})
}

// writeError переводит ошибку слоя сервиса в HTTP-ответ.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	var (
		fieldErrs validation.FieldErrors
		itemErr   *repository.ItemError
		rateErr   *payrollsys.RateLimitError
	)

	resp := errorResponse{}
	if errors.As(err, &itemErr) {
		index := itemErr.Index
		resp.Index = &index
		resp.ID = itemErr.ID
	}

	var status int
	switch {
	case errors.As(err, &fieldErrs):
		status = http.StatusUnprocessableEntity
		resp.Fields = fieldErrs.ToMap()
	case errors.As(err, &rateErr):
		status = http.StatusTooManyRequests
		if rateErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(rateErr.RetryAfter.Seconds()))))
		}
	case errors.Is(err, repository.ErrBonusNotFound), errors.Is(err, payrollsys.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrBonusExists), errors.Is(err, repository.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, service.ErrPayrollUnavailable), errors.Is(err, payroll.ErrComparisonDataUnavailable):
		status = http.StatusServiceUnavailable
		h.logger.Warn(op+" error", zap.Error(err))
	default:
		h.logger.Error(op+" error", zap.Error(err))
		status = http.StatusInternalServerError
		resp.Error = http.StatusText(status)
		h.writeJSON(w, status, resp)
		return
	}

	resp.Error = err.Error()
	h.writeJSON(w, status, resp)
}

func (h *Handler) badRequest(w http.ResponseWriter) {
	h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: http.StatusText(http.StatusBadRequest)})
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

func actorFrom(r *http.Request) string {
	actor, _ := middleware.ActorFromContext(r.Context())
	return actor
}

// parseInt разбирает обязательный целочисленный параметр и копит ошибку в errs.
func parseInt(errs *validation.FieldErrors, field, raw string) int {
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, validation.FieldError{Field: field, Message: "must be an integer"})
		return 0
	}
	return v
}

// parseOptionalInt разбирает необязательный целочисленный параметр. Пустая строка даёт nil.
func parseOptionalInt(errs *validation.FieldErrors, field, raw string) *int {
	if raw == "" {
		return nil
	}
	v := parseInt(errs, field, raw)
	return &v
}

// Health проверяет доступность базы данных.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
