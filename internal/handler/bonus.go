package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/bonus-payroll/internal/model"
	"github.com/mmeshcher/bonus-payroll/internal/validation"
)

// CreateBonus создаёт бонус в статусе DRAFT.
func (h *Handler) CreateBonus(w http.ResponseWriter, r *http.Request) {
	var req validation.BonusCreate
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w)
		return
	}

	bonus, err := h.service.CreateBonus(r.Context(), req, actorFrom(r))
	if err != nil {
		h.writeError(w, "create bonus", err)
		return
	}

	h.respond(w, http.StatusCreated, bonus, nil)
}

// ListBonuses возвращает страницу бонусов по фильтру из строки запроса.
func (h *Handler) ListBonuses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var errs validation.FieldErrors
	f := model.BonusFilter{
		Year:  parseOptionalInt(&errs, "year", q.Get("year")),
		Month: parseOptionalInt(&errs, "month", q.Get("month")),
	}
	if page := parseOptionalInt(&errs, "page", q.Get("page")); page != nil {
		f.Page = *page
	}
	if limit := parseOptionalInt(&errs, "limit", q.Get("limit")); limit != nil {
		f.Limit = *limit
	}
	if v := q.Get("userId"); v != "" {
		f.UserID = &v
	}
	if v := q.Get("status"); v != "" {
		status := model.BonusStatus(v)
		f.Status = &status
	}
	if len(errs) > 0 {
		h.writeError(w, "list bonuses", errs)
		return
	}

	page, err := h.service.ListBonuses(r.Context(), f)
	if err != nil {
		h.writeError(w, "list bonuses", err)
		return
	}

	h.respond(w, http.StatusOK, page.Data, page.Meta)
}

// GetBonus возвращает бонус по идентификатору.
func (h *Handler) GetBonus(w http.ResponseWriter, r *http.Request) {
	bonus, err := h.service.GetBonus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "get bonus", err)
		return
	}

	h.respond(w, http.StatusOK, bonus, nil)
}

// UpdateBonus изменяет поля бонуса.
func (h *Handler) UpdateBonus(w http.ResponseWriter, r *http.Request) {
	var patch model.BonusPatch
	if err := decodeJSON(r, &patch); err != nil {
		h.badRequest(w)
		return
	}

	bonus, err := h.service.UpdateBonus(r.Context(), chi.URLParam(r, "id"), patch, actorFrom(r))
	if err != nil {
		h.writeError(w, "update bonus", err)
		return
	}

	h.respond(w, http.StatusOK, bonus, nil)
}

// DeleteBonus удаляет бонус.
func (h *Handler) DeleteBonus(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteBonus(r.Context(), chi.URLParam(r, "id"), actorFrom(r)); err != nil {
		h.writeError(w, "delete bonus", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// BonusHistory возвращает журнал смены статуса бонуса.
func (h *Handler) BonusHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.service.BonusHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "bonus history", err)
		return
	}
	if history == nil {
		history = []model.StatusChange{}
	}

	h.respond(w, http.StatusOK, history, nil)
}

type batchRequest[T any] struct {
	Items []T `json:"items"`
}

func (h *Handler) respondBatch(w http.ResponseWriter, op string, result model.BatchResult, err error) {
	if err != nil {
		h.writeError(w, op, err)
		return
	}
	if result.Succeeded == nil {
		result.Succeeded = []string{}
	}
	if result.Failed == nil {
		result.Failed = []model.BatchFailure{}
	}
	h.respond(w, http.StatusOK, result, nil)
}

// BatchCreate создаёт пакет бонусов.
func (h *Handler) BatchCreate(w http.ResponseWriter, r *http.Request) {
	var req batchRequest[validation.BonusCreate]
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w)
		return
	}

	result, err := h.service.BatchCreate(r.Context(), req.Items, actorFrom(r))
	h.respondBatch(w, "batch create", result, err)
}

// BatchUpdate изменяет пакет бонусов.
func (h *Handler) BatchUpdate(w http.ResponseWriter, r *http.Request) {
	var req batchRequest[model.BonusUpdate]
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w)
		return
	}

	result, err := h.service.BatchUpdate(r.Context(), req.Items, actorFrom(r))
	h.respondBatch(w, "batch update", result, err)
}

// BatchDelete удаляет пакет бонусов.
func (h *Handler) BatchDelete(w http.ResponseWriter, r *http.Request) {
	var req batchRequest[validation.BonusRef]
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w)
		return
	}

	result, err := h.service.BatchDelete(r.Context(), req.Items, actorFrom(r))
	h.respondBatch(w, "batch delete", result, err)
}

// GeneratePeriod рассчитывает и сохраняет черновики бонусов за период.
func (h *Handler) GeneratePeriod(w http.ResponseWriter, r *http.Request) {
	var req validation.GeneratePeriod
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w)
		return
	}

	result, err := h.service.GeneratePeriod(r.Context(), req, actorFrom(r))
	if err != nil {
		h.writeError(w, "generate period", err)
		return
	}
	if result.Created == nil {
		result.Created = []string{}
	}
	if result.Skipped == nil {
		result.Skipped = []string{}
	}

	h.respond(w, http.StatusOK, result, nil)
}

type statusCall func(ctx context.Context, in validation.StatusChange, actor string) ([]model.Bonus, error)

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request, op string, call statusCall) {
	var req validation.StatusChange
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w)
		return
	}

	bonuses, err := call(r.Context(), req, actorFrom(r))
	if err != nil {
		h.writeError(w, op, err)
		return
	}

	h.respond(w, http.StatusOK, bonuses, nil)
}

// Confirm подтверждает черновики бонусов.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, "confirm bonuses", h.service.Confirm)
}

// Revert возвращает подтверждённые бонусы в черновики с указанием причины.
func (h *Handler) Revert(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, "revert bonuses", h.service.Revert)
}

// UpdateStatus устанавливает статус группы бонусов.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, "update bonus status", h.service.UpdateStatus)
}
