// functions.go — обработчики /api/v1/functions endpoints.
// CRUD функций (подразделений). Мутации доступны только суперпользователю.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/bigkaa/orgfiles/internal/api/errors"
	"github.com/bigkaa/orgfiles/internal/api/middleware"
	"github.com/bigkaa/orgfiles/internal/domain/model"
)

// functionResponse — представление функции в API.
type functionResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Code           string    `json:"code"`
	Description    *string   `json:"description,omitempty"`
	IsActive       bool      `json:"is_active"`
	BusinessUnitID uuid.UUID `json:"business_unit_id"`
	CreatedAt      time.Time `json:"created_at"`
}

func mapFunction(fn *model.Function) functionResponse {
	return functionResponse{
		ID:             fn.ID,
		Name:           fn.Name,
		Code:           fn.Code,
		Description:    fn.Description,
		IsActive:       fn.IsActive,
		BusinessUnitID: fn.BusinessUnitID,
		CreatedAt:      fn.CreatedAt,
	}
}

// functionCreateRequest — тело POST /api/v1/functions.
type functionCreateRequest struct {
	Name           string    `json:"name"`
	Code           string    `json:"code"`
	Description    *string   `json:"description"`
	BusinessUnitID uuid.UUID `json:"business_unit_id"`
}

// functionUpdateRequest — тело PATCH /api/v1/functions/{id}.
type functionUpdateRequest struct {
	Name           *string    `json:"name"`
	Code           *string    `json:"code"`
	Description    *string    `json:"description"`
	IsActive       *bool      `json:"is_active"`
	BusinessUnitID *uuid.UUID `json:"business_unit_id"`
}

// CreateFunction — POST /api/v1/functions.
func (h *APIHandler) CreateFunction(w http.ResponseWriter, r *http.Request) {
	actor := middleware.UserFromContext(r.Context())
	if actor == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	var req functionCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	fn := &model.Function{
		Name:           req.Name,
		Code:           req.Code,
		Description:    req.Description,
		IsActive:       true,
		BusinessUnitID: req.BusinessUnitID,
	}

	if err := h.org.CreateFunction(r.Context(), actor, fn); err != nil {
		h.writeServiceError(w, err, "Ошибка создания функции")
		return
	}

	writeJSON(w, http.StatusCreated, mapFunction(fn))
}

// ListFunctions — GET /api/v1/functions.
// Поддерживает фильтр ?business_unit_id=.
func (h *APIHandler) ListFunctions(w http.ResponseWriter, r *http.Request) {
	actor := middleware.UserFromContext(r.Context())
	if actor == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	limit, offset := paginationParams(r)

	var businessUnitID *uuid.UUID
	if v := r.URL.Query().Get("business_unit_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			apierrors.ValidationError(w, "Некорректный UUID в business_unit_id")
			return
		}
		businessUnitID = &id
	}

	fns, total, err := h.org.ListFunctions(r.Context(), actor, businessUnitID, limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения списка функций")
		return
	}

	items := make([]functionResponse, len(fns))
	for i, fn := range fns {
		items[i] = mapFunction(fn)
	}

	writeJSON(w, http.StatusOK, newListResponse(items, total, limit, offset))
}

// GetFunction — GET /api/v1/functions/{id}.
func (h *APIHandler) GetFunction(w http.ResponseWriter, r *http.Request) {
	actor := middleware.UserFromContext(r.Context())
	if actor == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	id, err := urlParamUUID(r, "id")
	if err != nil {
		apierrors.ValidationError(w, "Некорректный UUID функции")
		return
	}

	fn, err := h.org.GetFunction(r.Context(), actor, id)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения функции", "id", id)
		return
	}

	writeJSON(w, http.StatusOK, mapFunction(fn))
}

// UpdateFunction — PATCH /api/v1/functions/{id}.
func (h *APIHandler) UpdateFunction(w http.ResponseWriter, r *http.Request) {
	actor := middleware.UserFromContext(r.Context())
	if actor == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	id, err := urlParamUUID(r, "id")
	if err != nil {
		apierrors.ValidationError(w, "Некорректный UUID функции")
		return
	}

	var req functionUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	patch := model.FunctionPatch{
		Name:           req.Name,
		Code:           req.Code,
		Description:    req.Description,
		IsActive:       req.IsActive,
		BusinessUnitID: req.BusinessUnitID,
	}

	fn, err := h.org.UpdateFunction(r.Context(), actor, id, patch)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка обновления функции", "id", id)
		return
	}

	writeJSON(w, http.StatusOK, mapFunction(fn))
}

// DeleteFunction — DELETE /api/v1/functions/{id}.
// Функция с привязанными пользователями или файлами не удаляется (409).
func (h *APIHandler) DeleteFunction(w http.ResponseWriter, r *http.Request) {
	actor := middleware.UserFromContext(r.Context())
	if actor == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	id, err := urlParamUUID(r, "id")
	if err != nil {
		apierrors.ValidationError(w, "Некорректный UUID функции")
		return
	}

	if err := h.org.DeleteFunction(r.Context(), actor, id); err != nil {
		h.writeServiceError(w, err, "Ошибка удаления функции", "id", id)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
