// business_units.go — обработчики /api/v1/business-units endpoints.
// CRUD бизнес-направлений. Мутации доступны только суперпользователю.
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

// businessUnitResponse — представление бизнес-направления в API.
type businessUnitResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	Description *string   `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

func mapBusinessUnit(bu *model.BusinessUnit) businessUnitResponse {
	return businessUnitResponse{
		ID:          bu.ID,
		Name:        bu.Name,
		Code:        bu.Code,
		Description: bu.Description,
		IsActive:    bu.IsActive,
		CreatedAt:   bu.CreatedAt,
	}
}

// businessUnitCreateRequest — тело POST /api/v1/business-units.
type businessUnitCreateRequest struct {
	Name        string  `json:"name"`
	Code        string  `json:"code"`
	Description *string `json:"description"`
}

// businessUnitUpdateRequest — тело PATCH /api/v1/business-units/{id}.
type businessUnitUpdateRequest struct {
	Name        *string `json:"name"`
	Code        *string `json:"code"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
}

// CreateBusinessUnit — POST /api/v1/business-units.
func (h *APIHandler) CreateBusinessUnit(w http.ResponseWriter, r *http.Request) {
	actor := middleware.UserFromContext(r.Context())
	if actor == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	var req businessUnitCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	bu := &model.BusinessUnit{
		Name:        req.Name,
		Code:        req.Code,
		Description: req.Description,
		IsActive:    true,
	}

	if err := h.org.CreateBusinessUnit(r.Context(), actor, bu); err != nil {
		h.writeServiceError(w, err, "Ошибка создания бизнес-направления")
		return
	}

	writeJSON(w, http.StatusCreated, mapBusinessUnit(bu))
}

// ListBusinessUnits — GET /api/v1/business-units.
func (h *APIHandler) ListBusinessUnits(w http.ResponseWriter, r *http.Request) {
	actor := middleware.UserFromContext(r.Context())
	if actor == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	limit, offset := paginationParams(r)

	units, total, err := h.org.ListBusinessUnits(r.Context(), actor, limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения списка бизнес-направлений")
		return
	}

	items := make([]businessUnitResponse, len(units))
	for i, bu := range units {
		items[i] = mapBusinessUnit(bu)
	}

	writeJSON(w, http.StatusOK, newListResponse(items, total, limit, offset))
}

// GetBusinessUnit — GET /api/v1/business-units/{id}.
func (h *APIHandler) GetBusinessUnit(w http.ResponseWriter, r *http.Request) {
	actor := middleware.UserFromContext(r.Context())
	if actor == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	id, err := urlParamUUID(r, "id")
	if err != nil {
		apierrors.ValidationError(w, "Некорректный UUID бизнес-направления")
		return
	}

	bu, err := h.org.GetBusinessUnit(r.Context(), actor, id)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения бизнес-направления", "id", id)
		return
	}

	writeJSON(w, http.StatusOK, mapBusinessUnit(bu))
}

// UpdateBusinessUnit — PATCH /api/v1/business-units/{id}.
func (h *APIHandler) UpdateBusinessUnit(w http.ResponseWriter, r *http.Request) {
	actor := middleware.UserFromContext(r.Context())
	if actor == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	id, err := urlParamUUID(r, "id")
	if err != nil {
		apierrors.ValidationError(w, "Некорректный UUID бизнес-направления")
		return
	}

	var req businessUnitUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	patch := model.BusinessUnitPatch{
		Name:        req.Name,
		Code:        req.Code,
		Description: req.Description,
		IsActive:    req.IsActive,
	}

	bu, err := h.org.UpdateBusinessUnit(r.Context(), actor, id, patch)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка обновления бизнес-направления", "id", id)
		return
	}

	writeJSON(w, http.StatusOK, mapBusinessUnit(bu))
}

// DeleteBusinessUnit — DELETE /api/v1/business-units/{id}.
// Направление с привязанными функциями, пользователями или файлами
// не удаляется (409).
func (h *APIHandler) DeleteBusinessUnit(w http.ResponseWriter, r *http.Request) {
	actor := middleware.UserFromContext(r.Context())
	if actor == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	id, err := urlParamUUID(r, "id")
	if err != nil {
		apierrors.ValidationError(w, "Некорректный UUID бизнес-направления")
		return
	}

	if err := h.org.DeleteBusinessUnit(r.Context(), actor, id); err != nil {
		h.writeServiceError(w, err, "Ошибка удаления бизнес-направления", "id", id)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
