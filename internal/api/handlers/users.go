// users.go — обработчики /api/v1/users endpoints.
// Просмотр и управление привязками пользователей к оргструктуре.
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

// userResponse — представление пользователя в API.
type userResponse struct {
	ID             uuid.UUID  `json:"id"`
	Email          string     `json:"email"`
	IsActive       bool       `json:"is_active"`
	IsSuperuser    bool       `json:"is_superuser"`
	BusinessUnitID *uuid.UUID `json:"business_unit_id"`
	FunctionID     *uuid.UUID `json:"function_id"`
	CreatedAt      time.Time  `json:"created_at"`
}

func mapUser(u *model.User) userResponse {
	return userResponse{
		ID:             u.ID,
		Email:          u.Email,
		IsActive:       u.IsActive,
		IsSuperuser:    u.IsSuperuser,
		BusinessUnitID: u.BusinessUnitID,
		FunctionID:     u.FunctionID,
		CreatedAt:      u.CreatedAt,
	}
}

// userUpdateRequest — тело PATCH /api/v1/users/{id}.
// Привязки принимают null для снятия, поэтому поля читаются
// как raw JSON (отличие «не передано» от «передан null»).
type userUpdateRequest struct {
	IsActive       *bool           `json:"is_active"`
	BusinessUnitID json.RawMessage `json:"business_unit_id"`
	FunctionID     json.RawMessage `json:"function_id"`
}

// GetMe — GET /api/v1/users/me.
// Возвращает учётную запись текущего пользователя.
func (h *APIHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	actor := middleware.UserFromContext(r.Context())
	if actor == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	writeJSON(w, http.StatusOK, mapUser(actor))
}

// ListUsers — GET /api/v1/users. Только для суперпользователя.
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	actor := middleware.UserFromContext(r.Context())
	if actor == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	limit, offset := paginationParams(r)

	users, total, err := h.org.ListUsers(r.Context(), actor, limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения списка пользователей")
		return
	}

	items := make([]userResponse, len(users))
	for i, u := range users {
		items[i] = mapUser(u)
	}

	writeJSON(w, http.StatusOK, newListResponse(items, total, limit, offset))
}

// GetUser — GET /api/v1/users/{id}.
// Пользователь видит себя; суперпользователь — всех.
func (h *APIHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	actor := middleware.UserFromContext(r.Context())
	if actor == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	id, err := urlParamUUID(r, "id")
	if err != nil {
		apierrors.ValidationError(w, "Некорректный UUID пользователя")
		return
	}

	user, err := h.org.GetUser(r.Context(), actor, id)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения пользователя", "id", id)
		return
	}

	writeJSON(w, http.StatusOK, mapUser(user))
}

// UpdateUser — PATCH /api/v1/users/{id}. Только для суперпользователя.
// Управляет активностью и привязками к оргструктуре.
func (h *APIHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	actor := middleware.UserFromContext(r.Context())
	if actor == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	id, err := urlParamUUID(r, "id")
	if err != nil {
		apierrors.ValidationError(w, "Некорректный UUID пользователя")
		return
	}

	var req userUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	patch := model.UserPatch{IsActive: req.IsActive}

	patch.BusinessUnitID, patch.ClearBusinessUnit, err = optionalUUID(req.BusinessUnitID)
	if err != nil {
		apierrors.ValidationError(w, "Некорректный UUID в business_unit_id")
		return
	}
	patch.FunctionID, patch.ClearFunction, err = optionalUUID(req.FunctionID)
	if err != nil {
		apierrors.ValidationError(w, "Некорректный UUID в function_id")
		return
	}

	user, err := h.org.UpdateUser(r.Context(), actor, id, patch)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка обновления пользователя", "id", id)
		return
	}

	writeJSON(w, http.StatusOK, mapUser(user))
}
