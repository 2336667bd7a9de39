// handler.go — основной обработчик API Orgfiles.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/bigkaa/orgfiles/internal/api/errors"
	"github.com/bigkaa/orgfiles/internal/service"
)

// APIHandler — основной обработчик API Orgfiles.
type APIHandler struct {
	health *HealthHandler
	org    *service.OrgService
	files  *service.FileService
	logger *slog.Logger

	// maxUploadSize ограничивает размер multipart-тела при загрузке.
	maxUploadSize int64
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	org *service.OrgService,
	files *service.FileService,
	maxUploadSize int64,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:        health,
		org:           org,
		files:         files,
		maxUploadSize: maxUploadSize,
		logger:        logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError транслирует ошибки сервисного слоя в HTTP-ответы.
// Неизвестные ошибки логируются и возвращаются как 500.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error, logMsg string, args ...any) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrReferenced):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrStorageUnavailable):
		apierrors.StorageUnavailable(w, "Объектное хранилище недоступно")
	default:
		h.logger.Error(logMsg, append(args, "error", err)...)
		apierrors.InternalError(w, logMsg)
	}
}

// paginationParams читает limit и offset из query-параметров запроса
// и нормализует их к допустимым значениям.
func paginationParams(r *http.Request) (int, int) {
	l := 100
	o := 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			l = parsed
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			o = parsed
		}
	}

	if l < 1 {
		l = 1
	}
	if l > 1000 {
		l = 1000
	}
	if o < 0 {
		o = 0
	}

	return l, o
}

// urlParamUUID извлекает UUID из path-параметра chi.
func urlParamUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}

// optionalUUID разбирает raw JSON значение в UUID с трёхзначной
// семантикой PATCH: поле отсутствует (absent), передан null (clear)
// или передано значение (id).
func optionalUUID(raw json.RawMessage) (id *uuid.UUID, clear bool, err error) {
	if len(raw) == 0 {
		return nil, false, nil
	}
	if string(raw) == "null" {
		return nil, true, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false, err
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return nil, false, err
	}
	return &parsed, false, nil
}

// listResponse — обёртка списочных ответов с пагинацией.
type listResponse[T any] struct {
	Items   []T  `json:"items"`
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

func newListResponse[T any](items []T, total, limit, offset int) listResponse[T] {
	return listResponse[T]{
		Items:   items,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	}
}
