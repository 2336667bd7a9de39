// files.go — обработчики /api/v1/files endpoints.
// Загрузка, скачивание, списки, видимость и удаление файлов.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/bigkaa/orgfiles/internal/api/errors"
	"github.com/bigkaa/orgfiles/internal/api/middleware"
	"github.com/bigkaa/orgfiles/internal/domain/model"
	"github.com/bigkaa/orgfiles/internal/service"
)

// fileResponse — представление файла в API.
// Ключ объекта в хранилище наружу не отдаётся.
type fileResponse struct {
	ID                    uuid.UUID   `json:"id"`
	OriginalFilename      string      `json:"original_filename"`
	ContentType           string      `json:"content_type"`
	FileSize              int64       `json:"file_size"`
	OwnerID               uuid.UUID   `json:"owner_id"`
	ResponsibleFunctionID *uuid.UUID  `json:"responsible_function_id"`
	VisibleBUID           *uuid.UUID  `json:"visible_bu_id"`
	VisibleFunctionIDs    []uuid.UUID `json:"visible_function_ids"`
	CreatedAt             time.Time   `json:"created_at"`
}

func mapFile(f *model.File) fileResponse {
	ids := f.VisibleFunctionIDs
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return fileResponse{
		ID:                    f.ID,
		OriginalFilename:      f.OriginalFilename,
		ContentType:           f.ContentType,
		FileSize:              f.FileSize,
		OwnerID:               f.OwnerID,
		ResponsibleFunctionID: f.ResponsibleFunctionID,
		VisibleBUID:           f.VisibleBUID,
		VisibleFunctionIDs:    ids,
		CreatedAt:             f.CreatedAt,
	}
}

// UploadFile — POST /api/v1/files.
// Принимает multipart/form-data: часть file плюс опциональные поля
// responsible_function_id, visible_bu_id, visible_function_ids.
func (h *APIHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	actor := middleware.UserFromContext(r.Context())
	if actor == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	// Запас поверх лимита — на multipart-обвязку и текстовые поля
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+1<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			apierrors.ValidationError(w, "Файл превышает максимально допустимый размер")
			return
		}
		apierrors.ValidationError(w, "Отсутствует часть file в multipart-запросе")
		return
	}
	defer file.Close() //nolint:errcheck

	in := service.UploadInput{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Reader:      file,
	}

	if v := r.FormValue("responsible_function_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			apierrors.ValidationError(w, "Некорректный UUID в responsible_function_id")
			return
		}
		in.ResponsibleFunctionID = &id
	}
	if v := r.FormValue("visible_bu_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			apierrors.ValidationError(w, "Некорректный UUID в visible_bu_id")
			return
		}
		in.VisibleBUID = &id
	}
	if v := r.FormValue("visible_function_ids"); v != "" {
		ids, err := parseUUIDList(v)
		if err != nil {
			apierrors.ValidationError(w, "Некорректный UUID в visible_function_ids")
			return
		}
		in.VisibleFunctionIDs = ids
	}

	f, err := h.files.Upload(r.Context(), actor, in)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка загрузки файла", "filename", header.Filename)
		return
	}

	writeJSON(w, http.StatusCreated, mapFile(f))
}

// ListFiles — GET /api/v1/files.
// Возвращает файлы, доступные текущему пользователю.
// ?owner_only=true ограничивает список собственными файлами.
func (h *APIHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	actor := middleware.UserFromContext(r.Context())
	if actor == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	limit, offset := paginationParams(r)
	ownerOnly := r.URL.Query().Get("owner_only") == "true"

	files, total, err := h.files.List(r.Context(), actor, ownerOnly, limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения списка файлов")
		return
	}

	items := make([]fileResponse, len(files))
	for i, f := range files {
		items[i] = mapFile(f)
	}

	writeJSON(w, http.StatusOK, newListResponse(items, total, limit, offset))
}

// GetFile — GET /api/v1/files/{id}.
// Возвращает метаданные файла, если он доступен пользователю.
func (h *APIHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	actor := middleware.UserFromContext(r.Context())
	if actor == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	id, err := urlParamUUID(r, "id")
	if err != nil {
		apierrors.ValidationError(w, "Некорректный UUID файла")
		return
	}

	f, err := h.files.Get(r.Context(), actor, id)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения файла", "id", id)
		return
	}

	writeJSON(w, http.StatusOK, mapFile(f))
}

// DownloadFile — GET /api/v1/files/{id}/download.
// Отдаёт содержимое файла потоком из хранилища.
func (h *APIHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	actor := middleware.UserFromContext(r.Context())
	if actor == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	id, err := urlParamUUID(r, "id")
	if err != nil {
		apierrors.ValidationError(w, "Некорректный UUID файла")
		return
	}

	f, obj, err := h.files.Download(r.Context(), actor, id)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка скачивания файла", "id", id)
		return
	}
	defer obj.Reader.Close() //nolint:errcheck

	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(f.OriginalFilename))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, obj.Reader); err != nil {
		// Заголовки уже отправлены, остаётся только залогировать
		h.logger.Warn("Прерван поток скачивания файла", "id", id, "error", err)
	}
}

// PresignedURL — GET /api/v1/files/{id}/presigned-url.
// Возвращает временную ссылку на скачивание напрямую из хранилища.
// Параметр expires_in задаёт срок действия ссылки в секундах.
func (h *APIHandler) PresignedURL(w http.ResponseWriter, r *http.Request) {
	actor := middleware.UserFromContext(r.Context())
	if actor == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	id, err := urlParamUUID(r, "id")
	if err != nil {
		apierrors.ValidationError(w, "Некорректный UUID файла")
		return
	}

	var ttl time.Duration
	if raw := r.URL.Query().Get("expires_in"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			apierrors.ValidationError(w, "Параметр expires_in должен быть положительным числом секунд")
			return
		}
		ttl = time.Duration(seconds) * time.Second
	}

	url, ttl, err := h.files.PresignedURL(r.Context(), actor, id, ttl)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка создания presigned URL", "id", id)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"url":        url,
		"expires_in": int(ttl.Seconds()),
	})
}

// fileVisibilityRequest — тело PATCH /api/v1/files/{id}/visibility.
// visible_bu_id принимает null для снятия ограничения.
type fileVisibilityRequest struct {
	VisibleBUID        json.RawMessage `json:"visible_bu_id"`
	VisibleFunctionIDs *[]uuid.UUID    `json:"visible_function_ids"`
}

// UpdateFileVisibility — PATCH /api/v1/files/{id}/visibility.
// Доступно владельцу файла и суперпользователю.
func (h *APIHandler) UpdateFileVisibility(w http.ResponseWriter, r *http.Request) {
	actor := middleware.UserFromContext(r.Context())
	if actor == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	id, err := urlParamUUID(r, "id")
	if err != nil {
		apierrors.ValidationError(w, "Некорректный UUID файла")
		return
	}

	var req fileVisibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	patch := model.FileVisibilityPatch{
		VisibleFunctionIDs: req.VisibleFunctionIDs,
	}
	patch.VisibleBUID, patch.ClearVisibleBU, err = optionalUUID(req.VisibleBUID)
	if err != nil {
		apierrors.ValidationError(w, "Некорректный UUID в visible_bu_id")
		return
	}

	f, err := h.files.UpdateVisibility(r.Context(), actor, id, patch)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка обновления видимости файла", "id", id)
		return
	}

	writeJSON(w, http.StatusOK, mapFile(f))
}

// DeleteFile — DELETE /api/v1/files/{id}.
// Доступно владельцу файла и суперпользователю.
func (h *APIHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	actor := middleware.UserFromContext(r.Context())
	if actor == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	id, err := urlParamUUID(r, "id")
	if err != nil {
		apierrors.ValidationError(w, "Некорректный UUID файла")
		return
	}

	if err := h.files.Delete(r.Context(), actor, id); err != nil {
		h.writeServiceError(w, err, "Ошибка удаления файла", "id", id)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// parseUUIDList разбирает список UUID, разделённых запятыми.
func parseUUIDList(s string) ([]uuid.UUID, error) {
	parts := strings.Split(s, ",")
	ids := make([]uuid.UUID, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := uuid.Parse(p)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
