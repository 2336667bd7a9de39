// file.go — сервис файлов: загрузка, скачивание, видимость, удаление.
// Метаданные в PostgreSQL, содержимое в объектном хранилище.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/orgfiles/internal/domain/access"
	"github.com/bigkaa/orgfiles/internal/domain/model"
	"github.com/bigkaa/orgfiles/internal/repository"
	"github.com/bigkaa/orgfiles/internal/storage"
)

// BlobStore — операции с содержимым файлов.
// Реализуется storage.Store; в тестах подменяется моком.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (*storage.Object, error)
	Delete(ctx context.Context, key string) error
	PresignedURL(ctx context.Context, key, filename string, ttl time.Duration) (string, error)
}

// FileTxRepository — транзакционные операции над файлом и его грантами.
// Реализуется repository.FileTxStore.
type FileTxRepository interface {
	CreateWithGrants(ctx context.Context, f *model.File) error
	UpdateVisibility(ctx context.Context, fileID uuid.UUID, patch model.FileVisibilityPatch) error
}

// UploadInput — параметры загрузки файла.
type UploadInput struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
	// ResponsibleFunctionID — информационная привязка, доступа не даёт.
	ResponsibleFunctionID *uuid.UUID
	// VisibleBUID и VisibleFunctionIDs — начальные ограничения видимости.
	VisibleBUID        *uuid.UUID
	VisibleFunctionIDs []uuid.UUID
}

// FileService — сервис файлов.
type FileService struct {
	fileRepo repository.FileRepository
	txRepo   FileTxRepository
	blobs    BlobStore
	cache    *FileCache
	logger   *slog.Logger

	maxUploadSize int64
	presignTTL    time.Duration
}

// NewFileService создаёт сервис файлов.
func NewFileService(
	fileRepo repository.FileRepository,
	txRepo FileTxRepository,
	blobs BlobStore,
	cache *FileCache,
	maxUploadSize int64,
	presignTTL time.Duration,
	logger *slog.Logger,
) *FileService {
	return &FileService{
		fileRepo:      fileRepo,
		txRepo:        txRepo,
		blobs:         blobs,
		cache:         cache,
		maxUploadSize: maxUploadSize,
		presignTTL:    presignTTL,
		logger:        logger.With(slog.String("component", "file_service")),
	}
}

// Upload загружает файл: содержимое в хранилище, метаданные и гранты
// видимости — одной транзакцией в базу. При ошибке записи метаданных
// загруженный объект удаляется (best effort).
func (s *FileService) Upload(ctx context.Context, actor *model.User, in UploadInput) (*model.File, error) {
	if strings.TrimSpace(in.Filename) == "" {
		return nil, fmt.Errorf("%w: имя файла не может быть пустым", ErrValidation)
	}
	if in.Size <= 0 {
		return nil, fmt.Errorf("%w: размер файла должен быть положительным", ErrValidation)
	}
	if in.Size > s.maxUploadSize {
		return nil, fmt.Errorf("%w: размер файла %d превышает лимит %d", ErrValidation, in.Size, s.maxUploadSize)
	}

	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// Ключ объекта: <владелец>/<uuid><расширение>. Имя от пользователя
	// в ключ не попадает.
	key := fmt.Sprintf("%s/%s%s", actor.ID, uuid.New(), strings.ToLower(filepath.Ext(in.Filename)))

	if err := s.blobs.Put(ctx, key, in.Reader, in.Size, contentType); err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		return nil, fmt.Errorf("загрузка объекта: %w", err)
	}

	f := &model.File{
		StorageKey:            key,
		OriginalFilename:      in.Filename,
		ContentType:           contentType,
		FileSize:              in.Size,
		OwnerID:               actor.ID,
		ResponsibleFunctionID: in.ResponsibleFunctionID,
		VisibleBUID:           in.VisibleBUID,
		VisibleFunctionIDs:    in.VisibleFunctionIDs,
	}

	if err := s.txRepo.CreateWithGrants(ctx, f); err != nil {
		// Метаданные не записаны — убираем загруженный объект.
		if delErr := s.blobs.Delete(ctx, key); delErr != nil {
			s.logger.Warn("Не удалось удалить объект после ошибки записи метаданных",
				slog.String("storage_key", key),
				slog.String("error", delErr.Error()),
			)
		}
		if errors.Is(err, repository.ErrForeignKey) {
			return nil, fmt.Errorf("%w: направление или функция не найдена", ErrValidation)
		}
		return nil, fmt.Errorf("регистрация файла: %w", err)
	}

	s.cache.Set(f.ID, f)

	s.logger.Info("Файл загружен",
		slog.String("file_id", f.ID.String()),
		slog.String("storage_key", key),
		slog.String("owner_id", actor.ID.String()),
		slog.Int64("size", f.FileSize),
	)
	return f, nil
}

// Get возвращает метаданные файла с проверкой доступа.
func (s *FileService) Get(ctx context.Context, actor *model.User, id uuid.UUID) (*model.File, error) {
	f, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.CanRead(actor, f) {
		return nil, ErrForbidden
	}
	return f, nil
}

// Download открывает содержимое файла для чтения с проверкой доступа.
func (s *FileService) Download(ctx context.Context, actor *model.User, id uuid.UUID) (*model.File, *storage.Object, error) {
	f, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}

	obj, err := s.blobs.Get(ctx, f.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			return nil, nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		return nil, nil, fmt.Errorf("получение объекта: %w", err)
	}
	return f, obj, nil
}

// maxPresignTTL — верхняя граница срока действия presigned URL.
const maxPresignTTL = 24 * time.Hour

// PresignedURL возвращает временную ссылку на скачивание с проверкой
// доступа. ttl <= 0 означает срок по умолчанию; значения выше суточного
// предела усекаются.
func (s *FileService) PresignedURL(ctx context.Context, actor *model.User, id uuid.UUID, ttl time.Duration) (string, time.Duration, error) {
	if ttl <= 0 {
		ttl = s.presignTTL
	}
	if ttl > maxPresignTTL {
		ttl = maxPresignTTL
	}

	f, err := s.Get(ctx, actor, id)
	if err != nil {
		return "", 0, err
	}

	u, err := s.blobs.PresignedURL(ctx, f.StorageKey, f.OriginalFilename, ttl)
	if err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			return "", 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		return "", 0, fmt.Errorf("создание presigned URL: %w", err)
	}
	return u, ttl, nil
}

// List возвращает файлы, доступные пользователю (новые первыми).
// ownerOnly ограничивает выборку файлами самого пользователя.
// Суперпользователь без ownerOnly видит все файлы.
func (s *FileService) List(ctx context.Context, actor *model.User, ownerOnly bool, limit, offset int) ([]*model.File, int, error) {
	filters := repository.FileListFilters{}
	if ownerOnly {
		filters.OwnerID = &actor.ID
	} else if !actor.IsSuperuser {
		filters.VisibleTo = actor
	}

	files, err := s.fileRepo.List(ctx, filters, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("получение списка файлов: %w", err)
	}
	total, err := s.fileRepo.Count(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("подсчёт файлов: %w", err)
	}
	return files, total, nil
}

// UpdateVisibility изменяет ограничения видимости файла.
// Разрешено владельцу и суперпользователю.
func (s *FileService) UpdateVisibility(ctx context.Context, actor *model.User, id uuid.UUID, patch model.FileVisibilityPatch) (*model.File, error) {
	f, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.CanManage(actor, f) {
		return nil, ErrForbidden
	}

	if err := s.txRepo.UpdateVisibility(ctx, id, patch); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, repository.ErrForeignKey):
			return nil, fmt.Errorf("%w: направление или функция не найдена", ErrValidation)
		}
		return nil, fmt.Errorf("обновление видимости файла: %w", err)
	}

	s.cache.Delete(id)

	updated, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Видимость файла обновлена",
		slog.String("file_id", id.String()),
		slog.String("actor", actor.ID.String()),
	)
	return updated, nil
}

// Delete удаляет файл. Разрешено владельцу и суперпользователю.
// Сначала удаляется объект в хранилище; при ошибке удаление метаданных
// всё равно выполняется — осиротевший объект допустим, недоступные
// через реестр байты лучше записи, указывающей в пустоту.
func (s *FileService) Delete(ctx context.Context, actor *model.User, id uuid.UUID) error {
	f, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !access.CanManage(actor, f) {
		return ErrForbidden
	}

	if err := s.blobs.Delete(ctx, f.StorageKey); err != nil {
		s.logger.Warn("Не удалось удалить объект, метаданные будут удалены",
			slog.String("file_id", id.String()),
			slog.String("storage_key", f.StorageKey),
			slog.String("error", err.Error()),
		)
	}

	if err := s.fileRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("удаление записи файла: %w", err)
	}

	s.cache.Delete(id)

	s.logger.Info("Файл удалён",
		slog.String("file_id", id.String()),
		slog.String("actor", actor.ID.String()),
	)
	return nil
}

// load возвращает файл из кэша или базы без проверки доступа.
func (s *FileService) load(ctx context.Context, id uuid.UUID) (*model.File, error) {
	if f, ok := s.cache.Get(id); ok {
		return f, nil
	}

	f, err := s.fileRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение файла: %w", err)
	}

	s.cache.Set(id, f)
	return f, nil
}
