package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/orgfiles/internal/domain/model"
	"github.com/bigkaa/orgfiles/internal/repository"
	"github.com/bigkaa/orgfiles/internal/storage"
)

// --- Mock repository ---

// mockFileRepo — мок FileRepository для unit-тестов.
type mockFileRepo struct {
	createFn        func(ctx context.Context, f *model.File) error
	getByIDFn       func(ctx context.Context, id uuid.UUID) (*model.File, error)
	listFn          func(ctx context.Context, filters repository.FileListFilters, limit, offset int) ([]*model.File, error)
	countFn         func(ctx context.Context, filters repository.FileListFilters) (int, error)
	replaceGrantsFn func(ctx context.Context, fileID uuid.UUID, functionIDs []uuid.UUID) error
	setVisibleBUFn  func(ctx context.Context, fileID uuid.UUID, buID *uuid.UUID) error
	deleteFn        func(ctx context.Context, id uuid.UUID) error
}

func (m *mockFileRepo) Create(ctx context.Context, f *model.File) error {
	if m.createFn != nil {
		return m.createFn(ctx, f)
	}
	return nil
}

func (m *mockFileRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.File, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockFileRepo) List(ctx context.Context, filters repository.FileListFilters, limit, offset int) ([]*model.File, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filters, limit, offset)
	}
	return nil, nil
}

func (m *mockFileRepo) Count(ctx context.Context, filters repository.FileListFilters) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx, filters)
	}
	return 0, nil
}

func (m *mockFileRepo) ReplaceGrants(ctx context.Context, fileID uuid.UUID, functionIDs []uuid.UUID) error {
	if m.replaceGrantsFn != nil {
		return m.replaceGrantsFn(ctx, fileID, functionIDs)
	}
	return nil
}

func (m *mockFileRepo) SetVisibleBU(ctx context.Context, fileID uuid.UUID, buID *uuid.UUID) error {
	if m.setVisibleBUFn != nil {
		return m.setVisibleBUFn(ctx, fileID, buID)
	}
	return nil
}

func (m *mockFileRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

// mockFileTxRepo — мок FileTxRepository.
type mockFileTxRepo struct {
	createFn           func(ctx context.Context, f *model.File) error
	updateVisibilityFn func(ctx context.Context, fileID uuid.UUID, patch model.FileVisibilityPatch) error
}

func (m *mockFileTxRepo) CreateWithGrants(ctx context.Context, f *model.File) error {
	if m.createFn != nil {
		return m.createFn(ctx, f)
	}
	f.ID = uuid.New()
	f.CreatedAt = time.Now().UTC()
	return nil
}

func (m *mockFileTxRepo) UpdateVisibility(ctx context.Context, fileID uuid.UUID, patch model.FileVisibilityPatch) error {
	if m.updateVisibilityFn != nil {
		return m.updateVisibilityFn(ctx, fileID, patch)
	}
	return nil
}

// mockBlobStore — мок BlobStore с учётом вызовов.
type mockBlobStore struct {
	putFn       func(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	getFn       func(ctx context.Context, key string) (*storage.Object, error)
	deleteFn    func(ctx context.Context, key string) error
	presignFn   func(ctx context.Context, key, filename string, ttl time.Duration) (string, error)
	deletedKeys []string
}

func (m *mockBlobStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if m.putFn != nil {
		return m.putFn(ctx, key, r, size, contentType)
	}
	return nil
}

func (m *mockBlobStore) Get(ctx context.Context, key string) (*storage.Object, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return &storage.Object{Reader: io.NopCloser(bytes.NewReader(nil))}, nil
}

func (m *mockBlobStore) Delete(ctx context.Context, key string) error {
	m.deletedKeys = append(m.deletedKeys, key)
	if m.deleteFn != nil {
		return m.deleteFn(ctx, key)
	}
	return nil
}

func (m *mockBlobStore) PresignedURL(ctx context.Context, key, filename string, ttl time.Duration) (string, error) {
	if m.presignFn != nil {
		return m.presignFn(ctx, key, filename, ttl)
	}
	return "https://minio.example.com/" + key, nil
}

func newFileService(repo repository.FileRepository, txRepo FileTxRepository, blobs BlobStore) *FileService {
	return NewFileService(repo, txRepo, blobs, NewFileCache(100, time.Minute),
		1024*1024, time.Hour, slog.Default())
}

func activeUser(superuser bool) *model.User {
	return &model.User{ID: uuid.New(), Email: "user@example.com", IsActive: true, IsSuperuser: superuser}
}

// --- Тесты Upload ---

func TestFileService_Upload(t *testing.T) {
	actor := activeUser(false)
	var putKey string
	blobs := &mockBlobStore{
		putFn: func(_ context.Context, key string, _ io.Reader, size int64, contentType string) error {
			putKey = key
			if size != 5 {
				t.Errorf("size = %d, хотели 5", size)
			}
			if contentType != "text/plain" {
				t.Errorf("contentType = %q, хотели text/plain", contentType)
			}
			return nil
		},
	}

	svc := newFileService(&mockFileRepo{}, &mockFileTxRepo{}, blobs)

	f, err := svc.Upload(context.Background(), actor, UploadInput{
		Filename:    "Notes.TXT",
		ContentType: "text/plain",
		Size:        5,
		Reader:      strings.NewReader("hello"),
	})
	if err != nil {
		t.Fatalf("Upload() ошибка: %v", err)
	}
	if f.OwnerID != actor.ID {
		t.Errorf("OwnerID = %s, хотели %s", f.OwnerID, actor.ID)
	}
	if f.OriginalFilename != "Notes.TXT" {
		t.Errorf("OriginalFilename = %q", f.OriginalFilename)
	}
	// Ключ: <владелец>/<uuid><расширение в нижнем регистре>
	if !strings.HasPrefix(putKey, actor.ID.String()+"/") {
		t.Errorf("ключ %q не начинается с ID владельца", putKey)
	}
	if !strings.HasSuffix(putKey, ".txt") {
		t.Errorf("ключ %q не заканчивается расширением .txt", putKey)
	}
	if strings.Contains(putKey, "Notes") {
		t.Errorf("имя файла от пользователя попало в ключ: %q", putKey)
	}
}

func TestFileService_Upload_Validation(t *testing.T) {
	svc := newFileService(&mockFileRepo{}, &mockFileTxRepo{}, &mockBlobStore{})
	actor := activeUser(false)

	tests := []struct {
		name string
		in   UploadInput
	}{
		{name: "пустое имя", in: UploadInput{Filename: "  ", Size: 1, Reader: strings.NewReader("x")}},
		{name: "нулевой размер", in: UploadInput{Filename: "a.txt", Size: 0, Reader: strings.NewReader("")}},
		{name: "превышение лимита", in: UploadInput{Filename: "a.txt", Size: 2 * 1024 * 1024, Reader: strings.NewReader("x")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Upload(context.Background(), actor, tt.in); !errors.Is(err, ErrValidation) {
				t.Errorf("ожидали ErrValidation, получили %v", err)
			}
		})
	}
}

// При ошибке записи метаданных загруженный объект удаляется.
func TestFileService_Upload_MetadataFailureCleansBlob(t *testing.T) {
	blobs := &mockBlobStore{}
	txRepo := &mockFileTxRepo{
		createFn: func(_ context.Context, _ *model.File) error {
			return repository.ErrForeignKey
		},
	}
	svc := newFileService(&mockFileRepo{}, txRepo, blobs)

	_, err := svc.Upload(context.Background(), activeUser(false), UploadInput{
		Filename: "a.txt", Size: 1, Reader: strings.NewReader("x"),
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("ожидали ErrValidation, получили %v", err)
	}
	if len(blobs.deletedKeys) != 1 {
		t.Errorf("объект не удалён после ошибки метаданных: %v", blobs.deletedKeys)
	}
}

func TestFileService_Upload_StorageUnavailable(t *testing.T) {
	blobs := &mockBlobStore{
		putFn: func(_ context.Context, _ string, _ io.Reader, _ int64, _ string) error {
			return storage.ErrUnavailable
		},
	}
	svc := newFileService(&mockFileRepo{}, &mockFileTxRepo{}, blobs)

	_, err := svc.Upload(context.Background(), activeUser(false), UploadInput{
		Filename: "a.txt", Size: 1, Reader: strings.NewReader("x"),
	})
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("ожидали ErrStorageUnavailable, получили %v", err)
	}
}

// --- Тесты Get / доступ ---

func TestFileService_Get_AccessDenied(t *testing.T) {
	owner := activeUser(false)
	outsider := activeUser(false)
	buID := uuid.New()

	f := &model.File{
		ID:          uuid.New(),
		OwnerID:     owner.ID,
		VisibleBUID: &buID,
	}
	repo := &mockFileRepo{
		getByIDFn: func(_ context.Context, _ uuid.UUID) (*model.File, error) { return f, nil },
	}
	svc := newFileService(repo, &mockFileTxRepo{}, &mockBlobStore{})

	if _, err := svc.Get(context.Background(), owner, f.ID); err != nil {
		t.Errorf("владелец должен иметь доступ: %v", err)
	}
	if _, err := svc.Get(context.Background(), outsider, f.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("ожидали ErrForbidden, получили %v", err)
	}
}

func TestFileService_Get_CacheHit(t *testing.T) {
	calls := 0
	f := &model.File{ID: uuid.New(), OwnerID: uuid.New()}
	repo := &mockFileRepo{
		getByIDFn: func(_ context.Context, _ uuid.UUID) (*model.File, error) {
			calls++
			return f, nil
		},
	}
	svc := newFileService(repo, &mockFileTxRepo{}, &mockBlobStore{})
	su := activeUser(true)

	for i := 0; i < 3; i++ {
		if _, err := svc.Get(context.Background(), su, f.ID); err != nil {
			t.Fatalf("Get() ошибка: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("репозиторий вызван %d раз, хотели 1 (остальные из кэша)", calls)
	}
}

func TestFileService_Get_NotFound(t *testing.T) {
	svc := newFileService(&mockFileRepo{}, &mockFileTxRepo{}, &mockBlobStore{})
	if _, err := svc.Get(context.Background(), activeUser(true), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидали ErrNotFound, получили %v", err)
	}
}

// --- Тесты List ---

func TestFileService_List_Filters(t *testing.T) {
	var gotFilters repository.FileListFilters
	repo := &mockFileRepo{
		listFn: func(_ context.Context, filters repository.FileListFilters, _, _ int) ([]*model.File, error) {
			gotFilters = filters
			return nil, nil
		},
	}
	svc := newFileService(repo, &mockFileTxRepo{}, &mockBlobStore{})

	// Обычный пользователь без ownerOnly — фильтр видимости
	user := activeUser(false)
	if _, _, err := svc.List(context.Background(), user, false, 10, 0); err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if gotFilters.VisibleTo != user {
		t.Error("для обычного пользователя должен задаваться фильтр видимости")
	}

	// Суперпользователь без ownerOnly — без фильтров
	su := activeUser(true)
	if _, _, err := svc.List(context.Background(), su, false, 10, 0); err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if gotFilters.VisibleTo != nil || gotFilters.OwnerID != nil {
		t.Error("суперпользователь должен видеть все файлы без фильтров")
	}

	// ownerOnly — фильтр по владельцу
	if _, _, err := svc.List(context.Background(), user, true, 10, 0); err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if gotFilters.OwnerID == nil || *gotFilters.OwnerID != user.ID {
		t.Error("ownerOnly должен задавать фильтр по владельцу")
	}
}

// --- Тесты UpdateVisibility ---

func TestFileService_UpdateVisibility_OnlyManager(t *testing.T) {
	owner := activeUser(false)
	outsider := activeUser(false)
	f := &model.File{ID: uuid.New(), OwnerID: owner.ID}

	repo := &mockFileRepo{
		getByIDFn: func(_ context.Context, _ uuid.UUID) (*model.File, error) { return f, nil },
	}
	svc := newFileService(repo, &mockFileTxRepo{}, &mockBlobStore{})

	buID := uuid.New()
	patch := model.FileVisibilityPatch{VisibleBUID: &buID}

	if _, err := svc.UpdateVisibility(context.Background(), outsider, f.ID, patch); !errors.Is(err, ErrForbidden) {
		t.Errorf("посторонний: ожидали ErrForbidden, получили %v", err)
	}
	if _, err := svc.UpdateVisibility(context.Background(), owner, f.ID, patch); err != nil {
		t.Errorf("владелец: %v", err)
	}
}

// Кэш инвалидируется после изменения видимости.
func TestFileService_UpdateVisibility_InvalidatesCache(t *testing.T) {
	owner := activeUser(false)
	f := &model.File{ID: uuid.New(), OwnerID: owner.ID}
	calls := 0
	repo := &mockFileRepo{
		getByIDFn: func(_ context.Context, _ uuid.UUID) (*model.File, error) {
			calls++
			return f, nil
		},
	}
	svc := newFileService(repo, &mockFileTxRepo{}, &mockBlobStore{})

	// Прогреваем кэш
	if _, err := svc.Get(context.Background(), owner, f.ID); err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}

	buID := uuid.New()
	if _, err := svc.UpdateVisibility(context.Background(), owner, f.ID, model.FileVisibilityPatch{VisibleBUID: &buID}); err != nil {
		t.Fatalf("UpdateVisibility() ошибка: %v", err)
	}
	// 1 (прогрев) + 1 (перечитывание после инвалидации)
	if calls < 2 {
		t.Errorf("репозиторий вызван %d раз, кэш не инвалидирован", calls)
	}
}

// --- Тесты Delete ---

// Объект удаляется первым; ошибка хранилища не мешает удалению метаданных.
func TestFileService_Delete_BlobFirstThenMetadata(t *testing.T) {
	owner := activeUser(false)
	f := &model.File{ID: uuid.New(), OwnerID: owner.ID, StorageKey: "k/1.txt"}

	var order []string
	repo := &mockFileRepo{
		getByIDFn: func(_ context.Context, _ uuid.UUID) (*model.File, error) { return f, nil },
		deleteFn: func(_ context.Context, _ uuid.UUID) error {
			order = append(order, "metadata")
			return nil
		},
	}
	blobs := &mockBlobStore{
		deleteFn: func(_ context.Context, _ string) error {
			order = append(order, "blob")
			return storage.ErrUnavailable // хранилище упало
		},
	}
	svc := newFileService(repo, &mockFileTxRepo{}, blobs)

	if err := svc.Delete(context.Background(), owner, f.ID); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if len(order) != 2 || order[0] != "blob" || order[1] != "metadata" {
		t.Errorf("порядок удаления %v, хотели [blob metadata]", order)
	}
}

func TestFileService_Delete_OnlyManager(t *testing.T) {
	owner := activeUser(false)
	reader := activeUser(false)
	fnID := uuid.New()
	reader.FunctionID = &fnID

	f := &model.File{ID: uuid.New(), OwnerID: owner.ID, VisibleFunctionIDs: []uuid.UUID{fnID}}
	repo := &mockFileRepo{
		getByIDFn: func(_ context.Context, _ uuid.UUID) (*model.File, error) { return f, nil },
	}
	svc := newFileService(repo, &mockFileTxRepo{}, &mockBlobStore{})

	// Читатель по гранту видит файл, но удалить не может
	if _, err := svc.Get(context.Background(), reader, f.ID); err != nil {
		t.Fatalf("читатель должен видеть файл: %v", err)
	}
	if err := svc.Delete(context.Background(), reader, f.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("ожидали ErrForbidden, получили %v", err)
	}
}

// --- Тесты Download / PresignedURL ---

func TestFileService_Download(t *testing.T) {
	owner := activeUser(false)
	f := &model.File{ID: uuid.New(), OwnerID: owner.ID, StorageKey: "k/1.txt", ContentType: "text/plain"}
	repo := &mockFileRepo{
		getByIDFn: func(_ context.Context, _ uuid.UUID) (*model.File, error) { return f, nil },
	}
	blobs := &mockBlobStore{
		getFn: func(_ context.Context, key string) (*storage.Object, error) {
			if key != f.StorageKey {
				t.Errorf("key = %q, хотели %q", key, f.StorageKey)
			}
			return &storage.Object{
				Reader:      io.NopCloser(strings.NewReader("data")),
				Size:        4,
				ContentType: "text/plain",
			}, nil
		},
	}
	svc := newFileService(repo, &mockFileTxRepo{}, blobs)

	meta, obj, err := svc.Download(context.Background(), owner, f.ID)
	if err != nil {
		t.Fatalf("Download() ошибка: %v", err)
	}
	defer obj.Reader.Close()
	if meta.ID != f.ID {
		t.Errorf("ID = %s, хотели %s", meta.ID, f.ID)
	}
	data, _ := io.ReadAll(obj.Reader)
	if string(data) != "data" {
		t.Errorf("содержимое = %q", data)
	}
}

func TestFileService_PresignedURL(t *testing.T) {
	owner := activeUser(false)
	f := &model.File{ID: uuid.New(), OwnerID: owner.ID, StorageKey: "k/1.txt", OriginalFilename: "doc.txt"}
	repo := &mockFileRepo{
		getByIDFn: func(_ context.Context, _ uuid.UUID) (*model.File, error) { return f, nil },
	}
	blobs := &mockBlobStore{
		presignFn: func(_ context.Context, key, filename string, ttl time.Duration) (string, error) {
			if filename != "doc.txt" {
				t.Errorf("filename = %q", filename)
			}
			if ttl != time.Hour {
				t.Errorf("ttl = %v, хотели 1h", ttl)
			}
			return "https://minio.example.com/" + key, nil
		},
	}
	svc := newFileService(repo, &mockFileTxRepo{}, blobs)

	u, ttl, err := svc.PresignedURL(context.Background(), owner, f.ID, 0)
	if err != nil {
		t.Fatalf("PresignedURL() ошибка: %v", err)
	}
	if u == "" || ttl != time.Hour {
		t.Errorf("url=%q ttl=%v", u, ttl)
	}
}

func TestFileService_PresignedURL_TTLOverride(t *testing.T) {
	owner := activeUser(false)
	f := &model.File{ID: uuid.New(), OwnerID: owner.ID, StorageKey: "k/1.txt", OriginalFilename: "doc.txt"}
	repo := &mockFileRepo{
		getByIDFn: func(_ context.Context, _ uuid.UUID) (*model.File, error) { return f, nil },
	}

	tests := []struct {
		name    string
		ttl     time.Duration
		wantTTL time.Duration
	}{
		{"явный срок", 10 * time.Minute, 10 * time.Minute},
		{"усечение до суток", 72 * time.Hour, 24 * time.Hour},
		{"ноль — срок по умолчанию", 0, time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotTTL time.Duration
			blobs := &mockBlobStore{
				presignFn: func(_ context.Context, key, _ string, ttl time.Duration) (string, error) {
					gotTTL = ttl
					return "https://minio.example.com/" + key, nil
				},
			}
			svc := newFileService(repo, &mockFileTxRepo{}, blobs)

			_, ttl, err := svc.PresignedURL(context.Background(), owner, f.ID, tt.ttl)
			if err != nil {
				t.Fatalf("PresignedURL() ошибка: %v", err)
			}
			if ttl != tt.wantTTL {
				t.Errorf("ttl = %v, хотели %v", ttl, tt.wantTTL)
			}
			if gotTTL != tt.wantTTL {
				t.Errorf("ttl в хранилище = %v, хотели %v", gotTTL, tt.wantTTL)
			}
		})
	}
}
