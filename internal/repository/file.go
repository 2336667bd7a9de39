package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/orgfiles/internal/domain/model"
)

// FileRepository — интерфейс CRUD для таблиц files и file_visibility_grants.
// Гранты видимости загружаются и сохраняются вместе с файлом.
type FileRepository interface {
	// Create создаёт запись файла вместе с грантами видимости.
	// Для атомарности внешний код должен передать репозиторию
	// транзакцию через NewFileRepository(tx).
	Create(ctx context.Context, f *model.File) error
	// GetByID возвращает файл с загруженными грантами.
	GetByID(ctx context.Context, id uuid.UUID) (*model.File, error)
	// List возвращает файлы (новые первыми) с загруженными грантами.
	List(ctx context.Context, filters FileListFilters, limit, offset int) ([]*model.File, error)
	// Count возвращает количество файлов с фильтрацией.
	Count(ctx context.Context, filters FileListFilters) (int, error)
	// ReplaceGrants заменяет набор грантов видимости файла.
	ReplaceGrants(ctx context.Context, fileID uuid.UUID, functionIDs []uuid.UUID) error
	// SetVisibleBU устанавливает или снимает видимость для направления.
	SetVisibleBU(ctx context.Context, fileID uuid.UUID, buID *uuid.UUID) error
	// Delete удаляет запись файла; гранты удаляются каскадно.
	Delete(ctx context.Context, id uuid.UUID) error
}

// FileListFilters — фильтры списка файлов.
type FileListFilters struct {
	// OwnerID — только файлы указанного владельца.
	OwnerID *uuid.UUID
	// VisibleTo — только файлы, доступные пользователю для чтения.
	// Условие повторяет правила domain/access на уровне SQL,
	// чтобы пагинация и подсчёт оставались точными.
	// Для суперпользователя фильтр не задаётся.
	VisibleTo *model.User
}

type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

const fileColumns = `id, storage_key, original_filename, content_type, file_size,
		owner_id, responsible_function_id, visible_bu_id, created_at`

func (r *fileRepo) Create(ctx context.Context, f *model.File) error {
	query := `
		INSERT INTO files (storage_key, original_filename, content_type, file_size,
			owner_id, responsible_function_id, visible_bu_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		f.StorageKey, f.OriginalFilename, f.ContentType, f.FileSize,
		f.OwnerID, f.ResponsibleFunctionID, f.VisibleBUID,
	).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: файл с таким ключом хранилища уже существует", ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: направление или функция не существует", ErrForeignKey)
		}
		return fmt.Errorf("ошибка создания записи файла: %w", err)
	}

	if err := r.insertGrants(ctx, f.ID, f.VisibleFunctionIDs); err != nil {
		return err
	}
	return nil
}

// insertGrants вставляет гранты видимости. Дубликаты во входном
// срезе схлопываются через ON CONFLICT DO NOTHING.
func (r *fileRepo) insertGrants(ctx context.Context, fileID uuid.UUID, functionIDs []uuid.UUID) error {
	for _, fnID := range functionIDs {
		_, err := r.db.Exec(ctx, `
			INSERT INTO file_visibility_grants (file_id, function_id)
			VALUES ($1, $2)
			ON CONFLICT (file_id, function_id) DO NOTHING`,
			fileID, fnID,
		)
		if err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("%w: функция %s не существует", ErrForeignKey, fnID)
			}
			return fmt.Errorf("ошибка создания гранта видимости: %w", err)
		}
	}
	return nil
}

func (r *fileRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.File, error) {
	query := fmt.Sprintf(`SELECT %s FROM files WHERE id = $1`, fileColumns)

	f := &model.File{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&f.ID, &f.StorageKey, &f.OriginalFilename, &f.ContentType, &f.FileSize,
		&f.OwnerID, &f.ResponsibleFunctionID, &f.VisibleBUID, &f.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения файла: %w", err)
	}

	if err := r.loadGrants(ctx, []*model.File{f}); err != nil {
		return nil, err
	}
	return f, nil
}

// buildFileWhere строит WHERE-условие и аргументы для фильтрации файлов.
func buildFileWhere(filters FileListFilters, startArg int) (string, []any) {
	var conditions []string
	var args []any
	argNum := startArg

	if filters.OwnerID != nil {
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", argNum))
		args = append(args, *filters.OwnerID)
		argNum++
	}

	if u := filters.VisibleTo; u != nil {
		// Владелец; файл без ограничений; совпадение направления;
		// грант функции пользователя.
		var ors []string

		ors = append(ors, fmt.Sprintf("files.owner_id = $%d", argNum))
		args = append(args, u.ID)
		argNum++

		ors = append(ors, `(files.visible_bu_id IS NULL AND NOT EXISTS (
			SELECT 1 FROM file_visibility_grants g WHERE g.file_id = files.id))`)

		if u.BusinessUnitID != nil {
			ors = append(ors, fmt.Sprintf("files.visible_bu_id = $%d", argNum))
			args = append(args, *u.BusinessUnitID)
			argNum++
		}
		if u.FunctionID != nil {
			ors = append(ors, fmt.Sprintf(`EXISTS (
				SELECT 1 FROM file_visibility_grants g
				WHERE g.file_id = files.id AND g.function_id = $%d)`, argNum))
			args = append(args, *u.FunctionID)
		}

		conditions = append(conditions, "("+strings.Join(ors, " OR ")+")")
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args
}

func (r *fileRepo) List(ctx context.Context, filters FileListFilters, limit, offset int) ([]*model.File, error) {
	where, args := buildFileWhere(filters, 1)
	argNum := len(args) + 1

	query := fmt.Sprintf(`
		SELECT %s
		FROM files
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, fileColumns, where, argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка файлов: %w", err)
	}
	defer rows.Close()

	var result []*model.File
	for rows.Next() {
		f := &model.File{}
		if err := rows.Scan(
			&f.ID, &f.StorageKey, &f.OriginalFilename, &f.ContentType, &f.FileSize,
			&f.OwnerID, &f.ResponsibleFunctionID, &f.VisibleBUID, &f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования файла: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadGrants(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// loadGrants загружает гранты видимости для набора файлов одним запросом.
func (r *fileRepo) loadGrants(ctx context.Context, files []*model.File) error {
	if len(files) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(files))
	byID := make(map[uuid.UUID]*model.File, len(files))
	for _, f := range files {
		ids = append(ids, f.ID)
		byID[f.ID] = f
	}

	rows, err := r.db.Query(ctx, `
		SELECT file_id, function_id
		FROM file_visibility_grants
		WHERE file_id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("ошибка получения грантов видимости: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fileID, functionID uuid.UUID
		if err := rows.Scan(&fileID, &functionID); err != nil {
			return fmt.Errorf("ошибка сканирования гранта: %w", err)
		}
		if f, ok := byID[fileID]; ok {
			f.VisibleFunctionIDs = append(f.VisibleFunctionIDs, functionID)
		}
	}
	return rows.Err()
}

func (r *fileRepo) Count(ctx context.Context, filters FileListFilters) (int, error) {
	where, args := buildFileWhere(filters, 1)

	var count int
	err := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM files %s`, where), args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта файлов: %w", err)
	}
	return count, nil
}

func (r *fileRepo) ReplaceGrants(ctx context.Context, fileID uuid.UUID, functionIDs []uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM file_visibility_grants WHERE file_id = $1`, fileID)
	if err != nil {
		return fmt.Errorf("ошибка удаления грантов видимости: %w", err)
	}
	return r.insertGrants(ctx, fileID, functionIDs)
}

func (r *fileRepo) SetVisibleBU(ctx context.Context, fileID uuid.UUID, buID *uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE files SET visible_bu_id = $2 WHERE id = $1`, fileID, buID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: направление не существует", ErrForeignKey)
		}
		return fmt.Errorf("ошибка обновления видимости файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FileTxStore — транзакционные операции над файлом и его грантами.
// Запись файла и его грантов либо фиксируется целиком, либо не
// фиксируется вовсе.
type FileTxStore struct {
	runner *TxRunner
}

// NewFileTxStore создаёт транзакционное хранилище файлов.
func NewFileTxStore(runner *TxRunner) *FileTxStore {
	return &FileTxStore{runner: runner}
}

// CreateWithGrants создаёт запись файла вместе с грантами видимости
// в одной транзакции.
func (s *FileTxStore) CreateWithGrants(ctx context.Context, f *model.File) error {
	return s.runner.RunInTx(ctx, func(tx pgx.Tx) error {
		return NewFileRepository(tx).Create(ctx, f)
	})
}

// UpdateVisibility изменяет видимость файла в одной транзакции:
// направление и полный набор грантов.
func (s *FileTxStore) UpdateVisibility(ctx context.Context, fileID uuid.UUID, patch model.FileVisibilityPatch) error {
	return s.runner.RunInTx(ctx, func(tx pgx.Tx) error {
		repo := NewFileRepository(tx)

		switch {
		case patch.ClearVisibleBU:
			if err := repo.SetVisibleBU(ctx, fileID, nil); err != nil {
				return err
			}
		case patch.VisibleBUID != nil:
			if err := repo.SetVisibleBU(ctx, fileID, patch.VisibleBUID); err != nil {
				return err
			}
		}

		if patch.VisibleFunctionIDs != nil {
			if err := repo.ReplaceGrants(ctx, fileID, *patch.VisibleFunctionIDs); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *fileRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления записи файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
