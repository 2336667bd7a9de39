package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/orgfiles/internal/domain/model"
)

// FunctionRepository — интерфейс CRUD для таблицы functions.
type FunctionRepository interface {
	// Create создаёт новую функцию.
	Create(ctx context.Context, fn *model.Function) error
	// GetByID возвращает функцию по UUID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Function, error)
	// List возвращает функции с фильтрацией.
	List(ctx context.Context, filters FunctionListFilters, limit, offset int) ([]*model.Function, error)
	// Count возвращает количество функций с фильтрацией.
	Count(ctx context.Context, filters FunctionListFilters) (int, error)
	// Update применяет частичное обновление. Поля nil не трогаются.
	Update(ctx context.Context, id uuid.UUID, patch model.FunctionPatch) (*model.Function, error)
	// Delete удаляет функцию. Если на неё ссылаются пользователи,
	// файлы или гранты — ErrReferenced.
	Delete(ctx context.Context, id uuid.UUID) error
}

// FunctionListFilters — фильтры списка функций.
type FunctionListFilters struct {
	// BusinessUnitID — только функции указанного направления.
	BusinessUnitID *uuid.UUID
	// ActiveOnly — только активные функции.
	ActiveOnly bool
}

type functionRepo struct {
	db DBTX
}

// NewFunctionRepository создаёт репозиторий функций.
func NewFunctionRepository(db DBTX) FunctionRepository {
	return &functionRepo{db: db}
}

func (r *functionRepo) Create(ctx context.Context, fn *model.Function) error {
	query := `
		INSERT INTO functions (name, code, description, is_active, business_unit_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		fn.Name, fn.Code, fn.Description, fn.IsActive, fn.BusinessUnitID,
	).Scan(&fn.ID, &fn.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: направление не существует", ErrForeignKey)
		}
		return fmt.Errorf("ошибка создания функции: %w", err)
	}
	return nil
}

func (r *functionRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Function, error) {
	query := `
		SELECT id, name, code, description, is_active, business_unit_id, created_at
		FROM functions
		WHERE id = $1`

	fn := &model.Function{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&fn.ID, &fn.Name, &fn.Code, &fn.Description, &fn.IsActive,
		&fn.BusinessUnitID, &fn.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения функции: %w", err)
	}
	return fn, nil
}

// buildFunctionWhere строит WHERE-условие и аргументы для фильтрации функций.
func buildFunctionWhere(filters FunctionListFilters, startArg int) (string, []any) {
	var conditions []string
	var args []any
	argNum := startArg

	if filters.BusinessUnitID != nil {
		conditions = append(conditions, fmt.Sprintf("business_unit_id = $%d", argNum))
		args = append(args, *filters.BusinessUnitID)
	}
	if filters.ActiveOnly {
		conditions = append(conditions, "is_active")
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args
}

func (r *functionRepo) List(ctx context.Context, filters FunctionListFilters, limit, offset int) ([]*model.Function, error) {
	where, args := buildFunctionWhere(filters, 1)
	argNum := len(args) + 1

	query := fmt.Sprintf(`
		SELECT id, name, code, description, is_active, business_unit_id, created_at
		FROM functions
		%s
		ORDER BY name
		LIMIT $%d OFFSET $%d`, where, argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка функций: %w", err)
	}
	defer rows.Close()

	var result []*model.Function
	for rows.Next() {
		fn := &model.Function{}
		if err := rows.Scan(
			&fn.ID, &fn.Name, &fn.Code, &fn.Description, &fn.IsActive,
			&fn.BusinessUnitID, &fn.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования функции: %w", err)
		}
		result = append(result, fn)
	}
	return result, rows.Err()
}

func (r *functionRepo) Count(ctx context.Context, filters FunctionListFilters) (int, error) {
	where, args := buildFunctionWhere(filters, 1)

	var count int
	err := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM functions %s`, where), args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта функций: %w", err)
	}
	return count, nil
}

func (r *functionRepo) Update(ctx context.Context, id uuid.UUID, patch model.FunctionPatch) (*model.Function, error) {
	var sets []string
	var args []any
	args = append(args, id)
	argNum := 2

	if patch.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", argNum))
		args = append(args, *patch.Name)
		argNum++
	}
	if patch.Code != nil {
		sets = append(sets, fmt.Sprintf("code = $%d", argNum))
		args = append(args, *patch.Code)
		argNum++
	}
	if patch.Description != nil {
		if *patch.Description == "" {
			sets = append(sets, "description = NULL")
		} else {
			sets = append(sets, fmt.Sprintf("description = $%d", argNum))
			args = append(args, *patch.Description)
			argNum++
		}
	}
	if patch.IsActive != nil {
		sets = append(sets, fmt.Sprintf("is_active = $%d", argNum))
		args = append(args, *patch.IsActive)
		argNum++
	}
	if patch.BusinessUnitID != nil {
		sets = append(sets, fmt.Sprintf("business_unit_id = $%d", argNum))
		args = append(args, *patch.BusinessUnitID)
	}

	if len(sets) == 0 {
		return r.GetByID(ctx, id)
	}

	query := fmt.Sprintf(`
		UPDATE functions
		SET %s
		WHERE id = $1
		RETURNING id, name, code, description, is_active, business_unit_id, created_at`,
		strings.Join(sets, ", "))

	fn := &model.Function{}
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&fn.ID, &fn.Name, &fn.Code, &fn.Description, &fn.IsActive,
		&fn.BusinessUnitID, &fn.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: направление не существует", ErrForeignKey)
		}
		return nil, fmt.Errorf("ошибка обновления функции: %w", err)
	}
	return fn, nil
}

func (r *functionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM functions WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: на функцию ссылаются пользователи, файлы или гранты видимости", ErrReferenced)
		}
		return fmt.Errorf("ошибка удаления функции: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
