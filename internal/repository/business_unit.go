package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/orgfiles/internal/domain/model"
)

// BusinessUnitRepository — интерфейс CRUD для таблицы business_units.
type BusinessUnitRepository interface {
	// Create создаёт новое бизнес-направление.
	Create(ctx context.Context, bu *model.BusinessUnit) error
	// GetByID возвращает направление по UUID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.BusinessUnit, error)
	// List возвращает направления. При activeOnly — только активные.
	List(ctx context.Context, activeOnly bool, limit, offset int) ([]*model.BusinessUnit, error)
	// Count возвращает количество направлений.
	Count(ctx context.Context, activeOnly bool) (int, error)
	// Update применяет частичное обновление. Поля nil не трогаются.
	Update(ctx context.Context, id uuid.UUID, patch model.BusinessUnitPatch) (*model.BusinessUnit, error)
	// Delete удаляет направление. Если на него ссылаются функции,
	// пользователи или файлы — ErrReferenced.
	Delete(ctx context.Context, id uuid.UUID) error
}

type businessUnitRepo struct {
	db DBTX
}

// NewBusinessUnitRepository создаёт репозиторий бизнес-направлений.
func NewBusinessUnitRepository(db DBTX) BusinessUnitRepository {
	return &businessUnitRepo{db: db}
}

func (r *businessUnitRepo) Create(ctx context.Context, bu *model.BusinessUnit) error {
	query := `
		INSERT INTO business_units (name, code, description, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		bu.Name, bu.Code, bu.Description, bu.IsActive,
	).Scan(&bu.ID, &bu.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: направление с таким именем или кодом уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания направления: %w", err)
	}
	return nil
}

func (r *businessUnitRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.BusinessUnit, error) {
	query := `
		SELECT id, name, code, description, is_active, created_at
		FROM business_units
		WHERE id = $1`

	bu := &model.BusinessUnit{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&bu.ID, &bu.Name, &bu.Code, &bu.Description, &bu.IsActive, &bu.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения направления: %w", err)
	}
	return bu, nil
}

func (r *businessUnitRepo) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*model.BusinessUnit, error) {
	where := ""
	if activeOnly {
		where = "WHERE is_active"
	}

	query := fmt.Sprintf(`
		SELECT id, name, code, description, is_active, created_at
		FROM business_units
		%s
		ORDER BY name
		LIMIT $1 OFFSET $2`, where)

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка направлений: %w", err)
	}
	defer rows.Close()

	var result []*model.BusinessUnit
	for rows.Next() {
		bu := &model.BusinessUnit{}
		if err := rows.Scan(
			&bu.ID, &bu.Name, &bu.Code, &bu.Description, &bu.IsActive, &bu.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования направления: %w", err)
		}
		result = append(result, bu)
	}
	return result, rows.Err()
}

func (r *businessUnitRepo) Count(ctx context.Context, activeOnly bool) (int, error) {
	where := ""
	if activeOnly {
		where = "WHERE is_active"
	}

	var count int
	err := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM business_units %s`, where)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта направлений: %w", err)
	}
	return count, nil
}

func (r *businessUnitRepo) Update(ctx context.Context, id uuid.UUID, patch model.BusinessUnitPatch) (*model.BusinessUnit, error) {
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
		// Пустая строка очищает описание.
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
	}

	if len(sets) == 0 {
		return r.GetByID(ctx, id)
	}

	query := fmt.Sprintf(`
		UPDATE business_units
		SET %s
		WHERE id = $1
		RETURNING id, name, code, description, is_active, created_at`,
		strings.Join(sets, ", "))

	bu := &model.BusinessUnit{}
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&bu.ID, &bu.Name, &bu.Code, &bu.Description, &bu.IsActive, &bu.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: направление с таким именем или кодом уже существует", ErrConflict)
		}
		return nil, fmt.Errorf("ошибка обновления направления: %w", err)
	}
	return bu, nil
}

func (r *businessUnitRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM business_units WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: на направление ссылаются функции, пользователи или файлы", ErrReferenced)
		}
		return fmt.Errorf("ошибка удаления направления: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
