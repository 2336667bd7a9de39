package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/orgfiles/internal/domain/model"
)

// UserRepository — интерфейс CRUD для таблицы users.
type UserRepository interface {
	// GetByID возвращает пользователя по UUID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// Upsert создаёт пользователя или обновляет email и флаг
	// суперпользователя существующего. Привязки к оргструктуре
	// при upsert не трогаются: они управляются локально.
	Upsert(ctx context.Context, u *model.User) (*model.User, error)
	// List возвращает пользователей, отсортированных по email.
	List(ctx context.Context, limit, offset int) ([]*model.User, error)
	// Count возвращает количество пользователей.
	Count(ctx context.Context) (int, error)
	// Update применяет частичное обновление привязок.
	Update(ctx context.Context, id uuid.UUID, patch model.UserPatch) (*model.User, error)
}

type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

const userColumns = `id, email, is_active, is_superuser, business_unit_id, function_id, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(
		&u.ID, &u.Email, &u.IsActive, &u.IsSuperuser,
		&u.BusinessUnitID, &u.FunctionID, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)

	u, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return u, nil
}

func (r *userRepo) Upsert(ctx context.Context, u *model.User) (*model.User, error) {
	query := fmt.Sprintf(`
		INSERT INTO users (id, email, is_active, is_superuser)
		VALUES ($1, $2, TRUE, $3)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			is_superuser = EXCLUDED.is_superuser
		RETURNING %s`, userColumns)

	stored, err := scanUser(r.db.QueryRow(ctx, query, u.ID, u.Email, u.IsSuperuser))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: email уже занят другим пользователем", ErrConflict)
		}
		return nil, fmt.Errorf("ошибка upsert пользователя: %w", err)
	}
	return stored, nil
}

func (r *userRepo) List(ctx context.Context, limit, offset int) ([]*model.User, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM users
		ORDER BY email
		LIMIT $1 OFFSET $2`, userColumns)

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка пользователей: %w", err)
	}
	defer rows.Close()

	var result []*model.User
	for rows.Next() {
		u := &model.User{}
		if err := rows.Scan(
			&u.ID, &u.Email, &u.IsActive, &u.IsSuperuser,
			&u.BusinessUnitID, &u.FunctionID, &u.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования пользователя: %w", err)
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (r *userRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта пользователей: %w", err)
	}
	return count, nil
}

func (r *userRepo) Update(ctx context.Context, id uuid.UUID, patch model.UserPatch) (*model.User, error) {
	var sets []string
	var args []any
	args = append(args, id)
	argNum := 2

	if patch.IsActive != nil {
		sets = append(sets, fmt.Sprintf("is_active = $%d", argNum))
		args = append(args, *patch.IsActive)
		argNum++
	}
	switch {
	case patch.ClearBusinessUnit:
		sets = append(sets, "business_unit_id = NULL")
	case patch.BusinessUnitID != nil:
		sets = append(sets, fmt.Sprintf("business_unit_id = $%d", argNum))
		args = append(args, *patch.BusinessUnitID)
		argNum++
	}
	switch {
	case patch.ClearFunction:
		sets = append(sets, "function_id = NULL")
	case patch.FunctionID != nil:
		sets = append(sets, fmt.Sprintf("function_id = $%d", argNum))
		args = append(args, *patch.FunctionID)
	}

	if len(sets) == 0 {
		return r.GetByID(ctx, id)
	}

	query := fmt.Sprintf(`
		UPDATE users
		SET %s
		WHERE id = $1
		RETURNING %s`, strings.Join(sets, ", "), userColumns)

	u, err := scanUser(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: направление или функция не существует", ErrForeignKey)
		}
		return nil, fmt.Errorf("ошибка обновления пользователя: %w", err)
	}
	return u, nil
}
