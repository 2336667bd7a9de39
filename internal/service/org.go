// org.go — сервис оргструктуры: бизнес-направления, функции,
// привязки пользователей. Изменения доступны только суперпользователю;
// остальные видят только активные записи.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/bigkaa/orgfiles/internal/domain/model"
	"github.com/bigkaa/orgfiles/internal/repository"
)

// OrgService — сервис справочников оргструктуры.
type OrgService struct {
	buRepo   repository.BusinessUnitRepository
	fnRepo   repository.FunctionRepository
	userRepo repository.UserRepository
	logger   *slog.Logger
}

// NewOrgService создаёт сервис оргструктуры.
func NewOrgService(
	buRepo repository.BusinessUnitRepository,
	fnRepo repository.FunctionRepository,
	userRepo repository.UserRepository,
	logger *slog.Logger,
) *OrgService {
	return &OrgService{
		buRepo:   buRepo,
		fnRepo:   fnRepo,
		userRepo: userRepo,
		logger:   logger.With(slog.String("component", "org_service")),
	}
}

// --- Бизнес-направления ---

// CreateBusinessUnit создаёт направление. Только суперпользователь.
func (s *OrgService) CreateBusinessUnit(ctx context.Context, actor *model.User, bu *model.BusinessUnit) error {
	if !actor.IsSuperuser {
		return ErrForbidden
	}
	if err := validateOrgNames(bu.Name, bu.Code); err != nil {
		return err
	}

	if err := s.buRepo.Create(ctx, bu); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("%w: направление с таким именем или кодом уже существует", ErrConflict)
		}
		return fmt.Errorf("создание направления: %w", err)
	}

	s.logger.Info("Направление создано",
		slog.String("id", bu.ID.String()),
		slog.String("code", bu.Code),
		slog.String("actor", actor.ID.String()),
	)
	return nil
}

// GetBusinessUnit возвращает направление по ID.
// Не-суперпользователю неактивное направление не показывается.
func (s *OrgService) GetBusinessUnit(ctx context.Context, actor *model.User, id uuid.UUID) (*model.BusinessUnit, error) {
	bu, err := s.buRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение направления: %w", err)
	}
	if !bu.IsActive && !actor.IsSuperuser {
		return nil, ErrNotFound
	}
	return bu, nil
}

// ListBusinessUnits возвращает направления с пагинацией.
// Не-суперпользователь видит только активные.
func (s *OrgService) ListBusinessUnits(ctx context.Context, actor *model.User, limit, offset int) ([]*model.BusinessUnit, int, error) {
	activeOnly := !actor.IsSuperuser

	list, err := s.buRepo.List(ctx, activeOnly, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("получение списка направлений: %w", err)
	}
	total, err := s.buRepo.Count(ctx, activeOnly)
	if err != nil {
		return nil, 0, fmt.Errorf("подсчёт направлений: %w", err)
	}
	return list, total, nil
}

// UpdateBusinessUnit применяет частичное обновление. Только суперпользователь.
func (s *OrgService) UpdateBusinessUnit(ctx context.Context, actor *model.User, id uuid.UUID, patch model.BusinessUnitPatch) (*model.BusinessUnit, error) {
	if !actor.IsSuperuser {
		return nil, ErrForbidden
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, fmt.Errorf("%w: имя не может быть пустым", ErrValidation)
	}
	if patch.Code != nil && strings.TrimSpace(*patch.Code) == "" {
		return nil, fmt.Errorf("%w: код не может быть пустым", ErrValidation)
	}

	bu, err := s.buRepo.Update(ctx, id, patch)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, repository.ErrConflict):
			return nil, fmt.Errorf("%w: направление с таким именем или кодом уже существует", ErrConflict)
		}
		return nil, fmt.Errorf("обновление направления: %w", err)
	}

	s.logger.Info("Направление обновлено",
		slog.String("id", id.String()),
		slog.String("actor", actor.ID.String()),
	)
	return bu, nil
}

// DeleteBusinessUnit удаляет направление. Только суперпользователь.
// Направление, на которое ссылаются функции, пользователи или файлы,
// удалить нельзя.
func (s *OrgService) DeleteBusinessUnit(ctx context.Context, actor *model.User, id uuid.UUID) error {
	if !actor.IsSuperuser {
		return ErrForbidden
	}

	if err := s.buRepo.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return ErrNotFound
		case errors.Is(err, repository.ErrReferenced):
			return fmt.Errorf("%w: на направление ссылаются другие записи", ErrReferenced)
		}
		return fmt.Errorf("удаление направления: %w", err)
	}

	s.logger.Info("Направление удалено",
		slog.String("id", id.String()),
		slog.String("actor", actor.ID.String()),
	)
	return nil
}

// --- Функции ---

// CreateFunction создаёт функцию. Только суперпользователь.
// Направление должно существовать.
func (s *OrgService) CreateFunction(ctx context.Context, actor *model.User, fn *model.Function) error {
	if !actor.IsSuperuser {
		return ErrForbidden
	}
	if err := validateOrgNames(fn.Name, fn.Code); err != nil {
		return err
	}
	if fn.BusinessUnitID == uuid.Nil {
		return fmt.Errorf("%w: направление обязательно", ErrValidation)
	}

	if err := s.fnRepo.Create(ctx, fn); err != nil {
		if errors.Is(err, repository.ErrForeignKey) {
			return fmt.Errorf("%w: направление '%s' не найдено", ErrNotFound, fn.BusinessUnitID)
		}
		return fmt.Errorf("создание функции: %w", err)
	}

	s.logger.Info("Функция создана",
		slog.String("id", fn.ID.String()),
		slog.String("code", fn.Code),
		slog.String("business_unit_id", fn.BusinessUnitID.String()),
		slog.String("actor", actor.ID.String()),
	)
	return nil
}

// GetFunction возвращает функцию по ID.
// Не-суперпользователю неактивная функция не показывается.
func (s *OrgService) GetFunction(ctx context.Context, actor *model.User, id uuid.UUID) (*model.Function, error) {
	fn, err := s.fnRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение функции: %w", err)
	}
	if !fn.IsActive && !actor.IsSuperuser {
		return nil, ErrNotFound
	}
	return fn, nil
}

// ListFunctions возвращает функции с фильтром по направлению.
// Не-суперпользователь видит только активные.
func (s *OrgService) ListFunctions(ctx context.Context, actor *model.User, businessUnitID *uuid.UUID, limit, offset int) ([]*model.Function, int, error) {
	filters := repository.FunctionListFilters{
		BusinessUnitID: businessUnitID,
		ActiveOnly:     !actor.IsSuperuser,
	}

	list, err := s.fnRepo.List(ctx, filters, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("получение списка функций: %w", err)
	}
	total, err := s.fnRepo.Count(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("подсчёт функций: %w", err)
	}
	return list, total, nil
}

// UpdateFunction применяет частичное обновление. Только суперпользователь.
func (s *OrgService) UpdateFunction(ctx context.Context, actor *model.User, id uuid.UUID, patch model.FunctionPatch) (*model.Function, error) {
	if !actor.IsSuperuser {
		return nil, ErrForbidden
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, fmt.Errorf("%w: имя не может быть пустым", ErrValidation)
	}
	if patch.Code != nil && strings.TrimSpace(*patch.Code) == "" {
		return nil, fmt.Errorf("%w: код не может быть пустым", ErrValidation)
	}

	fn, err := s.fnRepo.Update(ctx, id, patch)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, repository.ErrForeignKey):
			return nil, fmt.Errorf("%w: направление не найдено", ErrNotFound)
		}
		return nil, fmt.Errorf("обновление функции: %w", err)
	}

	s.logger.Info("Функция обновлена",
		slog.String("id", id.String()),
		slog.String("actor", actor.ID.String()),
	)
	return fn, nil
}

// DeleteFunction удаляет функцию. Только суперпользователь.
// Функцию, на которую ссылаются пользователи, файлы или гранты
// видимости, удалить нельзя: исчезновение гранта молча расширило бы
// видимость оставшихся файлов.
func (s *OrgService) DeleteFunction(ctx context.Context, actor *model.User, id uuid.UUID) error {
	if !actor.IsSuperuser {
		return ErrForbidden
	}

	if err := s.fnRepo.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return ErrNotFound
		case errors.Is(err, repository.ErrReferenced):
			return fmt.Errorf("%w: на функцию ссылаются другие записи", ErrReferenced)
		}
		return fmt.Errorf("удаление функции: %w", err)
	}

	s.logger.Info("Функция удалена",
		slog.String("id", id.String()),
		slog.String("actor", actor.ID.String()),
	)
	return nil
}

// --- Пользователи ---

// GetUser возвращает пользователя. Пользователь видит себя,
// суперпользователь — любого.
func (s *OrgService) GetUser(ctx context.Context, actor *model.User, id uuid.UUID) (*model.User, error) {
	if !actor.IsSuperuser && actor.ID != id {
		return nil, ErrForbidden
	}

	u, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	return u, nil
}

// ListUsers возвращает пользователей. Только суперпользователь.
func (s *OrgService) ListUsers(ctx context.Context, actor *model.User, limit, offset int) ([]*model.User, int, error) {
	if !actor.IsSuperuser {
		return nil, 0, ErrForbidden
	}

	list, err := s.userRepo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("получение списка пользователей: %w", err)
	}
	total, err := s.userRepo.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("подсчёт пользователей: %w", err)
	}
	return list, total, nil
}

// UpdateUser изменяет привязки пользователя к оргструктуре.
// Только суперпользователь.
func (s *OrgService) UpdateUser(ctx context.Context, actor *model.User, id uuid.UUID, patch model.UserPatch) (*model.User, error) {
	if !actor.IsSuperuser {
		return nil, ErrForbidden
	}

	u, err := s.userRepo.Update(ctx, id, patch)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, repository.ErrForeignKey):
			return nil, fmt.Errorf("%w: направление или функция не найдена", ErrValidation)
		}
		return nil, fmt.Errorf("обновление пользователя: %w", err)
	}

	s.logger.Info("Привязки пользователя обновлены",
		slog.String("id", id.String()),
		slog.String("actor", actor.ID.String()),
	)
	return u, nil
}

// validateOrgNames проверяет обязательность имени и кода.
func validateOrgNames(name, code string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: имя не может быть пустым", ErrValidation)
	}
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("%w: код не может быть пустым", ErrValidation)
	}
	return nil
}
