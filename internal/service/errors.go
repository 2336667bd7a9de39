// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrForbidden — операция запрещена правилами доступа.
	ErrForbidden = errors.New("доступ запрещён")
	// ErrReferenced — ресурс используется и не может быть удалён.
	ErrReferenced = errors.New("ресурс используется и не может быть удалён")
	// ErrStorageUnavailable — объектное хранилище недоступно.
	ErrStorageUnavailable = errors.New("объектное хранилище недоступно")
)
