// Пакет model — доменные модели Orgfiles.
package model

import (
	"time"

	"github.com/google/uuid"
)

// BusinessUnit — бизнес-направление, верхний уровень оргструктуры.
// Хранится в таблице business_units. Имя и код уникальны глобально.
type BusinessUnit struct {
	// ID — UUID бизнес-направления
	ID uuid.UUID
	// Name — уникальное имя
	Name string
	// Code — уникальный код (короткий идентификатор)
	Code string
	// Description — описание (опционально)
	Description *string
	// IsActive — активно ли направление
	IsActive bool
	// CreatedAt — время создания записи
	CreatedAt time.Time
}

// Function — функция (подразделение), принадлежит ровно одному
// бизнес-направлению. Уникальность name/code глобально не требуется.
type Function struct {
	// ID — UUID функции
	ID uuid.UUID
	// Name — имя функции
	Name string
	// Code — код функции
	Code string
	// Description — описание (опционально)
	Description *string
	// IsActive — активна ли функция
	IsActive bool
	// BusinessUnitID — направление-владелец, обязательное
	BusinessUnitID uuid.UUID
	// CreatedAt — время создания записи
	CreatedAt time.Time
}

// User — учётная запись пользователя. Идентичность приходит из IdP,
// привязки к оргструктуре хранятся локально. Привязки независимы:
// функция пользователя не обязана принадлежать его направлению.
type User struct {
	// ID — UUID пользователя (sub из JWT)
	ID uuid.UUID
	// Email — уникальный адрес электронной почты
	Email string
	// IsActive — активен ли пользователь
	IsActive bool
	// IsSuperuser — флаг суперпользователя
	IsSuperuser bool
	// BusinessUnitID — привязка к направлению (может отсутствовать)
	BusinessUnitID *uuid.UUID
	// FunctionID — привязка к функции (может отсутствовать)
	FunctionID *uuid.UUID
	// CreatedAt — время создания записи
	CreatedAt time.Time
}

// File — метаданные файла в реестре. Байты лежат в объектном
// хранилище под ключом StorageKey.
type File struct {
	// ID — UUID файла
	ID uuid.UUID
	// StorageKey — ключ объекта в хранилище (owner-scoped, уникальный)
	StorageKey string
	// OriginalFilename — имя файла, заданное пользователем (только для отображения)
	OriginalFilename string
	// ContentType — MIME-тип файла
	ContentType string
	// FileSize — размер файла в байтах
	FileSize int64
	// OwnerID — загрузивший пользователь; задаётся при создании и не меняется
	OwnerID uuid.UUID
	// ResponsibleFunctionID — ответственная функция (информационная привязка,
	// доступа не даёт)
	ResponsibleFunctionID *uuid.UUID
	// VisibleBUID — направление, которому открыт просмотр (может отсутствовать)
	VisibleBUID *uuid.UUID
	// VisibleFunctionIDs — функции, которым открыт просмотр
	// (id-срез, загружается из таблицы грантов)
	VisibleFunctionIDs []uuid.UUID
	// CreatedAt — время загрузки
	CreatedAt time.Time
}

// Restricted сообщает, объявлено ли у файла хотя бы одно ограничение
// видимости. Файл без ограничений открыт всем аутентифицированным.
func (f *File) Restricted() bool {
	return f.VisibleBUID != nil || len(f.VisibleFunctionIDs) > 0
}

// --- Patch-структуры частичного обновления ---
// Поле nil означает «не передано» — применяются только переданные поля.

// BusinessUnitPatch — частичное обновление бизнес-направления.
// Пустая строка в Description очищает описание.
type BusinessUnitPatch struct {
	Name        *string
	Code        *string
	Description *string
	IsActive    *bool
}

// FunctionPatch — частичное обновление функции.
type FunctionPatch struct {
	Name        *string
	Code        *string
	Description *string
	IsActive    *bool
	// BusinessUnitID — перенос функции в другое направление
	BusinessUnitID *uuid.UUID
}

// FileVisibilityPatch — частичное обновление видимости файла.
type FileVisibilityPatch struct {
	// VisibleBUID — новое направление видимости
	VisibleBUID *uuid.UUID
	// ClearVisibleBU — снять видимость для направления
	ClearVisibleBU bool
	// VisibleFunctionIDs — полная замена набора грантов (nil — не трогать)
	VisibleFunctionIDs *[]uuid.UUID
}

// UserPatch — частичное обновление привязок пользователя.
// ClearBusinessUnit/ClearFunction снимают привязку (отличие
// «не передано» от «передан null»).
type UserPatch struct {
	IsActive          *bool
	BusinessUnitID    *uuid.UUID
	ClearBusinessUnit bool
	FunctionID        *uuid.UUID
	ClearFunction     bool
}
