// Пакет access — логика определения видимости файлов.
// Чистые функции без обращений к базе данных и внешним сервисам.
// Правила в порядке проверки: суперпользователь, владелец, открытый
// файл (без ограничений), совпадение по направлению, грант функции.
// Наследования «направление -> функции» нет: видимость для направления
// не даёт доступа по привязке к функции этого направления, и наоборот.
package access

import (
	"github.com/google/uuid"

	"github.com/bigkaa/orgfiles/internal/domain/model"
)

// CanRead определяет, может ли пользователь читать файл.
// Пользователь считается аутентифицированным; неактивных
// пользователей отсекает middleware до вызова.
func CanRead(user *model.User, file *model.File) bool {
	if user.IsSuperuser {
		return true
	}
	if file.OwnerID == user.ID {
		return true
	}
	// Файл без единого ограничения видимости открыт всем.
	if !file.Restricted() {
		return true
	}
	if file.VisibleBUID != nil && user.BusinessUnitID != nil &&
		*file.VisibleBUID == *user.BusinessUnitID {
		return true
	}
	if user.FunctionID != nil && containsID(file.VisibleFunctionIDs, *user.FunctionID) {
		return true
	}
	return false
}

// CanManage определяет, может ли пользователь изменять или удалять
// метаданные файла. Разрешено только владельцу и суперпользователю.
func CanManage(user *model.User, file *model.File) bool {
	return user.IsSuperuser || file.OwnerID == user.ID
}

// FilterReadable возвращает файлы из набора, доступные пользователю
// для чтения. Порядок входного среза сохраняется.
func FilterReadable(user *model.User, files []*model.File) []*model.File {
	result := make([]*model.File, 0, len(files))
	for _, f := range files {
		if CanRead(user, f) {
			result = append(result, f)
		}
	}
	return result
}

// containsID проверяет наличие id в срезе.
func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
