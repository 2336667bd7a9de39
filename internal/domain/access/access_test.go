package access

import (
	"testing"

	"github.com/google/uuid"

	"github.com/bigkaa/orgfiles/internal/domain/model"
)

// Фиксированные идентификаторы для сценариев.
var (
	buSales       = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	buEngineering = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	fnSupport     = uuid.MustParse("33333333-3333-3333-3333-333333333333")
	fnBilling     = uuid.MustParse("44444444-4444-4444-4444-444444444444")
	ownerID       = uuid.MustParse("55555555-5555-5555-5555-555555555555")
	otherID       = uuid.MustParse("66666666-6666-6666-6666-666666666666")
)

func user(id uuid.UUID, buID, fnID *uuid.UUID, superuser bool) *model.User {
	return &model.User{ID: id, IsActive: true, IsSuperuser: superuser, BusinessUnitID: buID, FunctionID: fnID}
}

func file(owner uuid.UUID, visibleBU *uuid.UUID, grants ...uuid.UUID) *model.File {
	return &model.File{ID: uuid.New(), OwnerID: owner, VisibleBUID: visibleBU, VisibleFunctionIDs: grants}
}

func idPtr(id uuid.UUID) *uuid.UUID { return &id }

func TestCanRead(t *testing.T) {
	tests := []struct {
		name string
		user *model.User
		file *model.File
		want bool
	}{
		{
			name: "суперпользователь видит любой файл",
			user: user(otherID, nil, nil, true),
			file: file(ownerID, idPtr(buSales), fnSupport),
			want: true,
		},
		{
			name: "суперпользователь видит файл без ограничений",
			user: user(otherID, nil, nil, true),
			file: file(ownerID, nil),
			want: true,
		},
		{
			name: "владелец видит свой файл независимо от ограничений",
			user: user(ownerID, idPtr(buEngineering), nil, false),
			file: file(ownerID, idPtr(buSales), fnSupport),
			want: true,
		},
		{
			name: "файл без ограничений открыт пользователю без привязок",
			user: user(otherID, nil, nil, false),
			file: file(ownerID, nil),
			want: true,
		},
		{
			name: "файл без ограничений открыт пользователю с привязками",
			user: user(otherID, idPtr(buSales), idPtr(fnSupport), false),
			file: file(ownerID, nil),
			want: true,
		},
		{
			name: "совпадение направления даёт доступ",
			user: user(otherID, idPtr(buSales), nil, false),
			file: file(ownerID, idPtr(buSales)),
			want: true,
		},
		{
			name: "другое направление — отказ",
			user: user(otherID, idPtr(buEngineering), nil, false),
			file: file(ownerID, idPtr(buSales)),
			want: false,
		},
		{
			name: "ограниченный файл закрыт пользователю без привязок",
			user: user(otherID, nil, nil, false),
			file: file(ownerID, idPtr(buSales)),
			want: false,
		},
		{
			name: "грант функции даёт доступ",
			user: user(otherID, nil, idPtr(fnSupport), false),
			file: file(ownerID, nil, fnSupport),
			want: true,
		},
		{
			name: "грант функции даёт доступ при нескольких грантах",
			user: user(otherID, nil, idPtr(fnBilling), false),
			file: file(ownerID, nil, fnSupport, fnBilling),
			want: true,
		},
		{
			name: "функция без гранта — отказ",
			user: user(otherID, nil, idPtr(fnBilling), false),
			file: file(ownerID, nil, fnSupport),
			want: false,
		},
		{
			name: "нет наследования: грант функции не открывает файл по направлению",
			user: user(otherID, idPtr(buSales), nil, false),
			file: file(ownerID, nil, fnSupport),
			want: false,
		},
		{
			name: "нет наследования: видимость направления не открывает файл по функции",
			user: user(otherID, nil, idPtr(fnSupport), false),
			file: file(ownerID, idPtr(buSales)),
			want: false,
		},
		{
			name: "достаточно одного совпадения: направление при чужих грантах",
			user: user(otherID, idPtr(buSales), idPtr(fnBilling), false),
			file: file(ownerID, idPtr(buSales), fnSupport),
			want: true,
		},
		{
			name: "достаточно одного совпадения: грант при чужом направлении",
			user: user(otherID, idPtr(buEngineering), idPtr(fnSupport), false),
			file: file(ownerID, idPtr(buSales), fnSupport),
			want: true,
		},
		{
			name: "ни направление, ни функция не совпали — отказ",
			user: user(otherID, idPtr(buEngineering), idPtr(fnBilling), false),
			file: file(ownerID, idPtr(buSales), fnSupport),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanRead(tt.user, tt.file)
			if got != tt.want {
				t.Errorf("CanRead() = %v, хотели %v", got, tt.want)
			}
			// Повторный вызов даёт тот же результат: функция чистая.
			if again := CanRead(tt.user, tt.file); again != got {
				t.Errorf("повторный CanRead() = %v, первый вызов дал %v", again, got)
			}
		})
	}
}

// Добавление первого ограничения переводит файл из открытого в закрытый
// для всех, кроме владельца, суперпользователя и получателей ограничения.
func TestCanRead_RestrictionTransition(t *testing.T) {
	outsider := user(otherID, idPtr(buEngineering), idPtr(fnBilling), false)

	open := file(ownerID, nil)
	if !CanRead(outsider, open) {
		t.Fatal("файл без ограничений должен быть открыт")
	}

	restricted := file(ownerID, idPtr(buSales))
	if CanRead(outsider, restricted) {
		t.Error("после добавления видимости направления посторонний должен потерять доступ")
	}

	granted := file(ownerID, nil, fnSupport)
	if CanRead(outsider, granted) {
		t.Error("после добавления гранта функции посторонний должен потерять доступ")
	}
}

func TestCanManage(t *testing.T) {
	tests := []struct {
		name string
		user *model.User
		file *model.File
		want bool
	}{
		{
			name: "владелец может управлять",
			user: user(ownerID, nil, nil, false),
			file: file(ownerID, nil),
			want: true,
		},
		{
			name: "суперпользователь может управлять чужим файлом",
			user: user(otherID, nil, nil, true),
			file: file(ownerID, nil),
			want: true,
		},
		{
			name: "читатель по гранту не может управлять",
			user: user(otherID, nil, idPtr(fnSupport), false),
			file: file(ownerID, nil, fnSupport),
			want: false,
		},
		{
			name: "посторонний не может управлять",
			user: user(otherID, nil, nil, false),
			file: file(ownerID, nil),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanManage(tt.user, tt.file); got != tt.want {
				t.Errorf("CanManage() = %v, хотели %v", got, tt.want)
			}
		})
	}
}

func TestFilterReadable(t *testing.T) {
	u := user(otherID, idPtr(buSales), nil, false)

	open := file(ownerID, nil)
	mine := file(otherID, idPtr(buEngineering))
	visible := file(ownerID, idPtr(buSales))
	hidden := file(ownerID, idPtr(buEngineering))

	got := FilterReadable(u, []*model.File{open, mine, visible, hidden})
	if len(got) != 3 {
		t.Fatalf("FilterReadable() вернул %d файлов, хотели 3", len(got))
	}
	// Порядок входного среза сохраняется.
	if got[0] != open || got[1] != mine || got[2] != visible {
		t.Error("FilterReadable() нарушил порядок входного среза")
	}
}
