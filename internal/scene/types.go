// Package scene содержит модель сцены: слои света/блокеров, глобальные
// параметры рендера, санитайзер входных данных и формат пресетов.
package scene

import (
	"fmt"
	"strings"
)

const (
	// MaxLayers жёсткий лимит слоёв в сцене и в uniform-массивах.
	MaxLayers = 64
	// IntensityMax верхняя граница HDR-интенсивности слоя.
	IntensityMax = 2000.0
	// FeatherMax верхняя граница мягкости (в UI-единицах).
	FeatherMax = 800.0
)

// ShapeKind тег формы слоя.
type ShapeKind string

const (
	ShapeCircle ShapeKind = "circle"
	ShapeRect   ShapeKind = "rect"

	// устаревший тег, эквивалентен анизотропному кругу
	shapeEllipse = "ellipse"
)

// ParseShape разбирает тег формы. ellipse отображается в circle.
func ParseShape(s string) (ShapeKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ShapeCircle), shapeEllipse:
		return ShapeCircle, true
	case string(ShapeRect):
		return ShapeRect, true
	}
	return "", false
}

// LayerType определяет вклад слоя в композицию.
type LayerType string

const (
	TypeLight  LayerType = "LIGHT"
	TypeFilter LayerType = "FILTER"
	TypeSolid  LayerType = "SOLID"
)

// ParseLayerType разбирает тег типа без учёта регистра.
func ParseLayerType(s string) (LayerType, bool) {
	switch LayerType(strings.ToUpper(strings.TrimSpace(s))) {
	case TypeLight:
		return TypeLight, true
	case TypeFilter:
		return TypeFilter, true
	case TypeSolid:
		return TypeSolid, true
	}
	return "", false
}

// Blocking сообщает, перекрывает ли слой свет (FILTER/SOLID).
func (t LayerType) Blocking() bool {
	return t == TypeFilter || t == TypeSolid
}

// BlendMode возвращает оператор композиции для типа.
func (t LayerType) BlendMode() BlendMode {
	switch t {
	case TypeFilter:
		return BlendMultiply
	case TypeSolid:
		return BlendOver
	default:
		return BlendAdd
	}
}

// Role возвращает устаревшую роль, соответствующую типу.
func (t LayerType) Role() Role {
	if t.Blocking() {
		return RoleBlocker
	}
	return RoleLight
}

// BlendMode оператор композиции; значения совпадают с целыми в пресете.
type BlendMode int

const (
	BlendAdd      BlendMode = 0
	BlendOver     BlendMode = 1
	BlendMultiply BlendMode = 2
)

func (b BlendMode) String() string {
	switch b {
	case BlendAdd:
		return "ADD"
	case BlendOver:
		return "OVER"
	case BlendMultiply:
		return "MULTIPLY"
	default:
		return fmt.Sprintf("BlendMode(%d)", int(b))
	}
}

// LayerType обратное отображение blendMode -> type.
func (b BlendMode) LayerType() (LayerType, bool) {
	switch b {
	case BlendAdd:
		return TypeLight, true
	case BlendMultiply:
		return TypeFilter, true
	case BlendOver:
		return TypeSolid, true
	}
	return "", false
}

// Role устаревшее поле ранних версий пресетов.
type Role string

const (
	RoleLight   Role = "light"
	RoleBlocker Role = "blocker"
)

// LayerType отображает роль в тип: blocker -> FILTER, иначе LIGHT.
func (r Role) LayerType() LayerType {
	if strings.EqualFold(string(r), string(RoleBlocker)) {
		return TypeFilter
	}
	return TypeLight
}
