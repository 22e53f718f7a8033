package scene

import (
	"encoding/json"
	"math"
	"strings"
)

// Sanitizer превращает произвольный объект в канонический Layer.
// Контекст вызова — множество уже выданных id: повторный или пустой id
// заменяется свежим, уникальным в пределах этого санитайзера.
//
// Санитайзер никогда не паникует и не возвращает ошибок: невалидный
// объект целиком даёт (Layer{}, false), невалидное поле — значение
// по умолчанию.
type Sanitizer struct {
	bounds Bounds
	seen   map[string]struct{}
}

// NewSanitizer создаёт санитайзер с заданными диапазонами.
func NewSanitizer(b Bounds) *Sanitizer {
	return &Sanitizer{bounds: b, seen: make(map[string]struct{})}
}

// SanitizeLayer удобная обёртка со свежим контекстом и DefaultBounds.
func SanitizeLayer(raw any) (Layer, bool) {
	return NewSanitizer(DefaultBounds()).Sanitize(raw)
}

// Sanitize нормализует raw. Поддерживаются map[string]any (декодированный
// JSON), Layer, *Layer, json.RawMessage и []byte.
func (s *Sanitizer) Sanitize(raw any) (Layer, bool) {
	m, ok := asObject(raw)
	if !ok {
		return Layer{}, false
	}

	b := s.bounds
	shape, layerType := resolveShapeAndType(m)

	l := Layer{
		ID:        s.resolveID(m),
		Type:      layerType,
		X:         number(m, "x", b.X),
		Y:         number(m, "y", b.Y),
		Intensity: number(m, "intensity", b.Intensity),
		Feather:   number(m, "feather", b.Feather),
		FalloffK:  number(m, "falloffK", b.FalloffK),
		Opacity:   number(m, "opacity", b.Opacity),
		Rotation:  number(m, "rotation", b.Rotation),
	}

	switch shape {
	case ShapeRect:
		l.Geometry = Rect{
			Width:  number(m, "width", b.Width),
			Height: number(m, "height", b.Height),
		}
	default:
		l.Geometry = Circle{
			Radius: number(m, "radius", b.Radius),
			SizeX:  number(m, "sizeX", b.SizeX),
			SizeY:  number(m, "sizeY", b.SizeY),
		}
	}

	color := DefaultLightColor
	if raw, ok := m["color"].(string); ok {
		if norm, ok := NormalizeHex(raw); ok {
			color = norm
		}
	}
	// свежепереключённый блокер не должен остаться невидимым белым MULTIPLY
	if layerType.Blocking() && color == DefaultLightColor {
		color = DefaultBlockerColor
	}
	l.Color = color
	l.cache = deriveColors(color)

	return l, true
}

func (s *Sanitizer) resolveID(m map[string]any) string {
	id, _ := m["id"].(string)
	id = strings.TrimSpace(id)
	if id != "" {
		if _, dup := s.seen[id]; !dup {
			s.seen[id] = struct{}{}
			return id
		}
	}
	for {
		id = NewLayerID()
		if _, dup := s.seen[id]; !dup {
			s.seen[id] = struct{}{}
			return id
		}
	}
}

// resolveShapeAndType определяет форму и тип слоя.
//
// Тип: явный type -> blendMode -> role -> LIGHT.
// Форма: shape -> устаревший shape-тег в поле type ("rect") -> circle.
func resolveShapeAndType(m map[string]any) (ShapeKind, LayerType) {
	typeTag, _ := m["type"].(string)
	shapeTag, hasShape := m["shape"].(string)

	shape := ShapeCircle
	shapeResolved := false
	if hasShape {
		if k, ok := ParseShape(shapeTag); ok {
			shape = k
			shapeResolved = true
		}
	}

	if t, ok := ParseLayerType(typeTag); ok {
		return shape, t
	}

	if !shapeResolved {
		if k, ok := ParseShape(typeTag); ok {
			shape = k
		}
	}

	if v, ok := integer(m["blendMode"]); ok {
		if t, ok := BlendMode(v).LayerType(); ok {
			return shape, t
		}
	}

	if role, ok := m["role"].(string); ok && role != "" {
		return shape, Role(role).LayerType()
	}

	return shape, TypeLight
}

// number достаёт конечное число из поля и ограничивает диапазоном.
// Отсутствующее, нечисловое или не конечное -> r.Default.
func number(m map[string]any, key string, r Range) float64 {
	v, ok := toFloat(m[key])
	if !ok {
		return r.Default
	}
	return r.Clamp(v)
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func integer(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// asObject приводит вход к map. Всё, что не объект, отбрасывается.
func asObject(raw any) (map[string]any, bool) {
	switch v := raw.(type) {
	case map[string]any:
		if v == nil {
			return nil, false
		}
		return v, true
	case Layer:
		return layerToMap(v), true
	case *Layer:
		if v == nil {
			return nil, false
		}
		return layerToMap(*v), true
	case json.RawMessage:
		return decodeObject(v)
	case []byte:
		return decodeObject(v)
	default:
		return nil, false
	}
}

func decodeObject(data []byte) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

// layerToMap представление слоя в форме пресета.
func layerToMap(l Layer) map[string]any {
	m := map[string]any{
		"id":        l.ID,
		"type":      string(l.Type),
		"shape":     string(l.Shape()),
		"x":         l.X,
		"y":         l.Y,
		"color":     l.Color,
		"intensity": l.Intensity,
		"feather":   l.Feather,
		"falloffK":  l.FalloffK,
		"opacity":   l.Opacity,
		"rotation":  l.Rotation,
		"blendMode": int(l.BlendMode()),
	}
	switch g := l.geometry().(type) {
	case Circle:
		m["radius"] = g.Radius
		m["sizeX"] = g.SizeX
		m["sizeY"] = g.SizeY
	case Rect:
		m["width"] = g.Width
		m["height"] = g.Height
	}
	return m
}
