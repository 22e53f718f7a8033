package scene

import "fmt"

// Scene упорядоченный список слоёв плюс глобальные параметры рендера.
// Порядок слоёв — порядок композиции: последний рисуется сверху.
type Scene struct {
	BackgroundColor string
	Exposure        float64
	FalloffC        float64
	ColorSpace      int
	CreationShape   ShapeKind
	CreationType    LayerType
	Layers          []Layer
}

// Default документированная сцена по умолчанию (пустая, чёрный фон).
func Default() *Scene {
	b := DefaultBounds()
	return &Scene{
		BackgroundColor: DefaultBackgroundColor,
		Exposure:        b.Exposure.Default,
		FalloffC:        b.FalloffC.Default,
		ColorSpace:      1,
		CreationShape:   ShapeCircle,
		CreationType:    TypeLight,
		Layers:          []Layer{},
	}
}

// Clone глубокая копия. Слои — значения, геометрия — неизменяемые
// значения Circle/Rect, поэтому достаточно скопировать срез.
func (s *Scene) Clone() *Scene {
	if s == nil {
		return nil
	}
	out := *s
	out.Layers = make([]Layer, len(s.Layers))
	copy(out.Layers, s.Layers)
	return &out
}

// Len число слоёв.
func (s *Scene) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Layers)
}

func (s *Scene) indexOf(id string) int {
	for i := range s.Layers {
		if s.Layers[i].ID == id {
			return i
		}
	}
	return -1
}

// Layer ищет слой по id.
func (s *Scene) Layer(id string) (Layer, bool) {
	i := s.indexOf(id)
	if i < 0 {
		return Layer{}, false
	}
	return s.Layers[i], true
}

// AddLayer добавляет слой наверх. При достижении MaxLayers слой молча
// отбрасывается (false). Дубликат id получает новый идентификатор.
func (s *Scene) AddLayer(l Layer) bool {
	if len(s.Layers) >= MaxLayers {
		return false
	}
	if l.ID == "" || s.indexOf(l.ID) >= 0 {
		l.ID = s.uniqueID()
	}
	s.Layers = append(s.Layers, l)
	return true
}

func (s *Scene) uniqueID() string {
	for {
		id := NewLayerID()
		if s.indexOf(id) < 0 {
			return id
		}
	}
}

// AddLayerAt создаёт слой текущей формы/типа создания в точке (x, y).
func (s *Scene) AddLayerAt(x, y float64) (Layer, bool) {
	l := NewLayer(s.uniqueID(), s.CreationShape, s.CreationType, x, y)
	if !s.AddLayer(l) {
		return Layer{}, false
	}
	return l, true
}

// UpdateLayer применяет патч к слою id.
func (s *Scene) UpdateLayer(id string, p LayerPatch) error {
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrLayerNotFound, id)
	}
	return p.Apply(&s.Layers[i], DefaultBounds())
}

// RemoveLayer удаляет слой по id.
func (s *Scene) RemoveLayer(id string) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.Layers = append(s.Layers[:i], s.Layers[i+1:]...)
	return true
}

// MoveLayer переставляет слой на позицию index (ограничивается границами).
// Идентичность слоя не меняется.
func (s *Scene) MoveLayer(id string, index int) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	if index < 0 {
		index = 0
	}
	if index >= len(s.Layers) {
		index = len(s.Layers) - 1
	}
	if index == i {
		return true
	}
	l := s.Layers[i]
	s.Layers = append(s.Layers[:i], s.Layers[i+1:]...)
	s.Layers = append(s.Layers[:index], append([]Layer{l}, s.Layers[index:]...)...)
	return true
}

// ClearLayers удаляет все слои.
func (s *Scene) ClearLayers() {
	s.Layers = []Layer{}
}

// SetBackgroundColor задаёт цвет фона.
func (s *Scene) SetBackgroundColor(hex string) error {
	norm, ok := NormalizeHex(hex)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidColor, hex)
	}
	s.BackgroundColor = norm
	return nil
}

// SetExposure ограничивает значение диапазоном [0.1, 5].
func (s *Scene) SetExposure(v float64) {
	s.Exposure = DefaultBounds().Exposure.Clamp(v)
}

// SetFalloffC ограничивает значение диапазоном [0.2, 6].
func (s *Scene) SetFalloffC(v float64) {
	s.FalloffC = DefaultBounds().FalloffC.Clamp(v)
}

// SetColorSpace: 0 — линейный вход, всё остальное — sRGB (1).
func (s *Scene) SetColorSpace(v int) {
	if v == 0 {
		s.ColorSpace = 0
		return
	}
	s.ColorSpace = 1
}

// SetCreationShape форма для новых слоёв.
func (s *Scene) SetCreationShape(kind ShapeKind) error {
	k, ok := ParseShape(string(kind))
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidShape, kind)
	}
	s.CreationShape = k
	return nil
}

// SetCreationType тип для новых слоёв.
func (s *Scene) SetCreationType(t LayerType) error {
	lt, ok := ParseLayerType(string(t))
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidType, t)
	}
	s.CreationType = lt
	return nil
}

// Globals частичное обновление глобальных параметров сцены.
type Globals struct {
	BackgroundColor *string    `json:"backgroundColor,omitempty"`
	Exposure        *float64   `json:"exposure,omitempty"`
	FalloffC        *float64   `json:"falloffC,omitempty"`
	ColorSpace      *int       `json:"colorSpace,omitempty"`
	CreationShape   *ShapeKind `json:"creationShape,omitempty"`
	CreationType    *LayerType `json:"creationType,omitempty"`
}

// ApplyGlobals применяет Globals целиком или не применяет ничего.
func (s *Scene) ApplyGlobals(g Globals) error {
	next := s.Clone()
	if g.BackgroundColor != nil {
		if err := next.SetBackgroundColor(*g.BackgroundColor); err != nil {
			return err
		}
	}
	if g.Exposure != nil {
		next.SetExposure(*g.Exposure)
	}
	if g.FalloffC != nil {
		next.SetFalloffC(*g.FalloffC)
	}
	if g.ColorSpace != nil {
		next.SetColorSpace(*g.ColorSpace)
	}
	if g.CreationShape != nil {
		if err := next.SetCreationShape(*g.CreationShape); err != nil {
			return err
		}
	}
	if g.CreationType != nil {
		if err := next.SetCreationType(*g.CreationType); err != nil {
			return err
		}
	}
	*s = *next
	return nil
}

// Normalize приводит собранную вручную сцену к инвариантам:
// лимит слоёв, уникальные id, глобальные поля в диапазонах.
func (s *Scene) Normalize() {
	b := DefaultBounds()
	if norm, ok := NormalizeHex(s.BackgroundColor); ok {
		s.BackgroundColor = norm
	} else {
		s.BackgroundColor = DefaultBackgroundColor
	}
	s.Exposure = b.Exposure.Clamp(s.Exposure)
	s.FalloffC = b.FalloffC.Clamp(s.FalloffC)
	s.SetColorSpace(s.ColorSpace)
	if k, ok := ParseShape(string(s.CreationShape)); ok {
		s.CreationShape = k
	} else {
		s.CreationShape = ShapeCircle
	}
	if t, ok := ParseLayerType(string(s.CreationType)); ok {
		s.CreationType = t
	} else {
		s.CreationType = TypeLight
	}

	if len(s.Layers) > MaxLayers {
		s.Layers = s.Layers[:MaxLayers]
	}
	seen := make(map[string]struct{}, len(s.Layers))
	out := make([]Layer, 0, len(s.Layers))
	for _, l := range s.Layers {
		if _, dup := seen[l.ID]; dup || l.ID == "" {
			l.ID = NewLayerID()
		}
		seen[l.ID] = struct{}{}
		out = append(out, l.Clamped(b))
	}
	s.Layers = out
}
