package scene

import (
	"encoding/json"
	"errors"
	"fmt"
)

// PresetVersion текущая версия формата пресета.
const PresetVersion = 1

// ErrInvalidPreset пресет не может быть импортирован.
var ErrInvalidPreset = errors.New("invalid preset")

// Preset файловое/сетевое представление сцены.
type Preset struct {
	Version         int           `json:"version"`
	BackgroundColor string        `json:"backgroundColor"`
	CreationShape   ShapeKind     `json:"creationShape"`
	CreationType    LayerType     `json:"creationType,omitempty"`
	Exposure        float64       `json:"exposure"`
	FalloffC        float64       `json:"falloffC"`
	ColorSpace      int           `json:"colorSpace"`
	Lights          []LightPreset `json:"lights"`
}

// LightPreset один слой в пресете. Поля геометрии присутствуют только
// для соответствующей формы.
type LightPreset struct {
	ID        string    `json:"id"`
	Type      LayerType `json:"type"`
	Shape     ShapeKind `json:"shape"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Color     string    `json:"color"`
	Intensity float64   `json:"intensity"`
	Feather   float64   `json:"feather"`
	FalloffK  float64   `json:"falloffK"`
	Opacity   float64   `json:"opacity"`
	Rotation  float64   `json:"rotation"`
	BlendMode BlendMode `json:"blendMode"`

	Radius *float64 `json:"radius,omitempty"`
	SizeX  *float64 `json:"sizeX,omitempty"`
	SizeY  *float64 `json:"sizeY,omitempty"`
	Width  *float64 `json:"width,omitempty"`
	Height *float64 `json:"height,omitempty"`
}

// Export строит пресет из сцены. nil-сцена экспортируется как Default().
func Export(s *Scene) Preset {
	if s == nil {
		s = Default()
	}
	p := Preset{
		Version:         PresetVersion,
		BackgroundColor: s.BackgroundColor,
		CreationShape:   s.CreationShape,
		CreationType:    s.CreationType,
		Exposure:        s.Exposure,
		FalloffC:        s.FalloffC,
		ColorSpace:      s.ColorSpace,
		Lights:          make([]LightPreset, 0, len(s.Layers)),
	}
	for _, l := range s.Layers {
		lp := LightPreset{
			ID:        l.ID,
			Type:      l.Type,
			Shape:     l.Shape(),
			X:         l.X,
			Y:         l.Y,
			Color:     l.Color,
			Intensity: l.Intensity,
			Feather:   l.Feather,
			FalloffK:  l.FalloffK,
			Opacity:   l.Opacity,
			Rotation:  l.Rotation,
			BlendMode: l.BlendMode(),
		}
		switch g := l.geometry().(type) {
		case Circle:
			lp.Radius, lp.SizeX, lp.SizeY = ptr(g.Radius), ptr(g.SizeX), ptr(g.SizeY)
		case Rect:
			lp.Width, lp.Height = ptr(g.Width), ptr(g.Height)
		}
		p.Lights = append(p.Lights, lp)
	}
	return p
}

func ptr(v float64) *float64 { return &v }

// MarshalPreset сериализует сцену в JSON пресета.
func MarshalPreset(s *Scene) ([]byte, error) {
	data, err := json.Marshal(Export(s))
	if err != nil {
		return nil, fmt.Errorf("marshal preset: %w", err)
	}
	return data, nil
}

// Import разбирает и санитизирует пресет. При ошибке сцена не создаётся,
// вызывающий сохраняет прежнее состояние.
func Import(data []byte) (*Scene, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPreset, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: not an object", ErrInvalidPreset)
	}
	return FromMap(m)
}

// FromMap импорт уже декодированного JSON-объекта.
func FromMap(m map[string]any) (*Scene, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: not an object", ErrInvalidPreset)
	}

	if raw, ok := m["version"]; ok {
		v, ok := toFloat(raw)
		if !ok {
			return nil, fmt.Errorf("%w: version is not a number", ErrInvalidPreset)
		}
		if v > PresetVersion {
			return nil, fmt.Errorf("%w: unsupported version %v", ErrInvalidPreset, v)
		}
	}

	rawLights, ok := m["lights"]
	if !ok {
		return nil, fmt.Errorf("%w: lights missing", ErrInvalidPreset)
	}
	lights, ok := rawLights.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: lights is not an array", ErrInvalidPreset)
	}

	b := DefaultBounds()
	s := Default()

	if bg, ok := m["backgroundColor"].(string); ok {
		if norm, ok := NormalizeHex(bg); ok {
			s.BackgroundColor = norm
		}
	}
	s.Exposure = number(m, "exposure", b.Exposure)
	s.FalloffC = number(m, "falloffC", b.FalloffC)
	if cs, ok := integer(m["colorSpace"]); ok {
		s.SetColorSpace(cs)
	}
	if tag, ok := m["creationShape"].(string); ok {
		if k, ok := ParseShape(tag); ok {
			s.CreationShape = k
		}
	}
	if tag, ok := m["creationType"].(string); ok {
		if t, ok := ParseLayerType(tag); ok {
			s.CreationType = t
		}
	}

	san := NewSanitizer(b)
	for _, raw := range lights {
		if len(s.Layers) >= MaxLayers {
			break
		}
		l, ok := san.Sanitize(raw)
		if !ok {
			continue
		}
		s.Layers = append(s.Layers, l)
	}

	if len(lights) > 0 && len(s.Layers) == 0 {
		return nil, fmt.Errorf("%w: no valid lights", ErrInvalidPreset)
	}
	return s, nil
}
