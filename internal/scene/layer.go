package scene

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrLayerNotFound = errors.New("layer not found")
	ErrInvalidColor  = errors.New("invalid hex color")
	ErrInvalidType   = errors.New("invalid layer type")
	ErrInvalidShape  = errors.New("invalid layer shape")
)

// Shape геометрия слоя. Набор реализаций закрыт: Circle и Rect.
type Shape interface {
	Kind() ShapeKind
	// HalfExtents большая и малая полуоси в пикселях.
	HalfExtents() (major, minor float64)
	// Footprint полный размер ограничивающего прямоугольника.
	Footprint() (w, h float64)

	clamp(b Bounds) Shape
}

// Circle круг; анизотропия задаётся SizeX/SizeY.
type Circle struct {
	Radius float64
	SizeX  float64
	SizeY  float64
}

func (Circle) Kind() ShapeKind { return ShapeCircle }

func (c Circle) HalfExtents() (float64, float64) {
	ax, ay := c.Radius*c.SizeX, c.Radius*c.SizeY
	return math.Max(ax, ay), math.Min(ax, ay)
}

func (c Circle) Footprint() (float64, float64) {
	return 2 * c.Radius * c.SizeX, 2 * c.Radius * c.SizeY
}

func (c Circle) clamp(b Bounds) Shape {
	return Circle{
		Radius: b.Radius.Clamp(c.Radius),
		SizeX:  b.SizeX.Clamp(c.SizeX),
		SizeY:  b.SizeY.Clamp(c.SizeY),
	}
}

// Rect прямоугольник с центром в (X, Y).
type Rect struct {
	Width  float64
	Height float64
}

func (Rect) Kind() ShapeKind { return ShapeRect }

func (r Rect) HalfExtents() (float64, float64) {
	return math.Max(r.Width, r.Height) / 2, math.Min(r.Width, r.Height) / 2
}

func (r Rect) Footprint() (float64, float64) {
	return r.Width, r.Height
}

func (r Rect) clamp(b Bounds) Shape {
	return Rect{
		Width:  b.Width.Clamp(r.Width),
		Height: b.Height.Clamp(r.Height),
	}
}

// DefaultShape геометрия нового слоя заданной формы.
func DefaultShape(kind ShapeKind, b Bounds) Shape {
	if kind == ShapeRect {
		return Rect{Width: b.Width.Default, Height: b.Height.Default}
	}
	return Circle{Radius: b.Radius.Default, SizeX: b.SizeX.Default, SizeY: b.SizeY.Default}
}

// Layer один элемент сцены: источник света или блокер.
type Layer struct {
	ID        string
	Type      LayerType
	X         float64
	Y         float64
	Geometry  Shape
	Color     string
	Intensity float64
	Feather   float64
	FalloffK  float64
	Opacity   float64
	Rotation  float64

	cache colorCache
}

// NewLayerID генерирует идентификатор вида light-xxxxxxxx.
func NewLayerID() string {
	return "light-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// NewLayer создаёт слой с параметрами по умолчанию.
func NewLayer(id string, kind ShapeKind, t LayerType, x, y float64) Layer {
	b := DefaultBounds()
	if id == "" {
		id = NewLayerID()
	}
	if _, ok := ParseLayerType(string(t)); !ok {
		t = TypeLight
	}
	l := Layer{
		ID:        id,
		Type:      t,
		X:         b.X.Clamp(x),
		Y:         b.Y.Clamp(y),
		Geometry:  DefaultShape(kind, b),
		Intensity: b.Intensity.Default,
		Feather:   b.Feather.Default,
		FalloffK:  b.FalloffK.Default,
		Opacity:   b.Opacity.Default,
		Rotation:  b.Rotation.Default,
	}
	color := DefaultLightColor
	if t.Blocking() {
		color = DefaultBlockerColor
	}
	l.SetColor(color)
	return l
}

// Shape тег формы; слой без геометрии считается кругом.
func (l Layer) Shape() ShapeKind {
	if l.Geometry == nil {
		return ShapeCircle
	}
	return l.Geometry.Kind()
}

// BlendMode производная от типа.
func (l Layer) BlendMode() BlendMode {
	return l.Type.BlendMode()
}

// SetColor задаёт цвет и пересчитывает линейный кеш.
// Невалидная строка отклоняется, слой не меняется.
func (l *Layer) SetColor(hex string) error {
	norm, ok := NormalizeHex(hex)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidColor, hex)
	}
	l.Color = norm
	l.cache = deriveColors(norm)
	return nil
}

// Colors возвращает линейный цвет и tint. Если кеш устарел (Color изменён
// напрямую), значения считаются заново без записи в слой.
func (l Layer) Colors() (linear, tint RGB) {
	if l.cache.hex == l.Color && l.Color != "" {
		return l.cache.linear, l.cache.tint
	}
	c := deriveColors(l.Color)
	return c.linear, c.tint
}

// geometry возвращает геометрию по значению или круг по умолчанию.
// Указатели *Circle и *Rect тоже реализуют Shape и разыменовываются.
func (l Layer) geometry() Shape {
	switch g := l.Geometry.(type) {
	case *Circle:
		if g != nil {
			return *g
		}
	case *Rect:
		if g != nil {
			return *g
		}
	case nil:
	default:
		return g
	}
	return DefaultShape(ShapeCircle, DefaultBounds())
}

// Clamped копия слоя с числовыми полями в пределах b.
func (l Layer) Clamped(b Bounds) Layer {
	out := l
	out.X = b.X.Clamp(l.X)
	out.Y = b.Y.Clamp(l.Y)
	out.Geometry = l.geometry().clamp(b)
	out.Intensity = b.Intensity.Clamp(l.Intensity)
	out.Feather = b.Feather.Clamp(l.Feather)
	out.FalloffK = b.FalloffK.Clamp(l.FalloffK)
	out.Opacity = b.Opacity.Clamp(l.Opacity)
	out.Rotation = b.Rotation.Clamp(l.Rotation)
	return out
}

// LayerPatch частичное обновление слоя; nil-поля не трогаются.
type LayerPatch struct {
	Type      *LayerType `json:"type,omitempty"`
	Shape     *ShapeKind `json:"shape,omitempty"`
	X         *float64   `json:"x,omitempty"`
	Y         *float64   `json:"y,omitempty"`
	Radius    *float64   `json:"radius,omitempty"`
	SizeX     *float64   `json:"sizeX,omitempty"`
	SizeY     *float64   `json:"sizeY,omitempty"`
	Width     *float64   `json:"width,omitempty"`
	Height    *float64   `json:"height,omitempty"`
	Color     *string    `json:"color,omitempty"`
	Intensity *float64   `json:"intensity,omitempty"`
	Feather   *float64   `json:"feather,omitempty"`
	FalloffK  *float64   `json:"falloffK,omitempty"`
	Opacity   *float64   `json:"opacity,omitempty"`
	Rotation  *float64   `json:"rotation,omitempty"`
}

// Apply применяет патч к слою. Числа ограничиваются диапазонами,
// невалидные цвет/тип/форма дают ошибку и слой не меняется.
func (p LayerPatch) Apply(l *Layer, b Bounds) error {
	next := *l

	if p.Type != nil {
		t, ok := ParseLayerType(string(*p.Type))
		if !ok {
			return fmt.Errorf("%w: %q", ErrInvalidType, *p.Type)
		}
		next.Type = t
	}

	if p.Shape != nil {
		kind, ok := ParseShape(string(*p.Shape))
		if !ok {
			return fmt.Errorf("%w: %q", ErrInvalidShape, *p.Shape)
		}
		next.Geometry = convertShape(next.geometry(), kind)
	}

	switch g := next.geometry().(type) {
	case Circle:
		setIf(&g.Radius, p.Radius)
		setIf(&g.SizeX, p.SizeX)
		setIf(&g.SizeY, p.SizeY)
		next.Geometry = g
	case Rect:
		setIf(&g.Width, p.Width)
		setIf(&g.Height, p.Height)
		next.Geometry = g
	}

	setIf(&next.X, p.X)
	setIf(&next.Y, p.Y)
	setIf(&next.Intensity, p.Intensity)
	setIf(&next.Feather, p.Feather)
	setIf(&next.FalloffK, p.FalloffK)
	setIf(&next.Opacity, p.Opacity)
	setIf(&next.Rotation, p.Rotation)

	if p.Color != nil {
		if err := next.SetColor(*p.Color); err != nil {
			return err
		}
	}

	// слой, переключённый в блокер, не должен остаться белым MULTIPLY
	if p.Type != nil && p.Color == nil && next.Type.Blocking() && next.Color == DefaultLightColor {
		_ = next.SetColor(DefaultBlockerColor)
	}

	*l = next.Clamped(b)
	return nil
}

func setIf(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

// convertShape меняет форму, сохраняя видимый размер.
func convertShape(from Shape, to ShapeKind) Shape {
	if from.Kind() == to {
		return from
	}
	w, h := from.Footprint()
	if to == ShapeRect {
		return Rect{Width: w, Height: h}
	}
	r := math.Max(w, h) / 2
	if r <= 0 {
		return DefaultShape(ShapeCircle, DefaultBounds())
	}
	return Circle{Radius: r, SizeX: w / (2 * r), SizeY: h / (2 * r)}
}
