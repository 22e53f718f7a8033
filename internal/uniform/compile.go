package uniform

import (
	"math"

	"github.com/annel0/lightstage/internal/scene"
)

// Константы распределения мягкости края: доля внешнего и внутреннего
// ореола и допустимый вынос за границу формы.
const (
	outRatio    = 0.15
	inRatio     = 0.85
	spillFactor = 0.4

	// featherSpan размер в пикселях, соответствующий максимальной мягкости
	featherSpan = scene.FeatherMax
	gamma       = 2.2
)

// Compile строит бандл из снимка сцены. Функция чистая: снимок не
// изменяется, одинаковый вход даёт побитово одинаковый выход.
func Compile(s *scene.Scene, canvasHeight float64) *Bundle {
	b := &Bundle{}
	if !finite(canvasHeight) {
		canvasHeight = 0
	}
	b.Resolution[1] = float32(canvasHeight)
	if s == nil {
		return b
	}

	bounds := scene.DefaultBounds()
	b.Exposure = float32(bounds.Exposure.Clamp(s.Exposure))
	b.FalloffC = float32(bounds.FalloffC.Clamp(s.FalloffC))
	if s.ColorSpace == 0 {
		b.ColorSpace = 0
	} else {
		b.ColorSpace = 1
	}
	if bg, ok := scene.ParseHex(s.BackgroundColor); ok {
		b.Background = vec3(scene.ToLinear(bg))
	}

	count := len(s.Layers)
	if count > N {
		count = N
	}
	b.Count = int32(count)

	for i := 0; i < count; i++ {
		compileLayer(b, i, s.Layers[i], canvasHeight, bounds)
	}
	return b
}

func compileLayer(b *Bundle, i int, l scene.Layer, canvasHeight float64, bounds scene.Bounds) {
	b.Positions[i] = [2]float32{float32(finiteOr(l.X, 0)), float32(canvasHeight - finiteOr(l.Y, 0))}

	lin, tint := l.Colors()
	b.Colors[i] = vec3(lin)
	b.Tints[i] = vec3(tint)

	// геометрия приводится к диапазонам так же, как скалярные поля
	g := l.Clamped(bounds).Geometry
	size, minor := g.HalfExtents()
	w, h := g.Footprint()
	rect := [2]float32{float32(w), float32(h)}
	if g.Kind() == scene.ShapeRect {
		b.Shapes[i] = ShapeCodeRect
	} else {
		b.Shapes[i] = ShapeCodeCircle
	}
	b.Sizes[i] = float32(size)
	b.RectSizes[i] = rect
	b.Feathers[i] = float32(FeatherPx(l.Feather, size, minor))

	b.Intensities[i] = float32(bounds.Intensity.Clamp(l.Intensity))
	b.Falloffs[i] = float32(bounds.FalloffK.Clamp(l.FalloffK))
	b.Opacities[i] = float32(bounds.Opacity.Clamp(l.Opacity))
	b.Rotations[i] = float32(finiteOr(l.Rotation, 0))
	b.BlendModes[i] = int32(l.BlendMode())
}

// FeatherPx переводит UI-мягкость в пиксели с перцептивной кривой и
// ограничивает её так, чтобы ореол не выходил далеко за форму:
// результат никогда не превышает min(featherPx, minor*0.9/0.85, minor*0.4/0.15).
func FeatherPx(feather, size, minor float64) float64 {
	t := clamp01(finiteOr(feather, 0) / featherSpan)
	perceptual := math.Pow(t, gamma)
	px := perceptual * math.Min(featherSpan, size)

	capIn := minor * 0.9 / inRatio
	capOut := minor * spillFactor / outRatio
	return math.Max(0, math.Min(px, math.Min(capIn, capOut)))
}

func vec3(c scene.RGB) [3]float32 {
	return [3]float32{float32(c.R), float32(c.G), float32(c.B)}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteOr(v, def float64) float64 {
	if finite(v) {
		return v
	}
	return def
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
