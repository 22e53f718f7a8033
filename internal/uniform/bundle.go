// Package uniform компилирует сцену в набор uniform-массивов фиксированного
// размера, который backend загружает один раз за кадр.
package uniform

import "github.com/annel0/lightstage/internal/scene"

// N размер каждого массива.
const N = scene.MaxLayers

// Bundle плоское представление сцены для шейдера. Хвост массивов после
// Count заполнен нулями.
type Bundle struct {
	Positions   [N][2]float32
	Colors      [N][3]float32
	Tints       [N][3]float32
	Intensities [N]float32
	Sizes       [N]float32
	Feathers    [N]float32
	RectSizes   [N][2]float32
	Falloffs    [N]float32
	Rotations   [N]float32
	Opacities   [N]float32
	BlendModes  [N]int32
	Shapes      [N]int32

	Exposure   float32
	FalloffC   float32
	ColorSpace int32
	Background [3]float32
	Count      int32
	Resolution [2]float32
}

// Коды форм в u_lightType.
const (
	ShapeCodeCircle int32 = 0
	ShapeCodeRect   int32 = 1
)

// Uniforms раскладывает бандл в именованные uniform'ы backend'а.
// Значения передаются срезами, чтобы backend мог загрузить их одним вызовом.
func (b *Bundle) Uniforms() map[string]any {
	return map[string]any{
		"u_lightPos":         flatten2(b.Positions[:]),
		"u_lightColorLinear": flatten3(b.Colors[:]),
		"u_lightTintLinear":  flatten3(b.Tints[:]),
		"u_lightIntensity":   b.Intensities[:],
		"u_lightSize":        b.Sizes[:],
		"u_lightFeather":     b.Feathers[:],
		"u_lightRectSize":    flatten2(b.RectSizes[:]),
		"u_lightFalloffK":    b.Falloffs[:],
		"u_lightRotation":    b.Rotations[:],
		"u_lightOpacity":     b.Opacities[:],
		"u_lightBlendMode":   b.BlendModes[:],
		"u_lightType":        b.Shapes[:],
		"u_numLights":        b.Count,
		"u_exposure":         b.Exposure,
		"u_falloffC":         b.FalloffC,
		"u_colorSpace":       b.ColorSpace,
		"u_bgColorLinear":    b.Background[:],
		"u_resolution":       b.Resolution[:],
	}
}

func flatten2(v [][2]float32) []float32 {
	out := make([]float32, 0, len(v)*2)
	for _, p := range v {
		out = append(out, p[0], p[1])
	}
	return out
}

func flatten3(v [][3]float32) []float32 {
	out := make([]float32, 0, len(v)*3)
	for _, p := range v {
		out = append(out, p[0], p[1], p[2])
	}
	return out
}

// Equal сравнивает два бандла поэлементно. nil равен только nil.
func Equal(a, b *Bundle) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
