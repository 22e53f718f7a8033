package uniform

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/lightstage/internal/scene"
)

// TestFeatherExample тестирует радиус 100 и максимальную мягкость
func TestFeatherExample(t *testing.T) {
	s := scene.Default()
	l, _ := s.AddLayerAt(0, 0)
	radius, feather := 100.0, 800.0
	require.NoError(t, s.UpdateLayer(l.ID, scene.LayerPatch{Radius: &radius, Feather: &feather}))

	b := Compile(s, 600)
	assert.InDelta(t, 100.0, float64(b.Feathers[0]), 1e-4)
	assert.Equal(t, float32(100), b.Sizes[0])
}

func TestFeatherNeverExceedsCaps(t *testing.T) {
	for _, minor := range []float64{0, 1, 5, 40, 300} {
		for _, size := range []float64{minor, minor * 3, 2000} {
			for _, f := range []float64{-10, 0, 50, 400, 800, 5000, math.NaN()} {
				got := FeatherPx(f, size, minor)
				assert.GreaterOrEqual(t, got, 0.0)
				assert.LessOrEqual(t, got, minor*0.9/0.85+1e-9)
				assert.LessOrEqual(t, got, minor*0.4/0.15+1e-9)
				assert.LessOrEqual(t, got, math.Min(800, size)+1e-9)
			}
		}
	}
}

func TestCompileCapsAt64(t *testing.T) {
	s := scene.Default()
	for i := 0; i < 70; i++ {
		s.Layers = append(s.Layers, scene.NewLayer("", scene.ShapeCircle, scene.TypeLight, float64(i), 0))
	}
	b := Compile(s, 100)
	assert.Equal(t, int32(N), b.Count)
	assert.Equal(t, float32(63), b.Positions[63][0])
}

// TestCompileClampsGeometry тестирует геометрию вне диапазонов, NaN и указатели на форму
func TestCompileClampsGeometry(t *testing.T) {
	s := scene.Default()
	s.Layers = append(s.Layers,
		scene.Layer{ID: "nan", Geometry: scene.Circle{Radius: math.NaN(), SizeX: math.Inf(1), SizeY: 1}},
		scene.Layer{ID: "ptr", Geometry: &scene.Rect{Width: 100, Height: 40}, Feather: 800},
		scene.Layer{ID: "huge", Geometry: scene.Rect{Width: 1e9, Height: -5}},
	)

	b := Compile(s, 100)
	require.Equal(t, int32(3), b.Count)

	bounds := scene.DefaultBounds()
	assert.Equal(t, ShapeCodeCircle, b.Shapes[0])
	assert.Equal(t, float32(bounds.Radius.Default), b.Sizes[0])
	assert.False(t, math.IsNaN(float64(b.Feathers[0])))

	assert.Equal(t, ShapeCodeRect, b.Shapes[1])
	assert.Equal(t, float32(50), b.Sizes[1])
	assert.Equal(t, [2]float32{100, 40}, b.RectSizes[1])
	assert.LessOrEqual(t, float64(b.Feathers[1]), 20*0.9/0.85+1e-4)

	assert.Equal(t, ShapeCodeRect, b.Shapes[2])
	assert.Equal(t, [2]float32{float32(bounds.Width.Max), float32(bounds.Height.Min)}, b.RectSizes[2])

	for i := 0; i < 3; i++ {
		assert.False(t, math.IsNaN(float64(b.Sizes[i])), i)
		assert.False(t, math.IsInf(float64(b.Sizes[i]), 0), i)
		assert.GreaterOrEqual(t, b.Feathers[i], float32(0), i)
	}
}

// TestCompileLayout тестирует переворот Y, формы и режимы смешивания
func TestCompileLayout(t *testing.T) {
	s := scene.Default()
	s.AddLayer(scene.NewLayer("light", scene.ShapeCircle, scene.TypeLight, 10, 30))
	s.AddLayer(scene.NewLayer("rect", scene.ShapeRect, scene.TypeSolid, 0, 0))
	s.AddLayer(scene.NewLayer("filter", scene.ShapeCircle, scene.TypeFilter, 0, 0))

	b := Compile(s, 480)
	require.Equal(t, int32(3), b.Count)

	assert.Equal(t, [2]float32{10, 450}, b.Positions[0])
	assert.Equal(t, ShapeCodeCircle, b.Shapes[0])
	assert.Equal(t, [2]float32{300, 300}, b.RectSizes[0])
	assert.Equal(t, [3]float32{1, 1, 1}, b.Colors[0])

	assert.Equal(t, ShapeCodeRect, b.Shapes[1])
	assert.Equal(t, float32(110), b.Sizes[1])
	assert.Equal(t, [2]float32{220, 160}, b.RectSizes[1])
	assert.Equal(t, int32(scene.BlendOver), b.BlendModes[1])
	assert.Equal(t, int32(scene.BlendMultiply), b.BlendModes[2])
	assert.Equal(t, [3]float32{}, b.Colors[2])

	// хвост массивов нулевой
	assert.Equal(t, [2]float32{}, b.Positions[3])
	assert.Equal(t, float32(0), b.Intensities[N-1])

	assert.Equal(t, float32(1.2), b.Exposure)
	assert.Equal(t, int32(1), b.ColorSpace)
	assert.Equal(t, [2]float32{0, 480}, b.Resolution)
}

func TestCompileNilAndNonFinite(t *testing.T) {
	b := Compile(nil, math.NaN())
	assert.Equal(t, int32(0), b.Count)
	assert.True(t, Equal(b, &Bundle{}))

	s := scene.Default()
	s.Layers = append(s.Layers, scene.Layer{ID: "raw", X: math.Inf(1), Rotation: math.NaN(), Intensity: 1e9})
	b = Compile(s, 100)
	assert.Equal(t, float32(0), b.Positions[0][0])
	assert.Equal(t, float32(0), b.Rotations[0])
	assert.Equal(t, float32(scene.IntensityMax), b.Intensities[0])
	assert.Equal(t, ShapeCodeCircle, b.Shapes[0])
}

func TestCompileDoesNotMutateSnapshot(t *testing.T) {
	s := scene.Default()
	s.AddLayerAt(5, 5)
	s.Layers[0].Color = "#00ff00"
	before := s.Clone()

	b := Compile(s, 10)
	assert.Equal(t, [3]float32{0, 1, 0}, b.Colors[0])
	assert.Equal(t, before, s)
}

// TestRoundTripCompile тестирует Compile(Import(Export(s))) == Compile(s)
func TestRoundTripCompile(t *testing.T) {
	s := scene.Default()
	s.SetExposure(3)
	for i := 0; i < 5; i++ {
		l, _ := s.AddLayerAt(float64(i*10), float64(i*7))
		color := []string{"#ff0000", "#808080", "#123", "#ffffff", "#00ffaa"}[i]
		feather := float64(i * 170)
		require.NoError(t, s.UpdateLayer(l.ID, scene.LayerPatch{Color: &color, Feather: &feather}))
	}
	require.NoError(t, s.SetCreationShape(scene.ShapeRect))
	s.AddLayerAt(1, 1)

	data, err := scene.MarshalPreset(s)
	require.NoError(t, err)
	back, err := scene.Import(data)
	require.NoError(t, err)

	assert.True(t, Equal(Compile(s, 720), Compile(back, 720)))
}

func TestUniformsNames(t *testing.T) {
	b := Compile(scene.Default(), 100)
	u := b.Uniforms()
	assert.Len(t, u["u_lightPos"], 2*N)
	assert.Len(t, u["u_lightColorLinear"], 3*N)
	assert.Len(t, u["u_lightBlendMode"], N)
	assert.Equal(t, int32(0), u["u_numLights"])
	assert.Len(t, u, 18)
}
