package scene

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultScene(t *testing.T) {
	s := Default()
	assert.Equal(t, "#000000", s.BackgroundColor)
	assert.Equal(t, 1.2, s.Exposure)
	assert.Equal(t, 1.0, s.FalloffC)
	assert.Equal(t, 1, s.ColorSpace)
	assert.Equal(t, ShapeCircle, s.CreationShape)
	assert.Equal(t, TypeLight, s.CreationType)
	assert.Empty(t, s.Layers)
}

// TestAddLayerCap тестирует лимит в 64 слоя
func TestAddLayerCap(t *testing.T) {
	s := Default()
	added := 0
	for i := 0; i < 70; i++ {
		if _, ok := s.AddLayerAt(float64(i), 0); ok {
			added++
		}
	}
	assert.Equal(t, MaxLayers, added)
	assert.Equal(t, MaxLayers, s.Len())
}

func TestAddLayerReissuesDuplicateID(t *testing.T) {
	s := Default()
	require.True(t, s.AddLayer(NewLayer("x", ShapeCircle, TypeLight, 0, 0)))
	require.True(t, s.AddLayer(NewLayer("x", ShapeRect, TypeSolid, 0, 0)))
	assert.Equal(t, "x", s.Layers[0].ID)
	assert.NotEqual(t, "x", s.Layers[1].ID)
}

func TestAddLayerAtUsesCreationDefaults(t *testing.T) {
	s := Default()
	require.NoError(t, s.SetCreationShape(ShapeRect))
	require.NoError(t, s.SetCreationType(TypeSolid))

	l, ok := s.AddLayerAt(10, 20)
	require.True(t, ok)
	assert.Equal(t, ShapeRect, l.Shape())
	assert.Equal(t, TypeSolid, l.Type)
	assert.Equal(t, BlendOver, l.BlendMode())
	assert.Equal(t, "#000000", l.Color)
	assert.Equal(t, 10.0, l.X)
	assert.Equal(t, 20.0, l.Y)
}

// TestUpdateLayer тестирует применение патча
func TestUpdateLayer(t *testing.T) {
	s := Default()
	l, _ := s.AddLayerAt(0, 0)

	radius := 10000.0
	color := "#F00"
	require.NoError(t, s.UpdateLayer(l.ID, LayerPatch{Radius: &radius, Color: &color}))

	got, ok := s.Layer(l.ID)
	require.True(t, ok)
	assert.Equal(t, 4096.0, got.Geometry.(Circle).Radius)
	assert.Equal(t, "#ff0000", got.Color)
	lin, _ := got.Colors()
	assert.Equal(t, RGB{R: 1}, lin)

	bad := "#nothex"
	err := s.UpdateLayer(l.ID, LayerPatch{Color: &bad, Radius: &radius})
	assert.True(t, errors.Is(err, ErrInvalidColor))
	got, _ = s.Layer(l.ID)
	assert.Equal(t, "#ff0000", got.Color)

	err = s.UpdateLayer("missing", LayerPatch{})
	assert.True(t, errors.Is(err, ErrLayerNotFound))
}

func TestPatchTypeSwitchTurnsWhiteBlack(t *testing.T) {
	s := Default()
	l, _ := s.AddLayerAt(0, 0)
	filter := TypeFilter
	require.NoError(t, s.UpdateLayer(l.ID, LayerPatch{Type: &filter}))

	got, _ := s.Layer(l.ID)
	assert.Equal(t, TypeFilter, got.Type)
	assert.Equal(t, BlendMultiply, got.BlendMode())
	assert.Equal(t, "#000000", got.Color)
}

func TestPatchShapeSwitchKeepsFootprint(t *testing.T) {
	s := Default()
	l, _ := s.AddLayerAt(0, 0)
	rect := ShapeRect
	require.NoError(t, s.UpdateLayer(l.ID, LayerPatch{Shape: &rect}))

	got, _ := s.Layer(l.ID)
	r, ok := got.Geometry.(Rect)
	require.True(t, ok)
	assert.Equal(t, 300.0, r.Width)
	assert.Equal(t, 300.0, r.Height)

	// поле radius для прямоугольника игнорируется
	radius := 5.0
	require.NoError(t, s.UpdateLayer(l.ID, LayerPatch{Radius: &radius}))
	got, _ = s.Layer(l.ID)
	assert.Equal(t, r, got.Geometry)
}

func TestMoveAndRemoveLayer(t *testing.T) {
	s := Default()
	var ids []string
	for i := 0; i < 4; i++ {
		l, _ := s.AddLayerAt(0, 0)
		ids = append(ids, l.ID)
	}

	require.True(t, s.MoveLayer(ids[3], 0))
	assert.Equal(t, []string{ids[3], ids[0], ids[1], ids[2]}, layerIDs(s))

	require.True(t, s.MoveLayer(ids[3], 99))
	assert.Equal(t, ids, layerIDs(s))

	require.True(t, s.RemoveLayer(ids[1]))
	assert.Equal(t, []string{ids[0], ids[2], ids[3]}, layerIDs(s))
	assert.False(t, s.RemoveLayer(ids[1]))
	assert.False(t, s.MoveLayer("missing", 0))
}

func TestCloneIsIndependent(t *testing.T) {
	s := Default()
	l, _ := s.AddLayerAt(0, 0)
	snap := s.Clone()

	x := 50.0
	require.NoError(t, s.UpdateLayer(l.ID, LayerPatch{X: &x}))
	s.RemoveLayer(l.ID)

	require.Equal(t, 1, snap.Len())
	assert.Equal(t, 0.0, snap.Layers[0].X)
}

// TestApplyGlobalsAtomic тестирует, что ошибка не применяет часть полей
func TestApplyGlobalsAtomic(t *testing.T) {
	s := Default()
	exp := 9.0
	bad := "blue"
	err := s.ApplyGlobals(Globals{Exposure: &exp, BackgroundColor: &bad})
	require.Error(t, err)
	assert.Equal(t, 1.2, s.Exposure)

	bg := "#112233"
	cs := 5
	require.NoError(t, s.ApplyGlobals(Globals{Exposure: &exp, BackgroundColor: &bg, ColorSpace: &cs}))
	assert.Equal(t, 5.0, s.Exposure)
	assert.Equal(t, "#112233", s.BackgroundColor)
	assert.Equal(t, 1, s.ColorSpace)
}

func TestNormalize(t *testing.T) {
	s := &Scene{BackgroundColor: "oops", Exposure: 100}
	for i := 0; i < 70; i++ {
		s.Layers = append(s.Layers, Layer{ID: fmt.Sprintf("l%d", i%3), Intensity: -5})
	}
	s.Normalize()

	assert.Equal(t, "#000000", s.BackgroundColor)
	assert.Equal(t, 5.0, s.Exposure)
	assert.Equal(t, ShapeCircle, s.CreationShape)
	assert.Equal(t, TypeLight, s.CreationType)
	require.Len(t, s.Layers, MaxLayers)

	seen := map[string]bool{}
	for _, l := range s.Layers {
		assert.False(t, seen[l.ID], l.ID)
		seen[l.ID] = true
		assert.Equal(t, 0.0, l.Intensity)
	}
}

func layerIDs(s *Scene) []string {
	out := make([]string, 0, s.Len())
	for _, l := range s.Layers {
		out = append(out, l.ID)
	}
	return out
}

// TestClampedDereferencesShapePointers тестирует слой с *Rect и *Circle в Geometry
func TestClampedDereferencesShapePointers(t *testing.T) {
	b := DefaultBounds()

	l := Layer{Geometry: &Rect{Width: 0, Height: 50}}
	assert.Equal(t, Rect{Width: b.Width.Min, Height: 50}, l.Clamped(b).Geometry)

	l = Layer{Geometry: &Circle{Radius: 1e9, SizeX: 2, SizeY: 1}}
	assert.Equal(t, Circle{Radius: b.Radius.Max, SizeX: 2, SizeY: 1}, l.Clamped(b).Geometry)

	var nilRect *Rect
	l = Layer{Geometry: nilRect}
	assert.Equal(t, DefaultShape(ShapeCircle, b), l.Clamped(b).Geometry)
}
