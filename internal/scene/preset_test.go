package scene

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleScene(t *testing.T) *Scene {
	t.Helper()
	s := Default()
	require.NoError(t, s.SetBackgroundColor("#102030"))
	s.SetExposure(2.5)
	s.SetFalloffC(0.7)
	s.SetColorSpace(0)

	a, _ := s.AddLayerAt(100, 200)
	require.NoError(t, s.SetCreationShape(ShapeRect))
	require.NoError(t, s.SetCreationType(TypeFilter))
	b, _ := s.AddLayerAt(-40, 15)

	color := "#ff8800"
	feather := 600.0
	require.NoError(t, s.UpdateLayer(a.ID, LayerPatch{Color: &color, Feather: &feather}))
	w := 512.0
	require.NoError(t, s.UpdateLayer(b.ID, LayerPatch{Width: &w}))
	return s
}

// TestPresetRoundTrip тестирует Export -> Import без потерь
func TestPresetRoundTrip(t *testing.T) {
	s := sampleScene(t)

	data, err := MarshalPreset(s)
	require.NoError(t, err)

	back, err := Import(data)
	require.NoError(t, err)
	assert.Equal(t, s, back)
}

func TestExportShapeSpecificFields(t *testing.T) {
	s := sampleScene(t)
	data, err := MarshalPreset(s)
	require.NoError(t, err)

	var raw struct {
		Version int              `json:"version"`
		Lights  []map[string]any `json:"lights"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, 1, raw.Version)
	require.Len(t, raw.Lights, 2)

	assert.Contains(t, raw.Lights[0], "radius")
	assert.NotContains(t, raw.Lights[0], "width")
	assert.Equal(t, 0.0, raw.Lights[0]["blendMode"])

	assert.Contains(t, raw.Lights[1], "width")
	assert.NotContains(t, raw.Lights[1], "sizeX")
	assert.Equal(t, "FILTER", raw.Lights[1]["type"])
	assert.Equal(t, 2.0, raw.Lights[1]["blendMode"])
}

func TestExportEmptySceneHasLightsArray(t *testing.T) {
	data, err := MarshalPreset(Default())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"lights":[]`)

	s, err := Import(data)
	require.NoError(t, err)
	assert.Equal(t, Default(), s)
}

// TestImportFailures тестирует отказ на невалидных пресетах
func TestImportFailures(t *testing.T) {
	cases := map[string]string{
		"not json":       `{{`,
		"array":          `[]`,
		"null":           `null`,
		"future version": `{"version":2,"lights":[]}`,
		"no lights":      `{"version":1}`,
		"lights object":  `{"lights":{}}`,
		"all invalid":    `{"lights":[1,"x",null]}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			s, err := Import([]byte(in))
			assert.Nil(t, s)
			assert.True(t, errors.Is(err, ErrInvalidPreset), "%v", err)
		})
	}
}

func TestImportSanitizesGlobalsAndLights(t *testing.T) {
	in := `{
		"backgroundColor": "purple",
		"exposure": 99,
		"falloffC": "x",
		"colorSpace": 0,
		"creationShape": "ellipse",
		"lights": [
			{"id": "dup", "role": "blocker"},
			{"id": "dup", "type": "rect", "width": 10},
			"skip me"
		]
	}`
	s, err := Import([]byte(in))
	require.NoError(t, err)

	assert.Equal(t, "#000000", s.BackgroundColor)
	assert.Equal(t, 5.0, s.Exposure)
	assert.Equal(t, 1.0, s.FalloffC)
	assert.Equal(t, 0, s.ColorSpace)
	assert.Equal(t, ShapeCircle, s.CreationShape)

	require.Len(t, s.Layers, 2)
	assert.Equal(t, "dup", s.Layers[0].ID)
	assert.Equal(t, TypeFilter, s.Layers[0].Type)
	assert.Equal(t, "#000000", s.Layers[0].Color)
	assert.NotEqual(t, "dup", s.Layers[1].ID)
	assert.Equal(t, Rect{Width: 10, Height: 160}, s.Layers[1].Geometry)
}

func TestImportCapsLayers(t *testing.T) {
	lights := make([]string, 70)
	for i := range lights {
		lights[i] = fmt.Sprintf(`{"id":"l%d","x":%d}`, i, i)
	}
	s, err := Import([]byte(`{"lights":[` + strings.Join(lights, ",") + `]}`))
	require.NoError(t, err)
	require.Len(t, s.Layers, MaxLayers)
	assert.Equal(t, "l63", s.Layers[63].ID)
}
