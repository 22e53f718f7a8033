package scene

import "math"

// Range допустимый диапазон числового поля и значение по умолчанию
// для отсутствующих или нечисловых (NaN/Inf) входов.
type Range struct {
	Min     float64
	Max     float64
	Default float64
}

// Clamp приводит значение к диапазону; нечисловое -> Default.
func (r Range) Clamp(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return r.Default
	}
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Bounds набор диапазонов для всех числовых полей слоя и сцены.
type Bounds struct {
	X         Range
	Y         Range
	Radius    Range
	SizeX     Range
	SizeY     Range
	Width     Range
	Height    Range
	Intensity Range
	Feather   Range
	FalloffK  Range
	Opacity   Range
	Rotation  Range

	Exposure Range
	FalloffC Range
}

// DefaultBounds документированные диапазоны и значения по умолчанию.
func DefaultBounds() Bounds {
	const coord = 100000
	rot := 2 * math.Pi * MaxLayers
	return Bounds{
		X:         Range{Min: -coord, Max: coord, Default: 0},
		Y:         Range{Min: -coord, Max: coord, Default: 0},
		Radius:    Range{Min: 1, Max: 4096, Default: 150},
		SizeX:     Range{Min: 0.05, Max: 20, Default: 1},
		SizeY:     Range{Min: 0.05, Max: 20, Default: 1},
		Width:     Range{Min: 1, Max: 8192, Default: 220},
		Height:    Range{Min: 1, Max: 8192, Default: 160},
		Intensity: Range{Min: 0, Max: IntensityMax, Default: 400},
		Feather:   Range{Min: 0, Max: FeatherMax, Default: 150},
		FalloffK:  Range{Min: 0.1, Max: 8, Default: 1.5},
		Opacity:   Range{Min: 0, Max: 1, Default: 1},
		Rotation:  Range{Min: -rot, Max: rot, Default: 0},

		Exposure: Range{Min: 0.1, Max: 5, Default: 1.2},
		FalloffC: Range{Min: 0.2, Max: 6, Default: 1.0},
	}
}
