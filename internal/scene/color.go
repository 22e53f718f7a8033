package scene

import (
	"math"
	"regexp"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

const (
	DefaultLightColor      = "#ffffff"
	DefaultBlockerColor    = "#000000"
	DefaultBackgroundColor = "#000000"

	// пороги хроматичности для tint: ниже tintLow цвет считается серым,
	// выше tintHigh остаётся без изменений
	tintLow  = 0.02
	tintHigh = 0.08

	gamma = 2.2
)

var hexPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// RGB линейный или sRGB цвет с компонентами в [0,1].
type RGB struct {
	R, G, B float64
}

// NormalizeHex приводит #rgb/#rrggbb к нижнему регистру #rrggbb.
func NormalizeHex(s string) (string, bool) {
	c, ok := parseColorful(s)
	if !ok {
		return "", false
	}
	return c.Hex(), true
}

// ParseHex разбирает hex-строку в sRGB [0,1].
func ParseHex(s string) (RGB, bool) {
	c, ok := parseColorful(s)
	if !ok {
		return RGB{}, false
	}
	return RGB{R: c.R, G: c.G, B: c.B}, true
}

func parseColorful(s string) (colorful.Color, bool) {
	s = strings.TrimSpace(s)
	if !hexPattern.MatchString(s) {
		return colorful.Color{}, false
	}
	c, err := colorful.Hex(strings.ToLower(s))
	if err != nil {
		return colorful.Color{}, false
	}
	return c, true
}

// ToLinear переводит sRGB в линейное пространство аппроксимацией v^2.2.
func ToLinear(c RGB) RGB {
	return RGB{
		R: math.Pow(c.R, gamma),
		G: math.Pow(c.G, gamma),
		B: math.Pow(c.B, gamma),
	}
}

// HexToLinear разбирает цвет и переводит его в линейное пространство.
// Невалидная строка даёт линейный белый.
func HexToLinear(hex string) RGB {
	c, ok := ParseHex(hex)
	if !ok {
		return RGB{R: 1, G: 1, B: 1}
	}
	return ToLinear(c)
}

// Tint обесцвечивает почти серые цвета к нейтрали max(r,g,b).
// Насыщенные цвета (хроматичность выше tintHigh) не меняются,
// между порогами используется smoothstep-смешивание.
func Tint(lin RGB) RGB {
	hi := math.Max(lin.R, math.Max(lin.G, lin.B))
	lo := math.Min(lin.R, math.Min(lin.G, lin.B))

	chroma := 0.0
	if hi > 0 {
		chroma = (hi - lo) / hi
	}

	w := smoothstep(tintLow, tintHigh, chroma)
	return RGB{
		R: mix(hi, lin.R, w),
		G: mix(hi, lin.G, w),
		B: mix(hi, lin.B, w),
	}
}

func smoothstep(edge0, edge1, x float64) float64 {
	t := clamp01((x - edge0) / (edge1 - edge0))
	return t * t * (3 - 2*t)
}

func mix(a, b, t float64) float64 {
	return a + (b-a)*t
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

// colorCache мемоизированные производные цвета слоя.
type colorCache struct {
	hex    string
	linear RGB
	tint   RGB
}

func deriveColors(hex string) colorCache {
	lin := HexToLinear(hex)
	return colorCache{hex: hex, linear: lin, tint: Tint(lin)}
}
