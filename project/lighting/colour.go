package lighting

import (
	"math"

	"github.com/coolcm/zaphod-bot/project/event"
	"github.com/coolcm/zaphod-bot/project/path"
	"github.com/coolcm/zaphod-bot/project/state"
)

const fullScale = 65535

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// ToRGB converts an HSI colour to 16-bit channels. Hue is in degrees and
// wraps; saturation and intensity are clamped to [0,1].
func ToRGB(c event.HSI) state.RGB {
	h := math.Mod(c.Hue, 360)
	if h < 0 {
		h += 360
	}
	s := clamp01(c.Saturation)
	i := clamp01(c.Intensity)

	sector := func(h float64) (float64, float64, float64) {
		rad := h * math.Pi / 180
		a := i * (1 + s*math.Cos(rad)/math.Cos(math.Pi/3-rad))
		b := i * (1 - s)
		return a, 3*i - (a + b), b
	}

	var r, g, b float64
	switch {
	case h < 120:
		r, g, b = sector(h)
	case h < 240:
		g, b, r = sector(h - 120)
	default:
		b, r, g = sector(h - 240)
	}
	return state.RGB{R: scale(r), G: scale(g), B: scale(b)}
}

func scale(v float64) uint16 {
	return uint16(math.Round(clamp01(v) * fullScale))
}

func toPoint(c event.HSI) path.Point {
	return path.Point{X: c.Hue, Y: c.Saturation, Z: c.Intensity}
}

func fromPoint(p path.Point) event.HSI {
	return event.HSI{Hue: p.X, Saturation: p.Y, Intensity: p.Z}
}

func pathKind(f event.FadeType) path.Kind {
	switch f {
	case event.FadeLinear:
		return path.Linear
	case event.FadeSpline:
		return path.CatmullRomSpline
	}
	return path.PointTransit
}
