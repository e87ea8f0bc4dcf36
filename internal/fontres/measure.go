package fontres

import (
	"bytes"
	"fmt"

	"github.com/go-text/typesetting/di"
	gofont "github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/math/fixed"
)

// Measurer computes rendered text widths. With a parsed font face it
// shapes the text for real glyph advances; without one it falls back to
// an approximate per-rune width table.
type Measurer struct {
	face   *gofont.Face
	shaper shaping.HarfbuzzShaper
}

// NewMeasurer parses a TrueType or OpenType font program.
func NewMeasurer(fontData []byte) (*Measurer, error) {
	face, err := gofont.ParseTTF(bytes.NewReader(fontData))
	if err != nil {
		return nil, fmt.Errorf("fontres: parse font: %w", err)
	}
	return &Measurer{face: face}, nil
}

// Approximate returns a measurer with no font face, using the width
// table only.
func Approximate() *Measurer {
	return &Measurer{}
}

// Width returns the width of text set at the given size in document
// units.
func (m *Measurer) Width(text string, size float64) float64 {
	if text == "" || size <= 0 {
		return 0
	}
	if m.face == nil {
		return m.approxWidth(text, size)
	}

	runes := []rune(text)
	// Shape at 1000 units per em so advances come back in the same
	// thousandths PDF text metrics use.
	out := m.shaper.Shape(shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: di.DirectionLTR,
		Face:      m.face,
		Size:      fixed.Int26_6(1000 * 64),
		Language:  language.DefaultLanguage(),
	})
	var units float64
	for _, g := range out.Glyphs {
		units += float64(g.XAdvance) / 64.0
	}
	if units == 0 {
		return m.approxWidth(text, size)
	}
	return units / 1000 * size
}

// RuneWidth returns the advance of a single rune at the given size.
func (m *Measurer) RuneWidth(r rune, size float64) float64 {
	return m.Width(string(r), size)
}

func (m *Measurer) approxWidth(text string, size float64) float64 {
	var w float64
	for _, r := range text {
		w += approxFactor(r) * size
	}
	return w
}

// approxFactor estimates a rune's advance as a fraction of the font
// size. CJK glyphs are full-width; the rest mirrors average proportional
// Latin metrics.
func approxFactor(r rune) float64 {
	switch {
	case r > 0x2E7F:
		return 1.0
	case r == ' ':
		return 0.28
	case r == 'i' || r == 'l' || r == 'j' || r == '.' || r == ',' ||
		r == ':' || r == ';' || r == '!' || r == '\'' || r == '|':
		return 0.3
	case r == 'm' || r == 'w' || r == 'M' || r == 'W' || r == '@':
		return 0.85
	default:
		return 0.6
	}
}
