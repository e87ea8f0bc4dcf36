// Package textedit rewrites native page text in place.
//
// The engine cannot truly edit a content stream line, so a commit
// paints a background-coloured rectangle over the original line and
// inserts the replacement text at the original baseline. Rewriting the
// stream itself (redaction style) is avoided because it shifts the
// coordinates of every other line on the page.
package textedit

import (
	"fmt"
	"image/color"
	"strings"
	"unicode"

	"gonum.org/v1/gonum/stat"

	"pdf-studio/internal/fontres"
	"pdf-studio/internal/pdf"
	"pdf-studio/pkg/geometry"
)

const (
	// spaceGapFactor scales the line's mean glyph width into the gap
	// threshold that separates words.
	spaceGapFactor = 0.35

	// fallbackCharWidth stands in when no glyph on the line has a
	// usable bounding box.
	fallbackCharWidth = 5.0

	// coverMargin expands the cover rectangle past the line bbox so no
	// antialiased fringe of the old text survives.
	coverMargin = 1.0

	// dupTolerance is the vertical slack within which two lines count
	// as the same visual line.
	dupTolerance = 3.0
)

// Line is one editable text line with the style of its leading span.
type Line struct {
	Text  string
	BBox  geometry.Rect
	Font  string
	Size  float64
	Color pdf.Color
	// Origin is the baseline origin reported by the engine. Its x
	// includes the original font's bearing.
	Origin geometry.Point2D
	// FirstCharX is the visual x of the first non-space glyph,
	// independent of font bearing. Negative when unknown.
	FirstCharX float64
}

// InsertX is the x position replacement text is inserted at. The glyph
// position is preferred over the span origin because the origin shifts
// when the replacement uses a different font's bearing.
func (l Line) InsertX() float64 {
	if l.FirstCharX >= 0 {
		return l.FirstCharX
	}
	return l.Origin.X
}

// Engine extracts editable lines and commits replacements.
type Engine struct {
	doc   pdf.Document
	fonts *fontres.Resolver
	lines map[int][]Line
}

// NewEngine wraps a document. A nil resolver gets a default one.
func NewEngine(doc pdf.Document, fonts *fontres.Resolver) *Engine {
	if fonts == nil {
		fonts = fontres.NewResolver()
	}
	return &Engine{doc: doc, fonts: fonts, lines: make(map[int][]Line)}
}

// Lines returns the editable lines of a page, cached until the page is
// invalidated.
func (e *Engine) Lines(page int) ([]Line, error) {
	if cached, ok := e.lines[page]; ok {
		return cached, nil
	}
	raw, err := e.doc.CharacterLayout(page)
	if err != nil {
		return nil, fmt.Errorf("textedit: layout of page %d: %w", page, err)
	}

	var lines []Line
	for _, tl := range raw {
		if len(tl.Spans) == 0 {
			continue
		}
		text := ReconstructText(tl.Spans)
		if text == "" {
			continue
		}
		first := tl.Spans[0]
		lines = append(lines, Line{
			Text:       text,
			BBox:       tl.BBox,
			Font:       first.Font,
			Size:       first.Size,
			Color:      first.Color,
			Origin:     first.Origin,
			FirstCharX: firstCharX(tl.Spans),
		})
	}

	lines = dedupe(lines)
	e.lines[page] = lines
	return lines, nil
}

// LineAt returns the line whose bbox contains the document-space point.
func (e *Engine) LineAt(page int, pt geometry.Point2D) (Line, bool, error) {
	lines, err := e.Lines(page)
	if err != nil {
		return Line{}, false, err
	}
	for _, l := range lines {
		if l.BBox.Contains(pt) {
			return l, true, nil
		}
	}
	return Line{}, false, nil
}

// InvalidatePage drops the cached lines after the page content changes.
func (e *Engine) InvalidatePage(page int) {
	delete(e.lines, page)
}

// Commit replaces a line's text in the page content. Unchanged or blank
// replacements are ignored. The returned flag reports whether the page
// content changed; it is true even when the replacement insert fails
// after the cover rectangle landed, so callers re-render the partial
// state. Any mutation drops the page's line cache.
func (e *Engine) Commit(page int, line Line, newText string) (bool, error) {
	if newText == line.Text || strings.TrimSpace(newText) == "" {
		return false, nil
	}

	font := e.fonts.EditFont(e.doc, page, line.Font, newText)
	bg := e.sampleBackground(page, line.BBox)

	cover := line.BBox.Inset(-coverMargin)
	if err := e.doc.DrawRect(page, cover, bg); err != nil {
		return false, fmt.Errorf("textedit: cover line on page %d: %w", page, err)
	}

	at := geometry.Point2D{X: line.InsertX(), Y: line.Origin.Y}
	err := e.doc.InsertText(page, at, newText, pdf.InsertTextOptions{
		FontName: font.Name,
		FontFile: font.File,
		FontSize: line.Size,
		Color:    line.Color,
		FillOnly: true,
	})
	if err != nil {
		// The cover rectangle is already in the content stream. Drop
		// the cached lines so the partial state is shown, not masked.
		e.InvalidatePage(page)
		return true, fmt.Errorf("textedit: insert replacement on page %d: %w", page, err)
	}

	e.InvalidatePage(page)
	return true, nil
}

// sampleBackground renders a thin strip just above the line and reads
// one pixel for the cover colour. Most documents are white, which is
// also the fallback when sampling fails.
func (e *Engine) sampleBackground(page int, bbox geometry.Rect) pdf.Color {
	white := pdf.Color{R: 1, G: 1, B: 1}

	pw, ph, err := e.doc.PageSize(page)
	if err != nil {
		return white
	}
	cx := bbox.X + bbox.Width/2
	strip := geometry.RectFromCorners(
		geometry.Point2D{X: cx - 1, Y: bbox.Y - 2},
		geometry.Point2D{X: cx + 1, Y: bbox.Y - 0.5},
	)
	strip = strip.Intersect(geometry.Rect{Width: pw, Height: ph})
	if strip.Width <= 0 || strip.Height <= 0 {
		return white
	}

	img, err := e.doc.RenderRegion(page, strip, 1.0)
	if err != nil {
		return white
	}
	b := img.Bounds()
	if b.Empty() {
		return white
	}
	c := color.NRGBAModel.Convert(img.At(b.Min.X, b.Min.Y)).(color.NRGBA)
	return pdf.Color{
		R: float64(c.R) / 255,
		G: float64(c.G) / 255,
		B: float64(c.B) / 255,
	}
}

// ReconstructText rebuilds a line's text from glyph positions. The
// engine's own text extraction merges or drops spaces unpredictably;
// glyph bounding boxes are authoritative. A gap wider than
// spaceGapFactor of the line's mean glyph width becomes a space.
func ReconstructText(spans []pdf.Span) string {
	var chars []pdf.Char
	for _, s := range spans {
		chars = append(chars, s.Chars...)
	}
	if len(chars) == 0 {
		// Some engines report no per-glyph data (Type3 fonts); fall
		// back to the concatenated span text.
		var b strings.Builder
		for _, s := range spans {
			b.WriteString(s.Text)
		}
		return strings.TrimSpace(b.String())
	}

	var widths []float64
	for _, ch := range chars {
		if w := ch.BBox.Width; w > 0 {
			widths = append(widths, w)
		}
	}
	meanW := fallbackCharWidth
	if len(widths) > 0 {
		meanW = stat.Mean(widths, nil)
	}
	threshold := meanW * spaceGapFactor

	var b strings.Builder
	prevX1 := 0.0
	havePrev := false
	for _, ch := range chars {
		if ch.R == 0 {
			continue
		}
		if havePrev && ch.BBox.X-prevX1 > threshold {
			b.WriteByte(' ')
		}
		b.WriteRune(ch.R)
		prevX1 = ch.BBox.MaxX()
		havePrev = true
	}
	return strings.TrimSpace(b.String())
}

// firstCharX finds the visual start of the first non-space glyph.
func firstCharX(spans []pdf.Span) float64 {
	for _, s := range spans {
		for _, ch := range s.Chars {
			if ch.R != 0 && !unicode.IsSpace(ch.R) {
				return ch.BBox.X
			}
		}
	}
	return -1
}

// dedupe removes earlier duplicates of visually overlapping lines.
// Committed edits cover the old text but leave it in the content
// stream, so extraction reports both; the later entry is the current
// one.
func dedupe(lines []Line) []Line {
	if len(lines) == 0 {
		return lines
	}
	out := lines[:0:0]
	for i, li := range lines {
		dup := false
		for _, lj := range lines[i+1:] {
			if sameLine(li.BBox, lj.BBox) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, li)
		}
	}
	return out
}

func sameLine(a, b geometry.Rect) bool {
	return abs(a.Y-b.Y) < dupTolerance &&
		abs(a.MaxY()-b.MaxY()) < dupTolerance &&
		a.X < b.MaxX() && b.X < a.MaxX()
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
