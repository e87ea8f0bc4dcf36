// Package annot mutates document annotations and overlay stamps.
//
// Free-text annotations live in the document immediately. Stamps are
// kept as an in-memory overlay (drawn by the widget) until BurnStamps
// writes them into the page content, which keeps placement and resizing
// cheap.
//
// The engine caches each annotation's raw, unwrapped text keyed by
// annotation ID. The document only stores the wrapped form, so without
// the cache a second resize would re-wrap already wrapped text and
// accumulate line breaks.
package annot

import (
	"fmt"
	"image"
	"math"
	"os"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"pdf-studio/internal/fontres"
	"pdf-studio/internal/pdf"
	"pdf-studio/pkg/geometry"
)

const (
	// wrapPadding accounts for the free-text annotation's internal
	// padding of about 2pt per side.
	wrapPadding = 4.0

	// Text box sizing for newly placed annotations.
	charWidthFactor = 0.6
	lineHeightRatio = 1.6
	boxHeightSlack  = 10.0
	minClickWidth   = 60.0
	minCenterWidth  = 80.0

	// StampWidthRatio sizes a new stamp relative to the page width.
	StampWidthRatio = 0.15
)

// TextConfig describes a free-text annotation's content and style.
type TextConfig struct {
	Text     string
	FontName string
	FontSize float64
	Color    pdf.Color
}

func (c TextConfig) withDefaults() TextConfig {
	if c.FontSize <= 0 {
		c.FontSize = 14.0
	}
	if c.FontName == "" {
		c.FontName = fontres.BuiltinHelvetica
	}
	return c
}

// CharWrap breaks text at character boundaries so every line fits in
// maxWidth. Existing newlines are kept; empty lines survive. Width is
// measured per character so resizing never reflows words erratically.
func CharWrap(text string, maxWidth, fontSize float64, m *fontres.Measurer) string {
	if text == "" || maxWidth <= 0 || fontSize <= 0 {
		return text
	}
	effective := maxWidth - wrapPadding
	if effective <= 0 {
		effective = maxWidth
	}

	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			out = append(out, "")
			continue
		}
		var cur strings.Builder
		curW := 0.0
		for _, ch := range line {
			chW := m.RuneWidth(ch, fontSize)
			if curW+chW > effective && cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
				curW = 0
			}
			cur.WriteRune(ch)
			curW += chW
		}
		if cur.Len() > 0 {
			out = append(out, cur.String())
		}
	}
	return strings.Join(out, "\n")
}

// TextBoxRect sizes a new annotation box around a center point from the
// text's line structure.
func TextBoxRect(center geometry.Point2D, text string, fontSize, minWidth float64) geometry.Rect {
	lines := strings.Split(text, "\n")
	lineCount := len(lines)
	if lineCount < 1 {
		lineCount = 1
	}
	maxLen := 0
	for _, l := range lines {
		if n := len([]rune(l)); n > maxLen {
			maxLen = n
		}
	}
	w := float64(maxLen) * fontSize * charWidthFactor
	if w < minWidth {
		w = minWidth
	}
	h := fontSize*lineHeightRatio*float64(lineCount) + boxHeightSlack
	return geometry.RectFromCenter(center, w, h)
}

// Stamp is an overlay image not yet written into the document.
type Stamp struct {
	ID       int
	Page     int
	Rect     geometry.Rect
	Path     string
	Selected bool
}

// Engine performs annotation and stamp mutations on one document.
// It belongs to the UI goroutine, like the document itself.
type Engine struct {
	doc     pdf.Document
	measure *fontres.Measurer

	rawText map[int]string
	stamps  []*Stamp
	stampID int
}

// NewEngine wraps a document. The measurer is used for wrap metrics;
// nil selects approximate metrics.
func NewEngine(doc pdf.Document, m *fontres.Measurer) *Engine {
	if m == nil {
		m = fontres.Approximate()
	}
	return &Engine{doc: doc, measure: m, rawText: make(map[int]string)}
}

// Annotations lists the document's annotations on a page.
func (e *Engine) Annotations(page int) ([]pdf.Annotation, error) {
	return e.doc.Annotations(page)
}

// RawText returns the unwrapped text for an annotation, falling back to
// the stored (wrapped) content for annotations created elsewhere.
func (e *Engine) RawText(a pdf.Annotation) string {
	if raw, ok := e.rawText[a.ID()]; ok {
		return raw
	}
	return a.Content()
}

// AddText creates a free-text annotation centered on a point placed by
// click, in document coordinates.
func (e *Engine) AddText(page int, at geometry.Point2D, cfg TextConfig) (pdf.Annotation, error) {
	return e.addText(page, at, cfg, minClickWidth)
}

// AddTextAtCenter creates a free-text annotation at the page center.
func (e *Engine) AddTextAtCenter(page int, cfg TextConfig) (pdf.Annotation, error) {
	w, h, err := e.doc.PageSize(page)
	if err != nil {
		return nil, err
	}
	return e.addText(page, geometry.Point2D{X: w / 2, Y: h / 2}, cfg, minCenterWidth)
}

func (e *Engine) addText(page int, at geometry.Point2D, cfg TextConfig, minWidth float64) (pdf.Annotation, error) {
	cfg = cfg.withDefaults()
	font := fontres.FreeTextFont(cfg.Text, cfg.FontName)
	rect := TextBoxRect(at, cfg.Text, cfg.FontSize, minWidth)

	a, err := e.doc.AddFreeText(page, rect, pdf.FreeTextOptions{
		Text:     cfg.Text,
		FontName: font.Name,
		FontFile: font.File,
		FontSize: cfg.FontSize,
		Color:    cfg.Color,
	})
	if err != nil {
		return nil, fmt.Errorf("annot: add text on page %d: %w", page, err)
	}
	e.rawText[a.ID()] = cfg.Text
	return a, nil
}

// UpdateText replaces an annotation's content and style in place. The
// engine cannot restyle an existing free-text annotation, so the update
// deletes it and recreates one in the same rect.
func (e *Engine) UpdateText(page int, a pdf.Annotation, cfg TextConfig) (pdf.Annotation, error) {
	cfg = cfg.withDefaults()
	rect := a.Rect()
	if err := e.Delete(page, a); err != nil {
		return nil, err
	}
	font := fontres.FreeTextFont(cfg.Text, cfg.FontName)
	fresh, err := e.doc.AddFreeText(page, rect, pdf.FreeTextOptions{
		Text:     cfg.Text,
		FontName: font.Name,
		FontFile: font.File,
		FontSize: cfg.FontSize,
		Color:    cfg.Color,
	})
	if err != nil {
		return nil, fmt.Errorf("annot: recreate text on page %d: %w", page, err)
	}
	e.rawText[fresh.ID()] = cfg.Text
	return fresh, nil
}

// FinishResize commits a free-text resize: the annotation is recreated
// in the final rect with its raw text re-wrapped to the new width.
func (e *Engine) FinishResize(page int, a pdf.Annotation, finalRect geometry.Rect) (pdf.Annotation, error) {
	raw := e.RawText(a)
	style := a.Style()
	if err := e.Delete(page, a); err != nil {
		return nil, err
	}

	font := fontres.FreeTextFont(raw, style.FontName)
	wrapped := CharWrap(raw, finalRect.Width, style.FontSize, e.measure)
	fresh, err := e.doc.AddFreeText(page, finalRect, pdf.FreeTextOptions{
		Text:     wrapped,
		FontName: font.Name,
		FontFile: font.File,
		FontSize: style.FontSize,
		Color:    style.Color,
	})
	if err != nil {
		return nil, fmt.Errorf("annot: resize text on page %d: %w", page, err)
	}
	e.rawText[fresh.ID()] = raw
	return fresh, nil
}

// Move translates an annotation without touching its content.
func (e *Engine) Move(a pdf.Annotation, to geometry.Rect) error {
	if err := a.SetRect(to); err != nil {
		return fmt.Errorf("annot: move annotation %d: %w", a.ID(), err)
	}
	return nil
}

// Delete removes an annotation and drops its raw-text cache entry.
func (e *Engine) Delete(page int, a pdf.Annotation) error {
	if err := e.doc.DeleteAnnotation(page, a); err != nil {
		return fmt.Errorf("annot: delete annotation %d: %w", a.ID(), err)
	}
	delete(e.rawText, a.ID())
	return nil
}

// PlaceStamp adds an overlay stamp centered on a point in document
// coordinates, or on the page center when at is nil. The stamp takes
// 15% of the page width, keeping the image's aspect ratio.
func (e *Engine) PlaceStamp(page int, at *geometry.Point2D, imagePath string) (*Stamp, error) {
	pw, ph, err := e.doc.PageSize(page)
	if err != nil {
		return nil, err
	}
	center := geometry.Point2D{X: pw / 2, Y: ph / 2}
	if at != nil {
		center = *at
	}

	w := pw * StampWidthRatio
	h := w / imageAspect(imagePath)
	e.stampID++
	s := &Stamp{
		ID:   e.stampID,
		Page: page,
		Rect: geometry.RectFromCenter(center, w, h),
		Path: imagePath,
	}
	e.stamps = append(e.stamps, s)
	return s, nil
}

// imageAspect reads the image header for width/height; unreadable
// images fall back to square.
func imageAspect(path string) float64 {
	f, err := os.Open(path)
	if err != nil {
		return 1.0
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil || cfg.Height <= 0 {
		return 1.0
	}
	return float64(cfg.Width) / float64(cfg.Height)
}

// Stamps returns the overlay stamps in insertion order. Hit testing
// walks them back to front.
func (e *Engine) Stamps() []*Stamp {
	return e.stamps
}

// StampsOn returns the overlay stamps for one page in insertion order.
func (e *Engine) StampsOn(page int) []*Stamp {
	var out []*Stamp
	for _, s := range e.stamps {
		if s.Page == page {
			out = append(out, s)
		}
	}
	return out
}

// SelectStamp marks one stamp selected and clears the rest; nil clears
// all.
func (e *Engine) SelectStamp(target *Stamp) {
	for _, s := range e.stamps {
		s.Selected = s == target
	}
}

// DeleteStamp removes an overlay stamp.
func (e *Engine) DeleteStamp(target *Stamp) {
	for i, s := range e.stamps {
		if s == target {
			e.stamps = append(e.stamps[:i], e.stamps[i+1:]...)
			return
		}
	}
}

// BurnStamps writes every overlay stamp into its page's content and
// clears the overlay. Individual failures skip that stamp; the first
// error is returned after all stamps are attempted so one bad image
// cannot block the rest.
func (e *Engine) BurnStamps() error {
	var first error
	for _, s := range e.stamps {
		if s.Page >= e.doc.PageCount() {
			continue
		}
		if err := e.doc.InsertImage(s.Page, s.Rect, s.Path); err != nil && first == nil {
			first = fmt.Errorf("annot: burn stamp %d on page %d: %w", s.ID, s.Page, err)
		}
	}
	e.stamps = nil
	return first
}

// BurnedPages returns the distinct pages carrying stamps, for cache
// invalidation before BurnStamps clears the overlay.
func (e *Engine) BurnedPages() []int {
	seen := make(map[int]bool)
	var pages []int
	for _, s := range e.stamps {
		if !seen[s.Page] {
			seen[s.Page] = true
			pages = append(pages, s.Page)
		}
	}
	return pages
}

// FreeResizeRect computes the rect for a free (non-aspect) resize drag:
// the dragged corner follows the pointer while the opposite corner
// stays anchored, with minimum dimensions.
func FreeResizeRect(anchor, pointer geometry.Point2D, minW, minH float64) geometry.Rect {
	r := geometry.RectFromCorners(anchor, pointer)
	if r.Width < minW {
		r.Width = minW
	}
	if r.Height < minH {
		r.Height = minH
	}
	return r
}

// StampResizeRect computes an aspect-preserving resize anchored at the
// corner opposite the dragged one. Whichever pointer axis is
// proportionally larger wins; the other dimension follows the aspect
// ratio.
func StampResizeRect(orig geometry.Rect, anchor, pointer geometry.Point2D, minSize float64) geometry.Rect {
	if orig.Width <= 0 || orig.Height <= 0 {
		return orig
	}
	aspect := orig.Width / orig.Height
	dx := math.Abs(pointer.X - anchor.X)
	dy := math.Abs(pointer.Y - anchor.Y)

	var w, h float64
	if dx/aspect > dy {
		w = math.Max(dx, minSize)
		h = w / aspect
	} else {
		h = math.Max(dy, minSize)
		w = h * aspect
	}

	x0 := anchor.X
	if pointer.X < anchor.X {
		x0 = anchor.X - w
	}
	y0 := anchor.Y
	if pointer.Y < anchor.Y {
		y0 = anchor.Y - h
	}
	return geometry.Rect{X: x0, Y: y0, Width: w, Height: h}
}
