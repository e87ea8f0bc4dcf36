// Package pdftest provides an in-memory Document fake for tests.
//
// The fake records every mutation so tests can assert on the exact
// sequence of engine calls (cover rect before text insertion, delete
// before recreate, and so on).
package pdftest

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"pdf-studio/internal/pdf"
	"pdf-studio/pkg/geometry"
)

// Annot is the fake's annotation handle.
type Annot struct {
	doc     *Doc
	id      int
	page    int
	kind    pdf.AnnotationType
	rect    geometry.Rect
	content string
	style   pdf.TextStyle
	deleted bool
}

func (a *Annot) ID() int                  { return a.id }
func (a *Annot) Type() pdf.AnnotationType { return a.kind }
func (a *Annot) Rect() geometry.Rect      { return a.rect }
func (a *Annot) Content() string          { return a.content }
func (a *Annot) Style() pdf.TextStyle     { return a.style }

func (a *Annot) SetRect(r geometry.Rect) error {
	if a.deleted {
		return fmt.Errorf("pdftest: set rect on deleted annotation %d", a.id)
	}
	if a.doc.FailSetRect {
		return fmt.Errorf("pdftest: set rect rejected")
	}
	a.rect = r
	return nil
}

func (a *Annot) Appearance(zoom float64) (image.Image, error) {
	w := int(a.rect.Width*zoom) + 1
	h := int(a.rect.Height*zoom) + 1
	return image.NewRGBA(image.Rect(0, 0, w, h)), nil
}

// DrawOp records a DrawRect call.
type DrawOp struct {
	Page int
	Rect geometry.Rect
	Fill pdf.Color
}

// TextOp records an InsertText call.
type TextOp struct {
	Page int
	At   geometry.Point2D
	Text string
	Opts pdf.InsertTextOptions
}

// ImageOp records an InsertImage call.
type ImageOp struct {
	Page int
	Rect geometry.Rect
	Path string
}

// Doc is an in-memory pdf.Document.
type Doc struct {
	mu sync.Mutex

	Sizes  []geometry.Point2D // page sizes; len = page count
	Layout map[int][]pdf.TextLine
	// Background is the colour RenderRegion reports; zero value is white.
	Background color.RGBA
	FontList   map[int][]pdf.FontRef
	FontData   map[int][]byte // keyed by FontRef.Ref

	FailSetRect      bool
	FailAddFreeText  bool
	FailRenderRegion bool
	FailInsertText   bool

	nextID    int
	annots    map[int][]*Annot
	Draws     []DrawOp
	Texts     []TextOp
	Images    []ImageOp
	Snapshots int
	closed    bool
}

// New creates a fake document with the given page sizes.
func New(sizes ...geometry.Point2D) *Doc {
	return &Doc{
		Sizes:    sizes,
		Layout:   make(map[int][]pdf.TextLine),
		FontList: make(map[int][]pdf.FontRef),
		FontData: make(map[int][]byte),
		annots:   make(map[int][]*Annot),
		nextID:   100,
	}
}

func (d *Doc) PageCount() int {
	return len(d.Sizes)
}

func (d *Doc) PageSize(page int) (float64, float64, error) {
	if page < 0 || page >= len(d.Sizes) {
		return 0, 0, pdf.ErrPageRange
	}
	return d.Sizes[page].X, d.Sizes[page].Y, nil
}

func (d *Doc) RenderRegion(page int, clip geometry.Rect, scale float64) (image.Image, error) {
	if d.FailRenderRegion {
		return nil, fmt.Errorf("pdftest: render region failed")
	}
	if page < 0 || page >= len(d.Sizes) {
		return nil, pdf.ErrPageRange
	}
	bg := d.Background
	if bg == (color.RGBA{}) {
		bg = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	}
	w := int(clip.Width*scale) + 1
	h := int(clip.Height*scale) + 1
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, bg)
		}
	}
	return img, nil
}

func (d *Doc) Annotations(page int) ([]pdf.Annotation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if page < 0 || page >= len(d.Sizes) {
		return nil, pdf.ErrPageRange
	}
	out := make([]pdf.Annotation, 0, len(d.annots[page]))
	for _, a := range d.annots[page] {
		if !a.deleted {
			out = append(out, a)
		}
	}
	return out, nil
}

func (d *Doc) AddFreeText(page int, rect geometry.Rect, opts pdf.FreeTextOptions) (pdf.Annotation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailAddFreeText {
		return nil, fmt.Errorf("pdftest: add free text rejected")
	}
	if page < 0 || page >= len(d.Sizes) {
		return nil, pdf.ErrPageRange
	}
	d.nextID++
	a := &Annot{
		doc:     d,
		id:      d.nextID,
		page:    page,
		kind:    pdf.AnnotFreeText,
		rect:    rect,
		content: opts.Text,
		style: pdf.TextStyle{
			FontName: opts.FontName,
			FontSize: opts.FontSize,
			Color:    opts.Color,
		},
	}
	d.annots[page] = append(d.annots[page], a)
	return a, nil
}

func (d *Doc) DeleteAnnotation(page int, a pdf.Annotation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, candidate := range d.annots[page] {
		if candidate.id == a.ID() && !candidate.deleted {
			candidate.deleted = true
			return nil
		}
	}
	return fmt.Errorf("pdftest: annotation %d not found on page %d", a.ID(), page)
}

func (d *Doc) DrawRect(page int, rect geometry.Rect, fill pdf.Color) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Draws = append(d.Draws, DrawOp{Page: page, Rect: rect, Fill: fill})
	return nil
}

func (d *Doc) InsertText(page int, at geometry.Point2D, text string, opts pdf.InsertTextOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailInsertText {
		return fmt.Errorf("pdftest: insert text rejected")
	}
	d.Texts = append(d.Texts, TextOp{Page: page, At: at, Text: text, Opts: opts})
	return nil
}

func (d *Doc) InsertImage(page int, rect geometry.Rect, imagePath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Images = append(d.Images, ImageOp{Page: page, Rect: rect, Path: imagePath})
	return nil
}

func (d *Doc) CharacterLayout(page int) ([]pdf.TextLine, error) {
	if page < 0 || page >= len(d.Sizes) {
		return nil, pdf.ErrPageRange
	}
	return d.Layout[page], nil
}

func (d *Doc) Fonts(page int) ([]pdf.FontRef, error) {
	return d.FontList[page], nil
}

func (d *Doc) ExtractFont(ref pdf.FontRef) ([]byte, error) {
	data, ok := d.FontData[ref.Ref]
	if !ok {
		return nil, fmt.Errorf("pdftest: no font program for ref %d", ref.Ref)
	}
	return data, nil
}

func (d *Doc) Bytes() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, pdf.ErrClosed
	}
	d.Snapshots++
	return []byte(fmt.Sprintf("snapshot-%d", d.Snapshots)), nil
}

func (d *Doc) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// AnnotCount returns the number of live annotations on a page.
func (d *Doc) AnnotCount(page int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, a := range d.annots[page] {
		if !a.deleted {
			n++
		}
	}
	return n
}
