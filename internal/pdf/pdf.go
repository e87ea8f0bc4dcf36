// Package pdf defines the boundary to the external PDF engine.
//
// The viewer core never parses PDF syntax itself; it consumes the
// interfaces in this package. Two kinds of handle exist:
//
//   - Document: the live, mutable handle. Owned exclusively by the UI
//     side; never shared with background goroutines.
//   - RenderDoc: a read-only handle opened from an immutable byte
//     snapshot or a file path, used by render workers. It cannot be
//     constructed from a Document, which keeps worker goroutines off
//     the mutable handle by type.
//
// The go-fitz binding (fitz.go) implements rasterization. Engine
// operations the binding does not expose return ErrUnsupported; a
// fuller cgo binding can slot in behind the same interfaces.
package pdf

import (
	"errors"
	"image"

	"pdf-studio/pkg/geometry"
)

var (
	// ErrUnsupported is returned by Document operations the configured
	// engine binding does not implement.
	ErrUnsupported = errors.New("pdf: operation not supported by engine binding")

	// ErrClosed is returned when a handle is used after Close.
	ErrClosed = errors.New("pdf: document closed")

	// ErrPageRange is returned for an out-of-range page index.
	ErrPageRange = errors.New("pdf: page index out of range")
)

// Color is an RGB colour with components in [0, 1], the engine's
// native colour range.
type Color struct {
	R, G, B float64
}

// AnnotationType discriminates the annotation kinds the viewer touches.
type AnnotationType int

const (
	AnnotFreeText AnnotationType = iota
	AnnotOther
)

// TextStyle is the parsed display style of a free-text annotation.
type TextStyle struct {
	FontName string
	FontSize float64
	Color    Color
}

// FreeTextOptions configures creation of a free-text annotation.
// FontFile, when set, points at a font program on disk; otherwise
// FontName selects an engine built-in font.
type FreeTextOptions struct {
	Text     string
	FontName string
	FontFile string
	FontSize float64
	Color    Color
}

// InsertTextOptions configures direct text insertion into page content.
type InsertTextOptions struct {
	FontName string
	FontFile string
	FontSize float64
	Color    Color
	// FillOnly suppresses stroking so replacement text does not render
	// artificially bold.
	FillOnly bool
}

// Annotation is a handle to a single page annotation.
//
// Handles are weak: operations that delete and recreate an annotation
// return the new handle, and callers must drop the old one immediately.
type Annotation interface {
	// ID is the annotation's persistent identity within the document
	// (the engine's cross-reference number).
	ID() int
	Type() AnnotationType
	Rect() geometry.Rect
	SetRect(geometry.Rect) error
	// Content returns the annotation's text content, if any.
	Content() string
	Style() TextStyle
	// Appearance rasterizes the annotation alone at the given zoom,
	// with transparent background, for drag previews.
	Appearance(zoom float64) (image.Image, error)
}

// Char is a single glyph with its bounding box in document space.
type Char struct {
	R    rune
	BBox geometry.Rect
}

// Span is a run of glyphs sharing font, size and colour.
type Span struct {
	Text   string
	Font   string
	Size   float64
	Color  Color
	Origin geometry.Point2D // baseline origin of the first glyph
	BBox   geometry.Rect
	Chars  []Char
}

// TextLine groups the spans the engine reports on one visual line.
type TextLine struct {
	BBox  geometry.Rect
	Spans []Span
}

// FontRef identifies a font resource used on a page.
type FontRef struct {
	Ref      int    // engine cross-reference number
	Name     string // resource name, e.g. "ABCDEF+ArialMT" for subsets
	BaseName string // base font name without subset prefix
}

// Document is the live, mutable document handle.
type Document interface {
	PageCount() int
	// PageSize returns the page's width and height in document units.
	PageSize(page int) (w, h float64, err error)

	// RenderRegion rasterizes a clip of a page at the given scale.
	// Used for background-colour sampling, not for the paint path.
	RenderRegion(page int, clip geometry.Rect, scale float64) (image.Image, error)

	Annotations(page int) ([]Annotation, error)
	AddFreeText(page int, rect geometry.Rect, opts FreeTextOptions) (Annotation, error)
	DeleteAnnotation(page int, a Annotation) error

	// DrawRect paints a filled rectangle over existing page content as
	// an overlay operation; it must not rewrite other content-stream
	// coordinates.
	DrawRect(page int, rect geometry.Rect, fill Color) error
	InsertText(page int, at geometry.Point2D, text string, opts InsertTextOptions) error
	InsertImage(page int, rect geometry.Rect, imagePath string) error

	// CharacterLayout reports the page's text as lines of spans with
	// per-character bounding boxes.
	CharacterLayout(page int) ([]TextLine, error)
	Fonts(page int) ([]FontRef, error)
	// ExtractFont returns the embedded font program for a font
	// reference, or an error when the program is absent.
	ExtractFont(ref FontRef) ([]byte, error)

	// Bytes serializes the document's current state. The result is the
	// immutable snapshot handed to render workers.
	Bytes() ([]byte, error)
	Close() error
}
