package pdf

import (
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/gen2brain/go-fitz"

	"pdf-studio/pkg/geometry"
)

// RenderSpec describes where a render worker may open its own read-only
// handle: an immutable byte snapshot (preferred, reflects unsaved
// mutations) or the original file path. It deliberately cannot carry a
// live Document.
type RenderSpec struct {
	Path  string
	Bytes []byte
}

// Valid reports whether the spec can produce a handle.
func (s RenderSpec) Valid() bool {
	return len(s.Bytes) > 0 || s.Path != ""
}

// Open opens an independent read-only handle. The caller must Close it;
// go-fitz handles are not safe to share between goroutines, so every
// render task opens and closes its own.
func (s RenderSpec) Open() (*RenderDoc, error) {
	var (
		doc *fitz.Document
		err error
	)
	if len(s.Bytes) > 0 {
		doc, err = fitz.NewFromMemory(s.Bytes)
	} else if s.Path != "" {
		doc, err = fitz.New(s.Path)
	} else {
		return nil, fmt.Errorf("pdf: empty render spec")
	}
	if err != nil {
		return nil, fmt.Errorf("pdf: open render handle: %w", err)
	}
	return &RenderDoc{doc: doc}, nil
}

// RenderDoc is a read-only rasterization handle backed by go-fitz.
type RenderDoc struct {
	doc *fitz.Document
}

// PageCount returns the number of pages.
func (d *RenderDoc) PageCount() int {
	if d.doc == nil {
		return 0
	}
	return d.doc.NumPage()
}

// PageSize returns a page's size in document units (points).
func (d *RenderDoc) PageSize(page int) (float64, float64, error) {
	if d.doc == nil {
		return 0, 0, ErrClosed
	}
	bounds, err := d.doc.Bound(page)
	if err != nil {
		return 0, 0, fmt.Errorf("pdf: page bound %d: %w", page, err)
	}
	return float64(bounds.Dx()), float64(bounds.Dy()), nil
}

// Render rasterizes a full page at the given scale (1.0 = 72 dpi).
func (d *RenderDoc) Render(page int, scale float64) (image.Image, error) {
	if d.doc == nil {
		return nil, ErrClosed
	}
	img, err := d.doc.ImageDPI(page, 72*scale)
	if err != nil {
		return nil, fmt.Errorf("pdf: render page %d at %.3f: %w", page, scale, err)
	}
	return img, nil
}

// Text returns the page's extractable text, empty for scanned pages.
func (d *RenderDoc) Text(page int) (string, error) {
	if d.doc == nil {
		return "", ErrClosed
	}
	text, err := d.doc.Text(page)
	if err != nil {
		return "", fmt.Errorf("pdf: text of page %d: %w", page, err)
	}
	return text, nil
}

// Close releases the handle. Safe to call more than once.
func (d *RenderDoc) Close() error {
	if d.doc == nil {
		return nil
	}
	doc := d.doc
	d.doc = nil
	return doc.Close()
}

// fitzDocument adapts go-fitz as a Document. The binding only exposes
// rasterization, so every mutating operation and the character-layout
// query report ErrUnsupported; callers surface that to the user without
// touching any state (see the error-handling policy in the viewer).
type fitzDocument struct {
	mu    sync.Mutex
	doc   *fitz.Document
	path  string
	bytes []byte
}

// Open opens a document from a file path using the go-fitz binding.
func Open(path string) (Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("pdf: open %s: %w", path, err)
	}
	return &fitzDocument{doc: doc, path: path}, nil
}

// OpenBytes opens a document from memory using the go-fitz binding.
func OpenBytes(data []byte) (Document, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("pdf: open from memory: %w", err)
	}
	return &fitzDocument{doc: doc, bytes: data}, nil
}

func (d *fitzDocument) PageCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return 0
	}
	return d.doc.NumPage()
}

func (d *fitzDocument) PageSize(page int) (float64, float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return 0, 0, ErrClosed
	}
	if page < 0 || page >= d.doc.NumPage() {
		return 0, 0, ErrPageRange
	}
	bounds, err := d.doc.Bound(page)
	if err != nil {
		return 0, 0, fmt.Errorf("pdf: page bound %d: %w", page, err)
	}
	return float64(bounds.Dx()), float64(bounds.Dy()), nil
}

func (d *fitzDocument) RenderRegion(page int, clip geometry.Rect, scale float64) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return nil, ErrClosed
	}
	full, err := d.doc.ImageDPI(page, 72*scale)
	if err != nil {
		return nil, fmt.Errorf("pdf: render page %d: %w", page, err)
	}
	rgba, ok := image.Image(full).(*image.RGBA)
	if !ok {
		b := full.Bounds()
		rgba = image.NewRGBA(b)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				rgba.Set(x, y, full.At(x, y))
			}
		}
	}
	sub := image.Rect(
		int(clip.X*scale), int(clip.Y*scale),
		int(clip.MaxX()*scale)+1, int(clip.MaxY()*scale)+1,
	).Intersect(rgba.Bounds())
	if sub.Empty() {
		return nil, fmt.Errorf("pdf: clip %v outside page %d", clip, page)
	}
	return rgba.SubImage(sub), nil
}

func (d *fitzDocument) Annotations(int) ([]Annotation, error) { return nil, ErrUnsupported }

func (d *fitzDocument) AddFreeText(int, geometry.Rect, FreeTextOptions) (Annotation, error) {
	return nil, ErrUnsupported
}

func (d *fitzDocument) DeleteAnnotation(int, Annotation) error { return ErrUnsupported }

func (d *fitzDocument) DrawRect(int, geometry.Rect, Color) error { return ErrUnsupported }

func (d *fitzDocument) InsertText(int, geometry.Point2D, string, InsertTextOptions) error {
	return ErrUnsupported
}

func (d *fitzDocument) InsertImage(int, geometry.Rect, string) error { return ErrUnsupported }

func (d *fitzDocument) CharacterLayout(int) ([]TextLine, error) { return nil, ErrUnsupported }

func (d *fitzDocument) Fonts(int) ([]FontRef, error) { return nil, ErrUnsupported }

func (d *fitzDocument) ExtractFont(FontRef) ([]byte, error) { return nil, ErrUnsupported }

// Bytes returns the document's backing bytes. The fitz binding cannot
// mutate documents, so the original file contents are the current state.
func (d *fitzDocument) Bytes() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return nil, ErrClosed
	}
	if len(d.bytes) > 0 {
		return d.bytes, nil
	}
	data, err := os.ReadFile(d.path)
	if err != nil {
		return nil, fmt.Errorf("pdf: snapshot %s: %w", d.path, err)
	}
	return data, nil
}

func (d *fitzDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return nil
	}
	doc := d.doc
	d.doc = nil
	return doc.Close()
}
