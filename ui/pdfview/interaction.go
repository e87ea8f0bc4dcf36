// Package pdfview provides the document viewing widget: page painting,
// zoom and scroll, and mouse interaction with annotations, stamps,
// crop selection and inline text editing.
package pdfview

import (
	"image"
	"log"

	"pdf-studio/internal/annot"
	"pdf-studio/internal/pdf"
	"pdf-studio/internal/textedit"
	"pdf-studio/pkg/geometry"
)

const (
	// handleSize is the screen-pixel size of a corner resize handle. A
	// corner hit counts when the pointer is within this distance.
	handleSize = 8.0

	// minCropPx is the minimum crop selection size in screen pixels;
	// anything smaller is treated as an accidental drag.
	minCropPx = 10.0

	// Minimum annotation dimensions in document units, divided by zoom
	// so the on-screen minimum stays constant.
	minFreeWidth  = 20.0
	minFreeHeight = 10.0
	minStampSize  = 20.0
)

// Mode is the widget's interaction mode.
type Mode int

const (
	ModeNormal Mode = iota
	ModeTextPlacement
	ModeCrop
	ModeTextEdit
)

// TargetKind discriminates what a hit test found.
type TargetKind int

const (
	TargetNone TargetKind = iota
	TargetAnnotation
	TargetStamp
)

// Hit is the result of a hit test: the item under the pointer and
// which part of it was hit.
type Hit struct {
	Kind   TargetKind
	Page   int
	Annot  pdf.Annotation
	Stamp  *annot.Stamp
	Corner geometry.Corner
}

// CropFunc receives the completed crop selection in document space.
type CropFunc func(page int, r geometry.Rect)

// PageGeometry supplies the screen placement of pages. Coordinates are
// content coordinates, i.e. scroll offset already applied by the
// caller.
type PageGeometry interface {
	PageCount() int
	PageAtY(y int) int
	// PageOrigin returns the content position of a page's top-left
	// corner.
	PageOrigin(page int) geometry.Point2D
}

type dragState struct {
	hit        Hit
	startDoc   geometry.Point2D
	origRect   geometry.Rect
	anchor     geometry.Point2D
	rawText    string
	style      pdf.TextStyle
	appearance image.Image
	preview    geometry.Rect
	moved      bool
}

type cropState struct {
	page  int
	start geometry.Point2D
	rect  geometry.Rect
}

type editState struct {
	page int
	line textedit.Line
	text string
}

// Machine is the pure interaction state: mode transitions, hit
// testing, drag and resize bookkeeping. It mutates the document only
// through the annotation and text-edit engines, so the widget layer
// stays free of interaction rules.
type Machine struct {
	geo    PageGeometry
	annots *annot.Engine
	edits  *textedit.Engine
	zoom   func() float64

	mode        Mode
	pendingText annot.TextConfig
	cropDone    CropFunc

	selected Hit
	drag     *dragState
	crop     *cropState
	edit     *editState

	hoverPage int
	hoverLine textedit.Line
	hovering  bool

	onModified  func(page int)
	onError     func(err error)
	onEditStart func(page int, line textedit.Line)
	onEditEnd   func()
}

// NewMachine creates an interaction machine over the given engines.
// zoom returns the committed zoom used to convert screen distances to
// document units.
func NewMachine(geo PageGeometry, annots *annot.Engine, edits *textedit.Engine, zoom func() float64) *Machine {
	return &Machine{geo: geo, annots: annots, edits: edits, zoom: zoom, hoverPage: -1}
}

// OnModified registers a callback fired after a document mutation,
// with the affected page.
func (m *Machine) OnModified(fn func(page int)) { m.onModified = fn }

// OnError registers a callback for failed mutations. The attempted
// change is abandoned; prior state is intact.
func (m *Machine) OnError(fn func(err error)) { m.onError = fn }

// OnEditStart registers a callback fired when an inline text edit
// begins; the widget opens its editor over the line.
func (m *Machine) OnEditStart(fn func(page int, line textedit.Line)) { m.onEditStart = fn }

// OnEditEnd registers a callback fired when the inline edit closes,
// after commit or cancel.
func (m *Machine) OnEditEnd(fn func()) { m.onEditEnd = fn }

// Mode returns the current interaction mode.
func (m *Machine) Mode() Mode { return m.mode }

// Selected returns the current selection; Kind is TargetNone when
// nothing is selected.
func (m *Machine) Selected() Hit { return m.selected }

func (m *Machine) modified(page int) {
	if m.onModified != nil {
		m.onModified(page)
	}
}

func (m *Machine) fail(err error) {
	log.Printf("pdfview: interaction: %v", err)
	if m.onError != nil {
		m.onError(err)
	}
}

// EnterTextPlacement arms placement of a new text annotation; the next
// click commits it.
func (m *Machine) EnterTextPlacement(cfg annot.TextConfig) {
	m.exitCurrentMode()
	m.pendingText = cfg
	m.mode = ModeTextPlacement
}

// EnterCrop arms a crop selection; done fires on a successful drag.
func (m *Machine) EnterCrop(done CropFunc) {
	m.exitCurrentMode()
	m.cropDone = done
	m.mode = ModeCrop
}

// EnterTextEdit switches to inline native-text editing.
func (m *Machine) EnterTextEdit() {
	m.exitCurrentMode()
	m.mode = ModeTextEdit
}

// ExitMode returns to Normal, committing any pending inline edit.
func (m *Machine) ExitMode() {
	m.exitCurrentMode()
}

// exitCurrentMode tears down the active mode. A pending inline edit is
// committed, never dropped, so mode changes cannot lose typed text.
func (m *Machine) exitCurrentMode() {
	if m.edit != nil {
		m.CommitEdit()
	}
	m.pendingText = annot.TextConfig{}
	m.cropDone = nil
	m.crop = nil
	m.drag = nil
	m.hovering = false
	m.mode = ModeNormal
}

// cornerHit tests the four corner handles of a screen rectangle in
// document order TL, TR, BR, BL. First match wins.
func cornerHit(r geometry.Rect, pt geometry.Point2D) geometry.Corner {
	for i, c := range r.Corners() {
		if pt.Distance(c) < handleSize {
			return geometry.Corner(i)
		}
	}
	return geometry.CornerNone
}

// hitTest finds the item under a content-space point. Only the point's
// page and its neighbours are searched. Overlay stamps draw above
// native annotations, so they are tested first, topmost (latest
// placed) stamp first.
func (m *Machine) hitTest(pt geometry.Point2D) Hit {
	z := m.zoom()
	base := m.geo.PageAtY(int(pt.Y))
	for p := base - 1; p <= base+1; p++ {
		if p < 0 || p >= m.geo.PageCount() {
			continue
		}
		origin := m.geo.PageOrigin(p)

		stamps := m.annots.StampsOn(p)
		for i := len(stamps) - 1; i >= 0; i-- {
			s := stamps[i]
			sr := s.Rect.ToScreen(origin.X, origin.Y, z)
			if c := cornerHit(sr, pt); c != geometry.CornerNone {
				return Hit{Kind: TargetStamp, Page: p, Stamp: s, Corner: c}
			}
			if sr.Contains(pt) {
				return Hit{Kind: TargetStamp, Page: p, Stamp: s, Corner: geometry.CornerNone}
			}
		}

		annots, err := m.annots.Annotations(p)
		if err != nil {
			continue
		}
		for _, a := range annots {
			ar := a.Rect().ToScreen(origin.X, origin.Y, z)
			if c := cornerHit(ar, pt); c != geometry.CornerNone {
				return Hit{Kind: TargetAnnotation, Page: p, Annot: a, Corner: c}
			}
			if ar.Contains(pt) {
				return Hit{Kind: TargetAnnotation, Page: p, Annot: a, Corner: geometry.CornerNone}
			}
		}
	}
	return Hit{Kind: TargetNone, Corner: geometry.CornerNone}
}

// toDocument converts a content point to document space on a page.
func (m *Machine) toDocument(page int, pt geometry.Point2D) geometry.Point2D {
	origin := m.geo.PageOrigin(page)
	return geometry.PointToDocument(pt, origin.X, origin.Y, m.zoom())
}

// MouseDown handles a primary button press at a content-space point.
// The return value reports whether a repaint is needed.
func (m *Machine) MouseDown(pt geometry.Point2D) bool {
	switch m.mode {
	case ModeTextPlacement:
		return m.placeText(pt)
	case ModeCrop:
		page := m.clampPage(m.geo.PageAtY(int(pt.Y)))
		m.crop = &cropState{page: page, start: pt, rect: geometry.RectFromCorners(pt, pt)}
		return true
	case ModeTextEdit:
		return m.beginEdit(pt)
	}

	hit := m.hitTest(pt)
	changed := m.setSelection(hit)
	if hit.Kind == TargetNone {
		return changed
	}

	d := &dragState{hit: hit, startDoc: m.toDocument(hit.Page, pt)}
	switch hit.Kind {
	case TargetStamp:
		d.origRect = hit.Stamp.Rect
	case TargetAnnotation:
		d.origRect = hit.Annot.Rect()
		// Captured up front so live resize can re-wrap without
		// querying the engine per mouse move.
		d.rawText = m.annots.RawText(hit.Annot)
		d.style = hit.Annot.Style()
		// Rendered snapshot for the drag preview; the outline alone
		// remains when the engine cannot produce one.
		if img, err := hit.Annot.Appearance(m.zoom()); err == nil {
			d.appearance = img
		}
	}
	d.preview = d.origRect
	if hit.Corner != geometry.CornerNone {
		d.anchor = d.origRect.OppositeCorner(hit.Corner)
	}
	m.drag = d
	return true
}

func (m *Machine) setSelection(hit Hit) bool {
	changed := !sameTarget(m.selected, hit)
	m.selected = hit
	if hit.Kind == TargetStamp {
		m.annots.SelectStamp(hit.Stamp)
	} else {
		m.annots.SelectStamp(nil)
	}
	return changed
}

func sameTarget(a, b Hit) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case TargetStamp:
		return a.Stamp == b.Stamp
	case TargetAnnotation:
		return b.Annot != nil && a.Annot != nil && a.Annot.ID() == b.Annot.ID()
	}
	return true
}

// MouseDrag handles pointer movement with the button held.
func (m *Machine) MouseDrag(pt geometry.Point2D) bool {
	if m.mode == ModeCrop && m.crop != nil {
		m.crop.rect = geometry.RectFromCorners(m.crop.start, pt)
		return true
	}
	d := m.drag
	if d == nil {
		return false
	}
	d.moved = true

	z := m.zoom()
	docPt := m.toDocument(d.hit.Page, pt)
	if d.hit.Corner == geometry.CornerNone {
		delta := docPt.Sub(d.startDoc)
		d.preview = d.origRect.Translated(delta.X, delta.Y)
		return true
	}
	switch d.hit.Kind {
	case TargetStamp:
		d.preview = annot.StampResizeRect(d.origRect, d.anchor, docPt, minStampSize/z)
	case TargetAnnotation:
		d.preview = annot.FreeResizeRect(d.anchor, docPt, minFreeWidth/z, minFreeHeight/z)
	}
	return true
}

// MouseUp completes a drag, crop or move.
func (m *Machine) MouseUp(pt geometry.Point2D) bool {
	if m.mode == ModeCrop {
		return m.finishCrop()
	}

	d := m.drag
	m.drag = nil
	if d == nil || !d.moved {
		return false
	}

	switch d.hit.Kind {
	case TargetStamp:
		// Overlay only; no document mutation until burn-in.
		d.hit.Stamp.Rect = d.preview
		return true

	case TargetAnnotation:
		if d.hit.Corner == geometry.CornerNone {
			if err := m.annots.Move(d.hit.Annot, d.preview); err != nil {
				m.fail(err)
				return true
			}
			m.modified(d.hit.Page)
			return true
		}
		// Resize recreates the annotation with re-wrapped text; the
		// old handle is dead after this call.
		fresh, err := m.annots.FinishResize(d.hit.Page, d.hit.Annot, d.preview)
		if err != nil {
			m.fail(err)
			return true
		}
		m.selected = Hit{Kind: TargetAnnotation, Page: d.hit.Page, Annot: fresh, Corner: geometry.CornerNone}
		m.modified(d.hit.Page)
		return true
	}
	return false
}

func (m *Machine) finishCrop() bool {
	c := m.crop
	done := m.cropDone
	m.crop = nil
	m.cropDone = nil
	m.mode = ModeNormal
	if c == nil {
		return false
	}
	// Sub-threshold selections return to Normal without firing.
	if c.rect.Width < minCropPx || c.rect.Height < minCropPx {
		return true
	}
	if done != nil {
		origin := m.geo.PageOrigin(c.page)
		done(c.page, c.rect.ToDocument(origin.X, origin.Y, m.zoom()))
	}
	return true
}

func (m *Machine) placeText(pt geometry.Point2D) bool {
	cfg := m.pendingText
	m.pendingText = annot.TextConfig{}
	m.mode = ModeNormal

	page := m.clampPage(m.geo.PageAtY(int(pt.Y)))
	at := m.toDocument(page, pt)
	if _, err := m.annots.AddText(page, at, cfg); err != nil {
		m.fail(err)
		return false
	}
	m.modified(page)
	return true
}

func (m *Machine) clampPage(p int) int {
	if p < 0 {
		return 0
	}
	if n := m.geo.PageCount(); p >= n && n > 0 {
		return n - 1
	}
	return p
}

// Hover tracks the pointer in TextEdit mode so the widget can
// highlight the line under the cursor.
func (m *Machine) Hover(pt geometry.Point2D) bool {
	if m.mode != ModeTextEdit {
		return false
	}
	page := m.clampPage(m.geo.PageAtY(int(pt.Y)))
	line, ok, err := m.edits.LineAt(page, m.toDocument(page, pt))
	if err != nil {
		ok = false
	}
	changed := ok != m.hovering || (ok && line.BBox != m.hoverLine.BBox)
	m.hovering = ok
	m.hoverPage = page
	m.hoverLine = line
	return changed
}

// HoveredLine returns the highlighted line in TextEdit mode.
func (m *Machine) HoveredLine() (int, textedit.Line, bool) {
	return m.hoverPage, m.hoverLine, m.hovering
}

// beginEdit opens an inline edit on the clicked line. An open edit is
// committed first; only one line is editable at a time.
func (m *Machine) beginEdit(pt geometry.Point2D) bool {
	if m.edit != nil {
		m.CommitEdit()
	}
	page := m.clampPage(m.geo.PageAtY(int(pt.Y)))
	line, ok, err := m.edits.LineAt(page, m.toDocument(page, pt))
	if err != nil {
		m.fail(err)
		return false
	}
	if !ok {
		return false
	}
	m.edit = &editState{page: page, line: line, text: line.Text}
	if m.onEditStart != nil {
		m.onEditStart(page, line)
	}
	return true
}

// Editing returns the line under inline edit, if any.
func (m *Machine) Editing() (int, textedit.Line, bool) {
	if m.edit == nil {
		return 0, textedit.Line{}, false
	}
	return m.edit.page, m.edit.line, true
}

// SetEditText updates the inline editor's buffer.
func (m *Machine) SetEditText(s string) {
	if m.edit != nil {
		m.edit.text = s
	}
}

// CommitEdit writes the edited text into the page and closes the
// editor. A failed commit is reported through OnError; if the page
// content changed before the failure, it is still marked modified.
func (m *Machine) CommitEdit() {
	e := m.edit
	m.edit = nil
	if e == nil {
		return
	}
	mutated, err := m.edits.Commit(e.page, e.line, e.text)
	if err != nil {
		m.fail(err)
	}
	if mutated {
		m.modified(e.page)
	}
	if m.onEditEnd != nil {
		m.onEditEnd()
	}
}

// CancelEdit closes the editor without touching the document.
func (m *Machine) CancelEdit() {
	if m.edit == nil {
		return
	}
	m.edit = nil
	if m.onEditEnd != nil {
		m.onEditEnd()
	}
}

// DeleteSelected removes the selected annotation or stamp.
func (m *Machine) DeleteSelected() bool {
	sel := m.selected
	switch sel.Kind {
	case TargetStamp:
		m.annots.DeleteStamp(sel.Stamp)
		m.selected = Hit{Kind: TargetNone, Corner: geometry.CornerNone}
		return true
	case TargetAnnotation:
		if err := m.annots.Delete(sel.Page, sel.Annot); err != nil {
			m.fail(err)
			return false
		}
		m.selected = Hit{Kind: TargetNone, Corner: geometry.CornerNone}
		m.modified(sel.Page)
		return true
	}
	return false
}

// DragPreview returns the live rectangle of an active drag in document
// space, with its page.
func (m *Machine) DragPreview() (geometry.Rect, int, bool) {
	if m.drag == nil || !m.drag.moved {
		return geometry.Rect{}, 0, false
	}
	return m.drag.preview, m.drag.hit.Page, true
}

// DragAppearance returns the dragged annotation's rendered snapshot,
// captured at drag start, for painting inside the preview rectangle.
func (m *Machine) DragAppearance() (image.Image, bool) {
	if m.drag == nil || !m.drag.moved || m.drag.appearance == nil {
		return nil, false
	}
	return m.drag.appearance, true
}

// CropRect returns the live crop selection in content space.
func (m *Machine) CropRect() (geometry.Rect, bool) {
	if m.crop == nil {
		return geometry.Rect{}, false
	}
	return m.crop.rect, true
}
