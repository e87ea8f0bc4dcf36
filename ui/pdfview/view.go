package pdfview

import (
	"image"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"fyne.io/fyne/v2"
	fynecanvas "fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"pdf-studio/internal/annot"
	"pdf-studio/internal/doc"
	"pdf-studio/internal/fontres"
	"pdf-studio/internal/layout"
	"pdf-studio/internal/pdf"
	"pdf-studio/internal/render"
	"pdf-studio/internal/textedit"
	"pdf-studio/internal/zoom"
	"pdf-studio/pkg/geometry"
)

// animInterval drives the zoom animation at roughly 60 Hz.
const animInterval = 16 * time.Millisecond

// Highlight is one search match to paint.
type Highlight struct {
	Page int
	Rect geometry.Rect // document space
}

// editNotice and cropNotice are machine side effects recorded under the
// view lock and delivered to the host after it is released.
type editNotice struct {
	page int
	line textedit.Line
}

type cropNotice struct {
	page int
	rect geometry.Rect
	done CropFunc
}

// View is the scrolling, zooming document widget. It owns the layout
// stack, the render cache and pipeline, and the interaction machine;
// the main window only feeds it a document session and commands.
type View struct {
	widget.BaseWidget

	mu sync.Mutex

	session *doc.Session
	annots  *annot.Engine
	edits   *textedit.Engine
	machine *Machine

	// Side effects recorded by machine callbacks while the lock is
	// held; dispatch flushes them after unlocking.
	mutated     []int
	pendingEdit *editNotice
	pendingCrop *cropNotice

	stack     *layout.Stack
	pageSizes []geometry.Point2D
	cache     *render.Cache
	pipe      *render.Pipeline
	ctrl      *zoom.Controller

	raster *fynecanvas.Raster

	scrollY    float64
	viewportW  int
	viewportH  int
	lastPage   int
	stampCache map[string]image.Image

	// Gesture-start state for the commit scroll correction.
	gesture       bool
	gestureScroll float64
	gestureZoom   float64
	gestureAnchor float64

	animRunning bool

	search    []Highlight
	searchCur int

	onZoomChanged   func(z float64)
	onPageChanged   func(page int)
	onModified      func()
	onEditRequested func(a pdf.Annotation, page int)
	onEditStart     func(page int, line textedit.Line)
}

// New creates a view bound to a document session. The session may be
// empty; the view reloads itself on document-loaded events.
func New(session *doc.Session) *View {
	v := &View{
		session:    session,
		stack:      layout.NewStack(),
		cache:      render.NewCache(),
		pipe:       render.NewPipeline(render.WorkerCount),
		ctrl:       zoom.NewController(),
		lastPage:   -1,
		stampCache: make(map[string]image.Image),
	}
	v.raster = fynecanvas.NewRaster(v.draw)
	v.raster.ScaleMode = fynecanvas.ImageScalePixels
	v.ExtendBaseWidget(v)

	session.On(doc.EventDocumentLoaded, func(interface{}) { v.Reload() })
	session.On(doc.EventContentChanged, func(data interface{}) {
		pages, _ := data.([]int)
		v.invalidate(pages)
	})
	session.On(doc.EventDocumentClosed, func(interface{}) { v.Reload() })

	go v.consumeResults()
	return v
}

// Close stops the background render workers.
func (v *View) Close() {
	v.pipe.Close()
}

// dispatch runs one interaction machine call under the view lock, so
// machine state never races the zoom animation goroutine. Machine
// callbacks re-enter the view through session events, so they are
// recorded while the lock is held and flushed here after release.
func (v *View) dispatch(fn func(m *Machine) bool) {
	v.mu.Lock()
	m := v.machine
	if m == nil {
		v.mu.Unlock()
		return
	}
	changed := fn(m)
	mutated := v.mutated
	v.mutated = nil
	edit := v.pendingEdit
	v.pendingEdit = nil
	crop := v.pendingCrop
	v.pendingCrop = nil
	v.mu.Unlock()

	for _, page := range mutated {
		v.pageModified(page)
	}
	if edit != nil && v.onEditStart != nil {
		v.onEditStart(edit.page, edit.line)
	}
	if crop != nil && crop.done != nil {
		crop.done(crop.page, crop.rect)
	}
	if changed {
		v.raster.Refresh()
	}
}

// EnterTextPlacement arms placement of a new text annotation; the next
// click commits it.
func (v *View) EnterTextPlacement(cfg annot.TextConfig) {
	v.dispatch(func(m *Machine) bool {
		m.EnterTextPlacement(cfg)
		return false
	})
}

// EnterCrop arms a crop selection. done runs outside the view lock
// once a selection completes.
func (v *View) EnterCrop(done CropFunc) {
	v.dispatch(func(m *Machine) bool {
		m.EnterCrop(func(page int, r geometry.Rect) {
			v.pendingCrop = &cropNotice{page: page, rect: r, done: done}
		})
		return false
	})
}

// EnterTextEdit switches to inline native-text editing.
func (v *View) EnterTextEdit() {
	v.dispatch(func(m *Machine) bool {
		m.EnterTextEdit()
		return false
	})
}

// ExitMode returns to normal interaction, committing any pending edit.
func (v *View) ExitMode() {
	v.dispatch(func(m *Machine) bool {
		m.ExitMode()
		return true
	})
}

// DeleteSelected removes the selected annotation or stamp, reporting
// whether anything was deleted.
func (v *View) DeleteSelected() bool {
	deleted := false
	v.dispatch(func(m *Machine) bool {
		deleted = m.DeleteSelected()
		return deleted
	})
	return deleted
}

// SetEditText updates the inline editor's buffer.
func (v *View) SetEditText(s string) {
	v.dispatch(func(m *Machine) bool {
		m.SetEditText(s)
		return false
	})
}

// CommitEdit writes the pending inline edit into the page.
func (v *View) CommitEdit() {
	v.dispatch(func(m *Machine) bool {
		m.CommitEdit()
		return true
	})
}

// CancelEdit discards the pending inline edit.
func (v *View) CancelEdit() {
	v.dispatch(func(m *Machine) bool {
		m.CancelEdit()
		return true
	})
}

// PlaceStamp adds an overlay stamp at the default position on a page.
func (v *View) PlaceStamp(page int, imagePath string) error {
	v.mu.Lock()
	ae := v.annots
	if ae == nil {
		v.mu.Unlock()
		return nil
	}
	_, err := ae.PlaceStamp(page, nil, imagePath)
	v.mu.Unlock()
	if err != nil {
		return err
	}
	v.raster.Refresh()
	return nil
}

// HasStamps reports whether any overlay stamps exist.
func (v *View) HasStamps() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.annots != nil && len(v.annots.Stamps()) > 0
}

// FlattenStamps burns every overlay stamp into the page content and
// refreshes the document snapshot.
func (v *View) FlattenStamps() error {
	v.mu.Lock()
	ae := v.annots
	if ae == nil {
		v.mu.Unlock()
		return nil
	}
	seen := make(map[int]bool)
	var pages []int
	for _, s := range ae.Stamps() {
		if !seen[s.Page] {
			seen[s.Page] = true
			pages = append(pages, s.Page)
		}
	}
	err := ae.BurnStamps()
	v.mu.Unlock()
	if err != nil {
		return err
	}
	return v.session.MarkMutated(pages...)
}

// UpdateAnnotationText rewrites a free-text annotation's content and
// refreshes the document snapshot.
func (v *View) UpdateAnnotationText(page int, a pdf.Annotation, cfg annot.TextConfig) error {
	v.mu.Lock()
	ae := v.annots
	if ae == nil {
		v.mu.Unlock()
		return nil
	}
	_, err := ae.UpdateText(page, a, cfg)
	v.mu.Unlock()
	if err != nil {
		return err
	}
	return v.session.MarkMutated(page)
}

// OnZoomChanged registers a commit-time zoom listener.
func (v *View) OnZoomChanged(fn func(z float64)) { v.onZoomChanged = fn }

// OnPageChanged registers a listener for the visible page index.
func (v *View) OnPageChanged(fn func(page int)) { v.onPageChanged = fn }

// OnModified registers a listener fired after an interaction mutates
// the document.
func (v *View) OnModified(fn func()) { v.onModified = fn }

// OnEditRequested registers a listener for annotation edit requests
// (secondary click on a free-text annotation).
func (v *View) OnEditRequested(fn func(a pdf.Annotation, page int)) { v.onEditRequested = fn }

// OnEditStart registers a listener fired when an inline native-text
// edit begins; the host presents the editor.
func (v *View) OnEditStart(fn func(page int, line textedit.Line)) { v.onEditStart = fn }

// Reload rebuilds engines and layout after the session's document
// changed. Safe to call with no document loaded.
func (v *View) Reload() {
	v.mu.Lock()
	d := v.session.Document()
	if d == nil {
		v.annots = nil
		v.edits = nil
		v.machine = nil
		v.mutated = nil
		v.pendingEdit = nil
		v.pendingCrop = nil
		v.pageSizes = nil
		v.stack.Recompute(nil, v.ctrl.Committed())
		v.cache.InvalidateAll()
		v.cache.ClearAllPending()
		v.scrollY = 0
		v.mu.Unlock()
		v.raster.Refresh()
		return
	}

	sizes := make([]geometry.Point2D, 0, d.PageCount())
	for i := 0; i < d.PageCount(); i++ {
		w, h, err := d.PageSize(i)
		if err != nil {
			log.Printf("pdfview: page size %d: %v", i, err)
			w, h = 612, 792
		}
		sizes = append(sizes, geometry.Point2D{X: w, Y: h})
	}
	v.pageSizes = sizes
	v.annots = annot.NewEngine(d, nil)
	v.edits = textedit.NewEngine(d, fontres.NewResolver())
	v.machine = NewMachine(v, v.annots, v.edits, v.ctrl.Committed)
	// Machine callbacks fire with the view lock held; record the side
	// effects and let dispatch deliver them after unlocking.
	v.machine.OnModified(func(page int) {
		v.mutated = append(v.mutated, page)
	})
	v.machine.OnEditStart(func(page int, line textedit.Line) {
		v.pendingEdit = &editNotice{page: page, line: line}
	})
	v.stack.Recompute(sizes, v.ctrl.Committed())
	v.cache.InvalidateAll()
	v.cache.ClearAllPending()
	v.scrollY = 0
	v.lastPage = -1
	v.mu.Unlock()

	v.scheduleVisible()
	v.raster.Refresh()
}

// pageModified runs after the interaction machine mutates a page:
// refresh the snapshot so render workers see the change, then let the
// content-changed event invalidate and repaint.
func (v *View) pageModified(page int) {
	if err := v.session.MarkMutated(page); err != nil {
		log.Printf("pdfview: snapshot after mutation: %v", err)
	}
	if v.onModified != nil {
		v.onModified()
	}
}

func (v *View) invalidate(pages []int) {
	v.mu.Lock()
	if len(pages) == 0 {
		v.cache.InvalidateAll()
		v.cache.ClearAllPending()
	} else {
		for _, p := range pages {
			v.cache.InvalidatePage(p)
			if v.edits != nil {
				v.edits.InvalidatePage(p)
			}
		}
	}
	v.mu.Unlock()
	v.scheduleVisible()
	v.raster.Refresh()
}

// InvalidateAllPages forces a full re-render, e.g. after structural
// edits made outside the view.
func (v *View) InvalidateAllPages() {
	v.invalidate(nil)
}

// PageGeometry implementation; coordinates are content space.

func (v *View) PageCount() int { return v.stack.PageCount() }

func (v *View) PageAtY(y int) int { return v.stack.PageAtY(y) }

func (v *View) PageOrigin(page int) geometry.Point2D {
	return geometry.Point2D{
		X: float64(v.stack.XOffset(page, v.viewportW)),
		Y: float64(v.stack.OffsetOf(page)),
	}
}

// Zoom returns the committed zoom.
func (v *View) Zoom() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ctrl.Committed()
}

// SetZoom animates toward an explicit zoom level.
func (v *View) SetZoom(z float64) {
	v.mu.Lock()
	v.beginGesture()
	v.ctrl.SetZoom(z, time.Now())
	v.mu.Unlock()
	v.ensureAnim()
}

// ZoomIn applies one wheel-equivalent zoom step.
func (v *View) ZoomIn() { v.wheel(1) }

// ZoomOut applies one wheel-equivalent zoom step down.
func (v *View) ZoomOut() { v.wheel(-1) }

func (v *View) wheel(ticks float64) {
	v.mu.Lock()
	v.beginGesture()
	v.ctrl.WheelTicks(ticks, time.Now())
	v.mu.Unlock()
	v.ensureAnim()
}

// beginGesture captures the scroll anchor once per gesture. Wheel
// positions are not delivered with scroll events, so the viewport
// centre is the anchor for every gesture kind.
func (v *View) beginGesture() {
	if v.gesture {
		return
	}
	v.gesture = true
	v.gestureScroll = v.scrollY
	v.gestureZoom = v.ctrl.Committed()
	v.gestureAnchor = float64(v.viewportH) / 2
}

// ensureAnim runs the ~60 Hz zoom animation loop until the controller
// goes quiet.
func (v *View) ensureAnim() {
	v.mu.Lock()
	if v.animRunning {
		v.mu.Unlock()
		return
	}
	v.animRunning = true
	v.mu.Unlock()

	go func() {
		ticker := time.NewTicker(animInterval)
		defer ticker.Stop()
		for now := range ticker.C {
			v.mu.Lock()
			res := v.ctrl.Tick(now)
			if res.Committed {
				v.commitZoomLocked()
			}
			idle := !res.VisualChanged && !res.Committed && !v.ctrl.Interactive(now)
			if idle {
				v.animRunning = false
			}
			v.mu.Unlock()

			if res.Committed {
				v.scheduleVisible()
			}
			if res.VisualChanged || res.Committed {
				v.raster.Refresh()
			}
			if idle {
				return
			}
		}
	}()
}

// commitZoomLocked relayouts at the committed zoom and corrects the
// scroll offset with the gesture anchor so content under the anchor
// stays put.
func (v *View) commitZoomLocked() {
	z := v.ctrl.Committed()
	v.stack.Recompute(v.pageSizes, z)
	if v.gesture {
		v.scrollY = zoom.AnchorScroll(v.gestureScroll, v.gestureAnchor, v.gestureZoom, z)
		v.gesture = false
	}
	v.clampScrollLocked()
	// Pending renders keyed at the old zoom will be dropped as stale;
	// clear the pending set so the new zoom can schedule.
	v.cache.ClearAllPending()

	if v.onZoomChanged != nil {
		z := z
		fn := v.onZoomChanged
		go fn(z)
	}
}

func (v *View) clampScrollLocked() {
	max := float64(v.stack.TotalHeight() - v.viewportH)
	if max < 0 {
		max = 0
	}
	if v.scrollY > max {
		v.scrollY = max
	}
	if v.scrollY < 0 {
		v.scrollY = 0
	}
}

// ScrollToPage jumps so the page's top is at the top of the viewport.
func (v *View) ScrollToPage(page int) {
	v.mu.Lock()
	v.scrollY = float64(v.stack.OffsetOf(page))
	v.clampScrollLocked()
	v.mu.Unlock()
	v.scheduleVisible()
	v.raster.Refresh()
}

// VisiblePage returns the page under the viewport centre.
func (v *View) VisiblePage() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stack.PageAtY(int(v.scrollY) + v.viewportH/2)
}

// SetSearchHighlights paints search matches; current indexes the match
// drawn in the active colour.
func (v *View) SetSearchHighlights(matches []Highlight, current int) {
	v.mu.Lock()
	v.search = matches
	v.searchCur = current
	v.mu.Unlock()
	v.raster.Refresh()
}

// ClearSearch removes all search highlights.
func (v *View) ClearSearch() {
	v.SetSearchHighlights(nil, 0)
}

// FindText scans the document's text lines for a query,
// case-insensitively, and returns one highlight per occurrence. Match
// rectangles are interpolated across the line box by rune position.
func (v *View) FindText(query string) []Highlight {
	v.mu.Lock()
	edits := v.edits
	pages := len(v.pageSizes)
	v.mu.Unlock()
	if edits == nil || query == "" {
		return nil
	}

	needle := strings.ToLower(query)
	var out []Highlight
	for p := 0; p < pages; p++ {
		lines, err := edits.Lines(p)
		if err != nil {
			log.Printf("pdfview: search page %d: %v", p, err)
			continue
		}
		for _, line := range lines {
			hay := strings.ToLower(line.Text)
			total := utf8.RuneCountInString(line.Text)
			if total == 0 {
				continue
			}
			for from := 0; ; {
				i := strings.Index(hay[from:], needle)
				if i < 0 {
					break
				}
				start := utf8.RuneCountInString(hay[:from+i])
				end := start + utf8.RuneCountInString(needle)
				out = append(out, Highlight{
					Page: p,
					Rect: geometry.Rect{
						X:      line.BBox.X + line.BBox.Width*float64(start)/float64(total),
						Y:      line.BBox.Y,
						Width:  line.BBox.Width * float64(end-start) / float64(total),
						Height: line.BBox.Height,
					},
				})
				from += i + len(needle)
			}
		}
	}
	return out
}

// scheduleVisible submits render tasks for pages around the viewport.
func (v *View) scheduleVisible() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.session == nil || !v.session.Loaded() {
		return
	}
	z := render.RoundZoom(v.ctrl.Committed())
	spec := v.session.RenderSpec()
	start, end := v.stack.VisibleRange(int(v.scrollY), v.viewportH)
	for p := start; p < end; p++ {
		key := render.NewKey(p, z)
		if v.cache.HasHigh(key) || v.cache.Pending(key) {
			continue
		}
		task := render.Task{
			Key:   key,
			Spec:  spec,
			Scale: z * render.DeviceScale,
			Valid: func() bool {
				v.mu.Lock()
				defer v.mu.Unlock()
				return render.RoundZoom(v.ctrl.Committed()) == key.Zoom
			},
		}
		if v.pipe.Submit(task) {
			v.cache.MarkPending(key)
		}
	}
}

// integrate applies one pipeline delivery to the cache and reports
// whether a repaint is worthwhile. Results for a zoom other than the
// committed one are dropped. The pending mark is only cleared on the
// high pass, the last delivery for a key; clearing it on a stale low
// pass would let the same key be submitted again while its high pass
// is still in flight.
func (v *View) integrate(r render.Result) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if r.Key.Zoom != render.RoundZoom(v.ctrl.Committed()) {
		if r.HighRes {
			v.cache.ClearPending(r.Key)
		}
		return false
	}
	if r.HighRes {
		v.cache.PutHigh(r.Key, r.Image)
		v.cache.ClearPending(r.Key)
	} else {
		v.cache.PutLow(r.Key, r.Image)
	}
	return true
}

func (v *View) consumeResults() {
	for r := range v.pipe.Results() {
		if v.integrate(r) {
			v.raster.Refresh()
		}
	}
}

// Event plumbing. Points arriving from Fyne are viewport-relative;
// content space adds the scroll offset.

func (v *View) contentPoint(pos fyne.Position) geometry.Point2D {
	return geometry.Point2D{X: float64(pos.X), Y: float64(pos.Y) + v.scrollY}
}

// Scrolled pans the viewport vertically.
func (v *View) Scrolled(ev *fyne.ScrollEvent) {
	v.mu.Lock()
	v.scrollY -= float64(ev.Scrolled.DY)
	v.clampScrollLocked()
	page := v.stack.PageAtY(int(v.scrollY) + v.viewportH/2)
	changed := page != v.lastPage
	v.lastPage = page
	v.mu.Unlock()

	if changed && v.onPageChanged != nil {
		v.onPageChanged(page)
	}
	v.scheduleVisible()
	v.raster.Refresh()
}

// MouseDown forwards presses to the interaction machine.
func (v *View) MouseDown(ev *desktop.MouseEvent) {
	v.dispatch(func(m *Machine) bool {
		return m.MouseDown(v.contentPoint(ev.Position))
	})
}

// MouseUp completes drags and crops.
func (v *View) MouseUp(ev *desktop.MouseEvent) {
	v.dispatch(func(m *Machine) bool {
		return m.MouseUp(v.contentPoint(ev.Position))
	})
}

// Dragged feeds drag motion to the machine.
func (v *View) Dragged(ev *fyne.DragEvent) {
	v.dispatch(func(m *Machine) bool {
		return m.MouseDrag(v.contentPoint(ev.Position))
	})
}

// DragEnd is part of fyne.Draggable; MouseUp carries the completion.
func (v *View) DragEnd() {}

// MouseMoved updates the text-edit hover highlight.
func (v *View) MouseMoved(ev *desktop.MouseEvent) {
	v.dispatch(func(m *Machine) bool {
		return m.Hover(v.contentPoint(ev.Position))
	})
}

// MouseIn is part of desktop.Hoverable.
func (v *View) MouseIn(*desktop.MouseEvent) {}

// MouseOut is part of desktop.Hoverable.
func (v *View) MouseOut() {}

// TappedSecondary surfaces annotation edit requests to the host.
func (v *View) TappedSecondary(ev *fyne.PointEvent) {
	v.mu.Lock()
	m := v.machine
	var hit Hit
	if m != nil {
		hit = m.hitTest(v.contentPoint(ev.Position))
	}
	v.mu.Unlock()
	if m == nil || v.onEditRequested == nil {
		return
	}
	if hit.Kind == TargetAnnotation {
		v.onEditRequested(hit.Annot, hit.Page)
	}
}

// CreateRenderer implements fyne.Widget.
func (v *View) CreateRenderer() fyne.WidgetRenderer {
	return &viewRenderer{view: v}
}

type viewRenderer struct {
	view *View
}

func (r *viewRenderer) Layout(size fyne.Size) {
	v := r.view
	v.mu.Lock()
	v.viewportW = int(size.Width)
	v.viewportH = int(size.Height)
	v.clampScrollLocked()
	v.mu.Unlock()
	v.raster.Resize(size)
	v.scheduleVisible()
}

func (r *viewRenderer) MinSize() fyne.Size {
	return fyne.NewSize(200, 200)
}

func (r *viewRenderer) Refresh() {
	r.view.raster.Refresh()
}

func (r *viewRenderer) Objects() []fyne.CanvasObject {
	return []fyne.CanvasObject{r.view.raster}
}

func (r *viewRenderer) Destroy() {}
