package pdfview

import (
	"image"
	"testing"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"

	"pdf-studio/internal/annot"
	"pdf-studio/internal/doc"
	"pdf-studio/internal/pdf"
	"pdf-studio/internal/pdf/pdftest"
	"pdf-studio/internal/render"
	"pdf-studio/pkg/geometry"
)

func mouseAt(x, y float32) *desktop.MouseEvent {
	return &desktop.MouseEvent{PointEvent: fyne.PointEvent{Position: fyne.NewPos(x, y)}}
}

func newViewFixture(t *testing.T, d *pdftest.Doc) *View {
	t.Helper()
	session := doc.NewSession()
	v := New(session)
	t.Cleanup(v.Close)
	if err := session.Adopt(d, "test.pdf"); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestFindTextLocatesMatches(t *testing.T) {
	d := pdftest.New(
		geometry.Point2D{X: 612, Y: 792},
		geometry.Point2D{X: 612, Y: 792},
	)
	d.Layout[0] = []pdf.TextLine{textLine("Hello world", 100, 100, 6)}
	d.Layout[1] = []pdf.TextLine{textLine("world of worlds", 50, 200, 6)}
	v := newViewFixture(t, d)

	got := v.FindText("world")
	if len(got) != 3 {
		t.Fatalf("matches = %d, want 3", len(got))
	}
	if got[0].Page != 0 || got[1].Page != 1 || got[2].Page != 1 {
		t.Errorf("pages = %d,%d,%d", got[0].Page, got[1].Page, got[2].Page)
	}

	// The first match covers "world" at the end of an 11-rune line:
	// runes 6-11 of a 66pt box starting at x=100.
	r := got[0].Rect
	if r.X < 130 || r.X > 140 || r.Width < 25 || r.Width > 35 {
		t.Errorf("match rect = %+v", r)
	}
	line := d.Layout[0][0].BBox
	if r.Y != line.Y || r.Height != line.Height {
		t.Errorf("match rect %+v not aligned to line %+v", r, line)
	}
}

func TestFindTextIsCaseInsensitive(t *testing.T) {
	d := pdftest.New(geometry.Point2D{X: 612, Y: 792})
	d.Layout[0] = []pdf.TextLine{textLine("Invoice Total", 10, 10, 6)}
	v := newViewFixture(t, d)

	if got := v.FindText("INVOICE"); len(got) != 1 {
		t.Errorf("matches = %d, want 1", len(got))
	}
	if got := v.FindText(""); got != nil {
		t.Errorf("empty query returned %d matches", len(got))
	}
	if got := v.FindText("absent"); got != nil {
		t.Errorf("no-hit query returned %d matches", len(got))
	}
}

func TestScrollToPageAndVisiblePage(t *testing.T) {
	d := pdftest.New(
		geometry.Point2D{X: 612, Y: 792},
		geometry.Point2D{X: 612, Y: 792},
		geometry.Point2D{X: 612, Y: 792},
	)
	v := newViewFixture(t, d)

	if got := v.VisiblePage(); got != 0 {
		t.Errorf("initial page = %d", got)
	}
	v.ScrollToPage(2)
	if got := v.VisiblePage(); got != 2 {
		t.Errorf("after scroll page = %d", got)
	}
	v.ScrollToPage(0)
	if got := v.VisiblePage(); got != 0 {
		t.Errorf("after scroll back page = %d", got)
	}
}

func TestReloadClearsStateOnClose(t *testing.T) {
	d := pdftest.New(geometry.Point2D{X: 612, Y: 792})
	session := doc.NewSession()
	v := New(session)
	defer v.Close()
	if err := session.Adopt(d, "test.pdf"); err != nil {
		t.Fatal(err)
	}
	if v.machine == nil {
		t.Fatal("no machine after load")
	}
	if err := session.Close(); err != nil {
		t.Fatal(err)
	}
	if v.machine != nil {
		t.Error("machine survived document close")
	}
	if v.PageCount() != 0 {
		t.Errorf("layout kept %d pages after close", v.PageCount())
	}
}

func TestTextPlacementThroughViewRefreshesSnapshot(t *testing.T) {
	d := pdftest.New(geometry.Point2D{X: 612, Y: 792})
	v := newViewFixture(t, d)

	var modified int
	v.OnModified(func() { modified++ })

	v.EnterTextPlacement(annot.TextConfig{Text: "placed note"})
	before := d.Snapshots
	// The click lands the annotation and the mutation callback chain
	// re-enters the view through the content-changed event; a deadlock
	// here means the callback ran with the view lock still held.
	v.MouseDown(mouseAt(300, 400))

	if d.AnnotCount(0) != 1 {
		t.Fatalf("annotation count = %d", d.AnnotCount(0))
	}
	if d.Snapshots != before+1 {
		t.Errorf("snapshots = %d, want %d", d.Snapshots, before+1)
	}
	if modified != 1 {
		t.Errorf("modified callbacks = %d", modified)
	}
}

func TestMouseEventsSafeDuringZoomAnimation(t *testing.T) {
	d := pdftest.New(geometry.Point2D{X: 612, Y: 792})
	d.Layout[0] = []pdf.TextLine{textLine("steady text", 100, 100, 6)}
	v := newViewFixture(t, d)

	v.EnterTextEdit()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			v.MouseMoved(mouseAt(110, float32(90+i%30)))
		}
	}()
	// The animation goroutine mutates zoom and layout state while the
	// hover events run; the race detector flags any unlocked access.
	v.SetZoom(2.0)
	v.SetZoom(1.0)
	<-done
}

func TestIntegrateClearsPendingOnlyOnHighPass(t *testing.T) {
	d := pdftest.New(geometry.Point2D{X: 612, Y: 792})
	v := newViewFixture(t, d)
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))

	// Committed zoom is 1.0; a key at 2.0 is stale.
	stale := render.NewKey(0, 2.0)
	v.cache.MarkPending(stale)

	if v.integrate(render.Result{Key: stale, Image: img}) {
		t.Error("stale low pass integrated")
	}
	if !v.cache.Pending(stale) {
		t.Error("pending cleared by the stale low pass with the high pass in flight")
	}

	if v.integrate(render.Result{Key: stale, Image: img, HighRes: true}) {
		t.Error("stale high pass integrated")
	}
	if v.cache.Pending(stale) {
		t.Error("pending kept after the stale high pass")
	}
	if v.cache.HasHigh(stale) {
		t.Error("stale image landed in the cache")
	}

	fresh := render.NewKey(0, 1.0)
	v.cache.MarkPending(fresh)
	if !v.integrate(render.Result{Key: fresh, Image: img}) {
		t.Error("fresh low pass dropped")
	}
	if !v.cache.Pending(fresh) {
		t.Error("pending cleared before the high pass")
	}
	if !v.integrate(render.Result{Key: fresh, Image: img, HighRes: true}) {
		t.Error("fresh high pass dropped")
	}
	if v.cache.Pending(fresh) || !v.cache.HasHigh(fresh) {
		t.Error("high pass did not settle the key")
	}
}

func TestViewXformAppliesScrollAndScale(t *testing.T) {
	xf := viewXform{scrollY: 100, scale: 1.0, anchorX: 300, anchorY: 200}
	x, y := xf.point(50, 400)
	if x != 50 || y != 300 {
		t.Errorf("identity scale point = (%v, %v)", x, y)
	}

	// At scale 2 the anchor point stays fixed and everything else
	// moves away from it.
	xf.scale = 2.0
	x, y = xf.point(300, 300)
	if x != 300 || y != 200 {
		t.Errorf("anchor moved to (%v, %v)", x, y)
	}
	x, y = xf.point(400, 400)
	if x != 500 || y != 400 {
		t.Errorf("off-anchor point = (%v, %v)", x, y)
	}
}
