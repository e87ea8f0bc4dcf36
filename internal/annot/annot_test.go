package annot

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pdf-studio/internal/fontres"
	"pdf-studio/internal/pdf/pdftest"
	"pdf-studio/pkg/geometry"
)

var letter = geometry.Point2D{X: 612, Y: 792}

func newEngine(t *testing.T) (*Engine, *pdftest.Doc) {
	t.Helper()
	d := pdftest.New(letter, letter)
	return NewEngine(d, nil), d
}

func TestCharWrapPassThrough(t *testing.T) {
	m := fontres.Approximate()
	tests := []struct {
		name            string
		text            string
		width, fontSize float64
	}{
		{"empty text", "", 100, 14},
		{"zero width", "hello", 0, 14},
		{"zero size", "hello", 100, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CharWrap(tc.text, tc.width, tc.fontSize, m); got != tc.text {
				t.Errorf("CharWrap = %q, want unchanged %q", got, tc.text)
			}
		})
	}
}

func TestCharWrapBreaksLongLines(t *testing.T) {
	m := fontres.Approximate()
	// 20 'a' runes at size 10 measure 120 wide; a 64pt box has 60pt of
	// effective width, so 10 runes fit per line.
	got := CharWrap(strings.Repeat("a", 20), 64, 10, m)
	lines := strings.Split(got, "\n")
	if len(lines) != 2 {
		t.Fatalf("wrapped into %d lines (%q), want 2", len(lines), got)
	}
	for i, l := range lines {
		if len(l) != 10 {
			t.Errorf("line %d holds %d runes, want 10", i, len(l))
		}
	}
	// No characters lost.
	if strings.ReplaceAll(got, "\n", "") != strings.Repeat("a", 20) {
		t.Error("wrap dropped characters")
	}
}

func TestCharWrapKeepsExistingNewlines(t *testing.T) {
	m := fontres.Approximate()
	got := CharWrap("ab\n\ncd", 1000, 14, m)
	if got != "ab\n\ncd" {
		t.Errorf("got %q, want newlines and empty line preserved", got)
	}
}

func TestCharWrapIdempotent(t *testing.T) {
	m := fontres.Approximate()
	text := strings.Repeat("x", 57)
	once := CharWrap(text, 80, 12, m)
	twice := CharWrap(once, 80, 12, m)
	if once != twice {
		t.Errorf("second wrap changed text:\n once=%q\ntwice=%q", once, twice)
	}
}

func TestTextBoxRect(t *testing.T) {
	center := geometry.Point2D{X: 300, Y: 400}

	r := TextBoxRect(center, "hello", 14, minClickWidth)
	if r.Width != minClickWidth {
		t.Errorf("short text width = %v, want the %v minimum", r.Width, minClickWidth)
	}
	wantH := 14*lineHeightRatio + boxHeightSlack
	if r.Height != wantH {
		t.Errorf("height = %v, want %v", r.Height, wantH)
	}
	if c := r.Center(); c != center {
		t.Errorf("box not centered: %v", c)
	}

	r = TextBoxRect(center, "a long annotation line\nshort", 14, minClickWidth)
	if want := 22 * 14 * charWidthFactor; r.Width != want {
		t.Errorf("multiline width = %v, want %v", r.Width, want)
	}
	if want := 14*lineHeightRatio*2 + boxHeightSlack; r.Height != want {
		t.Errorf("multiline height = %v, want %v", r.Height, want)
	}
}

func TestAddTextCachesRawAndStyles(t *testing.T) {
	e, d := newEngine(t)

	a, err := e.AddText(0, geometry.Point2D{X: 100, Y: 200}, TextConfig{Text: "memo text"})
	if err != nil {
		t.Fatal(err)
	}
	if d.AnnotCount(0) != 1 {
		t.Fatalf("annotation count = %d", d.AnnotCount(0))
	}
	if got := e.RawText(a); got != "memo text" {
		t.Errorf("raw text = %q", got)
	}
	if a.Style().FontName != fontres.BuiltinHelvetica {
		t.Errorf("font = %q, want default helv", a.Style().FontName)
	}
	if a.Style().FontSize != 14.0 {
		t.Errorf("size = %v, want default 14", a.Style().FontSize)
	}
	if c := a.Rect().Center(); c.X != 100 || c.Y != 200 {
		t.Errorf("box center = %v", c)
	}
}

func TestAddTextCJKForcesKoreanFont(t *testing.T) {
	e, _ := newEngine(t)
	a, err := e.AddText(0, geometry.Point2D{X: 50, Y: 50}, TextConfig{
		Text: "안녕하세요", FontName: "Helvetica",
	})
	if err != nil {
		t.Fatal(err)
	}
	if a.Style().FontName != fontres.BuiltinKorean {
		t.Errorf("font = %q, want %q", a.Style().FontName, fontres.BuiltinKorean)
	}
}

func TestAddTextAtCenter(t *testing.T) {
	e, _ := newEngine(t)
	a, err := e.AddTextAtCenter(1, TextConfig{Text: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if c := a.Rect().Center(); c.X != letter.X/2 || c.Y != letter.Y/2 {
		t.Errorf("center = %v, want page center", c)
	}
	if a.Rect().Width != minCenterWidth {
		t.Errorf("width = %v, want the %v center-placement minimum", a.Rect().Width, minCenterWidth)
	}
}

func TestUpdateTextRecreatesInPlace(t *testing.T) {
	e, d := newEngine(t)
	a, err := e.AddText(0, geometry.Point2D{X: 100, Y: 100}, TextConfig{Text: "old"})
	if err != nil {
		t.Fatal(err)
	}
	rect := a.Rect()

	fresh, err := e.UpdateText(0, a, TextConfig{Text: "new content", FontSize: 18})
	if err != nil {
		t.Fatal(err)
	}
	if d.AnnotCount(0) != 1 {
		t.Fatalf("annotation count after update = %d", d.AnnotCount(0))
	}
	if fresh.ID() == a.ID() {
		t.Error("update did not recreate the annotation")
	}
	if fresh.Rect() != rect {
		t.Errorf("rect changed: %v -> %v", rect, fresh.Rect())
	}
	if fresh.Content() != "new content" || fresh.Style().FontSize != 18 {
		t.Errorf("content/style not applied: %q %v", fresh.Content(), fresh.Style().FontSize)
	}
	if e.RawText(fresh) != "new content" {
		t.Errorf("raw cache not re-keyed")
	}
}

func TestFinishResizeWrapsRawText(t *testing.T) {
	e, d := newEngine(t)
	raw := strings.Repeat("a", 20)
	a, err := e.AddText(0, geometry.Point2D{X: 200, Y: 200}, TextConfig{Text: raw, FontSize: 10})
	if err != nil {
		t.Fatal(err)
	}

	narrow := geometry.Rect{X: 150, Y: 180, Width: 64, Height: 80}
	resized, err := e.FinishResize(0, a, narrow)
	if err != nil {
		t.Fatal(err)
	}
	if d.AnnotCount(0) != 1 {
		t.Fatalf("annotation count = %d", d.AnnotCount(0))
	}
	if resized.Rect() != narrow {
		t.Errorf("rect = %v, want %v", resized.Rect(), narrow)
	}
	if !strings.Contains(resized.Content(), "\n") {
		t.Errorf("content not wrapped: %q", resized.Content())
	}
	if e.RawText(resized) != raw {
		t.Errorf("raw text lost: %q", e.RawText(resized))
	}

	// A second resize wraps the raw text again, not the wrapped form,
	// so widening back removes the breaks.
	wide, err := e.FinishResize(0, resized, geometry.Rect{X: 100, Y: 180, Width: 500, Height: 40})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(wide.Content(), "\n") {
		t.Errorf("stale wrap survived widening: %q", wide.Content())
	}
}

func TestDeleteDropsAnnotation(t *testing.T) {
	e, d := newEngine(t)
	a, err := e.AddText(0, geometry.Point2D{X: 10, Y: 10}, TextConfig{Text: "bye"})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Delete(0, a); err != nil {
		t.Fatal(err)
	}
	if d.AnnotCount(0) != 0 {
		t.Errorf("annotation survived delete")
	}
}

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stamp.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPlaceStampAtPageCenter(t *testing.T) {
	e, _ := newEngine(t)
	path := writePNG(t, 200, 100) // 2:1 aspect

	s, err := e.PlaceStamp(0, nil, path)
	if err != nil {
		t.Fatal(err)
	}
	wantW := letter.X * StampWidthRatio
	if s.Rect.Width != wantW {
		t.Errorf("width = %v, want %v", s.Rect.Width, wantW)
	}
	if s.Rect.Height != wantW/2 {
		t.Errorf("height = %v, want aspect-derived %v", s.Rect.Height, wantW/2)
	}
	if c := s.Rect.Center(); c.X != letter.X/2 || c.Y != letter.Y/2 {
		t.Errorf("center = %v, want page center", c)
	}
}

func TestPlaceStampUnreadableImageFallsBackSquare(t *testing.T) {
	e, _ := newEngine(t)
	at := geometry.Point2D{X: 100, Y: 150}
	s, err := e.PlaceStamp(1, &at, "/nonexistent/logo.png")
	if err != nil {
		t.Fatal(err)
	}
	if s.Rect.Width != s.Rect.Height {
		t.Errorf("fallback not square: %v x %v", s.Rect.Width, s.Rect.Height)
	}
	if c := s.Rect.Center(); c != at {
		t.Errorf("center = %v, want %v", c, at)
	}
}

func TestSelectAndDeleteStamp(t *testing.T) {
	e, _ := newEngine(t)
	s1, _ := e.PlaceStamp(0, nil, "a.png")
	s2, _ := e.PlaceStamp(0, nil, "b.png")

	e.SelectStamp(s2)
	if s1.Selected || !s2.Selected {
		t.Errorf("selection state: s1=%v s2=%v", s1.Selected, s2.Selected)
	}
	e.SelectStamp(nil)
	if s2.Selected {
		t.Error("SelectStamp(nil) did not clear")
	}

	e.DeleteStamp(s1)
	if got := e.StampsOn(0); len(got) != 1 || got[0] != s2 {
		t.Errorf("stamps after delete: %d", len(got))
	}
}

func TestBurnStamps(t *testing.T) {
	e, d := newEngine(t)
	s1, _ := e.PlaceStamp(0, nil, "logo.png")
	e.PlaceStamp(1, nil, "seal.png")
	// Stamp pointing past the end of the document is skipped.
	e.stamps = append(e.stamps, &Stamp{ID: 99, Page: 7, Path: "gone.png"})

	pages := e.BurnedPages()
	if len(pages) != 3 {
		t.Fatalf("burned pages = %v", pages)
	}

	if err := e.BurnStamps(); err != nil {
		t.Fatal(err)
	}
	if len(d.Images) != 2 {
		t.Fatalf("%d images inserted, want 2", len(d.Images))
	}
	if d.Images[0].Page != 0 || d.Images[0].Path != "logo.png" {
		t.Errorf("first insert = %+v", d.Images[0])
	}
	if d.Images[0].Rect != s1.Rect {
		t.Errorf("insert rect = %v, want %v", d.Images[0].Rect, s1.Rect)
	}
	if len(e.Stamps()) != 0 {
		t.Error("overlay not cleared after burn")
	}
}

func TestFreeResizeRect(t *testing.T) {
	anchor := geometry.Point2D{X: 100, Y: 100}

	r := FreeResizeRect(anchor, geometry.Point2D{X: 180, Y: 150}, 20, 10)
	want := geometry.Rect{X: 100, Y: 100, Width: 80, Height: 50}
	if r != want {
		t.Errorf("rect = %v, want %v", r, want)
	}

	// Dragging past the anchor normalizes; collapsing below the
	// minimums clamps.
	r = FreeResizeRect(anchor, geometry.Point2D{X: 95, Y: 98}, 20, 10)
	if r.Width != 20 || r.Height != 10 {
		t.Errorf("minimums not applied: %v", r)
	}
}

func TestStampResizeRectKeepsAspect(t *testing.T) {
	orig := geometry.Rect{X: 0, Y: 0, Width: 100, Height: 50} // 2:1
	anchor := geometry.Point2D{X: 0, Y: 0}                    // top-left anchored

	// Pointer pulls mostly horizontally: width wins, height follows.
	r := StampResizeRect(orig, anchor, geometry.Point2D{X: 200, Y: 10}, 20)
	if r.Width != 200 || r.Height != 100 {
		t.Errorf("rect = %v, want 200x100", r)
	}
	if r.X != 0 || r.Y != 0 {
		t.Errorf("anchor moved: %v", r)
	}

	// Pointer pulls mostly vertically: height wins.
	r = StampResizeRect(orig, anchor, geometry.Point2D{X: 30, Y: 120}, 20)
	if r.Height != 120 || r.Width != 240 {
		t.Errorf("rect = %v, want 240x120", r)
	}

	// Pointer above and left of the anchor grows away from it.
	r = StampResizeRect(orig, geometry.Point2D{X: 100, Y: 50}, geometry.Point2D{X: 0, Y: 40}, 20)
	if r.MaxX() != 100 || r.MaxY() != 50 {
		t.Errorf("opposite-corner anchor not held: %v", r)
	}
	if r.Width/r.Height != 2 {
		t.Errorf("aspect broken: %v", r)
	}
}

func TestStampResizeRectMinimum(t *testing.T) {
	orig := geometry.Rect{X: 0, Y: 0, Width: 100, Height: 100}
	r := StampResizeRect(orig, geometry.Point2D{}, geometry.Point2D{X: 2, Y: 1}, 20)
	if r.Width != 20 || r.Height != 20 {
		t.Errorf("rect = %v, want 20x20 minimum", r)
	}
}
