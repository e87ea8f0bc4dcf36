package textedit

import (
	"image/color"
	"testing"

	"github.com/google/go-cmp/cmp"

	"pdf-studio/internal/fontres"
	"pdf-studio/internal/pdf"
	"pdf-studio/internal/pdf/pdftest"
	"pdf-studio/pkg/geometry"
)

// glyphs lays out runes left to right starting at x with the given
// advance, inserting extra gap before each rune whose index appears in
// gapsBefore. Space runes advance the pen but emit no glyph, matching
// how PDF content streams usually encode word breaks.
func glyphs(text string, x, y, advance, gap float64, gapsBefore ...int) []pdf.Char {
	gapSet := make(map[int]bool)
	for _, i := range gapsBefore {
		gapSet[i] = true
	}
	var out []pdf.Char
	cur := x
	for i, r := range []rune(text) {
		if gapSet[i] {
			cur += gap
		}
		if r == ' ' {
			cur += advance
			continue
		}
		out = append(out, pdf.Char{
			R:    r,
			BBox: geometry.Rect{X: cur, Y: y, Width: advance, Height: 10},
		})
		cur += advance
	}
	return out
}

func lineOf(chars []pdf.Char, font string, size float64) pdf.TextLine {
	first := chars[0]
	last := chars[len(chars)-1]
	bbox := geometry.RectFromCorners(
		geometry.Point2D{X: first.BBox.X, Y: first.BBox.Y},
		geometry.Point2D{X: last.BBox.MaxX(), Y: first.BBox.Y + first.BBox.Height},
	)
	return pdf.TextLine{
		BBox: bbox,
		Spans: []pdf.Span{{
			Font:   font,
			Size:   size,
			Color:  pdf.Color{R: 0.1, G: 0.2, B: 0.3},
			Origin: geometry.Point2D{X: first.BBox.X - 0.8, Y: bbox.MaxY() - 2},
			BBox:   bbox,
			Chars:  chars,
		}},
	}
}

func TestReconstructTextInsertsSpacesAtGaps(t *testing.T) {
	// "helloworld" glyphs 5pt wide; a 3pt gap before index 5 exceeds
	// the 0.35 * 5 = 1.75 threshold.
	chars := glyphs("helloworld", 100, 50, 5, 3, 5)
	got := ReconstructText([]pdf.Span{{Chars: chars}})
	if got != "hello world" {
		t.Errorf("got %q, want %q", got, "hello world")
	}
}

func TestReconstructTextSmallGapsStayJoined(t *testing.T) {
	// 1pt kerning gaps stay below the threshold.
	chars := glyphs("ab", 0, 0, 5, 1, 1)
	if got := ReconstructText([]pdf.Span{{Chars: chars}}); got != "ab" {
		t.Errorf("got %q, want %q", got, "ab")
	}
}

func TestReconstructTextMultipleWords(t *testing.T) {
	chars := glyphs("onetwothree", 0, 0, 6, 4, 3, 6)
	if got := ReconstructText([]pdf.Span{{Chars: chars}}); got != "one two three" {
		t.Errorf("got %q", got)
	}
}

func TestReconstructTextFallsBackToSpanText(t *testing.T) {
	spans := []pdf.Span{
		{Text: "Type3 "},
		{Text: "content"},
	}
	if got := ReconstructText(spans); got != "Type3 content" {
		t.Errorf("got %q", got)
	}
}

func TestReconstructTextSpansShareThreshold(t *testing.T) {
	// Chars flow across spans; the mean width covers the whole line.
	a := glyphs("ab", 0, 0, 5, 0)
	b := glyphs("cd", 13, 0, 5, 0) // 3pt gap after "ab"
	got := ReconstructText([]pdf.Span{{Chars: a}, {Chars: b}})
	if got != "ab cd" {
		t.Errorf("got %q, want %q", got, "ab cd")
	}
}

func layoutDoc(t *testing.T) (*Engine, *pdftest.Doc) {
	t.Helper()
	d := pdftest.New(geometry.Point2D{X: 612, Y: 792})
	d.Layout[0] = []pdf.TextLine{
		lineOf(glyphs("First line", 72, 100, 5, 3, 5), "Helvetica", 12),
		lineOf(glyphs("Second", 72, 130, 5, 3), "TimesNewRoman", 10),
	}
	r := &fontres.Resolver{FontsDir: t.TempDir(), TempDir: t.TempDir()}
	return NewEngine(d, r), d
}

func TestLinesExtraction(t *testing.T) {
	e, _ := layoutDoc(t)
	lines, err := e.Lines(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Fatalf("%d lines", len(lines))
	}

	l := lines[0]
	if l.Text != "First line" {
		t.Errorf("text = %q", l.Text)
	}
	if l.Font != "Helvetica" || l.Size != 12 {
		t.Errorf("style = %q %v", l.Font, l.Size)
	}
	if l.FirstCharX != 72 {
		t.Errorf("first char x = %v, want 72", l.FirstCharX)
	}
	// The span origin includes bearing; InsertX prefers the glyph box.
	if l.InsertX() != 72 {
		t.Errorf("insert x = %v", l.InsertX())
	}
}

func TestLinesDedupeKeepsLater(t *testing.T) {
	e, d := layoutDoc(t)
	// A previous edit leaves the original and the replacement at the
	// same position; only the later (replacement) survives.
	original := lineOf(glyphs("old text", 72, 200, 5, 3, 3), "Arial", 12)
	replacement := lineOf(glyphs("new words", 73, 201, 5, 3, 3), "Arial", 12)
	unrelated := lineOf(glyphs("elsewhere", 400, 200, 5, 0), "Arial", 12)
	d.Layout[0] = []pdf.TextLine{original, replacement, unrelated}

	lines, err := e.Lines(0)
	if err != nil {
		t.Fatal(err)
	}
	var texts []string
	for _, l := range lines {
		texts = append(texts, l.Text)
	}
	want := []string{"new words", "elsewhere"}
	if diff := cmp.Diff(want, texts); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
}

func TestLinesDedupeIgnoresDistinctRows(t *testing.T) {
	e, d := layoutDoc(t)
	d.Layout[0] = []pdf.TextLine{
		lineOf(glyphs("row one", 72, 100, 5, 3, 3), "Arial", 12),
		lineOf(glyphs("row two", 72, 120, 5, 3, 3), "Arial", 12),
	}
	lines, err := e.Lines(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Fatalf("vertically separate rows merged: %d lines", len(lines))
	}
}

func TestLineAt(t *testing.T) {
	e, _ := layoutDoc(t)

	l, ok, err := e.LineAt(0, geometry.Point2D{X: 90, Y: 105})
	if err != nil || !ok {
		t.Fatalf("no hit: ok=%v err=%v", ok, err)
	}
	if l.Text != "First line" {
		t.Errorf("hit %q", l.Text)
	}

	if _, ok, _ := e.LineAt(0, geometry.Point2D{X: 300, Y: 400}); ok {
		t.Error("hit reported on empty area")
	}
}

func TestCommitIgnoresNoops(t *testing.T) {
	e, d := layoutDoc(t)
	lines, _ := e.Lines(0)

	if mutated, err := e.Commit(0, lines[0], lines[0].Text); err != nil || mutated {
		t.Fatalf("unchanged text: mutated=%v err=%v", mutated, err)
	}
	if mutated, err := e.Commit(0, lines[0], "   "); err != nil || mutated {
		t.Fatalf("blank text: mutated=%v err=%v", mutated, err)
	}
	if len(d.Draws) != 0 || len(d.Texts) != 0 {
		t.Errorf("no-op commit mutated the document: %d draws, %d texts",
			len(d.Draws), len(d.Texts))
	}
}

func TestCommitCoversThenInserts(t *testing.T) {
	e, d := layoutDoc(t)
	d.Background = color.RGBA{R: 204, G: 229, B: 255, A: 255}
	lines, _ := e.Lines(0)
	l := lines[0]

	mutated, err := e.Commit(0, l, "Replaced line")
	if err != nil {
		t.Fatal(err)
	}
	if !mutated {
		t.Error("commit did not report a mutation")
	}
	if len(d.Draws) != 1 || len(d.Texts) != 1 {
		t.Fatalf("draws=%d texts=%d", len(d.Draws), len(d.Texts))
	}

	draw := d.Draws[0]
	wantCover := l.BBox.Inset(-1)
	if draw.Rect != wantCover {
		t.Errorf("cover rect = %v, want %v", draw.Rect, wantCover)
	}
	if draw.Fill.R != float64(204)/255 || draw.Fill.B != 1.0 {
		t.Errorf("cover fill = %+v, want sampled background", draw.Fill)
	}

	ins := d.Texts[0]
	if ins.Text != "Replaced line" {
		t.Errorf("inserted %q", ins.Text)
	}
	if ins.At.X != l.FirstCharX || ins.At.Y != l.Origin.Y {
		t.Errorf("insert at %v, want (%v, %v)", ins.At, l.FirstCharX, l.Origin.Y)
	}
	if !ins.Opts.FillOnly {
		t.Error("replacement text not fill-only")
	}
	if ins.Opts.FontSize != l.Size || ins.Opts.Color != l.Color {
		t.Errorf("style not preserved: %+v", ins.Opts)
	}
}

func TestCommitOrderCoverBeforeText(t *testing.T) {
	e, d := layoutDoc(t)
	lines, _ := e.Lines(0)
	if _, err := e.Commit(0, lines[0], "x y z"); err != nil {
		t.Fatal(err)
	}
	// The fake records each op; with one of each the sequencing check
	// is that the draw exists by the time the text lands.
	if len(d.Draws) != 1 {
		t.Fatal("cover rect missing")
	}
}

func TestCommitInvalidatesLineCache(t *testing.T) {
	e, d := layoutDoc(t)
	lines, _ := e.Lines(0)

	// Simulate the engine reporting the new content after the edit.
	d.Layout[0] = []pdf.TextLine{
		lineOf(glyphs("Edited", 72, 100, 5, 0), "Helvetica", 12),
	}
	if _, err := e.Commit(0, lines[0], "Edited"); err != nil {
		t.Fatal(err)
	}
	fresh, err := e.Lines(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh) != 1 || fresh[0].Text != "Edited" {
		t.Errorf("stale cache after commit: %+v", fresh)
	}
}

func TestCommitInsertFailureStillMarksMutated(t *testing.T) {
	e, d := layoutDoc(t)
	d.FailInsertText = true
	lines, _ := e.Lines(0)

	// Simulate what extraction would now report: the cover rectangle
	// hides the first line, the second survives.
	d.Layout[0] = d.Layout[0][1:]

	mutated, err := e.Commit(0, lines[0], "never lands")
	if err == nil {
		t.Fatal("expected insert failure")
	}
	// The cover rect landed before the insert failed, so the page
	// content changed even though the commit as a whole errored.
	if !mutated {
		t.Error("partial commit not reported as a mutation")
	}
	if len(d.Draws) != 1 || len(d.Texts) != 0 {
		t.Fatalf("draws=%d texts=%d", len(d.Draws), len(d.Texts))
	}

	// The line cache must be dropped so the partial state is re-read.
	fresh, err := e.Lines(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh) != 1 || fresh[0].Text != "Second" {
		t.Errorf("stale line cache after failed insert: %+v", fresh)
	}
}

func TestCommitSamplingFailureFallsBackWhite(t *testing.T) {
	e, d := layoutDoc(t)
	d.FailRenderRegion = true
	lines, _ := e.Lines(0)

	if _, err := e.Commit(0, lines[0], "changed"); err != nil {
		t.Fatal(err)
	}
	want := pdf.Color{R: 1, G: 1, B: 1}
	if d.Draws[0].Fill != want {
		t.Errorf("fill = %+v, want white fallback", d.Draws[0].Fill)
	}
}

func TestSampleStripClampedToPage(t *testing.T) {
	e, d := layoutDoc(t)
	// Line at the very top of the page; the strip above the bbox would
	// start at a negative y without clamping.
	top := lineOf(glyphs("header", 72, 1, 5, 0), "Helvetica", 12)
	d.Layout[0] = []pdf.TextLine{top}
	e.InvalidatePage(0)
	lines, _ := e.Lines(0)

	if _, err := e.Commit(0, lines[0], "banner"); err != nil {
		t.Fatal(err)
	}
	if len(d.Draws) != 1 {
		t.Fatal("commit did not cover")
	}
}
