package ocr

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"pdf-studio/internal/pdf"
)

type fakeSource struct {
	pages    []string // extractable text per page, "" means scanned
	rendered []int
	closed   bool
	block    chan struct{} // when set, Render waits per page
}

func (f *fakeSource) PageCount() int { return len(f.pages) }

func (f *fakeSource) Text(page int) (string, error) { return f.pages[page], nil }

func (f *fakeSource) Render(page int, scale float64) (image.Image, error) {
	if f.block != nil {
		<-f.block
	}
	f.rendered = append(f.rendered, page)
	return image.NewGray(image.Rect(0, 0, 200, 200)), nil
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

type fakeRecognizer struct {
	text   string
	err    error
	calls  int
	closed bool
}

func (f *fakeRecognizer) Recognize(image.Image) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func (f *fakeRecognizer) Close() error {
	f.closed = true
	return nil
}

func managerFor(src *fakeSource, rec *fakeRecognizer) *Manager {
	return newManager(
		func(pdf.RenderSpec) (pageSource, error) { return src, nil },
		func(Language) (recognizer, error) { return rec, nil },
	)
}

// recorder collects callback activity behind a mutex so the test
// goroutine can inspect it after Wait.
type recorder struct {
	mu       sync.Mutex
	progress [][2]int
	pages    []PageText
	chars    int
	result   []PageText
	errs     []error
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		Progress: func(page, total int) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.progress = append(r.progress, [2]int{page, total})
		},
		PageDone: func(page int, text string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.pages = append(r.pages, PageText{Page: page, Text: text})
		},
		Done: func(chars int, pages []PageText) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.chars = chars
			r.result = pages
		},
		Error: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		},
	}
}

func spec() pdf.RenderSpec { return pdf.RenderSpec{Bytes: []byte("%PDF-fake")} }

func TestRunMixesExtractionAndRecognition(t *testing.T) {
	src := &fakeSource{pages: []string{"already here", "", "  \n "}}
	rec := &fakeRecognizer{text: "scanned text"}
	m := managerFor(src, rec)
	var r recorder

	if err := m.Start(spec(), English, r.callbacks()); err != nil {
		t.Fatal(err)
	}
	m.Wait()

	want := []PageText{
		{Page: 0, Text: "already here"},
		{Page: 1, Text: "scanned text"},
		{Page: 2, Text: "scanned text"},
	}
	if diff := cmp.Diff(want, r.result); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
	// Page 0 has a text layer and is never rendered; whitespace-only
	// extraction on page 2 does not count as a text layer.
	if diff := cmp.Diff([]int{1, 2}, src.rendered); diff != "" {
		t.Errorf("rendered pages (-want +got):\n%s", diff)
	}
	if r.chars != len("already here")+2*len("scanned text") {
		t.Errorf("total chars = %d", r.chars)
	}
	wantProgress := [][2]int{{1, 3}, {2, 3}, {3, 3}}
	if diff := cmp.Diff(wantProgress, r.progress); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}
	if !src.closed || !rec.closed {
		t.Error("handles not released")
	}
}

func TestStartRejectsWhileBusy(t *testing.T) {
	src := &fakeSource{pages: []string{""}, block: make(chan struct{})}
	rec := &fakeRecognizer{text: "x"}
	m := managerFor(src, rec)

	if err := m.Start(spec(), English, Callbacks{}); err != nil {
		t.Fatal(err)
	}
	if !m.Busy() {
		t.Error("manager not busy during run")
	}
	if err := m.Start(spec(), English, Callbacks{}); !errors.Is(err, ErrBusy) {
		t.Errorf("second start: %v, want ErrBusy", err)
	}

	close(src.block)
	m.Wait()
	if m.Busy() {
		t.Error("still busy after run")
	}

	// A finished manager accepts a new run.
	src.block = nil
	if err := m.Start(spec(), English, Callbacks{}); err != nil {
		t.Fatal(err)
	}
	m.Wait()
}

func TestCancelStopsEarlyButDelivers(t *testing.T) {
	pages := make([]string, 5)
	for i := range pages {
		pages[i] = fmt.Sprintf("page %d", i)
	}
	src := &fakeSource{pages: pages}
	m := managerFor(src, &fakeRecognizer{})
	var r recorder

	cb := r.callbacks()
	// Cancel from inside the second page's callback; the flag is
	// checked at the top of each iteration.
	cb.PageDone = func(page int, text string) {
		r.mu.Lock()
		r.pages = append(r.pages, PageText{Page: page, Text: text})
		r.mu.Unlock()
		if page == 1 {
			m.Cancel()
		}
	}

	if err := m.Start(spec(), English, cb); err != nil {
		t.Fatal(err)
	}
	m.Wait()

	if len(r.pages) != 2 {
		t.Errorf("pages done = %d, want 2", len(r.pages))
	}
	if len(r.result) != 2 {
		t.Errorf("done delivered %d pages, want the two finished", len(r.result))
	}
}

func TestOpenFailureReportsError(t *testing.T) {
	boom := errors.New("broken handle")
	m := newManager(
		func(pdf.RenderSpec) (pageSource, error) { return nil, boom },
		func(Language) (recognizer, error) { return &fakeRecognizer{}, nil },
	)
	var r recorder

	if err := m.Start(spec(), English, r.callbacks()); err != nil {
		t.Fatal(err)
	}
	m.Wait()

	if len(r.errs) != 1 || !errors.Is(r.errs[0], boom) {
		t.Errorf("errors = %v", r.errs)
	}
	if r.result != nil {
		t.Error("done fired after a failed open")
	}
	if m.Busy() {
		t.Error("stuck busy after failure")
	}
}

func TestEngineFailureReportsError(t *testing.T) {
	src := &fakeSource{pages: []string{""}}
	boom := errors.New("no traineddata")
	m := newManager(
		func(pdf.RenderSpec) (pageSource, error) { return src, nil },
		func(Language) (recognizer, error) { return nil, boom },
	)
	var r recorder

	if err := m.Start(spec(), KoreanEnglish, r.callbacks()); err != nil {
		t.Fatal(err)
	}
	m.Wait()

	if len(r.errs) != 1 {
		t.Fatalf("errors = %v", r.errs)
	}
	if !src.closed {
		t.Error("source leaked after engine failure")
	}
}

func TestRecognizeFailureYieldsEmptyPage(t *testing.T) {
	src := &fakeSource{pages: []string{""}}
	rec := &fakeRecognizer{err: errors.New("tesseract choked")}
	m := managerFor(src, rec)
	var r recorder

	if err := m.Start(spec(), English, r.callbacks()); err != nil {
		t.Fatal(err)
	}
	m.Wait()

	want := []PageText{{Page: 0, Text: ""}}
	if diff := cmp.Diff(want, r.result); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
	if r.chars != 0 {
		t.Errorf("chars = %d", r.chars)
	}
}

func TestStartRejectsEmptySpec(t *testing.T) {
	m := managerFor(&fakeSource{}, &fakeRecognizer{})
	if err := m.Start(pdf.RenderSpec{}, English, Callbacks{}); err == nil {
		t.Fatal("expected error for empty spec")
	}
}

func TestWaitWithoutRunReturns(t *testing.T) {
	m := managerFor(&fakeSource{}, &fakeRecognizer{})
	m.Wait()
}
