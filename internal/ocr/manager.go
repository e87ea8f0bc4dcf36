package ocr

import (
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"pdf-studio/internal/pdf"
)

// RenderScale rasterizes pages at 3x for recognition. Body text at
// screen resolution is too small for reliable OCR.
const RenderScale = 3.0

// ErrBusy is returned by Start while a previous run is still going.
var ErrBusy = errors.New("ocr: a run is already in progress")

// PageText is the recognized (or extracted) text of one page.
type PageText struct {
	Page int
	Text string
}

// Callbacks receive run updates. All callbacks fire on the worker
// goroutine; UI code must marshal back to its own thread. Any callback
// may be nil.
type Callbacks struct {
	// Progress fires before each page with 1-based position.
	Progress func(page, total int)
	// PageDone fires after each page with its text, empty on failure.
	PageDone func(page int, text string)
	// Done fires once at the end, also after a cancelled run, with the
	// total character count and the per-page results so far.
	Done func(totalChars int, pages []PageText)
	// Error fires instead of Done when the run cannot start at all.
	Error func(err error)
}

type recognizer interface {
	Recognize(image.Image) (string, error)
	Close() error
}

type pageSource interface {
	PageCount() int
	Text(page int) (string, error)
	Render(page int, scale float64) (image.Image, error)
	Close() error
}

// Manager runs at most one background OCR pass at a time. Each run
// opens its own read-only document handle from a RenderSpec, so the
// live document stays untouched while recognition is going.
type Manager struct {
	open      func(pdf.RenderSpec) (pageSource, error)
	newEngine func(Language) (recognizer, error)

	mu      sync.Mutex
	running bool
	done    chan struct{}
	cancel  atomic.Bool
}

// NewManager creates a manager backed by the fitz render handle and a
// Tesseract engine.
func NewManager() *Manager {
	return newManager(
		func(spec pdf.RenderSpec) (pageSource, error) { return spec.Open() },
		func(lang Language) (recognizer, error) { return NewEngine(lang) },
	)
}

func newManager(
	open func(pdf.RenderSpec) (pageSource, error),
	newEngine func(Language) (recognizer, error),
) *Manager {
	return &Manager{open: open, newEngine: newEngine}
}

// Busy reports whether a run is outstanding.
func (m *Manager) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Cancel asks the current run to stop after the page in flight. The
// run still delivers Done with the pages finished so far.
func (m *Manager) Cancel() {
	m.cancel.Store(true)
}

// Wait blocks until the current run finishes. Returns immediately when
// nothing is running.
func (m *Manager) Wait() {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Start begins a background run over every page of the spec. It
// returns ErrBusy instead of queueing when a run is outstanding.
func (m *Manager) Start(spec pdf.RenderSpec, lang Language, cb Callbacks) error {
	if !spec.Valid() {
		return fmt.Errorf("ocr: no document to recognize")
	}

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrBusy
	}
	m.running = true
	m.cancel.Store(false)
	done := make(chan struct{})
	m.done = done
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			m.running = false
			m.mu.Unlock()
			close(done)
		}()
		m.run(spec, lang, cb)
	}()
	return nil
}

func (m *Manager) run(spec pdf.RenderSpec, lang Language, cb Callbacks) {
	src, err := m.open(spec)
	if err != nil {
		if cb.Error != nil {
			cb.Error(err)
		}
		return
	}
	defer src.Close()

	eng, err := m.newEngine(lang)
	if err != nil {
		if cb.Error != nil {
			cb.Error(err)
		}
		return
	}
	defer eng.Close()

	total := src.PageCount()
	var results []PageText
	chars := 0

	for i := 0; i < total; i++ {
		if m.cancel.Load() {
			break
		}
		if cb.Progress != nil {
			cb.Progress(i+1, total)
		}

		// Pages with an extractable text layer skip recognition.
		if existing, err := src.Text(i); err == nil {
			if t := strings.TrimSpace(existing); t != "" {
				results = append(results, PageText{Page: i, Text: t})
				chars += utf8.RuneCountInString(t)
				if cb.PageDone != nil {
					cb.PageDone(i, t)
				}
				continue
			}
		}

		// A failed page yields empty text; the run keeps going.
		text := ""
		if img, err := src.Render(i, RenderScale); err == nil {
			if got, err := eng.Recognize(img); err == nil {
				text = got
			}
		}
		results = append(results, PageText{Page: i, Text: text})
		chars += utf8.RuneCountInString(text)
		if cb.PageDone != nil {
			cb.PageDone(i, text)
		}
	}

	if cb.Done != nil {
		cb.Done(chars, results)
	}
}
