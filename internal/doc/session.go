// Package doc provides document session management, snapshots, and events.
package doc

import (
	"fmt"
	"os"
	"sync"

	"pdf-studio/internal/pdf"
)

// EventType identifies different session events.
type EventType int

const (
	EventDocumentLoaded EventType = iota
	EventDocumentSaved
	EventModified
	EventContentChanged
	EventDocumentClosed
)

// EventListener is called when an event occurs.
type EventListener func(data interface{})

// Session owns the live document handle and its render snapshot.
//
// The live handle is only ever used on the UI goroutine. Render workers
// get a RenderSpec built from the snapshot bytes, refreshed after every
// mutation, so they always rasterize the current state without touching
// the live handle.
type Session struct {
	mu sync.RWMutex

	doc      pdf.Document
	path     string
	snapshot []byte
	modified bool

	listeners map[EventType][]EventListener
}

// NewSession creates an empty session with no document loaded.
func NewSession() *Session {
	return &Session{listeners: make(map[EventType][]EventListener)}
}

// On registers an event listener for the specified event type.
func (s *Session) On(event EventType, listener EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
func (s *Session) Emit(event EventType, data interface{}) {
	s.mu.RLock()
	listeners := s.listeners[event]
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// Open loads a document from disk, replacing any current one.
func (s *Session) Open(path string) error {
	d, err := pdf.Open(path)
	if err != nil {
		return err
	}
	return s.adopt(d, path)
}

// Adopt installs an already-open document handle, used when a document
// arrives from memory or from tests.
func (s *Session) Adopt(d pdf.Document, path string) error {
	return s.adopt(d, path)
}

func (s *Session) adopt(d pdf.Document, path string) error {
	snap, err := d.Bytes()
	if err != nil {
		d.Close()
		return fmt.Errorf("doc: initial snapshot: %w", err)
	}

	s.mu.Lock()
	old := s.doc
	s.doc = d
	s.path = path
	s.snapshot = snap
	s.modified = false
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	s.Emit(EventDocumentLoaded, path)
	return nil
}

// Document returns the live handle, or nil when nothing is loaded.
func (s *Session) Document() pdf.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc
}

// Loaded reports whether a document is open.
func (s *Session) Loaded() bool {
	return s.Document() != nil
}

// Path returns the file the document was opened from, empty for
// in-memory documents.
func (s *Session) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// Modified reports unsaved changes.
func (s *Session) Modified() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modified
}

// RenderSpec returns the handle source for render workers, backed by
// the latest snapshot.
func (s *Session) RenderSpec() pdf.RenderSpec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return pdf.RenderSpec{Path: s.path, Bytes: s.snapshot}
}

// MarkMutated refreshes the snapshot after a document mutation and
// reports which pages changed. Listeners invalidate caches and trigger
// re-renders from the EventContentChanged payload (a []int of pages;
// empty means everything).
func (s *Session) MarkMutated(pages ...int) error {
	s.mu.RLock()
	d := s.doc
	s.mu.RUnlock()
	if d == nil {
		return pdf.ErrClosed
	}

	snap, err := d.Bytes()
	if err != nil {
		return fmt.Errorf("doc: snapshot after mutation: %w", err)
	}

	s.mu.Lock()
	s.snapshot = snap
	wasModified := s.modified
	s.modified = true
	s.mu.Unlock()

	s.Emit(EventContentChanged, pages)
	if !wasModified {
		s.Emit(EventModified, true)
	}
	return nil
}

// Save writes the current state back to the opened file.
func (s *Session) Save() error {
	s.mu.RLock()
	path := s.path
	s.mu.RUnlock()
	if path == "" {
		return fmt.Errorf("doc: no file path, use SaveAs")
	}
	return s.SaveAs(path)
}

// SaveAs serializes the current document state to a file and makes that
// file the session's path.
func (s *Session) SaveAs(path string) error {
	s.mu.RLock()
	d := s.doc
	s.mu.RUnlock()
	if d == nil {
		return pdf.ErrClosed
	}

	data, err := d.Bytes()
	if err != nil {
		return fmt.Errorf("doc: serialize for save: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("doc: write %s: %w", path, err)
	}

	s.mu.Lock()
	s.path = path
	s.snapshot = data
	s.modified = false
	s.mu.Unlock()

	s.Emit(EventDocumentSaved, path)
	s.Emit(EventModified, false)
	return nil
}

// Close releases the document. Safe when nothing is loaded.
func (s *Session) Close() error {
	s.mu.Lock()
	d := s.doc
	s.doc = nil
	s.path = ""
	s.snapshot = nil
	s.modified = false
	s.mu.Unlock()

	if d == nil {
		return nil
	}
	err := d.Close()
	s.Emit(EventDocumentClosed, nil)
	return err
}
