package fontres

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Catalog is a lazily populated index of the font files installed in
// one directory. The directory is scanned once, on the first lookup or
// an explicit Load, and lookups afterwards are map hits. Font file
// names on disk vary in case between systems ("GARA.TTF" vs
// "gara.ttf"), so the index is keyed case-insensitively.
type Catalog struct {
	dir string

	mu     sync.Mutex
	files  map[string]string // lowercase file name -> full path
	loaded bool
}

// NewCatalog indexes the given font directory. Nothing is read until
// Load or the first Lookup.
func NewCatalog(dir string) *Catalog {
	return &Catalog{dir: dir}
}

// Load scans the directory now. Repeat calls are no-ops. A missing or
// unreadable directory still marks the catalog loaded, with an empty
// index, so every lookup cleanly misses.
func (c *Catalog) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked()
}

func (c *Catalog) loadLocked() error {
	if c.loaded {
		return nil
	}
	c.files = make(map[string]string)
	c.loaded = true

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch strings.ToLower(filepath.Ext(name)) {
		case ".ttf", ".otf", ".ttc":
			c.files[strings.ToLower(name)] = filepath.Join(c.dir, name)
		}
	}
	return nil
}

// Loaded reports whether the directory scan has run.
func (c *Catalog) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// Lookup finds a font file by name, case-insensitively, loading the
// catalog on first use. The returned path is the on-disk spelling.
func (c *Catalog) Lookup(file string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		c.loadLocked()
	}
	path, ok := c.files[strings.ToLower(file)]
	return path, ok
}
