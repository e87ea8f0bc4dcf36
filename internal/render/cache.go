// Package render provides the page rasterization cache and the
// background render pipeline.
//
// Two LRU tiers hold finished page images: a small high-resolution tier
// (expensive renders at the exact committed zoom) and a larger
// low-resolution tier (fast preview passes). Keys combine page index
// and zoom rounded to three decimals so float noise cannot split
// entries. Cache state is only ever touched by the owning goroutine;
// results cross from workers via the pipeline's channel.
package render

import (
	"container/list"
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
)

const (
	// HighResCapacity bounds the high-resolution tier. At zoom 1.0 and
	// device ratio 2.0 thirty pages is roughly 150-450 MB.
	HighResCapacity = 30

	// LowResCapacity bounds the cheap preview tier.
	LowResCapacity = 150
)

// Key identifies one rendered page image.
type Key struct {
	Page int
	Zoom float64 // rounded to 3 decimals, see RoundZoom
}

// RoundZoom normalizes a zoom factor for use in cache keys.
func RoundZoom(z float64) float64 {
	return math.Round(z*1000) / 1000
}

// NewKey builds a cache key with normalized zoom.
func NewKey(page int, zoom float64) Key {
	return Key{Page: page, Zoom: RoundZoom(zoom)}
}

type entry struct {
	key Key
	img image.Image
}

// tier is a strict LRU over Key. Most recently used entries sit at the
// front of the list; eviction pops from the back.
type tier struct {
	capacity int
	order    *list.List
	items    map[Key]*list.Element
}

func newTier(capacity int) *tier {
	return &tier{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[Key]*list.Element),
	}
}

func (t *tier) get(k Key) (image.Image, bool) {
	el, ok := t.items[k]
	if !ok {
		return nil, false
	}
	t.order.MoveToFront(el)
	return el.Value.(entry).img, true
}

func (t *tier) put(k Key, img image.Image) {
	if el, ok := t.items[k]; ok {
		el.Value = entry{key: k, img: img}
		t.order.MoveToFront(el)
		return
	}
	t.items[k] = t.order.PushFront(entry{key: k, img: img})
	for t.order.Len() > t.capacity {
		oldest := t.order.Back()
		t.order.Remove(oldest)
		delete(t.items, oldest.Value.(entry).key)
	}
}

func (t *tier) remove(k Key) {
	if el, ok := t.items[k]; ok {
		t.order.Remove(el)
		delete(t.items, k)
	}
}

func (t *tier) removePage(page int) {
	for el := t.order.Front(); el != nil; {
		next := el.Next()
		if e := el.Value.(entry); e.key.Page == page {
			t.order.Remove(el)
			delete(t.items, e.key)
		}
		el = next
	}
}

func (t *tier) clear() {
	t.order.Init()
	t.items = make(map[Key]*list.Element)
}

func (t *tier) len() int { return t.order.Len() }

// Cache is the two-tier page image cache plus the pending-render set
// that suppresses duplicate scheduling.
type Cache struct {
	high    *tier
	low     *tier
	pending map[Key]struct{}
}

// NewCache creates a cache with the standard tier capacities.
func NewCache() *Cache {
	return &Cache{
		high:    newTier(HighResCapacity),
		low:     newTier(LowResCapacity),
		pending: make(map[Key]struct{}),
	}
}

// Lookup returns the best available image for a key scaled to the
// target size. The second return is true only for an exact high-res
// hit. A low-res preview is substituted when present; while interactive
// is set (an active zoom gesture or its settle window) the nearest
// other-zoom render of the page is substituted as a last resort so the
// page never flashes blank mid-gesture.
func (c *Cache) Lookup(k Key, targetW, targetH int, interactive bool) (image.Image, bool) {
	if img, ok := c.high.get(k); ok {
		return img, true
	}
	if img, ok := c.low.get(k); ok {
		return scaleTo(img, targetW, targetH), false
	}
	if interactive {
		if img, ok := c.nearestForPage(k); ok {
			return scaleTo(img, targetW, targetH), false
		}
	}
	return nil, false
}

// nearestForPage finds the high-res entry for the page whose zoom is
// closest to the requested one.
func (c *Cache) nearestForPage(k Key) (image.Image, bool) {
	var (
		best     image.Image
		bestDiff = math.MaxFloat64
	)
	for key, el := range c.high.items {
		if key.Page != k.Page {
			continue
		}
		diff := math.Abs(key.Zoom - k.Zoom)
		if diff < bestDiff {
			bestDiff = diff
			best = el.Value.(entry).img
		}
	}
	return best, best != nil
}

// PutHigh stores a finished high-resolution render. The low-res preview
// for the same key becomes redundant and is dropped.
func (c *Cache) PutHigh(k Key, img image.Image) {
	c.high.put(k, img)
	c.low.remove(k)
}

// PutLow stores a preview render. Low entries never displace a high
// entry: the low tier is consulted only on a high-tier miss.
func (c *Cache) PutLow(k Key, img image.Image) {
	c.low.put(k, img)
}

// InvalidatePage drops both tiers' entries for a page after its content
// changes.
func (c *Cache) InvalidatePage(page int) {
	c.high.removePage(page)
	c.low.removePage(page)
}

// InvalidateAll clears both tiers, used after structural document
// changes.
func (c *Cache) InvalidateAll() {
	c.high.clear()
	c.low.clear()
}

// MarkPending records that a render for the key has been scheduled.
// It returns false when one is already in flight.
func (c *Cache) MarkPending(k Key) bool {
	if _, ok := c.pending[k]; ok {
		return false
	}
	c.pending[k] = struct{}{}
	return true
}

// Pending reports whether a render for the key is in flight.
func (c *Cache) Pending(k Key) bool {
	_, ok := c.pending[k]
	return ok
}

// ClearPending removes a key from the pending set, called when its
// high-res result arrives or the key goes stale.
func (c *Cache) ClearPending(k Key) {
	delete(c.pending, k)
}

// ClearAllPending abandons all in-flight bookkeeping; any results that
// still arrive fail the staleness check and are dropped.
func (c *Cache) ClearAllPending() {
	c.pending = make(map[Key]struct{})
}

// HighLen returns the number of high-tier entries.
func (c *Cache) HighLen() int { return c.high.len() }

// LowLen returns the number of low-tier entries.
func (c *Cache) LowLen() int { return c.low.len() }

// HasHigh reports an exact high-tier hit without touching LRU order.
func (c *Cache) HasHigh(k Key) bool {
	_, ok := c.high.items[k]
	return ok
}

// scaleTo resizes an image to the target size with an approximate
// bilinear kernel, cheap enough for every paint during a gesture.
func scaleTo(img image.Image, w, h int) image.Image {
	if w <= 0 || h <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}
