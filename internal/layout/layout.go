// Package layout computes the vertical stacking of document pages at a
// given zoom and answers position queries over it.
//
// Documents can have thousands of pages, so the position queries are
// binary searches over the offset table rather than linear scans.
package layout

import (
	"math"
	"sort"

	"pdf-studio/pkg/geometry"
)

const (
	// PageGap is the vertical gap between pages, and also the top gap
	// before the first page, in screen pixels.
	PageGap = 16

	// visibleBuffer extends the visible range above and below the
	// viewport so pages are rendered just before they scroll in.
	visibleBuffer = 500

	// minSideMargin is the horizontal margin kept when a page is wider
	// than the widget.
	minSideMargin = 10
)

// Stack holds the computed page geometry for one zoom level.
type Stack struct {
	pageSizes []geometry.Point2D // original page sizes in document units
	offsets   []int              // y pixel of each page top at the committed zoom
	heights   []int              // rendered height of each page
	maxWidth  int                // widest rendered page
	total     int                // total content height including gaps
	zoom      float64
}

// NewStack creates an empty stack. Call Recompute before querying.
func NewStack() *Stack {
	return &Stack{zoom: 1.0}
}

// Recompute rebuilds offsets and heights for the given page sizes and
// zoom. Offsets are strictly increasing as long as every page has a
// positive height.
func (s *Stack) Recompute(pageSizes []geometry.Point2D, zoom float64) {
	s.pageSizes = pageSizes
	s.zoom = zoom
	s.offsets = s.offsets[:0]
	s.heights = s.heights[:0]
	s.maxWidth = 0

	y := PageGap
	for _, size := range pageSizes {
		w := int(math.Round(size.X * zoom))
		h := int(math.Round(size.Y * zoom))
		s.offsets = append(s.offsets, y)
		s.heights = append(s.heights, h)
		y += h + PageGap
		if w > s.maxWidth {
			s.maxWidth = w
		}
	}
	s.total = y
}

// PageCount returns the number of laid-out pages.
func (s *Stack) PageCount() int { return len(s.offsets) }

// Zoom returns the zoom the stack was computed at.
func (s *Stack) Zoom() float64 { return s.zoom }

// TotalHeight returns the full content height including gaps.
func (s *Stack) TotalHeight() int { return s.total }

// MaxWidth returns the width of the widest page at the current zoom.
func (s *Stack) MaxWidth() int { return s.maxWidth }

// OffsetOf returns the y position of a page's top edge, or 0 for an
// out-of-range index.
func (s *Stack) OffsetOf(page int) int {
	if page < 0 || page >= len(s.offsets) {
		return 0
	}
	return s.offsets[page]
}

// HeightOf returns a page's rendered height, or 0 for an out-of-range
// index.
func (s *Stack) HeightOf(page int) int {
	if page < 0 || page >= len(s.heights) {
		return 0
	}
	return s.heights[page]
}

// WidthOf returns a page's rendered width at the current zoom.
func (s *Stack) WidthOf(page int) int {
	if page < 0 || page >= len(s.pageSizes) {
		return 0
	}
	return int(math.Round(s.pageSizes[page].X * s.zoom))
}

// PageSize returns a page's original size in document units.
func (s *Stack) PageSize(page int) geometry.Point2D {
	if page < 0 || page >= len(s.pageSizes) {
		return geometry.Point2D{}
	}
	return s.pageSizes[page]
}

// PageAtY returns the index of the page containing (or nearest above)
// the given y position. Upper-bound binary search minus one, clamped to
// the valid range.
func (s *Stack) PageAtY(y int) int {
	n := len(s.offsets)
	if n == 0 {
		return 0
	}
	idx := sort.Search(n, func(i int) bool { return s.offsets[i] > y }) - 1
	if idx < 0 {
		return 0
	}
	if idx >= n {
		return n - 1
	}
	return idx
}

// VisibleRange returns [start, end) of the pages intersecting the
// viewport plus a pre-render buffer on both sides.
func (s *Stack) VisibleRange(viewportTop, viewportHeight int) (int, int) {
	n := len(s.offsets)
	if n == 0 {
		return 0, 0
	}
	top := viewportTop - visibleBuffer
	bottom := viewportTop + viewportHeight + visibleBuffer

	start := sort.Search(n, func(i int) bool { return s.offsets[i] > top }) - 1
	if start < 0 {
		start = 0
	}
	end := sort.Search(n, func(i int) bool { return s.offsets[i] > bottom })
	if end > n {
		end = n
	}
	return start, end
}

// XOffset returns the x position that centres a page horizontally in a
// widget of the given width, with a minimum margin when the page is
// wider than the widget.
func (s *Stack) XOffset(page, widgetWidth int) int {
	pw := s.WidthOf(page)
	if pw >= widgetWidth-2*minSideMargin {
		return minSideMargin
	}
	return (widgetWidth - pw) / 2
}
