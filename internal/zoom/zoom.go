// Package zoom holds the viewer's zoom state machine.
//
// Three zoom values exist at any moment: the committed zoom the page
// layout and render cache are built at, the visual zoom the widget
// paints at (cached bitmaps stretched by visual/committed), and the
// target zoom the user is heading for. Wheel input moves the target;
// an animation eases the visual value toward it; once input goes quiet
// the target is committed and the layout rebuilt.
//
// The controller is step driven: it owns no timers. The widget calls
// Tick on its frame timer (16 ms) and passes the clock in, which keeps
// every transition testable without sleeping.
package zoom

import (
	"math"
	"time"
)

const (
	// MinZoom and MaxZoom clamp every zoom value.
	MinZoom = 0.1
	MaxZoom = 8.0

	// WheelStep is the multiplicative zoom change per wheel detent.
	WheelStep = 1.07

	// PixelFactor converts trackpad pixel deltas to a zoom multiplier,
	// 1 + PixelFactor*pixels.
	PixelFactor = 0.004

	// lerpFactor is the fraction of the remaining distance the visual
	// zoom covers per frame.
	lerpFactor = 0.22

	// stopEpsilon ends the animation; below it the visual value snaps
	// to the target.
	stopEpsilon = 0.0005

	// WheelDebounce is the quiet period after the last wheel event
	// before the target commits. SetDebounce is the shorter period for
	// programmatic changes (toolbar buttons, fit-to-width).
	WheelDebounce = 150 * time.Millisecond
	SetDebounce   = 100 * time.Millisecond

	// SettleWindow extends the interactive state past the commit so the
	// cache keeps substituting nearest-resolution bitmaps while the
	// fresh renders arrive.
	SettleWindow = 250 * time.Millisecond
)

// Clamp bounds a zoom factor to the supported range.
func Clamp(z float64) float64 {
	return math.Min(MaxZoom, math.Max(MinZoom, z))
}

// AnchorScroll returns the scroll offset that keeps the content point
// under the viewport position anchor stationary across a zoom change.
func AnchorScroll(scroll, anchor, oldZoom, newZoom float64) float64 {
	if oldZoom == 0 {
		return scroll
	}
	return math.Max(0, (scroll+anchor)*(newZoom/oldZoom)-anchor)
}

// TickResult reports what changed during one frame step.
type TickResult struct {
	// VisualChanged means the visual zoom moved and the widget should
	// repaint with the new stretch factor.
	VisualChanged bool
	// Committed means the target became the committed zoom this frame.
	// The widget must rebuild its layout, re-anchor the scroll offset
	// and schedule fresh renders.
	Committed bool
}

// Controller is the zoom state machine. Not safe for concurrent use;
// it belongs to the UI goroutine.
type Controller struct {
	committed float64
	visual    float64
	target    float64

	animating   bool
	pendingKind gestureKind
	lastGesture time.Time
	lastCommit  time.Time
}

type gestureKind int

const (
	gestureNone gestureKind = iota
	gestureWheel
	gestureSet
)

// NewController starts at 100%.
func NewController() *Controller {
	return &Controller{committed: 1.0, visual: 1.0, target: 1.0}
}

// Committed returns the zoom the layout and cache keys are built at.
func (c *Controller) Committed() float64 { return c.committed }

// Visual returns the zoom the widget should paint at this frame.
func (c *Controller) Visual() float64 { return c.visual }

// Target returns the zoom the controller is heading for.
func (c *Controller) Target() float64 { return c.target }

// VisualScale is the stretch factor applied to bitmaps rendered at the
// committed zoom.
func (c *Controller) VisualScale() float64 {
	if c.committed == 0 {
		return 1.0
	}
	return c.visual / c.committed
}

// WheelTicks applies whole wheel detents (positive zooms in) at the
// given time.
func (c *Controller) WheelTicks(ticks float64, now time.Time) {
	c.retarget(c.target*math.Pow(WheelStep, ticks), gestureWheel, now)
}

// WheelPixels applies a trackpad pixel delta (positive zooms in).
func (c *Controller) WheelPixels(px float64, now time.Time) {
	factor := 1 + PixelFactor*px
	if factor <= 0 {
		return
	}
	c.retarget(c.target*factor, gestureWheel, now)
}

// SetZoom requests an absolute zoom, as from a toolbar control. It uses
// the shorter debounce since no further events are expected.
func (c *Controller) SetZoom(z float64, now time.Time) {
	c.retarget(z, gestureSet, now)
}

func (c *Controller) retarget(z float64, kind gestureKind, now time.Time) {
	c.target = Clamp(z)
	c.pendingKind = kind
	c.lastGesture = now
	if math.Abs(c.target-c.visual) > stopEpsilon {
		c.animating = true
	}
}

// Tick advances one animation frame and commits the target once input
// has been quiet for the debounce period.
func (c *Controller) Tick(now time.Time) TickResult {
	var res TickResult

	if c.animating {
		diff := c.target - c.visual
		if math.Abs(diff) < stopEpsilon {
			c.visual = c.target
			c.animating = false
		} else {
			c.visual += diff * lerpFactor
		}
		res.VisualChanged = true
	}

	if c.pendingKind != gestureNone && now.Sub(c.lastGesture) >= c.debounce() {
		res.Committed = c.commit(now) || res.Committed
	}
	return res
}

func (c *Controller) debounce() time.Duration {
	if c.pendingKind == gestureSet {
		return SetDebounce
	}
	return WheelDebounce
}

// commit rounds the target to the cache-key precision and makes it the
// committed zoom. Rounding here keeps the layout zoom and the cache key
// derived from it identical.
func (c *Controller) commit(now time.Time) bool {
	c.pendingKind = gestureNone
	z := math.Round(c.target*1000) / 1000
	if z == c.committed {
		// Finish any residual animation toward the unchanged value.
		return false
	}
	c.committed = z
	c.target = z
	c.visual = z
	c.animating = false
	c.lastCommit = now
	return true
}

// Interactive reports whether the viewer is mid-gesture or inside the
// settle window after a commit. The cache uses this to allow
// nearest-resolution substitutes.
func (c *Controller) Interactive(now time.Time) bool {
	if c.animating || c.pendingKind != gestureNone {
		return true
	}
	return !c.lastCommit.IsZero() && now.Sub(c.lastCommit) < SettleWindow
}
