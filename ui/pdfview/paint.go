package pdfview

import (
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"time"

	xdraw "golang.org/x/image/draw"

	"pdf-studio/internal/render"
	"pdf-studio/pkg/colorutil"
	"pdf-studio/pkg/geometry"
)

const (
	handleHalf       = 4
	highlightAlpha   = 90
	cropAlpha        = 40
	hoverAlpha       = 50
	currentHitAlpha  = 120
	selectionOutline = 1
)

// viewXform maps content coordinates into the viewport, applying the
// scroll offset and the visual zoom stretch around the gesture anchor.
type viewXform struct {
	scrollY float64
	scale   float64
	anchorX float64
	anchorY float64
}

func (x viewXform) point(cx, cy float64) (float64, float64) {
	vx := x.anchorX + (cx-x.anchorX)*x.scale
	vy := x.anchorY + (cy-x.scrollY-x.anchorY)*x.scale
	return vx, vy
}

func (x viewXform) rect(r geometry.Rect) image.Rectangle {
	x0, y0 := x.point(r.X, r.Y)
	x1, y1 := x.point(r.MaxX(), r.MaxY())
	return image.Rect(int(x0), int(y0), int(x1), int(y1))
}

// draw paints the whole viewport. It runs on Fyne's render goroutine.
func (v *View) draw(w, h int) image.Image {
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(out, out.Bounds(), image.NewUniform(colorutil.Background), image.Point{}, draw.Src)

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.stack.PageCount() == 0 {
		return out
	}

	now := time.Now()
	xf := viewXform{
		scrollY: v.scrollY,
		scale:   v.ctrl.VisualScale(),
		anchorX: float64(w) / 2,
		anchorY: float64(h) / 2,
	}
	if v.gesture {
		xf.anchorY = v.gestureAnchor
	}
	z := v.ctrl.Committed()
	interactive := v.ctrl.Interactive(now)

	start, end := v.stack.VisibleRange(int(v.scrollY), h)
	for p := start; p < end; p++ {
		origin := v.PageOrigin(p)
		pageRect := xf.rect(geometry.Rect{
			X:      origin.X,
			Y:      origin.Y,
			Width:  float64(v.stack.WidthOf(p)),
			Height: float64(v.stack.HeightOf(p)),
		})
		if !pageRect.Overlaps(out.Bounds()) {
			continue
		}

		key := render.NewKey(p, z)
		img, _ := v.cache.Lookup(key, pageRect.Dx(), pageRect.Dy(), interactive)
		if img == nil {
			fillRect(out, pageRect, colorutil.PageBlank)
		} else if img.Bounds().Dx() == pageRect.Dx() && img.Bounds().Dy() == pageRect.Dy() {
			draw.Draw(out, pageRect, img, img.Bounds().Min, draw.Src)
		} else {
			xdraw.ApproxBiLinear.Scale(out, pageRect, img, img.Bounds(), xdraw.Src, nil)
		}
		strokeRect(out, pageRect, colorutil.PageBorder, 1)

		v.paintStamps(out, xf, p, origin, z)
		v.paintHighlights(out, xf, p, origin, z)
	}

	v.paintSelection(out, xf, z)
	v.paintHover(out, xf, z)
	v.paintCrop(out, xf)

	return out
}

func (v *View) paintStamps(out *image.RGBA, xf viewXform, page int, origin geometry.Point2D, z float64) {
	if v.annots == nil {
		return
	}
	for _, s := range v.annots.StampsOn(page) {
		rect := s.Rect
		if v.machine != nil {
			if pr, pp, ok := v.machine.DragPreview(); ok && pp == page {
				if sel := v.machine.Selected(); sel.Kind == TargetStamp && sel.Stamp == s {
					rect = pr
				}
			}
		}
		dst := xf.rect(rect.ToScreen(origin.X, origin.Y, z))
		if img := v.stampImage(s.Path); img != nil {
			xdraw.ApproxBiLinear.Scale(out, dst, img, img.Bounds(), xdraw.Over, nil)
		} else {
			fillRect(out, dst, colorutil.PageBlank)
			strokeRect(out, dst, colorutil.PageBorder, 1)
		}
		if s.Selected {
			strokeRect(out, dst, colorutil.Selection, selectionOutline)
			paintHandles(out, dst)
		}
	}
}

func (v *View) paintHighlights(out *image.RGBA, xf viewXform, page int, origin geometry.Point2D, z float64) {
	for i, hl := range v.search {
		if hl.Page != page {
			continue
		}
		dst := xf.rect(hl.Rect.ToScreen(origin.X, origin.Y, z))
		if i == v.searchCur {
			blendRect(out, dst, colorutil.SearchCurrent, currentHitAlpha)
		} else {
			blendRect(out, dst, colorutil.SearchMatch, highlightAlpha)
		}
	}
}

func (v *View) paintSelection(out *image.RGBA, xf viewXform, z float64) {
	if v.machine == nil {
		return
	}
	sel := v.machine.Selected()
	if sel.Kind != TargetAnnotation {
		return
	}
	rect := sel.Annot.Rect()
	dragging := false
	if pr, pp, ok := v.machine.DragPreview(); ok && pp == sel.Page {
		rect = pr
		dragging = true
	}
	origin := v.PageOrigin(sel.Page)
	dst := xf.rect(rect.ToScreen(origin.X, origin.Y, z))
	if dragging {
		// The annotation's rendered snapshot follows the pointer so the
		// drag shows content, not just a frame.
		if img, ok := v.machine.DragAppearance(); ok {
			xdraw.ApproxBiLinear.Scale(out, dst, img, img.Bounds(), xdraw.Over, nil)
		}
	}
	strokeRect(out, dst, colorutil.Selection, selectionOutline)
	paintHandles(out, dst)
}

func (v *View) paintHover(out *image.RGBA, xf viewXform, z float64) {
	if v.machine == nil {
		return
	}
	page, line, ok := v.machine.HoveredLine()
	if !ok {
		return
	}
	origin := v.PageOrigin(page)
	dst := xf.rect(line.BBox.ToScreen(origin.X, origin.Y, z))
	blendRect(out, dst, colorutil.Hover, hoverAlpha)
	strokeRect(out, dst, colorutil.Hover, 1)
}

func (v *View) paintCrop(out *image.RGBA, xf viewXform) {
	if v.machine == nil {
		return
	}
	r, ok := v.machine.CropRect()
	if !ok {
		return
	}
	dst := xf.rect(r)
	blendRect(out, dst, colorutil.Selection, cropAlpha)
	strokeRect(out, dst, colorutil.Selection, 1)
}

// stampImage loads and caches a stamp's source image. Unreadable files
// paint as a blank box instead of failing the frame.
func (v *View) stampImage(path string) image.Image {
	if img, ok := v.stampCache[path]; ok {
		return img
	}
	f, err := os.Open(path)
	if err != nil {
		log.Printf("pdfview: stamp image %s: %v", path, err)
		v.stampCache[path] = nil
		return nil
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		log.Printf("pdfview: decode stamp %s: %v", path, err)
		img = nil
	}
	v.stampCache[path] = img
	return img
}

func paintHandles(out *image.RGBA, r image.Rectangle) {
	for _, pt := range [4]image.Point{
		{r.Min.X, r.Min.Y}, {r.Max.X, r.Min.Y},
		{r.Max.X, r.Max.Y}, {r.Min.X, r.Max.Y},
	} {
		handle := image.Rect(pt.X-handleHalf, pt.Y-handleHalf, pt.X+handleHalf, pt.Y+handleHalf)
		fillRect(out, handle, colorutil.PageBlank)
		strokeRect(out, handle, colorutil.Selection, 1)
	}
}

func fillRect(out *image.RGBA, r image.Rectangle, c color.NRGBA) {
	draw.Draw(out, r.Intersect(out.Bounds()), image.NewUniform(c), image.Point{}, draw.Src)
}

func strokeRect(out *image.RGBA, r image.Rectangle, c color.NRGBA, width int) {
	top := image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width)
	bottom := image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y)
	left := image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y)
	right := image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y)
	for _, side := range [4]image.Rectangle{top, bottom, left, right} {
		fillRect(out, side, c)
	}
}

// blendRect mixes c over the existing pixels at the given alpha,
// keeping the page content visible under highlights.
func blendRect(out *image.RGBA, r image.Rectangle, c color.NRGBA, alpha uint32) {
	r = r.Intersect(out.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			i := out.PixOffset(x, y)
			px := out.Pix[i : i+4 : i+4]
			mixed := colorutil.Mix([3]uint8{px[0], px[1], px[2]}, c, alpha)
			px[0], px[1], px[2] = mixed[0], mixed[1], mixed[2]
		}
	}
}
