package geometry

// Document-space to screen-space conversion. A page is drawn at screen
// offset (offsetX, offsetY) scaled by zoom; zoom is clamped elsewhere to
// [0.1, 8.0] so it can never be zero here.

// ToScreen maps a document-space rectangle to screen space.
func (r Rect) ToScreen(offsetX, offsetY, zoom float64) Rect {
	return Rect{
		X:      r.X*zoom + offsetX,
		Y:      r.Y*zoom + offsetY,
		Width:  r.Width * zoom,
		Height: r.Height * zoom,
	}
}

// ToDocument maps a screen-space rectangle back to document space.
func (r Rect) ToDocument(offsetX, offsetY, zoom float64) Rect {
	return Rect{
		X:      (r.X - offsetX) / zoom,
		Y:      (r.Y - offsetY) / zoom,
		Width:  r.Width / zoom,
		Height: r.Height / zoom,
	}
}

// PointToScreen maps a document-space point to screen space.
func PointToScreen(p Point2D, offsetX, offsetY, zoom float64) Point2D {
	return Point2D{X: p.X*zoom + offsetX, Y: p.Y*zoom + offsetY}
}

// PointToDocument maps a screen-space point to document space.
func PointToDocument(p Point2D, offsetX, offsetY, zoom float64) Point2D {
	return Point2D{X: (p.X - offsetX) / zoom, Y: (p.Y - offsetY) / zoom}
}
