package session

import "math"

// Viewport is the visible size of a view in lines and columns.
type Viewport struct {
	Height int
	Width  int
}

// FontMetrics is the size of one character cell in device-independent pixels.
type FontMetrics struct {
	Width        float64
	Height       float64
	ActualHeight float64
}

// ViewportFromPixels converts a pixel area into a line and column count.
// Partial cells are not counted. Zero metrics give a zero viewport.
func ViewportFromPixels(widthPx, heightPx float64, m FontMetrics) Viewport {
	var vp Viewport
	if m.Height > 0 {
		vp.Height = int(math.Floor(heightPx / m.Height))
	}
	if m.Width > 0 {
		vp.Width = int(math.Floor(widthPx / m.Width))
	}
	return vp
}

// DeltaMode is the unit of a wheel delta.
type DeltaMode int

const (
	DeltaPixel DeltaMode = iota
	DeltaLine
	DeltaPage
)

// WheelEvent is a raw wheel event from the UI.
type WheelEvent struct {
	DeltaY    float64
	DeltaMode DeltaMode
}

// LineDelta is the scroll direction: 1 down, -1 up, 0 for none.
// The magnitude and delta mode are ignored; the backend scrolls one step.
func (e WheelEvent) LineDelta() int {
	switch {
	case e.DeltaY > 0:
		return 1
	case e.DeltaY < 0:
		return -1
	default:
		return 0
	}
}
