package display

import (
	"image"
	"image/color"
	"math"
	"sync"
	"sync/atomic"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/junsooki/AirScan/internal/view"
)

// ViewfinderInset is the margin between the frame edge and the viewfinder,
// in frame pixels.
const ViewfinderInset = 80

var (
	colorIdle      = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	colorDetecting = color.RGBA{R: 0x22, G: 0xc5, B: 0x5e, A: 0xff}
	colorOverlay   = color.RGBA{R: 0x22, G: 0xc5, B: 0x5e, A: 0x33}
	colorInactive  = color.RGBA{R: 0xef, G: 0x44, B: 0x44, A: 0xff}
	colorPanel     = color.RGBA{A: 0xb0}
)

// Window renders the camera feed with the scan overlay using Ebitengine.
type Window struct {
	title string

	mu    sync.Mutex
	feed  FrameSource
	model view.Model

	ebitenImage *ebiten.Image
	lastFrame   *image.RGBA
	quit        atomic.Bool
}

var (
	_ Display   = (*Window)(nil)
	_ FeedSink  = (*Window)(nil)
	_ ModelSink = (*Window)(nil)
)

// NewWindow creates a window. Call Run from the main goroutine.
func NewWindow(title string) *Window {
	return &Window{title: title, model: view.Model{Indicator: view.IndicatorInactive}}
}

// SetFeed switches the frames being drawn. nil shows a blank frame.
func (w *Window) SetFeed(f FrameSource) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.feed = f
}

// SetModel updates the overlay (called from the state goroutine).
func (w *Window) SetModel(m view.Model) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.model = m
}

// Close makes Run return at the next update.
func (w *Window) Close() { w.quit.Store(true) }

// Run starts the Ebitengine game loop. Must be called from the main goroutine.
func (w *Window) Run() error {
	ebiten.SetWindowSize(960, 720)
	ebiten.SetWindowTitle(w.title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	return ebiten.RunGame(w)
}

// --- ebiten.Game interface ---

func (w *Window) Update() error {
	if w.quit.Load() {
		return ebiten.Termination
	}
	return nil
}

func (w *Window) Draw(screen *ebiten.Image) {
	w.mu.Lock()
	feed, model := w.feed, w.model
	w.mu.Unlock()

	if feed != nil {
		if frame, err := feed.CurrentFrame(); err == nil {
			w.lastFrame = frame
		}
	} else {
		w.lastFrame = nil
	}

	sw, sh := float64(screen.Bounds().Dx()), float64(screen.Bounds().Dy())
	if frame := w.lastFrame; frame != nil {
		fw, fh := float64(frame.Bounds().Dx()), float64(frame.Bounds().Dy())
		if w.ebitenImage == nil ||
			w.ebitenImage.Bounds().Dx() != frame.Bounds().Dx() ||
			w.ebitenImage.Bounds().Dy() != frame.Bounds().Dy() {
			w.ebitenImage = ebiten.NewImage(frame.Bounds().Dx(), frame.Bounds().Dy())
		}
		w.ebitenImage.WritePixels(frame.Pix)

		scale, offsetX, offsetY := aspectFitTransform(sw, sh, fw, fh)
		op := &ebiten.DrawImageOptions{}
		op.GeoM.Scale(scale, scale)
		op.GeoM.Translate(offsetX, offsetY)
		screen.DrawImage(w.ebitenImage, op)

		drawViewfinder(screen, viewfinder(fw, fh, scale, offsetX, offsetY), model.Detecting)
	}

	if model.Overlay != "" {
		vector.DrawFilledRect(screen, 0, 0, float32(sw), float32(sh), colorOverlay, false)
		ebitenutil.DebugPrintAt(screen, model.Overlay, int(sw/2)-len(model.Overlay)*3, int(sh/2)-8)
	}
	drawStatus(screen, model)
}

func (w *Window) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

func drawViewfinder(screen *ebiten.Image, r rect, detecting bool) {
	clr, width := colorIdle, float32(2)
	if detecting {
		clr, width = colorDetecting, 4
	}
	vector.StrokeRect(screen, r.x, r.y, r.w, r.h, width, clr, true)
}

func drawStatus(screen *ebiten.Image, m view.Model) {
	lines := statusLines(m)
	h := float32(16*len(lines) + 8)
	top := float32(screen.Bounds().Dy()) - h
	vector.DrawFilledRect(screen, 0, top, float32(screen.Bounds().Dx()), h, colorPanel, false)

	ring := colorInactive
	if m.Active {
		ring = colorDetecting
	}
	vector.DrawFilledCircle(screen, 12, top+12, 5, ring, true)
	for i, line := range lines {
		ebitenutil.DebugPrintAt(screen, line, 24, int(top)+4+16*i)
	}
}

// statusLines is the text of the status panel, top to bottom.
func statusLines(m view.Model) []string {
	first := m.Indicator
	if m.Badge != "" {
		first += "  [" + m.Badge + "]"
	}
	lines := []string{first}
	if m.Error != "" {
		lines = append(lines, m.Error)
	}
	if m.HasResult {
		last := m.ResultHeading + " " + m.Result
		if m.ScannedAt != "" {
			last += " (" + m.ScannedAt + ")"
		}
		lines = append(lines, last)
	}
	return lines
}

type rect struct{ x, y, w, h float32 }

// viewfinder maps the inset viewfinder of a frame to screen coordinates.
// Small frames get a proportional inset instead.
func viewfinder(frameW, frameH, scale, offsetX, offsetY float64) rect {
	inset := math.Min(ViewfinderInset, math.Min(frameW, frameH)/4)
	return rect{
		x: float32(offsetX + inset*scale),
		y: float32(offsetY + inset*scale),
		w: float32((frameW - 2*inset) * scale),
		h: float32((frameH - 2*inset) * scale),
	}
}

// aspectFitTransform returns scale and offsets to fit frame into view with letterboxing.
func aspectFitTransform(viewW, viewH, frameW, frameH float64) (scale, offsetX, offsetY float64) {
	scale = math.Min(viewW/frameW, viewH/frameH)
	offsetX = (viewW - frameW*scale) / 2
	offsetY = (viewH - frameH*scale) / 2
	return
}
