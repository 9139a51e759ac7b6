package raymarch

import (
	"image"
	"image/color"
	"runtime"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/fieldview/volume"
)

// RaySource produces the unit-cube space ray through pixel (px, py) of a
// w×h image.
type RaySource interface {
	Ray(px, py float32, w, h int) (origin, dir mgl32.Vec3)
}

// Image is a composited frame in premultiplied 8-bit RGBA, row-major.
type Image struct {
	Width, Height int
	Pix           []color.RGBA
}

// NewImage allocates a transparent w×h image.
func NewImage(w, h int) *Image {
	return &Image{Width: w, Height: h, Pix: make([]color.RGBA, w*h)}
}

// Clear makes every pixel transparent.
func (m *Image) Clear() {
	clear(m.Pix)
}

// Coverage returns the mean alpha in [0, 1].
func (m *Image) Coverage() float64 {
	if len(m.Pix) == 0 {
		return 0
	}
	alpha := make([]float64, len(m.Pix))
	for i, p := range m.Pix {
		alpha[i] = float64(p.A) / 255
	}
	return floats.Sum(alpha) / float64(len(alpha))
}

// ToRGBA copies the frame into a standard library image.
func (m *Image) ToRGBA() *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, m.Width, m.Height))
	for i, p := range m.Pix {
		o := i * 4
		out.Pix[o+0] = p.R
		out.Pix[o+1] = p.G
		out.Pix[o+2] = p.B
		out.Pix[o+3] = p.A
	}
	return out
}

// parallelRows is the minimum image height worth splitting across workers.
const parallelRows = 32

type rowChunk struct {
	start, end int
}

// Renderer marches one ray per pixel. Rows are split across a persistent
// worker pool; Render returns only after every row is written, so callers
// see a single-threaded API.
type Renderer struct {
	comp *Compositor

	// per-frame inputs, read-only while workers run
	buf *volume.Buffer
	cam RaySource
	img *Image

	numWorkers int
	workChan   chan rowChunk
	doneChan   chan struct{}
	stopChan   chan struct{}
	wg         sync.WaitGroup
	running    bool
}

// NewRenderer creates a renderer with one worker per available CPU.
// workers <= 0 selects GOMAXPROCS.
func NewRenderer(comp *Compositor, workers int) *Renderer {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Renderer{comp: comp, numWorkers: workers}
}

// Compositor returns the compositor used for every pixel.
func (r *Renderer) Compositor() *Compositor { return r.comp }

func (r *Renderer) startWorkers() {
	if r.running {
		return
	}
	r.workChan = make(chan rowChunk, r.numWorkers)
	r.doneChan = make(chan struct{}, r.numWorkers)
	r.stopChan = make(chan struct{})
	r.running = true

	for i := 0; i < r.numWorkers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
}

// Close stops the worker pool. The renderer restarts it on the next Render.
func (r *Renderer) Close() {
	if !r.running {
		return
	}
	close(r.stopChan)
	r.wg.Wait()
	close(r.workChan)
	close(r.doneChan)
	r.running = false
}

func (r *Renderer) worker() {
	defer r.wg.Done()
	for {
		select {
		case <-r.stopChan:
			return
		case chunk, ok := <-r.workChan:
			if !ok {
				return
			}
			r.renderRows(chunk.start, chunk.end)
			r.doneChan <- struct{}{}
		}
	}
}

// Render fills img from buf as seen by cam. A nil buffer clears the image.
func (r *Renderer) Render(buf *volume.Buffer, cam RaySource, img *Image) {
	if buf == nil {
		img.Clear()
		return
	}
	r.buf, r.cam, r.img = buf, cam, img
	defer func() { r.buf, r.cam, r.img = nil, nil, nil }()

	if img.Height < parallelRows || r.numWorkers == 1 {
		r.renderRows(0, img.Height)
		return
	}

	r.startWorkers()
	chunkSize := (img.Height + r.numWorkers - 1) / r.numWorkers
	dispatched := 0
	for w := 0; w < r.numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, img.Height)
		if start >= end {
			continue
		}
		r.workChan <- rowChunk{start: start, end: end}
		dispatched++
	}
	for i := 0; i < dispatched; i++ {
		<-r.doneChan
	}
}

func (r *Renderer) renderRows(y0, y1 int) {
	w, h := r.img.Width, r.img.Height
	for y := y0; y < y1; y++ {
		row := r.img.Pix[y*w : (y+1)*w]
		for x := range row {
			o, d := r.cam.Ray(float32(x)+0.5, float32(y)+0.5, w, h)
			row[x] = r.comp.March(r.buf, o, d).RGBA()
		}
	}
}
