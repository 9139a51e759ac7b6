package renderer

import (
	"image/color"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/fieldview/transfer"
	"github.com/pthm-cable/fieldview/volume"
)

// SlicePreview shows the live buffer as a flat image in a screen corner: the
// whole atlas for Atlas2D buffers, the middle z slice otherwise.
type SlicePreview struct {
	tex         rl.Texture2D
	texW, texH  int
	initialized bool

	shown *volume.Buffer
	tf    transfer.Function
}

// NewSlicePreview creates an empty preview.
func NewSlicePreview() *SlicePreview {
	return &SlicePreview{}
}

// SliceImage colors the preview image of buf through tf, composited over
// black so transparent cells read as dark.
func SliceImage(buf *volume.Buffer, tf transfer.Function) (pix []color.RGBA, w, h int) {
	if buf == nil || buf.Cells() == 0 {
		return nil, 0, 0
	}
	shade := func(v float32) color.RGBA {
		c, a := tf.Apply(v)
		n := c.Scale(a).NRGBA(1)
		return color.RGBA{R: n.R, G: n.G, B: n.B, A: 255}
	}
	if buf.Layout == volume.Atlas2D {
		pix = make([]color.RGBA, len(buf.Values))
		for i, v := range buf.Values {
			pix[i] = shade(v)
		}
		return pix, buf.Width, buf.Height
	}
	w, h = buf.Res.X, buf.Res.Y
	z := buf.Res.Z / 2
	pix = make([]color.RGBA, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pix[y*w+x] = shade(buf.At(x, y, z))
		}
	}
	return pix, w, h
}

// Update re-uploads the preview when the buffer or transfer function changed.
func (s *SlicePreview) Update(buf *volume.Buffer, tf transfer.Function) {
	if buf == s.shown && tf == s.tf {
		return
	}
	s.shown, s.tf = buf, tf
	pix, w, h := SliceImage(buf, tf)
	if pix == nil {
		return
	}
	if !s.initialized || w != s.texW || h != s.texH {
		if s.initialized {
			rl.UnloadTexture(s.tex)
		}
		img := rl.GenImageColor(w, h, rl.Black)
		s.tex = rl.LoadTextureFromImage(img)
		rl.SetTextureFilter(s.tex, rl.FilterPoint)
		rl.UnloadImage(img)
		s.texW, s.texH = w, h
		s.initialized = true
	}
	rl.UpdateTexture(s.tex, pix)
}

// Draw fits the preview into a size×size box with its top-right corner at
// (right, top).
func (s *SlicePreview) Draw(right, top, size float32) {
	if !s.initialized || s.shown == nil {
		return
	}
	scale := min(size/float32(s.texW), size/float32(s.texH))
	w, h := float32(s.texW)*scale, float32(s.texH)*scale
	src := rl.Rectangle{X: 0, Y: 0, Width: float32(s.texW), Height: float32(s.texH)}
	dst := rl.Rectangle{X: right - w, Y: top, Width: w, Height: h}
	rl.DrawTexturePro(s.tex, src, dst, rl.Vector2{}, 0, rl.White)
	rl.DrawRectangleLinesEx(dst, 1, rl.Gray)
}

// Unload frees GPU resources.
func (s *SlicePreview) Unload() {
	if !s.initialized {
		return
	}
	rl.UnloadTexture(s.tex)
	s.initialized = false
	s.shown = nil
}
