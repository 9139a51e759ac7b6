// Package renderer draws the composited volume and its scene dressing with
// raylib. All functions must be called after the window is created.
package renderer

import (
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/fieldview/raymarch"
)

// FrameTexture holds the composited frame on the GPU and stretches it over
// the screen. The texture is recreated when the frame size changes.
type FrameTexture struct {
	tex         rl.Texture2D
	texW, texH  int
	initialized bool

	screenW, screenH float32
}

// NewFrameTexture creates an empty frame texture for a screen of the given
// size.
func NewFrameTexture(screenW, screenH int32) *FrameTexture {
	return &FrameTexture{
		screenW: float32(screenW),
		screenH: float32(screenH),
	}
}

func (f *FrameTexture) init(w, h int) {
	if f.initialized {
		rl.UnloadTexture(f.tex)
	}
	img := rl.GenImageColor(w, h, rl.Blank)
	f.tex = rl.LoadTextureFromImage(img)
	rl.SetTextureFilter(f.tex, rl.FilterBilinear)
	rl.UnloadImage(img)
	f.texW, f.texH = w, h
	f.initialized = true
}

// Resize updates the destination size.
func (f *FrameTexture) Resize(w, h float32) {
	f.screenW = w
	f.screenH = h
}

// Upload copies the composited pixels into the texture.
func (f *FrameTexture) Upload(img *raymarch.Image) {
	if img == nil || len(img.Pix) != img.Width*img.Height {
		return
	}
	if !f.initialized || img.Width != f.texW || img.Height != f.texH {
		f.init(img.Width, img.Height)
	}
	rl.UpdateTexture(f.tex, img.Pix)
}

// Draw blends the frame over the screen. Pixels are premultiplied, so the
// premultiplied-alpha blend mode is used.
func (f *FrameTexture) Draw() {
	if !f.initialized {
		return
	}
	src := rl.Rectangle{X: 0, Y: 0, Width: float32(f.texW), Height: float32(f.texH)}
	dst := rl.Rectangle{X: 0, Y: 0, Width: f.screenW, Height: f.screenH}
	rl.BeginBlendMode(rl.BlendAlphaPremultiply)
	rl.DrawTexturePro(f.tex, src, dst, rl.Vector2{}, 0, rl.White)
	rl.EndBlendMode()
}

// Unload frees GPU resources.
func (f *FrameTexture) Unload() {
	if !f.initialized {
		return
	}
	rl.UnloadTexture(f.tex)
	f.initialized = false
}
