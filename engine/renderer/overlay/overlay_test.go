package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestDefaultFace(t *testing.T) {
	f := DefaultFace()
	if f.LineHeight() != 13 {
		t.Errorf("LineHeight() = %d, want 13", f.LineHeight())
	}
	if got := f.Measure("abc"); got != 21 {
		t.Errorf("Measure(abc) = %d, want 21", got)
	}
}

func countLit(img *image.RGBA) int {
	n := 0
	for i := 0; i < len(img.Pix); i += 4 {
		if img.Pix[i] > 200 {
			n++
		}
	}
	return n
}

func TestPanelUpdate(t *testing.T) {
	p := NewPanel(DefaultFace(), 128, 48, 4)
	if w, h := p.Size(); w != 128 || h != 48 {
		t.Fatalf("Size() = %dx%d", w, h)
	}
	if countLit(p.Image()) != 0 {
		t.Fatal("empty panel has lit pixels")
	}

	if !p.Update([]string{"60 fps"}) {
		t.Fatal("first Update reported no change")
	}
	lit := countLit(p.Image())
	if lit == 0 {
		t.Fatal("text not drawn")
	}
	if p.Update([]string{"60 fps"}) {
		t.Error("identical Update reported a change")
	}

	// Only three 13 pixel lines fit between the paddings.
	p.Update([]string{"a", "b", "c", "d"})
	for y := 4 + 3*13; y < 48; y++ {
		for x := 0; x < 128; x++ {
			if c := p.Image().RGBAAt(x, y); c.R > 200 {
				t.Fatalf("pixel (%d, %d) lit below the last fitting line", x, y)
			}
		}
	}
	if got := p.Image().RGBAAt(0, 0); got != (color.RGBA{A: 160}) {
		t.Errorf("background = %v", got)
	}
	if len(p.Pixels()) != 128*48*4 {
		t.Errorf("len(Pixels()) = %d", len(p.Pixels()))
	}
}

func TestStatsLines(t *testing.T) {
	tests := []struct {
		name  string
		stats Stats
		want  string
	}{
		{"healthy", Stats{FPS: 59.6, FrameTimeMS: 16.78, Pipelines: 2}, "pipelines 2"},
		{"failed", Stats{Pipelines: 3, Failed: 1}, "pipelines 3 (1 failed)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := tt.stats.Lines()
			if lines[2] != tt.want {
				t.Errorf("lines[2] = %q, want %q", lines[2], tt.want)
			}
		})
	}
	if got := (Stats{FPS: 59.6, FrameTimeMS: 16.78}).Lines()[0]; got != "60 fps  16.78 ms" {
		t.Errorf("lines[0] = %q", got)
	}
}

func TestQuadTransform(t *testing.T) {
	m := QuadTransform(200, 100, 10, 20, 50, 30)
	tests := []struct {
		in   mgl32.Vec4
		want mgl32.Vec2
	}{
		{mgl32.Vec4{0, 0, 0, 1}, mgl32.Vec2{10.0/100 - 1, 20.0/50 - 1}},
		{mgl32.Vec4{1, 1, 0, 1}, mgl32.Vec2{60.0/100 - 1, 50.0/50 - 1}},
	}
	for _, tt := range tests {
		got := m.Mul4x1(tt.in)
		if math.Abs(float64(got.X()-tt.want.X())) > 1e-5 || math.Abs(float64(got.Y()-tt.want.Y())) > 1e-5 {
			t.Errorf("transform %v = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestBitmapFaceDrawString(t *testing.T) {
	page := image.NewRGBA(image.Rect(0, 0, 16, 8))
	draw.Draw(page, image.Rect(0, 0, 4, 8), image.White, image.Point{}, draw.Src)
	f := &bitmapFace{
		glyphs: map[rune]glyph{
			'A': {rect: image.Rect(0, 0, 4, 8), xAdvance: 5},
			'V': {rect: image.Rect(0, 0, 4, 8), xAdvance: 5},
		},
		kerning:    map[kerningPair]int{{'A', 'V'}: -2},
		pages:      map[int]image.Image{0: page},
		lineHeight: 10,
	}
	if got := f.Measure("AV?"); got != 8 {
		t.Errorf("Measure(AV?) = %d, want 8", got)
	}

	dst := image.NewRGBA(image.Rect(0, 0, 20, 10))
	f.DrawString(dst, 1, 1, "AV")
	for _, x := range []int{1, 4, 6} {
		if c := dst.RGBAAt(x, 1); c.R != 255 {
			t.Errorf("pixel (%d, 1) = %v, want white", x, c)
		}
	}
	if c := dst.RGBAAt(8, 1); c.A != 0 {
		t.Errorf("pixel (8, 1) = %v, want untouched", c)
	}
}
