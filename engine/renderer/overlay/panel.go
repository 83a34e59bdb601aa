package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/exp/slices"
)

var panelBackground = color.RGBA{A: 160}

// Panel is a fixed size text block rasterized on the CPU. The GPU copy only
// needs refreshing when Update reports a change.
type Panel struct {
	face    Face
	padding int
	image   *image.RGBA
	lines   []string
}

func NewPanel(face Face, width, height, padding int) *Panel {
	p := &Panel{
		face:    face,
		padding: padding,
		image:   image.NewRGBA(image.Rect(0, 0, width, height)),
	}
	p.redraw()
	return p
}

// Update rasterizes lines, lines past the bottom edge are dropped. It reports
// whether the image changed.
func (p *Panel) Update(lines []string) bool {
	if slices.Equal(p.lines, lines) {
		return false
	}
	p.lines = append(p.lines[:0], lines...)
	p.redraw()
	return true
}

func (p *Panel) redraw() {
	draw.Draw(p.image, p.image.Bounds(), image.NewUniform(panelBackground), image.Point{}, draw.Src)
	y := p.padding
	for _, line := range p.lines {
		if y+p.face.LineHeight() > p.image.Bounds().Dy()-p.padding {
			break
		}
		p.face.DrawString(p.image, p.padding, y, line)
		y += p.face.LineHeight()
	}
}

func (p *Panel) Image() *image.RGBA {
	return p.image
}

func (p *Panel) Size() (int, int) {
	b := p.image.Bounds()
	return b.Dx(), b.Dy()
}

// Pixels returns the tightly packed RGBA8 pixels ready for upload.
func (p *Panel) Pixels() []byte {
	return p.image.Pix
}

// Stats is what the renderer shows in its overlay.
type Stats struct {
	FPS         float64
	FrameTimeMS float64
	Frame       uint64
	Extent      [2]uint32
	Pipelines   int
	Failed      int
	VertexUsed  uint32
	IndexUsed   uint32
}

func (s Stats) Lines() []string {
	lines := []string{
		fmt.Sprintf("%.0f fps  %.2f ms", s.FPS, s.FrameTimeMS),
		fmt.Sprintf("frame %d  %dx%d", s.Frame, s.Extent[0], s.Extent[1]),
		fmt.Sprintf("pipelines %d", s.Pipelines),
		fmt.Sprintf("vtx %d  idx %d", s.VertexUsed, s.IndexUsed),
	}
	if s.Failed > 0 {
		lines[2] = fmt.Sprintf("pipelines %d (%d failed)", s.Pipelines, s.Failed)
	}
	return lines
}

// QuadTransform maps the unit quad onto the pixel rectangle at (x, y) of size
// w by h inside a target of targetW by targetH pixels, origin top left.
func QuadTransform(targetW, targetH uint32, x, y, w, h float32) mgl32.Mat4 {
	projection := mgl32.Ortho2D(0, float32(targetW), 0, float32(targetH))
	return projection.Mul4(mgl32.Translate3D(x, y, 0)).Mul4(mgl32.Scale3D(w, h, 1))
}
