package overlay

import (
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/fzipp/bmfont"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Face draws single lines of text into an image.
type Face interface {
	LineHeight() int
	// Measure returns the advance width of s in pixels.
	Measure(s string) int
	// DrawString draws s with the top left corner of its line box at (x, y).
	DrawString(dst draw.Image, x, y int, s string)
}

type basicFace struct {
	face font.Face
}

// DefaultFace is the built in 7x13 pixel face.
func DefaultFace() Face {
	return &basicFace{face: basicfont.Face7x13}
}

func (f *basicFace) LineHeight() int {
	return f.face.Metrics().Height.Ceil()
}

func (f *basicFace) Measure(s string) int {
	return font.MeasureString(f.face, s).Ceil()
}

func (f *basicFace) DrawString(dst draw.Image, x, y int, s string) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.White,
		Face: f.face,
		Dot:  fixed.P(x, y+f.face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(s)
}

type glyph struct {
	rect     image.Rectangle
	offset   image.Point
	xAdvance int
	page     int
}

type kerningPair struct {
	first, second rune
}

// bitmapFace renders text from a BMFont descriptor and its page images.
type bitmapFace struct {
	glyphs     map[rune]glyph
	kerning    map[kerningPair]int
	pages      map[int]image.Image
	lineHeight int
}

// LoadBitmapFace reads a text BMFont descriptor. Page images are looked up
// next to the descriptor and must be PNG files.
func LoadBitmapFace(path string) (Face, error) {
	fnt, err := bmfont.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load bitmap font %s", path)
	}
	desc := fnt.Descriptor

	f := &bitmapFace{
		glyphs:     make(map[rune]glyph, len(desc.Chars)),
		kerning:    make(map[kerningPair]int, len(desc.Kerning)),
		pages:      make(map[int]image.Image, len(desc.Pages)),
		lineHeight: int(desc.Common.LineHeight),
	}
	for _, p := range desc.Pages {
		img, err := loadPage(filepath.Join(filepath.Dir(path), p.File))
		if err != nil {
			return nil, err
		}
		f.pages[int(p.ID)] = img
	}
	for _, c := range desc.Chars {
		x, y := int(c.X), int(c.Y)
		f.glyphs[rune(c.ID)] = glyph{
			rect:     image.Rect(x, y, x+int(c.Width), y+int(c.Height)),
			offset:   image.Pt(int(c.XOffset), int(c.YOffset)),
			xAdvance: int(c.XAdvance),
			page:     int(c.Page),
		}
	}
	for pair, k := range desc.Kerning {
		f.kerning[kerningPair{rune(pair.First), rune(pair.Second)}] = int(k.Amount)
	}
	return f, nil
}

func loadPage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open font page %s", path)
	}
	defer file.Close()
	img, err := png.Decode(file)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode font page %s", path)
	}
	return img, nil
}

func (f *bitmapFace) LineHeight() int {
	return f.lineHeight
}

func (f *bitmapFace) Measure(s string) int {
	width := 0
	prev := rune(-1)
	for _, r := range s {
		g, ok := f.glyphs[r]
		if !ok {
			continue
		}
		width += g.xAdvance + f.kerning[kerningPair{prev, r}]
		prev = r
	}
	return width
}

func (f *bitmapFace) DrawString(dst draw.Image, x, y int, s string) {
	prev := rune(-1)
	for _, r := range s {
		g, ok := f.glyphs[r]
		if !ok {
			continue
		}
		x += f.kerning[kerningPair{prev, r}]
		if page, ok := f.pages[g.page]; ok && !g.rect.Empty() {
			at := image.Pt(x, y).Add(g.offset)
			draw.Draw(dst, image.Rectangle{Min: at, Max: at.Add(g.rect.Size())}, page, g.rect.Min, draw.Over)
		}
		x += g.xAdvance
		prev = r
	}
}
