// Package mask implements binary foreground masks and the operations the
// propagation and carving stages run on them.
package mask

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// Mask is a binary image stored row-major; true marks foreground.
type Mask struct {
	Width  int
	Height int
	Pix    []bool
}

// New returns an all-background mask.
func New(width, height int) *Mask {
	return &Mask{Width: width, Height: height, Pix: make([]bool, width*height)}
}

// Full returns an all-foreground mask.
func Full(width, height int) *Mask {
	m := New(width, height)
	for i := range m.Pix {
		m.Pix[i] = true
	}
	return m
}

// FromRect returns a mask whose foreground is r clipped to the mask bounds.
func FromRect(width, height int, r image.Rectangle) *Mask {
	m := New(width, height)
	r = r.Intersect(m.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			m.Pix[y*width+x] = true
		}
	}
	return m
}

// Bounds returns the full pixel rectangle of the mask.
func (m *Mask) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.Width, m.Height)
}

// At reports whether (x, y) is foreground; out-of-range pixels are background.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Pix[y*m.Width+x]
}

// Set assigns pixel (x, y).
func (m *Mask) Set(x, y int, v bool) {
	m.Pix[y*m.Width+x] = v
}

// Count returns the number of foreground pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v {
			n++
		}
	}
	return n
}

// Empty reports whether the mask has no foreground.
func (m *Mask) Empty() bool {
	for _, v := range m.Pix {
		if v {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (m *Mask) Clone() *Mask {
	out := &Mask{Width: m.Width, Height: m.Height, Pix: make([]bool, len(m.Pix))}
	copy(out.Pix, m.Pix)
	return out
}

// Equal reports whether both masks have the same shape and pixels.
func (m *Mask) Equal(o *Mask) bool {
	if m.Width != o.Width || m.Height != o.Height {
		return false
	}
	for i := range m.Pix {
		if m.Pix[i] != o.Pix[i] {
			return false
		}
	}
	return true
}

// Support returns the tight half-open bounding box of the foreground.
// ok is false when the mask is empty.
func (m *Mask) Support() (r image.Rectangle, ok bool) {
	x0, y0, x1, y1 := m.Width, m.Height, -1, -1
	for y := 0; y < m.Height; y++ {
		row := m.Pix[y*m.Width : (y+1)*m.Width]
		for x, v := range row {
			if !v {
				continue
			}
			if x < x0 {
				x0 = x
			}
			if x > x1 {
				x1 = x
			}
			if y < y0 {
				y0 = y
			}
			y1 = y
		}
	}
	if x1 < 0 {
		return image.Rectangle{}, false
	}
	return image.Rect(x0, y0, x1+1, y1+1), true
}

// Reduce downsamples the mask by an integer factor. A reduced pixel covers a
// factor x factor block (partial at the right and bottom edges) and is foreground
// when at least half of the block is.
func (m *Mask) Reduce(factor int) *Mask {
	if factor <= 1 {
		return m.Clone()
	}
	w := (m.Width + factor - 1) / factor
	h := (m.Height + factor - 1) / factor
	out := New(w, h)
	for ry := 0; ry < h; ry++ {
		for rx := 0; rx < w; rx++ {
			fg, n := 0, 0
			for y := ry * factor; y < (ry+1)*factor && y < m.Height; y++ {
				for x := rx * factor; x < (rx+1)*factor && x < m.Width; x++ {
					n++
					if m.Pix[y*m.Width+x] {
						fg++
					}
				}
			}
			out.Pix[ry*w+rx] = 2*fg >= n
		}
	}
	return out
}

// Crop copies the window r of the mask into a new mask of r's size. Pixels of r
// outside the mask are background.
func (m *Mask) Crop(r image.Rectangle) *Mask {
	out := New(r.Dx(), r.Dy())
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			out.Pix[y*out.Width+x] = m.At(r.Min.X+x, r.Min.Y+y)
		}
	}
	return out
}

// Gray renders the mask as an 8-bit image with foreground 255.
func (m *Mask) Gray() *image.Gray {
	img := image.NewGray(m.Bounds())
	for i, v := range m.Pix {
		if v {
			img.Pix[i] = 255
		}
	}
	return img
}

// Alpha renders the mask as an alpha image, usable as a draw mask.
func (m *Mask) Alpha() *image.Alpha {
	img := image.NewAlpha(m.Bounds())
	for i, v := range m.Pix {
		if v {
			img.Pix[i] = 255
		}
	}
	return img
}

// FromImage thresholds an image: pixels brighter than mid-gray are foreground.
func FromImage(img image.Image) *Mask {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	m := New(b.Dx(), b.Dy())
	for i, v := range gray.Pix {
		m.Pix[i] = v > 127
	}
	return m
}

// Apply composites img onto a zero background, keeping pixels where the mask is set.
func (m *Mask) Apply(img image.Image) (*image.NRGBA, error) {
	b := img.Bounds()
	if b.Dx() != m.Width || b.Dy() != m.Height {
		return nil, errors.Errorf("mask size %dx%d does not match image size %dx%d", m.Width, m.Height, b.Dx(), b.Dy())
	}
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)
	draw.DrawMask(out, out.Bounds(), img, b.Min, m.Alpha(), image.Point{}, draw.Over)
	return out, nil
}

// Load reads a mask image from disk.
func Load(path string) (*Mask, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open mask %s", path)
	}
	return FromImage(img), nil
}

// Save writes the mask as an 8-bit grayscale image; the format follows the extension.
func (m *Mask) Save(path string) error {
	if err := imaging.Save(m.Gray(), path); err != nil {
		return errors.Wrapf(err, "failed to save mask %s", path)
	}
	return nil
}
