// Package flow holds dense optical-flow displacement fields and a local
// block-matching estimator.
package flow

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// Field is a dense displacement field: pixel (x, y) of the first image moves to
// (x+DX, y+DY) in the second.
type Field struct {
	Width  int
	Height int
	DX     []float32
	DY     []float32
}

// NewField returns a zero (identity) displacement field.
func NewField(width, height int) *Field {
	return &Field{
		Width:  width,
		Height: height,
		DX:     make([]float32, width*height),
		DY:     make([]float32, width*height),
	}
}

// Uniform returns a field where every pixel moves by (dx, dy).
func Uniform(width, height int, dx, dy float32) *Field {
	f := NewField(width, height)
	for i := range f.DX {
		f.DX[i], f.DY[i] = dx, dy
	}
	return f
}

// At returns the displacement of pixel (x, y).
func (f *Field) At(x, y int) (dx, dy float32) {
	i := y*f.Width + x
	return f.DX[i], f.DY[i]
}

// Set assigns the displacement of pixel (x, y).
func (f *Field) Set(x, y int, dx, dy float32) {
	i := y*f.Width + x
	f.DX[i], f.DY[i] = dx, dy
}

// WriteTo encodes the field as little-endian uint32 width and height followed by
// interleaved float32 (dx, dy) pairs in row-major order.
func (f *Field) WriteTo(w io.Writer) (int64, error) {
	buf := make([]byte, 8+8*len(f.DX))
	binary.LittleEndian.PutUint32(buf[0:], uint32(f.Width))
	binary.LittleEndian.PutUint32(buf[4:], uint32(f.Height))
	for i := range f.DX {
		binary.LittleEndian.PutUint32(buf[8+8*i:], math.Float32bits(f.DX[i]))
		binary.LittleEndian.PutUint32(buf[12+8*i:], math.Float32bits(f.DY[i]))
	}
	n, err := w.Write(buf)
	return int64(n), err
}

// maxFieldPixels bounds decoding of untrusted headers.
const maxFieldPixels = 1 << 28

// Decode reads a field written by WriteTo.
func Decode(r io.Reader) (*Field, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, errors.Wrap(err, "failed to read flow header")
	}
	w := int(binary.LittleEndian.Uint32(header[0:]))
	h := int(binary.LittleEndian.Uint32(header[4:]))
	if w <= 0 || h <= 0 || w*h > maxFieldPixels {
		return nil, errors.Errorf("invalid flow field size %dx%d", w, h)
	}
	body := make([]byte, 8*w*h)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, errors.Wrap(err, "failed to read flow data")
	}
	f := NewField(w, h)
	for i := range f.DX {
		f.DX[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[8*i:]))
		f.DY[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[8*i+4:]))
	}
	return f, nil
}
