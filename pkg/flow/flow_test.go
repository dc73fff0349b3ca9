package flow

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"testing"
)

func TestFieldCodecRoundTrip(t *testing.T) {
	f := NewField(3, 2)
	f.Set(0, 0, 1.5, -2)
	f.Set(2, 1, -0.25, 7)

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	if buf.Len() != 8+8*6 {
		t.Fatalf("unexpected encoded size %d", buf.Len())
	}
	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.Width != 3 || got.Height != 2 {
		t.Fatalf("unexpected size %dx%d", got.Width, got.Height)
	}
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			wx, wy := f.At(x, y)
			gx, gy := got.At(x, y)
			if wx != gx || wy != gy {
				t.Errorf("pixel (%d,%d): got (%v,%v), want (%v,%v)", x, y, gx, gy, wx, wy)
			}
		}
	}
}

func TestDecodeRejectsTruncated(t *testing.T) {
	var buf bytes.Buffer
	NewField(4, 4).WriteTo(&buf)
	truncated := bytes.NewReader(buf.Bytes()[:20])
	if _, err := Decode(truncated); err == nil {
		t.Error("expected error for truncated data")
	}
	if _, err := Decode(bytes.NewReader([]byte{0, 0, 0, 0, 1, 0, 0, 0})); err == nil {
		t.Error("expected error for zero width")
	}
}

func squareImage(w, h, x0, y0, size int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := y0; y < y0+size; y++ {
		for x := x0; x < x0+size; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	return img
}

func TestBlockMatcherRecoversShift(t *testing.T) {
	a := squareImage(32, 32, 8, 8, 8)
	b := squareImage(32, 32, 10, 7, 8)

	f, err := NewBlockMatcher(8, 3).EstimateFlow(context.Background(), a, b)
	if err != nil {
		t.Fatalf("EstimateFlow failed: %v", err)
	}
	dx, dy := f.At(12, 12)
	if dx != 2 || dy != -1 {
		t.Errorf("flow inside the square = (%v, %v), want (2, -1)", dx, dy)
	}
	// Flat background stays put.
	if dx, dy := f.At(28, 28); dx != 0 || dy != 0 {
		t.Errorf("background flow = (%v, %v), want zero", dx, dy)
	}
}

func TestBlockMatcherIdenticalImages(t *testing.T) {
	a := squareImage(16, 16, 3, 3, 5)
	f, err := NewBlockMatcher(4, 2).EstimateFlow(context.Background(), a, a)
	if err != nil {
		t.Fatalf("EstimateFlow failed: %v", err)
	}
	for i := range f.DX {
		if f.DX[i] != 0 || f.DY[i] != 0 {
			t.Fatalf("identical images produced non-zero flow at %d", i)
		}
	}
}

func TestBlockMatcherSizeMismatch(t *testing.T) {
	_, err := NewBlockMatcher(4, 1).EstimateFlow(context.Background(), squareImage(8, 8, 0, 0, 1), squareImage(9, 8, 0, 0, 1))
	if err == nil {
		t.Error("expected size mismatch error")
	}
}
