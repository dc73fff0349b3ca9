package oracle

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mvprep/pkg/flow"
	"mvprep/pkg/mask"
)

func squareOnBlack(w, h int, r image.Rectangle) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{A: 255}
			if image.Pt(x, y).In(r) {
				c = color.RGBA{R: 230, G: 220, B: 210, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestOtsuSegmentFindsBrightObject(t *testing.T) {
	obj := image.Rect(5, 6, 15, 12)
	img := squareOnBlack(20, 20, obj)

	m, err := NewOtsuSegmenter().Segment(context.Background(), img)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	if !m.Equal(mask.FromRect(20, 20, obj)) {
		t.Errorf("unexpected mask, support %v", support(m))
	}
}

func TestOtsuSegmentFindsDarkObject(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 10, 10))
	for i := range img.Pix {
		img.Pix[i] = 240
	}
	obj := image.Rect(3, 3, 6, 7)
	for y := obj.Min.Y; y < obj.Max.Y; y++ {
		for x := obj.Min.X; x < obj.Max.X; x++ {
			img.SetGray(x, y, color.Gray{Y: 20})
		}
	}
	m, err := NewOtsuSegmenter().Segment(context.Background(), img)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	if !m.Equal(mask.FromRect(10, 10, obj)) {
		t.Errorf("unexpected mask, support %v", support(m))
	}
}

func TestOtsuPromptBoxRestrictsRegion(t *testing.T) {
	img := squareOnBlack(20, 20, image.Rect(2, 2, 6, 6))
	// A second object outside the prompt box must be ignored.
	for y := 12; y < 16; y++ {
		for x := 12; x < 16; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	m, err := NewOtsuSegmenter().SegmentWithPrompt(context.Background(), img, BoxPrompt(image.Rect(0, 0, 10, 10)))
	if err != nil {
		t.Fatalf("SegmentWithPrompt failed: %v", err)
	}
	if !m.Equal(mask.FromRect(20, 20, image.Rect(2, 2, 6, 6))) {
		t.Errorf("unexpected mask, support %v", support(m))
	}
}

func TestOtsuPromptMaskRefines(t *testing.T) {
	img := squareOnBlack(20, 20, image.Rect(4, 4, 10, 10))
	rough := mask.FromRect(20, 20, image.Rect(5, 5, 9, 9))
	m, err := NewOtsuSegmenter().SegmentWithPrompt(context.Background(), img, MaskPrompt(rough))
	if err != nil {
		t.Fatalf("SegmentWithPrompt failed: %v", err)
	}
	if !m.Equal(mask.FromRect(20, 20, image.Rect(4, 4, 10, 10))) {
		t.Errorf("unexpected mask, support %v", support(m))
	}
}

func TestOtsuPromptMaskSizeMismatch(t *testing.T) {
	img := squareOnBlack(8, 8, image.Rect(1, 1, 3, 3))
	_, err := NewOtsuSegmenter().SegmentWithPrompt(context.Background(), img, MaskPrompt(mask.New(4, 4)))
	if err == nil {
		t.Error("expected size mismatch error")
	}
}

func TestOtsuUniformImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 5, 5))
	m, err := NewOtsuSegmenter().Segment(context.Background(), img)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	if !m.Empty() {
		t.Error("uniform image must yield an empty mask")
	}
}

func support(m *mask.Mask) image.Rectangle {
	r, _ := m.Support()
	return r
}

func TestClientRoundTrip(t *testing.T) {
	const w, h = 12, 8
	var gotBox string
	var gotPromptMask bool

	mux := http.NewServeMux()
	mux.HandleFunc(SegmentPath, func(rw http.ResponseWriter, r *http.Request) {
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(rw, "missing file", http.StatusBadRequest)
			return
		}
		png.Encode(rw, mask.FromRect(w, h, image.Rect(1, 1, 4, 4)).Gray())
	})
	mux.HandleFunc(SegmentPromptPath, func(rw http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		gotBox = r.FormValue("box")
		_, _, err := r.FormFile("prompt_mask")
		gotPromptMask = err == nil
		png.Encode(rw, mask.Full(w, h).Gray())
	})
	mux.HandleFunc(FlowPath, func(rw http.ResponseWriter, r *http.Request) {
		for _, name := range []string{"image0", "image1"} {
			if _, _, err := r.FormFile(name); err != nil {
				http.Error(rw, "missing "+name, http.StatusBadRequest)
				return
			}
		}
		flow.Uniform(w, h, 1.5, -0.5).WriteTo(rw)
	})
	mux.HandleFunc(HealthPath, func(rw http.ResponseWriter, r *http.Request) {})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL+"/", 5*time.Second)
	ctx := context.Background()
	img := squareOnBlack(w, h, image.Rect(0, 0, 2, 2))

	if err := c.CheckHealth(ctx); err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}

	m, err := c.Segment(ctx, img)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	if m.Count() != 9 {
		t.Errorf("expected 9 foreground pixels, got %d", m.Count())
	}

	if _, err := c.SegmentWithPrompt(ctx, img, BoxPrompt(image.Rect(1, 2, 10, 7))); err != nil {
		t.Fatalf("SegmentWithPrompt(box) failed: %v", err)
	}
	if gotBox != "1,2,10,7" || gotPromptMask {
		t.Errorf("server saw box %q prompt mask %v", gotBox, gotPromptMask)
	}

	if _, err := c.SegmentWithPrompt(ctx, img, MaskPrompt(m)); err != nil {
		t.Fatalf("SegmentWithPrompt(mask) failed: %v", err)
	}
	if gotBox != "" || !gotPromptMask {
		t.Errorf("server saw box %q prompt mask %v", gotBox, gotPromptMask)
	}

	f, err := c.EstimateFlow(ctx, img, img)
	if err != nil {
		t.Fatalf("EstimateFlow failed: %v", err)
	}
	if dx, dy := f.At(3, 3); dx != 1.5 || dy != -0.5 {
		t.Errorf("unexpected flow (%v, %v)", dx, dy)
	}
}

func TestClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path == FlowPath {
			flow.NewField(3, 3).WriteTo(rw)
			return
		}
		http.Error(rw, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	if _, err := c.Segment(context.Background(), img); err == nil {
		t.Error("expected error for non-200 status")
	}
	if err := c.CheckHealth(context.Background()); err == nil {
		t.Error("expected unhealthy server")
	}
	if _, err := c.EstimateFlow(context.Background(), img, img); err == nil {
		t.Error("expected error for flow size mismatch")
	}
}
