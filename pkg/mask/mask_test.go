package mask

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// parse builds a mask from rows of '#' (foreground) and '.' (background).
func parse(rows ...string) *Mask {
	m := New(len(rows[0]), len(rows))
	for y, row := range rows {
		for x, c := range row {
			m.Set(x, y, c == '#')
		}
	}
	return m
}

func TestSupport(t *testing.T) {
	m := parse(
		"......",
		"..##..",
		"...#..",
		"......",
	)
	r, ok := m.Support()
	if !ok {
		t.Fatal("expected support")
	}
	if want := image.Rect(2, 1, 4, 3); r != want {
		t.Errorf("Support = %v, want %v", r, want)
	}

	if _, ok := New(3, 3).Support(); ok {
		t.Error("empty mask must have no support")
	}
}

func TestReduce(t *testing.T) {
	m := parse(
		"##..#",
		"#...#",
		"....#",
	)
	got := m.Reduce(2)
	want := parse(
		"#.#",
		"..#",
	)
	if !got.Equal(want) {
		t.Errorf("Reduce mismatch:\n got %v\nwant %v", got.Pix, want.Pix)
	}

	if !m.Reduce(1).Equal(m) {
		t.Error("Reduce(1) must copy")
	}
}

func TestReduceFull(t *testing.T) {
	got := Full(7, 5).Reduce(2)
	if got.Width != 4 || got.Height != 3 || got.Count() != 12 {
		t.Errorf("unexpected reduced full mask %dx%d count %d", got.Width, got.Height, got.Count())
	}
}

func TestCrop(t *testing.T) {
	m := parse(
		"##.",
		"#..",
	)
	got := m.Crop(image.Rect(-1, 0, 2, 3))
	want := parse(
		".##",
		".#.",
		"...",
	)
	if !got.Equal(want) {
		t.Errorf("Crop mismatch: %v", got.Pix)
	}
}

func TestFromRect(t *testing.T) {
	m := FromRect(4, 3, image.Rect(2, -5, 10, 2))
	if diff := cmp.Diff(parse("..##", "..##", "...."), m); diff != "" {
		t.Errorf("FromRect mismatch (-want +got):\n%s", diff)
	}
}

func TestApply(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 200, G: 10, B: 10, A: 255})
	img.Set(1, 0, color.RGBA{R: 10, G: 200, B: 10, A: 255})
	out, err := parse("#.").Apply(img)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got := out.NRGBAAt(0, 0); got != (color.NRGBA{R: 200, G: 10, B: 10, A: 255}) {
		t.Errorf("foreground pixel changed: %v", got)
	}
	if got := out.NRGBAAt(1, 0); got != (color.NRGBA{}) {
		t.Errorf("background pixel not cleared: %v", got)
	}

	if _, err := New(3, 3).Apply(img); err == nil {
		t.Error("expected size mismatch error")
	}
}

func TestSaveLoad(t *testing.T) {
	m := parse(
		"#..#",
		".##.",
	)
	path := filepath.Join(t.TempDir(), "mask.png")
	if err := m.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !got.Equal(m) {
		t.Errorf("round trip mismatch: %v", got.Pix)
	}
}
