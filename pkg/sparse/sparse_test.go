package sparse

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mvprep/internal/models"
)

const camerasTxt = `# Camera list with one line of data per camera:
1 PINHOLE 640 480 500 510 320 240
2 SIMPLE_RADIAL 800 600 700 400 300 0.01
`

const imagesTxt = `# Image list with two lines of data per image:
1 1 0 0 0 0 0 4 1 frame_b.png
100 200 7 120.5 80 -1

2 0.7071067811865476 0 0.7071067811865476 0 1 2 3 2 frame_a.png

`

const pointsTxt = `# 3D point list
7 0.5 -0.25 1 255 128 0 0.75 1 0
8 1 2 3 10 20 30 0.1
`

func writeModel(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range map[string]string{
		CamerasFile:  camerasTxt,
		ImagesFile:   imagesTxt,
		Points3DFile: pointsTxt,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
	}
	return dir
}

func TestReadText(t *testing.T) {
	r, err := ReadText(writeModel(t))
	require.NoError(t, err)

	require.Len(t, r.Cameras, 2)
	assert.Equal(t, models.Pinhole, r.Cameras[1].Model)
	assert.Equal(t, []float64{500, 510, 320, 240}, r.Cameras[1].Params)

	require.Len(t, r.Images, 2)
	im := r.Images[1]
	assert.Equal(t, "frame_b.png", im.Name)
	assert.Equal(t, r3.Vector{Z: 4}, im.TVec)
	require.Len(t, im.Points2D, 2)
	assert.Equal(t, Point2D{X: 120.5, Y: 80, Point3DID: -1}, im.Points2D[1])
	assert.Empty(t, r.Images[2].Points2D)

	require.Len(t, r.Points, 2)
	assert.Equal(t, [3]uint8{255, 128, 0}, r.Points[7].RGB)
	assert.Equal(t, []TrackElement{{ImageID: 1, Point2DIdx: 0}}, r.Points[7].Track)
	assert.Empty(t, r.Points[8].Track)

	sorted := r.SortedImages()
	assert.Equal(t, "frame_a.png", sorted[0].Name)
}

func TestWriteTextRoundTrip(t *testing.T) {
	r, err := ReadText(writeModel(t))
	require.NoError(t, err)

	out := t.TempDir()
	require.NoError(t, r.WriteText(out))
	back, err := ReadText(out)
	require.NoError(t, err)
	assert.Equal(t, r, back)
}

func TestReadTextMissingFile(t *testing.T) {
	_, err := ReadText(t.TempDir())
	assert.Error(t, err)
}

func TestCameraToWorld(t *testing.T) {
	r, err := ReadText(writeModel(t))
	require.NoError(t, err)

	// Identity rotation, t = (0,0,4): the camera sits at z = -4.
	c := r.Images[1].CameraToWorld().Translation()
	assert.InDelta(t, -4, c.Z, 1e-12)
	assert.InDelta(t, 0, c.X, 1e-12)
}

func TestWorldTransformsKeepProjections(t *testing.T) {
	r, err := ReadText(writeModel(t))
	require.NoError(t, err)
	before := map[int]r3.Vector{}
	for id, im := range r.Images {
		before[id] = im.WorldToCamera().Apply(r.Points[7].XYZ)
	}

	d := r3.Vector{X: -1, Y: 0.5, Z: 2}
	r.WorldTranslate(d)
	r.WorldScale(2)

	for id, im := range r.Images {
		got := im.WorldToCamera().Apply(r.Points[7].XYZ)
		// Camera-space points scale with the world, so projections are unchanged.
		want := before[id].Mul(2)
		assert.InDelta(t, want.X, got.X, 1e-9)
		assert.InDelta(t, want.Y, got.Y, 1e-9)
		assert.InDelta(t, want.Z, got.Z, 1e-9)
	}
	assert.InDelta(t, (0.5-1)*2, r.Points[7].XYZ.X, 1e-12)
}

func TestClone(t *testing.T) {
	r, err := ReadText(writeModel(t))
	require.NoError(t, err)
	c := r.Clone()
	c.WorldScale(3)
	c.Cameras[1].Params[0] = 1
	assert.Equal(t, 500.0, r.Cameras[1].Params[0])
	assert.False(t, math.Abs(r.Points[8].XYZ.X-c.Points[8].XYZ.X) < 1e-9)
}
