//go:build gocv

package mask

import "gocv.io/x/gocv"

// statArea is the area column of the OpenCV component stats matrix.
const statArea = 4

func init() {
	defaultLabeler = LabelComponentsOpenCV
}

// LabelComponentsOpenCV labels 8-connected components with OpenCV. Label numbering
// follows OpenCV's scan order, which matches LabelComponents.
func LabelComponentsOpenCV(m *Mask) *Labeling {
	data := make([]byte, len(m.Pix))
	for i, v := range m.Pix {
		if v {
			data[i] = 1
		}
	}
	src, err := gocv.NewMatFromBytes(m.Height, m.Width, gocv.MatTypeCV8U, data)
	if err != nil {
		return LabelComponents(m)
	}
	defer src.Close()

	labels := gocv.NewMat()
	defer labels.Close()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()

	n := gocv.ConnectedComponentsWithStats(src, &labels, &stats, &centroids)

	l := &Labeling{
		Width:  m.Width,
		Height: m.Height,
		Labels: make([]int32, len(m.Pix)),
		Sizes:  make([]int, n),
	}
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			l.Labels[y*m.Width+x] = labels.GetIntAt(y, x)
		}
	}
	for i := 0; i < n; i++ {
		l.Sizes[i] = int(stats.GetIntAt(i, statArea))
	}
	return l
}
