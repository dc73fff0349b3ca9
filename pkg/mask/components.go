package mask

import "image"

// Labeling is the result of connected-component labeling. Label 0 is background;
// foreground components are numbered from 1 in the order a row-major scan first
// reaches them.
type Labeling struct {
	Width  int
	Height int
	Labels []int32
	// Sizes[l] is the pixel count of label l; Sizes[0] counts background.
	Sizes []int
}

// NumComponents returns the number of foreground components.
func (l *Labeling) NumComponents() int {
	return len(l.Sizes) - 1
}

// Labeler labels the 8-connected foreground components of a mask.
type Labeler func(m *Mask) *Labeling

// defaultLabeler is replaced by the OpenCV backend when built with the gocv tag.
var defaultLabeler Labeler = LabelComponents

// Label labels m with the active backend.
func Label(m *Mask) *Labeling {
	return defaultLabeler(m)
}

var neighbors8 = []image.Point{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

// LabelComponents labels 8-connected components with a breadth-first flood fill.
func LabelComponents(m *Mask) *Labeling {
	l := &Labeling{
		Width:  m.Width,
		Height: m.Height,
		Labels: make([]int32, len(m.Pix)),
		Sizes:  []int{0},
	}
	queue := make([]image.Point, 0, 64)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			idx := y*m.Width + x
			if !m.Pix[idx] {
				l.Sizes[0]++
				continue
			}
			if l.Labels[idx] != 0 {
				continue
			}
			label := int32(len(l.Sizes))
			size := 0
			l.Labels[idx] = label
			queue = append(queue[:0], image.Point{X: x, Y: y})
			for len(queue) != 0 {
				pt := queue[0]
				queue = queue[1:]
				size++
				for _, d := range neighbors8 {
					n := pt.Add(d)
					if n.X < 0 || n.Y < 0 || n.X >= m.Width || n.Y >= m.Height {
						continue
					}
					nIdx := n.Y*m.Width + n.X
					if !m.Pix[nIdx] || l.Labels[nIdx] != 0 {
						continue
					}
					l.Labels[nIdx] = label
					queue = append(queue, n)
				}
			}
			l.Sizes = append(l.Sizes, size)
		}
	}
	return l
}

// Selection is the outcome of picking the largest component: either a label
// (Found) or no foreground component at all.
type Selection struct {
	Found bool
	Label int
	Size  int
}

// NoComponentFound is the Selection for a labeling without foreground.
var NoComponentFound = Selection{}

// LargestComponent selects the largest foreground component. Ties go to the
// lowest label.
func (l *Labeling) LargestComponent() Selection {
	best := NoComponentFound
	for label := 1; label < len(l.Sizes); label++ {
		if l.Sizes[label] > best.Size {
			best = Selection{Found: true, Label: label, Size: l.Sizes[label]}
		}
	}
	return best
}

// Component returns the mask of a single label.
func (l *Labeling) Component(label int) *Mask {
	m := New(l.Width, l.Height)
	for i, v := range l.Labels {
		m.Pix[i] = int(v) == label
	}
	return m
}

// KeepLargest returns the largest 8-connected component of m. When m has no
// foreground the returned Selection is NoComponentFound and the mask is nil; the
// caller decides the fallback.
func KeepLargest(m *Mask) (*Mask, Selection) {
	l := Label(m)
	sel := l.LargestComponent()
	if !sel.Found {
		return nil, sel
	}
	return l.Component(sel.Label), sel
}
