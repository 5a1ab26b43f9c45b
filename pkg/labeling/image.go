package labeling

import "merfishdecode/internal/models"

// LabelImage assigns every pixel of a volume a region label; 0 is
// background.
type LabelImage struct {
	Volume models.Volume
	Labels []int32
}

// NewLabelImage returns an all-background image.
func NewLabelImage(v models.Volume) *LabelImage {
	return &LabelImage{Volume: v, Labels: make([]int32, v.Pixels())}
}

// At returns the label of (z, y, x).
func (l *LabelImage) At(z, y, x int) int32 {
	return l.Labels[l.Volume.Index(z, y, x)]
}

// Max is the largest label in the image.
func (l *LabelImage) Max() int32 {
	var m int32
	for _, v := range l.Labels {
		if v > m {
			m = v
		}
	}
	return m
}

// Areas returns the pixel count of every label; index 0 counts background.
func (l *LabelImage) Areas() []int {
	areas := make([]int, l.Max()+1)
	for _, v := range l.Labels {
		areas[v]++
	}
	return areas
}

// Plane returns a copy of the labels of one z-plane, row-major in (y, x).
func (l *LabelImage) Plane(z int) []int32 {
	size := l.Volume.Y * l.Volume.X
	out := make([]int32, size)
	copy(out, l.Labels[z*size:(z+1)*size])
	return out
}

// Relabel rewrites every label through mapping, where mapping[old] is the
// new label and mapping[0] must be 0.
func (l *LabelImage) Relabel(mapping []int32) {
	for i, v := range l.Labels {
		l.Labels[i] = mapping[v]
	}
}

// Clone returns a deep copy.
func (l *LabelImage) Clone() *LabelImage {
	out := &LabelImage{Volume: l.Volume, Labels: make([]int32, len(l.Labels))}
	copy(out.Labels, l.Labels)
	return out
}
