package vision

import (
	"fmt"
	"image"
	"sort"
)

// Detection is a labelled bounding box with a confidence score in [0, 1].
type Detection struct {
	BoundingBox image.Rectangle
	Label       string
	Score       float64
}

// NewDetection returns a detection of box.
func NewDetection(box image.Rectangle, score float64, label string) Detection {
	return Detection{BoundingBox: box.Canon(), Label: label, Score: score}
}

// Area is the bounding box area in pixels.
func (d Detection) Area() int {
	return d.BoundingBox.Dx() * d.BoundingBox.Dy()
}

// Center returns the bounding box center.
func (d Detection) Center() image.Point {
	return image.Pt((d.BoundingBox.Min.X+d.BoundingBox.Max.X)/2, (d.BoundingBox.Min.Y+d.BoundingBox.Max.Y)/2)
}

func (d Detection) String() string {
	if d.Label == "" {
		return fmt.Sprintf("%v (%.2f)", d.BoundingBox, d.Score)
	}
	return fmt.Sprintf("%s %v (%.2f)", d.Label, d.BoundingBox, d.Score)
}

// Postprocessor defines a function that filters/modifies on an incoming array of Detections.
type Postprocessor func([]Detection) []Detection

// NewAreaFilter returns a function that filters out detections below a certain area.
func NewAreaFilter(area int) Postprocessor {
	return func(in []Detection) []Detection {
		out := make([]Detection, 0, len(in))
		for _, d := range in {
			if d.Area() >= area {
				out = append(out, d)
			}
		}
		return out
	}
}

// NewScoreFilter returns a function that filters out detections below a certain confidence.
func NewScoreFilter(conf float64) Postprocessor {
	return func(in []Detection) []Detection {
		out := make([]Detection, 0, len(in))
		for _, d := range in {
			if d.Score >= conf {
				out = append(out, d)
			}
		}
		return out
	}
}

// NewLabelFilter returns a function that keeps only detections with one of the given labels.
// An empty label set keeps everything.
func NewLabelFilter(labels ...string) Postprocessor {
	keep := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		keep[l] = struct{}{}
	}
	return func(in []Detection) []Detection {
		if len(keep) == 0 {
			return in
		}
		out := make([]Detection, 0, len(in))
		for _, d := range in {
			if _, ok := keep[d.Label]; ok {
				out = append(out, d)
			}
		}
		return out
	}
}

// SortByArea returns a function that sorts detections largest first. Ties keep their order.
func SortByArea() Postprocessor {
	return func(in []Detection) []Detection {
		sort.SliceStable(in, func(i, j int) bool {
			return in[i].Area() > in[j].Area()
		})
		return in
	}
}

// Chain applies postprocessors in order.
func Chain(procs ...Postprocessor) Postprocessor {
	return func(in []Detection) []Detection {
		for _, p := range procs {
			if p != nil {
				in = p(in)
			}
		}
		return in
	}
}
