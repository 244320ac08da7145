package objectdetection

import (
	"context"
	"image"
	"image/color"

	"github.com/teamcode/robotcv/vision"
)

// NewSimpleDetector returns a Detector that needs no model: it boxes every 4-connected region of
// pixels whose luminance is below threshold (0 black, 256 white). It is meant for bench tests.
func NewSimpleDetector(threshold float64) Detector {
	return func(ctx context.Context, img image.Image) ([]vision.Detection, error) {
		bounds := img.Bounds()
		width, height := bounds.Dx(), bounds.Dy()
		dark := make([]bool, width*height)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				gray := color.GrayModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray)
				dark[y*width+x] = float64(gray.Y) < threshold
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var detections []vision.Detection
		var stack []int
		for start, isDark := range dark {
			if !isDark {
				continue
			}
			dark[start] = false
			stack = append(stack[:0], start)
			box := image.Rect(start%width, start/width, start%width+1, start/width+1)
			for len(stack) > 0 {
				idx := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				x, y := idx%width, idx/width
				box = box.Union(image.Rect(x, y, x+1, y+1))
				for _, n := range [4]image.Point{{x, y - 1}, {x, y + 1}, {x - 1, y}, {x + 1, y}} {
					if n.X < 0 || n.Y < 0 || n.X >= width || n.Y >= height {
						continue
					}
					if nIdx := n.Y*width + n.X; dark[nIdx] {
						dark[nIdx] = false
						stack = append(stack, nIdx)
					}
				}
			}
			detections = append(detections, vision.NewDetection(box.Add(bounds.Min), 1.0, "dark"))
		}
		return detections, nil
	}
}
