// Package colordetection implements a stage that finds regions whose color lies within an HSV
// range. Hue runs 0-180 and saturation and value run 0-255, so thresholds tuned with common
// vision tooling carry over unchanged.
package colordetection

import (
	"context"
	"fmt"
	"image"
	"sort"
	"sync"
	"time"

	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"

	"github.com/teamcode/robotcv/components/camera"
	"github.com/teamcode/robotcv/vision"
)

// DefaultMinArea drops specks smaller than this many pixels.
const DefaultMinArea = 100

// HSV is a color in the 0-180 / 0-255 / 0-255 scale.
type HSV struct {
	H float64 `json:"h"`
	S float64 `json:"s"`
	V float64 `json:"v"`
}

func (c HSV) String() string {
	return fmt.Sprintf("(%g, %g, %g)", c.H, c.S, c.V)
}

// HSVFromRGB converts 8-bit RGB into the HSV scale.
func HSVFromRGB(r, g, b uint8) HSV {
	h, s, v := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}.Hsv()
	return HSV{H: h / 2, S: s * 255, V: v * 255}
}

// Options configures the color stage.
type Options struct {
	Lower   HSV `json:"lower"`
	Upper   HSV `json:"upper"`
	MinArea int `json:"min_area,omitempty"`
}

// Validate checks each bound is within scale. A lower hue above the upper hue selects the range
// wrapping through red.
func (o Options) Validate() error {
	for _, bound := range []HSV{o.Lower, o.Upper} {
		if bound.H < 0 || bound.H > 180 || bound.S < 0 || bound.S > 255 || bound.V < 0 || bound.V > 255 {
			return errors.Errorf("color bound %s out of range", bound)
		}
	}
	if o.Lower.S > o.Upper.S || o.Lower.V > o.Upper.V {
		return errors.Errorf("lower bound %s exceeds upper bound %s", o.Lower, o.Upper)
	}
	if o.MinArea < 0 {
		return errors.Errorf("min_area cannot be negative, got %d", o.MinArea)
	}
	return nil
}

// Contains reports whether c lies within [Lower, Upper], inclusive.
func (o Options) Contains(c HSV) bool {
	if c.S < o.Lower.S || c.S > o.Upper.S || c.V < o.Lower.V || c.V > o.Upper.V {
		return false
	}
	if o.Lower.H <= o.Upper.H {
		return c.H >= o.Lower.H && c.H <= o.Upper.H
	}
	return c.H >= o.Lower.H || c.H <= o.Upper.H
}

// Blob is one connected in-range region.
type Blob struct {
	Box      image.Rectangle
	Area     int
	Centroid image.Point
}

// Detection converts the blob, scoring it by how much of its box it fills.
func (b Blob) Detection() vision.Detection {
	return vision.NewDetection(b.Box, float64(b.Area)/float64(b.Box.Dx()*b.Box.Dy()), "color")
}

// Processor is the color detection stage.
type Processor struct {
	opts Options

	mu        sync.Mutex
	mask      []bool
	blobs     []Blob
	lastFrame time.Time
}

// NewProcessor returns a color stage. Options are expected to be valid.
func NewProcessor(opts Options) *Processor {
	if opts.MinArea == 0 {
		opts.MinArea = DefaultMinArea
	}
	return &Processor{opts: opts}
}

// Name names the stage.
func (p *Processor) Name() string {
	return "color_detection"
}

// Options returns the stage's effective options.
func (p *Processor) Options() Options {
	return p.opts
}

// Init sizes the mask buffer for the stream.
func (p *Processor) Init(width, height int, calibration *camera.Intrinsics) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mask = make([]bool, width*height)
	p.blobs = nil
}

// ProcessFrame thresholds the frame and labels 4-connected regions.
func (p *Processor) ProcessFrame(ctx context.Context, frame *vision.Frame) (interface{}, error) {
	img := frame.Image
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	p.mu.Lock()
	mask := p.mask
	p.mu.Unlock()
	if len(mask) != width*height {
		mask = make([]bool, width*height)
	}

	for y := 0; y < height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+4*width]
		for x := 0; x < width; x++ {
			px := row[4*x : 4*x+3]
			mask[y*width+x] = p.opts.Contains(HSVFromRGB(px[0], px[1], px[2]))
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	blobs := p.label(mask, width, height, bounds.Min)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.mask = mask
	p.blobs = blobs
	p.lastFrame = frame.CaptureTime
	return blobs, nil
}

// label consumes mask, clearing every pixel it visits.
func (p *Processor) label(mask []bool, width, height int, origin image.Point) []Blob {
	var blobs []Blob
	queue := make([]int, 0, 64)
	for start := range mask {
		if !mask[start] {
			continue
		}
		mask[start] = false
		queue = append(queue[:0], start)
		x0, y0, x1, y1 := width, height, -1, -1
		sumX, sumY, area := 0, 0, 0
		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			x, y := idx%width, idx/width
			x0, x1 = min(x0, x), max(x1, x)
			y0, y1 = min(y0, y), max(y1, y)
			sumX += x
			sumY += y
			area++
			if x > 0 && mask[idx-1] {
				mask[idx-1] = false
				queue = append(queue, idx-1)
			}
			if x < width-1 && mask[idx+1] {
				mask[idx+1] = false
				queue = append(queue, idx+1)
			}
			if y > 0 && mask[idx-width] {
				mask[idx-width] = false
				queue = append(queue, idx-width)
			}
			if y < height-1 && mask[idx+width] {
				mask[idx+width] = false
				queue = append(queue, idx+width)
			}
		}
		if area < p.opts.MinArea {
			continue
		}
		blobs = append(blobs, Blob{
			Box:      image.Rect(x0, y0, x1+1, y1+1).Add(origin),
			Area:     area,
			Centroid: image.Pt(sumX/area, sumY/area).Add(origin),
		})
	}
	sort.SliceStable(blobs, func(i, j int) bool {
		return blobs[i].Area > blobs[j].Area
	})
	return blobs
}

// OnDrawFrame outlines each region and marks its centroid.
func (p *Processor) OnDrawFrame(dc *gg.Context, userContext interface{}) {
	blobs, ok := userContext.([]Blob)
	if !ok {
		return
	}
	for _, b := range blobs {
		vision.DrawRectangleEmpty(dc, b.Box, vision.Green, 2)
		vision.DrawCrosshair(dc, b.Centroid, 6, vision.Red)
	}
}

// Blobs returns the regions found on the latest processed frame, largest first.
func (p *Processor) Blobs() []Blob {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Blob(nil), p.blobs...)
}

// Detections returns the regions of the latest processed frame as detections, largest first.
func (p *Processor) Detections() []vision.Detection {
	blobs := p.Blobs()
	dets := make([]vision.Detection, 0, len(blobs))
	for _, b := range blobs {
		dets = append(dets, b.Detection())
	}
	return dets
}

// LastFrameTime returns the capture time of the latest processed frame.
func (p *Processor) LastFrameTime() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastFrame
}
