// Package fiducial implements the tag detection stage. Decoding is delegated to a Detector backend;
// the stage owns scheduling, result bookkeeping and overlays.
package fiducial

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/pkg/errors"

	"github.com/teamcode/robotcv/components/camera"
	"github.com/teamcode/robotcv/logging"
	"github.com/teamcode/robotcv/vision"
)

const (
	// DefaultFamily is the tag family looked for when none is configured.
	DefaultFamily = "tag36h11"
	// DefaultTagSize is the printed black-border edge length in meters.
	DefaultTagSize = 0.166
)

// Options configures the tag stage.
type Options struct {
	DrawTagOutline     bool    `json:"draw_tag_outline"`
	DrawTagID          bool    `json:"draw_tag_id"`
	DrawAxes           bool    `json:"draw_axes"`
	DrawCubeProjection bool    `json:"draw_cube_projection"`
	Family             string  `json:"family,omitempty"`
	TagSize            float64 `json:"tag_size,omitempty"`
}

// AllDrawing returns options with every overlay set to draw.
func AllDrawing(draw bool) Options {
	return Options{
		DrawTagOutline:     draw,
		DrawTagID:          draw,
		DrawAxes:           draw,
		DrawCubeProjection: draw,
	}
}

// Validate checks the tag size is usable.
func (o Options) Validate() error {
	if o.TagSize < 0 || math.IsNaN(o.TagSize) {
		return errors.Errorf("tag_size must be positive, got %v", o.TagSize)
	}
	return nil
}

// Processor is the tag detection stage.
type Processor struct {
	opts     Options
	detector Detector
	logger   logging.Logger

	mu          sync.Mutex
	calibration *camera.Intrinsics
	detections  []TagDetection
	lastFrame   time.Time
	warned      bool
}

// NewProcessor returns a tag stage. A nil detector is allowed: the stage then reports no tags.
func NewProcessor(opts Options, detector Detector, logger logging.Logger) *Processor {
	if opts.Family == "" {
		opts.Family = DefaultFamily
	}
	if opts.TagSize == 0 {
		opts.TagSize = DefaultTagSize
	}
	return &Processor{opts: opts, detector: detector, logger: logger}
}

// Name names the stage.
func (p *Processor) Name() string {
	return "apriltag"
}

// Options returns the stage's effective options.
func (p *Processor) Options() Options {
	return p.opts
}

// HasDetector returns whether a decoding backend is attached.
func (p *Processor) HasDetector() bool {
	return p.detector != nil
}

// Init keeps the calibration for pose estimation.
func (p *Processor) Init(width, height int, calibration *camera.Intrinsics) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calibration = calibration
	p.detections = nil
	if p.detector == nil && !p.warned {
		p.warned = true
		p.logger.Warnw("no tag detector attached, no tags will be reported", "stage", p.Name())
	}
	if calibration == nil && (p.opts.DrawAxes || p.opts.DrawCubeProjection) {
		p.logger.Infow("camera is uncalibrated, pose overlays disabled", "width", width, "height", height)
	}
}

// ProcessFrame runs the backend on a grayscale copy of the frame.
func (p *Processor) ProcessFrame(ctx context.Context, frame *vision.Frame) (interface{}, error) {
	if p.detector == nil {
		return []TagDetection(nil), nil
	}
	p.mu.Lock()
	params := DetectParams{Family: p.opts.Family, TagSize: p.opts.TagSize, Intrinsics: p.calibration}
	p.mu.Unlock()

	gray := imaging.Grayscale(frame.Image)
	dets, err := p.detector.Detect(ctx, gray, params)
	if err != nil {
		return nil, errors.Wrap(err, "tag detection failed")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.detections = dets
	p.lastFrame = frame.CaptureTime
	return dets, nil
}

// OnDrawFrame renders the overlays selected in Options.
func (p *Processor) OnDrawFrame(dc *gg.Context, userContext interface{}) {
	dets, ok := userContext.([]TagDetection)
	if !ok {
		return
	}
	p.mu.Lock()
	calibration := p.calibration
	p.mu.Unlock()

	for _, det := range dets {
		if p.opts.DrawTagOutline {
			corners := make([]gg.Point, 0, len(det.Corners))
			for _, c := range det.Corners {
				corners = append(corners, gg.Point{X: c.X, Y: c.Y})
			}
			vision.DrawPolygon(dc, corners, vision.Green, 2)
		}
		if p.opts.DrawTagID {
			vision.DrawString(dc, fmt.Sprintf("id %d", det.ID),
				image.Pt(int(det.Center.X), int(det.Center.Y)), vision.Red, 14)
		}
		if det.Pose == nil || calibration == nil {
			continue
		}
		if p.opts.DrawAxes {
			p.drawAxes(dc, calibration, *det.Pose)
		}
		if p.opts.DrawCubeProjection {
			p.drawCube(dc, calibration, *det.Pose)
		}
	}
}

func (p *Processor) project(calibration *camera.Intrinsics, pose Pose, x, y, z float64) (gg.Point, bool) {
	cx, cy, cz := pose.Apply(x, y, z)
	if cz <= 0 {
		return gg.Point{}, false
	}
	px, py := calibration.PointToPixel(cx, cy, cz)
	return gg.Point{X: px, Y: py}, true
}

func (p *Processor) drawAxes(dc *gg.Context, calibration *camera.Intrinsics, pose Pose) {
	length := p.opts.TagSize / 2
	origin, ok := p.project(calibration, pose, 0, 0, 0)
	if !ok {
		return
	}
	for _, axis := range []struct {
		x, y, z float64
		c       color.Color
	}{
		{length, 0, 0, vision.Red},
		{0, length, 0, vision.Green},
		{0, 0, -length, vision.Blue},
	} {
		tip, ok := p.project(calibration, pose, axis.x, axis.y, axis.z)
		if !ok {
			continue
		}
		vision.DrawLine(dc, origin, tip, axis.c, 3)
	}
}

func (p *Processor) drawCube(dc *gg.Context, calibration *camera.Intrinsics, pose Pose) {
	half := p.opts.TagSize / 2
	base := [4][2]float64{{-half, -half}, {half, -half}, {half, half}, {-half, half}}
	var bottom, top [4]gg.Point
	for i, corner := range base {
		var ok bool
		if bottom[i], ok = p.project(calibration, pose, corner[0], corner[1], 0); !ok {
			return
		}
		if top[i], ok = p.project(calibration, pose, corner[0], corner[1], -p.opts.TagSize); !ok {
			return
		}
	}
	vision.DrawPolygon(dc, bottom[:], vision.Green, 2)
	vision.DrawPolygon(dc, top[:], vision.Green, 2)
	for i := range base {
		vision.DrawLine(dc, bottom[i], top[i], vision.Green, 2)
	}
}

// Detections returns the tags seen on the latest processed frame.
func (p *Processor) Detections() []TagDetection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]TagDetection(nil), p.detections...)
}

// Detection returns the latest sighting of the tag with the given ID.
func (p *Processor) Detection(id int) (TagDetection, bool) {
	for _, det := range p.Detections() {
		if det.ID == id {
			return det, true
		}
	}
	return TagDetection{}, false
}

// LastFrameTime returns the capture time of the latest processed frame.
func (p *Processor) LastFrameTime() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastFrame
}

func hypot3(x, y, z float64) float64 {
	return math.Sqrt(x*x + y*y + z*z)
}
