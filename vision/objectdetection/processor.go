// Package objectdetection implements the learned-model detection stage. Inference runs in an
// mlmodel.Service; the stage resizes frames for the model, decodes its outputs and filters them.
package objectdetection

import (
	"context"
	"sync"
	"time"

	"github.com/fogleman/gg"
	"github.com/pkg/errors"

	"github.com/teamcode/robotcv/components/camera"
	"github.com/teamcode/robotcv/logging"
	"github.com/teamcode/robotcv/services/mlmodel"
	"github.com/teamcode/robotcv/vision"
)

// DefaultModelName is the hardware map name the stage looks for when no model is passed.
const DefaultModelName = "detector"

// DefaultMinScore drops detections the model is not confident about.
const DefaultMinScore = 0.75

// Options configures the detection stage.
type Options struct {
	MinScore float64  `json:"min_score,omitempty"`
	MinArea  int      `json:"min_area,omitempty"`
	Labels   []string `json:"labels,omitempty"`
	// DarkThreshold enables the luminance blob detector when no model is attached.
	DarkThreshold float64 `json:"dark_threshold,omitempty"`
}

// Validate checks the thresholds are in range.
func (o Options) Validate() error {
	if o.MinScore < 0 || o.MinScore > 1 {
		return errors.Errorf("min_score must be within [0, 1], got %v", o.MinScore)
	}
	if o.MinArea < 0 {
		return errors.Errorf("min_area cannot be negative, got %d", o.MinArea)
	}
	if o.DarkThreshold < 0 || o.DarkThreshold > 256 {
		return errors.Errorf("dark_threshold must be within [0, 256], got %v", o.DarkThreshold)
	}
	return nil
}

// Processor is the object detection stage.
type Processor struct {
	opts   Options
	model  mlmodel.Service
	filter vision.Postprocessor
	logger logging.Logger

	mu          sync.Mutex
	detector    Detector
	detectorErr error
	detections []vision.Detection
	lastFrame  time.Time
	warned     bool
}

// NewProcessor returns a detection stage over model. A nil model is allowed: the stage then uses
// the dark blob detector when DarkThreshold is set and otherwise reports nothing.
func NewProcessor(opts Options, model mlmodel.Service, logger logging.Logger) *Processor {
	if opts.MinScore == 0 {
		opts.MinScore = DefaultMinScore
	}
	p := &Processor{
		opts:  opts,
		model: model,
		filter: vision.Chain(
			vision.NewScoreFilter(opts.MinScore),
			vision.NewAreaFilter(opts.MinArea),
			vision.NewLabelFilter(opts.Labels...),
			vision.SortByArea(),
		),
		logger: logger,
	}
	if model == nil && opts.DarkThreshold > 0 {
		p.detector = NewSimpleDetector(opts.DarkThreshold)
	}
	return p
}

// NewProcessorWithDetector returns a detection stage running det directly.
func NewProcessorWithDetector(opts Options, det Detector, logger logging.Logger) *Processor {
	p := NewProcessor(opts, nil, logger)
	p.detector = det
	return p
}

// Name names the stage.
func (p *Processor) Name() string {
	return "object_detection"
}

// Options returns the stage's effective options.
func (p *Processor) Options() Options {
	return p.opts
}

// Init clears previous results.
func (p *Processor) Init(width, height int, calibration *camera.Intrinsics) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detections = nil
	p.detectorErr = nil
	if p.model == nil && p.detector == nil && !p.warned {
		p.warned = true
		p.logger.Warnw("no detection model attached, no objects will be reported", "stage", p.Name())
	}
}

func (p *Processor) getDetector(ctx context.Context) (Detector, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.detector != nil || p.model == nil || p.detectorErr != nil {
		return p.detector, nil
	}
	det, err := NewModelDetector(ctx, p.model)
	if err != nil {
		// Reported once; the stage then reports nothing until the next Init.
		p.detectorErr = errors.Wrapf(err, "cannot use model %s", p.model.Name())
		p.logger.Errorw("detection model unusable, no objects will be reported", "stage", p.Name(), "error", p.detectorErr)
		return nil, p.detectorErr
	}
	p.detector = det
	return det, nil
}

// ProcessFrame runs the detector on the frame and keeps the filtered result.
func (p *Processor) ProcessFrame(ctx context.Context, frame *vision.Frame) (interface{}, error) {
	det, err := p.getDetector(ctx)
	if err != nil {
		return nil, err
	}
	if det == nil {
		return []vision.Detection(nil), nil
	}
	dets, err := det(ctx, frame.Image)
	if err != nil {
		return nil, err
	}
	dets = p.filter(dets)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.detections = dets
	p.lastFrame = frame.CaptureTime
	return dets, nil
}

// OnDrawFrame outlines and labels the detections of the frame.
func (p *Processor) OnDrawFrame(dc *gg.Context, userContext interface{}) {
	dets, ok := userContext.([]vision.Detection)
	if !ok {
		return
	}
	vision.DrawDetections(dc, dets, vision.Red)
}

// Detections returns the filtered detections of the latest processed frame, largest first.
func (p *Processor) Detections() []vision.Detection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]vision.Detection(nil), p.detections...)
}

// Recognitions is an alias of Detections.
func (p *Processor) Recognitions() []vision.Detection {
	return p.Detections()
}

// LastFrameTime returns the capture time of the latest processed frame.
func (p *Processor) LastFrameTime() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastFrame
}
