// Package capture owns camera sessions: it opens a camera stream and runs the background loop
// that hands every frame to an ordered list of processing stages.
package capture

import (
	"context"
	"image"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.opencensus.io/trace"

	"github.com/teamcode/robotcv/components/camera"
	"github.com/teamcode/robotcv/logging"
	"github.com/teamcode/robotcv/vision"
)

// ErrSessionClosed is returned by every Session call made after Close.
var ErrSessionClosed = errors.New("capture session is closed")

// An Engine builds sessions.
type Engine interface {
	NewSession(ctx context.Context, cfg Config) (Session, error)
}

// A Session is a live binding between a camera stream and its stages. A new session is streaming.
type Session interface {
	ID() uuid.UUID
	Streaming() bool
	FramesDelivered() uint64
	// LiveFrame returns the last fully rendered frame when live view is enabled.
	LiveFrame() (image.Image, bool)

	StopStreaming(ctx context.Context) error
	ResumeStreaming(ctx context.Context) error
	Close(ctx context.Context) error
}

type engine struct {
	logger logging.Logger
}

// NewEngine returns an engine running each session's loop in its own goroutine.
func NewEngine(logger logging.Logger) Engine {
	return &engine{logger: logger}
}

// NewSession opens the camera, initializes every processor in order and starts streaming.
func (e *engine) NewSession(ctx context.Context, cfg Config) (Session, error) {
	ctx, span := trace.StartSpan(ctx, "capture::engine::NewSession")
	defer span.End()

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid capture config")
	}
	cfg = cfg.withDefaults()
	camName := cfg.Camera.Name().Name

	props, err := cfg.Camera.Properties(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read properties of camera %q", camName)
	}
	if !props.Supports(cfg.Resolution) {
		return nil, errors.Wrapf(camera.ErrUnsupportedResolution, "camera %q at %s", camName, cfg.Resolution)
	}
	stream, err := cfg.Camera.Stream(ctx, cfg.Resolution)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open camera %q", camName)
	}

	intrinsics := props.Intrinsics
	if intrinsics != nil && (intrinsics.Width != cfg.Resolution.Width || intrinsics.Height != cfg.Resolution.Height) {
		intrinsics = intrinsics.Scaled(cfg.Resolution)
	}
	for _, p := range cfg.Processors {
		p.Init(cfg.Resolution.Width, cfg.Resolution.Height, intrinsics)
	}

	s := newSession(cfg, stream, e.logger.Sublogger(camName))
	s.start()
	s.logger.Infow("session started", "id", s.id.String(), "resolution", cfg.Resolution.String(),
		"stages", stageNames(cfg.Processors))
	return s, nil
}

func stageNames(procs []vision.Processor) []string {
	return lo.Map(procs, func(p vision.Processor, _ int) string {
		return vision.Name(p)
	})
}
