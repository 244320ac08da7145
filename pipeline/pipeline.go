// Package pipeline binds one processing stage to one camera. A CameraPipeline owns the capture
// session built for the stage, optionally mirrors the rendered frames to the preview transport,
// and exposes a small lifecycle: pause, resume and destroy.
package pipeline

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/teamcode/robotcv/capture"
	"github.com/teamcode/robotcv/components/camera"
	"github.com/teamcode/robotcv/logging"
	"github.com/teamcode/robotcv/preview"
	"github.com/teamcode/robotcv/resource"
	"github.com/teamcode/robotcv/vision"
)

// State is the lifecycle state of a pipeline.
type State int

// The pipeline states. Uninitialized is never observed by callers: construction either returns a
// Running pipeline or an error.
const (
	Uninitialized State = iota
	Running
	Paused
	Destroyed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Destroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// CameraPipeline runs a stage of type T on a camera. The caller keeps polling the stage itself
// for results; the pipeline never copies them.
type CameraPipeline[T vision.Processor] struct {
	cfg       Config
	cam       camera.Camera
	hw        resource.Provider
	processor T
	relay     *preview.Relay
	stages    []vision.Processor
	opts      options
	logger    logging.Logger

	mu                sync.Mutex
	state             State
	session           capture.Session
	previewRegistered bool
}

// New builds a session for stage on cam at res and starts streaming. With enablePreview, a
// preview relay is attached after stage and registered with the transport at stream index 0;
// a failed registration is logged and does not stop the pipeline.
func New[T vision.Processor](
	ctx context.Context,
	stage T,
	cam camera.Camera,
	res camera.Resolution,
	enablePreview bool,
	opts ...Option,
) (*CameraPipeline[T], error) {
	if isNil(stage) {
		return nil, fmt.Errorf("%w: a processing stage is required", ErrInvalidConfig)
	}
	if cam == nil {
		return nil, fmt.Errorf("%w: no camera given", ErrCameraUnavailable)
	}
	cfg, err := NewConfig(cam.Name().Name, res.Width, res.Height, enablePreview)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	if o.frameRate < 0 || o.frameRate > capture.MaxFrameRate {
		return nil, fmt.Errorf("%w: frame rate %d is outside 0..%d", ErrInvalidConfig, o.frameRate, capture.MaxFrameRate)
	}

	p := &CameraPipeline[T]{
		cfg:       cfg,
		cam:       cam,
		processor: stage,
		stages:    []vision.Processor{stage},
		opts:      o,
		logger:    o.logger,
	}
	if enablePreview {
		p.relay = preview.NewRelay()
		p.stages = append(p.stages, p.relay)
	}

	session, err := p.newSession(ctx)
	if err != nil {
		return nil, err
	}
	p.session = session
	p.state = Running
	if enablePreview {
		p.registerPreview()
	}
	p.logger.Infow("pipeline running", "config", cfg.String(), "stage", vision.Name(stage), "session", session.ID().String())
	return p, nil
}

// NewFromConfig resolves the camera named by cfg in hw and calls New. The pipeline keeps hw so
// Rebuild picks up a camera rebound under the same name.
func NewFromConfig[T vision.Processor](
	ctx context.Context,
	stage T,
	hw resource.Provider,
	cfg Config,
	opts ...Option,
) (*CameraPipeline[T], error) {
	if cfg.isZero() {
		return nil, fmt.Errorf("%w: config was not built with NewConfig", ErrInvalidConfig)
	}
	cam, err := camera.FromProvider(hw, cfg.CameraName())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
	}
	p, err := New(ctx, stage, cam, cfg.Resolution(), cfg.PreviewEnabled(), opts...)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.hw = hw
	p.mu.Unlock()
	return p, nil
}

func (p *CameraPipeline[T]) newSession(ctx context.Context) (capture.Session, error) {
	session, err := p.opts.engine.NewSession(ctx, capture.Config{
		Camera:           p.cam,
		Resolution:       p.cfg.Resolution(),
		Processors:       p.stages,
		AutoStopLiveView: !p.cfg.PreviewEnabled(),
		LiveView:         p.cfg.PreviewEnabled(),
		FrameRate:        p.opts.frameRate,
		Clock:            p.opts.clock,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrCameraUnavailable, p.cfg.CameraName(), err)
	}
	return session, nil
}

func (p *CameraPipeline[T]) registerPreview() {
	if err := p.opts.transport.StartCameraStream(p.relay, PreviewStreamIndex); err != nil {
		p.logger.Warnw("preview unavailable, continuing without it", "camera", p.cfg.CameraName(), "error", err)
		return
	}
	p.previewRegistered = true
}

// Pause halts frame delivery without releasing the camera. Pausing a pipeline that is not
// running fails with ErrInvalidState.
func (p *CameraPipeline[T]) Pause(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Running {
		return fmt.Errorf("%w: cannot pause a %s pipeline", ErrInvalidState, p.state)
	}
	if err := p.session.StopStreaming(ctx); err != nil {
		return err
	}
	p.state = Paused
	return nil
}

// Resume restarts frame delivery on a paused pipeline. Resuming a pipeline that is not paused
// fails with ErrInvalidState.
func (p *CameraPipeline[T]) Resume(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Paused {
		return fmt.Errorf("%w: cannot resume a %s pipeline", ErrInvalidState, p.state)
	}
	if err := p.session.ResumeStreaming(ctx); err != nil {
		return err
	}
	p.state = Running
	return nil
}

// Destroy stops the preview registration and releases the session and camera. The pipeline is
// destroyed afterwards even if releasing failed. Destroying twice is a no-op.
func (p *CameraPipeline[T]) Destroy(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Destroyed {
		return nil
	}
	p.state = Destroyed
	err := p.release(ctx)
	p.logger.Infow("pipeline destroyed", "config", p.cfg.String())
	return err
}

// release must be called with mu held.
func (p *CameraPipeline[T]) release(ctx context.Context) error {
	p.stopPreview()
	if p.session == nil {
		return nil
	}
	err := p.session.Close(ctx)
	p.session = nil
	return err
}

func (p *CameraPipeline[T]) stopPreview() {
	if !p.previewRegistered {
		return
	}
	p.previewRegistered = false
	if err := p.opts.transport.StopCameraStream(PreviewStreamIndex); err != nil {
		p.logger.Debugw("failed to stop preview", "error", err)
	}
}

// Rebuild closes the current session and reattaches the same stages to the same camera in a new
// one, leaving the pipeline running. A pipeline built by NewFromConfig resolves its camera name
// again first. If the new session cannot be built the pipeline is destroyed. Rebuilding a
// destroyed pipeline fails with ErrInvalidState.
func (p *CameraPipeline[T]) Rebuild(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Destroyed {
		return fmt.Errorf("%w: cannot rebuild a %s pipeline", ErrInvalidState, p.state)
	}
	var errs error
	if err := p.session.Close(ctx); err != nil {
		errs = multierr.Combine(errs, err)
	}
	if p.hw != nil {
		cam, err := camera.FromProvider(p.hw, p.cfg.CameraName())
		if err != nil {
			p.session = nil
			p.state = Destroyed
			p.stopPreview()
			return multierr.Combine(fmt.Errorf("%w: %w", ErrCameraUnavailable, err), errs)
		}
		p.cam = cam
	}
	session, err := p.newSession(ctx)
	if err != nil {
		p.session = nil
		p.state = Destroyed
		p.stopPreview()
		return multierr.Combine(err, errs)
	}
	p.session = session
	p.state = Running
	if p.cfg.PreviewEnabled() && !p.previewRegistered {
		p.registerPreview()
	}
	if errs != nil {
		p.logger.Warnw("previous session did not close cleanly", "error", errs)
	}
	return nil
}

// State returns the current lifecycle state. It is safe to call from any goroutine.
func (p *CameraPipeline[T]) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Processor returns the stage the pipeline was built with.
func (p *CameraPipeline[T]) Processor() T {
	return p.processor
}

// Config returns the pipeline's config.
func (p *CameraPipeline[T]) Config() Config {
	return p.cfg
}

// Stages returns the stages in the order every frame visits them.
func (p *CameraPipeline[T]) Stages() []vision.Processor {
	return append([]vision.Processor(nil), p.stages...)
}

// PreviewRelay returns the preview relay when preview is enabled.
func (p *CameraPipeline[T]) PreviewRelay() (*preview.Relay, bool) {
	return p.relay, p.relay != nil
}

// PreviewRegistered returns whether the transport accepted the preview relay.
func (p *CameraPipeline[T]) PreviewRegistered() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.previewRegistered
}

// SessionID returns the ID of the current capture session, or the zero UUID once destroyed.
func (p *CameraPipeline[T]) SessionID() uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return uuid.Nil
	}
	return p.session.ID()
}

// FramesDelivered returns how many frames the current session has delivered.
func (p *CameraPipeline[T]) FramesDelivered() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return 0
	}
	return p.session.FramesDelivered()
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
