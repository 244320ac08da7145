package capture

import (
	"context"
	"image"
	"image/draw"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.viam.com/utils"

	"github.com/teamcode/robotcv/components/camera"
	"github.com/teamcode/robotcv/logging"
	"github.com/teamcode/robotcv/vision"
)

type session struct {
	id     uuid.UUID
	cfg    Config
	stream camera.VideoStream
	clock  clock.Clock
	logger logging.Logger

	mu        sync.RWMutex
	streaming bool
	closed    bool
	sequence  uint64
	delivered uint64
	liveFrame image.Image

	shutdownCtx             context.Context
	shutdownCtxCancel       func()
	activeBackgroundWorkers sync.WaitGroup
}

func newSession(cfg Config, stream camera.VideoStream, logger logging.Logger) *session {
	ctx, cancelFunc := context.WithCancel(context.Background())
	return &session{
		id:                uuid.New(),
		cfg:               cfg,
		stream:            stream,
		clock:             cfg.Clock,
		logger:            logger,
		streaming:         true,
		shutdownCtx:       ctx,
		shutdownCtxCancel: cancelFunc,
	}
}

func (s *session) start() {
	s.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(s.deliverFrames, s.activeBackgroundWorkers.Done)
}

func (s *session) ID() uuid.UUID {
	return s.id
}

func (s *session) Streaming() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streaming && !s.closed
}

func (s *session) FramesDelivered() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.delivered
}

func (s *session) LiveFrame() (image.Image, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.liveFrame, s.liveFrame != nil
}

// StopStreaming halts delivery. The camera stays open.
func (s *session) StopStreaming(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.streaming = false
	if s.cfg.AutoStopLiveView {
		s.liveFrame = nil
	}
	s.logger.Debugw("streaming stopped", "id", s.id.String())
	return nil
}

// ResumeStreaming restarts delivery on the next tick.
func (s *session) ResumeStreaming(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.streaming = true
	s.logger.Debugw("streaming resumed", "id", s.id.String())
	return nil
}

// Close stops the loop, waits for an in-flight frame to finish and releases the camera.
func (s *session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.closed = true
	s.streaming = false
	s.liveFrame = nil
	s.shutdownCtxCancel()
	s.mu.Unlock()

	s.activeBackgroundWorkers.Wait()
	if err := s.stream.Close(ctx); err != nil {
		return errors.Wrap(err, "cannot close camera stream")
	}
	s.logger.Infow("session closed", "id", s.id.String(), "frames", s.FramesDelivered())
	return nil
}

func (s *session) deliverFrames() {
	ticker := s.clock.Ticker(time.Second / time.Duration(s.cfg.FrameRate))
	defer ticker.Stop()
	for {
		select {
		case <-s.shutdownCtx.Done():
			return
		default:
		}
		select {
		case <-s.shutdownCtx.Done():
			return
		case <-ticker.C:
		}
		if !s.Streaming() {
			continue
		}
		s.deliverFrame(s.shutdownCtx)
	}
}

func (s *session) deliverFrame(ctx context.Context) {
	ctx, span := trace.StartSpan(ctx, "capture::session::deliverFrame")
	defer span.End()

	img, release, err := s.stream.Next(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warnw("failed to read frame", "error", err)
		}
		return
	}
	canvas := s.fit(img)
	if release != nil {
		release()
	}

	s.mu.Lock()
	s.sequence++
	frame := &vision.Frame{Image: canvas, CaptureTime: s.clock.Now(), Sequence: s.sequence}
	s.mu.Unlock()

	dc := vision.NewDrawContext(canvas)
	for _, p := range s.cfg.Processors {
		_, stageSpan := trace.StartSpan(ctx, "capture::session::"+vision.Name(p))
		out, err := p.ProcessFrame(ctx, frame)
		stageSpan.End()
		if err != nil {
			s.logger.Errorw("stage failed", "stage", vision.Name(p), "sequence", frame.Sequence, "error", err)
			continue
		}
		p.OnDrawFrame(dc, out)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered++
	if s.cfg.LiveView && s.streaming {
		s.liveFrame = canvas
	}
}

// fit copies img into a fresh canvas of the session resolution, scaling it when the camera
// delivered another size.
func (s *session) fit(img image.Image) *image.RGBA {
	res := s.cfg.Resolution
	if img.Bounds().Dx() != res.Width || img.Bounds().Dy() != res.Height {
		img = imaging.Resize(img, res.Width, res.Height, imaging.Linear)
	}
	canvas := image.NewRGBA(res.Bounds())
	draw.Draw(canvas, canvas.Bounds(), img, img.Bounds().Min, draw.Src)
	return canvas
}
