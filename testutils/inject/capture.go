package inject

import (
	"context"
	"image"

	"github.com/google/uuid"

	"github.com/teamcode/robotcv/capture"
)

// Engine is an injected capture engine.
type Engine struct {
	capture.Engine
	NewSessionFunc func(ctx context.Context, cfg capture.Config) (capture.Session, error)
}

// NewSession calls the injected NewSession or the real version.
func (e *Engine) NewSession(ctx context.Context, cfg capture.Config) (capture.Session, error) {
	if e.NewSessionFunc == nil {
		return e.Engine.NewSession(ctx, cfg)
	}
	return e.NewSessionFunc(ctx, cfg)
}

// Session is an injected capture session.
type Session struct {
	capture.Session
	IDFunc              func() uuid.UUID
	StreamingFunc       func() bool
	FramesDeliveredFunc func() uint64
	LiveFrameFunc       func() (image.Image, bool)
	StopStreamingFunc   func(ctx context.Context) error
	ResumeStreamingFunc func(ctx context.Context) error
	CloseFunc           func(ctx context.Context) error
}

// ID calls the injected ID or the real version.
func (s *Session) ID() uuid.UUID {
	if s.IDFunc == nil {
		return s.Session.ID()
	}
	return s.IDFunc()
}

// Streaming calls the injected Streaming or the real version.
func (s *Session) Streaming() bool {
	if s.StreamingFunc == nil {
		return s.Session.Streaming()
	}
	return s.StreamingFunc()
}

// FramesDelivered calls the injected FramesDelivered or the real version.
func (s *Session) FramesDelivered() uint64 {
	if s.FramesDeliveredFunc == nil {
		return s.Session.FramesDelivered()
	}
	return s.FramesDeliveredFunc()
}

// LiveFrame calls the injected LiveFrame or the real version.
func (s *Session) LiveFrame() (image.Image, bool) {
	if s.LiveFrameFunc == nil {
		return s.Session.LiveFrame()
	}
	return s.LiveFrameFunc()
}

// StopStreaming calls the injected StopStreaming or the real version.
func (s *Session) StopStreaming(ctx context.Context) error {
	if s.StopStreamingFunc == nil {
		return s.Session.StopStreaming(ctx)
	}
	return s.StopStreamingFunc(ctx)
}

// ResumeStreaming calls the injected ResumeStreaming or the real version.
func (s *Session) ResumeStreaming(ctx context.Context) error {
	if s.ResumeStreamingFunc == nil {
		return s.Session.ResumeStreaming(ctx)
	}
	return s.ResumeStreamingFunc(ctx)
}

// Close calls the injected Close or the real version.
func (s *Session) Close(ctx context.Context) error {
	if s.CloseFunc == nil {
		return s.Session.Close(ctx)
	}
	return s.CloseFunc(ctx)
}
