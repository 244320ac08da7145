// Package dashboard serves pipeline previews over HTTP. It is the preview.Transport used on the
// robot: each registered stream is available as a JPEG snapshot and as an MJPEG stream that any
// browser can show.
package dashboard

import (
	"context"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/samber/lo"
	"go.viam.com/utils"
	"goji.io"
	"goji.io/pat"

	"github.com/teamcode/robotcv/logging"
	"github.com/teamcode/robotcv/preview"
)

// ErrStreamNotFound is returned when no stream is registered under an index.
var ErrStreamNotFound = errors.New("stream not found")

// Config configures the server.
type Config struct {
	Address     string
	MaxFPS      float64
	JPEGQuality int
}

// Server is an HTTP preview.Transport.
type Server struct {
	cfg    Config
	logger logging.Logger
	mux    *goji.Mux

	mu      sync.RWMutex
	streams map[int]preview.FrameSource

	httpServer              *http.Server
	addr                    string
	closeCtx                context.Context
	cancel                  func()
	activeBackgroundWorkers sync.WaitGroup
}

// NewServer returns a server with no streams. It does not listen until Start.
func NewServer(cfg Config, logger logging.Logger) *Server {
	closeCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		streams:  map[int]preview.FrameSource{},
		closeCtx: closeCtx,
		cancel:   cancel,
	}
	s.mux = goji.NewMux()
	s.mux.HandleFunc(pat.Get("/streams"), s.listStreams)
	s.mux.Handle(pat.Get("/snapshot/:index"), &snapshotHandler{s})
	s.mux.Handle(pat.Get("/stream/:index"), &mjpegHandler{s})
	return s
}

// StartCameraStream serves src under index. An index can only be registered once at a time.
func (s *Server) StartCameraStream(src preview.FrameSource, index int) error {
	if src == nil {
		return errors.New("cannot serve a nil frame source")
	}
	if index < 0 {
		return errors.Errorf("stream index cannot be negative, got %d", index)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.streams[index]; ok {
		return errors.Errorf("stream %d is already registered", index)
	}
	s.streams[index] = src
	s.logger.Infow("serving stream", "index", index)
	return nil
}

// StopCameraStream stops serving index. Open MJPEG connections for it end.
func (s *Server) StopCameraStream(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.streams[index]; !ok {
		return errors.Wrapf(ErrStreamNotFound, "stream %d", index)
	}
	delete(s.streams, index)
	s.logger.Infow("stopped serving stream", "index", index)
	return nil
}

func (s *Server) stream(index int) (preview.FrameSource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.streams[index]
	return src, ok
}

// Indexes returns the registered stream indexes in ascending order.
func (s *Server) Indexes() []int {
	s.mu.RLock()
	indexes := lo.Keys(s.streams)
	s.mu.RUnlock()
	sort.Ints(indexes)
	return indexes
}

// Handler returns the server's routes with CORS enabled for every origin.
func (s *Server) Handler() http.Handler {
	return cors.AllowAll().Handler(s.mux)
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.cfg.Address)
	if err != nil {
		return errors.Wrapf(err, "cannot listen on %q", s.cfg.Address)
	}

	s.mu.Lock()
	s.addr = listener.Addr().String()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.closeCtx },
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	s.logger.Infow("serving", "url", "http://"+listener.Addr().String())
	s.activeBackgroundWorkers.Add(1)
	utils.PanicCapturingGo(func() {
		defer s.activeBackgroundWorkers.Done()
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorw("error serving http", "error", err)
		}
	})
	return nil
}

// Addr returns the address the server listens on once started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Close ends open streams and stops the server.
func (s *Server) Close(ctx context.Context) error {
	s.cancel()
	s.mu.RLock()
	httpServer := s.httpServer
	s.mu.RUnlock()

	var err error
	if httpServer != nil {
		err = httpServer.Shutdown(ctx)
	}
	s.activeBackgroundWorkers.Wait()
	return err
}
