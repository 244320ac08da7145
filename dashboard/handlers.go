package dashboard

import (
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"time"

	"goji.io/pat"
	"golang.org/x/time/rate"
)

const (
	mjpegBoundary = "frame"
	// maxStreamFPS bounds streams when the config sets no rate.
	maxStreamFPS = 30
)

// StreamInfo describes one registered stream.
type StreamInfo struct {
	Index    int       `json:"index"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	HasFrame bool      `json:"has_frame"`
	Captured time.Time `json:"captured,omitempty"`
}

func (s *Server) listStreams(w http.ResponseWriter, r *http.Request) {
	indexes := s.Indexes()
	infos := make([]StreamInfo, 0, len(indexes))
	for _, idx := range indexes {
		src, ok := s.stream(idx)
		if !ok {
			continue
		}
		info := StreamInfo{Index: idx}
		if img, captured, ok := src.LatestFrame(); ok {
			info.HasFrame = true
			info.Width, info.Height = img.Bounds().Dx(), img.Bounds().Dy()
			info.Captured = captured
		}
		infos = append(infos, info)
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(infos); err != nil {
		s.logger.Debugw("error writing stream list", "error", err)
	}
}

// lookup resolves the :index parameter, writing the error response when it fails.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (int, bool) {
	idx, err := strconv.Atoi(pat.Param(r, "index"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid stream index: %s", err), http.StatusBadRequest)
		return 0, false
	}
	if _, ok := s.stream(idx); !ok {
		http.NotFound(w, r)
		return 0, false
	}
	return idx, true
}

func (s *Server) encode(w io.Writer, img image.Image) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: s.cfg.JPEGQuality})
}

// snapshotHandler serves the latest frame of a stream as a JPEG.
type snapshotHandler struct {
	s *Server
}

func (h *snapshotHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	idx, ok := h.s.lookup(w, r)
	if !ok {
		return
	}
	src, ok := h.s.stream(idx)
	if !ok {
		http.NotFound(w, r)
		return
	}
	img, _, ok := src.LatestFrame()
	if !ok {
		http.Error(w, "no frame yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	if err := h.s.encode(w, img); err != nil {
		h.s.logger.Debugw("error writing snapshot", "index", idx, "error", err)
	}
}

// mjpegHandler serves a stream as multipart/x-mixed-replace JPEGs, sending each frame at most
// once and no faster than the configured rate.
type mjpegHandler struct {
	s *Server
}

func (h *mjpegHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	idx, ok := h.s.lookup(w, r)
	if !ok {
		return
	}
	fps := h.s.cfg.MaxFPS
	if fps <= 0 {
		fps = maxStreamFPS
	}
	limiter := rate.NewLimiter(rate.Limit(fps), 1)

	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(mjpegBoundary); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	w.Header().Set("Cache-Control", "no-store")
	flusher, _ := w.(http.Flusher)

	ctx := r.Context()
	var last time.Time
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		src, ok := h.s.stream(idx)
		if !ok {
			return
		}
		img, captured, ok := src.LatestFrame()
		if !ok || !captured.After(last) {
			continue
		}
		last = captured

		part, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"image/jpeg"}})
		if err != nil {
			return
		}
		if err := h.s.encode(part, img); err != nil {
			h.s.logger.Debugw("stream client went away", "index", idx, "error", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
