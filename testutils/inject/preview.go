package inject

import (
	"github.com/teamcode/robotcv/preview"
)

// Transport is an injected preview transport.
type Transport struct {
	preview.Transport
	StartCameraStreamFunc func(src preview.FrameSource, index int) error
	StopCameraStreamFunc  func(index int) error
}

// StartCameraStream calls the injected StartCameraStream or the real version.
func (t *Transport) StartCameraStream(src preview.FrameSource, index int) error {
	if t.StartCameraStreamFunc == nil {
		return t.Transport.StartCameraStream(src, index)
	}
	return t.StartCameraStreamFunc(src, index)
}

// StopCameraStream calls the injected StopCameraStream or the real version.
func (t *Transport) StopCameraStream(index int) error {
	if t.StopCameraStreamFunc == nil {
		return t.Transport.StopCameraStream(index)
	}
	return t.StopCameraStreamFunc(index)
}
