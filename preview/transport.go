package preview

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrNoTransport is returned when no preview transport has been installed.
var ErrNoTransport = errors.New("no preview transport installed")

// A Transport forwards frames from registered sources to remote viewers. Registration starts the
// forwarding in the background; the transport does not report delivery.
type Transport interface {
	StartCameraStream(src FrameSource, index int) error
	StopCameraStream(index int) error
}

type noTransport struct{}

func (noTransport) StartCameraStream(src FrameSource, index int) error {
	return ErrNoTransport
}

func (noTransport) StopCameraStream(index int) error {
	return ErrNoTransport
}

var (
	globalMu        sync.RWMutex
	globalTransport Transport = noTransport{}
)

// Global returns the process-wide transport. Until one is installed, it rejects every
// registration with ErrNoTransport.
func Global() Transport {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalTransport
}

// ReplaceGlobal installs t as the process-wide transport and returns a function restoring the
// previous one. A nil t uninstalls the current transport.
func ReplaceGlobal(t Transport) func() {
	globalMu.Lock()
	defer globalMu.Unlock()
	prev := globalTransport
	if t == nil {
		t = noTransport{}
	}
	globalTransport = t
	return func() {
		globalMu.Lock()
		globalTransport = prev
		globalMu.Unlock()
	}
}
