package preview

import (
	"context"
	"image"
	"image/color"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/teamcode/robotcv/vision"
)

type recordingTransport struct {
	started map[int]FrameSource
}

func (rt *recordingTransport) StartCameraStream(src FrameSource, index int) error {
	rt.started[index] = src
	return nil
}

func (rt *recordingTransport) StopCameraStream(index int) error {
	delete(rt.started, index)
	return nil
}

func TestRelay(t *testing.T) {
	r := NewRelay()
	test.That(t, r.Name(), test.ShouldEqual, "preview")
	r.Init(4, 2, nil)
	_, _, ok := r.LatestFrame()
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, r.Resolution().String(), test.ShouldEqual, "4x2")

	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	img.SetRGBA(1, 1, color.RGBA{255, 0, 0, 255})
	now := time.Now()
	out, err := r.ProcessFrame(context.Background(), &vision.Frame{Image: img, CaptureTime: now, Sequence: 1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldBeNil)

	// later drawing on the shared canvas does not reach the copy
	img.SetRGBA(1, 1, color.RGBA{0, 0, 255, 255})

	latest, captured, ok := r.LatestFrame()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, captured, test.ShouldEqual, now)
	red, _, blue, _ := latest.At(1, 1).RGBA()
	test.That(t, red>>8, test.ShouldEqual, uint32(255))
	test.That(t, blue, test.ShouldEqual, uint32(0))
	test.That(t, r.FramesRelayed(), test.ShouldEqual, uint64(1))

	r.Init(4, 2, nil)
	_, _, ok = r.LatestFrame()
	test.That(t, ok, test.ShouldBeFalse)
}

func TestGlobalTransport(t *testing.T) {
	test.That(t, Global().StartCameraStream(NewRelay(), 0), test.ShouldBeError, ErrNoTransport)
	test.That(t, Global().StopCameraStream(0), test.ShouldBeError, ErrNoTransport)

	rt := &recordingTransport{started: map[int]FrameSource{}}
	restore := ReplaceGlobal(rt)
	relay := NewRelay()
	test.That(t, Global().StartCameraStream(relay, 0), test.ShouldBeNil)
	test.That(t, rt.started[0], test.ShouldEqual, relay)

	uninstall := ReplaceGlobal(nil)
	test.That(t, Global().StartCameraStream(relay, 1), test.ShouldBeError, ErrNoTransport)
	uninstall()
	test.That(t, Global(), test.ShouldEqual, rt)

	restore()
	test.That(t, Global().StartCameraStream(relay, 0), test.ShouldBeError, ErrNoTransport)
}
