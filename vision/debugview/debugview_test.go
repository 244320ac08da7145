package debugview

import (
	"context"
	"image"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/teamcode/robotcv/components/camera"
	"github.com/teamcode/robotcv/vision"
)

func TestDebugProcessor(t *testing.T) {
	ctx := context.Background()
	p := NewProcessor()
	test.That(t, p.Name(), test.ShouldEqual, "debug")
	p.Init(64, 48, &camera.Intrinsics{Width: 64, Height: 48, Fx: 1, Fy: 1})
	test.That(t, p.Stats(), test.ShouldResemble, Stats{Width: 64, Height: 48, Calibrated: true})

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	var last interface{}
	for i := 0; i < 5; i++ {
		var err error
		last, err = p.ProcessFrame(ctx, &vision.Frame{
			Image:       img,
			CaptureTime: start.Add(time.Duration(i) * 50 * time.Millisecond),
			Sequence:    uint64(i + 10),
		})
		test.That(t, err, test.ShouldBeNil)
	}

	stats := p.Stats()
	test.That(t, stats.Frames, test.ShouldEqual, uint64(5))
	test.That(t, p.FrameCount(), test.ShouldEqual, uint64(5))
	test.That(t, stats.LastSequence, test.ShouldEqual, uint64(14))
	test.That(t, stats.LastCapture, test.ShouldEqual, start.Add(200*time.Millisecond))
	test.That(t, stats.FPS, test.ShouldAlmostEqual, 20.0, 0.001)
	test.That(t, last, test.ShouldResemble, stats)

	p.OnDrawFrame(vision.NewDrawContext(img), last)
	_, g, _, _ := img.At(32, 24).RGBA()
	test.That(t, g>>8, test.ShouldBeGreaterThan, uint32(100))

	// foreign contexts draw nothing
	blank := image.NewRGBA(image.Rect(0, 0, 8, 8))
	p.OnDrawFrame(vision.NewDrawContext(blank), "nope")
	test.That(t, blank.Pix, test.ShouldResemble, make([]uint8, len(blank.Pix)))

	p.Init(32, 24, nil)
	test.That(t, p.Stats(), test.ShouldResemble, Stats{Width: 32, Height: 24})
}
