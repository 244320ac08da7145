package fake

import (
	"context"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/lmittmann/ppm"
	"github.com/xfmoulet/qoi"
	"go.viam.com/test"

	"github.com/teamcode/robotcv/components/camera"
	"github.com/teamcode/robotcv/logging"
	"github.com/teamcode/robotcv/resource"
)

func TestFakeModel(t *testing.T) {
	intrinsics, width, height := fakeModel(1280, 720)
	test.That(t, width, test.ShouldEqual, 1280)
	test.That(t, height, test.ShouldEqual, 720)
	test.That(t, intrinsics, test.ShouldResemble, fakeIntrinsics)

	// (0,0) entry defaults to (1280, 720)
	_, width, height = fakeModel(0, 0)
	test.That(t, width, test.ShouldEqual, 1280)
	test.That(t, height, test.ShouldEqual, 720)

	// one unspecified side should keep 16:9 aspect ratio
	intrinsics, width, height = fakeModel(320, 0)
	test.That(t, width, test.ShouldEqual, 320)
	test.That(t, height, test.ShouldEqual, 180)
	test.That(t, intrinsics.Fx, test.ShouldAlmostEqual, fakeIntrinsics.Fx/4)
	test.That(t, intrinsics.CheckValid(), test.ShouldBeNil)

	_, width, height = fakeModel(0, 180)
	test.That(t, width, test.ShouldEqual, 320)
	test.That(t, height, test.ShouldEqual, 180)
}

func TestFakeCameraParams(t *testing.T) {
	// test odd width and height
	cfg := &Config{Width: 321}
	_, err := cfg.Validate("path")
	test.That(t, err, test.ShouldNotBeNil)
	cfg = &Config{Height: 321}
	_, err = cfg.Validate("path")
	test.That(t, err, test.ShouldNotBeNil)
	cfg = &Config{SquareSize: -1}
	_, err = cfg.Validate("path")
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewCamera(camera.Named("odd"), &Config{Width: 33}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFakeCameraStream(t *testing.T) {
	ctx := context.Background()
	cam, err := NewCamera(camera.Named("webcam"), &Config{Step: 4}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cam.Name(), test.ShouldResemble, resource.NewName(camera.API, "webcam"))

	props, err := cam.Properties(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, props.Supports(camera.Resolution{Width: 640, Height: 480}), test.ShouldBeTrue)
	test.That(t, props.Intrinsics, test.ShouldResemble, fakeIntrinsics)

	res := camera.Resolution{Width: 640, Height: 480}
	stream, err := cam.Stream(ctx, res)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cam.OpenStreams(), test.ShouldEqual, 1)

	img, release, err := stream.Next(ctx)
	test.That(t, err, test.ShouldBeNil)
	release()
	test.That(t, img.Bounds(), test.ShouldResemble, image.Rect(0, 0, 640, 480))

	square := cam.SquareBounds(res, 0)
	test.That(t, square.Dx(), test.ShouldEqual, 80)
	center := image.Pt((square.Min.X+square.Max.X)/2, (square.Min.Y+square.Max.Y)/2)
	test.That(t, img.At(center.X, center.Y), test.ShouldResemble, color.RGBA{240, 240, 240, 255})
	r, _, _, _ := img.At(0, 0).RGBA()
	test.That(t, r>>8, test.ShouldBeLessThan, uint32(100))

	// the square moves by step on the next frame
	_, _, err = stream.Next(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cam.SquareBounds(res, 1).Min.X, test.ShouldEqual, square.Min.X+4)

	test.That(t, stream.Close(ctx), test.ShouldBeNil)
	test.That(t, stream.Close(ctx), test.ShouldBeNil)
	test.That(t, cam.OpenStreams(), test.ShouldEqual, 0)
	_, _, err = stream.Next(ctx)
	test.That(t, err, test.ShouldBeError, errCameraClosed)

	_, err = cam.Stream(ctx, camera.Resolution{Width: 0, Height: 480})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unsupported resolution")

	test.That(t, cam.Close(ctx), test.ShouldBeNil)
	_, err = cam.Stream(ctx, res)
	test.That(t, err, test.ShouldBeError, errCameraClosed)
	test.That(t, cam.StreamsOpened(), test.ShouldEqual, 1)
}

func TestFileCamera(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)

	_, err := NewFileCamera(camera.Named("still"), &FileConfig{}, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "color_image_file_path")

	_, err = NewFileCamera(camera.Named("still"), &FileConfig{Path: filepath.Join(t.TempDir(), "missing.png")}, logger)
	test.That(t, err, test.ShouldNotBeNil)

	src := imaging.New(100, 50, color.NRGBA{0, 0, 255, 255})
	path := filepath.Join(t.TempDir(), "blue.png")
	test.That(t, imaging.Save(src, path), test.ShouldBeNil)

	cam, err := NewFileCamera(camera.Named("still"), &FileConfig{Path: path}, logger)
	test.That(t, err, test.ShouldBeNil)
	props, err := cam.Properties(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, props.Intrinsics, test.ShouldBeNil)

	img, err := camera.ReadImage(ctx, cam, camera.Resolution{Width: 50, Height: 25})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds().Dx(), test.ShouldEqual, 50)
	_, _, b, _ := img.At(10, 10).RGBA()
	test.That(t, b>>8, test.ShouldEqual, uint32(255))

	test.That(t, cam.Close(ctx), test.ShouldBeNil)
	_, err = camera.ReadImage(ctx, cam, camera.Resolution{Width: 50, Height: 25})
	test.That(t, err, test.ShouldBeError, errCameraClosed)
}

func TestFileCameraEncodings(t *testing.T) {
	green := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for i := 0; i < len(green.Pix); i += 4 {
		copy(green.Pix[i:i+4], []uint8{0, 255, 0, 255})
	}

	for _, tc := range []struct {
		ext    string
		encode func(io.Writer, image.Image) error
	}{
		{"ppm", ppm.Encode},
		{"qoi", qoi.Encode},
	} {
		t.Run(tc.ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "green."+tc.ext)
			f, err := os.Create(path)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, tc.encode(f, green), test.ShouldBeNil)
			test.That(t, f.Close(), test.ShouldBeNil)

			cam, err := NewFileCamera(camera.Named("still"), &FileConfig{Path: path}, logging.NewTestLogger(t))
			test.That(t, err, test.ShouldBeNil)
			img, err := camera.ReadImage(context.Background(), cam, camera.Resolution{Width: 8, Height: 6})
			test.That(t, err, test.ShouldBeNil)
			r, g, b, _ := img.At(4, 3).RGBA()
			test.That(t, r>>8, test.ShouldEqual, uint32(0))
			test.That(t, g>>8, test.ShouldEqual, uint32(255))
			test.That(t, b>>8, test.ShouldEqual, uint32(0))
		})
	}
}
