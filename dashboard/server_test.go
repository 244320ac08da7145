package dashboard

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/teamcode/robotcv/logging"
	"github.com/teamcode/robotcv/preview"
	"github.com/teamcode/robotcv/vision"
)

func newRelay(t *testing.T, c color.RGBA) *preview.Relay {
	t.Helper()
	relay := preview.NewRelay()
	relay.Init(32, 24, nil)
	pushFrame(t, relay, c, time.Unix(100, 0))
	return relay
}

func pushFrame(t *testing.T, relay *preview.Relay, c color.RGBA, captured time.Time) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	_, err := relay.ProcessFrame(context.Background(), &vision.Frame{Image: img, CaptureTime: captured})
	test.That(t, err, test.ShouldBeNil)
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(Config{MaxFPS: 100, JPEGQuality: 90}, logging.NewTestLogger(t))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestRegistration(t *testing.T) {
	s, _ := newTestServer(t)
	relay := newRelay(t, color.RGBA{255, 0, 0, 255})

	test.That(t, s.StartCameraStream(relay, 0), test.ShouldBeNil)
	err := s.StartCameraStream(relay, 0)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "already registered")
	test.That(t, s.StartCameraStream(relay, -1), test.ShouldNotBeNil)
	test.That(t, s.StartCameraStream(nil, 1), test.ShouldNotBeNil)
	test.That(t, s.StartCameraStream(relay, 3), test.ShouldBeNil)
	test.That(t, s.Indexes(), test.ShouldResemble, []int{0, 3})

	test.That(t, s.StopCameraStream(3), test.ShouldBeNil)
	err = s.StopCameraStream(3)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, ErrStreamNotFound.Error())
	test.That(t, s.Indexes(), test.ShouldResemble, []int{0})

	var transport preview.Transport = s
	test.That(t, transport, test.ShouldNotBeNil)
}

func TestListStreams(t *testing.T) {
	s, ts := newTestServer(t)
	test.That(t, s.StartCameraStream(newRelay(t, color.RGBA{0, 0, 255, 255}), 0), test.ShouldBeNil)
	empty := preview.NewRelay()
	test.That(t, s.StartCameraStream(empty, 2), test.ShouldBeNil)

	resp, err := http.Get(ts.URL + "/streams")
	test.That(t, err, test.ShouldBeNil)
	defer resp.Body.Close()
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	test.That(t, resp.Header.Get("Content-Type"), test.ShouldEqual, "application/json")

	var infos []StreamInfo
	test.That(t, json.NewDecoder(resp.Body).Decode(&infos), test.ShouldBeNil)
	test.That(t, infos, test.ShouldHaveLength, 2)
	test.That(t, infos[0].Index, test.ShouldEqual, 0)
	test.That(t, infos[0].HasFrame, test.ShouldBeTrue)
	test.That(t, infos[0].Width, test.ShouldEqual, 32)
	test.That(t, infos[0].Height, test.ShouldEqual, 24)
	test.That(t, infos[1].Index, test.ShouldEqual, 2)
	test.That(t, infos[1].HasFrame, test.ShouldBeFalse)
}

func TestSnapshot(t *testing.T) {
	s, ts := newTestServer(t)
	test.That(t, s.StartCameraStream(newRelay(t, color.RGBA{255, 0, 0, 255}), 0), test.ShouldBeNil)
	test.That(t, s.StartCameraStream(preview.NewRelay(), 1), test.ShouldBeNil)

	resp, err := http.Get(ts.URL + "/snapshot/0")
	test.That(t, err, test.ShouldBeNil)
	defer resp.Body.Close()
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	test.That(t, resp.Header.Get("Content-Type"), test.ShouldEqual, "image/jpeg")
	img, err := jpeg.Decode(resp.Body)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds(), test.ShouldResemble, image.Rect(0, 0, 32, 24))
	r, g, b, _ := img.At(16, 12).RGBA()
	test.That(t, r>>8, test.ShouldBeGreaterThan, uint32(200))
	test.That(t, g>>8, test.ShouldBeLessThan, uint32(50))
	test.That(t, b>>8, test.ShouldBeLessThan, uint32(50))

	for path, status := range map[string]int{
		"/snapshot/1":    http.StatusServiceUnavailable,
		"/snapshot/7":    http.StatusNotFound,
		"/snapshot/abc":  http.StatusBadRequest,
		"/stream/7":      http.StatusNotFound,
		"/not/a/route/x": http.StatusNotFound,
	} {
		resp, err := http.Get(ts.URL + path)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, resp.Body.Close(), test.ShouldBeNil)
		test.That(t, resp.StatusCode, test.ShouldEqual, status)
	}
}

func TestCORS(t *testing.T) {
	_, ts := newTestServer(t)
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/streams", nil)
	test.That(t, err, test.ShouldBeNil)
	req.Header.Set("Origin", "http://driver-station.local")
	resp, err := http.DefaultClient.Do(req)
	test.That(t, err, test.ShouldBeNil)
	defer resp.Body.Close()
	test.That(t, resp.Header.Get("Access-Control-Allow-Origin"), test.ShouldEqual, "*")
}

func TestMJPEGStream(t *testing.T) {
	s, ts := newTestServer(t)
	relay := newRelay(t, color.RGBA{0, 255, 0, 255})
	test.That(t, s.StartCameraStream(relay, 0), test.ShouldBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/stream/0", nil)
	test.That(t, err, test.ShouldBeNil)
	resp, err := http.DefaultClient.Do(req)
	test.That(t, err, test.ShouldBeNil)
	defer resp.Body.Close()

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mediaType, test.ShouldEqual, "multipart/x-mixed-replace")
	reader := multipart.NewReader(resp.Body, params["boundary"])

	part, err := reader.NextPart()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, part.Header.Get("Content-Type"), test.ShouldEqual, "image/jpeg")
	img, err := jpeg.Decode(part)
	test.That(t, err, test.ShouldBeNil)
	_, g, _, _ := img.At(5, 5).RGBA()
	test.That(t, g>>8, test.ShouldBeGreaterThan, uint32(200))

	pushFrame(t, relay, color.RGBA{0, 0, 255, 255}, time.Unix(101, 0))
	part, err = reader.NextPart()
	test.That(t, err, test.ShouldBeNil)
	img, err = jpeg.Decode(part)
	test.That(t, err, test.ShouldBeNil)
	_, _, b, _ := img.At(5, 5).RGBA()
	test.That(t, b>>8, test.ShouldBeGreaterThan, uint32(200))
}

func TestStartClose(t *testing.T) {
	s := NewServer(Config{Address: "localhost:0", MaxFPS: 10, JPEGQuality: 75}, logging.NewTestLogger(t))
	test.That(t, s.Start(context.Background()), test.ShouldBeNil)
	test.That(t, s.Addr(), test.ShouldNotBeEmpty)
	test.That(t, s.StartCameraStream(newRelay(t, color.RGBA{255, 255, 255, 255}), 0), test.ShouldBeNil)

	resp, err := http.Get("http://" + s.Addr() + "/snapshot/0")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp.Body.Close(), test.ShouldBeNil)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)

	test.That(t, s.Close(context.Background()), test.ShouldBeNil)
	_, err = http.Get("http://" + s.Addr() + "/snapshot/0")
	test.That(t, err, test.ShouldNotBeNil)

	bad := NewServer(Config{Address: "256.0.0.1:bad"}, logging.NewTestLogger(t))
	test.That(t, bad.Start(context.Background()), test.ShouldNotBeNil)
	test.That(t, bad.Close(context.Background()), test.ShouldBeNil)
}
