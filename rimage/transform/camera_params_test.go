package transform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/perception/serialization"
)

func sr4000() *CameraParams {
	return &CameraParams{
		Width:  176,
		Height: 144,
		Fx:     250.5,
		Fy:     249.75,
		Ppx:    88,
		Ppy:    72,
		Distortion: BrownConrady{
			RadialK1:     -0.8,
			RadialK2:     0.5,
			RadialK3:     0.01,
			TangentialP1: 0.002,
			TangentialP2: -0.001,
		},
		FocalLengthMeters: 0.01,
	}
}

func TestCameraParamsArchive(t *testing.T) {
	params := sr4000()
	ms := serialization.NewMemoryStream(nil)
	ar := serialization.New(ms)
	test.That(t, ar.WriteObject(params), test.ShouldBeNil)
	_, err := ms.Seek(0, 0)
	test.That(t, err, test.ShouldBeNil)

	got, err := serialization.ReadObjectAs[*CameraParams](ar)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, params)
}

func TestCameraParamsVersion0(t *testing.T) {
	ms := serialization.NewMemoryStream(nil)
	ar := serialization.New(ms)
	test.That(t, ar.WriteUint32(640), test.ShouldBeNil)
	test.That(t, ar.WriteUint32(480), test.ShouldBeNil)
	for _, v := range []float64{500, 501, 320, 240, 0.1, 0.2, 0.3, 0.4} {
		test.That(t, ar.WriteFloat64(v), test.ShouldBeNil)
	}
	_, err := ms.Seek(0, 0)
	test.That(t, err, test.ShouldBeNil)

	var got CameraParams
	got.FocalLengthMeters = 3
	test.That(t, got.Decode(ar, 0), test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, CameraParams{
		Width: 640, Height: 480, Fx: 500, Fy: 501, Ppx: 320, Ppy: 240,
		Distortion: BrownConrady{RadialK1: 0.1, RadialK2: 0.2, TangentialP1: 0.3, TangentialP2: 0.4},
	})
	test.That(t, ms.Len(), test.ShouldEqual, 0)

	err = got.Decode(ar, 2)
	test.That(t, errors.Is(err, serialization.ErrUnsupportedVersion), test.ShouldBeTrue)
}

func TestProjection(t *testing.T) {
	params := sr4000()
	for _, pt := range [][3]float64{{0, 0, 1}, {0.1, -0.2, 2}, {-0.3, 0.25, 1.5}} {
		u, v, ok := params.PointToPixel(pt[0], pt[1], pt[2])
		test.That(t, ok, test.ShouldBeTrue)
		x, y, z := params.PixelToPoint(u, v, pt[2])
		test.That(t, x, test.ShouldAlmostEqual, pt[0], 1e-6)
		test.That(t, y, test.ShouldAlmostEqual, pt[1], 1e-6)
		test.That(t, z, test.ShouldEqual, pt[2])
	}
	u, v, ok := params.PointToPixel(0, 0, 1)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, u, test.ShouldEqual, params.Ppx)
	test.That(t, v, test.ShouldEqual, params.Ppy)

	_, _, ok = params.PointToPixel(1, 1, 0)
	test.That(t, ok, test.ShouldBeFalse)

	var nilParams *CameraParams
	x, y, z := nilParams.PixelToPoint(1, 2, 3)
	test.That(t, []float64{x, y, z}, test.ShouldResemble, []float64{0, 0, 0})
	test.That(t, nilParams.GetCameraMatrix(), test.ShouldBeNil)

	m := params.GetCameraMatrix()
	test.That(t, m.At(0, 0), test.ShouldEqual, params.Fx)
	test.That(t, m.At(1, 2), test.ShouldEqual, params.Ppy)
	test.That(t, m.At(2, 2), test.ShouldEqual, 1.0)

	crop := params.Crop(10, 20, 30, 40)
	test.That(t, crop.Width, test.ShouldEqual, 30)
	test.That(t, crop.Height, test.ShouldEqual, 40)
	test.That(t, crop.Ppx, test.ShouldEqual, 78.0)
	test.That(t, crop.Ppy, test.ShouldEqual, 52.0)
	test.That(t, params.Ppx, test.ShouldEqual, 88.0)
}

func TestBrownConrady(t *testing.T) {
	bc, err := NewBrownConrady([]float64{0.1, 0.01, 0.001, 0.002})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bc.Parameters(), test.ShouldResemble, []float64{0.1, 0.01, 0.001, 0.002, 0})
	_, err = NewBrownConrady(make([]float64, 6))
	test.That(t, err, test.ShouldNotBeNil)

	xd, yd := bc.Distort(0.2, -0.1)
	xu, yu := bc.Undistort(xd, yd)
	test.That(t, xu, test.ShouldAlmostEqual, 0.2, 1e-9)
	test.That(t, yu, test.ShouldAlmostEqual, -0.1, 1e-9)

	var none BrownConrady
	test.That(t, none.IsZero(), test.ShouldBeTrue)
	xd, yd = none.Distort(0.3, 0.4)
	test.That(t, []float64{xd, yd}, test.ShouldResemble, []float64{0.3, 0.4})
}

func TestCameraParamsValidity(t *testing.T) {
	test.That(t, sr4000().CheckValid(), test.ShouldBeNil)

	var nilParams *CameraParams
	test.That(t, errors.Is(nilParams.CheckValid(), ErrNoIntrinsics), test.ShouldBeTrue)
	bad := sr4000()
	bad.Fx = 0
	test.That(t, errors.Is(bad.CheckValid(), ErrNoIntrinsics), test.ShouldBeTrue)
	bad = sr4000()
	bad.Width = 0
	test.That(t, bad.CheckValid(), test.ShouldNotBeNil)
	bad = sr4000()
	bad.Ppy = -1
	test.That(t, bad.CheckValid(), test.ShouldNotBeNil)
}

func TestCameraParamsFromJSONFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "cam.json")
	test.That(t, os.WriteFile(good, []byte(`{
		"width_px": 176, "height_px": 144,
		"fx": 250.5, "fy": 249.75, "ppx": 88, "ppy": 72,
		"distortion": {"rk1": -0.8, "tp2": -0.001},
		"focal_length_m": 0.01
	}`), 0o600), test.ShouldBeNil)
	params, err := NewCameraParamsFromJSONFile(good)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, params.Width, test.ShouldEqual, 176)
	test.That(t, params.Distortion.RadialK1, test.ShouldEqual, -0.8)
	test.That(t, params.Distortion.TangentialP2, test.ShouldEqual, -0.001)
	test.That(t, params.FocalLengthMeters, test.ShouldEqual, 0.01)

	invalid := filepath.Join(dir, "invalid.json")
	test.That(t, os.WriteFile(invalid, []byte(`{"width_px": 10}`), 0o600), test.ShouldBeNil)
	_, err = NewCameraParamsFromJSONFile(invalid)
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)

	broken := filepath.Join(dir, "broken.json")
	test.That(t, os.WriteFile(broken, []byte(`{`), 0o600), test.ShouldBeNil)
	_, err = NewCameraParamsFromJSONFile(broken)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewCameraParamsFromJSONFile(filepath.Join(dir, "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}
