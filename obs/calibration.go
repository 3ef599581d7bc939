package obs

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"

	"go.viam.com/perception/logging"
	"go.viam.com/perception/rimage/transform"
)

// calibDecimation is the pixel stride used when sampling the range image.
const calibDecimation = 15

// Initial guess for the focal lengths, in pixels.
const initialFocalLength = 250

// cameraFromVector unpacks fx, fy, cx, cy, k1, k2, p1, p2.
func cameraFromVector(x []float64, base transform.CameraParams) transform.CameraParams {
	base.Fx, base.Fy, base.Ppx, base.Ppy = x[0], x[1], x[2], x[3]
	base.Distortion.RadialK1 = x[4]
	base.Distortion.RadialK2 = x[5]
	base.Distortion.TangentialP1 = x[6]
	base.Distortion.TangentialP2 = x[7]
	base.Distortion.RadialK3 = 0
	return base
}

type calibSample struct {
	row, col float64
	// point in the camera frame: x right, y down, z forward
	x, y, z float64
}

// RecoverCameraCalibrationParameters estimates the intrinsics of the camera that
// produced scan from its organized cloud and range image. The cloud is in the sensor
// frame (x forward, y left, z up) and cameraOffset is the distance in meters along +X
// from the cloud origin to the optical center. It returns the refined parameters and the
// average reprojection error, in pixels, over the sampled pixels.
func RecoverCameraCalibrationParameters(
	scan *RangeScan,
	cameraOffset float64,
	logger logging.Logger,
) (transform.CameraParams, float64, error) {
	if !scan.HasRangeImage || !scan.HasPoints3D {
		return transform.CameraParams{}, 0, errors.New("calibration needs both a range image and points")
	}
	if len(scan.Points.Y) != scan.Points.Len() || len(scan.Points.Z) != scan.Points.Len() {
		return transform.CameraParams{}, 0, errors.New("point coordinate arrays differ in length")
	}
	rows, cols := scan.RangeImage.Rows, scan.RangeImage.Cols
	if scan.Points.Len() < rows*cols {
		return transform.CameraParams{}, 0, errors.Errorf("cloud of %d points is not organized as %dx%d",
			scan.Points.Len(), rows, cols)
	}

	var samples []calibSample
	for r := 0; r < rows; r += calibDecimation {
		for c := 0; c < cols; c += calibDecimation {
			i := cols*r + c
			px := float64(scan.Points.X[i]) + cameraOffset
			py := float64(scan.Points.Y[i])
			pz := float64(scan.Points.Z[i])
			if px <= 0 {
				continue
			}
			samples = append(samples, calibSample{row: float64(r), col: float64(c), x: -py, y: -pz, z: px})
		}
	}
	if len(samples) == 0 {
		return transform.CameraParams{}, 0, errors.New("no usable points in front of the camera")
	}

	base := transform.CameraParams{Width: cols, Height: rows, FocalLengthMeters: cameraOffset}
	cost := func(x []float64) float64 {
		cam := cameraFromVector(x, base)
		var sum float64
		for _, s := range samples {
			u, v, _ := cam.PointToPixel(s.x, s.y, s.z)
			sum += (s.col-u)*(s.col-u) + (s.row-v)*(s.row-v)
		}
		return sum
	}
	problem := optimize.Problem{
		Func: cost,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, cost, x, nil)
		},
	}
	initial := []float64{initialFocalLength, initialFocalLength, float64(cols >> 1), float64(rows >> 1), 0, 0, 0, 0}
	settings := &optimize.Settings{
		MajorIterations:   1000,
		GradientThreshold: 1e-9,
	}

	result, err := optimize.Minimize(problem, initial, settings, &optimize.BFGS{})
	if result == nil {
		return transform.CameraParams{}, 0, errors.Wrap(err, "camera calibration failed")
	}
	// a stalled line search still leaves the best point found in result
	if err != nil {
		logger.Debugw("calibration stopped early", "status", result.Status, "error", err)
	}
	if math.IsNaN(result.F) || math.IsInf(result.F, 0) {
		return transform.CameraParams{}, 0, errors.Errorf("camera calibration diverged (status %v)", result.Status)
	}
	logger.Debugw("calibration done", "status", result.Status, "iterations", result.Stats.MajorIterations,
		"samples", len(samples))

	avgErr := math.Sqrt(result.F / float64(len(samples)))
	return cameraFromVector(result.X, base), avgErr, nil
}
