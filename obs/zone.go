package obs

import (
	"github.com/pkg/errors"

	"go.viam.com/perception/payload"
)

// ZoneAsObs returns a new scan holding the rows [r1, r2) and columns [c1, c2) of this
// one: the matching part of each image, the organized points of those pixels and camera
// parameters cropped to the zone. Externally stored groups must be loaded first.
func (s *RangeScan) ZoneAsObs(r1, r2, c1, c2 int) (*RangeScan, error) {
	rows, cols := s.CameraParams.Height, s.CameraParams.Width
	if r1 < 0 || c1 < 0 || r1 >= r2 || c1 >= c2 || r2 > rows || c2 > cols {
		return nil, errors.Errorf("zone rows [%d, %d) cols [%d, %d) is not inside a %dx%d sensor",
			r1, r2, c1, c2, rows, cols)
	}
	if s.HasPoints3D && s.PointsState() == payload.ExternalUnloaded {
		return nil, errors.New("points are stored externally and not loaded")
	}
	if s.HasRangeImage && s.RangeImageState() == payload.ExternalUnloaded {
		return nil, errors.New("range image is stored externally and not loaded")
	}
	if s.HasIntensityImage && s.IntensityImage.ExternalState() == payload.ExternalUnloaded {
		return nil, errors.New("intensity image is stored externally and not loaded")
	}
	if s.HasConfidenceImage && s.ConfidenceImage.ExternalState() == payload.ExternalUnloaded {
		return nil, errors.New("confidence image is stored externally and not loaded")
	}

	zone := NewRangeScan()
	zone.Timestamp = s.Timestamp
	zone.SensorLabel = s.SensorLabel
	zone.MaxRange = s.MaxRange
	zone.SensorPose = s.SensorPose
	zone.StdError = s.StdError
	zone.CameraParams = s.CameraParams.Crop(c1, r1, c2-c1, r2-r1)
	zone.CameraParamsIntensity = s.CameraParamsIntensity.Crop(c1, r1, c2-c1, r2-r1)

	zone.HasRangeImage = s.HasRangeImage
	if s.HasRangeImage {
		sub, err := s.RangeImage.SubImage(r1, r2, c1, c2)
		if err != nil {
			return nil, err
		}
		zone.RangeImage = *sub
	}

	zone.HasIntensityImage = s.HasIntensityImage
	if s.HasIntensityImage {
		sub, err := s.IntensityImage.SubImage(c1, r1, c2-c1, r2-r1)
		if err != nil {
			return nil, errors.Wrap(err, "intensity image")
		}
		zone.IntensityImage = *sub
	}

	zone.HasConfidenceImage = s.HasConfidenceImage
	if s.HasConfidenceImage {
		sub, err := s.ConfidenceImage.SubImage(c1, r1, c2-c1, r2-r1)
		if err != nil {
			return nil, errors.Wrap(err, "confidence image")
		}
		zone.ConfidenceImage = *sub
	}

	zone.HasPoints3D = s.HasPoints3D
	if s.HasPoints3D {
		n := rows * cols
		if s.Points.Len() < n || len(s.Points.Y) < n || len(s.Points.Z) < n {
			return nil, errors.Errorf("cloud of %d points is not organized as %dx%d", s.Points.Len(), rows, cols)
		}
		for r := r1; r < r2; r++ {
			for c := c1; c < c2; c++ {
				i := r*cols + c
				zone.Points.Append(s.Points.X[i], s.Points.Y[i], s.Points.Z[i])
			}
		}
	}
	return zone, nil
}
