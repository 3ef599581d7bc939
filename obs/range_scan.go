// Package obs holds sensor observations that can be archived and reloaded across every
// layout they have ever been written in.
package obs

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/perception/payload"
	"go.viam.com/perception/pointcloud"
	"go.viam.com/perception/rimage"
	"go.viam.com/perception/rimage/transform"
	"go.viam.com/perception/serialization"
	"go.viam.com/perception/spatialmath"
)

// RangeScanClassName is the archive class name of RangeScan.
const RangeScanClassName = "obs.RangeScan"

// Defaults for fields that older layouts or new scans do not set.
const (
	DefaultMaxRange = float32(5.0)
	DefaultStdError = float32(0.01)
)

// rangeScanVersion is the layout RangeScan is written in.
//
//	v0 points and a per point validity array that is read and dropped
//	v1 presence flags for points and the range, intensity and confidence images
//	v2 camera parameters
//	v3 external storage of points and range image
//	v4 separate camera parameters for the intensity channel
const rangeScanVersion = 4

func init() {
	serialization.MustRegister(RangeScanClassName, func() serialization.Serializable {
		return NewRangeScan()
	})
}

// A RangeScan is one frame of a 3D range camera such as a time of flight sensor. The
// cloud is organized: point i comes from pixel (i / cols, i % cols) of the range image.
//
// The points and each image may be kept in files of their own; see
// ConvertPointsToExternalStorage and Load.
type RangeScan struct {
	Timestamp   time.Time
	SensorLabel string

	// MaxRange is the largest range the sensor reports, in meters.
	MaxRange   float32
	SensorPose spatialmath.Pose
	// StdError is the standard deviation of range readings, in meters.
	StdError float32

	HasPoints3D bool
	Points      pointcloud.XYZ

	HasRangeImage bool
	RangeImage    rimage.RangeImage

	HasIntensityImage bool
	IntensityImage    rimage.GrayImage

	HasConfidenceImage bool
	ConfidenceImage    rimage.GrayImage

	CameraParams          transform.CameraParams
	CameraParamsIntensity transform.CameraParams

	pointsExternal     payload.Payload
	rangeImageExternal payload.Payload
}

// NewRangeScan returns an empty scan with default range settings.
func NewRangeScan() *RangeScan {
	return &RangeScan{MaxRange: DefaultMaxRange, StdError: DefaultStdError}
}

// ClassName implements serialization.Serializable.
func (s *RangeScan) ClassName() string {
	return RangeScanClassName
}

// SerializationVersion implements serialization.Serializable.
func (s *RangeScan) SerializationVersion() uint16 {
	return rangeScanVersion
}

// Encode implements serialization.Serializable. Offloaded field groups that are not
// loaded are written empty along with the name of their file.
func (s *RangeScan) Encode(ar *serialization.Archive) error {
	if err := ar.WriteFloat32(s.MaxRange); err != nil {
		return err
	}
	if err := ar.WriteObject(&s.SensorPose); err != nil {
		return err
	}

	if err := ar.WriteBool(s.HasPoints3D); err != nil {
		return err
	}
	if s.HasPoints3D {
		if err := s.Points.EncodeInline(ar); err != nil {
			return err
		}
	}

	if err := ar.WriteBool(s.HasRangeImage); err != nil {
		return err
	}
	if s.HasRangeImage {
		if err := s.RangeImage.EncodePayload(ar); err != nil {
			return err
		}
	}
	if err := writeOptionalImage(ar, s.HasIntensityImage, &s.IntensityImage); err != nil {
		return err
	}
	if err := writeOptionalImage(ar, s.HasConfidenceImage, &s.ConfidenceImage); err != nil {
		return err
	}

	if err := ar.WriteObject(&s.CameraParams); err != nil {
		return err
	}
	if err := ar.WriteObject(&s.CameraParamsIntensity); err != nil {
		return err
	}

	if err := ar.WriteFloat32(s.StdError); err != nil {
		return err
	}
	if err := ar.WriteTime(s.Timestamp); err != nil {
		return err
	}
	if err := ar.WriteString(s.SensorLabel); err != nil {
		return err
	}

	if err := s.pointsExternal.EncodeRef(ar); err != nil {
		return err
	}
	return s.rangeImageExternal.EncodeRef(ar)
}

func writeOptionalImage(ar *serialization.Archive, present bool, img *rimage.GrayImage) error {
	if err := ar.WriteBool(present); err != nil {
		return err
	}
	if !present {
		return nil
	}
	return ar.WriteObject(img)
}

func readOptionalImage(ar *serialization.Archive, img *rimage.GrayImage) (bool, error) {
	present, err := ar.ReadBool()
	if err != nil || !present {
		return false, err
	}
	return true, ar.ReadObjectInto(img)
}

// Decode implements serialization.Serializable. It reads every layout from version 0
// on and fills fields the layout predates with their defaults. The scan is only
// modified when the whole layout decodes.
func (s *RangeScan) Decode(ar *serialization.Archive, version uint16) error {
	if version > rangeScanVersion {
		return serialization.NewUnsupportedVersionError(s.ClassName(), version, rangeScanVersion)
	}
	out := NewRangeScan()

	var err error
	if out.MaxRange, err = ar.ReadFloat32(); err != nil {
		return err
	}
	if err := ar.ReadObjectInto(&out.SensorPose); err != nil {
		return err
	}

	out.HasPoints3D = true
	if version > 0 {
		if out.HasPoints3D, err = ar.ReadBool(); err != nil {
			return err
		}
	}
	if out.HasPoints3D {
		n, err := out.Points.DecodeInline(ar)
		if err != nil {
			return err
		}
		if version == 0 && n > 0 {
			if _, err := ar.ReadRawBytes(n); err != nil {
				return err
			}
		}
	}

	if version >= 1 {
		if out.HasRangeImage, err = ar.ReadBool(); err != nil {
			return err
		}
		if out.HasRangeImage {
			if err := out.RangeImage.DecodePayload(ar); err != nil {
				return err
			}
		}
		if out.HasIntensityImage, err = readOptionalImage(ar, &out.IntensityImage); err != nil {
			return err
		}
		if out.HasConfidenceImage, err = readOptionalImage(ar, &out.ConfidenceImage); err != nil {
			return err
		}
	}
	if version >= 2 {
		if err := ar.ReadObjectInto(&out.CameraParams); err != nil {
			return err
		}
	}
	if version >= 4 {
		if err := ar.ReadObjectInto(&out.CameraParamsIntensity); err != nil {
			return err
		}
	} else {
		out.CameraParamsIntensity = out.CameraParams
	}

	if out.StdError, err = ar.ReadFloat32(); err != nil {
		return err
	}
	if out.Timestamp, err = ar.ReadTime(); err != nil {
		return err
	}
	if out.SensorLabel, err = ar.ReadString(); err != nil {
		return err
	}

	if version >= 3 {
		if err := out.pointsExternal.DecodeRef(ar, &out.Points); err != nil {
			return err
		}
		if err := out.rangeImageExternal.DecodeRef(ar, &out.RangeImage); err != nil {
			return err
		}
	}

	*s = *out
	ar.Relocate(&out.SensorPose, &s.SensorPose)
	ar.Relocate(&out.IntensityImage, &s.IntensityImage)
	ar.Relocate(&out.ConfidenceImage, &s.ConfidenceImage)
	ar.Relocate(&out.CameraParams, &s.CameraParams)
	ar.Relocate(&out.CameraParamsIntensity, &s.CameraParamsIntensity)
	return nil
}

// PointsState returns where the points currently live.
func (s *RangeScan) PointsState() payload.State {
	return s.pointsExternal.State()
}

// RangeImageState returns where the range image currently lives.
func (s *RangeScan) RangeImageState() payload.State {
	return s.rangeImageExternal.State()
}

// PointsExternalPath returns the path of the points file in store, or "" when the
// points are not stored externally.
func (s *RangeScan) PointsExternalPath(store *payload.Store) string {
	return s.pointsExternal.AbsolutePath(store)
}

// RangeImageExternalPath returns the path of the range image file in store, or "" when
// the range image is not stored externally.
func (s *RangeScan) RangeImageExternalPath(store *payload.Store) string {
	return s.rangeImageExternal.AbsolutePath(store)
}

// PointsRef returns the external storage record of the points.
func (s *RangeScan) PointsRef() payload.Ref {
	return s.pointsExternal.Ref
}

// RangeImageRef returns the external storage record of the range image.
func (s *RangeScan) RangeImageRef() payload.Ref {
	return s.rangeImageExternal.Ref
}

// ConvertPointsToExternalStorage moves the points into the file called name. See
// payload.Payload.ConvertToExternalStorage.
func (s *RangeScan) ConvertPointsToExternalStorage(store *payload.Store, name, baseDirOverride string) error {
	if !s.HasPoints3D {
		return errors.New("scan has no points to store externally")
	}
	return s.pointsExternal.ConvertToExternalStorage(store, &s.Points, name, baseDirOverride)
}

// ConvertRangeImageToExternalStorage moves the range image into the file called name.
// See payload.Payload.ConvertToExternalStorage.
func (s *RangeScan) ConvertRangeImageToExternalStorage(store *payload.Store, name, baseDirOverride string) error {
	if !s.HasRangeImage {
		return errors.New("scan has no range image to store externally")
	}
	return s.rangeImageExternal.ConvertToExternalStorage(store, &s.RangeImage, name, baseDirOverride)
}

// ConvertIntensityImageToExternalStorage moves the intensity image into the file called
// name. See payload.Payload.ConvertToExternalStorage.
func (s *RangeScan) ConvertIntensityImageToExternalStorage(store *payload.Store, name, baseDirOverride string) error {
	if !s.HasIntensityImage {
		return errors.New("scan has no intensity image to store externally")
	}
	return s.IntensityImage.ConvertToExternalStorage(store, name, baseDirOverride)
}

// ConvertConfidenceImageToExternalStorage moves the confidence image into the file
// called name. See payload.Payload.ConvertToExternalStorage.
func (s *RangeScan) ConvertConfidenceImageToExternalStorage(store *payload.Store, name, baseDirOverride string) error {
	if !s.HasConfidenceImage {
		return errors.New("scan has no confidence image to store externally")
	}
	return s.ConfidenceImage.ConvertToExternalStorage(store, name, baseDirOverride)
}

// Load reads every externally stored field group into memory. A group that fails to
// load is left empty without affecting the others; the errors are combined.
func (s *RangeScan) Load(store *payload.Store) error {
	var err error
	if s.HasPoints3D {
		err = multierr.Append(err, s.pointsExternal.Load(store, &s.Points))
	}
	if s.HasRangeImage {
		err = multierr.Append(err, s.rangeImageExternal.Load(store, &s.RangeImage))
	}
	if s.HasIntensityImage {
		err = multierr.Append(err, s.IntensityImage.Load(store))
	}
	if s.HasConfidenceImage {
		err = multierr.Append(err, s.ConfidenceImage.Load(store))
	}
	return err
}

// Unload drops the in-memory copy of every externally stored field group. Groups that
// only live in memory are kept.
func (s *RangeScan) Unload() {
	if s.pointsExternal.StoredExternally {
		goutils.UncheckedError(s.pointsExternal.Unload(&s.Points))
	}
	if s.rangeImageExternal.StoredExternally {
		goutils.UncheckedError(s.rangeImageExternal.Unload(&s.RangeImage))
	}
	for _, img := range []*rimage.GrayImage{&s.IntensityImage, &s.ConfidenceImage} {
		if img.ExternalRef().StoredExternally {
			goutils.UncheckedError(img.Unload())
		}
	}
}

// UnloadPoints drops the in-memory copy of externally stored points. It fails with
// serialization.ErrNotExternal when the points only live in memory.
func (s *RangeScan) UnloadPoints() error {
	return s.pointsExternal.Unload(&s.Points)
}

// UnloadRangeImage drops the in-memory copy of an externally stored range image. It
// fails with serialization.ErrNotExternal when the image only lives in memory.
func (s *RangeScan) UnloadRangeImage() error {
	return s.rangeImageExternal.Unload(&s.RangeImage)
}
