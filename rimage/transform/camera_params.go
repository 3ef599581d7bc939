// Package transform holds camera models used to move between pixels and 3D points.
package transform

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/perception/serialization"
)

// CameraParamsClassName is the archive class name of CameraParams.
const CameraParamsClassName = "transform.CameraParams"

func init() {
	serialization.MustRegister(CameraParamsClassName, func() serialization.Serializable {
		return &CameraParams{}
	})
}

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intriniscs are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// CameraParams is a pinhole camera with Brown-Conrady lens distortion.
type CameraParams struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`

	Distortion BrownConrady `json:"distortion"`
	// FocalLengthMeters is the physical focal length, zero when unknown.
	FocalLengthMeters float64 `json:"focal_length_m"`
}

// ClassName implements serialization.Serializable.
func (params *CameraParams) ClassName() string {
	return CameraParamsClassName
}

// SerializationVersion implements serialization.Serializable.
func (params *CameraParams) SerializationVersion() uint16 {
	return 1
}

// Encode implements serialization.Serializable.
func (params *CameraParams) Encode(ar *serialization.Archive) error {
	if params.Width < 0 || params.Height < 0 || uint64(params.Width) > math.MaxUint32 || uint64(params.Height) > math.MaxUint32 {
		return errors.Errorf("invalid camera size (%d, %d)", params.Width, params.Height)
	}
	if err := ar.WriteUint32(uint32(params.Width)); err != nil {
		return err
	}
	if err := ar.WriteUint32(uint32(params.Height)); err != nil {
		return err
	}
	d := params.Distortion
	for _, v := range []float64{
		params.Fx, params.Fy, params.Ppx, params.Ppy,
		d.RadialK1, d.RadialK2, d.TangentialP1, d.TangentialP2,
		d.RadialK3, params.FocalLengthMeters,
	} {
		if err := ar.WriteFloat64(v); err != nil {
			return err
		}
	}
	return nil
}

// Decode implements serialization.Serializable. Version 0 has no third radial term and
// no physical focal length.
func (params *CameraParams) Decode(ar *serialization.Archive, version uint16) error {
	if version > params.SerializationVersion() {
		return serialization.NewUnsupportedVersionError(params.ClassName(), version, params.SerializationVersion())
	}
	width, err := ar.ReadUint32()
	if err != nil {
		return err
	}
	height, err := ar.ReadUint32()
	if err != nil {
		return err
	}
	n := 8
	if version >= 1 {
		n = 10
	}
	var vs [10]float64
	for i := 0; i < n; i++ {
		if vs[i], err = ar.ReadFloat64(); err != nil {
			return err
		}
	}
	*params = CameraParams{
		Width:  int(width),
		Height: int(height),
		Fx:     vs[0],
		Fy:     vs[1],
		Ppx:    vs[2],
		Ppy:    vs[3],
		Distortion: BrownConrady{
			RadialK1:     vs[4],
			RadialK2:     vs[5],
			TangentialP1: vs[6],
			TangentialP2: vs[7],
			RadialK3:     vs[8],
		},
		FocalLengthMeters: vs[9],
	}
	return nil
}

// CheckValid checks if the fields for CameraParams have valid inputs.
func (params *CameraParams) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width == 0 || params.Height == 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height))
	}
	if params.Fx <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	if params.Ppx < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal X point Ppx = %#v", params.Ppx))
	}
	if params.Ppy < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal Y point Ppy = %#v", params.Ppy))
	}
	return nil
}

// NewCameraParamsFromJSONFile reads camera parameters from a JSON file.
func NewCameraParamsFromJSONFile(jsonPath string) (*CameraParams, error) {
	//nolint:gosec
	jsonFile, err := os.Open(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "error opening JSON file")
	}
	defer utils.UncheckedErrorFunc(jsonFile.Close)
	byteValue, err := io.ReadAll(jsonFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading JSON data")
	}
	params := &CameraParams{}
	if err := json.Unmarshal(byteValue, params); err != nil {
		return nil, errors.Wrap(err, "error parsing JSON string")
	}
	return params, params.CheckValid()
}

// PixelToPoint transforms a pixel with depth to a 3D point in the camera frame, where z
// is along the optical axis. Lens distortion is removed first.
func (params *CameraParams) PixelToPoint(x, y, z float64) (float64, float64, float64) {
	if params == nil {
		return 0, 0, 0
	}
	xOverZ := (x - params.Ppx) / params.Fx
	yOverZ := (y - params.Ppy) / params.Fy
	xOverZ, yOverZ = params.Distortion.Undistort(xOverZ, yOverZ)
	return xOverZ * z, yOverZ * z, z
}

// PointToPixel projects a 3D point in the camera frame onto the image plane, applying
// lens distortion. ok is false for points at or behind the camera.
func (params *CameraParams) PointToPixel(x, y, z float64) (float64, float64, bool) {
	if z <= 0 {
		return -1, -1, false
	}
	xd, yd := params.Distortion.Distort(x/z, y/z)
	return xd*params.Fx + params.Ppx, yd*params.Fy + params.Ppy, true
}

// GetCameraMatrix creates a new camera matrix and returns it.
// Camera matrix:
// [[fx 0 ppx],
//
//	[0 fy ppy],
//	[0 0  1]]
func (params *CameraParams) GetCameraMatrix() *mat.Dense {
	if params == nil {
		return nil
	}
	cameraMatrix := mat.NewDense(3, 3, nil)
	cameraMatrix.Set(0, 0, params.Fx)
	cameraMatrix.Set(1, 1, params.Fy)
	cameraMatrix.Set(0, 2, params.Ppx)
	cameraMatrix.Set(1, 2, params.Ppy)
	cameraMatrix.Set(2, 2, 1)
	return cameraMatrix
}

// Crop returns the parameters of the w x h window whose top left pixel is (x, y).
func (params *CameraParams) Crop(x, y, w, h int) CameraParams {
	out := *params
	out.Width = w
	out.Height = h
	out.Ppx -= float64(x)
	out.Ppy -= float64(y)
	return out
}
