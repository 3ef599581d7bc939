package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"

	"go.viam.com/perception/serialization"
)

// ColoredPointCloudClassName is the archive class name of ColoredPointCloud.
const ColoredPointCloudClassName = "pointcloud.ColoredPointCloud"

// Axis selects a coordinate.
type Axis int

// The axes.
const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func init() {
	serialization.MustRegister(ColoredPointCloudClassName, func() serialization.Serializable {
		return NewColoredPointCloud()
	})
}

// ColoredPoint is a point with an RGB color in [0, 1].
type ColoredPoint struct {
	X, Y, Z float32
	R, G, B float32
}

// ColoredPointCloud is a cloud where every point has its own color, along with the
// settings a viewer uses to draw it.
type ColoredPointCloud struct {
	Points    []ColoredPoint
	PointSize float32
	Smooth    bool
}

// NewColoredPointCloud returns an empty cloud drawn with 1 pixel points.
func NewColoredPointCloud() *ColoredPointCloud {
	return &ColoredPointCloud{PointSize: 1}
}

// ClassName implements serialization.Serializable.
func (pc *ColoredPointCloud) ClassName() string {
	return ColoredPointCloudClassName
}

// SerializationVersion implements serialization.Serializable.
func (pc *ColoredPointCloud) SerializationVersion() uint16 {
	return 1
}

// Encode implements serialization.Serializable.
func (pc *ColoredPointCloud) Encode(ar *serialization.Archive) error {
	if err := ar.WriteUint32(uint32(len(pc.Points))); err != nil {
		return err
	}
	flat := make([]float32, 0, 6*len(pc.Points))
	for _, p := range pc.Points {
		flat = append(flat, p.X, p.Y, p.Z, p.R, p.G, p.B)
	}
	if err := ar.WriteRawFloat32s(flat); err != nil {
		return err
	}
	if err := ar.WriteFloat32(pc.PointSize); err != nil {
		return err
	}
	return ar.WriteBool(pc.Smooth)
}

// Decode implements serialization.Serializable. Version 0 has no drawing settings. The
// cloud is only modified when the whole layout decodes.
func (pc *ColoredPointCloud) Decode(ar *serialization.Archive, version uint16) error {
	if version > 1 {
		return serialization.NewUnsupportedVersionError(pc.ClassName(), version, pc.SerializationVersion())
	}
	n, err := ar.ReadUint32()
	if err != nil {
		return err
	}
	flat, err := ar.ReadRawFloat32s(6 * int(n))
	if err != nil {
		return err
	}
	var points []ColoredPoint
	if n > 0 {
		points = make([]ColoredPoint, n)
	}
	for i := range points {
		f := flat[6*i : 6*i+6]
		points[i] = ColoredPoint{X: f[0], Y: f[1], Z: f[2], R: f[3], G: f[4], B: f[5]}
	}

	pointSize, smooth := float32(1), false
	if version == 1 {
		if pointSize, err = ar.ReadFloat32(); err != nil {
			return err
		}
		if smooth, err = ar.ReadBool(); err != nil {
			return err
		}
	}
	pc.Points, pc.PointSize, pc.Smooth = points, pointSize, smooth
	return nil
}

// Size implements Adapter.
func (pc *ColoredPointCloud) Size() int {
	return len(pc.Points)
}

// Resize implements Adapter. New points are white and at the origin.
func (pc *ColoredPointCloud) Resize(n int) {
	if n <= len(pc.Points) {
		pc.Points = pc.Points[:n]
		return
	}
	for len(pc.Points) < n {
		pc.Points = append(pc.Points, ColoredPoint{R: 1, G: 1, B: 1})
	}
}

// PointXYZ implements Adapter.
func (pc *ColoredPointCloud) PointXYZ(i int) (float32, float32, float32) {
	p := pc.Points[i]
	return p.X, p.Y, p.Z
}

// SetPointXYZ implements Adapter.
func (pc *ColoredPointCloud) SetPointXYZ(i int, x, y, z float32) {
	p := &pc.Points[i]
	p.X, p.Y, p.Z = x, y, z
}

// HasColor implements Adapter.
func (pc *ColoredPointCloud) HasColor() bool {
	return true
}

// PointColor implements Adapter.
func (pc *ColoredPointCloud) PointColor(i int) (float32, float32, float32) {
	p := pc.Points[i]
	return p.R, p.G, p.B
}

// SetPointColor implements Adapter.
func (pc *ColoredPointCloud) SetPointColor(i int, r, g, b float32) {
	p := &pc.Points[i]
	p.R, p.G, p.B = r, g, b
}

// BoundingBox returns the corners of the axis aligned box around the cloud.
func (pc *ColoredPointCloud) BoundingBox() (r3.Vector, r3.Vector, bool) {
	return BoundingBox(pc)
}

// LoadFrom replaces the points with those of src. Points from a cloud without color
// come out white.
func (pc *ColoredPointCloud) LoadFrom(src Adapter) {
	pc.Points = pc.Points[:0]
	pc.Resize(src.Size())
	Copy(pc, src)
}

// RecolorizeByCoordinate colors every point with a jet colormap over one of its
// coordinates. Values at or below coordMin are blue and values at or above coordMax are
// red.
func (pc *ColoredPointCloud) RecolorizeByCoordinate(coordMin, coordMax float32, axis Axis) error {
	if axis < AxisX || axis > AxisZ {
		return errors.Errorf("invalid axis %d", axis)
	}
	span := coordMax - coordMin
	if span <= 0 {
		return errors.Errorf("empty coordinate range [%v, %v]", coordMin, coordMax)
	}
	for i := range pc.Points {
		p := &pc.Points[i]
		v := [3]float32{p.X, p.Y, p.Z}[axis]
		t := float64((v - coordMin) / span)
		p.R, p.G, p.B = JetColor(t)
	}
	return nil
}

// JetColor maps t in [0, 1] onto the jet colormap, blue at 0 and red at 1. t is clamped
// to the range.
func JetColor(t float64) (float32, float32, float32) {
	t = math.Max(0, math.Min(1, t))
	c := colorful.Hsv(240*(1-t), 1, 1).Clamped()
	return float32(c.R), float32(c.G), float32(c.B)
}
