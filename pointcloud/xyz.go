// Package pointcloud holds the point arrays carried by observations, a colored cloud
// that can be archived on its own, and exporters for common point cloud file formats.
package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/perception/serialization"
)

// XYZ is a cloud stored as three parallel coordinate arrays. All three arrays always
// have the same length. Organized clouds coming from a depth camera keep the row major
// pixel order of the sensor.
type XYZ struct {
	X []float32
	Y []float32
	Z []float32
}

// NewXYZ returns a cloud of n points at the origin.
func NewXYZ(n int) *XYZ {
	return &XYZ{X: make([]float32, n), Y: make([]float32, n), Z: make([]float32, n)}
}

// Len returns the number of points.
func (p *XYZ) Len() int {
	return len(p.X)
}

// At returns point i.
func (p *XYZ) At(i int) r3.Vector {
	return r3.Vector{X: float64(p.X[i]), Y: float64(p.Y[i]), Z: float64(p.Z[i])}
}

// Append adds a point.
func (p *XYZ) Append(x, y, z float32) {
	p.X = append(p.X, x)
	p.Y = append(p.Y, y)
	p.Z = append(p.Z, z)
}

// Clone returns a deep copy.
func (p *XYZ) Clone() *XYZ {
	return &XYZ{
		X: append([]float32(nil), p.X...),
		Y: append([]float32(nil), p.Y...),
		Z: append([]float32(nil), p.Z...),
	}
}

// Clear drops every point and releases the arrays.
func (p *XYZ) Clear() {
	p.X, p.Y, p.Z = nil, nil, nil
}

// Empty reports whether the cloud has no points.
func (p *XYZ) Empty() bool {
	return len(p.X) == 0
}

// Equal reports whether both clouds hold bit for bit the same points.
func (p *XYZ) Equal(other *XYZ) bool {
	if p.Len() != other.Len() || len(p.Y) != len(other.Y) || len(p.Z) != len(other.Z) {
		return false
	}
	for i := range p.X {
		if math.Float32bits(p.X[i]) != math.Float32bits(other.X[i]) ||
			math.Float32bits(p.Y[i]) != math.Float32bits(other.Y[i]) ||
			math.Float32bits(p.Z[i]) != math.Float32bits(other.Z[i]) {
			return false
		}
	}
	return true
}

func (p *XYZ) check() error {
	if len(p.Y) != len(p.X) || len(p.Z) != len(p.X) {
		return errors.Errorf("coordinate arrays differ in length: x=%d y=%d z=%d", len(p.X), len(p.Y), len(p.Z))
	}
	return nil
}

// EncodeInline writes the point count followed by the raw x, y and z arrays.
func (p *XYZ) EncodeInline(ar *serialization.Archive) error {
	if err := p.check(); err != nil {
		return err
	}
	if err := ar.WriteUint32(uint32(p.Len())); err != nil {
		return err
	}
	for _, vs := range [][]float32{p.X, p.Y, p.Z} {
		if err := ar.WriteRawFloat32s(vs); err != nil {
			return err
		}
	}
	return nil
}

// DecodeInline reads what EncodeInline wrote and returns the point count.
func (p *XYZ) DecodeInline(ar *serialization.Archive) (int, error) {
	n, err := ar.ReadUint32()
	if err != nil {
		return 0, err
	}
	if err := p.decodeRaw(ar, int(n)); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (p *XYZ) decodeRaw(ar *serialization.Archive, n int) error {
	var arrays [3][]float32
	for i := range arrays {
		vs, err := ar.ReadRawFloat32s(n)
		if err != nil {
			return err
		}
		arrays[i] = vs
	}
	p.X, p.Y, p.Z = arrays[0], arrays[1], arrays[2]
	return nil
}

// EncodePayload writes the three arrays, each with its own length prefix.
func (p *XYZ) EncodePayload(ar *serialization.Archive) error {
	if err := p.check(); err != nil {
		return err
	}
	for _, vs := range [][]float32{p.X, p.Y, p.Z} {
		if err := ar.WriteFloat32s(vs); err != nil {
			return err
		}
	}
	return nil
}

// DecodePayload reads what EncodePayload wrote. Arrays of different lengths are a
// decode error.
func (p *XYZ) DecodePayload(ar *serialization.Archive) error {
	var arrays [3][]float32
	for i := range arrays {
		vs, err := ar.ReadFloat32s()
		if err != nil {
			return err
		}
		arrays[i] = vs
	}
	if len(arrays[1]) != len(arrays[0]) || len(arrays[2]) != len(arrays[0]) {
		return serialization.NewDecodeError("point file arrays differ in length: x=%d y=%d z=%d",
			len(arrays[0]), len(arrays[1]), len(arrays[2]))
	}
	p.X, p.Y, p.Z = arrays[0], arrays[1], arrays[2]
	return nil
}

// Size implements Adapter.
func (p *XYZ) Size() int {
	return p.Len()
}

// Resize implements Adapter. New points are at the origin.
func (p *XYZ) Resize(n int) {
	p.X = resize(p.X, n)
	p.Y = resize(p.Y, n)
	p.Z = resize(p.Z, n)
}

// PointXYZ implements Adapter.
func (p *XYZ) PointXYZ(i int) (float32, float32, float32) {
	return p.X[i], p.Y[i], p.Z[i]
}

// SetPointXYZ implements Adapter.
func (p *XYZ) SetPointXYZ(i int, x, y, z float32) {
	p.X[i], p.Y[i], p.Z[i] = x, y, z
}

// HasColor implements Adapter. Plain clouds have no color.
func (p *XYZ) HasColor() bool {
	return false
}

// PointColor implements Adapter. Every point reads back as white.
func (p *XYZ) PointColor(i int) (float32, float32, float32) {
	return 1, 1, 1
}

// SetPointColor implements Adapter and does nothing.
func (p *XYZ) SetPointColor(i int, r, g, b float32) {}

func resize(vs []float32, n int) []float32 {
	if n <= cap(vs) {
		old := len(vs)
		vs = vs[:n]
		for i := old; i < n; i++ {
			vs[i] = 0
		}
		return vs
	}
	grown := make([]float32, n)
	copy(grown, vs)
	return grown
}
