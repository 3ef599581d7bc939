// Package spatialmath holds the 6 degree of freedom poses sensors are mounted at.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/perception/serialization"
)

// PoseClassName is the archive class name of Pose.
const PoseClassName = "spatialmath.Pose"

func init() {
	serialization.MustRegister(PoseClassName, func() serialization.Serializable {
		return &Pose{}
	})
}

// Pose is a translation in meters followed by a rotation given as yaw, pitch and roll
// in radians, applied in that order about the Z, Y and X axes.
type Pose struct {
	X, Y, Z          float64
	Yaw, Pitch, Roll float64
}

// NewPose returns a pose.
func NewPose(x, y, z, yaw, pitch, roll float64) Pose {
	return Pose{X: x, Y: y, Z: z, Yaw: yaw, Pitch: pitch, Roll: roll}
}

// Point returns the translation part of the pose.
func (p *Pose) Point() r3.Vector {
	return r3.Vector{X: p.X, Y: p.Y, Z: p.Z}
}

// Quaternion returns the rotation part of the pose as a unit quaternion.
func (p *Pose) Quaternion() quat.Number {
	cy, sy := math.Cos(p.Yaw/2), math.Sin(p.Yaw/2)
	cp, sp := math.Cos(p.Pitch/2), math.Sin(p.Pitch/2)
	cr, sr := math.Cos(p.Roll/2), math.Sin(p.Roll/2)
	return quat.Number{
		Real: cr*cp*cy + sr*sp*sy,
		Imag: sr*cp*cy - cr*sp*sy,
		Jmag: cr*sp*cy + sr*cp*sy,
		Kmag: cr*cp*sy - sr*sp*cy,
	}
}

func rotate(q quat.Number, v r3.Vector) r3.Vector {
	rotated := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(q))
	return r3.Vector{X: rotated.Imag, Y: rotated.Jmag, Z: rotated.Kmag}
}

// TransformPoint maps a point given in the pose's local frame into the parent frame.
func (p *Pose) TransformPoint(local r3.Vector) r3.Vector {
	return rotate(p.Quaternion(), local).Add(p.Point())
}

// InverseTransformPoint maps a point given in the parent frame into the pose's local
// frame.
func (p *Pose) InverseTransformPoint(global r3.Vector) r3.Vector {
	return rotate(quat.Conj(p.Quaternion()), global.Sub(p.Point()))
}

// AlmostEqual reports whether both poses agree within epsilon on every component.
func (p *Pose) AlmostEqual(other *Pose, epsilon float64) bool {
	a := [6]float64{p.X, p.Y, p.Z, p.Yaw, p.Pitch, p.Roll}
	b := [6]float64{other.X, other.Y, other.Z, other.Yaw, other.Pitch, other.Roll}
	for i := range a {
		if math.Abs(a[i]-b[i]) > epsilon {
			return false
		}
	}
	return true
}

// ClassName implements serialization.Serializable.
func (p *Pose) ClassName() string {
	return PoseClassName
}

// SerializationVersion implements serialization.Serializable.
func (p *Pose) SerializationVersion() uint16 {
	return 0
}

// Encode implements serialization.Serializable.
func (p *Pose) Encode(ar *serialization.Archive) error {
	for _, v := range [6]float64{p.X, p.Y, p.Z, p.Yaw, p.Pitch, p.Roll} {
		if err := ar.WriteFloat64(v); err != nil {
			return err
		}
	}
	return nil
}

// Decode implements serialization.Serializable.
func (p *Pose) Decode(ar *serialization.Archive, version uint16) error {
	if version != 0 {
		return serialization.NewUnsupportedVersionError(p.ClassName(), version, p.SerializationVersion())
	}
	var vs [6]float64
	for i := range vs {
		v, err := ar.ReadFloat64()
		if err != nil {
			return err
		}
		vs[i] = v
	}
	*p = NewPose(vs[0], vs[1], vs[2], vs[3], vs[4], vs[5])
	return nil
}
