package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
)

// An Adapter gives index based access to a cloud's points. Viewers and exporters work
// against it so they do not care how the points are stored. Colors are in [0, 1].
type Adapter interface {
	Size() int
	Resize(n int)
	PointXYZ(i int) (x, y, z float32)
	SetPointXYZ(i int, x, y, z float32)
	HasColor() bool
	PointColor(i int) (r, g, b float32)
	SetPointColor(i int, r, g, b float32)
}

// Copy resizes dst to the size of src and copies every point, and every color when both
// sides carry color.
func Copy(dst, src Adapter) {
	n := src.Size()
	dst.Resize(n)
	withColor := src.HasColor() && dst.HasColor()
	for i := 0; i < n; i++ {
		x, y, z := src.PointXYZ(i)
		dst.SetPointXYZ(i, x, y, z)
		if withColor {
			r, g, b := src.PointColor(i)
			dst.SetPointColor(i, r, g, b)
		}
	}
}

// BoundingBox returns the smallest axis aligned box containing every point. ok is false
// for an empty cloud.
func BoundingBox(cloud Adapter) (minPt, maxPt r3.Vector, ok bool) {
	n := cloud.Size()
	if n == 0 {
		return r3.Vector{}, r3.Vector{}, false
	}
	minPt = r3.Vector{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	maxPt = r3.Vector{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for i := 0; i < n; i++ {
		x, y, z := cloud.PointXYZ(i)
		p := r3.Vector{X: float64(x), Y: float64(y), Z: float64(z)}
		minPt = r3.Vector{X: math.Min(minPt.X, p.X), Y: math.Min(minPt.Y, p.Y), Z: math.Min(minPt.Z, p.Z)}
		maxPt = r3.Vector{X: math.Max(maxPt.X, p.X), Y: math.Max(maxPt.Y, p.Y), Z: math.Max(maxPt.Z, p.Z)}
	}
	return minPt, maxPt, true
}
