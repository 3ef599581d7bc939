package transform

import "github.com/pkg/errors"

// BrownConrady is the Brown-Conrady lens distortion model with three radial and two
// tangential terms. The forward model, on normalized image coordinates, is:
//
//	x_d = x_u * (1 + k1*r² + k2*r⁴ + k3*r⁶) + 2*p1*x_u*y_u + p2*(r² + 2*x_u²)
//	y_d = y_u * (1 + k1*r² + k2*r⁴ + k3*r⁶) + 2*p2*x_u*y_u + p1*(r² + 2*y_u²)
type BrownConrady struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	RadialK3     float64 `json:"rk3"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
}

// NewBrownConrady takes the coefficients in the order k1, k2, p1, p2, k3. Missing
// trailing coefficients are zero.
func NewBrownConrady(inp []float64) (BrownConrady, error) {
	if len(inp) > 5 {
		return BrownConrady{}, errors.Errorf("list of parameters too long, expected max 5, got %d", len(inp))
	}
	var p [5]float64
	copy(p[:], inp)
	return BrownConrady{RadialK1: p[0], RadialK2: p[1], TangentialP1: p[2], TangentialP2: p[3], RadialK3: p[4]}, nil
}

// Parameters returns the coefficients in the order k1, k2, p1, p2, k3.
func (bc BrownConrady) Parameters() []float64 {
	return []float64{bc.RadialK1, bc.RadialK2, bc.TangentialP1, bc.TangentialP2, bc.RadialK3}
}

// IsZero reports whether the model leaves every point where it is.
func (bc BrownConrady) IsZero() bool {
	return bc == BrownConrady{}
}

// Distort applies the forward model to undistorted normalized coordinates.
func (bc BrownConrady) Distort(xu, yu float64) (float64, float64) {
	r2 := xu*xu + yu*yu
	r4 := r2 * r2
	r6 := r4 * r2
	radDist := 1.0 + bc.RadialK1*r2 + bc.RadialK2*r4 + bc.RadialK3*r6
	xd := xu*radDist + 2.0*bc.TangentialP1*xu*yu + bc.TangentialP2*(r2+2.0*xu*xu)
	yd := yu*radDist + 2.0*bc.TangentialP2*xu*yu + bc.TangentialP1*(r2+2.0*yu*yu)
	return xd, yd
}

// Undistort inverts Distort with Newton-Raphson iterations.
func (bc BrownConrady) Undistort(xd, yd float64) (float64, float64) {
	if bc.IsZero() {
		return xd, yd
	}

	xu, yu := xd, yd
	const maxIterations = 20
	const tolerance = 1e-10

	for i := 0; i < maxIterations; i++ {
		r2 := xu*xu + yu*yu
		r4 := r2 * r2
		radDist := 1.0 + bc.RadialK1*r2 + bc.RadialK2*r4 + bc.RadialK3*r4*r2

		xdEst, ydEst := bc.Distort(xu, yu)
		errX := xdEst - xd
		errY := ydEst - yd
		if errX*errX+errY*errY < tolerance*tolerance {
			break
		}

		// J = [[dxd/dxu, dxd/dyu], [dyd/dxu, dyd/dyu]]
		dRadDistDxu := 2.0 * xu * (bc.RadialK1 + 2.0*bc.RadialK2*r2 + 3.0*bc.RadialK3*r4)
		dRadDistDyu := 2.0 * yu * (bc.RadialK1 + 2.0*bc.RadialK2*r2 + 3.0*bc.RadialK3*r4)

		dxdDxu := radDist + xu*dRadDistDxu + 2.0*bc.TangentialP1*yu + bc.TangentialP2*6.0*xu
		dxdDyu := xu*dRadDistDyu + 2.0*bc.TangentialP1*xu + bc.TangentialP2*2.0*yu
		dydDxu := yu*dRadDistDxu + 2.0*bc.TangentialP2*yu + bc.TangentialP1*2.0*xu
		dydDyu := radDist + yu*dRadDistDyu + 2.0*bc.TangentialP2*xu + bc.TangentialP1*6.0*yu

		det := dxdDxu*dydDyu - dxdDyu*dydDxu
		if det == 0 {
			break
		}
		xu -= (dydDyu*errX - dxdDyu*errY) / det
		yu -= (-dydDxu*errX + dxdDxu*errY) / det
	}
	return xu, yu
}
