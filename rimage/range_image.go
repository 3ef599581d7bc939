// Package rimage holds the image types carried by depth camera observations.
package rimage

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/perception/serialization"
)

// A RangeImage is a row major matrix of ranges in meters, one per sensor pixel.
type RangeImage struct {
	Rows int
	Cols int
	Data []float32
}

// NewRangeImage returns a rows x cols image of zeros.
func NewRangeImage(rows, cols int) *RangeImage {
	return &RangeImage{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

// At returns the range at (row, col).
func (ri *RangeImage) At(row, col int) float32 {
	return ri.Data[row*ri.Cols+col]
}

// Set sets the range at (row, col).
func (ri *RangeImage) Set(row, col int, v float32) {
	ri.Data[row*ri.Cols+col] = v
}

// Clear drops the contents.
func (ri *RangeImage) Clear() {
	*ri = RangeImage{}
}

// Empty reports whether the image has no pixels.
func (ri *RangeImage) Empty() bool {
	return len(ri.Data) == 0
}

// Clone returns a deep copy.
func (ri *RangeImage) Clone() *RangeImage {
	return &RangeImage{Rows: ri.Rows, Cols: ri.Cols, Data: append([]float32(nil), ri.Data...)}
}

// Equal reports whether both images have the same shape and bit for bit the same ranges.
func (ri *RangeImage) Equal(other *RangeImage) bool {
	if ri.Rows != other.Rows || ri.Cols != other.Cols || len(ri.Data) != len(other.Data) {
		return false
	}
	for i, v := range ri.Data {
		if math.Float32bits(v) != math.Float32bits(other.Data[i]) {
			return false
		}
	}
	return true
}

// SubImage copies the rows [r1, r2) and columns [c1, c2).
func (ri *RangeImage) SubImage(r1, r2, c1, c2 int) (*RangeImage, error) {
	if r1 < 0 || c1 < 0 || r1 >= r2 || c1 >= c2 || r2 > ri.Rows || c2 > ri.Cols {
		return nil, errors.Errorf("zone rows [%d, %d) cols [%d, %d) is not inside a %dx%d range image",
			r1, r2, c1, c2, ri.Rows, ri.Cols)
	}
	out := NewRangeImage(r2-r1, c2-c1)
	for r := r1; r < r2; r++ {
		copy(out.Data[(r-r1)*out.Cols:(r-r1+1)*out.Cols], ri.Data[r*ri.Cols+c1:r*ri.Cols+c2])
	}
	return out, nil
}

// ToDense returns the ranges as a gonum matrix.
func (ri *RangeImage) ToDense() *mat.Dense {
	if ri.Empty() {
		return nil
	}
	data := make([]float64, len(ri.Data))
	for i, v := range ri.Data {
		data[i] = float64(v)
	}
	return mat.NewDense(ri.Rows, ri.Cols, data)
}

// RangeImageFromDense builds a range image from a gonum matrix.
func RangeImageFromDense(m mat.Matrix) *RangeImage {
	rows, cols := m.Dims()
	ri := NewRangeImage(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			ri.Set(r, c, float32(m.At(r, c)))
		}
	}
	return ri
}

// EncodePayload writes the row count, the column count and the raw ranges.
func (ri *RangeImage) EncodePayload(ar *serialization.Archive) error {
	if len(ri.Data) != ri.Rows*ri.Cols {
		return errors.Errorf("range image is %dx%d but holds %d values", ri.Rows, ri.Cols, len(ri.Data))
	}
	if err := ar.WriteUint32(uint32(ri.Rows)); err != nil {
		return err
	}
	if err := ar.WriteUint32(uint32(ri.Cols)); err != nil {
		return err
	}
	return ar.WriteRawFloat32s(ri.Data)
}

// DecodePayload reads what EncodePayload wrote.
func (ri *RangeImage) DecodePayload(ar *serialization.Archive) error {
	rows, err := ar.ReadUint32()
	if err != nil {
		return err
	}
	cols, err := ar.ReadUint32()
	if err != nil {
		return err
	}
	n := uint64(rows) * uint64(cols)
	if n > math.MaxInt32 {
		return serialization.NewDecodeError("range image of %dx%d is too large", rows, cols)
	}
	data, err := ar.ReadRawFloat32s(int(n))
	if err != nil {
		return err
	}
	*ri = RangeImage{Rows: int(rows), Cols: int(cols), Data: data}
	return nil
}
