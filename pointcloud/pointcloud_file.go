package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/edaniels/lidario"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
)

// ParsePCDType maps "ascii" and "binary" to their PCDType.
func ParsePCDType(s string) (PCDType, error) {
	switch s {
	case "ascii":
		return PCDAscii, nil
	case "binary":
		return PCDBinary, nil
	default:
		return 0, errors.Errorf("unknown pcd type %q", s)
	}
}

func to255(v float32) int {
	return int(math.Round(math.Max(0, math.Min(1, float64(v))) * 255))
}

func colorToPCDInt(cloud Adapter, i int) int {
	r, g, b := cloud.PointColor(i)
	x := 0
	x |= to255(r) << 16
	x |= to255(g) << 8
	x |= to255(b) << 0
	return x
}

// WritePCD writes the cloud in the PCD format. Coordinates are written as they are
// stored, in meters.
func WritePCD(cloud Adapter, out io.Writer, outputType PCDType) error {
	if outputType != PCDAscii && outputType != PCDBinary {
		return errors.Errorf("unknown pcd type %d", outputType)
	}
	var err error

	bw := bufio.NewWriter(out)
	_, err = fmt.Fprintf(bw, "VERSION .7\n")
	if err != nil {
		return err
	}
	switch cloud.HasColor() {
	case true:
		_, err = fmt.Fprintf(bw, "FIELDS x y z rgb\n"+
			"SIZE 4 4 4 4\n"+
			"TYPE F F F I\n"+
			"COUNT 1 1 1 1\n")
	case false:
		_, err = fmt.Fprintf(bw, "FIELDS x y z\n"+
			"SIZE 4 4 4\n"+
			"TYPE F F F\n"+
			"COUNT 1 1 1\n")
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(bw, "WIDTH %d\n"+
		"HEIGHT %d\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n",
		cloud.Size(),
		1,
		cloud.Size())
	if err != nil {
		return err
	}

	if outputType == PCDBinary {
		_, err = fmt.Fprintf(bw, "DATA binary\n")
	} else {
		_, err = fmt.Fprintf(bw, "DATA ascii\n")
	}
	if err != nil {
		return err
	}
	if err := writePCDData(cloud, bw, outputType); err != nil {
		return err
	}
	return bw.Flush()
}

func writePCDData(cloud Adapter, out io.Writer, pcdtype PCDType) error {
	hasColor := cloud.HasColor()
	buf := make([]byte, 16)
	for i := 0; i < cloud.Size(); i++ {
		var err error
		x, y, z := cloud.PointXYZ(i)
		switch hasColor {
		case true:
			c := colorToPCDInt(cloud, i)
			switch pcdtype {
			case PCDBinary:
				binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
				binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(y))
				binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(z))
				binary.LittleEndian.PutUint32(buf[12:], uint32(c))
				_, err = out.Write(buf)
			case PCDAscii:
				_, err = fmt.Fprintf(out, "%f %f %f %d\n", x, y, z, c)
			}
		case false:
			switch pcdtype {
			case PCDBinary:
				binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
				binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(y))
				binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(z))
				_, err = out.Write(buf[:12])
			case PCDAscii:
				_, err = fmt.Fprintf(out, "%f %f %f\n", x, y, z)
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteLAS writes the cloud out to a LAS file. Colored clouds use point format 2.
func WriteLAS(cloud Adapter, fn string) (err error) {
	lf, err := lidario.NewLasFile(fn, "w")
	if err != nil {
		return
	}
	defer func() {
		cerr := lf.Close()
		err = multierr.Combine(err, cerr)
	}()

	pointFormatID := 0
	if cloud.HasColor() {
		pointFormatID = 2
	}
	if err = lf.AddHeader(lidario.LasHeader{
		PointFormatID: byte(pointFormatID),
	}); err != nil {
		return
	}

	for i := 0; i < cloud.Size(); i++ {
		x, y, z := cloud.PointXYZ(i)
		var lp lidario.LasPointer
		pr0 := &lidario.PointRecord0{
			X: float64(x),
			Y: float64(y),
			Z: float64(z),
			BitField: lidario.PointBitField{
				Value: (1) | (1 << 3) | (0 << 6) | (0 << 7),
			},
			ClassBitField: lidario.ClassificationBitField{
				Value: 0,
			},
			PointSourceID: 1,
		}
		lp = pr0

		if cloud.HasColor() {
			r, g, b := cloud.PointColor(i)
			lp = &lidario.PointRecord2{
				PointRecord0: pr0,
				RGB: &lidario.RgbData{
					Red:   uint16(to255(r) * 256),
					Green: uint16(to255(g) * 256),
					Blue:  uint16(to255(b) * 256),
				},
			}
		}
		if err = lf.AddLasPoint(lp); err != nil {
			return
		}
	}

	// nolint:nakedret
	return
}

// ReadLAS reads the points of a LAS file into dst, along with their colors when both
// the file and dst have them.
func ReadLAS(fn string, dst Adapter) (err error) {
	lf, err := lidario.NewLasFile(fn, "r")
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, lf.Close())
	}()

	n := lf.Header.NumberPoints
	dst.Resize(n)
	withColor := dst.HasColor() && lf.Header.PointFormatID == 2
	for i := 0; i < n; i++ {
		p, err := lf.LasPoint(i)
		if err != nil {
			return err
		}
		data := p.PointData()
		dst.SetPointXYZ(i, float32(data.X), float32(data.Y), float32(data.Z))
		if rgb := p.RgbData(); withColor && rgb != nil {
			dst.SetPointColor(i, float32(rgb.Red/256)/255, float32(rgb.Green/256)/255, float32(rgb.Blue/256)/255)
		}
	}
	return nil
}
