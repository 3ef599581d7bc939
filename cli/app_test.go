package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"

	"go.viam.com/perception/config"
	"go.viam.com/perception/obs"
	"go.viam.com/perception/payload"
	"go.viam.com/perception/pointcloud"
	"go.viam.com/perception/rimage"
	"go.viam.com/perception/serialization"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := NewApp(&out, &errOut).Run(append([]string{"obstool"}, args...))
	return out.String(), err
}

func writeScan(t *testing.T, dir string) string {
	t.Helper()
	s := obs.NewRangeScan()
	s.SensorLabel = "TOF"
	s.HasPoints3D = true
	s.HasRangeImage = true
	s.RangeImage = *rimage.NewRangeImage(2, 3)
	s.HasIntensityImage = true
	s.IntensityImage = *rimage.NewGrayImage(3, 2)
	for i := 0; i < 6; i++ {
		s.Points.Append(float32(i), float32(-i), float32(i)*0.5)
		s.RangeImage.Data[i] = float32(i)
	}
	path := filepath.Join(dir, "scan.obs")
	test.That(t, serialization.SaveObjectToFile(path, s, true), test.ShouldBeNil)
	return path
}

func TestClasses(t *testing.T) {
	out, err := run(t, "classes")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, obs.RangeScanClassName+"\tv4")
	test.That(t, out, test.ShouldContainSubstring, pointcloud.ColoredPointCloudClassName)
}

func TestInfo(t *testing.T) {
	path := writeScan(t, t.TempDir())
	out, err := run(t, "info", path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "class: obs.RangeScan (v4)")
	test.That(t, out, test.ShouldContainSubstring, "label: TOF")
	test.That(t, out, test.ShouldContainSubstring, "points: 6 (in_memory)")
	test.That(t, out, test.ShouldContainSubstring, "range image: 3x2 (in_memory)")
	test.That(t, out, test.ShouldContainSubstring, "intensity image: 3x2 (in_memory)")

	_, err = run(t, "info")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = run(t, "info", filepath.Join(t.TempDir(), "missing.obs"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestOffloadAndLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(config.BaseDirEnvVar, dir)
	path := writeScan(t, dir)
	slim := filepath.Join(dir, "slim.obs")

	_, err := run(t, "offload", path, slim)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = run(t, "offload", "--points", "ext/points.bin", "--range", "ext/range.bin",
		"--intensity", "ext/intensity.bin", path, slim)
	test.That(t, err, test.ShouldBeNil)
	_, err = os.Stat(filepath.Join(dir, "ext", "points.bin"))
	test.That(t, err, test.ShouldBeNil)

	out, err := run(t, "info", slim)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "points: 0 (external_unloaded in ext/points.bin)")
	test.That(t, out, test.ShouldContainSubstring, "intensity image: 0x0 (external_unloaded in ext/intensity.bin)")

	full := filepath.Join(dir, "full.obs")
	_, err = run(t, "load", slim, full)
	test.That(t, err, test.ShouldBeNil)
	obj, err := serialization.LoadObjectFromFile(full)
	test.That(t, err, test.ShouldBeNil)
	scan := obj.(*obs.RangeScan)
	test.That(t, scan.PointsState(), test.ShouldEqual, payload.ExternalCached)
	test.That(t, scan.Points.Len(), test.ShouldEqual, 6)
	test.That(t, scan.RangeImage.At(1, 2), test.ShouldEqual, float32(5))
	test.That(t, scan.IntensityImage.ExternalState(), test.ShouldEqual, payload.ExternalCached)
	test.That(t, scan.IntensityImage.Width, test.ShouldEqual, 3)

	auto := filepath.Join(dir, "auto.obs")
	_, err = run(t, "offload", "--auto", path, auto)
	test.That(t, err, test.ShouldBeNil)
	obj, err = serialization.LoadObjectFromFile(auto)
	test.That(t, err, test.ShouldBeNil)
	scan = obj.(*obs.RangeScan)
	test.That(t, scan.PointsRef().Path, test.ShouldEndWith, "_points.bin")
	test.That(t, scan.RangeImageRef().Path, test.ShouldEndWith, "_range.bin")
	test.That(t, scan.RangeImageState(), test.ShouldEqual, payload.ExternalUnloaded)
	test.That(t, scan.IntensityImage.ExternalRef().Path, test.ShouldEndWith, "_intensity.bin")
	test.That(t, scan.HasConfidenceImage, test.ShouldBeFalse)
	test.That(t, scan.ConfidenceImage.ExternalRef().StoredExternally, test.ShouldBeFalse)
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	path := writeScan(t, dir)

	pcd := filepath.Join(dir, "scan.pcd")
	_, err := run(t, "export", "--out", pcd, "--colorize", "z", path)
	test.That(t, err, test.ShouldBeNil)
	data, err := os.ReadFile(pcd)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldContainSubstring, "POINTS 6")
	test.That(t, strings.HasSuffix(string(data), "\n"), test.ShouldBeTrue)

	las := filepath.Join(dir, "scan.las")
	_, err = run(t, "export", "--out", las, "--format", "las", path)
	test.That(t, err, test.ShouldBeNil)
	var back pointcloud.XYZ
	test.That(t, pointcloud.ReadLAS(las, &back), test.ShouldBeNil)
	test.That(t, back.Len(), test.ShouldEqual, 6)

	_, err = run(t, "export", "--out", pcd, "--colorize", "w", path)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = run(t, "export", "--out", pcd, "--format", "xyz", path)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCompress(t *testing.T) {
	dir := t.TempDir()
	path := writeScan(t, dir)
	plain := filepath.Join(dir, "plain.obs")
	_, err := run(t, "compress", "--compress=false", path, plain)
	test.That(t, err, test.ShouldBeNil)

	data, err := os.ReadFile(plain)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bytes.Contains(data, []byte(obs.RangeScanClassName)), test.ShouldBeTrue)

	out, err := run(t, "info", plain)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "points: 6")
}
