package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/perception/config"
	"go.viam.com/perception/logging"
	"go.viam.com/perception/obs"
	"go.viam.com/perception/payload"
	"go.viam.com/perception/pointcloud"
	"go.viam.com/perception/serialization"
	"go.viam.com/perception/utils"
)

type obsClient struct {
	c      *cli.Context
	cfg    *config.Config
	logger logging.Logger
	store  *payload.Store
}

func newObsClient(c *cli.Context) (*obsClient, error) {
	logger := logging.NewLogger("obstool")
	if c.Bool(flagDebug) {
		logger = logging.NewDebugLogger("obstool")
	}
	cfg := config.Default()
	if path := c.String(flagConfig); path != "" {
		var err error
		if cfg, err = config.Read(path, logger); err != nil {
			return nil, err
		}
	}
	if !c.Bool(flagDebug) {
		logger.SetLevel(cfg.Level())
	}
	return &obsClient{
		c:      c,
		cfg:    cfg,
		logger: logger,
		store:  cfg.NewStore(logger.Sublogger("payload")),
	}, nil
}

func (oc *obsClient) printf(format string, args ...interface{}) {
	fmt.Fprintf(oc.c.App.Writer, format+"\n", args...)
}

func (oc *obsClient) compress() bool {
	return oc.cfg.Storage.Compress == nil || *oc.cfg.Storage.Compress
}

func (oc *obsClient) loadObject(path string) (serialization.Serializable, error) {
	obj, err := serialization.LoadObjectFromFile(path, oc.cfg.ArchiveOptions()...)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %q", path)
	}
	if obj == nil {
		return nil, errors.Errorf("%q holds no object", path)
	}
	return obj, nil
}

func (oc *obsClient) loadScan(path string) (*obs.RangeScan, error) {
	obj, err := oc.loadObject(path)
	if err != nil {
		return nil, err
	}
	scan, ok := obj.(*obs.RangeScan)
	if !ok {
		return nil, utils.NewUnexpectedTypeError(scan, obj)
	}
	return scan, nil
}

func args(c *cli.Context, n int) ([]string, error) {
	if c.NArg() != n {
		return nil, errors.Errorf("expected %d arguments but got %d; usage: %s %s",
			n, c.NArg(), c.Command.Name, c.Command.ArgsUsage)
	}
	return c.Args().Slice(), nil
}

// ClassesAction lists every registered class with its current version.
func ClassesAction(c *cli.Context) error {
	oc, err := newObsClient(c)
	if err != nil {
		return err
	}
	lines := lo.FilterMap(serialization.DefaultRegistry.Names(), func(name string, _ int) (string, bool) {
		desc, ok := serialization.Lookup(name)
		return fmt.Sprintf("%s\tv%d", name, desc.Version), ok
	})
	for _, line := range lines {
		oc.printf("%s", line)
	}
	return nil
}

// InfoAction describes the object in an archive.
func InfoAction(c *cli.Context) error {
	oc, err := newObsClient(c)
	if err != nil {
		return err
	}
	paths, err := args(c, 1)
	if err != nil {
		return err
	}
	obj, err := oc.loadObject(paths[0])
	if err != nil {
		return err
	}
	oc.printf("class: %s (v%d)", obj.ClassName(), obj.SerializationVersion())
	switch v := obj.(type) {
	case *obs.RangeScan:
		oc.describeScan(v)
	case *pointcloud.ColoredPointCloud:
		oc.printf("points: %d", v.Size())
		if minPt, maxPt, ok := v.BoundingBox(); ok {
			oc.printf("bounds: %v to %v", minPt, maxPt)
		}
	}
	return nil
}

func (oc *obsClient) describeScan(scan *obs.RangeScan) {
	oc.printf("label: %s", scan.SensorLabel)
	if !scan.Timestamp.IsZero() {
		oc.printf("timestamp: %s", scan.Timestamp)
	}
	oc.printf("max range: %v m, std error: %v m", scan.MaxRange, scan.StdError)
	oc.printf("pose: %+v", scan.SensorPose)
	if scan.HasPoints3D {
		oc.printf("points: %d (%s%s)", scan.Points.Len(), scan.PointsState(), refSuffix(scan.PointsRef()))
	}
	if scan.HasRangeImage {
		oc.printf("range image: %dx%d (%s%s)", scan.RangeImage.Cols, scan.RangeImage.Rows,
			scan.RangeImageState(), refSuffix(scan.RangeImageRef()))
	}
	if scan.HasIntensityImage {
		oc.printf("intensity image: %dx%d (%s%s)", scan.IntensityImage.Width, scan.IntensityImage.Height,
			scan.IntensityImage.ExternalState(), refSuffix(scan.IntensityImage.ExternalRef()))
	}
	if scan.HasConfidenceImage {
		oc.printf("confidence image: %dx%d (%s%s)", scan.ConfidenceImage.Width, scan.ConfidenceImage.Height,
			scan.ConfidenceImage.ExternalState(), refSuffix(scan.ConfidenceImage.ExternalRef()))
	}
	if scan.CameraParams.Width > 0 {
		oc.printf("camera: %dx%d fx=%v fy=%v ppx=%v ppy=%v", scan.CameraParams.Width, scan.CameraParams.Height,
			scan.CameraParams.Fx, scan.CameraParams.Fy, scan.CameraParams.Ppx, scan.CameraParams.Ppy)
	}
}

func refSuffix(ref payload.Ref) string {
	if !ref.StoredExternally {
		return ""
	}
	return " in " + ref.Path
}

// OffloadAction moves field groups of a scan into payload files and writes the slimmed
// down archive.
func OffloadAction(c *cli.Context) error {
	oc, err := newObsClient(c)
	if err != nil {
		return err
	}
	paths, err := args(c, 2)
	if err != nil {
		return err
	}
	scan, err := oc.loadScan(paths[0])
	if err != nil {
		return err
	}
	groups := []struct {
		flag    string
		suffix  string
		present bool
		convert func(store *payload.Store, name, baseDirOverride string) error
	}{
		{flagPoints, "_points.bin", scan.HasPoints3D, scan.ConvertPointsToExternalStorage},
		{flagRange, "_range.bin", scan.HasRangeImage, scan.ConvertRangeImageToExternalStorage},
		{flagIntens, "_intensity.bin", scan.HasIntensityImage, scan.ConvertIntensityImageToExternalStorage},
		{flagConf, "_confidence.bin", scan.HasConfidenceImage, scan.ConvertConfidenceImageToExternalStorage},
	}
	names := make([]string, len(groups))
	id := uuid.New().String()
	for i, g := range groups {
		names[i] = c.String(g.flag)
		if names[i] == "" && g.present && c.Bool(flagAuto) {
			names[i] = id + g.suffix
		}
	}
	if lo.EveryBy(names, func(name string) bool { return name == "" }) {
		return errors.Errorf("at least one of --%s, --%s, --%s, --%s or --%s is required",
			flagPoints, flagRange, flagIntens, flagConf, flagAuto)
	}
	if err := scan.Load(oc.store); err != nil {
		return err
	}
	override := c.String(flagBaseDir)
	baseDir := lo.Ternary(override != "", override, oc.store.BaseDir)
	for i, g := range groups {
		if names[i] == "" {
			continue
		}
		if err := g.convert(oc.store, names[i], override); err != nil {
			return err
		}
		oc.logger.Infow("field group offloaded", "group", g.flag, "path", payload.ResolvePath(baseDir, names[i]))
	}
	return serialization.SaveObjectToFile(paths[1], scan, oc.compress(), oc.cfg.ArchiveOptions()...)
}

// LoadAction reads the external payloads of a scan and writes an archive that carries
// them inline.
func LoadAction(c *cli.Context) error {
	oc, err := newObsClient(c)
	if err != nil {
		return err
	}
	paths, err := args(c, 2)
	if err != nil {
		return err
	}
	scan, err := oc.loadScan(paths[0])
	if err != nil {
		return err
	}
	if err := scan.Load(oc.store); err != nil {
		return err
	}
	oc.logger.Infow("payloads loaded", "points", scan.PointsState(), "range_image", scan.RangeImageState())
	return serialization.SaveObjectToFile(paths[1], scan, oc.compress(), oc.cfg.ArchiveOptions()...)
}

func parseAxis(s string) (pointcloud.Axis, error) {
	switch strings.ToLower(s) {
	case "x":
		return pointcloud.AxisX, nil
	case "y":
		return pointcloud.AxisY, nil
	case "z":
		return pointcloud.AxisZ, nil
	default:
		return 0, errors.Errorf("unknown axis %q", s)
	}
}

func (oc *obsClient) cloudOf(obj serialization.Serializable) (*pointcloud.ColoredPointCloud, error) {
	switch v := obj.(type) {
	case *pointcloud.ColoredPointCloud:
		return v, nil
	case *obs.RangeScan:
		if !v.HasPoints3D {
			return nil, errors.New("scan has no points")
		}
		if err := v.Load(oc.store); err != nil {
			return nil, err
		}
		pc := pointcloud.NewColoredPointCloud()
		pc.LoadFrom(&v.Points)
		return pc, nil
	default:
		return nil, errors.Errorf("class %q holds no point cloud", obj.ClassName())
	}
}

// ExportAction writes the points of a scan or colored cloud archive as PCD or LAS.
func ExportAction(c *cli.Context) (err error) {
	oc, err := newObsClient(c)
	if err != nil {
		return err
	}
	paths, err := args(c, 1)
	if err != nil {
		return err
	}
	obj, err := oc.loadObject(paths[0])
	if err != nil {
		return err
	}
	pc, err := oc.cloudOf(obj)
	if err != nil {
		return err
	}

	if axisName := c.String(flagColorize); axisName != "" {
		axis, err := parseAxis(axisName)
		if err != nil {
			return err
		}
		minPt, maxPt, ok := pc.BoundingBox()
		if !ok {
			return errors.New("cannot colorize an empty cloud")
		}
		low, high := [3]float64{minPt.X, minPt.Y, minPt.Z}[axis], [3]float64{maxPt.X, maxPt.Y, maxPt.Z}[axis]
		if err := pc.RecolorizeByCoordinate(float32(low), float32(high), axis); err != nil {
			return err
		}
	}

	out := c.String(flagOut)
	format := c.String(flagFormat)
	if format == "las" {
		if err := pointcloud.WriteLAS(pc, out); err != nil {
			return err
		}
		oc.logger.Infow("exported", "path", out, "points", pc.Size(), "format", format)
		return nil
	}
	pcdType, err := pointcloud.ParsePCDType(format)
	if err != nil {
		return err
	}
	//nolint:gosec
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	if err := pointcloud.WritePCD(pc, f, pcdType); err != nil {
		return err
	}
	oc.logger.Infow("exported", "path", out, "points", pc.Size(), "format", format)
	return nil
}

// CompressAction rewrites an archive with or without compression. Either form can be
// read back without saying which it is.
func CompressAction(c *cli.Context) error {
	oc, err := newObsClient(c)
	if err != nil {
		return err
	}
	paths, err := args(c, 2)
	if err != nil {
		return err
	}
	obj, err := oc.loadObject(paths[0])
	if err != nil {
		return err
	}
	return serialization.SaveObjectToFile(paths[1], obj, c.Bool(flagCompress), oc.cfg.ArchiveOptions()...)
}
