package rimage

import (
	"image"

	"github.com/pkg/errors"

	"go.viam.com/perception/payload"
	"go.viam.com/perception/serialization"
)

// GrayImageClassName is the archive class name of GrayImage.
const GrayImageClassName = "rimage.GrayImage"

func init() {
	serialization.MustRegister(GrayImageClassName, func() serialization.Serializable {
		return &GrayImage{}
	})
}

// GrayImage is an 8 bit single channel image, used for intensity and confidence data.
// Its pixels may be kept in a file of their own; see ConvertToExternalStorage.
type GrayImage struct {
	Width  int
	Height int
	Pix    []uint8

	external payload.Payload
}

// NewGrayImage returns a black width x height image.
func NewGrayImage(width, height int) *GrayImage {
	return &GrayImage{Width: width, Height: height, Pix: make([]uint8, width*height)}
}

// GrayImageFromImage copies any image into a GrayImage.
func GrayImageFromImage(img image.Image) *GrayImage {
	b := img.Bounds()
	gi := NewGrayImage(b.Dx(), b.Dy())
	for y := 0; y < gi.Height; y++ {
		for x := 0; x < gi.Width; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			gi.Set(x, y, uint8((19595*r+38470*g+7471*bl+1<<15)>>24))
		}
	}
	return gi
}

// At returns the pixel at (x, y).
func (gi *GrayImage) At(x, y int) uint8 {
	return gi.Pix[y*gi.Width+x]
}

// Set sets the pixel at (x, y).
func (gi *GrayImage) Set(x, y int, v uint8) {
	gi.Pix[y*gi.Width+x] = v
}

// Empty reports whether the image has no pixels.
func (gi *GrayImage) Empty() bool {
	return len(gi.Pix) == 0
}

// ToImage returns a copy as a standard library image.
func (gi *GrayImage) ToImage() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, gi.Width, gi.Height))
	copy(img.Pix, gi.Pix)
	return img
}

// SubImage copies the w x h patch whose top left corner is (x, y).
func (gi *GrayImage) SubImage(x, y, w, h int) (*GrayImage, error) {
	if x < 0 || y < 0 || w <= 0 || h <= 0 || x+w > gi.Width || y+h > gi.Height {
		return nil, errors.Errorf("patch %dx%d at (%d, %d) is not inside a %dx%d image", w, h, x, y, gi.Width, gi.Height)
	}
	out := NewGrayImage(w, h)
	for row := 0; row < h; row++ {
		copy(out.Pix[row*w:(row+1)*w], gi.Pix[(y+row)*gi.Width+x:(y+row)*gi.Width+x+w])
	}
	return out, nil
}

// Clear drops the pixels. Where they are stored is not affected.
func (gi *GrayImage) Clear() {
	gi.Width, gi.Height, gi.Pix = 0, 0, nil
}

// ExternalState returns where the pixels currently live.
func (gi *GrayImage) ExternalState() payload.State {
	return gi.external.State()
}

// ExternalRef returns the external storage record of the pixels.
func (gi *GrayImage) ExternalRef() payload.Ref {
	return gi.external.Ref
}

// ExternalPath returns the path of the pixel file in store, or "" when the image only
// lives in memory.
func (gi *GrayImage) ExternalPath(store *payload.Store) string {
	return gi.external.AbsolutePath(store)
}

// ConvertToExternalStorage moves the pixels into the file called name. See
// payload.Payload.ConvertToExternalStorage.
func (gi *GrayImage) ConvertToExternalStorage(store *payload.Store, name, baseDirOverride string) error {
	return gi.external.ConvertToExternalStorage(store, gi, name, baseDirOverride)
}

// Load reads the pixels of an offloaded image back into memory.
func (gi *GrayImage) Load(store *payload.Store) error {
	return gi.external.Load(store, gi)
}

// Unload drops the pixels of an offloaded image. It fails with
// serialization.ErrNotExternal for an image that only lives in memory.
func (gi *GrayImage) Unload() error {
	return gi.external.Unload(gi)
}

// ClassName implements serialization.Serializable.
func (gi *GrayImage) ClassName() string {
	return GrayImageClassName
}

// SerializationVersion implements serialization.Serializable.
//
//	v0 width, height and pixels
//	v1 external storage of the pixels
func (gi *GrayImage) SerializationVersion() uint16 {
	return 1
}

// EncodePayload writes the width, the height and the pixels.
func (gi *GrayImage) EncodePayload(ar *serialization.Archive) error {
	if len(gi.Pix) != gi.Width*gi.Height {
		return errors.Errorf("image is %dx%d but holds %d pixels", gi.Width, gi.Height, len(gi.Pix))
	}
	if err := ar.WriteUint32(uint32(gi.Width)); err != nil {
		return err
	}
	if err := ar.WriteUint32(uint32(gi.Height)); err != nil {
		return err
	}
	return ar.WriteBytes(gi.Pix)
}

// DecodePayload reads what EncodePayload wrote.
func (gi *GrayImage) DecodePayload(ar *serialization.Archive) error {
	width, err := ar.ReadUint32()
	if err != nil {
		return err
	}
	height, err := ar.ReadUint32()
	if err != nil {
		return err
	}
	pix, err := ar.ReadBytes()
	if err != nil {
		return err
	}
	if uint64(len(pix)) != uint64(width)*uint64(height) {
		return serialization.NewDecodeError("image is %dx%d but holds %d pixels", width, height, len(pix))
	}
	gi.Width, gi.Height, gi.Pix = int(width), int(height), pix
	return nil
}

// Encode implements serialization.Serializable. An offloaded image that is not loaded
// is written empty along with the name of its file.
func (gi *GrayImage) Encode(ar *serialization.Archive) error {
	if err := gi.EncodePayload(ar); err != nil {
		return err
	}
	return gi.external.EncodeRef(ar)
}

// Decode implements serialization.Serializable. Version 0 images live in memory.
func (gi *GrayImage) Decode(ar *serialization.Archive, version uint16) error {
	if version > gi.SerializationVersion() {
		return serialization.NewUnsupportedVersionError(gi.ClassName(), version, gi.SerializationVersion())
	}
	var out GrayImage
	if err := out.DecodePayload(ar); err != nil {
		return err
	}
	if version >= 1 {
		if err := out.external.DecodeRef(ar, &out); err != nil {
			return err
		}
	}
	*gi = out
	return nil
}
