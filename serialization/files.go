package serialization

import (
	"bufio"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/perception/utils"
)

var gzipMagic = [2]byte{0x1f, 0x8b}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// CompressingWriter wraps w in a gzip stream when compress is set. Closing the returned
// writer flushes the compressed stream but does not close w.
func CompressingWriter(w io.Writer, compress bool) io.WriteCloser {
	if !compress {
		return nopWriteCloser{w}
	}
	return gzip.NewWriter(w)
}

// DecompressingReader returns a reader over r that inflates r if it starts with the gzip
// magic number and passes it through untouched otherwise.
func DecompressingReader(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err == nil && magic[0] == gzipMagic[0] && magic[1] == gzipMagic[1] {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, NewDecodeError("bad gzip header: %v", err)
		}
		return zr, nil
	}
	return io.NopCloser(br), nil
}

// ExpectEnd checks that r has nothing left once an object or payload is decoded. A
// gzip stream only verifies its checksum and length when it reaches the end, so this
// is also where a cut or corrupted compressed file shows up.
func ExpectEnd(r io.Reader) error {
	var extra [1]byte
	n, err := io.ReadFull(r, extra[:])
	switch {
	case n != 0:
		return NewDecodeError("trailing bytes after the last object")
	case errors.Is(err, io.EOF):
		return nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		return NewDecodeError("stream ends before its trailer")
	case errors.Is(err, gzip.ErrChecksum), errors.Is(err, gzip.ErrHeader):
		return NewDecodeError("corrupt compressed stream: %v", err)
	default:
		return err
	}
}

// SaveObjectToFile writes obj as a complete archive to path, gzip compressed if asked.
// The file is replaced atomically.
func SaveObjectToFile(path string, obj Serializable, compress bool, opts ...Option) error {
	return utils.AtomicWriteFile(path, func(f io.Writer) (err error) {
		bw := bufio.NewWriter(f)
		cw := CompressingWriter(bw, compress)
		defer func() {
			err = multierr.Combine(err, cw.Close())
			if err == nil {
				err = bw.Flush()
			}
		}()
		return NewWriter(cw, opts...).WriteObject(obj)
	})
}

// LoadObjectFromFile reads the object of the archive stored at path. Anything after the
// object, or a compressed stream that fails its checksum, is a decode error.
func LoadObjectFromFile(path string, opts ...Option) (Serializable, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening archive %q", path)
	}
	defer goutils.UncheckedErrorFunc(f.Close)

	r, err := DecompressingReader(f)
	if err != nil {
		return nil, err
	}
	defer goutils.UncheckedErrorFunc(r.Close)
	obj, err := NewReader(r, opts...).ReadObject()
	if err != nil {
		return nil, err
	}
	if err := ExpectEnd(r); err != nil {
		return nil, errors.Wrapf(err, "reading archive %q", path)
	}
	return obj, nil
}
