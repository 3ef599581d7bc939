package utils

import (
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// ResolveFile returns the path of the given file relative to the root
// of the codebase. For example, if this file currently
// lives in utils/file.go and ./foo/bar/baz is given, then the result
// is foo/bar/baz. This is helpful when you don't want to relatively
// refer to files when you're not sure where the caller actually
// lives in relation to the target file.
func ResolveFile(fn string) string {
	//nolint:dogsled
	_, thisFilePath, _, _ := runtime.Caller(0)
	thisDirPath, err := filepath.Abs(filepath.Dir(thisFilePath))
	if err != nil {
		panic(err)
	}
	return filepath.Join(thisDirPath, "..", fn)
}

// RemoveFileNoError will remove the file at the given path if it exists. Any
// errors will be suppressed.
func RemoveFileNoError(path string) {
	utils.UncheckedErrorFunc(func() error {
		if _, err := os.Stat(path); err == nil {
			return os.Remove(path)
		}
		return nil
	})
}

// AtomicWriteFile calls write with a temporary file next to path and renames it over path
// only if write and the close both succeed. On failure path is left as it was.
func AtomicWriteFile(path string, write func(w io.Writer) error) (err error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".tmp*")
	if err != nil {
		return errors.Wrapf(err, "creating temporary file for %q", path)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			RemoveFileNoError(tmpName)
		}
	}()

	if err := write(tmp); err != nil {
		return multierr.Combine(err, tmp.Close())
	}
	if err := tmp.Sync(); err != nil {
		return multierr.Combine(err, tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
