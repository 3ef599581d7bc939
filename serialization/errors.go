package serialization

import (
	"github.com/pkg/errors"
)

// Error kinds returned by this package and by payload. Callers should test for them with
// errors.Is since they are almost always wrapped with more context.
var (
	ErrUnknownClass          = errors.New("unknown class")
	ErrDuplicateRegistration = errors.New("duplicate class registration")
	ErrUnsupportedVersion    = errors.New("unsupported serialization version")
	ErrDecode                = errors.New("decode error")
	ErrIO                    = errors.New("payload i/o error")
	ErrAlreadyExternal       = errors.New("payload is already stored externally")
	ErrNotExternal           = errors.New("payload is not stored externally")
)

// NewUnsupportedVersionError is returned when a declared version is newer than what this
// build knows how to read.
func NewUnsupportedVersionError(class string, declared, maximum uint16) error {
	return errors.Wrapf(ErrUnsupportedVersion, "class %q declares version %d but this build reads up to %d",
		class, declared, maximum)
}

// NewDecodeError wraps ErrDecode with a formatted message.
func NewDecodeError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrDecode, format, args...)
}
