package payload

import (
	"go.viam.com/perception/logging"
	"go.viam.com/perception/serialization"
)

// A Store is the context payloads are resolved against. It replaces any notion of a
// process wide base directory: every payload operation is handed the Store to use.
type Store struct {
	// BaseDir is where relative payload names are resolved.
	BaseDir string
	// Compress gzips payload files as they are written. Reading detects compression on
	// its own so a Store can read files written with either setting.
	Compress bool
	// MaxBufferBytes bounds any single buffer read back from a payload file. Zero means
	// serialization.DefaultMaxBufferBytes.
	MaxBufferBytes uint64
	Logger         logging.Logger
}

// NewStore returns a Store rooted at baseDir that writes compressed files.
func NewStore(baseDir string, logger logging.Logger) *Store {
	return &Store{BaseDir: baseDir, Compress: true, Logger: logger}
}

// Resolve returns the path a payload called name lives at in this store.
func (s *Store) Resolve(name string) string {
	if s == nil {
		return ResolvePath("", name)
	}
	return ResolvePath(s.BaseDir, name)
}

func (s *Store) logger() logging.Logger {
	if s == nil || s.Logger == nil {
		return logging.NewBlankLogger("payload")
	}
	return s.Logger
}

func (s *Store) compress() bool {
	return s != nil && s.Compress
}

func (s *Store) archiveOptions() []serialization.Option {
	if s == nil {
		return nil
	}
	return []serialization.Option{serialization.WithMaxBufferBytes(s.MaxBufferBytes)}
}
