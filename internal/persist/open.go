package persist

import (
	"fmt"
	"io"
)

const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenStore opens the blob store selected by driver. For the file driver
// path is a directory; for sqlite it is the database file.
func OpenStore(driver, path string) (BlobStore, io.Closer, error) {
	switch driver {
	case DriverFile, "":
		return NewFileStore(path), nopCloser{}, nil
	case DriverSQLite:
		s, err := OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case DriverMemory:
		return NewMemoryStore(), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
