package offset

import "fmt"

const (
	BackendFile = "file"
	BackendBolt = "bolt"
)

// Open creates the offset store for the given backend
// For the file backend path is the record path (empty for "<file>.offset"),
// for the bolt backend it is the database path
func Open(backend, path string) (OffsetStore, error) {
	switch backend {
	case "", BackendFile:
		return NewFileStore(path), nil
	case BackendBolt:
		if path == "" {
			return nil, fmt.Errorf("bolt offset backend requires a database path")
		}
		return NewBoltDBStore(path)
	default:
		return nil, fmt.Errorf("unsupported offset backend: %s (use 'file' or 'bolt')", backend)
	}
}
