package offset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// RecordSuffix is appended to the monitored file path to name its offset record
const RecordSuffix = ".offset"

// FileStore keeps the offset as a decimal integer in a side file next to the monitored file
type FileStore struct {
	recordPath string // explicit record path, empty means "<file>.offset"
}

// NewFileStore creates a side-file offset store
// If recordPath is empty, the record lives at "<monitored file>.offset"
func NewFileStore(recordPath string) *FileStore {
	return &FileStore{recordPath: recordPath}
}

// RecordPath returns the path of the record that holds the offset for filePath
func (s *FileStore) RecordPath(filePath string) string {
	if s.recordPath != "" {
		return s.recordPath
	}
	return filePath + RecordSuffix
}

// Get retrieves the offset for a given file
func (s *FileStore) Get(ctx context.Context, filePath string) (int64, error) {
	path := s.RecordPath(filePath)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read offset record %s: %w", path, err)
	}

	value, err := parseOffset(data)
	if err != nil {
		return 0, fmt.Errorf("invalid offset record %s: %w", path, err)
	}

	return value, nil
}

// Set stores the offset for a given file
// The record is replaced atomically: temp file, fsync, rename, fsync of the directory
func (s *FileStore) Set(ctx context.Context, filePath string, offset int64) error {
	if offset < 0 {
		return fmt.Errorf("negative offset %d", offset)
	}

	path := s.RecordPath(filePath)
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp offset record: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(formatOffset(offset)); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write offset record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync offset record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close offset record: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace offset record: %w", err)
	}

	syncDir(dir)

	log.Debug().
		Str("file_path", filePath).
		Str("record", path).
		Int64("offset", offset).
		Msg("Offset updated")

	return nil
}

// Delete removes the offset for a given file
func (s *FileStore) Delete(ctx context.Context, filePath string) error {
	path := s.RecordPath(filePath)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete offset record %s: %w", path, err)
	}
	return nil
}

// Close is a no-op, records are closed after every write
func (s *FileStore) Close() error {
	return nil
}

// syncDir flushes the directory entry after a rename
// Some platforms cannot fsync directories, the rename is still atomic there
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		log.Debug().Err(err).Str("dir", dir).Msg("Directory sync not supported")
	}
}

func formatOffset(offset int64) string {
	return strconv.FormatInt(offset, 10) + "\n"
}

func parseOffset(data []byte) (int64, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, fmt.Errorf("empty record")
	}
	value, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, fmt.Errorf("negative offset %d", value)
	}
	return value, nil
}
