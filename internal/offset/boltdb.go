package offset

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

const (
	bucketName = "offsets"
)

// BoltDBStore implements OffsetStore using BoltDB
// Values are stored as decimal text so the database stays inspectable with bbolt tooling
type BoltDBStore struct {
	db *bbolt.DB
}

// NewBoltDBStore creates a new BoltDB offset store
func NewBoltDBStore(dbPath string) (*BoltDBStore, error) {
	// Short timeout: a held lock means another monitor owns this database
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb (file may be locked by another process): %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	log.Info().
		Str("db_path", dbPath).
		Msg("BoltDB offset store initialized")

	return &BoltDBStore{db: db}, nil
}

// Get retrieves the offset for a given file
func (s *BoltDBStore) Get(ctx context.Context, filePath string) (int64, error) {
	var offset int64

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		val := b.Get([]byte(makeKey(filePath)))
		if val == nil {
			offset = 0
			return nil
		}

		parsed, err := parseOffset(val)
		if err != nil {
			return fmt.Errorf("invalid offset value: %w", err)
		}
		offset = parsed
		return nil
	})

	if err != nil {
		return 0, fmt.Errorf("failed to get offset: %w", err)
	}

	return offset, nil
}

// Set stores the offset for a given file
func (s *BoltDBStore) Set(ctx context.Context, filePath string, offset int64) error {
	if offset < 0 {
		return fmt.Errorf("negative offset %d", offset)
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		return b.Put([]byte(makeKey(filePath)), []byte(formatOffset(offset)))
	})

	if err != nil {
		return fmt.Errorf("failed to set offset: %w", err)
	}

	log.Debug().
		Str("file_path", filePath).
		Int64("offset", offset).
		Msg("Offset updated")

	return nil
}

// Delete removes the offset for a given file
func (s *BoltDBStore) Delete(ctx context.Context, filePath string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		return b.Delete([]byte(makeKey(filePath)))
	})

	if err != nil {
		return fmt.Errorf("failed to delete offset: %w", err)
	}

	return nil
}

// List returns all stored offsets keyed by monitored file path
func (s *BoltDBStore) List(ctx context.Context) (map[string]int64, error) {
	result := make(map[string]int64)

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		return b.ForEach(func(k, v []byte) error {
			if parsed, err := parseOffset(v); err == nil {
				result[string(k)] = parsed
			}
			return nil
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list offsets: %w", err)
	}

	return result, nil
}

// Close closes the BoltDB database
func (s *BoltDBStore) Close() error {
	log.Info().Msg("Closing BoltDB offset store")
	return s.db.Close()
}

// makeKey normalizes the monitored file path so relative and absolute spellings share a record
func makeKey(filePath string) string {
	if abs, err := filepath.Abs(filePath); err == nil {
		return abs
	}
	return filepath.Clean(filePath)
}
