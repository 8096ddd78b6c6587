package tailer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/SteelMorgan/log-alert-monitor/internal/domain"
	"github.com/rs/zerolog/log"
)

// DefaultMaxReadBytes bounds the bytes consumed by one ReadNew call
const DefaultMaxReadBytes = 4 << 20

// Reader reads the unconsumed suffix of an append-only file
// It keeps no state between calls: the caller owns the offset
type Reader struct {
	maxReadBytes int64
	now          func() time.Time
}

// NewReader creates a new tail reader
// maxReadBytes <= 0 uses DefaultMaxReadBytes
func NewReader(maxReadBytes int64) *Reader {
	if maxReadBytes <= 0 {
		maxReadBytes = DefaultMaxReadBytes
	}
	return &Reader{
		maxReadBytes: maxReadBytes,
		now:          time.Now,
	}
}

// ReadNew returns the complete lines written after offset from and the offset just past the last of them.
//
// A trailing line without its newline is neither returned nor counted, it is picked up
// once the writer finishes it. A missing file yields no lines and an unchanged offset.
// If the file shrank below from (truncation or rotation) reading restarts at byte 0.
// Reading stops at the first line boundary past maxReadBytes; the rest is left for the next call.
func (r *Reader) ReadNew(ctx context.Context, path string, from int64) ([]domain.LogLine, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, from, err
	}
	if from < 0 {
		return nil, from, fmt.Errorf("negative offset %d", from)
	}

	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debug().Str("file", path).Msg("Monitored file does not exist yet")
		return nil, from, nil
	}
	if err != nil {
		return nil, from, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, from, fmt.Errorf("failed to stat file: %w", err)
	}
	size := stat.Size()

	start := from
	if size < start {
		log.Warn().
			Str("file", path).
			Int64("saved_offset", start).
			Int64("file_size", size).
			Msg("File shrank below saved offset, reading from beginning")
		start = 0
	}

	if size == start {
		return nil, start, nil
	}

	if _, err := file.Seek(start, io.SeekStart); err != nil {
		return nil, from, fmt.Errorf("failed to seek to offset %d: %w", start, err)
	}

	// Bytes appended after Stat are left for the next call
	reader := bufio.NewReader(io.LimitReader(file, size-start))
	readAt := r.now()

	var lines []domain.LogLine
	pos := start
	for pos-start < r.maxReadBytes {
		raw, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			// Unterminated tail: not consumed
			break
		}
		if err != nil {
			return nil, from, fmt.Errorf("failed to read file at offset %d: %w", pos, err)
		}

		end := pos + int64(len(raw))
		lines = append(lines, domain.LogLine{
			Text:   trimNewline(raw),
			Start:  pos,
			End:    end,
			ReadAt: readAt,
		})
		pos = end
	}

	return lines, pos, nil
}

func trimNewline(raw []byte) string {
	n := len(raw)
	if n > 0 && raw[n-1] == '\n' {
		n--
	}
	if n > 0 && raw[n-1] == '\r' {
		n--
	}
	return string(raw[:n])
}
