// Package chronicle keeps a compressed, append-only log of everything the
// dwarves thought and said, one zstd-compressed JSONL file per hour.
package chronicle

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const hourLayout = "2006-01-02-15"

// Writer appends JSON values to hourly rotated .jsonl.zst files.
// Safe for concurrent use.
type Writer struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

// NewWriter creates a writer under baseDir. Files are named
// prefix-YYYY-MM-DD-HH.jsonl.zst.
func NewWriter(baseDir, prefix string) *Writer {
	return &Writer{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// Write appends v as one line and flushes it through the compressor, so a
// reader sees every complete record.
func (w *Writer) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format(hourLayout)
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *Writer) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.PathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *Writer) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

// PathForHour returns the file an hour's records go to.
func (w *Writer) PathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// ReadFile decodes every record in one chronicle file.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []Record
	scanner := bufio.NewScanner(dec)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var r Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			return out, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, r)
	}
	// The current hour's file has no frame end until it rotates.
	if err := scanner.Err(); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return out, err
	}
	return out, nil
}
