package record

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// DecodeError is returned when a line of a record file cannot be decoded.
// The whole pass stops at the first one.
type DecodeError struct {
	Path string
	Line int
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Reader streams records from a gzip-compressed file in file order. It is
// single pass; open the file again for another pass.
type Reader struct {
	path string
	file *os.File
	gz   *gzip.Reader
	buf  *bufio.Reader
	line int
}

// Open opens path for reading.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open records: %w", err)
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open records %s: %w", path, err)
	}
	return &Reader{
		path: path,
		file: f,
		gz:   gz,
		buf:  bufio.NewReaderSize(gz, 1<<20),
	}, nil
}

// Next returns the next record, or io.EOF once the file is exhausted.
// Blank lines are skipped.
func (r *Reader) Next() (Record, error) {
	for {
		raw, err := r.buf.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read %s: %w", r.path, err)
		}
		if raw == "" && errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		r.line++

		line := strings.TrimSpace(raw)
		if line == "" {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			continue
		}
		rec, decErr := Decode(line)
		if decErr != nil {
			return nil, &DecodeError{Path: r.path, Line: r.line, Err: decErr}
		}
		return rec, nil
	}
}

// Line returns the number of lines consumed so far.
func (r *Reader) Line() int { return r.line }

// Close releases the underlying file.
func (r *Reader) Close() error {
	gzErr := r.gz.Close()
	if err := r.file.Close(); err != nil {
		return err
	}
	return gzErr
}

// ForEach opens path and calls fn for every record in order. It stops at the
// first decode error or the first error fn returns.
func ForEach(path string, fn func(Record) error) error {
	r, err := Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}
