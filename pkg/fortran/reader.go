// Package fortran reads and writes Fortran sequential unformatted files.
//
// A sequential unformatted file is a stream of records. Every record is framed
// by a 4-byte length marker before the payload and an identical marker after
// it:
//
//	[u32 length][payload: length bytes][u32 length]
//
// The simulator that produces our traces is frequently killed mid-write, so the
// Reader treats a bad or incomplete final record as the end of the stream
// rather than as an error.
package fortran

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
)

const markerSize = 4

// DefaultMaxRecordSize bounds the payload allocation for a single record. A
// length marker above it can only come from a corrupt file.
const DefaultMaxRecordSize = 64 << 20

var (
	// ErrTraceNotFound is returned by Open when the trace file does not exist.
	// It always wraps fs.ErrNotExist as well.
	ErrTraceNotFound = errors.New("trace file not found")

	// ErrRecordTooLarge is returned by Writer when a payload cannot be framed
	// by a 4-byte marker.
	ErrRecordTooLarge = errors.New("record too large for a 4-byte marker")

	errShortRead = errors.New("short read")
)

// Options configures how record markers are interpreted.
type Options struct {
	ByteOrder     binary.ByteOrder
	MaxRecordSize int
}

// DefaultOptions returns little-endian markers and DefaultMaxRecordSize.
func DefaultOptions() Options {
	return Options{
		ByteOrder:     binary.LittleEndian,
		MaxRecordSize: DefaultMaxRecordSize,
	}
}

// ByteOrderOrDefault returns the configured byte order, little-endian when
// unset. Payload fields use the same order as the markers.
func (o Options) ByteOrderOrDefault() binary.ByteOrder {
	if o.ByteOrder == nil {
		return binary.LittleEndian
	}
	return o.ByteOrder
}

// Reader walks the records of a sequential file. It holds a cursor into the
// underlying io.ReaderAt and nothing else, so Reset can restart it from the
// first record at any time.
type Reader struct {
	r         io.ReaderAt
	order     binary.ByteOrder
	maxSize   int
	pos       int64
	count     int
	done      bool
	truncated bool
	err       error
}

// NewReader creates a Reader positioned at the first record.
func NewReader(r io.ReaderAt, opts Options) *Reader {
	if opts.ByteOrder == nil {
		opts.ByteOrder = binary.LittleEndian
	}
	if opts.MaxRecordSize <= 0 {
		opts.MaxRecordSize = DefaultMaxRecordSize
	}
	return &Reader{
		r:       r,
		order:   opts.ByteOrder,
		maxSize: opts.MaxRecordSize,
	}
}

// Next returns the payload of the next record. ok is false once the stream
// has ended, either cleanly or because the remaining bytes do not form a
// complete, consistent record. err is non-nil only for genuine I/O failures.
//
// The returned slice is freshly allocated and owned by the caller.
func (r *Reader) Next() (payload []byte, ok bool, err error) {
	if r.done {
		return nil, false, r.err
	}

	head, err := r.readAt(r.pos, markerSize)
	if err != nil {
		// Nothing left at all is a clean end of stream.
		if errors.Is(err, errShortRead) && len(head) == 0 {
			return r.finish(false, nil)
		}
		return r.stop(err)
	}

	length := r.order.Uint32(head)
	if length&0x80000000 != 0 || int64(length) > int64(r.maxSize) {
		return r.finish(true, nil)
	}

	body, err := r.readAt(r.pos+markerSize, int(length)+markerSize)
	if err != nil {
		return r.stop(err)
	}

	tail := r.order.Uint32(body[length:])
	if tail != length {
		return r.finish(true, nil)
	}

	r.pos += int64(length) + 2*markerSize
	r.count++
	return body[:length:length], true, nil
}

// stop ends iteration after a read failure. Short reads are truncation, not
// errors.
func (r *Reader) stop(err error) ([]byte, bool, error) {
	if errors.Is(err, errShortRead) {
		return r.finish(true, nil)
	}
	return r.finish(false, err)
}

func (r *Reader) finish(truncated bool, err error) ([]byte, bool, error) {
	r.done = true
	r.truncated = truncated
	r.err = err
	return nil, false, err
}

// readAt reads exactly n bytes at off. A short read returns the bytes that
// were available together with errShortRead.
func (r *Reader) readAt(off int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := r.r.ReadAt(buf, off)
	if got == n {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return buf[:got], errShortRead
	}
	return nil, err
}

// Records returns a lazy sequence over the remaining records. Iteration stops
// at the end of the stream; check Err afterwards to tell a fatal read failure
// from a normal end.
func (r *Reader) Records() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for {
			payload, ok, err := r.Next()
			if err != nil || !ok {
				return
			}
			if !yield(payload) {
				return
			}
		}
	}
}

// Reset rewinds the reader to the first record.
func (r *Reader) Reset() {
	r.pos = 0
	r.count = 0
	r.done = false
	r.truncated = false
	r.err = nil
}

// Err returns the I/O error that ended iteration, if any.
func (r *Reader) Err() error {
	return r.err
}

// Count returns the number of records returned since the last reset.
func (r *Reader) Count() int {
	return r.count
}

// Offset returns the byte offset of the next record.
func (r *Reader) Offset() int64 {
	return r.pos
}

// Truncated reports whether iteration ended on an incomplete or inconsistent
// record instead of a clean end of file.
func (r *Reader) Truncated() bool {
	return r.truncated
}

// File is a Reader backed by an open file on disk.
type File struct {
	*Reader
	f    *os.File
	path string
}

// Open opens a trace for reading. A missing file yields an error matching
// both ErrTraceNotFound and fs.ErrNotExist.
func Open(path string, opts Options) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrTraceNotFound, err)
		}
		return nil, fmt.Errorf("opening trace %s: %w", path, err)
	}
	return &File{
		Reader: NewReader(f, opts),
		f:      f,
		path:   path,
	}, nil
}

// Path returns the path the file was opened from.
func (f *File) Path() string {
	return f.path
}

// Close closes the underlying file.
func (f *File) Close() error {
	return f.f.Close()
}
