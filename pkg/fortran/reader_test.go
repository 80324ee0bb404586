package fortran

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeRecords(t *testing.T, order binary.ByteOrder, payloads ...[]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf, order)
	for _, p := range payloads {
		require.NoError(t, w.WriteRecord(p))
	}
	require.Equal(t, len(payloads), w.Count())
	return buf.Bytes()
}

func collect(r *Reader) [][]byte {
	var out [][]byte
	for p := range r.Records() {
		out = append(out, p)
	}
	return out
}

func TestReaderReadsRecordsInOrder(t *testing.T) {
	payloads := [][]byte{
		{1, 2, 3, 4},
		{},
		bytes.Repeat([]byte{0xAB}, 820),
	}
	data := encodeRecords(t, binary.LittleEndian, payloads...)

	r := NewReader(bytes.NewReader(data), DefaultOptions())
	got := collect(r)

	require.Len(t, got, 3)
	for i := range payloads {
		assert.Equal(t, payloads[i], got[i], "record %d", i)
	}
	assert.Equal(t, 3, r.Count())
	assert.NoError(t, r.Err())
	assert.False(t, r.Truncated())
	assert.Equal(t, int64(len(data)), r.Offset())
}

func TestReaderEnvelopeLayout(t *testing.T) {
	data := encodeRecords(t, binary.LittleEndian, []byte{9, 8})
	assert.Equal(t, []byte{2, 0, 0, 0, 9, 8, 2, 0, 0, 0}, data)
}

func TestReaderBigEndian(t *testing.T) {
	data := encodeRecords(t, binary.BigEndian, []byte{1, 2, 3})
	assert.Equal(t, []byte{0, 0, 0, 3}, data[:4])

	r := NewReader(bytes.NewReader(data), Options{ByteOrder: binary.BigEndian})
	got := collect(r)
	require.Len(t, got, 1)
	assert.Equal(t, []byte{1, 2, 3}, got[0])
}

func TestReaderTolerantTruncation(t *testing.T) {
	full := encodeRecords(t, binary.LittleEndian, []byte{1, 1, 1, 1}, []byte{2, 2, 2, 2}, []byte{3, 3, 3, 3})
	recordLen := 4 + 4 + 4

	tests := []struct {
		name      string
		data      []byte
		want      int
		truncated bool
	}{
		{
			name: "clean end of file",
			data: full,
			want: 3,
		},
		{
			name:      "partial leading marker",
			data:      full[:2*recordLen+2],
			want:      2,
			truncated: true,
		},
		{
			name:      "payload cut short",
			data:      full[:2*recordLen+6],
			want:      2,
			truncated: true,
		},
		{
			name:      "missing trailing marker",
			data:      full[:3*recordLen-1],
			want:      2,
			truncated: true,
		},
		{
			name: "empty file",
			data: nil,
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(bytes.NewReader(tt.data), DefaultOptions())
			got := collect(r)
			assert.Len(t, got, tt.want)
			assert.Equal(t, tt.truncated, r.Truncated())
			assert.NoError(t, r.Err())
		})
	}
}

func TestReaderMarkerMismatchEndsStream(t *testing.T) {
	data := encodeRecords(t, binary.LittleEndian, []byte{1, 2, 3, 4}, []byte{5, 6, 7, 8})
	// Corrupt the trailing marker of the second record.
	binary.LittleEndian.PutUint32(data[len(data)-4:], 5)

	r := NewReader(bytes.NewReader(data), DefaultOptions())
	got := collect(r)
	require.Len(t, got, 1)
	assert.True(t, r.Truncated())

	// Once ended, Next keeps reporting the end.
	_, ok, err := r.Next()
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestReaderRejectsOversizedMarker(t *testing.T) {
	data := make([]byte, 16)
	binary.LittleEndian.PutUint32(data, 1<<30)

	r := NewReader(bytes.NewReader(data), Options{MaxRecordSize: 1024})
	_, ok, err := r.Next()
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.True(t, r.Truncated())
}

func TestReaderResetRestartsSequence(t *testing.T) {
	data := encodeRecords(t, binary.LittleEndian, []byte{1}, []byte{2}, []byte{3})
	r := NewReader(bytes.NewReader(data), DefaultOptions())

	first := collect(r)
	r.Reset()
	assert.Equal(t, 0, r.Count())
	second := collect(r)

	assert.Equal(t, first, second)
}

func TestReaderEarlyBreakKeepsCursor(t *testing.T) {
	data := encodeRecords(t, binary.LittleEndian, []byte{1}, []byte{2}, []byte{3})
	r := NewReader(bytes.NewReader(data), DefaultOptions())

	for p := range r.Records() {
		assert.Equal(t, []byte{1}, p)
		break
	}
	rest := collect(r)
	assert.Equal(t, [][]byte{{2}, {3}}, rest)
}

type failingReaderAt struct{}

func (failingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return 0, errors.New("disk on fire")
}

func TestReaderPropagatesIOErrors(t *testing.T) {
	r := NewReader(failingReaderAt{}, DefaultOptions())

	_, ok, err := r.Next()
	assert.False(t, ok)
	require.Error(t, err)
	assert.EqualError(t, err, "disk on fire")
	assert.Equal(t, err, r.Err())

	var n int
	for range r.Records() {
		n++
	}
	assert.Zero(t, n)
}

func TestReaderUnexpectedEOFIsTruncation(t *testing.T) {
	r := NewReader(unexpectedEOFReaderAt{}, DefaultOptions())
	_, ok, err := r.Next()
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.True(t, r.Truncated())
}

type unexpectedEOFReaderAt struct{}

func (unexpectedEOFReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return 1, io.ErrUnexpectedEOF
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := Open(filepath.Join(dir, "fort.99"), DefaultOptions())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTraceNotFound)
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("existing file", func(t *testing.T) {
		path := filepath.Join(dir, "fort.10")
		data := encodeRecords(t, binary.LittleEndian, []byte{1, 2}, []byte{3, 4})
		require.NoError(t, os.WriteFile(path, data, 0o644))

		f, err := Open(path, DefaultOptions())
		require.NoError(t, err)
		defer f.Close()

		assert.Equal(t, path, f.Path())
		assert.Len(t, collect(f.Reader), 2)
	})
}
