package gpgme

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// Data is a position-tracked byte source or sink handed to an operation.
// The caller owns it; an operation only borrows it and never closes it.
type Data struct {
	r   io.Reader
	w   io.Writer
	s   io.Seeker
	mem *memBuffer
}

// NewData returns an empty in-memory data buffer.
func NewData() *Data {
	return newMemData(nil)
}

// NewDataBytes returns an in-memory data buffer holding a copy of b,
// positioned at the start.
func NewDataBytes(b []byte) *Data {
	return newMemData(append([]byte(nil), b...))
}

// NewDataString is NewDataBytes for strings.
func NewDataString(s string) *Data {
	return newMemData([]byte(s))
}

func newMemData(b []byte) *Data {
	m := &memBuffer{buf: b}
	return &Data{r: m, w: m, s: m, mem: m}
}

// NewDataReader returns a read-only channel over r. It is seekable if r is.
func NewDataReader(r io.Reader) *Data {
	d := &Data{r: r}
	if s, ok := r.(io.Seeker); ok {
		d.s = s
	}
	return d
}

// NewDataWriter returns a write-only channel over w.
func NewDataWriter(w io.Writer) *Data {
	d := &Data{w: w}
	if s, ok := w.(io.Seeker); ok {
		d.s = s
	}
	return d
}

// NewDataReadWriter returns a channel over rw.
func NewDataReadWriter(rw io.ReadWriter) *Data {
	d := &Data{r: rw, w: rw}
	if s, ok := rw.(io.Seeker); ok {
		d.s = s
	}
	return d
}

// NewDataFile returns a channel over an open file.
func NewDataFile(f *os.File) *Data {
	return &Data{r: f, w: f, s: f}
}

func (d *Data) Read(p []byte) (int, error) {
	if d.r == nil {
		return 0, errors.New("gpgme: data channel is not readable")
	}
	return d.r.Read(p)
}

func (d *Data) Write(p []byte) (int, error) {
	if d.w == nil {
		return 0, errors.New("gpgme: data channel is not writable")
	}
	return d.w.Write(p)
}

// Seek sets the position for the next Read or Write.
func (d *Data) Seek(offset int64, whence int) (int64, error) {
	if d.s == nil {
		return 0, errors.New("gpgme: data channel is not seekable")
	}
	return d.s.Seek(offset, whence)
}

// Rewind seeks to the start.
func (d *Data) Rewind() error {
	_, err := d.Seek(0, io.SeekStart)
	return err
}

// Bytes returns the content of an in-memory buffer, or nil for channels
// backed by a caller stream.
func (d *Data) Bytes() []byte {
	if d.mem == nil {
		return nil
	}
	return d.mem.buf
}

// String returns Bytes as a string.
func (d *Data) String() string {
	return string(d.Bytes())
}

// Len returns the size of an in-memory buffer, or -1.
func (d *Data) Len() int {
	if d.mem == nil {
		return -1
	}
	return len(d.mem.buf)
}

type memBuffer struct {
	buf []byte
	pos int64
}

func (m *memBuffer) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *memBuffer) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		if end > int64(cap(m.buf)) {
			grown := make([]byte, len(m.buf), 2*end)
			copy(grown, m.buf)
			m.buf = grown
		}
		m.buf = m.buf[:end]
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = m.pos + offset
	case io.SeekEnd:
		abs = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("gpgme: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("gpgme: negative position")
	}
	m.pos = abs
	return abs, nil
}

func readerOf(d *Data) io.Reader {
	if d == nil {
		return nil
	}
	return d
}

func writerOf(d *Data) io.Writer {
	if d == nil {
		return nil
	}
	return d
}
