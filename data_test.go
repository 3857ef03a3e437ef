package gpgme

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryData(t *testing.T) {
	d := NewData()
	assert.Equal(t, 0, d.Len())

	_, err := io.WriteString(d, "Hello World")
	require.NoError(t, err)
	assert.Equal(t, "Hello World", d.String())

	// Reads continue at the write position until rewound.
	n, err := d.Read(make([]byte, 4))
	assert.Zero(t, n)
	assert.Equal(t, io.EOF, err)

	require.NoError(t, d.Rewind())
	got, err := io.ReadAll(d)
	require.NoError(t, err)
	assert.Equal(t, "Hello World", string(got))

	pos, err := d.Seek(6, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(6), pos)
	_, err = io.WriteString(d, "Gophers!")
	require.NoError(t, err)
	assert.Equal(t, "Hello Gophers!", d.String())

	pos, err = d.Seek(-1, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(13), pos)
	pos, err = d.Seek(-3, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(10), pos)

	_, err = d.Seek(-20, io.SeekCurrent)
	assert.Error(t, err)
	_, err = d.Seek(0, 7)
	assert.Error(t, err)
}

func TestMemoryDataWriteBeyondEnd(t *testing.T) {
	d := NewDataString("ab")
	_, err := d.Seek(4, io.SeekStart)
	require.NoError(t, err)
	_, err = d.Write([]byte("cd"))
	require.NoError(t, err)
	assert.Equal(t, []byte{'a', 'b', 0, 0, 'c', 'd'}, d.Bytes())
}

func TestDataBytesIsCopied(t *testing.T) {
	src := []byte("secret")
	d := NewDataBytes(src)
	src[0] = 'S'
	assert.Equal(t, "secret", d.String())
}

func TestStreamData(t *testing.T) {
	r := NewDataReader(strings.NewReader("input"))
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "input", string(got))
	assert.NoError(t, r.Rewind())
	_, err = r.Write([]byte("x"))
	assert.Error(t, err)
	assert.Nil(t, r.Bytes())
	assert.Equal(t, -1, r.Len())

	var buf bytes.Buffer
	w := NewDataWriter(&buf)
	_, err = w.Write([]byte("output"))
	require.NoError(t, err)
	assert.Equal(t, "output", buf.String())
	_, err = w.Read(make([]byte, 1))
	assert.Error(t, err)
	assert.Error(t, w.Rewind())

	rw := NewDataReadWriter(&buf)
	_, err = rw.Write([]byte("!"))
	require.NoError(t, err)
	got, err = io.ReadAll(rw)
	require.NoError(t, err)
	assert.Equal(t, "output!", string(got))
}

func TestFileData(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	defer f.Close()

	d := NewDataFile(f)
	_, err = io.WriteString(d, "on disk")
	require.NoError(t, err)
	require.NoError(t, d.Rewind())
	got, err := io.ReadAll(d)
	require.NoError(t, err)
	assert.Equal(t, "on disk", string(got))
}
