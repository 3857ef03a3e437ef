package status

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	ev, ok := Parse("[GNUPG:] GOODSIG 2CF46B7FC97E6B0F Joe Tester <joe@example.com>\n")
	require.True(t, ok)
	assert.Equal(t, GoodSig, ev.Keyword)
	assert.Equal(t, "2CF46B7FC97E6B0F", ev.Arg(0))
	assert.Equal(t, "Joe Tester <joe@example.com>", strings.SplitN(ev.Raw, " ", 2)[1])
	assert.Equal(t, "", ev.Arg(42))
}

func TestParseUnknownKeyword(t *testing.T) {
	ev, ok := Parse("[GNUPG:] SOMETHING_NEW 1 2")
	require.True(t, ok)
	assert.Equal(t, KeywordUnknown, ev.Keyword)
	assert.Equal(t, "SOMETHING_NEW", ev.Name)
	assert.Equal(t, int64(2), ev.IntArg(1))
}

func TestParseRejectsForeignLines(t *testing.T) {
	for _, line := range []string{"", "gpg: Signature made", "[GNUPG:] ", "[GNUPG:]NODATA"} {
		_, ok := Parse(line)
		assert.False(t, ok, line)
	}
}

func TestReaderSkipsNoise(t *testing.T) {
	r := NewReader(strings.NewReader("gpg: noise\n[GNUPG:] NEWSIG\n\n[GNUPG:] NODATA 1"))

	ev, err := r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, NewSig, ev.Keyword)

	ev, err = r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, NoData, ev.Keyword)
	assert.Equal(t, "1", ev.Arg(0))

	_, err = r.ReadEvent()
	assert.Equal(t, io.EOF, err)
}

func TestWriterEmit(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Emit(SigCreated, "D", 22, 10, "00", 1700000000, "ABCD"))
	require.NoError(t, w.Emit(NewSig))
	assert.Equal(t, "[GNUPG:] SIG_CREATED D 22 10 00 1700000000 ABCD\n[GNUPG:] NEWSIG\n", buf.String())
}

func TestEscape(t *testing.T) {
	assert.Equal(t, "a%20b%25c%0A", Escape("a b%c\n"))
	assert.Equal(t, "a b%c\n", Unescape("a%20b%25c%0A"))
	assert.Equal(t, "100%", Unescape("100%"))
	assert.Equal(t, "%zz", Unescape("%zz"))
}
