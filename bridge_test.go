package gpgme

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/gpgme-go/gpgme/constants"
	"github.com/gpgme-go/gpgme/engine/enginetest"
	"github.com/gpgme-go/gpgme/engine/status"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passphraseScript = `
	USERID_HINT 2D727CC768697734 Alpha Test <alpha@example.net>
	NEED_PASSPHRASE 2D727CC768697734 2D727CC768697734 17 0
	GET_HIDDEN passphrase.enter
	BAD_PASSPHRASE 2D727CC768697734
	USERID_HINT 2D727CC768697734 Alpha Test <alpha@example.net>
	NEED_PASSPHRASE 2D727CC768697734 2D727CC768697734 17 0
	GET_HIDDEN passphrase.enter
	GOOD_PASSPHRASE
	SIG_CREATED S 17 2 00 1700000000 ` + testFpr

type passphraseCall struct {
	hint, info string
	prevBad    bool
}

func TestPassphraseCallback(t *testing.T) {
	c, e := newTestContext(t, &enginetest.Script{Lines: enginetest.Lines(passphraseScript)})

	var calls []passphraseCall
	answers := []string{"wrong", "abc"}
	require.NoError(t, c.SetPassphraseCallback(func(hint, info string, prevBad bool) (string, error) {
		calls = append(calls, passphraseCall{hint, info, prevBad})
		a := answers[0]
		answers = answers[1:]
		return a, nil
	}))

	_, err := c.Sign(context.Background(), NewDataString("hello"), NewData(), constants.SigModeNormal)
	require.NoError(t, err)
	assert.Equal(t, []string{"wrong", "abc"}, e.Last().Responses)
	require.Len(t, calls, 2)
	assert.Equal(t, "2D727CC768697734 Alpha Test <alpha@example.net>", calls[0].hint)
	assert.Equal(t, "2D727CC768697734 2D727CC768697734 17 0", calls[0].info)
	assert.False(t, calls[0].prevBad)
	assert.True(t, calls[1].prevBad)
}

func TestPassphraseDeclined(t *testing.T) {
	c, e := newTestContext(t, &enginetest.Script{Lines: enginetest.Lines(passphraseScript)})
	require.NoError(t, c.SetPassphraseCallback(func(string, string, bool) (string, error) {
		return "", ErrDeclined
	}))

	_, err := c.Sign(context.Background(), NewDataString("hello"), NewData(), constants.SigModeNormal)
	assert.True(t, errors.Is(err, ErrPassphraseCancelled))
	assert.True(t, errors.Is(err, ErrDeclined))
	assert.Equal(t, constants.ErrCanceled, CodeOf(err))
	assert.True(t, e.Last().Killed)
	assert.Empty(t, e.Last().Responses)
}

func TestPassphraseCallbackFailure(t *testing.T) {
	c, e := newTestContext(t, &enginetest.Script{Lines: enginetest.Lines(passphraseScript)})
	boom := errors.New("pinentry gone")
	require.NoError(t, c.SetPassphraseCallback(func(string, string, bool) (string, error) {
		return "", boom
	}))

	_, err := c.Sign(context.Background(), NewDataString("hello"), NewData(), constants.SigModeNormal)
	assert.True(t, errors.Is(err, boom))
	assert.True(t, e.Last().Killed)
}

func TestPassphraseWithoutCallback(t *testing.T) {
	c, e := newTestContext(t, &enginetest.Script{Lines: enginetest.Lines(passphraseScript)})
	_, err := c.Sign(context.Background(), NewDataString("hello"), NewData(), constants.SigModeNormal)
	assert.True(t, errors.Is(err, ErrPassphraseCancelled))
	assert.True(t, e.Last().Killed)
}

func TestPassphraseWithLineBreak(t *testing.T) {
	c, _ := newTestContext(t, &enginetest.Script{Lines: enginetest.Lines(passphraseScript)})
	require.NoError(t, c.SetPassphraseCallback(func(string, string, bool) (string, error) {
		return "abc\ninjected", nil
	}))
	_, err := c.Sign(context.Background(), NewDataString("hello"), NewData(), constants.SigModeNormal)
	assert.True(t, errors.Is(err, ErrInvalidValue))
}

func TestMissingPassphrase(t *testing.T) {
	c, e := newTestContext(t, &enginetest.Script{Lines: enginetest.Lines(`
		USERID_HINT 2D727CC768697734 Alpha
		MISSING_PASSPHRASE
		SIG_CREATED S 17 2 00 1700000000 ` + testFpr)})
	_, err := c.Sign(context.Background(), NewDataString("hello"), NewData(), constants.SigModeNormal)
	assert.True(t, errors.Is(err, ErrPassphraseCancelled))
	assert.True(t, e.Last().Killed)
}

func TestProgressCallback(t *testing.T) {
	c, _ := newTestContext(t, &enginetest.Script{Lines: enginetest.Lines(`
		PROGRESS stdin ? 100 1000
		PROGRESS primegen%20step . 3 0
		SIG_CREATED S 17 2 00 1700000000 ` + testFpr)})

	var got []string
	require.NoError(t, c.SetProgressCallback(func(what string, typ int, current, total int) {
		got = append(got, fmt.Sprintf("%s %c %d/%d", what, typ, current, total))
	}))
	_, err := c.Sign(context.Background(), NewDataString("hello"), NewData(), constants.SigModeNormal)
	require.NoError(t, err)
	assert.Equal(t, []string{"stdin ? 100/1000", "primegen step . 3/0"}, got)
}

func TestPromptOutsideEdit(t *testing.T) {
	c, e := newTestContext(t, &enginetest.Script{Lines: enginetest.Lines("GET_BOOL untrusted_key.override")})
	err := c.Encrypt(context.Background(), []*Key{testKey(testFpr)}, 0, NewDataString("hello"), NewData())
	assert.True(t, errors.Is(err, ErrProtocolViolation))
	assert.True(t, e.Last().Killed)
}

func TestEditCallback(t *testing.T) {
	c, e := newTestContext(t, &enginetest.Script{Lines: enginetest.Lines(`
		KEY_CONSIDERED ` + testFpr + ` 0
		GET_LINE keyedit.prompt
		GOT_IT
		GET_LINE edit_ownertrust.value
		GOT_IT
		GET_BOOL edit_ownertrust.set_ultimate.okay
		GOT_IT
		GET_LINE keyedit.prompt
		GOT_IT
		CARDCTRL 3 D2760001240101010001
		GET_LINE keyedit.prompt
		GOT_IT`)})

	answers := map[string][]string{
		"keyedit.prompt":                    {"trust", "fpr", "quit"},
		"edit_ownertrust.value":             {"5"},
		"edit_ownertrust.set_ultimate.okay": {"Y"},
	}
	var seen []status.Keyword
	err := c.Edit(context.Background(), testKey(testFpr), func(kw status.Keyword, args string, w io.Writer) error {
		seen = append(seen, kw)
		if !kw.IsPrompt() {
			return nil
		}
		queue := answers[args]
		require.NotEmpty(t, queue, args)
		answers[args] = queue[1:]
		_, err := fmt.Fprintln(w, queue[0])
		return err
	}, NewData())
	require.NoError(t, err)
	assert.Equal(t, []string{"trust", "5", "Y", "fpr", "quit"}, e.Last().Responses)
	assert.Equal(t, []string{testFpr}, e.Last().Op.Patterns)
	assert.Contains(t, seen, status.GotIt)
	assert.Contains(t, seen, status.CardCtrl)
	assert.Contains(t, seen, status.KeyConsidered)
}

func TestEditCallbackFailure(t *testing.T) {
	c, e := newTestContext(t, &enginetest.Script{Lines: enginetest.Lines("GET_LINE keyedit.prompt")})
	boom := errors.New("stop")
	err := c.Edit(context.Background(), testKey(testFpr), func(status.Keyword, string, io.Writer) error {
		return boom
	}, nil)
	assert.True(t, errors.Is(err, boom))
	assert.True(t, e.Last().Killed)

	err = c.Edit(context.Background(), testKey(testFpr), nil, nil)
	assert.True(t, errors.Is(err, ErrInvalidValue))
	err = c.Edit(context.Background(), nil, func(status.Keyword, string, io.Writer) error { return nil }, nil)
	assert.True(t, errors.Is(err, ErrInvalidValue))
}

func TestCardEditWithoutKey(t *testing.T) {
	c, e := newTestContext(t, &enginetest.Script{Lines: enginetest.Lines("GET_LINE cardedit.prompt")})
	err := c.CardEdit(context.Background(), nil, func(kw status.Keyword, args string, w io.Writer) error {
		if kw.IsPrompt() {
			_, err := io.WriteString(w, "quit\n")
			return err
		}
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, e.Last().Op.Patterns)
	assert.Equal(t, []string{"quit"}, e.Last().Responses)
}
