package gpgme

import (
	"testing"

	"github.com/gpgme-go/gpgme/constants"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorIs(t *testing.T) {
	err := errors.Wrap(newError(KindPassphraseCancelled, constants.ErrCanceled, "declined"), "sign")
	assert.True(t, errors.Is(err, ErrPassphraseCancelled))
	assert.False(t, errors.Is(err, ErrNoData))

	ambiguous := newError(KindAmbiguousKey, constants.ErrAmbiguousName, "two keys")
	assert.True(t, errors.Is(ambiguous, ErrAmbiguousKey))
	assert.True(t, errors.Is(ambiguous, ErrKeyNotFound))
	assert.False(t, errors.Is(newError(KindKeyNotFound, constants.ErrEOF, "none"), ErrAmbiguousKey))

	assert.True(t, errors.Is(engineError(constants.SourceGPG, constants.ErrNoData), ErrNoData))
	assert.False(t, errors.Is(engineError(constants.SourceGPG, constants.ErrBadSignature), ErrNoData))
}

func TestErrorMessage(t *testing.T) {
	e := invalidValue("bad mode %d", 9)
	assert.Equal(t, "gpgme: bad mode 9 (invalid value, GPGME)", e.Error())

	e = engineError(constants.SourceGPG, constants.ErrNoSeckey)
	assert.Equal(t, "gpgme: No secret key (engine reported error, GnuPG)", e.Error())

	cause := errors.New("exit status 2")
	e = protocolViolation(cause, "engine died")
	assert.Equal(t, "gpgme: engine died (protocol violation, GPGME): exit status 2", e.Error())
	assert.Equal(t, cause, errors.Cause(e.Unwrap()))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, constants.ErrNoError, CodeOf(nil))
	assert.Equal(t, constants.ErrGeneral, CodeOf(errors.New("foreign")))
	assert.Equal(t, constants.ErrNoPubkey, CodeOf(errors.Wrap(codeError(constants.ErrNoPubkey), "ctx")))
}

func TestAsError(t *testing.T) {
	foreign := errors.New("foreign")
	e := asError(foreign)
	assert.Equal(t, KindEngineReported, e.Kind)
	assert.Equal(t, foreign, e.Cause)

	own := codeError(constants.ErrConflict)
	assert.Same(t, own, asError(errors.WithMessage(own, "wrapped")))
}

func TestErrValueRoundTrip(t *testing.T) {
	v := constants.MakeErrValue(constants.SourceGPG, constants.ErrBadPassphrase)
	assert.Equal(t, uint32(33554443), v)
	source, code := constants.SplitErrValue(v)
	assert.Equal(t, constants.SourceGPG, source)
	assert.Equal(t, constants.ErrBadPassphrase, code)
}
