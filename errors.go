package gpgme

import (
	"fmt"

	"github.com/gpgme-go/gpgme/constants"
	"github.com/pkg/errors"
)

// ErrorKind classifies every error returned by a Context.
type ErrorKind int

const (
	// KindEngineReported passes through a failure signaled by the engine.
	KindEngineReported ErrorKind = iota
	KindInvalidValue
	KindOperationInProgress
	KindEngineUnavailable
	KindProtocolViolation
	KindNoData
	KindPassphraseCancelled
	KindKeyNotFound
	KindAmbiguousKey
)

func (k ErrorKind) String() string {
	switch k {
	case KindEngineReported:
		return "engine reported error"
	case KindInvalidValue:
		return "invalid value"
	case KindOperationInProgress:
		return "operation in progress"
	case KindEngineUnavailable:
		return "engine unavailable"
	case KindProtocolViolation:
		return "protocol violation"
	case KindNoData:
		return "no data"
	case KindPassphraseCancelled:
		return "passphrase cancelled"
	case KindKeyNotFound:
		return "key not found"
	case KindAmbiguousKey:
		return "ambiguous key"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrInvalidValue        = &Error{Kind: KindInvalidValue, Source: constants.SourceGPGME, Code: constants.ErrInvValue}
	ErrOperationInProgress = &Error{Kind: KindOperationInProgress, Source: constants.SourceGPGME, Code: constants.ErrConflict}
	ErrEngineUnavailable   = &Error{Kind: KindEngineUnavailable, Source: constants.SourceGPGME, Code: constants.ErrInvEngine}
	ErrProtocolViolation   = &Error{Kind: KindProtocolViolation, Source: constants.SourceGPGME, Code: constants.ErrGeneral}
	ErrNoData              = &Error{Kind: KindNoData, Source: constants.SourceGPGME, Code: constants.ErrNoData}
	ErrPassphraseCancelled = &Error{Kind: KindPassphraseCancelled, Source: constants.SourceGPGME, Code: constants.ErrCanceled}
	ErrKeyNotFound         = &Error{Kind: KindKeyNotFound, Source: constants.SourceGPGME, Code: constants.ErrEOF}
	ErrAmbiguousKey        = &Error{Kind: KindAmbiguousKey, Source: constants.SourceGPGME, Code: constants.ErrAmbiguousName}
)

// ErrDeclined is returned by a PassphraseFunc to refuse a passphrase request.
var ErrDeclined = errors.New("gpgme: passphrase request declined")

// Error is the error record of every failed operation: a (source, code)
// pair, its classification and the partial results gathered before the
// failure.
type Error struct {
	Kind    ErrorKind
	Source  constants.ErrSource
	Code    constants.ErrCode
	Message string
	Cause   error

	// Signatures holds the verdicts collected by a failed verification.
	Signatures []*Signature
	// NewSignatures holds the signatures created before a sign failure.
	NewSignatures []*NewSignature
	// InvalidSigners and InvalidRecipients list the keys the engine refused.
	InvalidSigners    []InvalidKey
	InvalidRecipients []InvalidKey
	// ImportResult is set when an import failed.
	ImportResult *ImportResult
	// UnsupportedAlgorithm names the cipher a decryption could not handle.
	UnsupportedAlgorithm string
	// WrongKeyUsage is set when the decryption key was not flagged for
	// encryption.
	WrongKeyUsage bool
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code.String()
	}
	s := fmt.Sprintf("gpgme: %s (%s, %s)", msg, e.Kind, e.Source)
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Kind. An ambiguous lookup also matches ErrKeyNotFound since
// neither yields a unique key.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return t.Kind == KindKeyNotFound && e.Kind == KindAmbiguousKey
}

func newError(kind ErrorKind, code constants.ErrCode, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Source:  constants.SourceGPGME,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

func invalidValue(format string, args ...interface{}) *Error {
	return newError(KindInvalidValue, constants.ErrInvValue, format, args...)
}

func protocolViolation(cause error, format string, args ...interface{}) *Error {
	err := newError(KindProtocolViolation, constants.ErrGeneral, format, args...)
	err.Cause = cause
	return err
}

// engineError builds the record of an engine-signaled failure.
func engineError(source constants.ErrSource, code constants.ErrCode) *Error {
	kind := KindEngineReported
	if code == constants.ErrNoData {
		kind = KindNoData
	}
	return &Error{Kind: kind, Source: source, Code: code}
}

// codeError builds an engine error from the GPGME source.
func codeError(code constants.ErrCode) *Error {
	return engineError(constants.SourceGPGME, code)
}

// CodeOf returns the error code carried by err, or ErrGeneral for foreign
// errors and ErrNoError for nil.
func CodeOf(err error) constants.ErrCode {
	if err == nil {
		return constants.ErrNoError
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return constants.ErrGeneral
}

// asError returns err as *Error, wrapping foreign errors as engine reported.
func asError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindEngineReported, Source: constants.SourceGPGME, Code: constants.ErrGeneral, Cause: err}
}
