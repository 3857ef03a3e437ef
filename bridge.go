package gpgme

import (
	"bytes"
	"io"
	"strings"

	"github.com/gpgme-go/gpgme/constants"
	"github.com/gpgme-go/gpgme/engine"
	"github.com/gpgme-go/gpgme/engine/status"
	"github.com/pkg/errors"
)

// PassphraseFunc supplies the passphrase for a secret key. uidHint names
// the key ("KEYID User Name <email>"), passphraseInfo carries the engine's
// request details and prevWasBad is set when the previous attempt was
// rejected. Returning ErrDeclined cancels the operation.
type PassphraseFunc func(uidHint, passphraseInfo string, prevWasBad bool) (string, error)

// ProgressFunc receives progress reports of long running operations.
type ProgressFunc func(what string, typ int, current, total int)

// EditFunc drives an interactive key edit. It is called for every status
// record; for prompts (GET_LINE, GET_BOOL, GET_HIDDEN) whatever it writes
// to w, up to the first newline, is sent back as the answer.
type EditFunc func(keyword status.Keyword, args string, w io.Writer) error

// responder is the part of a session the bridge writes to.
type responder interface {
	Respond(line string) error
}

// bridge services the records that suspend an operation: passphrase
// requests, progress reports and edit prompts. It runs on the goroutine
// that issued the operation.
type bridge struct {
	kind       engine.Kind
	passphrase PassphraseFunc
	progress   ProgressFunc
	edit       EditFunc
	session    responder

	uidHint string
	info    string
	prevBad bool
}

func newBridge(kind engine.Kind, cfg *config, session responder) *bridge {
	return &bridge{
		kind:       kind,
		passphrase: cfg.passphraseCb,
		progress:   cfg.progressCb,
		session:    session,
	}
}

// handle returns claimed=true for records consumed here. A non-nil error
// aborts the operation and the engine must be killed.
func (b *bridge) handle(ev *status.Event) (bool, error) {
	switch ev.Keyword {
	case status.UserIDHint:
		b.uidHint = ev.Raw
	case status.NeedPassphrase, status.NeedPassphraseSym:
		b.info = ev.Raw
	case status.BadPassphrase:
		b.prevBad = true
	case status.GoodPassphrase:
		b.prevBad = false
	case status.MissingPassphrase:
		return true, newError(KindPassphraseCancelled, constants.ErrCanceled, "engine reported a missing passphrase")
	case status.Progress:
		if b.progress != nil {
			b.progress(status.Unescape(ev.Arg(0)), progressType(ev.Arg(1)), int(ev.IntArg(2)), int(ev.IntArg(3)))
		}
	case status.GetHidden:
		if ev.Arg(0) == "passphrase.enter" {
			return true, b.askPassphrase()
		}
		return true, b.prompt(ev)
	case status.GetLine, status.GetBool:
		return true, b.prompt(ev)
	default:
		if b.edit != nil {
			return false, b.callEdit(ev, io.Discard)
		}
		return false, nil
	}
	if b.edit != nil {
		return true, b.callEdit(ev, io.Discard)
	}
	return true, nil
}

func (b *bridge) askPassphrase() error {
	if b.passphrase == nil {
		return newError(KindPassphraseCancelled, constants.ErrCanceled, "no passphrase callback registered")
	}
	pass, err := b.passphrase(b.uidHint, b.info, b.prevBad)
	if errors.Is(err, ErrDeclined) {
		e := newError(KindPassphraseCancelled, constants.ErrCanceled, "passphrase request declined")
		e.Cause = err
		return e
	}
	if err != nil {
		return errors.Wrap(err, "gpgme: passphrase callback failed")
	}
	b.prevBad = false
	if strings.ContainsAny(pass, "\r\n") {
		return invalidValue("passphrase must not contain line breaks")
	}
	return b.session.Respond(pass)
}

// prompt answers GET_LINE, GET_BOOL and non-passphrase GET_HIDDEN records.
// They are only legal during edit operations.
func (b *bridge) prompt(ev *status.Event) error {
	if b.edit == nil {
		return protocolViolation(nil, "unexpected prompt %s during %s", ev, b.kind)
	}
	var answer bytes.Buffer
	if err := b.callEdit(ev, &answer); err != nil {
		return err
	}
	line, _, _ := strings.Cut(answer.String(), "\n")
	return b.session.Respond(strings.TrimRight(line, "\r"))
}

func (b *bridge) callEdit(ev *status.Event, w io.Writer) error {
	kw := ev.Keyword
	if kw == status.KeywordUnknown {
		kw = status.Keyword(ev.Name)
	}
	if err := b.edit(kw, ev.Raw, w); err != nil {
		return errors.Wrap(err, "gpgme: edit callback failed")
	}
	return nil
}

func progressType(s string) int {
	if s == "" {
		return 0
	}
	return int(s[0])
}
