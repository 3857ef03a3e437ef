// Package mime verifies and decrypts PGP/MIME (RFC 3156) messages through a
// gpgme Context.
package mime

import (
	"bytes"
	"context"
	"io"
	"net/mail"
	"net/textproto"

	gomime "github.com/ProtonMail/go-mime"
	"github.com/gpgme-go/gpgme"
	"github.com/gpgme-go/gpgme/constants"
	"github.com/gpgme-go/gpgme/internal"
	"github.com/pkg/errors"
)

// Status is the outcome of checking the signatures of a message. Larger
// values are worse.
type Status int

const (
	StatusOK Status = iota
	StatusNotSigned
	StatusNoVerifier
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotSigned:
		return "not signed"
	case StatusNoVerifier:
		return "no verifier"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Callbacks receives the pieces of a processed message.
type Callbacks interface {
	OnBody(body string, mimetype string)
	OnAttachment(headers string, data []byte)
	OnVerified(status Status, signatures []*gpgme.Signature)
	OnError(err error)
}

// Verify walks a cleartext MIME message, checking a top-level
// multipart/signed part with c.
func Verify(ctx context.Context, c *gpgme.Context, message []byte, callbacks Callbacks) {
	body, attachments, attachmentHeaders, sc, err := parseMIME(ctx, c, message)
	if err != nil {
		callbacks.OnError(err)
		return
	}
	if sc.err != nil {
		callbacks.OnError(sc.err)
	}
	callbacks.OnVerified(sc.status(), sc.signatures)
	deliver(body, attachments, attachmentHeaders, callbacks)
}

// Decrypt decrypts an encrypted MIME payload with c and walks the result.
// The message counts as verified when either the signatures embedded in the
// OpenPGP message or a multipart/signed part inside it check out.
func Decrypt(ctx context.Context, c *gpgme.Context, message []byte, callbacks Callbacks) {
	plain := gpgme.NewData()
	embedded, err := c.DecryptVerify(ctx, gpgme.NewDataBytes(message), plain)
	if err != nil {
		callbacks.OnError(errors.Wrap(err, "mime: unable to decrypt message"))
		return
	}

	body, attachments, attachmentHeaders, sc, err := parseMIME(ctx, c, plain.Bytes())
	if err != nil {
		callbacks.OnError(err)
		return
	}

	embeddedStatus := signatureStatus(embedded)
	mimeStatus := sc.status()
	switch {
	case embeddedStatus == StatusOK:
		callbacks.OnVerified(StatusOK, embedded)
	case mimeStatus == StatusOK:
		callbacks.OnVerified(StatusOK, sc.signatures)
	default:
		if sc.err != nil {
			callbacks.OnError(sc.err)
		}
		callbacks.OnVerified(prioritizeStatus(embeddedStatus, mimeStatus), append(embedded, sc.signatures...))
	}
	deliver(body, attachments, attachmentHeaders, callbacks)
}

func deliver(body *gomime.BodyCollector, attachments, attachmentHeaders []string, callbacks Callbacks) {
	bodyContent, bodyMimeType := body.GetBody()
	callbacks.OnBody(internal.SanitizeString(bodyContent), bodyMimeType)
	for i := range attachments {
		callbacks.OnAttachment(attachmentHeaders[i], []byte(attachments[i]))
	}
}

// ----- INTERNAL FUNCTIONS -----

func prioritizeStatus(statuses ...Status) (max Status) {
	for _, s := range statuses {
		if s > max {
			max = s
		}
	}
	return
}

// signatureStatus summarizes verdicts. One good signature is enough.
func signatureStatus(sigs []*gpgme.Signature) Status {
	if len(sigs) == 0 {
		return StatusNotSigned
	}
	worst := StatusOK
	for _, sig := range sigs {
		switch {
		case sig.Status() == nil:
			return StatusOK
		case gpgme.CodeOf(sig.Status()) == constants.ErrNoPubkey:
			worst = prioritizeStatus(worst, StatusNoVerifier)
		default:
			worst = StatusFailed
		}
	}
	return worst
}

func parseMIME(
	ctx context.Context,
	c *gpgme.Context,
	mimeBody []byte,
) (*gomime.BodyCollector, []string, []string, *signatureCollector, error) {
	mm, err := mail.ReadMessage(bytes.NewReader(mimeBody))
	if err != nil {
		return nil, nil, nil, nil, errors.Wrap(err, "mime: error in reading message")
	}

	h := textproto.MIMEHeader(mm.Header)
	mmBodyData, err := io.ReadAll(mm.Body)
	if err != nil {
		return nil, nil, nil, nil, errors.Wrap(err, "mime: error in reading message body data")
	}

	printAccepter := gomime.NewMIMEPrinter()
	bodyCollector := gomime.NewBodyCollector(printAccepter)
	attachmentsCollector := gomime.NewAttachmentsCollector(bodyCollector)
	mimeVisitor := gomime.NewMimeVisitor(attachmentsCollector)

	signatureCollector := newSignatureCollector(ctx, mimeVisitor, c)

	if err = gomime.VisitAll(bytes.NewReader(mmBodyData), h, signatureCollector); err != nil {
		return nil, nil, nil, nil, errors.Wrap(err, "mime: error in parsing message")
	}

	return bodyCollector,
		attachmentsCollector.GetAttachments(),
		attachmentsCollector.GetAttHeaders(),
		signatureCollector,
		nil
}
