package mime

import (
	"context"
	"io"
	"mime"
	"net/textproto"

	gomime "github.com/ProtonMail/go-mime"
	"github.com/gpgme-go/gpgme"
	"github.com/gpgme-go/gpgme/internal"
	"github.com/pkg/errors"
)

// signatureCollector checks a multipart/signed part and hands the signed
// content on to target.
type signatureCollector struct {
	ctx        context.Context
	c          *gpgme.Context
	target     gomime.VisitAcceptor
	signed     bool
	signature  string
	signatures []*gpgme.Signature
	err        error
}

func newSignatureCollector(
	ctx context.Context, targetAcceptor gomime.VisitAcceptor, c *gpgme.Context,
) *signatureCollector {
	return &signatureCollector{
		ctx:    ctx,
		c:      c,
		target: targetAcceptor,
	}
}

// Accept collects the signature.
func (sc *signatureCollector) Accept(
	part io.Reader, header textproto.MIMEHeader,
	hasPlainSibling, isFirst, isLast bool,
) (err error) {
	parentMediaType, params, _ := mime.ParseMediaType(header.Get("Content-Type"))

	if parentMediaType != "multipart/signed" {
		return sc.target.Accept(part, header, hasPlainSibling, isFirst, isLast)
	}

	newPart, rawBody := gomime.GetRawMimePart(part, "--"+params["boundary"])
	multiparts, multipartHeaders, err := gomime.GetMultipartParts(newPart, params)
	if err != nil {
		return err
	}

	hasPlainChild := false
	for _, header := range multipartHeaders {
		mediaType, _, _ := mime.ParseMediaType(header.Get("Content-Type"))
		hasPlainChild = (mediaType == "text/plain")
	}
	if len(multiparts) != 2 {
		// Invalid multipart/signed format just pass along
		for i, p := range multiparts {
			if err = sc.target.Accept(p, multipartHeaders[i], hasPlainChild, true, true); err != nil {
				return err
			}
		}
		return nil
	}

	err = sc.target.Accept(multiparts[0], multipartHeaders[0], hasPlainChild, true, true)
	if err != nil {
		return errors.Wrap(err, "mime: error in parsing body")
	}

	decodedPart := gomime.DecodeContentEncoding(
		multiparts[1],
		multipartHeaders[1].Get("Content-Transfer-Encoding"))
	if decodedPart == nil {
		return errors.Errorf("mime: unsupported signature encoding %q", multipartHeaders[1].Get("Content-Transfer-Encoding"))
	}
	buffer, err := io.ReadAll(decodedPart)
	if err != nil {
		return errors.Wrap(err, "mime: error in reading decoded data")
	}
	sc.signed = true
	sc.signature = string(buffer)

	str, err := io.ReadAll(rawBody)
	if err != nil {
		return errors.Wrap(err, "mime: error in reading raw message body")
	}
	canonicalizedBody := internal.CanonicalizeBytes(internal.TrimEachLineBytes(str))
	sc.signatures, sc.err = sc.c.Verify(sc.ctx, gpgme.NewDataBytes(buffer), gpgme.NewDataBytes(canonicalizedBody), nil)
	if sc.err != nil {
		sc.err = errors.Wrap(sc.err, "mime: signature verification failed")
	}
	return nil
}

// status reports the outcome of the collected signature check.
func (sc *signatureCollector) status() Status {
	switch {
	case !sc.signed:
		return StatusNotSigned
	case sc.err != nil:
		return StatusFailed
	}
	return signatureStatus(sc.signatures)
}

// GetSignature returns the armored signature collected by Accept.
func (sc *signatureCollector) GetSignature() string {
	return sc.signature
}
