package helper

import (
	"bytes"
	"context"

	"github.com/gpgme-go/gpgme"
	"github.com/gpgme-go/gpgme/armor"
	"github.com/gpgme-go/gpgme/constants"
	"github.com/gpgme-go/gpgme/internal"
	"github.com/pkg/errors"
)

// SignCleartextMessage signs text with the signers of c after trimming
// trailing whitespace from every line, and returns the clearsigned message.
func SignCleartextMessage(ctx context.Context, c *gpgme.Context, text string) (string, error) {
	sig := gpgme.NewData()
	_, err := c.Sign(ctx, gpgme.NewDataString(internal.TrimEachLine(text)), sig, constants.SigModeClear)
	if err != nil {
		return "", errors.Wrap(err, "helper: unable to sign message")
	}
	return sig.String(), nil
}

// VerifyCleartextMessage verifies a clearsigned message and returns its
// text with trailing whitespace stripped from every line, or an error
// unless at least one signature is good.
func VerifyCleartextMessage(ctx context.Context, c *gpgme.Context, armored string) (string, error) {
	if !armor.IsClearSigned([]byte(armored)) {
		return "", errors.New("helper: not a clearsigned message")
	}
	var text bytes.Buffer
	plain := internal.NewTrimWriteCloser(nopCloser{&text})
	sigs, err := c.Verify(ctx, gpgme.NewDataString(armored), nil, gpgme.NewDataWriter(plain))
	if err != nil {
		return "", errors.Wrap(err, "helper: unable to verify message")
	}
	if err := plain.Close(); err != nil {
		return "", err
	}
	if err := requireGoodSignature(sigs); err != nil {
		return "", err
	}
	return text.String(), nil
}

type nopCloser struct {
	*bytes.Buffer
}

func (nopCloser) Close() error { return nil }
