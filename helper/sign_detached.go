package helper

import (
	"context"

	"github.com/gpgme-go/gpgme"
	"github.com/gpgme-go/gpgme/constants"
	"github.com/pkg/errors"
)

// SignDetachedArmored returns an armored detached signature over data made
// with the signers of c.
func SignDetachedArmored(ctx context.Context, c *gpgme.Context, data []byte) (string, error) {
	sig := gpgme.NewData()
	err := withArmor(c, func() error {
		_, err := c.Sign(ctx, gpgme.NewDataBytes(data), sig, constants.SigModeDetach)
		return err
	})
	if err != nil {
		return "", errors.Wrap(err, "helper: unable to sign data")
	}
	return sig.String(), nil
}

// VerifyDetached checks a detached signature, armored or binary, over data.
func VerifyDetached(ctx context.Context, c *gpgme.Context, data, signature []byte) ([]*gpgme.Signature, error) {
	sigs, err := c.Verify(ctx, gpgme.NewDataBytes(signature), gpgme.NewDataBytes(data), nil)
	if err != nil {
		return nil, errors.Wrap(err, "helper: unable to verify signature")
	}
	return sigs, requireGoodSignature(sigs)
}
