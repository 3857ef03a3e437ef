// Package helper contains one-call functions over a gpgme Context for the
// common string and byte slice cases.
package helper

import (
	"context"

	"github.com/gpgme-go/gpgme"
	"github.com/pkg/errors"
)

// EncryptMessageArmored encrypts plaintext to the keys matching recipients
// and returns an armored PGP message.
func EncryptMessageArmored(ctx context.Context, c *gpgme.Context, recipients []string, plaintext string) (string, error) {
	keys, err := lookupKeys(ctx, c, recipients)
	if err != nil {
		return "", err
	}
	cipher := gpgme.NewData()
	err = withArmor(c, func() error {
		return c.Encrypt(ctx, keys, 0, gpgme.NewDataString(plaintext), cipher)
	})
	if err != nil {
		return "", errors.Wrap(err, "helper: unable to encrypt message")
	}
	return cipher.String(), nil
}

// EncryptSignMessageArmored encrypts plaintext to the keys matching
// recipients and signs it with the signers of c.
func EncryptSignMessageArmored(ctx context.Context, c *gpgme.Context, recipients []string, plaintext string) (string, error) {
	keys, err := lookupKeys(ctx, c, recipients)
	if err != nil {
		return "", err
	}
	cipher := gpgme.NewData()
	err = withArmor(c, func() error {
		_, err := c.EncryptSign(ctx, keys, 0, gpgme.NewDataString(plaintext), cipher)
		return err
	})
	if err != nil {
		return "", errors.Wrap(err, "helper: unable to encrypt and sign message")
	}
	return cipher.String(), nil
}

// DecryptMessage decrypts an armored or binary message.
func DecryptMessage(ctx context.Context, c *gpgme.Context, ciphertext []byte) ([]byte, error) {
	plain := gpgme.NewData()
	if err := c.Decrypt(ctx, gpgme.NewDataBytes(ciphertext), plain); err != nil {
		return nil, errors.Wrap(err, "helper: unable to decrypt message")
	}
	return plain.Bytes(), nil
}

// DecryptVerifyMessage decrypts a message and fails unless at least one
// embedded signature is good.
func DecryptVerifyMessage(ctx context.Context, c *gpgme.Context, ciphertext []byte) ([]byte, []*gpgme.Signature, error) {
	plain := gpgme.NewData()
	sigs, err := c.DecryptVerify(ctx, gpgme.NewDataBytes(ciphertext), plain)
	if err != nil {
		return nil, nil, errors.Wrap(err, "helper: unable to decrypt message")
	}
	if err := requireGoodSignature(sigs); err != nil {
		return nil, sigs, err
	}
	return plain.Bytes(), sigs, nil
}

// EncryptMessageWithPassword encrypts plaintext symmetrically with password.
func EncryptMessageWithPassword(ctx context.Context, c *gpgme.Context, password []byte, plaintext string) (string, error) {
	cipher := gpgme.NewData()
	err := withPassword(c, password, func() error {
		return withArmor(c, func() error {
			return c.Encrypt(ctx, nil, 0, gpgme.NewDataString(plaintext), cipher)
		})
	})
	if err != nil {
		return "", errors.Wrap(err, "helper: unable to encrypt message")
	}
	return cipher.String(), nil
}

// DecryptMessageWithPassword decrypts a symmetrically encrypted message.
func DecryptMessageWithPassword(ctx context.Context, c *gpgme.Context, password []byte, ciphertext []byte) ([]byte, error) {
	var plain []byte
	err := withPassword(c, password, func() (err error) {
		plain, err = DecryptMessage(ctx, c, ciphertext)
		return err
	})
	return plain, err
}

// ----- INTERNAL FUNCTIONS -----

func lookupKeys(ctx context.Context, c *gpgme.Context, patterns []string) ([]*gpgme.Key, error) {
	if len(patterns) == 0 {
		return nil, errors.New("helper: no recipients given")
	}
	keys := make([]*gpgme.Key, 0, len(patterns))
	for _, p := range patterns {
		key, err := c.GetKey(ctx, p, false)
		if err != nil {
			return nil, errors.Wrapf(err, "helper: unable to find key %q", p)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// withArmor runs fn with armored output and restores the previous setting.
func withArmor(c *gpgme.Context, fn func() error) error {
	if c.Armor() {
		return fn()
	}
	if err := c.SetArmor(true); err != nil {
		return err
	}
	defer func() { _ = c.SetArmor(false) }()
	return fn()
}

// withPassword answers passphrase requests with password while fn runs.
func withPassword(c *gpgme.Context, password []byte, fn func() error) error {
	prev := c.PassphraseCallback()
	err := c.SetPassphraseCallback(func(_, _ string, prevBad bool) (string, error) {
		if prevBad {
			return "", gpgme.ErrDeclined
		}
		return string(password), nil
	})
	if err != nil {
		return err
	}
	defer func() { _ = c.SetPassphraseCallback(prev) }()
	return fn()
}

// requireGoodSignature fails unless one of sigs verified.
func requireGoodSignature(sigs []*gpgme.Signature) error {
	if len(sigs) == 0 {
		return errors.New("helper: message is not signed")
	}
	for _, sig := range sigs {
		if sig.Status() == nil {
			return nil
		}
	}
	return errors.Wrap(sigs[0].Status(), "helper: signature verification failed")
}
