package helper

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/gpgme-go/gpgme"
	"github.com/gpgme-go/gpgme/constants"
	"github.com/gpgme-go/gpgme/engine/status"
	"github.com/pkg/errors"
)

// ImportKeys imports armored or binary key material and returns the
// fingerprints the engine reported.
func ImportKeys(ctx context.Context, c *gpgme.Context, keys []byte) ([]string, error) {
	res, err := c.Import(ctx, gpgme.NewDataBytes(keys))
	if err != nil {
		return nil, errors.Wrap(err, "helper: unable to import keys")
	}
	fprs := make([]string, 0, len(res.Imports))
	for _, imp := range res.Imports {
		if imp.Result == nil {
			fprs = append(fprs, imp.Fingerprint)
		}
	}
	return fprs, nil
}

// ExportPublicKeyArmored returns the armored public key matching pattern.
func ExportPublicKeyArmored(ctx context.Context, c *gpgme.Context, pattern string) (string, error) {
	key, err := c.GetKey(ctx, pattern, false)
	if err != nil {
		return "", errors.Wrapf(err, "helper: unable to find key %q", pattern)
	}
	out := gpgme.NewData()
	err = withArmor(c, func() error {
		return c.ExportKeys(ctx, []*gpgme.Key{key}, out)
	})
	if err != nil {
		return "", errors.Wrap(err, "helper: unable to export key")
	}
	return out.String(), nil
}

// GetFingerprint returns the fingerprint of the key matching pattern.
func GetFingerprint(ctx context.Context, c *gpgme.Context, pattern string) (string, error) {
	key, err := c.GetKey(ctx, pattern, false)
	if err != nil {
		return "", err
	}
	return key.Fingerprint(), nil
}

// SetOwnerTrust drives the key editor to set the owner trust of the key
// matching pattern. trust is one of the constants.Trust values.
func SetOwnerTrust(ctx context.Context, c *gpgme.Context, pattern string, trust int) error {
	if trust < constants.TrustUnknown || trust > constants.TrustUltimate {
		return errors.Errorf("helper: invalid owner trust %d", trust)
	}
	key, err := c.GetKey(ctx, pattern, false)
	if err != nil {
		return errors.Wrapf(err, "helper: unable to find key %q", pattern)
	}

	commands := []string{"trust", "quit"}
	err = c.Edit(ctx, key, func(kw status.Keyword, args string, w io.Writer) error {
		if !kw.IsPrompt() {
			return nil
		}
		var answer string
		switch args {
		case "keyedit.prompt":
			if len(commands) == 0 {
				return errors.New("helper: key editor did not finish")
			}
			answer, commands = commands[0], commands[1:]
		case "edit_ownertrust.value":
			answer = strconv.Itoa(trust)
		case "edit_ownertrust.set_ultimate.okay", "keyedit.save.okay":
			answer = "Y"
		default:
			return errors.Errorf("helper: unexpected prompt %q", args)
		}
		_, err := fmt.Fprintln(w, answer)
		return err
	}, nil)
	return errors.Wrap(err, "helper: unable to set owner trust")
}
