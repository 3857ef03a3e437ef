package gpgme_test

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/gpgme-go/gpgme"
	"github.com/gpgme-go/gpgme/constants"
	"github.com/gpgme-go/gpgme/engine/native"
	"github.com/gpgme-go/gpgme/engine/status"
	"github.com/gpgme-go/gpgme/profile"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testText = "Hallo Leute\n"

func newNativeContext(t *testing.T, passphrase string) (*gpgme.Context, *native.Engine) {
	t.Helper()
	eng, err := native.New(native.Config{HomeDir: t.TempDir()})
	require.NoError(t, err)
	c, err := gpgme.New(
		gpgme.WithEngine(eng),
		gpgme.WithPassphraseCallback(func(hint, info string, prevBad bool) (string, error) {
			if prevBad {
				return "", gpgme.ErrDeclined
			}
			return passphrase, nil
		}),
	)
	require.NoError(t, err)
	return c, eng
}

func TestNativeSignVerify(t *testing.T) {
	ctx := context.Background()
	c, eng := newNativeContext(t, "abc")
	_, err := eng.GenerateKey(ctx, "Alpha Test", "alpha@example.net", []byte("abc"), profile.StandardSecurity)
	require.NoError(t, err)

	key, err := c.GetKey(ctx, "alpha@example.net", true)
	require.NoError(t, err)
	assert.True(t, key.Secret())
	assert.True(t, key.CanSign())
	assert.True(t, key.CanEncrypt())
	require.Len(t, key.UserIDs(), 1)
	assert.Equal(t, "alpha@example.net", key.UserIDs()[0].Email())
	require.NoError(t, c.SetSigners(key))
	require.NoError(t, c.SetArmor(true))
	require.NoError(t, c.AddSignatureNotation(gpgme.Notation{Name: "test@example.net", Value: "value with spaces", HumanReadable: true}))

	for _, mode := range []constants.SigMode{constants.SigModeNormal, constants.SigModeDetach, constants.SigModeClear} {
		t.Run(mode.String(), func(t *testing.T) {
			sig := gpgme.NewData()
			created, err := c.Sign(ctx, gpgme.NewDataString(testText), sig, mode)
			require.NoError(t, err)
			require.Len(t, created, 1)
			assert.Equal(t, mode, created[0].Type())
			assert.Equal(t, key.Fingerprint(), created[0].Fingerprint())
			require.NoError(t, sig.Rewind())

			var sigs []*gpgme.Signature
			plain := gpgme.NewData()
			if mode == constants.SigModeDetach {
				sigs, err = c.Verify(ctx, sig, gpgme.NewDataString(testText), nil)
			} else {
				sigs, err = c.Verify(ctx, sig, nil, plain)
				assert.Equal(t, testText, plain.String())
			}
			require.NoError(t, err)
			require.Len(t, sigs, 1)
			assert.NoError(t, sigs[0].Status())
			assert.Equal(t, key.Fingerprint(), sigs[0].Fingerprint())
			assert.Equal(t, constants.ValidityUnknown, sigs[0].Validity())
			assert.Zero(t, sigs[0].Summary())
			assert.NoError(t, sigs[0].ValidityReason())
			assert.Equal(t, []gpgme.Notation{{Name: "test@example.net", Value: "value with spaces", HumanReadable: true}}, sigs[0].Notations())
		})
	}
}

func TestNativeVerifyClearSignedSections(t *testing.T) {
	ctx := context.Background()
	c, eng := newNativeContext(t, "")
	var fprs []string
	var input []byte
	for _, email := range []string{"alpha@example.net", "bravo@example.net"} {
		_, err := eng.GenerateKey(ctx, "Test", email, nil, profile.StandardSecurity)
		require.NoError(t, err)
		key, err := c.GetKey(ctx, email, true)
		require.NoError(t, err)
		require.NoError(t, c.SetSigners(key))

		sig := gpgme.NewData()
		_, err = c.Sign(ctx, gpgme.NewDataString("Hello World\n"), sig, constants.SigModeClear)
		require.NoError(t, err)
		fprs = append(fprs, key.Fingerprint())
		input = append(input, sig.Bytes()...)
	}

	plain := gpgme.NewData()
	sigs, err := c.Verify(ctx, gpgme.NewDataBytes(input), nil, plain)
	require.NoError(t, err)
	assert.Equal(t, "Hello World\nHello World\n", plain.String())
	require.Len(t, sigs, 2)
	for i, sig := range sigs {
		assert.NoError(t, sig.Status())
		assert.Equal(t, fprs[i], sig.Fingerprint())
		assert.Zero(t, sig.Summary())
	}
}

func TestNativeSignMultipleSigners(t *testing.T) {
	ctx := context.Background()
	c, eng := newNativeContext(t, "")
	var signers []*gpgme.Key
	for _, email := range []string{"bravo@example.net", "alpha@example.net"} {
		_, err := eng.GenerateKey(ctx, "Test", email, nil, profile.StandardSecurity)
		require.NoError(t, err)
		key, err := c.GetKey(ctx, email, true)
		require.NoError(t, err)
		signers = append(signers, key)
	}
	require.NoError(t, c.SetSigners(signers...))

	sig := gpgme.NewData()
	created, err := c.Sign(ctx, gpgme.NewDataString(testText), sig, constants.SigModeNormal)
	require.NoError(t, err)
	require.Len(t, created, 2)

	require.NoError(t, sig.Rewind())
	plain := gpgme.NewData()
	sigs, err := c.Verify(ctx, sig, nil, plain)
	require.NoError(t, err)
	assert.Equal(t, testText, plain.String())
	require.Len(t, sigs, 2)
	for i, key := range signers {
		assert.Equal(t, key.Fingerprint(), created[i].Fingerprint())
		assert.Equal(t, key.Fingerprint(), sigs[i].Fingerprint())
		assert.NoError(t, sigs[i].Status())
	}
}

func TestNativeVerifyHeaderOnlySignature(t *testing.T) {
	c, _ := newNativeContext(t, "")
	input := "-----BEGIN PGP SIGNED MESSAGE-----\nHash: SHA1\n\nHello World\n" +
		"-----BEGIN PGP SIGNATURE-----\n-----END PGP SIGNATURE-----\n"
	plain := gpgme.NewData()
	sigs, err := c.Verify(context.Background(), gpgme.NewDataString(input), nil, plain)
	require.NoError(t, err)
	assert.Empty(t, sigs)
	assert.Empty(t, plain.String())
}

func TestNativeVerifyBadData(t *testing.T) {
	c, _ := newNativeContext(t, "")
	input := "-----BEGIN PGP SIGNED MESSAGE-----\nHash: SHA1\n\nHello World\n" +
		"-----BEGIN PGP SIGNATURE-----\nVersion: GnuPG v1.4.1 (GNU/Linux)\n\n" +
		"iNhhNHx+gzGBUqtIK5LpENTCGgCfV3aO\n-----END PGP SIGNATURE-----\n"
	_, err := c.Verify(context.Background(), gpgme.NewDataString(input), nil, gpgme.NewData())
	assert.True(t, errors.Is(err, gpgme.ErrNoData))
}

func TestNativeEncryptDecrypt(t *testing.T) {
	ctx := context.Background()
	c, eng := newNativeContext(t, "abc")
	_, err := eng.GenerateKey(ctx, "Alpha Test", "alpha@example.net", []byte("abc"), profile.StandardSecurity)
	require.NoError(t, err)
	key, err := c.GetKey(ctx, "alpha@example.net", false)
	require.NoError(t, err)
	require.NoError(t, c.SetArmor(true))

	cipher := gpgme.NewData()
	require.NoError(t, c.Encrypt(ctx, []*gpgme.Key{key}, 0, gpgme.NewDataString(testText), cipher))
	assert.True(t, strings.HasPrefix(cipher.String(), "-----BEGIN PGP MESSAGE-----"))

	require.NoError(t, cipher.Rewind())
	plain := gpgme.NewData()
	require.NoError(t, c.Decrypt(ctx, cipher, plain))
	assert.Equal(t, testText, plain.String())

	// A wrong passphrase is declined by the callback on the retry.
	wrong, err := gpgme.New(gpgme.WithEngine(eng), gpgme.WithPassphraseCallback(func(_, _ string, prevBad bool) (string, error) {
		if prevBad {
			return "", gpgme.ErrDeclined
		}
		return "wrong", nil
	}))
	require.NoError(t, err)
	require.NoError(t, cipher.Rewind())
	out := gpgme.NewData()
	err = wrong.Decrypt(ctx, cipher, out)
	assert.True(t, errors.Is(err, gpgme.ErrPassphraseCancelled))
	assert.Empty(t, out.String())

	// The engine is usable after the aborted session.
	require.NoError(t, cipher.Rewind())
	plain = gpgme.NewData()
	require.NoError(t, c.Decrypt(ctx, cipher, plain))
	assert.Equal(t, testText, plain.String())
}

func TestNativeEncryptSignDecryptVerify(t *testing.T) {
	ctx := context.Background()
	c, eng := newNativeContext(t, "")
	_, err := eng.GenerateKey(ctx, "Alpha Test", "alpha@example.net", nil, profile.StandardSecurity)
	require.NoError(t, err)
	_, err = eng.GenerateKey(ctx, "Bravo Test", "bravo@example.net", nil, profile.StandardSecurity)
	require.NoError(t, err)
	alpha, err := c.GetKey(ctx, "alpha@example.net", true)
	require.NoError(t, err)
	bravo, err := c.GetKey(ctx, "bravo@example.net", false)
	require.NoError(t, err)
	require.NoError(t, c.SetSigners(alpha))

	cipher := gpgme.NewData()
	created, err := c.EncryptSign(ctx, []*gpgme.Key{bravo}, 0, gpgme.NewDataString(testText), cipher)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, alpha.Fingerprint(), created[0].Fingerprint())

	require.NoError(t, cipher.Rewind())
	plain := gpgme.NewData()
	sigs, err := c.DecryptVerify(ctx, cipher, plain)
	require.NoError(t, err)
	assert.Equal(t, testText, plain.String())
	require.Len(t, sigs, 1)
	assert.Equal(t, alpha.Fingerprint(), sigs[0].Fingerprint())
	assert.NoError(t, sigs[0].Status())
}

func TestNativeKeyManagement(t *testing.T) {
	ctx := context.Background()
	src, srcEng := newNativeContext(t, "")
	_, err := srcEng.GenerateKey(ctx, "Alpha Test", "alpha@example.net", nil, profile.StandardSecurity)
	require.NoError(t, err)
	key, err := src.GetKey(ctx, "alpha@example.net", false)
	require.NoError(t, err)

	require.NoError(t, src.SetArmor(true))
	exported := gpgme.NewData()
	require.NoError(t, src.ExportKeys(ctx, []*gpgme.Key{key}, exported))
	assert.Contains(t, exported.String(), "-----BEGIN PGP PUBLIC KEY BLOCK-----")

	dst, _ := newNativeContext(t, "")
	require.NoError(t, exported.Rewind())
	res, err := dst.Import(ctx, exported)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Considered)
	assert.Equal(t, 1, res.Imported)
	require.Len(t, res.Imports, 1)
	assert.Equal(t, key.Fingerprint(), res.Imports[0].Fingerprint)
	assert.Equal(t, constants.ImportNew, res.Imports[0].Status)

	imported, err := dst.GetKey(ctx, key.Fingerprint(), false)
	require.NoError(t, err)
	assert.False(t, imported.Secret())
	_, err = dst.GetKey(ctx, key.Fingerprint(), true)
	assert.True(t, errors.Is(err, gpgme.ErrKeyNotFound))

	require.NoError(t, dst.Delete(ctx, imported, false))
	_, err = dst.GetKey(ctx, key.Fingerprint(), false)
	assert.True(t, errors.Is(err, gpgme.ErrKeyNotFound))
	err = dst.Delete(ctx, imported, false)
	assert.Equal(t, constants.ErrNoPubkey, gpgme.CodeOf(err))

	// Secret keys need allowSecret.
	err = src.Delete(ctx, key, false)
	assert.Equal(t, constants.ErrConflict, gpgme.CodeOf(err))
}

func TestNativeEditOwnerTrust(t *testing.T) {
	ctx := context.Background()
	c, eng := newNativeContext(t, "")
	_, err := eng.GenerateKey(ctx, "Alpha Test", "alpha@example.net", nil, profile.StandardSecurity)
	require.NoError(t, err)
	key, err := c.GetKey(ctx, "alpha@example.net", false)
	require.NoError(t, err)
	assert.Equal(t, constants.ValidityUnknown, key.OwnerTrust())

	commands := []string{"trust", "quit"}
	out := gpgme.NewData()
	err = c.Edit(ctx, key, func(kw status.Keyword, args string, w io.Writer) error {
		if !kw.IsPrompt() {
			return nil
		}
		switch args {
		case "keyedit.prompt":
			cmd := commands[0]
			commands = commands[1:]
			_, err := fmt.Fprintln(w, cmd)
			return err
		case "edit_ownertrust.value":
			_, err := fmt.Fprintln(w, "5")
			return err
		case "edit_ownertrust.set_ultimate.okay", "keyedit.save.okay":
			_, err := fmt.Fprintln(w, "Y")
			return err
		}
		return errors.Errorf("unexpected prompt %s", args)
	}, out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "pub:")

	key, err = c.GetKey(ctx, key.Fingerprint(), false)
	require.NoError(t, err)
	assert.Equal(t, constants.ValidityUltimate, key.OwnerTrust())

	require.NoError(t, c.SetSigners(key))
	sig := gpgme.NewData()
	_, err = c.Sign(ctx, gpgme.NewDataString(testText), sig, constants.SigModeDetach)
	require.NoError(t, err)
	require.NoError(t, sig.Rewind())
	sigs, err := c.Verify(ctx, sig, gpgme.NewDataString(testText), nil)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, constants.SigSumValid|constants.SigSumGreen, sigs[0].Summary())
}

func TestNativeCardEditUnavailable(t *testing.T) {
	c, _ := newNativeContext(t, "")
	err := c.CardEdit(context.Background(), nil, func(status.Keyword, string, io.Writer) error { return nil }, nil)
	assert.True(t, errors.Is(err, gpgme.ErrEngineUnavailable))
}
