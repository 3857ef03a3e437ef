package gpgme

import (
	"context"
	"strings"
	"testing"

	"github.com/gpgme-go/gpgme/constants"
	"github.com/gpgme-go/gpgme/engine"
	"github.com/gpgme-go/gpgme/engine/enginetest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const alphaListing = `tru::1:1700000000:0:3:1:5
pub:f:1024:17:2D727CC768697734:1041506868:::u:::scESC:::::::23::0:
fpr:::::::::A0FF4590BB6122EDEF6E3C542D727CC768697734:
uid:f::::1041506868::B0B47FBAF9D18EEC0AB6EC1FFEF1C8451B7A4F4D::Alfa Test (demo key) <alfa@example.net>::::::::::0:
sig:::17:2D727CC768697734:1041506868::::Alfa Test (demo key) <alfa@example.net>:13x::A0FF4590BB6122EDEF6E3C542D727CC768697734:::8:
uid:r::::1041506868::8BDD1C5B45F7E1D0B1B8DDBBBC8DEE3D9E1C6A4C::Alpha Test\x3a revoked <alpha@example.net>::::::::::0:
rev:::17:2D727CC768697734:1041506900::::Alfa Test (demo key) <alfa@example.net>:30x::A0FF4590BB6122EDEF6E3C542D727CC768697734:::8:
sub:e:1024:16:6D79B1E6A7D6B3C0:1041506868:1356000000:::::e::::::23:
fpr:::::::::3B2DF1F1B28DC3F2E60D2D3D6D79B1E6A7D6B3C0:
pub:-:2048:1:6BC4778054ACD246:1700000000:::-:::scESCD::::::::0:
fpr:::::::::23FD347A419429BACCD5E72D6BC4778054ACD246:
uid:-::::1700000000::0000::Bravo <bravo@example.net>::::::::::0:
`

func TestParseKeyListing(t *testing.T) {
	keys, err := parseKeyListing(strings.NewReader(alphaListing), constants.ProtocolOpenPGP, constants.KeyListModeLocal|constants.KeyListModeSigs)
	require.NoError(t, err)
	require.Len(t, keys, 2)

	alpha := keys[0]
	assert.Equal(t, testFpr, alpha.Fingerprint())
	assert.Equal(t, "2D727CC768697734", alpha.KeyID())
	assert.Equal(t, constants.ValidityUltimate, alpha.OwnerTrust())
	assert.True(t, alpha.CanSign())
	assert.True(t, alpha.CanEncrypt())
	assert.True(t, alpha.CanCertify())
	assert.False(t, alpha.CanAuthenticate())
	assert.False(t, alpha.Secret())
	assert.False(t, alpha.Disabled())
	assert.Equal(t, constants.KeyListModeLocal|constants.KeyListModeSigs, alpha.KeyListMode())

	subs := alpha.SubKeys()
	require.Len(t, subs, 2)
	assert.Equal(t, 17, subs[0].PubkeyAlgo())
	assert.Equal(t, 1024, subs[0].Length())
	assert.Equal(t, int64(1041506868), subs[0].Created().Unix())
	assert.True(t, subs[0].Expires().IsZero())
	assert.True(t, subs[0].CanSign())
	assert.False(t, subs[0].CanEncrypt())
	assert.Equal(t, "3B2DF1F1B28DC3F2E60D2D3D6D79B1E6A7D6B3C0", subs[1].Fingerprint())
	assert.True(t, subs[1].Expired())
	assert.True(t, subs[1].CanEncrypt())
	assert.Equal(t, int64(1356000000), subs[1].Expires().Unix())

	uids := alpha.UserIDs()
	require.Len(t, uids, 2)
	assert.Equal(t, "Alfa Test", uids[0].Name())
	assert.Equal(t, "demo key", uids[0].Comment())
	assert.Equal(t, "alfa@example.net", uids[0].Email())
	assert.Equal(t, constants.ValidityFull, uids[0].Validity())
	require.Len(t, uids[0].Signatures(), 1)
	sig := uids[0].Signatures()[0]
	assert.Equal(t, "2D727CC768697734", sig.KeyID())
	assert.Equal(t, 0x13, sig.SigClass())
	assert.False(t, sig.Revoked())

	assert.True(t, uids[1].Revoked())
	assert.Equal(t, "Alpha Test: revoked <alpha@example.net>", uids[1].UID())
	assert.Equal(t, "alpha@example.net", uids[1].Email())
	require.Len(t, uids[1].Signatures(), 1)
	assert.True(t, uids[1].Signatures()[0].Revoked())
	assert.Equal(t, 0x30, uids[1].Signatures()[0].SigClass())

	bravo := keys[1]
	assert.Equal(t, testOtherFpr, bravo.Fingerprint())
	assert.True(t, bravo.Disabled())
	assert.Equal(t, "Bravo", bravo.UserIDs()[0].Name())
}

func TestParseSecretKeyListing(t *testing.T) {
	listing := `sec:u:255:22:2D727CC768697734:1700000000:::u:::scESC:::+:::23::0:
fpr:::::::::A0FF4590BB6122EDEF6E3C542D727CC768697734:
uid:u::::1700000000::0000::Alpha <alpha@example.net>::::::::::0:
ssb:u:255:18:6D79B1E6A7D6B3C0:1700000000::::::e:::D2760001240102000005000012340000:::23:
fpr:::::::::3B2DF1F1B28DC3F2E60D2D3D6D79B1E6A7D6B3C0:
`
	keys, err := parseKeyListing(strings.NewReader(listing), constants.ProtocolOpenPGP, constants.KeyListModeLocal)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.True(t, keys[0].Secret())
	subs := keys[0].SubKeys()
	assert.True(t, subs[0].Secret())
	assert.Empty(t, subs[0].CardNumber())
	assert.True(t, subs[1].Secret())
	assert.Equal(t, "D2760001240102000005000012340000", subs[1].CardNumber())
}

func TestParseKeyListingMalformed(t *testing.T) {
	for _, listing := range []string{
		"sub:u:255:18:6D79B1E6A7D6B3C0:1700000000::::::e:\n",
		"fpr:::::::::A0FF4590BB6122EDEF6E3C542D727CC768697734:\n",
		"uid:u::::1700000000::0000::Alpha::::::::::0:\n",
	} {
		_, err := parseKeyListing(strings.NewReader(listing), constants.ProtocolOpenPGP, constants.KeyListModeLocal)
		assert.Error(t, err, listing)
	}
}

func TestSplitUserID(t *testing.T) {
	for _, tc := range []struct{ uid, name, comment, email string }{
		{"Alpha Test (demo key) <alpha@example.net>", "Alpha Test", "demo key", "alpha@example.net"},
		{"Alpha Test <alpha@example.net>", "Alpha Test", "", "alpha@example.net"},
		{"<alpha@example.net>", "", "", "alpha@example.net"},
		{"Alpha Test", "Alpha Test", "", ""},
		{"Alpha (x) Test", "Alpha (x) Test", "", ""},
	} {
		name, comment, email := splitUserID(tc.uid)
		assert.Equal(t, tc.name, name, tc.uid)
		assert.Equal(t, tc.comment, comment, tc.uid)
		assert.Equal(t, tc.email, email, tc.uid)
	}
}

func TestParseTimestamp(t *testing.T) {
	assert.Equal(t, int64(1700000000), parseTimestamp("1700000000"))
	assert.Equal(t, int64(1700000000), parseTimestamp("20231114T221320"))
	assert.Zero(t, parseTimestamp(""))
	assert.Zero(t, parseTimestamp("soon"))
}

func TestGetKey(t *testing.T) {
	one := strings.Join(strings.Split(alphaListing, "\n")[:9], "\n")
	c, e := newTestContext(t,
		&enginetest.Script{Output: []byte(one)},
		&enginetest.Script{},
		&enginetest.Script{Output: []byte(alphaListing)},
	)

	key, err := c.GetKey(context.Background(), testFpr, true)
	require.NoError(t, err)
	assert.Equal(t, testFpr, key.Fingerprint())
	op := e.Last().Op
	assert.Equal(t, engine.KindKeyList, op.Kind)
	assert.True(t, op.Secret)
	assert.Equal(t, []string{testFpr}, op.Patterns)

	_, err = c.GetKey(context.Background(), "nobody", false)
	assert.True(t, errors.Is(err, ErrKeyNotFound))
	assert.Equal(t, constants.ErrEOF, CodeOf(err))

	_, err = c.GetKey(context.Background(), "example.net", false)
	assert.True(t, errors.Is(err, ErrAmbiguousKey))
	assert.True(t, errors.Is(err, ErrKeyNotFound))

	_, err = c.GetKey(context.Background(), "", false)
	assert.True(t, errors.Is(err, ErrInvalidValue))
}

func TestKeyListIgnoresKeyserverErrors(t *testing.T) {
	c, e := newTestContext(t, &enginetest.Script{
		Lines:  enginetest.Lines("ERROR keylist.getkey 33554501"),
		Output: []byte(alphaListing),
	})
	require.NoError(t, c.SetKeyListMode(constants.KeyListModeLocal|constants.KeyListModeExtern))
	keys, err := c.KeyList(context.Background(), []string{"alfa", "bravo"}, false)
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.Equal(t, []string{"alfa", "bravo"}, e.Last().Op.Patterns)
	assert.Equal(t, constants.KeyListModeLocal|constants.KeyListModeExtern, keys[0].KeyListMode())
}
