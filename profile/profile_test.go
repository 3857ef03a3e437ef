package profile

import (
	"crypto"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByName(t *testing.T) {
	for _, name := range Names() {
		p, err := ByName(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, p.Name)
	}

	p, err := ByName("")
	require.NoError(t, err)
	assert.Equal(t, "default", p.Name)

	_, err = ByName("rfc1991")
	assert.Error(t, err)
}

func TestKeyGenerationConfig(t *testing.T) {
	cfg := RFC4880().KeyGenerationConfig(HighSecurity)
	assert.Equal(t, packet.PubKeyAlgoRSA, cfg.Algorithm)
	assert.Equal(t, 4096, cfg.RSABits)

	cfg = Default().KeyGenerationConfig(StandardSecurity)
	assert.Equal(t, packet.PubKeyAlgoEdDSA, cfg.Algorithm)
	assert.Equal(t, packet.Curve25519, cfg.Curve)

	assert.True(t, RFC9580().KeyGenerationConfig(StandardSecurity).V6Keys)
}

func TestSignConfig(t *testing.T) {
	cfg := RFC9580().SignConfig()
	assert.Equal(t, crypto.SHA512, cfg.DefaultHash)
	assert.Nil(t, cfg.CheckIntendedRecipients)

	cfg = Default().SignConfig()
	require.NotNil(t, cfg.CheckIntendedRecipients)
	assert.False(t, *cfg.CheckIntendedRecipients)
}

func TestWithCipher(t *testing.T) {
	p, err := Default().WithCipher("AES128")
	require.NoError(t, err)
	assert.Equal(t, packet.CipherAES128, p.EncryptionConfig().DefaultCipher)
	assert.Equal(t, packet.CipherAES256, Default().CipherEncryption)

	_, err = Default().WithCipher("rot13")
	assert.Error(t, err)
}
