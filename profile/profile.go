// Package profile provides the algorithm presets of the native engine.
package profile

import (
	"crypto"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/ProtonMail/go-crypto/openpgp/s2k"
	"github.com/gpgme-go/gpgme/constants"
	"github.com/pkg/errors"
)

// Security levels accepted by KeyGenerationConfig.
const (
	StandardSecurity int8 = 0
	HighSecurity     int8 = 1
)

const weakMinRSABits = 1023

// Custom type represents a profile for setting algorithm
// parameters for generating keys, encrypting data, and
// signing data.
// Use one of the pre-defined profiles if possible.
// i.e., profile.Default(), profile.RFC4880().
type Custom struct {
	// Name identifies the profile in configuration files.
	Name string
	// SetKeyAlgorithm is a function that sets public key encryption
	// algorithm in the config bases on the int8 security level.
	SetKeyAlgorithm func(*packet.Config, int8)
	// AeadKeyEncryption defines the aead encryption algorithm for key encryption.
	AeadKeyEncryption *packet.AEADConfig
	// S2kKeyEncryption defines the s2k algorithm for key encryption.
	S2kKeyEncryption *s2k.Config
	// AeadEncryption defines the aead encryption algorithm for pgp encryption.
	AeadEncryption *packet.AEADConfig
	// S2kEncryption defines the s2k algorithm for pgp encryption.
	S2kEncryption *s2k.Config
	// CompressionConfiguration defines the compression configuration to be used if any.
	CompressionConfiguration *packet.CompressionConfig
	// Hash defines hash algorithm to be used.
	Hash crypto.Hash
	// CipherKeyEncryption defines the cipher to be used for key encryption.
	CipherKeyEncryption packet.CipherFunction
	// CipherEncryption defines the cipher to be used for pgp message encryption.
	CipherEncryption packet.CipherFunction
	// CompressionAlgorithm defines the compression algorithm to be used if any.
	CompressionAlgorithm packet.CompressionAlgo
	// V6 is a flag to indicate if v6 from the crypto-refresh should be used.
	V6 bool
	// AllowAllPublicKeyAlgorithms is a flag to disable all checks for deprecated public key algorithms.
	AllowAllPublicKeyAlgorithms bool
	// DisableIntendedRecipients is a flag to disable the intended recipients pgp feature from the crypto-refresh.
	DisableIntendedRecipients bool
	// InsecureAllowWeakRSA is a flag to disable checks for weak rsa keys.
	InsecureAllowWeakRSA bool
	// MaxDecompressedMessageSize sets the maximum decompressed messages size that can be read
	// before throwing an error.
	MaxDecompressedMessageSize int64
}

func (p *Custom) KeyGenerationConfig(securityLevel int8) *packet.Config {
	cfg := &packet.Config{
		DefaultHash:            p.Hash,
		DefaultCipher:          p.CipherEncryption,
		AEADConfig:             p.AeadEncryption,
		DefaultCompressionAlgo: p.CompressionAlgorithm,
		CompressionConfig:      p.CompressionConfiguration,
		V6Keys:                 p.V6,
	}
	if p.SetKeyAlgorithm != nil {
		p.SetKeyAlgorithm(cfg, securityLevel)
	}
	return cfg
}

func (p *Custom) EncryptionConfig() *packet.Config {
	config := &packet.Config{
		DefaultHash:                p.Hash,
		DefaultCipher:              p.CipherEncryption,
		DefaultCompressionAlgo:     p.CompressionAlgorithm,
		CompressionConfig:          p.CompressionConfiguration,
		AEADConfig:                 p.AeadEncryption,
		S2KConfig:                  p.S2kEncryption,
		MaxDecompressedMessageSize: p.maxDecompressedMessageSize(),
	}
	p.applyChecks(config)
	return config
}

func (p *Custom) KeyEncryptionConfig() *packet.Config {
	return &packet.Config{
		DefaultHash:   p.Hash,
		DefaultCipher: p.CipherKeyEncryption,
		AEADConfig:    p.AeadKeyEncryption,
		S2KConfig:     p.S2kKeyEncryption,
	}
}

func (p *Custom) SignConfig() *packet.Config {
	config := &packet.Config{
		DefaultHash:                p.Hash,
		MaxDecompressedMessageSize: p.maxDecompressedMessageSize(),
	}
	p.applyChecks(config)
	return config
}

func (p *Custom) applyChecks(config *packet.Config) {
	if p.DisableIntendedRecipients {
		intendedRecipients := false
		config.CheckIntendedRecipients = &intendedRecipients
	}
	if p.AllowAllPublicKeyAlgorithms {
		config.RejectPublicKeyAlgorithms = map[packet.PublicKeyAlgorithm]bool{}
	}
	if p.InsecureAllowWeakRSA {
		config.MinRSABits = weakMinRSABits
	}
}

func (p *Custom) maxDecompressedMessageSize() *int64 {
	if p.MaxDecompressedMessageSize == 0 {
		return nil
	}
	return &p.MaxDecompressedMessageSize
}

// WithCipher returns a copy of p encrypting messages with the named cipher.
func (p *Custom) WithCipher(name string) (*Custom, error) {
	cipher, err := CipherByName(name)
	if err != nil {
		return nil, err
	}
	c := *p
	c.CipherEncryption = cipher
	return &c, nil
}

// CipherByName resolves the cipher names used in configuration files.
func CipherByName(name string) (packet.CipherFunction, error) {
	switch strings.ToLower(name) {
	case constants.ThreeDES, constants.TripleDES:
		return packet.Cipher3DES, nil
	case constants.CAST5:
		return packet.CipherCAST5, nil
	case constants.AES128:
		return packet.CipherAES128, nil
	case constants.AES192:
		return packet.CipherAES192, nil
	case constants.AES256:
		return packet.CipherAES256, nil
	}
	return 0, errors.Errorf("profile: unknown cipher %q", name)
}
