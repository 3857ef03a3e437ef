package constants

// Cipher suite names accepted by profile.WithCipher and the CLI config.
const (
	ThreeDES  = "3des"
	TripleDES = "tripledes" // Both "3des" and "tripledes" refer to 3DES.
	CAST5     = "cast5"
	AES128    = "aes128"
	AES192    = "aes192"
	AES256    = "aes256"
)

// OpenPGP public key algorithm identifiers (RFC 9580, section 9.1).
const (
	PubkeyAlgoRSA     = 1
	PubkeyAlgoDSA     = 17
	PubkeyAlgoECDH    = 18
	PubkeyAlgoECDSA   = 19
	PubkeyAlgoEdDSA   = 22
	PubkeyAlgoX25519  = 25
	PubkeyAlgoX448    = 26
	PubkeyAlgoEd25519 = 27
	PubkeyAlgoEd448   = 28
)

// OpenPGP hash algorithm identifiers (RFC 9580, section 9.5).
const (
	HashAlgoSHA1   = 2
	HashAlgoSHA256 = 8
	HashAlgoSHA384 = 9
	HashAlgoSHA512 = 10
	HashAlgoSHA224 = 11
)
