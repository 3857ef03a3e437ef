// Package constants provides the enumerations shared by the context, the
// engines and the result builders.
package constants

// Constants for armored data.
const (
	ArmorHeaderVersion = "gpgme-go " + Version
	PGPMessageHeader   = "PGP MESSAGE"
	PGPSignatureHeader = "PGP SIGNATURE"
	PGPSignedHeader    = "PGP SIGNED MESSAGE"
	PublicKeyHeader    = "PGP PUBLIC KEY BLOCK"
	PrivateKeyHeader   = "PGP PRIVATE KEY BLOCK"
)

// Version of the module, reported in armor headers and by the CLI.
const Version = "0.3.0"
