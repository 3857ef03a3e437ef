package constants

// Protocol selects the cryptographic protocol a context talks to its engine.
type Protocol int

const (
	ProtocolOpenPGP Protocol = 0
	ProtocolCMS     Protocol = 1
)

func (p Protocol) String() string {
	switch p {
	case ProtocolOpenPGP:
		return "OpenPGP"
	case ProtocolCMS:
		return "CMS"
	}
	return "unknown"
}

// Valid reports whether p is a supported protocol.
func (p Protocol) Valid() bool {
	return p == ProtocolOpenPGP || p == ProtocolCMS
}

// KeyListMode is a bit-set controlling what a key listing returns.
type KeyListMode int

const (
	KeyListModeLocal        KeyListMode = 1
	KeyListModeExtern       KeyListMode = 2
	KeyListModeSigs         KeyListMode = 4
	KeyListModeSigNotations KeyListMode = 8
	KeyListModeWithSecret   KeyListMode = 16
	KeyListModeValidate     KeyListMode = 256
)

const knownKeyListModes = KeyListModeLocal | KeyListModeExtern | KeyListModeSigs |
	KeyListModeSigNotations | KeyListModeWithSecret | KeyListModeValidate

// Valid reports whether m is non-empty and only uses known bits.
func (m KeyListMode) Valid() bool {
	return m != 0 && m&^knownKeyListModes == 0
}

// Has reports whether all bits of flag are set.
func (m KeyListMode) Has(flag KeyListMode) bool {
	return m&flag == flag
}

// EncryptFlag modifies an encrypt operation.
type EncryptFlag int

const (
	EncryptAlwaysTrust EncryptFlag = 1
	EncryptNoEncryptTo EncryptFlag = 2
	EncryptPrepare     EncryptFlag = 4
	EncryptExpectSign  EncryptFlag = 8
)

// ImportStatus flags of an IMPORT_OK line.
type ImportStatus int

const (
	ImportNew    ImportStatus = 1
	ImportUID    ImportStatus = 2
	ImportSig    ImportStatus = 4
	ImportSubkey ImportStatus = 8
	ImportSecret ImportStatus = 16
)

// Owner trust values as used by the ownertrust edit command.
const (
	TrustUnknown  = 1
	TrustNever    = 2
	TrustMarginal = 3
	TrustFull     = 4
	TrustUltimate = 5
)
