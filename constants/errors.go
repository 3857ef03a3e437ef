package constants

import "strconv"

// ErrSource identifies the component that produced an error record.
type ErrSource int

const (
	SourceUnknown  ErrSource = 0
	SourceGCrypt   ErrSource = 1
	SourceGPG      ErrSource = 2
	SourceGPGSM    ErrSource = 3
	SourceGPGAgent ErrSource = 4
	SourcePinentry ErrSource = 5
	SourceSCD      ErrSource = 6
	SourceGPGME    ErrSource = 7
	SourceUser1    ErrSource = 32
)

var sourceNames = map[ErrSource]string{
	SourceUnknown:  "Unspecified source",
	SourceGCrypt:   "gcrypt",
	SourceGPG:      "GnuPG",
	SourceGPGSM:    "GpgSM",
	SourceGPGAgent: "GPG Agent",
	SourcePinentry: "Pinentry",
	SourceSCD:      "SCD",
	SourceGPGME:    "GPGME",
	SourceUser1:    "User defined source 1",
}

func (s ErrSource) String() string {
	if n, ok := sourceNames[s]; ok {
		return n
	}
	return "source " + strconv.Itoa(int(s))
}

// ErrCode is a libgpg-error compatible error code.
type ErrCode int

const (
	ErrNoError              ErrCode = 0
	ErrGeneral              ErrCode = 1
	ErrBadSignature         ErrCode = 8
	ErrNoPubkey             ErrCode = 9
	ErrBadPassphrase        ErrCode = 11
	ErrNoSeckey             ErrCode = 17
	ErrNotFound             ErrCode = 27
	ErrUnusablePubkey       ErrCode = 53
	ErrUnusableSeckey       ErrCode = 54
	ErrInvValue             ErrCode = 55
	ErrNoData               ErrCode = 58
	ErrNotImplemented       ErrCode = 69
	ErrConflict             ErrCode = 70
	ErrUnsupportedAlgorithm ErrCode = 84
	ErrBadData              ErrCode = 89
	ErrCertRevoked          ErrCode = 94
	ErrNoCRLKnown           ErrCode = 95
	ErrCRLTooOld            ErrCode = 96
	ErrCanceled             ErrCode = 99
	ErrAmbiguousName        ErrCode = 107
	ErrWrongKeyUsage        ErrCode = 125
	ErrInvEngine            ErrCode = 150
	ErrDecryptFailed        ErrCode = 152
	ErrKeyExpired           ErrCode = 153
	ErrSigExpired           ErrCode = 154
	ErrUnfinished           ErrCode = 199
	ErrEOF                  ErrCode = 16383
)

var codeNames = map[ErrCode]string{
	ErrNoError:              "Success",
	ErrGeneral:              "General error",
	ErrBadSignature:         "Bad signature",
	ErrNoPubkey:             "No public key",
	ErrBadPassphrase:        "Bad passphrase",
	ErrNoSeckey:             "No secret key",
	ErrNotFound:             "Not found",
	ErrUnusablePubkey:       "Unusable public key",
	ErrUnusableSeckey:       "Unusable secret key",
	ErrInvValue:             "Invalid value",
	ErrNoData:               "No data",
	ErrNotImplemented:       "Not implemented",
	ErrConflict:             "Conflicting use",
	ErrUnsupportedAlgorithm: "Unsupported algorithm",
	ErrBadData:              "Bad data",
	ErrCertRevoked:          "Certificate revoked",
	ErrNoCRLKnown:           "No CRL known",
	ErrCRLTooOld:            "CRL too old",
	ErrCanceled:             "Operation cancelled",
	ErrAmbiguousName:        "Ambiguous name",
	ErrWrongKeyUsage:        "Wrong key usage",
	ErrInvEngine:            "Invalid crypto engine",
	ErrDecryptFailed:        "Decryption failed",
	ErrKeyExpired:           "Key expired",
	ErrSigExpired:           "Signature expired",
	ErrUnfinished:           "Operation not yet finished",
	ErrEOF:                  "End of file",
}

func (c ErrCode) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return "code " + strconv.Itoa(int(c))
}

// SplitErrValue decodes the combined value carried by ERROR status lines.
func SplitErrValue(v uint32) (ErrSource, ErrCode) {
	return ErrSource((v >> 24) & 0x7f), ErrCode(v & 0xffff)
}

// MakeErrValue is the inverse of SplitErrValue.
func MakeErrValue(s ErrSource, c ErrCode) uint32 {
	return uint32(s&0x7f)<<24 | uint32(c&0xffff)
}
