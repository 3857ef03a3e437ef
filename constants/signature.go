package constants

// OpenPGP signature classes as reported in SIG_CREATED.
const (
	SigClassBinary        = 0x00
	SigClassText          = 0x01
	SigClassStandalone    = 0x02
	SigClassGenericCert   = 0x10
	SigClassPositiveCert  = 0x13
	SigClassSubkeyBinding = 0x18
	SigClassKeyRevocation = 0x20
)

// SigMode selects the shape of the signature produced by a sign operation.
type SigMode int

const (
	SigModeNormal SigMode = 0
	SigModeDetach SigMode = 1
	SigModeClear  SigMode = 2
)

func (m SigMode) String() string {
	switch m {
	case SigModeNormal:
		return "normal"
	case SigModeDetach:
		return "detach"
	case SigModeClear:
		return "clear"
	}
	return "unknown"
}

// Valid reports whether m is a known signature mode.
func (m SigMode) Valid() bool {
	return m == SigModeNormal || m == SigModeDetach || m == SigModeClear
}

// SigModeFromLetter maps the type letter of a SIG_CREATED line.
func SigModeFromLetter(s string) SigMode {
	switch s {
	case "D":
		return SigModeDetach
	case "C":
		return SigModeClear
	}
	return SigModeNormal
}

// Letter is the inverse of SigModeFromLetter.
func (m SigMode) Letter() string {
	switch m {
	case SigModeDetach:
		return "D"
	case SigModeClear:
		return "C"
	}
	return "S"
}

// SigSum is the bit-set summary of a verified signature.
type SigSum int

const (
	SigSumValid      SigSum = 0x0001
	SigSumGreen      SigSum = 0x0002
	SigSumRed        SigSum = 0x0004
	SigSumKeyRevoked SigSum = 0x0010
	SigSumKeyExpired SigSum = 0x0020
	SigSumSigExpired SigSum = 0x0040
	SigSumKeyMissing SigSum = 0x0080
	SigSumCRLMissing SigSum = 0x0100
	SigSumCRLTooOld  SigSum = 0x0200
	SigSumBadPolicy  SigSum = 0x0400
	SigSumSysError   SigSum = 0x0800
)

// Has reports whether all bits of flag are set.
func (s SigSum) Has(flag SigSum) bool {
	return s&flag == flag
}

// Validity is the trust level an engine assigns to a key or signature.
type Validity int

const (
	ValidityUnknown   Validity = 0
	ValidityUndefined Validity = 1
	ValidityNever     Validity = 2
	ValidityMarginal  Validity = 3
	ValidityFull      Validity = 4
	ValidityUltimate  Validity = 5
)

func (v Validity) String() string {
	switch v {
	case ValidityUndefined:
		return "undefined"
	case ValidityNever:
		return "never"
	case ValidityMarginal:
		return "marginal"
	case ValidityFull:
		return "full"
	case ValidityUltimate:
		return "ultimate"
	}
	return "unknown"
}

// ValidityFromColon decodes the validity letter of a colon key listing.
func ValidityFromColon(s string) Validity {
	if s == "" {
		return ValidityUnknown
	}
	switch s[0] {
	case 'q':
		return ValidityUndefined
	case 'n':
		return ValidityNever
	case 'm':
		return ValidityMarginal
	case 'f':
		return ValidityFull
	case 'u':
		return ValidityUltimate
	}
	return ValidityUnknown
}

// ColonLetter is the inverse of ValidityFromColon.
func (v Validity) ColonLetter() string {
	switch v {
	case ValidityUndefined:
		return "q"
	case ValidityNever:
		return "n"
	case ValidityMarginal:
		return "m"
	case ValidityFull:
		return "f"
	case ValidityUltimate:
		return "u"
	}
	return "-"
}
