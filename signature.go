package gpgme

import (
	"github.com/gpgme-go/gpgme/constants"
)

// Notation is a name/value pair attached to a signature. Policy URLs are
// reported with an empty Name.
type Notation struct {
	Name          string
	Value         string
	HumanReadable bool
	Critical      bool
}

// Signature is the verdict for one signature of a verified message.
type Signature struct {
	summary        constants.SigSum
	fpr            string
	status         error
	notations      []Notation
	timestamp      int64
	expTimestamp   int64
	wrongKeyUsage  bool
	validity       constants.Validity
	validityReason error
	pubkeyAlgo     int
	hashAlgo       int

	// verdict is set once a GOODSIG-like record was seen for this entry.
	verdict bool
}

// Summary returns the outcome flags. Zero means the signature is
// cryptographically fine but nothing more can be said about it.
func (s *Signature) Summary() constants.SigSum { return s.summary }

// Fingerprint returns the signer fingerprint, or its key ID when the key is
// not known locally.
func (s *Signature) Fingerprint() string { return s.fpr }

// Status is nil for a good signature.
func (s *Signature) Status() error { return s.status }

func (s *Signature) Notations() []Notation {
	return append([]Notation(nil), s.notations...)
}

// Timestamp is the creation time in seconds since the epoch.
func (s *Signature) Timestamp() int64 { return s.timestamp }

// ExpTimestamp is the expiration time, 0 if the signature does not expire.
func (s *Signature) ExpTimestamp() int64 { return s.expTimestamp }

func (s *Signature) WrongKeyUsage() bool { return s.wrongKeyUsage }

func (s *Signature) Validity() constants.Validity { return s.validity }

func (s *Signature) ValidityReason() error { return s.validityReason }

func (s *Signature) PubkeyAlgo() int { return s.pubkeyAlgo }

func (s *Signature) HashAlgo() int { return s.hashAlgo }

// NewSignature describes a signature created by a sign operation.
type NewSignature struct {
	sigType    constants.SigMode
	pubkeyAlgo int
	hashAlgo   int
	timestamp  int64
	fpr        string
	sigClass   int
}

func (s *NewSignature) Type() constants.SigMode { return s.sigType }

func (s *NewSignature) PubkeyAlgo() int { return s.pubkeyAlgo }

func (s *NewSignature) HashAlgo() int { return s.hashAlgo }

func (s *NewSignature) Timestamp() int64 { return s.timestamp }

func (s *NewSignature) Fingerprint() string { return s.fpr }

func (s *NewSignature) SigClass() int { return s.sigClass }

// InvalidKey is a signer or recipient the engine refused.
type InvalidKey struct {
	Fingerprint string
	Reason      error
}

// ImportStatus reports what happened to one key during an import.
type ImportStatus struct {
	Fingerprint string
	Result      error
	Status      constants.ImportStatus
}

// ImportResult summarizes an import operation.
type ImportResult struct {
	Considered      int
	NoUserID        int
	Imported        int
	ImportedRSA     int
	Unchanged       int
	NewUserIDs      int
	NewSubKeys      int
	NewSignatures   int
	NewRevocations  int
	SecretRead      int
	SecretImported  int
	SecretUnchanged int
	SkippedNewKeys  int
	NotImported     int
	Imports         []ImportStatus
}
