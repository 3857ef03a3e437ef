package gpgme

import (
	"time"

	"github.com/gpgme-go/gpgme/constants"
)

// Key is a snapshot of a key as reported by the engine. Keys are only
// produced by key lookups and listings.
type Key struct {
	protocol    constants.Protocol
	secret      bool
	revoked     bool
	expired     bool
	disabled    bool
	invalid     bool
	canEncrypt  bool
	canSign     bool
	canCertify  bool
	canAuth     bool
	ownerTrust  constants.Validity
	keyListMode constants.KeyListMode
	subKeys     []*SubKey
	userIDs     []*UserID
}

// Fingerprint of the primary key.
func (k *Key) Fingerprint() string {
	if len(k.subKeys) == 0 {
		return ""
	}
	return k.subKeys[0].fpr
}

// KeyID of the primary key.
func (k *Key) KeyID() string {
	if len(k.subKeys) == 0 {
		return ""
	}
	return k.subKeys[0].keyID
}

func (k *Key) Protocol() constants.Protocol { return k.protocol }

// Secret reports whether the secret part is available.
func (k *Key) Secret() bool { return k.secret }

func (k *Key) Revoked() bool  { return k.revoked }
func (k *Key) Expired() bool  { return k.expired }
func (k *Key) Disabled() bool { return k.disabled }
func (k *Key) Invalid() bool  { return k.invalid }

func (k *Key) CanEncrypt() bool      { return k.canEncrypt }
func (k *Key) CanSign() bool         { return k.canSign }
func (k *Key) CanCertify() bool      { return k.canCertify }
func (k *Key) CanAuthenticate() bool { return k.canAuth }

func (k *Key) OwnerTrust() constants.Validity { return k.ownerTrust }

// KeyListMode is the mode the key was listed with.
func (k *Key) KeyListMode() constants.KeyListMode { return k.keyListMode }

// SubKeys returns the primary key followed by its subkeys in engine order.
func (k *Key) SubKeys() []*SubKey {
	return append([]*SubKey(nil), k.subKeys...)
}

// UserIDs returns the user IDs in engine order.
func (k *Key) UserIDs() []*UserID {
	return append([]*UserID(nil), k.userIDs...)
}

// SubKey is the primary key or one of its subkeys.
type SubKey struct {
	fpr        string
	keyID      string
	pubkeyAlgo int
	length     int
	created    int64
	expires    int64
	secret     bool
	revoked    bool
	expired    bool
	disabled   bool
	invalid    bool
	canEncrypt bool
	canSign    bool
	canCertify bool
	canAuth    bool
	cardNumber string
}

func (s *SubKey) Fingerprint() string { return s.fpr }
func (s *SubKey) KeyID() string       { return s.keyID }
func (s *SubKey) PubkeyAlgo() int     { return s.pubkeyAlgo }
func (s *SubKey) Length() int         { return s.length }

func (s *SubKey) Created() time.Time { return time.Unix(s.created, 0) }

// Expires returns the zero time for keys that do not expire.
func (s *SubKey) Expires() time.Time {
	if s.expires == 0 {
		return time.Time{}
	}
	return time.Unix(s.expires, 0)
}

func (s *SubKey) Secret() bool   { return s.secret }
func (s *SubKey) Revoked() bool  { return s.revoked }
func (s *SubKey) Expired() bool  { return s.expired }
func (s *SubKey) Disabled() bool { return s.disabled }
func (s *SubKey) Invalid() bool  { return s.invalid }

func (s *SubKey) CanEncrypt() bool      { return s.canEncrypt }
func (s *SubKey) CanSign() bool         { return s.canSign }
func (s *SubKey) CanCertify() bool      { return s.canCertify }
func (s *SubKey) CanAuthenticate() bool { return s.canAuth }

// CardNumber is set for keys stored on a smartcard.
func (s *SubKey) CardNumber() string { return s.cardNumber }

// UserID is one identity of a key.
type UserID struct {
	uid        string
	name       string
	email      string
	comment    string
	validity   constants.Validity
	revoked    bool
	invalid    bool
	signatures []*KeySig
}

func (u *UserID) UID() string                  { return u.uid }
func (u *UserID) Name() string                 { return u.name }
func (u *UserID) Email() string                { return u.email }
func (u *UserID) Comment() string              { return u.comment }
func (u *UserID) Validity() constants.Validity { return u.validity }
func (u *UserID) Revoked() bool                { return u.revoked }
func (u *UserID) Invalid() bool                { return u.invalid }

// Signatures are only listed with KeyListModeSigs.
func (u *UserID) Signatures() []*KeySig {
	return append([]*KeySig(nil), u.signatures...)
}

// KeySig is a certification on a user ID.
type KeySig struct {
	keyID      string
	pubkeyAlgo int
	created    int64
	expires    int64
	uid        string
	sigClass   int
	revoked    bool
}

func (s *KeySig) KeyID() string   { return s.keyID }
func (s *KeySig) PubkeyAlgo() int { return s.pubkeyAlgo }
func (s *KeySig) Created() int64  { return s.created }
func (s *KeySig) Expires() int64  { return s.expires }
func (s *KeySig) UID() string     { return s.uid }
func (s *KeySig) SigClass() int   { return s.sigClass }
func (s *KeySig) Revoked() bool   { return s.revoked }
