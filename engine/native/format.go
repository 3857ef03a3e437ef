package native

import (
	"bytes"
	"crypto"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/gpgme-go/gpgme/constants"
	"github.com/pkg/errors"
)

func fingerprint(pk *packet.PublicKey) string {
	return fingerprintBytes(pk.Fingerprint)
}

func fingerprintBytes(fpr []byte) string {
	return strings.ToUpper(hex.EncodeToString(fpr))
}

func keyID(id uint64) string {
	return fmt.Sprintf("%016X", id)
}

// primaryUID returns the user ID gpg shows for e.
func primaryUID(e *openpgp.Entity) string {
	if id := e.PrimaryIdentity(); id != nil {
		return id.Name
	}
	return "[?]"
}

// identityNames returns the user IDs of e, primary first, the rest sorted.
func identityNames(e *openpgp.Entity) []string {
	var primary string
	if id := e.PrimaryIdentity(); id != nil {
		primary = id.Name
	}
	names := make([]string, 0, len(e.Identities))
	for name := range e.Identities {
		if name != primary {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if primary != "" {
		names = append([]string{primary}, names...)
	}
	return names
}

var hashIDs = map[crypto.Hash]int{
	crypto.SHA1:   constants.HashAlgoSHA1,
	crypto.SHA256: constants.HashAlgoSHA256,
	crypto.SHA384: constants.HashAlgoSHA384,
	crypto.SHA512: constants.HashAlgoSHA512,
	crypto.SHA224: constants.HashAlgoSHA224,
}

// hashID returns the OpenPGP identifier of h, 0 when unknown.
func hashID(h crypto.Hash) int {
	return hashIDs[h]
}

func sigClass(t packet.SignatureType) string {
	return fmt.Sprintf("%02x", int(t))
}

// trustLetter is the colon listing letter of an owner trust value.
func trustLetter(trust int) string {
	switch trust {
	case constants.TrustNever:
		return "n"
	case constants.TrustMarginal:
		return "m"
	case constants.TrustFull:
		return "f"
	case constants.TrustUltimate:
		return "u"
	}
	return "-"
}

// escapeColon escapes a colon listing field the way gpg does.
func escapeColon(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ':' || c == '\\' || c < 0x20 {
			fmt.Fprintf(&b, `\x%02x`, c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// cloneEntity returns a deep copy of e so that unlocking its secret keys
// does not touch the stored copy.
func cloneEntity(e *openpgp.Entity) (*openpgp.Entity, error) {
	var buf bytes.Buffer
	var err error
	if e.PrivateKey != nil {
		err = e.SerializePrivateWithoutSigning(&buf, nil)
	} else {
		err = e.Serialize(&buf)
	}
	if err != nil {
		return nil, errors.Wrap(err, "native: unable to copy key")
	}
	clone, err := openpgp.ReadEntity(packet.NewReader(&buf))
	if err != nil {
		return nil, errors.Wrap(err, "native: unable to copy key")
	}
	return clone, nil
}
