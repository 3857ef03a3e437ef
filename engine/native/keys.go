package native

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/gpgme-go/gpgme/armor"
	"github.com/gpgme-go/gpgme/constants"
	"github.com/gpgme-go/gpgme/engine"
	"github.com/gpgme-go/gpgme/engine/status"
)

// importCounts are the IMPORT_RES counters in record order.
type importCounts struct {
	considered, noUserID, imported, importedRSA, unchanged      int
	newUserIDs, newSubKeys, newSignatures, newRevocations       int
	secretRead, secretImported, secretUnchanged, skipped, notOK int
}

func (c *importCounts) args() []interface{} {
	return []interface{}{
		c.considered, c.noUserID, c.imported, c.importedRSA, c.unchanged,
		c.newUserIDs, c.newSubKeys, c.newSignatures, c.newRevocations,
		c.secretRead, c.secretImported, c.secretUnchanged, c.skipped, c.notOK,
	}
}

func (s *session) importKeys(op *engine.Operation) error {
	input, err := readInput(op.Input)
	if err != nil {
		return err
	}
	var el openpgp.EntityList
	if armor.IsArmored(input) {
		el, err = openpgp.ReadArmoredKeyRing(bytes.NewReader(input))
	} else {
		el, err = openpgp.ReadKeyRing(bytes.NewReader(input))
	}
	var counts importCounts
	if err != nil || len(el) == 0 {
		s.emit(status.NoData, 1)
		s.emit(status.ImportRes, counts.args()...)
		return &engine.ExitError{Code: 2, Stderr: "no valid OpenPGP data found"}
	}

	for _, e := range el {
		fpr := fingerprint(e.PrimaryKey)
		counts.considered++
		s.emit(status.KeyConsidered, fpr, 0)
		if len(e.Identities) == 0 {
			counts.noUserID++
		}
		if e.PrivateKey != nil {
			counts.secretRead++
		}

		flags, err := s.eng.keys.Add(e)
		if err != nil {
			return s.failure(constants.ErrGeneral, "unable to store key: %v", err)
		}
		switch {
		case flags&constants.ImportNew != 0:
			counts.imported++
			if e.PrimaryKey.PubKeyAlgo == packet.PubKeyAlgoRSA {
				counts.importedRSA++
			}
			s.emit(status.Imported, keyID(e.PrimaryKey.KeyId), primaryUID(e))
		case e.PrivateKey == nil:
			counts.unchanged++
		}
		switch {
		case flags&constants.ImportSecret != 0:
			counts.secretImported++
		case e.PrivateKey != nil:
			counts.secretUnchanged++
		}
		s.emit(status.ImportOK, int(flags), fpr)
	}
	s.emit(status.ImportRes, counts.args()...)
	return nil
}

func (s *session) exportKeys(op *engine.Operation) error {
	found := s.eng.keys.Find(op.Patterns, false)
	var buf bytes.Buffer
	for _, e := range found {
		if err := e.Serialize(&buf); err != nil {
			return s.failure(constants.ErrGeneral, "unable to export key: %v", err)
		}
		s.emit(status.Exported, fingerprint(e.PrimaryKey))
	}
	if len(found) > 0 && op.Output != nil {
		if err := writeArmored(op.Output, buf.Bytes(), op.Armor, constants.PublicKeyHeader); err != nil {
			return s.failure(constants.ErrGeneral, "unable to write keys: %v", err)
		}
	}
	s.emit(status.ExportRes, len(found), 0, len(found))
	return nil
}

func (s *session) deleteKey(op *engine.Operation) error {
	if len(op.Patterns) != 1 {
		return s.failure(constants.ErrInvValue, "delete needs exactly one key")
	}
	problem, err := s.eng.keys.Remove(op.Patterns[0], op.AllowSecret)
	if err != nil {
		return s.failure(constants.ErrGeneral, "unable to delete key: %v", err)
	}
	if problem != 0 {
		s.emit(status.DeleteProblem, problem)
		return &engine.ExitError{Code: 2, Stderr: "key deletion failed"}
	}
	return nil
}

func (s *session) listKeys(op *engine.Operation) error {
	if !op.KeyListMode.Has(constants.KeyListModeLocal) {
		// There is no keyserver behind the native keystore.
		s.emit(status.Error, "keylist.extern", constants.MakeErrValue(constants.SourceGPG, constants.ErrNotImplemented))
		return nil
	}
	var out bytes.Buffer
	for _, e := range s.eng.keys.Find(op.Patterns, op.Secret) {
		s.writeListing(&out, e, op)
	}
	if op.Output != nil {
		if _, err := op.Output.Write(out.Bytes()); err != nil {
			return s.failure(constants.ErrGeneral, "unable to write listing: %v", err)
		}
	}
	return nil
}

// colonLine writes one record of a colon listing. Missing trailing fields
// are left empty.
func colonLine(w io.Writer, fields ...string) {
	_, _ = io.WriteString(w, strings.Join(fields, ":")+":\n")
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.Unix(), 10)
}

func expiry(pk *packet.PublicKey, sig *packet.Signature) string {
	if sig == nil || sig.KeyLifetimeSecs == nil || *sig.KeyLifetimeSecs == 0 {
		return ""
	}
	return timestamp(pk.CreationTime.Add(time.Duration(*sig.KeyLifetimeSecs) * time.Second))
}

// usage returns the capability letters granted by a self-signature.
func usage(pk *packet.PublicKey, sig *packet.Signature) string {
	if sig == nil {
		return ""
	}
	var caps string
	if !sig.FlagsValid {
		if pk.PubKeyAlgo.CanEncrypt() {
			caps += "e"
		}
		if pk.PubKeyAlgo.CanSign() {
			caps += "sc"
		}
		return caps
	}
	if sig.FlagEncryptCommunications || sig.FlagEncryptStorage {
		caps += "e"
	}
	if sig.FlagSign {
		caps += "s"
	}
	if sig.FlagCertify {
		caps += "c"
	}
	if sig.FlagAuthenticate {
		caps += "a"
	}
	return caps
}

func bitLength(pk *packet.PublicKey) string {
	n, err := pk.BitLength()
	if err != nil {
		return "0"
	}
	return strconv.Itoa(int(n))
}

// secretToken is field 15 of a key record: "+" for an available secret
// key, "#" for a stub.
func secretToken(priv *packet.PrivateKey) string {
	switch {
	case priv == nil:
		return ""
	case priv.Dummy():
		return "#"
	}
	return "+"
}

// writeListing writes the colon records of e in the layout of
// "gpg --with-colons --fixed-list-mode".
func (s *session) writeListing(w io.Writer, e *openpgp.Entity, op *engine.Operation) {
	now := s.eng.cfg.Now()
	fpr := fingerprint(e.PrimaryKey)
	trust := s.eng.keys.OwnerTrust(fpr)
	disabled := s.eng.keys.Disabled(fpr)
	selfSig, _ := e.PrimarySelfSignature()

	revoked := e.Revoked(now)
	expired := selfSig != nil && e.PrimaryKey.KeyExpired(selfSig, now)
	validity := trustLetter(trust)
	switch {
	case revoked:
		validity = "r"
	case expired:
		validity = "e"
	case disabled:
		validity = "d"
	}

	keyCaps := usage(e.PrimaryKey, selfSig)
	all := keyCaps
	for _, sk := range e.Subkeys {
		if !sk.Revoked(now) && !sk.PublicKey.KeyExpired(sk.Sig, now) {
			all += usage(sk.PublicKey, sk.Sig)
		}
	}
	if !revoked && !expired {
		for _, c := range "escad" {
			if strings.ContainsRune(all, c) {
				keyCaps += strings.ToUpper(string(c))
			}
		}
	}
	if disabled {
		keyCaps += "D"
	}

	kind, token := "pub", ""
	if e.PrivateKey != nil && (op.Secret || op.KeyListMode.Has(constants.KeyListModeWithSecret)) {
		token = secretToken(e.PrivateKey)
		if op.Secret {
			kind = "sec"
		}
	}
	colonLine(w, kind, validity, bitLength(e.PrimaryKey), strconv.Itoa(int(e.PrimaryKey.PubKeyAlgo)),
		keyID(e.PrimaryKey.KeyId), timestamp(e.PrimaryKey.CreationTime), expiry(e.PrimaryKey, selfSig), "",
		trustLetter(trust), "", "", keyCaps, "", "", token)
	colonLine(w, "fpr", "", "", "", "", "", "", "", "", fpr)

	for _, name := range identityNames(e) {
		id := e.Identities[name]
		uidValidity := trustLetter(trust)
		if id.Revoked(now) {
			uidValidity = "r"
		}
		var created string
		if id.SelfSignature != nil {
			created = timestamp(id.SelfSignature.CreationTime)
		}
		colonLine(w, "uid", uidValidity, "", "", "", created, "", "", "", escapeColon(name))
		if op.KeyListMode.Has(constants.KeyListModeSigs) {
			for _, sig := range id.Signatures {
				s.writeKeySig(w, e, sig)
			}
		}
	}

	for _, sk := range e.Subkeys {
		subValidity := validity
		switch {
		case sk.Revoked(now):
			subValidity = "r"
		case sk.PublicKey.KeyExpired(sk.Sig, now):
			subValidity = "e"
		}
		subKind, subToken := "sub", ""
		if e.PrivateKey != nil && (op.Secret || op.KeyListMode.Has(constants.KeyListModeWithSecret)) {
			subToken = secretToken(sk.PrivateKey)
			if op.Secret {
				subKind = "ssb"
			}
		}
		colonLine(w, subKind, subValidity, bitLength(sk.PublicKey), strconv.Itoa(int(sk.PublicKey.PubKeyAlgo)),
			keyID(sk.PublicKey.KeyId), timestamp(sk.PublicKey.CreationTime), expiry(sk.PublicKey, sk.Sig), "",
			"", "", "", usage(sk.PublicKey, sk.Sig), "", "", subToken)
		colonLine(w, "fpr", "", "", "", "", "", "", "", "", fingerprint(sk.PublicKey))
	}
}

// writeKeySig writes a sig or rev record for a certification of a user ID
// of e.
func (s *session) writeKeySig(w io.Writer, e *openpgp.Entity, sig *packet.Signature) {
	kind := "sig"
	if sig.SigType == packet.SigTypeCertificationRevocation {
		kind = "rev"
	}
	issuer := issuerID(sig)
	signer := "[User ID not found]"
	if issuer == e.PrimaryKey.KeyId {
		signer = primaryUID(e)
	} else if keys := s.eng.keys.Entities().KeysById(issuer); len(keys) > 0 {
		signer = primaryUID(keys[0].Entity)
	}
	var expires string
	if sig.SigLifetimeSecs != nil && *sig.SigLifetimeSecs > 0 {
		expires = timestamp(sig.CreationTime.Add(time.Duration(*sig.SigLifetimeSecs) * time.Second))
	}
	colonLine(w, kind, "", "", strconv.Itoa(int(sig.PubKeyAlgo)), keyID(issuer),
		timestamp(sig.CreationTime), expires, "", "", escapeColon(signer), sigClass(sig.SigType)+"x")
}
