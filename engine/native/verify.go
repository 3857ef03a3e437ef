package native

import (
	"bytes"
	"io"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
	pgperrors "github.com/ProtonMail/go-crypto/openpgp/errors"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/gpgme-go/gpgme/armor"
	"github.com/gpgme-go/gpgme/constants"
	"github.com/gpgme-go/gpgme/engine"
	"github.com/gpgme-go/gpgme/engine/status"
	"github.com/pkg/errors"
)

// ERRSIG return codes.
const (
	errSigUnsupported = 4
	errSigNoPubkey    = 9
)

func (s *session) verify(op *engine.Operation) error {
	input, err := readInput(op.Input)
	if err != nil {
		return err
	}
	keyring := s.eng.keys.Entities()

	if op.SignedText != nil {
		signed, err := readInput(op.SignedText)
		if err != nil {
			return err
		}
		body, err := armor.Dearmor(input)
		if err != nil {
			return s.noData(1)
		}
		sigs, err := readSignatures(bytes.NewReader(body))
		if err != nil || len(sigs) == 0 {
			return s.noData(3)
		}
		s.progress("stdin", len(signed))
		for _, sig := range sigs {
			s.checkSignature(keyring, sig, signed)
		}
		return nil
	}

	if armor.IsClearSigned(input) {
		return s.verifyClearSigned(op, keyring, input)
	}
	return s.verifyInline(op, keyring, input)
}

// verifyClearSigned checks every clearsigned section of input in order and
// writes their text to the output.
func (s *session) verifyClearSigned(op *engine.Operation, keyring openpgp.EntityList, input []byte) error {
	rest := input
	for {
		block, next := clearsign.Decode(rest)
		if block == nil {
			// A section whose signature block has no content does not decode.
			// gpg reports nothing for it.
			return nil
		}
		rest = next
		sigs, err := readSignatures(block.ArmoredSignature.Body)
		if err != nil || len(sigs) == 0 {
			return s.noData(3)
		}
		if op.Output != nil {
			text := append(append([]byte(nil), block.Plaintext...), '\n')
			if _, err := op.Output.Write(text); err != nil {
				return errors.Wrap(err, "native: unable to write plaintext")
			}
		}
		for _, sig := range sigs {
			s.checkSignature(keyring, sig, block.Bytes)
		}
	}
}

// verifyInline checks a signed message: optional one-pass signature
// packets, the literal data and the signature packets, possibly compressed.
func (s *session) verifyInline(op *engine.Operation, keyring openpgp.EntityList, input []byte) error {
	body, err := armor.Dearmor(input)
	if err != nil {
		return s.noData(1)
	}
	packets := packet.NewReader(bytes.NewReader(body))
	var (
		sigs    []*packet.Signature
		literal []byte
		found   bool
		onePass bool
	)
	for {
		p, err := packets.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if !found && len(sigs) == 0 {
				return s.noData(3)
			}
			break
		}
		switch p := p.(type) {
		case *packet.Compressed:
			if err := packets.Push(p.Body); err != nil {
				return s.noData(3)
			}
		case *packet.LiteralData:
			if literal, err = io.ReadAll(p.Body); err != nil {
				return s.noData(3)
			}
			found = true
		case *packet.OnePassSignature:
			onePass = true
		case *packet.Signature:
			sigs = append(sigs, p)
		}
	}
	if onePass {
		// Nested one-pass layers close innermost first; report the
		// signatures in one-pass order.
		for i, j := 0, len(sigs)-1; i < j; i, j = i+1, j-1 {
			sigs[i], sigs[j] = sigs[j], sigs[i]
		}
	}
	if !found {
		return s.noData(2)
	}
	if len(sigs) == 0 {
		return s.noData(4)
	}
	s.emit(status.Plaintext, "62", 0, "")
	if op.Output != nil {
		if _, err := op.Output.Write(literal); err != nil {
			return errors.Wrap(err, "native: unable to write plaintext")
		}
	}
	for _, sig := range sigs {
		s.checkSignature(keyring, sig, literal)
	}
	return nil
}

// readSignatures returns the signature packets in r.
func readSignatures(r io.Reader) ([]*packet.Signature, error) {
	packets := packet.NewReader(r)
	var sigs []*packet.Signature
	for {
		p, err := packets.Next()
		if err == io.EOF {
			return sigs, nil
		}
		if err != nil {
			return sigs, errors.Wrap(err, "native: malformed signature")
		}
		if sig, ok := p.(*packet.Signature); ok {
			sigs = append(sigs, sig)
		}
	}
}

func issuerID(sig *packet.Signature) uint64 {
	if sig.IssuerKeyId != nil {
		return *sig.IssuerKeyId
	}
	if n := len(sig.IssuerFingerprint); n >= 8 {
		var id uint64
		for _, b := range sig.IssuerFingerprint[n-8:] {
			id = id<<8 | uint64(b)
		}
		return id
	}
	return 0
}

// checkSignature verifies sig over signed and reports the verdict group.
func (s *session) checkSignature(keyring openpgp.EntityList, sig *packet.Signature, signed []byte) {
	s.emit(status.NewSig)
	keys := keyring.KeysByIdUsage(issuerID(sig), packet.KeyFlagSign)
	if len(keys) == 0 {
		s.errSig(sig, errSigNoPubkey)
		return
	}
	key := keys[0]
	h, err := sig.PrepareVerify()
	if err != nil {
		s.errSig(sig, errSigUnsupported)
		return
	}
	if sig.SigType == packet.SigTypeText {
		h = openpgp.NewCanonicalTextHash(h)
	}
	_, _ = h.Write(signed)
	s.report(&key, sig, key.PublicKey.VerifySignature(h, sig))
}

func (s *session) errSig(sig *packet.Signature, rc int) {
	fpr := "-"
	if len(sig.IssuerFingerprint) > 0 {
		fpr = fingerprintBytes(sig.IssuerFingerprint)
	}
	s.emit(status.ErrSig, keyID(issuerID(sig)), int(sig.PubKeyAlgo), hashID(sig.Hash),
		sigClass(sig.SigType), sig.CreationTime.Unix(), rc, fpr)
}

// report emits the verdict, VALIDSIG, notations and trust of a checked
// signature. verifyErr is the outcome of the cryptographic check.
func (s *session) report(key *openpgp.Key, sig *packet.Signature, verifyErr error) {
	now := s.eng.cfg.Now()
	id := keyID(key.PublicKey.KeyId)
	uid := primaryUID(key.Entity)
	primary := fingerprint(key.Entity.PrimaryKey)

	switch {
	case verifyErr != nil && !isDetailError(verifyErr):
		s.emit(status.BadSig, id, uid)
		return
	case sig.SigExpired(now) || errors.Is(verifyErr, pgperrors.ErrSignatureExpired):
		s.emit(status.ExpSig, id, uid)
	case keyRevoked(key, now) || errors.Is(verifyErr, pgperrors.ErrKeyRevoked):
		s.emit(status.RevKeySig, id, uid)
	case keyExpired(key, now) || errors.Is(verifyErr, pgperrors.ErrKeyExpired):
		s.emit(status.ExpKeySig, id, uid)
	default:
		s.emit(status.GoodSig, id, uid)
	}

	var expires int64
	if sig.SigLifetimeSecs != nil && *sig.SigLifetimeSecs > 0 {
		expires = sig.CreationTime.Add(time.Duration(*sig.SigLifetimeSecs) * time.Second).Unix()
	}
	s.emit(status.ValidSig, fingerprint(key.PublicKey), sig.CreationTime.UTC().Format("2006-01-02"),
		sig.CreationTime.Unix(), expires, sig.Version, 0, int(sig.PubKeyAlgo), hashID(sig.Hash),
		sigClass(sig.SigType), primary)

	for _, n := range sig.Notations {
		if n.Name == packet.SaltNotationName {
			continue
		}
		s.emit(status.NotationName, status.Escape(n.Name))
		s.emit(status.NotationData, status.Escape(string(n.Value)))
	}
	if sig.PolicyURI != "" {
		s.emit(status.PolicyURL, status.Escape(sig.PolicyURI))
	}
	s.emit(trustKeyword(s.eng.keys.OwnerTrust(primary)), 0, "pgp")
}

// isDetailError reports errors that describe a valid signature made under
// bad conditions rather than a forged one.
func isDetailError(err error) bool {
	return errors.Is(err, pgperrors.ErrSignatureExpired) ||
		errors.Is(err, pgperrors.ErrKeyExpired) ||
		errors.Is(err, pgperrors.ErrKeyRevoked)
}

func keyRevoked(key *openpgp.Key, now time.Time) bool {
	if key.Entity.Revoked(now) || key.Revoked(now) {
		return true
	}
	if id := key.Entity.PrimaryIdentity(); id != nil && id.Revoked(now) {
		return true
	}
	return false
}

func keyExpired(key *openpgp.Key, now time.Time) bool {
	if key.SelfSignature != nil && key.PublicKey.KeyExpired(key.SelfSignature, now) {
		return true
	}
	selfSig, _ := key.Entity.PrimarySelfSignature()
	return selfSig != nil && key.Entity.PrimaryKey.KeyExpired(selfSig, now)
}

// trustKeyword maps owner trust to the TRUST_* record. Keys without an
// assigned trust have no trust path.
func trustKeyword(trust int) status.Keyword {
	switch trust {
	case constants.TrustNever:
		return status.TrustNever
	case constants.TrustMarginal:
		return status.TrustMarginal
	case constants.TrustFull:
		return status.TrustFully
	case constants.TrustUltimate:
		return status.TrustUltimate
	}
	return status.TrustUndefined
}
