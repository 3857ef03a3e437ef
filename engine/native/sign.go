package native

import (
	"bytes"
	"crypto"
	"hash"
	"io"
	"strconv"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/gpgme-go/gpgme/armor"
	"github.com/gpgme-go/gpgme/constants"
	"github.com/gpgme-go/gpgme/engine"
	"github.com/gpgme-go/gpgme/engine/status"
)

// INV_SGNR and INV_RECP reasons.
const (
	invalidGeneral   = 0
	invalidNoPubkey  = 1
	invalidAmbiguous = 2
	invalidUsage     = 3
	invalidRevoked   = 4
	invalidExpired   = 5
	invalidNoSeckey  = 9
)

func (s *session) sign(op *engine.Operation) error {
	input, err := readInput(op.Input)
	if err != nil {
		return err
	}
	keys, err := s.signingKeys(op, false)
	if err != nil {
		return err
	}
	config := s.signConfig(op)

	sigType := packet.SigTypeBinary
	if op.TextMode || op.SigMode == constants.SigModeClear {
		sigType = packet.SigTypeText
	}
	s.emit(status.BeginSigning, "H"+strconv.Itoa(hashID(config.Hash())))

	var out bytes.Buffer
	switch op.SigMode {
	case constants.SigModeDetach:
		var sigs bytes.Buffer
		for _, key := range keys {
			config.SigningKeyId = key.PublicKey.KeyId
			if sigType == packet.SigTypeText {
				err = openpgp.DetachSignText(&sigs, key.Entity, bytes.NewReader(input), config)
			} else {
				err = openpgp.DetachSign(&sigs, key.Entity, bytes.NewReader(input), config)
			}
			if err != nil {
				return s.failure(constants.ErrGeneral, "signing failed: %v", err)
			}
		}
		if err := writeArmored(&out, sigs.Bytes(), op.Armor, constants.PGPSignatureHeader); err != nil {
			return s.failure(constants.ErrGeneral, "armoring failed: %v", err)
		}

	case constants.SigModeClear:
		privs := make([]*packet.PrivateKey, 0, len(keys))
		for _, key := range keys {
			privs = append(privs, key.PrivateKey)
		}
		// The final line ending belongs to the armor, as with gpg.
		text := bytes.TrimSuffix(bytes.TrimSuffix(input, []byte("\n")), []byte("\r"))
		w, err := clearsign.EncodeMulti(&out, privs, config)
		if err == nil {
			err = writeAndClose(w, text)
		}
		if err != nil {
			return s.failure(constants.ErrGeneral, "signing failed: %v", err)
		}

	default:
		sigType = packet.SigTypeBinary
		msg, err := signInline(keys, input, config)
		if err == nil {
			err = writeArmored(&out, msg, op.Armor, constants.PGPMessageHeader)
		}
		if err != nil {
			return s.failure(constants.ErrGeneral, "signing failed: %v", err)
		}
	}
	s.progress("stdin", len(input))

	if op.Output != nil {
		if _, err := op.Output.Write(out.Bytes()); err != nil {
			return s.failure(constants.ErrGeneral, "unable to write signature: %v", err)
		}
	}
	s.sigCreated(op.SigMode, keys, config, sigType)
	return nil
}

// signInline writes a binary signed message with one nested one-pass
// signature per key. The first key owns the outermost layer, so its
// signature packet comes last.
func signInline(keys []openpgp.Key, input []byte, config *packet.Config) ([]byte, error) {
	var msg bytes.Buffer
	sigs := make([]*packet.Signature, len(keys))
	hashes := make([]hash.Hash, len(keys))
	for i, key := range keys {
		pub := key.PublicKey
		lifetime := config.SigLifetime()
		digest := config.Hash()
		if pub.PubKeyAlgo == packet.PubKeyAlgoEd448 && digest.Size() < 64 {
			digest = crypto.SHA512
		}
		sig := &packet.Signature{
			Version:           pub.Version,
			SigType:           packet.SigTypeBinary,
			PubKeyAlgo:        pub.PubKeyAlgo,
			Hash:              digest,
			CreationTime:      config.Now(),
			IssuerKeyId:       &pub.KeyId,
			IssuerFingerprint: pub.Fingerprint,
			Notations:         config.Notations(),
			SigLifetimeSecs:   &lifetime,
		}
		h, err := sig.PrepareSign(config)
		if err != nil {
			return nil, err
		}
		ops := &packet.OnePassSignature{
			Version:    3,
			SigType:    sig.SigType,
			Hash:       sig.Hash,
			PubKeyAlgo: pub.PubKeyAlgo,
			KeyId:      pub.KeyId,
			IsLast:     i == len(keys)-1,
		}
		if pub.Version == 6 {
			ops.Version = 6
			ops.Salt = sig.Salt()
			ops.KeyFingerprint = pub.Fingerprint
		}
		if err := ops.Serialize(&msg); err != nil {
			return nil, err
		}
		sigs[i], hashes[i] = sig, h
	}

	literal, err := packet.SerializeLiteral(nopCloser{&msg}, true, "", 0)
	if err != nil {
		return nil, err
	}
	if err := writeAndClose(literal, input); err != nil {
		return nil, err
	}
	for i := len(keys) - 1; i >= 0; i-- {
		_, _ = hashes[i].Write(input)
		if err := sigs[i].Sign(hashes[i], keys[i].PrivateKey, config); err != nil {
			return nil, err
		}
		if err := sigs[i].Serialize(&msg); err != nil {
			return nil, err
		}
	}
	return msg.Bytes(), nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

func (s *session) sigCreated(mode constants.SigMode, keys []openpgp.Key, config *packet.Config, sigType packet.SignatureType) {
	for _, key := range keys {
		s.emit(status.SigCreated, mode.Letter(), int(key.PublicKey.PubKeyAlgo), hashID(config.Hash()),
			sigClass(sigType), config.Now().Unix(), fingerprint(key.PublicKey))
	}
}

// signConfig returns the profile's signing configuration with the
// operation's notations. Notations without a name are policy URLs, which
// go-crypto cannot write; they are dropped.
func (s *session) signConfig(op *engine.Operation) *packet.Config {
	config := s.eng.cfg.Profile.SignConfig()
	config.Time = s.eng.cfg.Now
	randomize := false
	config.NonDeterministicSignaturesViaNotation = &randomize
	for _, n := range op.Notations {
		if n.Name == "" {
			continue
		}
		config.SignatureNotations = append(config.SignatureNotations, &packet.Notation{
			Name:            n.Name,
			Value:           []byte(n.Value),
			IsCritical:      n.Critical,
			IsHumanReadable: n.HumanReadable,
		})
	}
	return config
}

// signingKeys resolves the operation's signers to unlocked signing keys in
// signer order. Without signers the first usable secret key signs. With
// single set only one signer is supported and every further one is refused.
func (s *session) signingKeys(op *engine.Operation, single bool) ([]openpgp.Key, error) {
	now := s.eng.cfg.Now()
	var entities []*openpgp.Entity
	if len(op.Signers) == 0 {
		for _, e := range s.eng.keys.Entities() {
			if key, ok := e.SigningKey(now); ok && key.PrivateKey != nil && !s.eng.keys.Disabled(fingerprint(e.PrimaryKey)) {
				entities = append(entities, e)
				break
			}
		}
		if len(entities) == 0 {
			s.emit(status.NoSgnr, invalidGeneral)
			return nil, s.failure(constants.ErrNoSeckey, "no default secret key")
		}
	}

	invalid := false
	for i, fpr := range op.Signers {
		if single && i > 0 {
			s.emit(status.InvSgnr, invalidGeneral, fpr)
			invalid = true
			continue
		}
		found := s.eng.keys.Find([]string{fpr}, false)
		reason := -1
		switch {
		case len(found) == 0:
			reason = invalidNoSeckey
		case len(found) > 1:
			reason = invalidAmbiguous
		case found[0].PrivateKey == nil:
			reason = invalidNoSeckey
		default:
			if _, ok := found[0].SigningKey(now); !ok {
				reason = unusableReason(found[0], now, invalidUsage)
			}
		}
		if reason >= 0 {
			s.emit(status.InvSgnr, reason, fpr)
			invalid = true
			continue
		}
		entities = append(entities, found[0])
	}
	if invalid {
		return nil, s.failure(constants.ErrUnusableSeckey, "unusable secret key")
	}

	keys := make([]openpgp.Key, 0, len(entities))
	for _, e := range entities {
		clone, err := cloneEntity(e)
		if err != nil {
			return nil, err
		}
		key, ok := clone.SigningKey(now)
		if !ok || key.PrivateKey == nil {
			s.emit(status.InvSgnr, invalidNoSeckey, fingerprint(e.PrimaryKey))
			return nil, s.failure(constants.ErrUnusableSeckey, "unusable secret key")
		}
		if err := s.unlock(key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// unusableReason explains why e cannot serve, falling back to fallback
// when it is neither revoked nor expired.
func unusableReason(e *openpgp.Entity, now time.Time, fallback int) int {
	selfSig, id := e.PrimarySelfSignature()
	switch {
	case e.Revoked(now) || (id != nil && id.Revoked(now)):
		return invalidRevoked
	case selfSig != nil && (e.PrimaryKey.KeyExpired(selfSig, now) || selfSig.SigExpired(now)):
		return invalidExpired
	}
	return fallback
}

// unlock decrypts the secret part of key, asking for its passphrase up to
// maxPassphraseTries times.
func (s *session) unlock(key openpgp.Key) error {
	priv := key.PrivateKey
	if priv == nil || !priv.Encrypted {
		return nil
	}
	main := keyID(key.Entity.PrimaryKey.KeyId)
	for try := 0; try < maxPassphraseTries; try++ {
		s.emit(status.UserIDHint, main, primaryUID(key.Entity))
		s.emit(status.NeedPassphrase, keyID(priv.KeyId), main, int(priv.PubKeyAlgo), 0)
		pass, err := s.ask(status.GetHidden, "passphrase.enter")
		if err != nil {
			return err
		}
		if pass == "" {
			s.emit(status.MissingPassphrase)
			return s.failure(constants.ErrCanceled, "no passphrase given")
		}
		if err := priv.Decrypt([]byte(pass)); err == nil {
			s.emit(status.GoodPassphrase)
			return nil
		}
		s.emit(status.BadPassphrase, keyID(priv.KeyId))
	}
	return s.failure(constants.ErrBadPassphrase, "bad passphrase")
}

// writeArmored writes data to w, wrapped in an armor block of armorType
// when armored is set.
func writeArmored(w io.Writer, data []byte, armored bool, armorType string) error {
	if !armored {
		_, err := w.Write(data)
		return err
	}
	aw, err := armor.ArmorWriterWithType(w, armorType)
	if err != nil {
		return err
	}
	return writeAndClose(aw, data)
}

func writeAndClose(w io.WriteCloser, data []byte) error {
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
