package native

import (
	"bytes"
	"io"

	"github.com/ProtonMail/go-crypto/openpgp"
	pgperrors "github.com/ProtonMail/go-crypto/openpgp/errors"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/gpgme-go/gpgme/armor"
	"github.com/gpgme-go/gpgme/constants"
	"github.com/gpgme-go/gpgme/engine"
	"github.com/gpgme-go/gpgme/engine/status"
	"github.com/pkg/errors"
)

// mdcMethod is the BEGIN_ENCRYPTION method of integrity protected data.
const mdcMethod = 2

func (s *session) encrypt(op *engine.Operation) error {
	input, err := readInput(op.Input)
	if err != nil {
		return err
	}
	config := s.eng.cfg.Profile.EncryptionConfig()
	config.Time = s.eng.cfg.Now
	hints := &openpgp.FileHints{IsBinary: !op.TextMode, ModTime: s.eng.cfg.Now()}

	if len(op.Recipients) == 0 {
		if op.Kind == engine.KindEncryptSign {
			return s.failure(constants.ErrNotImplemented, "symmetric encryption cannot be signed")
		}
		return s.encryptSymmetric(op, input, config, hints)
	}

	to, err := s.recipients(op)
	if err != nil {
		return err
	}
	var signer []openpgp.Key
	if op.Kind == engine.KindEncryptSign {
		if signer, err = s.signingKeys(op, true); err != nil {
			return err
		}
		sc := s.signConfig(op)
		config.SignatureNotations = sc.SignatureNotations
		config.NonDeterministicSignaturesViaNotation = sc.NonDeterministicSignaturesViaNotation
		config.SigningKeyId = signer[0].PublicKey.KeyId
	}

	var signed *openpgp.Entity
	if len(signer) > 0 {
		signed = signer[0].Entity
	}
	s.emit(status.BeginEncryption, mdcMethod, int(config.Cipher()))
	var msg bytes.Buffer
	var w io.WriteCloser
	if op.TextMode {
		w, err = openpgp.EncryptText(&msg, to, signed, hints, config)
	} else {
		w, err = openpgp.Encrypt(&msg, to, signed, hints, config)
	}
	if err == nil {
		err = writeAndClose(w, input)
	}
	if err != nil {
		return s.failure(constants.ErrGeneral, "encryption failed: %v", err)
	}
	if err := s.writeMessage(op, msg.Bytes()); err != nil {
		return err
	}
	s.progress("stdin", len(input))
	s.emit(status.EndEncryption)

	if len(signer) > 0 {
		sigType := packet.SigTypeBinary
		if op.TextMode {
			sigType = packet.SigTypeText
		}
		s.sigCreated(constants.SigModeNormal, signer, config, sigType)
	}
	return nil
}

func (s *session) encryptSymmetric(op *engine.Operation, input []byte, config *packet.Config, hints *openpgp.FileHints) error {
	s.emit(status.NeedPassphraseSym, int(config.Cipher()), 3, hashID(config.Hash()))
	pass, err := s.ask(status.GetHidden, "passphrase.enter")
	if err != nil {
		return err
	}
	if pass == "" {
		s.emit(status.MissingPassphrase)
		return s.failure(constants.ErrCanceled, "no passphrase given")
	}
	s.emit(status.BeginEncryption, mdcMethod, int(config.Cipher()))
	var msg bytes.Buffer
	w, err := openpgp.SymmetricallyEncrypt(&msg, []byte(pass), hints, config)
	if err == nil {
		err = writeAndClose(w, input)
	}
	if err != nil {
		return s.failure(constants.ErrGeneral, "encryption failed: %v", err)
	}
	if err := s.writeMessage(op, msg.Bytes()); err != nil {
		return err
	}
	s.emit(status.EndEncryption)
	return nil
}

func (s *session) writeMessage(op *engine.Operation, msg []byte) error {
	if op.Output == nil {
		return nil
	}
	if err := writeArmored(op.Output, msg, op.Armor, constants.PGPMessageHeader); err != nil {
		return s.failure(constants.ErrGeneral, "unable to write ciphertext: %v", err)
	}
	return nil
}

// recipients resolves the operation's recipients. Every unusable one is
// reported before the operation fails.
func (s *session) recipients(op *engine.Operation) ([]*openpgp.Entity, error) {
	now := s.eng.cfg.Now()
	var to []*openpgp.Entity
	invalid := false
	for _, fpr := range op.Recipients {
		found := s.eng.keys.Find([]string{fpr}, false)
		reason := -1
		switch {
		case len(found) == 0:
			reason = invalidNoPubkey
		case len(found) > 1:
			reason = invalidAmbiguous
		case s.eng.keys.Disabled(fingerprint(found[0].PrimaryKey)):
			reason = invalidGeneral
		default:
			if _, ok := found[0].EncryptionKey(now); !ok {
				reason = unusableReason(found[0], now, invalidUsage)
			}
		}
		if reason >= 0 {
			s.emit(status.InvRecp, reason, fpr)
			invalid = true
			continue
		}
		s.emit(status.KeyConsidered, fingerprint(found[0].PrimaryKey), 0)
		to = append(to, found[0])
	}
	if invalid {
		return nil, s.failure(constants.ErrUnusablePubkey, "unusable public key")
	}
	return to, nil
}

type encryptedKey struct {
	id   uint64
	algo packet.PublicKeyAlgorithm
}

// scanEncrypted lists the session key packets in front of the encrypted
// data. encrypted is false when the message holds no encrypted data.
func scanEncrypted(body []byte) (keys []encryptedKey, symmetric *packet.SymmetricKeyEncrypted, encrypted bool, err error) {
	packets := packet.NewReader(bytes.NewReader(body))
	for {
		p, err := packets.Next()
		if err != nil {
			return keys, symmetric, false, err
		}
		switch p := p.(type) {
		case *packet.EncryptedKey:
			keys = append(keys, encryptedKey{id: p.KeyId, algo: p.Algo})
		case *packet.SymmetricKeyEncrypted:
			if symmetric == nil {
				symmetric = p
			}
		case *packet.SymmetricallyEncrypted, *packet.AEADEncrypted:
			return keys, symmetric, true, nil
		case *packet.Compressed, *packet.LiteralData, *packet.OnePassSignature:
			return keys, symmetric, false, nil
		}
	}
}

func (s *session) decrypt(op *engine.Operation) error {
	input, err := readInput(op.Input)
	if err != nil {
		return err
	}
	body, err := armor.Dearmor(input)
	if err != nil || len(body) == 0 {
		return s.noData(1)
	}
	encKeys, symmetric, encrypted, err := scanEncrypted(body)
	switch {
	case err != nil && len(encKeys) == 0 && symmetric == nil:
		return s.noData(3)
	case err == nil && !encrypted:
		return s.noData(2)
	}
	for _, k := range encKeys {
		s.emit(status.EncTo, keyID(k.id), int(k.algo), 0)
	}

	// Secret keys are unlocked in copies; public keys are only read.
	var keyring openpgp.EntityList
	for _, e := range s.eng.keys.Entities() {
		if e.PrivateKey == nil {
			keyring = append(keyring, e)
			continue
		}
		clone, err := cloneEntity(e)
		if err != nil {
			return err
		}
		keyring = append(keyring, clone)
	}

	config := s.eng.cfg.Profile.EncryptionConfig()
	config.Time = s.eng.cfg.Now
	var (
		promptErr error
		symTries  int
	)
	prompt := func(candidates []openpgp.Key, sym bool) ([]byte, error) {
		if len(candidates) > 0 {
			if promptErr = s.unlock(candidates[0]); promptErr != nil {
				return nil, promptErr
			}
			return nil, nil
		}
		if symTries > 0 {
			s.emit(status.BadPassphrase, keyID(0))
		}
		if symTries == maxPassphraseTries {
			promptErr = s.failure(constants.ErrBadPassphrase, "bad passphrase")
			return nil, promptErr
		}
		symTries++
		var cipher packet.CipherFunction
		if symmetric != nil {
			cipher = symmetric.CipherFunc
		}
		s.emit(status.NeedPassphraseSym, int(cipher), 3, 0)
		pass, err := s.ask(status.GetHidden, "passphrase.enter")
		if err != nil {
			promptErr = err
			return nil, err
		}
		if pass == "" {
			s.emit(status.MissingPassphrase)
			promptErr = s.failure(constants.ErrCanceled, "no passphrase given")
			return nil, promptErr
		}
		return []byte(pass), nil
	}

	s.emit(status.BeginDecryption)
	md, err := openpgp.ReadMessage(bytes.NewReader(body), keyring, prompt, config)
	switch {
	case promptErr != nil:
		return promptErr
	case errors.Is(err, pgperrors.ErrKeyIncorrect) && len(encKeys) > 0:
		for _, k := range encKeys {
			s.emit(status.NoSeckey, keyID(k.id))
		}
		s.emit(status.DecryptionFailed)
		s.emit(status.EndDecryption)
		return s.failure(constants.ErrNoSeckey, "decryption failed: no secret key")
	case err != nil:
		s.emit(status.DecryptionFailed)
		s.emit(status.EndDecryption)
		return s.failure(constants.ErrDecryptFailed, "decryption failed: %v", err)
	}
	if symTries > 0 {
		s.emit(status.GoodPassphrase)
	}
	s.emit(status.DecryptionInfo, mdcMethod, int(config.Cipher()))

	plain, err := io.ReadAll(md.UnverifiedBody)
	if err != nil {
		s.emit(status.DecryptionFailed)
		s.emit(status.EndDecryption)
		return s.failure(constants.ErrDecryptFailed, "decryption failed: %v", err)
	}
	if md.LiteralData != nil {
		s.emit(status.Plaintext, 62, md.LiteralData.Time, status.Escape(md.LiteralData.FileName))
	}
	if op.Output != nil {
		if _, err := op.Output.Write(plain); err != nil {
			return s.failure(constants.ErrGeneral, "unable to write plaintext: %v", err)
		}
	}
	s.emit(status.GoodMDC)
	s.emit(status.DecryptionOkay)
	s.emit(status.EndDecryption)

	if op.Kind == engine.KindDecryptVerify && md.IsSigned {
		s.reportEmbedded(md)
	}
	return nil
}

// reportEmbedded reports the signatures of a decrypted message.
func (s *session) reportEmbedded(md *openpgp.MessageDetails) {
	if md.Signature != nil && md.SignedBy != nil {
		s.emit(status.NewSig)
		s.report(md.SignedBy, md.Signature, md.SignatureError)
	}
	for _, sig := range md.UnverifiedSignatures {
		s.emit(status.NewSig)
		s.errSig(sig, errSigNoPubkey)
	}
	if md.Signature == nil && len(md.UnverifiedSignatures) == 0 {
		s.emit(status.NewSig)
		s.emit(status.ErrSig, keyID(md.SignedByKeyId), 0, 0, "00", 0, errSigUnsupported, "-")
	}
}
