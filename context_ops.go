package gpgme

import (
	"context"

	"github.com/gpgme-go/gpgme/constants"
	"github.com/gpgme-go/gpgme/engine"
)

// GetKey returns the single key matching pattern, usually a fingerprint.
// Zero matches fail with ErrKeyNotFound, several with ErrAmbiguousKey.
func (c *Context) GetKey(ctx context.Context, pattern string, secret bool) (*Key, error) {
	if pattern == "" {
		return nil, invalidValue("empty key pattern")
	}
	cfg, err := c.begin()
	if err != nil {
		return nil, err
	}
	defer c.end()

	keys, err := c.lookupKeys(ctx, cfg, []string{pattern}, secret)
	if err != nil {
		return nil, err
	}
	return uniqueKey(pattern, keys)
}

// KeyList returns all keys matching any of patterns, or every key when no
// pattern is given.
func (c *Context) KeyList(ctx context.Context, patterns []string, secret bool) ([]*Key, error) {
	cfg, err := c.begin()
	if err != nil {
		return nil, err
	}
	defer c.end()

	return c.lookupKeys(ctx, cfg, patterns, secret)
}

// Verify checks the signatures in sig. For detached signatures signedText
// carries the signed data and plain must be nil; otherwise the signed
// content is written to plain when it is not nil. The verdicts are returned
// in the order the signatures appear in the input.
func (c *Context) Verify(ctx context.Context, sig, signedText, plain *Data) ([]*Signature, error) {
	if sig == nil {
		return nil, invalidValue("missing signature data")
	}
	if signedText != nil && plain != nil {
		return nil, invalidValue("plaintext output is not produced for detached signatures")
	}
	cfg, err := c.begin()
	if err != nil {
		return nil, err
	}
	defer c.end()

	vc := newVerifyCollector()
	op := cfg.operation(engine.KindVerify)
	op.Input = sig
	op.SignedText = readerOf(signedText)
	op.Output = writerOf(plain)

	err = c.run(ctx, cfg, op, vc)
	sigs := vc.signatures()
	if err != nil {
		return nil, annotate(err, func(e *Error) { e.Signatures = sigs })
	}
	return sigs, nil
}

// Sign signs plain with the context signers and writes the result to sig.
func (c *Context) Sign(ctx context.Context, plain, sig *Data, mode constants.SigMode) ([]*NewSignature, error) {
	if plain == nil || sig == nil {
		return nil, invalidValue("sign needs input and output data")
	}
	if !mode.Valid() {
		return nil, invalidValue("unknown signature mode %d", int(mode))
	}
	cfg, err := c.begin()
	if err != nil {
		return nil, err
	}
	defer c.end()

	sc := &signCollector{}
	op := cfg.operation(engine.KindSign)
	op.SigMode = mode
	op.Input = plain
	op.Output = sig

	err = c.run(ctx, cfg, op, sc)
	if err == nil {
		err = sc.missing()
	}
	if err != nil {
		return nil, annotate(err, func(e *Error) {
			e.NewSignatures = sc.created
			e.InvalidSigners = sc.invalidSigners
		})
	}
	return sc.created, nil
}

// Encrypt encrypts plain to recipients. Without recipients the data is
// encrypted symmetrically with a passphrase obtained from the passphrase
// callback.
func (c *Context) Encrypt(ctx context.Context, recipients []*Key, flags constants.EncryptFlag, plain, cipher *Data) error {
	if plain == nil || cipher == nil {
		return invalidValue("encrypt needs input and output data")
	}
	fprs, err := recipientFingerprints(recipients)
	if err != nil {
		return err
	}
	cfg, err := c.begin()
	if err != nil {
		return err
	}
	defer c.end()

	ec := &encryptCollector{}
	op := cfg.operation(engine.KindEncrypt)
	op.Recipients = fprs
	op.EncryptFlags = flags
	op.Input = plain
	op.Output = cipher

	err = c.run(ctx, cfg, op, ec)
	return annotate(err, func(e *Error) { e.InvalidRecipients = ec.invalidRecipients })
}

// EncryptSign encrypts plain to recipients and signs it with the context
// signers in one pass.
func (c *Context) EncryptSign(ctx context.Context, recipients []*Key, flags constants.EncryptFlag, plain, cipher *Data) ([]*NewSignature, error) {
	if plain == nil || cipher == nil {
		return nil, invalidValue("encrypt needs input and output data")
	}
	fprs, err := recipientFingerprints(recipients)
	if err != nil {
		return nil, err
	}
	cfg, err := c.begin()
	if err != nil {
		return nil, err
	}
	defer c.end()

	ec := &encryptCollector{}
	sc := &signCollector{}
	op := cfg.operation(engine.KindEncryptSign)
	op.Recipients = fprs
	op.EncryptFlags = flags
	op.Input = plain
	op.Output = cipher

	err = c.run(ctx, cfg, op, collectors{ec, sc})
	if err == nil {
		err = sc.missing()
	}
	if err != nil {
		return nil, annotate(err, func(e *Error) {
			e.InvalidRecipients = ec.invalidRecipients
			e.InvalidSigners = sc.invalidSigners
			e.NewSignatures = sc.created
		})
	}
	return sc.created, nil
}

// Decrypt decrypts cipher into plain.
func (c *Context) Decrypt(ctx context.Context, cipher, plain *Data) error {
	if cipher == nil || plain == nil {
		return invalidValue("decrypt needs input and output data")
	}
	cfg, err := c.begin()
	if err != nil {
		return err
	}
	defer c.end()

	dc := &decryptCollector{}
	op := cfg.operation(engine.KindDecrypt)
	op.Input = cipher
	op.Output = plain

	err = c.run(ctx, cfg, op, dc)
	if err == nil {
		err = dc.missing()
	}
	return err
}

// DecryptVerify decrypts cipher into plain and verifies the signatures
// embedded in it.
func (c *Context) DecryptVerify(ctx context.Context, cipher, plain *Data) ([]*Signature, error) {
	if cipher == nil || plain == nil {
		return nil, invalidValue("decrypt needs input and output data")
	}
	cfg, err := c.begin()
	if err != nil {
		return nil, err
	}
	defer c.end()

	dc := &decryptCollector{}
	vc := newVerifyCollector()
	op := cfg.operation(engine.KindDecryptVerify)
	op.Input = cipher
	op.Output = plain

	err = c.run(ctx, cfg, op, collectors{dc, vc})
	if err == nil {
		err = dc.missing()
	}
	sigs := vc.signatures()
	if err != nil {
		return nil, annotate(err, func(e *Error) { e.Signatures = sigs })
	}
	return sigs, nil
}

// Import adds the keys in keyData to the engine key store.
func (c *Context) Import(ctx context.Context, keyData *Data) (*ImportResult, error) {
	if keyData == nil {
		return nil, invalidValue("missing key data")
	}
	cfg, err := c.begin()
	if err != nil {
		return nil, err
	}
	defer c.end()

	ic := &importCollector{}
	op := cfg.operation(engine.KindImport)
	op.Input = keyData

	err = c.run(ctx, cfg, op, ic)
	res := ic.importResult()
	if err != nil {
		return nil, annotate(err, func(e *Error) { e.ImportResult = res })
	}
	return res, nil
}

// Export writes the public keys matching patterns to keyData. No pattern
// exports every key.
func (c *Context) Export(ctx context.Context, patterns []string, keyData *Data) error {
	if keyData == nil {
		return invalidValue("missing output data")
	}
	cfg, err := c.begin()
	if err != nil {
		return err
	}
	defer c.end()

	op := cfg.operation(engine.KindExport)
	op.Patterns = patterns
	op.Output = keyData
	return c.run(ctx, cfg, op, collectors{})
}

// ExportKeys exports the given keys.
func (c *Context) ExportKeys(ctx context.Context, keys []*Key, keyData *Data) error {
	fprs, err := recipientFingerprints(keys)
	if err != nil {
		return err
	}
	if len(fprs) == 0 {
		return invalidValue("no keys to export")
	}
	return c.Export(ctx, fprs, keyData)
}

// Delete removes key from the key store. A key with a secret part is only
// removed when allowSecret is set.
func (c *Context) Delete(ctx context.Context, key *Key, allowSecret bool) error {
	if key == nil || key.Fingerprint() == "" {
		return invalidValue("missing key")
	}
	cfg, err := c.begin()
	if err != nil {
		return err
	}
	defer c.end()

	dc := &deleteCollector{}
	op := cfg.operation(engine.KindDelete)
	op.Patterns = []string{key.Fingerprint()}
	op.AllowSecret = allowSecret
	return c.run(ctx, cfg, op, dc)
}

// Edit runs the interactive key editor on key. fn answers the editor's
// prompts; out receives any data the editor produces and may be nil.
func (c *Context) Edit(ctx context.Context, key *Key, fn EditFunc, out *Data) error {
	return c.edit(ctx, engine.KindEdit, key, fn, out)
}

// CardEdit runs the interactive smartcard editor. key may be nil.
func (c *Context) CardEdit(ctx context.Context, key *Key, fn EditFunc, out *Data) error {
	return c.edit(ctx, engine.KindCardEdit, key, fn, out)
}

func (c *Context) edit(ctx context.Context, kind engine.Kind, key *Key, fn EditFunc, out *Data) error {
	if fn == nil {
		return invalidValue("missing edit callback")
	}
	if kind == engine.KindEdit && (key == nil || key.Fingerprint() == "") {
		return invalidValue("missing key")
	}
	cfg, err := c.begin()
	if err != nil {
		return err
	}
	defer c.end()

	op := cfg.operation(kind)
	if key != nil {
		op.Patterns = []string{key.Fingerprint()}
	}
	op.Output = writerOf(out)
	return c.runWithEditor(ctx, cfg, op, collectors{}, fn)
}

func recipientFingerprints(keys []*Key) ([]string, error) {
	fprs := make([]string, 0, len(keys))
	for i, k := range keys {
		if k == nil || k.Fingerprint() == "" {
			return nil, invalidValue("key %d is not a listed key", i)
		}
		fprs = append(fprs, k.Fingerprint())
	}
	return fprs, nil
}
