// Package native is an in-process OpenPGP engine built on go-crypto. It
// speaks the gpg status protocol over an in-memory pipe, so a Context
// drives it exactly like a gpg child process. CMS is not supported.
package native

import (
	"context"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/containerd/log"
	"github.com/gpgme-go/gpgme/constants"
	"github.com/gpgme-go/gpgme/engine"
	"github.com/gpgme-go/gpgme/profile"
	"github.com/pkg/errors"
)

// Config of a native engine.
type Config struct {
	// HomeDir holds the keyring and trust database. Empty keeps keys in
	// memory only.
	HomeDir string
	// Profile selects algorithms for new signatures, messages and keys.
	// Nil means profile.Default().
	Profile *profile.Custom
	// Now is the clock used for signature creation and expiry checks.
	Now func() time.Time
}

// Engine runs operations against its own keystore.
type Engine struct {
	cfg  Config
	keys *Keystore
}

// New opens the keystore in cfg.HomeDir and returns an engine using it.
func New(cfg Config) (*Engine, error) {
	if cfg.Profile == nil {
		cfg.Profile = profile.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	keys, err := OpenKeystore(cfg.HomeDir)
	if err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, keys: keys}, nil
}

// Keystore returns the keys the engine operates on.
func (e *Engine) Keystore() *Keystore {
	return e.keys
}

func (e *Engine) NewSession(p constants.Protocol) (engine.Session, error) {
	if p != constants.ProtocolOpenPGP {
		return nil, errors.Wrapf(engine.ErrUnavailable, "native: protocol %s is not supported", p)
	}
	return newSession(e), nil
}

func (e *Engine) Info() engine.Info {
	return engine.Info{
		Name:     "native",
		Protocol: constants.ProtocolOpenPGP,
		HomeDir:  e.cfg.HomeDir,
	}
}

// GenerateKey creates a key pair for "name <email>" with the profile's key
// algorithm at the given security level and adds it to the keystore. A
// non-empty passphrase protects the secret keys.
func (e *Engine) GenerateKey(ctx context.Context, name, email string, passphrase []byte, securityLevel int8) (*openpgp.Entity, error) {
	config := e.cfg.Profile.KeyGenerationConfig(securityLevel)
	config.Time = e.cfg.Now
	entity, err := openpgp.NewEntity(name, "", email, config)
	if err != nil {
		return nil, errors.Wrap(err, "native: unable to generate key")
	}
	if len(passphrase) > 0 {
		if err := entity.EncryptPrivateKeys(passphrase, e.cfg.Profile.KeyEncryptionConfig()); err != nil {
			return nil, errors.Wrap(err, "native: unable to protect key")
		}
	}
	if _, err := e.keys.Add(entity); err != nil {
		return nil, err
	}
	log.G(ctx).WithFields(log.Fields{
		"fingerprint": fingerprint(entity.PrimaryKey),
		"algorithm":   int(entity.PrimaryKey.PubKeyAlgo),
	}).Debug("native: generated key")
	return entity, nil
}
