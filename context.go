package gpgme

import (
	"strings"
	"sync/atomic"

	"github.com/gpgme-go/gpgme/constants"
	"github.com/gpgme-go/gpgme/engine"
	"github.com/gpgme-go/gpgme/engine/gpg"
	"github.com/gpgme-go/gpgme/metrics"
)

// config is the configuration of a Context. Operations run on a copy taken
// when they start.
type config struct {
	protocol     constants.Protocol
	armor        bool
	textMode     bool
	includeCerts int
	keyListMode  constants.KeyListMode
	signers      []*Key
	notations    []Notation
	passphraseCb PassphraseFunc
	progressCb   ProgressFunc
}

func defaultConfig() config {
	return config{
		protocol:     constants.ProtocolOpenPGP,
		includeCerts: 1,
		keyListMode:  constants.KeyListModeLocal,
	}
}

// operation builds the engine request carrying this configuration.
func (cfg *config) operation(kind engine.Kind) *engine.Operation {
	op := &engine.Operation{
		Kind:         kind,
		Protocol:     cfg.protocol,
		Armor:        cfg.armor,
		TextMode:     cfg.textMode,
		IncludeCerts: cfg.includeCerts,
		KeyListMode:  cfg.keyListMode,
	}
	for _, k := range cfg.signers {
		op.Signers = append(op.Signers, k.Fingerprint())
	}
	for _, n := range cfg.notations {
		op.Notations = append(op.Notations, engine.Notation{
			Name:          n.Name,
			Value:         n.Value,
			HumanReadable: n.HumanReadable,
			Critical:      n.Critical,
		})
	}
	return op
}

// Context holds the configuration for a sequence of operations against an
// engine. A Context runs at most one operation at a time; concurrent use
// fails with ErrOperationInProgress instead of blocking.
type Context struct {
	engine  engine.Engine
	metrics *metrics.Metrics
	cfg     config
	busy    atomic.Bool
}

// Option configures a Context at construction.
type Option func(*Context) error

// WithEngine selects the engine. The default runs the gpg binary found in
// PATH.
func WithEngine(e engine.Engine) Option {
	return func(c *Context) error {
		if e == nil {
			return invalidValue("nil engine")
		}
		c.engine = e
		return nil
	}
}

func WithProtocol(p constants.Protocol) Option {
	return func(c *Context) error { return c.SetProtocol(p) }
}

func WithArmor(armor bool) Option {
	return func(c *Context) error { return c.SetArmor(armor) }
}

func WithTextMode(textMode bool) Option {
	return func(c *Context) error { return c.SetTextMode(textMode) }
}

func WithPassphraseCallback(fn PassphraseFunc) Option {
	return func(c *Context) error { return c.SetPassphraseCallback(fn) }
}

// WithMetrics records every operation in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Context) error {
		c.metrics = m
		return nil
	}
}

// New creates a Context.
func New(opts ...Option) (*Context, error) {
	c := &Context{cfg: defaultConfig()}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.engine == nil {
		c.engine = gpg.New(gpg.Config{})
	}
	return c, nil
}

// EngineInfo describes the engine the context drives.
func (c *Context) EngineInfo() engine.Info {
	return c.engine.Info()
}

func (c *Context) checkIdle() error {
	if c.busy.Load() {
		return newError(KindOperationInProgress, constants.ErrConflict, "an operation is in progress")
	}
	return nil
}

// begin marks the context busy and snapshots its configuration.
func (c *Context) begin() (*config, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, newError(KindOperationInProgress, constants.ErrConflict, "an operation is in progress")
	}
	cfg := c.cfg
	cfg.signers = append([]*Key(nil), c.cfg.signers...)
	cfg.notations = append([]Notation(nil), c.cfg.notations...)
	return &cfg, nil
}

func (c *Context) end() {
	c.busy.Store(false)
}

func (c *Context) Protocol() constants.Protocol { return c.cfg.protocol }

// SetProtocol selects OpenPGP or CMS.
func (c *Context) SetProtocol(p constants.Protocol) error {
	if err := c.checkIdle(); err != nil {
		return err
	}
	if !p.Valid() {
		return invalidValue("unknown protocol %d", int(p))
	}
	c.cfg.protocol = p
	return nil
}

func (c *Context) Armor() bool { return c.cfg.armor }

// SetArmor enables ASCII armored output.
func (c *Context) SetArmor(armor bool) error {
	if err := c.checkIdle(); err != nil {
		return err
	}
	c.cfg.armor = armor
	return nil
}

func (c *Context) TextMode() bool { return c.cfg.textMode }

// SetTextMode enables canonical text handling of signed data.
func (c *Context) SetTextMode(textMode bool) error {
	if err := c.checkIdle(); err != nil {
		return err
	}
	c.cfg.textMode = textMode
	return nil
}

func (c *Context) IncludeCerts() int { return c.cfg.includeCerts }

// SetIncludeCerts sets how many certificates of the chain CMS signatures
// include: -2 all but the root, -1 all, 0 none, n the first n.
func (c *Context) SetIncludeCerts(n int) error {
	if err := c.checkIdle(); err != nil {
		return err
	}
	if n < -2 {
		return invalidValue("include certs must be at least -2, got %d", n)
	}
	c.cfg.includeCerts = n
	return nil
}

func (c *Context) KeyListMode() constants.KeyListMode { return c.cfg.keyListMode }

// SetKeyListMode sets the key listing flags. Unknown bits are rejected.
func (c *Context) SetKeyListMode(mode constants.KeyListMode) error {
	if err := c.checkIdle(); err != nil {
		return err
	}
	if !mode.Valid() {
		return invalidValue("invalid keylist mode %#x", int(mode))
	}
	c.cfg.keyListMode = mode
	return nil
}

// Signers returns the signing keys in signature order.
func (c *Context) Signers() []*Key {
	return append([]*Key(nil), c.cfg.signers...)
}

// SetSigners replaces the signing keys. Signatures are created in the given
// order.
func (c *Context) SetSigners(keys ...*Key) error {
	if err := c.checkIdle(); err != nil {
		return err
	}
	for i, k := range keys {
		if k == nil || k.Fingerprint() == "" {
			return invalidValue("signer %d is not a listed key", i)
		}
	}
	c.cfg.signers = append([]*Key(nil), keys...)
	return nil
}

// ClearSigners removes all signing keys so the engine default key is used.
func (c *Context) ClearSigners() error {
	return c.SetSigners()
}

// SignatureNotations returns the notations attached to new signatures.
func (c *Context) SignatureNotations() []Notation {
	return append([]Notation(nil), c.cfg.notations...)
}

// AddSignatureNotation attaches a notation to every signature created
// afterwards. An empty name adds a policy URL.
func (c *Context) AddSignatureNotation(n Notation) error {
	if err := c.checkIdle(); err != nil {
		return err
	}
	if n.Value == "" {
		return invalidValue("notation %q has no value", n.Name)
	}
	if n.Name != "" && !strings.Contains(n.Name, "@") {
		return invalidValue("notation name %q must have the form name@domain", n.Name)
	}
	c.cfg.notations = append(c.cfg.notations, n)
	return nil
}

// ClearSignatureNotations removes all signature notations.
func (c *Context) ClearSignatureNotations() error {
	if err := c.checkIdle(); err != nil {
		return err
	}
	c.cfg.notations = nil
	return nil
}

func (c *Context) PassphraseCallback() PassphraseFunc { return c.cfg.passphraseCb }

// SetPassphraseCallback installs fn; nil removes the callback, after which
// passphrase requests cancel the operation.
func (c *Context) SetPassphraseCallback(fn PassphraseFunc) error {
	if err := c.checkIdle(); err != nil {
		return err
	}
	c.cfg.passphraseCb = fn
	return nil
}

func (c *Context) ProgressCallback() ProgressFunc { return c.cfg.progressCb }

// SetProgressCallback installs fn; nil removes the callback.
func (c *Context) SetProgressCallback(fn ProgressFunc) error {
	if err := c.checkIdle(); err != nil {
		return err
	}
	c.cfg.progressCb = fn
	return nil
}
