// Package gpg runs operations through the gpg and gpgsm binaries. Each
// session is one child process with the status channel on descriptor 3,
// the command channel on descriptor 4 and, for detached verification, the
// signature on descriptor 5.
package gpg

import (
	"os"
	"os/exec"

	"github.com/gpgme-go/gpgme/constants"
	"github.com/gpgme-go/gpgme/engine"
	"github.com/pkg/errors"
)

// Default binary names, resolved through PATH.
const (
	DefaultGPG   = "gpg"
	DefaultGPGSM = "gpgsm"
)

// Config selects the binaries and their environment.
type Config struct {
	// Path is the gpg binary used for OpenPGP.
	Path string
	// GPGSMPath is the gpgsm binary used for CMS.
	GPGSMPath string
	// HomeDir is passed as --homedir when set.
	HomeDir string
	// ExtraArgs are inserted after the common options.
	ExtraArgs []string
	// Env is appended to the environment of the current process.
	Env []string
}

// Engine spawns gpg or gpgsm per operation.
type Engine struct {
	cfg Config
}

// New returns an engine for cfg. Binaries are only looked up when a
// session is created.
func New(cfg Config) *Engine {
	if cfg.Path == "" {
		cfg.Path = DefaultGPG
	}
	if cfg.GPGSMPath == "" {
		cfg.GPGSMPath = DefaultGPGSM
	}
	return &Engine{cfg: cfg}
}

func (e *Engine) binary(p constants.Protocol) string {
	if p == constants.ProtocolCMS {
		return e.cfg.GPGSMPath
	}
	return e.cfg.Path
}

// NewSession resolves the binary for p. A missing binary is reported as
// engine.ErrUnavailable.
func (e *Engine) NewSession(p constants.Protocol) (engine.Session, error) {
	if !p.Valid() {
		return nil, errors.Wrapf(engine.ErrUnavailable, "gpg: unknown protocol %d", int(p))
	}
	path, err := exec.LookPath(e.binary(p))
	if err != nil {
		return nil, errors.Wrapf(engine.ErrUnavailable, "gpg: %v", err)
	}
	return &session{cfg: e.cfg, protocol: p, path: path}, nil
}

func (e *Engine) Info() engine.Info {
	info := engine.Info{
		Name:     "gpg",
		Protocol: constants.ProtocolOpenPGP,
		Path:     e.cfg.Path,
		HomeDir:  e.cfg.HomeDir,
	}
	if path, err := exec.LookPath(e.cfg.Path); err == nil {
		info.Path = path
	}
	return info
}

// environ returns the child environment, nil meaning inherit.
func (c Config) environ() []string {
	if len(c.Env) == 0 {
		return nil
	}
	return append(os.Environ(), c.Env...)
}
