// Command gpgmectl runs gpgme operations from the command line.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/containerd/log"
	"github.com/gpgme-go/gpgme"
	"github.com/gpgme-go/gpgme/constants"
	"github.com/gpgme-go/gpgme/engine"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile     string
	protocol       string
	passphraseFile string
	cfg            Config
}

// cli carries the streams and the lazily built context of one invocation.
type cli struct {
	in       io.Reader
	out, err io.Writer
	opts     rootOptions
	eng      engine.Engine
}

func newRootCommand(c *cli) *cobra.Command {
	c.opts.cfg = defaultConfig()

	cmd := &cobra.Command{
		Use:           "gpgmectl [OPTIONS] COMMAND",
		Short:         "Sign, verify, encrypt and decrypt through a crypto engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.opts.configFile != "" {
				if err := loadConfigFile(c.opts.configFile, &c.opts.cfg, cmd.Flags()); err != nil {
					return err
				}
			}
			logrus.SetOutput(c.err)
			return log.SetLevel(c.opts.cfg.LogLevel)
		},
	}
	cmd.SetIn(c.in)
	cmd.SetOut(c.out)
	cmd.SetErr(c.err)

	flags := cmd.PersistentFlags()
	flags.StringVarP(&c.opts.configFile, "config", "c", "", "Configuration file (TOML)")
	flags.StringVar(&c.opts.protocol, "protocol", "openpgp", `Protocol ("openpgp" or "cms")`)
	flags.StringVar(&c.opts.passphraseFile, "passphrase-file", "", "Read the passphrase from the first line of this file")
	installConfigFlags(&c.opts.cfg, flags)

	cmd.AddCommand(
		newListKeysCommand(c),
		newSignCommand(c),
		newVerifyCommand(c),
		newEncryptCommand(c),
		newDecryptCommand(c),
		newImportCommand(c),
		newExportCommand(c),
		newDeleteCommand(c),
		newTrustCommand(c),
		newGenKeyCommand(c),
		newEngineInfoCommand(c),
	)
	return cmd
}

// engine returns the configured engine, building it on first use.
func (c *cli) engine() (engine.Engine, error) {
	if c.eng == nil {
		e, err := newEngine(c.opts.cfg)
		if err != nil {
			return nil, err
		}
		c.eng = e
	}
	return c.eng, nil
}

// context builds a gpgme context from the global options.
func (c *cli) context() (*gpgme.Context, error) {
	e, err := c.engine()
	if err != nil {
		return nil, err
	}
	var protocol constants.Protocol
	switch c.opts.protocol {
	case "openpgp", "":
		protocol = constants.ProtocolOpenPGP
	case "cms":
		protocol = constants.ProtocolCMS
	default:
		return nil, errors.Errorf("unknown protocol %q", c.opts.protocol)
	}

	opts := []gpgme.Option{
		gpgme.WithEngine(e),
		gpgme.WithProtocol(protocol),
		gpgme.WithArmor(c.opts.cfg.Armor),
	}
	if c.opts.passphraseFile != "" {
		pass, err := readPassphrase(c.opts.passphraseFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, gpgme.WithPassphraseCallback(func(hint, _ string, prevBad bool) (string, error) {
			if prevBad {
				return "", gpgme.ErrDeclined
			}
			log.L.WithField("hint", hint).Debug("answering passphrase request from file")
			return pass, nil
		}))
	}
	return gpgme.New(opts...)
}

func main() {
	c := &cli{in: os.Stdin, out: os.Stdout, err: os.Stderr}
	if err := newRootCommand(c).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "gpgmectl: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps failures to gpg-like exit statuses: 1 for bad signatures,
// 2 for everything else.
func exitCode(err error) int {
	if errors.Is(err, errBadSignature) {
		return 1
	}
	return 2
}
