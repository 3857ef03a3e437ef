package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gpgme-go/gpgme"
	"github.com/gpgme-go/gpgme/constants"
	"github.com/gpgme-go/gpgme/engine/native"
	"github.com/gpgme-go/gpgme/helper"
	"github.com/gpgme-go/gpgme/profile"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var errBadSignature = errors.New("no good signature")

func newListKeysCommand(c *cli) *cobra.Command {
	var secret bool
	cmd := &cobra.Command{
		Use:     "list-keys [PATTERN...]",
		Aliases: []string{"ls"},
		Short:   "List keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			gc, err := c.context()
			if err != nil {
				return err
			}
			keys, err := gc.KeyList(cmd.Context(), args, secret)
			if err != nil {
				return err
			}
			for _, k := range keys {
				printKey(c.out, k)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&secret, "secret", "K", false, "List secret keys")
	return cmd
}

func printKey(w io.Writer, k *gpgme.Key) {
	kind := "pub"
	if k.Secret() {
		kind = "sec"
	}
	var flags []string
	for _, f := range []struct {
		set  bool
		name string
	}{
		{k.Revoked(), "revoked"},
		{k.Expired(), "expired"},
		{k.Disabled(), "disabled"},
		{k.Invalid(), "invalid"},
	} {
		if f.set {
			flags = append(flags, f.name)
		}
	}
	fmt.Fprintf(w, "%s  %s", kind, k.Fingerprint())
	if len(flags) > 0 {
		fmt.Fprintf(w, " [%s]", strings.Join(flags, ", "))
	}
	fmt.Fprintln(w)
	for _, u := range k.UserIDs() {
		fmt.Fprintf(w, "uid  [%s] %s\n", u.Validity(), u.UID())
	}
	for i, s := range k.SubKeys() {
		if i > 0 {
			fmt.Fprintf(w, "sub  %s\n", s.Fingerprint())
		}
	}
}

func newSignCommand(c *cli) *cobra.Command {
	var (
		signers   []string
		detach    bool
		clearsign bool
		output    string
	)
	cmd := &cobra.Command{
		Use:   "sign [FILE]",
		Short: "Sign a file or standard input",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if detach && clearsign {
				return errors.New("--detach and --clear are mutually exclusive")
			}
			mode := constants.SigModeNormal
			switch {
			case detach:
				mode = constants.SigModeDetach
			case clearsign:
				mode = constants.SigModeClear
			}

			gc, err := c.context()
			if err != nil {
				return err
			}
			if err := c.setSigners(cmd, gc, signers); err != nil {
				return err
			}
			return c.withIO(args, output, func(in, out *gpgme.Data) error {
				created, err := gc.Sign(cmd.Context(), in, out, mode)
				for _, s := range created {
					fmt.Fprintf(c.err, "signature made by %s (%s)\n", s.Fingerprint(), s.Type())
				}
				return err
			})
		},
	}
	flags := cmd.Flags()
	flags.StringArrayVarP(&signers, "local-user", "u", nil, "Sign with this key")
	flags.BoolVarP(&detach, "detach", "b", false, "Create a detached signature")
	flags.BoolVar(&clearsign, "clear", false, "Create a clearsigned message")
	flags.StringVarP(&output, "output", "o", "", "Write output to this file")
	return cmd
}

func newVerifyCommand(c *cli) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "verify SIGFILE [DATAFILE]",
		Short: "Verify a signature",
		Long:  "Verify SIGFILE. With DATAFILE, SIGFILE is a detached signature over it.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			gc, err := c.context()
			if err != nil {
				return err
			}
			sigFile, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer sigFile.Close()

			var signed, plain *gpgme.Data
			if len(args) == 2 {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				signed = gpgme.NewDataFile(f)
			} else if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				plain = gpgme.NewDataFile(f)
			}

			sigs, err := gc.Verify(cmd.Context(), gpgme.NewDataFile(sigFile), signed, plain)
			if err != nil {
				return err
			}
			return reportSignatures(c.err, sigs)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the signed content to this file")
	return cmd
}

// reportSignatures prints one line per signature and fails unless one of
// them is good.
func reportSignatures(w io.Writer, sigs []*gpgme.Signature) error {
	good := false
	for _, s := range sigs {
		if s.Status() == nil {
			good = true
			fmt.Fprintf(w, "good signature from %s (validity %s)\n", s.Fingerprint(), s.Validity())
			continue
		}
		fmt.Fprintf(w, "bad signature from %s: %v\n", s.Fingerprint(), s.Status())
	}
	if !good {
		return errBadSignature
	}
	return nil
}

func newEncryptCommand(c *cli) *cobra.Command {
	var (
		recipients []string
		signers    []string
		sign       bool
		output     string
	)
	cmd := &cobra.Command{
		Use:   "encrypt [FILE]",
		Short: "Encrypt a file or standard input",
		Long:  "Encrypt to the given recipients, or symmetrically with a passphrase when none is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gc, err := c.context()
			if err != nil {
				return err
			}
			var keys []*gpgme.Key
			for _, r := range recipients {
				k, err := gc.GetKey(cmd.Context(), r, false)
				if err != nil {
					return errors.Wrapf(err, "recipient %q", r)
				}
				keys = append(keys, k)
			}
			if sign {
				if err := c.setSigners(cmd, gc, signers); err != nil {
					return err
				}
			}
			return c.withIO(args, output, func(in, out *gpgme.Data) error {
				if sign {
					_, err := gc.EncryptSign(cmd.Context(), keys, 0, in, out)
					return err
				}
				return gc.Encrypt(cmd.Context(), keys, 0, in, out)
			})
		},
	}
	flags := cmd.Flags()
	flags.StringArrayVarP(&recipients, "recipient", "r", nil, "Encrypt to this key")
	flags.StringArrayVarP(&signers, "local-user", "u", nil, "Sign with this key")
	flags.BoolVarP(&sign, "sign", "s", false, "Also sign the message")
	flags.StringVarP(&output, "output", "o", "", "Write output to this file")
	return cmd
}

func newDecryptCommand(c *cli) *cobra.Command {
	var (
		verify bool
		output string
	)
	cmd := &cobra.Command{
		Use:   "decrypt [FILE]",
		Short: "Decrypt a file or standard input",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gc, err := c.context()
			if err != nil {
				return err
			}
			var sigs []*gpgme.Signature
			err = c.withIO(args, output, func(in, out *gpgme.Data) error {
				if !verify {
					return gc.Decrypt(cmd.Context(), in, out)
				}
				var err error
				sigs, err = gc.DecryptVerify(cmd.Context(), in, out)
				return err
			})
			if err != nil || !verify {
				return err
			}
			return reportSignatures(c.err, sigs)
		},
	}
	flags := cmd.Flags()
	flags.BoolVar(&verify, "verify", false, "Verify embedded signatures")
	flags.StringVarP(&output, "output", "o", "", "Write output to this file")
	return cmd
}

func newImportCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "import [FILE]",
		Short: "Import keys",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gc, err := c.context()
			if err != nil {
				return err
			}
			in, closeIn, err := c.input(args)
			if err != nil {
				return err
			}
			defer closeIn()
			res, err := gc.Import(cmd.Context(), in)
			if err != nil {
				return err
			}
			for _, imp := range res.Imports {
				if imp.Result != nil {
					fmt.Fprintf(c.err, "key %s: %v\n", imp.Fingerprint, imp.Result)
					continue
				}
				fmt.Fprintf(c.err, "key %s: imported\n", imp.Fingerprint)
			}
			fmt.Fprintf(c.err, "processed: %d imported: %d unchanged: %d\n", res.Considered, res.Imported, res.Unchanged)
			return nil
		},
	}
}

func newExportCommand(c *cli) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export [PATTERN...]",
		Short: "Export public keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			gc, err := c.context()
			if err != nil {
				return err
			}
			out, closeOut, err := c.output(output)
			if err != nil {
				return err
			}
			defer closeOut()
			return gc.Export(cmd.Context(), args, out)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write output to this file")
	return cmd
}

func newDeleteCommand(c *cli) *cobra.Command {
	var secret bool
	cmd := &cobra.Command{
		Use:   "delete PATTERN",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gc, err := c.context()
			if err != nil {
				return err
			}
			key, err := gc.GetKey(cmd.Context(), args[0], false)
			if err != nil {
				return err
			}
			return gc.Delete(cmd.Context(), key, secret)
		},
	}
	cmd.Flags().BoolVar(&secret, "secret", false, "Also delete the secret key")
	return cmd
}

func newTrustCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "trust PATTERN LEVEL",
		Short: "Set the owner trust of a key",
		Long:  "Set the owner trust of a key: 1 unknown, 2 never, 3 marginal, 4 full, 5 ultimate.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := strconv.Atoi(args[1])
			if err != nil {
				return errors.Wrap(err, "invalid trust level")
			}
			gc, err := c.context()
			if err != nil {
				return err
			}
			return helper.SetOwnerTrust(cmd.Context(), gc, args[0], level)
		},
	}
}

func newGenKeyCommand(c *cli) *cobra.Command {
	var security int8
	cmd := &cobra.Command{
		Use:   "gen-key NAME EMAIL",
		Short: "Generate a key (native engine only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.engine()
			if err != nil {
				return err
			}
			ne, ok := e.(*native.Engine)
			if !ok {
				return errors.New("gen-key needs the native engine")
			}
			var pass []byte
			if c.opts.passphraseFile != "" {
				p, err := readPassphrase(c.opts.passphraseFile)
				if err != nil {
					return err
				}
				pass = []byte(p)
			}
			entity, err := ne.GenerateKey(cmd.Context(), args[0], args[1], pass, security)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%X\n", entity.PrimaryKey.Fingerprint)
			return nil
		},
	}
	cmd.Flags().Int8Var(&security, "security", profile.StandardSecurity, "Security level of the key algorithm")
	return cmd
}

func newEngineInfoCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "engine-info",
		Short: "Show the configured engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.engine()
			if err != nil {
				return err
			}
			info := e.Info()
			fmt.Fprintf(c.out, "engine:   %s\nprotocol: %s\npath:     %s\nhomedir:  %s\n", info.Name, info.Protocol, info.Path, info.HomeDir)
			return nil
		},
	}
}

func (c *cli) setSigners(cmd *cobra.Command, gc *gpgme.Context, patterns []string) error {
	var keys []*gpgme.Key
	for _, p := range patterns {
		k, err := gc.GetKey(cmd.Context(), p, true)
		if err != nil {
			return errors.Wrapf(err, "signer %q", p)
		}
		keys = append(keys, k)
	}
	return gc.SetSigners(keys...)
}

// withIO runs fn with the input named by args, or standard input, and the
// output file, or standard output.
func (c *cli) withIO(args []string, output string, fn func(in, out *gpgme.Data) error) error {
	in, closeIn, err := c.input(args)
	if err != nil {
		return err
	}
	defer closeIn()
	out, closeOut, err := c.output(output)
	if err != nil {
		return err
	}
	defer closeOut()
	return fn(in, out)
}

func (c *cli) input(args []string) (*gpgme.Data, func(), error) {
	if len(args) == 0 || args[0] == "-" {
		return gpgme.NewDataReader(c.in), func() {}, nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, nil, err
	}
	return gpgme.NewDataFile(f), func() { f.Close() }, nil
}

func (c *cli) output(path string) (*gpgme.Data, func(), error) {
	if path == "" || path == "-" {
		return gpgme.NewDataWriter(c.out), func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return gpgme.NewDataFile(f), func() { f.Close() }, nil
}

func readPassphrase(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "unable to read passphrase file")
	}
	defer f.Close()
	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", errors.Wrap(err, "unable to read passphrase file")
	}
	return strings.TrimRight(line, "\r\n"), nil
}
