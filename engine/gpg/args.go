package gpg

import (
	"strconv"

	"github.com/gpgme-go/gpgme/constants"
	"github.com/gpgme-go/gpgme/engine"
	"github.com/pkg/errors"
)

// Descriptor numbers of the extra channels as seen by the child. exec
// assigns ExtraFiles starting at 3.
const (
	statusFD    = 3
	commandFD   = 4
	signatureFD = 5
)

// buildArgs returns the command line of op, without the binary.
func buildArgs(cfg Config, protocol constants.Protocol, op *engine.Operation) ([]string, error) {
	cms := protocol == constants.ProtocolCMS
	args := []string{
		"--status-fd", strconv.Itoa(statusFD),
		"--command-fd", strconv.Itoa(commandFD),
		"--batch",
		"--no-tty",
	}
	if !cms {
		args = append(args, "--pinentry-mode", "loopback")
	}
	if cfg.HomeDir != "" {
		args = append(args, "--homedir", cfg.HomeDir)
	}
	args = append(args, cfg.ExtraArgs...)
	if op.Armor {
		args = append(args, "--armor")
	}
	if op.TextMode && !cms {
		args = append(args, "--textmode")
	}

	switch op.Kind {
	case engine.KindVerify:
		args = append(args, "--verify")
		if op.SignedText != nil {
			return append(args, "--enable-special-filenames", "--", "-&"+strconv.Itoa(signatureFD), "-"), nil
		}
		if op.Output != nil {
			args = append(args, "--output", "-")
		}
		return append(args, "--", "-"), nil

	case engine.KindSign:
		switch op.SigMode {
		case constants.SigModeDetach:
			args = append(args, "--detach-sign")
		case constants.SigModeClear:
			if cms {
				return nil, errors.New("gpg: CMS has no clearsigned mode")
			}
			args = append(args, "--clearsign")
		default:
			args = append(args, "--sign")
		}
		args = append(args, signerArgs(op, cms)...)
		return append(args, "--"), nil

	case engine.KindEncrypt, engine.KindEncryptSign:
		if len(op.Recipients) == 0 {
			if cms {
				return nil, errors.New("gpg: CMS does not support symmetric encryption")
			}
			args = append(args, "--symmetric")
		} else {
			args = append(args, "--encrypt")
		}
		if op.Kind == engine.KindEncryptSign {
			if cms {
				return nil, errors.New("gpg: CMS cannot sign and encrypt in one pass")
			}
			args = append(args, "--sign")
			args = append(args, signerArgs(op, cms)...)
		}
		if op.EncryptFlags&constants.EncryptAlwaysTrust != 0 {
			args = append(args, "--always-trust")
		}
		if op.EncryptFlags&constants.EncryptNoEncryptTo != 0 {
			args = append(args, "--no-encrypt-to")
		}
		for _, r := range op.Recipients {
			args = append(args, "-r", r)
		}
		return append(args, "--"), nil

	case engine.KindDecrypt, engine.KindDecryptVerify:
		return append(args, "--decrypt", "--"), nil

	case engine.KindImport:
		return append(args, "--import"), nil

	case engine.KindExport:
		args = append(args, "--export", "--")
		return append(args, op.Patterns...), nil

	case engine.KindDelete:
		if len(op.Patterns) != 1 {
			return nil, errors.New("gpg: delete takes exactly one key")
		}
		if op.AllowSecret {
			args = append(args, "--yes", "--delete-secret-and-public-key")
		} else {
			args = append(args, "--delete-key")
		}
		return append(args, "--", op.Patterns[0]), nil

	case engine.KindEdit:
		if cms {
			return nil, errors.New("gpg: CMS has no key editor")
		}
		if len(op.Patterns) != 1 {
			return nil, errors.New("gpg: edit takes exactly one key")
		}
		return append(args, "--edit-key", op.Patterns[0]), nil

	case engine.KindCardEdit:
		args = append(args, "--card-edit")
		return append(args, op.Patterns...), nil

	case engine.KindKeyList:
		return append(args, keylistArgs(op, cms)...), nil
	}
	return nil, errors.Errorf("gpg: unsupported operation %s", op.Kind)
}

func signerArgs(op *engine.Operation, cms bool) []string {
	var args []string
	if cms {
		args = append(args, "--include-certs", strconv.Itoa(op.IncludeCerts))
	}
	for _, s := range op.Signers {
		args = append(args, "-u", s)
	}
	for _, n := range op.Notations {
		switch {
		case n.Name == "":
			args = append(args, "--sig-policy-url", n.Value)
		case n.Critical:
			args = append(args, "--sig-notation", "!"+n.Name+"="+n.Value)
		default:
			args = append(args, "--sig-notation", n.Name+"="+n.Value)
		}
	}
	return args
}

func keylistArgs(op *engine.Operation, cms bool) []string {
	// Given twice, --with-fingerprint also prints subkey fingerprints.
	args := []string{"--with-colons", "--fixed-list-mode", "--with-fingerprint", "--with-fingerprint"}
	mode := op.KeyListMode
	if mode.Has(constants.KeyListModeWithSecret) {
		args = append(args, "--with-secret")
	}
	if mode.Has(constants.KeyListModeSigNotations) && !cms {
		args = append(args, "--list-options", "show-notations")
	}
	if mode.Has(constants.KeyListModeValidate) && cms {
		args = append(args, "--with-validation")
	}
	switch {
	case mode.Has(constants.KeyListModeExtern) && mode.Has(constants.KeyListModeLocal) && !cms:
		args = append(args, "--locate-keys")
	case mode.Has(constants.KeyListModeExtern) && !cms:
		args = append(args, "--search-keys")
	case op.Secret:
		args = append(args, "--list-secret-keys")
	case mode.Has(constants.KeyListModeSigs) && !cms:
		args = append(args, "--list-sigs")
	default:
		args = append(args, "--list-keys")
	}
	args = append(args, "--")
	return append(args, op.Patterns...)
}

// inBandExit reports whether gpg's exit code for kind only repeats what the
// status channel already said: 1 for a bad signature and 2 for a missing key
// or an unmatched listing pattern.
func inBandExit(kind engine.Kind, code int) bool {
	if code != 1 && code != 2 {
		return false
	}
	switch kind {
	case engine.KindVerify, engine.KindDecryptVerify, engine.KindKeyList:
		return true
	}
	return false
}
