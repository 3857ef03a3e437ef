package gpg

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/gpgme-go/gpgme/constants"
	"github.com/gpgme-go/gpgme/engine"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tail(args []string, n int) []string {
	if len(args) < n {
		return args
	}
	return args[len(args)-n:]
}

func TestBuildArgsCommon(t *testing.T) {
	args, err := buildArgs(Config{HomeDir: "/tmp/home", ExtraArgs: []string{"--quiet"}},
		constants.ProtocolOpenPGP, &engine.Operation{Kind: engine.KindDecrypt, Armor: true, TextMode: true})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"--status-fd", "3", "--command-fd", "4", "--batch", "--no-tty",
		"--pinentry-mode", "loopback", "--homedir", "/tmp/home", "--quiet",
		"--armor", "--textmode", "--decrypt", "--",
	}, args)

	args, err = buildArgs(Config{}, constants.ProtocolCMS, &engine.Operation{Kind: engine.KindDecrypt, TextMode: true})
	require.NoError(t, err)
	assert.NotContains(t, args, "--pinentry-mode")
	assert.NotContains(t, args, "--textmode")
}

func TestBuildArgsVerify(t *testing.T) {
	args, err := buildArgs(Config{}, constants.ProtocolOpenPGP, &engine.Operation{
		Kind:       engine.KindVerify,
		Input:      strings.NewReader("sig"),
		SignedText: strings.NewReader("text"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"--verify", "--enable-special-filenames", "--", "-&5", "-"}, tail(args, 5))

	args, err = buildArgs(Config{}, constants.ProtocolOpenPGP, &engine.Operation{
		Kind:   engine.KindVerify,
		Output: &bytes.Buffer{},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"--verify", "--output", "-", "--", "-"}, tail(args, 5))
}

func TestBuildArgsSign(t *testing.T) {
	op := &engine.Operation{
		Kind:    engine.KindSign,
		SigMode: constants.SigModeClear,
		Signers: []string{"AAAA", "BBBB"},
		Notations: []engine.Notation{
			{Name: "test@example.org", Value: "1"},
			{Name: "crit@example.org", Value: "2", Critical: true},
			{Value: "https://example.org/policy"},
		},
	}
	args, err := buildArgs(Config{}, constants.ProtocolOpenPGP, op)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"--clearsign", "-u", "AAAA", "-u", "BBBB",
		"--sig-notation", "test@example.org=1",
		"--sig-notation", "!crit@example.org=2",
		"--sig-policy-url", "https://example.org/policy",
		"--",
	}, tail(args, 12))

	_, err = buildArgs(Config{}, constants.ProtocolCMS, op)
	assert.Error(t, err)

	op = &engine.Operation{Kind: engine.KindSign, SigMode: constants.SigModeDetach, IncludeCerts: 2}
	args, err = buildArgs(Config{}, constants.ProtocolCMS, op)
	require.NoError(t, err)
	assert.Equal(t, []string{"--detach-sign", "--include-certs", "2", "--"}, tail(args, 4))
}

func TestBuildArgsEncrypt(t *testing.T) {
	args, err := buildArgs(Config{}, constants.ProtocolOpenPGP, &engine.Operation{
		Kind:         engine.KindEncryptSign,
		Recipients:   []string{"R1", "R2"},
		Signers:      []string{"S1"},
		EncryptFlags: constants.EncryptAlwaysTrust | constants.EncryptNoEncryptTo,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"--encrypt", "--sign", "-u", "S1", "--always-trust", "--no-encrypt-to",
		"-r", "R1", "-r", "R2", "--",
	}, tail(args, 11))

	args, err = buildArgs(Config{}, constants.ProtocolOpenPGP, &engine.Operation{Kind: engine.KindEncrypt})
	require.NoError(t, err)
	assert.Equal(t, []string{"--symmetric", "--"}, tail(args, 2))

	_, err = buildArgs(Config{}, constants.ProtocolCMS, &engine.Operation{Kind: engine.KindEncrypt})
	assert.Error(t, err)
}

func TestBuildArgsKeyManagement(t *testing.T) {
	args, err := buildArgs(Config{}, constants.ProtocolOpenPGP, &engine.Operation{
		Kind: engine.KindDelete, Patterns: []string{"FPR"}, AllowSecret: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"--yes", "--delete-secret-and-public-key", "--", "FPR"}, tail(args, 4))

	_, err = buildArgs(Config{}, constants.ProtocolOpenPGP, &engine.Operation{Kind: engine.KindDelete})
	assert.Error(t, err)

	args, err = buildArgs(Config{}, constants.ProtocolOpenPGP, &engine.Operation{
		Kind: engine.KindExport, Patterns: []string{"alice", "bob"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"--export", "--", "alice", "bob"}, tail(args, 4))

	args, err = buildArgs(Config{}, constants.ProtocolOpenPGP, &engine.Operation{
		Kind: engine.KindEdit, Patterns: []string{"FPR"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"--edit-key", "FPR"}, tail(args, 2))

	_, err = buildArgs(Config{}, constants.ProtocolCMS, &engine.Operation{
		Kind: engine.KindEdit, Patterns: []string{"FPR"},
	})
	assert.Error(t, err)
}

func TestBuildArgsKeyList(t *testing.T) {
	args, err := buildArgs(Config{}, constants.ProtocolOpenPGP, &engine.Operation{
		Kind:        engine.KindKeyList,
		KeyListMode: constants.KeyListModeLocal | constants.KeyListModeSigs | constants.KeyListModeSigNotations,
		Patterns:    []string{"alice"},
	})
	require.NoError(t, err)
	assert.Contains(t, args, "--with-colons")
	withFpr := 0
	for _, a := range args {
		if a == "--with-fingerprint" {
			withFpr++
		}
	}
	assert.Equal(t, 2, withFpr)
	assert.Equal(t, []string{"--list-options", "show-notations", "--list-sigs", "--", "alice"}, tail(args, 5))

	args, err = buildArgs(Config{}, constants.ProtocolOpenPGP, &engine.Operation{
		Kind:        engine.KindKeyList,
		KeyListMode: constants.KeyListModeLocal,
		Secret:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"--list-secret-keys", "--"}, tail(args, 2))

	args, err = buildArgs(Config{}, constants.ProtocolOpenPGP, &engine.Operation{
		Kind:        engine.KindKeyList,
		KeyListMode: constants.KeyListModeLocal | constants.KeyListModeExtern,
	})
	require.NoError(t, err)
	assert.Contains(t, args, "--locate-keys")

	args, err = buildArgs(Config{}, constants.ProtocolCMS, &engine.Operation{
		Kind:        engine.KindKeyList,
		KeyListMode: constants.KeyListModeLocal | constants.KeyListModeValidate,
	})
	require.NoError(t, err)
	assert.Contains(t, args, "--with-validation")
	assert.Contains(t, args, "--list-keys")
}

func TestInBandExit(t *testing.T) {
	assert.True(t, inBandExit(engine.KindVerify, 1))
	assert.True(t, inBandExit(engine.KindKeyList, 2))
	assert.True(t, inBandExit(engine.KindDecryptVerify, 2))
	assert.False(t, inBandExit(engine.KindVerify, 3))
	assert.False(t, inBandExit(engine.KindSign, 2))
	assert.False(t, inBandExit(engine.KindDecrypt, 1))
}

func TestNewSessionMissingBinary(t *testing.T) {
	e := New(Config{Path: "/nonexistent/gpg-binary"})
	_, err := e.NewSession(constants.ProtocolOpenPGP)
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrUnavailable))

	_, err = e.NewSession(constants.Protocol(7))
	assert.True(t, errors.Is(err, engine.ErrUnavailable))
}

func TestConfigEnviron(t *testing.T) {
	assert.Nil(t, Config{}.environ())
	env := Config{Env: []string{"GNUPGHOME=/x"}}.environ()
	assert.Equal(t, "GNUPGHOME=/x", env[len(env)-1])
}

func TestTailBuffer(t *testing.T) {
	var b tailBuffer
	_, _ = b.Write([]byte(strings.Repeat("a", maxStderr)))
	_, _ = b.Write([]byte("tail\n"))
	assert.Len(t, b.buf, maxStderr)
	assert.True(t, strings.HasSuffix(b.String(), "tail"))
}

// TestSessionImportGarbage runs a real gpg when one is installed.
func TestSessionImportGarbage(t *testing.T) {
	if _, err := exec.LookPath(DefaultGPG); err != nil {
		t.Skip("gpg not installed")
	}
	e := New(Config{HomeDir: t.TempDir()})
	s, err := e.NewSession(constants.ProtocolOpenPGP)
	require.NoError(t, err)

	op := &engine.Operation{Kind: engine.KindImport, Input: strings.NewReader("not a key\n")}
	require.NoError(t, s.Start(context.Background(), op))
	var keywords []string
	for {
		ev, err := s.ReadEvent()
		if err != nil {
			break
		}
		keywords = append(keywords, string(ev.Keyword))
	}
	_ = s.Close()
	assert.True(t, contains(keywords, "IMPORT_RES") || contains(keywords, "NODATA"), "keywords: %v", keywords)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
