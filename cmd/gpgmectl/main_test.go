package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type result struct {
	out, err string
}

func run(t *testing.T, stdin string, args ...string) (result, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	c := &cli{in: strings.NewReader(stdin), out: &out, err: &errOut}
	cmd := newRootCommand(c)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return result{out: out.String(), err: errOut.String()}, err
}

func nativeArgs(home string, args ...string) []string {
	return append([]string{"--engine", "native", "--homedir", home}, args...)
}

func TestNativeWorkflow(t *testing.T) {
	home := t.TempDir()
	dir := t.TempDir()

	res, err := run(t, "", nativeArgs(home, "gen-key", "Alpha", "alpha@example.net")...)
	require.NoError(t, err)
	fpr := strings.TrimSpace(res.out)
	assert.Len(t, fpr, 40)

	res, err = run(t, "", nativeArgs(home, "list-keys")...)
	require.NoError(t, err)
	assert.Contains(t, res.out, "pub  "+fpr)
	assert.Contains(t, res.out, "Alpha <alpha@example.net>")

	res, err = run(t, "", nativeArgs(home, "list-keys", "--secret", "nobody")...)
	require.NoError(t, err)
	assert.Empty(t, res.out)

	signed := filepath.Join(dir, "msg.asc")
	res, err = run(t, "Hello World\n", nativeArgs(home, "sign", "--clear", "-u", fpr, "-o", signed)...)
	require.NoError(t, err)
	assert.Contains(t, res.err, "signature made by "+fpr)

	plain := filepath.Join(dir, "msg.txt")
	res, err = run(t, "", nativeArgs(home, "verify", signed, "-o", plain)...)
	require.NoError(t, err)
	assert.Contains(t, res.err, "good signature from "+fpr)
	got, err := os.ReadFile(plain)
	require.NoError(t, err)
	assert.Equal(t, "Hello World\n", string(got))

	res, err = run(t, "secret text", nativeArgs(home, "encrypt", "-a", "-r", "alpha@example.net", "--sign", "-u", fpr)...)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.out, "-----BEGIN PGP MESSAGE-----"))

	res, err = run(t, res.out, nativeArgs(home, "decrypt", "--verify")...)
	require.NoError(t, err)
	assert.Equal(t, "secret text", res.out)
	assert.Contains(t, res.err, "good signature from "+fpr)

	_, err = run(t, "", nativeArgs(home, "trust", fpr, "5")...)
	require.NoError(t, err)
	res, err = run(t, "", nativeArgs(home, "list-keys", fpr)...)
	require.NoError(t, err)
	assert.Contains(t, res.out, "uid  [ultimate]")

	res, err = run(t, "", nativeArgs(home, "export", "-a", fpr)...)
	require.NoError(t, err)
	exported := res.out
	assert.Contains(t, exported, "-----BEGIN PGP PUBLIC KEY BLOCK-----")

	_, err = run(t, "", nativeArgs(home, "delete", fpr)...)
	assert.Error(t, err)
	_, err = run(t, "", nativeArgs(home, "delete", "--secret", fpr)...)
	require.NoError(t, err)

	res, err = run(t, exported, nativeArgs(home, "import")...)
	require.NoError(t, err)
	assert.Contains(t, res.err, "key "+fpr+": imported")
	assert.Contains(t, res.err, "processed: 1 imported: 1")
}

func TestVerifyBadSignatureExitCode(t *testing.T) {
	home := t.TempDir()
	dir := t.TempDir()
	res, err := run(t, "", nativeArgs(home, "gen-key", "Alpha", "alpha@example.net")...)
	require.NoError(t, err)
	fpr := strings.TrimSpace(res.out)

	data := filepath.Join(dir, "data")
	sig := filepath.Join(dir, "data.sig")
	require.NoError(t, os.WriteFile(data, []byte("payload"), 0o600))
	_, err = run(t, "", nativeArgs(home, "sign", "-b", "-u", fpr, "-o", sig, data)...)
	require.NoError(t, err)

	_, err = run(t, "", nativeArgs(home, "verify", sig, data)...)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(data, []byte("tampered"), 0o600))
	res, err = run(t, "", nativeArgs(home, "verify", sig, data)...)
	assert.ErrorIs(t, err, errBadSignature)
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, res.err, "bad signature from")
}

func TestSymmetricWithPassphraseFile(t *testing.T) {
	home := t.TempDir()
	passFile := filepath.Join(t.TempDir(), "pass")
	require.NoError(t, os.WriteFile(passFile, []byte("hunter2\nignored\n"), 0o600))

	res, err := run(t, "symmetric", nativeArgs(home, "--passphrase-file", passFile, "encrypt")...)
	require.NoError(t, err)

	res, err = run(t, res.out, nativeArgs(home, "--passphrase-file", passFile, "decrypt")...)
	require.NoError(t, err)
	assert.Equal(t, "symmetric", res.out)

	_, err = run(t, "symmetric", nativeArgs(home, "encrypt")...)
	assert.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
}

func TestConfigFile(t *testing.T) {
	home := t.TempDir()
	cfgFile := filepath.Join(t.TempDir(), "gpgmectl.toml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
engine = "native"
homedir = "`+home+`"
profile = "rfc9580"
armor = true
log-level = "error"
`), 0o600))

	res, err := run(t, "", "--config", cfgFile, "engine-info")
	require.NoError(t, err)
	assert.Contains(t, res.out, "engine:   native")
	assert.Contains(t, res.out, "homedir:  "+home)

	// Flags win over the file.
	res, err = run(t, "", "--config", cfgFile, "--engine", "gpg", "--gpg-path", "/opt/gpg/bin/gpg", "engine-info")
	require.NoError(t, err)
	assert.Contains(t, res.out, "engine:   gpg")
	assert.Contains(t, res.out, "path:     /opt/gpg/bin/gpg")

	_, err = run(t, "", "--config", filepath.Join(t.TempDir(), "missing.toml"), "engine-info")
	assert.Error(t, err)
}

func TestConfigMerge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.toml")
	require.NoError(t, os.WriteFile(path, []byte("engine = \"native\"\nlog-level = \"error\"\narmor = true\n"), 0o600))

	var c cli
	flags := newRootCommand(&c).PersistentFlags()
	cfg := defaultConfig()
	require.NoError(t, loadConfigFile(path, &cfg, flags))
	assert.Equal(t, "native", cfg.Engine)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.True(t, cfg.Armor)

	require.NoError(t, flags.Parse([]string{"--log-level", "debug"}))
	cfg = c.opts.cfg
	require.NoError(t, loadConfigFile(path, &cfg, flags))
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "native", cfg.Engine)

	require.NoError(t, os.WriteFile(path, []byte("engine = "), 0o600))
	assert.Error(t, loadConfigFile(path, &cfg, flags))
}

func TestUnknownEngineAndProtocol(t *testing.T) {
	_, err := run(t, "", "--engine", "pgpainless", "engine-info")
	assert.EqualError(t, err, `unknown engine "pgpainless"`)

	_, err = run(t, "", nativeArgs(t.TempDir(), "--protocol", "x509", "list-keys")...)
	assert.EqualError(t, err, `unknown protocol "x509"`)

	_, err = run(t, "", "--engine", "gpg", "gen-key", "a", "b")
	assert.EqualError(t, err, "gen-key needs the native engine")
}
