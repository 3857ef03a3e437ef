// Package internal contains text helpers shared by the native engine and
// the PGP/MIME verifier.
package internal

import (
	"bytes"
	"strings"

	"github.com/gpgme-go/gpgme/constants"
)

var nl = []byte("\n")
var rnl = []byte("\r\n")

// Canonicalize converts line endings to CRLF.
func Canonicalize(text string) string {
	return strings.ReplaceAll(strings.ReplaceAll(text, "\r\n", "\n"), "\n", "\r\n")
}

func CanonicalizeBytes(text []byte) []byte {
	return bytes.ReplaceAll(bytes.ReplaceAll(text, rnl, nl), nl, rnl)
}

// TrimEachLine removes trailing spaces, tabs and carriage returns from every
// line, the way clearsigned text is hashed.
func TrimEachLine(text string) string {
	lines := strings.Split(text, "\n")

	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t\r")
	}

	return strings.Join(lines, "\n")
}

func TrimEachLineBytes(text []byte) []byte {
	lines := bytes.Split(text, nl)

	for i := range lines {
		lines[i] = bytes.TrimRight(lines[i], " \t\r")
	}

	return bytes.Join(lines, nl)
}

// ArmorHeaders returns the headers written into armored output.
func ArmorHeaders() map[string]string {
	return map[string]string{
		"Version": constants.ArmorHeaderVersion,
	}
}
