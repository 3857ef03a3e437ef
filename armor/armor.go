// Package armor contains a set of helper methods for armoring and unarmoring
// data.
package armor

import (
	"bytes"
	"io"

	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/gpgme-go/gpgme/constants"
	"github.com/gpgme-go/gpgme/internal"
	"github.com/pkg/errors"
)

const begin = "-----BEGIN "

// IsArmored reports whether data starts, after leading whitespace, with an
// armor header line.
func IsArmored(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte(begin))
}

// IsClearSigned reports whether data contains a clearsigned section.
func IsClearSigned(data []byte) bool {
	return bytes.Contains(data, []byte(begin+constants.PGPSignedHeader+"-----"))
}

// ArmorKey armors input as a public key.
func ArmorKey(input []byte) (string, error) {
	return ArmorWithType(input, constants.PublicKeyHeader)
}

// ArmorWriterWithType returns a io.WriteCloser which, when written to, writes
// armored data to w with the given armorType.
func ArmorWriterWithType(w io.Writer, armorType string) (io.WriteCloser, error) {
	return armor.Encode(w, armorType, internal.ArmorHeaders())
}

// ArmorWithType armors input with the given armorType.
func ArmorWithType(input []byte, armorType string) (string, error) {
	var b bytes.Buffer

	w, err := ArmorWriterWithType(&b, armorType)
	if err != nil {
		return "", errors.Wrap(err, "gpgme: unable to encode armoring")
	}
	if _, err = w.Write(input); err != nil {
		return "", errors.Wrap(err, "gpgme: unable to write armored to buffer")
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrap(err, "gpgme: unable to close armor buffer")
	}
	return b.String(), nil
}

// ArmorReader returns a io.Reader which, when read, reads
// unarmored data from in.
func ArmorReader(in io.Reader) (io.Reader, error) {
	block, err := armor.Decode(in)
	if err != nil {
		return nil, err
	}
	return block.Body, nil
}

// Unarmor decodes the first armored block of input and returns its type and
// body.
func Unarmor(input []byte) (string, []byte, error) {
	block, err := armor.Decode(bytes.NewReader(input))
	if err != nil {
		return "", nil, errors.Wrap(err, "gpgme: unable to unarmor")
	}
	body, err := io.ReadAll(block.Body)
	if err != nil {
		return "", nil, errors.Wrap(err, "gpgme: unable to read armored body")
	}
	return block.Type, body, nil
}

// Dearmor returns the binary form of data, decoding it first when it is
// armored.
func Dearmor(data []byte) ([]byte, error) {
	if !IsArmored(data) {
		return data, nil
	}
	_, body, err := Unarmor(data)
	return body, err
}
