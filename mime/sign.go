package mime

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"

	"github.com/gpgme-go/gpgme"
	"github.com/gpgme-go/gpgme/constants"
	"github.com/gpgme-go/gpgme/internal"
	"github.com/pkg/errors"
)

// micalg names the hash algorithms of RFC 4880 section 9.4 for the micalg
// parameter.
var micalg = map[int]string{
	1:  "pgp-md5",
	2:  "pgp-sha1",
	3:  "pgp-ripemd160",
	8:  "pgp-sha256",
	9:  "pgp-sha384",
	10: "pgp-sha512",
	11: "pgp-sha224",
	12: "pgp-sha3-256",
	14: "pgp-sha3-512",
}

// Sign wraps entity, a MIME part with its own headers, into a
// multipart/signed message carrying a detached armored signature made with
// the signers of c. The returned message starts with its Content-Type
// header.
func Sign(ctx context.Context, c *gpgme.Context, entity []byte) ([]byte, error) {
	part := internal.CanonicalizeBytes(internal.TrimEachLineBytes(entity))
	part = bytes.TrimSuffix(part, []byte("\r\n"))

	armor := c.Armor()
	if !armor {
		if err := c.SetArmor(true); err != nil {
			return nil, err
		}
		defer func() { _ = c.SetArmor(false) }()
	}

	sig := gpgme.NewData()
	created, err := c.Sign(ctx, gpgme.NewDataBytes(part), sig, constants.SigModeDetach)
	if err != nil {
		return nil, errors.Wrap(err, "mime: unable to sign message")
	}
	alg, ok := micalg[created[0].HashAlgo()]
	if !ok {
		return nil, errors.Errorf("mime: unknown hash algorithm %d", created[0].HashAlgo())
	}

	var out bytes.Buffer
	boundary := multipart.NewWriter(&out).Boundary()
	fmt.Fprintf(&out, "Content-Type: multipart/signed; micalg=%s;\r\n"+
		" protocol=\"application/pgp-signature\"; boundary=%q\r\n\r\n", alg, boundary)
	fmt.Fprintf(&out, "--%s\r\n", boundary)
	out.Write(part)
	fmt.Fprintf(&out, "\r\n--%s\r\n", boundary)
	out.WriteString("Content-Type: application/pgp-signature; name=\"signature.asc\"\r\n")
	out.WriteString("Content-Description: OpenPGP digital signature\r\n")
	out.WriteString("Content-Disposition: attachment; filename=\"signature.asc\"\r\n\r\n")
	out.Write(internal.CanonicalizeBytes(bytes.TrimRight(sig.Bytes(), "\r\n")))
	fmt.Fprintf(&out, "\r\n--%s--\r\n", boundary)
	return out.Bytes(), nil
}
