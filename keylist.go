package gpgme

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/gpgme-go/gpgme/constants"
	"github.com/gpgme-go/gpgme/engine"
	"github.com/pkg/errors"
)

// lookupKeys runs a key listing through a fresh session and converts the
// colon records into keys.
func (c *Context) lookupKeys(ctx context.Context, cfg *config, patterns []string, secret bool) ([]*Key, error) {
	listing := NewData()
	op := cfg.operation(engine.KindKeyList)
	op.Patterns = patterns
	op.Secret = secret
	op.Output = listing
	if err := c.run(ctx, cfg, op, collectors{}); err != nil {
		return nil, err
	}
	keys, err := parseKeyListing(strings.NewReader(listing.String()), cfg.protocol, cfg.keyListMode)
	if err != nil {
		return nil, protocolViolation(err, "malformed key listing")
	}
	return keys, nil
}

// uniqueKey enforces that a lookup resolved to exactly one key.
func uniqueKey(pattern string, keys []*Key) (*Key, error) {
	switch len(keys) {
	case 0:
		return nil, newError(KindKeyNotFound, constants.ErrEOF, "no key matches %q", pattern)
	case 1:
		return keys[0], nil
	}
	return nil, newError(KindAmbiguousKey, constants.ErrAmbiguousName, "%d keys match %q", len(keys), pattern)
}

// parseKeyListing decodes a "--with-colons --fixed-list-mode" listing.
func parseKeyListing(r io.Reader, protocol constants.Protocol, mode constants.KeyListMode) ([]*Key, error) {
	var (
		keys []*Key
		key  *Key
		sub  *SubKey
		uid  *UserID
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		f := strings.Split(line, ":")
		field := func(i int) string {
			if i < len(f) {
				return f[i]
			}
			return ""
		}

		switch f[0] {
		case "pub", "sec", "crt", "crs":
			key = &Key{
				protocol:    protocol,
				keyListMode: mode,
				secret:      f[0] == "sec" || f[0] == "crs",
				ownerTrust:  constants.ValidityFromColon(field(8)),
			}
			sub = parseSubKey(f)
			applyValidityLetters(field(1), &key.revoked, &key.expired, &key.disabled, &key.invalid)
			for _, c := range field(11) {
				switch c {
				case 'E':
					key.canEncrypt = true
				case 'S':
					key.canSign = true
				case 'C':
					key.canCertify = true
				case 'A':
					key.canAuth = true
				case 'D':
					key.disabled = true
				}
			}
			if sub.secret {
				key.secret = true
			}
			key.subKeys = append(key.subKeys, sub)
			keys = append(keys, key)
			uid = nil
		case "sub", "ssb":
			if key == nil {
				return nil, errors.Errorf("subkey record before primary key: %q", line)
			}
			sub = parseSubKey(f)
			key.subKeys = append(key.subKeys, sub)
		case "fpr":
			if sub == nil {
				return nil, errors.Errorf("fingerprint record before key: %q", line)
			}
			if sub.fpr == "" {
				sub.fpr = field(9)
			}
		case "uid":
			if key == nil {
				return nil, errors.Errorf("user ID record before key: %q", line)
			}
			uid = &UserID{
				uid:      unescapeColon(field(9)),
				validity: constants.ValidityFromColon(field(1)),
			}
			var expired, disabled bool
			applyValidityLetters(field(1), &uid.revoked, &expired, &disabled, &uid.invalid)
			uid.name, uid.comment, uid.email = splitUserID(uid.uid)
			key.userIDs = append(key.userIDs, uid)
		case "sig", "rev":
			if uid == nil {
				continue
			}
			sigClass, _ := strconv.ParseInt(strings.TrimRight(field(10), "xl"), 16, 32)
			uid.signatures = append(uid.signatures, &KeySig{
				keyID:      field(4),
				pubkeyAlgo: atoi(field(3)),
				created:    parseTimestamp(field(5)),
				expires:    parseTimestamp(field(6)),
				uid:        unescapeColon(field(9)),
				sigClass:   int(sigClass),
				revoked:    f[0] == "rev",
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "unable to read key listing")
	}
	return keys, nil
}

func parseSubKey(f []string) *SubKey {
	field := func(i int) string {
		if i < len(f) {
			return f[i]
		}
		return ""
	}
	s := &SubKey{
		length:     atoi(field(2)),
		pubkeyAlgo: atoi(field(3)),
		keyID:      field(4),
		created:    parseTimestamp(field(5)),
		expires:    parseTimestamp(field(6)),
		secret:     f[0] == "sec" || f[0] == "ssb" || f[0] == "crs",
	}
	applyValidityLetters(field(1), &s.revoked, &s.expired, &s.disabled, &s.invalid)
	for _, c := range field(11) {
		switch c {
		case 'e':
			s.canEncrypt = true
		case 's':
			s.canSign = true
		case 'c':
			s.canCertify = true
		case 'a':
			s.canAuth = true
		}
	}
	// Field 15 carries the secret key token for WITH_SECRET listings.
	switch token := field(14); {
	case token == "" || token == "#":
	case token == "+":
		s.secret = true
	default:
		s.secret = true
		s.cardNumber = token
	}
	return s
}

func applyValidityLetters(v string, revoked, expired, disabled, invalid *bool) {
	for _, c := range v {
		switch c {
		case 'r':
			*revoked = true
		case 'e':
			*expired = true
		case 'd':
			*disabled = true
		case 'i':
			*invalid = true
		}
	}
}

// splitUserID splits "Name (Comment) <email>".
func splitUserID(uid string) (name, comment, email string) {
	rest := uid
	if i := strings.LastIndex(rest, "<"); i >= 0 && strings.HasSuffix(rest, ">") {
		email = rest[i+1 : len(rest)-1]
		rest = strings.TrimSpace(rest[:i])
	}
	if i := strings.LastIndex(rest, "("); i >= 0 && strings.HasSuffix(rest, ")") {
		comment = rest[i+1 : len(rest)-1]
		rest = strings.TrimSpace(rest[:i])
	}
	return rest, comment, email
}

// unescapeColon decodes the \xHH escapes gpg uses inside colon fields.
func unescapeColon(s string) string {
	if !strings.Contains(s, `\x`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) && s[i+1] == 'x' {
			if v, err := strconv.ParseUint(s[i+2:i+4], 16, 8); err == nil {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// parseTimestamp accepts epoch seconds and the ISO form "YYYYMMDDTHHMMSS".
func parseTimestamp(s string) int64 {
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if t, err := parseISOTime(s); err == nil {
		return t
	}
	return 0
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
