package native

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/containerd/log"
	"github.com/gpgme-go/gpgme/constants"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

const (
	keyringFile = "keyring.gpg"
	trustFile   = "trustdb.toml"
)

// Delete problems as reported by DELETE_PROBLEM.
const (
	deleteNoSuchKey     = 1
	deleteMustBeSecret  = 2
	deleteAmbiguousName = 3
)

type trustRecord struct {
	Fingerprint string `toml:"fingerprint"`
	OwnerTrust  int    `toml:"ownertrust"`
	Disabled    bool   `toml:"disabled"`
}

type trustDB struct {
	Keys []trustRecord `toml:"key"`
}

// Keystore holds the keys of a native engine. With a directory every
// mutation is written back to disk.
type Keystore struct {
	mu       sync.RWMutex
	dir      string
	entities openpgp.EntityList
	trust    map[string]trustRecord
}

// OpenKeystore loads the keystore in dir, creating dir when needed. An
// empty dir yields a memory-only keystore.
func OpenKeystore(dir string) (*Keystore, error) {
	ks := &Keystore{dir: dir, trust: map[string]trustRecord{}}
	if dir == "" {
		return ks, nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "native: unable to create home directory")
	}

	data, err := os.ReadFile(filepath.Join(dir, keyringFile))
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, errors.Wrap(err, "native: unable to read keyring")
	case len(data) > 0:
		el, err := openpgp.ReadKeyRing(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "native: unable to parse keyring")
		}
		ks.entities = el
	}

	data, err = os.ReadFile(filepath.Join(dir, trustFile))
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, errors.Wrap(err, "native: unable to read trust database")
	default:
		var db trustDB
		if err := toml.Unmarshal(data, &db); err != nil {
			return nil, errors.Wrap(err, "native: unable to parse trust database")
		}
		for _, r := range db.Keys {
			r.Fingerprint = strings.ToUpper(r.Fingerprint)
			ks.trust[r.Fingerprint] = r
		}
	}
	return ks, nil
}

// Entities returns a snapshot of the stored keys. The entities are shared
// and must not be modified.
func (k *Keystore) Entities() openpgp.EntityList {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return append(openpgp.EntityList(nil), k.entities...)
}

// Find returns the keys matching any pattern, or all keys without patterns.
func (k *Keystore) Find(patterns []string, secretOnly bool) openpgp.EntityList {
	var found openpgp.EntityList
	for _, e := range k.Entities() {
		if secretOnly && e.PrivateKey == nil {
			continue
		}
		if len(patterns) == 0 {
			found = append(found, e)
			continue
		}
		for _, p := range patterns {
			if matches(e, p) {
				found = append(found, e)
				break
			}
		}
	}
	return found
}

// matches follows gpg's key selection rules for the forms the native
// engine supports: fingerprints and key IDs of the primary key or a subkey
// (optionally 0x prefixed), "<email>" for an exact address and otherwise a
// case-insensitive substring of a user ID.
func matches(e *openpgp.Entity, pattern string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return false
	}
	if id := strings.ToUpper(strings.TrimPrefix(strings.TrimPrefix(pattern, "0x"), "0X")); isHex(id) {
		keys := []*packet.PublicKey{e.PrimaryKey}
		for _, sk := range e.Subkeys {
			keys = append(keys, sk.PublicKey)
		}
		for _, pk := range keys {
			fpr, long := fingerprint(pk), keyID(pk.KeyId)
			switch len(id) {
			case len(fpr):
				if id == fpr {
					return true
				}
			case 16:
				if id == long {
					return true
				}
			case 8:
				if id == long[8:] {
					return true
				}
			}
		}
	}
	if strings.HasPrefix(pattern, "<") && strings.HasSuffix(pattern, ">") {
		email := strings.ToLower(pattern[1 : len(pattern)-1])
		for _, id := range e.Identities {
			if strings.ToLower(id.UserId.Email) == email {
				return true
			}
		}
		return false
	}
	needle := strings.ToLower(pattern)
	for name := range e.Identities {
		if strings.Contains(strings.ToLower(name), needle) {
			return true
		}
	}
	return false
}

func isHex(s string) bool {
	if len(s) != 8 && len(s) != 16 && len(s) != 40 && len(s) != 64 {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789ABCDEF", c) {
			return false
		}
	}
	return true
}

// Add stores e and returns the IMPORT_OK flags describing the change. A
// secret key replaces a stored public-only copy of the same key.
func (k *Keystore) Add(e *openpgp.Entity) (constants.ImportStatus, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	fpr := fingerprint(e.PrimaryKey)
	var flags constants.ImportStatus
	i := k.index(fpr)
	switch {
	case i < 0:
		k.entities = append(k.entities, e)
		flags = constants.ImportNew
		if e.PrivateKey != nil {
			flags |= constants.ImportSecret
		}
	case e.PrivateKey != nil && k.entities[i].PrivateKey == nil:
		k.entities[i] = e
		flags = constants.ImportSecret
	default:
		return 0, nil
	}
	log.L.WithFields(log.Fields{
		"fingerprint": fpr,
		"flags":       int(flags),
	}).Debug("native: stored key")
	return flags, k.save()
}

// Remove deletes the key pattern names. It returns the DELETE_PROBLEM code
// when the key cannot be removed, 0 on success.
func (k *Keystore) Remove(pattern string, allowSecret bool) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	i := -1
	for j, e := range k.entities {
		if matches(e, pattern) {
			if i >= 0 {
				return deleteAmbiguousName, nil
			}
			i = j
		}
	}
	if i < 0 {
		return deleteNoSuchKey, nil
	}
	e := k.entities[i]
	if e.PrivateKey != nil && !allowSecret {
		return deleteMustBeSecret, nil
	}
	fpr := fingerprint(e.PrimaryKey)
	k.entities = append(k.entities[:i:i], k.entities[i+1:]...)
	delete(k.trust, fpr)
	log.L.WithField("fingerprint", fpr).Debug("native: deleted key")
	return 0, k.save()
}

// OwnerTrust returns the owner trust of the key with fingerprint fpr, one of
// the constants.Trust values, or 0 when none was assigned.
func (k *Keystore) OwnerTrust(fpr string) int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.trust[strings.ToUpper(fpr)].OwnerTrust
}

// SetOwnerTrust assigns the owner trust of the key with fingerprint fpr.
func (k *Keystore) SetOwnerTrust(fpr string, trust int) error {
	if trust < constants.TrustUnknown || trust > constants.TrustUltimate {
		return errors.Errorf("native: invalid owner trust %d", trust)
	}
	return k.updateTrust(fpr, func(r *trustRecord) { r.OwnerTrust = trust })
}

// Disabled reports whether the key was disabled.
func (k *Keystore) Disabled(fpr string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.trust[strings.ToUpper(fpr)].Disabled
}

// SetDisabled disables or enables the key with fingerprint fpr.
func (k *Keystore) SetDisabled(fpr string, disabled bool) error {
	return k.updateTrust(fpr, func(r *trustRecord) { r.Disabled = disabled })
}

func (k *Keystore) updateTrust(fpr string, fn func(r *trustRecord)) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	fpr = strings.ToUpper(fpr)
	if k.index(fpr) < 0 {
		return errors.Errorf("native: no key %s", fpr)
	}
	r := k.trust[fpr]
	r.Fingerprint = fpr
	fn(&r)
	k.trust[fpr] = r
	log.L.WithFields(log.Fields{
		"fingerprint": fpr,
		"ownertrust":  r.OwnerTrust,
		"disabled":    r.Disabled,
	}).Debug("native: updated trust")
	return k.save()
}

func (k *Keystore) index(fpr string) int {
	for i, e := range k.entities {
		if fingerprint(e.PrimaryKey) == fpr {
			return i
		}
	}
	return -1
}

// save writes the keyring and trust database; callers hold k.mu.
func (k *Keystore) save() error {
	if k.dir == "" {
		return nil
	}
	var ring bytes.Buffer
	for _, e := range k.entities {
		var err error
		if e.PrivateKey != nil {
			err = e.SerializePrivateWithoutSigning(&ring, nil)
		} else {
			err = e.Serialize(&ring)
		}
		if err != nil {
			return errors.Wrap(err, "native: unable to serialize key")
		}
	}
	if err := writeFileAtomic(filepath.Join(k.dir, keyringFile), ring.Bytes()); err != nil {
		return err
	}

	var db trustDB
	for _, r := range k.trust {
		db.Keys = append(db.Keys, r)
	}
	sort.Slice(db.Keys, func(i, j int) bool { return db.Keys[i].Fingerprint < db.Keys[j].Fingerprint })
	data, err := toml.Marshal(db)
	if err != nil {
		return errors.Wrap(err, "native: unable to encode trust database")
	}
	return writeFileAtomic(filepath.Join(k.dir, trustFile), data)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrapf(err, "native: unable to write %s", filepath.Base(path))
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "native: unable to replace %s", filepath.Base(path))
	}
	return nil
}
