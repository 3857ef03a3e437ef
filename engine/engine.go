// Package engine defines how a context drives a cryptographic engine: one
// Session per operation, status records read from the engine, command
// responses written back and bulk data pumped concurrently.
package engine

import (
	"context"
	"fmt"
	"io"

	"github.com/gpgme-go/gpgme/constants"
	"github.com/gpgme-go/gpgme/engine/status"
	"github.com/pkg/errors"
)

// ErrUnavailable is wrapped by every engine that cannot be started.
var ErrUnavailable = errors.New("engine unavailable")

// Kind names an operation an engine runs.
type Kind int

const (
	KindVerify Kind = iota + 1
	KindSign
	KindEncrypt
	KindEncryptSign
	KindDecrypt
	KindDecryptVerify
	KindImport
	KindExport
	KindDelete
	KindEdit
	KindCardEdit
	KindKeyList
)

var kindNames = map[Kind]string{
	KindVerify:        "verify",
	KindSign:          "sign",
	KindEncrypt:       "encrypt",
	KindEncryptSign:   "encrypt_sign",
	KindDecrypt:       "decrypt",
	KindDecryptVerify: "decrypt_verify",
	KindImport:        "import",
	KindExport:        "export",
	KindDelete:        "delete",
	KindEdit:          "edit",
	KindCardEdit:      "card_edit",
	KindKeyList:       "keylist",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Operation is the request handed to a session: a snapshot of the context
// configuration plus the data streams of one operation.
type Operation struct {
	Kind     Kind
	Protocol constants.Protocol

	Armor        bool
	TextMode     bool
	IncludeCerts int
	KeyListMode  constants.KeyListMode

	// Signers and Recipients hold key fingerprints in caller order.
	Signers      []string
	Recipients   []string
	SigMode      constants.SigMode
	EncryptFlags constants.EncryptFlag
	// Notations are attached to created signatures.
	Notations []Notation

	// Patterns select keys for keylist, export, delete and edit.
	Patterns    []string
	Secret      bool
	AllowSecret bool

	// Input is the primary input: plaintext, ciphertext, signature or key
	// material depending on Kind.
	Input io.Reader
	// SignedText is the signed data of a detached verification.
	SignedText io.Reader
	// Output receives plaintext, ciphertext, signatures, exported keys or the
	// colon listing of a keylist. It may be nil.
	Output io.Writer
}

// Notation is a signature notation to attach when signing.
type Notation struct {
	Name          string
	Value         string
	HumanReadable bool
	Critical      bool
}

// Session is one engine run. ReadEvent is called from a single goroutine;
// Respond is only called after a prompt was read.
type Session interface {
	// Start spawns the engine and begins pumping data.
	Start(ctx context.Context, op *Operation) error
	// ReadEvent returns the next status record, or io.EOF once the engine
	// closed its status channel.
	ReadEvent() (*status.Event, error)
	// Respond writes one line to the command channel.
	Respond(line string) error
	// Close waits for the engine and its data pumps to finish. A non-zero
	// exit is reported as *ExitError.
	Close() error
	// Kill terminates the engine and releases its resources.
	Kill() error
	State() State
}

// Engine creates sessions for a protocol.
type Engine interface {
	NewSession(protocol constants.Protocol) (Session, error)
	Info() Info
}

// Info describes an engine for diagnostics.
type Info struct {
	Name     string
	Protocol constants.Protocol
	Path     string
	HomeDir  string
}

// ExitError is returned by Close when the engine exited unsuccessfully.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("engine exited with status %d: %s", e.Code, e.Stderr)
	}
	return fmt.Sprintf("engine exited with status %d", e.Code)
}
