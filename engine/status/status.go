// Package status implements the line protocol engines use to report
// progress and results: one "[GNUPG:] KEYWORD ARG..." record per line.
package status

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Prefix starts every status line.
const Prefix = "[GNUPG:] "

// Keyword names a status record.
type Keyword string

// Known keywords. Anything else parses as KeywordUnknown.
const (
	KeywordUnknown Keyword = ""

	NewSig          Keyword = "NEWSIG"
	GoodSig         Keyword = "GOODSIG"
	BadSig          Keyword = "BADSIG"
	ExpSig          Keyword = "EXPSIG"
	ExpKeySig       Keyword = "EXPKEYSIG"
	RevKeySig       Keyword = "REVKEYSIG"
	ErrSig          Keyword = "ERRSIG"
	ValidSig        Keyword = "VALIDSIG"
	TrustUndefined  Keyword = "TRUST_UNDEFINED"
	TrustNever      Keyword = "TRUST_NEVER"
	TrustMarginal   Keyword = "TRUST_MARGINAL"
	TrustFully      Keyword = "TRUST_FULLY"
	TrustUltimate   Keyword = "TRUST_ULTIMATE"
	NotationName    Keyword = "NOTATION_NAME"
	NotationData    Keyword = "NOTATION_DATA"
	PolicyURL       Keyword = "POLICY_URL"
	Plaintext       Keyword = "PLAINTEXT"
	PlaintextLength Keyword = "PLAINTEXT_LENGTH"
	KeyExpired      Keyword = "KEYEXPIRED"
	KeyRevoked      Keyword = "KEYREVOKED"
	SigExpired      Keyword = "SIGEXPIRED"

	NoData     Keyword = "NODATA"
	Unexpected Keyword = "UNEXPECTED"
	BadArmor   Keyword = "BADARMOR"
	Error      Keyword = "ERROR"
	Failure    Keyword = "FAILURE"
	Success    Keyword = "SUCCESS"

	SigCreated Keyword = "SIG_CREATED"
	InvSgnr    Keyword = "INV_SGNR"
	NoSgnr     Keyword = "NO_SGNR"
	InvRecp    Keyword = "INV_RECP"
	NoRecp     Keyword = "NO_RECP"

	BeginEncryption   Keyword = "BEGIN_ENCRYPTION"
	EndEncryption     Keyword = "END_ENCRYPTION"
	BeginDecryption   Keyword = "BEGIN_DECRYPTION"
	EndDecryption     Keyword = "END_DECRYPTION"
	DecryptionFailed  Keyword = "DECRYPTION_FAILED"
	DecryptionOkay    Keyword = "DECRYPTION_OKAY"
	DecryptionInfo    Keyword = "DECRYPTION_INFO"
	NoSeckey          Keyword = "NO_SECKEY"
	EncTo             Keyword = "ENC_TO"
	BeginSigning      Keyword = "BEGIN_SIGNING"
	GoodMDC           Keyword = "GOODMDC"
	KeyConsidered     Keyword = "KEY_CONSIDERED"
	ImportOK          Keyword = "IMPORT_OK"
	ImportProblem     Keyword = "IMPORT_PROBLEM"
	ImportRes         Keyword = "IMPORT_RES"
	Imported          Keyword = "IMPORTED"
	DeleteProblem     Keyword = "DELETE_PROBLEM"
	UserIDHint        Keyword = "USERID_HINT"
	NeedPassphrase    Keyword = "NEED_PASSPHRASE"
	NeedPassphraseSym Keyword = "NEED_PASSPHRASE_SYM"
	GoodPassphrase    Keyword = "GOOD_PASSPHRASE"
	BadPassphrase     Keyword = "BAD_PASSPHRASE"
	MissingPassphrase Keyword = "MISSING_PASSPHRASE"
	Progress          Keyword = "PROGRESS"
	GetLine           Keyword = "GET_LINE"
	GetBool           Keyword = "GET_BOOL"
	GetHidden         Keyword = "GET_HIDDEN"
	GotIt             Keyword = "GOT_IT"
	KeyCreated        Keyword = "KEY_CREATED"
	CardCtrl          Keyword = "CARDCTRL"
	ScOpFailure       Keyword = "SC_OP_FAILURE"
	PinentryLaunched  Keyword = "PINENTRY_LAUNCHED"
	Exported          Keyword = "EXPORTED"
	ExportRes         Keyword = "EXPORT_RES"
)

var known = map[Keyword]struct{}{}

func init() {
	for _, k := range []Keyword{
		NewSig, GoodSig, BadSig, ExpSig, ExpKeySig, RevKeySig, ErrSig, ValidSig,
		TrustUndefined, TrustNever, TrustMarginal, TrustFully, TrustUltimate,
		NotationName, NotationData, PolicyURL, Plaintext, PlaintextLength,
		KeyExpired, KeyRevoked, SigExpired, NoData, Unexpected, BadArmor, Error,
		Failure, Success, SigCreated, InvSgnr, NoSgnr, InvRecp, NoRecp,
		BeginEncryption, EndEncryption, BeginDecryption, EndDecryption,
		DecryptionFailed, DecryptionOkay, DecryptionInfo, NoSeckey, EncTo,
		BeginSigning, GoodMDC, KeyConsidered, ImportOK, ImportProblem, ImportRes,
		Imported, DeleteProblem, UserIDHint, NeedPassphrase, NeedPassphraseSym,
		GoodPassphrase, BadPassphrase, MissingPassphrase, Progress, GetLine,
		GetBool, GetHidden, GotIt, KeyCreated, CardCtrl, ScOpFailure,
		PinentryLaunched, Exported, ExportRes,
	} {
		known[k] = struct{}{}
	}
}

// IsPrompt reports whether the engine blocks on the command channel after
// emitting k.
func (k Keyword) IsPrompt() bool {
	return k == GetLine || k == GetBool || k == GetHidden
}

// Event is one parsed status record.
type Event struct {
	Keyword Keyword
	// Name is the keyword as it appeared on the wire, set even when
	// Keyword is KeywordUnknown.
	Name string
	Args []string
	// Raw is the argument text without the keyword.
	Raw string
}

// Arg returns the i-th argument or "" when absent.
func (e *Event) Arg(i int) string {
	if i < len(e.Args) {
		return e.Args[i]
	}
	return ""
}

// IntArg returns the i-th argument as an integer, or 0.
func (e *Event) IntArg(i int) int64 {
	n, _ := strconv.ParseInt(e.Arg(i), 10, 64)
	return n
}

func (e *Event) String() string {
	if e.Raw == "" {
		return e.Name
	}
	return e.Name + " " + e.Raw
}

// Parse decodes one status line. Lines without the status prefix are
// rejected with ok=false.
func Parse(line string) (ev *Event, ok bool) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, Prefix) {
		return nil, false
	}
	line = line[len(Prefix):]
	name, raw, _ := strings.Cut(line, " ")
	if name == "" {
		return nil, false
	}
	ev = &Event{Name: name, Raw: raw, Args: strings.Fields(raw)}
	if _, found := known[Keyword(name)]; found {
		ev.Keyword = Keyword(name)
	}
	return ev, true
}

// Reader yields events from a status channel.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// ReadEvent returns the next status record, skipping lines that do not carry
// the status prefix. io.EOF is returned once the channel is closed.
func (r *Reader) ReadEvent() (*Event, error) {
	for {
		line, err := r.r.ReadString('\n')
		if line != "" {
			if ev, ok := Parse(line); ok {
				return ev, nil
			}
		}
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, errors.Wrap(err, "status: unable to read status channel")
		}
	}
}

// Writer emits status records. It is safe for concurrent use.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Emit writes one record. Arguments are joined by single spaces.
func (w *Writer) Emit(k Keyword, args ...interface{}) error {
	var b strings.Builder
	b.WriteString(Prefix)
	b.WriteString(string(k))
	for _, a := range args {
		b.WriteByte(' ')
		fmt.Fprint(&b, a)
	}
	b.WriteByte('\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := io.WriteString(w.w, b.String())
	return err
}
