package gpgme

import (
	"strconv"
	"strings"

	"github.com/gpgme-go/gpgme/constants"
	"github.com/gpgme-go/gpgme/engine"
	"github.com/gpgme-go/gpgme/engine/status"
)

// collector turns the status records of one operation into a typed result.
// Collectors are consulted in order; the first one that claims a record
// stops the others from seeing it.
type collector interface {
	handle(ev *status.Event) (claimed bool, err error)
	// result returns the failure the collector recorded, if any.
	result() error
}

type collectors []collector

func (cs collectors) handle(ev *status.Event) (bool, error) {
	for _, c := range cs {
		claimed, err := c.handle(ev)
		if err != nil || claimed {
			return claimed, err
		}
	}
	return false, nil
}

func (cs collectors) result() error {
	for _, c := range cs {
		if err := c.result(); err != nil {
			return err
		}
	}
	return nil
}

// parseErrValue decodes the "location code" pair of ERROR and FAILURE
// records. Only the leading digits of the code count, so gpg's
// "89_BAD_DATA" form decodes like "89".
func parseErrValue(ev *status.Event) (string, constants.ErrSource, constants.ErrCode) {
	arg := ev.Arg(1)
	end := 0
	for end < len(arg) && arg[end] >= '0' && arg[end] <= '9' {
		end++
	}
	v, err := strconv.ParseUint(arg[:end], 10, 32)
	if err != nil {
		return ev.Arg(0), constants.SourceUnknown, constants.ErrGeneral
	}
	source, code := constants.SplitErrValue(uint32(v))
	return ev.Arg(0), source, code
}

// baseCollector records the generic failure records every operation can
// see. It is always consulted last.
type baseCollector struct {
	kind    engine.Kind
	err     error
	failure error
}

func newBaseCollector(kind engine.Kind) *baseCollector {
	return &baseCollector{kind: kind}
}

func (b *baseCollector) handle(ev *status.Event) (bool, error) {
	switch ev.Keyword {
	case status.NoData, status.Unexpected:
		b.setErr(codeError(constants.ErrNoData))
	case status.BadArmor:
		b.setErr(codeError(constants.ErrBadData))
	case status.Error:
		loc, source, code := parseErrValue(ev)
		if b.kind == engine.KindKeyList && strings.HasPrefix(loc, "keylist.") {
			return true, nil
		}
		e := engineError(source, code)
		e.Message = loc
		b.setErr(e)
	case status.Failure:
		loc, source, code := parseErrValue(ev)
		if b.failure == nil {
			e := engineError(source, code)
			e.Message = loc
			b.failure = e
		}
	default:
		return false, nil
	}
	return true, nil
}

func (b *baseCollector) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *baseCollector) result() error {
	if b.err != nil {
		return b.err
	}
	return b.failure
}

// verifyCollector builds the signature list of a verification.
type verifyCollector struct {
	sigs []*Signature
	cur  *Signature
}

func newVerifyCollector() *verifyCollector {
	return &verifyCollector{}
}

func (v *verifyCollector) open() *Signature {
	v.cur = &Signature{}
	v.sigs = append(v.sigs, v.cur)
	return v.cur
}

// verdictTarget returns the record a verdict applies to, opening a new one
// if the current record already carries a verdict. Engines that emit no
// NEWSIG separate signatures this way.
func (v *verifyCollector) verdictTarget() *Signature {
	if v.cur == nil || v.cur.verdict {
		v.open()
	}
	v.cur.verdict = true
	return v.cur
}

func (v *verifyCollector) handle(ev *status.Event) (bool, error) {
	switch ev.Keyword {
	case status.NewSig:
		v.open()
	case status.GoodSig:
		sig := v.verdictTarget()
		sig.fpr = ev.Arg(0)
		sig.status = nil
	case status.ExpSig:
		sig := v.verdictTarget()
		sig.fpr = ev.Arg(0)
		sig.status = codeError(constants.ErrSigExpired)
	case status.ExpKeySig:
		sig := v.verdictTarget()
		sig.fpr = ev.Arg(0)
		sig.status = codeError(constants.ErrKeyExpired)
	case status.RevKeySig:
		sig := v.verdictTarget()
		sig.fpr = ev.Arg(0)
		sig.status = codeError(constants.ErrCertRevoked)
	case status.BadSig:
		sig := v.verdictTarget()
		sig.fpr = ev.Arg(0)
		sig.status = codeError(constants.ErrBadSignature)
	case status.ErrSig:
		// keyid pkalgo hashalgo class time rc [fpr]
		sig := v.verdictTarget()
		sig.fpr = ev.Arg(0)
		if fpr := ev.Arg(6); fpr != "" && fpr != "-" {
			sig.fpr = fpr
		}
		sig.pubkeyAlgo = int(ev.IntArg(1))
		sig.hashAlgo = int(ev.IntArg(2))
		sig.timestamp = parseTimestamp(ev.Arg(4))
		switch ev.Arg(5) {
		case "4":
			sig.status = codeError(constants.ErrUnsupportedAlgorithm)
		case "9":
			sig.status = codeError(constants.ErrNoPubkey)
		default:
			sig.status = codeError(constants.ErrGeneral)
		}
	case status.ValidSig:
		// fpr date timestamp expire version reserved pkalgo hashalgo class [primary-fpr]
		sig := v.cur
		if sig == nil {
			sig = v.verdictTarget()
		}
		sig.fpr = ev.Arg(0)
		sig.timestamp = parseTimestamp(ev.Arg(2))
		sig.expTimestamp = parseTimestamp(ev.Arg(3))
		if len(ev.Args) > 7 {
			sig.pubkeyAlgo = int(ev.IntArg(6))
			sig.hashAlgo = int(ev.IntArg(7))
		}
	case status.TrustUndefined, status.TrustNever, status.TrustMarginal, status.TrustFully, status.TrustUltimate:
		if v.cur == nil {
			return true, nil
		}
		v.cur.validity = trustValidity(ev.Keyword)
		if code := ev.Arg(0); code != "" && code != "0" {
			if n, err := strconv.Atoi(code); err == nil {
				v.cur.validityReason = codeError(constants.ErrCode(n))
			}
		}
	case status.NotationName:
		if v.cur != nil {
			v.cur.notations = append(v.cur.notations, Notation{
				Name:          status.Unescape(ev.Arg(0)),
				HumanReadable: true,
			})
		}
	case status.NotationData:
		if v.cur != nil && len(v.cur.notations) > 0 {
			n := &v.cur.notations[len(v.cur.notations)-1]
			n.Value += status.Unescape(ev.Arg(0))
		}
	case status.PolicyURL:
		if v.cur != nil {
			v.cur.notations = append(v.cur.notations, Notation{
				Value:         status.Unescape(ev.Arg(0)),
				HumanReadable: true,
			})
		}
	case status.NoData, status.Unexpected:
		if v.cur == nil {
			return false, nil
		}
		v.cur.status = codeError(constants.ErrNoData)
	case status.Error:
		loc, source, code := parseErrValue(ev)
		if v.cur == nil {
			return false, nil
		}
		switch {
		case loc == "verify.keyusage" || code == constants.ErrWrongKeyUsage:
			v.cur.wrongKeyUsage = true
		case strings.HasPrefix(loc, "verify."):
			v.cur.validityReason = engineError(source, code)
		case v.cur.verdict:
			// The record is already decided; gpg reports a second
			// plaintext in clearsigned input this way.
			return false, nil
		default:
			v.cur.status = engineError(source, code)
		}
	case status.Failure:
		// gpg summarizes bad signatures with a gpg-exit failure; the
		// verdicts already carry it.
		if ev.Arg(0) == "gpg-exit" && len(v.sigs) > 0 {
			return true, nil
		}
		return false, nil
	default:
		return false, nil
	}
	return true, nil
}

func (v *verifyCollector) result() error {
	return nil
}

// signatures finalizes and returns the verdicts in engine order.
func (v *verifyCollector) signatures() []*Signature {
	for _, sig := range v.sigs {
		sig.summary = computeSummary(sig)
	}
	return v.sigs
}

func trustValidity(k status.Keyword) constants.Validity {
	// TRUST_UNDEFINED reports that no trust path exists, which is the
	// unknown validity.
	switch k {
	case status.TrustNever:
		return constants.ValidityNever
	case status.TrustMarginal:
		return constants.ValidityMarginal
	case status.TrustFully:
		return constants.ValidityFull
	case status.TrustUltimate:
		return constants.ValidityUltimate
	}
	return constants.ValidityUnknown
}

// computeSummary derives the summary flags from validity and status.
func computeSummary(sig *Signature) constants.SigSum {
	var sum constants.SigSum
	code := CodeOf(sig.status)

	switch sig.validity {
	case constants.ValidityFull, constants.ValidityUltimate:
		if code == constants.ErrNoError {
			sum |= constants.SigSumGreen
		}
	case constants.ValidityNever:
		if code == constants.ErrNoError {
			sum |= constants.SigSumRed
		}
	}

	switch code {
	case constants.ErrNoError:
	case constants.ErrBadSignature:
		sum |= constants.SigSumRed
	case constants.ErrSigExpired:
		sum |= constants.SigSumSigExpired
	case constants.ErrKeyExpired:
		sum |= constants.SigSumKeyExpired
	case constants.ErrNoPubkey:
		sum |= constants.SigSumKeyMissing
	case constants.ErrCertRevoked:
		sum |= constants.SigSumKeyRevoked
	default:
		sum |= constants.SigSumSysError
	}

	if sig.validityReason != nil {
		switch CodeOf(sig.validityReason) {
		case constants.ErrNoCRLKnown:
			sum |= constants.SigSumCRLMissing
		case constants.ErrCRLTooOld:
			sum |= constants.SigSumCRLTooOld
		case constants.ErrCertRevoked:
			sum |= constants.SigSumKeyRevoked
		}
	}

	if sig.wrongKeyUsage {
		sum |= constants.SigSumBadPolicy
	}
	if sum == constants.SigSumGreen {
		sum |= constants.SigSumValid
	}
	return sum
}

// invalidKeyReason maps the reason field of INV_SGNR and INV_RECP.
func invalidKeyReason(reason string) error {
	var code constants.ErrCode
	switch reason {
	case "1":
		code = constants.ErrNoPubkey
	case "2":
		code = constants.ErrAmbiguousName
	case "3":
		code = constants.ErrWrongKeyUsage
	case "4":
		code = constants.ErrCertRevoked
	case "5":
		code = constants.ErrKeyExpired
	case "6":
		code = constants.ErrNoCRLKnown
	case "7":
		code = constants.ErrCRLTooOld
	case "9":
		code = constants.ErrNoSeckey
	default:
		code = constants.ErrGeneral
	}
	return codeError(code)
}

// signCollector gathers SIG_CREATED records and refused signers.
type signCollector struct {
	created        []*NewSignature
	invalidSigners []InvalidKey
	noSigner       bool
}

func (s *signCollector) handle(ev *status.Event) (bool, error) {
	switch ev.Keyword {
	case status.SigCreated:
		// type pkalgo hashalgo class timestamp fpr
		class, _ := strconv.ParseInt(ev.Arg(3), 16, 32)
		s.created = append(s.created, &NewSignature{
			sigType:    constants.SigModeFromLetter(ev.Arg(0)),
			pubkeyAlgo: int(ev.IntArg(1)),
			hashAlgo:   int(ev.IntArg(2)),
			sigClass:   int(class),
			timestamp:  parseTimestamp(ev.Arg(4)),
			fpr:        ev.Arg(5),
		})
	case status.InvSgnr:
		s.invalidSigners = append(s.invalidSigners, InvalidKey{
			Fingerprint: ev.Arg(1),
			Reason:      invalidKeyReason(ev.Arg(0)),
		})
	case status.NoSgnr:
		s.noSigner = true
	default:
		return false, nil
	}
	return true, nil
}

func (s *signCollector) result() error {
	switch {
	case len(s.invalidSigners) > 0:
		e := codeError(constants.ErrUnusableSeckey)
		e.InvalidSigners = s.invalidSigners
		return e
	case s.noSigner:
		return codeError(constants.ErrNoSeckey)
	}
	return nil
}

// missing reports an operation that finished without creating signatures.
func (s *signCollector) missing() error {
	if len(s.created) == 0 {
		e := codeError(constants.ErrGeneral)
		e.Message = "no signature was created"
		return e
	}
	return nil
}

// encryptCollector gathers refused recipients.
type encryptCollector struct {
	invalidRecipients []InvalidKey
	noRecipients      bool
}

func (c *encryptCollector) handle(ev *status.Event) (bool, error) {
	switch ev.Keyword {
	case status.InvRecp:
		c.invalidRecipients = append(c.invalidRecipients, InvalidKey{
			Fingerprint: ev.Arg(1),
			Reason:      invalidKeyReason(ev.Arg(0)),
		})
	case status.NoRecp:
		c.noRecipients = true
	case status.BeginEncryption, status.EndEncryption:
	default:
		return false, nil
	}
	return true, nil
}

func (c *encryptCollector) result() error {
	switch {
	case len(c.invalidRecipients) > 0:
		e := codeError(constants.ErrUnusablePubkey)
		e.InvalidRecipients = c.invalidRecipients
		return e
	case c.noRecipients:
		return codeError(constants.ErrNoPubkey)
	}
	return nil
}

// decryptCollector tracks the outcome of a decryption.
type decryptCollector struct {
	okay          bool
	failed        bool
	noSeckey      bool
	unsupported   string
	wrongKeyUsage bool
	recipients    []string
}

func (d *decryptCollector) handle(ev *status.Event) (bool, error) {
	switch ev.Keyword {
	case status.DecryptionOkay:
		d.okay = true
	case status.DecryptionFailed:
		d.failed = true
	case status.NoSeckey:
		d.noSeckey = true
	case status.EncTo:
		d.recipients = append(d.recipients, ev.Arg(0))
	case status.BeginDecryption, status.EndDecryption, status.DecryptionInfo, status.GoodMDC:
	case status.Error:
		loc, _, code := parseErrValue(ev)
		switch {
		case loc == "decrypt.algorithm":
			d.unsupported = ev.Arg(2)
			if d.unsupported == "" {
				d.unsupported = "?"
			}
		case loc == "decrypt.keyusage" || code == constants.ErrWrongKeyUsage:
			d.wrongKeyUsage = true
		default:
			return false, nil
		}
	default:
		return false, nil
	}
	return true, nil
}

func (d *decryptCollector) result() error {
	var e *Error
	switch {
	case d.failed && d.noSeckey && !d.okay:
		e = codeError(constants.ErrNoSeckey)
	case d.failed:
		e = codeError(constants.ErrDecryptFailed)
	case d.unsupported != "":
		e = codeError(constants.ErrUnsupportedAlgorithm)
	case d.wrongKeyUsage:
		e = codeError(constants.ErrWrongKeyUsage)
	default:
		return nil
	}
	e.UnsupportedAlgorithm = d.unsupported
	e.WrongKeyUsage = d.wrongKeyUsage
	return e
}

// missing reports a decryption that never reached DECRYPTION_OKAY.
func (d *decryptCollector) missing() error {
	if !d.okay {
		return codeError(constants.ErrNoData)
	}
	return nil
}

// importCollector builds an ImportResult.
type importCollector struct {
	res     ImportResult
	summary bool
}

func (c *importCollector) handle(ev *status.Event) (bool, error) {
	switch ev.Keyword {
	case status.ImportOK:
		c.res.Imports = append(c.res.Imports, ImportStatus{
			Fingerprint: ev.Arg(1),
			Status:      constants.ImportStatus(ev.IntArg(0)),
		})
	case status.ImportProblem:
		code := constants.ErrGeneral
		if ev.Arg(0) == "1" {
			code = constants.ErrBadData
		}
		c.res.Imports = append(c.res.Imports, ImportStatus{
			Fingerprint: ev.Arg(1),
			Result:      codeError(code),
		})
	case status.ImportRes:
		counters := []*int{
			&c.res.Considered, &c.res.NoUserID, &c.res.Imported, &c.res.ImportedRSA,
			&c.res.Unchanged, &c.res.NewUserIDs, &c.res.NewSubKeys, &c.res.NewSignatures,
			&c.res.NewRevocations, &c.res.SecretRead, &c.res.SecretImported,
			&c.res.SecretUnchanged, &c.res.SkippedNewKeys, &c.res.NotImported,
		}
		for i, p := range counters {
			*p = int(ev.IntArg(i))
		}
		c.summary = true
	case status.Imported, status.KeyConsidered:
	default:
		return false, nil
	}
	return true, nil
}

func (c *importCollector) result() error {
	return nil
}

func (c *importCollector) importResult() *ImportResult {
	res := c.res
	return &res
}

// deleteCollector maps DELETE_PROBLEM.
type deleteCollector struct {
	err error
}

func (d *deleteCollector) handle(ev *status.Event) (bool, error) {
	if ev.Keyword != status.DeleteProblem {
		return false, nil
	}
	switch ev.Arg(0) {
	case "1":
		d.err = codeError(constants.ErrNoPubkey)
	case "2":
		d.err = codeError(constants.ErrConflict)
	case "3":
		d.err = codeError(constants.ErrAmbiguousName)
	default:
		d.err = codeError(constants.ErrGeneral)
	}
	return true, nil
}

func (d *deleteCollector) result() error {
	return d.err
}
