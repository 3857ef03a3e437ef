package native

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/containerd/log"
	"github.com/gpgme-go/gpgme/constants"
	"github.com/gpgme-go/gpgme/engine"
	"github.com/gpgme-go/gpgme/engine/status"
	"github.com/pkg/errors"
)

// maxPassphraseTries matches gpg's default for loopback pinentry.
const maxPassphraseTries = 3

type handler func(s *session, op *engine.Operation) error

var handlers = map[engine.Kind]handler{
	engine.KindVerify:        (*session).verify,
	engine.KindSign:          (*session).sign,
	engine.KindEncrypt:       (*session).encrypt,
	engine.KindEncryptSign:   (*session).encrypt,
	engine.KindDecrypt:       (*session).decrypt,
	engine.KindDecryptVerify: (*session).decrypt,
	engine.KindImport:        (*session).importKeys,
	engine.KindExport:        (*session).exportKeys,
	engine.KindDelete:        (*session).deleteKey,
	engine.KindKeyList:       (*session).listKeys,
	engine.KindEdit:          (*session).editKey,
}

// session runs one operation on its own goroutine. Status records travel
// through an in-memory pipe; command responses through a channel.
type session struct {
	eng *Engine
	sm  engine.StateMachine

	ctx     context.Context
	cancel  context.CancelFunc
	op      *engine.Operation
	pr      *io.PipeReader
	pw      *io.PipeWriter
	events  *status.Reader
	st      *status.Writer
	answers chan string
	done    chan struct{}

	// written by the operation goroutine, read after done is closed
	err     error
	emitErr error

	killed atomic.Bool
}

func newSession(e *Engine) *session {
	pr, pw := io.Pipe()
	return &session{
		eng:     e,
		pr:      pr,
		pw:      pw,
		events:  status.NewReader(pr),
		st:      status.NewWriter(pw),
		answers: make(chan string),
		done:    make(chan struct{}),
	}
}

func (s *session) Start(ctx context.Context, op *engine.Operation) error {
	if err := s.sm.Transition(engine.StateSpawned); err != nil {
		return err
	}
	run, ok := handlers[op.Kind]
	if !ok {
		s.sm.Fail()
		return errors.Wrapf(engine.ErrUnavailable, "native: %s is not supported", op.Kind)
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.op = op
	if err := s.sm.Transition(engine.StateRunning); err != nil {
		s.cancel()
		return err
	}
	log.G(ctx).WithField("operation", op.Kind.String()).Debug("native: starting operation")

	go func() {
		defer close(s.done)
		err := run(s, op)
		if err == nil {
			err = s.emitErr
		}
		s.err = err
		_ = s.pw.Close()
	}()
	return nil
}

func (s *session) ReadEvent() (*status.Event, error) {
	ev, err := s.events.ReadEvent()
	if err == io.EOF {
		_ = s.sm.Transition(engine.StateDraining)
	}
	return ev, err
}

func (s *session) Respond(line string) error {
	if s.cancel == nil {
		return errors.New("native: session not started")
	}
	select {
	case s.answers <- line:
		return nil
	case <-s.done:
		return errors.New("native: operation already finished")
	}
}

func (s *session) Close() error {
	if s.cancel == nil {
		return nil
	}
	// Unread records would block the operation goroutine forever.
	_ = s.pr.Close()
	<-s.done
	s.cancel()

	if s.killed.Load() {
		s.sm.Fail()
		return nil
	}
	if s.sm.State() == engine.StateRunning {
		_ = s.sm.Transition(engine.StateDraining)
	}
	if s.err != nil {
		s.sm.Fail()
		return s.err
	}
	return s.sm.Transition(engine.StateDone)
}

func (s *session) Kill() error {
	s.killed.Store(true)
	s.sm.Fail()
	if s.cancel != nil {
		s.cancel()
	}
	_ = s.pr.CloseWithError(io.ErrClosedPipe)
	return nil
}

func (s *session) State() engine.State {
	return s.sm.State()
}

// emit writes one status record. After the first failed write further
// records are dropped and the failure becomes the operation result.
func (s *session) emit(k status.Keyword, args ...interface{}) {
	if s.emitErr != nil {
		return
	}
	if err := s.st.Emit(k, args...); err != nil {
		s.emitErr = errors.Wrap(err, "native: status channel closed")
	}
}

// ask emits a prompt and waits for the response.
func (s *session) ask(k status.Keyword, prompt string) (string, error) {
	s.emit(k, prompt)
	if s.emitErr != nil {
		return "", s.emitErr
	}
	select {
	case line := <-s.answers:
		return line, nil
	case <-s.ctx.Done():
		return "", errors.Wrap(s.ctx.Err(), "native: prompt aborted")
	}
}

// failure ends the operation the way gpg fails: a FAILURE record naming the
// operation followed by exit status 2.
func (s *session) failure(code constants.ErrCode, format string, args ...interface{}) error {
	s.emit(status.Failure, s.op.Kind.String(), constants.MakeErrValue(constants.SourceGPG, code))
	return &engine.ExitError{Code: 2, Stderr: fmt.Sprintf(format, args...)}
}

// noData reports input without usable OpenPGP data. what follows gpg:
// 1 no armored data, 2 expected packet missing, 3 invalid packet, 4 no
// signature.
func (s *session) noData(what int) error {
	s.emit(status.NoData, what)
	return &engine.ExitError{Code: 2, Stderr: "no valid OpenPGP data found"}
}

func (s *session) progress(what string, n int) {
	s.emit(status.Progress, what, "?", n, n)
}

func readInput(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "native: unable to read input")
	}
	return data, nil
}
