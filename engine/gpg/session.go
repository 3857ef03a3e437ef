package gpg

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/containerd/log"
	"github.com/gpgme-go/gpgme/constants"
	"github.com/gpgme-go/gpgme/engine"
	"github.com/gpgme-go/gpgme/engine/status"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// session is one gpg or gpgsm process.
type session struct {
	cfg      Config
	protocol constants.Protocol
	path     string
	sm       engine.StateMachine

	ctx     context.Context
	op      *engine.Operation
	cmd     *exec.Cmd
	events  *status.Reader
	statusR *os.File
	command *os.File
	stderr  tailBuffer
	pumps   errgroup.Group
	killed  atomic.Bool
}

func (s *session) Start(ctx context.Context, op *engine.Operation) error {
	if err := s.sm.Transition(engine.StateSpawned); err != nil {
		return err
	}
	args, err := buildArgs(s.cfg, s.protocol, op)
	if err != nil {
		s.sm.Fail()
		return err
	}

	// child ends are closed in the parent once the process started, parent
	// ends only on failure.
	var child, parent []*os.File
	fail := func(err error) error {
		closeAll(child)
		closeAll(parent)
		s.sm.Fail()
		return err
	}
	pipe := func() (r, w *os.File, err error) {
		r, w, err = os.Pipe()
		if err != nil {
			return nil, nil, errors.Wrap(err, "gpg: unable to create pipe")
		}
		return r, w, nil
	}

	statusR, statusW, err := pipe()
	if err != nil {
		return fail(err)
	}
	child, parent = append(child, statusW), append(parent, statusR)
	commandR, commandW, err := pipe()
	if err != nil {
		return fail(err)
	}
	child, parent = append(child, commandR), append(parent, commandW)

	cmd := exec.CommandContext(ctx, s.path, args...)
	cmd.Env = s.cfg.environ()
	cmd.Stderr = &s.stderr
	cmd.ExtraFiles = []*os.File{statusW, commandR}

	input := op.Input
	var sigW *os.File
	if op.Kind == engine.KindVerify && op.SignedText != nil {
		var sigR *os.File
		if sigR, sigW, err = pipe(); err != nil {
			return fail(err)
		}
		child, parent = append(child, sigR), append(parent, sigW)
		cmd.ExtraFiles = append(cmd.ExtraFiles, sigR)
		input = op.SignedText
	}
	var stdinW *os.File
	if input != nil {
		var stdinR *os.File
		if stdinR, stdinW, err = pipe(); err != nil {
			return fail(err)
		}
		child, parent = append(child, stdinR), append(parent, stdinW)
		cmd.Stdin = stdinR
	}
	var stdoutR *os.File
	if op.Output != nil {
		var stdoutW *os.File
		if stdoutR, stdoutW, err = pipe(); err != nil {
			return fail(err)
		}
		child, parent = append(child, stdoutW), append(parent, stdoutR)
		cmd.Stdout = stdoutW
	}

	log.G(ctx).WithFields(log.Fields{
		"binary": s.path,
		"args":   strings.Join(args, " "),
	}).Debug("gpg: spawning engine")
	if err := cmd.Start(); err != nil {
		return fail(errors.Wrapf(engine.ErrUnavailable, "gpg: unable to start %s: %v", s.path, err))
	}
	closeAll(child)

	s.ctx = ctx
	s.op = op
	s.cmd = cmd
	s.statusR = statusR
	s.command = commandW
	s.events = status.NewReader(statusR)
	if err := s.sm.Transition(engine.StateRunning); err != nil {
		return err
	}

	if stdinW != nil {
		s.pumps.Go(func() error { return pump(stdinW, input) })
	}
	if sigW != nil {
		s.pumps.Go(func() error { return pump(sigW, op.Input) })
	}
	if stdoutR != nil {
		s.pumps.Go(func() error {
			defer stdoutR.Close()
			if _, err := io.Copy(op.Output, stdoutR); err != nil {
				return errors.Wrap(err, "gpg: unable to write engine output")
			}
			return nil
		})
	}
	return nil
}

// pump copies r into the child and closes the pipe. A child that stops
// reading early is not an error; its status records say why.
func pump(w *os.File, r io.Reader) error {
	_, err := io.Copy(w, r)
	_ = w.Close()
	if err != nil && !errors.Is(err, syscall.EPIPE) && !errors.Is(err, os.ErrClosed) {
		return errors.Wrap(err, "gpg: unable to write engine input")
	}
	return nil
}

func (s *session) ReadEvent() (*status.Event, error) {
	if s.events == nil {
		return nil, errors.New("gpg: session not started")
	}
	ev, err := s.events.ReadEvent()
	if err == io.EOF {
		_ = s.sm.Transition(engine.StateDraining)
	}
	return ev, err
}

func (s *session) Respond(line string) error {
	if s.command == nil {
		return errors.New("gpg: session not started")
	}
	if _, err := io.WriteString(s.command, line+"\n"); err != nil {
		return errors.Wrap(err, "gpg: unable to write command channel")
	}
	return nil
}

func (s *session) Close() error {
	if s.cmd == nil {
		return nil
	}
	_ = s.command.Close()
	pumpErr := s.pumps.Wait()
	waitErr := s.cmd.Wait()
	_ = s.statusR.Close()

	if s.killed.Load() {
		s.sm.Fail()
		return nil
	}
	if s.sm.State() == engine.StateRunning {
		_ = s.sm.Transition(engine.StateDraining)
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			s.sm.Fail()
			return errors.Wrap(waitErr, "gpg: unable to wait for engine")
		}
		code := exitErr.ExitCode()
		log.G(s.ctx).WithFields(log.Fields{
			"operation": s.op.Kind.String(),
			"code":      code,
		}).Debug("gpg: engine exited")
		if !inBandExit(s.op.Kind, code) {
			s.sm.Fail()
			return &engine.ExitError{Code: code, Stderr: s.stderr.String()}
		}
	}
	if pumpErr != nil {
		s.sm.Fail()
		return pumpErr
	}
	return s.sm.Transition(engine.StateDone)
}

func (s *session) Kill() error {
	s.killed.Store(true)
	s.sm.Fail()
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return errors.Wrap(err, "gpg: unable to kill engine")
	}
	return nil
}

func (s *session) State() engine.State {
	return s.sm.State()
}

func closeAll(files []*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

const maxStderr = 4096

// tailBuffer keeps the last maxStderr bytes written to it.
type tailBuffer struct {
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if len(b.buf) > maxStderr {
		b.buf = b.buf[len(b.buf)-maxStderr:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return strings.TrimSpace(string(b.buf))
}
