// Package enginetest provides a scripted engine for testing code that
// drives engine sessions.
package enginetest

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/gpgme-go/gpgme/constants"
	"github.com/gpgme-go/gpgme/engine"
	"github.com/gpgme-go/gpgme/engine/status"
	"github.com/pkg/errors"
)

// Script describes one session.
type Script struct {
	// Lines are status records without the "[GNUPG:] " prefix, emitted in
	// order. After a prompt record the session waits for Respond.
	Lines []string
	// Output is written to the operation output when the session drains.
	Output []byte
	// ExitErr is returned by Close.
	ExitErr error
	// StartErr is returned by Start.
	StartErr error
}

// Engine hands out one scripted session per NewSession call.
type Engine struct {
	mu       sync.Mutex
	scripts  []*Script
	sessions []*Session
	// NewSessionErr fails every NewSession call when set.
	NewSessionErr error
}

// New returns an engine serving scripts in order.
func New(scripts ...*Script) *Engine {
	return &Engine{scripts: scripts}
}

// Add queues more scripts.
func (e *Engine) Add(scripts ...*Script) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripts = append(e.scripts, scripts...)
}

func (e *Engine) NewSession(p constants.Protocol) (engine.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if len(e.scripts) == 0 {
		return nil, errors.Wrap(engine.ErrUnavailable, "enginetest: no script left")
	}
	s := &Session{script: e.scripts[0], Protocol: p}
	e.scripts = e.scripts[1:]
	e.sessions = append(e.sessions, s)
	return s, nil
}

func (e *Engine) Info() engine.Info {
	return engine.Info{Name: "enginetest"}
}

// Sessions returns the sessions created so far.
func (e *Engine) Sessions() []*Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Session(nil), e.sessions...)
}

// Last returns the most recent session, or nil.
func (e *Engine) Last() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sessions) == 0 {
		return nil
	}
	return e.sessions[len(e.sessions)-1]
}

// Session replays a Script and records what the caller sent.
type Session struct {
	script *Script
	sm     engine.StateMachine

	Protocol constants.Protocol
	// Op is the operation passed to Start.
	Op *engine.Operation
	// Input and SignedText hold the data read from the operation streams.
	Input      []byte
	SignedText []byte
	// Responses are the lines written to the command channel.
	Responses []string
	Killed    bool
	Closed    bool

	pos           int
	pendingPrompt bool
}

func (s *Session) Start(ctx context.Context, op *engine.Operation) error {
	if err := s.sm.Transition(engine.StateSpawned); err != nil {
		return err
	}
	if s.script.StartErr != nil {
		s.sm.Fail()
		return s.script.StartErr
	}
	s.Op = op
	var err error
	if op.Input != nil {
		if s.Input, err = io.ReadAll(op.Input); err != nil {
			return errors.Wrap(err, "enginetest: unable to read input")
		}
	}
	if op.SignedText != nil {
		if s.SignedText, err = io.ReadAll(op.SignedText); err != nil {
			return errors.Wrap(err, "enginetest: unable to read signed text")
		}
	}
	return s.sm.Transition(engine.StateRunning)
}

func (s *Session) ReadEvent() (*status.Event, error) {
	if s.pendingPrompt {
		return nil, errors.New("enginetest: read while a prompt is unanswered")
	}
	if s.Killed {
		return nil, io.ErrClosedPipe
	}
	if s.pos >= len(s.script.Lines) {
		if s.sm.State() == engine.StateRunning {
			if err := s.drain(); err != nil {
				return nil, err
			}
		}
		return nil, io.EOF
	}
	line := s.script.Lines[s.pos]
	s.pos++
	ev, ok := status.Parse(status.Prefix + line)
	if !ok {
		return nil, errors.Errorf("enginetest: malformed script line %q", line)
	}
	s.pendingPrompt = ev.Keyword.IsPrompt()
	return ev, nil
}

func (s *Session) drain() error {
	if err := s.sm.Transition(engine.StateDraining); err != nil {
		return err
	}
	if s.Op.Output != nil && len(s.script.Output) > 0 {
		if _, err := io.Copy(s.Op.Output, bytes.NewReader(s.script.Output)); err != nil {
			return errors.Wrap(err, "enginetest: unable to write output")
		}
	}
	return nil
}

func (s *Session) Respond(line string) error {
	if !s.pendingPrompt {
		return errors.Errorf("enginetest: response %q without a prompt", line)
	}
	s.pendingPrompt = false
	s.Responses = append(s.Responses, line)
	return nil
}

func (s *Session) Close() error {
	s.Closed = true
	if s.Killed {
		s.sm.Fail()
		return nil
	}
	if s.script.ExitErr != nil {
		s.sm.Fail()
		return s.script.ExitErr
	}
	if s.sm.State() == engine.StateRunning {
		if err := s.drain(); err != nil {
			s.sm.Fail()
			return err
		}
	}
	return s.sm.Transition(engine.StateDone)
}

func (s *Session) Kill() error {
	s.Killed = true
	s.sm.Fail()
	return nil
}

func (s *Session) State() engine.State {
	return s.sm.State()
}

// Lines splits text into script lines, dropping blank lines and
// surrounding whitespace.
func Lines(text string) []string {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
