package gpgme

import (
	"context"
	"io"
	"time"

	"github.com/containerd/log"
	"github.com/gpgme-go/gpgme/constants"
	"github.com/gpgme-go/gpgme/engine"
	"github.com/gpgme-go/gpgme/engine/status"
	"github.com/pkg/errors"
)

// run drives one operation through a fresh engine session.
func (c *Context) run(ctx context.Context, cfg *config, op *engine.Operation, col collector) error {
	return c.runWithEditor(ctx, cfg, op, col, nil)
}

func (c *Context) runWithEditor(ctx context.Context, cfg *config, op *engine.Operation, col collector, edit EditFunc) (err error) {
	start := time.Now()
	logger := log.G(ctx).WithFields(log.Fields{
		"operation": op.Kind.String(),
		"protocol":  cfg.protocol.String(),
	})
	defer func() {
		c.metrics.Observe(op.Kind.String(), time.Since(start), err)
		if err != nil {
			logger.WithError(err).Debug("gpgme: operation failed")
			return
		}
		logger.WithField("duration", time.Since(start)).Debug("gpgme: operation finished")
	}()

	sess, err := c.engine.NewSession(cfg.protocol)
	if err != nil {
		return unavailable(err)
	}
	if err := sess.Start(ctx, op); err != nil {
		_ = sess.Kill()
		return unavailable(err)
	}

	b := newBridge(op.Kind, cfg, sess)
	b.edit = edit
	all := collectors{col, newBaseCollector(op.Kind)}

	abort := consume(sess, b, all, logger)
	if abort != nil {
		_ = sess.Kill()
		_ = sess.Close()
		return abort
	}

	closeErr := sess.Close()
	if ctx.Err() != nil {
		return errors.Wrap(ctx.Err(), "gpgme: operation aborted")
	}
	if err := all.result(); err != nil {
		return err
	}
	if closeErr != nil {
		return protocolViolation(closeErr, "engine terminated abnormally during %s", op.Kind)
	}
	return nil
}

// consume processes status records in engine order until the status
// channel closes or a record aborts the operation.
func consume(sess engine.Session, b *bridge, all collectors, logger *log.Entry) error {
	for {
		ev, err := sess.ReadEvent()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return protocolViolation(err, "unable to read status channel")
		}
		logger.WithField("status", ev.String()).Trace("gpgme: status")

		claimed, err := b.handle(ev)
		if err != nil {
			return err
		}
		if claimed {
			continue
		}
		claimed, err = all.handle(ev)
		if err != nil {
			return err
		}
		if !claimed && ev.Keyword == status.KeywordUnknown {
			logger.WithField("keyword", ev.Name).Debug("gpgme: ignoring unknown status keyword")
		}
	}
}

func unavailable(cause error) error {
	e := newError(KindEngineUnavailable, constants.ErrInvEngine, "unable to start engine")
	e.Cause = cause
	return e
}

// annotate attaches partial results to an operation error.
func annotate(err error, fn func(e *Error)) error {
	var e *Error
	if errors.As(err, &e) {
		fn(e)
	}
	return err
}
