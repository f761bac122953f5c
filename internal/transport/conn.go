// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package transport

import (
	"context"
	"io"
	"sync"

	"github.com/OndrejCopak-eaton/testcentric-engine/errors"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/engineerr"
)

// EventHandler consumes events in the order the agent emitted them. It is
// called from the connection's read goroutine, so it must not block on the
// connection itself.
type EventHandler func(ev *Event)

// Conn is the controller side of an agent channel. It serializes commands
// so that at most one is outstanding, and dispatches interleaved events to
// the handler in arrival order.
type Conn struct {
	rw      io.ReadWriteCloser
	onEvent EventHandler

	wmu sync.Mutex // guards writes to rw

	callMu sync.Mutex // serializes Call

	mu      sync.Mutex
	pending chan *Result
	err     error // sticky read error; the channel is poisoned once set
	done    chan struct{}
}

// NewConn wraps rw and starts the read loop. onEvent may be nil to discard
// events.
func NewConn(rw io.ReadWriteCloser, onEvent EventHandler) *Conn {
	c := &Conn{
		rw:      rw,
		onEvent: onEvent,
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Conn) readLoop() {
	for {
		f, err := ReadFrame(c.rw)
		if err != nil {
			c.fail(err)
			return
		}
		switch f.Kind {
		case KindCommandResult:
			res, err := decodeResult(f.Payload)
			if err != nil {
				c.fail(err)
				return
			}
			c.mu.Lock()
			ch := c.pending
			c.pending = nil
			c.mu.Unlock()
			if ch != nil {
				ch <- res
			}
		case KindEvent:
			ev, err := decodeEvent(f.Payload)
			if err != nil {
				c.fail(err)
				return
			}
			if c.onEvent != nil {
				c.onEvent(ev)
			}
		default:
			c.fail(engineerr.Newf(engineerr.ProtocolError, "unexpected frame kind %d from agent", f.Kind))
			return
		}
	}
}

// fail poisons the connection: the sticky error is recorded, any pending
// call is woken, and the channel is closed.
func (c *Conn) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
		close(c.done)
	}
	ch := c.pending
	c.pending = nil
	c.mu.Unlock()
	if ch != nil {
		ch <- nil
	}
	c.rw.Close()
}

// Err returns the sticky error, or nil while the connection is healthy.
// io.EOF indicates the agent closed the channel.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed when the connection dies.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Call sends a command and waits for its result. Calls are serialized; the
// result payload is returned, or the reconstructed error if the agent
// reported a failure.
func (c *Conn) Call(ctx context.Context, name string, args ...string) (string, error) {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	ch := make(chan *Result, 1)
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return "", errors.Wrapf(err, "command %s on dead channel", name)
	}
	c.pending = ch
	c.mu.Unlock()

	if err := c.writeFrame(&Frame{Kind: KindCommand, Payload: encodeCommand(&Command{Name: name, Args: args})}); err != nil {
		c.fail(err)
		return "", errors.Wrapf(err, "failed to send command %s", name)
	}

	select {
	case res := <-ch:
		if res == nil {
			return "", errors.Wrapf(c.Err(), "channel died awaiting result of %s", name)
		}
		if !res.OK {
			return "", engineerr.FromEnvelope(res.ErrKind, res.ErrMessage)
		}
		return res.Payload, nil
	case <-ctx.Done():
		// The command may still complete; the channel is unusable for
		// further calls, so poison it.
		c.fail(errors.Wrapf(ctx.Err(), "command %s abandoned", name))
		return "", ctx.Err()
	}
}

// SendStop sends a Stop frame asking the agent to exit.
func (c *Conn) SendStop() error {
	return c.writeFrame(&Frame{Kind: KindStop})
}

// SendEvent sends an event frame. Used by the agent side of a channel; the
// controller side normally only consumes events.
func (c *Conn) SendEvent(ev *Event) error {
	return c.writeFrame(&Frame{Kind: KindEvent, Payload: encodeEvent(ev)})
}

func (c *Conn) writeFrame(f *Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return WriteFrame(c.rw, f)
}

// Close tears the connection down.
func (c *Conn) Close() error {
	c.fail(io.EOF)
	return nil
}
