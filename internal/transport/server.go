// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package transport

import (
	"context"
	"io"
	"sync"

	"github.com/OndrejCopak-eaton/testcentric-engine/internal/engineerr"
)

// CommandHandler executes one command on the agent and returns its result
// payload. A returned error is serialized into the error envelope with the
// error's engine kind.
type CommandHandler func(ctx context.Context, cmd *Command) (string, error)

// AgentConn is the agent side of a channel. The agent serves commands one
// at a time and may emit events at any point, including from within a
// command handler.
type AgentConn struct {
	rw  io.ReadWriteCloser
	wmu sync.Mutex
}

// NewAgentConn wraps rw.
func NewAgentConn(rw io.ReadWriteCloser) *AgentConn {
	return &AgentConn{rw: rw}
}

// SendEvent emits an event frame. Safe to call concurrently with result
// writes; frames never interleave mid-frame.
func (a *AgentConn) SendEvent(ev *Event) error {
	return a.writeFrame(&Frame{Kind: KindEvent, Payload: encodeEvent(ev)})
}

// Serve reads commands and dispatches them to handler until a Stop frame
// arrives, the peer closes the channel, or ctx is canceled. Commands are
// handled strictly in order; the result frame for a command is written
// after any events its handler emitted.
func (a *AgentConn) Serve(ctx context.Context, handler CommandHandler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := ReadFrame(a.rw)
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}

		switch f.Kind {
		case KindStop:
			return nil
		case KindCommand:
			cmd, err := decodeCommand(f.Payload)
			if err != nil {
				return err
			}
			res := &Result{}
			if payload, err := handler(ctx, cmd); err != nil {
				res.ErrKind = string(engineerr.KindOf(err))
				res.ErrMessage = err.Error()
			} else {
				res.OK = true
				res.Payload = payload
			}
			if err := a.writeFrame(&Frame{Kind: KindCommandResult, Payload: encodeResult(res)}); err != nil {
				return err
			}
		default:
			return engineerr.Newf(engineerr.ProtocolError, "unexpected frame kind %d from controller", f.Kind)
		}
	}
}

func (a *AgentConn) writeFrame(f *Frame) error {
	a.wmu.Lock()
	defer a.wmu.Unlock()
	return WriteFrame(a.rw, f)
}

// Close tears the channel down.
func (a *AgentConn) Close() error {
	return a.rw.Close()
}
