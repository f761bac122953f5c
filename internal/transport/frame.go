// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package transport implements the framed channel between the controller
// and an agent.
//
// Each frame is [length:u32 big-endian][kind:u8][payload]; the length
// covers the kind byte and the payload. Commands flow from the controller
// to the agent, results and events flow back, and a Stop frame asks the
// agent to shut down. At most one command is outstanding per channel;
// events interleave freely with the result frame but arrive in the order
// the agent emitted them.
package transport

import (
	"encoding/binary"
	"io"

	"github.com/OndrejCopak-eaton/testcentric-engine/errors"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/engineerr"
)

// Kind identifies the frame type.
type Kind byte

// Frame kinds.
const (
	KindCommand       Kind = 1
	KindCommandResult Kind = 2
	KindEvent         Kind = 3
	KindStop          Kind = 4
)

// maxFrameSize bounds a frame to keep a corrupt length prefix from
// allocating unbounded memory.
const maxFrameSize = 64 << 20

// Frame is one unit on the wire.
type Frame struct {
	Kind    Kind
	Payload []byte
}

// WriteFrame writes f to w.
func WriteFrame(w io.Writer, f *Frame) error {
	var hdr [5]byte
	binary.BigEndian.PutUint32(hdr[:4], uint32(1+len(f.Payload)))
	hdr[4] = byte(f.Kind)
	if _, err := w.Write(hdr[:]); err != nil {
		return errors.Wrap(err, "failed to write frame header")
	}
	if len(f.Payload) == 0 {
		return nil
	}
	if _, err := w.Write(f.Payload); err != nil {
		return errors.Wrap(err, "failed to write frame payload")
	}
	return nil
}

// ReadFrame reads the next frame from r. io.EOF is returned unwrapped when
// the stream ends cleanly between frames.
func ReadFrame(r io.Reader) (*Frame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, engineerr.Wrap(engineerr.ProtocolError, err, "failed to read frame length")
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 || length > maxFrameSize {
		return nil, engineerr.Newf(engineerr.ProtocolError, "bad frame length %d", length)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, engineerr.Wrap(engineerr.ProtocolError, err, "failed to read frame body")
	}
	return &Frame{Kind: Kind(body[0]), Payload: body[1:]}, nil
}

// Command is a request to the agent: a name plus positional arguments.
type Command struct {
	Name string
	Args []string
}

// Result is the outcome of one command. Exactly one Result is produced per
// Command.
type Result struct {
	OK      bool
	Payload string
	// ErrKind and ErrMessage form the error envelope when OK is false.
	ErrKind    string
	ErrMessage string
}

// Event is a fire-and-forget notification from the agent.
type Event struct {
	Type string
	Body string
}

// Well-known event types.
const (
	// EventAgentStarted is the handshake event carrying the agent id.
	EventAgentStarted = "AgentStarted"
	// EventLog mirrors an agent-side log message.
	EventLog = "Log"
	// EventProgress carries a test progress report, opaque to the engine.
	EventProgress = "Progress"
)

func putString(buf []byte, s string) []byte {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(s)))
	buf = append(buf, n[:]...)
	return append(buf, s...)
}

func getString(buf []byte) (string, []byte, error) {
	if len(buf) < 4 {
		return "", nil, engineerr.New(engineerr.ProtocolError, "truncated string length")
	}
	n := binary.BigEndian.Uint32(buf[:4])
	buf = buf[4:]
	if uint32(len(buf)) < n {
		return "", nil, engineerr.Newf(engineerr.ProtocolError, "truncated string of length %d", n)
	}
	return string(buf[:n]), buf[n:], nil
}

// encodeCommand renders a command payload: a length-prefixed name, an
// argument count, then length-prefixed arguments.
func encodeCommand(cmd *Command) []byte {
	buf := putString(nil, cmd.Name)
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(cmd.Args)))
	buf = append(buf, n[:]...)
	for _, arg := range cmd.Args {
		buf = putString(buf, arg)
	}
	return buf
}

func decodeCommand(payload []byte) (*Command, error) {
	name, rest, err := getString(payload)
	if err != nil {
		return nil, err
	}
	if len(rest) < 4 {
		return nil, engineerr.New(engineerr.ProtocolError, "truncated argument count")
	}
	count := binary.BigEndian.Uint32(rest[:4])
	rest = rest[4:]
	cmd := &Command{Name: name}
	for i := uint32(0); i < count; i++ {
		var arg string
		if arg, rest, err = getString(rest); err != nil {
			return nil, err
		}
		cmd.Args = append(cmd.Args, arg)
	}
	return cmd, nil
}

// encodeResult renders a result payload: an ok byte followed by either the
// result payload or the error envelope.
func encodeResult(res *Result) []byte {
	if res.OK {
		return putString([]byte{1}, res.Payload)
	}
	buf := putString([]byte{0}, res.ErrKind)
	return putString(buf, res.ErrMessage)
}

func decodeResult(payload []byte) (*Result, error) {
	if len(payload) < 1 {
		return nil, engineerr.New(engineerr.ProtocolError, "empty result payload")
	}
	ok := payload[0] == 1
	rest := payload[1:]
	if ok {
		p, _, err := getString(rest)
		if err != nil {
			return nil, err
		}
		return &Result{OK: true, Payload: p}, nil
	}
	kind, rest, err := getString(rest)
	if err != nil {
		return nil, err
	}
	msg, _, err := getString(rest)
	if err != nil {
		return nil, err
	}
	return &Result{ErrKind: kind, ErrMessage: msg}, nil
}

// DecodeHandshake interprets the first frame of an agent callback
// connection, which must be the AgentStarted event.
func DecodeHandshake(f *Frame) (*Event, error) {
	if f.Kind != KindEvent {
		return nil, engineerr.Newf(engineerr.ProtocolError, "expected handshake event, got frame kind %d", f.Kind)
	}
	ev, err := decodeEvent(f.Payload)
	if err != nil {
		return nil, err
	}
	if ev.Type != EventAgentStarted {
		return nil, engineerr.Newf(engineerr.ProtocolError, "expected %s handshake, got %s", EventAgentStarted, ev.Type)
	}
	return ev, nil
}

func encodeEvent(ev *Event) []byte {
	return putString(putString(nil, ev.Type), ev.Body)
}

func decodeEvent(payload []byte) (*Event, error) {
	typ, rest, err := getString(payload)
	if err != nil {
		return nil, err
	}
	body, _, err := getString(rest)
	if err != nil {
		return nil, err
	}
	return &Event{Type: typ, Body: body}, nil
}
