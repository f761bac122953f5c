// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package engineerr classifies engine failures with machine-readable kinds.
//
// Kinds cross the process boundary: the agent serializes the kind of a
// failed command into the error envelope of a CommandResult frame, and the
// controller reconstructs an error of the same kind. Use KindOf to branch on
// a kind regardless of how many times the error was wrapped.
package engineerr

import (
	"fmt"

	"github.com/OndrejCopak-eaton/testcentric-engine/errors"
)

// Kind identifies a class of engine failure.
type Kind string

// Engine failure kinds.
const (
	// UnsupportedRuntime indicates a runtime tag we refuse to parse or host.
	UnsupportedRuntime Kind = "UnsupportedRuntime"
	// UnsupportedPlatform indicates a binary targeting a platform the engine
	// rejects outright.
	UnsupportedPlatform Kind = "UnsupportedPlatform"
	// BadBinary indicates unreadable or malformed binary metadata.
	BadBinary Kind = "BadBinary"
	// FrameworkNotFound indicates no test framework reference was resolved.
	FrameworkNotFound Kind = "FrameworkNotFound"
	// IncompatibleFramework indicates a framework out of the supported range.
	IncompatibleFramework Kind = "IncompatibleFramework"
	// NoSuitableAgent indicates no launcher accepts a package.
	NoSuitableAgent Kind = "NoSuitableAgent"
	// AgentLaunchFailed indicates an agent process failed to start or to
	// complete its handshake.
	AgentLaunchFailed Kind = "AgentLaunchFailed"
	// AgentCrashed indicates an agent process exited unexpectedly.
	AgentCrashed Kind = "AgentCrashed"
	// NotLoaded indicates a driver operation before a successful Load.
	NotLoaded Kind = "NotLoaded"
	// ForceStopNotSupported indicates StopRun(force=true) sent to a driver.
	ForceStopNotSupported Kind = "ForceStopNotSupported"
	// ExtensionLoadError indicates an explicitly-listed extension candidate
	// whose metadata could not be read.
	ExtensionLoadError Kind = "ExtensionLoadError"
	// DuplicateExtensionPoint indicates two extension points sharing a path.
	DuplicateExtensionPoint Kind = "DuplicateExtensionPoint"
	// NoExtensionPoint indicates an extension that binds to no known point.
	NoExtensionPoint Kind = "NoExtensionPoint"
	// AmbiguousExtensionPoint indicates an extension that binds to more than
	// one point.
	AmbiguousExtensionPoint Kind = "AmbiguousExtensionPoint"
	// DriverError wraps any framework-side failure.
	DriverError Kind = "DriverError"
	// ProtocolError indicates a malformed frame on the agent channel.
	ProtocolError Kind = "ProtocolError"
)

// kindError attaches a Kind to an error chain.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// New creates a new error of the given kind.
func New(kind Kind, msg string) error {
	return &kindError{kind, errors.New(msg)}
}

// Newf creates a new error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &kindError{kind, errors.Errorf(format, args...)}
}

// Wrap classifies an existing error with a kind, keeping it as the cause.
func Wrap(kind Kind, cause error, msg string) error {
	return &kindError{kind, errors.Wrap(cause, msg)}
}

// Wrapf is like Wrap with a formatted message.
func Wrapf(kind Kind, cause error, format string, args ...interface{}) error {
	return &kindError{kind, errors.Wrapf(cause, format, args...)}
}

// KindOf returns the kind of err, or an empty Kind if the chain carries
// none. The innermost classification wins so that wrapping a classified
// error with another kind (e.g. DriverError) does not lose the original.
func KindOf(err error) Kind {
	var kind Kind
	for err != nil {
		if ke, ok := err.(*kindError); ok {
			kind = ke.kind
		}
		err = unwrap(err)
	}
	return kind
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		if ke, ok := err.(*kindError); ok && ke.kind == kind {
			return true
		}
		err = unwrap(err)
	}
	return false
}

func unwrap(err error) error {
	u, ok := err.(interface{ Unwrap() error })
	if !ok {
		return nil
	}
	return u.Unwrap()
}

// FromEnvelope reconstructs an error from a wire error envelope.
func FromEnvelope(kind, message string) error {
	if kind == "" {
		return errors.New(message)
	}
	return New(Kind(kind), message)
}

// String implements fmt.Stringer for log messages.
func (k Kind) String() string { return string(k) }

var _ fmt.Stringer = Kind("")
