// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package drivers

import (
	"reflect"
	"strings"

	"github.com/OndrejCopak-eaton/testcentric-engine/internal/engineerr"
)

// ControllerProvider resolves the controller object driving a framework's
// tests. Providers are registered per framework simple name; the returned
// controller is opaque to the engine and invoked by method name.
type ControllerProvider interface {
	// FrameworkName is the framework's assembly simple name,
	// e.g. "nunit.framework". Matching is case-insensitive.
	FrameworkName() string
	// CreateController builds a controller for the test binary at
	// assemblyPath with the given package settings.
	CreateController(assemblyPath string, settings map[string]string) (interface{}, error)
}

// ProviderSet holds the registered controller providers. It is populated at
// startup and immutable afterwards; there is no process-global provider
// state.
type ProviderSet struct {
	providers []ControllerProvider
}

// NewProviderSet creates a provider set.
func NewProviderSet(providers ...ControllerProvider) *ProviderSet {
	return &ProviderSet{providers: providers}
}

// Lookup finds the provider for a framework reference, case-insensitively.
func (s *ProviderSet) Lookup(frameworkRef string) ControllerProvider {
	for _, p := range s.providers {
		if strings.EqualFold(p.FrameworkName(), frameworkRef) {
			return p
		}
	}
	return nil
}

// controllerHandle wraps an opaque framework controller for name-indexed
// invocation.
type controllerHandle struct {
	value reflect.Value
}

func newControllerHandle(controller interface{}) controllerHandle {
	return controllerHandle{value: reflect.ValueOf(controller)}
}

// invoke calls a controller method by name. The framework controller type
// is unknown at build time, so the lookup is late-bound; a missing method
// means the resolved controller does not expose the expected surface.
func (h controllerHandle) invoke(name string, args ...interface{}) ([]reflect.Value, error) {
	m := h.value.MethodByName(name)
	if !m.IsValid() {
		return nil, engineerr.Newf(engineerr.IncompatibleFramework,
			"controller %s has no %s method", h.value.Type(), name)
	}
	if m.Type().NumIn() != len(args) {
		return nil, engineerr.Newf(engineerr.IncompatibleFramework,
			"controller method %s takes %d arguments, not %d", name, m.Type().NumIn(), len(args))
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		in[i] = reflect.ValueOf(a)
	}

	out := m.Call(in)

	// A trailing error return reports a framework-side failure; it is
	// wrapped as DriverError at this boundary.
	if n := len(out); n > 0 && out[n-1].Type() == errorType {
		if errv := out[n-1]; !errv.IsNil() {
			return nil, engineerr.Wrapf(engineerr.DriverError, errv.Interface().(error), "%s failed", name)
		}
		out = out[:n-1]
	}
	return out, nil
}

// invokeString calls a method expected to yield a string.
func (h controllerHandle) invokeString(name string, args ...interface{}) (string, error) {
	out, err := h.invoke(name, args...)
	if err != nil {
		return "", err
	}
	if len(out) != 1 || out[0].Kind() != reflect.String {
		return "", engineerr.Newf(engineerr.IncompatibleFramework, "controller method %s did not yield a string", name)
	}
	return out[0].String(), nil
}

// invokeInt calls a method expected to yield an int.
func (h controllerHandle) invokeInt(name string, args ...interface{}) (int, error) {
	out, err := h.invoke(name, args...)
	if err != nil {
		return 0, err
	}
	if len(out) != 1 || out[0].Kind() != reflect.Int {
		return 0, engineerr.Newf(engineerr.IncompatibleFramework, "controller method %s did not yield an int", name)
	}
	return int(out[0].Int()), nil
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()
