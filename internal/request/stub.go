package request

import (
	"os"
	"strconv"
	"sync/atomic"
)

// StubEnvVar enables stub mode when set to a non-false value.
const StubEnvVar = "STUB"

// Stub is the test-mode switch shared by dispatchers.
// The zero value is disabled; a nil *Stub is treated as disabled.
type Stub struct {
	enabled atomic.Bool
}

// NewStub creates a switch with the given initial state.
func NewStub(enabled bool) *Stub {
	s := &Stub{}
	s.enabled.Store(enabled)
	return s
}

// StubFromEnv creates a switch initialised from the STUB environment variable.
func StubFromEnv() *Stub {
	return NewStub(envEnabled(os.Getenv(StubEnvVar)))
}

// envEnabled treats any non-empty value as enabled unless it parses as false.
func envEnabled(v string) bool {
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return b
}

// Enabled reports whether posts should be stubbed.
func (s *Stub) Enabled() bool {
	if s == nil {
		return false
	}
	return s.enabled.Load()
}

// Set changes the switch state.
func (s *Stub) Set(enabled bool) {
	s.enabled.Store(enabled)
}

// Enable turns stub mode on.
func (s *Stub) Enable() { s.Set(true) }

// Disable turns stub mode off.
func (s *Stub) Disable() { s.Set(false) }
