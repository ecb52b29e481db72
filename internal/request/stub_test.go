package request

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStub_Toggle(t *testing.T) {
	s := NewStub(false)
	assert.False(t, s.Enabled())

	s.Enable()
	assert.True(t, s.Enabled())

	s.Disable()
	assert.False(t, s.Enabled())

	s.Set(true)
	assert.True(t, s.Enabled())
}

func TestStub_NilIsDisabled(t *testing.T) {
	var s *Stub
	assert.False(t, s.Enabled())
}

func TestStubFromEnv(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"", false},
		{"1", true},
		{"true", true},
		{"yes", true},
		{"0", false},
		{"false", false},
	}

	for _, tt := range tests {
		t.Run("STUB="+tt.value, func(t *testing.T) {
			t.Setenv(StubEnvVar, tt.value)
			assert.Equal(t, tt.want, StubFromEnv().Enabled())
		})
	}
}
