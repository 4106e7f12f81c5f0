package allowlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGateAllowed(t *testing.T) {
	gate := NewGate([]string{"a@b.com", " Ops@Example.com ", ""})

	tests := []struct {
		email string
		want  bool
	}{
		{email: "a@b.com", want: true},
		{email: "A@B.COM", want: true},
		{email: "  a@b.com ", want: true},
		{email: "ops@example.com", want: true},
		{email: "c@d.com", want: false},
		{email: "a@b.com.evil.test", want: false},
		{email: "", want: false},
		{email: "   ", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.want, gate.Allowed(tt.email))
		})
	}
	assert.Equal(t, 2, gate.Len())
}

func TestEmptyGateDeniesEveryone(t *testing.T) {
	gate := NewGate(nil)
	assert.False(t, gate.Allowed("a@b.com"))
	assert.Equal(t, 0, gate.Len())
}
