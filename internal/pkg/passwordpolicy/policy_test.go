package passwordpolicy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_Check(t *testing.T) {
	p := New(8)

	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{name: "strong", password: "Sunset-Over-Lake9"},
		{name: "three classes", password: "lakehouse42!"},
		{name: "too short", password: "Ab1!", wantErr: ErrTooShort},
		{name: "single class", password: "abcdefghij", wantErr: ErrTooSimple},
		{name: "two classes", password: "abcdefgh12", wantErr: ErrTooSimple},
		{name: "too long", password: strings.Repeat("aB1!", 19), wantErr: ErrTooLong},
		{name: "compromised", password: "Password1!", wantErr: ErrCompromised},
		{name: "compromised case insensitive", password: "p@SSW0RD1", wantErr: ErrCompromised},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Check(tt.password)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPolicy_CustomBlocklist(t *testing.T) {
	p := New(8, "Studio-2025!")
	assert.ErrorIs(t, p.Check("studio-2025!"), ErrCompromised)
	assert.NoError(t, p.Check("Password1!"))
}
