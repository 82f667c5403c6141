package cnpj

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDigits(t *testing.T) {
	assert.Equal(t, "12345678000190", Digits("12.345.678/0001-90"))
	assert.Equal(t, "", Digits("n/a"))
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"12345678000190", "12.345.678/0001-90"},
		{"12.345.678/0001-90", "12.345.678/0001-90"},
		{" 12 345 678 0001 90 ", "12.345.678/0001-90"},
		{"1234", "1234"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.in))
		})
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("12.345.678/0001-90", "12345678000190"))
	assert.False(t, Equal("12.345.678/0001-90", "12345678000191"))
	assert.False(t, Equal("", ""))
}
