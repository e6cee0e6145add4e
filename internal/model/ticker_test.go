package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTicker(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "AAPL", NormalizeTicker(" aapl "))
	assert.Equal(t, "BRK.B", NormalizeTicker("brk.b"))
}

func TestTickerForms(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"AAPL", []string{"AAPL"}},
		{"BRK.B", []string{"BRK.B", "BRK-B"}},
		{"brk-b", []string{"BRK-B", "BRK.B"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TickerForms(tt.in), tt.in)
	}
}
