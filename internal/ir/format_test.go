package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatAmount(t *testing.T) {
	tests := map[float64]string{
		0:         "0",
		12:        "12",
		12.5:      "12.50",
		0.12345:   "0.12",
		999999.99: "999999.99",
		1.004:     "1",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatAmount(in), "FormatAmount(%v)", in)
	}
}
