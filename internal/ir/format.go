package ir

import (
	"strconv"
	"strings"
)

// FormatAmount renders a float with two decimals, dropping a ".00" suffix.
//
//	FormatAmount(12)      // "12"
//	FormatAmount(12.5)    // "12.50"
//	FormatAmount(0.12345) // "0.12"
func FormatAmount(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	return strings.TrimSuffix(s, ".00")
}
