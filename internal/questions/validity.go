package questions

import (
	"strings"

	"github.com/ibpractice/backend/internal/models"
)

// IsValid reports whether a question counts toward a subject's completion
// total. Questions of the exempt paper always count; others count only when
// the segment after the last "." of their reference code is all digits.
func IsValid(referenceCode, paper string) bool {
	if paper == models.ExemptPaper {
		return true
	}
	last := referenceCode
	if i := strings.LastIndex(referenceCode, "."); i >= 0 {
		last = referenceCode[i+1:]
	}
	return isDigits(last)
}

// ShouldExclude is the inverse of IsValid.
func ShouldExclude(referenceCode, paper string) bool {
	return !IsValid(referenceCode, paper)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
