// Package validation provides input validation helpers for the coinledger API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxStringLength is the maximum length for free-text fields
const MaxStringLength = 1000

var (
	// txCodeRegex validates public transfer codes, e.g. "XBT-BBB-123456-XYZ"
	txCodeRegex = regexp.MustCompile(`^XBT-[A-Z]{3}-[0-9]{6}-[A-Z]{3}$`)
	// amountRegex validates positive decimal amounts with at most two places
	amountRegex = regexp.MustCompile(`^[0-9]+(\.[0-9]{1,2})?$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidTxCode checks if a string is a well-formed transfer code.
func IsValidTxCode(code string) bool {
	return txCodeRegex.MatchString(code)
}

// NormalizeTxCode trims and uppercases a transfer code.
func NormalizeTxCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ParseAmount parses a coin amount string. Amounts must be positive
// decimals with at most two fractional digits.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if !amountRegex.MatchString(s) {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.Sign() <= 0 {
		return decimal.Zero, false
	}
	return d, true
}

// SanitizeString trims whitespace, strips null bytes, and limits length.
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}
