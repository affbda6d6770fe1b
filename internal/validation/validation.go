// Package validation provides input validation helpers for the API layer.
package validation

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

var (
	// accountIDRegex validates Stellar public keys (ed25519 strkey, G-prefixed)
	accountIDRegex = regexp.MustCompile(`^G[A-Z2-7]{55}$`)
	// txHashRegex validates Stellar transaction hashes (hex-encoded SHA-256)
	txHashRegex = regexp.MustCompile(`^[a-fA-F0-9]{64}$`)
	// hexRegex validates hex strings (for ticket signatures, etc)
	hexRegex = regexp.MustCompile(`^[a-fA-F0-9]+$`)
)

// RequestSizeMiddleware limits request body size.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidAccountID checks if a string is a well-formed Stellar public key.
func IsValidAccountID(addr string) bool {
	return accountIDRegex.MatchString(addr)
}

// IsValidTransactionHash checks if a string is a well-formed transaction hash.
func IsValidTransactionHash(hash string) bool {
	return txHashRegex.MatchString(strings.ToLower(hash))
}

// IsValidHex checks if a string is valid hex.
func IsValidHex(s string) bool {
	return hexRegex.MatchString(s)
}

// IsValidAmount checks that s parses as a strictly positive decimal amount.
func IsValidAmount(s string) bool {
	f, err := strconv.ParseFloat(s, 64)
	return err == nil && f > 0
}

// SanitizeString trims whitespace, strips null bytes and limits length.
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}
