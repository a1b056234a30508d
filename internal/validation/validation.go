// Package validation provides input validation middleware for the Votegate API.
package validation

import (
	"net/http"
	"net/mail"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxStringLength is the maximum length for string fields
const MaxStringLength = 10000

var (
	// voterIDRegex validates voter identifiers (prefixed hex ids)
	voterIDRegex = regexp.MustCompile(`^[a-z]{2,8}_[a-f0-9]{24}$`)
	// otpCodeRegex validates numeric one-time passcodes
	otpCodeRegex = regexp.MustCompile(`^[0-9]{4,10}$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidVoterID checks if a string is a well-formed voter identifier
func IsValidVoterID(id string) bool {
	return voterIDRegex.MatchString(id)
}

// IsValidEmail checks if a string is a parseable email address
func IsValidEmail(addr string) bool {
	a, err := mail.ParseAddress(addr)
	return err == nil && a.Address == addr
}

// IsValidOTPCode checks if a string is a numeric passcode of plausible length
func IsValidOTPCode(code string) bool {
	return otpCodeRegex.MatchString(code)
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	// Trim whitespace
	s = strings.TrimSpace(s)

	// Limit length
	if len(s) > maxLen {
		s = s[:maxLen]
	}

	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	return s
}

// SanitizeEmail normalizes an email address for lookup
func SanitizeEmail(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidEmail checks if a field is a valid email address
func ValidEmail(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidEmail(value) {
			return &ValidationError{Field: field, Message: "must be a valid email address"}
		}
		return nil
	}
}

// ValidOTPCode checks if a field looks like a numeric passcode
func ValidOTPCode(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !IsValidOTPCode(value) {
			return &ValidationError{Field: field, Message: "must be a numeric code"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// VoterParamMiddleware validates the :voterID URL parameter on routes that use it.
// Apply to route groups that include :voterID params to reject malformed ids early.
func VoterParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("voterID")
		if id != "" && !IsValidVoterID(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_voter_id",
				"message": "voter id must be a prefixed hex identifier",
			})
			return
		}
		c.Next()
	}
}
