// Package validator provides input validation and sanitization functions
// for accounts and time capsule messages.
package validator

import (
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"
)

// Validation errors
var (
	ErrInvalidEmail        = errors.New("invalid email format")
	ErrInputTooLong        = errors.New("input exceeds maximum length")
	ErrEmptyInput          = errors.New("input cannot be empty")
	ErrInvalidDeliveryDate = errors.New("invalid delivery date")
	ErrDeliveryDatePast    = errors.New("delivery date must be in the future")
)

// Field limits
const (
	MaxNameLength    = 100
	MaxSubjectLength = 200
	MaxBodyLength    = 20000
)

// ValidateEmail validates email address format according to RFC 5322.
// Returns nil if valid, or an appropriate error.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(strings.ToLower(email))

	if email == "" {
		return ErrEmptyInput
	}

	// RFC 5321 specifies max email length of 254 characters
	if utf8.RuneCountInString(email) > 254 {
		return ErrInputTooLong
	}

	addr, err := mail.ParseAddress(email)
	if err != nil {
		return ErrInvalidEmail
	}
	// Reject display-name forms such as "Bob <bob@example.com>"
	if addr.Address != email {
		return ErrInvalidEmail
	}

	return nil
}

// ValidateRequiredText checks that a sanitized value is present and within maxLength runes.
func ValidateRequiredText(value string, maxLength int) error {
	if strings.TrimSpace(value) == "" {
		return ErrEmptyInput
	}
	if maxLength > 0 && utf8.RuneCountInString(value) > maxLength {
		return ErrInputTooLong
	}
	return nil
}

// ParseDeliveryDate accepts RFC 3339 timestamps and bare dates (midnight UTC).
func ParseDeliveryDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrEmptyInput
	}

	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, ErrInvalidDeliveryDate
}

// ValidateDeliveryDate requires the delivery date to be strictly after now.
func ValidateDeliveryDate(deliveryDate, now time.Time) error {
	if !deliveryDate.After(now) {
		return ErrDeliveryDatePast
	}
	return nil
}

// Pagination constants
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// ValidatePagination validates and sanitizes pagination parameters.
// Returns sanitized limit and offset values.
func ValidatePagination(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset
}

// SanitizeFilename removes dangerous characters from filename.
// Prevents path traversal and removes control characters.
func SanitizeFilename(filename string) string {
	// Remove path separators to prevent path traversal
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "\\", "_")
	filename = strings.ReplaceAll(filename, "..", "_")

	filename = stripControl(filename)
	filename = strings.TrimSpace(filename)

	// Limit length to 255 characters (common filesystem limit)
	if utf8.RuneCountInString(filename) > 255 {
		runes := []rune(filename)
		filename = string(runes[:255])
	}

	if filename == "" {
		return "unnamed"
	}

	return filename
}

// SanitizeString removes control characters, trims whitespace and enforces length limits.
func SanitizeString(input string, maxLength int) string {
	input = strings.TrimSpace(stripControl(input))

	if maxLength > 0 && utf8.RuneCountInString(input) > maxLength {
		runes := []rune(input)
		input = string(runes[:maxLength])
	}

	return input
}

// SanitizeBody removes control characters but keeps line breaks and tabs.
func SanitizeBody(input string) string {
	input = strings.ReplaceAll(input, "\r\n", "\n")
	input = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, input)
	return strings.TrimSpace(input)
}

// stripControl removes ASCII control characters (0-31 and 127).
func stripControl(input string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, input)
}
