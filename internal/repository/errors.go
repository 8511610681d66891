package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// ErrAlreadyDelivered is returned when a conditional delivery commit finds the
	// message already delivered (or gone), meaning another cycle won the race.
	ErrAlreadyDelivered = errors.New("message already delivered")

	// ErrSendNotClaimable is returned when a retry claim loses to a concurrent claim.
	ErrSendNotClaimable = errors.New("notification send is not claimable")
)

// uniqueViolations are the driver messages for a unique index hit on
// PostgreSQL (SQLSTATE 23505) and SQLite.
var uniqueViolations = []string{
	"SQLSTATE 23505",
	"duplicate key value",
	"UNIQUE constraint failed",
}

// isDuplicateKeyError reports whether err is a unique index violation
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	for _, marker := range uniqueViolations {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
