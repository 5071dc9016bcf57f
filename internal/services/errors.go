package services

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/charlesng35/youthtracker/internal/store"
)

var (
	// ErrInvalidToken covers unknown, expired and already consumed tokens alike.
	ErrInvalidToken = errors.New("permission token: invalid or expired")
	// ErrNotFound indicates the referenced subject, activity or record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates the request conflicts with current state.
	ErrConflict = errors.New("conflict")
	// ErrDocumentGeneration indicates the waiver could not be produced; nothing was committed.
	ErrDocumentGeneration = errors.New("waiver document generation failed")
	// ErrReminderCooldown indicates a reminder was sent too recently.
	ErrReminderCooldown = errors.New("reminder sent too recently")
	// ErrInvalidCredentials indicates an unknown admin or wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidationError reports invalid input with per field messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, field+": "+msg)
	}
	sortStrings(parts)
	return "validation failed: " + strings.Join(parts, "; ")
}

// Details renders the field messages in a stable order.
func (e *ValidationError) Details() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		out = append(out, field+": "+msg)
	}
	sortStrings(out)
	return out
}

func newValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// translateStoreError maps store sentinels onto service sentinels.
func translateStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrConflict):
		return ErrConflict
	default:
		return err
	}
}

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique constraint") ||
		strings.Contains(lower, "duplicate")
}
