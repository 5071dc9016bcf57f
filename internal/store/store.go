// Package store persists permission tokens and permission records. It is the
// only component that talks to the database about the token lifecycle; callers
// depend on the Store interface and never on a particular engine.
package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/youthtracker/internal/models"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a compare-and-set update matched no rows.
	ErrConflict = errors.New("store: conflict")
)

// Store groups the repositories and scopes them to a transaction.
type Store interface {
	Tokens() TokenRepository
	Permissions() PermissionRepository
	// DB exposes the handle bound to the current scope (the transaction when
	// called from inside Transaction) for ancillary reads.
	DB() *gorm.DB
	// Transaction runs fn atomically. Any error returned by fn rolls back
	// every write made through the Store passed to fn.
	Transaction(ctx context.Context, fn func(Store) error) error
}

// TokenRepository persists permission tokens.
type TokenRepository interface {
	Create(ctx context.Context, token *models.PermissionToken) error
	// FindByHash loads a token together with its subject and activity.
	FindByHash(ctx context.Context, hash string) (*models.PermissionToken, error)
	// MarkUsed flips used=false to true only while the token is unexpired at now.
	// It returns ErrConflict when another caller won or the token expired.
	MarkUsed(ctx context.Context, id string, now time.Time) error
	// DeleteExpired removes tokens that expired before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// SignedAudit carries the audit fields written when a record becomes signed.
type SignedAudit struct {
	SignedAt  time.Time
	SignedBy  string
	IPAddress string
	UserAgent string
	Source    string
	GrantedBy *string
}

// PermissionRepository persists permission records and their waiver documents.
type PermissionRepository interface {
	// UpsertSigned inserts or updates the record for (subject, activity) so it is signed.
	UpsertSigned(ctx context.Context, subjectID, activityID string, audit SignedAudit) (*models.PermissionRecord, error)
	// EnsurePending creates an unsigned record when none exists and reports whether one was created.
	EnsurePending(ctx context.Context, subjectID, activityID string) (bool, error)
	ListUnsigned(ctx context.Context, activityID string) ([]models.PermissionRecord, error)
	ListByActivity(ctx context.Context, activityID string) ([]models.PermissionRecord, error)
	// SignIfUnsigned signs the record only while it is unsigned, creating it
	// first when missing. signed reports whether this call changed it; an
	// already signed record is returned untouched.
	SignIfUnsigned(ctx context.Context, subjectID, activityID string, audit SignedAudit) (record *models.PermissionRecord, signed bool, err error)
	MarkRequested(ctx context.Context, recordID string, at time.Time) error
	// ClaimRequest stamps last_requested_at with at only while the record is
	// unsigned and was last requested no later than notAfter. It returns
	// ErrConflict when the slot is taken.
	ClaimRequest(ctx context.Context, recordID string, at, notAfter time.Time) error
	Get(ctx context.Context, recordID string) (*models.PermissionRecord, error)
	Find(ctx context.Context, subjectID, activityID string) (*models.PermissionRecord, error)
	// AttachDocument stores a generated waiver and points the record at it.
	AttachDocument(ctx context.Context, recordID string, doc *models.WaiverDocument) error
	Documents(ctx context.Context, recordID string) ([]models.WaiverDocument, error)
}
