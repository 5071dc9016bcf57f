package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/youthtracker/internal/models"
)

type gormPermissionRepository struct {
	db *gorm.DB
}

var recordKey = []clause.Column{{Name: "subject_id"}, {Name: "activity_id"}}

func (r *gormPermissionRepository) UpsertSigned(ctx context.Context, subjectID, activityID string, audit SignedAudit) (*models.PermissionRecord, error) {
	signedAt := audit.SignedAt.UTC()
	source := audit.Source
	if source == "" {
		source = models.PermissionSourceToken
	}

	record := models.PermissionRecord{
		SubjectID:  subjectID,
		ActivityID: activityID,
		Signed:     true,
		SignedAt:   &signedAt,
		SignedBy:   audit.SignedBy,
		IPAddress:  audit.IPAddress,
		UserAgent:  audit.UserAgent,
		Source:     source,
		GrantedBy:  audit.GrantedBy,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: recordKey,
			DoUpdates: clause.AssignmentColumns([]string{
				"signed", "signed_at", "signed_by", "ip_address", "user_agent", "source", "granted_by", "updated_at",
			}),
		}).
		Create(&record).Error
	if err != nil {
		return nil, fmt.Errorf("store: upsert signed record: %w", err)
	}

	return r.Find(ctx, subjectID, activityID)
}

func (r *gormPermissionRepository) SignIfUnsigned(ctx context.Context, subjectID, activityID string, audit SignedAudit) (*models.PermissionRecord, bool, error) {
	if _, err := r.EnsurePending(ctx, subjectID, activityID); err != nil {
		return nil, false, err
	}

	signedAt := audit.SignedAt.UTC()
	source := audit.Source
	if source == "" {
		source = models.PermissionSourceToken
	}

	result := r.db.WithContext(ctx).
		Model(&models.PermissionRecord{}).
		Where("subject_id = ? AND activity_id = ? AND signed = ?", subjectID, activityID, false).
		Updates(map[string]any{
			"signed":     true,
			"signed_at":  signedAt,
			"signed_by":  audit.SignedBy,
			"ip_address": audit.IPAddress,
			"user_agent": audit.UserAgent,
			"source":     source,
			"granted_by": audit.GrantedBy,
		})
	if result.Error != nil {
		return nil, false, fmt.Errorf("store: sign record: %w", result.Error)
	}

	record, err := r.Find(ctx, subjectID, activityID)
	if err != nil {
		return nil, false, err
	}
	return record, result.RowsAffected > 0, nil
}

func (r *gormPermissionRepository) EnsurePending(ctx context.Context, subjectID, activityID string) (bool, error) {
	record := models.PermissionRecord{
		SubjectID:  subjectID,
		ActivityID: activityID,
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: recordKey, DoNothing: true}).
		Create(&record)
	if result.Error != nil {
		return false, fmt.Errorf("store: ensure pending record: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *gormPermissionRepository) ListUnsigned(ctx context.Context, activityID string) ([]models.PermissionRecord, error) {
	var records []models.PermissionRecord
	err := r.db.WithContext(ctx).
		Preload("Subject").
		Where("activity_id = ? AND signed = ?", activityID, false).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("store: list unsigned records: %w", err)
	}
	return records, nil
}

func (r *gormPermissionRepository) ListByActivity(ctx context.Context, activityID string) ([]models.PermissionRecord, error) {
	var records []models.PermissionRecord
	err := r.db.WithContext(ctx).
		Preload("Subject").
		Where("activity_id = ?", activityID).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("store: list records: %w", err)
	}
	return records, nil
}

func (r *gormPermissionRepository) MarkRequested(ctx context.Context, recordID string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.PermissionRecord{}).
		Where("id = ?", recordID).
		Update("last_requested_at", at.UTC())
	if result.Error != nil {
		return fmt.Errorf("store: mark record requested: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormPermissionRepository) ClaimRequest(ctx context.Context, recordID string, at, notAfter time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.PermissionRecord{}).
		Where("id = ? AND signed = ?", recordID, false).
		Where("last_requested_at IS NULL OR last_requested_at <= ?", notAfter.UTC()).
		Update("last_requested_at", at.UTC())
	if result.Error != nil {
		return fmt.Errorf("store: claim reminder: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (r *gormPermissionRepository) Get(ctx context.Context, recordID string) (*models.PermissionRecord, error) {
	var record models.PermissionRecord
	err := r.db.WithContext(ctx).
		Preload("Subject").
		Preload("Activity").
		First(&record, "id = ?", recordID).Error
	if err != nil {
		return nil, translate(err)
	}
	return &record, nil
}

func (r *gormPermissionRepository) Find(ctx context.Context, subjectID, activityID string) (*models.PermissionRecord, error) {
	var record models.PermissionRecord
	err := r.db.WithContext(ctx).
		Where("subject_id = ? AND activity_id = ?", subjectID, activityID).
		First(&record).Error
	if err != nil {
		return nil, translate(err)
	}
	return &record, nil
}

func (r *gormPermissionRepository) AttachDocument(ctx context.Context, recordID string, doc *models.WaiverDocument) error {
	doc.RecordID = recordID
	if doc.GeneratedAt.IsZero() {
		doc.GeneratedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("store: create waiver document: %w", err)
	}

	result := r.db.WithContext(ctx).
		Model(&models.PermissionRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]any{
			"document_path":   doc.Path,
			"document_sha256": doc.SHA256,
		})
	if result.Error != nil {
		return fmt.Errorf("store: attach document: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormPermissionRepository) Documents(ctx context.Context, recordID string) ([]models.WaiverDocument, error) {
	var docs []models.WaiverDocument
	err := r.db.WithContext(ctx).
		Where("record_id = ?", recordID).
		Order("generated_at DESC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("store: list waiver documents: %w", err)
	}
	return docs, nil
}
