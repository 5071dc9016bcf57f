package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/youthtracker/internal/models"
)

// Actor identifies the admin performing a change, for audit purposes.
type Actor struct {
	ID        string
	Username  string
	IPAddress string
	UserAgent string
}

func (a Actor) auditID() *string {
	if strings.TrimSpace(a.ID) == "" {
		return nil
	}
	id := a.ID
	return &id
}

// CreateSubjectInput describes the fields accepted when registering a subject.
type CreateSubjectInput struct {
	FirstName     string
	LastName      string
	Email         string
	Cell          string
	GuardianName  string
	GuardianEmail string
	GuardianCell  string
	Groups        []string
	IsActive      *bool
}

// UpdateSubjectInput enumerates mutable subject attributes.
type UpdateSubjectInput struct {
	FirstName     *string
	LastName      *string
	Email         *string
	Cell          *string
	GuardianName  *string
	GuardianEmail *string
	GuardianCell  *string
	Groups        *[]string
	IsActive      *bool
}

// SubjectFilters captures listing filters.
type SubjectFilters struct {
	Group    string
	IsActive *bool
	Query    string
}

// ListSubjectsOptions controls pagination for subject listing.
type ListSubjectsOptions struct {
	Page     int
	PageSize int
	Filters  SubjectFilters
}

// SubjectService manages the registry of youth participants.
type SubjectService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewSubjectService constructs a SubjectService.
func NewSubjectService(db *gorm.DB, audit *AuditService) (*SubjectService, error) {
	if db == nil {
		return nil, errors.New("subject service: db is required")
	}
	return &SubjectService{db: db, audit: audit}, nil
}

// Create registers a new subject.
func (s *SubjectService) Create(ctx context.Context, input CreateSubjectInput) (*models.Subject, error) {
	ctx = ensureContext(ctx)

	subject := &models.Subject{
		FirstName:     strings.TrimSpace(input.FirstName),
		LastName:      strings.TrimSpace(input.LastName),
		Email:         strings.ToLower(strings.TrimSpace(input.Email)),
		Cell:          strings.TrimSpace(input.Cell),
		GuardianName:  strings.TrimSpace(input.GuardianName),
		GuardianEmail: strings.ToLower(strings.TrimSpace(input.GuardianEmail)),
		GuardianCell:  strings.TrimSpace(input.GuardianCell),
		Groups:        normaliseList(input.Groups),
		IsActive:      true,
	}
	if err := validateSubject(subject); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(subject).Error; err != nil {
			return err
		}
		// gorm skips zero values for columns with a default, so deactivate explicitly
		if input.IsActive != nil && !*input.IsActive {
			subject.IsActive = false
			return tx.Model(subject).Update("is_active", false).Error
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("subject service: create: %w", err)
	}
	return subject, nil
}

// Get loads a subject by id.
func (s *SubjectService) Get(ctx context.Context, id string) (*models.Subject, error) {
	ctx = ensureContext(ctx)

	var subject models.Subject
	if err := s.db.WithContext(ctx).First(&subject, "id = ?", strings.TrimSpace(id)).Error; err != nil {
		return nil, translateStoreError(err)
	}
	return &subject, nil
}

// List returns subjects ordered by name. Group filtering happens after the
// query because groups are stored as a JSON list.
func (s *SubjectService) List(ctx context.Context, opts ListSubjectsOptions) ([]models.Subject, int64, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.Subject{})
	if opts.Filters.IsActive != nil {
		query = query.Where("is_active = ?", *opts.Filters.IsActive)
	}
	if q := strings.ToLower(strings.TrimSpace(opts.Filters.Query)); q != "" {
		like := "%" + q + "%"
		query = query.Where("LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(guardian_name) LIKE ?", like, like, like)
	}

	var subjects []models.Subject
	if err := query.Order("last_name ASC, first_name ASC").Find(&subjects).Error; err != nil {
		return nil, 0, fmt.Errorf("subject service: list: %w", err)
	}

	if group := strings.TrimSpace(opts.Filters.Group); group != "" {
		filtered := subjects[:0]
		for _, subject := range subjects {
			if subject.InGroup(group) {
				filtered = append(filtered, subject)
			}
		}
		subjects = filtered
	}

	total := int64(len(subjects))
	if opts.PageSize <= 0 {
		return subjects, total, nil
	}

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * opts.PageSize
	if start >= len(subjects) {
		return []models.Subject{}, total, nil
	}
	end := start + opts.PageSize
	if end > len(subjects) {
		end = len(subjects)
	}
	return subjects[start:end], total, nil
}

// GroupMembership returns the active subjects that belong to group.
func (s *SubjectService) GroupMembership(ctx context.Context, group string) ([]models.Subject, error) {
	group = strings.TrimSpace(group)
	if group == "" {
		return nil, newValidationError("group", "is required")
	}
	active := true
	subjects, _, err := s.List(ctx, ListSubjectsOptions{Filters: SubjectFilters{Group: group, IsActive: &active}})
	return subjects, err
}

// Groups lists every distinct group name in use.
func (s *SubjectService) Groups(ctx context.Context) ([]string, error) {
	subjects, _, err := s.List(ctx, ListSubjectsOptions{})
	if err != nil {
		return nil, err
	}
	var all []string
	for _, subject := range subjects {
		all = append(all, subject.Groups...)
	}
	groups := normaliseList(all)
	sort.Strings(groups)
	return groups, nil
}

// Update modifies the supplied attributes.
func (s *SubjectService) Update(ctx context.Context, id string, input UpdateSubjectInput) (*models.Subject, error) {
	ctx = ensureContext(ctx)

	subject, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	assign := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	assign(&subject.FirstName, input.FirstName)
	assign(&subject.LastName, input.LastName)
	assign(&subject.Email, input.Email)
	assign(&subject.Cell, input.Cell)
	assign(&subject.GuardianName, input.GuardianName)
	assign(&subject.GuardianEmail, input.GuardianEmail)
	assign(&subject.GuardianCell, input.GuardianCell)
	subject.Email = strings.ToLower(subject.Email)
	subject.GuardianEmail = strings.ToLower(subject.GuardianEmail)
	if input.Groups != nil {
		subject.Groups = normaliseList(*input.Groups)
	}
	if err := validateSubject(subject); err != nil {
		return nil, err
	}

	updates := map[string]any{
		"first_name":     subject.FirstName,
		"last_name":      subject.LastName,
		"email":          subject.Email,
		"cell":           subject.Cell,
		"guardian_name":  subject.GuardianName,
		"guardian_email": subject.GuardianEmail,
		"guardian_cell":  subject.GuardianCell,
		"groups":         subject.Groups,
	}
	if input.IsActive != nil {
		subject.IsActive = *input.IsActive
		updates["is_active"] = subject.IsActive
	}

	if err := s.db.WithContext(ctx).Model(subject).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("subject service: update: %w", err)
	}
	return subject, nil
}

// Delete removes a subject. Without cascade the delete is refused while tokens,
// permission records or interests reference the subject.
func (s *SubjectService) Delete(ctx context.Context, id string, cascade bool, actor Actor) error {
	ctx = ensureContext(ctx)

	subject, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		refs, err := countReferences(tx, "subject_id", subject.ID,
			&models.PermissionToken{}, &models.PermissionRecord{}, &models.ActivityInterest{})
		if err != nil {
			return err
		}
		if refs > 0 && !cascade {
			return fmt.Errorf("%w: subject has %d dependent rows", ErrConflict, refs)
		}
		if refs > 0 {
			if err := deletePermissionData(tx, "subject_id", subject.ID); err != nil {
				return err
			}
			if err := tx.Where("subject_id = ?", subject.ID).Delete(&models.ActivityInterest{}).Error; err != nil {
				return err
			}
		}
		return tx.Delete(subject).Error
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return err
		}
		return fmt.Errorf("subject service: delete: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		AdminID:   actor.auditID(),
		Username:  actor.Username,
		Action:    AuditActionSubjectDelete,
		Resource:  "subjects/" + subject.ID,
		Result:    "success",
		IPAddress: actor.IPAddress,
		UserAgent: actor.UserAgent,
		Metadata:  map[string]any{"cascade": cascade, "name": subject.FullName()},
	})
	return nil
}

func validateSubject(subject *models.Subject) error {
	fields := map[string]string{}
	if subject.FirstName == "" {
		fields["first_name"] = "is required"
	}
	if subject.LastName == "" {
		fields["last_name"] = "is required"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func countReferences(tx *gorm.DB, column, id string, tables ...any) (int64, error) {
	var total int64
	for _, table := range tables {
		var count int64
		if err := tx.Model(table).Where(column+" = ?", id).Count(&count).Error; err != nil {
			return 0, err
		}
		total += count
	}
	return total, nil
}

// deletePermissionData removes tokens, records and waiver rows matching column = id.
// Waiver files stay on disk.
func deletePermissionData(tx *gorm.DB, column, id string) error {
	var recordIDs []string
	if err := tx.Model(&models.PermissionRecord{}).Where(column+" = ?", id).Pluck("id", &recordIDs).Error; err != nil {
		return err
	}
	if len(recordIDs) > 0 {
		if err := tx.Where("record_id IN ?", recordIDs).Delete(&models.WaiverDocument{}).Error; err != nil {
			return err
		}
	}
	if err := tx.Where(column+" = ?", id).Delete(&models.PermissionRecord{}).Error; err != nil {
		return err
	}
	return tx.Where(column+" = ?", id).Delete(&models.PermissionToken{}).Error
}
