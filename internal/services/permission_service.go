package services

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/youthtracker/internal/documents"
	"github.com/charlesng35/youthtracker/internal/models"
	"github.com/charlesng35/youthtracker/internal/notify"
	"github.com/charlesng35/youthtracker/internal/store"
	"github.com/charlesng35/youthtracker/pkg/logger"
	"github.com/charlesng35/youthtracker/pkg/mail"
	"github.com/charlesng35/youthtracker/pkg/metrics"
)

// DefaultReminderCooldown is the minimum gap between two reminders for one record.
const DefaultReminderCooldown = time.Hour

// Realtime events published on the permissions stream.
const (
	EventPermissionSigned    = "permission.signed"
	EventPermissionGranted   = "permission.granted"
	EventPermissionRequested = "permission.requested"
)

// Reminder entry states.
const (
	ReminderSent    = "sent"
	ReminderSkipped = "skipped"
	ReminderFailed  = "failed"
)

// WaiverGenerator produces signed waiver documents.
type WaiverGenerator interface {
	Generate(ctx context.Context, data documents.WaiverData) (*documents.Artifact, error)
	Remove(art *documents.Artifact)
	PublicKey() ed25519.PublicKey
}

// Notifier delivers a rendered message to recipients.
type Notifier interface {
	Dispatch(ctx context.Context, recipients []notify.Recipient, msg notify.Message) notify.Report
}

// EventPublisher pushes workflow events to connected admins.
type EventPublisher interface {
	Publish(event string, payload any)
}

// PermissionRequestView is what a guardian sees before signing.
type PermissionRequestView struct {
	SubjectID    string    `json:"subject_id"`
	SubjectName  string    `json:"subject_name"`
	GuardianName string    `json:"guardian_name"`
	ActivityID   string    `json:"activity_id"`
	ActivityName string    `json:"activity_name"`
	Description  string    `json:"description"`
	Location     string    `json:"location"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
	IsOvernight  bool      `json:"is_overnight"`
	IsCoed       bool      `json:"is_coed"`
	Drivers      []string  `json:"drivers"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// SubmitPermissionInput carries a guardian signature.
type SubmitPermissionInput struct {
	Token        string
	SignedBy     string
	SignaturePNG []byte
	Medical      string
	IPAddress    string
	UserAgent    string
}

// DocumentInfo describes the waiver produced for a signing.
type DocumentInfo struct {
	FileName    string    `json:"file_name"`
	SHA256      string    `json:"sha256"`
	Signature   string    `json:"signature"`
	KeyID       string    `json:"key_id"`
	GeneratedAt time.Time `json:"generated_at"`
}

// SubmitResult is returned after a committed signing. Warnings list
// post-commit side effects that did not complete.
type SubmitResult struct {
	Status     string        `json:"status"`
	RecordID   string        `json:"record_id"`
	SubjectID  string        `json:"subject_id"`
	ActivityID string        `json:"activity_id"`
	SignedAt   time.Time     `json:"signed_at"`
	Document   *DocumentInfo `json:"document,omitempty"`
	Warnings   []string      `json:"warnings,omitempty"`
}

// ReminderEntry is the outcome for one record in a reminder run.
type ReminderEntry struct {
	RecordID    string   `json:"record_id"`
	SubjectID   string   `json:"subject_id"`
	SubjectName string   `json:"subject_name"`
	Status      string   `json:"status"`
	Reason      string   `json:"reason,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

// ReminderReport summarises a reminder run.
type ReminderReport struct {
	ActivityID  string          `json:"activity_id"`
	RequestedAt time.Time       `json:"requested_at"`
	Sent        int             `json:"sent"`
	Skipped     int             `json:"skipped"`
	Failed      int             `json:"failed"`
	Entries     []ReminderEntry `json:"entries"`
}

func (r *ReminderReport) add(entry ReminderEntry) {
	switch entry.Status {
	case ReminderSent:
		r.Sent++
	case ReminderSkipped:
		r.Skipped++
	default:
		r.Failed++
	}
	r.Entries = append(r.Entries, entry)
}

// GrantInput is an admin granting permission without a guardian token.
type GrantInput struct {
	SubjectID     string
	ActivityID    string
	AdminID       string
	AdminUsername string
	IPAddress     string
	UserAgent     string
}

// EnrollmentReport summarises EnrollParticipants.
type EnrollmentReport struct {
	ActivityID string `json:"activity_id"`
	Matched    int    `json:"matched"`
	Created    int    `json:"created"`
}

// PermissionStatus is one row of the per-activity permission list.
type PermissionStatus struct {
	RecordID        string     `json:"record_id"`
	SubjectID       string     `json:"subject_id"`
	SubjectName     string     `json:"subject_name"`
	Status          string     `json:"status"`
	Source          string     `json:"source,omitempty"`
	SignedAt        *time.Time `json:"signed_at,omitempty"`
	SignedBy        string     `json:"signed_by,omitempty"`
	LastRequestedAt *time.Time `json:"last_requested_at,omitempty"`
	DocumentSHA256  string     `json:"document_sha256,omitempty"`
}

// DocumentVerification reports whether the stored waiver still matches its signature.
type DocumentVerification struct {
	RecordID string `json:"record_id"`
	FileName string `json:"file_name"`
	SHA256   string `json:"sha256"`
	KeyID    string `json:"key_id"`
	Valid    bool   `json:"valid"`
	Reason   string `json:"reason,omitempty"`
}

// PermissionOption customises a PermissionService.
type PermissionOption func(*PermissionService)

// WithPermissionClock overrides the time source.
func WithPermissionClock(now func() time.Time) PermissionOption {
	return func(s *PermissionService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithReminderCooldown sets the minimum gap between reminders. Zero disables the check.
func WithReminderCooldown(cooldown time.Duration) PermissionOption {
	return func(s *PermissionService) {
		if cooldown >= 0 {
			s.cooldown = cooldown
		}
	}
}

// WithAdminRecipients sets who receives signing confirmations.
func WithAdminRecipients(emails []string) PermissionOption {
	return func(s *PermissionService) {
		s.adminEmails = normaliseList(emails)
	}
}

// WithEventPublisher enables realtime events.
func WithEventPublisher(publisher EventPublisher) PermissionOption {
	return func(s *PermissionService) {
		s.events = publisher
	}
}

// WithPermissionAudit records admin actions.
func WithPermissionAudit(audit *AuditService) PermissionOption {
	return func(s *PermissionService) {
		s.audit = audit
	}
}

// PermissionService drives the guardian signing workflow and admin reminders.
type PermissionService struct {
	store       store.Store
	tokens      *TokenService
	docs        WaiverGenerator
	notifier    Notifier
	events      EventPublisher
	audit       *AuditService
	adminEmails []string
	cooldown    time.Duration
	now         func() time.Time
	log         *zap.Logger
}

// NewPermissionService wires the workflow. A nil notifier reports every delivery as unreachable.
func NewPermissionService(st store.Store, tokens *TokenService, docs WaiverGenerator, notifier Notifier, opts ...PermissionOption) (*PermissionService, error) {
	if st == nil {
		return nil, errors.New("permission service: store is required")
	}
	if tokens == nil {
		return nil, errors.New("permission service: token service is required")
	}
	if docs == nil {
		return nil, errors.New("permission service: document generator is required")
	}
	if notifier == nil {
		notifier = notify.NewDispatcher(nil)
	}

	svc := &PermissionService{
		store:    st,
		tokens:   tokens,
		docs:     docs,
		notifier: notifier,
		cooldown: DefaultReminderCooldown,
		now:      time.Now,
		log:      logger.WithModule("permissions"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// VerifyToken validates a token without consuming it and returns display data.
func (s *PermissionService) VerifyToken(ctx context.Context, token string) (*PermissionRequestView, error) {
	grant, err := s.tokens.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	subject, activity, err := s.grantParties(ensureContext(ctx), s.store, grant)
	if err != nil {
		return nil, err
	}

	return &PermissionRequestView{
		SubjectID:    subject.ID,
		SubjectName:  subject.FullName(),
		GuardianName: subject.GuardianName,
		ActivityID:   activity.ID,
		ActivityName: activity.Name,
		Description:  activity.Description,
		Location:     activity.Location,
		StartsAt:     activity.StartsAt,
		EndsAt:       activity.EndsAt,
		IsOvernight:  activity.IsOvernight,
		IsCoed:       activity.IsCoed,
		Drivers:      []string(activity.Drivers),
		ExpiresAt:    grant.ExpiresAt,
	}, nil
}

// Submit consumes the token, marks the record signed and stores the generated
// waiver in one transaction. Admin notification happens after commit.
func (s *PermissionService) Submit(ctx context.Context, input SubmitPermissionInput) (*SubmitResult, error) {
	ctx = ensureContext(ctx)
	signedAt := s.now().UTC()

	var (
		result   SubmitResult
		artifact *documents.Artifact
		subject  *models.Subject
		activity *models.Activity
	)

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		grant, err := s.tokens.consume(ctx, tx, input.Token)
		if err != nil {
			return err
		}
		subject, activity, err = s.grantParties(ctx, tx, grant)
		if err != nil {
			return err
		}

		signedBy := firstNonEmpty(input.SignedBy, subject.GuardianName, "guardian")
		record, err := tx.Permissions().UpsertSigned(ctx, subject.ID, activity.ID, store.SignedAudit{
			SignedAt:  signedAt,
			SignedBy:  signedBy,
			IPAddress: strings.TrimSpace(input.IPAddress),
			UserAgent: strings.TrimSpace(input.UserAgent),
			Source:    models.PermissionSourceToken,
		})
		if err != nil {
			return fmt.Errorf("permission service: upsert record: %w", err)
		}

		artifact, err = s.docs.Generate(ctx, documents.WaiverData{
			RecordID:     record.ID,
			SubjectName:  subject.FullName(),
			GuardianName: subject.GuardianName,
			ActivityName: activity.Name,
			Description:  activity.Description,
			Location:     activity.Location,
			StartsAt:     activity.StartsAt,
			EndsAt:       activity.EndsAt,
			IsOvernight:  activity.IsOvernight,
			Drivers:      []string(activity.Drivers),
			SignedBy:     signedBy,
			SignedAt:     signedAt,
			IPAddress:    strings.TrimSpace(input.IPAddress),
			UserAgent:    strings.TrimSpace(input.UserAgent),
			SignaturePNG: input.SignaturePNG,
			Medical:      strings.TrimSpace(input.Medical),
		})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDocumentGeneration, err)
		}

		if err := tx.Permissions().AttachDocument(ctx, record.ID, &models.WaiverDocument{
			Path:        artifact.Path,
			SHA256:      artifact.SHA256,
			Signature:   artifact.Signature,
			KeyID:       artifact.KeyID,
			GeneratedAt: artifact.GeneratedAt,
		}); err != nil {
			return fmt.Errorf("permission service: attach document: %w", err)
		}

		result = SubmitResult{
			Status:     "signed",
			RecordID:   record.ID,
			SubjectID:  subject.ID,
			ActivityID: activity.ID,
			SignedAt:   signedAt,
			Document: &DocumentInfo{
				FileName:    artifact.FileName,
				SHA256:      artifact.SHA256,
				Signature:   artifact.Signature,
				KeyID:       artifact.KeyID,
				GeneratedAt: artifact.GeneratedAt,
			},
		}
		return nil
	})
	if err != nil {
		if artifact != nil {
			s.docs.Remove(artifact)
		}
		if errors.Is(err, ErrDocumentGeneration) {
			s.log.Error("waiver generation failed, signing rolled back", zap.Error(err))
		}
		return nil, err
	}

	s.log.Info("permission signed",
		zap.String("record_id", result.RecordID),
		zap.String("activity_id", result.ActivityID),
	)

	afterCtx := context.WithoutCancel(ctx)
	recordAudit(s.audit, afterCtx, AuditEntry{
		Username:  firstNonEmpty(input.SignedBy, subject.GuardianName),
		Action:    AuditActionPermissionSign,
		Resource:  "permission_records/" + result.RecordID,
		Result:    "success",
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		Metadata:  map[string]any{"activity_id": result.ActivityID, "subject_id": result.SubjectID},
	})
	result.Warnings = s.notifyAdmins(afterCtx, subject, activity, &result, artifact, input.IPAddress)
	s.publish(EventPermissionSigned, map[string]any{
		"record_id":   result.RecordID,
		"subject_id":  result.SubjectID,
		"activity_id": result.ActivityID,
		"signed_at":   result.SignedAt,
		"source":      models.PermissionSourceToken,
	})

	return &result, nil
}

func (s *PermissionService) notifyAdmins(ctx context.Context, subject *models.Subject, activity *models.Activity, result *SubmitResult, artifact *documents.Artifact, ip string) []string {
	if len(s.adminEmails) == 0 {
		return nil
	}

	var signedBy string
	if record, err := s.store.Permissions().Get(ctx, result.RecordID); err == nil {
		signedBy = record.SignedBy
	}

	msg, err := notify.RenderSignedConfirmation(notify.SignedConfirmation{
		SubjectName:  subject.FullName(),
		ActivityName: activity.Name,
		SignedBy:     signedBy,
		SignedAt:     result.SignedAt,
		IPAddress:    ip,
		DocumentName: artifact.FileName,
	})
	if err != nil {
		return []string{err.Error()}
	}

	var warnings []string
	if content, err := os.ReadFile(artifact.Path); err == nil {
		msg.Attachments = []mail.Attachment{{
			Filename:    artifact.FileName,
			ContentType: "application/pdf",
			Content:     content,
		}}
	} else {
		warnings = append(warnings, "waiver not attached to admin notification: "+err.Error())
	}

	recipients := make([]notify.Recipient, 0, len(s.adminEmails))
	for _, email := range s.adminEmails {
		recipients = append(recipients, notify.Recipient{Email: email})
	}
	report := s.notifier.Dispatch(ctx, recipients, msg)
	return append(warnings, report.Warnings()...)
}

// RequestPermissions sends a fresh link to the guardian of every unsigned record.
func (s *PermissionService) RequestPermissions(ctx context.Context, activityID string, actor Actor) (*ReminderReport, error) {
	ctx = ensureContext(ctx)

	activity, err := s.loadActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	records, err := s.store.Permissions().ListUnsigned(ctx, activity.ID)
	if err != nil {
		return nil, fmt.Errorf("permission service: list unsigned: %w", err)
	}
	metrics.PendingPermissions.Set(float64(len(records)))

	now := s.now().UTC()
	report := &ReminderReport{ActivityID: activity.ID, RequestedAt: now, Entries: []ReminderEntry{}}
	for i := range records {
		record := &records[i]
		if s.coolingDown(record, now) {
			report.add(ReminderEntry{
				RecordID:    record.ID,
				SubjectID:   record.SubjectID,
				SubjectName: subjectName(record.Subject),
				Status:      ReminderSkipped,
				Reason:      ErrReminderCooldown.Error(),
			})
			continue
		}
		entry, err := s.remind(ctx, activity, record, now)
		switch {
		case errors.Is(err, ErrReminderCooldown):
			entry.Status = ReminderSkipped
			entry.Reason = err.Error()
		case err != nil:
			entry.Status = ReminderFailed
			entry.Reason = err.Error()
			s.log.Warn("reminder failed", zap.String("record_id", record.ID), zap.Error(err))
		}
		report.add(entry)
	}

	recordAudit(s.audit, ctx, actorEntry(actor, AuditActionReminder, "activities/"+activity.ID, map[string]any{
		"sent":    report.Sent,
		"skipped": report.Skipped,
		"failed":  report.Failed,
	}))

	s.publish(EventPermissionRequested, map[string]any{
		"activity_id": activity.ID,
		"sent":        report.Sent,
		"skipped":     report.Skipped,
		"failed":      report.Failed,
	})
	return report, nil
}

// Resend sends a fresh link for one unsigned record.
func (s *PermissionService) Resend(ctx context.Context, recordID string, actor Actor) (*ReminderReport, error) {
	ctx = ensureContext(ctx)

	record, err := s.store.Permissions().Get(ctx, strings.TrimSpace(recordID))
	if err != nil {
		return nil, translateStoreError(err)
	}
	if record.Signed {
		return nil, fmt.Errorf("%w: permission already signed", ErrConflict)
	}
	if record.Activity == nil {
		return nil, ErrNotFound
	}

	now := s.now().UTC()
	if s.coolingDown(record, now) {
		return nil, ErrReminderCooldown
	}

	entry, err := s.remind(ctx, record.Activity, record, now)
	if err != nil {
		return nil, err
	}

	report := &ReminderReport{ActivityID: record.ActivityID, RequestedAt: now}
	report.add(entry)

	recordAudit(s.audit, ctx, actorEntry(actor, AuditActionReminder, "permission_records/"+record.ID, map[string]any{
		"activity_id": record.ActivityID,
		"subject_id":  record.SubjectID,
		"status":      entry.Status,
	}))
	return report, nil
}

func (s *PermissionService) coolingDown(record *models.PermissionRecord, now time.Time) bool {
	if s.cooldown <= 0 || record.LastRequestedAt == nil {
		return false
	}
	return now.Sub(*record.LastRequestedAt) < s.cooldown
}

// claimReminder stamps the record as requested at now. With a cooldown the
// stamp is conditional so concurrent runs cannot both remind the same guardian.
func (s *PermissionService) claimReminder(ctx context.Context, recordID string, now time.Time) error {
	if s.cooldown <= 0 {
		if err := s.store.Permissions().MarkRequested(ctx, recordID, now); err != nil {
			return fmt.Errorf("permission service: mark requested: %w", translateStoreError(err))
		}
		return nil
	}
	err := s.store.Permissions().ClaimRequest(ctx, recordID, now, now.Add(-s.cooldown))
	if errors.Is(err, store.ErrConflict) {
		return ErrReminderCooldown
	}
	if err != nil {
		return fmt.Errorf("permission service: claim reminder: %w", err)
	}
	return nil
}

// remind claims the reminder slot, issues a token and dispatches the link.
// Delivery failures are reported on the entry; other failures are returned.
func (s *PermissionService) remind(ctx context.Context, activity *models.Activity, record *models.PermissionRecord, now time.Time) (ReminderEntry, error) {
	entry := ReminderEntry{
		RecordID:    record.ID,
		SubjectID:   record.SubjectID,
		SubjectName: subjectName(record.Subject),
	}
	if record.Subject == nil {
		return entry, ErrNotFound
	}

	if err := s.claimReminder(ctx, record.ID, now); err != nil {
		return entry, err
	}
	record.LastRequestedAt = &now

	issued, err := s.tokens.Issue(ctx, record.SubjectID, activity.ID, 0)
	if err != nil {
		return entry, fmt.Errorf("permission service: issue token: %w", err)
	}

	msg, err := notify.RenderPermissionRequest(notify.PermissionRequest{
		GuardianName: record.Subject.GuardianName,
		SubjectName:  record.Subject.FullName(),
		ActivityName: activity.Name,
		StartsAt:     activity.StartsAt,
		Location:     activity.Location,
		Link:         issued.Link,
		ExpiresAt:    issued.ExpiresAt,
	})
	if err != nil {
		return entry, err
	}

	delivery := s.notifier.Dispatch(ctx, []notify.Recipient{guardianRecipient(record.Subject)}, msg)

	entry.Warnings = delivery.Warnings()
	if delivery.Delivered > 0 {
		entry.Status = ReminderSent
	} else {
		entry.Status = ReminderFailed
		entry.Reason = "no channel delivered the reminder"
	}
	return entry, nil
}

// Grant marks permission signed on behalf of an admin.
func (s *PermissionService) Grant(ctx context.Context, input GrantInput) (*models.PermissionRecord, error) {
	ctx = ensureContext(ctx)

	adminID := strings.TrimSpace(input.AdminID)
	if adminID == "" {
		return nil, newValidationError("admin_id", "is required")
	}
	subjectID := strings.TrimSpace(input.SubjectID)
	activityID := strings.TrimSpace(input.ActivityID)
	if subjectID == "" {
		return nil, newValidationError("subject_id", "is required")
	}
	if activityID == "" {
		return nil, newValidationError("activity_id", "is required")
	}
	if err := ensureExists(ctx, s.store, &models.Subject{}, subjectID); err != nil {
		return nil, err
	}
	if err := ensureExists(ctx, s.store, &models.Activity{}, activityID); err != nil {
		return nil, err
	}

	record, changed, err := s.store.Permissions().SignIfUnsigned(ctx, subjectID, activityID, store.SignedAudit{
		SignedAt:  s.now().UTC(),
		SignedBy:  firstNonEmpty(input.AdminUsername, "admin"),
		IPAddress: strings.TrimSpace(input.IPAddress),
		UserAgent: strings.TrimSpace(input.UserAgent),
		Source:    models.PermissionSourceAdmin,
		GrantedBy: &adminID,
	})
	if err != nil {
		return nil, fmt.Errorf("permission service: grant: %w", err)
	}
	if !changed {
		s.log.Info("permission already signed, grant left record unchanged",
			zap.String("record_id", record.ID),
			zap.String("source", record.Source),
		)
		return record, nil
	}

	recordAudit(s.audit, ctx, AuditEntry{
		AdminID:   &adminID,
		Username:  input.AdminUsername,
		Action:    AuditActionPermissionGive,
		Resource:  "permission_records/" + record.ID,
		Result:    "success",
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		Metadata:  map[string]any{"activity_id": activityID, "subject_id": subjectID},
	})
	s.publish(EventPermissionGranted, map[string]any{
		"record_id":   record.ID,
		"subject_id":  subjectID,
		"activity_id": activityID,
		"granted_by":  adminID,
		"source":      models.PermissionSourceAdmin,
	})
	return record, nil
}

// EnrollParticipants ensures a pending record exists for every active subject
// in one of the activity's groups.
func (s *PermissionService) EnrollParticipants(ctx context.Context, activityID string, actor Actor) (*EnrollmentReport, error) {
	ctx = ensureContext(ctx)

	activity, err := s.loadActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	report := &EnrollmentReport{ActivityID: activity.ID}
	if len(activity.Groups) == 0 {
		return report, nil
	}

	var subjects []models.Subject
	if err := s.store.DB().WithContext(ctx).
		Where("is_active = ?", true).
		Order("last_name ASC, first_name ASC").
		Find(&subjects).Error; err != nil {
		return nil, fmt.Errorf("permission service: list subjects: %w", err)
	}

	err = s.store.Transaction(ctx, func(tx store.Store) error {
		for i := range subjects {
			if !subjectMatchesAny(&subjects[i], activity.Groups) {
				continue
			}
			report.Matched++
			created, err := tx.Permissions().EnsurePending(ctx, subjects[i].ID, activity.ID)
			if err != nil {
				return err
			}
			if created {
				report.Created++
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("permission service: enroll: %w", err)
	}

	recordAudit(s.audit, ctx, actorEntry(actor, AuditActionEnroll, "activities/"+activity.ID, map[string]any{
		"matched": report.Matched,
		"created": report.Created,
	}))
	return report, nil
}

// IssueToken issues a single permission link on behalf of an admin.
func (s *PermissionService) IssueToken(ctx context.Context, subjectID, activityID string, ttl time.Duration, actor Actor) (*IssuedToken, error) {
	ctx = ensureContext(ctx)
	issued, err := s.tokens.Issue(ctx, subjectID, activityID, ttl)
	if err != nil {
		return nil, err
	}
	recordAudit(s.audit, ctx, actorEntry(actor, AuditActionTokenIssue, "activities/"+issued.ActivityID, map[string]any{
		"subject_id": issued.SubjectID,
		"expires_at": issued.ExpiresAt,
	}))
	return issued, nil
}

// PreviewRequest renders the guardian reminder for an activity without
// issuing a token. link stands in for the personal signing link. When
// subjectID is empty a generic greeting is used.
func (s *PermissionService) PreviewRequest(ctx context.Context, activityID, subjectID, link string) (notify.Message, error) {
	ctx = ensureContext(ctx)

	activity, err := s.loadActivity(ctx, activityID)
	if err != nil {
		return notify.Message{}, err
	}

	data := notify.PermissionRequest{
		GuardianName: "Parent/Guardian",
		SubjectName:  "your child",
		ActivityName: activity.Name,
		StartsAt:     activity.StartsAt,
		Location:     activity.Location,
		Link:         link,
		ExpiresAt:    s.now().UTC().Add(s.tokens.DefaultTTL()),
	}
	if subjectID = strings.TrimSpace(subjectID); subjectID != "" {
		var subject models.Subject
		if err := s.store.DB().WithContext(ctx).First(&subject, "id = ?", subjectID).Error; err != nil {
			return notify.Message{}, translateStoreError(err)
		}
		data.GuardianName = firstNonEmpty(subject.GuardianName, data.GuardianName)
		data.SubjectName = subject.FullName()
	}
	return notify.RenderPermissionRequest(data)
}

// ListPermissions returns every record for an activity.
func (s *PermissionService) ListPermissions(ctx context.Context, activityID string) ([]PermissionStatus, error) {
	ctx = ensureContext(ctx)

	activity, err := s.loadActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	records, err := s.store.Permissions().ListByActivity(ctx, activity.ID)
	if err != nil {
		return nil, fmt.Errorf("permission service: list records: %w", err)
	}

	out := make([]PermissionStatus, 0, len(records))
	for _, record := range records {
		out = append(out, PermissionStatus{
			RecordID:        record.ID,
			SubjectID:       record.SubjectID,
			SubjectName:     subjectName(record.Subject),
			Status:          record.Status(),
			Source:          record.Source,
			SignedAt:        record.SignedAt,
			SignedBy:        record.SignedBy,
			LastRequestedAt: record.LastRequestedAt,
			DocumentSHA256:  record.DocumentSHA256,
		})
	}
	return out, nil
}

// Documents lists every waiver generated for a record, newest first.
func (s *PermissionService) Documents(ctx context.Context, recordID string) ([]models.WaiverDocument, error) {
	ctx = ensureContext(ctx)
	if _, err := s.store.Permissions().Get(ctx, recordID); err != nil {
		return nil, translateStoreError(err)
	}
	return s.store.Permissions().Documents(ctx, recordID)
}

// DocumentPath returns the latest waiver file for a record.
func (s *PermissionService) DocumentPath(ctx context.Context, recordID string) (string, error) {
	record, err := s.store.Permissions().Get(ensureContext(ctx), recordID)
	if err != nil {
		return "", translateStoreError(err)
	}
	if record.DocumentPath == "" {
		return "", ErrNotFound
	}
	return record.DocumentPath, nil
}

// VerifyDocument checks the latest waiver against its detached signature.
func (s *PermissionService) VerifyDocument(ctx context.Context, recordID string) (*DocumentVerification, error) {
	record, err := s.store.Permissions().Get(ensureContext(ctx), recordID)
	if err != nil {
		return nil, translateStoreError(err)
	}
	if record.DocumentPath == "" {
		return nil, ErrNotFound
	}

	out := &DocumentVerification{RecordID: record.ID, SHA256: record.DocumentSHA256}
	envelope, err := documents.Verify(record.DocumentPath, s.docs.PublicKey())
	if envelope != nil {
		out.FileName = envelope.File
		out.KeyID = envelope.KeyID
	}
	if err != nil {
		out.Reason = err.Error()
		return out, nil
	}
	out.Valid = envelope.SHA256 == record.DocumentSHA256
	if !out.Valid {
		out.Reason = documents.ErrDigestMismatch.Error()
	}
	return out, nil
}

func (s *PermissionService) loadActivity(ctx context.Context, activityID string) (*models.Activity, error) {
	activityID = strings.TrimSpace(activityID)
	if activityID == "" {
		return nil, newValidationError("activity_id", "is required")
	}
	var activity models.Activity
	if err := s.store.DB().WithContext(ctx).First(&activity, "id = ?", activityID).Error; err != nil {
		return nil, translateStoreError(err)
	}
	return &activity, nil
}

func (s *PermissionService) grantParties(ctx context.Context, st store.Store, grant *TokenGrant) (*models.Subject, *models.Activity, error) {
	subject, activity := grant.Subject, grant.Activity
	if subject == nil {
		subject = &models.Subject{}
		if err := st.DB().WithContext(ctx).First(subject, "id = ?", grant.SubjectID).Error; err != nil {
			return nil, nil, translateStoreError(err)
		}
	}
	if activity == nil {
		activity = &models.Activity{}
		if err := st.DB().WithContext(ctx).First(activity, "id = ?", grant.ActivityID).Error; err != nil {
			return nil, nil, translateStoreError(err)
		}
	}
	return subject, activity, nil
}

func (s *PermissionService) publish(event string, payload any) {
	if s.events == nil {
		return
	}
	s.events.Publish(event, payload)
}

func guardianRecipient(subject *models.Subject) notify.Recipient {
	return notify.Recipient{
		Name:  firstNonEmpty(subject.GuardianName, subject.FullName()),
		Email: firstNonEmpty(subject.GuardianEmail, subject.Email),
		Phone: firstNonEmpty(subject.GuardianCell, subject.Cell),
	}
}

func subjectName(subject *models.Subject) string {
	if subject == nil {
		return ""
	}
	return subject.FullName()
}

func subjectMatchesAny(subject *models.Subject, groups []string) bool {
	for _, group := range groups {
		if subject.InGroup(group) {
			return true
		}
	}
	return false
}
