package services

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/youthtracker/internal/documents"
	"github.com/charlesng35/youthtracker/internal/models"
	"github.com/charlesng35/youthtracker/internal/notify"
)

type recordingNotifier struct {
	mu       sync.Mutex
	fail     bool
	messages []notify.Message
	targets  [][]notify.Recipient
}

func (n *recordingNotifier) Dispatch(_ context.Context, recipients []notify.Recipient, msg notify.Message) notify.Report {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	n.targets = append(n.targets, recipients)

	report := notify.Report{Attempted: len(recipients)}
	if n.fail {
		for _, r := range recipients {
			report.Failures = append(report.Failures, notify.Failure{Recipient: r, Channel: "email", Reason: "smtp down"})
		}
		return report
	}
	report.Delivered = len(recipients)
	return report
}

type recordingPublisher struct {
	events []string
}

func (p *recordingPublisher) Publish(event string, _ any) {
	p.events = append(p.events, event)
}

type failingGenerator struct {
	*documents.Generator
}

func (f failingGenerator) Generate(context.Context, documents.WaiverData) (*documents.Artifact, error) {
	return nil, errors.New("disk full")
}

type permissionHarness struct {
	serviceEnv
	svc       *PermissionService
	tokens    *TokenService
	generator *documents.Generator
	notifier  *recordingNotifier
	events    *recordingPublisher
}

func newPermissionHarness(t *testing.T, opts ...PermissionOption) permissionHarness {
	t.Helper()
	env := newServiceEnv(t)

	gen, err := documents.NewGenerator(documents.Config{
		OutputDir:    filepath.Join(t.TempDir(), "waivers"),
		SigningKey:   ed25519.NewKeyFromSeed(bytes.Repeat([]byte{3}, ed25519.SeedSize)),
		KeyID:        "test-key",
		Organization: "Troop 42",
	})
	require.NoError(t, err)

	h := permissionHarness{
		serviceEnv: env,
		tokens:     env.tokens(t),
		generator:  gen,
		notifier:   &recordingNotifier{},
		events:     &recordingPublisher{},
	}
	base := []PermissionOption{
		WithPermissionClock(env.clock.Now),
		WithAdminRecipients([]string{"leader@example.org"}),
		WithEventPublisher(h.events),
	}
	h.svc, err = NewPermissionService(env.store, h.tokens, gen, h.notifier, append(base, opts...)...)
	require.NoError(t, err)
	return h
}

func TestVerifyTokenReturnsDisplayData(t *testing.T) {
	h := newPermissionHarness(t)
	subject := h.subject(t, "Riley")
	activity := h.activity(t, "Campout")

	issued, err := h.tokens.Issue(context.Background(), subject.ID, activity.ID, 0)
	require.NoError(t, err)

	view, err := h.svc.VerifyToken(context.Background(), issued.Token)
	require.NoError(t, err)
	require.Equal(t, "Riley Scout", view.SubjectName)
	require.Equal(t, "Campout", view.ActivityName)
	require.Equal(t, []string{"Alex", "Jordan"}, view.Drivers)
	require.True(t, view.IsOvernight)

	// verification never consumes
	_, err = h.svc.VerifyToken(context.Background(), issued.Token)
	require.NoError(t, err)
}

func TestSubmitSignsRecordAndStoresDocument(t *testing.T) {
	h := newPermissionHarness(t)
	ctx := context.Background()
	subject := h.subject(t, "Riley")
	activity := h.activity(t, "Campout")

	issued, err := h.tokens.Issue(ctx, subject.ID, activity.ID, 0)
	require.NoError(t, err)

	result, err := h.svc.Submit(ctx, SubmitPermissionInput{
		Token:     issued.Token,
		SignedBy:  "Pat Parent",
		Medical:   "None",
		IPAddress: "203.0.113.9",
		UserAgent: "Mozilla/5.0",
	})
	require.NoError(t, err)
	require.Equal(t, "signed", result.Status)
	require.NotNil(t, result.Document)
	require.Empty(t, result.Warnings)

	record, err := h.store.Permissions().Get(ctx, result.RecordID)
	require.NoError(t, err)
	require.True(t, record.Signed)
	require.Equal(t, "Pat Parent", record.SignedBy)
	require.Equal(t, "203.0.113.9", record.IPAddress)
	require.Equal(t, models.PermissionSourceToken, record.Source)
	require.Equal(t, result.Document.SHA256, record.DocumentSHA256)
	require.FileExists(t, record.DocumentPath)

	docs, err := h.svc.Documents(ctx, record.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	verification, err := h.svc.VerifyDocument(ctx, record.ID)
	require.NoError(t, err)
	require.True(t, verification.Valid)
	require.Equal(t, "test-key", verification.KeyID)

	require.Len(t, h.notifier.messages, 1)
	require.Len(t, h.notifier.messages[0].Attachments, 1)
	require.Equal(t, "leader@example.org", h.notifier.targets[0][0].Email)
	require.Equal(t, []string{EventPermissionSigned}, h.events.events)

	_, err = h.svc.Submit(ctx, SubmitPermissionInput{Token: issued.Token})
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestSubmitReportsNotificationFailureAsWarning(t *testing.T) {
	h := newPermissionHarness(t)
	h.notifier.fail = true
	ctx := context.Background()
	subject := h.subject(t, "Quinn")
	activity := h.activity(t, "Campout")

	issued, err := h.tokens.Issue(ctx, subject.ID, activity.ID, 0)
	require.NoError(t, err)

	result, err := h.svc.Submit(ctx, SubmitPermissionInput{Token: issued.Token})
	require.NoError(t, err)
	require.NotEmpty(t, result.Warnings)

	record, err := h.store.Permissions().Get(ctx, result.RecordID)
	require.NoError(t, err)
	require.True(t, record.Signed)
	require.Equal(t, subject.GuardianName, record.SignedBy)
}

func TestSubmitRollsBackWhenDocumentFails(t *testing.T) {
	h := newPermissionHarness(t)
	ctx := context.Background()
	svc, err := NewPermissionService(h.store, h.tokens, failingGenerator{h.generator}, h.notifier)
	require.NoError(t, err)

	subject := h.subject(t, "Parker")
	activity := h.activity(t, "Campout")
	issued, err := h.tokens.Issue(ctx, subject.ID, activity.ID, 0)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, SubmitPermissionInput{Token: issued.Token})
	require.ErrorIs(t, err, ErrDocumentGeneration)

	_, err = h.store.Permissions().Find(ctx, subject.ID, activity.ID)
	require.Error(t, err)

	// the token survives the rollback and can be used again
	_, err = h.tokens.Validate(ctx, issued.Token)
	require.NoError(t, err)
	require.Empty(t, h.notifier.messages)
}

func TestSubmitConcurrentSingleSigning(t *testing.T) {
	h := newPermissionHarness(t)
	ctx := context.Background()
	subject := h.subject(t, "Sky")
	activity := h.activity(t, "Campout")
	issued, err := h.tokens.Issue(ctx, subject.ID, activity.ID, 0)
	require.NoError(t, err)

	const callers = 5
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.svc.Submit(ctx, SubmitPermissionInput{Token: issued.Token}); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, success)
	var docs int64
	require.NoError(t, h.db.Model(&models.WaiverDocument{}).Count(&docs).Error)
	require.Equal(t, int64(1), docs)
	require.Len(t, h.notifier.messages, 1)
}

func TestRequestPermissionsStampsUnsignedOnly(t *testing.T) {
	h := newPermissionHarness(t)
	ctx := context.Background()
	activity := h.activity(t, "Campout")
	first := h.subject(t, "Avery")
	second := h.subject(t, "Blake")
	signed := h.subject(t, "Cameron")

	_, err := h.store.Permissions().EnsurePending(ctx, first.ID, activity.ID)
	require.NoError(t, err)
	_, err = h.store.Permissions().EnsurePending(ctx, second.ID, activity.ID)
	require.NoError(t, err)
	signedRecord, err := h.store.Permissions().UpsertSigned(ctx, signed.ID, activity.ID, storeAuditFor("Cameron's Guardian"))
	require.NoError(t, err)

	callTime := h.clock.Now().UTC()
	report, err := h.svc.RequestPermissions(ctx, activity.ID, Actor{})
	require.NoError(t, err)
	require.Equal(t, 2, report.Sent)
	require.Len(t, report.Entries, 2)

	for _, subjectID := range []string{first.ID, second.ID} {
		record, err := h.store.Permissions().Find(ctx, subjectID, activity.ID)
		require.NoError(t, err)
		require.NotNil(t, record.LastRequestedAt)
		require.True(t, callTime.Equal(*record.LastRequestedAt))
	}

	untouched, err := h.store.Permissions().Get(ctx, signedRecord.ID)
	require.NoError(t, err)
	require.Nil(t, untouched.LastRequestedAt)
	require.True(t, untouched.Signed)

	require.Len(t, h.notifier.messages, 2)
	require.Contains(t, h.notifier.messages[0].Text, "https://troop.example.org/permission?token=")
	require.Equal(t, first.GuardianEmail, h.notifier.targets[0][0].Email)
}

func TestRequestPermissionsHonoursCooldown(t *testing.T) {
	h := newPermissionHarness(t, WithReminderCooldown(time.Hour))
	ctx := context.Background()
	activity := h.activity(t, "Campout")
	subject := h.subject(t, "Dana")
	_, err := h.store.Permissions().EnsurePending(ctx, subject.ID, activity.ID)
	require.NoError(t, err)

	first, err := h.svc.RequestPermissions(ctx, activity.ID, Actor{})
	require.NoError(t, err)
	require.Equal(t, 1, first.Sent)

	h.clock.Advance(10 * time.Minute)
	second, err := h.svc.RequestPermissions(ctx, activity.ID, Actor{})
	require.NoError(t, err)
	require.Equal(t, 1, second.Skipped)
	require.Equal(t, ReminderSkipped, second.Entries[0].Status)

	record, err := h.store.Permissions().Find(ctx, subject.ID, activity.ID)
	require.NoError(t, err)
	_, err = h.svc.Resend(ctx, record.ID, Actor{})
	require.ErrorIs(t, err, ErrReminderCooldown)

	h.clock.Advance(time.Hour)
	resent, err := h.svc.Resend(ctx, record.ID, Actor{})
	require.NoError(t, err)
	require.Equal(t, 1, resent.Sent)
}

func TestResendWithoutCooldownAndSignedConflict(t *testing.T) {
	h := newPermissionHarness(t, WithReminderCooldown(0))
	ctx := context.Background()
	activity := h.activity(t, "Campout")
	subject := h.subject(t, "Eli")
	_, err := h.store.Permissions().EnsurePending(ctx, subject.ID, activity.ID)
	require.NoError(t, err)
	record, err := h.store.Permissions().Find(ctx, subject.ID, activity.ID)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := h.svc.Resend(ctx, record.ID, Actor{})
		require.NoError(t, err)
	}
	require.Len(t, h.notifier.messages, 3)

	_, err = h.store.Permissions().UpsertSigned(ctx, subject.ID, activity.ID, storeAuditFor("Eli's Guardian"))
	require.NoError(t, err)
	_, err = h.svc.Resend(ctx, record.ID, Actor{})
	require.ErrorIs(t, err, ErrConflict)

	_, err = h.svc.Resend(ctx, "00000000-0000-0000-0000-000000000000", Actor{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRequestPermissionsReportsDeliveryFailures(t *testing.T) {
	h := newPermissionHarness(t)
	h.notifier.fail = true
	ctx := context.Background()
	activity := h.activity(t, "Campout")
	subject := h.subject(t, "Frankie")
	_, err := h.store.Permissions().EnsurePending(ctx, subject.ID, activity.ID)
	require.NoError(t, err)

	report, err := h.svc.RequestPermissions(ctx, activity.ID, Actor{})
	require.NoError(t, err)
	require.Equal(t, 1, report.Failed)
	require.NotEmpty(t, report.Entries[0].Warnings)

	record, err := h.store.Permissions().Find(ctx, subject.ID, activity.ID)
	require.NoError(t, err)
	require.NotNil(t, record.LastRequestedAt)
}

func TestGrantMarksRecordSignedByAdmin(t *testing.T) {
	h := newPermissionHarness(t)
	ctx := context.Background()
	activity := h.activity(t, "Campout")
	subject := h.subject(t, "Gale")

	var admin models.Admin
	require.NoError(t, h.db.First(&admin).Error)

	record, err := h.svc.Grant(ctx, GrantInput{
		SubjectID:     subject.ID,
		ActivityID:    activity.ID,
		AdminID:       admin.ID,
		AdminUsername: admin.Username,
	})
	require.NoError(t, err)
	require.True(t, record.Signed)
	require.Equal(t, models.PermissionSourceAdmin, record.Source)
	require.NotNil(t, record.GrantedBy)
	require.Equal(t, admin.ID, *record.GrantedBy)

	again, err := h.svc.Grant(ctx, GrantInput{SubjectID: subject.ID, ActivityID: activity.ID, AdminID: admin.ID})
	require.NoError(t, err)
	require.Equal(t, record.ID, again.ID)
	require.Contains(t, h.events.events, EventPermissionGranted)

	_, err = h.svc.Grant(ctx, GrantInput{SubjectID: subject.ID, ActivityID: activity.ID})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestEnrollParticipantsMatchesActiveGroupMembers(t *testing.T) {
	h := newPermissionHarness(t)
	ctx := context.Background()
	activity := h.activity(t, "Campout", "Eagles")
	member := h.subject(t, "Harper", "eagles")
	h.subject(t, "Indy", "Hawks")
	inactive := h.subject(t, "Jules", "Eagles")
	require.NoError(t, h.db.Model(&inactive).Update("is_active", false).Error)

	report, err := h.svc.EnrollParticipants(ctx, activity.ID, Actor{})
	require.NoError(t, err)
	require.Equal(t, 1, report.Matched)
	require.Equal(t, 1, report.Created)

	again, err := h.svc.EnrollParticipants(ctx, activity.ID, Actor{})
	require.NoError(t, err)
	require.Equal(t, 0, again.Created)

	statuses, err := h.svc.ListPermissions(ctx, activity.ID)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	require.Equal(t, member.ID, statuses[0].SubjectID)
	require.Equal(t, "pending", statuses[0].Status)
}

func TestVerifyDocumentDetectsTampering(t *testing.T) {
	h := newPermissionHarness(t)
	ctx := context.Background()
	subject := h.subject(t, "Kai")
	activity := h.activity(t, "Campout")
	issued, err := h.tokens.Issue(ctx, subject.ID, activity.ID, 0)
	require.NoError(t, err)
	result, err := h.svc.Submit(ctx, SubmitPermissionInput{Token: issued.Token})
	require.NoError(t, err)

	path, err := h.svc.DocumentPath(ctx, result.RecordID)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.3 forged"), 0o600))

	verification, err := h.svc.VerifyDocument(ctx, result.RecordID)
	require.NoError(t, err)
	require.False(t, verification.Valid)
	require.NotEmpty(t, verification.Reason)
}

func TestGrantKeepsGuardianSignature(t *testing.T) {
	h := newPermissionHarness(t)
	ctx := context.Background()
	subject := h.subject(t, "Pat")
	activity := h.activity(t, "Campout")

	issued, err := h.tokens.Issue(ctx, subject.ID, activity.ID, 0)
	require.NoError(t, err)
	signed, err := h.svc.Submit(ctx, SubmitPermissionInput{
		Token:     issued.Token,
		SignedBy:  "Pat Parent",
		IPAddress: "203.0.113.9",
		UserAgent: "Mozilla/5.0",
	})
	require.NoError(t, err)

	var admin models.Admin
	require.NoError(t, h.db.First(&admin).Error)

	record, err := h.svc.Grant(ctx, GrantInput{
		SubjectID:     subject.ID,
		ActivityID:    activity.ID,
		AdminID:       admin.ID,
		AdminUsername: admin.Username,
		IPAddress:     "10.0.0.1",
	})
	require.NoError(t, err)
	require.Equal(t, signed.RecordID, record.ID)
	require.Equal(t, "Pat Parent", record.SignedBy)
	require.Equal(t, "203.0.113.9", record.IPAddress)
	require.Equal(t, "Mozilla/5.0", record.UserAgent)
	require.Equal(t, models.PermissionSourceToken, record.Source)
	require.Nil(t, record.GrantedBy)
	require.Equal(t, signed.Document.SHA256, record.DocumentSHA256)
	require.NotContains(t, h.events.events, EventPermissionGranted)
}

func TestResendConcurrentCallsRemindOnce(t *testing.T) {
	h := newPermissionHarness(t, WithReminderCooldown(time.Hour))
	ctx := context.Background()
	activity := h.activity(t, "Campout")
	subject := h.subject(t, "Quinn")
	_, err := h.store.Permissions().EnsurePending(ctx, subject.ID, activity.ID)
	require.NoError(t, err)
	record, err := h.store.Permissions().Find(ctx, subject.ID, activity.ID)
	require.NoError(t, err)

	const callers = 5
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		sent     int
		cooldown int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Resend(ctx, record.ID, Actor{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				sent++
			case errors.Is(err, ErrReminderCooldown):
				cooldown++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, sent)
	require.Equal(t, callers-1, cooldown)
	require.Len(t, h.notifier.messages, 1)
}

func TestRemindSkipsSlotClaimedElsewhere(t *testing.T) {
	h := newPermissionHarness(t, WithReminderCooldown(time.Hour))
	ctx := context.Background()
	activity := h.activity(t, "Campout")
	subject := h.subject(t, "Reese")
	_, err := h.store.Permissions().EnsurePending(ctx, subject.ID, activity.ID)
	require.NoError(t, err)

	stale, err := h.store.Permissions().ListUnsigned(ctx, activity.ID)
	require.NoError(t, err)
	require.Len(t, stale, 1)

	now := h.clock.Now().UTC()
	require.NoError(t, h.store.Permissions().ClaimRequest(ctx, stale[0].ID, now, now.Add(-time.Hour)))

	_, err = h.svc.remind(ctx, &activity, &stale[0], now)
	require.ErrorIs(t, err, ErrReminderCooldown)
	require.Empty(t, h.notifier.messages)

	var tokens int64
	require.NoError(t, h.db.Model(&models.PermissionToken{}).Count(&tokens).Error)
	require.Zero(t, tokens)
}

func TestAdminPermissionActionsAreAudited(t *testing.T) {
	h := newPermissionHarness(t, WithReminderCooldown(0))
	audit, err := NewAuditService(h.db)
	require.NoError(t, err)
	h.svc.audit = audit

	ctx := context.Background()
	var admin models.Admin
	require.NoError(t, h.db.First(&admin).Error)
	actor := Actor{ID: admin.ID, Username: admin.Username, IPAddress: "10.0.0.1"}

	activity := h.activity(t, "Campout", "Eagles")
	subject := h.subject(t, "Sage", "Eagles")

	_, err = h.svc.IssueToken(ctx, subject.ID, activity.ID, 0, actor)
	require.NoError(t, err)
	_, err = h.svc.EnrollParticipants(ctx, activity.ID, actor)
	require.NoError(t, err)
	_, err = h.svc.RequestPermissions(ctx, activity.ID, actor)
	require.NoError(t, err)
	record, err := h.store.Permissions().Find(ctx, subject.ID, activity.ID)
	require.NoError(t, err)
	_, err = h.svc.Resend(ctx, record.ID, actor)
	require.NoError(t, err)

	counts := map[string]int64{
		AuditActionTokenIssue: 1,
		AuditActionEnroll:     1,
		AuditActionReminder:   2,
	}
	for action, want := range counts {
		logs, total, err := audit.List(ctx, AuditListOptions{Filters: AuditFilters{Action: action}})
		require.NoError(t, err)
		require.Equal(t, want, total, action)
		require.NotNil(t, logs[0].AdminID)
		require.Equal(t, admin.ID, *logs[0].AdminID)
		require.Equal(t, "10.0.0.1", logs[0].IPAddress)
	}
}

func TestPreviewRequestRendersReminder(t *testing.T) {
	h := newPermissionHarness(t)
	ctx := context.Background()
	activity := h.activity(t, "Campout")
	subject := h.subject(t, "Tate")
	link := "https://troop.example.org/activities/" + activity.ID

	generic, err := h.svc.PreviewRequest(ctx, activity.ID, "", link)
	require.NoError(t, err)
	require.Contains(t, generic.Subject, "Campout")
	require.Contains(t, generic.HTML, "Parent/Guardian")
	require.Contains(t, generic.SMS, link)
	require.Contains(t, generic.Text, "expires Jun 8 2025")

	personal, err := h.svc.PreviewRequest(ctx, activity.ID, subject.ID, link)
	require.NoError(t, err)
	require.Contains(t, personal.HTML, "Tate&#39;s Guardian")
	require.Contains(t, personal.SMS, "Tate Scout")

	_, err = h.svc.PreviewRequest(ctx, "00000000-0000-0000-0000-000000000000", "", link)
	require.ErrorIs(t, err, ErrNotFound)

	var tokens int64
	require.NoError(t, h.db.Model(&models.PermissionToken{}).Count(&tokens).Error)
	require.Zero(t, tokens)
}
