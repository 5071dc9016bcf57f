package handlers_test

import (
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/youthtracker/internal/handlers/testutil"
)

type submitResult struct {
	Status   string `json:"status"`
	RecordID string `json:"record_id"`
	Document *struct {
		FileName string `json:"file_name"`
		SHA256   string `json:"sha256"`
	} `json:"document"`
	Warnings []string `json:"warnings"`
}

type permissionStatus struct {
	RecordID    string `json:"record_id"`
	SubjectID   string `json:"subject_id"`
	Status      string `json:"status"`
	Source      string `json:"source"`
	SignedBy    string `json:"signed_by"`
	SubjectName string `json:"subject_name"`
}

func TestPermissionHandler_SigningFlow(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.Login()

	subjectID := createSubject(env, admin, "Robin", "Troop 12")
	activityID := createActivity(env, admin, "Spring Campout", "Troop 12")
	issued := issueToken(env, admin, subjectID, activityID)
	require.NotEmpty(t, issued.Token)
	require.True(t, strings.HasPrefix(issued.Link, "https://troop.example.org/permission?token="), issued.Link)

	// Verification is read-only and can be repeated.
	for i := 0; i < 2; i++ {
		w := env.Request(http.MethodGet, "/api/verify-token?token="+issued.Token, nil, "")
		var view struct {
			SubjectName  string `json:"subject_name"`
			ActivityName string `json:"activity_name"`
			GuardianName string `json:"guardian_name"`
		}
		testutil.MustData(env, w, http.StatusOK, &view)
		require.Equal(t, "Robin Scout", view.SubjectName)
		require.Equal(t, "Spring Campout", view.ActivityName)
		require.Equal(t, "Pat Robin", view.GuardianName)
	}

	w := env.Request(http.MethodPost, "/api/activity-permission", map[string]any{
		"token":     issued.Token,
		"signed_by": "Pat Robin",
		"medical":   "Peanut allergy",
	}, "")
	var result submitResult
	testutil.MustData(env, w, http.StatusOK, &result)
	require.Equal(t, "signed", result.Status)
	require.NotEmpty(t, result.RecordID)
	require.NotNil(t, result.Document)
	require.Len(t, result.Document.SHA256, 64)

	// The token is single use.
	w = env.Request(http.MethodPost, "/api/activity-permission", map[string]any{"token": issued.Token}, "")
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	resp := testutil.DecodeResponse(t, w)
	require.Equal(t, "INVALID_TOKEN", resp.Error.Code)

	w = env.Request(http.MethodGet, "/api/verify-token?token="+issued.Token, nil, "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.Request(http.MethodGet, "/api/activities/"+activityID+"/permissions", nil, admin)
	var statuses []permissionStatus
	testutil.MustData(env, w, http.StatusOK, &statuses)
	require.Len(t, statuses, 1)
	require.Equal(t, "signed", statuses[0].Status)
	require.Equal(t, "token", statuses[0].Source)
	require.Equal(t, "Pat Robin", statuses[0].SignedBy)

	w = env.Request(http.MethodGet, "/api/permission-records/"+result.RecordID+"/document/verify", nil, admin)
	var verification struct {
		Valid  bool   `json:"valid"`
		SHA256 string `json:"sha256"`
	}
	testutil.MustData(env, w, http.StatusOK, &verification)
	require.True(t, verification.Valid)
	require.Equal(t, result.Document.SHA256, verification.SHA256)

	w = env.Request(http.MethodGet, "/api/permission-records/"+result.RecordID+"/documents", nil, admin)
	var docs []map[string]any
	testutil.MustData(env, w, http.StatusOK, &docs)
	require.Len(t, docs, 1)

	w = env.Request(http.MethodGet, "/api/permission-records/"+result.RecordID+"/document", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	require.NotZero(t, w.Body.Len())

	var notified bool
	for _, sent := range env.Outbox.Sent() {
		if sent.To.Email == "leader@example.org" {
			notified = true
		}
	}
	require.True(t, notified, "admin should receive a signing confirmation")
}

func TestPermissionHandler_SubmitAliasRoute(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.Login()

	subjectID := createSubject(env, admin, "Sky", "Troop 12")
	activityID := createActivity(env, admin, "River Day", "Troop 12")
	issued := issueToken(env, admin, subjectID, activityID)

	w := env.Request(http.MethodPost, "/api/submit-permission-detail", map[string]any{"token": issued.Token}, "")
	var result submitResult
	testutil.MustData(env, w, http.StatusOK, &result)
	require.Equal(t, "signed", result.Status)
}

func TestPermissionHandler_InvalidTokens(t *testing.T) {
	env := testutil.NewEnv(t)

	cases := []string{
		"/api/verify-token",
		"/api/verify-token?token=",
		"/api/verify-token?token=does-not-exist",
	}
	for _, path := range cases {
		w := env.Request(http.MethodGet, path, nil, "")
		require.Equal(t, http.StatusBadRequest, w.Code, path)
		resp := testutil.DecodeResponse(t, w)
		require.Equal(t, "INVALID_TOKEN", resp.Error.Code, path)
		require.Equal(t, "Invalid or expired token", resp.Error.Message, path)
	}

	w := env.Request(http.MethodPost, "/api/activity-permission", map[string]any{"token": "does-not-exist"}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := testutil.DecodeResponse(t, w)
	require.Equal(t, "INVALID_TOKEN", resp.Error.Code)
}

func TestPermissionHandler_SubmitRejectsMalformedSignature(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.Login()

	subjectID := createSubject(env, admin, "Ash", "Troop 12")
	activityID := createActivity(env, admin, "Hike", "Troop 12")
	issued := issueToken(env, admin, subjectID, activityID)

	w := env.Request(http.MethodPost, "/api/activity-permission", map[string]any{
		"token":     issued.Token,
		"signature": "not-an-image",
	}, "")
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	resp := testutil.DecodeResponse(t, w)
	require.Equal(t, "BAD_REQUEST", resp.Error.Code)

	// A rejected request leaves the token usable.
	w = env.Request(http.MethodGet, "/api/verify-token?token="+issued.Token, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestPermissionHandler_ConcurrentSubmitSignsOnce(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.Login()

	subjectID := createSubject(env, admin, "Lee", "Troop 12")
	activityID := createActivity(env, admin, "Canoe Trip", "Troop 12")
	issued := issueToken(env, admin, subjectID, activityID)

	const workers = 4
	codes := make([]int, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := env.Request(http.MethodPost, "/api/activity-permission", map[string]any{"token": issued.Token}, "")
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	var ok, rejected int
	for _, code := range codes {
		switch code {
		case http.StatusOK:
			ok++
		case http.StatusBadRequest:
			rejected++
		}
	}
	require.Equal(t, 1, ok, "codes: %v", codes)
	require.Equal(t, workers-1, rejected, "codes: %v", codes)
}

func TestPermissionHandler_EnrollAndReminders(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.Login()

	first := createSubject(env, admin, "Kai", "Troop 12")
	createSubject(env, admin, "Noor", "Troop 12")
	createSubject(env, admin, "Ola", "Troop 40")
	activityID := createActivity(env, admin, "Museum Visit", "Troop 12")

	w := env.Request(http.MethodPost, "/api/activities/"+activityID+"/enroll", nil, admin)
	var enrolled struct {
		Matched int `json:"matched"`
		Created int `json:"created"`
	}
	testutil.MustData(env, w, http.StatusOK, &enrolled)
	require.Equal(t, 2, enrolled.Matched)
	require.Equal(t, 2, enrolled.Created)

	// Enrolment is idempotent.
	w = env.Request(http.MethodPost, "/api/activities/"+activityID+"/enroll", nil, admin)
	testutil.MustData(env, w, http.StatusOK, &enrolled)
	require.Equal(t, 0, enrolled.Created)

	w = env.Request(http.MethodGet, "/api/request-permissions?activity_id="+activityID, nil, admin)
	var report struct {
		Sent    int `json:"sent"`
		Skipped int `json:"skipped"`
		Entries []struct {
			RecordID  string `json:"record_id"`
			SubjectID string `json:"subject_id"`
			Status    string `json:"status"`
		} `json:"entries"`
	}
	testutil.MustData(env, w, http.StatusOK, &report)
	require.Equal(t, 2, report.Sent)
	require.Len(t, env.Outbox.Sent(), 2)
	for _, sent := range env.Outbox.Sent() {
		require.Contains(t, sent.Message.Text, "https://troop.example.org/permission?token=")
	}

	var recordID string
	for _, entry := range report.Entries {
		if entry.SubjectID == first {
			recordID = entry.RecordID
		}
	}
	require.NotEmpty(t, recordID)

	// A second bulk run inside the cooldown skips everyone.
	w = env.Request(http.MethodGet, "/api/request-permissions?activity_id="+activityID, nil, admin)
	testutil.MustData(env, w, http.StatusOK, &report)
	require.Equal(t, 0, report.Sent)
	require.Equal(t, 2, report.Skipped)

	w = env.Request(http.MethodGet, "/api/resend-permission?id="+recordID, nil, admin)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/api/request-permissions", nil, admin)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPermissionHandler_ResendWithoutCooldown(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithReminderCooldown(0))
	admin := env.Login()

	createSubject(env, admin, "Mo", "Troop 12")
	activityID := createActivity(env, admin, "Climbing", "Troop 12")

	w := env.Request(http.MethodPost, "/api/activities/"+activityID+"/enroll", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.Request(http.MethodGet, "/api/activities/"+activityID+"/permissions", nil, admin)
	var statuses []permissionStatus
	testutil.MustData(env, w, http.StatusOK, &statuses)
	require.Len(t, statuses, 1)
	require.Equal(t, "pending", statuses[0].Status)

	for i := 0; i < 2; i++ {
		w = env.Request(http.MethodGet, "/api/resend-permission?id="+statuses[0].RecordID, nil, admin)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	require.Len(t, env.Outbox.Sent(), 2)
}

func TestPermissionHandler_Grant(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.Login()

	subjectID := createSubject(env, admin, "Jo", "Troop 12")
	activityID := createActivity(env, admin, "Service Day", "Troop 12")

	w := env.Request(http.MethodPost, "/api/activity-permissions/grant", map[string]any{
		"subject_id":  subjectID,
		"activity_id": activityID,
	}, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/api/activities/"+activityID+"/permissions", nil, admin)
	var statuses []permissionStatus
	testutil.MustData(env, w, http.StatusOK, &statuses)
	require.Len(t, statuses, 1)
	require.Equal(t, "signed", statuses[0].Status)
	require.Equal(t, "admin", statuses[0].Source)

	w = env.Request(http.MethodPost, "/api/activity-permissions/grant", map[string]any{
		"subject_id":  "missing",
		"activity_id": activityID,
	}, admin)
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
}

func TestPermissionHandler_IssueTokenValidation(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.Login()

	w := env.Request(http.MethodPost, "/api/permission-tokens", map[string]any{"subject_id": "x"}, admin)
	require.Equal(t, http.StatusBadRequest, w.Code)

	activityID := createActivity(env, admin, "Orienteering")
	w = env.Request(http.MethodPost, "/api/permission-tokens", map[string]any{
		"subject_id":  "missing",
		"activity_id": activityID,
	}, admin)
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
}

func TestPermissionHandler_RequestPreviews(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.Login()

	subjectID := createSubject(env, admin, "Rae", "Troop 12")
	activityID := createActivity(env, admin, "Ski Day", "Troop 12")
	link := "https://troop.example.org/activities/" + activityID

	w := env.Request(http.MethodGet, "/api/email-activity-permission/"+activityID, nil, admin)
	var email struct {
		Channel string `json:"channel"`
		Subject string `json:"subject"`
		Text    string `json:"text"`
		HTML    string `json:"html"`
	}
	testutil.MustData(env, w, http.StatusOK, &email)
	require.Equal(t, "email", email.Channel)
	require.Contains(t, email.Subject, "Ski Day")
	require.Contains(t, email.Text, "your child")
	require.Contains(t, email.Text, link)
	require.NotEmpty(t, email.HTML)

	w = env.Request(http.MethodGet, "/api/email-activity-permission/"+activityID+"?subject_id="+subjectID, nil, admin)
	testutil.MustData(env, w, http.StatusOK, &email)
	require.Contains(t, email.Subject, "Rae Scout")

	w = env.Request(http.MethodGet, "/api/sms-activity-permission/"+activityID+"?subject_id="+subjectID, nil, admin)
	var sms struct {
		Channel string `json:"channel"`
		Text    string `json:"text"`
	}
	testutil.MustData(env, w, http.StatusOK, &sms)
	require.Equal(t, "sms", sms.Channel)
	require.Equal(t, "Permission needed for Rae Scout to attend Ski Day: "+link, sms.Text)

	// previews neither send nor mint tokens
	require.Empty(t, env.Outbox.Sent())
	w = env.Request(http.MethodGet, "/api/activities/"+activityID+"/permissions", nil, admin)
	var statuses []permissionStatus
	testutil.MustData(env, w, http.StatusOK, &statuses)
	require.Empty(t, statuses)

	w = env.Request(http.MethodGet, "/api/sms-activity-permission/00000000-0000-0000-0000-000000000000", nil, admin)
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
	w = env.Request(http.MethodGet, "/api/email-activity-permission/"+activityID+"?subject_id=missing", nil, admin)
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
}

func TestPermissionHandler_GrantKeepsGuardianSignature(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.Login()

	subjectID := createSubject(env, admin, "Lee", "Troop 12")
	activityID := createActivity(env, admin, "Canoe Trip", "Troop 12")
	issued := issueToken(env, admin, subjectID, activityID)

	w := env.Request(http.MethodPost, "/api/activity-permission", map[string]any{
		"token":     issued.Token,
		"signed_by": "Pat Lee",
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodPost, "/api/activity-permissions/grant", map[string]any{
		"subject_id":  subjectID,
		"activity_id": activityID,
	}, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/api/activities/"+activityID+"/permissions", nil, admin)
	var statuses []permissionStatus
	testutil.MustData(env, w, http.StatusOK, &statuses)
	require.Len(t, statuses, 1)
	require.Equal(t, "signed", statuses[0].Status)
	require.Equal(t, "token", statuses[0].Source)
	require.Equal(t, "Pat Lee", statuses[0].SignedBy)
}
