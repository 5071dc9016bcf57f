package handlers_test

import (
	"net/http"
	"time"

	"github.com/charlesng35/youthtracker/internal/handlers/testutil"
)

type idPayload struct {
	ID string `json:"id"`
}

func createSubject(env *testutil.Env, token, first string, groups ...string) string {
	env.T.Helper()
	w := env.Request(http.MethodPost, "/api/users", map[string]any{
		"first_name":     first,
		"last_name":      "Scout",
		"guardian_name":  "Pat " + first,
		"guardian_email": first + ".guardian@example.org",
		"groups":         groups,
	}, token)
	var created idPayload
	testutil.MustData(env, w, http.StatusCreated, &created)
	return created.ID
}

func createActivity(env *testutil.Env, token, name string, groups ...string) string {
	env.T.Helper()
	start := time.Date(2030, 6, 1, 9, 0, 0, 0, time.UTC)
	w := env.Request(http.MethodPost, "/api/activities", map[string]any{
		"name":         name,
		"starts_at":    start,
		"ends_at":      start.Add(30 * time.Hour),
		"location":     "Pine Lake",
		"groups":       groups,
		"is_overnight": true,
		"budget_items": []map[string]any{
			{"item": "Campsite", "amount": 120.0},
			{"item": "Food", "amount": 80.5},
		},
	}, token)
	var created idPayload
	testutil.MustData(env, w, http.StatusCreated, &created)
	return created.ID
}

type issuedToken struct {
	Token     string    `json:"token"`
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expires_at"`
}

func issueToken(env *testutil.Env, token, subjectID, activityID string) issuedToken {
	env.T.Helper()
	w := env.Request(http.MethodPost, "/api/permission-tokens", map[string]any{
		"subject_id":  subjectID,
		"activity_id": activityID,
	}, token)
	var issued issuedToken
	testutil.MustData(env, w, http.StatusCreated, &issued)
	return issued
}
