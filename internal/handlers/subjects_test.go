package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/youthtracker/internal/handlers/testutil"
)

type subjectPayload struct {
	ID            string   `json:"id"`
	FirstName     string   `json:"first_name"`
	LastName      string   `json:"last_name"`
	GuardianEmail string   `json:"guardian_email"`
	Groups        []string `json:"groups"`
	IsActive      bool     `json:"is_active"`
}

func TestSubjectHandler_CRUD(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.Login()

	id := createSubject(env, admin, "Alex", "Troop 12", "Crew 3")

	w := env.Request(http.MethodGet, "/api/users/"+id, nil, admin)
	var subject subjectPayload
	testutil.MustData(env, w, http.StatusOK, &subject)
	require.Equal(t, "Alex", subject.FirstName)
	require.Equal(t, "alex.guardian@example.org", subject.GuardianEmail, "guardian email is stored lowercased")
	require.ElementsMatch(t, []string{"Troop 12", "Crew 3"}, subject.Groups)
	require.True(t, subject.IsActive)

	w = env.Request(http.MethodPut, "/api/users/"+id, map[string]any{
		"first_name":     "Alexis",
		"guardian_email": "Pat.Parent@Example.ORG",
		"is_active":      false,
	}, admin)
	testutil.MustData(env, w, http.StatusOK, &subject)
	require.Equal(t, "Alexis", subject.FirstName)
	require.Equal(t, "pat.parent@example.org", subject.GuardianEmail)
	require.Equal(t, "Scout", subject.LastName)
	require.False(t, subject.IsActive)

	w = env.Request(http.MethodGet, "/api/users?active=false", nil, admin)
	var list []subjectPayload
	testutil.MustData(env, w, http.StatusOK, &list)
	require.Len(t, list, 1)

	w = env.Request(http.MethodDelete, "/api/users/"+id, nil, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/api/users/"+id, nil, admin)
	require.Equal(t, http.StatusNotFound, w.Code)
	resp := testutil.DecodeResponse(t, w)
	require.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestSubjectHandler_CreateValidation(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.Login()

	w := env.Request(http.MethodPost, "/api/users", map[string]any{
		"first_name":     "  ",
		"last_name":      "Scout",
		"guardian_email": "not-an-email",
	}, admin)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	resp := testutil.DecodeResponse(t, w)
	require.Equal(t, "BAD_REQUEST", resp.Error.Code)
	require.NotEmpty(t, resp.Error.Details)
}

func TestSubjectHandler_ListPaginationAndSearch(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.Login()

	createSubject(env, admin, "Ana", "Troop 12")
	createSubject(env, admin, "Ben", "Troop 12")
	createSubject(env, admin, "Cy", "Troop 40")

	w := env.Request(http.MethodGet, "/api/users?page=1&per_page=2", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	resp := testutil.DecodeResponse(t, w)
	require.NotNil(t, resp.Meta)
	require.Equal(t, 3, resp.Meta.Total)
	var page []subjectPayload
	testutil.DecodeInto(t, resp.Data, &page)
	require.Len(t, page, 2)

	w = env.Request(http.MethodGet, "/api/users?q=ben", nil, admin)
	var found []subjectPayload
	testutil.MustData(env, w, http.StatusOK, &found)
	require.Len(t, found, 1)
	require.Equal(t, "Ben", found[0].FirstName)

	w = env.Request(http.MethodGet, "/api/group-membership/troop%2012", nil, admin)
	var members []subjectPayload
	testutil.MustData(env, w, http.StatusOK, &members)
	require.Len(t, members, 2)

	w = env.Request(http.MethodGet, "/api/groups", nil, admin)
	var groups []string
	testutil.MustData(env, w, http.StatusOK, &groups)
	require.Equal(t, []string{"Troop 12", "Troop 40"}, groups)
}

func TestSubjectHandler_DeleteReferencedRequiresCascade(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.Login()

	subjectID := createSubject(env, admin, "Dee", "Troop 12")
	activityID := createActivity(env, admin, "Fishing", "Troop 12")
	issueToken(env, admin, subjectID, activityID)

	w := env.Request(http.MethodDelete, "/api/users/"+subjectID, nil, admin)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	w = env.Request(http.MethodDelete, "/api/users/"+subjectID+"?cascade=true", nil, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/api/users/"+subjectID, nil, admin)
	require.Equal(t, http.StatusNotFound, w.Code)
}
