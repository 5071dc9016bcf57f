package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/youthtracker/internal/handlers/testutil"
	"github.com/charlesng35/youthtracker/internal/realtime"
)

func TestRealtimeHandler_StreamsPermissionEvents(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.Login()

	subjectID := createSubject(env, admin, "Gus", "Troop 12")
	activityID := createActivity(env, admin, "Rafting", "Troop 12")

	server := httptest.NewServer(env.Router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/realtime?access_token=" + admin
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool {
		return env.Hub.Subscribers(realtime.StreamPermissions) == 1
	}, 2*time.Second, 10*time.Millisecond)

	w := env.Request(http.MethodPost, "/api/activity-permissions/grant", map[string]any{
		"subject_id":  subjectID,
		"activity_id": activityID,
	}, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg realtime.Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, realtime.StreamPermissions, msg.Stream)
	require.Equal(t, "permission.granted", msg.Event)
}

func TestRealtimeHandler_RequiresToken(t *testing.T) {
	env := testutil.NewEnv(t)

	server := httptest.NewServer(env.Router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/realtime"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
