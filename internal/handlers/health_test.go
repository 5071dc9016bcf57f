package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/youthtracker/internal/handlers/testutil"
)

func TestHealth(t *testing.T) {
	env := testutil.NewEnv(t)

	for _, path := range []string{"/health", "/api/health"} {
		w := env.Request(http.MethodGet, path, nil, "")
		var payload struct {
			Status   string `json:"status"`
			Database string `json:"database"`
		}
		testutil.MustData(env, w, http.StatusOK, &payload)
		require.Equal(t, "ok", payload.Status, path)
	}
}

func TestHealth_DatabaseDown(t *testing.T) {
	env := testutil.NewEnv(t)

	sqlDB, err := env.DB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	w := env.Request(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())
}
