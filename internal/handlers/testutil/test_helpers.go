package testutil

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/youthtracker/internal/api"
	"github.com/charlesng35/youthtracker/internal/app"
	iauth "github.com/charlesng35/youthtracker/internal/auth"
	sharedtestutil "github.com/charlesng35/youthtracker/internal/database/testutil"
	"github.com/charlesng35/youthtracker/internal/documents"
	"github.com/charlesng35/youthtracker/internal/notify"
	"github.com/charlesng35/youthtracker/internal/realtime"
	"github.com/charlesng35/youthtracker/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Router   *gin.Engine
	JWT      *iauth.JWTService
	Config   *app.Config
	Services *api.Services
	Hub      *realtime.Hub
	Outbox   *Outbox
}

// EnvOption tweaks the configuration before the router is built.
type EnvOption func(*app.Config)

// WithRateLimit enables the public endpoint limiter.
func WithRateLimit(perSecond float64, burst int) EnvOption {
	return func(cfg *app.Config) {
		cfg.Server.RateLimit = app.RateLimitConfig{Enabled: true, RequestsPerSecond: perSecond, Burst: burst}
	}
}

// WithReminderCooldown overrides the reminder cooldown.
func WithReminderCooldown(cooldown time.Duration) EnvOption {
	return func(cfg *app.Config) {
		cfg.Notifications.ReminderCooldown = cooldown
	}
}

// NewEnv provisions a fresh handler test environment with migrations and seed data applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())

	jwtSecret := "test-suite-super-secret-key-32-bytes!!"
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         jwtSecret,
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{Secret: jwtSecret, Issuer: "test-suite", TTL: time.Hour},
		},
		Tokens: app.TokenConfig{TTL: 7 * 24 * time.Hour},
		Notifications: app.NotificationsConfig{
			PermissionURL:    "https://troop.example.org/permission",
			ActivityURL:      "https://troop.example.org/activities",
			AdminEmails:      []string{"leader@example.org"},
			ReminderCooldown: time.Hour,
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	generator, err := documents.NewGenerator(documents.Config{
		OutputDir:    t.TempDir(),
		SigningKey:   key,
		KeyID:        "test",
		Organization: "Test Troop",
	})
	require.NoError(t, err)

	outbox := &Outbox{}
	hub := realtime.NewHub()

	svcs, err := api.NewServices(api.ServiceDeps{
		Config:    cfg,
		DB:        db,
		JWT:       jwtSvc,
		Documents: generator,
		Notifier:  notify.NewDispatcher([]notify.Channel{outbox}),
		Events:    realtime.NewPublisher(hub),
	})
	require.NoError(t, err)

	router, err := api.NewRouter(api.Dependencies{
		Config:   cfg,
		DB:       db,
		JWT:      jwtSvc,
		Services: svcs,
		Hub:      hub,
	})
	require.NoError(t, err)

	return &Env{
		T:        t,
		DB:       db,
		Router:   router,
		JWT:      jwtSvc,
		Config:   cfg,
		Services: svcs,
		Hub:      hub,
		Outbox:   outbox,
	}
}

// Outbox is a notify channel that records every delivery.
type Outbox struct {
	mu       sync.Mutex
	messages []Delivery
}

// Delivery is one recorded send.
type Delivery struct {
	To      notify.Recipient
	Message notify.Message
}

func (o *Outbox) Name() string { return "outbox" }

func (o *Outbox) Accepts(r notify.Recipient) bool { return r.Email != "" || r.Phone != "" }

func (o *Outbox) Deliver(_ context.Context, r notify.Recipient, msg notify.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, Delivery{To: r, Message: msg})
	return nil
}

// Sent returns a copy of the recorded deliveries.
func (o *Outbox) Sent() []Delivery {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Delivery, len(o.messages))
	copy(out, o.messages)
	return out
}

// LoginResult bundles the JSON response from POST /api/auth/login.
type LoginResult struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	Admin       struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"admin"`
}

// Login authenticates the seeded admin and returns the issued access token.
func (e *Env) Login() string {
	e.T.Helper()

	payload := map[string]string{
		"username": sharedtestutil.SeedAdminUsername,
		"password": sharedtestutil.SeedAdminPassword,
	}

	w := e.Request(http.MethodPost, "/api/auth/login", payload, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.AccessToken)
	require.Equal(e.T, sharedtestutil.SeedAdminUsername, result.Admin.Username)

	return result.AccessToken
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// MustData asserts a successful status and decodes the payload into dest.
func MustData[T any](e *Env, w *httptest.ResponseRecorder, status int, dest *T) {
	e.T.Helper()
	require.Equal(e.T, status, w.Code, w.Body.String())
	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())
	DecodeInto(e.T, resp.Data, dest)
}
