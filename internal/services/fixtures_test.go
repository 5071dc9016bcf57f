package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/youthtracker/internal/database/testutil"
	"github.com/charlesng35/youthtracker/internal/models"
	"github.com/charlesng35/youthtracker/internal/store"
)

type testClock struct {
	current time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{current: start}
}

func (c *testClock) Now() time.Time {
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}

type serviceEnv struct {
	db    *gorm.DB
	store *store.GormStore
	clock *testClock
}

func newServiceEnv(t *testing.T) serviceEnv {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	st, err := store.NewGormStore(db)
	require.NoError(t, err)
	return serviceEnv{
		db:    db,
		store: st,
		clock: newTestClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)),
	}
}

func (e serviceEnv) subject(t *testing.T, first string, groups ...string) models.Subject {
	t.Helper()
	subject := models.Subject{
		FirstName:     first,
		LastName:      "Scout",
		GuardianName:  first + "'s Guardian",
		GuardianEmail: first + ".guardian@example.com",
		GuardianCell:  "+15550000001",
		Groups:        groups,
		IsActive:      true,
	}
	require.NoError(t, e.db.Create(&subject).Error)
	return subject
}

func (e serviceEnv) activity(t *testing.T, name string, groups ...string) models.Activity {
	t.Helper()
	start := time.Date(2025, 8, 1, 17, 0, 0, 0, time.UTC)
	activity := models.Activity{
		Name:        name,
		StartsAt:    start,
		EndsAt:      start.Add(20 * time.Hour),
		Location:    "Pine Lake",
		Description: "Overnight by the lake",
		Groups:      groups,
		Drivers:     []string{"Alex", "Jordan"},
		IsOvernight: true,
	}
	require.NoError(t, e.db.Create(&activity).Error)
	return activity
}

func (e serviceEnv) tokens(t *testing.T) *TokenService {
	t.Helper()
	svc, err := NewTokenService(e.store,
		WithTokenClock(e.clock.Now),
		WithPermissionURL("https://troop.example.org/permission"),
	)
	require.NoError(t, err)
	return svc
}

func storeAuditFor(signedBy string) store.SignedAudit {
	return store.SignedAudit{
		SignedAt: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
		SignedBy: signedBy,
		Source:   models.PermissionSourceToken,
	}
}
