package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountSelectedActivitiesByGroupAndYear(t *testing.T) {
	env := newServiceEnv(t)
	svc, err := NewInterestService(env.db)
	require.NoError(t, err)
	ctx := context.Background()

	a := env.subject(t, "Ari", "Eagles")
	b := env.subject(t, "Bo", "Eagles")
	c := env.subject(t, "Cy", "Hawks")

	_, err = svc.SetInterests(ctx, a.ID, 2025, []string{"Rafting", "Climbing"})
	require.NoError(t, err)
	_, err = svc.SetInterests(ctx, b.ID, 2025, []string{"Rafting", "rafting", "Archery"})
	require.NoError(t, err)
	_, err = svc.SetInterests(ctx, c.ID, 2025, []string{"Rafting"})
	require.NoError(t, err)
	_, err = svc.SetInterests(ctx, a.ID, 2024, []string{"Archery"})
	require.NoError(t, err)

	counts, err := svc.CountSelectedActivities(ctx, "eagles", 2025)
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"Rafting": 2, "Climbing": 1, "Archery": 1}, counts)

	empty, err := svc.CountSelectedActivities(ctx, "Owls", 2025)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestSetInterestsReplacesYear(t *testing.T) {
	env := newServiceEnv(t)
	svc, err := NewInterestService(env.db)
	require.NoError(t, err)
	ctx := context.Background()
	subject := env.subject(t, "Dee")

	_, err = svc.SetInterests(ctx, subject.ID, 2025, []string{"Rafting", "Climbing"})
	require.NoError(t, err)
	_, err = svc.SetInterests(ctx, subject.ID, 2025, []string{"Archery"})
	require.NoError(t, err)

	selections, err := svc.List(ctx, subject.ID, 2025)
	require.NoError(t, err)
	require.Len(t, selections, 1)
	require.Equal(t, "Archery", selections[0].ActivityName)

	_, err = svc.SetInterests(ctx, "00000000-0000-0000-0000-000000000000", 2025, []string{"x"})
	require.ErrorIs(t, err, ErrNotFound)
}
