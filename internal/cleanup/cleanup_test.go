package cleanup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trop-dev/trop/internal/portspec"
	"github.com/trop-dev/trop/internal/reservation"
	"github.com/trop-dev/trop/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	cfg := store.NewConfig(filepath.Join(dir, "trop.db"))
	s, err := store.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mustPort(t *testing.T, v int) portspec.Port {
	t.Helper()
	p, err := portspec.NewPort(v)
	require.NoError(t, err)
	return p
}

func createReservation(t *testing.T, s *store.Store, r reservation.Reservation) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.BeginImmediate(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, tx, r))
	require.NoError(t, tx.Commit())
}

func TestPruneRemovesReservationsForMissingPaths(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	live := t.TempDir()
	r1, err := reservation.New(reservation.Key{Path: live}, mustPort(t, 51000))
	require.NoError(t, err)
	r2, err := reservation.New(reservation.Key{Path: "/definitely/does/not/exist/anywhere"}, mustPort(t, 51001))
	require.NoError(t, err)
	createReservation(t, s, r1)
	createReservation(t, s, r2)

	result, err := Prune(ctx, s, false)
	require.NoError(t, err)
	require.Len(t, result.Removed, 1)
	assert.Equal(t, r2.Key, result.Removed[0].Key)

	remaining, err := store.ListAll(ctx, s.DB())
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, r1.Key, remaining[0].Key)
}

func TestPruneDryRunLeavesStoreUntouched(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r, err := reservation.New(reservation.Key{Path: "/gone"}, mustPort(t, 51002))
	require.NoError(t, err)
	createReservation(t, s, r)

	result, err := Prune(ctx, s, true)
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	require.Len(t, result.Removed, 1)

	remaining, err := store.ListAll(ctx, s.DB())
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestExpireRemovesOldReservations(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-30 * 24 * time.Hour)
	recent := time.Now()
	stale, err := reservation.New(reservation.Key{Path: "/stale"}, mustPort(t, 51003), reservation.WithTimestamps(old, old))
	require.NoError(t, err)
	fresh, err := reservation.New(reservation.Key{Path: "/fresh"}, mustPort(t, 51004), reservation.WithTimestamps(recent, recent))
	require.NoError(t, err)
	createReservation(t, s, stale)
	createReservation(t, s, fresh)

	result, err := Expire(ctx, s, 7*24*time.Hour, false)
	require.NoError(t, err)
	require.Len(t, result.Removed, 1)
	assert.Equal(t, stale.Key, result.Removed[0].Key)

	remaining, err := store.ListAll(ctx, s.DB())
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, fresh.Key, remaining[0].Key)
}

func TestAutocleanRunsBothSteps(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	liveButOld := t.TempDir()
	old := time.Now().Add(-30 * 24 * time.Hour)
	expired, err := reservation.New(reservation.Key{Path: liveButOld}, mustPort(t, 51005), reservation.WithTimestamps(old, old))
	require.NoError(t, err)
	missing, err := reservation.New(reservation.Key{Path: "/missing"}, mustPort(t, 51006))
	require.NoError(t, err)
	createReservation(t, s, expired)
	createReservation(t, s, missing)

	result, err := Autoclean(ctx, s, 7*24*time.Hour, false)
	require.NoError(t, err)
	assert.Len(t, result.Pruned.Removed, 1)
	assert.Equal(t, missing.Key, result.Pruned.Removed[0].Key)
	assert.Len(t, result.Expired.Removed, 1)
	assert.Equal(t, expired.Key, result.Expired.Removed[0].Key)

	remaining, err := store.ListAll(ctx, s.DB())
	require.NoError(t, err)
	assert.Empty(t, remaining)
}
