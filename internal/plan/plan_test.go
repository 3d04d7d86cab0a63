package plan

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trop-dev/trop/internal/allocator"
	"github.com/trop-dev/trop/internal/occupancy"
	"github.com/trop-dev/trop/internal/portspec"
	"github.com/trop-dev/trop/internal/reservation"
	"github.com/trop-dev/trop/internal/store"
	"github.com/trop-dev/trop/internal/trop"
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

func skipOccupancy() occupancy.Config {
	return occupancy.Config{SkipTCP: true, SkipUDP: true}
}

func mustRange(t *testing.T, lo, hi int) portspec.PortRange {
	t.Helper()
	l, err := portspec.NewPort(lo)
	require.NoError(t, err)
	h, err := portspec.NewPort(hi)
	require.NoError(t, err)
	r, err := portspec.NewPortRange(l, h)
	require.NoError(t, err)
	return r
}

func mustPort(t *testing.T, v int) portspec.Port {
	t.Helper()
	p, err := portspec.NewPort(v)
	require.NoError(t, err)
	return p
}

func strPtr(s string) *string { return &s }

func TestBuildReserveCreatesWhenAbsent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	tx, err := s.BeginImmediate(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	p, err := BuildReserve(ctx, tx, ReserveOptions{
		Key:       reservation.Key{Path: "/proj"},
		Range:     mustRange(t, 40000, 40010),
		Occupancy: skipOccupancy(),
		Force:     true,
	})
	require.NoError(t, err)
	require.Len(t, p.Actions, 1)
	assert.Equal(t, ActionCreateReservation, p.Actions[0].Kind)
	assert.Equal(t, mustPort(t, 40000), p.Actions[0].Reservation.Port)
}

func TestBuildReserveIdempotentTouch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	key := reservation.Key{Path: "/proj"}

	tx, err := s.BeginImmediate(ctx)
	require.NoError(t, err)
	r, err := reservation.New(key, mustPort(t, 40000))
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, tx, r))
	require.NoError(t, tx.Commit())

	tx2, err := s.BeginImmediate(ctx)
	require.NoError(t, err)
	defer tx2.Rollback()

	p, err := BuildReserve(ctx, tx2, ReserveOptions{
		Key:       key,
		Range:     mustRange(t, 40000, 40010),
		Occupancy: skipOccupancy(),
		Force:     true,
	})
	require.NoError(t, err)
	require.Len(t, p.Actions, 1)
	assert.Equal(t, ActionUpdateLastUsed, p.Actions[0].Kind)
}

func TestBuildReserveRefusesUnauthorizedStickyChange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	key := reservation.Key{Path: "/proj"}

	tx, err := s.BeginImmediate(ctx)
	require.NoError(t, err)
	r, err := reservation.New(key, mustPort(t, 40000), reservation.WithProject("alpha"))
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, tx, r))
	require.NoError(t, tx.Commit())

	tx2, err := s.BeginImmediate(ctx)
	require.NoError(t, err)
	defer tx2.Rollback()

	_, err = BuildReserve(ctx, tx2, ReserveOptions{
		Key:       key,
		Project:   strPtr("beta"),
		Range:     mustRange(t, 40000, 40010),
		Occupancy: skipOccupancy(),
		Force:     true,
	})
	require.Error(t, err)
	terr, ok := trop.As(err)
	require.True(t, ok)
	assert.Equal(t, trop.KindStickyFieldChange, terr.Kind)
}

func TestBuildReserveConflictWithoutOverwrite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tx, err := s.BeginImmediate(ctx)
	require.NoError(t, err)
	held, err := reservation.New(reservation.Key{Path: "/holder"}, mustPort(t, 40005))
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, tx, held))
	require.NoError(t, tx.Commit())

	tx2, err := s.BeginImmediate(ctx)
	require.NoError(t, err)
	defer tx2.Rollback()

	preferred := mustPort(t, 40005)
	_, err = BuildReserve(ctx, tx2, ReserveOptions{
		Key:       reservation.Key{Path: "/other"},
		Preferred: &preferred,
		Range:     mustRange(t, 40000, 40010),
		Occupancy: skipOccupancy(),
		Force:     true,
	})
	require.Error(t, err)
	terr, ok := trop.As(err)
	require.True(t, ok)
	assert.Equal(t, trop.KindReservationConflict, terr.Kind)
}

func TestBuildReserveOverwriteFreesOtherKey(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tx, err := s.BeginImmediate(ctx)
	require.NoError(t, err)
	held, err := reservation.New(reservation.Key{Path: "/holder"}, mustPort(t, 40005))
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, tx, held))
	require.NoError(t, tx.Commit())

	tx2, err := s.BeginImmediate(ctx)
	require.NoError(t, err)
	defer tx2.Rollback()

	preferred := mustPort(t, 40005)
	p, err := BuildReserve(ctx, tx2, ReserveOptions{
		Key:       reservation.Key{Path: "/other"},
		Preferred: &preferred,
		Overwrite: true,
		Range:     mustRange(t, 40000, 40010),
		Occupancy: skipOccupancy(),
	})
	require.NoError(t, err)
	require.Len(t, p.Actions, 2)
	assert.Equal(t, ActionDeleteReservation, p.Actions[0].Kind)
	assert.Equal(t, reservation.Key{Path: "/holder"}, p.Actions[0].Key)
	assert.Equal(t, ActionCreateReservation, p.Actions[1].Kind)
}

func TestBuildReleaseIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	tx, err := s.BeginImmediate(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	p, err := BuildRelease(ctx, tx, ReleaseOptions{
		Key:   reservation.Key{Path: "/nothing"},
		Force: true,
	})
	require.NoError(t, err)
	assert.Empty(t, p.Actions)
	require.Len(t, p.Warnings, 1)
}

func TestBuildMigrateNoOpWhenSamePath(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	tx, err := s.BeginImmediate(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	p, conflicts, err := BuildMigrate(ctx, tx, MigrateOptions{From: "/a", To: "/a"})
	require.NoError(t, err)
	assert.Empty(t, p.Actions)
	assert.Empty(t, conflicts)
}

func TestBuildMigrateNonRecursiveMovesEveryTagAtPath(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tx, err := s.BeginImmediate(ctx)
	require.NoError(t, err)
	r1, err := reservation.New(reservation.Key{Path: "/a"}, mustPort(t, 41100))
	require.NoError(t, err)
	r2, err := reservation.New(reservation.Key{Path: "/a", Tag: "web"}, mustPort(t, 41101))
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, tx, r1))
	require.NoError(t, store.Create(ctx, tx, r2))
	require.NoError(t, tx.Commit())

	tx2, err := s.BeginImmediate(ctx)
	require.NoError(t, err)
	defer tx2.Rollback()

	p, conflicts, err := BuildMigrate(ctx, tx2, MigrateOptions{From: "/a", To: "/b"})
	require.NoError(t, err)
	assert.Empty(t, conflicts)
	require.Len(t, p.Actions, 4)

	var created []reservation.Reservation
	for _, a := range p.Actions {
		if a.Kind == ActionCreateReservation {
			created = append(created, a.Reservation)
		}
	}
	require.Len(t, created, 2)
	tags := map[string]bool{}
	for _, r := range created {
		assert.Equal(t, "/b", r.Key.Path)
		tags[r.Key.Tag] = true
	}
	assert.True(t, tags[""])
	assert.True(t, tags["web"])
}

func TestBuildMigrateRecursivePreservesPortsAndTags(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tx, err := s.BeginImmediate(ctx)
	require.NoError(t, err)
	r1, err := reservation.New(reservation.Key{Path: "/old"}, mustPort(t, 41000))
	require.NoError(t, err)
	r2, err := reservation.New(reservation.Key{Path: "/old/sub", Tag: "x"}, mustPort(t, 41001))
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, tx, r1))
	require.NoError(t, store.Create(ctx, tx, r2))
	require.NoError(t, tx.Commit())

	tx2, err := s.BeginImmediate(ctx)
	require.NoError(t, err)
	defer tx2.Rollback()

	p, conflicts, err := BuildMigrate(ctx, tx2, MigrateOptions{From: "/old", To: "/new", Recursive: true})
	require.NoError(t, err)
	assert.Empty(t, conflicts)
	require.Len(t, p.Actions, 4)

	var created []reservation.Reservation
	for _, a := range p.Actions {
		if a.Kind == ActionCreateReservation {
			created = append(created, a.Reservation)
		}
	}
	require.Len(t, created, 2)
	for _, r := range created {
		switch r.Key.Path {
		case "/new":
			assert.Equal(t, mustPort(t, 41000), r.Port)
		case "/new/sub":
			assert.Equal(t, "x", r.Key.Tag)
			assert.Equal(t, mustPort(t, 41001), r.Port)
		default:
			t.Fatalf("unexpected migrated path %q", r.Key.Path)
		}
	}
}

func TestBuildReserveGroupDeferredValidation(t *testing.T) {
	_, err := BuildReserveGroup(context.Background(), ReserveGroupOptions{
		Force: true,
		Request: allocator.GroupRequest{
			BasePath: "/group",
			Services: []allocator.ServiceRequest{{Tag: "web"}},
		},
	})
	require.Error(t, err)
	terr, ok := trop.As(err)
	require.True(t, ok)
	assert.Equal(t, trop.KindGroupAllocationFailed, terr.Kind)
}

func TestExecutePlanCommitsOnSuccess(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r, err := reservation.New(reservation.Key{Path: "/x"}, mustPort(t, 42000))
	require.NoError(t, err)
	p := &Plan{Actions: []Action{{Kind: ActionCreateReservation, Reservation: r}}}

	result, err := Execute(ctx, s, p, false)
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, result.Port)
	assert.Equal(t, mustPort(t, 42000), *result.Port)

	got, err := store.GetReservation(ctx, s.DB(), reservation.Key{Path: "/x"})
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestExecutePlanDryRunWritesNothing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r, err := reservation.New(reservation.Key{Path: "/x"}, mustPort(t, 42001))
	require.NoError(t, err)
	p := &Plan{Actions: []Action{{Kind: ActionCreateReservation, Reservation: r}}}

	result, err := Execute(ctx, s, p, true)
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	require.NotNil(t, result.Port)

	got, err := store.GetReservation(ctx, s.DB(), reservation.Key{Path: "/x"})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestExecuteGroupAllocationAtomicOnFailure(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rng := mustRange(t, 50000, 50002)
	req := allocator.GroupRequest{
		BasePath: "/group",
		Services: []allocator.ServiceRequest{
			{Tag: "a", Offset: offsetOf(0)},
			{Tag: "b", Offset: offsetOf(1)},
			{Tag: "c", Offset: offsetOf(2)},
			{Tag: "d", Offset: offsetOf(3)}, // out of range: no base fits
		},
	}
	p := &Plan{Actions: []Action{{Kind: ActionAllocateGroup, Group: &GroupAction{
		Request: req,
		Options: allocator.GroupOptions{Range: rng, Occupancy: skipOccupancy()},
	}}}}

	_, err := Execute(ctx, s, p, false)
	require.Error(t, err)

	all, err := store.ListAll(ctx, s.DB())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func offsetOf(v int) *int { return &v }
