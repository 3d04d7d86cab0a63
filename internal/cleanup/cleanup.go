// Package cleanup implements prune (delete reservations whose path no
// longer exists) and expire (delete reservations unused past an age
// threshold), plus the combined autoclean entry point.
package cleanup

import (
	"context"
	"time"

	"github.com/trop-dev/trop/internal/pathx"
	"github.com/trop-dev/trop/internal/reservation"
	"github.com/trop-dev/trop/internal/store"
)

// nowFunc is overridden in tests so expiry math doesn't depend on wall time.
var nowFunc = time.Now

// Result reports what a cleanup pass removed, or would remove under DryRun.
type Result struct {
	DryRun  bool
	Removed []reservation.Reservation
}

// Prune deletes every reservation whose key path no longer exists on the
// local filesystem, in a single batch transaction.
func Prune(ctx context.Context, s *store.Store, dryRun bool) (Result, error) {
	all, err := store.ListAll(ctx, s.DB())
	if err != nil {
		return Result{}, err
	}

	var stale []reservation.Reservation
	for _, r := range all {
		if !pathx.Exists(r.Key.Path) {
			stale = append(stale, r)
		}
	}

	if dryRun || len(stale) == 0 {
		return Result{DryRun: dryRun, Removed: stale}, nil
	}

	if err := deleteAll(ctx, s, stale); err != nil {
		return Result{}, err
	}
	return Result{Removed: stale}, nil
}

// Expire deletes every reservation whose last_used_at is more than
// maxAge in the past, in a single batch transaction.
func Expire(ctx context.Context, s *store.Store, maxAge time.Duration, dryRun bool) (Result, error) {
	now := nowFunc()
	expired, err := store.FindExpired(ctx, s.DB(), int64(maxAge.Seconds()), now.Unix())
	if err != nil {
		return Result{}, err
	}

	if dryRun || len(expired) == 0 {
		return Result{DryRun: dryRun, Removed: expired}, nil
	}

	if err := deleteAll(ctx, s, expired); err != nil {
		return Result{}, err
	}
	return Result{Removed: expired}, nil
}

// AutocleanResult bundles the outcome of running prune then expire.
type AutocleanResult struct {
	Pruned  Result
	Expired Result
}

// Autoclean runs Prune followed by Expire, always both; it does not read
// disable_autoprune/disable_autoexpire. Its only caller is the explicit
// `autoclean` command.
func Autoclean(ctx context.Context, s *store.Store, maxAge time.Duration, dryRun bool) (AutocleanResult, error) {
	pruned, err := Prune(ctx, s, dryRun)
	if err != nil {
		return AutocleanResult{}, err
	}
	expired, err := Expire(ctx, s, maxAge, dryRun)
	if err != nil {
		return AutocleanResult{}, err
	}
	return AutocleanResult{Pruned: pruned, Expired: expired}, nil
}

func deleteAll(ctx context.Context, s *store.Store, rs []reservation.Reservation) error {
	keys := make([]reservation.Key, len(rs))
	for i, r := range rs {
		keys[i] = r.Key
	}
	tx, err := s.BeginImmediate(ctx)
	if err != nil {
		return err
	}
	if err := store.BatchDelete(ctx, tx, keys); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
