package plan

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/trop-dev/trop/internal/reservation"
	"github.com/trop-dev/trop/internal/store"
)

// MigrateOptions is the input to BuildMigrate.
type MigrateOptions struct {
	From      string // normalized absolute path
	To        string // normalized absolute path
	Recursive bool
	Force     bool
}

// MigrateConflict describes a candidate migration that was skipped because
// a reservation already exists at its target key and Force was not set.
type MigrateConflict struct {
	OldKey reservation.Key
	NewKey reservation.Key
}

// BuildMigrate implements the migrate planning algorithm: a pure rename of
// reservation keys, never a reallocation. Conflicts block migration of the
// individual candidate unless Force is set, in which case the conflicting
// reservation is deleted first.
func BuildMigrate(ctx context.Context, q store.Queryer, opts MigrateOptions) (*Plan, []MigrateConflict, error) {
	plan := &Plan{}
	if opts.To == opts.From {
		return plan, nil, nil
	}

	var candidates []reservation.Reservation
	if opts.Recursive {
		found, err := store.GetReservationsByPathPrefix(ctx, q, opts.From)
		if err != nil {
			return nil, nil, err
		}
		candidates = found
	} else {
		found, err := store.GetReservationsByPath(ctx, q, opts.From)
		if err != nil {
			return nil, nil, err
		}
		candidates = found
	}

	var conflicts []MigrateConflict
	for _, r := range candidates {
		newPath := opts.To
		if r.Key.Path != opts.From {
			rel := strings.TrimPrefix(r.Key.Path, opts.From)
			rel = strings.TrimPrefix(rel, string(filepath.Separator))
			newPath = filepath.Join(opts.To, rel)
		}
		newKey := reservation.Key{Path: newPath, Tag: r.Key.Tag}

		existing, err := store.GetReservation(ctx, q, newKey)
		if err != nil {
			return nil, nil, err
		}
		if existing != nil {
			if !opts.Force {
				conflicts = append(conflicts, MigrateConflict{OldKey: r.Key, NewKey: newKey})
				continue
			}
			plan.Actions = append(plan.Actions, Action{Kind: ActionDeleteReservation, Key: newKey})
		}

		moved := r
		moved.Key = newKey
		plan.Actions = append(plan.Actions,
			Action{Kind: ActionDeleteReservation, Key: r.Key},
			Action{Kind: ActionCreateReservation, Reservation: moved},
		)
	}

	return plan, conflicts, nil
}
