package plan

import (
	"context"

	"github.com/trop-dev/trop/internal/allocator"
	"github.com/trop-dev/trop/internal/occupancy"
	"github.com/trop-dev/trop/internal/pathx"
	"github.com/trop-dev/trop/internal/portspec"
	"github.com/trop-dev/trop/internal/reservation"
	"github.com/trop-dev/trop/internal/store"
	"github.com/trop-dev/trop/internal/trop"
)

// ReserveOptions is the input to BuildReserve. A nil Project/Task pointer
// means "caller did not ask to change this field"; a non-nil pointer,
// even to an empty string, is an explicit request evaluated against the
// sticky-field authority.
type ReserveOptions struct {
	Key        reservation.Key
	WorkingDir string // raw, unresolved; Implicit-resolved internally for the path-relationship gate

	Preferred *portspec.Port
	Project   *string
	Task      *string

	Authority          reservation.Authority
	Force              bool
	Overwrite          bool
	AllowUnrelatedPath bool

	Range            portspec.PortRange
	Exclusions       portspec.ExclusionList
	Occupancy        occupancy.Config
	IgnoreOccupied   bool
	IgnoreExclusions bool
}

// BuildReserve implements the reserve planning algorithm: a path-relationship
// gate, sticky-field authorization, idempotent touch detection, and
// preferred-port/search allocation, yielding a single-action plan (plus an
// optional leading DeleteReservation when overwrite frees another key's
// port).
func BuildReserve(ctx context.Context, q store.Queryer, opts ReserveOptions) (*Plan, error) {
	if err := checkPathRelationship(opts.WorkingDir, opts.Key.Path, opts.Force, opts.AllowUnrelatedPath); err != nil {
		return nil, err
	}

	existing, err := store.GetReservation(ctx, q, opts.Key)
	if err != nil {
		return nil, err
	}

	plan := &Plan{}

	if opts.Preferred != nil && (existing == nil || existing.Port != *opts.Preferred) {
		holder, herr := store.GetReservationByPort(ctx, q, *opts.Preferred)
		if herr != nil {
			return nil, herr
		}
		if holder != nil && holder.Key != opts.Key {
			if opts.Overwrite {
				plan.Actions = append(plan.Actions, Action{Kind: ActionDeleteReservation, Key: holder.Key})
			} else {
				return nil, &trop.Error{
					Kind:    trop.KindReservationConflict,
					Port:    opts.Preferred.Int(),
					Message: "port " + opts.Preferred.String() + " is already reserved by " + holder.Key.String(),
				}
			}
		}
	}

	if existing == nil {
		port, err := allocator.Allocate(ctx, q, allocator.Request{
			Key:              opts.Key,
			Preferred:        opts.Preferred,
			Range:            opts.Range,
			Exclusions:       opts.Exclusions,
			Occupancy:        opts.Occupancy,
			IgnoreOccupied:   opts.IgnoreOccupied,
			IgnoreExclusions: opts.IgnoreExclusions,
			Force:            opts.Force,
			Overwrite:        opts.Overwrite,
		})
		if err != nil {
			return nil, err
		}
		r, err := newReservationFromOptions(opts.Key, port, opts.Project, opts.Task)
		if err != nil {
			return nil, err
		}
		plan.Actions = append(plan.Actions, Action{Kind: ActionCreateReservation, Reservation: r})
		return plan, nil
	}

	newProject := existing.Project
	if opts.Project != nil {
		newProject = *opts.Project
	}
	if err := reservation.CheckStickyChange("project", existing.Project, newProject, opts.Authority); err != nil {
		return nil, err
	}
	newTask := existing.Task
	if opts.Task != nil {
		newTask = *opts.Task
	}
	if err := reservation.CheckStickyChange("task", existing.Task, newTask, opts.Authority); err != nil {
		return nil, err
	}

	fieldsChanged := newProject != existing.Project || newTask != existing.Task

	if opts.Preferred == nil || *opts.Preferred == existing.Port {
		if !fieldsChanged {
			plan.Actions = append(plan.Actions, Action{Kind: ActionUpdateLastUsed, Key: opts.Key})
			return plan, nil
		}
		updated := *existing
		updated.Project = newProject
		updated.Task = newTask
		plan.Actions = append(plan.Actions, Action{Kind: ActionUpdateReservation, Reservation: updated})
		return plan, nil
	}

	port, err := allocator.Allocate(ctx, q, allocator.Request{
		Key:              opts.Key,
		Existing:         existing,
		Preferred:        opts.Preferred,
		Range:            opts.Range,
		Exclusions:       opts.Exclusions,
		Occupancy:        opts.Occupancy,
		IgnoreOccupied:   opts.IgnoreOccupied,
		IgnoreExclusions: opts.IgnoreExclusions,
		Force:            opts.Force,
		Overwrite:        opts.Overwrite,
	})
	if err != nil {
		return nil, err
	}
	updated := *existing
	updated.Port = port
	updated.Project = newProject
	updated.Task = newTask
	plan.Actions = append(plan.Actions, Action{Kind: ActionUpdateReservation, Reservation: updated})
	return plan, nil
}

// ReleaseOptions is the input to BuildRelease.
type ReleaseOptions struct {
	Key                reservation.Key
	WorkingDir         string
	Force              bool
	AllowUnrelatedPath bool
}

// BuildRelease implements idempotent release: deleting a reservation that
// doesn't exist is a no-op with a warning, never an error.
func BuildRelease(ctx context.Context, q store.Queryer, opts ReleaseOptions) (*Plan, error) {
	if err := checkPathRelationship(opts.WorkingDir, opts.Key.Path, opts.Force, opts.AllowUnrelatedPath); err != nil {
		return nil, err
	}
	existing, err := store.GetReservation(ctx, q, opts.Key)
	if err != nil {
		return nil, err
	}
	plan := &Plan{}
	if existing == nil {
		plan.addWarning("No reservation found for %s (already released)", opts.Key)
		return plan, nil
	}
	plan.Actions = append(plan.Actions, Action{Kind: ActionDeleteReservation, Key: opts.Key})
	return plan, nil
}

func newReservationFromOptions(key reservation.Key, port portspec.Port, project, task *string) (reservation.Reservation, error) {
	var opts []reservation.Option
	if project != nil {
		opts = append(opts, reservation.WithProject(*project))
	}
	if task != nil {
		opts = append(opts, reservation.WithTask(*task))
	}
	return reservation.New(key, port, opts...)
}

func checkPathRelationship(workingDir, keyPath string, force, allowUnrelated bool) error {
	if force || allowUnrelated {
		return nil
	}
	if workingDir == "" {
		return nil
	}
	resolvedCWD, err := pathx.Resolve(workingDir, pathx.Implicit)
	if err != nil {
		return err
	}
	rel := pathx.Between(resolvedCWD, keyPath)
	if rel == pathx.Unrelated {
		return trop.New(trop.KindPathRelationshipViolation,
			"%s is unrelated to the current directory %s", keyPath, resolvedCWD)
	}
	return nil
}
