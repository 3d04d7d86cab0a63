package plan

import (
	"context"
	"time"

	"github.com/trop-dev/trop/internal/allocator"
	"github.com/trop-dev/trop/internal/portspec"
	"github.com/trop-dev/trop/internal/reservation"
	"github.com/trop-dev/trop/internal/store"
	"github.com/trop-dev/trop/internal/trop"
)

func nowUnix() int64 { return time.Now().Unix() }

func newGroupReservation(req allocator.GroupRequest, a allocator.AllocatedPort) (reservation.Reservation, error) {
	var opts []reservation.Option
	if req.Project != "" {
		opts = append(opts, reservation.WithProject(req.Project))
	}
	if req.Task != "" {
		opts = append(opts, reservation.WithTask(req.Task))
	}
	key := reservation.Key{Path: req.BasePath, Tag: a.Tag}
	return reservation.New(key, a.Port, opts...)
}

// ExecutionResult reports what a Plan did (or, under DryRun, would do).
type ExecutionResult struct {
	Success        bool
	DryRun         bool
	Port           *portspec.Port            // set when exactly one port was allocated/touched
	AllocatedPorts []allocator.AllocatedPort // set when a group was allocated
	ActionsTaken   []string
	Warnings       []string
}

// Execute opens one immediate transaction on s, runs every action in plan
// in order, and commits. Under DryRun the transaction is always rolled
// back: the actions are still evaluated (so a caller-visible port is
// still computed for AllocateGroup and search allocation) but nothing is
// persisted.
func Execute(ctx context.Context, s *store.Store, p *Plan, dryRun bool) (ExecutionResult, error) {
	result := ExecutionResult{DryRun: dryRun, Warnings: p.Warnings}

	tx, err := s.BeginImmediate(ctx)
	if err != nil {
		return result, err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	for _, action := range p.Actions {
		if err := executeAction(ctx, tx, action, &result); err != nil {
			return ExecutionResult{DryRun: dryRun}, err
		}
	}

	if dryRun {
		return result, nil
	}
	if err := tx.Commit(); err != nil {
		return ExecutionResult{DryRun: dryRun}, trop.Wrap(trop.KindIO, err, "failed to commit plan")
	}
	committed = true
	result.Success = true
	return result, nil
}

func executeAction(ctx context.Context, tx store.Queryer, action Action, result *ExecutionResult) error {
	switch action.Kind {
	case ActionCreateReservation:
		if err := store.Create(ctx, tx, action.Reservation); err != nil {
			return err
		}
		port := action.Reservation.Port
		result.Port = &port
		result.ActionsTaken = append(result.ActionsTaken, "create "+action.Reservation.Key.String())

	case ActionUpdateReservation:
		if err := store.Delete(ctx, tx, action.Reservation.Key); err != nil {
			return err
		}
		if err := store.Create(ctx, tx, action.Reservation); err != nil {
			return err
		}
		port := action.Reservation.Port
		result.Port = &port
		result.ActionsTaken = append(result.ActionsTaken, "update "+action.Reservation.Key.String())

	case ActionUpdateLastUsed:
		if err := store.UpdateLastUsed(ctx, tx, action.Key, nowUnix()); err != nil {
			return err
		}
		existing, err := store.GetReservation(ctx, tx, action.Key)
		if err != nil {
			return err
		}
		if existing != nil {
			port := existing.Port
			result.Port = &port
		}
		result.ActionsTaken = append(result.ActionsTaken, "touch "+action.Key.String())

	case ActionDeleteReservation:
		if err := store.Delete(ctx, tx, action.Key); err != nil {
			return err
		}
		result.ActionsTaken = append(result.ActionsTaken, "delete "+action.Key.String())

	case ActionAllocateGroup:
		allocated, err := allocator.AllocateGroup(ctx, tx, action.Group.Request, action.Group.Options)
		if err != nil {
			return err
		}
		for _, a := range allocated {
			r, err := newGroupReservation(action.Group.Request, a)
			if err != nil {
				return err
			}
			if err := store.Create(ctx, tx, r); err != nil {
				return err
			}
		}
		result.AllocatedPorts = allocated
		result.ActionsTaken = append(result.ActionsTaken, "allocate-group "+action.Group.Request.BasePath)

	default:
		return trop.New(trop.KindUnknown, "unrecognized plan action kind %v", action.Kind)
	}
	return nil
}
