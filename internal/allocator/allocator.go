// Package allocator implements the single-port allocator (C6) and the
// atomic group allocator (C7). Both are pure functions of their inputs and
// a transactional store view — no state is cached between a plan build and
// its execution.
package allocator

import (
	"context"

	"github.com/trop-dev/trop/internal/occupancy"
	"github.com/trop-dev/trop/internal/portspec"
	"github.com/trop-dev/trop/internal/reservation"
	"github.com/trop-dev/trop/internal/store"
	"github.com/trop-dev/trop/internal/trop"
)

// Request describes one single-port allocation.
type Request struct {
	Key        reservation.Key
	Existing   *reservation.Reservation // the reservation Key already holds, if any
	Preferred  *portspec.Port
	Range      portspec.PortRange
	Exclusions portspec.ExclusionList
	Occupancy  occupancy.Config

	IgnoreOccupied   bool
	IgnoreExclusions bool
	Force            bool
	Overwrite        bool
}

// Allocate chooses a port for req against the view visible through q
// (expected to be the active transaction).
func Allocate(ctx context.Context, q store.Queryer, req Request) (portspec.Port, error) {
	if req.Preferred != nil {
		return allocatePreferred(ctx, q, req, *req.Preferred)
	}
	return search(ctx, q, req)
}

func allocatePreferred(ctx context.Context, q store.Queryer, req Request, preferred portspec.Port) (portspec.Port, error) {
	if req.Existing != nil && req.Existing.Port == preferred {
		// Identity: no change requested. overwrite is inert here, never an
		// error — see the reserve planning algorithm's handling of touch.
		return preferred, nil
	}

	holder, err := store.GetReservationByPort(ctx, q, preferred)
	if err != nil {
		return 0, err
	}
	if holder != nil && holder.Key != req.Key {
		if !req.Force && !req.Overwrite {
			return 0, preferredUnavailable(preferred, trop.ReasonReserved)
		}
	}

	if !req.IgnoreExclusions && !req.Force && req.Exclusions.Contains(preferred) {
		return 0, preferredUnavailable(preferred, trop.ReasonExcluded)
	}

	if !req.IgnoreOccupied && !req.Force {
		occupied, occErr := occupancy.IsOccupied(preferred, req.Occupancy)
		if occErr == nil && occupied {
			return 0, preferredUnavailable(preferred, trop.ReasonOccupied)
		}
	}

	return preferred, nil
}

func search(ctx context.Context, q store.Queryer, req Request) (portspec.Port, error) {
	reserved, err := store.GetReservedPortsInRange(ctx, q, req.Range)
	if err != nil {
		return 0, err
	}
	reservedSet := make(map[portspec.Port]bool, len(reserved))
	for _, p := range reserved {
		reservedSet[p] = true
	}

	var found portspec.Port
	ok := false
	req.Range.ForEach(func(p portspec.Port) bool {
		if reservedSet[p] {
			return true
		}
		if !req.IgnoreExclusions && req.Exclusions.Contains(p) {
			return true
		}
		if !req.IgnoreOccupied {
			occupied, occErr := occupancy.IsOccupied(p, req.Occupancy)
			if occErr == nil && occupied {
				return true
			}
		}
		found = p
		ok = true
		return false
	})

	if !ok {
		return 0, &trop.Error{
			Kind:    trop.KindPortExhausted,
			Message: "no available port in range " + req.Range.String(),
		}
	}
	return found, nil
}

func preferredUnavailable(port portspec.Port, reason trop.PreferredPortReason) *trop.Error {
	return &trop.Error{
		Kind:    trop.KindPreferredPortUnavailable,
		Port:    port.Int(),
		Reason:  reason,
		Message: "preferred port " + port.String() + " unavailable: " + reason.String(),
	}
}
