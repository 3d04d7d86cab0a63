package allocator

import (
	"context"

	"github.com/trop-dev/trop/internal/occupancy"
	"github.com/trop-dev/trop/internal/portspec"
	"github.com/trop-dev/trop/internal/reservation"
	"github.com/trop-dev/trop/internal/store"
	"github.com/trop-dev/trop/internal/trop"
)

// ServiceRequest describes one member of a group allocation. Exactly one
// of Offset or Preferred must be set.
type ServiceRequest struct {
	Tag       string
	Offset    *int
	Preferred *portspec.Port
}

// GroupRequest is the input to AllocateGroup.
type GroupRequest struct {
	BasePath string
	Project  string
	Task     string
	Services []ServiceRequest
}

// AllocatedPort pairs a service tag with its chosen port, preserving the
// input service order.
type AllocatedPort struct {
	Tag  string
	Port portspec.Port
}

// GroupOptions carries the same overrides as Request, applied uniformly
// across every service in the group.
type GroupOptions struct {
	Range            portspec.PortRange
	Exclusions       portspec.ExclusionList
	Occupancy        occupancy.Config
	IgnoreOccupied   bool
	IgnoreExclusions bool
	Force            bool
}

// AllocateGroup computes ports for every service in req against the view
// visible through q. It is all-or-nothing: if any service cannot be
// placed, it returns GroupAllocationFailed and performs no writes — the
// caller is expected to run this inside a transaction it can simply not
// commit on error.
func AllocateGroup(ctx context.Context, q store.Queryer, req GroupRequest, opts GroupOptions) ([]AllocatedPort, error) {
	if len(req.Services) == 0 {
		return nil, trop.New(trop.KindGroupAllocationFailed, "group allocation requires at least one service")
	}
	for _, svc := range req.Services {
		hasOffset := svc.Offset != nil
		hasPreferred := svc.Preferred != nil
		if hasOffset == hasPreferred {
			return nil, trop.New(trop.KindGroupAllocationFailed, "service %q must set exactly one of offset or preferred", svc.Tag)
		}
	}

	reserved, err := store.GetReservedPortsInRange(ctx, q, opts.Range)
	if err != nil {
		return nil, err
	}
	reservedSet := make(map[portspec.Port]bool, len(reserved))
	for _, p := range reserved {
		reservedSet[p] = true
	}

	var offsetServices, preferredServices []ServiceRequest
	for _, svc := range req.Services {
		if svc.Offset != nil {
			offsetServices = append(offsetServices, svc)
		} else {
			preferredServices = append(preferredServices, svc)
		}
	}

	results := make([]AllocatedPort, len(req.Services))
	byTag := make(map[string]int, len(req.Services))
	for i, svc := range req.Services {
		byTag[svc.Tag] = i
	}

	if len(offsetServices) > 0 {
		_, assigned, err := findBase(ctx, q, req.BasePath, offsetServices, reservedSet, opts)
		if err != nil {
			return nil, trop.Wrap(trop.KindGroupAllocationFailed, err, "could not find a base port for offset services")
		}
		for tag, p := range assigned {
			results[byTag[tag]] = AllocatedPort{Tag: tag, Port: p}
		}
	}

	for _, svc := range preferredServices {
		key := reservation.Key{Path: req.BasePath, Tag: svc.Tag}
		existing, err := store.GetReservation(ctx, q, key)
		if err != nil {
			return nil, err
		}
		port, err := allocatePreferred(ctx, q, Request{
			Key:              key,
			Existing:         existing,
			Preferred:        svc.Preferred,
			Range:            opts.Range,
			Exclusions:       opts.Exclusions,
			Occupancy:        opts.Occupancy,
			IgnoreOccupied:   opts.IgnoreOccupied,
			IgnoreExclusions: opts.IgnoreExclusions,
			Force:            opts.Force,
		}, *svc.Preferred)
		if err != nil {
			return nil, trop.Wrap(trop.KindGroupAllocationFailed, err, "service %q could not be placed", svc.Tag)
		}
		results[byTag[svc.Tag]] = AllocatedPort{Tag: svc.Tag, Port: port}
	}

	return results, nil
}

// findBase finds the smallest base port B in opts.Range such that every
// offset service's B+offset is available, treating a service's own
// existing reservation at that exact port as available-to-itself.
func findBase(ctx context.Context, q store.Queryer, basePath string, services []ServiceRequest, reservedSet map[portspec.Port]bool, opts GroupOptions) (portspec.Port, map[string]portspec.Port, error) {
	existing := make(map[string]*reservation.Reservation, len(services))
	for _, svc := range services {
		r, err := store.GetReservation(ctx, q, reservation.Key{Path: basePath, Tag: svc.Tag})
		if err != nil {
			return 0, nil, err
		}
		existing[svc.Tag] = r
	}

	var candidateErr error
	var chosen portspec.Port
	assigned := map[string]portspec.Port{}
	found := false

	opts.Range.ForEach(func(base portspec.Port) bool {
		ok := true
		trial := map[string]portspec.Port{}
		for _, svc := range services {
			p := portspec.Port(base.Int() + *svc.Offset)
			if !opts.Range.Contains(p) {
				ok = false
				break
			}
			if r := existing[svc.Tag]; r != nil && r.Port == p {
				trial[svc.Tag] = p
				continue
			}
			available, err := portAvailableImpl(ctx, q, p, reservation.Key{Path: basePath, Tag: svc.Tag}, reservedSet, opts)
			if err != nil {
				candidateErr = err
			}
			if !available {
				ok = false
				break
			}
			trial[svc.Tag] = p
		}
		if ok {
			chosen = base
			assigned = trial
			found = true
			return false
		}
		return true
	})

	if !found {
		if candidateErr != nil {
			return 0, nil, candidateErr
		}
		return 0, nil, trop.New(trop.KindPortExhausted, "no base port satisfies every service offset within %s", opts.Range)
	}
	return chosen, assigned, nil
}

func portAvailableImpl(ctx context.Context, q store.Queryer, p portspec.Port, key reservation.Key, reservedSet map[portspec.Port]bool, opts GroupOptions) (bool, error) {
	if reservedSet[p] {
		holder, err := store.GetReservationByPort(ctx, q, p)
		if err != nil {
			return false, err
		}
		if holder == nil || holder.Key != key {
			if !opts.Force {
				return false, nil
			}
		}
	}
	if !opts.IgnoreExclusions && !opts.Force && opts.Exclusions.Contains(p) {
		return false, nil
	}
	if !opts.IgnoreOccupied && !opts.Force {
		occupied, err := occupancy.IsOccupied(p, opts.Occupancy)
		if err == nil && occupied {
			return false, nil
		}
	}
	return true, nil
}
