// Package plan builds and executes the ordered PlanAction lists that back
// every mutating command: reserve, release, migrate, reserve-group, and
// autoreserve all funnel through a builder here before the executor opens
// the single transaction that makes the change durable.
package plan

import (
	"fmt"

	"github.com/trop-dev/trop/internal/allocator"
	"github.com/trop-dev/trop/internal/reservation"
)

// ActionKind discriminates the variants a Plan can carry.
type ActionKind int

const (
	ActionCreateReservation ActionKind = iota
	ActionUpdateReservation
	ActionUpdateLastUsed
	ActionDeleteReservation
	ActionAllocateGroup
)

func (k ActionKind) String() string {
	switch k {
	case ActionCreateReservation:
		return "CreateReservation"
	case ActionUpdateReservation:
		return "UpdateReservation"
	case ActionUpdateLastUsed:
		return "UpdateLastUsed"
	case ActionDeleteReservation:
		return "DeleteReservation"
	case ActionAllocateGroup:
		return "AllocateGroup"
	default:
		return "Unknown"
	}
}

// GroupAction carries the deferred computation for an AllocateGroup
// action: the actual allocation runs against the in-transaction view at
// execute time, not at plan-build time.
type GroupAction struct {
	Request allocator.GroupRequest
	Options allocator.GroupOptions
}

// Action is one step of a Plan. Which fields are meaningful depends on
// Kind: Create/Update use Reservation, UpdateLastUsed/Delete use Key,
// AllocateGroup uses Group.
type Action struct {
	Kind        ActionKind
	Reservation reservation.Reservation
	Key         reservation.Key
	Group       *GroupAction
}

// Plan is the ordered, side-effect-free description of a mutation. It
// holds no open resources; building one never touches anything beyond
// the read-only store view it was given.
type Plan struct {
	Actions  []Action
	Warnings []string
}

func (p *Plan) addWarning(format string, args ...any) {
	p.Warnings = append(p.Warnings, fmt.Sprintf(format, args...))
}
