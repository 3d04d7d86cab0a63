package plan

import (
	"context"

	"github.com/trop-dev/trop/internal/allocator"
	"github.com/trop-dev/trop/internal/trop"
)

// ReserveGroupOptions is the input to BuildReserveGroup.
type ReserveGroupOptions struct {
	WorkingDir         string
	Force              bool
	AllowUnrelatedPath bool

	Request allocator.GroupRequest
	Options allocator.GroupOptions
}

// BuildReserveGroup validates the group request shape and defers the
// actual allocation to execute time, when the transactional view is
// current. A malformed request (no services, or a service missing exactly
// one of offset/preferred) is rejected here rather than at execution.
func BuildReserveGroup(ctx context.Context, opts ReserveGroupOptions) (*Plan, error) {
	if err := checkPathRelationship(opts.WorkingDir, opts.Request.BasePath, opts.Force, opts.AllowUnrelatedPath); err != nil {
		return nil, err
	}
	if len(opts.Request.Services) == 0 {
		return nil, trop.New(trop.KindGroupAllocationFailed, "reserve-group requires at least one service")
	}
	for _, svc := range opts.Request.Services {
		if (svc.Offset != nil) == (svc.Preferred != nil) {
			return nil, trop.New(trop.KindGroupAllocationFailed, "service %q must set exactly one of offset or preferred", svc.Tag)
		}
	}

	return &Plan{
		Actions: []Action{{
			Kind: ActionAllocateGroup,
			Group: &GroupAction{
				Request: opts.Request,
				Options: opts.Options,
			},
		}},
	}, nil
}
