package plan

import (
	"context"

	"github.com/trop-dev/trop/internal/pathx"
	"github.com/trop-dev/trop/internal/store"
)

// AutoreserveOptions wraps ReserveOptions with git-inferred defaults for
// Project, Task, and the key path, applied only where the caller left the
// corresponding field unset.
type AutoreserveOptions struct {
	ReserveOptions
	InferredProject *string
	InferredTask    *string
}

// BuildAutoreserve defers entirely to BuildReserve once defaults are
// filled in: autoreserve only changes how Options gets populated, not how
// the plan is built from it.
func BuildAutoreserve(ctx context.Context, q store.Queryer, opts AutoreserveOptions) (*Plan, error) {
	ro := opts.ReserveOptions
	if ro.Project == nil {
		ro.Project = opts.InferredProject
	}
	if ro.Task == nil {
		ro.Task = opts.InferredTask
	}
	if ro.Key.Path == "" {
		resolved, err := pathx.Resolve(ro.WorkingDir, pathx.Implicit)
		if err != nil {
			return nil, err
		}
		ro.Key.Path = resolved
	}
	return BuildReserve(ctx, q, ro)
}
