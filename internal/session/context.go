package session

import "context"

type ctxKey struct{}

// NewContext returns a copy of ctx carrying ctl.
func NewContext(ctx context.Context, ctl *Controller) context.Context {
	return context.WithValue(ctx, ctxKey{}, ctl)
}

// FromContext returns the controller stored in ctx, or nil.
func FromContext(ctx context.Context) *Controller {
	ctl, _ := ctx.Value(ctxKey{}).(*Controller)
	return ctl
}

// SnapshotFromContext returns the snapshot of the controller in ctx. Without
// a controller the request is treated as anonymous.
func SnapshotFromContext(ctx context.Context) Snapshot {
	if ctl := FromContext(ctx); ctl != nil {
		return ctl.Snapshot()
	}
	return Snapshot{Status: StatusAnonymous}
}
