package runtime

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/jbt95/cache-locking/internal/cerrors"
)

// runCancelable implements CancellationBridge (spec §4.9): fn races against
// ctx cancellation. If ctx is already done, fn never runs and the call
// fails fast with ABORTED. Otherwise the two are raced with errgroup rather
// than polling ctx.Done() inside the state machine's loops (spec §9,
// "Prefer a select/race primitive").
func runCancelable(ctx context.Context, fn func(context.Context) (Result, error)) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, cerrors.New(cerrors.KindAborted, cerrors.PhaseAbort, "", "", "call aborted before start", err)
	}

	var out Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := fn(gctx)
		out = res
		return err
	})

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return Result{}, wrapCancelErr(ctx, err)
		}
		return out, nil
	case <-ctx.Done():
		return Result{}, cerrors.New(cerrors.KindAborted, cerrors.PhaseAbort, "", "", "call aborted by context", ctx.Err())
	}
}

// wrapCancelErr preserves already-tagged errors unchanged and otherwise
// reports ctx cancellation as ABORTED, matching the identity-preservation
// rule every other phase boundary follows.
func wrapCancelErr(ctx context.Context, err error) error {
	if _, ok := err.(*cerrors.Error); ok {
		return err
	}
	if ctx.Err() != nil {
		return cerrors.New(cerrors.KindAborted, cerrors.PhaseAbort, "", "", "call aborted by context", ctx.Err())
	}
	return err
}
