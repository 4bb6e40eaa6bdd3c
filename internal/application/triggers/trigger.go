// Package triggers holds the invocation mechanisms that feed the processor:
// a periodic sweep, the store change feed and the HTTP endpoint.
package triggers

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Trigger is one invocation mechanism. Run blocks until ctx is cancelled or
// the trigger fails.
type Trigger interface {
	Name() string
	Run(ctx context.Context) error
}

// RunAll runs every trigger until ctx is cancelled. The first trigger to
// fail cancels the rest.
func RunAll(ctx context.Context, triggers ...Trigger) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range triggers {
		t := t
		g.Go(func() error {
			if err := t.Run(ctx); err != nil {
				return fmt.Errorf("%s trigger: %w", t.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
