package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Runner is a long-lived loop that exits when its context is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

// Orchestrator runs the poller, resolver, and any optional loops (websocket
// feed, archiver) as one errgroup. Optional loops may be nil.
type Orchestrator struct {
	poller   *Poller
	resolver *Resolver
	archiver *Archiver
	extra    []Runner
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator. archiver may be nil; extra holds
// any additional loops such as the realtime feed.
func NewOrchestrator(poller *Poller, resolver *Resolver, archiver *Archiver, logger *slog.Logger, extra ...Runner) *Orchestrator {
	return &Orchestrator{
		poller:   poller,
		resolver: resolver,
		archiver: archiver,
		extra:    extra,
		logger:   logger.With(slog.String("component", "orchestrator")),
	}
}

// Run starts every loop and blocks until the context is cancelled or a loop
// fails with a non-context error. Context cancellation is a clean shutdown.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("orchestrator starting")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := o.poller.Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("poller: %w", err)
	})

	g.Go(func() error {
		err := o.resolver.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("resolver: %w", err)
	})

	if o.archiver != nil {
		g.Go(func() error {
			err := o.archiver.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	for _, r := range o.extra {
		r := r
		g.Go(func() error {
			err := r.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("feed: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("orchestrator stopped cleanly")
	return nil
}
