package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Task is a named long-running job.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Orchestrator runs tasks concurrently and stops them all when one fails.
type Orchestrator struct {
	tasks  []Task
	logger *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(logger *slog.Logger, tasks ...Task) *Orchestrator {
	return &Orchestrator{
		tasks:  tasks,
		logger: logger.With(slog.String("component", "orchestrator")),
	}
}

// Add appends a task. It must be called before Run.
func (o *Orchestrator) Add(name string, run func(ctx context.Context) error) {
	o.tasks = append(o.tasks, Task{Name: name, Run: run})
}

// Run starts every task and blocks until all return. Cancellation of ctx is
// a clean shutdown and returns nil.
func (o *Orchestrator) Run(ctx context.Context) error {
	if len(o.tasks) == 0 {
		return errors.New("pipeline: no tasks configured")
	}
	o.logger.Info("starting pipeline", slog.Int("tasks", len(o.tasks)))

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range o.tasks {
		g.Go(func() error {
			err := t.Run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				o.logger.Error("task failed", slog.String("task", t.Name), slog.String("error", err.Error()))
				return err
			}
			o.logger.Info("task stopped", slog.String("task", t.Name))
			return nil
		})
	}

	err := g.Wait()
	o.logger.Info("pipeline stopped")
	if ctx.Err() != nil {
		return nil
	}
	return err
}
