package container

import "context"

// Runnable is implemented by services that need post-construction
// initialization, run once the whole dependency graph has been resolved
// and in dependency-first order.
type Runnable interface {
	Run(ctx context.Context) error
}

// Runner walks a set of resolved services and runs each Runnable exactly
// once, ordered by TopSortIndex (assigned at cache-slot release, so
// dependencies always carry a lower index than their dependents).
type Runner struct {
	ran map[any]bool
}

// NewRunner creates an empty Runner.
func NewRunner() *Runner {
	return &Runner{ran: make(map[any]bool)}
}

// EnsureRunCalled runs every Runnable instance among services exactly
// once, in ascending TopSortIndex order (dependencies before dependents).
func (r *Runner) EnsureRunCalled(ctx context.Context, services []*ContainerService) error {
	ordered := make([]*ContainerService, len(services))
	copy(ordered, services)
	insertionSortByTopSort(ordered)

	for _, service := range ordered {
		if service.Status != StatusOk {
			continue
		}
		for _, inst := range service.Instances {
			if !inst.IsValid() || !inst.CanInterface() {
				continue
			}
			runnable, ok := inst.Interface().(Runnable)
			if !ok {
				continue
			}
			if r.ran[runnable] {
				continue
			}
			r.ran[runnable] = true
			if err := runnable.Run(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func insertionSortByTopSort(services []*ContainerService) {
	for i := 1; i < len(services); i++ {
		j := i
		for j > 0 && services[j-1].TopSortIndex > services[j].TopSortIndex {
			services[j-1], services[j] = services[j], services[j-1]
			j--
		}
	}
}
