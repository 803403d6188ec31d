// Package taskmanager implements the indexer engine's task scheduling
// rules: same-identifier tasks serialize in
// arrival order, different-identifier tasks run in parallel up to a
// configured concurrency limit, and a task carrying the Sequential
// identifier runs synchronously in the caller's goroutine instead of being
// queued at all.
package taskmanager

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Sequential is the sentinel task identifier that forces inline,
// synchronous execution.
const Sequential = "__sequential__"

// Task is one unit of work dispatched by the indexer's range-processing
// step.
type Task struct {
	Identifier string
	Priority   int
	Run        func(ctx context.Context) error
}

// Failure records a non-cancelling task error; failures within a task
// are logged and do not cancel siblings.
type Failure struct {
	Identifier string
	Err        error
}

// Manager batches tasks for one indexing pass. It is not safe for
// concurrent use by multiple goroutines; the indexer engine owns one
// Manager per batch on its single loop goroutine.
type Manager struct {
	maxConcurrent int
	groups        map[string][]Task
	order         []string
}

// New creates a Manager that runs up to maxConcurrent distinct task
// identifiers in parallel.
func New(maxConcurrent int) *Manager {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Manager{maxConcurrent: maxConcurrent, groups: map[string][]Task{}}
}

// Enqueue adds t to the batch. Tasks with Identifier == Sequential run
// immediately and synchronously; all others are held for Drain.
func (m *Manager) Enqueue(ctx context.Context, t Task) []Failure {
	if t.Identifier == Sequential {
		if err := t.Run(ctx); err != nil {
			return []Failure{{Identifier: Sequential, Err: err}}
		}
		return nil
	}
	if _, ok := m.groups[t.Identifier]; !ok {
		m.order = append(m.order, t.Identifier)
	}
	m.groups[t.Identifier] = append(m.groups[t.Identifier], t)
	return nil
}

// Drain runs every queued non-sequential group to completion: tasks
// within a group execute serially in arrival order, groups themselves run
// concurrently bounded by maxConcurrent, higher-priority groups (by their
// highest-priority member) scheduled first. It returns every task
// failure observed; a failure never aborts a sibling task or group.
func (m *Manager) Drain(ctx context.Context) []Failure {
	if len(m.order) == 0 {
		return nil
	}

	ids := append([]string{}, m.order...)
	sort.SliceStable(ids, func(i, j int) bool {
		return maxPriority(m.groups[ids[i]]) > maxPriority(m.groups[ids[j]])
	})

	var mu sync.Mutex
	var failures []Failure

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.maxConcurrent)
	for _, id := range ids {
		tasks := m.groups[id]
		identifier := id
		g.Go(func() error {
			for _, t := range tasks {
				if err := t.Run(gctx); err != nil {
					mu.Lock()
					failures = append(failures, Failure{Identifier: identifier, Err: err})
					mu.Unlock()
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	m.groups = map[string][]Task{}
	m.order = nil
	return failures
}

func maxPriority(tasks []Task) int {
	best := 0
	for i, t := range tasks {
		if i == 0 || t.Priority > best {
			best = t.Priority
		}
	}
	return best
}
