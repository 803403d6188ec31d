package taskmanager

import (
	"context"
	"sync"
	"testing"
)

func TestSequentialRunsInline(t *testing.T) {
	m := New(4)
	var ran bool
	failures := m.Enqueue(context.Background(), Task{
		Identifier: Sequential,
		Run:        func(ctx context.Context) error { ran = true; return nil },
	})
	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}
	if !ran {
		t.Fatal("expected sequential task to run immediately")
	}
}

func TestSameIdentifierTasksSerializeInArrivalOrder(t *testing.T) {
	m := New(4)
	var mu sync.Mutex
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		m.Enqueue(context.Background(), Task{
			Identifier: "same",
			Run: func(ctx context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			},
		})
	}
	m.Drain(context.Background())
	for i, v := range order {
		if v != i {
			t.Fatalf("expected arrival order 0..4, got %v", order)
		}
	}
}

func TestDifferentIdentifiersAllComplete(t *testing.T) {
	m := New(2)
	var mu sync.Mutex
	seen := map[string]bool{}
	for _, id := range []string{"a", "b", "c"} {
		id := id
		m.Enqueue(context.Background(), Task{
			Identifier: id,
			Run: func(ctx context.Context) error {
				mu.Lock()
				seen[id] = true
				mu.Unlock()
				return nil
			},
		})
	}
	m.Drain(context.Background())
	if len(seen) != 3 {
		t.Fatalf("expected all 3 identifiers to complete, got %v", seen)
	}
}

func TestFailureDoesNotCancelSiblings(t *testing.T) {
	m := New(4)
	var mu sync.Mutex
	completed := map[string]bool{}
	m.Enqueue(context.Background(), Task{Identifier: "x", Run: func(ctx context.Context) error { return errBoom }})
	m.Enqueue(context.Background(), Task{Identifier: "y", Run: func(ctx context.Context) error {
		mu.Lock()
		completed["y"] = true
		mu.Unlock()
		return nil
	}})
	failures := m.Drain(context.Background())
	if len(failures) != 1 || failures[0].Identifier != "x" {
		t.Fatalf("expected exactly one failure from identifier x, got %+v", failures)
	}
	if !completed["y"] {
		t.Fatal("expected sibling task y to still complete")
	}
}

var errBoom = errTest("boom")

type errTest string

func (e errTest) Error() string { return string(e) }
