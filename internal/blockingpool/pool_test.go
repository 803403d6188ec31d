package blockingpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitRunsTask(t *testing.T) {
	p := New(2)
	v, err := p.Submit(context.Background(), func() (interface{}, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if v.(int) != 42 {
		t.Errorf("got %v, want 42", v)
	}
}

func TestSubmitPropagatesError(t *testing.T) {
	p := New(1)
	wantErr := errors.New("boom")
	_, err := p.Submit(context.Background(), func() (interface{}, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
}

func TestSubmitBoundsConcurrency(t *testing.T) {
	p := New(2)
	var inFlight, maxObserved int32

	release := make(chan struct{})
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		go func() {
			p.Submit(context.Background(), func() (interface{}, error) {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					old := atomic.LoadInt32(&maxObserved)
					if n <= old || atomic.CompareAndSwapInt32(&maxObserved, old, n) {
						break
					}
				}
				<-release
				atomic.AddInt32(&inFlight, -1)
				return nil, nil
			})
			done <- struct{}{}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	for i := 0; i < 5; i++ {
		<-done
	}

	if atomic.LoadInt32(&maxObserved) > 2 {
		t.Errorf("max concurrent = %d, want <= 2", maxObserved)
	}
}

func TestSubmitRespectsContextCancellation(t *testing.T) {
	p := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	block := make(chan struct{})
	go p.Submit(context.Background(), func() (interface{}, error) {
		<-block
		return nil, nil
	})
	time.Sleep(10 * time.Millisecond)
	cancel()

	_, err := p.Submit(ctx, func() (interface{}, error) { return nil, nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	close(block)
}
