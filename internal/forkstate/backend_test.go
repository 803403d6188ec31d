package forkstate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chainforge/pkg/felt"
)

// gatedProvider blocks every upstream call until the gate is opened and
// counts the calls it receives, so tests can assert the dedup contract.
type gatedProvider struct {
	gate  chan struct{}
	calls int64

	nonce felt.Felt
	class []byte
}

func (p *gatedProvider) wait(ctx context.Context) error {
	select {
	case <-p.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *gatedProvider) GetNonce(ctx context.Context, block BlockID, address Felt) (Felt, error) {
	atomic.AddInt64(&p.calls, 1)
	if err := p.wait(ctx); err != nil {
		return felt.Zero, err
	}
	return p.nonce, nil
}

func (p *gatedProvider) GetClassHashAt(ctx context.Context, block BlockID, address Felt) (Felt, error) {
	atomic.AddInt64(&p.calls, 1)
	return felt.Zero, ErrContractNotFound
}

func (p *gatedProvider) GetStorageAt(ctx context.Context, block BlockID, address, key Felt) (Felt, error) {
	atomic.AddInt64(&p.calls, 1)
	if err := p.wait(ctx); err != nil {
		return felt.Zero, err
	}
	return key, nil
}

func (p *gatedProvider) GetClass(ctx context.Context, block BlockID, classHash Felt) ([]byte, error) {
	atomic.AddInt64(&p.calls, 1)
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.class, nil
}

func (p *gatedProvider) GetCompiledClassHash(ctx context.Context, block BlockID, classHash Felt) (Felt, error) {
	atomic.AddInt64(&p.calls, 1)
	return classHash, nil
}

// Four concurrent identical nonce requests
// against a gated provider result in exactly one upstream call, and every
// caller receives the same value.
func TestBackendDeduplicatesConcurrentRequests(t *testing.T) {
	want, _ := felt.FromHex("0x123")
	provider := &gatedProvider{gate: make(chan struct{}), nonce: want}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n := uint64(7)
	handle := New(ctx, provider, BlockID{Number: &n})

	addr := felt.FromUint64(1)
	const callers = 4
	results := make([]Felt, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = handle.Nonce(ctx, addr)
		}(i)
	}

	// Give every caller time to enqueue while the provider is gated, then
	// open the gate.
	time.Sleep(50 * time.Millisecond)
	close(provider.gate)
	wg.Wait()

	if got := atomic.LoadInt64(&provider.calls); got != 1 {
		t.Fatalf("upstream calls = %d, want exactly 1", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if !results[i].Equal(want) {
			t.Fatalf("caller %d got %s, want %s", i, results[i], want)
		}
	}
}

func TestBackendDistinctKeysFetchIndependently(t *testing.T) {
	provider := &gatedProvider{gate: make(chan struct{})}
	close(provider.gate)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handle := New(ctx, provider, BlockID{})

	a, err := handle.StorageAt(ctx, felt.FromUint64(1), felt.FromUint64(10))
	if err != nil {
		t.Fatalf("StorageAt: %v", err)
	}
	b, err := handle.StorageAt(ctx, felt.FromUint64(1), felt.FromUint64(11))
	if err != nil {
		t.Fatalf("StorageAt: %v", err)
	}
	if a.Equal(b) {
		t.Fatal("distinct storage keys must resolve independently")
	}
	if got := atomic.LoadInt64(&provider.calls); got != 2 {
		t.Fatalf("upstream calls = %d, want 2", got)
	}
}

func TestSharedProviderCachesAndConvertsNotFound(t *testing.T) {
	provider := &gatedProvider{gate: make(chan struct{}), nonce: felt.FromUint64(5)}
	close(provider.gate)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handle := New(ctx, provider, BlockID{})
	shared := NewSharedStateProvider(handle, nil)

	addr := felt.FromUint64(0xaa)
	v, found, err := shared.Nonce(ctx, addr)
	if err != nil || !found || !v.Equal(felt.FromUint64(5)) {
		t.Fatalf("first nonce read = (%v, %v, %v)", v, found, err)
	}
	before := atomic.LoadInt64(&provider.calls)
	if _, _, err := shared.Nonce(ctx, addr); err != nil {
		t.Fatalf("cached nonce read: %v", err)
	}
	if after := atomic.LoadInt64(&provider.calls); after != before {
		t.Fatalf("cached read went upstream: calls %d -> %d", before, after)
	}

	// ContractNotFound collapses to (zero, false, nil) at the provider
	// boundary.
	_, found, err = shared.ClassHashAt(ctx, felt.FromUint64(0xbb))
	if err != nil {
		t.Fatalf("not-found must not surface as an error, got %v", err)
	}
	if found {
		t.Fatal("missing contract reported as found")
	}
}

func TestCompiledClassHashLegacySelfReference(t *testing.T) {
	provider := &gatedProvider{gate: make(chan struct{}), class: []byte(`{"program": {}, "entry_points_by_type": {}}`)}
	close(provider.gate)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handle := New(ctx, provider, BlockID{})
	shared := NewSharedStateProvider(handle, nil)

	classHash := felt.FromUint64(0xc1)
	compiled, err := shared.CompiledClassHash(ctx, classHash)
	if err != nil {
		t.Fatalf("CompiledClassHash: %v", err)
	}
	if !compiled.Equal(classHash) {
		t.Fatalf("legacy compiled hash = %s, want the class hash %s", compiled, classHash)
	}
}
