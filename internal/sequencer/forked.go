package sequencer

import (
	"context"

	"chainforge/internal/forkstate"
	"chainforge/pkg/felt"
)

// Forked overlays a local core on top of a forked-state provider: local
// state answers first, and misses below the fork point fall through to
// the lazily-materialized remote cache, completing the upstream chain
// -> fork backend -> sequencer core read path.
type Forked struct {
	*Memory
	Provider *forkstate.SharedStateProvider
}

// NewForked wraps local so its state reads consult provider on a miss.
func NewForked(local *Memory, provider *forkstate.SharedStateProvider) *Forked {
	return &Forked{Memory: local, Provider: provider}
}

func (f *Forked) Storage(id BlockID, address, key felt.Felt) (felt.Felt, bool) {
	if v, ok := f.Memory.Storage(id, address, key); ok {
		return v, true
	}
	v, err := f.Provider.StorageAt(context.Background(), address, key)
	if err != nil {
		return felt.Zero, false
	}
	return v, true
}

func (f *Forked) NonceAt(id BlockID, address felt.Felt) (felt.Felt, bool) {
	if v, ok := f.Memory.NonceAt(id, address); ok && !v.IsZero() {
		return v, true
	}
	v, known, err := f.Provider.Nonce(context.Background(), address)
	if err != nil || !known {
		return felt.Zero, false
	}
	return v, true
}

func (f *Forked) ClassHashOfContract(id BlockID, address felt.Felt) (felt.Felt, bool) {
	if v, ok := f.Memory.ClassHashOfContract(id, address); ok {
		return v, true
	}
	v, known, err := f.Provider.ClassHashAt(context.Background(), address)
	if err != nil || !known {
		return felt.Zero, false
	}
	return v, true
}

func (f *Forked) Class(id BlockID, classHash felt.Felt) ([]byte, bool) {
	if raw, ok := f.Memory.Class(id, classHash); ok {
		return raw, true
	}
	cached, known, err := f.Provider.Class(context.Background(), classHash)
	if err != nil || !known {
		return nil, false
	}
	return cached.Raw, true
}
