// Package forkstate implements the forked-state backend: a
// single actor goroutine that serves reads against a pinned historical
// block by forwarding cache misses to a remote JSON-RPC provider, with
// request deduplication so a burst of identical reads only costs one round
// trip.
//
// A single goroutine owns all mutable backend state and answers requests
// delivered over a channel, so the mutable maps never need a mutex.
package forkstate

import (
	"context"
	"fmt"

	"chainforge/pkg/felt"
)

// RequestKind identifies what a BackendRequest is asking the remote
// provider for.
type RequestKind int

const (
	KindNonce RequestKind = iota
	KindStorage
	KindClassHashAt
	KindClass
	KindCompiledClassHash
)

// requestKey uniquely identifies an in-flight request for dedup
// purposes.
type requestKey struct {
	kind    RequestKind
	address felt.Felt
	key     felt.Felt // storage key, when kind == KindStorage
	hash    felt.Felt // class hash, when kind == KindClass/KindCompiledClassHash
}

// Response is what a backend request resolves to. Exactly one of the
// payload fields is meaningful, selected by the originating request's kind.
type Response struct {
	Felt  felt.Felt
	Class []byte // raw JSON contract class payload, for KindClass
	Err   error
}

// backendRequest is what a BackendHandle sends down the incoming channel.
type backendRequest struct {
	key   requestKey
	reply chan Response
}

// Backend owns the dedup map and answers requests serialized through a
// single goroutine (Run). It must not be touched from any other goroutine;
// all external interaction happens through a BackendHandle.
type Backend struct {
	provider Provider
	block    BlockID

	incoming chan backendRequest
	dedup    map[requestKey][]chan Response
}

// BlockID pins the backend to a historical block or block hash.
type BlockID struct {
	Number *uint64
	Hash   *felt.Felt
}

// New starts a Backend goroutine against provider, pinned to block, and
// returns a handle for issuing requests to it. The goroutine runs until ctx
// is canceled.
func New(ctx context.Context, provider Provider, block BlockID) *BackendHandle {
	b := &Backend{
		provider: provider,
		block:    block,
		incoming: make(chan backendRequest, 100),
		dedup:    make(map[requestKey][]chan Response),
	}
	go b.run(ctx)
	return &BackendHandle{requests: b.incoming}
}

func (b *Backend) run(ctx context.Context) {
	results := make(chan dedupResult, 100)
	for {
		select {
		case <-ctx.Done():
			return

		case req := <-b.incoming:
			if waiters, ok := b.dedup[req.key]; ok {
				b.dedup[req.key] = append(waiters, req.reply)
				continue
			}
			b.dedup[req.key] = []chan Response{req.reply}
			go b.fetch(ctx, req.key, results)

		case res := <-results:
			waiters := b.dedup[res.key]
			delete(b.dedup, res.key)
			for _, w := range waiters {
				w <- res.Response
			}
		}
	}
}

type dedupResult struct {
	key requestKey
	Response
}

func (b *Backend) fetch(ctx context.Context, key requestKey, results chan<- dedupResult) {
	var resp Response
	switch key.kind {
	case KindNonce:
		resp.Felt, resp.Err = b.provider.GetNonce(ctx, b.block, key.address)
	case KindStorage:
		resp.Felt, resp.Err = b.provider.GetStorageAt(ctx, b.block, key.address, key.key)
	case KindClassHashAt:
		resp.Felt, resp.Err = b.provider.GetClassHashAt(ctx, b.block, key.address)
	case KindClass:
		resp.Class, resp.Err = b.provider.GetClass(ctx, b.block, key.hash)
	case KindCompiledClassHash:
		resp.Felt, resp.Err = b.provider.GetCompiledClassHash(ctx, b.block, key.hash)
	default:
		resp.Err = fmt.Errorf("forkstate: unknown request kind %d", key.kind)
	}
	results <- dedupResult{key: key, Response: resp}
}
