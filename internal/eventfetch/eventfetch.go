// Package eventfetch implements the event pagination and batch fetcher:
// fan-out range queries across watched contracts,
// recursive continuation-token following, batched block-timestamp
// resolution, and forked-event merging. internal/rpc's get_events handler
// and internal/indexer's range-fetch step both build on this package.
package eventfetch

import (
	"context"
	"fmt"
	"sort"

	"chainforge/internal/starknetrpc"
	"chainforge/pkg/felt"
)

// Client is the subset of starknetrpc.Client this package needs, kept as
// an interface so tests can supply an in-memory fake (mirroring
// internal/forkstate.Provider's shape).
type Client interface {
	BatchGetEvents(ctx context.Context, filters []starknetrpc.EventFilter) ([]starknetrpc.EventPage, error)
	BatchGetBlockTimestamps(ctx context.Context, numbers []uint64) (map[uint64]uint64, error)
}

// Event is a decoded emitted event.
type Event struct {
	FromAddress felt.Felt
	Keys        []felt.Felt
	Data        []felt.Felt
}

// TxEvents groups every event emitted by one transaction, in emission
// order; the transaction hash that yielded a given event list matches
// all events within that entry.
type TxEvents struct {
	TransactionHash felt.Felt
	Events          []Event
}

// BlockEvents groups every TxEvents in one block, in ascending
// per-transaction insertion order.
type BlockEvents struct {
	Number       uint64
	Timestamp    uint64
	Transactions []TxEvents
}

// CursorMap records, per watched contract address, the last transaction
// hash already processed, an exclusive lower bound guard against
// re-indexing the boundary transaction.
type CursorMap map[felt.Felt]felt.Felt

// FetchRange performs the fan-out range query over [from, to] for every
// address in addresses, skipping any event on the
// transaction recorded in cursor for its address, and returns the result
// ordered by ascending block number.
func FetchRange(ctx context.Context, client Client, addresses []felt.Felt, from, to uint64, cursor CursorMap, chunkSize int) ([]BlockEvents, error) {
	byBlockTx := make(map[uint64]map[felt.Felt][]Event)
	txOrder := make(map[uint64][]felt.Felt)
	blockOrder := []uint64{}

	for _, addr := range addresses {
		cursorTx, hasCursor := cursor[addr]

		filter := starknetrpc.EventFilter{
			FromBlock: starknetrpc.ByNumber(from),
			ToBlock:   starknetrpc.ByNumber(to),
			Address:   addr.Hex(),
			ChunkSize: chunkSize,
		}

		for {
			pages, err := client.BatchGetEvents(ctx, []starknetrpc.EventFilter{filter})
			if err != nil {
				return nil, fmt.Errorf("eventfetch: get_events(%s): %w", addr, err)
			}
			page := pages[0]

			for _, re := range page.Events {
				txHash, err := felt.FromHex(re.TransactionHash)
				if err != nil {
					return nil, fmt.Errorf("eventfetch: invalid transaction_hash %q: %w", re.TransactionHash, err)
				}
				if hasCursor && txHash.Equal(cursorTx) {
					continue
				}
				ev, err := decodeRawEvent(re)
				if err != nil {
					return nil, err
				}
				if _, ok := byBlockTx[re.BlockNumber]; !ok {
					byBlockTx[re.BlockNumber] = make(map[felt.Felt][]Event)
					blockOrder = append(blockOrder, re.BlockNumber)
				}
				if _, ok := byBlockTx[re.BlockNumber][txHash]; !ok {
					txOrder[re.BlockNumber] = append(txOrder[re.BlockNumber], txHash)
				}
				byBlockTx[re.BlockNumber][txHash] = append(byBlockTx[re.BlockNumber][txHash], ev)
			}

			if page.ContinuationToken == "" {
				break
			}
			filter.Continuation = page.ContinuationToken
		}
	}

	sort.Slice(blockOrder, func(i, j int) bool { return blockOrder[i] < blockOrder[j] })
	uniqueBlocks := dedupUint64(blockOrder)

	timestamps, err := client.BatchGetBlockTimestamps(ctx, uniqueBlocks)
	if err != nil {
		return nil, fmt.Errorf("eventfetch: resolve block timestamps: %w", err)
	}

	out := make([]BlockEvents, 0, len(uniqueBlocks))
	for _, n := range uniqueBlocks {
		txMap := byBlockTx[n]
		be := BlockEvents{Number: n, Timestamp: timestamps[n]}
		// Transactions keep the order in which they were first seen in the
		// fetched pages.
		for _, h := range txOrder[n] {
			be.Transactions = append(be.Transactions, TxEvents{TransactionHash: h, Events: txMap[h]})
		}
		out = append(out, be)
	}
	return out, nil
}

func decodeRawEvent(re starknetrpc.RawEvent) (Event, error) {
	from, err := felt.FromHex(re.FromAddress)
	if err != nil {
		return Event{}, fmt.Errorf("eventfetch: invalid from_address %q: %w", re.FromAddress, err)
	}
	keys := make([]felt.Felt, len(re.Keys))
	for i, k := range re.Keys {
		if keys[i], err = felt.FromHex(k); err != nil {
			return Event{}, fmt.Errorf("eventfetch: invalid key %q: %w", k, err)
		}
	}
	data := make([]felt.Felt, len(re.Data))
	for i, d := range re.Data {
		if data[i], err = felt.FromHex(d); err != nil {
			return Event{}, fmt.Errorf("eventfetch: invalid data %q: %w", d, err)
		}
	}
	return Event{FromAddress: from, Keys: keys, Data: data}, nil
}

func dedupUint64(in []uint64) []uint64 {
	out := make([]uint64, 0, len(in))
	var last uint64
	first := true
	for _, n := range in {
		if first || n != last {
			out = append(out, n)
			last = n
			first = false
		}
	}
	return out
}
