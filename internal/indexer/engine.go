// Package indexer implements the indexer engine: a
// polling loop with exponential backoff, range-vs-pending dispatch,
// per-contract cursor tracking, processor selection, and parallel/
// sequential task scheduling via internal/indexer/taskmanager.
package indexer

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"chainforge/internal/backoff"
	"chainforge/internal/eventfetch"
	"chainforge/internal/indexer/taskmanager"
	"chainforge/pkg/felt"
)

// BlockSource is the subset of internal/sequencer.Core the engine needs
// to decide whether new blocks exist to index.
type BlockSource interface {
	LatestNumber(ctx context.Context) (uint64, error)
	LatestHash(ctx context.Context) (felt.Felt, error)
}

// EventSource is the event pagination surface (internal/eventfetch) the
// engine drives for both range and pending fetches.
type EventSource interface {
	FetchRange(ctx context.Context, addresses []felt.Felt, from, to uint64, cursor eventfetch.CursorMap, chunkSize int) ([]eventfetch.BlockEvents, error)
	FetchPending(ctx context.Context, latestConfirmedHash felt.Felt) (*eventfetch.PendingBatch, error)
}

// TransactionSource optionally resolves full transaction bodies when the
// TRANSACTIONS indexing flag is set.
type TransactionSource interface {
	TransactionByHash(ctx context.Context, hash felt.Felt) (TransactionRecord, error)
}

// Config is the engine's static configuration.
type Config struct {
	Addresses          []felt.Felt
	ContractTypes      map[felt.Felt]ContractType
	BlocksChunkSize    int
	EventChunkSize     int
	MaxConcurrentTasks int
	MaxEventPageSize   int
	FetchTransactions  bool
	IndexPending       bool
	PollingInterval    time.Duration
}

// Engine is the indexer's single polling loop. It is not safe for
// concurrent use: Run owns the loop goroutine end to end, so the engine
// never runs concurrently with itself.
type Engine struct {
	cfg       Config
	registry  *Registry
	store     WriteStore
	cursors   CursorStore
	blocks    BlockSource
	events    EventSource
	txSource  TransactionSource
	log       *logrus.Logger
	retry     *backoff.Backoff
	// batchStart anchors the wall-clock TPS fallback for the current
	// batch.
	batchStart time.Time
}

// New builds an Engine. txSource may be nil when cfg.FetchTransactions is
// false.
func New(cfg Config, registry *Registry, store WriteStore, cursors CursorStore, blocks BlockSource, events EventSource, txSource TransactionSource, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		cfg: cfg, registry: registry, store: store, cursors: cursors,
		blocks: blocks, events: events, txSource: txSource, log: log,
		retry: backoff.New(),
	}
}

// Run executes the polling loop until ctx is cancelled. Each iteration
// finishes its in-progress unit of work before the next ctx.Done() check.
func (e *Engine) Run(ctx context.Context) error {
	cursors, err := e.cursors.LoadCursors(ctx)
	if err != nil {
		return err
	}
	for _, addr := range e.cfg.Addresses {
		if _, ok := cursors[addr]; !ok {
			cursors[addr] = &ContractCursor{ContractAddress: addr, ContractType: e.cfg.ContractTypes[addr]}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		advanced, err := e.tick(ctx, cursors)
		if err != nil {
			e.log.WithError(err).Warn("indexer: tick failed, backing off")
			// A failed batch must not leave partial writes behind.
			if rb, ok := e.store.(interface{ Rollback(context.Context) error }); ok {
				if rerr := rb.Rollback(ctx); rerr != nil {
					e.log.WithError(rerr).Error("indexer: store rollback failed")
				}
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.retry.Next()):
			}
			continue
		}
		e.retry.Reset()
		if !advanced {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.cfg.PollingInterval):
			}
		}
	}
}

// tick performs one fetch_data/process cycle and reports whether it did
// any work (range or pending), so Run can decide whether to sleep the
// full polling interval.
func (e *Engine) tick(ctx context.Context, cursors map[felt.Felt]*ContractCursor) (bool, error) {
	e.batchStart = time.Now()
	latest, err := e.blocks.LatestNumber(ctx)
	if err != nil {
		return false, err
	}

	head := minHead(cursors)
	if head < latest {
		to := latest
		if e.cfg.BlocksChunkSize > 0 && to-head > uint64(e.cfg.BlocksChunkSize) {
			to = head + uint64(e.cfg.BlocksChunkSize)
		}
		if err := e.processRange(ctx, cursors, head+1, to); err != nil {
			return false, err
		}
		return true, nil
	}

	if head == latest && e.cfg.IndexPending {
		latestHash, err := e.blocks.LatestHash(ctx)
		if err != nil {
			return false, err
		}
		batch, err := e.events.FetchPending(ctx, latestHash)
		if err != nil {
			return false, err
		}
		if batch == nil {
			return false, nil
		}
		if err := e.processPending(ctx, cursors, batch); err != nil {
			return false, err
		}
		return true, nil
	}

	return false, nil
}

func minHead(cursors map[felt.Felt]*ContractCursor) uint64 {
	var min uint64
	first := true
	for _, c := range cursors {
		if first || c.Head < min {
			min = c.Head
			first = false
		}
	}
	return min
}

// processRange indexes the confirmed blocks in [from, to].
func (e *Engine) processRange(ctx context.Context, cursors map[felt.Felt]*ContractCursor, from, to uint64) error {
	// The per-contract pending tx is the exclusive lower bound guarding
	// against re-indexing the boundary transaction.
	cursorMap := eventfetch.CursorMap{}
	for addr, c := range cursors {
		if c.LastPendingBlockContractTx != nil {
			cursorMap[addr] = *c.LastPendingBlockContractTx
		}
	}

	blocks, err := e.events.FetchRange(ctx, e.cfg.Addresses, from, to, cursorMap, e.cfg.EventChunkSize)
	if err != nil {
		return err
	}

	tm := taskmanager.New(maxInt(e.cfg.MaxConcurrentTasks, 1))
	type txCount struct {
		lastTx felt.Felt
		count  uint64
	}
	perContract := map[felt.Felt]*txCount{}
	var failures []taskmanager.Failure
	var lastBlock uint64
	var lastTimestamp uint64

	for _, block := range blocks {
		lastBlock = block.Number
		lastTimestamp = block.Timestamp

		for _, txEvents := range block.Transactions {
			if e.cfg.FetchTransactions && e.txSource != nil {
				rec, err := e.txSource.TransactionByHash(ctx, txEvents.TransactionHash)
				if err != nil {
					e.log.WithError(err).Warn("indexer: fetch full transaction failed")
				} else if err := e.store.RecordTransaction(ctx, rec, nil); err != nil {
					e.log.WithError(err).Warn("indexer: record transaction failed")
				}
			}

			for idx, ev := range txEvents.Events {
				ct, watched := e.cfg.ContractTypes[ev.FromAddress]
				if !watched {
					continue
				}
				record := EventRecord{
					Block: block.Number, Timestamp: block.Timestamp,
					TransactionHash: txEvents.TransactionHash, EventIndex: idx,
					FromAddress: ev.FromAddress, Keys: ev.Keys, Data: ev.Data,
				}
				proc, ok := e.registry.Select(ct, record)
				if !ok {
					continue
				}

				if tc, ok := perContract[ev.FromAddress]; ok {
					tc.lastTx = txEvents.TransactionHash
					tc.count++
				} else {
					perContract[ev.FromAddress] = &txCount{lastTx: txEvents.TransactionHash, count: 1}
				}

				taskID := proc.TaskIdentifier(record)
				failures = append(failures, tm.Enqueue(ctx, taskmanager.Task{
					Identifier: taskID,
					Priority:   proc.Priority(),
					Run:        func(ctx context.Context) error { return proc.Process(ctx, e.store, record) },
				})...)
			}
		}
	}

	failures = append(failures, tm.Drain(ctx)...)
	for _, f := range failures {
		e.log.WithField("task", f.Identifier).WithError(f.Err).Error("indexer: task failed")
	}

	for addr, c := range cursors {
		prevTs := c.LastBlockTimestamp
		c.Head = to
		if lastBlock > 0 {
			c.LastBlockTimestamp = lastTimestamp
		}
		// Per-contract fields are recomputed from the batch's cursor map;
		// only the block-level pending tx is nulled once the range is
		// confirmed.
		if tc, ok := perContract[addr]; ok {
			c.TPS = ComputeTPS(tc.count, lastTimestamp, prevTs, e.batchStart)
			lastTx := tc.lastTx
			c.LastPendingBlockContractTx = &lastTx
		}
		c.LastPendingBlockTx = nil
	}

	return e.cursors.SaveCursors(ctx, cursorSlice(cursors))
}

// processPending indexes the pending block's events:
// skip any transaction hash already recorded as processed (exclusive),
// carry the pending timestamp forward, and dispatch processors through the
// task manager the same way range processing does (Sequential tasks inline,
// the rest when the manager is drained at the end of the block).
func (e *Engine) processPending(ctx context.Context, cursors map[felt.Felt]*ContractCursor, batch *eventfetch.PendingBatch) error {
	tm := taskmanager.New(maxInt(e.cfg.MaxConcurrentTasks, 1))
	var failures []taskmanager.Failure
	var lastTx *felt.Felt
	perContract := map[felt.Felt]felt.Felt{}
	seen := map[felt.Felt]bool{}

	// Every cursor carries the same last-processed pending tx; resume
	// right after it; the stored last_pending_block_tx is exclusive.
	var cursorTx *felt.Felt
	for _, c := range cursors {
		if c.LastPendingBlockTx != nil {
			cursorTx = c.LastPendingBlockTx
			break
		}
	}
	skipping := cursorTx != nil

	for _, txEvents := range batch.Transactions {
		if skipping {
			if txEvents.TransactionHash.Equal(*cursorTx) {
				skipping = false
			}
			continue
		}
		for idx, ev := range txEvents.Events {
			ct, watched := e.cfg.ContractTypes[ev.FromAddress]
			if !watched {
				continue
			}
			record := EventRecord{
				Timestamp: batch.Timestamp, TransactionHash: txEvents.TransactionHash,
				EventIndex: idx, FromAddress: ev.FromAddress, Keys: ev.Keys, Data: ev.Data,
			}
			proc, ok := e.registry.Select(ct, record)
			if !ok {
				continue
			}
			perContract[ev.FromAddress] = txEvents.TransactionHash
			seen[ev.FromAddress] = true
			failures = append(failures, tm.Enqueue(ctx, taskmanager.Task{
				Identifier: proc.TaskIdentifier(record),
				Priority:   proc.Priority(),
				Run:        func(ctx context.Context) error { return proc.Process(ctx, e.store, record) },
			})...)
		}
		txHash := txEvents.TransactionHash
		lastTx = &txHash
	}
	failures = append(failures, tm.Drain(ctx)...)
	for _, f := range failures {
		e.log.WithField("task", f.Identifier).WithError(f.Err).Error("indexer: pending task failed")
	}
	for addr, c := range cursors {
		// Carry the pending timestamp forward so TPS rates stay live.
		c.LastBlockTimestamp = batch.Timestamp
		if lastTx != nil {
			c.LastPendingBlockTx = lastTx
		}
		if seen[addr] {
			contractTx := perContract[addr]
			c.LastPendingBlockContractTx = &contractTx
		}
	}
	return e.cursors.SaveCursors(ctx, cursorSlice(cursors))
}

func cursorSlice(cursors map[felt.Felt]*ContractCursor) []*ContractCursor {
	out := make([]*ContractCursor, 0, len(cursors))
	for _, c := range cursors {
		out = append(out, c)
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
