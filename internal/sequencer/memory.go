package sequencer

import (
	"context"
	"fmt"
	"sync"

	"chainforge/pkg/felt"
)

// Memory is a minimal in-memory Core: a confirmed chain of Blocks plus,
// optionally, one in-progress pending block. It has no Cairo VM: Call,
// EstimateFee, and Simulate apply a deterministic stub policy (gas of
// 1000 plus 10 per calldata felt at a constant gas price, calldata echoed
// back as the call result) rather than executing
// real Cairo bytecode. The sequencer's execution semantics are an
// external collaborator, and Memory exists only to give
// internal/rpc and internal/indexer something to run their own contracts
// against in tests.
type Memory struct {
	mu sync.RWMutex

	chainID string
	blocks  []Block // index == block number
	byHash  map[felt.Felt]uint64

	nonces     map[felt.Felt]felt.Felt
	classHash  map[felt.Felt]felt.Felt // contract address -> class hash
	classes    map[felt.Felt][]byte    // class hash -> raw class
	storage    map[felt.Felt]map[felt.Felt]felt.Felt

	pool     *memoryPool
	pending  *memoryPending
	factory  ExecutorFactory
}

// NewMemory creates an empty chain with a synthetic genesis block 0.
func NewMemory(chainID string) *Memory {
	genesis := Block{Number: 0, Hash: felt.FromUint64(0), ParentHash: felt.Zero, Timestamp: 0}
	m := &Memory{
		chainID:   chainID,
		blocks:    []Block{genesis},
		byHash:    map[felt.Felt]uint64{genesis.Hash: 0},
		nonces:    make(map[felt.Felt]felt.Felt),
		classHash: make(map[felt.Felt]felt.Felt),
		classes:   make(map[felt.Felt][]byte),
		storage:   make(map[felt.Felt]map[felt.Felt]felt.Felt),
		pool:      newMemoryPool(),
	}
	m.factory = stubExecutorFactory{}
	return m
}

func (m *Memory) ChainID() string { return m.chainID }

func (m *Memory) LatestNumber() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.blocks[len(m.blocks)-1].Number
}

func (m *Memory) LatestHash() felt.Felt {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.blocks[len(m.blocks)-1].Hash
}

func (m *Memory) resolve(id BlockID) (uint64, bool) {
	switch {
	case id.Number != nil:
		return *id.Number, *id.Number < uint64(len(m.blocks))
	case id.Hash != nil:
		n, ok := m.byHash[*id.Hash]
		return n, ok
	case id.Tag == TagLatest, id.Tag == TagNone:
		return m.LatestNumber(), true
	default:
		return 0, false
	}
}

func (m *Memory) BlockEnvAt(id BlockID) (BlockEnv, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id.IsPending() {
		if m.pending != nil {
			return m.pending.env, true
		}
		// No interval producer active: pending falls back to latest.
		id = BlockLatest()
	}
	n, ok := m.resolve(id)
	if !ok {
		return BlockEnv{}, false
	}
	b := m.blocks[n]
	return BlockEnv{Number: b.Number, Timestamp: b.Timestamp, SequencerAddress: b.SequencerAddress}, true
}

func (m *Memory) State(id BlockID) (State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id.IsPending() && m.pending == nil {
		id = BlockLatest()
	}
	if _, ok := m.resolve(id); !ok {
		return nil, false
	}
	return memoryState{m}, true
}

func (m *Memory) Class(id BlockID, classHash felt.Felt) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.classes[classHash]
	return c, ok
}

func (m *Memory) ClassHashOfContract(id BlockID, address felt.Felt) (felt.Felt, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.classHash[address]
	return c, ok
}

func (m *Memory) Storage(id BlockID, address, key felt.Felt) (felt.Felt, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	slots, ok := m.storage[address]
	if !ok {
		return felt.Zero, false
	}
	v, ok := slots[key]
	return v, ok
}

func (m *Memory) NonceAt(id BlockID, address felt.Felt) (felt.Felt, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.nonces[address]
	if !ok {
		return felt.Zero, true // undeployed accounts have nonce zero
	}
	return v, true
}

func (m *Memory) TransactionCountByBlock(id BlockID) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.resolve(id)
	if !ok {
		return 0, false
	}
	return len(m.blocks[n].TxHashes), true
}

func (m *Memory) TransactionByBlockAndIndex(id BlockID, idx int) (Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id.IsPending() && m.pending != nil {
		txs := m.pending.Transactions()
		if idx < 0 || idx >= len(txs) {
			return Transaction{}, false
		}
		return txs[idx], true
	}
	n, ok := m.resolve(id)
	if !ok {
		return Transaction{}, false
	}
	b := m.blocks[n]
	if idx < 0 || idx >= len(b.Transactions) {
		return Transaction{}, false
	}
	return b.Transactions[idx], true
}

func (m *Memory) TransactionByHash(hash felt.Felt) (Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.blocks {
		for _, tx := range b.Transactions {
			if tx.Hash.Equal(hash) {
				return tx, true
			}
		}
	}
	if m.pending != nil {
		for _, tx := range m.pending.Transactions() {
			if tx.Hash.Equal(hash) {
				return tx, true
			}
		}
	}
	return Transaction{}, false
}

// TransactionStatus resolves the three status tiers in order:
// confirmed, then pending, then received (known to the pool only).
func (m *Memory) TransactionStatus(hash felt.Felt) (FinalityStatus, ExecutionStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.blocks {
		for _, r := range b.Receipts {
			if r.TransactionHash.Equal(hash) {
				return FinalityAcceptedOnL2, r.ExecutionStatus, true
			}
		}
	}
	if m.pending != nil {
		for _, r := range m.pending.Receipts() {
			if r.TransactionHash.Equal(hash) {
				return FinalityPending, r.ExecutionStatus, true
			}
		}
	}
	if _, ok := m.pool.ByHash(hash); ok {
		return FinalityReceived, ExecutionSucceeded, true
	}
	return 0, 0, false
}

func (m *Memory) ReceiptByHash(hash felt.Felt) (Receipt, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.blocks {
		for _, r := range b.Receipts {
			if r.TransactionHash.Equal(hash) {
				return r, true
			}
		}
	}
	if m.pending != nil {
		for _, r := range m.pending.Receipts() {
			if r.TransactionHash.Equal(hash) {
				return r, true
			}
		}
	}
	return Receipt{}, false
}

func (m *Memory) BlockByID(id BlockID) (Block, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id.IsPending() {
		if m.pending == nil {
			id = BlockLatest()
		} else {
			return Block{
				Number:           m.pending.env.Number,
				ParentHash:       m.blocks[len(m.blocks)-1].Hash,
				Timestamp:        m.pending.env.Timestamp,
				SequencerAddress: m.pending.env.SequencerAddress,
				Transactions:     m.pending.Transactions(),
				Receipts:         m.pending.Receipts(),
			}, true
		}
	}
	n, ok := m.resolve(id)
	if !ok {
		return Block{}, false
	}
	return m.blocks[n], true
}

func (m *Memory) Pool() Pool                        { return m.pool }
func (m *Memory) ExecutorFactory() ExecutorFactory  { return m.factory }

// PendingExecutorHandle returns the active pending executor, or
// (nil, false) if no interval producer is running.
func (m *Memory) PendingExecutorHandle() (PendingExecutor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.pending == nil {
		return nil, false
	}
	return m.pending, true
}

// StartInterval begins a pending block for testing/reference use. Its
// block env takes the next block number, the given timestamp, and the
// latest confirmed header's sequencer address; gas prices are left zero.
func (m *Memory) StartInterval(timestamp uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latest := m.blocks[len(m.blocks)-1]
	m.pending = &memoryPending{
		env: BlockEnv{
			Number:           latest.Number + 1,
			Timestamp:        timestamp,
			SequencerAddress: latest.SequencerAddress,
		},
	}
}

// SealPending commits the pending block as the new latest confirmed block
// and clears the pending executor.
func (m *Memory) SealPending(hash felt.Felt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return
	}
	b := Block{
		Number:           m.pending.env.Number,
		Hash:             hash,
		ParentHash:       m.blocks[len(m.blocks)-1].Hash,
		Timestamp:        m.pending.env.Timestamp,
		SequencerAddress: m.pending.env.SequencerAddress,
		Transactions:     m.pending.Transactions(),
		Receipts:         m.pending.Receipts(),
	}
	for _, tx := range b.Transactions {
		b.TxHashes = append(b.TxHashes, tx.Hash)
	}
	for i := range b.Receipts {
		b.Receipts[i].BlockHash = hash
		b.Receipts[i].FinalityStatus = FinalityAcceptedOnL2
	}
	m.blocks = append(m.blocks, b)
	m.byHash[hash] = b.Number
	m.pending = nil
}

// Execute runs tx against the pending block (test/reference helper; a real
// sequencer would invoke the Cairo VM here). reverted carries an optional
// revert reason.
func (m *Memory) Execute(tx Transaction, reverted string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return
	}
	status := ExecutionSucceeded
	if reverted != "" {
		status = ExecutionReverted
	}
	m.pending.txs = append(m.pending.txs, tx)
	m.pending.receipts = append(m.pending.receipts, Receipt{
		TransactionHash: tx.Hash,
		BlockNumber:     m.pending.env.Number,
		ExecutionStatus: status,
		RevertReason:    reverted,
	})
	m.pool.remove(tx.Hash)
}

// ExecuteWithEvents is Execute plus emitted events on the receipt, for
// driving the event-pagination surface in tests.
func (m *Memory) ExecuteWithEvents(tx Transaction, events []Event) {
	m.Execute(tx, "")
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil || len(m.pending.receipts) == 0 {
		return
	}
	m.pending.receipts[len(m.pending.receipts)-1].Events = events
}

// SetNonce/SetClassHash/SetStorage/SetClass seed state for tests.
func (m *Memory) SetNonce(address, nonce felt.Felt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nonces[address] = nonce
}
func (m *Memory) SetClassHash(address, classHash felt.Felt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classHash[address] = classHash
}
func (m *Memory) SetStorage(address, key, value felt.Felt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slots, ok := m.storage[address]
	if !ok {
		slots = make(map[felt.Felt]felt.Felt)
		m.storage[address] = slots
	}
	slots[key] = value
}
func (m *Memory) SetClass(classHash felt.Felt, raw []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[classHash] = raw
}

// memoryState implements State by reading straight through to Memory's
// maps; it does not itself pin a historical snapshot. Memory is a
// reference implementation, not a full MVCC state database.
type memoryState struct{ m *Memory }

func (s memoryState) Nonce(ctx context.Context, address felt.Felt) (felt.Felt, error) {
	v, _ := s.m.NonceAt(BlockLatest(), address)
	return v, nil
}
func (s memoryState) ClassHashAt(ctx context.Context, address felt.Felt) (felt.Felt, error) {
	v, ok := s.m.ClassHashOfContract(BlockLatest(), address)
	if !ok {
		return felt.Zero, fmt.Errorf("sequencer: class hash not found for %s", address)
	}
	return v, nil
}
func (s memoryState) StorageAt(ctx context.Context, address, key felt.Felt) (felt.Felt, error) {
	v, _ := s.m.Storage(BlockLatest(), address, key)
	return v, nil
}
func (s memoryState) Class(ctx context.Context, classHash felt.Felt) ([]byte, error) {
	v, ok := s.m.Class(BlockLatest(), classHash)
	if !ok {
		return nil, fmt.Errorf("sequencer: class not found for %s", classHash)
	}
	return v, nil
}

type memoryPending struct {
	env      BlockEnv
	txs      []Transaction
	receipts []Receipt
}

func (p *memoryPending) BlockEnv() BlockEnv { return p.env }

// Transactions returns only the successful transactions; pending block
// reads materialize from those alone.
func (p *memoryPending) Transactions() []Transaction {
	var out []Transaction
	for i, r := range p.receipts {
		if r.ExecutionStatus == ExecutionSucceeded {
			out = append(out, p.txs[i])
		}
	}
	return out
}

func (p *memoryPending) Receipts() []Receipt {
	var out []Receipt
	for _, r := range p.receipts {
		if r.ExecutionStatus == ExecutionSucceeded {
			out = append(out, r)
		}
	}
	return out
}

type memoryPool struct {
	mu  sync.Mutex
	txs map[felt.Felt]Transaction
}

func newMemoryPool() *memoryPool { return &memoryPool{txs: make(map[felt.Felt]Transaction)} }

func (p *memoryPool) Add(ctx context.Context, tx Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.txs[tx.Hash] = tx
	return nil
}

func (p *memoryPool) ByHash(hash felt.Felt) (Transaction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tx, ok := p.txs[hash]
	return tx, ok
}

func (p *memoryPool) remove(hash felt.Felt) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.txs, hash)
}

// stubExecutorFactory and stubExecutor implement a deterministic,
// non-Cairo execution policy: every call succeeds, charges 1000 gas plus
// 10 per calldata felt at stubGasPrice, and echoes calldata back as the
// result. Real Cairo-VM execution is an
// external collaborator.
type stubExecutorFactory struct{}

func (stubExecutorFactory) WithStateAndBlockEnv(state State, env BlockEnv) Executor {
	return stubExecutor{}
}

type stubExecutor struct{}

const stubGasPrice = 100

func (stubExecutor) EstimateFee(ctx context.Context, txs []Transaction, flags SimulationFlags) ([]FeeEstimate, error) {
	out := make([]FeeEstimate, len(txs))
	for i := range txs {
		gas := felt.FromUint64(uint64(1000 + len(txs[i].Calldata)*10))
		price := felt.FromUint64(stubGasPrice)
		out[i] = FeeEstimate{GasConsumed: gas, GasPrice: price, OverallFee: gas.Mul(price)}
	}
	return out, nil
}

func (stubExecutor) Simulate(ctx context.Context, txs []Transaction, flags SimulationFlags) ([]SimulatedTransaction, error) {
	fees, err := stubExecutor{}.EstimateFee(ctx, txs, flags)
	if err != nil {
		return nil, err
	}
	out := make([]SimulatedTransaction, len(txs))
	for i, tx := range txs {
		kind := traceKindOf(tx.Type)
		out[i] = SimulatedTransaction{
			Fee: fees[i],
			Trace: Trace{
				Kind:    kind,
				Execute: &CallInfo{Result: tx.Calldata},
			},
		}
	}
	return out, nil
}

func (stubExecutor) Call(ctx context.Context, call EntryPointCall) ([]felt.Felt, error) {
	return call.Calldata, nil
}

func traceKindOf(t TxType) TraceKind {
	switch t {
	case TxDeclare:
		return TraceDeclare
	case TxDeployAccount:
		return TraceDeployAccount
	case TxL1Handler:
		return TraceL1Handler
	default:
		return TraceInvoke
	}
}
