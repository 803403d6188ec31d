// Package sequencer defines the interface the RPC surface (internal/rpc)
// programs against. The sequencer itself is an external collaborator, so
// only its contract lives here, plus a minimal in-memory reference
// implementation (Memory) sufficient to drive the package's own tests
// and end-to-end scenarios without a real Cairo VM. Memory is the
// "embedded sequencer" cmd/sequencerd runs in its default, non-forking
// mode.
package sequencer

import (
	"context"

	"chainforge/pkg/felt"
)

// BlockID is a tagged sum: a concrete hash, a concrete
// number, or the Latest/Pending tag.
type BlockID struct {
	Hash   *felt.Felt
	Number *uint64
	Tag    Tag
}

// Tag discriminates BlockID when neither Hash nor Number is set.
type Tag int

const (
	TagNone Tag = iota
	TagLatest
	TagPending
)

func BlockByHash(h felt.Felt) BlockID   { return BlockID{Hash: &h} }
func BlockByNumber(n uint64) BlockID    { return BlockID{Number: &n} }
func BlockLatest() BlockID              { return BlockID{Tag: TagLatest} }
func BlockPending() BlockID             { return BlockID{Tag: TagPending} }

// IsPending reports whether id names the pending tag.
func (b BlockID) IsPending() bool { return b.Hash == nil && b.Number == nil && b.Tag == TagPending }

// BlockEnv is the subset of a block header execution depends on.
type BlockEnv struct {
	Number           uint64
	Timestamp        uint64
	SequencerAddress felt.Felt
	GasPriceWei      felt.Felt
	GasPriceFri      felt.Felt
}

// ExecutionStatus classifies how a transaction finished.
type ExecutionStatus int

const (
	ExecutionSucceeded ExecutionStatus = iota
	ExecutionReverted
)

// FinalityStatus classifies how settled a transaction is.
type FinalityStatus int

const (
	FinalityReceived FinalityStatus = iota
	FinalityPending
	FinalityAcceptedOnL2
	FinalityAcceptedOnL1
)

// TxType enumerates the transaction kinds the write surface accepts.
type TxType int

const (
	TxInvoke TxType = iota
	TxDeclare
	TxDeployAccount
	TxL1Handler
)

// Transaction is an enveloped, hashed, executable transaction as accepted
// by Pool.Add and returned by the by-hash/by-index reads.
type Transaction struct {
	Hash          felt.Felt
	Type          TxType
	Version       uint64
	SenderAddress felt.Felt
	Calldata      []felt.Felt
	MaxFee        felt.Felt
	Signature     []felt.Felt
	Nonce         felt.Felt
	ClassHash     *felt.Felt // Declare/DeployAccount
	ContractAddressSalt *felt.Felt // DeployAccount
}

// Event is a single emitted event with its key and data segments.
type Event struct {
	FromAddress felt.Felt
	Keys        []felt.Felt
	Data        []felt.Felt
}

// Receipt is the outcome of executing a Transaction.
type Receipt struct {
	TransactionHash felt.Felt
	BlockNumber     uint64
	BlockHash       felt.Felt
	ExecutionStatus ExecutionStatus
	FinalityStatus  FinalityStatus
	RevertReason    string
	Events          []Event
	ActualFee       felt.Felt
}

// Block is a confirmed block plus whichever transaction projection the
// caller asked for (hashes only, full txns, or txns+receipts).
type Block struct {
	Number           uint64
	Hash             felt.Felt
	ParentHash       felt.Felt
	Timestamp        uint64
	SequencerAddress felt.Felt
	TxHashes         []felt.Felt
	Transactions     []Transaction
	Receipts         []Receipt
}

// SimulationFlags controls estimate_fee/simulate_transactions semantics.
type SimulationFlags struct {
	SkipValidate  bool
	SkipFeeCharge bool
}

// FeeEstimate is the result of an estimate_fee/estimate_message_fee call.
type FeeEstimate struct {
	GasConsumed felt.Felt
	GasPrice    felt.Felt
	OverallFee  felt.Felt
}

// TraceKind classifies the shape of a simulated transaction's trace:
// invoke, declare, deploy-account, or L1-handler.
type TraceKind int

const (
	TraceInvoke TraceKind = iota
	TraceDeclare
	TraceDeployAccount
	TraceL1Handler
)

// CallInfo is a minimal execution trace for one call.
type CallInfo struct {
	EntryPoint felt.Felt
	Result     []felt.Felt
}

// Trace is a simulated transaction's execution trace. For a reverted
// invoke, RevertReason is set and Execute is left zero.
type Trace struct {
	Kind         TraceKind
	Execute      *CallInfo
	Validate     *CallInfo
	FeeTransfer  *CallInfo
	RevertReason string
}

// SimulatedTransaction bundles a Trace with its FeeEstimate.
type SimulatedTransaction struct {
	Trace Trace
	Fee   FeeEstimate
}

// EntryPointCall is a read-only `call` request.
type EntryPointCall struct {
	ContractAddress felt.Felt
	Selector        felt.Felt
	Calldata        []felt.Felt
}

// State is a read-only view over contract storage/classes/nonces at a
// pinned block.
type State interface {
	Nonce(ctx context.Context, address felt.Felt) (felt.Felt, error)
	ClassHashAt(ctx context.Context, address felt.Felt) (felt.Felt, error)
	StorageAt(ctx context.Context, address, key felt.Felt) (felt.Felt, error)
	Class(ctx context.Context, classHash felt.Felt) ([]byte, error)
}

// Executor runs read-only execution (call/estimate/simulate) against a
// State pinned to a BlockEnv.
type Executor interface {
	EstimateFee(ctx context.Context, txs []Transaction, flags SimulationFlags) ([]FeeEstimate, error)
	Simulate(ctx context.Context, txs []Transaction, flags SimulationFlags) ([]SimulatedTransaction, error)
	Call(ctx context.Context, call EntryPointCall) ([]felt.Felt, error)
}

// ExecutorFactory builds an Executor bound to a given State/BlockEnv
// pair.
type ExecutorFactory interface {
	WithStateAndBlockEnv(state State, env BlockEnv) Executor
}

// PendingExecutor exposes the in-progress block under construction by an
// interval block producer, read-locked so RPC handlers only ever observe a
// consistent snapshot.
type PendingExecutor interface {
	BlockEnv() BlockEnv
	// Transactions returns the successful transactions executed into the
	// pending block so far, in execution order; failed transactions never
	// materialize and are not returned.
	Transactions() []Transaction
	Receipts() []Receipt
}

// Pool accepts validated, enveloped transactions for inclusion.
type Pool interface {
	Add(ctx context.Context, tx Transaction) error
	// ByHash reports whether a transaction with hash is known to the pool
	// but not yet executed.
	ByHash(hash felt.Felt) (Transaction, bool)
}

// Core is the sequencer's entry-point surface consumed by internal/rpc.
type Core interface {
	ChainID() string
	LatestNumber() uint64
	LatestHash() felt.Felt

	BlockEnvAt(id BlockID) (BlockEnv, bool)
	State(id BlockID) (State, bool)

	Class(id BlockID, classHash felt.Felt) ([]byte, bool)
	ClassHashOfContract(id BlockID, address felt.Felt) (felt.Felt, bool)
	Storage(id BlockID, address, key felt.Felt) (felt.Felt, bool)
	NonceAt(id BlockID, address felt.Felt) (felt.Felt, bool)

	TransactionCountByBlock(id BlockID) (int, bool)
	TransactionByBlockAndIndex(id BlockID, idx int) (Transaction, bool)
	TransactionByHash(hash felt.Felt) (Transaction, bool)
	TransactionStatus(hash felt.Felt) (FinalityStatus, ExecutionStatus, bool)
	ReceiptByHash(hash felt.Felt) (Receipt, bool)

	BlockByID(id BlockID) (Block, bool)

	Pool() Pool
	PendingExecutorHandle() (PendingExecutor, bool)
	ExecutorFactory() ExecutorFactory
}
