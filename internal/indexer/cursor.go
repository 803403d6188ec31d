package indexer

import (
	"context"
	"time"

	"chainforge/pkg/felt"
)

// ContractType classifies a watched contract for processor dispatch;
// processors register under a (contract type, event key) pair.
type ContractType string

const (
	ContractWorld   ContractType = "WORLD"
	ContractErc20   ContractType = "ERC20"
	ContractErc721  ContractType = "ERC721"
	ContractErc1155 ContractType = "ERC1155"
	ContractOther   ContractType = "OTHER"
)

// ContractCursor is the per-watched-contract progress record.
// Pending-specific fields are pointers so they can be cleared
// (nulled) when a range fetch confirms the block they referred to.
type ContractCursor struct {
	ContractAddress            felt.Felt
	ContractType               ContractType
	Head                       uint64
	LastBlockTimestamp         uint64
	LastPendingBlockTx         *felt.Felt
	LastPendingBlockContractTx *felt.Felt
	TPS                        float64
}

// ComputeTPS recomputes a cursor's throughput at commit time:
// txCount / max(1, Δtimestamp) with integer division, falling back to
// wall-clock when the chain timestamp has not advanced.
func ComputeTPS(txCount, blockTimestamp, previousTimestamp uint64, wallClockStart time.Time) float64 {
	delta := int64(blockTimestamp) - int64(previousTimestamp)
	if delta <= 0 {
		elapsed := int64(time.Since(wallClockStart) / time.Second)
		if elapsed < 1 {
			elapsed = 1
		}
		return float64(txCount / uint64(elapsed))
	}
	return float64(txCount / uint64(delta))
}

// CursorStore is the subset of internal/store's persistence internal/indexer
// needs, kept as a consumer-defined interface so the engine can be tested
// against an in-memory fake.
type CursorStore interface {
	LoadCursors(ctx context.Context) (map[felt.Felt]*ContractCursor, error)
	SaveCursors(ctx context.Context, cursors []*ContractCursor) error
}
