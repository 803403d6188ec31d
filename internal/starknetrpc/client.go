// Package starknetrpc is the thin JSON-RPC 2.0 client chainforge uses to
// talk to an upstream Starknet-speaking endpoint: the forked-state backend
// uses it to satisfy cache misses (internal/forkstate.Provider), the
// sequencer RPC surface uses it for fork fallthrough on historical reads,
// and internal/eventfetch uses its batch call support to fan out
// get_events/get_block_with_tx_hashes requests.
//
// It is built on github.com/ethereum/go-ethereum/rpc for its battle-tested
// JSON-RPC 2.0 client and request-batching support (DESIGN.md) rather than
// hand-rolling an HTTP/JSON envelope.
package starknetrpc

import (
	"context"
	"encoding/json"
	"fmt"

	ethrpc "github.com/ethereum/go-ethereum/rpc"

	"chainforge/pkg/felt"
)

// BlockRef encodes the JSON-RPC block_id tagged sum: a block
// hash, a block number, or the "latest"/"pending" tag.
type BlockRef struct {
	Number *uint64
	Hash   *felt.Felt
	Tag    string // "latest" or "pending", when Number and Hash are nil
}

// Latest and Pending are the two block tags.
func Latest() BlockRef  { return BlockRef{Tag: "latest"} }
func Pending() BlockRef { return BlockRef{Tag: "pending"} }
func ByNumber(n uint64) BlockRef { return BlockRef{Number: &n} }
func ByHash(h felt.Felt) BlockRef { return BlockRef{Hash: &h} }

// MarshalJSON renders the block_id parameter shape the Starknet JSON-RPC
// spec expects: a bare string for tags, {"block_number":n} or
// {"block_hash":"0x.."} otherwise.
func (b BlockRef) MarshalJSON() ([]byte, error) {
	switch {
	case b.Number != nil:
		return json.Marshal(struct {
			BlockNumber uint64 `json:"block_number"`
		}{*b.Number})
	case b.Hash != nil:
		return json.Marshal(struct {
			BlockHash string `json:"block_hash"`
		}{b.Hash.Hex()})
	case b.Tag != "":
		return json.Marshal(b.Tag)
	default:
		return json.Marshal("latest")
	}
}

// Client wraps an ethrpc.Client with typed Starknet JSON-RPC methods.
type Client struct {
	rpc *ethrpc.Client
}

// Dial connects to a Starknet JSON-RPC endpoint (HTTP or WebSocket URL).
func Dial(ctx context.Context, url string) (*Client, error) {
	c, err := ethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("starknetrpc: dial %s: %w", url, err)
	}
	return &Client{rpc: c}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() { c.rpc.Close() }

func rpcNotFound(err error) error {
	if err == nil {
		return nil
	}
	// Starknet JSON-RPC errors carry a numeric code (20 contract-not-found,
	// 28 class-hash-not-found); ethrpc surfaces them as *rpc.jsonError
	// satisfying rpc.Error, whose ErrorCode() we inspect.
	type rpcError interface {
		Error() string
		ErrorCode() int
	}
	if re, ok := err.(rpcError); ok {
		switch re.ErrorCode() {
		case 20:
			return fmt.Errorf("%w: %v", errContractNotFound, re)
		case 28:
			return fmt.Errorf("%w: %v", errClassHashNotFound, re)
		}
	}
	return err
}

var (
	errContractNotFound  = fmt.Errorf("starknetrpc: contract not found")
	errClassHashNotFound = fmt.Errorf("starknetrpc: class hash not found")
)

// ContractNotFound reports whether err resolves to a contract-not-found
// upstream response.
func ContractNotFound(err error) bool { return errorsIs(err, errContractNotFound) }

// ClassHashNotFound reports whether err resolves to a class-hash-not-found
// upstream response.
func ClassHashNotFound(err error) bool { return errorsIs(err, errClassHashNotFound) }

func errorsIs(err, target error) bool {
	for err != nil {
		if err == target {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// BlockNumber fetches the latest confirmed block height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var out uint64
	if err := c.rpc.CallContext(ctx, &out, "starknet_blockNumber"); err != nil {
		return 0, fmt.Errorf("starknetrpc: block_number: %w", err)
	}
	return out, nil
}

// BlockHashAndNumber fetches the latest confirmed block's hash and height.
func (c *Client) BlockHashAndNumber(ctx context.Context) (felt.Felt, uint64, error) {
	var out struct {
		BlockHash   string `json:"block_hash"`
		BlockNumber uint64 `json:"block_number"`
	}
	if err := c.rpc.CallContext(ctx, &out, "starknet_blockHashAndNumber"); err != nil {
		return felt.Zero, 0, fmt.Errorf("starknetrpc: block_hash_and_number: %w", err)
	}
	hash, err := felt.FromHex(out.BlockHash)
	if err != nil {
		return felt.Zero, 0, err
	}
	return hash, out.BlockNumber, nil
}

// GetNonce fetches the nonce of address as of block.
func (c *Client) GetNonce(ctx context.Context, block BlockRef, address felt.Felt) (felt.Felt, error) {
	var out string
	err := c.rpc.CallContext(ctx, &out, "starknet_getNonce", block, address.Hex())
	if err != nil {
		return felt.Zero, rpcNotFound(err)
	}
	return felt.FromHex(out)
}

// GetClassHashAt fetches the class hash deployed at address as of block.
func (c *Client) GetClassHashAt(ctx context.Context, block BlockRef, address felt.Felt) (felt.Felt, error) {
	var out string
	err := c.rpc.CallContext(ctx, &out, "starknet_getClassHashAt", block, address.Hex())
	if err != nil {
		return felt.Zero, rpcNotFound(err)
	}
	return felt.FromHex(out)
}

// GetStorageAt fetches the value stored at key in address's storage.
func (c *Client) GetStorageAt(ctx context.Context, block BlockRef, address, key felt.Felt) (felt.Felt, error) {
	var out string
	err := c.rpc.CallContext(ctx, &out, "starknet_getStorageAt", address.Hex(), key.Hex(), block)
	if err != nil {
		return felt.Zero, rpcNotFound(err)
	}
	return felt.FromHex(out)
}

// GetClass fetches the raw contract class definition for classHash.
func (c *Client) GetClass(ctx context.Context, block BlockRef, classHash felt.Felt) ([]byte, error) {
	var out json.RawMessage
	err := c.rpc.CallContext(ctx, &out, "starknet_getClass", block, classHash.Hex())
	if err != nil {
		return nil, rpcNotFound(err)
	}
	return out, nil
}

// GetCompiledClassHash derives the Sierra-to-CASM compiled class hash.
// Cairo compilation is an explicit non-goal of this system, so
// this is a deterministic placeholder (starknet_keccak of the raw class
// bytes) rather than the real CASM-hashing algorithm; it exists only so
// the forked-state cache's compiled-hash contract has a
// concrete value to cache and test against. See DESIGN.md.
func (c *Client) GetCompiledClassHash(ctx context.Context, block BlockRef, classHash felt.Felt) (felt.Felt, error) {
	raw, err := c.GetClass(ctx, block, classHash)
	if err != nil {
		return felt.Zero, err
	}
	return felt.StarknetKeccak(raw), nil
}

// BatchGetEvents submits one get_events request per filter in a single
// batch round trip, serving internal/eventfetch's fan-out.
func (c *Client) BatchGetEvents(ctx context.Context, filters []EventFilter) ([]EventPage, error) {
	elems := make([]ethrpc.BatchElem, len(filters))
	results := make([]EventPage, len(filters))
	for i, f := range filters {
		elems[i] = ethrpc.BatchElem{
			Method: "starknet_getEvents",
			Args:   []interface{}{f},
			Result: &results[i],
		}
	}
	if err := c.rpc.BatchCallContext(ctx, elems); err != nil {
		return nil, fmt.Errorf("starknetrpc: batch get_events: %w", err)
	}
	for i := range elems {
		if elems[i].Error != nil {
			return nil, fmt.Errorf("starknetrpc: get_events[%d]: %w", i, elems[i].Error)
		}
	}
	return results, nil
}

// BatchGetBlockTimestamps resolves the timestamp of each block number in a
// single batch round trip.
func (c *Client) BatchGetBlockTimestamps(ctx context.Context, numbers []uint64) (map[uint64]uint64, error) {
	elems := make([]ethrpc.BatchElem, len(numbers))
	results := make([]blockHeader, len(numbers))
	for i, n := range numbers {
		elems[i] = ethrpc.BatchElem{
			Method: "starknet_getBlockWithTxHashes",
			Args:   []interface{}{ByNumber(n)},
			Result: &results[i],
		}
	}
	if err := c.rpc.BatchCallContext(ctx, elems); err != nil {
		return nil, fmt.Errorf("starknetrpc: batch get_block_with_tx_hashes: %w", err)
	}
	out := make(map[uint64]uint64, len(numbers))
	for i, n := range numbers {
		if elems[i].Error != nil {
			return nil, fmt.Errorf("starknetrpc: get_block_with_tx_hashes[%d]: %w", i, elems[i].Error)
		}
		out[n] = results[i].Timestamp
	}
	return out, nil
}

type blockHeader struct {
	Timestamp uint64 `json:"timestamp"`
}

// EventFilter is the get_events wire filter.
type EventFilter struct {
	FromBlock   BlockRef   `json:"from_block"`
	ToBlock     BlockRef   `json:"to_block"`
	Address     string     `json:"address,omitempty"`
	Keys        [][]string `json:"keys,omitempty"`
	Continuation string    `json:"continuation_token,omitempty"`
	ChunkSize   int        `json:"chunk_size"`
}

// EventPage mirrors a get_events response page.
type EventPage struct {
	Events          []RawEvent `json:"events"`
	ContinuationToken string   `json:"continuation_token,omitempty"`
}

// RawEvent is a single event as returned over JSON-RPC, before it is
// decoded into typed fields by internal/eventfetch/internal/indexer.
type RawEvent struct {
	FromAddress     string   `json:"from_address"`
	Keys            []string `json:"keys"`
	Data            []string `json:"data"`
	BlockNumber     uint64   `json:"block_number"`
	BlockHash       string   `json:"block_hash"`
	TransactionHash string   `json:"transaction_hash"`
}
