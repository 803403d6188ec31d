// Package rpc implements the sequencer's JSON-RPC surface:
// pending-aware reads, fork fallthrough, transaction submission, fee
// estimation and simulation, and event pagination, with handlers split
// across an I/O-blocking pool (provider reads) and a CPU-blocking pool
// (execution).
package rpc

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"chainforge/internal/blockingpool"
	"chainforge/internal/eventfetch"
	"chainforge/internal/sequencer"
	"chainforge/internal/starknetrpc"
	"chainforge/internal/store"
	"chainforge/pkg/felt"
)

// ForkClient is the upstream surface reads fall through to when the
// requested view precedes the fork point. It is satisfied
// by *starknetrpc.Client.
type ForkClient interface {
	eventfetch.Client
	GetNonce(ctx context.Context, block starknetrpc.BlockRef, address felt.Felt) (felt.Felt, error)
	GetClassHashAt(ctx context.Context, block starknetrpc.BlockRef, address felt.Felt) (felt.Felt, error)
	GetStorageAt(ctx context.Context, block starknetrpc.BlockRef, address, key felt.Felt) (felt.Felt, error)
	GetClass(ctx context.Context, block starknetrpc.BlockRef, classHash felt.Felt) ([]byte, error)
}

// TransactionFeed is the read surface behind torii_getTransactions,
// satisfied by *store.Store.
type TransactionFeed interface {
	Transactions(ctx context.Context, cursor string, limit int) (store.TransactionPage, error)
}

// Config carries the surface-level knobs.
type Config struct {
	// DisableValidate is OR-ed with each request's SkipValidate flag.
	DisableValidate bool
	// DisableFee is OR-ed with each simulate request's SkipFeeCharge flag.
	DisableFee bool
	// MaxEventPageSize caps get_events chunk sizes; larger requests fail
	// with PageSizeTooBig.
	MaxEventPageSize int
	// ForkPoint, when set, is the pinned fork block height. getStorageAt
	// requests for a block number at or below it, and the part of a
	// get_events range at or below it, are served by the fork client; the
	// other read methods do not check it.
	ForkPoint *uint64
}

type handlerFunc func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Server is the JSON-RPC dispatch surface over a sequencer core.
type Server struct {
	core    sequencer.Core
	fork    ForkClient
	feed    TransactionFeed
	ioPool  *blockingpool.Pool
	cpuPool *blockingpool.Pool
	cfg     Config
	log     *logrus.Logger

	methods map[string]handlerFunc
}

// NewServer wires the method table. fork and feed may be nil when the node
// runs without forking or without an attached projection store.
func NewServer(core sequencer.Core, fork ForkClient, feed TransactionFeed, ioPool, cpuPool *blockingpool.Pool, cfg Config, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.MaxEventPageSize <= 0 {
		cfg.MaxEventPageSize = 1024
	}
	s := &Server{core: core, fork: fork, feed: feed, ioPool: ioPool, cpuPool: cpuPool, cfg: cfg, log: log}
	s.methods = map[string]handlerFunc{
		// Reads dispatch onto the I/O pool.
		"starknet_chainId":                        s.onIO(s.chainID),
		"starknet_blockNumber":                    s.onIO(s.blockNumber),
		"starknet_blockHashAndNumber":             s.onIO(s.blockHashAndNumber),
		"starknet_getBlockWithTxHashes":           s.onIO(s.getBlockWithTxHashes),
		"starknet_getBlockWithTxs":                s.onIO(s.getBlockWithTxs),
		"starknet_getBlockWithReceipts":           s.onIO(s.getBlockWithReceipts),
		"starknet_getStateUpdate":                 s.onIO(s.getStateUpdate),
		"starknet_getStorageAt":                   s.onIO(s.getStorageAt),
		"starknet_getTransactionStatus":           s.onIO(s.getTransactionStatus),
		"starknet_getTransactionByHash":           s.onIO(s.getTransactionByHash),
		"starknet_getTransactionByBlockIdAndIndex": s.onIO(s.getTransactionByBlockIdAndIndex),
		"starknet_getTransactionReceipt":          s.onIO(s.getTransactionReceipt),
		"starknet_getClass":                       s.onIO(s.getClass),
		"starknet_getClassHashAt":                 s.onIO(s.getClassHashAt),
		"starknet_getClassAt":                     s.onIO(s.getClassAt),
		"starknet_getBlockTransactionCount":       s.onIO(s.getBlockTransactionCount),
		"starknet_getNonce":                       s.onIO(s.getNonce),
		"starknet_getEvents":                      s.onIO(s.getEvents),
		"torii_getTransactions":                   s.onIO(s.getTransactions),

		// Execution dispatches onto the CPU pool.
		"starknet_call":                   s.onCPU(s.call),
		"starknet_estimateFee":            s.onCPU(s.estimateFee),
		"starknet_estimateMessageFee":     s.onCPU(s.estimateMessageFee),
		"starknet_simulateTransactions":   s.onCPU(s.simulateTransactions),
		"starknet_traceTransaction":       s.onCPU(s.traceTransaction),
		"starknet_traceBlockTransactions": s.onCPU(s.traceBlockTransactions),

		// Writes validate inline and enqueue to the pool.
		"starknet_addInvokeTransaction":        s.onIO(s.addInvokeTransaction),
		"starknet_addDeclareTransaction":       s.onIO(s.addDeclareTransaction),
		"starknet_addDeployAccountTransaction": s.onIO(s.addDeployAccountTransaction),
	}
	return s
}

func (s *Server) onIO(h handlerFunc) handlerFunc {
	return func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		return s.ioPool.Submit(ctx, func() (interface{}, error) { return h(ctx, params) })
	}
}

func (s *Server) onCPU(h handlerFunc) handlerFunc {
	return func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		return s.cpuPool.Submit(ctx, func() (interface{}, error) { return h(ctx, params) })
	}
}

// Router mounts the JSON-RPC endpoint plus a health route.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleRPC).Methods(http.MethodPost)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "chain_id": s.core.ChainID()})
	}).Methods(http.MethodGet)
	return r
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSON(w, rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "parse error"}})
		return
	}

	// A batch is a JSON array of requests; answers preserve order.
	if len(raw) > 0 && raw[0] == '[' {
		var reqs []rpcRequest
		if err := json.Unmarshal(raw, &reqs); err != nil {
			writeJSON(w, rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "parse error"}})
			return
		}
		out := make([]rpcResponse, len(reqs))
		for i, req := range reqs {
			out[i] = s.serve(r.Context(), req)
		}
		writeJSON(w, out)
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeJSON(w, rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "parse error"}})
		return
	}
	writeJSON(w, s.serve(r.Context(), req))
}

func (s *Server) serve(ctx context.Context, req rpcRequest) rpcResponse {
	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	h, ok := s.methods[req.Method]
	if !ok {
		resp.Error = &rpcError{Code: -32601, Message: "method not found"}
		return resp
	}
	result, err := h(ctx, req.Params)
	if err != nil {
		s.log.WithError(err).WithField("method", req.Method).Debug("rpc: request failed")
		resp.Error = toRPCError(err)
		return resp
	}
	resp.Result = result
	return resp
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
