package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"

	"chainforge/internal/sequencer"
	"chainforge/pkg/felt"
)

// rpcRequest is the JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// blockID is the wire form of the {Hash, Number, Tag} tagged sum.
type blockID struct {
	inner sequencer.BlockID
}

func (b *blockID) UnmarshalJSON(raw []byte) error {
	var tag string
	if err := json.Unmarshal(raw, &tag); err == nil {
		switch tag {
		case "latest":
			b.inner = sequencer.BlockLatest()
			return nil
		case "pending":
			b.inner = sequencer.BlockPending()
			return nil
		default:
			return fmt.Errorf("rpc: unknown block tag %q", tag)
		}
	}
	var obj struct {
		Hash   *string `json:"block_hash"`
		Number *uint64 `json:"block_number"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return fmt.Errorf("rpc: malformed block_id: %w", err)
	}
	switch {
	case obj.Hash != nil:
		h, err := felt.FromHex(*obj.Hash)
		if err != nil {
			return fmt.Errorf("rpc: block_hash: %w", err)
		}
		b.inner = sequencer.BlockByHash(h)
	case obj.Number != nil:
		b.inner = sequencer.BlockByNumber(*obj.Number)
	default:
		return fmt.Errorf("rpc: block_id names neither hash, number, nor tag")
	}
	return nil
}

// feltJSON round-trips a felt as its canonical hex string.
type feltJSON struct {
	felt.Felt
}

func (f *feltJSON) UnmarshalJSON(raw []byte) error {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	v, err := felt.FromHex(s)
	if err != nil {
		return err
	}
	f.Felt = v
	return nil
}

func (f feltJSON) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Hex())
}

func feltHexes(felts []felt.Felt) []string {
	out := make([]string, len(felts))
	for i, f := range felts {
		out[i] = f.Hex()
	}
	return out
}

func parseFelts(hexes []string) ([]felt.Felt, error) {
	out := make([]felt.Felt, len(hexes))
	for i, h := range hexes {
		f, err := felt.FromHex(h)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// txJSON is the wire form of a transaction across reads and writes.
type txJSON struct {
	TransactionHash     string   `json:"transaction_hash,omitempty"`
	Type                string   `json:"type"`
	Version             string   `json:"version"`
	SenderAddress       string   `json:"sender_address,omitempty"`
	Calldata            []string `json:"calldata,omitempty"`
	MaxFee              string   `json:"max_fee,omitempty"`
	Signature           []string `json:"signature,omitempty"`
	Nonce               string   `json:"nonce,omitempty"`
	ClassHash           string   `json:"class_hash,omitempty"`
	ContractAddressSalt string   `json:"contract_address_salt,omitempty"`
}

func txTypeString(t sequencer.TxType) string {
	switch t {
	case sequencer.TxInvoke:
		return "INVOKE"
	case sequencer.TxDeclare:
		return "DECLARE"
	case sequencer.TxDeployAccount:
		return "DEPLOY_ACCOUNT"
	case sequencer.TxL1Handler:
		return "L1_HANDLER"
	default:
		return "UNKNOWN"
	}
}

func toTxJSON(tx sequencer.Transaction) txJSON {
	out := txJSON{
		TransactionHash: tx.Hash.Hex(),
		Type:            txTypeString(tx.Type),
		Version:         fmt.Sprintf("0x%x", tx.Version),
		SenderAddress:   tx.SenderAddress.Hex(),
		Calldata:        feltHexes(tx.Calldata),
		MaxFee:          tx.MaxFee.Hex(),
		Signature:       feltHexes(tx.Signature),
		Nonce:           tx.Nonce.Hex(),
	}
	if tx.ClassHash != nil {
		out.ClassHash = tx.ClassHash.Hex()
	}
	if tx.ContractAddressSalt != nil {
		out.ContractAddressSalt = tx.ContractAddressSalt.Hex()
	}
	return out
}

type eventJSON struct {
	FromAddress string   `json:"from_address"`
	Keys        []string `json:"keys"`
	Data        []string `json:"data"`
}

type receiptJSON struct {
	TransactionHash string      `json:"transaction_hash"`
	ActualFee       string      `json:"actual_fee"`
	ExecutionStatus string      `json:"execution_status"`
	FinalityStatus  string      `json:"finality_status"`
	RevertReason    string      `json:"revert_reason,omitempty"`
	BlockHash       string      `json:"block_hash,omitempty"`
	BlockNumber     *uint64     `json:"block_number,omitempty"`
	Events          []eventJSON `json:"events"`
}

func executionStatusString(s sequencer.ExecutionStatus) string {
	if s == sequencer.ExecutionReverted {
		return "REVERTED"
	}
	return "SUCCEEDED"
}

func finalityStatusString(s sequencer.FinalityStatus) string {
	switch s {
	case sequencer.FinalityReceived:
		return "RECEIVED"
	case sequencer.FinalityPending:
		return "PENDING"
	case sequencer.FinalityAcceptedOnL1:
		return "ACCEPTED_ON_L1"
	default:
		return "ACCEPTED_ON_L2"
	}
}

func toReceiptJSON(r sequencer.Receipt, includeBlock bool) receiptJSON {
	out := receiptJSON{
		TransactionHash: r.TransactionHash.Hex(),
		ActualFee:       r.ActualFee.Hex(),
		ExecutionStatus: executionStatusString(r.ExecutionStatus),
		FinalityStatus:  finalityStatusString(r.FinalityStatus),
		RevertReason:    r.RevertReason,
		Events:          make([]eventJSON, len(r.Events)),
	}
	if includeBlock {
		out.BlockHash = r.BlockHash.Hex()
		n := r.BlockNumber
		out.BlockNumber = &n
	}
	for i, ev := range r.Events {
		out.Events[i] = eventJSON{
			FromAddress: ev.FromAddress.Hex(),
			Keys:        feltHexes(ev.Keys),
			Data:        feltHexes(ev.Data),
		}
	}
	return out
}

type blockHeaderJSON struct {
	BlockHash        string `json:"block_hash,omitempty"`
	ParentHash       string `json:"parent_hash"`
	BlockNumber      uint64 `json:"block_number"`
	Timestamp        uint64 `json:"timestamp"`
	SequencerAddress string `json:"sequencer_address"`
	Status           string `json:"status"`
}

type blockWithTxHashesJSON struct {
	blockHeaderJSON
	Transactions []string `json:"transactions"`
}

type blockWithTxsJSON struct {
	blockHeaderJSON
	Transactions []txJSON `json:"transactions"`
}

type txWithReceiptJSON struct {
	Transaction txJSON      `json:"transaction"`
	Receipt     receiptJSON `json:"receipt"`
}

type blockWithReceiptsJSON struct {
	blockHeaderJSON
	Transactions []txWithReceiptJSON `json:"transactions"`
}

type feeEstimateJSON struct {
	GasConsumed string `json:"gas_consumed"`
	GasPrice    string `json:"gas_price"`
	OverallFee  string `json:"overall_fee"`
}

func toFeeEstimateJSON(f sequencer.FeeEstimate) feeEstimateJSON {
	return feeEstimateJSON{
		GasConsumed: f.GasConsumed.Hex(),
		GasPrice:    f.GasPrice.Hex(),
		OverallFee:  f.OverallFee.Hex(),
	}
}

type callInfoJSON struct {
	EntryPoint string   `json:"entry_point_selector"`
	Result     []string `json:"result"`
}

type traceJSON struct {
	Type                  string        `json:"type"`
	ExecuteInvocation     *callInfoJSON `json:"execute_invocation,omitempty"`
	ValidateInvocation    *callInfoJSON `json:"validate_invocation,omitempty"`
	FeeTransferInvocation *callInfoJSON `json:"fee_transfer_invocation,omitempty"`
	RevertReason          string        `json:"revert_reason,omitempty"`
}

func traceKindString(k sequencer.TraceKind) string {
	switch k {
	case sequencer.TraceDeclare:
		return "DECLARE"
	case sequencer.TraceDeployAccount:
		return "DEPLOY_ACCOUNT"
	case sequencer.TraceL1Handler:
		return "L1_HANDLER"
	default:
		return "INVOKE"
	}
}

func toCallInfoJSON(c *sequencer.CallInfo) *callInfoJSON {
	if c == nil {
		return nil
	}
	return &callInfoJSON{EntryPoint: c.EntryPoint.Hex(), Result: feltHexes(c.Result)}
}

func toTraceJSON(t sequencer.Trace) traceJSON {
	out := traceJSON{
		Type:                  traceKindString(t.Kind),
		ValidateInvocation:    toCallInfoJSON(t.Validate),
		FeeTransferInvocation: toCallInfoJSON(t.FeeTransfer),
	}
	// A reverted invoke carries the revert reason instead of the execute
	// call info.
	if t.RevertReason != "" {
		out.RevertReason = t.RevertReason
	} else {
		out.ExecuteInvocation = toCallInfoJSON(t.Execute)
	}
	return out
}

type simulatedTxJSON struct {
	TransactionTrace traceJSON       `json:"transaction_trace"`
	FeeEstimation    feeEstimateJSON `json:"fee_estimation"`
}

// bindParams decodes params either positionally (JSON array) or by name
// (JSON object), filling ptrs in declaration order.
func bindParams(raw json.RawMessage, names []string, ptrs ...interface{}) error {
	raw = json.RawMessage(bytes.TrimSpace(raw))
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if raw[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return fmt.Errorf("rpc: malformed positional params: %w", err)
		}
		for i, item := range items {
			if i >= len(ptrs) {
				break
			}
			if err := json.Unmarshal(item, ptrs[i]); err != nil {
				return fmt.Errorf("rpc: param %d: %w", i, err)
			}
		}
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("rpc: malformed named params: %w", err)
	}
	for i, name := range names {
		item, ok := fields[name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(item, ptrs[i]); err != nil {
			return fmt.Errorf("rpc: param %q: %w", name, err)
		}
	}
	return nil
}
