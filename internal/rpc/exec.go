package rpc

import (
	"context"
	"encoding/json"

	"chainforge/internal/errs"
	"chainforge/internal/sequencer"
)

// executorAt builds an Executor over the state and block env resolved
// from id.
func (s *Server) executorAt(id sequencer.BlockID) (sequencer.Executor, error) {
	env, ok := s.core.BlockEnvAt(id)
	if !ok {
		return nil, blockNotFound()
	}
	state, ok := s.core.State(id)
	if !ok {
		return nil, blockNotFound()
	}
	return s.core.ExecutorFactory().WithStateAndBlockEnv(state, env), nil
}

func (s *Server) call(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var (
		req struct {
			ContractAddress    feltJSON   `json:"contract_address"`
			EntryPointSelector feltJSON   `json:"entry_point_selector"`
			Calldata           []feltJSON `json:"calldata"`
		}
		id blockID
	)
	if err := bindParams(params, []string{"request", "block_id"}, &req, &id); err != nil {
		return nil, validationErr("%v", err)
	}
	exec, err := s.executorAt(id.inner)
	if err != nil {
		return nil, err
	}
	result, err := exec.Call(ctx, sequencer.EntryPointCall{
		ContractAddress: req.ContractAddress.Felt,
		Selector:        req.EntryPointSelector.Felt,
		Calldata:        unwrapFelts(req.Calldata),
	})
	if err != nil {
		return nil, errs.Wrap(errs.Execution, errs.CodeContractError, "contract error", err)
	}
	return feltHexes(result), nil
}

func decodeSimulationFlags(flags []string) sequencer.SimulationFlags {
	var out sequencer.SimulationFlags
	for _, f := range flags {
		switch f {
		case "SKIP_VALIDATE":
			out.SkipValidate = true
		case "SKIP_FEE_CHARGE":
			out.SkipFeeCharge = true
		}
	}
	return out
}

func (s *Server) decodeTxParams(raw []json.RawMessage) ([]sequencer.Transaction, error) {
	txs := make([]sequencer.Transaction, 0, len(raw))
	for i, r := range raw {
		var p struct {
			invokeTxParams
			Type      string   `json:"type"`
			ClassHash feltJSON `json:"class_hash"`
		}
		if err := json.Unmarshal(r, &p); err != nil {
			return nil, validationErr("transaction %d: %v", i, err)
		}
		version, err := parseVersion(p.Version)
		if err != nil {
			return nil, validationErr("transaction %d: %v", i, err)
		}
		tx := sequencer.Transaction{
			Type:          sequencer.TxInvoke,
			Version:       version,
			SenderAddress: p.SenderAddress.Felt,
			Calldata:      unwrapFelts(p.Calldata),
			MaxFee:        p.MaxFee.Felt,
			Signature:     unwrapFelts(p.Signature),
			Nonce:         p.Nonce.Felt,
		}
		switch p.Type {
		case "DECLARE":
			tx.Type = sequencer.TxDeclare
			classHash := p.ClassHash.Felt
			tx.ClassHash = &classHash
		case "DEPLOY_ACCOUNT":
			tx.Type = sequencer.TxDeployAccount
			classHash := p.ClassHash.Felt
			tx.ClassHash = &classHash
		}
		tx.Hash = txHash("simulated", tx)
		txs = append(txs, tx)
	}
	return txs, nil
}

// estimateFee honours SkipValidate OR disable_validate; fee charging is
// never skipped on the estimate path.
func (s *Server) estimateFee(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var (
		rawTxs []json.RawMessage
		flags  []string
		id     blockID
	)
	if err := bindParams(params, []string{"request", "simulation_flags", "block_id"}, &rawTxs, &flags, &id); err != nil {
		return nil, validationErr("%v", err)
	}
	txs, err := s.decodeTxParams(rawTxs)
	if err != nil {
		return nil, err
	}
	exec, err := s.executorAt(id.inner)
	if err != nil {
		return nil, err
	}
	sf := decodeSimulationFlags(flags)
	sf.SkipValidate = sf.SkipValidate || s.cfg.DisableValidate
	sf.SkipFeeCharge = false

	estimates, err := exec.EstimateFee(ctx, txs, sf)
	if err != nil {
		return nil, errs.Wrap(errs.Execution, errs.CodeTransactionExecErr, "transaction execution error", err)
	}
	out := make([]feeEstimateJSON, len(estimates))
	for i, e := range estimates {
		out[i] = toFeeEstimateJSON(e)
	}
	return out, nil
}

func (s *Server) estimateMessageFee(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var (
		msg struct {
			FromAddress feltJSON   `json:"from_address"`
			ToAddress   feltJSON   `json:"to_address"`
			Selector    feltJSON   `json:"entry_point_selector"`
			Payload     []feltJSON `json:"payload"`
		}
		id blockID
	)
	if err := bindParams(params, []string{"message", "block_id"}, &msg, &id); err != nil {
		return nil, validationErr("%v", err)
	}
	exec, err := s.executorAt(id.inner)
	if err != nil {
		return nil, err
	}
	// An L1 handler message estimates as a synthetic L1_HANDLER
	// transaction whose calldata is [from_address, payload...].
	tx := sequencer.Transaction{
		Type:          sequencer.TxL1Handler,
		SenderAddress: msg.ToAddress.Felt,
		Calldata:      append(unwrapFelts([]feltJSON{msg.FromAddress}), unwrapFelts(msg.Payload)...),
	}
	tx.Hash = txHash("l1_handler", tx)
	estimates, err := exec.EstimateFee(ctx, []sequencer.Transaction{tx}, sequencer.SimulationFlags{SkipValidate: true})
	if err != nil {
		return nil, errs.Wrap(errs.Execution, errs.CodeContractError, "message fee estimation failed", err)
	}
	if len(estimates) == 0 {
		return nil, errs.Wrap(errs.Execution, errs.CodeContractError, "empty estimate result", nil)
	}
	return toFeeEstimateJSON(estimates[0]), nil
}

// simulateTransactions additionally honours SkipFeeCharge OR the node's
// disable_fee setting.
func (s *Server) simulateTransactions(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var (
		id     blockID
		rawTxs []json.RawMessage
		flags  []string
	)
	if err := bindParams(params, []string{"block_id", "transactions", "simulation_flags"}, &id, &rawTxs, &flags); err != nil {
		return nil, validationErr("%v", err)
	}
	txs, err := s.decodeTxParams(rawTxs)
	if err != nil {
		return nil, err
	}
	exec, err := s.executorAt(id.inner)
	if err != nil {
		return nil, err
	}
	sf := decodeSimulationFlags(flags)
	sf.SkipValidate = sf.SkipValidate || s.cfg.DisableValidate
	sf.SkipFeeCharge = sf.SkipFeeCharge || s.cfg.DisableFee

	simulated, err := exec.Simulate(ctx, txs, sf)
	if err != nil {
		return nil, errs.Wrap(errs.Execution, errs.CodeTransactionExecErr, "transaction execution error", err)
	}
	out := make([]simulatedTxJSON, len(simulated))
	for i, sim := range simulated {
		out[i] = simulatedTxJSON{
			TransactionTrace: toTraceJSON(sim.Trace),
			FeeEstimation:    toFeeEstimateJSON(sim.Fee),
		}
	}
	return out, nil
}

// traceFromReceipt classifies the trace shape by the receipt's
// transaction kind.
func traceFromReceipt(tx sequencer.Transaction, receipt sequencer.Receipt) traceJSON {
	kind := sequencer.TraceInvoke
	switch tx.Type {
	case sequencer.TxDeclare:
		kind = sequencer.TraceDeclare
	case sequencer.TxDeployAccount:
		kind = sequencer.TraceDeployAccount
	case sequencer.TxL1Handler:
		kind = sequencer.TraceL1Handler
	}
	t := sequencer.Trace{Kind: kind}
	if receipt.ExecutionStatus == sequencer.ExecutionReverted {
		t.RevertReason = receipt.RevertReason
	} else {
		t.Execute = &sequencer.CallInfo{EntryPoint: tx.SenderAddress}
	}
	return toTraceJSON(t)
}

func (s *Server) traceTransaction(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var hash feltJSON
	if err := bindParams(params, []string{"transaction_hash"}, &hash); err != nil {
		return nil, validationErr("%v", err)
	}
	tx, ok := s.core.TransactionByHash(hash.Felt)
	if !ok {
		return nil, txnHashNotFound()
	}
	receipt, ok := s.core.ReceiptByHash(hash.Felt)
	if !ok {
		return nil, txnHashNotFound()
	}
	return traceFromReceipt(tx, receipt), nil
}

func (s *Server) traceBlockTransactions(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var id blockID
	if err := bindParams(params, []string{"block_id"}, &id); err != nil {
		return nil, validationErr("%v", err)
	}
	block, ok := s.core.BlockByID(id.inner)
	if !ok {
		return nil, blockNotFound()
	}
	type tracedTx struct {
		TransactionHash string    `json:"transaction_hash"`
		TraceRoot       traceJSON `json:"trace_root"`
	}
	out := make([]tracedTx, 0, len(block.Transactions))
	for i, tx := range block.Transactions {
		var receipt sequencer.Receipt
		if i < len(block.Receipts) {
			receipt = block.Receipts[i]
		}
		out = append(out, tracedTx{
			TransactionHash: tx.Hash.Hex(),
			TraceRoot:       traceFromReceipt(tx, receipt),
		})
	}
	return out, nil
}
