package rpc

import (
	"context"
	"encoding/json"

	"chainforge/internal/sequencer"
	"chainforge/pkg/felt"
)

// invokeTxParams is the add_invoke_transaction payload. The transaction
// hash is computed server-side; clients never supply one.
type invokeTxParams struct {
	SenderAddress feltJSON   `json:"sender_address"`
	Calldata      []feltJSON `json:"calldata"`
	MaxFee        feltJSON   `json:"max_fee"`
	Signature     []feltJSON `json:"signature"`
	Nonce         feltJSON   `json:"nonce"`
	Version       string     `json:"version"`
}

type declareTxParams struct {
	invokeTxParams
	ClassHash feltJSON `json:"class_hash"`
}

type deployAccountTxParams struct {
	invokeTxParams
	ClassHash           feltJSON `json:"class_hash"`
	ContractAddressSalt feltJSON `json:"contract_address_salt"`
}

func unwrapFelts(in []feltJSON) []felt.Felt {
	out := make([]felt.Felt, len(in))
	for i, f := range in {
		out[i] = f.Felt
	}
	return out
}

func parseVersion(s string) (uint64, error) {
	if s == "" {
		return 1, nil
	}
	f, err := felt.FromHex(s)
	if err != nil {
		return 0, err
	}
	v, ok := f.Uint64()
	if !ok {
		return 0, validationErr("unsupported transaction version %s", s)
	}
	return v, nil
}

// txHash derives the submission hash over the enveloped fields. The
// domain separator keeps hashes of different transaction types disjoint.
func txHash(prefix string, tx sequencer.Transaction) felt.Felt {
	elems := []felt.Felt{
		felt.FromBytesBE([]byte(prefix)),
		felt.FromUint64(tx.Version),
		tx.SenderAddress,
		felt.PoseidonHashMany(tx.Calldata),
		tx.MaxFee,
		tx.Nonce,
	}
	if tx.ClassHash != nil {
		elems = append(elems, *tx.ClassHash)
	}
	if tx.ContractAddressSalt != nil {
		elems = append(elems, *tx.ContractAddressSalt)
	}
	return felt.PoseidonHashMany(elems)
}

func (s *Server) addInvokeTransaction(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p invokeTxParams
	if err := bindParams(params, []string{"invoke_transaction"}, &p); err != nil {
		return nil, validationErr("%v", err)
	}
	version, err := parseVersion(p.Version)
	if err != nil {
		return nil, validationErr("%v", err)
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
	tx.Hash = txHash("invoke", tx)
	if err := s.core.Pool().Add(ctx, tx); err != nil {
		return nil, err
	}
	return map[string]string{"transaction_hash": tx.Hash.Hex()}, nil
}

func (s *Server) addDeclareTransaction(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p declareTxParams
	if err := bindParams(params, []string{"declare_transaction"}, &p); err != nil {
		return nil, validationErr("%v", err)
	}
	version, err := parseVersion(p.Version)
	if err != nil {
		return nil, validationErr("%v", err)
	}
	classHash := p.ClassHash.Felt
	tx := sequencer.Transaction{
		Type:          sequencer.TxDeclare,
		Version:       version,
		SenderAddress: p.SenderAddress.Felt,
		Calldata:      unwrapFelts(p.Calldata),
		MaxFee:        p.MaxFee.Felt,
		Signature:     unwrapFelts(p.Signature),
		Nonce:         p.Nonce.Felt,
		ClassHash:     &classHash,
	}
	tx.Hash = txHash("declare", tx)
	if err := s.core.Pool().Add(ctx, tx); err != nil {
		return nil, err
	}
	return map[string]string{
		"transaction_hash": tx.Hash.Hex(),
		"class_hash":       classHash.Hex(),
	}, nil
}

func (s *Server) addDeployAccountTransaction(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p deployAccountTxParams
	if err := bindParams(params, []string{"deploy_account_transaction"}, &p); err != nil {
		return nil, validationErr("%v", err)
	}
	version, err := parseVersion(p.Version)
	if err != nil {
		return nil, validationErr("%v", err)
	}
	classHash := p.ClassHash.Felt
	salt := p.ContractAddressSalt.Felt
	tx := sequencer.Transaction{
		Type:                sequencer.TxDeployAccount,
		Version:             version,
		Calldata:            unwrapFelts(p.Calldata),
		MaxFee:              p.MaxFee.Felt,
		Signature:           unwrapFelts(p.Signature),
		Nonce:               p.Nonce.Felt,
		ClassHash:           &classHash,
		ContractAddressSalt: &salt,
	}
	// The deployed account address doubles as the sender.
	tx.SenderAddress = felt.PoseidonHashMany([]felt.Felt{classHash, salt, felt.PoseidonHashMany(tx.Calldata)})
	tx.Hash = txHash("deploy_account", tx)
	if err := s.core.Pool().Add(ctx, tx); err != nil {
		return nil, err
	}
	return map[string]string{
		"transaction_hash": tx.Hash.Hex(),
		"contract_address": tx.SenderAddress.Hex(),
	}, nil
}
