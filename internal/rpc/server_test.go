package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"chainforge/internal/blockingpool"
	"chainforge/internal/sequencer"
	"chainforge/pkg/felt"
)

func newTestServer(t *testing.T, core sequencer.Core, cfg Config) *httptest.Server {
	t.Helper()
	srv := NewServer(core, nil, nil, blockingpool.New(4), blockingpool.New(2), cfg, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func rpcCall(t *testing.T, ts *httptest.Server, method string, params interface{}) rpcResponse {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0", "id": 1, "method": method, "params": params,
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(ts.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func seededMemory() *sequencer.Memory {
	m := sequencer.NewMemory("SN_TEST")
	m.SetStorage(felt.FromUint64(0xabc), felt.FromUint64(1), felt.FromUint64(99))
	m.SetNonce(felt.FromUint64(0xabc), felt.FromUint64(3))
	return m
}

func TestChainIDAndBlockNumber(t *testing.T) {
	ts := newTestServer(t, seededMemory(), Config{})

	resp := rpcCall(t, ts, "starknet_chainId", nil)
	if resp.Error != nil {
		t.Fatalf("chainId error: %+v", resp.Error)
	}
	want := felt.FromBytesBE([]byte("SN_TEST")).Hex()
	if resp.Result != want {
		t.Fatalf("chainId = %v, want %v", resp.Result, want)
	}

	resp = rpcCall(t, ts, "starknet_blockNumber", nil)
	if resp.Error != nil {
		t.Fatalf("blockNumber error: %+v", resp.Error)
	}
}

func TestGetStorageAt(t *testing.T) {
	ts := newTestServer(t, seededMemory(), Config{})

	resp := rpcCall(t, ts, "starknet_getStorageAt", []interface{}{"0xabc", "0x1", "latest"})
	if resp.Error != nil {
		t.Fatalf("getStorageAt error: %+v", resp.Error)
	}
	if resp.Result != felt.FromUint64(99).Hex() {
		t.Fatalf("storage = %v", resp.Result)
	}
}

func TestGetStorageAtUnknownContract(t *testing.T) {
	ts := newTestServer(t, seededMemory(), Config{})

	resp := rpcCall(t, ts, "starknet_getStorageAt", []interface{}{"0xffff", "0x1", "latest"})
	if resp.Error == nil {
		t.Fatal("expected contract-not-found")
	}
	if resp.Error.Code != 20 {
		t.Fatalf("code = %d, want 20", resp.Error.Code)
	}
}

func TestBlockNotFoundCode(t *testing.T) {
	ts := newTestServer(t, seededMemory(), Config{})

	resp := rpcCall(t, ts, "starknet_getBlockWithTxHashes", []interface{}{map[string]interface{}{"block_number": 9999}})
	if resp.Error == nil {
		t.Fatal("expected block-not-found")
	}
	if resp.Error.Code != 24 {
		t.Fatalf("code = %d, want 24", resp.Error.Code)
	}
}

func TestAddInvokeTransactionReachesPool(t *testing.T) {
	m := seededMemory()
	ts := newTestServer(t, m, Config{})

	resp := rpcCall(t, ts, "starknet_addInvokeTransaction", []interface{}{map[string]interface{}{
		"sender_address": "0xabc",
		"calldata":       []string{"0x1", "0x2"},
		"max_fee":        "0x100",
		"signature":      []string{},
		"nonce":          "0x3",
		"version":        "0x1",
	}})
	if resp.Error != nil {
		t.Fatalf("addInvokeTransaction error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("result shape: %T", resp.Result)
	}
	hashHex, _ := result["transaction_hash"].(string)
	hash, err := felt.FromHex(hashHex)
	if err != nil {
		t.Fatalf("transaction_hash %q: %v", hashHex, err)
	}
	if _, ok := m.Pool().ByHash(hash); !ok {
		t.Fatal("submitted transaction did not reach the pool")
	}

	// Received tier of getTransactionStatus.
	status := rpcCall(t, ts, "starknet_getTransactionStatus", []interface{}{hashHex})
	if status.Error != nil {
		t.Fatalf("status error: %+v", status.Error)
	}
	got := status.Result.(map[string]interface{})
	if got["finality_status"] != "RECEIVED" {
		t.Fatalf("finality = %v, want RECEIVED", got["finality_status"])
	}
}

func TestTransactionStatusTiers(t *testing.T) {
	m := seededMemory()
	m.StartInterval(100)
	tx := sequencer.Transaction{Hash: felt.FromUint64(0x77), Type: sequencer.TxInvoke}
	m.Execute(tx, "")
	m.SealPending(felt.FromUint64(0xb10c))
	ts := newTestServer(t, m, Config{})

	resp := rpcCall(t, ts, "starknet_getTransactionStatus", []interface{}{tx.Hash.Hex()})
	if resp.Error != nil {
		t.Fatalf("status error: %+v", resp.Error)
	}
	got := resp.Result.(map[string]interface{})
	if got["execution_status"] != "SUCCEEDED" {
		t.Fatalf("execution = %v", got["execution_status"])
	}

	missing := rpcCall(t, ts, "starknet_getTransactionStatus", []interface{}{"0xdeadbeef"})
	if missing.Error == nil || missing.Error.Code != 25 {
		t.Fatalf("expected code 25, got %+v", missing.Error)
	}
}

func TestEstimateFee(t *testing.T) {
	m := seededMemory()
	ts := newTestServer(t, m, Config{})

	resp := rpcCall(t, ts, "starknet_estimateFee", []interface{}{
		[]interface{}{map[string]interface{}{
			"type":           "INVOKE",
			"sender_address": "0xabc",
			"calldata":       []string{"0x1"},
			"max_fee":        "0x0",
			"nonce":          "0x3",
			"version":        "0x1",
		}},
		[]string{},
		"latest",
	})
	if resp.Error != nil {
		t.Fatalf("estimateFee error: %+v", resp.Error)
	}
	estimates, ok := resp.Result.([]interface{})
	if !ok || len(estimates) != 1 {
		t.Fatalf("estimates = %v", resp.Result)
	}
}

func TestGetEventsPageSizeTooBig(t *testing.T) {
	ts := newTestServer(t, seededMemory(), Config{MaxEventPageSize: 10})

	resp := rpcCall(t, ts, "starknet_getEvents", []interface{}{map[string]interface{}{
		"chunk_size": 100,
	}})
	if resp.Error == nil || resp.Error.Code != 31 {
		t.Fatalf("expected code 31, got %+v", resp.Error)
	}
}

func TestGetEventsPagination(t *testing.T) {
	m := seededMemory()
	emitter := felt.FromUint64(0xe)
	m.StartInterval(100)
	for i := 0; i < 5; i++ {
		tx := sequencer.Transaction{Hash: felt.FromUint64(uint64(0x100 + i)), Type: sequencer.TxInvoke}
		m.ExecuteWithEvents(tx, []sequencer.Event{{
			FromAddress: emitter,
			Keys:        []felt.Felt{felt.FromUint64(uint64(i))},
			Data:        []felt.Felt{felt.FromUint64(uint64(i * 10))},
		}})
	}
	m.SealPending(felt.FromUint64(0xb1))
	ts := newTestServer(t, m, Config{MaxEventPageSize: 100})

	var all []interface{}
	token := ""
	for i := 0; i < 10; i++ {
		filter := map[string]interface{}{
			"address":    emitter.Hex(),
			"chunk_size": 2,
		}
		if token != "" {
			filter["continuation_token"] = token
		}
		resp := rpcCall(t, ts, "starknet_getEvents", []interface{}{filter})
		if resp.Error != nil {
			t.Fatalf("getEvents error: %+v", resp.Error)
		}
		page := resp.Result.(map[string]interface{})
		events := page["events"].([]interface{})
		all = append(all, events...)
		next, _ := page["continuation_token"].(string)
		if next == "" {
			break
		}
		token = next
	}
	if len(all) != 5 {
		t.Fatalf("paginated union = %d events, want 5", len(all))
	}
	seen := map[string]bool{}
	for _, raw := range all {
		ev := raw.(map[string]interface{})
		id := ev["transaction_hash"].(string)
		if seen[id] {
			t.Fatalf("event for %s repeated across pages", id)
		}
		seen[id] = true
	}
}

func TestBatchRequests(t *testing.T) {
	ts := newTestServer(t, seededMemory(), Config{})

	body := []byte(`[{"jsonrpc":"2.0","id":1,"method":"starknet_blockNumber"},{"jsonrpc":"2.0","id":2,"method":"starknet_chainId"}]`)
	resp, err := http.Post(ts.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	var out []rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("batch answers = %d, want 2", len(out))
	}
}
