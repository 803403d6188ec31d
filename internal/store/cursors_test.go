package store

import (
	"context"
	"testing"

	"chainforge/internal/indexer"
	"chainforge/pkg/felt"
)

func TestCursorsRoundTrip(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	pendingTx := felt.FromUint64(0xfe)
	contractTx := felt.FromUint64(0xfc)
	in := []*indexer.ContractCursor{
		{
			ContractAddress:            felt.FromUint64(0x1),
			ContractType:               indexer.ContractWorld,
			Head:                       42,
			LastBlockTimestamp:         1000,
			LastPendingBlockTx:         &pendingTx,
			LastPendingBlockContractTx: &contractTx,
			TPS:                        2.0,
		},
		{
			ContractAddress: felt.FromUint64(0x2),
			ContractType:    indexer.ContractErc20,
			Head:            42,
		},
	}
	if err := s.SaveCursors(ctx, in); err != nil {
		t.Fatalf("SaveCursors: %v", err)
	}

	out, err := s.LoadCursors(ctx)
	if err != nil {
		t.Fatalf("LoadCursors: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("loaded %d cursors, want 2", len(out))
	}
	got := out[felt.FromUint64(0x1)]
	if got == nil {
		t.Fatal("cursor for 0x1 missing")
	}
	if got.Head != 42 || got.LastBlockTimestamp != 1000 || got.TPS != 2.0 {
		t.Fatalf("cursor = %+v", got)
	}
	if got.ContractType != indexer.ContractWorld {
		t.Fatalf("contract type = %q", got.ContractType)
	}
	if got.LastPendingBlockTx == nil || !got.LastPendingBlockTx.Equal(pendingTx) {
		t.Fatal("pending tx not round-tripped")
	}
	if got.LastPendingBlockContractTx == nil || !got.LastPendingBlockContractTx.Equal(contractTx) {
		t.Fatal("pending contract tx not round-tripped")
	}

	plain := out[felt.FromUint64(0x2)]
	if plain.LastPendingBlockTx != nil || plain.LastPendingBlockContractTx != nil {
		t.Fatal("nulled pending fields must load as nil")
	}
}

func TestSaveCursorsPublishesSetHead(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()
	sub := s.Broker().Subscribe()

	cursor := &indexer.ContractCursor{ContractAddress: felt.FromUint64(0x9), ContractType: indexer.ContractWorld, Head: 7}
	if err := s.SaveCursors(ctx, []*indexer.ContractCursor{cursor}); err != nil {
		t.Fatalf("SaveCursors: %v", err)
	}

	msg := <-sub
	if msg.Kind != MsgSetHead || msg.Head != 7 {
		t.Fatalf("message = %+v, want SetHead at 7", msg)
	}
}
