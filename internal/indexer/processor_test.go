package indexer

import (
	"context"
	"testing"

	"chainforge/internal/indexer/taskmanager"
	"chainforge/pkg/felt"
)

type firstValidateProcessor struct {
	ok bool
	ran *bool
}

func (p firstValidateProcessor) ContractType() ContractType            { return ContractWorld }
func (p firstValidateProcessor) Selector() felt.Felt                   { return felt.FromUint64(7) }
func (p firstValidateProcessor) Validate(ev EventRecord) bool          { return p.ok }
func (p firstValidateProcessor) TaskIdentifier(ev EventRecord) string  { return taskmanager.Sequential }
func (p firstValidateProcessor) Priority() int                         { return 0 }
func (p firstValidateProcessor) Process(ctx context.Context, store WriteStore, ev EventRecord) error {
	*p.ran = true
	return nil
}

func TestRegistrySelectsFirstValidatingCandidate(t *testing.T) {
	var ranFirst, ranSecond bool
	reg := NewRegistry(
		firstValidateProcessor{ok: false, ran: &ranFirst},
		firstValidateProcessor{ok: true, ran: &ranSecond},
	)
	ev := EventRecord{Keys: []felt.Felt{felt.FromUint64(7)}}
	p, ok := reg.Select(ContractWorld, ev)
	if !ok {
		t.Fatal("expected a processor to be elected")
	}
	if err := p.Process(context.Background(), nil, ev); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if ranFirst || !ranSecond {
		t.Fatalf("expected the second (validating) candidate to run, got ranFirst=%v ranSecond=%v", ranFirst, ranSecond)
	}
}

func TestRegistryFallsBackToCatchAll(t *testing.T) {
	reg := NewRegistry(DefaultProcessors()...)
	ev := EventRecord{FromAddress: felt.FromUint64(1), Keys: []felt.Felt{felt.FromUint64(999999)}}
	p, ok := reg.Select(ContractOther, ev)
	if !ok {
		t.Fatal("expected the raw-event catch-all to match an unrecognized selector")
	}
	if _, isRaw := p.(rawEventProcessor); !isRaw {
		t.Fatalf("expected rawEventProcessor, got %T", p)
	}
}

func TestEventIDFormat(t *testing.T) {
	tx, _ := felt.FromHex("0xabc")
	ev := EventRecord{Block: 1, TransactionHash: tx, EventIndex: 2}
	id := ev.EventID()
	if len(id) == 0 {
		t.Fatal("expected a non-empty event id")
	}
}
