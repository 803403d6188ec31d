package store

import (
	"context"
	"fmt"
	"testing"

	"chainforge/pkg/felt"
	"chainforge/pkg/schema"
)

func positionModel() schema.Ty {
	return schema.NewStruct("Position", []schema.Member{
		{Name: "player", Key: true, Ty: schema.NewPrimitive(schema.Template(schema.KContractAddress))},
		{Name: "x", Ty: schema.NewPrimitive(schema.Template(schema.KU32))},
		{Name: "y", Ty: schema.NewPrimitive(schema.Template(schema.KU32))},
	})
}

func TestRegisterModelCreatesTableAndCachesRecord(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	if err := s.RegisterModel(ctx, "game", "Position", felt.FromUint64(0xc1a55), felt.FromUint64(0x10), positionModel()); err != nil {
		t.Fatalf("RegisterModel: %v", err)
	}

	// The cache answers before the write queue has flushed.
	sel := ModelSelector("game", "Position").Hex()
	rec, ok := s.Model(ctx, sel)
	if !ok {
		t.Fatal("model not cached before flush")
	}
	if rec.Namespace != "game" || rec.Name != "Position" {
		t.Fatalf("cached record = %+v", rec)
	}

	if err := s.Execute(ctx); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM "game-Position"`).Scan(&n); err != nil {
		t.Fatalf("model table missing: %v", err)
	}
	var namespace string
	if err := s.db.QueryRow(`SELECT namespace FROM models WHERE id = ?`, sel).Scan(&namespace); err != nil {
		t.Fatalf("models row missing: %v", err)
	}
	if namespace != "game" {
		t.Fatalf("namespace = %q", namespace)
	}

	// Key-tagged member gets an index.
	var idx int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?`, indexName("game-Position", "player")).Scan(&idx); err != nil {
		t.Fatalf("index lookup: %v", err)
	}
	if idx != 1 {
		t.Fatal("expected an index on the key column")
	}
}

func TestSetEntityUpsertsRow(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	if err := s.RegisterModel(ctx, "game", "Position", felt.FromUint64(1), felt.FromUint64(2), positionModel()); err != nil {
		t.Fatalf("RegisterModel: %v", err)
	}
	sel := ModelSelector("game", "Position").Hex()

	value := schema.NewStruct("Position", []schema.Member{
		{Name: "player", Key: true, Ty: schema.NewPrimitive(schema.NewContractAddress(felt.FromUint64(0xaa)))},
		{Name: "x", Ty: schema.NewPrimitive(schema.NewU32(7))},
		{Name: "y", Ty: schema.NewPrimitive(schema.NewU32(11))},
	})
	entity := felt.FromUint64(0xe11)
	if err := s.SetEntity(ctx, entity, []felt.Felt{felt.FromUint64(0xaa)}, sel, value); err != nil {
		t.Fatalf("SetEntity: %v", err)
	}
	if err := s.Execute(ctx); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var x, y int
	if err := s.db.QueryRow(`SELECT "x", "y" FROM "game-Position" WHERE internal_id = ?`, entity.Hex()).Scan(&x, &y); err != nil {
		t.Fatalf("read entity row: %v", err)
	}
	if x != 7 || y != 11 {
		t.Fatalf("(x, y) = (%d, %d)", x, y)
	}

	var edges int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM entity_model WHERE entity_id = ? AND model_id = ?`, entity.Hex(), sel).Scan(&edges); err != nil {
		t.Fatalf("edge count: %v", err)
	}
	if edges != 1 {
		t.Fatalf("edge count = %d", edges)
	}

	// Second write to the same entity updates in place.
	value2 := schema.NewStruct("Position", []schema.Member{
		{Name: "player", Key: true, Ty: schema.NewPrimitive(schema.NewContractAddress(felt.FromUint64(0xaa)))},
		{Name: "x", Ty: schema.NewPrimitive(schema.NewU32(8))},
		{Name: "y", Ty: schema.NewPrimitive(schema.NewU32(12))},
	})
	if err := s.SetEntity(ctx, entity, nil, sel, value2); err != nil {
		t.Fatalf("SetEntity update: %v", err)
	}
	if err := s.Execute(ctx); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var rows int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM "game-Position"`).Scan(&rows); err != nil {
		t.Fatalf("row count: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected an in-place update, got %d rows", rows)
	}
	if err := s.db.QueryRow(`SELECT "x" FROM "game-Position" WHERE internal_id = ?`, entity.Hex()).Scan(&x); err != nil {
		t.Fatalf("reread: %v", err)
	}
	if x != 8 {
		t.Fatalf("x after update = %d", x)
	}
}

func TestDeleteEntityRemovesRowAndOrphanedEntity(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	if err := s.RegisterModel(ctx, "game", "Position", felt.FromUint64(1), felt.FromUint64(2), positionModel()); err != nil {
		t.Fatalf("RegisterModel: %v", err)
	}
	sel := ModelSelector("game", "Position").Hex()
	entity := felt.FromUint64(0xdead)
	value := schema.NewStruct("Position", []schema.Member{
		{Name: "player", Key: true, Ty: schema.NewPrimitive(schema.NewContractAddress(felt.FromUint64(1)))},
		{Name: "x", Ty: schema.NewPrimitive(schema.NewU32(1))},
		{Name: "y", Ty: schema.NewPrimitive(schema.NewU32(2))},
	})
	if err := s.SetEntity(ctx, entity, nil, sel, value); err != nil {
		t.Fatalf("SetEntity: %v", err)
	}
	if err := s.DeleteEntity(ctx, entity, sel); err != nil {
		t.Fatalf("DeleteEntity: %v", err)
	}
	if err := s.Execute(ctx); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM entities WHERE id = ?`, entity.Hex()).Scan(&n); err != nil {
		t.Fatalf("entities count: %v", err)
	}
	if n != 0 {
		t.Fatal("entity row should be removed once its last model edge is gone")
	}
}

// After re-registering with a felt252 at the
// column that held a u64, the column is TEXT holding 64-char lowercase
// hex and its index survives.
func TestSchemaUpgradeWidensToHex(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	old := schema.NewStruct("M", []schema.Member{
		{Name: "a", Key: true, Ty: schema.NewPrimitive(schema.Template(schema.KU32))},
	})
	if err := s.RegisterModel(ctx, "ns", "M", felt.FromUint64(1), felt.FromUint64(2), old); err != nil {
		t.Fatalf("RegisterModel: %v", err)
	}
	sel := ModelSelector("ns", "M").Hex()
	value := schema.NewStruct("M", []schema.Member{
		{Name: "a", Key: true, Ty: schema.NewPrimitive(schema.NewU32(255))},
	})
	entity := felt.FromUint64(0x5)
	if err := s.SetEntity(ctx, entity, nil, sel, value); err != nil {
		t.Fatalf("SetEntity: %v", err)
	}
	if err := s.Execute(ctx); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	upgraded := schema.NewStruct("M", []schema.Member{
		{Name: "a", Key: true, Ty: schema.NewPrimitive(schema.Template(schema.KFelt252))},
	})
	if err := s.UpgradeModel(ctx, "ns", "M", upgraded); err != nil {
		t.Fatalf("UpgradeModel: %v", err)
	}
	if err := s.Execute(ctx); err != nil {
		t.Fatalf("Execute upgrade: %v", err)
	}

	var got string
	if err := s.db.QueryRow(`SELECT "a" FROM "ns-M" WHERE internal_id = ?`, entity.Hex()).Scan(&got); err != nil {
		t.Fatalf("read widened value: %v", err)
	}
	want := fmt.Sprintf("%064x", 255)
	if got != want {
		t.Fatalf("widened value = %q, want %q", got, want)
	}

	var colType string
	err := s.db.QueryRow(`SELECT type FROM pragma_table_info('ns-M') WHERE name = 'a'`).Scan(&colType)
	if err != nil {
		t.Fatalf("column type: %v", err)
	}
	if colType != "TEXT" {
		t.Fatalf("column type = %q, want TEXT", colType)
	}

	var idx int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?`, indexName("ns-M", "a")).Scan(&idx); err != nil {
		t.Fatalf("index lookup: %v", err)
	}
	if idx != 1 {
		t.Fatal("per-column index must survive the widening rebuild")
	}
}

func TestUpgradeRejectsShapeChange(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	old := schema.NewStruct("M", []schema.Member{
		{Name: "a", Ty: schema.NewPrimitive(schema.Template(schema.KFelt252))},
	})
	if err := s.RegisterModel(ctx, "ns", "M2", felt.FromUint64(1), felt.FromUint64(2), old); err != nil {
		t.Fatalf("RegisterModel: %v", err)
	}
	// felt252 (TEXT) back to u32 (INTEGER) is a narrowing, not additive.
	next := schema.NewStruct("M", []schema.Member{
		{Name: "a", Ty: schema.NewPrimitive(schema.Template(schema.KU32))},
	})
	if err := s.UpgradeModel(ctx, "ns", "M2", next); err == nil {
		t.Fatal("expected narrowing upgrade to be rejected")
	}
}

func TestEventMessageHistoricalCounter(t *testing.T) {
	db, err := OpenDB(t.TempDir() + "/hist.db")
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	s, err := New(db, Config{HistoricalModels: map[string]bool{"ns-Msg": true}}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close(); db.Close() })
	ctx := context.Background()

	model := schema.NewStruct("Msg", []schema.Member{
		{Name: "sender", Key: true, Ty: schema.NewPrimitive(schema.Template(schema.KContractAddress))},
		{Name: "body", Ty: schema.NewPrimitive(schema.Template(schema.KFelt252))},
	})
	if err := s.RegisterEvent(ctx, "ns", "Msg", felt.FromUint64(9), model); err != nil {
		t.Fatalf("RegisterEvent: %v", err)
	}
	sel := ModelSelector("ns", "Msg").Hex()

	value := schema.NewStruct("Msg", []schema.Member{
		{Name: "sender", Key: true, Ty: schema.NewPrimitive(schema.NewContractAddress(felt.FromUint64(3)))},
		{Name: "body", Ty: schema.NewPrimitive(schema.NewFelt252(felt.FromUint64(42)))},
	})
	keys := []felt.Felt{felt.FromUint64(3)}
	for i := 0; i < 2; i++ {
		if err := s.ApplyEventMessage(ctx, keys, sel, value, false); err != nil {
			t.Fatalf("ApplyEventMessage: %v", err)
		}
	}
	if err := s.Execute(ctx); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	id := "event:" + felt.PoseidonHashMany(keys).Hex()
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM event_messages_historical WHERE id = ?`, id).Scan(&n); err != nil {
		t.Fatalf("historical count: %v", err)
	}
	if n != 2 {
		t.Fatalf("historical rows = %d, want 2", n)
	}
	var counter int
	if err := s.db.QueryRow(`SELECT historical_counter FROM event_model WHERE entity_id = ?`, id).Scan(&counter); err != nil {
		t.Fatalf("counter: %v", err)
	}
	if counter != 2 {
		t.Fatalf("historical counter = %d, want 2", counter)
	}
}
