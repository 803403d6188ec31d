package store

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *Store {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	s, err := New(db, Config{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
		db.Close()
	})
	return s
}

func TestExecutePublishesQueuedMessages(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()
	sub := s.Broker().Subscribe()

	err := s.exec.Enqueue(ctx, []stmt{{
		query: `INSERT INTO metadata (id, uri) VALUES ('0x1', 'ipfs://x')`,
	}}, []Message{{Kind: MsgModelRegistered, ID: "0x1"}})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case msg := <-sub:
		t.Fatalf("message %v delivered before commit", msg)
	default:
	}

	if err := s.Execute(ctx); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	msg := <-sub
	if msg.Kind != MsgModelRegistered || msg.ID != "0x1" {
		t.Fatalf("unexpected message %+v", msg)
	}

	var uri string
	if err := s.db.QueryRow(`SELECT uri FROM metadata WHERE id = '0x1'`).Scan(&uri); err != nil {
		t.Fatalf("read committed row: %v", err)
	}
	if uri != "ipfs://x" {
		t.Fatalf("uri = %q", uri)
	}
}

func TestRollbackDropsWritesAndMessages(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()
	sub := s.Broker().Subscribe()

	err := s.exec.Enqueue(ctx, []stmt{{
		query: `INSERT INTO metadata (id, uri) VALUES ('0x2', 'dropped')`,
	}}, []Message{{Kind: MsgModelRegistered, ID: "0x2"}})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := s.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if err := s.Execute(ctx); err != nil {
		t.Fatalf("Execute after rollback: %v", err)
	}

	select {
	case msg := <-sub:
		t.Fatalf("rolled-back batch delivered message %+v", msg)
	default:
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM metadata WHERE id = '0x2'`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("rolled-back row persisted, count = %d", n)
	}
}

func TestDeferredStatementsApplyOnlyAtExecute(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	err := s.exec.EnqueueDeferred(ctx, []stmt{{
		query: `INSERT INTO metadata (id, uri) VALUES ('0x3', 'deferred')`,
	}}, nil)
	if err != nil {
		t.Fatalf("EnqueueDeferred: %v", err)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if err := s.Execute(ctx); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM metadata WHERE id = '0x3'`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("deferred row missing after Execute, count = %d", n)
	}
}

func TestFailedStatementSurfacesAtExecute(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	if err := s.exec.Enqueue(ctx, []stmt{{query: `INSERT INTO nope (x) VALUES (1)`}}, nil); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := s.Execute(ctx); err == nil {
		t.Fatal("expected Execute to surface the statement failure")
	}
	// The executor reopens a clean transaction afterwards.
	if err := s.Execute(ctx); err != nil {
		t.Fatalf("Execute on fresh transaction: %v", err)
	}
}
