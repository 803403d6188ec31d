package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// msgKind discriminates executor messages. Commit is a message; rollback
// is a message.
type msgKind int

const (
	msgStmt msgKind = iota
	msgFlush
	msgExecute
	msgRollback
)

// stmt is one SQL statement with bound arguments.
type stmt struct {
	query string
	args  []interface{}
}

// execMsg is the typed message producers enqueue to the writer task.
type execMsg struct {
	kind    msgKind
	stmts   []stmt
	publish []Message
	// deferred statements are held back and applied right before the next
	// Execute commit, after the registration writes they depend on have
	// been applied in queue order.
	deferred bool
	reply    chan error
}

// Executor is the single writer task that owns the open database
// transaction. All other tasks interact with it by sending messages; the
// FIFO queue ordering serializes concurrent producers.
type Executor struct {
	db     *sql.DB
	broker *Broker
	log    *logrus.Logger
	in     chan<- execMsg
	done   chan struct{}
}

// NewExecutor starts the writer goroutine with an open transaction.
func NewExecutor(db *sql.DB, broker *Broker, log *logrus.Logger) (*Executor, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("store: open initial transaction: %w", err)
	}
	in, out := unboundedQueue()
	e := &Executor{db: db, broker: broker, log: log, in: in, done: make(chan struct{})}
	go e.run(tx, out)
	return e, nil
}

func (e *Executor) run(tx *sql.Tx, out <-chan execMsg) {
	defer close(e.done)

	var (
		pendingPublish []Message
		deferredStmts  []stmt
		deferredPub    []Message
		firstErr       error
	)

	apply := func(stmts []stmt) {
		for _, s := range stmts {
			if firstErr != nil {
				return
			}
			if _, err := tx.Exec(s.query, s.args...); err != nil {
				firstErr = fmt.Errorf("store: exec %q: %w", s.query, err)
				e.log.WithError(err).WithField("query", s.query).Error("store: statement failed")
			}
		}
	}

	reset := func() {
		pendingPublish = nil
		deferredStmts = nil
		deferredPub = nil
		firstErr = nil
	}

	reopen := func() {
		newTx, err := e.db.Begin()
		if err != nil {
			e.log.WithError(err).Error("store: reopen transaction failed")
			firstErr = fmt.Errorf("store: reopen transaction: %w", err)
			tx = nil
			return
		}
		tx = newTx
	}

	for msg := range out {
		if tx == nil && msg.kind != msgRollback {
			reopen()
		}
		switch msg.kind {
		case msgStmt:
			if msg.deferred {
				deferredStmts = append(deferredStmts, msg.stmts...)
				deferredPub = append(deferredPub, msg.publish...)
				continue
			}
			apply(msg.stmts)
			if firstErr == nil {
				pendingPublish = append(pendingPublish, msg.publish...)
			}
			if msg.reply != nil {
				msg.reply <- firstErr
			}
		case msgFlush:
			msg.reply <- firstErr
		case msgExecute:
			apply(deferredStmts)
			if firstErr == nil {
				pendingPublish = append(pendingPublish, deferredPub...)
			}
			err := firstErr
			if err == nil {
				err = tx.Commit()
			} else {
				_ = tx.Rollback()
			}
			if err == nil {
				for _, m := range pendingPublish {
					e.broker.publish(m)
				}
			}
			reset()
			reopen()
			msg.reply <- err
		case msgRollback:
			if tx != nil {
				_ = tx.Rollback()
			}
			reset()
			reopen()
			msg.reply <- nil
		}
	}

	if tx != nil {
		_ = tx.Rollback()
	}
}

func (e *Executor) send(ctx context.Context, msg execMsg) error {
	select {
	case e.in <- msg:
	case <-ctx.Done():
		return ctx.Err()
	}
	if msg.reply == nil {
		return nil
	}
	select {
	case err := <-msg.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue submits statements plus their post-commit broker messages
// without waiting for them to be applied.
func (e *Executor) Enqueue(ctx context.Context, stmts []stmt, publish []Message) error {
	return e.send(ctx, execMsg{kind: msgStmt, stmts: stmts, publish: publish})
}

// EnqueueDeferred holds statements back until the next Execute, used for
// token transfers that depend on a pending token registration.
func (e *Executor) EnqueueDeferred(ctx context.Context, stmts []stmt, publish []Message) error {
	return e.send(ctx, execMsg{kind: msgStmt, stmts: stmts, publish: publish, deferred: true})
}

// Flush waits until every previously enqueued statement has been applied
// to the open transaction and reports the batch's first error, if any.
func (e *Executor) Flush(ctx context.Context) error {
	return e.send(ctx, execMsg{kind: msgFlush, reply: make(chan error, 1)})
}

// Execute drains deferred statements, commits the transaction, publishes
// the queued broker messages on success, and opens a fresh transaction.
func (e *Executor) Execute(ctx context.Context) error {
	return e.send(ctx, execMsg{kind: msgExecute, reply: make(chan error, 1)})
}

// Rollback aborts the open transaction, drops every queued broker message
// and deferred statement, and opens a fresh transaction; no broker
// message queued during the rolled-back batch is ever delivered.
func (e *Executor) Rollback(ctx context.Context) error {
	return e.send(ctx, execMsg{kind: msgRollback, reply: make(chan error, 1)})
}

// Close shuts the writer down, rolling back whatever was in flight.
func (e *Executor) Close() {
	close(e.in)
	<-e.done
}
