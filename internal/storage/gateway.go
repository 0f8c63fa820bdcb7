// Package storage implements the Storage Gateway: it opens transactional
// sessions against the relational store, executes parameter-bound
// statements, and classifies driver errors into a small taxonomy that
// higher layers translate into protocol error codes.
package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Gateway opens Sessions against a connection pool.
type Gateway struct {
	pool *pgxpool.Pool
}

// New wraps an already-open pool.
func New(pool *pgxpool.Pool) *Gateway {
	return &Gateway{pool: pool}
}

// Open begins a new Session: a connection checked out from the pool with an
// autocommit-off transaction scope. The caller must call Commit or Close
// (Close after a failed/abandoned Commit rolls back).
func (g *Gateway) Open(ctx context.Context) (*Session, error) {
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return nil, Classify(err)
	}
	return &Session{tx: tx}, nil
}

// Pool exposes the underlying pool for callers that need a bare connection
// outside of a Session (read-only lookups that don't need a transaction).
func (g *Gateway) Pool() *pgxpool.Pool {
	return g.pool
}

// Session bundles one relational transaction for the duration of a request
// or a single reservation step. It is never shared across goroutines.
type Session struct {
	tx        pgx.Tx
	committed bool
}

// Exec runs a parameter-bound statement that doesn't return rows.
func (s *Session) Exec(ctx context.Context, stmt string, args ...any) (pgconn.CommandTag, error) {
	tag, err := s.tx.Exec(ctx, stmt, args...)
	if err != nil {
		return tag, Classify(err)
	}
	return tag, nil
}

// QueryRow runs a parameter-bound statement expected to return at most one row.
func (s *Session) QueryRow(ctx context.Context, stmt string, args ...any) pgx.Row {
	return s.tx.QueryRow(ctx, stmt, args...)
}

// Query runs a parameter-bound statement returning zero or more rows.
func (s *Session) Query(ctx context.Context, stmt string, args ...any) (pgx.Rows, error) {
	rows, err := s.tx.Query(ctx, stmt, args...)
	if err != nil {
		return nil, Classify(err)
	}
	return rows, nil
}

// Tx exposes the underlying transaction for callers (synccount.Engine) that
// need to pass it through to pgx APIs not wrapped above.
func (s *Session) Tx() pgx.Tx {
	return s.tx
}

// Commit finalizes the session's transaction.
func (s *Session) Commit(ctx context.Context) error {
	if err := s.tx.Commit(ctx); err != nil {
		return Classify(err)
	}
	s.committed = true
	return nil
}

// Close rolls back the transaction if it was never committed. It is safe to
// call after a successful Commit (rollback on an already-committed tx is a
// no-op error that Close swallows).
func (s *Session) Close(ctx context.Context) {
	if s.committed {
		return
	}
	_ = s.tx.Rollback(ctx)
}

// WithSession opens a Session, runs fn, and commits on success or closes
// (rolling back) on error: a batch of work committed once at the end.
func (g *Gateway) WithSession(ctx context.Context, fn func(*Session) error) error {
	sess, err := g.Open(ctx)
	if err != nil {
		return err
	}
	defer sess.Close(ctx)

	if err := fn(sess); err != nil {
		return err
	}
	return sess.Commit(ctx)
}
