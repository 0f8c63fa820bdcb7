// Package synccount implements the sync counter engine: the per-object-class
// monotonic counter with pending/committed sessions, expiry reaping, and
// committed-watermark computation that is the hardest part of this system.
package synccount

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog/log"

	"github.com/relaysync/relaysync-api/internal/storage"
)

// ErrWindowTooSmall is returned by NewEngine when constructed with an
// expiry window below the mandated floor.
var ErrWindowTooSmall = errors.New("synccount: expiry window below floor")

// MinExpiryWindow mirrors config.MinExpiryWindow; duplicated here (rather
// than imported) so this package has no dependency on internal/config,
// keeping the core algorithm testable in isolation.
const MinExpiryWindow = 20 * time.Minute

// Engine provides Reserve/MarkCommitted/CommittedWatermark for a relational
// SyncCount table reached through a storage.Gateway.
type Engine struct {
	gw     *storage.Gateway
	window time.Duration
}

// NewEngine constructs an Engine. It rejects a window narrower than
// MinExpiryWindow at construction time: a window smaller than the longest
// plausible upload duration would reap sessions still in flight.
func NewEngine(gw *storage.Gateway, window time.Duration) (*Engine, error) {
	if window < MinExpiryWindow {
		return nil, ErrWindowTooSmall
	}
	return &Engine{gw: gw, window: window}, nil
}

// Reserve performs the five-step session reservation for object class C,
// returning the newly assigned sessionSyncCount. Step 1 (reap) runs in its
// own transaction, and steps 2-3 (insert, commit) and steps 4-5 (cleanup,
// commit) run as two further, *separate* storage.Session transactions —
// the latter two must never be collapsed into one,
// since doing so silently reintroduces a serialization bottleneck on every
// uploader for the class.
func (e *Engine) Reserve(ctx context.Context, class string) (int64, error) {
	if err := e.reapExpired(ctx, class); err != nil {
		return 0, err
	}

	sessionSyncCount, err := e.insertSession(ctx, class)
	if err != nil {
		return 0, err
	}

	if err := e.cleanupTrailing(ctx, class, sessionSyncCount); err != nil {
		// The session is already reserved and visible; a failed cleanup
		// only delays steady-state compaction, so it is logged, not fatal.
		log.Ctx(ctx).Warn().Err(err).Str("object_class", class).
			Int64("sync_count", sessionSyncCount).
			Msg("trailing cleanup failed after session reservation")
	}

	return sessionSyncCount, nil
}

// reapExpired is step 1: flip isCommitted=1 for every row of class whose
// createdAt lies outside the expiry window of the storage engine's current
// time. All session time arithmetic here uses NOW() from a single query so
// that server and database clocks are never mixed.
func (e *Engine) reapExpired(ctx context.Context, class string) error {
	// The window must reach the driver as an interval value; a raw
	// time.Duration has no interval encode plan in pgx.
	window := pgtype.Interval{Microseconds: e.window.Microseconds(), Valid: true}
	return e.gw.WithSession(ctx, func(sess *storage.Session) error {
		tag, err := sess.Exec(ctx, `
			UPDATE sync_count
			SET is_committed = TRUE
			WHERE object_class = $1
			  AND is_committed = FALSE
			  AND (created_at < NOW() - $2::interval OR created_at > NOW() + $2::interval)`,
			class, window)
		if err != nil {
			return err
		}
		if tag.RowsAffected() > 0 {
			log.Ctx(ctx).Warn().
				Str("object_class", class).
				Int64("rows_reaped", tag.RowsAffected()).
				Msg("expiry reaping flipped stale sessions to committed")
		}
		return nil
	})
}

// insertSession is steps 2-3: insert the new row and commit immediately,
// retrieving the assigned syncCount via RETURNING rather than reading the
// table back. The immediate commit is critical: it makes the reservation
// visible to concurrent uploaders before the (slower) trailing cleanup runs.
func (e *Engine) insertSession(ctx context.Context, class string) (int64, error) {
	sess, err := e.gw.Open(ctx)
	if err != nil {
		return 0, err
	}
	defer sess.Close(ctx)

	var syncCount int64
	row := sess.QueryRow(ctx,
		`INSERT INTO sync_count (object_class, is_committed) VALUES ($1, FALSE) RETURNING sync_count`,
		class)
	if err := row.Scan(&syncCount); err != nil {
		return 0, err
	}

	if err := sess.Commit(ctx); err != nil {
		return 0, err
	}
	return syncCount, nil
}

// cleanupTrailing is steps 4-5: delete every committed row for class with
// syncCount strictly below thisSession's, then commit. This is its own
// transaction, separate from insertSession's — see the Reserve doc comment.
func (e *Engine) cleanupTrailing(ctx context.Context, class string, sessionSyncCount int64) error {
	sess, err := e.gw.Open(ctx)
	if err != nil {
		return err
	}
	defer sess.Close(ctx)

	_, err = sess.Exec(ctx,
		`DELETE FROM sync_count WHERE object_class = $1 AND sync_count < $2 AND is_committed = TRUE`,
		class, sessionSyncCount)
	if err != nil {
		return err
	}
	return sess.Commit(ctx)
}

// MarkCommitted flips isCommitted=1 for syncCount within sess — the
// caller's own data transaction — so the flip commits atomically with the
// uploaded rows. Callers that cannot ride an existing transaction should
// use MarkCommittedWithRetry instead.
func (e *Engine) MarkCommitted(ctx context.Context, sess *storage.Session, class string, syncCount int64) error {
	_, err := sess.Exec(ctx,
		`UPDATE sync_count SET is_committed = TRUE WHERE object_class = $1 AND sync_count = $2`,
		class, syncCount)
	return err
}

// MarkCommittedWithRetry marks syncCount committed out-of-band, with
// exponential retry, for the case where the atomic in-transaction update
// cannot ride the data transaction: the caller must retry the update
// out-of-band after a data-transaction failure so that no session row
// remains indefinitely uncommitted.
func (e *Engine) MarkCommittedWithRetry(ctx context.Context, class string, syncCount int64) error {
	policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	return backoff.Retry(func() error {
		return e.gw.WithSession(ctx, func(sess *storage.Session) error {
			return e.MarkCommitted(ctx, sess, class, syncCount)
		})
	}, policy)
}

// CommittedWatermark computes committedSyncCount(C) in one round trip via a
// CASE-over-aggregate statement. The object-class parameter is deliberately
// bound to two distinct positional placeholders (one for the
// uncommitted-set filter, one for the fallback-max filter) rather than
// collapsed into a single reused parameter; this shape is preserved
// intentionally rather than simplified.
func (e *Engine) CommittedWatermark(ctx context.Context, class string) (int64, error) {
	row := e.gw.Pool().QueryRow(ctx, `
		SELECT CASE
			WHEN EXISTS (SELECT 1 FROM sync_count WHERE object_class = $1 AND is_committed = FALSE)
				THEN (SELECT MIN(sync_count) - 1 FROM sync_count WHERE object_class = $1 AND is_committed = FALSE)
			ELSE COALESCE((SELECT MAX(sync_count) FROM sync_count WHERE object_class = $2), 0)
		END`, class, class)

	var watermark int64
	if err := row.Scan(&watermark); err != nil {
		return 0, storage.Classify(err)
	}
	return watermark, nil
}
