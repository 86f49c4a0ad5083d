package workflow

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	dErrors "rxvc/pkg/domain-errors"
	txcontext "rxvc/pkg/platform/tx"
)

// TxRunner provides the transactional boundary for the writes of one
// operation. fn receives the context the stores must use.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Snapshotter is an in-memory store that can capture its contents and put
// them back.
type Snapshotter interface {
	Snapshot() (restore func())
}

// LockTx serializes operations for in-memory stores. Participants are
// snapshotted before fn runs and restored when it fails, so an abandoned
// operation leaves no partial writes.
type LockTx struct {
	mu           sync.Mutex
	participants []Snapshotter
}

// NewLockTx creates a LockTx that rolls back the given stores.
func NewLockTx(participants ...Snapshotter) *LockTx {
	return &LockTx{participants: participants}
}

func (t *LockTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	restores := make([]func(), 0, len(t.participants))
	for _, p := range t.participants {
		restores = append(restores, p.Snapshot())
	}
	if err := fn(ctx); err != nil {
		for i := len(restores) - 1; i >= 0; i-- {
			restores[i]()
		}
		return err
	}
	return nil
}

// SQLTx runs fn inside a database transaction carried on the context, where
// the postgres stores pick it up.
type SQLTx struct {
	db *sql.DB
}

func NewSQLTx(db *sql.DB) *SQLTx {
	return &SQLTx{db: db}
}

func (t *SQLTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Unavailable(storeCollaborator, "begin", err)
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return dErrors.Unavailable(storeCollaborator, "commit", fmt.Errorf("commit: %w", err))
	}
	return nil
}
