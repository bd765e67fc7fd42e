package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

type TxContextKey string

const txKey = TxContextKey("tx-context-key")

type Tx interface {
	Querier
	IsOpen() bool
	// IsOwner reports whether this handle began the transaction. Only the
	// owner commits or rolls back; joined handles are no-ops on both.
	IsOwner() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transaction wraps sqlx.Tx and tracks whether it is still open.
type Transaction struct {
	*sqlx.Tx
	logger ectologger.Logger
	state  *txState
	owner  bool
}

type txState struct {
	closed bool
}

func NewTx(tx *sqlx.Tx, logger ectologger.Logger) Tx {
	return &Transaction{
		Tx:     tx,
		logger: logger,
		state:  &txState{},
		owner:  true,
	}
}

// GetTx returns the transaction carried by ctx when it is still open, wrapped as
// a non-owning handle. Otherwise it begins a new transaction and returns a
// context carrying it.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if parent, ok := txFromContext(ctx); ok {
		return ctx, &Transaction{
			Tx:     parent.Tx,
			logger: parent.logger,
			state:  parent.state,
			owner:  false,
		}, nil
	}

	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Errorf("error while beginning transaction")
		return ctx, nil, fmt.Errorf("error while beginning transaction: %w", err)
	}

	newTx := NewTx(tx, logger).(*Transaction)
	ctx = context.WithValue(ctx, txKey, newTx)
	return ctx, newTx, nil
}

func txFromContext(ctx context.Context) (*Transaction, bool) {
	tx, ok := ctx.Value(txKey).(*Transaction)
	if !ok || tx == nil || !tx.IsOpen() {
		return nil, false
	}
	return tx, true
}

func (t *Transaction) IsOpen() bool {
	return !t.state.closed
}

func (t *Transaction) IsOwner() bool {
	return t.owner
}

func (t *Transaction) Rollback(ctx context.Context) error {
	if t.state.closed || !t.owner {
		return nil
	}

	err := t.Tx.Rollback()
	t.state.closed = true
	if err != nil && err != sql.ErrTxDone {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while rolling back transaction")
		return fmt.Errorf("error while rolling back transaction: %w", err)
	}

	return nil
}

func (t *Transaction) Commit(ctx context.Context) error {
	if t.state.closed || !t.owner {
		return nil
	}

	err := t.Tx.Commit()
	t.state.closed = true
	if err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while committing transaction")
		return fmt.Errorf("error while committing transaction: %w", err)
	}

	return nil
}
