package core

import (
	"context"

	"github.com/tradeapp/exchange-core/internal/port"
)

// withTx runs fn inside one repository transaction. Any error exit rolls
// back everything fn did; commit happens only when fn returns nil.
func withTx(ctx context.Context, repo port.Repository, fn func(port.Tx) error) error {
	tx, err := repo.BeginTx(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	committed = true
	return nil
}
