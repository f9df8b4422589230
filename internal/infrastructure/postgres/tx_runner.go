package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	appzatca "github.com/jhoicas/zatca-api/internal/application/zatca"
	"github.com/jhoicas/zatca-api/internal/domain/repository"
)

// Ensure TxRunner implements appzatca.LedgerTxRunner.
var _ appzatca.LedgerTxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunLedger inicia una transacción con los repos del ledger y del contador atados a ella
// y hace Commit o Rollback según el resultado de fn.
func (r *TxRunner) RunLedger(ctx context.Context, fn func(
	subs repository.SubmissionRepository,
	counters repository.InvoiceCounterRepository,
) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(NewSubmissionRepository(tx), NewInvoiceCounterRepository(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
