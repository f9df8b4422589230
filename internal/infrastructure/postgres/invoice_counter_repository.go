package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/zatca-api/internal/domain/repository"
	"github.com/jhoicas/zatca-api/pkg/zatca"
)

var _ repository.InvoiceCounterRepository = (*InvoiceCounterRepo)(nil)

// InvoiceCounterRepo contador ICV y último hash (PIH) por empresa. Debe usarse dentro de una tx:
// el bloqueo de fila dura hasta el commit.
type InvoiceCounterRepo struct {
	q Querier
}

// NewInvoiceCounterRepository construye el adaptador. Pasar la tx del ledger.
func NewInvoiceCounterRepository(q Querier) *InvoiceCounterRepo {
	return &InvoiceCounterRepo{q: q}
}

// Next incrementa el contador bajo SELECT ... FOR UPDATE y deja xmlHash como último hash.
func (r *InvoiceCounterRepo) Next(ctx context.Context, companyID, xmlHash string) (int64, string, error) {
	if _, err := r.q.Exec(ctx, `
		INSERT INTO zatca_invoice_counters (company_id, last_counter, last_hash)
		VALUES ($1, 0, $2)
		ON CONFLICT (company_id) DO NOTHING`, companyID, zatca.InitialPreviousHash); err != nil {
		return 0, "", fmt.Errorf("init invoice counter: %w", err)
	}

	var (
		last     int64
		lastHash string
	)
	if err := r.q.QueryRow(ctx, `
		SELECT last_counter, last_hash FROM zatca_invoice_counters
		WHERE company_id = $1
		FOR UPDATE`, companyID).Scan(&last, &lastHash); err != nil {
		return 0, "", fmt.Errorf("lock invoice counter: %w", err)
	}

	next := last + 1
	if _, err := r.q.Exec(ctx, `
		UPDATE zatca_invoice_counters
		SET last_counter = $2, last_hash = $3, updated_at = now()
		WHERE company_id = $1`, companyID, next, xmlHash); err != nil {
		return 0, "", fmt.Errorf("update invoice counter: %w", err)
	}
	return next, lastHash, nil
}
