// Package zatca orquesta el onboarding ZATCA (CSR → compliance → producción) y el envío
// de documentos con su ledger de auditoría e idempotencia.
package zatca

import (
	"context"

	"github.com/jhoicas/zatca-api/internal/domain/repository"
)

// LedgerTxRunner ejecuta fn en una transacción que incluye el ledger y el contador ICV/PIH.
type LedgerTxRunner interface {
	RunLedger(ctx context.Context, fn func(
		subs repository.SubmissionRepository,
		counters repository.InvoiceCounterRepository,
	) error) error
}

// DocumentHasher calcula el invoiceHash (SHA-256 base64) del XML UBL.
type DocumentHasher interface {
	Hash(xml []byte) (string, error)
}

// Metrics contadores de negocio. Puede ser nil.
type Metrics interface {
	ObserveSubmission(submissionType, status string)
	ObserveOnboarding(step, outcome string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveSubmission(string, string) {}
func (nopMetrics) ObserveOnboarding(string, string) {}

func metricsOrNop(m Metrics) Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
