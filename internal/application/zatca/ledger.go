package zatca

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/zatca-api/internal/domain"
	"github.com/jhoicas/zatca-api/internal/domain/entity"
	"github.com/jhoicas/zatca-api/internal/domain/repository"
	domzatca "github.com/jhoicas/zatca-api/internal/domain/zatca"
	"github.com/jhoicas/zatca-api/pkg/logger"
)

// Paginación del ledger.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// RecordInput datos de un nuevo envío. El contador ICV y el PIH los asigna el ledger.
type RecordInput struct {
	CompanyID      string
	DocumentType   string
	DocumentID     string
	DocumentUUID   string
	XMLHash        string
	QRCode         string
	IssuedAt       time.Time
	TotalWithVAT   decimal.Decimal
	VATTotal       decimal.Decimal
	SubmissionType string
}

// ResultInput respuesta de la CA a aplicar sobre un envío.
type ResultInput struct {
	Status       string
	Response     json.RawMessage
	HTTPStatus   int
	ErrorMessage string
}

// SubmissionLedger registro de envíos con garantía de idempotencia por (documento, hash).
type SubmissionLedger struct {
	subs    repository.SubmissionRepository
	tx      LedgerTxRunner
	metrics Metrics
	log     *logger.Logger
	now     func() time.Time
}

// NewSubmissionLedger construye el ledger. subs es el repo fuera de transacción (consultas y
// actualización de resultados); tx abre la transacción de alta.
func NewSubmissionLedger(subs repository.SubmissionRepository, tx LedgerTxRunner, metrics Metrics, log *logger.Logger) *SubmissionLedger {
	if log == nil {
		log = logger.Nop()
	}
	return &SubmissionLedger{
		subs:    subs,
		tx:      tx,
		metrics: metricsOrNop(metrics),
		log:     log.Component("zatca_ledger"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RecordSubmission crea un envío pending con el siguiente ICV de la empresa y el hash anterior
// como PIH. Si ya existe un envío aceptado del mismo (documento, hash) lo devuelve sin cambios
// y duplicate = true; en ese caso no consume contador.
func (l *SubmissionLedger) RecordSubmission(ctx context.Context, in RecordInput) (rec *entity.SubmissionRecord, duplicate bool, err error) {
	if err := validateRecordInput(in); err != nil {
		return nil, false, err
	}

	err = l.tx.RunLedger(ctx, func(subs repository.SubmissionRepository, counters repository.InvoiceCounterRepository) error {
		if err := subs.LockDocument(ctx, in.CompanyID, in.DocumentID); err != nil {
			return err
		}
		existing, err := subs.FindAccepted(ctx, in.CompanyID, in.DocumentID, in.XMLHash)
		if err != nil {
			return err
		}
		if existing != nil {
			rec, duplicate = existing, true
			return nil
		}

		counter, previousHash, err := counters.Next(ctx, in.CompanyID, in.XMLHash)
		if err != nil {
			return err
		}
		rec = &entity.SubmissionRecord{
			ID:               uuid.New().String(),
			CompanyID:        in.CompanyID,
			DocumentType:     in.DocumentType,
			DocumentID:       in.DocumentID,
			DocumentUUID:     in.DocumentUUID,
			XMLHash:          in.XMLHash,
			PreviousHash:     previousHash,
			QRCode:           in.QRCode,
			IssuedAt:         in.IssuedAt.UTC(),
			TotalWithVAT:     in.TotalWithVAT,
			VATTotal:         in.VATTotal,
			InvoiceCounter:   counter,
			SubmissionType:   in.SubmissionType,
			SubmissionStatus: entity.SubmissionStatusPending,
			CreatedAt:        l.now(),
		}
		return subs.Create(ctx, rec)
	})
	if err != nil {
		return nil, false, err
	}

	if duplicate {
		l.log.Info().Str("company_id", in.CompanyID).Str("document_id", in.DocumentID).
			Str("record_id", rec.ID).Msg("envío idéntico ya aceptado; se devuelve el existente")
	} else {
		l.log.Debug().Str("company_id", in.CompanyID).Str("document_id", in.DocumentID).
			Str("record_id", rec.ID).Int64("icv", rec.InvoiceCounter).Msg("envío registrado")
	}
	return rec, duplicate, nil
}

// UpdateSubmissionResult aplica la respuesta de la CA y fija submitted_at. Un registro ya aceptado
// no cambia más (domain.ErrConflict). Si otro envío del mismo (documento, hash) ya quedó aceptado,
// este se marca error y se devuelve el aceptado junto con domain.ErrDuplicate.
func (l *SubmissionLedger) UpdateSubmissionResult(ctx context.Context, recordID string, res ResultInput) (*entity.SubmissionRecord, error) {
	if err := domzatca.ValidateSubmissionStatus(res.Status); err != nil {
		return nil, err
	}
	rec, err := l.subs.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.ErrNotFound
	}
	if rec.IsAccepted() {
		return nil, domain.ErrConflict
	}

	result := repository.SubmissionResult{
		Status:       res.Status,
		Response:     res.Response,
		HTTPStatus:   res.HTTPStatus,
		ErrorMessage: res.ErrorMessage,
		SubmittedAt:  l.now(),
	}
	err = l.subs.UpdateResult(ctx, recordID, result)
	if errors.Is(err, domain.ErrDuplicate) {
		return l.resolveDuplicate(ctx, rec, result)
	}
	if err != nil {
		return nil, err
	}

	rec.SubmissionStatus = result.Status
	rec.ZatcaResponse = result.Response
	rec.HTTPStatus = result.HTTPStatus
	rec.ErrorMessage = result.ErrorMessage
	submittedAt := result.SubmittedAt
	rec.SubmittedAt = &submittedAt

	l.metrics.ObserveSubmission(rec.SubmissionType, rec.SubmissionStatus)
	l.log.Info().Str("company_id", rec.CompanyID).Str("record_id", rec.ID).Str("type", rec.SubmissionType).
		Str("status", rec.SubmissionStatus).Int("http_status", rec.HTTPStatus).Msg("resultado de envío")
	return rec, nil
}

func (l *SubmissionLedger) resolveDuplicate(ctx context.Context, rec *entity.SubmissionRecord, result repository.SubmissionResult) (*entity.SubmissionRecord, error) {
	accepted, err := l.subs.FindAccepted(ctx, rec.CompanyID, rec.DocumentID, rec.XMLHash)
	if err != nil {
		return nil, err
	}
	if accepted == nil {
		return nil, domain.ErrConflict
	}
	result.Status = entity.SubmissionStatusError
	result.ErrorMessage = "duplicado del envío aceptado " + accepted.ID
	if err := l.subs.UpdateResult(ctx, rec.ID, result); err != nil {
		return nil, err
	}
	l.metrics.ObserveSubmission(rec.SubmissionType, entity.SubmissionStatusError)
	l.log.Warn().Str("company_id", rec.CompanyID).Str("record_id", rec.ID).Str("accepted_id", accepted.ID).
		Msg("envío concurrente aceptado dos veces; se conserva el primero")
	return accepted, domain.ErrDuplicate
}

// List devuelve la página pedida (más recientes primero) y el total. Limit por defecto 20, máximo 100.
func (l *SubmissionLedger) List(ctx context.Context, f repository.SubmissionFilter) ([]*entity.SubmissionRecord, int, error) {
	if f.CompanyID == "" {
		return nil, 0, domzatca.NewValidationError("company_id", "requerido")
	}
	if f.DocumentType != "" {
		if err := domzatca.ValidateDocumentType(f.DocumentType); err != nil {
			return nil, 0, err
		}
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return l.subs.List(ctx, f)
}

// Get devuelve un envío de la empresa. domain.ErrNotFound si no existe o es de otra empresa.
func (l *SubmissionLedger) Get(ctx context.Context, companyID, recordID string) (*entity.SubmissionRecord, error) {
	if _, err := uuid.Parse(recordID); err != nil {
		return nil, domain.ErrNotFound
	}
	rec, err := l.subs.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.CompanyID != companyID {
		return nil, domain.ErrNotFound
	}
	return rec, nil
}

func validateRecordInput(in RecordInput) error {
	switch {
	case in.CompanyID == "":
		return domzatca.NewValidationError("company_id", "requerido")
	case strings.TrimSpace(in.DocumentID) == "":
		return domzatca.NewValidationError("document_id", "requerido")
	case in.XMLHash == "":
		return domzatca.NewValidationError("xml_hash", "requerido")
	}
	if err := domzatca.ValidateDocumentType(in.DocumentType); err != nil {
		return err
	}
	switch in.SubmissionType {
	case entity.SubmissionTypeComplianceCheck, entity.SubmissionTypeReporting, entity.SubmissionTypeClearance:
		return nil
	}
	return domzatca.NewValidationError("submission_type", "usar compliance_check, reporting o clearance")
}
