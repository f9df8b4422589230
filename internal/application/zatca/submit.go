package zatca

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/zatca-api/internal/domain"
	"github.com/jhoicas/zatca-api/internal/domain/entity"
	"github.com/jhoicas/zatca-api/internal/domain/repository"
	domzatca "github.com/jhoicas/zatca-api/internal/domain/zatca"
	infrazatca "github.com/jhoicas/zatca-api/internal/infrastructure/zatca"
	"github.com/jhoicas/zatca-api/pkg/logger"
	pkgzatca "github.com/jhoicas/zatca-api/pkg/zatca"
)

// resultTimeout tiempo para guardar el resultado aunque el contexto del request se haya cancelado.
const resultTimeout = 10 * time.Second

// SubmitInput documento UBL ya construido y firmado por el llamador.
type SubmitInput struct {
	CompanyID      string
	DocumentType   string
	DocumentID     string
	DocumentUUID   string
	SubmissionType string
	InvoiceXML     []byte
	IssuedAt       time.Time
	TotalWithVAT   decimal.Decimal
	VATTotal       decimal.Decimal
}

// SubmitOutput resultado del envío.
type SubmitOutput struct {
	Record    *entity.SubmissionRecord
	Duplicate bool     // true si se devolvió un envío aceptado previo sin llamar a la CA
	Warnings  []string // advertencias de validación de la CA
}

// SubmitDocumentUseCase flujo completo: validar → hash → QR → ledger → CA → resultado.
type SubmitDocumentUseCase struct {
	companyRepo repository.CompanyRepository
	certRepo    repository.TenantCertificateRepository
	ledger      *SubmissionLedger
	hasher      DocumentHasher
	ca          infrazatca.CAClient
	log         *logger.Logger
}

// NewSubmitDocumentUseCase construye el caso de uso.
func NewSubmitDocumentUseCase(
	companyRepo repository.CompanyRepository,
	certRepo repository.TenantCertificateRepository,
	ledger *SubmissionLedger,
	hasher DocumentHasher,
	ca infrazatca.CAClient,
	log *logger.Logger,
) *SubmitDocumentUseCase {
	if log == nil {
		log = logger.Nop()
	}
	return &SubmitDocumentUseCase{
		companyRepo: companyRepo,
		certRepo:    certRepo,
		ledger:      ledger,
		hasher:      hasher,
		ca:          ca,
		log:         log.Component("zatca_submit"),
	}
}

// Execute envía el documento. Con un rechazo de la CA devuelve el registro (rejected) junto con
// el *RejectionError; con un fallo de transporte, el registro (error) y el *TransportError.
// Las validaciones locales y la idempotencia se resuelven antes de cualquier llamada de red.
func (uc *SubmitDocumentUseCase) Execute(ctx context.Context, in SubmitInput) (*SubmitOutput, error) {
	if err := validateSubmitInput(in); err != nil {
		return nil, err
	}

	company, err := uc.companyRepo.GetByID(ctx, in.CompanyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, domain.ErrNotFound
	}
	cert, err := uc.certRepo.GetByCompanyID(ctx, in.CompanyID)
	if err != nil {
		return nil, err
	}
	if err := domzatca.CheckSubmissionCredentials(cert, in.SubmissionType); err != nil {
		return nil, err
	}

	xmlHash, err := uc.hasher.Hash(in.InvoiceXML)
	if err != nil {
		return nil, domzatca.NewValidationError("invoice_xml", err.Error())
	}
	qr, err := pkgzatca.EncodeQR(pkgzatca.QRFields{
		SellerName:   company.Name,
		VATNumber:    company.VATNumber,
		Timestamp:    pkgzatca.FormatTimestamp(in.IssuedAt),
		InvoiceTotal: pkgzatca.FormatAmount(in.TotalWithVAT),
		VATTotal:     pkgzatca.FormatAmount(in.VATTotal),
	})
	if err != nil {
		return nil, domzatca.NewValidationError("qr", err.Error())
	}

	rec, duplicate, err := uc.ledger.RecordSubmission(ctx, RecordInput{
		CompanyID:      in.CompanyID,
		DocumentType:   in.DocumentType,
		DocumentID:     in.DocumentID,
		DocumentUUID:   in.DocumentUUID,
		XMLHash:        xmlHash,
		QRCode:         qr,
		IssuedAt:       in.IssuedAt,
		TotalWithVAT:   in.TotalWithVAT,
		VATTotal:       in.VATTotal,
		SubmissionType: in.SubmissionType,
	})
	if err != nil {
		return nil, err
	}
	if duplicate {
		return &SubmitOutput{Record: rec, Duplicate: true}, nil
	}

	token, secret := cert.ComplianceToken, cert.ComplianceSecret
	if in.SubmissionType != entity.SubmissionTypeComplianceCheck {
		token, secret = cert.ProductionToken, cert.ProductionSecret
	}
	resp, caErr := uc.ca.SubmitDocument(ctx, cert.Environment, infrazatca.DocumentSubmission{
		SubmissionType: in.SubmissionType,
		InvoiceHash:    xmlHash,
		UUID:           in.DocumentUUID,
		InvoiceXML:     in.InvoiceXML,
		Token:          token,
		Secret:         secret,
	})

	// El resultado se guarda aunque el request original se haya cancelado.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resultTimeout)
	defer cancel()

	if caErr != nil {
		updated, err := uc.ledger.UpdateSubmissionResult(saveCtx, rec.ID, failureResult(caErr))
		if err != nil {
			uc.log.Error().Err(err).Str("record_id", rec.ID).Msg("no se pudo guardar el fallo del envío")
			return &SubmitOutput{Record: rec}, caErr
		}
		return &SubmitOutput{Record: updated}, caErr
	}

	updated, err := uc.ledger.UpdateSubmissionResult(saveCtx, rec.ID, ResultInput{
		Status:     resp.Status,
		Response:   resp.Body,
		HTTPStatus: resp.HTTPStatus,
	})
	if errors.Is(err, domain.ErrDuplicate) {
		return &SubmitOutput{Record: updated, Duplicate: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &SubmitOutput{Record: updated, Warnings: resp.Warnings}, nil
}

// failureResult traduce el error de la CA al resultado que se guarda en el ledger.
func failureResult(err error) ResultInput {
	var rej *domzatca.RejectionError
	if errors.As(err, &rej) {
		msg := strings.Join(rej.Messages, "; ")
		if msg == "" {
			msg = rej.Error()
		}
		return ResultInput{
			Status:       entity.SubmissionStatusRejected,
			Response:     rej.Body,
			HTTPStatus:   rej.StatusCode,
			ErrorMessage: msg,
		}
	}
	var te *domzatca.TransportError
	if errors.As(err, &te) {
		return ResultInput{
			Status:       entity.SubmissionStatusError,
			Response:     te.Body,
			HTTPStatus:   te.StatusCode,
			ErrorMessage: te.Error(),
		}
	}
	return ResultInput{Status: entity.SubmissionStatusError, ErrorMessage: err.Error()}
}

func validateSubmitInput(in SubmitInput) error {
	if in.CompanyID == "" {
		return domzatca.NewValidationError("company_id", "requerido")
	}
	if err := domzatca.ValidateDocumentType(in.DocumentType); err != nil {
		return err
	}
	switch {
	case strings.TrimSpace(in.DocumentID) == "":
		return domzatca.NewValidationError("document_id", "requerido")
	case strings.TrimSpace(in.DocumentUUID) == "":
		return domzatca.NewValidationError("document_uuid", "requerido")
	case len(in.InvoiceXML) == 0:
		return domzatca.NewValidationError("invoice_xml", "requerido")
	case in.IssuedAt.IsZero():
		return domzatca.NewValidationError("issued_at", "requerido")
	case in.TotalWithVAT.IsNegative():
		return domzatca.NewValidationError("total_with_vat", "no puede ser negativo")
	case in.VATTotal.IsNegative():
		return domzatca.NewValidationError("vat_total", "no puede ser negativo")
	case in.VATTotal.GreaterThan(in.TotalWithVAT):
		return domzatca.NewValidationError("vat_total", "no puede superar el total con IVA")
	}
	return nil
}
