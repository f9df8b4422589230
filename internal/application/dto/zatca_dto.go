package dto

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ── Onboarding ───────────────────────────────────────────────────────────────

// RegisterCSRRequest registra el CSR de la empresa. company_id solo lo usan administradores
// que operan sobre otra empresa; por defecto se toma del token.
type RegisterCSRRequest struct {
	CompanyID   string `json:"company_id,omitempty"`
	Environment string `json:"environment" validate:"omitempty,oneof=sandbox simulation production"`
	CSR         string `json:"csr" validate:"required"`
}

// ComplianceCSIDRequest canje del CSR guardado por credenciales de compliance.
type ComplianceCSIDRequest struct {
	CompanyID string `json:"company_id,omitempty"`
	OTP       string `json:"otp" validate:"required,len=6,numeric"`
}

// ProductionCSIDRequest canje de credenciales de compliance por las de producción.
type ProductionCSIDRequest struct {
	CompanyID string `json:"company_id,omitempty"`
}

// CertificateStatusResponse estado del onboarding. Nunca incluye tokens ni secrets.
type CertificateStatusResponse struct {
	CompanyID                string     `json:"company_id"`
	Environment              string     `json:"environment,omitempty"`
	Status                   string     `json:"status"`
	HasCSR                   bool       `json:"has_csr"`
	HasComplianceCredentials bool       `json:"has_compliance_credentials"`
	HasProductionCredentials bool       `json:"has_production_credentials"`
	ComplianceRequestID      string     `json:"compliance_request_id,omitempty"`
	DispositionMessage       string     `json:"disposition_message,omitempty"`
	UpdatedAt                *time.Time `json:"updated_at,omitempty"`
}

// ── Envíos ───────────────────────────────────────────────────────────────────

// SubmitDocumentRequest documento UBL firmado (base64) y los datos del QR.
type SubmitDocumentRequest struct {
	DocumentType   string          `json:"document_type" validate:"required,oneof=invoice credit_note debit_note"`
	DocumentID     string          `json:"document_id" validate:"required"`
	DocumentUUID   string          `json:"document_uuid" validate:"required,uuid"`
	SubmissionType string          `json:"submission_type" validate:"required,oneof=compliance_check reporting clearance"`
	InvoiceXML     string          `json:"invoice_xml" validate:"required,base64"`
	IssuedAt       time.Time       `json:"issued_at" validate:"required"`
	TotalWithVAT   decimal.Decimal `json:"total_with_vat" swaggertype:"string"`
	VATTotal       decimal.Decimal `json:"vat_total" swaggertype:"string"`
}

// SubmissionResponse un registro del ledger.
type SubmissionResponse struct {
	ID             string          `json:"id"`
	CompanyID      string          `json:"company_id"`
	DocumentType   string          `json:"document_type"`
	DocumentID     string          `json:"document_id"`
	DocumentUUID   string          `json:"document_uuid"`
	XMLHash        string          `json:"xml_hash"`
	PreviousHash   string          `json:"previous_hash"`
	QRCode         string          `json:"qr_code"`
	InvoiceCounter int64           `json:"invoice_counter"`
	IssuedAt       time.Time       `json:"issued_at"`
	TotalWithVAT   decimal.Decimal `json:"total_with_vat" swaggertype:"string"`
	VATTotal       decimal.Decimal `json:"vat_total" swaggertype:"string"`
	SubmissionType string          `json:"submission_type"`
	Status         string          `json:"status"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	HTTPStatus     int             `json:"http_status,omitempty"`
	ZatcaResponse  json.RawMessage `json:"zatca_response,omitempty" swaggertype:"object"`
	SubmittedAt    *time.Time      `json:"submitted_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// SubmitDocumentResponse resultado de POST /api/zatca/submissions.
type SubmitDocumentResponse struct {
	Submission SubmissionResponse `json:"submission"`
	Duplicate  bool               `json:"duplicate"`
	Warnings   []string           `json:"warnings,omitempty"`
}

// SubmissionListResponse lista paginada del ledger.
type SubmissionListResponse struct {
	Items []SubmissionResponse `json:"items"`
	Page  PageResponse         `json:"page"`
}
