package entity

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Tipos de documento fuente.
const (
	DocumentTypeInvoice    = "invoice"
	DocumentTypeCreditNote = "credit_note"
	DocumentTypeDebitNote  = "debit_note"
)

// Tipos de envío a la CA.
const (
	SubmissionTypeComplianceCheck = "compliance_check" // Validación con credenciales de compliance
	SubmissionTypeReporting       = "reporting"        // Simplificadas (B2C), reporte en 24 h
	SubmissionTypeClearance       = "clearance"        // Estándar (B2B), autorización previa
)

// Estados de un envío.
const (
	SubmissionStatusPending              = "pending"
	SubmissionStatusAccepted             = "accepted"
	SubmissionStatusAcceptedWithWarnings = "accepted_with_warnings"
	SubmissionStatusRejected             = "rejected"
	SubmissionStatusError                = "error"
)

// SubmissionRecord un intento de envío de una factura o nota a la CA.
// Solo los campos de resultado (status, response, error, submitted_at) cambian tras la creación.
type SubmissionRecord struct {
	ID               string
	CompanyID        string
	DocumentType     string
	DocumentID       string
	DocumentUUID     string          // cbc:UUID del XML UBL
	XMLHash          string          // SHA-256 base64 del XML canonicalizado
	PreviousHash     string          // PIH: hash del envío anterior en la cadena del tenant
	QRCode           string          // base64(TLV)
	IssuedAt         time.Time       // Fecha de emisión (tag 3 del QR)
	TotalWithVAT     decimal.Decimal // Tag 4
	VATTotal         decimal.Decimal // Tag 5
	InvoiceCounter   int64           // ICV: consecutivo estricto por tenant
	SubmissionType   string
	SubmissionStatus string
	ErrorMessage     string
	ZatcaResponse    json.RawMessage // Respuesta cruda de la CA (auditoría)
	HTTPStatus       int
	SubmittedAt      *time.Time // nil hasta que la CA responde
	CreatedAt        time.Time
}

// IsAccepted true para accepted y accepted_with_warnings (ambos cuentan para idempotencia).
func (r *SubmissionRecord) IsAccepted() bool {
	return IsAcceptedStatus(r.SubmissionStatus)
}

// IsAcceptedStatus ver IsAccepted.
func IsAcceptedStatus(status string) bool {
	return status == SubmissionStatusAccepted || status == SubmissionStatusAcceptedWithWarnings
}
