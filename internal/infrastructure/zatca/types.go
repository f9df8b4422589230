// Package zatca implementa el cliente de la CA de ZATCA (portal Fatoora) y los adaptadores
// técnicos del flujo: hash del XML UBL, cifrado de credenciales y métricas.
package zatca

import (
	"context"
	"encoding/json"
	"strings"
)

// ── Puerto (interfaz) ──────────────────────────────────────────────────────────

// CSIDResult credenciales emitidas por la CA (compliance o producción).
type CSIDResult struct {
	BinarySecurityToken string
	Secret              string
	RequestID           string // vacío en la respuesta de producción si la CA no lo envía
	DispositionMessage  string
}

// DocumentSubmission documento ya preparado (XML, hash) para envío.
type DocumentSubmission struct {
	SubmissionType string // compliance_check | reporting | clearance
	InvoiceHash    string // SHA-256 base64
	UUID           string // cbc:UUID
	InvoiceXML     []byte // XML UBL firmado (se envía en base64)
	Token          string // binarySecurityToken (compliance o producción según el tipo)
	Secret         string
}

// SubmissionResponse respuesta de la CA a un envío aceptado.
type SubmissionResponse struct {
	Status     string // accepted | accepted_with_warnings
	HTTPStatus int
	Body       json.RawMessage
	Warnings   []string
}

// CAClient define el puerto de salida hacia la CA. env selecciona la URL base
// (sandbox | simulation | production); las formas de request/response son idénticas.
// Errores: *zatca.TransportError (reintentable) o *zatca.RejectionError (no reintentable).
type CAClient interface {
	ComplianceCSID(ctx context.Context, env, csr, otp string) (*CSIDResult, error)
	ProductionCSID(ctx context.Context, env, complianceToken, complianceSecret, requestID string) (*CSIDResult, error)
	SubmitDocument(ctx context.Context, env string, doc DocumentSubmission) (*SubmissionResponse, error)
}

// ── Estructuras JSON ──────────────────────────────────────────────────────────

type complianceRequest struct {
	CSR string `json:"csr"` // CSR en base64
}

type productionRequest struct {
	ComplianceRequestID string `json:"compliance_request_id"`
}

type documentRequest struct {
	InvoiceHash string `json:"invoiceHash"`
	UUID        string `json:"uuid"`
	Invoice     string `json:"invoice"` // XML en base64
}

// csidResponse respuesta de /compliance y /production/csids.
type csidResponse struct {
	RequestID           flexibleID `json:"requestID"`
	DispositionMessage  string     `json:"dispositionMessage"`
	BinarySecurityToken string     `json:"binarySecurityToken"`
	Secret              string     `json:"secret"`
}

// flexibleID la CA devuelve requestID como número; algunos proxies lo devuelven como string.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*f = flexibleID(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

type caMessage struct {
	Type     string `json:"type"`
	Code     string `json:"code"`
	Category string `json:"category"`
	Message  string `json:"message"`
	Status   string `json:"status"`
}

type validationResults struct {
	InfoMessages    []caMessage `json:"infoMessages"`
	WarningMessages []caMessage `json:"warningMessages"`
	ErrorMessages   []caMessage `json:"errorMessages"`
	Status          string      `json:"status"` // PASS | WARNING | ERROR
}

type documentResponse struct {
	ValidationResults *validationResults `json:"validationResults"`
	ReportingStatus   string             `json:"reportingStatus"`
	ClearanceStatus   string             `json:"clearanceStatus"`
	ClearedInvoice    string             `json:"clearedInvoice"`
}

// caErrorBody unión de las formas de error observadas en la CA.
type caErrorBody struct {
	ErrorMessage       string             `json:"errorMessage"`
	Message            string             `json:"message"`
	Code               string             `json:"code"`
	DispositionMessage string             `json:"dispositionMessage"`
	Errors             []json.RawMessage  `json:"errors"`
	ValidationResults  *validationResults `json:"validationResults"`
}

// errorMessages extrae los mensajes legibles de un cuerpo de error. Si el cuerpo no es JSON
// devuelve el texto crudo recortado.
func errorMessages(body []byte) []string {
	var eb caErrorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		if s := strings.TrimSpace(string(body)); s != "" {
			return []string{truncate(s, 500)}
		}
		return nil
	}

	var msgs []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			msgs = append(msgs, s)
		}
	}
	add(eb.ErrorMessage)
	if eb.Code != "" && eb.Message != "" {
		add(eb.Code + ": " + eb.Message)
	} else {
		add(eb.Message)
	}
	for _, raw := range eb.Errors {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			add(s)
			continue
		}
		var m caMessage
		if json.Unmarshal(raw, &m) == nil {
			add(formatMessage(m))
		}
	}
	if eb.ValidationResults != nil {
		for _, m := range eb.ValidationResults.ErrorMessages {
			add(formatMessage(m))
		}
	}
	if len(msgs) == 0 {
		add(eb.DispositionMessage)
	}
	return msgs
}

func formatMessage(m caMessage) string {
	if m.Code != "" {
		return m.Code + ": " + m.Message
	}
	return m.Message
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
