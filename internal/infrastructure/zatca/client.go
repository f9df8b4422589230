package zatca

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jhoicas/zatca-api/internal/domain/entity"
	domzatca "github.com/jhoicas/zatca-api/internal/domain/zatca"
	"github.com/jhoicas/zatca-api/pkg/logger"
)

// ── Constantes de entorno ──────────────────────────────────────────────────────

const (
	baseURLSandbox    = "https://gw-fatoora.zatca.gov.sa/e-invoicing/developer-portal"
	baseURLSimulation = "https://gw-fatoora.zatca.gov.sa/e-invoicing/simulation"
	baseURLProduction = "https://gw-fatoora.zatca.gov.sa/e-invoicing/core"

	pathCompliance         = "/compliance"
	pathProductionCSIDs    = "/production/csids"
	pathComplianceInvoices = "/compliance/invoices"
	pathReporting          = "/invoices/reporting/single"
	pathClearance          = "/invoices/clearance/single"

	acceptVersion = "V2"
	maxBodyBytes  = 1 << 20 // 1 MB
)

// Nombres de operación usados en errores, logs y métricas.
const (
	OpComplianceCSID = "compliance_csid"
	OpProductionCSID = "production_csid"
	OpSubmitDocument = "submit_document"
)

// BaseURL URL base de la CA para el entorno dado.
func BaseURL(env string) (string, error) {
	switch env {
	case entity.EnvironmentSandbox:
		return baseURLSandbox, nil
	case entity.EnvironmentSimulation:
		return baseURLSimulation, nil
	case entity.EnvironmentProduction:
		return baseURLProduction, nil
	default:
		return "", domzatca.NewValidationError("environment", fmt.Sprintf("entorno desconocido %q", env))
	}
}

// ── Implementación HTTP ───────────────────────────────────────────────────────

// ClientConfig parámetros del cliente HTTP.
type ClientConfig struct {
	// BaseURL si no está vacío reemplaza la URL de todos los entornos (tests, proxy).
	BaseURL        string
	RequestTimeout time.Duration // Timeout de cada intento
	Retry          RetryPolicy
	RateLimitRPS   float64 // 0 = sin límite
}

// HTTPClient implementa CAClient sobre la API REST JSON de la CA.
type HTTPClient struct {
	httpClient *http.Client
	cfg        ClientConfig
	limiter    *rate.Limiter
	metrics    *Metrics
	log        *logger.Logger
}

var _ CAClient = (*HTTPClient)(nil)

// NewHTTPClient construye el cliente. metrics puede ser nil.
func NewHTTPClient(cfg ClientConfig, metrics *Metrics, log *logger.Logger) *HTTPClient {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimitRPS > 0 {
		burst := int(cfg.RateLimitRPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}
	return &HTTPClient{
		httpClient: &http.Client{},
		cfg:        cfg,
		limiter:    limiter,
		metrics:    metrics,
		log:        log.Component("zatca_client"),
	}
}

// ── ComplianceCSID ────────────────────────────────────────────────────────────

// ComplianceCSID solicita el certificado de compliance con el CSR (PEM o base64) y el OTP.
func (c *HTTPClient) ComplianceCSID(ctx context.Context, env, csr, otp string) (*CSIDResult, error) {
	payload, err := json.Marshal(complianceRequest{CSR: encodeCSR(csr)})
	if err != nil {
		return nil, fmt.Errorf("zatca: serializar solicitud de compliance: %w", err)
	}
	headers := http.Header{}
	headers.Set("OTP", otp)

	status, body, err := c.call(ctx, OpComplianceCSID, env, pathCompliance, headers, payload)
	if err != nil {
		return nil, err
	}
	return parseCSID(OpComplianceCSID, status, body)
}

// ── ProductionCSID ────────────────────────────────────────────────────────────

// ProductionCSID canjea las credenciales de compliance por el certificado de producción.
func (c *HTTPClient) ProductionCSID(ctx context.Context, env, complianceToken, complianceSecret, requestID string) (*CSIDResult, error) {
	payload, err := json.Marshal(productionRequest{ComplianceRequestID: requestID})
	if err != nil {
		return nil, fmt.Errorf("zatca: serializar solicitud de producción: %w", err)
	}
	headers := http.Header{}
	headers.Set("Authorization", basicAuth(complianceToken, complianceSecret))

	status, body, err := c.call(ctx, OpProductionCSID, env, pathProductionCSIDs, headers, payload)
	if err != nil {
		return nil, err
	}
	return parseCSID(OpProductionCSID, status, body)
}

// ── SubmitDocument ────────────────────────────────────────────────────────────

// SubmitDocument envía el documento al endpoint que corresponde al tipo de envío.
// 200 = aceptado, 202 = aceptado con advertencias; cualquier otro 4xx es un RejectionError.
func (c *HTTPClient) SubmitDocument(ctx context.Context, env string, doc DocumentSubmission) (*SubmissionResponse, error) {
	path, headers, err := documentRoute(doc.SubmissionType)
	if err != nil {
		return nil, err
	}
	headers.Set("Authorization", basicAuth(doc.Token, doc.Secret))
	headers.Set("Accept-Language", "en")

	payload, err := json.Marshal(documentRequest{
		InvoiceHash: doc.InvoiceHash,
		UUID:        doc.UUID,
		Invoice:     base64.StdEncoding.EncodeToString(doc.InvoiceXML),
	})
	if err != nil {
		return nil, fmt.Errorf("zatca: serializar documento: %w", err)
	}

	status, body, err := c.call(ctx, OpSubmitDocument, env, path, headers, payload)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK, http.StatusAccepted:
		var dr documentResponse
		_ = json.Unmarshal(body, &dr)
		out := &SubmissionResponse{
			Status:     entity.SubmissionStatusAccepted,
			HTTPStatus: status,
			Body:       rawJSON(body),
		}
		if dr.ValidationResults != nil {
			for _, m := range dr.ValidationResults.WarningMessages {
				out.Warnings = append(out.Warnings, formatMessage(m))
			}
		}
		if status == http.StatusAccepted || len(out.Warnings) > 0 {
			out.Status = entity.SubmissionStatusAcceptedWithWarnings
		}
		return out, nil
	default:
		return nil, rejection(OpSubmitDocument, status, body)
	}
}

func documentRoute(submissionType string) (string, http.Header, error) {
	h := http.Header{}
	switch submissionType {
	case entity.SubmissionTypeComplianceCheck:
		return pathComplianceInvoices, h, nil
	case entity.SubmissionTypeReporting:
		h.Set("Clearance-Status", "0")
		return pathReporting, h, nil
	case entity.SubmissionTypeClearance:
		h.Set("Clearance-Status", "1")
		return pathClearance, h, nil
	default:
		return "", nil, domzatca.NewValidationError("submission_type", fmt.Sprintf("tipo de envío desconocido %q", submissionType))
	}
}

// ── Transporte ────────────────────────────────────────────────────────────────

// call ejecuta el POST con límite de tasa, timeout por intento y reintentos acotados.
// Devuelve status y cuerpo para cualquier respuesta < 500 distinta de 429; los 5xx, 429 y
// fallos de red agotados se devuelven como *TransportError.
func (c *HTTPClient) call(ctx context.Context, op, env, path string, headers http.Header, payload []byte) (int, []byte, error) {
	base := c.cfg.BaseURL
	if base == "" {
		var err error
		if base, err = BaseURL(env); err != nil {
			return 0, nil, err
		}
	}
	url := strings.TrimRight(base, "/") + path

	attempts := c.cfg.Retry.attempts()
	var lastErr *domzatca.TransportError
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, &domzatca.TransportError{Operation: op, Err: err}
		}

		start := time.Now()
		status, body, err := c.do(ctx, url, headers, payload)
		elapsed := time.Since(start)

		switch {
		case err != nil:
			lastErr = &domzatca.TransportError{Operation: op, Err: err}
		case status >= http.StatusInternalServerError || status == http.StatusTooManyRequests:
			lastErr = &domzatca.TransportError{
				Operation:  op,
				StatusCode: status,
				Body:       rawJSON(body),
				Err:        errors.New(strings.Join(errorMessages(body), "; ")),
			}
		default:
			outcome := "ok"
			if status >= http.StatusBadRequest {
				outcome = "rejected"
			}
			c.metrics.observeRequest(op, outcome, elapsed)
			c.log.Debug().Str("operation", op).Str("env", env).Int("status", status).
				Int("attempt", attempt).Dur("elapsed", elapsed).Msg("respuesta de la CA")
			return status, body, nil
		}

		c.metrics.observeRequest(op, "transport_error", elapsed)
		c.log.Warn().Err(lastErr).Str("operation", op).Str("env", env).
			Int("attempt", attempt).Int("max_attempts", attempts).Msg("fallo de transporte con la CA")

		if attempt == attempts || ctx.Err() != nil {
			break
		}
		if err := sleepCtx(ctx, c.cfg.Retry.Backoff(attempt)); err != nil {
			break
		}
	}
	return 0, nil, lastErr
}

// do un único intento HTTP con su propio timeout.
func (c *HTTPClient) do(ctx context.Context, url string, headers http.Header, payload []byte) (int, []byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("crear request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Version", acceptVersion)
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if attemptCtx.Err() != nil {
			return 0, nil, fmt.Errorf("timeout o cancelación: %w", attemptCtx.Err())
		}
		return 0, nil, fmt.Errorf("llamada HTTP fallida: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("leer respuesta: %w", err)
	}
	return resp.StatusCode, body, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func parseCSID(op string, status int, body []byte) (*CSIDResult, error) {
	if status != http.StatusOK {
		return nil, rejection(op, status, body)
	}
	var r csidResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, &domzatca.TransportError{
			Operation:  op,
			StatusCode: http.StatusBadGateway,
			Body:       rawJSON(body),
			Err:        fmt.Errorf("respuesta ilegible: %w", err),
		}
	}
	if r.BinarySecurityToken == "" || r.Secret == "" {
		return nil, &domzatca.RejectionError{
			Operation:  op,
			StatusCode: http.StatusBadGateway,
			Messages:   append([]string{"la respuesta no contiene credenciales"}, errorMessages(body)...),
			Body:       rawJSON(body),
		}
	}
	return &CSIDResult{
		BinarySecurityToken: r.BinarySecurityToken,
		Secret:              r.Secret,
		RequestID:           string(r.RequestID),
		DispositionMessage:  r.DispositionMessage,
	}, nil
}

// rejection un 2xx/3xx inesperado se reporta como 502: el error nunca sale con status de éxito.
func rejection(op string, status int, body []byte) error {
	if status < http.StatusBadRequest {
		status = http.StatusBadGateway
	}
	return &domzatca.RejectionError{
		Operation:  op,
		StatusCode: status,
		Messages:   errorMessages(body),
		Body:       rawJSON(body),
	}
}

// encodeCSR la CA espera el PEM completo en base64. Si ya viene en base64 se envía tal cual.
func encodeCSR(csr string) string {
	csr = strings.TrimSpace(csr)
	if strings.HasPrefix(csr, "-----BEGIN") {
		return base64.StdEncoding.EncodeToString([]byte(csr + "\n"))
	}
	return csr
}

func basicAuth(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

// rawJSON conserva el cuerpo si es JSON válido; si no, lo envuelve como string JSON.
func rawJSON(body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return json.RawMessage(append([]byte(nil), body...))
	}
	b, _ := json.Marshal(truncate(string(body), 2000))
	return b
}
