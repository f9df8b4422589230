package http

import (
	"encoding/base64"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/zatca-api/internal/application/dto"
	appzatca "github.com/jhoicas/zatca-api/internal/application/zatca"
	"github.com/jhoicas/zatca-api/internal/domain/entity"
	"github.com/jhoicas/zatca-api/internal/domain/repository"
	"github.com/jhoicas/zatca-api/pkg/jwt"
)

// ZatcaHandler onboarding ZATCA y envío de documentos (protegido).
type ZatcaHandler struct {
	onboarding *appzatca.OnboardingOrchestrator
	submit     *appzatca.SubmitDocumentUseCase
	ledger     *appzatca.SubmissionLedger
}

// NewZatcaHandler construye el handler.
func NewZatcaHandler(onboarding *appzatca.OnboardingOrchestrator, submit *appzatca.SubmitDocumentUseCase, ledger *appzatca.SubmissionLedger) *ZatcaHandler {
	return &ZatcaHandler{onboarding: onboarding, submit: submit, ledger: ledger}
}

// targetCompany empresa sobre la que se opera: la del token, u otra si el usuario es admin.
func targetCompany(c *fiber.Ctx, requested string) (string, bool) {
	own := GetCompanyID(c)
	if requested == "" || requested == own {
		return own, own != ""
	}
	return requested, GetRole(c) == jwt.RoleAdmin
}

// RegisterCSR godoc
// @Summary      Registrar CSR de la empresa
// @Tags         zatca-onboarding
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body  dto.RegisterCSRRequest  true  "CSR en PEM o base64"
// @Success      200   {object}  dto.CertificateStatusResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      422   {object}  dto.ErrorResponse
// @Router       /api/zatca/onboarding/csr [post]
func (h *ZatcaHandler) RegisterCSR(c *fiber.Ctx) error {
	var in dto.RegisterCSRRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	companyID, ok := targetCompany(c, in.CompanyID)
	if !ok {
		return unauthorized(c)
	}
	cert, err := h.onboarding.RegisterCSR(c.UserContext(), companyID, in.Environment, in.CSR)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toCertificateStatus(cert))
}

// RequestCompliance godoc
// @Summary      Canjear CSR + OTP por credenciales de compliance
// @Tags         zatca-onboarding
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body  dto.ComplianceCSIDRequest  true  "OTP del portal Fatoora"
// @Success      200   {object}  dto.CertificateStatusResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      422   {object}  dto.ErrorResponse
// @Failure      500   {object}  dto.ErrorResponse
// @Router       /api/zatca/onboarding/compliance [post]
func (h *ZatcaHandler) RequestCompliance(c *fiber.Ctx) error {
	var in dto.ComplianceCSIDRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	companyID, ok := targetCompany(c, in.CompanyID)
	if !ok {
		return unauthorized(c)
	}
	cert, err := h.onboarding.RequestComplianceCSID(c.UserContext(), companyID, in.OTP)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toCertificateStatus(cert))
}

// RequestProduction godoc
// @Summary      Canjear credenciales de compliance por las de producción
// @Tags         zatca-onboarding
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body  dto.ProductionCSIDRequest  false  "Empresa (solo admin)"
// @Success      200   {object}  dto.CertificateStatusResponse
// @Failure      422   {object}  dto.ErrorResponse
// @Failure      500   {object}  dto.ErrorResponse
// @Router       /api/zatca/onboarding/production [post]
func (h *ZatcaHandler) RequestProduction(c *fiber.Ctx) error {
	var in dto.ProductionCSIDRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return badBody(c)
		}
	}
	companyID, ok := targetCompany(c, in.CompanyID)
	if !ok {
		return unauthorized(c)
	}
	cert, err := h.onboarding.RequestProductionCSID(c.UserContext(), companyID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toCertificateStatus(cert))
}

// Status godoc
// @Summary      Estado del onboarding
// @Tags         zatca-onboarding
// @Produce      json
// @Security     BearerAuth
// @Param        company_id  query  string  false  "Empresa (solo admin)"
// @Success      200  {object}  dto.CertificateStatusResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/zatca/onboarding/status [get]
func (h *ZatcaHandler) Status(c *fiber.Ctx) error {
	companyID, ok := targetCompany(c, c.Query("company_id"))
	if !ok {
		return unauthorized(c)
	}
	cert, err := h.onboarding.GetStatus(c.UserContext(), companyID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toCertificateStatus(cert))
}

// Submit godoc
// @Summary      Enviar factura o nota a ZATCA (reporting, clearance o compliance)
// @Tags         zatca-submissions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body  dto.SubmitDocumentRequest  true  "Documento UBL firmado en base64"
// @Success      200   {object}  dto.SubmitDocumentResponse  "Duplicado: envío aceptado previo"
// @Success      201   {object}  dto.SubmitDocumentResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      422   {object}  dto.ErrorResponse
// @Failure      500   {object}  dto.ErrorResponse
// @Router       /api/zatca/submissions [post]
func (h *ZatcaHandler) Submit(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return unauthorized(c)
	}
	var in dto.SubmitDocumentRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	xml, err := base64.StdEncoding.DecodeString(in.InvoiceXML)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "invoice_xml debe ir en base64"})
	}

	out, err := h.submit.Execute(c.UserContext(), appzatca.SubmitInput{
		CompanyID:      companyID,
		DocumentType:   in.DocumentType,
		DocumentID:     in.DocumentID,
		DocumentUUID:   in.DocumentUUID,
		SubmissionType: in.SubmissionType,
		InvoiceXML:     xml,
		IssuedAt:       in.IssuedAt,
		TotalWithVAT:   in.TotalWithVAT,
		VATTotal:       in.VATTotal,
	})
	if err != nil {
		status, body := errorResponse(err)
		if out != nil && out.Record != nil {
			body.SubmissionID = out.Record.ID
		}
		return c.Status(status).JSON(body)
	}
	status := fiber.StatusCreated
	if out.Duplicate {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(dto.SubmitDocumentResponse{
		Submission: toSubmissionResponse(out.Record),
		Duplicate:  out.Duplicate,
		Warnings:   out.Warnings,
	})
}

// ListSubmissions godoc
// @Summary      Consultar el ledger de envíos
// @Tags         zatca-submissions
// @Produce      json
// @Security     BearerAuth
// @Param        document_type  query  string  false  "invoice | credit_note | debit_note"
// @Param        document_id    query  string  false  "ID del documento"
// @Param        status         query  string  false  "Estado del envío"
// @Param        limit          query  int     false  "Límite"  default(20)
// @Param        offset         query  int     false  "Offset"  default(0)
// @Success      200  {object}  dto.SubmissionListResponse
// @Router       /api/zatca/submissions [get]
func (h *ZatcaHandler) ListSubmissions(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return unauthorized(c)
	}
	filter := repository.SubmissionFilter{
		CompanyID:    companyID,
		DocumentType: c.Query("document_type"),
		DocumentID:   c.Query("document_id"),
		Status:       c.Query("status"),
		Limit:        c.QueryInt("limit", appzatca.DefaultPageSize),
		Offset:       c.QueryInt("offset", 0),
	}
	recs, total, err := h.ledger.List(c.UserContext(), filter)
	if err != nil {
		return writeError(c, err)
	}
	items := make([]dto.SubmissionResponse, 0, len(recs))
	for _, r := range recs {
		items = append(items, toSubmissionResponse(r))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = appzatca.DefaultPageSize
	}
	if limit > appzatca.MaxPageSize {
		limit = appzatca.MaxPageSize
	}
	return c.JSON(dto.SubmissionListResponse{
		Items: items,
		Page:  dto.PageResponse{Limit: limit, Offset: filter.Offset, Total: total},
	})
}

// GetSubmission godoc
// @Summary      Obtener un envío
// @Tags         zatca-submissions
// @Produce      json
// @Security     BearerAuth
// @Param        id   path  string  true  "ID del envío"
// @Success      200  {object}  dto.SubmissionResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/zatca/submissions/{id} [get]
func (h *ZatcaHandler) GetSubmission(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return unauthorized(c)
	}
	rec, err := h.ledger.Get(c.UserContext(), companyID, c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toSubmissionResponse(rec))
}

func toCertificateStatus(cert *entity.TenantCertificate) dto.CertificateStatusResponse {
	out := dto.CertificateStatusResponse{
		CompanyID:                cert.CompanyID,
		Environment:              cert.Environment,
		Status:                   cert.Status,
		HasCSR:                   cert.CSRContent != "",
		HasComplianceCredentials: cert.HasComplianceCredentials(),
		HasProductionCredentials: cert.HasProductionCredentials(),
		ComplianceRequestID:      cert.ComplianceRequestID,
		DispositionMessage:       cert.DispositionMessage,
	}
	if !cert.UpdatedAt.IsZero() {
		updated := cert.UpdatedAt
		out.UpdatedAt = &updated
	}
	return out
}

func toSubmissionResponse(r *entity.SubmissionRecord) dto.SubmissionResponse {
	return dto.SubmissionResponse{
		ID:             r.ID,
		CompanyID:      r.CompanyID,
		DocumentType:   r.DocumentType,
		DocumentID:     r.DocumentID,
		DocumentUUID:   r.DocumentUUID,
		XMLHash:        r.XMLHash,
		PreviousHash:   r.PreviousHash,
		QRCode:         r.QRCode,
		InvoiceCounter: r.InvoiceCounter,
		IssuedAt:       r.IssuedAt,
		TotalWithVAT:   r.TotalWithVAT,
		VATTotal:       r.VATTotal,
		SubmissionType: r.SubmissionType,
		Status:         r.SubmissionStatus,
		ErrorMessage:   r.ErrorMessage,
		HTTPStatus:     r.HTTPStatus,
		ZatcaResponse:  r.ZatcaResponse,
		SubmittedAt:    r.SubmittedAt,
		CreatedAt:      r.CreatedAt,
	}
}
