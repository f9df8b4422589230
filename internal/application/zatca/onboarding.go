package zatca

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jhoicas/zatca-api/internal/domain"
	"github.com/jhoicas/zatca-api/internal/domain/entity"
	"github.com/jhoicas/zatca-api/internal/domain/repository"
	domzatca "github.com/jhoicas/zatca-api/internal/domain/zatca"
	infrazatca "github.com/jhoicas/zatca-api/internal/infrastructure/zatca"
	"github.com/jhoicas/zatca-api/pkg/logger"
)

// Pasos de onboarding (logs y métricas).
const (
	StepCSR        = "csr"
	StepCompliance = "compliance"
	StepProduction = "production"
)

// OnboardingOrchestrator lleva a la empresa por CSR → compliance → producción.
//
// Reglas:
//   - el estado solo avanza (AdvanceStatus); un fallo deja el registro intacto;
//   - repetir compliance rota las credenciales de compliance; en producción el estado no cambia;
//   - repetir producción reemplaza las credenciales de producción;
//   - las escrituras concurrentes para la misma empresa se resuelven por versión: la perdedora
//     recibe domain.ErrConflict y las credenciales de la ganadora quedan intactas.
type OnboardingOrchestrator struct {
	certRepo    repository.TenantCertificateRepository
	companyRepo repository.CompanyRepository
	ca          infrazatca.CAClient
	metrics     Metrics
	log         *logger.Logger
	defaultEnv  string
}

// NewOnboardingOrchestrator construye el orquestador. defaultEnv se usa cuando RegisterCSR no
// recibe ambiente. metrics y log pueden ser nil.
func NewOnboardingOrchestrator(
	certRepo repository.TenantCertificateRepository,
	companyRepo repository.CompanyRepository,
	ca infrazatca.CAClient,
	defaultEnv string,
	metrics Metrics,
	log *logger.Logger,
) *OnboardingOrchestrator {
	if log == nil {
		log = logger.Nop()
	}
	return &OnboardingOrchestrator{
		certRepo:    certRepo,
		companyRepo: companyRepo,
		ca:          ca,
		metrics:     metricsOrNop(metrics),
		log:         log.Component("zatca_onboarding"),
		defaultEnv:  defaultEnv,
	}
}

// RegisterCSR guarda el CSR de la empresa (none → csr_generated). Sobre un registro existente
// reemplaza el CSR sin tocar estado ni credenciales. El ambiente no puede cambiar una vez
// emitidas credenciales de compliance.
func (o *OnboardingOrchestrator) RegisterCSR(ctx context.Context, companyID, environment, csr string) (*entity.TenantCertificate, error) {
	csr = strings.TrimSpace(csr)
	if csr == "" {
		return nil, domzatca.NewValidationError("csr", "requerido")
	}
	if environment == "" {
		environment = o.defaultEnv
	}
	if err := domzatca.ValidateEnvironment(environment); err != nil {
		return nil, err
	}
	if err := o.ensureCompany(ctx, companyID); err != nil {
		return nil, err
	}

	cert, err := o.certRepo.GetByCompanyID(ctx, companyID)
	if err != nil {
		return nil, err
	}

	if cert == nil {
		cert = &entity.TenantCertificate{
			CompanyID:   companyID,
			Environment: environment,
			CSRContent:  csr,
			Status:      entity.CertificateStatusCSRGenerated,
		}
		if err := o.certRepo.Create(ctx, cert); err != nil {
			if errors.Is(err, domain.ErrDuplicate) {
				o.metrics.ObserveOnboarding(StepCSR, "conflict")
				return nil, domain.ErrConflict
			}
			return nil, err
		}
		o.metrics.ObserveOnboarding(StepCSR, "ok")
		o.log.Info().Str("company_id", companyID).Str("env", environment).Msg("CSR registrado")
		return cert, nil
	}

	if cert.Environment != environment && cert.ComplianceToken != "" {
		o.metrics.ObserveOnboarding(StepCSR, "invalid")
		return nil, domzatca.NewValidationError("environment",
			"no se puede cambiar el ambiente "+cert.Environment+" después de emitir credenciales")
	}
	cert.CSRContent = csr
	cert.Environment = environment
	cert.Status = domzatca.AdvanceStatus(cert.Status, entity.CertificateStatusCSRGenerated)

	if err := o.certRepo.Update(ctx, cert); err != nil {
		o.observeFailure(StepCSR, err)
		return nil, err
	}
	o.metrics.ObserveOnboarding(StepCSR, "ok")
	o.log.Info().Str("company_id", companyID).Str("env", environment).Str("status", cert.Status).Msg("CSR reemplazado")
	return cert, nil
}

// RequestComplianceCSID canjea el CSR guardado y el OTP por credenciales de compliance.
func (o *OnboardingOrchestrator) RequestComplianceCSID(ctx context.Context, companyID, otp string) (*entity.TenantCertificate, error) {
	otp = strings.TrimSpace(otp)
	cert, err := o.certRepo.GetByCompanyID(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if err := domzatca.CheckComplianceStep(cert, otp); err != nil {
		o.metrics.ObserveOnboarding(StepCompliance, "invalid")
		return nil, err
	}

	start := time.Now()
	res, err := o.ca.ComplianceCSID(ctx, cert.Environment, cert.CSRContent, otp)
	if err != nil {
		o.observeFailure(StepCompliance, err)
		o.log.Warn().Err(err).Str("company_id", companyID).Str("env", cert.Environment).Msg("compliance CSID falló")
		return nil, err
	}
	if res.RequestID == "" {
		o.metrics.ObserveOnboarding(StepCompliance, "rejected")
		return nil, &domzatca.RejectionError{
			Operation:  infrazatca.OpComplianceCSID,
			StatusCode: http.StatusBadGateway,
			Messages:   []string{"la CA no devolvió requestID"},
		}
	}

	cert.ComplianceToken = res.BinarySecurityToken
	cert.ComplianceSecret = res.Secret
	cert.ComplianceRequestID = res.RequestID
	cert.DispositionMessage = res.DispositionMessage
	if domzatca.StatusRank(cert.Status) < domzatca.StatusRank(entity.CertificateStatusProduction) {
		cert.Certificate = res.BinarySecurityToken
	}
	cert.Status = domzatca.AdvanceStatus(cert.Status, entity.CertificateStatusCompliance)

	if err := o.certRepo.Update(ctx, cert); err != nil {
		o.observeFailure(StepCompliance, err)
		o.log.Error().Err(err).Str("company_id", companyID).Msg("no se pudieron guardar credenciales de compliance")
		return nil, err
	}
	o.metrics.ObserveOnboarding(StepCompliance, "ok")
	o.log.Info().Str("company_id", companyID).Str("env", cert.Environment).Str("status", cert.Status).
		Str("request_id", cert.ComplianceRequestID).Dur("elapsed", time.Since(start)).Msg("compliance CSID emitido")
	return cert, nil
}

// RequestProductionCSID canjea las credenciales de compliance por las de producción.
// Sin credenciales de compliance falla con ValidationError sin tocar la red.
func (o *OnboardingOrchestrator) RequestProductionCSID(ctx context.Context, companyID string) (*entity.TenantCertificate, error) {
	cert, err := o.certRepo.GetByCompanyID(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if err := domzatca.CheckProductionStep(cert); err != nil {
		o.metrics.ObserveOnboarding(StepProduction, "invalid")
		return nil, err
	}

	res, err := o.ca.ProductionCSID(ctx, cert.Environment, cert.ComplianceToken, cert.ComplianceSecret, cert.ComplianceRequestID)
	if err != nil {
		o.observeFailure(StepProduction, err)
		o.log.Warn().Err(err).Str("company_id", companyID).Str("env", cert.Environment).Msg("production CSID falló")
		return nil, err
	}

	cert.ProductionToken = res.BinarySecurityToken
	cert.ProductionSecret = res.Secret
	cert.Certificate = res.BinarySecurityToken
	cert.DispositionMessage = res.DispositionMessage
	cert.Status = domzatca.AdvanceStatus(cert.Status, entity.CertificateStatusProduction)

	if err := o.certRepo.Update(ctx, cert); err != nil {
		o.observeFailure(StepProduction, err)
		o.log.Error().Err(err).Str("company_id", companyID).Msg("no se pudieron guardar credenciales de producción")
		return nil, err
	}
	o.metrics.ObserveOnboarding(StepProduction, "ok")
	o.log.Info().Str("company_id", companyID).Str("env", cert.Environment).Msg("production CSID emitido")
	return cert, nil
}

// GetStatus devuelve el certificado de la empresa; si no ha iniciado el onboarding, uno vacío
// en estado none. domain.ErrNotFound si la empresa no existe.
func (o *OnboardingOrchestrator) GetStatus(ctx context.Context, companyID string) (*entity.TenantCertificate, error) {
	cert, err := o.certRepo.GetByCompanyID(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if cert != nil {
		return cert, nil
	}
	if err := o.ensureCompany(ctx, companyID); err != nil {
		return nil, err
	}
	return &entity.TenantCertificate{CompanyID: companyID, Status: entity.CertificateStatusNone}, nil
}

func (o *OnboardingOrchestrator) ensureCompany(ctx context.Context, companyID string) error {
	company, err := o.companyRepo.GetByID(ctx, companyID)
	if err != nil {
		return err
	}
	if company == nil {
		return domain.ErrNotFound
	}
	return nil
}

func (o *OnboardingOrchestrator) observeFailure(step string, err error) {
	var (
		rej *domzatca.RejectionError
		val *domzatca.ValidationError
	)
	switch {
	case errors.Is(err, domain.ErrConflict):
		o.metrics.ObserveOnboarding(step, "conflict")
	case errors.As(err, &rej):
		o.metrics.ObserveOnboarding(step, "rejected")
	case errors.As(err, &val):
		o.metrics.ObserveOnboarding(step, "invalid")
	case domzatca.IsRetryable(err):
		o.metrics.ObserveOnboarding(step, "transport")
	default:
		o.metrics.ObserveOnboarding(step, "error")
	}
}
