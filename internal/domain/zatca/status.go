package zatca

import "github.com/jhoicas/zatca-api/internal/domain/entity"

var statusRank = map[string]int{
	entity.CertificateStatusNone:         0,
	entity.CertificateStatusCSRGenerated: 1,
	entity.CertificateStatusCompliance:   2,
	entity.CertificateStatusProduction:   3,
}

// StatusRank posición del estado en la progresión; -1 si es desconocido.
func StatusRank(status string) int {
	if r, ok := statusRank[status]; ok {
		return r
	}
	return -1
}

// AdvanceStatus devuelve el mayor entre el estado actual y el objetivo.
// Es la única forma de asignar estado: un reintento o rotación nunca baja el estado.
func AdvanceStatus(current, target string) string {
	if StatusRank(target) > StatusRank(current) {
		return target
	}
	return current
}

// CheckComplianceStep valida las precondiciones locales del paso csr_generated → compliance.
func CheckComplianceStep(cert *entity.TenantCertificate, otp string) error {
	if cert == nil || cert.CSRContent == "" {
		return NewValidationError("csr", "no hay CSR registrado para la empresa")
	}
	return ValidateOTP(otp)
}

// CheckProductionStep valida las precondiciones locales del paso compliance → production.
func CheckProductionStep(cert *entity.TenantCertificate) error {
	if cert == nil {
		return NewValidationError("certificate", "la empresa no ha iniciado el onboarding")
	}
	if !cert.HasComplianceCredentials() {
		return NewValidationError("compliance", "faltan token, secret o request id de compliance")
	}
	return nil
}

// CheckSubmissionCredentials valida que el tenant tenga las credenciales que exige el tipo de envío.
// compliance_check usa las de compliance; reporting y clearance las de producción.
func CheckSubmissionCredentials(cert *entity.TenantCertificate, submissionType string) error {
	if cert == nil {
		return NewValidationError("certificate", "la empresa no ha iniciado el onboarding")
	}
	switch submissionType {
	case entity.SubmissionTypeComplianceCheck:
		if cert.ComplianceToken == "" || cert.ComplianceSecret == "" {
			return NewValidationError("compliance", "la empresa no tiene credenciales de compliance")
		}
	case entity.SubmissionTypeReporting, entity.SubmissionTypeClearance:
		if cert.Status != entity.CertificateStatusProduction || !cert.HasProductionCredentials() {
			return NewValidationError("production", "la empresa no tiene credenciales de producción")
		}
	default:
		return NewValidationError("submission_type", "tipo de envío desconocido: "+submissionType)
	}
	return nil
}
