package entity

import "time"

// Ambientes del portal Fatoora. Determinan la URL base de la CA y nada más.
const (
	EnvironmentSandbox    = "sandbox"
	EnvironmentSimulation = "simulation"
	EnvironmentProduction = "production"
)

// Estados del onboarding. Progresión monótona: none → csr_generated → compliance → production.
const (
	CertificateStatusNone         = "none"
	CertificateStatusCSRGenerated = "csr_generated"
	CertificateStatusCompliance   = "compliance"
	CertificateStatusProduction   = "production"
)

// TenantCertificate credenciales ZATCA de una empresa (una fila por empresa, nunca se borra).
type TenantCertificate struct {
	ID          string
	CompanyID   string
	Environment string
	CSRContent  string
	Status      string

	// Certificate es el binarySecurityToken activo: el de compliance tras el paso 1,
	// el de producción tras el paso 2.
	Certificate string

	ComplianceToken     string
	ComplianceSecret    string
	ComplianceRequestID string

	ProductionToken  string
	ProductionSecret string

	DispositionMessage string // Último dispositionMessage devuelto por la CA

	// Version se incrementa en cada escritura; el repositorio rechaza escrituras con versión vieja.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasComplianceCredentials indica si están los tres campos que exige el paso de producción.
func (c *TenantCertificate) HasComplianceCredentials() bool {
	return c.ComplianceToken != "" && c.ComplianceSecret != "" && c.ComplianceRequestID != ""
}

// HasProductionCredentials indica si el tenant puede reportar o autorizar facturas.
func (c *TenantCertificate) HasProductionCredentials() bool {
	return c.ProductionToken != "" && c.ProductionSecret != ""
}
