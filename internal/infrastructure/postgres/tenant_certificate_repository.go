package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/zatca-api/internal/domain"
	"github.com/jhoicas/zatca-api/internal/domain/entity"
	"github.com/jhoicas/zatca-api/internal/domain/repository"
)

var _ repository.TenantCertificateRepository = (*TenantCertificateRepo)(nil)

// SecretSealer cifra y descifra los secrets de la CA antes de tocar la BD.
type SecretSealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// TenantCertificateRepo implementación de TenantCertificateRepository sobre PostgreSQL.
// Los secrets de compliance y producción se guardan sellados.
type TenantCertificateRepo struct {
	q      Querier
	sealer SecretSealer
}

// NewTenantCertificateRepository construye el adaptador. Pasar pool o tx (Querier).
func NewTenantCertificateRepository(q Querier, sealer SecretSealer) *TenantCertificateRepo {
	return &TenantCertificateRepo{q: q, sealer: sealer}
}

const certificateColumns = `id, company_id, environment, csr_content, status, certificate,
	compliance_token, compliance_secret, compliance_request_id,
	production_token, production_secret, disposition_message, version, created_at, updated_at`

// GetByCompanyID devuelve el certificado de la empresa o nil, nil si no existe.
func (r *TenantCertificateRepo) GetByCompanyID(ctx context.Context, companyID string) (*entity.TenantCertificate, error) {
	var c entity.TenantCertificate
	err := r.q.QueryRow(ctx,
		`SELECT `+certificateColumns+` FROM tenant_certificates WHERE company_id = $1`, companyID,
	).Scan(
		&c.ID, &c.CompanyID, &c.Environment, &c.CSRContent, &c.Status, &c.Certificate,
		&c.ComplianceToken, &c.ComplianceSecret, &c.ComplianceRequestID,
		&c.ProductionToken, &c.ProductionSecret, &c.DispositionMessage, &c.Version,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tenant certificate: %w", err)
	}
	if c.ComplianceSecret, err = r.sealer.Open(c.ComplianceSecret); err != nil {
		return nil, fmt.Errorf("abrir compliance secret: %w", err)
	}
	if c.ProductionSecret, err = r.sealer.Open(c.ProductionSecret); err != nil {
		return nil, fmt.Errorf("abrir production secret: %w", err)
	}
	return &c, nil
}

// Create inserta el certificado con versión 1.
func (r *TenantCertificateRepo) Create(ctx context.Context, cert *entity.TenantCertificate) error {
	if cert.ID == "" {
		cert.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if cert.CreatedAt.IsZero() {
		cert.CreatedAt = now
	}
	cert.UpdatedAt = now

	compSecret, prodSecret, err := r.sealSecrets(cert)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tenant_certificates (` + certificateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1, $13, $14)`
	_, err = r.q.Exec(ctx, query,
		cert.ID, cert.CompanyID, cert.Environment, cert.CSRContent, cert.Status, cert.Certificate,
		cert.ComplianceToken, compSecret, cert.ComplianceRequestID,
		cert.ProductionToken, prodSecret, cert.DispositionMessage,
		cert.CreatedAt, cert.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert tenant certificate: %w", err)
	}
	cert.Version = 1
	return nil
}

// Update escribe el registro completo si la versión coincide (bloqueo optimista) y la incrementa.
func (r *TenantCertificateRepo) Update(ctx context.Context, cert *entity.TenantCertificate) error {
	compSecret, prodSecret, err := r.sealSecrets(cert)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	query := `
		UPDATE tenant_certificates
		SET environment           = $3,
		    csr_content           = $4,
		    status                = $5,
		    certificate           = $6,
		    compliance_token      = $7,
		    compliance_secret     = $8,
		    compliance_request_id = $9,
		    production_token      = $10,
		    production_secret     = $11,
		    disposition_message   = $12,
		    version               = version + 1,
		    updated_at            = $13
		WHERE company_id = $1 AND version = $2`
	cmd, err := r.q.Exec(ctx, query,
		cert.CompanyID, cert.Version,
		cert.Environment, cert.CSRContent, cert.Status, cert.Certificate,
		cert.ComplianceToken, compSecret, cert.ComplianceRequestID,
		cert.ProductionToken, prodSecret, cert.DispositionMessage, now,
	)
	if err != nil {
		return fmt.Errorf("update tenant certificate: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	cert.Version++
	cert.UpdatedAt = now
	return nil
}

func (r *TenantCertificateRepo) sealSecrets(cert *entity.TenantCertificate) (string, string, error) {
	comp, err := r.sealer.Seal(cert.ComplianceSecret)
	if err != nil {
		return "", "", fmt.Errorf("sellar compliance secret: %w", err)
	}
	prod, err := r.sealer.Seal(cert.ProductionSecret)
	if err != nil {
		return "", "", fmt.Errorf("sellar production secret: %w", err)
	}
	return comp, prod, nil
}
