package repository

import (
	"context"

	"github.com/jhoicas/zatca-api/internal/domain/entity"
)

// TenantCertificateRepository define el puerto de persistencia del certificado ZATCA por empresa.
// No hay Delete: los registros se conservan por retención regulatoria.
type TenantCertificateRepository interface {
	// GetByCompanyID devuelve nil, nil si la empresa no ha iniciado el onboarding.
	GetByCompanyID(ctx context.Context, companyID string) (*entity.TenantCertificate, error)

	// Create inserta el registro con Version = 1. domain.ErrDuplicate si la empresa ya tiene uno.
	Create(ctx context.Context, cert *entity.TenantCertificate) error

	// Update escribe todos los campos solo si la versión en BD coincide con cert.Version,
	// y la incrementa. domain.ErrConflict si otra escritura ganó la carrera.
	Update(ctx context.Context, cert *entity.TenantCertificate) error
}
