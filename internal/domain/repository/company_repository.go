package repository

import (
	"context"

	"github.com/jhoicas/zatca-api/internal/domain/entity"
)

// CompanyRepository define el puerto de persistencia para empresas (tenants).
type CompanyRepository interface {
	Create(ctx context.Context, company *entity.Company) error
	// GetByID devuelve nil, nil si no existe.
	GetByID(ctx context.Context, id string) (*entity.Company, error)
	GetByVATNumber(ctx context.Context, vat string) (*entity.Company, error)
	List(ctx context.Context, limit, offset int) ([]*entity.Company, error)
}
