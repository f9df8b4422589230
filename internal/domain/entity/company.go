package entity

import "time"

// Company representa una organización/tenant del sistema (multi-tenant, enfoque Arabia Saudita).
// Es la fuente de los tags 1 y 2 del QR: nombre del vendedor y número de registro IVA.
type Company struct {
	ID        string
	Name      string
	VATNumber string // Número de registro IVA ZATCA (15 dígitos, inicia y termina en 3)
	CRNumber  string // Registro comercial (opcional)
	Address   string
	Email     string
	Status    string // active, suspended, inactive
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Estados de empresa.
const (
	CompanyStatusActive    = "active"
	CompanyStatusSuspended = "suspended"
	CompanyStatusInactive  = "inactive"
)
