package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jhoicas/zatca-api/internal/domain/entity"
)

// SubmissionFilter criterios de consulta del ledger. Campos vacíos no filtran.
type SubmissionFilter struct {
	CompanyID    string
	DocumentType string
	DocumentID   string
	Status       string
	Limit        int
	Offset       int
}

// SubmissionResult campos que una respuesta de la CA puede fijar.
type SubmissionResult struct {
	Status       string
	Response     json.RawMessage
	HTTPStatus   int
	ErrorMessage string
	SubmittedAt  time.Time
}

// SubmissionRepository define el puerto de persistencia del ledger de envíos.
type SubmissionRepository interface {
	Create(ctx context.Context, rec *entity.SubmissionRecord) error
	GetByID(ctx context.Context, id string) (*entity.SubmissionRecord, error)

	// FindAccepted devuelve el envío aceptado (con o sin advertencias) del par (documentID, xmlHash),
	// o nil, nil si no existe.
	FindAccepted(ctx context.Context, companyID, documentID, xmlHash string) (*entity.SubmissionRecord, error)

	// LockDocument serializa, dentro de la transacción actual, los registros de un mismo documento.
	LockDocument(ctx context.Context, companyID, documentID string) error

	// UpdateResult es la única mutación tras la creación. domain.ErrNotFound si no existe;
	// domain.ErrConflict si el registro ya está aceptado; domain.ErrDuplicate si ya hay otro
	// envío aceptado del mismo (documentID, xmlHash).
	UpdateResult(ctx context.Context, id string, res SubmissionResult) error

	// List devuelve la página pedida (más recientes primero) y el total sin paginar.
	List(ctx context.Context, f SubmissionFilter) ([]*entity.SubmissionRecord, int, error)
}

// InvoiceCounterRepository consecutivo ICV y cadena PIH por empresa.
type InvoiceCounterRepository interface {
	// Next incrementa el contador bajo bloqueo de fila y registra xmlHash como último hash.
	// Devuelve el nuevo contador y el hash del envío anterior (el PIH inicial si es el primero).
	Next(ctx context.Context, companyID, xmlHash string) (counter int64, previousHash string, err error)
}
