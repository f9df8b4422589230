package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/zatca-api/internal/domain"
	"github.com/jhoicas/zatca-api/internal/domain/entity"
	"github.com/jhoicas/zatca-api/internal/domain/repository"
)

var _ repository.SubmissionRepository = (*SubmissionRepo)(nil)

// SubmissionRepo ledger de envíos a la CA (usable con pool o tx).
type SubmissionRepo struct {
	q Querier
}

// NewSubmissionRepository construye el adaptador. Pasar pool o tx (Querier).
func NewSubmissionRepository(q Querier) *SubmissionRepo {
	return &SubmissionRepo{q: q}
}

const submissionColumns = `id, company_id, document_type, document_id, document_uuid, xml_hash, previous_hash,
	qr_code, issued_at, total_with_vat, vat_total, invoice_counter, submission_type, submission_status,
	error_message, zatca_response, http_status, submitted_at, created_at`

// Create inserta el registro (normalmente en estado pending).
func (r *SubmissionRepo) Create(ctx context.Context, rec *entity.SubmissionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO zatca_submissions (` + submissionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`
	_, err := r.q.Exec(ctx, query,
		rec.ID, rec.CompanyID, rec.DocumentType, rec.DocumentID, rec.DocumentUUID, rec.XMLHash, rec.PreviousHash,
		rec.QRCode, rec.IssuedAt, rec.TotalWithVAT, rec.VATTotal, rec.InvoiceCounter, rec.SubmissionType, rec.SubmissionStatus,
		nullIfEmpty(rec.ErrorMessage), nullableJSON(rec.ZatcaResponse), rec.HTTPStatus, rec.SubmittedAt, rec.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// GetByID obtiene un envío por ID; nil, nil si no existe.
func (r *SubmissionRepo) GetByID(ctx context.Context, id string) (*entity.SubmissionRecord, error) {
	rec, err := scanSubmission(r.q.QueryRow(ctx, `SELECT `+submissionColumns+` FROM zatca_submissions WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return rec, nil
}

// FindAccepted devuelve el envío aceptado del par (documento, hash) si existe.
func (r *SubmissionRepo) FindAccepted(ctx context.Context, companyID, documentID, xmlHash string) (*entity.SubmissionRecord, error) {
	query := `
		SELECT ` + submissionColumns + `
		FROM zatca_submissions
		WHERE company_id = $1 AND document_id = $2 AND xml_hash = $3
		  AND submission_status IN ('accepted', 'accepted_with_warnings')
		ORDER BY created_at
		LIMIT 1`
	rec, err := scanSubmission(r.q.QueryRow(ctx, query, companyID, documentID, xmlHash))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find accepted submission: %w", err)
	}
	return rec, nil
}

// LockDocument toma un advisory lock de transacción por (empresa, documento).
// Solo tiene efecto si el repositorio está atado a una tx.
func (r *SubmissionRepo) LockDocument(ctx context.Context, companyID, documentID string) error {
	if _, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "zatca:"+companyID+":"+documentID); err != nil {
		return fmt.Errorf("lock document: %w", err)
	}
	return nil
}

// UpdateResult fija estado, respuesta y submitted_at. Es la única mutación tras la creación y no
// toca registros ya aceptados.
func (r *SubmissionRepo) UpdateResult(ctx context.Context, id string, res repository.SubmissionResult) error {
	submittedAt := res.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now().UTC()
	}
	query := `
		UPDATE zatca_submissions
		SET submission_status = $2,
		    zatca_response    = $3,
		    http_status       = $4,
		    error_message     = $5,
		    submitted_at      = $6
		WHERE id = $1
		  AND submission_status NOT IN ('accepted', 'accepted_with_warnings')`
	cmd, err := r.q.Exec(ctx, query, id, res.Status, nullableJSON(res.Response), res.HTTPStatus,
		nullIfEmpty(res.ErrorMessage), submittedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("update submission result: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM zatca_submissions WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check submission: %w", err)
		}
		if exists {
			return domain.ErrConflict
		}
		return domain.ErrNotFound
	}
	return nil
}

// List devuelve la página pedida (más recientes primero) y el total sin paginar.
func (r *SubmissionRepo) List(ctx context.Context, f repository.SubmissionFilter) ([]*entity.SubmissionRecord, int, error) {
	var (
		conds []string
		args  []any
	)
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("company_id", f.CompanyID)
	add("document_type", f.DocumentType)
	add("document_id", f.DocumentID)
	add("submission_status", f.Status)

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM zatca_submissions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}

	pageArgs := append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`SELECT %s FROM zatca_submissions%s
		ORDER BY created_at DESC, invoice_counter DESC
		LIMIT $%d OFFSET $%d`, submissionColumns, where, len(args)+1, len(args)+2)
	rows, err := r.q.Query(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	list := make([]*entity.SubmissionRecord, 0, f.Limit)
	for rows.Next() {
		rec, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan submission: %w", err)
		}
		list = append(list, rec)
	}
	return list, total, rows.Err()
}

func scanSubmission(s pgxScanner) (*entity.SubmissionRecord, error) {
	var (
		rec      entity.SubmissionRecord
		errMsg   *string
		response []byte
	)
	if err := s.Scan(
		&rec.ID, &rec.CompanyID, &rec.DocumentType, &rec.DocumentID, &rec.DocumentUUID, &rec.XMLHash, &rec.PreviousHash,
		&rec.QRCode, &rec.IssuedAt, &rec.TotalWithVAT, &rec.VATTotal, &rec.InvoiceCounter, &rec.SubmissionType, &rec.SubmissionStatus,
		&errMsg, &response, &rec.HTTPStatus, &rec.SubmittedAt, &rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	rec.ErrorMessage = derefString(errMsg)
	if len(response) > 0 {
		rec.ZatcaResponse = response
	}
	return &rec, nil
}

// nullableJSON evita insertar JSON vacío (inválido para JSONB).
func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
