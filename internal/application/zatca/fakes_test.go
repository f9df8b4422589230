package zatca_test

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"sort"
	"sync"
	"time"

	"github.com/jhoicas/zatca-api/internal/domain"
	"github.com/jhoicas/zatca-api/internal/domain/entity"
	"github.com/jhoicas/zatca-api/internal/domain/repository"
	infrazatca "github.com/jhoicas/zatca-api/internal/infrastructure/zatca"
	pkgzatca "github.com/jhoicas/zatca-api/pkg/zatca"
)

// ──────────────────────────────────────────────────────────────────────────────
// Empresas
// ──────────────────────────────────────────────────────────────────────────────

type memCompanyRepo struct {
	mu        sync.Mutex
	companies map[string]entity.Company
}

func newMemCompanyRepo(companies ...entity.Company) *memCompanyRepo {
	r := &memCompanyRepo{companies: map[string]entity.Company{}}
	for _, c := range companies {
		r.companies[c.ID] = c
	}
	return r
}

func (r *memCompanyRepo) Create(_ context.Context, c *entity.Company) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.companies {
		if existing.VATNumber == c.VATNumber {
			return domain.ErrDuplicate
		}
	}
	r.companies[c.ID] = *c
	return nil
}

func (r *memCompanyRepo) GetByID(_ context.Context, id string) (*entity.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.companies[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *memCompanyRepo) GetByVATNumber(_ context.Context, vat string) (*entity.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.companies {
		if c.VATNumber == vat {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memCompanyRepo) List(_ context.Context, limit, offset int) ([]*entity.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Company
	for _, c := range r.companies {
		c := c
		out = append(out, &c)
	}
	return out, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Certificados (bloqueo optimista por versión)
// ──────────────────────────────────────────────────────────────────────────────

type memCertRepo struct {
	mu    sync.Mutex
	certs map[string]entity.TenantCertificate
}

func newMemCertRepo() *memCertRepo {
	return &memCertRepo{certs: map[string]entity.TenantCertificate{}}
}

func (r *memCertRepo) GetByCompanyID(_ context.Context, companyID string) (*entity.TenantCertificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.certs[companyID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *memCertRepo) Create(_ context.Context, cert *entity.TenantCertificate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.certs[cert.CompanyID]; ok {
		return domain.ErrDuplicate
	}
	cert.Version = 1
	r.certs[cert.CompanyID] = *cert
	return nil
}

func (r *memCertRepo) Update(_ context.Context, cert *entity.TenantCertificate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.certs[cert.CompanyID]
	if !ok || stored.Version != cert.Version {
		return domain.ErrConflict
	}
	cert.Version++
	r.certs[cert.CompanyID] = *cert
	return nil
}

// put fija el estado almacenado directamente (preparación de escenarios).
func (r *memCertRepo) put(cert entity.TenantCertificate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cert.Version == 0 {
		cert.Version = 1
	}
	r.certs[cert.CompanyID] = cert
}

func (r *memCertRepo) stored(companyID string) entity.TenantCertificate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.certs[companyID]
}

// ──────────────────────────────────────────────────────────────────────────────
// Ledger + contador + TxRunner
// ──────────────────────────────────────────────────────────────────────────────

type counterState struct {
	last int64
	hash string
}

// memLedger implementa SubmissionRepository, InvoiceCounterRepository y LedgerTxRunner.
// RunLedger serializa las transacciones como lo haría el bloqueo de fila del contador.
type memLedger struct {
	txMu     sync.Mutex
	mu       sync.Mutex
	records  map[string]entity.SubmissionRecord
	counters map[string]counterState
	seq      int64
}

func newMemLedger() *memLedger {
	return &memLedger{records: map[string]entity.SubmissionRecord{}, counters: map[string]counterState{}}
}

func (l *memLedger) RunLedger(_ context.Context, fn func(repository.SubmissionRepository, repository.InvoiceCounterRepository) error) error {
	l.txMu.Lock()
	defer l.txMu.Unlock()
	return fn(l, l)
}

func (l *memLedger) Create(_ context.Context, rec *entity.SubmissionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	// CreatedAt estrictamente creciente para ordenar de forma determinista.
	rec.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(l.seq) * time.Second)
	l.records[rec.ID] = *rec
	return nil
}

func (l *memLedger) GetByID(_ context.Context, id string) (*entity.SubmissionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (l *memLedger) FindAccepted(_ context.Context, companyID, documentID, xmlHash string) (*entity.SubmissionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.findAcceptedLocked(companyID, documentID, xmlHash, ""), nil
}

func (l *memLedger) findAcceptedLocked(companyID, documentID, xmlHash, exceptID string) *entity.SubmissionRecord {
	for _, rec := range l.records {
		if rec.ID != exceptID && rec.CompanyID == companyID && rec.DocumentID == documentID &&
			rec.XMLHash == xmlHash && rec.IsAccepted() {
			rec := rec
			return &rec
		}
	}
	return nil
}

func (l *memLedger) LockDocument(context.Context, string, string) error { return nil }

func (l *memLedger) UpdateResult(_ context.Context, id string, res repository.SubmissionResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	if rec.IsAccepted() {
		return domain.ErrConflict
	}
	if entity.IsAcceptedStatus(res.Status) && l.findAcceptedLocked(rec.CompanyID, rec.DocumentID, rec.XMLHash, id) != nil {
		return domain.ErrDuplicate
	}
	rec.SubmissionStatus = res.Status
	rec.ZatcaResponse = res.Response
	rec.HTTPStatus = res.HTTPStatus
	rec.ErrorMessage = res.ErrorMessage
	at := res.SubmittedAt
	rec.SubmittedAt = &at
	l.records[id] = rec
	return nil
}

func (l *memLedger) List(_ context.Context, f repository.SubmissionFilter) ([]*entity.SubmissionRecord, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var all []*entity.SubmissionRecord
	for _, rec := range l.records {
		if (f.CompanyID != "" && rec.CompanyID != f.CompanyID) ||
			(f.DocumentType != "" && rec.DocumentType != f.DocumentType) ||
			(f.DocumentID != "" && rec.DocumentID != f.DocumentID) ||
			(f.Status != "" && rec.SubmissionStatus != f.Status) {
			continue
		}
		rec := rec
		all = append(all, &rec)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if f.Offset >= total {
		return []*entity.SubmissionRecord{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return all[f.Offset:end], total, nil
}

func (l *memLedger) Next(_ context.Context, companyID, xmlHash string) (int64, string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.counters[companyID]
	if !ok {
		st = counterState{hash: pkgzatca.InitialPreviousHash}
	}
	prev := st.hash
	st.last++
	st.hash = xmlHash
	l.counters[companyID] = st
	return st.last, prev, nil
}

func (l *memLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// ──────────────────────────────────────────────────────────────────────────────
// CA y hasher
// ──────────────────────────────────────────────────────────────────────────────

type fakeCA struct {
	mu              sync.Mutex
	complianceCalls int
	productionCalls int
	submitCalls     int
	lastDoc         infrazatca.DocumentSubmission
	lastEnv         string

	compliance func(env, csr, otp string) (*infrazatca.CSIDResult, error)
	production func(env, token, secret, requestID string) (*infrazatca.CSIDResult, error)
	submit     func(env string, doc infrazatca.DocumentSubmission) (*infrazatca.SubmissionResponse, error)
}

func (f *fakeCA) ComplianceCSID(_ context.Context, env, csr, otp string) (*infrazatca.CSIDResult, error) {
	f.mu.Lock()
	f.complianceCalls++
	f.lastEnv = env
	fn := f.compliance
	f.mu.Unlock()
	if fn == nil {
		return &infrazatca.CSIDResult{BinarySecurityToken: "TOKEN1", Secret: "SECRET1", RequestID: "REQ1"}, nil
	}
	return fn(env, csr, otp)
}

func (f *fakeCA) ProductionCSID(_ context.Context, env, token, secret, requestID string) (*infrazatca.CSIDResult, error) {
	f.mu.Lock()
	f.productionCalls++
	f.lastEnv = env
	fn := f.production
	f.mu.Unlock()
	if fn == nil {
		return &infrazatca.CSIDResult{BinarySecurityToken: "TOKEN2", Secret: "SECRET2"}, nil
	}
	return fn(env, token, secret, requestID)
}

func (f *fakeCA) SubmitDocument(_ context.Context, env string, doc infrazatca.DocumentSubmission) (*infrazatca.SubmissionResponse, error) {
	f.mu.Lock()
	f.submitCalls++
	f.lastDoc = doc
	f.lastEnv = env
	fn := f.submit
	f.mu.Unlock()
	if fn == nil {
		return &infrazatca.SubmissionResponse{Status: entity.SubmissionStatusAccepted, HTTPStatus: 200, Body: []byte(`{"reportingStatus":"REPORTED"}`)}, nil
	}
	return fn(env, doc)
}

func (f *fakeCA) calls() (compliance, production, submit int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.complianceCalls, f.productionCalls, f.submitCalls
}

// shaHasher hash del contenido crudo (el hasher UBL real se prueba en infraestructura).
type shaHasher struct{}

func (shaHasher) Hash(b []byte) (string, error) {
	sum := sha256.Sum256(b)
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}
