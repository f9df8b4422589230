package zatca_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appzatca "github.com/jhoicas/zatca-api/internal/application/zatca"
	"github.com/jhoicas/zatca-api/internal/domain"
	"github.com/jhoicas/zatca-api/internal/domain/entity"
	domzatca "github.com/jhoicas/zatca-api/internal/domain/zatca"
	infrazatca "github.com/jhoicas/zatca-api/internal/infrastructure/zatca"
	pkgzatca "github.com/jhoicas/zatca-api/pkg/zatca"
)

type submitFixture struct {
	companies *memCompanyRepo
	certs     *memCertRepo
	mem       *memLedger
	ca        *fakeCA
	uc        *appzatca.SubmitDocumentUseCase
}

func newSubmitFixture(status string) *submitFixture {
	companies := newMemCompanyRepo(testCompany())
	certs := newMemCertRepo()
	cert := productionCert()
	cert.Status = status
	if status != entity.CertificateStatusProduction {
		cert.ProductionToken, cert.ProductionSecret = "", ""
		cert.Certificate = cert.ComplianceToken
	}
	certs.put(cert)

	mem := newMemLedger()
	ledger := appzatca.NewSubmissionLedger(mem, mem, nil, nil)
	ca := &fakeCA{}
	uc := appzatca.NewSubmitDocumentUseCase(companies, certs, ledger, shaHasher{}, ca, nil)
	return &submitFixture{companies: companies, certs: certs, mem: mem, ca: ca, uc: uc}
}

func submitInput(submissionType string) appzatca.SubmitInput {
	return appzatca.SubmitInput{
		CompanyID:      testCompanyID,
		DocumentType:   entity.DocumentTypeInvoice,
		DocumentID:     "INV-0001",
		DocumentUUID:   "3cf5ee18-ee25-44ea-a444-2c37ba7f28be",
		SubmissionType: submissionType,
		InvoiceXML:     []byte(`<Invoice><cbc:ID>INV-0001</cbc:ID></Invoice>`),
		IssuedAt:       time.Date(2022, 4, 25, 15, 30, 0, 0, time.UTC),
		TotalWithVAT:   decimal.RequireFromString("1000"),
		VATTotal:       decimal.RequireFromString("150"),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Flujo feliz
// ──────────────────────────────────────────────────────────────────────────────

func TestSubmit_ReportingAceptado(t *testing.T) {
	f := newSubmitFixture(entity.CertificateStatusProduction)
	in := submitInput(entity.SubmissionTypeReporting)

	out, err := f.uc.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, out.Duplicate)
	assert.Equal(t, entity.SubmissionStatusAccepted, out.Record.SubmissionStatus)
	assert.Equal(t, int64(1), out.Record.InvoiceCounter)
	assert.Equal(t, pkgzatca.InitialPreviousHash, out.Record.PreviousHash)
	require.NotNil(t, out.Record.SubmittedAt)

	// Credenciales de producción y hash calculado.
	hash, _ := shaHasher{}.Hash(in.InvoiceXML)
	assert.Equal(t, "PROD-OLD", f.ca.lastDoc.Token)
	assert.Equal(t, "PROD-SECRET-OLD", f.ca.lastDoc.Secret)
	assert.Equal(t, hash, f.ca.lastDoc.InvoiceHash)
	assert.Equal(t, in.DocumentUUID, f.ca.lastDoc.UUID)
	assert.Equal(t, hash, out.Record.XMLHash)
	assert.Equal(t, entity.EnvironmentSimulation, f.ca.lastEnv)

	// El QR lleva los cinco tags de la empresa y del documento.
	qr, err := pkgzatca.DecodeQR(out.Record.QRCode)
	require.NoError(t, err)
	assert.Equal(t, "Acme Co", qr.SellerName)
	assert.Equal(t, "300000000000003", qr.VATNumber)
	assert.Equal(t, "2022-04-25T15:30:00Z", qr.Timestamp)
	assert.Equal(t, "1000.00", qr.InvoiceTotal)
	assert.Equal(t, "150.00", qr.VATTotal)
}

func TestSubmit_ComplianceCheckUsaCredencialesDeCompliance(t *testing.T) {
	f := newSubmitFixture(entity.CertificateStatusCompliance)

	out, err := f.uc.Execute(context.Background(), submitInput(entity.SubmissionTypeComplianceCheck))
	require.NoError(t, err)
	assert.Equal(t, entity.SubmissionStatusAccepted, out.Record.SubmissionStatus)
	assert.Equal(t, "COMP-OLD", f.ca.lastDoc.Token)
	assert.Equal(t, "COMP-SECRET-OLD", f.ca.lastDoc.Secret)
	assert.Equal(t, entity.SubmissionTypeComplianceCheck, f.ca.lastDoc.SubmissionType)
}

func TestSubmit_AdvertenciasQuedanAceptadas(t *testing.T) {
	f := newSubmitFixture(entity.CertificateStatusProduction)
	f.ca.submit = func(_ string, _ infrazatca.DocumentSubmission) (*infrazatca.SubmissionResponse, error) {
		return &infrazatca.SubmissionResponse{
			Status:     entity.SubmissionStatusAcceptedWithWarnings,
			HTTPStatus: 202,
			Body:       []byte(`{"clearanceStatus":"CLEARED"}`),
			Warnings:   []string{"BR-KSA-08: dirección incompleta"},
		}, nil
	}

	out, err := f.uc.Execute(context.Background(), submitInput(entity.SubmissionTypeClearance))
	require.NoError(t, err)
	assert.Equal(t, entity.SubmissionStatusAcceptedWithWarnings, out.Record.SubmissionStatus)
	assert.Equal(t, []string{"BR-KSA-08: dirección incompleta"}, out.Warnings)
}

// ──────────────────────────────────────────────────────────────────────────────
// Idempotencia
// ──────────────────────────────────────────────────────────────────────────────

func TestSubmit_ReenvioIdenticoNoLlamaALaCA(t *testing.T) {
	f := newSubmitFixture(entity.CertificateStatusProduction)
	ctx := context.Background()

	first, err := f.uc.Execute(ctx, submitInput(entity.SubmissionTypeReporting))
	require.NoError(t, err)
	second, err := f.uc.Execute(ctx, submitInput(entity.SubmissionTypeReporting))
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Record.ID, second.Record.ID)
	_, _, submits := f.ca.calls()
	assert.Equal(t, 1, submits)
	assert.Equal(t, 1, f.mem.count())
}

func TestSubmit_DocumentoCorregidoSeEnvia(t *testing.T) {
	f := newSubmitFixture(entity.CertificateStatusProduction)
	ctx := context.Background()

	_, err := f.uc.Execute(ctx, submitInput(entity.SubmissionTypeReporting))
	require.NoError(t, err)
	in := submitInput(entity.SubmissionTypeReporting)
	in.InvoiceXML = []byte(`<Invoice><cbc:ID>INV-0001</cbc:ID><cbc:Note>corregida</cbc:Note></Invoice>`)
	out, err := f.uc.Execute(ctx, in)
	require.NoError(t, err)

	assert.False(t, out.Duplicate)
	assert.Equal(t, int64(2), out.Record.InvoiceCounter)
	_, _, submits := f.ca.calls()
	assert.Equal(t, 2, submits)
}

// ──────────────────────────────────────────────────────────────────────────────
// Fallos
// ──────────────────────────────────────────────────────────────────────────────

func TestSubmit_RechazoQuedaRegistrado(t *testing.T) {
	f := newSubmitFixture(entity.CertificateStatusProduction)
	f.ca.submit = func(_ string, _ infrazatca.DocumentSubmission) (*infrazatca.SubmissionResponse, error) {
		return nil, &domzatca.RejectionError{
			Operation:  infrazatca.OpSubmitDocument,
			StatusCode: 400,
			Messages:   []string{"BR-KSA-37: hash inválido"},
			Body:       []byte(`{"reportingStatus":"NOT_REPORTED"}`),
		}
	}

	out, err := f.uc.Execute(context.Background(), submitInput(entity.SubmissionTypeReporting))
	var rej *domzatca.RejectionError
	require.True(t, errors.As(err, &rej))
	require.NotNil(t, out)
	assert.Equal(t, entity.SubmissionStatusRejected, out.Record.SubmissionStatus)
	assert.Equal(t, 400, out.Record.HTTPStatus)
	assert.Equal(t, "BR-KSA-37: hash inválido", out.Record.ErrorMessage)
	assert.JSONEq(t, `{"reportingStatus":"NOT_REPORTED"}`, string(out.Record.ZatcaResponse))

	// Un rechazo no bloquea el reenvío.
	f.ca.submit = nil
	retry, err := f.uc.Execute(context.Background(), submitInput(entity.SubmissionTypeReporting))
	require.NoError(t, err)
	assert.False(t, retry.Duplicate)
	assert.Equal(t, entity.SubmissionStatusAccepted, retry.Record.SubmissionStatus)
}

func TestSubmit_FalloDeTransporteQuedaComoError(t *testing.T) {
	f := newSubmitFixture(entity.CertificateStatusProduction)
	f.ca.submit = func(_ string, _ infrazatca.DocumentSubmission) (*infrazatca.SubmissionResponse, error) {
		return nil, &domzatca.TransportError{Operation: infrazatca.OpSubmitDocument, StatusCode: 503, Err: errors.New("service unavailable")}
	}

	out, err := f.uc.Execute(context.Background(), submitInput(entity.SubmissionTypeReporting))
	require.Error(t, err)
	assert.True(t, domzatca.IsRetryable(err))
	require.NotNil(t, out)
	assert.Equal(t, entity.SubmissionStatusError, out.Record.SubmissionStatus)
	assert.Equal(t, 503, out.Record.HTTPStatus)
	assert.NotEmpty(t, out.Record.ErrorMessage)
}

func TestSubmit_ResultadoSeGuardaConContextoCancelado(t *testing.T) {
	f := newSubmitFixture(entity.CertificateStatusProduction)
	ctx, cancel := context.WithCancel(context.Background())
	f.ca.submit = func(_ string, _ infrazatca.DocumentSubmission) (*infrazatca.SubmissionResponse, error) {
		cancel()
		return nil, &domzatca.TransportError{Operation: infrazatca.OpSubmitDocument, Err: context.Canceled}
	}

	out, err := f.uc.Execute(ctx, submitInput(entity.SubmissionTypeReporting))
	require.Error(t, err)
	require.NotNil(t, out)
	assert.Equal(t, entity.SubmissionStatusError, out.Record.SubmissionStatus)
}

// ──────────────────────────────────────────────────────────────────────────────
// Validaciones locales: nunca llegan a la CA ni al ledger
// ──────────────────────────────────────────────────────────────────────────────

func TestSubmit_ValidacionesLocales(t *testing.T) {
	cases := map[string]struct {
		status string
		mutate func(*appzatca.SubmitInput)
	}{
		"reporting sin producción": {entity.CertificateStatusCompliance, func(*appzatca.SubmitInput) {}},
		"tipo de envío":            {entity.CertificateStatusProduction, func(in *appzatca.SubmitInput) { in.SubmissionType = "batch" }},
		"tipo de documento":        {entity.CertificateStatusProduction, func(in *appzatca.SubmitInput) { in.DocumentType = "receipt" }},
		"sin xml":                  {entity.CertificateStatusProduction, func(in *appzatca.SubmitInput) { in.InvoiceXML = nil }},
		"sin fecha":                {entity.CertificateStatusProduction, func(in *appzatca.SubmitInput) { in.IssuedAt = time.Time{} }},
		"total negativo":           {entity.CertificateStatusProduction, func(in *appzatca.SubmitInput) { in.TotalWithVAT = decimal.NewFromInt(-1) }},
		"iva mayor al total": {entity.CertificateStatusProduction, func(in *appzatca.SubmitInput) {
			in.VATTotal = decimal.NewFromInt(2000)
		}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newSubmitFixture(tc.status)
			in := submitInput(entity.SubmissionTypeReporting)
			tc.mutate(&in)

			_, err := f.uc.Execute(context.Background(), in)
			var ve *domzatca.ValidationError
			assert.True(t, errors.As(err, &ve), "error: %v", err)
			_, _, submits := f.ca.calls()
			assert.Zero(t, submits)
			assert.Zero(t, f.mem.count())
		})
	}
}

func TestSubmit_NombreDeVendedorDemasiadoLargo(t *testing.T) {
	f := newSubmitFixture(entity.CertificateStatusProduction)
	company := testCompany()
	company.Name = strings.Repeat("ش", 128) // 256 bytes en UTF-8
	f.companies.companies[company.ID] = company

	_, err := f.uc.Execute(context.Background(), submitInput(entity.SubmissionTypeReporting))
	var ve *domzatca.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Zero(t, f.mem.count())
}

func TestSubmit_EmpresaInexistente(t *testing.T) {
	f := newSubmitFixture(entity.CertificateStatusProduction)
	in := submitInput(entity.SubmissionTypeReporting)
	in.CompanyID = "otra-empresa"

	_, err := f.uc.Execute(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
