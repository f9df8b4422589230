package zatca_test

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/zatca-api/pkg/zatca"
)

// ──────────────────────────────────────────────────────────────────────────────
// Vector de referencia: ("Acme Co","300000000000003","2024-01-01T10:00:00Z","115.00","15.00")
// Calculado a mano: 01 07 "Acme Co" 02 0F "300000000000003" 03 14 "2024-..." 04 06 "115.00" 05 05 "15.00"
// ──────────────────────────────────────────────────────────────────────────────

const testQRExpected = "AQdBY21lIENvAg8zMDAwMDAwMDAwMDAwMDMDFDIwMjQtMDEtMDFUMTA6MDA6MDBaBAYxMTUuMDAFBTE1LjAw"

func acmeFields() zatca.QRFields {
	return zatca.QRFields{
		SellerName:   "Acme Co",
		VATNumber:    "300000000000003",
		Timestamp:    "2024-01-01T10:00:00Z",
		InvoiceTotal: "115.00",
		VATTotal:     "15.00",
	}
}

func TestEncodeQR_VectorExacto(t *testing.T) {
	qr, err := zatca.EncodeQR(acmeFields())
	require.NoError(t, err)
	assert.Equal(t, testQRExpected, qr, "el QR debe coincidir byte a byte con el vector de referencia")
}

func TestEncodeQR_Determinista(t *testing.T) {
	qr1, err1 := zatca.EncodeQR(acmeFields())
	qr2, err2 := zatca.EncodeQR(acmeFields())
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, qr1, qr2, "las mismas entradas deben producir el mismo QR")
}

func TestDecodeQR_Tag2DevuelveVATExacto(t *testing.T) {
	qr, err := zatca.EncodeQR(acmeFields())
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(qr)
	require.NoError(t, err)
	fields, err := zatca.Decode(raw)
	require.NoError(t, err)
	require.Len(t, fields, 5)

	assert.Equal(t, zatca.TagVATNumber, fields[1].Tag)
	assert.Equal(t, "300000000000003", fields[1].Value)
}

func TestEncode_RoundTripConArabe(t *testing.T) {
	in := []zatca.Field{
		{Tag: zatca.TagSellerName, Value: "شركة الاختبار"},
		{Tag: zatca.TagVATNumber, Value: "310122393500003"},
		{Tag: zatca.TagTimestamp, Value: "2022-04-25T15:30:00Z"},
		{Tag: zatca.TagInvoiceTotal, Value: "1000.00"},
		{Tag: zatca.TagVATTotal, Value: "150.00"},
	}
	raw, err := zatca.Encode(in...)
	require.NoError(t, err)

	// La longitud es en bytes UTF-8, no en runas.
	assert.Equal(t, byte(25), raw[1], "el nombre árabe ocupa 25 bytes UTF-8")

	out, err := zatca.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, in, out, "decodificar debe reconstruir exactamente los triples originales")
}

func TestDecodeQR_ReconstruyeCampos(t *testing.T) {
	qr, err := zatca.EncodeQR(acmeFields())
	require.NoError(t, err)
	got, err := zatca.DecodeQR(qr)
	require.NoError(t, err)
	assert.Equal(t, acmeFields(), got)
}

// ── Límites del byte de longitud ─────────────────────────────────────────────

func TestEncode_255BytesEsValido(t *testing.T) {
	raw, err := zatca.Encode(zatca.Field{Tag: zatca.TagSellerName, Value: strings.Repeat("a", 255)})
	require.NoError(t, err)
	assert.Len(t, raw, 257)
	assert.Equal(t, byte(255), raw[1])
}

func TestEncode_256BytesEsError(t *testing.T) {
	raw, err := zatca.Encode(
		zatca.Field{Tag: zatca.TagSellerName, Value: "ok"},
		zatca.Field{Tag: zatca.TagVATNumber, Value: strings.Repeat("a", 256)},
	)
	assert.ErrorIs(t, err, zatca.ErrValueTooLong)
	assert.Nil(t, raw, "no debe producirse salida parcial")
}

func TestEncode_LimiteSeMideEnBytesNoEnRunas(t *testing.T) {
	// 128 runas de 2 bytes = 256 bytes
	_, err := zatca.Encode(zatca.Field{Tag: zatca.TagSellerName, Value: strings.Repeat("ش", 128)})
	assert.ErrorIs(t, err, zatca.ErrValueTooLong)
}

func TestEncode_ValorVacioProduceSegmentoCero(t *testing.T) {
	raw, err := zatca.Encode(zatca.Field{Tag: zatca.TagVATTotal, Value: ""})
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 0}, raw)
}

func TestDecode_BlobTruncado(t *testing.T) {
	_, err := zatca.Decode([]byte{1, 10, 'a', 'b'})
	assert.ErrorIs(t, err, zatca.ErrMalformedTLV)

	_, err = zatca.Decode([]byte{1})
	assert.ErrorIs(t, err, zatca.ErrMalformedTLV)
}

func TestDecodeQR_Base64Invalido(t *testing.T) {
	_, err := zatca.DecodeQR("%%%no-base64")
	assert.Error(t, err)
}

// ── Formatos auxiliares ──────────────────────────────────────────────────────

func TestFormatAmount_DosDecimales(t *testing.T) {
	assert.Equal(t, "115.00", zatca.FormatAmount(decimal.NewFromInt(115)))
	assert.Equal(t, "15.01", zatca.FormatAmount(decimal.RequireFromString("15.005")))
}

func TestFormatTimestamp_UTC(t *testing.T) {
	riyadh := time.FixedZone("AST", 3*3600)
	ts := time.Date(2024, 1, 1, 13, 0, 0, 0, riyadh)
	assert.Equal(t, "2024-01-01T10:00:00Z", zatca.FormatTimestamp(ts))
}
