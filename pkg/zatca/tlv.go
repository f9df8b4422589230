package zatca

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrValueTooLong valor cuya longitud UTF-8 no cabe en el byte de longitud.
var ErrValueTooLong = errors.New("zatca: valor TLV excede 255 bytes")

// ErrMalformedTLV blob truncado o con longitudes inconsistentes.
var ErrMalformedTLV = errors.New("zatca: TLV malformado")

// Field un triple tag/longitud/valor. La longitud se deriva de Value.
type Field struct {
	Tag   byte
	Value string
}

// QRFields los cinco campos de la Fase 1, en el orden exigido por la regulación.
type QRFields struct {
	SellerName   string
	VATNumber    string
	Timestamp    string // ISO-8601, ver FormatTimestamp
	InvoiceTotal string // total con IVA, ver FormatAmount
	VATTotal     string
}

// Fields devuelve los campos con sus tags 1..5.
func (q QRFields) Fields() []Field {
	return []Field{
		{Tag: TagSellerName, Value: q.SellerName},
		{Tag: TagVATNumber, Value: q.VATNumber},
		{Tag: TagTimestamp, Value: q.Timestamp},
		{Tag: TagInvoiceTotal, Value: q.InvoiceTotal},
		{Tag: TagVATTotal, Value: q.VATTotal},
	}
}

// Encode concatena tag(1 byte) + longitud(1 byte) + bytes UTF-8 de cada campo, en orden.
// Todas las longitudes se validan antes de escribir: si algún valor excede 255 bytes
// no se produce salida parcial.
func Encode(fields ...Field) ([]byte, error) {
	size := 0
	for _, f := range fields {
		n := len(f.Value)
		if n > MaxValueLength {
			return nil, fmt.Errorf("%w: tag %d tiene %d bytes", ErrValueTooLong, f.Tag, n)
		}
		size += 2 + n
	}

	out := make([]byte, 0, size)
	for _, f := range fields {
		out = append(out, f.Tag, byte(len(f.Value)))
		out = append(out, f.Value...)
	}
	return out, nil
}

// EncodeQR codifica los cinco campos de la Fase 1 y devuelve el base64 que va en el QR.
func EncodeQR(q QRFields) (string, error) {
	raw, err := Encode(q.Fields()...)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Decode recorre el blob y devuelve los triples en el orden en que aparecen.
func Decode(raw []byte) ([]Field, error) {
	var fields []Field
	for i := 0; i < len(raw); {
		if i+2 > len(raw) {
			return nil, fmt.Errorf("%w: cabecera truncada en el byte %d", ErrMalformedTLV, i)
		}
		tag, n := raw[i], int(raw[i+1])
		i += 2
		if i+n > len(raw) {
			return nil, fmt.Errorf("%w: tag %d declara %d bytes y quedan %d", ErrMalformedTLV, tag, n, len(raw)-i)
		}
		fields = append(fields, Field{Tag: tag, Value: string(raw[i : i+n])})
		i += n
	}
	return fields, nil
}

// DecodeQR decodifica el base64 de un QR y extrae los campos 1..5.
// Tags desconocidos (Fase 2) se ignoran.
func DecodeQR(b64 string) (QRFields, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return QRFields{}, fmt.Errorf("zatca: base64 inválido: %w", err)
	}
	fields, err := Decode(raw)
	if err != nil {
		return QRFields{}, err
	}
	var q QRFields
	for _, f := range fields {
		switch f.Tag {
		case TagSellerName:
			q.SellerName = f.Value
		case TagVATNumber:
			q.VATNumber = f.Value
		case TagTimestamp:
			q.Timestamp = f.Value
		case TagInvoiceTotal:
			q.InvoiceTotal = f.Value
		case TagVATTotal:
			q.VATTotal = f.Value
		}
	}
	return q, nil
}
