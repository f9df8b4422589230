// Package zatca contiene catálogos y codificaciones de la factura electrónica ZATCA (Fatoora, Arabia Saudita).
package zatca

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// Tags TLV del código QR (Fase 1 obligatoria; 6-9 se agregan en Fase 2 con la firma)
// =============================================================================

const (
	TagSellerName     byte = 1 // Nombre del vendedor
	TagVATNumber      byte = 2 // Número de registro IVA (15 dígitos)
	TagTimestamp      byte = 3 // Fecha y hora de emisión ISO-8601
	TagInvoiceTotal   byte = 4 // Total con IVA
	TagVATTotal       byte = 5 // Total IVA
	TagInvoiceHash    byte = 6 // Hash del XML (Fase 2)
	TagSignature      byte = 7 // Firma ECDSA (Fase 2)
	TagPublicKey      byte = 8 // Llave pública (Fase 2)
	TagStampSignature byte = 9 // Firma del sello de la CA (solo simplificadas, Fase 2)
)

// MaxValueLength es el máximo representable por el byte de longitud.
const MaxValueLength = 255

// InitialPreviousHash es el PIH del primer documento de la cadena:
// base64(hex(sha256("0"))), valor publicado en la guía de implementación.
const InitialPreviousHash = "NWZlY2ViNjZmZmM4NmYzOGQ5NTI3ODZjNmQ2OTZjNzljMmRiYzIzOWRkNGU5MWI0NjcyOWQ3M2EyN2ZiNTdlOQ=="

// TimestampLayout formato del tag 3 (UTC, sin fracciones).
const TimestampLayout = "2006-01-02T15:04:05Z"

// FormatTimestamp devuelve el timestamp en el formato del tag 3.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// FormatAmount formatea montos para los tags 4 y 5: punto decimal, dos decimales, sin separador de miles.
func FormatAmount(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}
