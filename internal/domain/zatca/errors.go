// Package zatca contiene las reglas de dominio del onboarding y envío ZATCA:
// taxonomía de errores, máquina de estados del certificado y validaciones locales.
package zatca

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ValidationError precondición local incumplida. Nunca llega a la red.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "zatca: validación: " + e.Reason
	}
	return fmt.Sprintf("zatca: validación %s: %s", e.Field, e.Reason)
}

// NewValidationError construye un ValidationError.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// TransportError fallo de red, timeout o error del lado servidor de la CA. Reintentable;
// no se modifica estado local.
type TransportError struct {
	Operation  string
	StatusCode int // 0 si no hubo respuesta HTTP
	Body       json.RawMessage
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("zatca: %s: la CA respondió %d: %v", e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("zatca: %s: fallo de transporte: %v", e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RejectionError error de negocio estructurado devuelto por la CA (OTP inválido, CSR
// malformado, request id vencido). No se reintenta: requiere corrección del operador.
type RejectionError struct {
	Operation  string
	StatusCode int
	Messages   []string
	Body       json.RawMessage // payload crudo para soporte
}

func (e *RejectionError) Error() string {
	msg := strings.Join(e.Messages, "; ")
	if msg == "" {
		msg = string(e.Body)
	}
	return fmt.Sprintf("zatca: %s: la CA rechazó la solicitud (%d): %s", e.Operation, e.StatusCode, msg)
}

// IsRetryable true solo para TransportError.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// StatusCode devuelve el código HTTP de error de la CA si existe; 500 en otro caso.
// Los códigos < 400 se ignoran.
func StatusCode(err error) int {
	var re *RejectionError
	if errors.As(err, &re) && re.StatusCode >= http.StatusBadRequest {
		return re.StatusCode
	}
	var te *TransportError
	if errors.As(err, &te) && te.StatusCode >= http.StatusBadRequest {
		return te.StatusCode
	}
	return http.StatusInternalServerError
}

// Payload devuelve el cuerpo crudo de la CA asociado al error (nil si no hay).
func Payload(err error) json.RawMessage {
	var re *RejectionError
	if errors.As(err, &re) {
		return re.Body
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Body
	}
	return nil
}
