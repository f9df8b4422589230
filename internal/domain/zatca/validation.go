package zatca

import (
	"regexp"

	"github.com/jhoicas/zatca-api/internal/domain/entity"
)

var (
	otpPattern = regexp.MustCompile(`^[0-9]{6}$`)
	// Registro IVA: 15 dígitos, primero y último "3".
	vatPattern = regexp.MustCompile(`^3[0-9]{13}3$`)
)

// ValidateOTP el OTP del portal Fatoora son 6 dígitos. Su vigencia la decide la CA.
func ValidateOTP(otp string) error {
	if !otpPattern.MatchString(otp) {
		return NewValidationError("otp", "debe tener 6 dígitos")
	}
	return nil
}

// ValidateVATNumber valida el formato del número de registro IVA.
func ValidateVATNumber(vat string) error {
	if !vatPattern.MatchString(vat) {
		return NewValidationError("vat_number", "debe tener 15 dígitos e iniciar y terminar en 3")
	}
	return nil
}

// ValidateEnvironment acepta sandbox, simulation o production.
func ValidateEnvironment(env string) error {
	switch env {
	case entity.EnvironmentSandbox, entity.EnvironmentSimulation, entity.EnvironmentProduction:
		return nil
	}
	return NewValidationError("environment", "usar sandbox, simulation o production")
}

// ValidateDocumentType acepta invoice, credit_note o debit_note.
func ValidateDocumentType(t string) error {
	switch t {
	case entity.DocumentTypeInvoice, entity.DocumentTypeCreditNote, entity.DocumentTypeDebitNote:
		return nil
	}
	return NewValidationError("document_type", "usar invoice, credit_note o debit_note")
}

// ValidateSubmissionStatus acepta solo estados finales (los que puede fijar una respuesta).
func ValidateSubmissionStatus(s string) error {
	switch s {
	case entity.SubmissionStatusAccepted, entity.SubmissionStatusAcceptedWithWarnings,
		entity.SubmissionStatusRejected, entity.SubmissionStatusError:
		return nil
	}
	return NewValidationError("submission_status", "estado de resultado inválido: "+s)
}
