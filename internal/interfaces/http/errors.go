package http

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/zatca-api/internal/application/dto"
	"github.com/jhoicas/zatca-api/internal/domain"
	domzatca "github.com/jhoicas/zatca-api/internal/domain/zatca"
)

// writeError traduce errores de dominio y de la CA a la respuesta HTTP.
func writeError(c *fiber.Ctx, err error) error {
	status, body := errorResponse(err)
	return c.Status(status).JSON(body)
}

// errorResponse status y cuerpo para err. El mensaje es apto para el usuario; el detalle
// técnico de la CA va en Details.
func errorResponse(err error) (int, dto.ErrorResponse) {
	var (
		ve  *domzatca.ValidationError
		rej *domzatca.RejectionError
		te  *domzatca.TransportError
	)
	switch {
	case errors.As(err, &ve):
		msg := ve.Reason
		if ve.Field != "" {
			msg = ve.Field + ": " + ve.Reason
		}
		return fiber.StatusUnprocessableEntity, dto.ErrorResponse{Code: "VALIDATION", Message: msg}
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, dto.ErrorResponse{Code: "NOT_FOUND", Message: "recurso no encontrado"}
	case errors.Is(err, domain.ErrDuplicate):
		return fiber.StatusConflict, dto.ErrorResponse{Code: "DUPLICATE", Message: "el recurso ya existe"}
	case errors.Is(err, domain.ErrConflict):
		return fiber.StatusConflict, dto.ErrorResponse{Code: "CONFLICT", Message: "otra operación modificó el registro; reintente"}
	case errors.As(err, &rej):
		return domzatca.StatusCode(err), dto.ErrorResponse{
			Code: "ZATCA_REJECTED", Message: rejectionMessage(rej), Details: domzatca.Payload(err),
		}
	case errors.As(err, &te):
		return domzatca.StatusCode(err), dto.ErrorResponse{
			Code: "ZATCA_UNAVAILABLE", Message: "la CA de ZATCA no está disponible; reintente más tarde", Details: domzatca.Payload(err),
		}
	}
	return fiber.StatusInternalServerError, dto.ErrorResponse{Code: "INTERNAL", Message: "error interno"}
}

func rejectionMessage(rej *domzatca.RejectionError) string {
	if len(rej.Messages) == 0 {
		return "ZATCA rechazó la solicitud"
	}
	return "ZATCA rechazó la solicitud: " + strings.Join(rej.Messages, "; ")
}

func badBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
}
