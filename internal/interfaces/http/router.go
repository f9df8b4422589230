package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/zatca-api/internal/application/usecase"
	appzatca "github.com/jhoicas/zatca-api/internal/application/zatca"
	"github.com/jhoicas/zatca-api/pkg/jwt"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	CompanyUC  *usecase.CompanyUseCase
	Onboarding *appzatca.OnboardingOrchestrator
	Submit     *appzatca.SubmitDocumentUseCase
	Ledger     *appzatca.SubmissionLedger
	JWTSecret  string
}

// Router registra las rutas de la API. Todas requieren Bearer Token.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api", AuthMiddleware(deps.JWTSecret))
	adminOnly := RequireRole(jwt.RoleAdmin)
	staff := RequireRole(jwt.RoleAdmin, jwt.RoleAccountant)

	// Companies
	companies := api.Group("/companies")
	companyHandler := NewCompanyHandler(deps.CompanyUC)
	companies.Get("/", staff, companyHandler.List)
	companies.Post("/", adminOnly, companyHandler.Create)
	companies.Get("/:id", staff, companyHandler.GetByID)

	zatcaHandler := NewZatcaHandler(deps.Onboarding, deps.Submit, deps.Ledger)

	// Onboarding (solo admin)
	onboarding := api.Group("/zatca/onboarding", adminOnly)
	onboarding.Post("/csr", zatcaHandler.RegisterCSR)
	onboarding.Post("/compliance", zatcaHandler.RequestCompliance)
	onboarding.Post("/production", zatcaHandler.RequestProduction)
	onboarding.Get("/status", zatcaHandler.Status)

	// Envíos y ledger
	submissions := api.Group("/zatca/submissions", staff)
	submissions.Post("/", zatcaHandler.Submit)
	submissions.Get("/", zatcaHandler.ListSubmissions)
	submissions.Get("/:id", zatcaHandler.GetSubmission)
}
