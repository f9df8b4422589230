// @title                       ZATCA e-invoicing API
// @version                     1.0
// @description                 Onboarding Fatoora (CSR → compliance → producción) y envío de facturas a ZATCA.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jhoicas/zatca-api/internal/application/usecase"
	appzatca "github.com/jhoicas/zatca-api/internal/application/zatca"
	"github.com/jhoicas/zatca-api/internal/infrastructure/postgres"
	infrazatca "github.com/jhoicas/zatca-api/internal/infrastructure/zatca"
	httpRouter "github.com/jhoicas/zatca-api/internal/interfaces/http"
	"github.com/jhoicas/zatca-api/pkg/config"
	"github.com/jhoicas/zatca-api/pkg/logger"
)

const swaggerFile = "./docs/swagger.json"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("zatca_env", cfg.ZATCA.Environment).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	// Secrets de la CA cifrados en reposo si hay clave configurada.
	var sealer postgres.SecretSealer = infrazatca.PlaintextSealer{}
	if cfg.ZATCA.SecretKey != "" {
		box, err := infrazatca.NewSecretBox(cfg.ZATCA.SecretKey)
		if err != nil {
			log.Fatal().Err(err).Msg("inicializar cifrado de credenciales")
		}
		sealer = box
	} else {
		log.Warn().Msg("ZATCA_SECRET_KEY vacío: los secrets de la CA se guardan sin cifrar")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := infrazatca.NewMetrics(registry)

	companyRepo := postgres.NewCompanyRepository(pool)
	certRepo := postgres.NewTenantCertificateRepository(pool, sealer)
	submissionRepo := postgres.NewSubmissionRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	caClient := infrazatca.NewHTTPClient(infrazatca.ClientConfig{
		BaseURL:        cfg.ZATCA.BaseURL,
		RequestTimeout: cfg.ZATCA.RequestTimeout,
		Retry: infrazatca.RetryPolicy{
			MaxAttempts: cfg.ZATCA.MaxAttempts,
			BaseDelay:   cfg.ZATCA.BackoffBase,
			MaxDelay:    cfg.ZATCA.BackoffMax,
		},
		RateLimitRPS: cfg.ZATCA.RateLimitRPS,
	}, metrics, log)

	companyUC := usecase.NewCompanyUseCase(companyRepo)
	onboarding := appzatca.NewOnboardingOrchestrator(certRepo, companyRepo, caClient, cfg.ZATCA.Environment, metrics, log)
	ledger := appzatca.NewSubmissionLedger(submissionRepo, txRunner, metrics, log)
	submitUC := appzatca.NewSubmitDocumentUseCase(companyRepo, certRepo, ledger, infrazatca.NewInvoiceHasher(), caClient, log)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: cfg.ZATCA.RequestTimeout*time.Duration(cfg.ZATCA.MaxAttempts) + 10*time.Second,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	if _, err := os.Stat(swaggerFile); err == nil {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/",
			FilePath: swaggerFile,
			Path:     "docs",
			Title:    "ZATCA API",
		}))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		if err := pool.Ping(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded", "service": cfg.App.Name})
		}
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})
	if cfg.Metrics.Enabled {
		app.Get(cfg.Metrics.Path, adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	httpRouter.Router(app, httpRouter.RouterDeps{
		CompanyUC:  companyUC,
		Onboarding: onboarding,
		Submit:     submitUC,
		Ledger:     ledger,
		JWTSecret:  cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
