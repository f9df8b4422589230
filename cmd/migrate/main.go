// migrate aplica el esquema SQL embebido (empresas, certificados ZATCA, ledger de envíos).
//
// Uso: go run ./cmd/migrate
// Lee la conexión de DATABASE_URL o DB_* igual que la API.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jhoicas/zatca-api/internal/infrastructure/postgres"
	"github.com/jhoicas/zatca-api/pkg/config"
	"github.com/jhoicas/zatca-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cargar configuración: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel}).Component("migrate")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	applied, err := postgres.Migrate(ctx, pool)
	if err != nil {
		log.Fatal().Err(err).Strs("aplicadas", applied).Msg("migración fallida")
	}
	if len(applied) == 0 {
		log.Info().Msg("esquema al día")
		return
	}
	for _, name := range applied {
		log.Info().Str("script", name).Msg("migración aplicada")
	}
}
