package infra

import (
	"context"
	"os"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const (
	stressImage    = "postgres:16"
	stressDatabase = "flightmate_stress"
	stressUser     = "flightmate"
	stressPassword = "flightmate"
)

type PGContainer struct {
	C *postgres.PostgresContainer
}

// StartPostgres16 spins up a throwaway Postgres 16 for the stress suite and
// returns its DSN. An explicit overrideDSN, or STRESS_TEST_PG_DSN in the
// environment, short-circuits the container and reuses that database instead.
func StartPostgres16(ctx context.Context, overrideDSN string) (*PGContainer, string, error) {
	if overrideDSN != "" {
		return &PGContainer{}, overrideDSN, nil
	}
	if dsn := os.Getenv("STRESS_TEST_PG_DSN"); dsn != "" {
		return &PGContainer{}, dsn, nil
	}

	pgC, err := postgres.RunContainer(ctx,
		testcontainers.WithImage(stressImage),
		postgres.WithDatabase(stressDatabase),
		postgres.WithUsername(stressUser),
		postgres.WithPassword(stressPassword),
	)
	if err != nil {
		return nil, "", err
	}

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgC.Terminate(ctx)
		return nil, "", err
	}
	return &PGContainer{C: pgC}, dsn, nil
}

func (p *PGContainer) Terminate(ctx context.Context) error {
	if p == nil || p.C == nil {
		return nil
	}
	return p.C.Terminate(ctx)
}
