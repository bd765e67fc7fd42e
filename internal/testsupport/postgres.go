// Package testsupport starts the backing services integration tests run
// against.
package testsupport

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Ramsey-B/fennel/pkg/database"
)

const (
	postgresUser     = "user"
	postgresPassword = "password"
	postgresDB       = "fennel"
)

func Logger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// MigrationsPath is the absolute path of db/pg.
func MigrationsPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "db", "pg")
}

// StartPostgresConfig runs an empty Postgres container for the test and
// returns how to reach it. The test is skipped in -short mode or when no
// container runtime is available.
func StartPostgresConfig(t *testing.T) database.ConnectionConfig {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     postgresUser,
				"POSTGRES_PASSWORD": postgresPassword,
				"POSTGRES_DB":       postgresDB,
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return database.ConnectionConfig{
		Driver:   "postgres",
		Host:     host,
		Port:     port.Port(),
		User:     postgresUser,
		Password: postgresPassword,
		Name:     postgresDB,
		SSLMode:  "disable",
	}
}

// StartPostgres runs a migrated Postgres container for the test.
func StartPostgres(t *testing.T) database.DB {
	t.Helper()

	cfg := StartPostgresConfig(t)
	logger := Logger()

	db, err := database.Connect(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: MigrationsPath(),
	})
	require.NoError(t, migrations.MigratePostgres(db, cfg.Name))

	return db
}
