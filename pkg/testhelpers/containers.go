package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-vkg/pkg/database"
)

// StoreTestImage is the PostgreSQL image used for the ontology store in integration tests.
const StoreTestImage = "postgres:16-alpine"

// StoreDB holds the ontology store connection with migrations applied.
// Use this for testing repositories and services against a real database.
type StoreDB struct {
	Container testcontainers.Container
	DB        *database.DB
	ConnStr   string
}

var (
	sharedStoreDB     *StoreDB
	sharedStoreDBOnce sync.Once
	sharedStoreDBErr  error
)

// GetStoreDB returns a shared ontology store database for integration tests.
// The container is created once, migrated, and reused across all tests in the run.
func GetStoreDB(t *testing.T) *StoreDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedStoreDBOnce.Do(func() {
		sharedStoreDB, sharedStoreDBErr = setupStoreDB()
	})

	if sharedStoreDBErr != nil {
		t.Fatalf("Failed to setup ontology store database: %v", sharedStoreDBErr)
	}

	return sharedStoreDB
}

func setupStoreDB() (*StoreDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        StoreTestImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "vkg_test",
			"POSTGRES_USER":     "ekaya",
			"POSTGRES_PASSWORD": "test_password",
		},
		// postgres logs readiness twice: once for the init run, once for the real server.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://ekaya:test_password@%s:%s/vkg_test?sslmode=disable",
		host, port.Port())

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            connStr,
		MaxConnections: 5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ontology store: %w", err)
	}

	if err := database.Migrate(connStr, zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &StoreDB{
		Container: container,
		DB:        db,
		ConnStr:   connStr,
	}, nil
}

// storeTables lists ontology store tables in delete order.
var storeTables = []string{"vkg_mappings", "vkg_ontology_properties", "vkg_ontology_classes", "vkg_catalogs"}

// Exec runs a seeding statement outside tenant context.
func (s *StoreDB) Exec(t *testing.T, sql string, args ...any) {
	t.Helper()
	ctx := context.Background()
	scope, err := s.DB.WithoutTenant(ctx)
	if err != nil {
		t.Fatalf("failed to acquire store connection: %v", err)
	}
	defer scope.Close()

	if _, err := scope.Conn.Exec(ctx, sql, args...); err != nil {
		t.Fatalf("failed to exec seed statement: %v", err)
	}
}

// CleanupTenant registers a cleanup that removes every row written for tenantID.
func (s *StoreDB) CleanupTenant(t *testing.T, tenantID string) {
	t.Helper()
	t.Cleanup(func() {
		ctx := context.Background()
		scope, err := s.DB.WithoutTenant(ctx)
		if err != nil {
			t.Errorf("failed to acquire store connection for cleanup: %v", err)
			return
		}
		defer scope.Close()

		for _, table := range storeTables {
			_, _ = scope.Conn.Exec(ctx, "DELETE FROM "+table+" WHERE tenant_id = $1", tenantID)
		}
	})
}
