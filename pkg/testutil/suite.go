package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ibabi/ibabi-backend/migrations"
	"github.com/ibabi/ibabi-backend/pkg/database"
	"github.com/ibabi/ibabi-backend/pkg/logger"
)

var (
	// Global test container (shared across all integration tests)
	globalContainer *PostgresContainer
	containerOnce   sync.Once
	containerErr    error
)

// ledgerTables are emptied between tests, children first.
var ledgerTables = []string{
	"outbox_events",
	"resource_request_feedback",
	"cell_request_allocations",
	"farmer_deductions",
	"farmer_balances",
	"cell_balances",
	"cell_resource_requests",
	"resource_requests",
	"district_batches",
	"product_prices",
	"seasonal_crop_plans",
	"recommended_quantities",
	"livestock_locations",
	"lands",
	"products",
	"cells",
	"sectors",
	"districts",
}

// IntegrationSuite provides a migrated PostgreSQL database for integration tests
type IntegrationSuite struct {
	Container *PostgresContainer
	DB        *database.DB
	Fixtures  *FixtureFactory
	Logger    *logger.Logger
}

// NewIntegrationSuite starts (or reuses) the shared container and applies
// the embedded migrations.
//
// Usage:
//
//	func TestMain(m *testing.M) {
//	    suite, err = testutil.NewIntegrationSuite(context.Background())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    code := m.Run()
//	    testutil.TerminateContainer(context.Background())
//	    os.Exit(code)
//	}
func NewIntegrationSuite(ctx context.Context) (*IntegrationSuite, error) {
	containerOnce.Do(func() {
		globalContainer, containerErr = NewPostgresContainer(ctx, DefaultPostgresConfig())
	})
	if containerErr != nil {
		return nil, containerErr
	}

	log := logger.NewWithWriter("test", os.Stderr).SetLevel("warn")
	db, err := database.NewWithDSN(globalContainer.DSN, log)
	if err != nil {
		return nil, err
	}

	// The migrator closes its connection, so it gets its own.
	migrateDB, err := database.NewWithDSN(globalContainer.DSN, log)
	if err != nil {
		return nil, err
	}
	migrator, err := database.NewMigrator(migrateDB, migrations.FS, ".", log)
	if err != nil {
		return nil, err
	}
	defer migrator.Close()
	if err := migrator.Up(); err != nil {
		return nil, err
	}

	return &IntegrationSuite{
		Container: globalContainer,
		DB:        db,
		Fixtures:  NewFixtureFactory(db.DB),
		Logger:    log,
	}, nil
}

// Reset empties every ledger and reference table.
func (s *IntegrationSuite) Reset(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, "TRUNCATE "+strings.Join(ledgerTables, ", ")+" CASCADE")
	if err != nil {
		return fmt.Errorf("failed to reset tables: %w", err)
	}
	return nil
}

// TerminateContainer terminates the shared container.
// Only call this in TestMain after all tests have completed.
func TerminateContainer(ctx context.Context) {
	if globalContainer != nil {
		globalContainer.Terminate(ctx)
	}
}
