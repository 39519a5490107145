//go:build integration

package repository_test

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ibabi/ibabi-backend/internal/resource/domain"
	"github.com/ibabi/ibabi-backend/internal/resource/repository"
	"github.com/ibabi/ibabi-backend/internal/resource/service"
	"github.com/ibabi/ibabi-backend/pkg/actor"
	"github.com/ibabi/ibabi-backend/pkg/errors"
	"github.com/ibabi/ibabi-backend/pkg/messaging"
	"github.com/ibabi/ibabi-backend/pkg/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	suite, err = testutil.NewIntegrationSuite(ctx)
	if err != nil {
		log.Fatalf("failed to start integration suite: %v", err)
	}

	code := m.Run()
	testutil.TerminateContainer(ctx)
	os.Exit(code)
}

type pgFixture struct {
	svc             *service.ResourceService
	outbox          *repository.OutboxRepository
	geo             testutil.Geography
	productID       string
	landID          string
	farmer          *actor.Actor
	cellOfficer     *actor.Actor
	districtOfficer *actor.Actor
}

// newPGFixture seeds one cell with a 2 ha plot planned for NPK at 50 per hectare.
func newPGFixture(t *testing.T) *pgFixture {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, suite.Reset(ctx))

	geo, err := suite.Fixtures.Geography(ctx)
	require.NoError(t, err)
	productID, err := suite.Fixtures.Product(ctx, "NPK")
	require.NoError(t, err)

	farmerID := uuid.New().String()
	landID, err := suite.Fixtures.Land(ctx, farmerID, geo.CellID, "2")
	require.NoError(t, err)
	require.NoError(t, suite.Fixtures.RecommendedRate(ctx, productID, "NPK", "50"))
	require.NoError(t, suite.Fixtures.PlannedCrop(ctx, geo.CellID, "A", 2024, productID))

	clock := func() time.Time { return time.Date(2024, 10, 15, 8, 0, 0, 0, time.UTC) }
	store := repository.NewPostgresStore(suite.DB, 5*time.Second, 15*time.Second)
	svc := service.NewResourceService(store, repository.NewPostgresDirectory(suite.DB), suite.Logger, service.WithClock(clock))

	cellID, districtID := geo.CellID, geo.DistrictID
	return &pgFixture{
		svc:             svc,
		outbox:          repository.NewOutboxRepository(suite.DB),
		geo:             geo,
		productID:       productID,
		landID:          landID,
		farmer:          &actor.Actor{ID: farmerID, Role: actor.RoleFarmer},
		cellOfficer:     &actor.Actor{ID: uuid.New().String(), Role: actor.RoleCellOfficer, ManagedCellID: &cellID},
		districtOfficer: &actor.Actor{ID: uuid.New().String(), Role: actor.RoleDistrictOfficer, ManagedDistrictID: &districtID},
	}
}

func pgAs(a *actor.Actor) context.Context {
	return actor.WithActor(context.Background(), a)
}

func qty(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// ============================================================================
// Concurrency
// ============================================================================

func TestPostgres_ConcurrentCellApprovalsNeverOverdraw(t *testing.T) {
	f := newPGFixture(t)

	_, err := f.svc.AddDistrictStock(pgAs(f.districtOfficer), f.geo.DistrictID, f.productID, decimal.RequireFromString("30"))
	require.NoError(t, err)

	var ids []string
	for i := 0; i < 2; i++ {
		sub, err := f.svc.SubmitCellRequest(pgAs(f.cellOfficer), service.SubmitCellRequestInput{
			CellID: f.geo.CellID, ProductID: f.productID, Quantity: qty("20"),
		})
		require.NoError(t, err)
		ids = append(ids, sub.Request.ID)
	}

	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = f.svc.ApproveCellRequest(pgAs(f.districtOfficer), id, nil)
		}(i, id)
	}
	wg.Wait()

	var ok, refused int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Code(err) == "INSUFFICIENT_STOCK":
			refused++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, refused)

	batches, total, err := f.svc.ListDistrictBatches(pgAs(f.districtOfficer), domain.BatchFilter{DistrictID: f.geo.DistrictID})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.True(t, decimal.RequireFromString("10").Equal(batches[0].Remaining()))
}

func TestPostgres_ConcurrentDuplicateApprovalsCommitOnce(t *testing.T) {
	f := newPGFixture(t)

	_, err := f.svc.AddDistrictStock(pgAs(f.districtOfficer), f.geo.DistrictID, f.productID, decimal.RequireFromString("100"))
	require.NoError(t, err)
	cellReq, err := f.svc.SubmitCellRequest(pgAs(f.cellOfficer), service.SubmitCellRequestInput{
		CellID: f.geo.CellID, ProductID: f.productID, Quantity: qty("100"),
	})
	require.NoError(t, err)
	_, err = f.svc.ApproveCellRequest(pgAs(f.districtOfficer), cellReq.Request.ID, nil)
	require.NoError(t, err)

	// both stay pending; only committed requests block a submission
	var ids []string
	for i := 0; i < 2; i++ {
		sub, err := f.svc.SubmitResourceRequest(pgAs(f.farmer), service.SubmitResourceRequestInput{
			Target: domain.LandTarget(f.landID), Quantity: qty("20"),
		})
		require.NoError(t, err)
		ids = append(ids, sub.Request.ID)
	}

	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = f.svc.ApproveResourceRequest(pgAs(f.cellOfficer), id, nil)
		}(i, id)
	}
	wg.Wait()

	var ok, refused int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Code(err) == "VALIDATION_ERROR":
			refused++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, refused)

	var available decimal.Decimal
	err = suite.DB.GetContext(context.Background(), &available,
		`SELECT quantity_available FROM cell_balances WHERE cell_id = $1 AND product_id = $2`, f.geo.CellID, f.productID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("80").Equal(available), "available %s", available)
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestPostgres_FarmerLifecycleAndOutbox(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddDistrictStock(pgAs(f.districtOfficer), f.geo.DistrictID, f.productID, decimal.RequireFromString("100"))
	require.NoError(t, err)

	cellReq, err := f.svc.SubmitCellRequest(pgAs(f.cellOfficer), service.SubmitCellRequestInput{
		CellID: f.geo.CellID, ProductID: f.productID, Quantity: qty("60"),
	})
	require.NoError(t, err)
	_, err = f.svc.ApproveCellRequest(pgAs(f.districtOfficer), cellReq.Request.ID, nil)
	require.NoError(t, err)

	sub, err := f.svc.SubmitResourceRequest(pgAs(f.farmer), service.SubmitResourceRequestInput{
		Target: domain.LandTarget(f.landID), Quantity: qty("40"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.QuotaPlannedCrop, sub.Request.QuotaRule)

	approved, err := f.svc.ApproveResourceRequest(pgAs(f.cellOfficer), sub.Request.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, approved.Balances.CellBalance)
	assert.True(t, decimal.RequireFromString("20").Equal(approved.Balances.CellBalance.QuantityAvailable))

	delivered, err := f.svc.MarkResourceRequestDelivered(pgAs(f.cellOfficer), sub.Request.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, delivered.Balances.FarmerBalance)
	assert.True(t, decimal.RequireFromString("40").Equal(delivered.Balances.FarmerBalance.Remaining()))

	_, err = f.svc.MarkResourceRequestDelivered(pgAs(f.cellOfficer), sub.Request.ID, nil)
	assert.Equal(t, "TERMINAL_STATE", errors.Code(err))

	pending, err := f.outbox.CountPending(ctx)
	require.NoError(t, err)
	require.Positive(t, pending)

	var types []string
	n, err := f.outbox.ProcessPending(ctx, 100, 5, func(_ context.Context, e domain.Event) error {
		types = append(types, e.Type)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, pending, n)
	assert.Equal(t, messaging.EventStockAdded, types[0])
	assert.Contains(t, types, messaging.EventFarmerCredited)

	pending, err = f.outbox.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}
