package plans

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sherlocker/sherlocker-backend/pkg/db/dbtest"
	"github.com/sherlocker/sherlocker-backend/pkg/enums"
)

func TestRepositoryListActiveNewestFirst(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()

	older := dbtest.SeedPlan(t, db, "STARTER", 19500, enums.PlanPeriodicityMonthly, 150, false)
	require.NoError(t, db.Model(older).Update("created_at", time.Now().UTC().Add(-time.Hour)).Error)
	newer := dbtest.SeedPlan(t, db, "PREMIUM", 42500, enums.PlanPeriodicityMonthly, 600, false)
	retired := dbtest.SeedPlan(t, db, "LEGACY", 9900, enums.PlanPeriodicityMonthly, 90, false)
	require.NoError(t, db.Model(retired).Update("is_active", false).Error)

	rows, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, newer.ID, rows[0].ID)
	assert.Equal(t, older.ID, rows[1].ID)

	missing, err := repo.FindByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepositoryFindFreePlan(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()

	none, err := repo.FindFreePlan(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	zeroPriced := dbtest.SeedPlan(t, db, "TRIAL", 0, enums.PlanPeriodicityMonthly, 10, false)
	found, err := repo.FindFreePlan(ctx)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, zeroPriced.ID, found.ID)

	flagged := dbtest.SeedPlan(t, db, "FREE", 0, enums.PlanPeriodicityMonthly, 50, true)
	found, err = repo.FindFreePlan(ctx)
	require.NoError(t, err)
	assert.Equal(t, flagged.ID, found.ID)
}

func TestCycleArithmetic(t *testing.T) {
	base := time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC), AddCycle(enums.PlanPeriodicityDays, base))
	assert.Equal(t, time.Date(2027, 1, 31, 10, 0, 0, 0, time.UTC), AddCycle(enums.PlanPeriodicityAnnual, base))
	// time.AddDate normalizes Feb 31 into March.
	assert.Equal(t, time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC), AddCycle(enums.PlanPeriodicityMonthly, base))

	march := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC), SubtractCycle(enums.PlanPeriodicityMonthly, march))
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), SubtractCycle(enums.PlanPeriodicityDays, march))
	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), SubtractCycle(enums.PlanPeriodicityAnnual, march))
}

func TestServiceListActiveMapsPrice(t *testing.T) {
	db := dbtest.Open(t)
	dbtest.SeedPlan(t, db, "STARTER", 19500, enums.PlanPeriodicityMonthly, 150, false)

	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	plans, err := svc.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "195", plans[0].Price.String())
	assert.Equal(t, int64(19500), plans[0].Amount)
	assert.Equal(t, 150, plans[0].TokenCost)

	_, err = NewService(nil)
	assert.Error(t, err)
}
