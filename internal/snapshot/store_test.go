package snapshot

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/moolen/costlens/internal/models"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	store, err := New(context.Background(), mockPool)
	require.NoError(t, err)
	return store, mockPool
}

func TestNewStore(t *testing.T) {
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mockPool.Close()

	pingErr := errors.New("database unavailable")
	mockPool.ExpectPing().WillReturnError(pingErr)

	_, err = New(context.Background(), mockPool)
	require.Error(t, err)
	assert.ErrorIs(t, err, pingErr)
	assert.Contains(t, err.Error(), "failed to ping database")
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestLoadMonthFacts(t *testing.T) {
	store, mockPool := newMockStore(t)
	month := models.MustParseMonth("202402")

	mockPool.ExpectQuery(regexp.QuoteMeta(sqlAllocationRates)).
		WithArgs("202402", "ALLOC").
		WillReturnRows(pgxmock.NewRows([]string{"proc_cd", "ce_cd", "total_cost", "total_base", "base_unit", "alloc_rate"}).
			AddRow("FE_01", "CE_DEP", 1050.0, 100.0, "ST", 105000.0).
			AddRow("FE_02", "CE_DEP", 500.0, 0.0, "", 0.0))
	mockPool.ExpectQuery(regexp.QuoteMeta(sqlAllocationResults)).
		WithArgs("202402", "ALLOC").
		WillReturnRows(pgxmock.NewRows([]string{"product_cd", "proc_cd", "ce_cd", "alloc_qty", "alloc_amt"}).
			AddRow("P001", "FE_01", "CE_DEP", 12.0, 126.0))
	mockPool.ExpectQuery(regexp.QuoteMeta(sqlBOM)).
		WithArgs("202402").
		WillReturnRows(pgxmock.NewRows([]string{"product_cd", "mat_cd", "std_qty", "unit_price", "mat_amt"}).
			AddRow("P001", "MAT_01", 4.0, 2.5, 10.0))

	facts, err := store.LoadMonthFacts(context.Background(), month, "ALLOC")
	require.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())

	assert.Equal(t, month, facts.Month)
	require.Len(t, facts.Rates, 2)
	rate := facts.Rates[models.RateKey{Process: "FE_01", CostElement: "CE_DEP"}]
	assert.Equal(t, 105000.0, rate.Rate)
	assert.Equal(t, "ST", rate.BasisUnit)
	assert.Equal(t, month, rate.Month)

	alloc := facts.Allocations[models.CostKey{Product: "P001", Process: "FE_01", CostElement: "CE_DEP"}]
	assert.Equal(t, 12.0, alloc.Quantity)
	assert.Equal(t, 126.0, alloc.Amount)

	bom := facts.BOM[models.BOMKey{Product: "P001", Material: "MAT_01"}]
	assert.Equal(t, 2.5, bom.UnitPrice)
}

func TestLoadMonthFactsQueryError(t *testing.T) {
	store, mockPool := newMockStore(t)

	queryErr := errors.New("relation does not exist")
	mockPool.ExpectQuery(regexp.QuoteMeta(sqlAllocationRates)).
		WithArgs("202402", "ALLOC").
		WillReturnError(queryErr)

	_, err := store.LoadMonthFacts(context.Background(), models.MustParseMonth("202402"), "ALLOC")
	require.Error(t, err)
	assert.ErrorIs(t, err, queryErr)
	assert.Contains(t, err.Error(), "allocation rates for 202402")
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestUpsertVariances(t *testing.T) {
	month := models.MustParseMonth("202402")
	variances := []models.Variance{
		{
			ID: "V202402_P001_FE_01_CE_DEP_RV", Month: month, Product: "P001", ProductGroup: "PG_DRAM",
			Process: "FE_01", CostElement: "CE_DEP", Type: models.VarianceTypeRate,
			Amount: 4.204, PriorAmount: 100, CurrentAmount: 126.0049,
		},
		{
			ID: "V202402__FE_01_CE_DEP_RV", Month: month, ProductGroup: "PG_DRAM",
			Process: "FE_01", CostElement: "CE_DEP", Type: models.VarianceTypeRate,
			Amount: 1, PriorAmount: 0, CurrentAmount: 1,
		},
	}

	t.Run("rounds and commits", func(t *testing.T) {
		store, mockPool := newMockStore(t)

		mockPool.ExpectBegin()
		mockPool.ExpectExec(regexp.QuoteMeta(sqlUpsertVariance)).
			WithArgs("V202402_P001_FE_01_CE_DEP_RV", "202402", "P001", "PG_DRAM", "FE_01", "CE_DEP",
				"RATE_VAR", 4.2, 0.042, 100.0, 126.0).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(regexp.QuoteMeta(sqlUpsertVariance)).
			WithArgs("V202402__FE_01_CE_DEP_RV", "202402", nil, "PG_DRAM", "FE_01", "CE_DEP",
				"RATE_VAR", 1.0, 0.0, 0.0, 1.0).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()

		require.NoError(t, store.UpsertVariances(context.Background(), variances))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("rolls back on exec failure", func(t *testing.T) {
		store, mockPool := newMockStore(t)

		execErr := errors.New("constraint violation")
		mockPool.ExpectBegin()
		mockPool.ExpectExec(regexp.QuoteMeta(sqlUpsertVariance)).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(execErr)
		mockPool.ExpectRollback()

		err := store.UpsertVariances(context.Background(), variances)
		require.Error(t, err)
		assert.ErrorIs(t, err, execErr)
		assert.Contains(t, err.Error(), "V202402_P001_FE_01_CE_DEP_RV")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("empty input is a no-op", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		require.NoError(t, store.UpsertVariances(context.Background(), nil))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestLoadVariances(t *testing.T) {
	store, mockPool := newMockStore(t)
	month := models.MustParseMonth("202402")

	mockPool.ExpectQuery(regexp.QuoteMeta(sqlVariances)).
		WithArgs("202402").
		WillReturnRows(pgxmock.NewRows([]string{"var_id", "product_cd", "product_grp", "proc_cd", "ce_cd", "var_type",
			"var_amt", "var_rate", "prev_amt", "curr_amt"}).
			AddRow("V202402_P001_FE_01_CE_DEP_QV", "P001", "PG_DRAM", "FE_01", "CE_DEP", "QTY_VAR", 3.0, 0.03, 100.0, 126.0))

	variances, err := store.LoadVariances(context.Background(), month)
	require.NoError(t, err)
	require.Len(t, variances, 1)
	assert.Equal(t, models.VarianceTypeQuantity, variances[0].Type)
	assert.Equal(t, month, variances[0].Month)
	assert.Equal(t, 3.0, variances[0].Amount)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestCostSeriesIsAscending(t *testing.T) {
	store, mockPool := newMockStore(t)
	key := models.CostKey{Product: "P001", Process: "FE_01", CostElement: "CE_DEP"}

	mockPool.ExpectQuery(regexp.QuoteMeta(sqlCostSeries)).
		WithArgs("P001", "FE_01", "CE_DEP", 12).
		WillReturnRows(pgxmock.NewRows([]string{"yyyymm", "sum"}).
			AddRow("202403", 130.0).
			AddRow("202402", 126.0).
			AddRow("202401", 100.0))

	points, err := store.CostSeries(context.Background(), key, 12)
	require.NoError(t, err)
	assert.Equal(t, []models.CostPoint{
		{Month: "202401", Amount: 100},
		{Month: "202402", Amount: 126},
		{Month: "202403", Amount: 130},
	}, points)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestLoadEvents(t *testing.T) {
	store, mockPool := newMockStore(t)
	month := models.MustParseMonth("202402")

	mockPool.ExpectQuery(regexp.QuoteMeta(sqlEquipmentMetricEvents)).
		WithArgs("202402").
		WillReturnRows(pgxmock.NewRows([]string{"equip_cd", "metric_type", "prev_value", "curr_value", "chg_value", "chg_rate"}).
			AddRow("EQ_ETCH_01", "UTIL", 0.80, 0.65, -0.15, -0.1875))
	mockPool.ExpectQuery(regexp.QuoteMeta(sqlDesignChangeEvents)).
		WithArgs("202402").
		WillReturnRows(pgxmock.NewRows([]string{"event_id", "product_cd", "chg_type", "chg_desc"}).
			AddRow("PLM_0001", "P001", "BOM_CHG", "layer count 64 to 72"))
	mockPool.ExpectQuery(regexp.QuoteMeta(sqlProcurementEvents)).
		WithArgs("202402").
		WillReturnRows(pgxmock.NewRows([]string{"event_id", "mat_cd", "chg_type", "prev_value", "curr_value", "chg_rate", "chg_reason"}).
			AddRow("PUR_0001", "MAT_01", "PRICE_CHG", 2.0, 2.5, 0.25, "supplier increase"))

	events, err := store.LoadEvents(context.Background(), month)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, "MES_202402_EQ_ETCH_01_UTIL", events[0].ID)
	assert.Equal(t, models.EventTypeUtilizationChange, events[0].Type)
	assert.Equal(t, models.EventSourceEquipmentMetric, events[0].Source)
	assert.Equal(t, "EQ_ETCH_01", events[0].TargetRef)

	assert.Equal(t, models.EventSourceDesignChange, events[1].Source)
	assert.Equal(t, "layer count 64 to 72", events[1].Description)

	assert.Equal(t, models.EventSourceProcurement, events[2].Source)
	assert.InDelta(t, 0.5, events[2].ChangeValue, 1e-9)
	assert.Equal(t, "supplier increase", events[2].Description)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestLoadReferenceData(t *testing.T) {
	store, mockPool := newMockStore(t)

	mockPool.ExpectQuery(regexp.QuoteMeta(sqlProducts)).
		WillReturnRows(pgxmock.NewRows([]string{"product_cd", "product_nm", "product_grp", "proc_type", "active"}).
			AddRow("P001", "DRAM 8Gb", "PG_DRAM", "FE", true))
	mockPool.ExpectQuery(regexp.QuoteMeta(sqlProcesses)).
		WillReturnRows(pgxmock.NewRows([]string{"proc_cd", "proc_nm", "proc_type", "proc_grp", "alloc_type", "alloc_base"}).
			AddRow("FE_01", "Etch", "FE", "ETCH", "ALLOC", "ST").
			AddRow("BE_01", "Package", "BE", "", "DIRECT", ""))
	mockPool.ExpectQuery(regexp.QuoteMeta(sqlProcessGroups)).
		WillReturnRows(pgxmock.NewRows([]string{"proc_grp", "proc_type"}).AddRow("ETCH", "FE"))
	mockPool.ExpectQuery(regexp.QuoteMeta(sqlEquipment)).
		WillReturnRows(pgxmock.NewRows([]string{"equip_cd", "equip_nm", "proc_cd", "fab_cd"}).
			AddRow("EQ_ETCH_01", "Etcher 1", "FE_01", "FAB1"))
	mockPool.ExpectQuery(regexp.QuoteMeta(sqlMaterials)).
		WillReturnRows(pgxmock.NewRows([]string{"mat_cd", "mat_nm", "mat_type", "proc_type"}).
			AddRow("MAT_01", "Substrate", "DIRECT", "BE"))
	mockPool.ExpectQuery(regexp.QuoteMeta(sqlCostElements)).
		WillReturnRows(pgxmock.NewRows([]string{"ce_cd", "ce_nm", "ce_grp"}).
			AddRow("CE_DEP", "Depreciation", "FIXED"))
	mockPool.ExpectQuery(regexp.QuoteMeta(sqlProductProcesses)).
		WithArgs("BE_01").
		WillReturnRows(pgxmock.NewRows([]string{"product_cd", "proc_cd"}).
			AddRow("P001", "BE_01").
			AddRow("P001", "FE_01"))
	mockPool.ExpectQuery(regexp.QuoteMeta(sqlProcessCostElements)).
		WillReturnRows(pgxmock.NewRows([]string{"proc_cd", "ce_cd"}).AddRow("FE_01", "CE_DEP"))
	mockPool.ExpectQuery(regexp.QuoteMeta(sqlLatestBOM)).
		WillReturnRows(pgxmock.NewRows([]string{"yyyymm", "product_cd", "mat_cd", "std_qty", "unit_price", "mat_amt"}).
			AddRow("202403", "P001", "MAT_01", 4.0, 2.5, 10.0))

	ref, err := store.LoadReferenceData(context.Background(), "BE_01")
	require.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())

	require.Len(t, ref.Products, 1)
	assert.True(t, ref.Products[0].Active)
	assert.Len(t, ref.Processes, 2)
	assert.Equal(t, "ST", ref.Processes[0].AllocationBasis)
	assert.Equal(t, []models.ProductProcess{{Product: "P001", Process: "BE_01"}, {Product: "P001", Process: "FE_01"}}, ref.ProductProcesses)
	require.Len(t, ref.MaterialUsage, 1)
	assert.Equal(t, models.MustParseMonth("202403"), ref.MaterialUsage[0].Month)
}

func TestProductGroups(t *testing.T) {
	store, mockPool := newMockStore(t)

	mockPool.ExpectQuery(regexp.QuoteMeta(sqlProductGroups)).
		WillReturnRows(pgxmock.NewRows([]string{"product_cd", "product_grp"}).
			AddRow("P001", "PG_DRAM").
			AddRow("P002", ""))

	groups, err := store.ProductGroups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"P001": "PG_DRAM", "P002": ""}, groups)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
