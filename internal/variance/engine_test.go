package variance

import (
	"context"
	"errors"
	"testing"

	"github.com/moolen/costlens/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	facts    map[models.Month]models.MonthFacts
	groups   map[string]string
	loadErr  error
	writeErr error

	months          []models.Month
	allocationTypes []string
	written         []models.Variance
}

func (f *fakeStore) LoadMonthFacts(_ context.Context, month models.Month, allocationType string) (models.MonthFacts, error) {
	f.months = append(f.months, month)
	f.allocationTypes = append(f.allocationTypes, allocationType)
	if f.loadErr != nil {
		return models.MonthFacts{}, f.loadErr
	}
	if facts, ok := f.facts[month]; ok {
		return facts, nil
	}
	return models.NewMonthFacts(month, nil, nil, nil), nil
}

func (f *fakeStore) ProductGroups(context.Context) (map[string]string, error) {
	return f.groups, nil
}

func (f *fakeStore) UpsertVariances(_ context.Context, variances []models.Variance) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, variances...)
	return nil
}

func scenarioStore() *fakeStore {
	return &fakeStore{
		facts: map[models.Month]models.MonthFacts{
			priorMonth: models.NewMonthFacts(priorMonth,
				[]models.AllocationRate{rate(priorMonth, "FE_01", "CE_DEP", 250, 100, 25000)},
				[]models.AllocationResult{alloc(priorMonth, "X", "FE_01", "CE_DEP", 13, 32.5)},
				[]models.BOMLine{bomLine(priorMonth, "X", "M", 100, 1920)}),
			currentMonth: models.NewMonthFacts(currentMonth,
				[]models.AllocationRate{rate(currentMonth, "FE_01", "CE_DEP", 260, 93, 0)},
				[]models.AllocationResult{alloc(currentMonth, "X", "FE_01", "CE_DEP", 14.2, 39.7)},
				[]models.BOMLine{bomLine(currentMonth, "X", "M", 100, 2160)}),
		},
		groups: map[string]string{"X": "PG_DRAM"},
	}
}

func TestEngineRun(t *testing.T) {
	store := scenarioStore()
	engine := NewEngine(store, testCfg)

	variances, err := engine.Run(context.Background(), currentMonth)
	require.NoError(t, err)
	assert.Len(t, variances, 6)
	assert.Equal(t, variances, store.written)
	assert.Equal(t, []string{"ALLOC", "ALLOC"}, store.allocationTypes)

	for _, v := range variances {
		assert.Equal(t, "PG_DRAM", v.ProductGroup)
	}
}

func TestEngineRunJanuaryUsesPriorDecember(t *testing.T) {
	store := &fakeStore{}
	engine := NewEngine(store, testCfg)

	_, err := engine.Compute(context.Background(), models.MustParseMonth("202401"))
	require.NoError(t, err)
	assert.Equal(t, []models.Month{models.MustParseMonth("202312"), models.MustParseMonth("202401")}, store.months)
}

func TestEngineRunErrors(t *testing.T) {
	t.Run("load failure", func(t *testing.T) {
		loadErr := errors.New("connection refused")
		store := scenarioStore()
		store.loadErr = loadErr

		_, err := NewEngine(store, testCfg).Run(context.Background(), currentMonth)
		require.Error(t, err)
		assert.ErrorIs(t, err, loadErr)
		assert.Contains(t, err.Error(), "failed to decompose 202402")
		assert.Empty(t, store.written)
	})

	t.Run("write failure", func(t *testing.T) {
		writeErr := errors.New("deadlock detected")
		store := scenarioStore()
		store.writeErr = writeErr

		_, err := NewEngine(store, testCfg).Run(context.Background(), currentMonth)
		require.Error(t, err)
		assert.ErrorIs(t, err, writeErr)
		assert.Contains(t, err.Error(), "failed to store variances")
	})
}
