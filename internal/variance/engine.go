package variance

import (
	"context"
	"fmt"
	"time"

	"github.com/moolen/costlens/internal/config"
	"github.com/moolen/costlens/internal/logging"
	"github.com/moolen/costlens/internal/models"
)

// Store is the snapshot store surface the engine reads from and writes to
type Store interface {
	LoadMonthFacts(ctx context.Context, month models.Month, allocationType string) (models.MonthFacts, error)
	ProductGroups(ctx context.Context) (map[string]string, error)
	UpsertVariances(ctx context.Context, variances []models.Variance) error
}

// Engine decomposes one target month against its predecessor
type Engine struct {
	store  Store
	cfg    config.VarianceConfig
	logger *logging.Logger
}

// NewEngine creates a decomposition engine
func NewEngine(store Store, cfg config.VarianceConfig) *Engine {
	return &Engine{
		store:  store,
		cfg:    cfg,
		logger: logging.GetLogger("variance"),
	}
}

// Compute loads month and its predecessor and returns the full-precision
// variance records without persisting them
func (e *Engine) Compute(ctx context.Context, month models.Month) ([]models.Variance, error) {
	prior, err := e.store.LoadMonthFacts(ctx, month.Prev(), e.cfg.AllocationType)
	if err != nil {
		return nil, err
	}
	current, err := e.store.LoadMonthFacts(ctx, month, e.cfg.AllocationType)
	if err != nil {
		return nil, err
	}
	groups, err := e.store.ProductGroups(ctx)
	if err != nil {
		return nil, err
	}

	return Decompose(prior, current, groups, e.cfg), nil
}

// Run computes the month's variance records and upserts them by id.
// The returned records keep full precision; the store rounds on write.
func (e *Engine) Run(ctx context.Context, month models.Month) ([]models.Variance, error) {
	start := time.Now()

	variances, err := e.Compute(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("failed to decompose %s: %w", month, err)
	}
	if err := e.store.UpsertVariances(ctx, variances); err != nil {
		return nil, fmt.Errorf("failed to store variances for %s: %w", month, err)
	}

	totals := Totals(variances)
	e.logger.WithContext(ctx).InfoWithFields("Variance decomposition complete",
		logging.Field("month", month.String()),
		logging.Field("records", len(variances)),
		logging.Field("rate_var", models.Round(totals[models.VarianceTypeRate], 2)),
		logging.Field("qty_var", models.Round(totals[models.VarianceTypeQuantity], 2)),
		logging.Field("price_var", models.Round(totals[models.VarianceTypePrice], 2)),
		logging.Field("usage_var", models.Round(totals[models.VarianceTypeUsage], 2)),
		logging.Field("duration_ms", time.Since(start).Milliseconds()),
	)
	return variances, nil
}
