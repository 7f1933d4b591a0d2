// Package snapshot reads closed-month cost snapshots, master data and source-system
// events from the relational store, and persists computed variance records.
package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/moolen/costlens/internal/config"
	"github.com/moolen/costlens/internal/logging"
	"github.com/moolen/costlens/internal/models"
)

// DBPool abstracts pgxpool.Pool so the store can be tested with pgxmock
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is the PostgreSQL snapshot and variance store
type Store struct {
	pool   DBPool
	logger *logging.Logger
}

// NewPool creates a connection pool from the database configuration.
// Connections are established lazily.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return pool, nil
}

// New creates a store and verifies the connection
func New(ctx context.Context, pool DBPool) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool:   pool,
		logger: logging.GetLogger("snapshot"),
	}, nil
}

// queryAll runs sql and scans every row with scan
func queryAll[T any](ctx context.Context, pool DBPool, sql string, scan func(pgx.Rows) (T, error), args ...interface{}) ([]T, error) {
	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

const (
	sqlAllocationRates = `
		SELECT r.proc_cd, r.ce_cd, r.total_cost, r.total_base,
		       COALESCE(r.base_unit, ''), COALESCE(r.alloc_rate, 0)
		FROM snp_alloc_rate r
		JOIN mst_process p ON r.proc_cd = p.proc_cd
		WHERE r.yyyymm = $1 AND p.alloc_type = $2`

	sqlAllocationResults = `
		SELECT a.product_cd, a.proc_cd, a.ce_cd, a.alloc_qty, a.alloc_amt
		FROM snp_alloc_result a
		JOIN mst_process p ON a.proc_cd = p.proc_cd
		WHERE a.yyyymm = $1 AND p.alloc_type = $2`

	sqlBOM = `
		SELECT product_cd, mat_cd, std_qty, unit_price, mat_amt
		FROM snp_bom
		WHERE yyyymm = $1`
)

// LoadMonthFacts loads allocation rates and results of processes with the given
// allocation type, plus the bill of materials, for one month
func (s *Store) LoadMonthFacts(ctx context.Context, month models.Month, allocationType string) (models.MonthFacts, error) {
	ym := month.String()

	rates, err := queryAll(ctx, s.pool, sqlAllocationRates, func(rows pgx.Rows) (models.AllocationRate, error) {
		r := models.AllocationRate{Month: month}
		err := rows.Scan(&r.Key.Process, &r.Key.CostElement, &r.TotalCost, &r.TotalBasis, &r.BasisUnit, &r.Rate)
		return r, err
	}, ym, allocationType)
	if err != nil {
		return models.MonthFacts{}, fmt.Errorf("failed to load allocation rates for %s: %w", month, err)
	}

	allocations, err := queryAll(ctx, s.pool, sqlAllocationResults, func(rows pgx.Rows) (models.AllocationResult, error) {
		a := models.AllocationResult{Month: month}
		err := rows.Scan(&a.Key.Product, &a.Key.Process, &a.Key.CostElement, &a.Quantity, &a.Amount)
		return a, err
	}, ym, allocationType)
	if err != nil {
		return models.MonthFacts{}, fmt.Errorf("failed to load allocation results for %s: %w", month, err)
	}

	bom, err := queryAll(ctx, s.pool, sqlBOM, func(rows pgx.Rows) (models.BOMLine, error) {
		b := models.BOMLine{Month: month}
		err := rows.Scan(&b.Key.Product, &b.Key.Material, &b.Quantity, &b.UnitPrice, &b.Amount)
		return b, err
	}, ym)
	if err != nil {
		return models.MonthFacts{}, fmt.Errorf("failed to load BOM for %s: %w", month, err)
	}

	s.logger.Debug("Loaded %s: %d rates, %d allocations, %d BOM lines", month, len(rates), len(allocations), len(bom))
	return models.NewMonthFacts(month, rates, allocations, bom), nil
}

const sqlUpsertVariance = `
		INSERT INTO cal_variance
		(var_id, yyyymm, product_cd, product_grp, proc_cd, ce_cd,
		 var_type, var_amt, var_rate, prev_amt, curr_amt)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (var_id) DO UPDATE SET
			var_amt = EXCLUDED.var_amt,
			var_rate = EXCLUDED.var_rate,
			prev_amt = EXCLUDED.prev_amt,
			curr_amt = EXCLUDED.curr_amt`

// UpsertVariances stores variance records rounded to storage precision in one
// transaction. Only the amount columns of existing rows are updated.
func (s *Store) UpsertVariances(ctx context.Context, variances []models.Variance) error {
	if len(variances) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.logger.Error("Failed to rollback transaction: %v", rollbackErr)
		}
	}()

	for _, v := range variances {
		r := v.Rounded()
		if _, err := tx.Exec(ctx, sqlUpsertVariance,
			r.ID, r.Month.String(), nullable(r.Product), r.ProductGroup, r.Process, r.CostElement,
			string(r.Type), r.Amount, r.Rate, r.PriorAmount, r.CurrentAmount,
		); err != nil {
			return fmt.Errorf("failed to upsert variance %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.logger.Debug("Upserted %d variance records", len(variances))
	return nil
}

const sqlVariances = `
		SELECT var_id, COALESCE(product_cd, ''), COALESCE(product_grp, ''),
		       COALESCE(proc_cd, ''), COALESCE(ce_cd, ''), var_type,
		       COALESCE(var_amt, 0), COALESCE(var_rate, 0),
		       COALESCE(prev_amt, 0), COALESCE(curr_amt, 0)
		FROM cal_variance
		WHERE yyyymm = $1
		ORDER BY var_id`

// LoadVariances returns the stored variance records of a month ordered by id
func (s *Store) LoadVariances(ctx context.Context, month models.Month) ([]models.Variance, error) {
	variances, err := queryAll(ctx, s.pool, sqlVariances, func(rows pgx.Rows) (models.Variance, error) {
		v := models.Variance{Month: month}
		var varType string
		err := rows.Scan(&v.ID, &v.Product, &v.ProductGroup, &v.Process, &v.CostElement, &varType,
			&v.Amount, &v.Rate, &v.PriorAmount, &v.CurrentAmount)
		v.Type = models.VarianceType(varType)
		return v, err
	}, month.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load variances for %s: %w", month, err)
	}
	return variances, nil
}

const sqlCostSeries = `
		SELECT yyyymm, SUM(cost_amt)
		FROM snp_cost_result
		WHERE product_cd = $1 AND proc_cd = $2 AND ce_cd = $3
		GROUP BY yyyymm
		ORDER BY yyyymm DESC
		LIMIT $4`

// CostSeries returns up to limit most recent months of cost for a key, oldest first
func (s *Store) CostSeries(ctx context.Context, key models.CostKey, limit int) ([]models.CostPoint, error) {
	points, err := queryAll(ctx, s.pool, sqlCostSeries, func(rows pgx.Rows) (models.CostPoint, error) {
		var p models.CostPoint
		err := rows.Scan(&p.Month, &p.Amount)
		return p, err
	}, key.Product, key.Process, key.CostElement, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load cost series: %w", err)
	}

	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Component adapts a pool to lifecycle.Component
type Component struct {
	pool *pgxpool.Pool
}

// NewComponent wraps a pool for the lifecycle manager
func NewComponent(pool *pgxpool.Pool) *Component {
	return &Component{pool: pool}
}

// Start verifies the database is reachable
func (c *Component) Start(ctx context.Context) error {
	if err := c.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// Stop closes every pooled connection
func (c *Component) Stop(ctx context.Context) error {
	c.pool.Close()
	return nil
}

// Name implements lifecycle.Component
func (c *Component) Name() string {
	return "Snapshot Store"
}
