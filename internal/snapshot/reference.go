package snapshot

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/moolen/costlens/internal/models"
)

const (
	sqlProducts = `
		SELECT product_cd, COALESCE(product_nm, ''), product_grp,
		       COALESCE(proc_type, ''), COALESCE(use_yn, 'Y') = 'Y'
		FROM mst_product
		ORDER BY product_cd`

	sqlProcesses = `
		SELECT proc_cd, COALESCE(proc_nm, ''), COALESCE(proc_type, ''),
		       COALESCE(proc_grp, ''), COALESCE(alloc_type, ''), COALESCE(alloc_base, '')
		FROM mst_process
		ORDER BY proc_cd`

	sqlProcessGroups = `
		SELECT DISTINCT proc_grp, COALESCE(proc_type, '')
		FROM mst_process
		WHERE proc_grp IS NOT NULL
		ORDER BY proc_grp`

	sqlEquipment = `
		SELECT equip_cd, COALESCE(equip_nm, ''), proc_cd, COALESCE(fab_cd, '')
		FROM mst_equipment
		ORDER BY equip_cd`

	sqlMaterials = `
		SELECT mat_cd, COALESCE(mat_nm, ''), COALESCE(mat_type, ''), COALESCE(proc_type, '')
		FROM mst_material
		ORDER BY mat_cd`

	sqlCostElements = `
		SELECT ce_cd, COALESCE(ce_nm, ''), COALESCE(ce_grp, '')
		FROM mst_cost_element
		ORDER BY ce_cd`

	// Products with allocated cost, plus products with direct cost at the material process
	sqlProductProcesses = `
		SELECT product_cd, proc_cd FROM snp_alloc_result
		UNION
		SELECT product_cd, proc_cd FROM snp_cost_result WHERE proc_cd = $1
		ORDER BY 1, 2`

	sqlProcessCostElements = `
		SELECT DISTINCT proc_cd, ce_cd
		FROM snp_alloc_rate
		ORDER BY proc_cd, ce_cd`

	sqlLatestBOM = `
		SELECT yyyymm, product_cd, mat_cd, std_qty, unit_price, mat_amt
		FROM snp_bom
		WHERE yyyymm = (SELECT MAX(yyyymm) FROM snp_bom)
		ORDER BY product_cd, mat_cd`
)

// LoadReferenceData reads the master tables and the relationship facts the
// structural graph is derived from. materialProcess is the process whose direct
// cost results also link products to it.
func (s *Store) LoadReferenceData(ctx context.Context, materialProcess string) (*models.ReferenceData, error) {
	ref := &models.ReferenceData{}
	var err error

	if ref.Products, err = queryAll(ctx, s.pool, sqlProducts, func(rows pgx.Rows) (models.Product, error) {
		var p models.Product
		err := rows.Scan(&p.Code, &p.Name, &p.Group, &p.ProcessType, &p.Active)
		return p, err
	}); err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	if ref.Processes, err = queryAll(ctx, s.pool, sqlProcesses, func(rows pgx.Rows) (models.Process, error) {
		var p models.Process
		err := rows.Scan(&p.Code, &p.Name, &p.ProcessType, &p.Group, &p.AllocationType, &p.AllocationBasis)
		return p, err
	}); err != nil {
		return nil, fmt.Errorf("failed to load processes: %w", err)
	}

	if ref.ProcessGroups, err = queryAll(ctx, s.pool, sqlProcessGroups, func(rows pgx.Rows) (models.ProcessGroupRef, error) {
		var g models.ProcessGroupRef
		err := rows.Scan(&g.Code, &g.ProcessType)
		return g, err
	}); err != nil {
		return nil, fmt.Errorf("failed to load process groups: %w", err)
	}

	if ref.Equipment, err = queryAll(ctx, s.pool, sqlEquipment, func(rows pgx.Rows) (models.Equipment, error) {
		var e models.Equipment
		err := rows.Scan(&e.Code, &e.Name, &e.Process, &e.Fab)
		return e, err
	}); err != nil {
		return nil, fmt.Errorf("failed to load equipment: %w", err)
	}

	if ref.Materials, err = queryAll(ctx, s.pool, sqlMaterials, func(rows pgx.Rows) (models.Material, error) {
		var m models.Material
		err := rows.Scan(&m.Code, &m.Name, &m.MaterialType, &m.ProcessType)
		return m, err
	}); err != nil {
		return nil, fmt.Errorf("failed to load materials: %w", err)
	}

	if ref.CostElements, err = queryAll(ctx, s.pool, sqlCostElements, func(rows pgx.Rows) (models.CostElement, error) {
		var c models.CostElement
		err := rows.Scan(&c.Code, &c.Name, &c.Group)
		return c, err
	}); err != nil {
		return nil, fmt.Errorf("failed to load cost elements: %w", err)
	}

	if ref.ProductProcesses, err = queryAll(ctx, s.pool, sqlProductProcesses, func(rows pgx.Rows) (models.ProductProcess, error) {
		var pp models.ProductProcess
		err := rows.Scan(&pp.Product, &pp.Process)
		return pp, err
	}, materialProcess); err != nil {
		return nil, fmt.Errorf("failed to load product processes: %w", err)
	}

	if ref.ProcessCostElements, err = queryAll(ctx, s.pool, sqlProcessCostElements, func(rows pgx.Rows) (models.ProcessCostElement, error) {
		var pc models.ProcessCostElement
		err := rows.Scan(&pc.Process, &pc.CostElement)
		return pc, err
	}); err != nil {
		return nil, fmt.Errorf("failed to load process cost elements: %w", err)
	}

	if ref.MaterialUsage, err = queryAll(ctx, s.pool, sqlLatestBOM, func(rows pgx.Rows) (models.BOMLine, error) {
		var b models.BOMLine
		var ym string
		if err := rows.Scan(&ym, &b.Key.Product, &b.Key.Material, &b.Quantity, &b.UnitPrice, &b.Amount); err != nil {
			return b, err
		}
		month, err := models.ParseMonth(ym)
		b.Month = month
		return b, err
	}); err != nil {
		return nil, fmt.Errorf("failed to load latest BOM: %w", err)
	}

	s.logger.Debug("Loaded reference data: %d products, %d processes, %d equipment, %d materials",
		len(ref.Products), len(ref.Processes), len(ref.Equipment), len(ref.Materials))
	return ref, nil
}

const sqlProductGroups = `
		SELECT product_cd, COALESCE(product_grp, '')
		FROM mst_product`

// ProductGroups maps product codes to their product group
func (s *Store) ProductGroups(ctx context.Context) (map[string]string, error) {
	type pair struct{ product, group string }
	pairs, err := queryAll(ctx, s.pool, sqlProductGroups, func(rows pgx.Rows) (pair, error) {
		var p pair
		err := rows.Scan(&p.product, &p.group)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load product groups: %w", err)
	}

	groups := make(map[string]string, len(pairs))
	for _, p := range pairs {
		groups[p.product] = p.group
	}
	return groups, nil
}
