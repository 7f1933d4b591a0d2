// Package variance decomposes month-over-month cost changes into typed variance
// records.
//
// Two families are produced. The allocation family splits the change of a
// product's allocated cost into a rate variance and a quantity variance, and the
// rate variance further into the part caused by the pool's total cost moving
// (RATE_COST) and the residual caused by its basis moving (RATE_BASE). The
// material family splits a product's bill-of-materials cost change into price
// and usage variances.
//
// Arithmetic is done at full precision. Rounding to storage precision happens
// in the snapshot store, so family sums hold to within a cent.
package variance

import (
	"sort"

	"github.com/moolen/costlens/internal/config"
	"github.com/moolen/costlens/internal/models"
)

// rateScale converts between per-10000-unit rates and currency amounts
const rateScale = 10000.0

// AllocationTerms are the four allocation-family terms of one cost key
type AllocationTerms struct {
	Rate        float64
	Quantity    float64
	CostEffect  float64
	BasisEffect float64
}

// Allocation computes the allocation-family terms.
// r0/r1 are per-10000 rates, q0/q1 allocated quantities, c0/c1 pool costs and b0
// the prior pool basis. A zero prior basis makes the cost effect 0.
func Allocation(r0, r1, q0, q1, c0, c1, b0 float64) AllocationTerms {
	t := AllocationTerms{
		Rate:     (r1 - r0) * q1 / rateScale,
		Quantity: r0 * (q1 - q0) / rateScale,
	}
	if b0 != 0 {
		t.CostEffect = (c1 - c0) * q1 / b0
	}
	t.BasisEffect = t.Rate - t.CostEffect
	return t
}

// MaterialTerms are the material-family terms of one product
type MaterialTerms struct {
	Price float64
	Usage float64
}

// Add adds one BOM line's price and usage terms to m
func (m *MaterialTerms) Add(p0, p1, q0, q1 float64) {
	m.Price += (p1 - p0) * q1 / rateScale
	m.Usage += p0 * (q1 - q0) / rateScale
}

// effectiveRate returns the stored rate, or derives it from cost and basis when
// the snapshot left it empty
func effectiveRate(r models.AllocationRate) float64 {
	if r.Rate == 0 && r.TotalBasis != 0 {
		return r.TotalCost * rateScale / r.TotalBasis
	}
	return r.Rate
}

// Decompose computes every variance record of current.Month against prior.
// groups maps product codes to product groups. Keys without a prior-month match
// are skipped. The result is ordered by id.
func Decompose(prior, current models.MonthFacts, groups map[string]string, cfg config.VarianceConfig) []models.Variance {
	variances := decomposeAllocations(prior, current, groups)
	variances = append(variances, decomposeMaterials(prior, current, groups, cfg)...)

	sort.Slice(variances, func(i, j int) bool {
		return variances[i].ID < variances[j].ID
	})
	return variances
}

func decomposeAllocations(prior, current models.MonthFacts, groups map[string]string) []models.Variance {
	month := current.Month
	var out []models.Variance

	for key, a1 := range current.Allocations {
		a0, ok := prior.Allocations[key]
		if !ok {
			continue
		}
		rateKey := models.RateKey{Process: key.Process, CostElement: key.CostElement}
		rate0, ok0 := prior.Rates[rateKey]
		rate1, ok1 := current.Rates[rateKey]
		if !ok0 || !ok1 {
			continue
		}

		terms := Allocation(
			effectiveRate(rate0), effectiveRate(rate1),
			a0.Quantity, a1.Quantity,
			rate0.TotalCost, rate1.TotalCost,
			rate0.TotalBasis,
		)

		record := func(t models.VarianceType, amount float64) models.Variance {
			return models.Variance{
				ID:            models.VarianceID(month, key.Product, key.Process, key.CostElement, t),
				Month:         month,
				Product:       key.Product,
				ProductGroup:  groups[key.Product],
				Process:       key.Process,
				CostElement:   key.CostElement,
				Type:          t,
				Amount:        amount,
				Rate:          models.VarianceRate(amount, a0.Amount),
				PriorAmount:   a0.Amount,
				CurrentAmount: a1.Amount,
			}
		}

		out = append(out,
			record(models.VarianceTypeRate, terms.Rate),
			record(models.VarianceTypeQuantity, terms.Quantity),
			record(models.VarianceTypeRateCost, terms.CostEffect),
			record(models.VarianceTypeRateBasis, terms.BasisEffect),
		)
	}
	return out
}

type materialTotals struct {
	terms    MaterialTerms
	prior    float64
	current  float64
	hasPrior bool
}

func decomposeMaterials(prior, current models.MonthFacts, groups map[string]string, cfg config.VarianceConfig) []models.Variance {
	month := current.Month
	totals := make(map[string]*materialTotals)

	for key, line1 := range current.BOM {
		t := totals[key.Product]
		if t == nil {
			t = &materialTotals{}
			totals[key.Product] = t
		}
		t.current += line1.Amount

		if line0, ok := prior.BOM[key]; ok {
			t.terms.Add(line0.UnitPrice, line1.UnitPrice, line0.Quantity, line1.Quantity)
		}
	}
	// Lines present in one month only add to the totals but not to the terms
	for key, line0 := range prior.BOM {
		if t := totals[key.Product]; t != nil {
			t.prior += line0.Amount
			t.hasPrior = true
		}
	}

	var out []models.Variance
	for product, t := range totals {
		if !t.hasPrior {
			continue
		}
		record := func(vt models.VarianceType, amount float64) models.Variance {
			return models.Variance{
				ID:            models.MaterialVarianceID(month, product, cfg.MaterialProcess, vt),
				Month:         month,
				Product:       product,
				ProductGroup:  groups[product],
				Process:       cfg.MaterialProcess,
				CostElement:   cfg.MaterialCostElement,
				Type:          vt,
				Amount:        amount,
				Rate:          models.VarianceRate(amount, t.prior),
				PriorAmount:   t.prior,
				CurrentAmount: t.current,
			}
		}
		out = append(out,
			record(models.VarianceTypePrice, t.terms.Price),
			record(models.VarianceTypeUsage, t.terms.Usage),
		)
	}
	return out
}

// Totals sums variance amounts by type
func Totals(variances []models.Variance) map[models.VarianceType]float64 {
	totals := make(map[models.VarianceType]float64)
	for _, v := range variances {
		totals[v.Type] += v.Amount
	}
	return totals
}
