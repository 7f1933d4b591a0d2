package models

import (
	"fmt"
	"math"
	"strings"
)

// VarianceType identifies which decomposition term a variance record carries
type VarianceType string

const (
	// Allocation family
	VarianceTypeRate      VarianceType = "RATE_VAR"
	VarianceTypeQuantity  VarianceType = "QTY_VAR"
	VarianceTypeRateCost  VarianceType = "RATE_COST" // child of RATE_VAR, numerator moved
	VarianceTypeRateBasis VarianceType = "RATE_BASE" // child of RATE_VAR, denominator moved

	// Material family
	VarianceTypePrice VarianceType = "PRICE_VAR"
	VarianceTypeUsage VarianceType = "USAGE_VAR"

	// VarianceTypeTotal is a coarser per-product aggregate. It is never produced by the
	// decomposition engine but is linked to its details when present in the graph.
	VarianceTypeTotal VarianceType = "TOTAL_VAR"
)

// Suffix returns the short disambiguating suffix used in variance ids
func (t VarianceType) Suffix() string {
	switch t {
	case VarianceTypeRate:
		return "RV"
	case VarianceTypeQuantity:
		return "QV"
	case VarianceTypeRateCost:
		return "RC"
	case VarianceTypeRateBasis:
		return "RB"
	case VarianceTypePrice:
		return "PV"
	case VarianceTypeUsage:
		return "UV"
	default:
		return string(t)
	}
}

// VarianceLevel tags a variance node by granularity
type VarianceLevel string

const (
	VarianceLevelGroup   VarianceLevel = "GROUP"
	VarianceLevelProduct VarianceLevel = "PRODUCT"
)

// Variance is one decomposition term for a (month, product, process, cost element) key
type Variance struct {
	ID            string       `json:"id" yaml:"id"`
	Month         Month        `json:"month" yaml:"month"`
	Product       string       `json:"product" yaml:"product"`
	ProductGroup  string       `json:"productGroup" yaml:"productGroup"`
	Process       string       `json:"process" yaml:"process"`
	CostElement   string       `json:"costElement" yaml:"costElement"`
	Type          VarianceType `json:"type" yaml:"type"`
	Amount        float64      `json:"amount" yaml:"amount"`               // signed, currency
	Rate          float64      `json:"rate" yaml:"rate"`                   // Amount / PriorAmount, 0 when PriorAmount is 0
	PriorAmount   float64      `json:"priorAmount" yaml:"priorAmount"`     // amount of the key in the prior month
	CurrentAmount float64      `json:"currentAmount" yaml:"currentAmount"` // amount of the key in the target month
}

// Level returns GROUP for records without a product, PRODUCT otherwise
func (v Variance) Level() VarianceLevel {
	if v.Product == "" {
		return VarianceLevelGroup
	}
	return VarianceLevelProduct
}

// VarianceRate returns amount/prior, defined as exactly 0 when prior is 0
func VarianceRate(amount, prior float64) float64 {
	if prior == 0 {
		return 0
	}
	return amount / prior
}

// VarianceID builds the deterministic composite key of a variance record
func VarianceID(month Month, product, process, costElement string, t VarianceType) string {
	return fmt.Sprintf("V%s_%s_%s_%s_%s", month, product, process, costElement, t.Suffix())
}

// MaterialVarianceID builds the key of a material-family record. The material process
// code is compacted (underscores removed) and the cost element collapses to MAT.
func MaterialVarianceID(month Month, product, materialProcess string, t VarianceType) string {
	return fmt.Sprintf("V%s_%s_%s_MAT_%s", month, product, strings.ReplaceAll(materialProcess, "_", ""), t.Suffix())
}

// Rounded returns a copy rounded to storage precision: amounts to 2 decimals and the
// rate to 4 decimals. The rate is recomputed from full precision inputs first.
func (v Variance) Rounded() Variance {
	out := v
	out.Amount = Round(v.Amount, 2)
	out.PriorAmount = Round(v.PriorAmount, 2)
	out.CurrentAmount = Round(v.CurrentAmount, 2)
	out.Rate = Round(VarianceRate(v.Amount, v.PriorAmount), 4)
	return out
}

// Round rounds half away from zero to the given number of decimals
func Round(x float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(x*p) / p
}
