package models

// CostKey addresses a product's cost at a process and cost element
type CostKey struct {
	Product     string
	Process     string
	CostElement string
}

// RateKey addresses a process/cost-element allocation pool
type RateKey struct {
	Process     string
	CostElement string
}

// BOMKey addresses a bill-of-materials line
type BOMKey struct {
	Product  string
	Material string
}

// CostResult is a product's final cost at one process and cost element
type CostResult struct {
	Month  Month
	Key    CostKey
	Amount float64
}

// AllocationRate is the per-unit rate of an allocation pool.
// Rate = TotalCost * 10000 / TotalBasis.
type AllocationRate struct {
	Month      Month
	Key        RateKey
	TotalCost  float64
	TotalBasis float64
	BasisUnit  string
	Rate       float64
}

// AllocationResult is the share of an allocation pool assigned to a product
type AllocationResult struct {
	Month    Month
	Key      CostKey
	Quantity float64
	Amount   float64
}

// BOMLine is one material line of a product's bill of materials
type BOMLine struct {
	Month     Month
	Key       BOMKey
	Quantity  float64
	UnitPrice float64
	Amount    float64
}

// MonthFacts holds one month of snapshot facts keyed for exact-key joins
type MonthFacts struct {
	Month       Month
	Rates       map[RateKey]AllocationRate
	Allocations map[CostKey]AllocationResult
	BOM         map[BOMKey]BOMLine
}

// NewMonthFacts indexes fact rows of a single month
func NewMonthFacts(month Month, rates []AllocationRate, allocations []AllocationResult, bom []BOMLine) MonthFacts {
	f := MonthFacts{
		Month:       month,
		Rates:       make(map[RateKey]AllocationRate, len(rates)),
		Allocations: make(map[CostKey]AllocationResult, len(allocations)),
		BOM:         make(map[BOMKey]BOMLine, len(bom)),
	}
	for _, r := range rates {
		f.Rates[r.Key] = r
	}
	for _, a := range allocations {
		f.Allocations[a.Key] = a
	}
	for _, b := range bom {
		f.BOM[b.Key] = b
	}
	return f
}

// CostPoint is one month of a cost time series
type CostPoint struct {
	Month  string  `json:"month" yaml:"month"`
	Amount float64 `json:"amount" yaml:"amount"`
}
