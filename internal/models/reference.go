package models

// Product is a sellable item belonging to a product group
type Product struct {
	Code        string
	Name        string
	Group       string
	ProcessType string // FE or BE
	Active      bool
}

// Process is a major manufacturing process
type Process struct {
	Code            string
	Name            string
	ProcessType     string // FE or BE
	Group           string // process group code, may be empty
	AllocationType  string // ALLOC for rate x basis allocation
	AllocationBasis string // allocation basis code
}

// Equipment is a tool installed at a process
type Equipment struct {
	Code    string
	Name    string
	Process string
	Fab     string
}

// Material is a purchased item
type Material struct {
	Code         string
	Name         string
	MaterialType string
	ProcessType  string
}

// CostElement is a cost classification (labour, depreciation, material ...)
type CostElement struct {
	Code  string
	Name  string
	Group string
}

// ProcessGroupRef is a distinct process group and the process type it belongs to
type ProcessGroupRef struct {
	Code        string
	ProcessType string
}

// ProductProcess is a product incurring cost at a process
type ProductProcess struct {
	Product string
	Process string
}

// ProcessCostElement is a cost element composing a process's cost
type ProcessCostElement struct {
	Process     string
	CostElement string
}

// ReferenceData is the current topology source: master tables plus the relationship
// facts the structural graph is derived from
type ReferenceData struct {
	Products            []Product
	Processes           []Process
	ProcessGroups       []ProcessGroupRef
	Equipment           []Equipment
	Materials           []Material
	CostElements        []CostElement
	ProductProcesses    []ProductProcess
	ProcessCostElements []ProcessCostElement
	MaterialUsage       []BOMLine // latest BOM month
}
