package registry

import "context"

// CountyRecord is one row of the county boundary/identifier reference table.
type CountyRecord struct {
	StateCode  int
	CountyCode int
	Name       string // "Jackson"
	LongName   string // "Jackson County"
}

// StateRecord is one row of the state reference table.
type StateRecord struct {
	Code int
	Name string
	Abbr string
}

// MetroRecord assigns one county to a metro (DMA) grouping.
type MetroRecord struct {
	StateCode  int
	CountyCode int
	Metro      int
	MetroName  string
}

// ReferenceData bundles the base tables the registry is built from.
type ReferenceData struct {
	Counties []CountyRecord
	States   []StateRecord
	Metros   []MetroRecord
}

// ReferenceSource loads the base reference tables.
type ReferenceSource interface {
	LoadReference(ctx context.Context) (ReferenceData, error)
}

// Store persists a built registry so later runs can skip the build.
type Store interface {
	SaveRegistry(ctx context.Context, reg *Registry) error
	LoadRegistry(ctx context.Context) (*Registry, error)
}
