/*
saletype.go - Sale-type registration and lookup

PURPOSE:
  Raw sales arrive tagged with a sale-type code ("postpaid_line",
  "portability", "handset"...). Domain packages register the codes they
  know, with the default counting mode, so the factory can validate item
  mappings and the aggregator can fold raw sales into item units.

HOW IT WORKS:
  1. Domain packages define their SaleType values
  2. They register them from init()
  3. factory and telecom.Aggregate look codes up by string

USAGE:
  // In telecom/types.go
  func init() {
      scheme.RegisterSaleType(SalePostpaidLine)
  }

  st, ok := scheme.LookupSaleType("postpaid_line")

SEE ALSO:
  - telecom/types.go: Telecom sale types
  - factory/scheme.go: Validates item sale-type mappings
*/
package scheme

import (
	"sort"
	"sync"
)

// =============================================================================
// SALE TYPE REGISTRY
// =============================================================================

// SaleType describes a raw sale code and how it counts by default.
type SaleType struct {
	Code        string
	Description string
	Counts      CountMode
	Domain      string
}

var (
	saleTypeRegistry = make(map[string]SaleType)
	registryMu       sync.RWMutex
)

// RegisterSaleType adds a sale type to the global registry.
// Call this from domain package init() functions.
func RegisterSaleType(st SaleType) {
	registryMu.Lock()
	defer registryMu.Unlock()
	saleTypeRegistry[st.Code] = st
}

// LookupSaleType finds a registered sale type by code.
func LookupSaleType(code string) (SaleType, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	st, ok := saleTypeRegistry[code]
	return st, ok
}

// ListSaleTypes returns all registered sale types ordered by code.
func ListSaleTypes() []SaleType {
	registryMu.RLock()
	defer registryMu.RUnlock()
	result := make([]SaleType, 0, len(saleTypeRegistry))
	for _, st := range saleTypeRegistry {
		result = append(result, st)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result
}

// ResolveCountMode returns the explicit mode when set, else the
// registered default for the code, else CountLine.
func ResolveCountMode(code string, explicit CountMode) CountMode {
	if explicit != "" {
		return explicit
	}
	if st, ok := LookupSaleType(code); ok && st.Counts != "" {
		return st.Counts
	}
	return CountLine
}
