// Package telecom implements the telecom retail domain on top of the
// scheme model: the sale-type codes the sales feed reports, donor
// operators, plan codes, preset schemes and the folding of raw sale
// lines into per-item units.
package telecom

import "github.com/warp/commission-engine/scheme"

// =============================================================================
// SALE TYPES
// =============================================================================

const Domain = "telecom"

// Sale-type codes reported by the sales feed.
var (
	SalePostpaidLine = scheme.SaleType{Code: "postpaid_line", Description: "New postpaid line", Counts: scheme.CountLine, Domain: Domain}
	SalePrepaidLine  = scheme.SaleType{Code: "prepaid_line", Description: "New prepaid line", Counts: scheme.CountLine, Domain: Domain}
	SalePortability  = scheme.SaleType{Code: "portability", Description: "Number ported from another operator", Counts: scheme.CountLine, Domain: Domain}
	SaleRenewal      = scheme.SaleType{Code: "renewal", Description: "Contract renewal", Counts: scheme.CountLine, Domain: Domain}
	SaleHandset      = scheme.SaleType{Code: "handset", Description: "Handset sold with or without a line", Counts: scheme.CountEquipment, Domain: Domain}
	SaleAccessory    = scheme.SaleType{Code: "accessory", Description: "Accessory", Counts: scheme.CountEquipment, Domain: Domain}
)

// Register all telecom sale types with the scheme registry.
func init() {
	scheme.RegisterSaleType(SalePostpaidLine)
	scheme.RegisterSaleType(SalePrepaidLine)
	scheme.RegisterSaleType(SalePortability)
	scheme.RegisterSaleType(SaleRenewal)
	scheme.RegisterSaleType(SaleHandset)
	scheme.RegisterSaleType(SaleAccessory)
}

// =============================================================================
// OPERATORS AND PLANS
// =============================================================================

// Donor operator codes for portability sales.
const (
	OperatorMovistar = "movistar"
	OperatorClaro    = "claro"
	OperatorEntel    = "entel"
	OperatorBitel    = "bitel"
)

// Operators lists the known donor operators.
var Operators = []string{OperatorMovistar, OperatorClaro, OperatorEntel, OperatorBitel}

// Pricing plan codes.
const (
	PlanUnlimited99 = "unlimited_99"
	PlanMax69       = "max_69"
	PlanBasic29     = "basic_29"
	PlanPrepaid     = "prepaid"
)

// Scheme types.
const (
	SchemeStoreAdvisor     scheme.SchemeType = "store_advisor"
	SchemeCorporateAdvisor scheme.SchemeType = "corporate_advisor"
)
