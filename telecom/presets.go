/*
presets.go - Ready-made scheme definitions

PURPOSE:
  Builds scheme JSON for the two advisor populations so demos, tests and
  a fresh database have something realistic to evaluate. The JSON is
  built here rather than as scheme.Scheme values so it goes through the
  same factory path as schemes coming from the editor.

AVAILABLE PRESETS:
  StoreAdvisorSchemeJSON:     Postpaid/portability principals, renewal
                              additional, accessories PxQ, monthly bonus
  CorporateAdvisorSchemeJSON: Amount-denominated corporate lines with a
                              handset mix split

USAGE:
  data := telecom.StoreAdvisorSchemeJSON("store-2025-04", 2025, 4)
  s, err := factory.NewSchemeFactory().ParseScheme([]byte(data))

SEE ALSO:
  - factory/scheme.go: JSON schema
  - api/scenarios.go: Demo scenarios built on these presets
*/
package telecom

import (
	json "github.com/goccy/go-json"
)

// StoreAdvisorSchemeJSON returns JSON for the store advisor scheme.
func StoreAdvisorSchemeJSON(id string, year, month int) string {
	sj := map[string]any{
		"id":                      id,
		"name":                    "Store advisors",
		"type":                    string(SchemeStoreAdvisor),
		"year":                    year,
		"month":                   month,
		"fixed_salary":            1025,
		"variable_salary":         600,
		"total_quota":             30,
		"default_min_fulfillment": 0.5,
		"items": []map[string]any{
			{
				"key":             "postpaid",
				"name":            "Postpaid lines",
				"category":        "principal",
				"display_order":   1,
				"quota":           20,
				"quota_metric":    "postpaid",
				"weight":          0.6,
				"variable_amount": 360,
				"has_cap":         true,
				"cap_percentage":  1.2,
				"sale_types": []map[string]any{
					{"code": SalePostpaidLine.Code},
				},
			},
			{
				"key":             "portability",
				"name":            "Portability",
				"category":        "principal",
				"display_order":   2,
				"quota":           10,
				"quota_metric":    "portability",
				"weight":          0.4,
				"variable_amount": 240,
				"min_fulfillment": 0.6,
				"has_cap":         true,
				"cap_percentage":  1.0,
				"sale_types": []map[string]any{
					{"code": SalePortability.Code},
				},
			},
			{
				"key":             "renewal",
				"name":            "Renewals",
				"category":        "additional",
				"display_order":   3,
				"quota":           8,
				"variable_amount": 100,
				"has_cap":         true,
				"cap_amount":      120,
				"sale_types": []map[string]any{
					{"code": SaleRenewal.Code},
				},
				"locks": []map[string]any{
					{"type": "min_quantity", "required_item": "postpaid", "required_value": 5},
				},
			},
			{
				"key":           "accessories",
				"name":          "Accessories",
				"category":      "pxq",
				"display_order": 4,
				"quota":         10,
				"sale_types": []map[string]any{
					{"code": SaleAccessory.Code},
				},
				"tiers": []map[string]any{
					{"min_fulfillment": 0, "max_fulfillment": 0.5, "amount_per_unit": 2},
					{"min_fulfillment": 0.5, "max_fulfillment": 1.0, "amount_per_unit": 4},
					{"min_fulfillment": 1.0, "amount_per_unit": 6},
				},
			},
			{
				"key":             "monthly_bonus",
				"name":            "Monthly bonus",
				"category":        "bonus",
				"display_order":   5,
				"variable_amount": 150,
				"locks": []map[string]any{
					{"type": "min_fulfillment", "required_value": 1.0},
				},
			},
		},
		"restrictions": []map[string]any{
			{
				"id":        id + "-unlimited-cap",
				"type":      "max_percentage",
				"scope":     "advisor",
				"plan_code": PlanUnlimited99,
				"threshold": 0.1,
				"item_key":  "postpaid",
			},
			{
				"id":            id + "-bitel-origin",
				"type":          "operator_origin",
				"scope":         "advisor",
				"operator_code": OperatorBitel,
				"threshold":     0.5,
				"item_key":      "portability",
			},
		},
	}
	b, _ := json.MarshalIndent(sj, "", "  ")
	return string(b)
}

// CorporateAdvisorSchemeJSON returns JSON for the corporate advisor scheme.
func CorporateAdvisorSchemeJSON(id string, year, month int) string {
	sj := map[string]any{
		"id":              id,
		"name":            "Corporate advisors",
		"type":            string(SchemeCorporateAdvisor),
		"year":            year,
		"month":           month,
		"fixed_salary":    1800,
		"variable_salary": 1200,
		"total_quota":     40,
		"items": []map[string]any{
			{
				"key":             "corporate_lines",
				"name":            "Corporate lines (revenue)",
				"category":        "principal",
				"display_order":   1,
				"quota_amount":    6000,
				"unit_value":      150,
				"weight":          0.7,
				"variable_amount": 840,
				"has_cap":         true,
				"cap_percentage":  1.5,
				"cap_amount":      1100,
				"sale_types": []map[string]any{
					{"code": SalePostpaidLine.Code},
					{"code": SalePortability.Code},
				},
			},
			{
				"key":             "handsets_line",
				"name":            "Handsets with line",
				"category":        "principal",
				"display_order":   2,
				"quota":           20,
				"weight":          0.18,
				"mix_factor":      0.6,
				"variable_amount": 600,
				"sale_types": []map[string]any{
					{"code": SaleHandset.Code, "counts": "line"},
				},
			},
			{
				"key":             "handsets_equipment",
				"name":            "Handsets (equipment)",
				"category":        "principal",
				"display_order":   3,
				"quota":           20,
				"weight":          0.12,
				"mix_factor":      0.4,
				"variable_amount": 600,
				"sale_types": []map[string]any{
					{"code": SaleHandset.Code, "counts": "equipment"},
				},
			},
			{
				"key":             "quarter_push",
				"name":            "Revenue push bonus",
				"category":        "bonus",
				"display_order":   4,
				"quota":           30,
				"variable_amount": 250,
				"sale_types": []map[string]any{
					{"code": SalePostpaidLine.Code},
				},
				"locks": []map[string]any{
					{"type": "min_amount", "required_item": "corporate_lines", "required_value": 4500},
				},
			},
		},
		"restrictions": []map[string]any{
			{
				"id":        id + "-store-unlimited",
				"type":      "max_percentage",
				"scope":     "store",
				"plan_code": PlanUnlimited99,
				"threshold": 0.25,
			},
		},
	}
	b, _ := json.MarshalIndent(sj, "", "  ")
	return string(b)
}
