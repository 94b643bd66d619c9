package model

// FieldKey names a known enrichment field. Keeping the set closed preserves
// type safety over what is otherwise an open field bag.
type FieldKey string

const (
	// Tech stack detection.
	FieldTechStack      FieldKey = "company_tech_stack"
	FieldTechCategories FieldKey = "company_tech_categories"
	FieldCMS            FieldKey = "company_cms"
	FieldAnalytics      FieldKey = "company_analytics"

	// Company firmographics.
	FieldDescription   FieldKey = "company_description"
	FieldCompanyType   FieldKey = "company_type"
	FieldFounded       FieldKey = "company_founded"
	FieldHeadquarters  FieldKey = "company_headquarters"
	FieldEmployeeCount FieldKey = "company_employee_count"
	FieldRevenue       FieldKey = "company_revenue"
	FieldIndustry      FieldKey = "company_industry"

	// Pipeline bookkeeping carried alongside enriched data.
	FieldVerification  FieldKey = "verification"
	FieldQualification FieldKey = "qualification"
	FieldPipelineError FieldKey = "pipeline_error"
	FieldDuplicateOf   FieldKey = "duplicate_of"
)

// FieldBag is an open mapping of known enrichment field names to values.
type FieldBag map[FieldKey]any

// Merge copies fields from other into the bag without overwriting fields
// that already hold a non-empty value. Returns the keys actually added.
func (b FieldBag) Merge(other FieldBag) []FieldKey {
	var added []FieldKey
	for k, v := range other {
		if isEmptyValue(v) {
			continue
		}
		if cur, ok := b[k]; ok && !isEmptyValue(cur) {
			continue
		}
		b[k] = v
		added = append(added, k)
	}
	return added
}

// Completeness returns the fraction of fields holding a non-empty value.
// An empty bag scores zero.
func (b FieldBag) Completeness() float64 {
	if len(b) == 0 {
		return 0
	}
	filled := 0
	for _, v := range b {
		if !isEmptyValue(v) {
			filled++
		}
	}
	return float64(filled) / float64(len(b))
}

// Clone returns a shallow copy of the bag.
func (b FieldBag) Clone() FieldBag {
	out := make(FieldBag, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []string:
		return len(t) == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}
