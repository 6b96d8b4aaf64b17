package address

import "github.com/iliamunaev/checkout-engine/internal/model"

// FieldPolicy says how the state/province field is presented.
type FieldPolicy struct {
	Visible  bool
	Required bool
	Label    string
}

// PolicyFor derives the state field policy from a country's answer. A
// country with no states and no requirement hides the field.
func PolicyFor(res model.StatesResult) FieldPolicy {
	required := res.CountryConfig.StateRequired
	label := res.CountryConfig.StateLabel
	if label == "" {
		label = "State/Province"
	}
	return FieldPolicy{
		Visible:  required || len(res.States) > 0,
		Required: required,
		Label:    label,
	}
}

// ReconcileState decides the state field's value after a country change.
// A prior value survives only if the new list contains it; a hidden field
// is always blanked. An empty result is not an error until submission.
func ReconcileState(prev string, res model.StatesResult, p FieldPolicy) string {
	if !p.Visible {
		return ""
	}
	if len(res.States) == 0 {
		return prev
	}
	if s, ok := res.HasState(prev); ok {
		return s.Code
	}
	return ""
}
