package model

// Country is one selectable shipping/billing country.
type Country struct {
	Code string `json:"iso2"`
	Name string `json:"name"`
}

// State is one state/province entry of a country.
type State struct {
	Code string `json:"iso"`
	Name string `json:"name"`
}

// CountryConfig describes the address rules of a country. It is immutable
// once fetched.
type CountryConfig struct {
	Code            string `json:"code"`
	StateLabel      string `json:"state_label"`
	PostcodeLabel   string `json:"postcode_label"`
	StateRequired   bool   `json:"state_required"`
	PostcodeExample string `json:"postcode_example,omitempty"`
	PostcodePattern string `json:"postcode_regex,omitempty"`
}

// StatesResult is the answer to a state-list lookup.
type StatesResult struct {
	States        []State       `json:"states"`
	CountryConfig CountryConfig `json:"country_config"`
}

// HasState reports whether value matches a state code or name.
func (r StatesResult) HasState(value string) (State, bool) {
	for _, s := range r.States {
		if s.Code == value || s.Name == value {
			return s, true
		}
	}
	return State{}, false
}
