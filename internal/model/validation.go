package model

// ValidationResult is produced fresh for every validation pass.
type ValidationResult struct {
	IsValid         bool              `json:"is_valid"`
	Errors          map[string]string `json:"errors,omitempty"`
	FirstErrorField string            `json:"first_error_field,omitempty"`
}

// Valid returns a passing result.
func Valid() ValidationResult {
	return ValidationResult{IsValid: true, Errors: map[string]string{}}
}
