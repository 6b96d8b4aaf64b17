package model

// CardData is the non-sensitive input sent alongside the widget's
// iframe-held card number and CVV.
type CardData struct {
	FullName string `json:"full_name"`
	Month    string `json:"month"`
	Year     string `json:"year"`
}

// CardMetadata describes the tokenized card.
type CardMetadata struct {
	CardType    string `json:"card_type,omitempty"`
	LastFour    string `json:"last_four_digits,omitempty"`
	FirstSix    string `json:"first_six_digits,omitempty"`
	Month       string `json:"month,omitempty"`
	Year        string `json:"year,omitempty"`
	FullName    string `json:"full_name,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// TokenizationOutcome is exactly one of TokenOutcome, ValidationErrorsOutcome
// or TimeoutOutcome.
type TokenizationOutcome interface {
	tokenizationOutcome()
}

// TokenOutcome carries a card token.
type TokenOutcome struct {
	Token string
	Card  CardMetadata
}

// ValidationErrorsOutcome carries the vendor's rejection messages.
type ValidationErrorsOutcome struct {
	Errors []VendorFieldError
}

// TimeoutOutcome is produced when the vendor never answered.
type TimeoutOutcome struct{}

func (TokenOutcome) tokenizationOutcome()            {}
func (ValidationErrorsOutcome) tokenizationOutcome() {}
func (TimeoutOutcome) tokenizationOutcome()          {}

// VendorFieldError is one message reported by the tokenization widget.
type VendorFieldError struct {
	Attribute string `json:"attribute"`
	Message   string `json:"message"`
}
