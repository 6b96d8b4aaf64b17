package validation

import "github.com/iliamunaev/checkout-engine/internal/model"

const (
	msgEmailInvalid     = "Please enter a valid email address."
	msgNameInvalid      = "Please use letters, spaces, hyphens and apostrophes only."
	msgCityInvalid      = "Please enter a valid city name."
	msgPhoneInvalid     = "Please enter a valid phone number."
	msgPostalInvalid    = "Please enter a valid postal code."
	msgCardNumber       = "Please enter a valid card number."
	msgCardCVV          = "Please enter a valid security code."
	msgExpMonthRequired = "Expiration month is required."
	msgExpMonthInvalid  = "Please select a valid expiration month."
	msgExpYearRequired  = "Expiration year is required."
	msgExpYearInvalid   = "Please select a valid expiration year."
	msgCardExpired      = "This card has expired."
)

var fieldLabels = map[string]string{
	model.FieldEmail:     "Email",
	model.FieldFirstName: "First name",
	model.FieldLastName:  "Last name",
	model.FieldCountry:   "Country",
	model.FieldAddress1:  "Address",
	model.FieldCity:      "City",
	model.FieldProvince:  "State/Province",
	model.FieldPostal:    "Postal code",
	model.FieldPhone:     "Phone number",
}

// requiredMessage builds the "is required" message for a field, using the
// country's own labels for province and postal code when known.
func requiredMessage(field string, cfg *model.CountryConfig) string {
	base := model.ShippingField(field)
	label, ok := fieldLabels[base]
	if !ok {
		label = "This field"
	}
	if cfg != nil {
		switch {
		case base == model.FieldProvince && cfg.StateLabel != "":
			label = cfg.StateLabel
		case base == model.FieldPostal && cfg.PostcodeLabel != "":
			label = cfg.PostcodeLabel
		}
	}
	return label + " is required."
}

func postalMessage(cfg *model.CountryConfig) string {
	if cfg != nil && cfg.PostcodeExample != "" {
		return msgPostalInvalid + " Example: " + cfg.PostcodeExample
	}
	return msgPostalInvalid
}
