package validation

import (
	"strconv"
	"strings"
	"time"

	"github.com/iliamunaev/checkout-engine/internal/model"
)

// maxCardYears bounds how far in the future an expiration year may be.
const maxCardYears = 20

// ValidateExpiration checks a card expiration date against now. It returns
// the offending field and its message, or two empty strings.
func ValidateExpiration(month, year string, now time.Time) (field, message string) {
	month, year = strings.TrimSpace(month), strings.TrimSpace(year)

	if month == "" {
		return model.FieldExpMonth, msgExpMonthRequired
	}
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return model.FieldExpMonth, msgExpMonthInvalid
	}

	if year == "" {
		return model.FieldExpYear, msgExpYearRequired
	}
	y, err := strconv.Atoi(year)
	if err != nil || y < 0 {
		return model.FieldExpYear, msgExpYearInvalid
	}
	if len(year) <= 2 {
		y += 2000
	}

	current := now.Year()
	if y < current || y > current+maxCardYears {
		return model.FieldExpYear, msgExpYearInvalid
	}
	if y == current && m < int(now.Month()) {
		return model.FieldExpMonth, msgCardExpired
	}
	return "", ""
}
