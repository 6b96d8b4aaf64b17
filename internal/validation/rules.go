package validation

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	namePattern  = regexp.MustCompile(`^[\p{L}\p{M}\s'’\-]+$`)
	phonePattern = regexp.MustCompile(`^\+?[\d\s\-().]+$`)
)

// ValidEmail checks the syntactic shape of an address and rejects
// consecutive dots, dots at either edge of the local or domain part, and
// top-level domains shorter than two characters.
func ValidEmail(value string) bool {
	value = strings.TrimSpace(value)
	if !emailPattern.MatchString(value) {
		return false
	}
	if strings.Contains(value, "..") {
		return false
	}

	at := strings.LastIndex(value, "@")
	local, domain := value[:at], value[at+1:]
	for _, part := range []string{local, domain} {
		if part == "" || strings.HasPrefix(part, ".") || strings.HasSuffix(part, ".") {
			return false
		}
	}

	tld := domain[strings.LastIndex(domain, ".")+1:]
	return utf8.RuneCountInString(tld) >= 2
}

// ValidName accepts letters (accented included), spaces, hyphens and
// apostrophes.
func ValidName(value string) bool {
	value = strings.TrimSpace(norm.NFC.String(value))
	if value == "" {
		return false
	}
	return namePattern.MatchString(value) && strings.IndexFunc(value, unicode.IsLetter) >= 0
}

// ValidCity requires a leading letter, no digits, no runs of three hyphens
// or three spaces, and at least two characters.
func ValidCity(value string) bool {
	value = strings.TrimSpace(norm.NFC.String(value))
	if utf8.RuneCountInString(value) < 2 {
		return false
	}
	first, _ := utf8.DecodeRuneInString(value)
	if !unicode.IsLetter(first) {
		return false
	}
	if strings.IndexFunc(value, unicode.IsDigit) >= 0 {
		return false
	}
	if strings.Contains(value, "---") || strings.Contains(value, "   ") {
		return false
	}
	return true
}

// ValidPhone is the fallback check used when no phone-formatting widget is
// attached to the field: 7 to 15 digits with common separators.
func ValidPhone(value string) bool {
	value = strings.TrimSpace(value)
	if !phonePattern.MatchString(value) {
		return false
	}
	digits := 0
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 7 && digits <= 15
}
