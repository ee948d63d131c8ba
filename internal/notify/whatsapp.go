package notify

import (
	"net/url"
	"strings"
)

// DefaultCountryCode replaces a leading trunk 0 in local numbers
const DefaultCountryCode = "62"

// NormalizePhone keeps digits only and turns a local 0-prefixed number into
// its international form
func NormalizePhone(phone, countryCode string) string {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}

	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if strings.HasPrefix(digits, "0") {
		digits = countryCode + strings.TrimLeft(digits, "0")
	}
	return digits
}

// WhatsAppLink builds a wa.me deep link that opens a chat with text prefilled
func WhatsAppLink(phone, text, countryCode string) (string, error) {
	digits := NormalizePhone(phone, countryCode)
	if digits == "" {
		return "", &FormatError{Field: "phone"}
	}

	link := "https://wa.me/" + digits
	if text != "" {
		link += "?text=" + strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
	}
	return link, nil
}
