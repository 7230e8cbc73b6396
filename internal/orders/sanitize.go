package orders

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

const maxSanitizePasses = 8

// SanitizeText strips all markup from free text. It repeats until stable so that
// entity-encoded markup cannot survive the unescape step. Input still changing after
// maxSanitizePasses is returned in its escaped form.
func SanitizeText(s string) string {
	out := s
	for i := 0; i < maxSanitizePasses; i++ {
		next := html.UnescapeString(strict.Sanitize(out))
		if next == out {
			return strings.TrimSpace(out)
		}
		out = next
	}
	return strings.TrimSpace(strict.Sanitize(out))
}

func SanitizeAddress(a DeliveryAddress) DeliveryAddress {
	return DeliveryAddress{
		FullName:            SanitizeText(a.FullName),
		AddressLine1:        SanitizeText(a.AddressLine1),
		AddressLine2:        SanitizeText(a.AddressLine2),
		City:                SanitizeText(a.City),
		State:               SanitizeText(a.State),
		PostalCode:          SanitizeText(a.PostalCode),
		Country:             SanitizeText(a.Country),
		SpecialInstructions: SanitizeText(a.SpecialInstructions),
	}
}

func sanitizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if s := SanitizeText(t); s != "" {
			out = append(out, s)
		}
	}
	return out
}
