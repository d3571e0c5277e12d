package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// CanonicalSKU normalises a SKU so visually identical codes collide on the unique index:
// surrounding space is trimmed, the text is NFC-normalised and upper-cased.
func CanonicalSKU(raw string) (string, error) {
	sku := strings.TrimSpace(raw)
	if sku == "" {
		return "", shared.NewValidationError("sku", "is required")
	}
	sku = cases.Upper(language.Und).String(norm.NFC.String(sku))
	for _, r := range sku {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", shared.NewValidationError("sku", "must not contain whitespace")
		}
	}
	return sku, nil
}
