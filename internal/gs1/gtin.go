package gs1

import (
	"errors"
	"strings"
)

// Validation errors. These are expected outcomes, not exceptional conditions;
// callers branch on them with errors.Is.
var (
	ErrInvalidLength     = errors.New("gtin must be exactly 14 digits")
	ErrInvalidCheckDigit = errors.New("gtin check digit mismatch")
	ErrInvalidInput      = errors.New("invalid gs1 input")
	ErrInvalidGTIN       = errors.New("invalid gtin")
)

// GTINLength is the length of a GTIN-14
const GTINLength = 14

// defaultCompanyPrefixLength is the GS1 company prefix length assumed when
// decomposing identifiers into EPC URN fields. Prefix lengths vary between
// 6 and 12 digits in the wild; without access to the GS1 prefix registry the
// national registrar's standard allocation is used.
const defaultCompanyPrefixLength = 7

// ValidateGTIN validates a GTIN-14: exactly 14 digits with a correct mod-10
// check digit.
func ValidateGTIN(gtin string) error {
	gtin = strings.TrimSpace(gtin)
	if len(gtin) != GTINLength || !allDigits(gtin) {
		return ErrInvalidLength
	}
	body, check := gtin[:GTINLength-1], int(gtin[GTINLength-1]-'0')
	if checkDigit(body) != check {
		return ErrInvalidCheckDigit
	}
	return nil
}

// BuildGTINWithCheckDigit appends the mod-10 check digit to a 13-digit GTIN
// body, producing a valid GTIN-14.
func BuildGTINWithCheckDigit(body string) (string, error) {
	body = strings.TrimSpace(body)
	if len(body) != GTINLength-1 || !allDigits(body) {
		return "", ErrInvalidInput
	}
	return body + string(rune('0'+checkDigit(body))), nil
}
