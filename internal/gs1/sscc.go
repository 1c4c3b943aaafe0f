package gs1

import (
	"fmt"
	"strings"
)

// SSCCLength is the length of a serial shipping container code
const SSCCLength = 18

// BuildSSCC assembles an 18-digit SSCC from its three components and appends
// the computed mod-10 check digit. The extension digit, company prefix and
// serial reference must together be exactly 17 digits.
func BuildSSCC(extensionDigit, companyPrefix, serialRef string) (string, error) {
	body := strings.TrimSpace(extensionDigit) + strings.TrimSpace(companyPrefix) + strings.TrimSpace(serialRef)
	if len(body) != SSCCLength-1 || !allDigits(body) {
		return "", fmt.Errorf("%w: sscc body must be 17 digits, got %q", ErrInvalidInput, body)
	}
	return body + string(rune('0'+checkDigit(body))), nil
}

// ValidateSSCC validates an 18-digit SSCC including its check digit
func ValidateSSCC(sscc string) error {
	sscc = strings.TrimSpace(sscc)
	if len(sscc) != SSCCLength || !allDigits(sscc) {
		return ErrInvalidLength
	}
	body, check := sscc[:SSCCLength-1], int(sscc[SSCCLength-1]-'0')
	if checkDigit(body) != check {
		return ErrInvalidCheckDigit
	}
	return nil
}

// BuildSSCCURN converts a validated 18-digit SSCC into its EPC pure-identity
// URN form, urn:epc:id:sscc:<companyPrefix>.<serialReference>. The serial
// reference leads with the extension digit and drops the check digit.
func BuildSSCCURN(sscc string) (string, error) {
	if err := ValidateSSCC(sscc); err != nil {
		return "", err
	}
	prefix := sscc[1 : 1+defaultCompanyPrefixLength]
	serial := string(sscc[0]) + sscc[1+defaultCompanyPrefixLength:SSCCLength-1]
	return fmt.Sprintf("urn:epc:id:sscc:%s.%s", prefix, serial), nil
}
