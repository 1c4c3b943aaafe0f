package gs1

import (
	"fmt"
	"strings"
)

// GLNLength is the length of a global location number
const GLNLength = 13

// BuildSGTIN constructs the EPC pure-identity URN for a serialized trade
// item, urn:epc:id:sgtin:<companyPrefix>.<itemRef>.<serial>. The GTIN is
// validated first; the item reference leads with the GTIN indicator digit
// per the EPC tag data standard.
func BuildSGTIN(gtin, serialNumber string) (string, error) {
	if err := ValidateGTIN(gtin); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidGTIN, err)
	}
	serialNumber = strings.TrimSpace(serialNumber)
	if serialNumber == "" {
		return "", fmt.Errorf("%w: empty serial number", ErrInvalidInput)
	}

	indicator := string(gtin[0])
	prefix := gtin[1 : 1+defaultCompanyPrefixLength]
	itemRef := indicator + gtin[1+defaultCompanyPrefixLength:GTINLength-1]
	return fmt.Sprintf("urn:epc:id:sgtin:%s.%s.%s", prefix, itemRef, serialNumber), nil
}

// BuildGTINClassURN constructs the EPC class-level URN for a GTIN,
// urn:epc:class:lgtin:<companyPrefix>.<itemRef>.<lot>, used for
// quantity-based (non-serialized) event entries.
func BuildGTINClassURN(gtin, lot string) (string, error) {
	if err := ValidateGTIN(gtin); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidGTIN, err)
	}
	indicator := string(gtin[0])
	prefix := gtin[1 : 1+defaultCompanyPrefixLength]
	itemRef := indicator + gtin[1+defaultCompanyPrefixLength:GTINLength-1]
	if lot = strings.TrimSpace(lot); lot == "" {
		return fmt.Sprintf("urn:epc:idpat:sgtin:%s.%s.*", prefix, itemRef), nil
	}
	return fmt.Sprintf("urn:epc:class:lgtin:%s.%s.%s", prefix, itemRef, lot), nil
}

// BuildSGLN constructs the EPC pure-identity URN for a physical location,
// urn:epc:id:sgln:<companyPrefix>.<locationRef>.<extension>. A GLN-13 is
// split into company prefix and location reference; the check digit is
// dropped. An empty extension encodes as "0" (the GLN itself).
func BuildSGLN(gln, extension string) (string, error) {
	gln = strings.TrimSpace(gln)
	if len(gln) != GLNLength || !allDigits(gln) {
		return "", fmt.Errorf("%w: gln must be 13 digits, got %q", ErrInvalidInput, gln)
	}
	if extension = strings.TrimSpace(extension); extension == "" {
		extension = "0"
	}
	prefix := gln[:defaultCompanyPrefixLength]
	locationRef := gln[defaultCompanyPrefixLength : GLNLength-1]
	return fmt.Sprintf("urn:epc:id:sgln:%s.%s.%s", prefix, locationRef, extension), nil
}
