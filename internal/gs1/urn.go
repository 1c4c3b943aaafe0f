package gs1

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedScheme is returned for EPC URNs outside the schemes this
// service understands.
var ErrUnsupportedScheme = errors.New("unsupported epc scheme")

const urnPrefix = "urn:epc:id:"

// Scheme identifies the EPC identity scheme of a parsed URN
type Scheme string

const (
	SchemeSGTIN Scheme = "sgtin"
	SchemeSSCC  Scheme = "sscc"
	SchemeSGLN  Scheme = "sgln"
)

// EPC is the decomposed form of an EPC pure-identity URN. Serial is empty
// for schemes without a serial component.
type EPC struct {
	Scheme        Scheme
	CompanyPrefix string
	Reference     string
	Serial        string
}

// String reassembles the URN form
func (e EPC) String() string {
	if e.Serial != "" {
		return fmt.Sprintf("%s%s:%s.%s.%s", urnPrefix, e.Scheme, e.CompanyPrefix, e.Reference, e.Serial)
	}
	return fmt.Sprintf("%s%s:%s.%s", urnPrefix, e.Scheme, e.CompanyPrefix, e.Reference)
}

// ParseEPCURN decomposes an EPC pure-identity URN into its scheme and GS1
// fields. Only sgtin, sscc and sgln are supported.
func ParseEPCURN(urn string) (EPC, error) {
	urn = strings.TrimSpace(urn)
	rest, ok := strings.CutPrefix(urn, urnPrefix)
	if !ok {
		return EPC{}, fmt.Errorf("%w: %q", ErrInvalidInput, urn)
	}

	scheme, fields, ok := strings.Cut(rest, ":")
	if !ok {
		return EPC{}, fmt.Errorf("%w: %q", ErrInvalidInput, urn)
	}

	switch Scheme(scheme) {
	case SchemeSGTIN, SchemeSSCC, SchemeSGLN:
	default:
		return EPC{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}

	parts := strings.Split(fields, ".")
	epc := EPC{Scheme: Scheme(scheme)}
	switch len(parts) {
	case 2:
		epc.CompanyPrefix, epc.Reference = parts[0], parts[1]
	case 3:
		epc.CompanyPrefix, epc.Reference, epc.Serial = parts[0], parts[1], parts[2]
	default:
		return EPC{}, fmt.Errorf("%w: %q has %d fields", ErrInvalidInput, urn, len(parts))
	}

	if epc.CompanyPrefix == "" || epc.Reference == "" {
		return EPC{}, fmt.Errorf("%w: %q", ErrInvalidInput, urn)
	}

	// SGTIN and SGLN carry a serial/extension component; SSCC never does
	if Scheme(scheme) == SchemeSSCC && epc.Serial != "" {
		return EPC{}, fmt.Errorf("%w: sscc urn has a serial component", ErrInvalidInput)
	}

	return epc, nil
}

// IsEPCURN reports whether s looks like a supported EPC URN
func IsEPCURN(s string) bool {
	_, err := ParseEPCURN(s)
	return err == nil
}
