package gs1

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildGTINWithCheckDigit(t *testing.T) {
	gtin, err := BuildGTINWithCheckDigit("1234567890123")
	require.NoError(t, err)
	assert.Equal(t, "12345678901231", gtin)
	assert.NoError(t, ValidateGTIN(gtin))
}

func TestBuildGTINWithCheckDigitRoundTrip(t *testing.T) {
	// validateGTIN(buildGTINWithCheckDigit(base)) == ok for any 13-digit base
	bases := []string{
		"0000000000000",
		"1234567890123",
		"9999999999999",
		"0361414100001",
		"5901234123457",
	}

	for _, base := range bases {
		gtin, err := BuildGTINWithCheckDigit(base)
		require.NoError(t, err, "base %s", base)
		assert.NoError(t, ValidateGTIN(gtin), "gtin %s", gtin)
	}
}

func TestValidateGTIN(t *testing.T) {
	tests := []struct {
		name    string
		gtin    string
		wantErr error
	}{
		{
			name:    "valid gtin",
			gtin:    "12345678901231",
			wantErr: nil,
		},
		{
			name:    "too short",
			gtin:    "1234567890123",
			wantErr: ErrInvalidLength,
		},
		{
			name:    "too long",
			gtin:    "123456789012312",
			wantErr: ErrInvalidLength,
		},
		{
			name:    "non-digit characters",
			gtin:    "12345678901A31",
			wantErr: ErrInvalidLength,
		},
		{
			name:    "wrong check digit",
			gtin:    "12345678901232",
			wantErr: ErrInvalidCheckDigit,
		},
		{
			name:    "empty",
			gtin:    "",
			wantErr: ErrInvalidLength,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGTIN(tt.gtin)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBuildSSCC(t *testing.T) {
	sscc, err := BuildSSCC("1", "2345678", "901234567")
	require.NoError(t, err)

	assert.Len(t, sscc, SSCCLength)
	assert.NoError(t, ValidateSSCC(sscc))

	// Deterministic for identical inputs
	again, err := BuildSSCC("1", "2345678", "901234567")
	require.NoError(t, err)
	assert.Equal(t, sscc, again)
}

func TestBuildSSCCInvalidInput(t *testing.T) {
	tests := []struct {
		name      string
		extension string
		prefix    string
		serial    string
	}{
		{name: "body too short", extension: "1", prefix: "2345678", serial: "90123456"},
		{name: "body too long", extension: "1", prefix: "2345678", serial: "9012345678"},
		{name: "non-digit serial", extension: "1", prefix: "2345678", serial: "90123456X"},
		{name: "empty components", extension: "", prefix: "", serial: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildSSCC(tt.extension, tt.prefix, tt.serial)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestValidateSSCCWrongCheckDigit(t *testing.T) {
	sscc, err := BuildSSCC("1", "2345678", "901234567")
	require.NoError(t, err)

	// Flip the check digit
	last := sscc[SSCCLength-1]
	flipped := sscc[:SSCCLength-1] + string((last-'0'+1)%10+'0')
	assert.ErrorIs(t, ValidateSSCC(flipped), ErrInvalidCheckDigit)
}

func TestBuildSSCCURN(t *testing.T) {
	sscc, err := BuildSSCC("1", "2345678", "901234567")
	require.NoError(t, err)

	urn, err := BuildSSCCURN(sscc)
	require.NoError(t, err)
	assert.Equal(t, "urn:epc:id:sscc:2345678.1901234567", urn)
}

func TestBuildSGTIN(t *testing.T) {
	urn, err := BuildSGTIN("12345678901231", "SN100")
	require.NoError(t, err)
	assert.Equal(t, "urn:epc:id:sgtin:2345678.190123.SN100", urn)
}

func TestBuildSGTINRejectsInvalidGTIN(t *testing.T) {
	_, err := BuildSGTIN("12345678901232", "SN100")
	assert.ErrorIs(t, err, ErrInvalidGTIN)

	_, err = BuildSGTIN("12345678901231", "  ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestBuildSGLN(t *testing.T) {
	urn, err := BuildSGLN("1234567890128", "")
	require.NoError(t, err)
	assert.Equal(t, "urn:epc:id:sgln:1234567.89012.0", urn)

	urn, err = BuildSGLN("1234567890128", "42")
	require.NoError(t, err)
	assert.Equal(t, "urn:epc:id:sgln:1234567.89012.42", urn)

	_, err = BuildSGLN("12345", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseEPCURN(t *testing.T) {
	tests := []struct {
		name    string
		urn     string
		want    EPC
		wantErr error
	}{
		{
			name: "sgtin",
			urn:  "urn:epc:id:sgtin:2345678.190123.SN100",
			want: EPC{Scheme: SchemeSGTIN, CompanyPrefix: "2345678", Reference: "190123", Serial: "SN100"},
		},
		{
			name: "sscc",
			urn:  "urn:epc:id:sscc:2345678.1901234567",
			want: EPC{Scheme: SchemeSSCC, CompanyPrefix: "2345678", Reference: "1901234567"},
		},
		{
			name: "sgln",
			urn:  "urn:epc:id:sgln:1234567.89012.0",
			want: EPC{Scheme: SchemeSGLN, CompanyPrefix: "1234567", Reference: "89012", Serial: "0"},
		},
		{
			name:    "unsupported scheme",
			urn:     "urn:epc:id:giai:1234567.ASSET1",
			wantErr: ErrUnsupportedScheme,
		},
		{
			name:    "not an epc urn",
			urn:     "urn:uuid:00000000-0000-0000-0000-000000000000",
			wantErr: ErrInvalidInput,
		},
		{
			name:    "missing fields",
			urn:     "urn:epc:id:sgtin:2345678",
			wantErr: ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEPCURN(tt.urn)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEPCStringRoundTrip(t *testing.T) {
	urns := []string{
		"urn:epc:id:sgtin:2345678.190123.SN100",
		"urn:epc:id:sscc:2345678.1901234567",
		"urn:epc:id:sgln:1234567.89012.0",
	}

	for _, urn := range urns {
		epc, err := ParseEPCURN(urn)
		require.NoError(t, err)
		assert.Equal(t, urn, epc.String())
	}
}
