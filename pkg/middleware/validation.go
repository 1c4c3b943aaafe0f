package middleware

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Structural patterns for GS1 identifiers. Check digits are verified in the
// domain layer; the middleware only rejects obviously malformed input.
var (
	gtinRegex   = regexp.MustCompile(`^\d{14}$`)
	ssccRegex   = regexp.MustCompile(`^\d{18}$`)
	glnRegex    = regexp.MustCompile(`^\d{13}$`)
	epcURNRegex = regexp.MustCompile(`^urn:epc:id:(sgtin|sscc|sgln):[0-9A-Za-z.\-]+$`)
)

// InitValidator initializes the validator with GS1-specific custom validators
func InitValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()

		register := func(v *validator.Validate) {
			_ = v.RegisterValidation("gtin", validateGTIN)
			_ = v.RegisterValidation("sscc", validateSSCC)
			_ = v.RegisterValidation("gln", validateGLN)
			_ = v.RegisterValidation("epc_urn", validateEPCURN)

			v.RegisterTagNameFunc(func(fld reflect.StructField) string {
				name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
				if name == "-" {
					return fld.Name
				}
				return name
			})
		}

		register(validate)

		// Also register on Gin's default binding validator
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			register(v)
		}
	})

	return validate
}

// GetValidator returns the singleton validator instance
func GetValidator() *validator.Validate {
	if validate == nil {
		return InitValidator()
	}
	return validate
}

func validateGTIN(fl validator.FieldLevel) bool {
	return gtinRegex.MatchString(fl.Field().String())
}

func validateSSCC(fl validator.FieldLevel) bool {
	return ssccRegex.MatchString(fl.Field().String())
}

func validateGLN(fl validator.FieldLevel) bool {
	return glnRegex.MatchString(fl.Field().String())
}

func validateEPCURN(fl validator.FieldLevel) bool {
	return epcURNRegex.MatchString(fl.Field().String())
}
