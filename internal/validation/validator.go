package validation

import (
	"regexp"

	validatorv10 "github.com/go-playground/validator/v10"
)

// ifscPattern is the bank-branch code format: four letters, a zero, six
// alphanumerics.
var ifscPattern = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)

// New returns a configured validator with the struct-level rules
// registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterStructValidation(returnOrderStructValidation, ReturnOrderRequest{})
	return v
}

// returnOrderStructValidation enforces the bank-transfer conditionals:
// bank fields present and the IFSC well-formed.
func returnOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(ReturnOrderRequest)
	if req.Method != "BANK_TRANSFER" {
		return
	}
	if req.AccountName == "" {
		sl.ReportError(req.AccountName, "account_name", "AccountName", "required_for_bank_transfer", "")
	}
	if req.AccountNumber == "" {
		sl.ReportError(req.AccountNumber, "account_number", "AccountNumber", "required_for_bank_transfer", "")
	}
	if !ifscPattern.MatchString(req.IFSC) {
		sl.ReportError(req.IFSC, "ifsc", "IFSC", "ifsc_format", "")
	}
}
