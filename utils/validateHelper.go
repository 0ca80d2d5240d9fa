package utils

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ttacon/libphonenumber"
)

var validate = validator.New()

// ValidateStruct runs the `validate` struct tags and reports failures as ErrInvalidInput.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, strings.ToLower(fe.Field())+" "+fe.Tag())
		}
		return Errorf(ErrInvalidInput, "%s", strings.Join(fields, ", "))
	}
	return Wrap(ErrInvalidInput, err, "")
}

// NormalizePhone returns the E.164 form of a phone number. Empty stays empty.
func NormalizePhone(phone string, defaultRegion string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", nil
	}
	num, err := libphonenumber.Parse(phone, defaultRegion)
	if err != nil {
		return "", Wrap(ErrInvalidInput, err, "phone")
	}
	if !libphonenumber.IsValidNumber(num) {
		return "", Errorf(ErrInvalidInput, "phone %q is not a valid number", phone)
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}
