package utils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
)

const MinPasswordLength = 6

var (
	ErrPasswordTooShort  = fmt.Errorf("password must be at least %d characters long", MinPasswordLength)
	ErrPasswordNoDigit   = errors.New("password must contain at least one number")
	ErrPasswordNoSymbol  = errors.New("password must contain at least one symbol")
	errUnsupportedTarget = errors.New("validation target must be a struct")
)

// Violation is a single field failure, safe to show to clients.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Violations []Violation

func (v Violations) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		_ = validate.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
			return PasswordPolicy(fl.Field().String()) == nil
		})
	})
	return validate
}

// PasswordPolicy enforces the minimum strength rule: at least six
// characters, one digit and one non-alphanumeric symbol (whitespace
// included). Bcrypt ignores
// anything past 72 bytes, so longer inputs are refused.
func PasswordPolicy(p string) error {
	if len([]rune(p)) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(p) > MaxPasswordBytes {
		return ErrPasswordTooLong
	}

	var digit, symbol bool
	for _, r := range p {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case !unicode.IsLetter(r):
			symbol = true
		}
	}
	if !digit {
		return ErrPasswordNoDigit
	}
	if !symbol {
		return ErrPasswordNoSymbol
	}
	return nil
}

// Validate checks s against its `validate` tags and returns Violations
// (as an error) listing every failing field, or nil.
func Validate(s any) error {
	err := validatorInstance().Struct(s)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return errUnsupportedTarget
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := make(Violations, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, Violation{Field: fe.Field(), Message: violationMessage(fe)})
	}
	return out
}

func violationMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "eqfield":
		return "passwords do not match"
	case "strongpassword":
		if err := PasswordPolicy(fe.Value().(string)); err != nil {
			return err.Error()
		}
		return field + " is too weak"
	default:
		return field + " is invalid"
	}
}
