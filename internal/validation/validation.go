// Package validation checks user-supplied input before it reaches the store.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"sphere/internal/models"

	"github.com/go-playground/validator/v10"
)

// Password bounds are in bytes; bcrypt ignores everything past 72.
const (
	PasswordMinBytes = 6
	PasswordMaxBytes = 72
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,30}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernameRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		n := len(fl.Field().String())
		return n >= PasswordMinBytes && n <= PasswordMaxBytes
	})
	return v
}

// Struct validates s against its `validate` tags. The first failing field is
// reported as a VALIDATION_FAILED error.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return models.NewValidationError(err.Error())
	}
	return models.NewValidationError(describe(fieldErrs[0]))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "username":
		return fmt.Sprintf("%s must be 3-30 characters of letters, digits, '_', '.' or '-'", fe.Field())
	case "password":
		return fmt.Sprintf("%s must be %d-%d bytes long", fe.Field(), PasswordMinBytes, PasswordMaxBytes)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// ValidateUsername checks the public handle format.
func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return models.NewValidationError("username must be 3-30 characters of letters, digits, '_', '.' or '-'")
	}
	return nil
}

// ValidateEmail checks that email is a syntactically valid address.
func ValidateEmail(email string) error {
	if err := validate.Var(email, "required,email,max=255"); err != nil {
		return models.NewValidationError("email must be a valid email address")
	}
	return nil
}

// ValidatePassword enforces the byte-length policy.
func ValidatePassword(password string) error {
	if n := len(password); n < PasswordMinBytes || n > PasswordMaxBytes {
		return models.NewValidationError(fmt.Sprintf("password must be %d-%d bytes long", PasswordMinBytes, PasswordMaxBytes))
	}
	return nil
}
