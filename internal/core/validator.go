package core

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"fetchgate/internal/types"
)

// Validator wraps go-playground/validator for request payloads. Field names
// in messages use the JSON tag so they match what the client sent.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	return &Validator{validate: v, logger: logger}
}

// ValidateStruct validates s and reports the first failing field as a
// *types.AppError. A missing required field yields "missing <field>
// parameter".
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		v.logger.Error("validator misuse", "error", err)
		return types.NewAppError(types.ErrCodeInternalUnexpected, "request validation failed", err)
	}

	fe := fieldErrs[0]
	if fe.Tag() == "required" {
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationMissingField,
			fmt.Sprintf("missing %s parameter", fe.Field()),
			err,
			map[string]any{"field": fe.Field()},
		)
	}
	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationInvalidPayload,
		fmt.Sprintf("invalid value for %s", fe.Field()),
		err,
		map[string]any{"field": fe.Field(), "rule": fe.Tag()},
	)
}
