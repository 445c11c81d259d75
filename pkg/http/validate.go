package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	// report json names so errors match the wire format
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = strings.SplitN(f.Tag.Get("query"), ",", 2)[0]
		}
		return name
	})
}

// ReadAndValidateRequest binds the request (body, query and path), applies
// `default` tags and validates it. It returns nil or a []ValidationError.
func ReadAndValidateRequest(c echo.Context, req interface{}) interface{} {
	// Set default values first so bound fields win
	if err := defaults.Set(req); err != nil {
		return validatorDefaultRules(err)
	}

	// Bind request
	if err := c.Bind(req); err != nil {
		return validatorDefaultRules(err)
	}

	// Validate struct
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return validatorDefaultRules(err)
	}

	return nil
}

func validatorDefaultRules(err error) interface{} {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		out := make([]ValidationError, len(fieldErrs))
		for i, fe := range fieldErrs {
			out[i] = describeField(fe)
		}
		return out
	}

	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg = fmt.Sprint(he.Message)
	}
	return []ValidationError{{Code: "ERR_UNKNOWN", Message: msg}}
}

// describeField renders the tags used by the dashboard requests; any other
// tag gets a generic message.
func describeField(fe validator.FieldError) ValidationError {
	field, param := fe.Field(), fe.Param()
	ve := ValidationError{
		Code:  "ERR_" + strings.ToUpper(fe.Tag()),
		Field: field,
	}
	switch fe.Tag() {
	case "required":
		ve.Message = field + " is required"
	case "oneof":
		opts := strings.Fields(param)
		ve.Message = fmt.Sprintf("%s must be one of: %s", field, strings.Join(opts, ", "))
		ve.Params = map[string]interface{}{"options": opts}
	case "gt":
		ve.Message = fmt.Sprintf("%s must be greater than %s", field, param)
		ve.Params = map[string]interface{}{"value": param}
	case "gte":
		ve.Message = fmt.Sprintf("%s must be at least %s", field, param)
		ve.Params = map[string]interface{}{"min": param}
	case "lte":
		ve.Message = fmt.Sprintf("%s must be at most %s", field, param)
		ve.Params = map[string]interface{}{"max": param}
	default:
		ve.Message = fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
	return ve
}
