package http

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	xutil "Fractal/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = newValidator()

// tagCodes overrides the ERR_<TAG> code for tags that carry domain meaning.
var tagCodes = map[string]string{
	"symbol": "ERR_INVALID_SYMBOL",
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("symbol", func(fl validator.FieldLevel) bool {
		return xutil.IsValidSymbol(xutil.NormalizeSymbol(fl.Field().String()))
	})
	return v
}

// ReadAndValidateRequest binds query params for every method and the body when
// one is sent, applies `default` tags and validates. A nil result means req is usable.
func ReadAndValidateRequest(c echo.Context, req interface{}) []ValidationError {
	b := &echo.DefaultBinder{}
	if err := b.BindQueryParams(c, req); err != nil {
		return bindErrors(err)
	}
	r := c.Request()
	if r.Method != http.MethodGet && r.ContentLength > 0 {
		if err := b.BindBody(c, req); err != nil {
			return bindErrors(err)
		}
	}

	if err := defaults.Set(req); err != nil {
		return bindErrors(err)
	}

	if err := validate.StructCtx(r.Context(), req); err != nil {
		return bindErrors(err)
	}
	return nil
}

func bindErrors(err error) []ValidationError {
	var ves validator.ValidationErrors
	if errors.As(err, &ves) {
		out := make([]ValidationError, 0, len(ves))
		for _, fe := range ves {
			out = append(out, fieldError(fe))
		}
		return out
	}

	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg = fmt.Sprintf("%v", he.Message)
	}
	return []ValidationError{{Code: "ERR_BAD_REQUEST", Message: msg}}
}

func fieldError(fe validator.FieldError) ValidationError {
	code, ok := tagCodes[fe.Tag()]
	if !ok {
		code = "ERR_" + strings.ToUpper(fe.Tag())
	}
	field := strings.ToLower(fe.Field())
	ve := ValidationError{Code: code, Field: field, Params: map[string]interface{}{}}

	param := fe.Param()
	isString := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required":
		ve.Message = field + " is required"
	case "symbol":
		ve.Message = field + " must use letters, digits, '.', '-' or '_' (max 32)"
	case "max", "lte":
		ve.Params["max"] = param
		ve.Message = fmt.Sprintf("%s must be at most %s", field, param)
		if isString {
			ve.Message += " characters"
		}
	case "min", "gte":
		ve.Params["min"] = param
		ve.Message = fmt.Sprintf("%s must be at least %s", field, param)
		if isString {
			ve.Message += " characters"
		}
	case "oneof":
		opts := strings.Fields(param)
		ve.Params["options"] = opts
		ve.Message = fmt.Sprintf("%s must be one of: %s", field, strings.Join(opts, ", "))
	default:
		ve.Message = fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
	if len(ve.Params) == 0 {
		ve.Params = nil
	}
	return ve
}
