package handlers

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Flag is a boolean that also accepts 0/1 and quoted forms, as sent by Loxone virtual outputs.
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(b []byte) error {
	switch strings.ToLower(string(bytes.Trim(bytes.TrimSpace(b), `"`))) {
	case "true", "1":
		*f = true
	case "false", "0":
		*f = false
	default:
		return fmt.Errorf("invalid boolean value %s", b)
	}

	return nil
}

// Integer is a whole number that also accepts integral floats such as 40.0.
type Integer int

// UnmarshalJSON implements json.Unmarshaler.
func (i *Integer) UnmarshalJSON(b []byte) error {
	f, err := strconv.ParseFloat(string(bytes.TrimSpace(b)), 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return fmt.Errorf("invalid integer value %s", b)
	}

	*i = Integer(f)

	return nil
}

// LedstripBrightnessRequest is the body of POST /setLedstripBrightness
type LedstripBrightnessRequest struct {
	Username   string   `json:"username" validate:"required"`
	Password   string   `json:"password" validate:"required"`
	Brightness *Integer `json:"brightness" validate:"required,min=0,max=100"`
	ChargerID  string   `json:"chargerId" validate:"required"`
}

// SetIsEnabledRequest is the body of POST /setIsEnabled
type SetIsEnabledRequest struct {
	Username  string `json:"username" validate:"required"`
	Password  string `json:"password" validate:"required"`
	Enabled   *Flag  `json:"enabled" validate:"required"`
	ChargerID string `json:"chargerId" validate:"required"`
}

// SetDynamicChargerCurrentRequest is the body of POST /setDynamicChargerCurrent
type SetDynamicChargerCurrentRequest struct {
	Username              string   `json:"username" validate:"required"`
	Password              string   `json:"password" validate:"required"`
	DynamicChargerCurrent *float64 `json:"dynamicChargerCurrent" validate:"required"`
	ChargerID             string   `json:"chargerId" validate:"required"`
}

// SetMaxChargerCurrentRequest is the body of POST /setMaxChargerCurrent
type SetMaxChargerCurrentRequest struct {
	Username           string   `json:"username" validate:"required"`
	Password           string   `json:"password" validate:"required"`
	MaxChargerCurrent  *float64 `json:"maxChargerCurrent" validate:"required"`
	ChargerID          string   `json:"chargerId" validate:"required"`
	MaxChargerAccepted *float64 `json:"maxChargerAccepted" validate:"required"`
}

// ValidationError lists the invalid fields of a request body
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, msg := range e.Fields {
		parts = append(parts, msg)
	}
	sort.Strings(parts)

	return fmt.Sprintf("validation failed: %s", strings.Join(parts, ", "))
}

type requestValidator struct {
	validate *validator.Validate
}

func newRequestValidator() *requestValidator {
	validate := validator.New()

	// Use JSON field names for validation error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &requestValidator{validate: validate}
}

func (v *requestValidator) Validate(req interface{}) error {
	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}

	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		switch fe.Tag() {
		case "required":
			fields[fe.Field()] = fmt.Sprintf("%s is required", fe.Field())
		case "min":
			fields[fe.Field()] = fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
		case "max":
			fields[fe.Field()] = fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
		default:
			fields[fe.Field()] = fmt.Sprintf("%s is invalid", fe.Field())
		}
	}

	return &ValidationError{Fields: fields}
}
