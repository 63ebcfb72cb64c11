package handler

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// paramError names the request field that failed to parse
type paramError struct {
	field   string
	message string
}

func (e *paramError) Error() string { return e.field + ": " + e.message }

func respondParamError(c echo.Context, err error) error {
	if pe, ok := err.(*paramError); ok {
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: pe.field, Message: pe.message},
		})
	}
	return NewValidationError(c, err.Error(), nil)
}

// parseIDParam reads a positive int32 path parameter
func parseIDParam(c echo.Context, name string) (int32, error) {
	v, err := strconv.ParseInt(c.Param(name), 10, 32)
	if err != nil || v <= 0 {
		return 0, &paramError{field: name, message: "Invalid ID"}
	}
	return int32(v), nil
}

func parseDate(field, s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, &paramError{field: field, message: "Invalid date format, use YYYY-MM-DD"}
	}
	return t, nil
}

func parseOptionalDate(field string, s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseDate(field, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseAmount(field, s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, &paramError{field: field, message: "Invalid amount format"}
	}
	return amount, nil
}

func parseOptionalAmount(field string, s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	amount, err := parseAmount(field, *s)
	if err != nil {
		return nil, err
	}
	return &amount, nil
}

// queryInt32 reads an optional int32 query parameter, returning def when absent
func queryInt32(c echo.Context, name string, def int32) (int32, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, &paramError{field: name, message: "Must be an integer"}
	}
	return int32(v), nil
}
