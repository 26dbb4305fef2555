package form

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidValues = errors.New("invalid backtest values")

type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s(%s)", f.Field, f.Rule))
	}
	return fmt.Sprintf("%s: %s", ErrInvalidValues, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidValues
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate runs the checks a form must pass before it is submitted.
func Validate(v Values, now time.Time) error {
	var fields []FieldError
	if err := structValidator().Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate values: %w", err)
		}
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: fe.Field(), Rule: fe.Tag()})
		}
	}

	if !v.CopyAll && len(v.Pairs) == 0 {
		fields = append(fields, FieldError{Field: "Pairs", Rule: "required"})
	}
	if v.StartTime.IsZero() || v.EndTime.IsZero() {
		fields = append(fields, FieldError{Field: "StartTime", Rule: "required"})
	} else {
		if v.StartTime.After(v.EndTime) {
			fields = append(fields, FieldError{Field: "StartTime", Rule: "ltefield"})
		}
		// No same-day or future backtests.
		if !v.EndTime.Before(Yesterday(now).AddDate(0, 0, 1)) {
			fields = append(fields, FieldError{Field: "EndTime", Rule: "yesterday"})
		}
	}
	if v.VolumeProtection && v.LookBackOrders < 1 {
		fields = append(fields, FieldError{Field: "LookBackOrders", Rule: "gte"})
	}
	if v.EnableStopLoss && v.StopLossAmount <= 0 {
		fields = append(fields, FieldError{Field: "StopLossAmount", Rule: "gt"})
	}
	if v.EnableTakeProfit && v.TakeProfitAmount <= 0 {
		fields = append(fields, FieldError{Field: "TakeProfitAmount", Rule: "gt"})
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
