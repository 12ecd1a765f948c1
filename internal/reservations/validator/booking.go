package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"labreserve/pkg/logger"
	"labreserve/pkg/model"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

type BookingValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewBookingValidator(log *logger.Logger) *BookingValidator {
	v := validator.New()

	if err := v.RegisterValidation("day_time", validateDayTime); err != nil {
		log.Fatal("Failed to register 'day_time' validator",
			"error", err,
		)
	}

	log.Info("Booking validator initialized successfully")

	return &BookingValidator{
		validate: v,
		logger:   log,
	}
}

// day_time accepts HH:MM clock times from 00:00 to 23:59.
func validateDayTime(fl validator.FieldLevel) bool {
	return model.DayTimeRegex.MatchString(fl.Field().String())
}

func (v *BookingValidator) Validate(booking *model.Booking) error {
	if err := v.validate.Struct(booking); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}

	if booking.IsRecurring && booking.Recurrence == nil {
		return ValidationErrors{
			ValidationError{
				Field:   "Recurrence",
				Message: "recurrence pattern is required for recurring bookings",
			},
		}
	}
	if !booking.IsRecurring && booking.Recurrence != nil {
		return ValidationErrors{
			ValidationError{
				Field:   "Recurrence",
				Message: "recurrence pattern is only allowed on recurring bookings",
			},
		}
	}

	if booking.Recurrence != nil {
		if err := v.validateRecurrence(booking.Recurrence); err != nil {
			return err
		}
	}

	return nil
}

func (v *BookingValidator) validateRecurrence(pattern *model.RecurrencePattern) error {
	if err := v.validate.Struct(pattern); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *BookingValidator) ValidateLaboratory(lab *model.Laboratory) error {
	if err := v.validate.Struct(lab); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}

	openMin, err := model.ParseDayTime(lab.OpeningTime)
	if err != nil {
		return ValidationErrors{ValidationError{Field: "OpeningTime", Message: err.Error()}}
	}
	closeMin, err := model.ParseDayTime(lab.ClosingTime)
	if err != nil {
		return ValidationErrors{ValidationError{Field: "ClosingTime", Message: err.Error()}}
	}
	if closeMin <= openMin {
		return ValidationErrors{
			ValidationError{
				Field:   "ClosingTime",
				Message: "closing_time must be after opening_time",
			},
		}
	}

	return nil
}

func (v *BookingValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "mongodb":
			message = fmt.Sprintf("%s must be a valid MongoDB ObjectID", err.Field())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		case "gtfield":
			message = fmt.Sprintf("%s must be after %s", err.Field(), err.Param())
		case "day_time":
			message = fmt.Sprintf("%s must be a HH:MM clock time (00:00-23:59)", err.Field())
		case "datetime":
			message = fmt.Sprintf("%s must be a %s date", err.Field(), err.Param())
		case "unique":
			message = fmt.Sprintf("%s must not contain duplicates", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
