package booking

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/cx-tal-miterani/rail-booking-system/internal/models"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var fieldMessages = map[string]string{
	"name":         "Passenger name is required.",
	"age":          "Passenger age must be a positive number.",
	"gender":       "Please select a valid gender.",
	"preference":   "Please select a valid berth preference.",
	"journey_date": "Journey date must be in YYYY-MM-DD format.",
	"total_fare":   "Fare must be greater than zero.",
}

// ValidateDraft checks that every field needed for payment is present and
// well formed. The first problem is returned as a *ValidationError.
func ValidateDraft(d models.BookingDraft) error {
	if err := validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) || len(verrs) == 0 {
			return &ValidationError{Message: err.Error()}
		}
		field := verrs[0].Field()
		msg, ok := fieldMessages[field]
		if !ok {
			msg = fmt.Sprintf("Booking details are incomplete (%s).", field)
		}
		return &ValidationError{Field: field, Message: msg}
	}

	if d.BaseFare != 0 && d.TotalFare != d.BaseFare {
		return &ValidationError{Field: "total_fare", Message: "Fare does not match the selected quote."}
	}
	return nil
}

// Complete reports whether the draft can be paid for
func Complete(d models.BookingDraft) bool {
	return ValidateDraft(d) == nil
}
