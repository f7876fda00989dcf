package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/field-worklog-bot/internal/models"
	"github.com/go-playground/validator/v10"
)

// Validator checks inbound events and report records
type Validator struct {
	v *validator.Validate
}

// NewValidator creates a new validator instance reporting fields by their JSON names
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

// ValidateEvent validates an inbound chat event
func (v *Validator) ValidateEvent(e *models.ChatEvent) []models.ValidationError {
	return v.check(e)
}

// ValidateReport validates a report before it is written
func (v *Validator) ValidateReport(r *models.Report) []models.ValidationError {
	errs := v.check(r)
	if r.IsTruck() && !r.IsTechnique() {
		errs = append(errs, models.ValidationError{Field: "machine_kind", Message: "trip count requires a machine"})
	}
	return errs
}

func (v *Validator) check(s interface{}) []models.ValidationError {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []models.ValidationError{{Message: err.Error()}}
	}

	out := make([]models.ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, models.ValidationError{
			Field:   fe.Field(),
			Message: describe(fe),
			Value:   fe.Value(),
		})
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return fe.Field() + " is required"
	case "excluded_with":
		return fe.Field() + " must not be combined with " + strings.ToLower(fe.Param())
	case "min", "gt":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}

// ValidateHours checks a new hours value against the range and the hours
// already reported for the same date
func ValidateHours(hours, used int) *models.ValidationError {
	remaining := models.MaxDailyHours - used
	if remaining < 0 {
		remaining = 0
	}
	if hours < 1 || hours > models.MaxDailyHours {
		return &models.ValidationError{
			Field:   "hours",
			Message: fmt.Sprintf("hours must be between 1 and %d", models.MaxDailyHours),
			Value:   hours,
		}
	}
	if hours > remaining {
		return &models.ValidationError{
			Field:   "hours",
			Message: fmt.Sprintf("%d hours already reported for this date, pick at most %d", used, remaining),
			Value:   hours,
		}
	}
	return nil
}

// ValidateTripCount checks a truck trip count
func ValidateTripCount(n int) *models.ValidationError {
	if n < 1 || n > models.MaxTripCount {
		return &models.ValidationError{
			Field:   "trip_count",
			Message: fmt.Sprintf("trip count must be between 1 and %d", models.MaxTripCount),
			Value:   n,
		}
	}
	return nil
}

// ParseTripCount parses free text into a validated trip count
func ParseTripCount(text string) (int, *models.ValidationError) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, &models.ValidationError{Field: "trip_count", Message: "send the number of trips as digits", Value: text}
	}
	if verr := ValidateTripCount(n); verr != nil {
		return 0, verr
	}
	return n, nil
}

// ParseFieldList reads a list of catalog numbers ("7, 1 4") for the edit queue.
// Accepted fields are deduplicated and returned in catalog order. Entries that
// are not catalog numbers, or name a field that does not apply to the report,
// are returned as rejected in input order.
func ParseFieldList(input string, r *models.Report) ([]models.Field, []string) {
	tokens := strings.FieldsFunc(input, func(c rune) bool {
		return c == ',' || c == ';' || c == ' ' || c == '\n' || c == '\t'
	})

	seen := make(map[models.Field]bool)
	var rejected []string
	for _, tok := range tokens {
		n, err := strconv.Atoi(tok)
		f := models.Field(n)
		if err != nil || !inCatalog(f) || (r != nil && !f.AppliesTo(r)) {
			rejected = append(rejected, tok)
			continue
		}
		seen[f] = true
	}

	fields := make([]models.Field, 0, len(seen))
	for f := range seen {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
	return fields, rejected
}

func inCatalog(f models.Field) bool {
	for _, c := range models.FieldCatalog {
		if c == f {
			return true
		}
	}
	return false
}
