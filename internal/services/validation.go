package services

import (
	"encoding/json"
	"errors"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"github.com/example/obaatanpa/internal/models"
)

var (
	emailPattern = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)
	phonePattern = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)
)

// Rules shared by struct tags and single-value checks.
const (
	emailRules    = "required,max=254,email_address"
	passwordRules = "required,min=6,max_bytes=72"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	must(v.RegisterValidation("notblank", validators.NotBlank))
	must(v.RegisterValidation("email_address", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	}))
	must(v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	}))
	// bcrypt ignores everything past 72 bytes, so the cap is on bytes, not runes.
	must(v.RegisterValidation("max_bytes", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		return err == nil && len(fl.Field().String()) <= limit
	}))
	return v
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// checkStruct validates s and reports the first failure as a ValidationError.
// prefix is prepended to the field path of nested documents.
func checkStruct(prefix string, s any) error {
	if err := validate.Struct(s); err != nil {
		return fieldError(prefix, err)
	}
	return nil
}

// checkValue validates a single value against rules.
func checkValue(field, value, rules string) error {
	if err := validate.Var(value, rules); err != nil {
		return fieldError(field, err)
	}
	return nil
}

func fieldError(prefix string, err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return invalid(prefix, err.Error())
	}
	fe := errs[0]

	// Namespace starts with the struct type name; keep only the JSON path.
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	} else {
		field = ""
	}
	switch {
	case field == "":
		field = prefix
	case prefix != "":
		field = prefix + "." + field
	}
	return invalid(field, fieldMessage(fe))
}

func fieldMessage(fe validator.FieldError) string {
	text := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "min":
		if text {
			return "must be at least " + fe.Param() + " characters"
		}
		return "must be at least " + fe.Param()
	case "max":
		if text {
			return "cannot exceed " + fe.Param() + " characters"
		}
		return "cannot exceed " + fe.Param()
	case "max_bytes":
		return "cannot exceed " + fe.Param() + " bytes"
	case "oneof":
		return "must be one of " + strings.Join(strings.Fields(fe.Param()), ", ")
	case "email_address":
		return "please enter a valid email"
	case "phone":
		return "please enter a valid phone number"
	}
	return "is invalid"
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	return &s
}

func parseDateOfBirth(raw string, now time.Time) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	dob, err := models.ParseDate(raw)
	if err != nil {
		return nil, invalid("dateOfBirth", "must be a date (YYYY-MM-DD)")
	}
	if !dob.Before(now) {
		return nil, invalid("dateOfBirth", "must be in the past")
	}
	dob = dob.UTC()
	return &dob, nil
}

func normalizeLocation(loc *models.Location) models.Location {
	if loc == nil {
		return models.Location{Country: models.DefaultCountry}
	}
	out := *loc
	out.City = strings.TrimSpace(out.City)
	out.Region = strings.TrimSpace(out.Region)
	out.Country = strings.TrimSpace(out.Country)
	if out.Country == "" {
		out.Country = models.DefaultCountry
	}
	return out
}

// mergePreferences applies a partial preferences document on top of current.
// Keys the patch leaves out keep their stored values.
func mergePreferences(current models.Preferences, patch json.RawMessage) (models.Preferences, error) {
	merged := current
	if err := json.Unmarshal(patch, &merged); err != nil {
		return current, invalid("preferences", "is malformed: "+err.Error())
	}
	if err := checkStruct("preferences", merged); err != nil {
		return current, err
	}
	return merged, nil
}

// profileFields maps each role to the request field carrying its profile.
var profileFields = map[models.UserType]string{
	models.UserTypePregnant:     "pregnancyProfile",
	models.UserTypeNewMother:    "motherProfile",
	models.UserTypeHospital:     "hospitalProfile",
	models.UserTypePractitioner: "practitionerProfile",
}

// buildProfile picks the raw profile matching userType, rejecting any profile
// supplied for a different role.
func buildProfile(userType models.UserType, raws map[models.UserType]json.RawMessage) (models.RoleProfile, error) {
	for t, raw := range raws {
		if t != userType && !isEmptyJSON(raw) {
			return models.RoleProfile{}, invalid(profileFields[t], "is not allowed for user type "+string(userType))
		}
	}
	field := profileFields[userType]
	profile, err := models.NewRoleProfile(userType, raws[userType])
	if err != nil {
		return models.RoleProfile{}, invalid(field, "is malformed: "+err.Error())
	}
	if err := checkStruct(field, profile.Data()); err != nil {
		return models.RoleProfile{}, err
	}
	return profile, nil
}

func isEmptyJSON(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}
