package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON field names instead of Go ones.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"omitempty,oneof=ADMIN UPLOADER viewer"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
}

type listStreamsQuery struct {
	Limit int `json:"limit" validate:"omitempty,min=1,max=100"`
}

type validationResponse struct {
	Errors []string `json:"errors"`
}

// trimStrings trims every exported string field of the struct pointed to by v.
func trimStrings(v interface{}) {
	rv := reflect.ValueOf(v).Elem()
	for i := 0; i < rv.NumField(); i++ {
		if f := rv.Field(i); f.Kind() == reflect.String && f.CanSet() {
			f.SetString(strings.TrimSpace(f.String()))
		}
	}
}

func validationMessages(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%q is required", fe.Field()))
		case "min":
			if fe.Kind() == reflect.String {
				msgs = append(msgs, fmt.Sprintf("%q length must be at least %s characters long", fe.Field(), fe.Param()))
			} else {
				msgs = append(msgs, fmt.Sprintf("%q must be greater than or equal to %s", fe.Field(), fe.Param()))
			}
		case "max":
			msgs = append(msgs, fmt.Sprintf("%q must be less than or equal to %s", fe.Field(), fe.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%q must be one of [%s]", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", ")))
		default:
			msgs = append(msgs, fmt.Sprintf("%q is invalid", fe.Field()))
		}
	}
	return msgs
}

// decodeAndValidate reads a JSON body into dst and validates it. On failure
// it writes the 400 response and returns false.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, validationResponse{Errors: []string{"request body must be valid JSON"}})
		return false
	}
	trimStrings(dst)
	return validateStruct(w, dst)
}

func validateStruct(w http.ResponseWriter, v interface{}) bool {
	if err := validate.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, validationResponse{Errors: validationMessages(err)})
		return false
	}
	return true
}
