package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// ErrEmptyBody is returned by DecodeJSON for a request without a body.
var ErrEmptyBody = errors.New("request body is empty")

var validate = validator.New()

// DecodeJSON decodes a single JSON value from the request body into v.
// Unknown fields are ignored; trailing data after the value is an error.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return ErrEmptyBody
	}

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON value")
	}
	return nil
}

// ValidateRequest runs v's own Validate method when it has one and the
// struct tag validator otherwise.
func ValidateRequest(v any) error {
	if self, ok := v.(interface{ Validate() error }); ok {
		return self.Validate()
	}
	return validate.Struct(v)
}
