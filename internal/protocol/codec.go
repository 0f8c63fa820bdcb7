package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidJSON covers both malformed JSON and JSON that parses but fails
// struct validation; callers that need to distinguish them inspect the
// wrapped error.
var ErrInvalidJSON = errors.New("protocol: invalid request body")

var (
	validatorOnce sync.Once
	validate      *validator.Validate
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// DecodeStrict parses body into dst, rejecting unknown fields and trailing
// data, and then validates dst's struct tags.
func DecodeStrict(body []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Join(ErrInvalidJSON, err)
	}
	if dec.More() {
		return errors.Join(ErrInvalidJSON, errors.New("trailing data after JSON value"))
	}

	if err := validatorInstance().Struct(dst); err != nil {
		return errors.Join(ErrInvalidJSON, err)
	}
	return nil
}

// EncodeResponse serializes a Response the same way the HTTP layer does,
// exposed here so codec round-trip tests can exercise encode/decode
// symmetry without importing internal/httpapi.
func EncodeResponse(w io.Writer, resp Response) error {
	return json.NewEncoder(w).Encode(resp)
}
