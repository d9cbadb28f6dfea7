package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ReadBody reads at most limit bytes of the request body.
// Larger bodies yield ErrRequestTooLarge.
func ReadBody(r *http.Request, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, ErrBadRequest.WithMessage("failed to read request body")
	}
	if int64(len(body)) > limit {
		return nil, ErrRequestTooLarge
	}
	return body, nil
}

// DecodeJSON decodes a single JSON value from a body of at most limit bytes.
// Unknown fields are allowed: mobile SDK payloads grow over time.
func DecodeJSON(r *http.Request, limit int64, v any) error {
	body, err := ReadBody(r, limit)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return fmt.Errorf("%w: empty body", ErrInvalidJSON)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return nil
}
