package handler

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorBody is the JSON shape of error responses.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

type jsonResponse struct {
	status  int
	body    any
	headers http.Header
}

func (j jsonResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	for k, v := range j.headers {
		w.Header()[k] = v
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

// JSON renders v with the given status.
func JSON(status int, v any) Response {
	return jsonResponse{status: status, body: v}
}

// OK renders v with 200.
func OK(v any) Response {
	return JSON(http.StatusOK, v)
}

// Error renders err as an ErrorBody. HTTPError keeps its status and key;
// any other error becomes a 500 without leaking its text.
func Error(err error) Response {
	return ErrorWithDetails(err, nil)
}

// ErrorWithDetails is Error with extra structured details.
func ErrorWithDetails(err error, details map[string]any) Response {
	var httpErr HTTPError
	if !errors.As(err, &httpErr) {
		httpErr = ErrInternal
	}
	msg := httpErr.Message
	if msg == "" {
		msg = http.StatusText(httpErr.Code)
	}
	return jsonResponse{
		status: httpErr.Code,
		body: ErrorBody{Error: ErrorDetail{
			Code:    httpErr.Key,
			Message: msg,
			Details: details,
		}},
	}
}

// WithHeader returns resp with an extra header when resp is a JSON response.
func WithHeader(resp Response, key, value string) Response {
	j, ok := resp.(jsonResponse)
	if !ok {
		return resp
	}
	h := j.headers.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set(key, value)
	j.headers = h
	return j
}
