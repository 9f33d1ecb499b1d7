// Package shared holds the JSON response helpers every handler uses, so
// error envelopes stay identical across the surface.
package shared

import (
	"encoding/json"
	"net/http"

	dErrors "shopgate/pkg/domain-errors"
)

// ErrorBody is the JSON error envelope. Message is the sanitized user
// message for the error code, never the internal error text.
type ErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// WriteJSON writes a JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// WriteError translates a domain error to its HTTP status and sanitized
// message. Unclassified errors surface as internal.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)

	var body ErrorBody
	body.Error.Code = string(code)
	body.Error.Message = dErrors.UserMessage(code)
	WriteJSON(w, dErrors.ToHTTPStatus(code), body)
}

// DecodeJSON decodes a request body into dst, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}
