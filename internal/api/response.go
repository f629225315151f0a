package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/SpiceLabsHQ/tfapi/internal/registry"
	"github.com/SpiceLabsHQ/tfapi/internal/statesync"
	"github.com/SpiceLabsHQ/tfapi/internal/terraform"
)

// errorEnvelope is the body of every failed request. Result carries the
// captured terraform output when the failure came from a run.
type errorEnvelope struct {
	Success  bool              `json:"success"`
	Template string            `json:"template,omitempty"`
	Error    string            `json:"error"`
	Result   *terraform.Result `json:"result,omitempty"`
}

// writeJSON writes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code and writes the error envelope.
func writeError(w http.ResponseWriter, template string, err error) {
	env := errorEnvelope{Template: template, Error: err.Error()}
	var runErr *terraform.RunError
	if errors.As(err, &runErr) {
		env.Result = runErr.Result
	}
	writeJSON(w, statusFor(err), env)
}

// statusFor picks the HTTP status for an operation error. Anything not
// recognised is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, terraform.ErrTimedOut):
		return http.StatusGatewayTimeout
	case errors.Is(err, statesync.ErrInvalidTemplate), errors.Is(err, errBadBody):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

var errBadBody = errors.New("malformed request body")

// operationBody is the optional JSON body of init, apply and destroy.
type operationBody struct {
	Args        []string `json:"args"`
	Environment string   `json:"environment"`
}

// decodeBody reads an optional operation body. An empty body yields the
// zero value.
func decodeBody(r *http.Request) (operationBody, error) {
	var body operationBody
	if r.Body == nil {
		return body, nil
	}
	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil && !errors.Is(err, io.EOF) {
		return body, errors.Join(errBadBody, err)
	}
	return body, nil
}
