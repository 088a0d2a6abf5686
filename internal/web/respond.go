// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package web

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/internhub/internhub/internal/auth"
	"github.com/internhub/internhub/pkg/errutil"
)

// maxBodyBytes bounds request bodies. Auth payloads are a few hundred bytes.
const maxBodyBytes = 64 << 10

type errorBody struct {
	Error    string   `json:"error"`
	Message  string   `json:"message"`
	Problems []string `json:"problems,omitempty"`
}

// statusFor maps an error code to an HTTP status. Unknown codes are server
// errors.
func statusFor(code string) int {
	switch code {
	case auth.CodeMissingCredential, auth.CodeInvalidCredentials:
		return http.StatusUnauthorized
	case auth.CodeForbidden, auth.CodeAccountNotVerified:
		return http.StatusForbidden
	case auth.CodeInvalidInput:
		return http.StatusBadRequest
	case auth.CodeAccountExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// messages are the client-facing texts per code. Internal details such as
// the reason a token was rejected stay in the logs.
var messages = map[string]string{
	auth.CodeMissingCredential:  "authentication required",
	auth.CodeInvalidCredentials: "invalid credentials",
	auth.CodeForbidden:          "not permitted for this account type",
	auth.CodeAccountNotVerified: "account is pending approval",
	auth.CodeAccountExists:      "an account with this identifier already exists",
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := auth.Code(err)
	status := statusFor(code)

	body := errorBody{Error: code, Message: messages[code]}
	switch status {
	case http.StatusInternalServerError:
		errutil.LogErrorContext(r.Context(), logger, slog.LevelError, "request failed", err)
		body = errorBody{Error: "INTERNAL", Message: "internal error"}
	case http.StatusBadRequest:
		body.Message = publicMessage(err)
		body.Problems = auth.Problems(err)
	default:
		logger.DebugContext(r.Context(), "request rejected", errutil.Attrs(err)...)
	}
	writeJSON(w, status, body)
}

// publicMessage returns the message of an input error, which never carries
// secrets.
func publicMessage(err error) string {
	if oopsErr, ok := oops.AsOops(err); ok {
		return oopsErr.Error()
	}
	return "invalid request"
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return oops.Code(auth.CodeInvalidInput).Errorf("malformed JSON body")
	}
	return nil
}

// decodeOptionalJSON is decodeJSON for bodies that may be absent. An empty
// body, whether sent with Content-Length 0 or chunked, leaves out unchanged.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, out any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return oops.Code(auth.CodeInvalidInput).Errorf("malformed JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload) //nolint:errcheck // client may have disconnected
}
