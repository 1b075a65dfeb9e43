package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/engram/internal/apperr"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 10 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// decodeBody reads a JSON body into dst and runs its validation rules.
// It writes the 400 response itself and reports whether the caller may go on.
func decodeBody(w http.ResponseWriter, r *http.Request, dst validation.Validatable) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	if err := dst.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return false
	}
	return true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound),
		errors.Is(err, apperr.ErrUnknownRef),
		errors.Is(err, apperr.ErrNoCommits),
		errors.Is(err, apperr.ErrUnknownBranch),
		errors.Is(err, apperr.ErrUnknownSession):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrUnknownCategory),
		errors.Is(err, apperr.ErrInvalidBranchName),
		errors.Is(err, apperr.ErrEmptyMessage),
		errors.Is(err, apperr.ErrAmbiguousRef),
		errors.Is(err, apperr.ErrInvalidBlock):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrConflict),
		errors.Is(err, apperr.ErrAlreadyExists),
		errors.Is(err, apperr.ErrBranchExists),
		errors.Is(err, apperr.ErrDirtyWorkingTree),
		errors.Is(err, apperr.ErrCurrentBranch),
		errors.Is(err, apperr.ErrNothingToCommit),
		errors.Is(err, apperr.ErrLocked):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err with the status it maps to. Internal errors are
// logged and hidden from the client.
func writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, status, errorBody("internal error"))
		return
	}
	writeJSON(w, status, errorBody(err.Error()))
}
